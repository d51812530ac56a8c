package tui

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lanternchat/sdk-go/pkg/api/commands"
	"github.com/lanternchat/sdk-go/pkg/driver"
	"github.com/lanternchat/sdk-go/pkg/gateway"
	"github.com/lanternchat/sdk-go/pkg/models"
)

const quitResult = "__QUIT__"

// Command represents a TUI slash command
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Category    string
	Handler     func(m *Model, args []string) (string, error)
}

// getBuiltinCommands returns the list of all built-in commands
func getBuiltinCommands() []Command {
	return []Command{
		// Navigation
		{Name: "parties", Aliases: []string{"p"}, Description: "List parties", Category: "Navigation", Handler: cmdParties},
		{Name: "rooms", Aliases: []string{"r"}, Description: "List rooms", Category: "Navigation", Handler: cmdRooms},
		{Name: "join", Aliases: []string{"j", "switch"}, Description: "Open a room by index, name or ID", Category: "Navigation", Handler: cmdJoin},
		{Name: "history", Aliases: []string{"reload"}, Description: "Reload room history", Category: "Navigation", Handler: cmdHistory},

		// Messages
		{Name: "edit", Aliases: []string{"e"}, Description: "Edit a message: /edit <id> <text>", Category: "Messages", Handler: cmdEdit},
		{Name: "delete", Aliases: []string{"del", "rm"}, Description: "Delete a message: /delete <id> [reason]", Category: "Messages", Handler: cmdDelete},
		{Name: "react", Aliases: []string{"+"}, Description: "React to a message: /react <id> <emote>", Category: "Messages", Handler: cmdReact},
		{Name: "last", Aliases: nil, Description: "Show the ID of the last message", Category: "Messages", Handler: cmdLast},

		// Presence
		{Name: "presence", Aliases: []string{"status"}, Description: "Set presence: online|away|busy|offline [activity]", Category: "Presence", Handler: cmdPresence},
		{Name: "who", Aliases: nil, Description: "Show known presences", Category: "Presence", Handler: cmdWho},

		// System
		{Name: "reconnect", Aliases: nil, Description: "Drop and re-open the gateway socket", Category: "System", Handler: cmdReconnect},
		{Name: "clear", Aliases: []string{"cls", "c"}, Description: "Clear chat", Category: "System", Handler: cmdClear},
		{Name: "info", Aliases: []string{"i"}, Description: "Show connection info", Category: "System", Handler: cmdInfo},
		{Name: "help", Aliases: []string{"h", "?"}, Description: "Show help", Category: "System", Handler: cmdHelp},
		{Name: "quit", Aliases: []string{"q", "exit"}, Description: "Quit TUI", Category: "System", Handler: cmdQuit},
	}
}

func findCommand(name string) *Command {
	name = strings.ToLower(strings.TrimSpace(name))
	cmds := getBuiltinCommands()
	for i := range cmds {
		if cmds[i].Name == name {
			return &cmds[i]
		}
		for _, alias := range cmds[i].Aliases {
			if alias == name {
				return &cmds[i]
			}
		}
	}
	return nil
}

func parseCommand(input string) (name string, args []string) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return "", nil
	}
	parts := strings.Fields(strings.TrimPrefix(input, "/"))
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}

func cmdParties(m *Model, args []string) (string, error) {
	if len(m.parties) == 0 {
		return "No parties.", nil
	}
	var b strings.Builder
	b.WriteString("Parties:\n")
	for _, p := range m.parties {
		cur := " "
		if p.ID == m.room.PartyID {
			cur = "*"
		}
		b.WriteString(fmt.Sprintf(" %s %s (%s, %d rooms)\n", cur, p.Name, p.ID, len(m.rooms[p.ID])))
	}
	return b.String(), nil
}

// allRooms 按 party 顺序展开房间，供 /rooms 和 /join 的序号共用
func (m *Model) allRooms() []models.Room {
	var rooms []models.Room
	for _, p := range m.parties {
		rooms = append(rooms, m.rooms[p.ID]...)
	}
	return rooms
}

func cmdRooms(m *Model, args []string) (string, error) {
	rooms := m.allRooms()
	if len(rooms) == 0 {
		return "No rooms loaded yet.", nil
	}
	var b strings.Builder
	b.WriteString("Rooms:\n")
	for i, r := range rooms {
		cur := " "
		if r.ID == m.room.ID {
			cur = "*"
		}
		extra := ""
		if n := m.unread[r.ID]; n > 0 {
			extra = fmt.Sprintf(" (%d unread)", n)
		}
		b.WriteString(fmt.Sprintf(" %s [%d] #%s%s\n", cur, i, r.Name, extra))
	}
	return b.String(), nil
}

func cmdJoin(m *Model, args []string) (string, error) {
	if len(args) == 0 {
		return "Usage: /join <index|name|id>", nil
	}
	target := strings.TrimPrefix(strings.Join(args, " "), "#")
	rooms := m.allRooms()

	if idx, err := strconv.Atoi(target); err == nil && idx >= 0 && idx < len(rooms) {
		m.enqueue(m.openRoom(rooms[idx]))
		return "", nil
	}
	if id, err := models.ParseSnowflake(target); err == nil {
		for _, r := range rooms {
			if r.ID == id {
				m.enqueue(m.openRoom(r))
				return "", nil
			}
		}
	}
	for _, r := range rooms {
		if strings.EqualFold(r.Name, target) {
			m.enqueue(m.openRoom(r))
			return "", nil
		}
	}
	for _, r := range rooms {
		if strings.Contains(strings.ToLower(r.Name), strings.ToLower(target)) {
			m.enqueue(m.openRoom(r))
			return "", nil
		}
	}
	return fmt.Sprintf("Room not found: %s", target), nil
}

func cmdHistory(m *Model, args []string) (string, error) {
	if m.room.ID == 0 {
		return "No room selected.", nil
	}
	m.pending = true
	m.enqueue(m.loadMessages(m.room.ID))
	return "", nil
}

func (m *Model) messageArg(args []string) (models.Snowflake, error) {
	if m.room.ID == 0 {
		return 0, fmt.Errorf("no room selected")
	}
	if len(args) == 0 {
		return 0, fmt.Errorf("missing message id")
	}
	if args[0] == "last" {
		for i := len(m.lines) - 1; i >= 0; i-- {
			if !m.lines[i].System {
				return m.lines[i].ID, nil
			}
		}
		return 0, fmt.Errorf("no messages in this room")
	}
	return models.ParseSnowflake(args[0])
}

func cmdEdit(m *Model, args []string) (string, error) {
	id, err := m.messageArg(args)
	if err != nil {
		return "", err
	}
	if len(args) < 2 {
		return "Usage: /edit <id|last> <text>", nil
	}
	room, d := m.room.ID, m.drv
	content := strings.Join(args[1:], " ")
	m.enqueue(m.request(func(ctx context.Context) tea.Msg {
		msg, err := driver.Execute(ctx, d, commands.EditMessage{
			RoomID: room,
			MsgID:  id,
			Edit:   commands.EditMessageBody{Content: content},
		})
		return sentMsg{msg: msg, err: err}
	}))
	return "", nil
}

func cmdDelete(m *Model, args []string) (string, error) {
	id, err := m.messageArg(args)
	if err != nil {
		return "", err
	}
	room, d := m.room.ID, m.drv
	reason := strings.Join(args[1:], " ")
	m.enqueue(m.request(func(ctx context.Context) tea.Msg {
		_, err := driver.Execute(ctx, d, commands.DeleteMessage{RoomID: room, MsgID: id, Reason: reason})
		if err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{result: "Deleted " + id.String()}
	}))
	m.removeMessage(id)
	return "", nil
}

func cmdReact(m *Model, args []string) (string, error) {
	id, err := m.messageArg(args)
	if err != nil {
		return "", err
	}
	if len(args) < 2 {
		return "Usage: /react <id|last> <emote>", nil
	}
	room, d, emote := m.room.ID, m.drv, args[1]
	m.enqueue(m.request(func(ctx context.Context) tea.Msg {
		_, err := driver.Execute(ctx, d, commands.PutReaction{RoomID: room, MsgID: id, Emote: emote})
		return actionMsg{err: err}
	}))
	return "", nil
}

func cmdLast(m *Model, args []string) (string, error) {
	id, err := m.messageArg([]string{"last"})
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func cmdPresence(m *Model, args []string) (string, error) {
	if len(args) == 0 {
		return "Usage: /presence <online|away|busy|offline> [activity]", nil
	}
	status := models.PresenceStatus(strings.ToLower(args[0]))
	switch status {
	case models.PresenceOnline, models.PresenceAway, models.PresenceBusy, models.PresenceOffline:
	default:
		return "", fmt.Errorf("unknown presence %q", args[0])
	}
	p := models.Presence{Status: status, Activity: strings.Join(args[1:], " ")}
	m.enqueue(m.sendGateway("presence", &gateway.SetPresence{Presence: p}))
	m.presence[m.self.ID] = p
	return fmt.Sprintf("Presence: %s", status), nil
}

func cmdWho(m *Model, args []string) (string, error) {
	if len(m.presence) == 0 {
		return "No presence updates yet.", nil
	}
	lines := make([]string, 0, len(m.presence))
	for id, p := range m.presence {
		line := fmt.Sprintf(" %-20s %s", m.username(id), p.Status)
		if p.Activity != "" {
			line += "  " + p.Activity
		}
		lines = append(lines, line)
	}
	sort.Strings(lines)
	return "Presence:\n" + strings.Join(lines, "\n"), nil
}

func cmdReconnect(m *Model, args []string) (string, error) {
	if m.conn == nil {
		return "No gateway connection.", nil
	}
	m.conn.Reconnect()
	m.connected = false
	return "Reconnecting...", nil
}

func cmdClear(m *Model, args []string) (string, error) {
	m.lines = nil
	m.updateViewport()
	return "Chat cleared.", nil
}

func cmdInfo(m *Model, args []string) (string, error) {
	state := "none"
	if m.conn != nil {
		state = m.conn.State().String()
	}
	server := ""
	if m.drv != nil {
		server = m.drv.Settings().String()
	}
	return fmt.Sprintf("Info:\n  Server:    %s\n  Gateway:   %s\n  User:      %s\n  Room:      %s\n  Heartbeat: %s\n  RTT:       %s",
		server, state, m.self.Username, m.room.Name, m.heartbeat, m.lastRTT), nil
}

func cmdHelp(m *Model, args []string) (string, error) {
	cats := make(map[string][]Command)
	for _, cmd := range getBuiltinCommands() {
		cats[cmd.Category] = append(cats[cmd.Category], cmd)
	}
	keys := make([]string, 0, len(cats))
	for k := range cats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("Commands:\n\n")
	for _, cat := range keys {
		b.WriteString(fmt.Sprintf("[%s]\n", cat))
		for _, cmd := range cats[cat] {
			als := ""
			if len(cmd.Aliases) > 0 {
				als = fmt.Sprintf(" (/%s)", strings.Join(cmd.Aliases, ", /"))
			}
			b.WriteString(fmt.Sprintf("  /%s%s - %s\n", cmd.Name, als, cmd.Description))
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

func cmdQuit(m *Model, args []string) (string, error) {
	return quitResult, nil
}

func truncStr(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
