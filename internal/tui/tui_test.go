package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternchat/sdk-go/pkg/gateway"
	"github.com/lanternchat/sdk-go/pkg/models"
)

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

func inRoom(t *testing.T) Model {
	t.Helper()
	m := NewModel(Options{})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	m.self = models.User{ID: 1, Username: "me"}
	m.usernames[1] = "me"
	m.parties = []models.Party{{ID: 10, Name: "lantern", DefaultRoom: 21}}
	m.room = models.Room{ID: 20, PartyID: 10, Name: "general"}
	m.page = pageRoom
	return m
}

func TestParseCommand(t *testing.T) {
	name, args := parseCommand("  /edit 42 new text ")
	assert.Equal(t, "edit", name)
	assert.Equal(t, []string{"42", "new", "text"}, args)

	name, args = parseCommand("hello")
	assert.Empty(t, name)
	assert.Nil(t, args)

	name, _ = parseCommand("/")
	assert.Empty(t, name)
}

func TestFindCommandAliases(t *testing.T) {
	for alias, want := range map[string]string{
		"j":      "join",
		"SWITCH": "join",
		"rm":     "delete",
		"status": "presence",
		"?":      "help",
	} {
		cmd := findCommand(alias)
		require.NotNil(t, cmd, alias)
		assert.Equal(t, want, cmd.Name)
	}
	assert.Nil(t, findCommand("nope"))
}

func TestReadyLoadsRooms(t *testing.T) {
	m := NewModel(Options{})
	m, cmd := update(t, m, eventMsg{msg: &gateway.Ready{
		User:    models.User{ID: 1, Username: "me", Discriminator: 7},
		Parties: []models.Party{{ID: 10, Name: "lantern", DefaultRoom: 21}},
	}})
	assert.NotNil(t, cmd)
	assert.Equal(t, models.Snowflake(1), m.self.ID)
	require.Len(t, m.parties, 1)
	require.NotEmpty(t, m.lines)
	assert.Contains(t, m.lines[len(m.lines)-1].Content, "me#0007")

	m, cmd = update(t, m, roomsMsg{party: 10, rooms: []models.Room{
		{ID: 22, PartyID: 10, Name: "random", Position: 2},
		{ID: 21, PartyID: 10, Name: "general", Position: 1},
	}})
	assert.NotNil(t, cmd)
	assert.Equal(t, "general", m.room.Name)
	assert.Equal(t, pageRoom, m.page)
	assert.Equal(t, "general", m.rooms[10][0].Name)
}

func TestMessageEvents(t *testing.T) {
	m := inRoom(t)
	author := models.User{ID: 2, Username: "ana"}

	m, _ = update(t, m, eventMsg{msg: &gateway.MessageCreate{Message: models.Message{ID: 100, RoomID: 20, Author: author, Content: "hi"}}})
	m, _ = update(t, m, eventMsg{msg: &gateway.MessageCreate{Message: models.Message{ID: 101, RoomID: 99, Author: author, Content: "elsewhere"}}})
	require.Len(t, m.lines, 1)
	assert.Equal(t, "hi", m.lines[0].Content)
	assert.Equal(t, 1, m.unread[99])

	edited := time.Now()
	m, _ = update(t, m, eventMsg{msg: &gateway.MessageUpdate{Message: models.Message{ID: 100, RoomID: 20, Author: author, Content: "hello", EditedAt: &edited}}})
	require.Len(t, m.lines, 1)
	assert.Equal(t, "hello", m.lines[0].Content)
	assert.True(t, m.lines[0].Edited)

	// REST 回包和 gateway 回显是同一条消息
	m, _ = update(t, m, sentMsg{msg: &models.Message{ID: 100, RoomID: 20, Author: author, Content: "hello"}})
	assert.Len(t, m.lines, 1)

	m, _ = update(t, m, eventMsg{msg: &gateway.MessageDelete{ID: 100, RoomID: 20}})
	assert.Empty(t, m.lines)
}

func TestTypingIndicator(t *testing.T) {
	m := inRoom(t)
	m.usernames[2] = "ana"

	m, _ = update(t, m, eventMsg{msg: &gateway.TypingStart{RoomID: 20, UserID: 2}})
	m, _ = update(t, m, eventMsg{msg: &gateway.TypingStart{RoomID: 20, UserID: 1}})
	assert.Equal(t, "ana is typing...", m.typingText())
	assert.Contains(t, m.View(), "ana is typing...")

	m, _ = update(t, m, eventMsg{msg: &gateway.MessageCreate{Message: models.Message{ID: 5, RoomID: 20, Author: models.User{ID: 2, Username: "ana"}}}})
	assert.Empty(t, m.typingText())
}

func TestHelloStartsHeartbeat(t *testing.T) {
	m := NewModel(Options{})
	m, cmd := update(t, m, eventMsg{msg: &gateway.Hello{HeartbeatInterval: 45000}})
	assert.NotNil(t, cmd)
	assert.True(t, m.connected)
	assert.True(t, m.beating)
	assert.Equal(t, 45*time.Second, m.heartbeat)

	// 第二个 Hello 不会叠加新的定时器
	m, _ = update(t, m, eventMsg{msg: &gateway.Hello{HeartbeatInterval: 45000}})
	assert.True(t, m.beating)

	m.lastBeat = time.Now().Add(-30 * time.Millisecond)
	m, _ = update(t, m, eventMsg{msg: &gateway.HeartbeatAck{}})
	assert.GreaterOrEqual(t, m.lastRTT, 30*time.Millisecond)
}

func TestGatewayErrorBacksOff(t *testing.T) {
	m := NewModel(Options{ReconnectMin: 100 * time.Millisecond, ReconnectMax: 300 * time.Millisecond})
	m.connected = true

	closeErr := &gateway.CloseError{Code: 4008, Reason: gateway.ReasonRateLimited, Text: "slow down"}
	m, cmd := update(t, m, eventMsg{err: closeErr})
	assert.NotNil(t, cmd)
	assert.False(t, m.connected)
	assert.Equal(t, closeErr.Error(), m.lastError)
	assert.Equal(t, 200*time.Millisecond, m.backoff)

	m, _ = update(t, m, eventMsg{err: closeErr})
	m, _ = update(t, m, eventMsg{err: closeErr})
	assert.Equal(t, 300*time.Millisecond, m.backoff)

	m, _ = update(t, m, eventMsg{msg: &gateway.Hello{}})
	assert.Equal(t, 100*time.Millisecond, m.backoff)
}

func TestAuthFailureStops(t *testing.T) {
	m := NewModel(Options{})
	m, cmd := update(t, m, eventMsg{err: &gateway.CloseError{Code: 4004, Reason: gateway.ReasonAuthFailed}})
	assert.Nil(t, cmd)
	assert.True(t, m.stopped)
	assert.Contains(t, m.lastError, "lantern login")

	m, cmd = update(t, m, reconnectMsg{})
	assert.Nil(t, cmd)
}

func TestClosedStopsListening(t *testing.T) {
	m := NewModel(Options{})
	m, cmd := update(t, m, eventMsg{err: gateway.ErrClosed})
	assert.Nil(t, cmd)
	assert.True(t, m.stopped)
}

func TestJoinCommand(t *testing.T) {
	m := inRoom(t)
	m.rooms[10] = []models.Room{
		{ID: 20, PartyID: 10, Name: "general"},
		{ID: 21, PartyID: 10, Name: "dev-talk"},
	}
	m.unread[21] = 3

	out, err := cmdRooms(&m, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "[1] #dev-talk (3 unread)")

	_, err = cmdJoin(&m, []string{"dev"})
	require.NoError(t, err)
	assert.Equal(t, models.Snowflake(21), m.room.ID)
	assert.Zero(t, m.unread[21])
	assert.Len(t, m.queued, 1)

	_, err = cmdJoin(&m, []string{"0"})
	require.NoError(t, err)
	assert.Equal(t, models.Snowflake(20), m.room.ID)

	res, err := cmdJoin(&m, []string{"#missing"})
	require.NoError(t, err)
	assert.Equal(t, "Room not found: missing", res)
}

func TestMessageArgLast(t *testing.T) {
	m := inRoom(t)
	_, err := m.messageArg([]string{"last"})
	assert.Error(t, err)

	m.upsertMessage(&models.Message{ID: 77, RoomID: 20, Author: models.User{ID: 2}})
	m.appendSystem("note")
	id, err := m.messageArg([]string{"last"})
	require.NoError(t, err)
	assert.Equal(t, models.Snowflake(77), id)

	_, err = m.messageArg([]string{"abc"})
	assert.Error(t, err)
}

func TestPresenceCommand(t *testing.T) {
	m := inRoom(t)
	_, err := cmdPresence(&m, []string{"sleeping"})
	assert.Error(t, err)

	out, err := cmdPresence(&m, []string{"away", "lunch"})
	require.NoError(t, err)
	assert.Equal(t, "Presence: away", out)
	assert.Equal(t, "lunch", m.presence[1].Activity)

	who, err := cmdWho(&m, nil)
	require.NoError(t, err)
	assert.Contains(t, who, "me")
}

func TestQuitCommand(t *testing.T) {
	m := inRoom(t)
	m.textarea.SetValue("/quit")
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
