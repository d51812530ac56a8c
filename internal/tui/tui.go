// Package tui implements the terminal chat client: one room at a time,
// history over REST and live updates over the gateway.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/time/rate"

	"github.com/lanternchat/sdk-go/pkg/api/commands"
	"github.com/lanternchat/sdk-go/pkg/driver"
	"github.com/lanternchat/sdk-go/pkg/gateway"
	"github.com/lanternchat/sdk-go/pkg/models"
)

// 页面类型
type pageType int

const (
	pageHome pageType = iota // 首页：还没有选中房间
	pageRoom
)

const (
	historyPage    = 50
	typingTimeout  = 10 * time.Second
	requestTimeout = 30 * time.Second
)

// Options configures the TUI.
type Options struct {
	Driver       *driver.Driver
	Conn         *gateway.Conn
	Logger       *slog.Logger
	Room         models.Snowflake // room to open once Ready arrives
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	Version      string
}

type chatLine struct {
	ID        models.Snowflake
	AuthorID  models.Snowflake
	Author    string
	Content   string
	Timestamp time.Time
	Edited    bool
	System    bool
}

// gateway 事件和 REST 结果都以 tea.Msg 形式回到 Update
type (
	eventMsg struct {
		msg gateway.ServerMsg
		err error
	}
	reconnectMsg struct{}
	heartbeatMsg struct{}
	flushedMsg   struct {
		what string
		err  error
	}
	roomsMsg struct {
		party models.Snowflake
		rooms []models.Room
		err   error
	}
	historyMsg struct {
		room     models.Snowflake
		messages []models.Message
		err      error
	}
	sentMsg struct {
		msg *models.Message
		err error
	}
	actionMsg struct {
		result string
		err    error
	}
)

// Model 表示 TUI 状态
type Model struct {
	opts   Options
	drv    *driver.Driver
	conn   *gateway.Conn
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	self      models.User
	parties   []models.Party
	rooms     map[models.Snowflake][]models.Room
	room      models.Room
	unread    map[models.Snowflake]int
	usernames map[models.Snowflake]string
	presence  map[models.Snowflake]models.Presence
	typing    map[models.Snowflake]time.Time
	lines     []chatLine

	width  int
	height int
	ready  bool

	page       pageType
	pending    bool
	connected  bool
	stopped    bool
	lastError  string
	backoff    time.Duration
	heartbeat  time.Duration
	beating    bool
	lastBeat   time.Time
	lastRTT    time.Duration
	typingRate *rate.Limiter
	queued     []tea.Cmd
}

// NewModel 创建新的 TUI Model
func NewModel(opts Options) Model {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = time.Second
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = opts.ReconnectMin
	}

	ta := textarea.New()
	ta.Placeholder = "Message, or /help"
	ta.Focus()
	ta.CharLimit = 4000
	ta.SetHeight(1)
	ta.ShowLineNumbers = false
	ta.Prompt = ""

	vp := viewport.New(80, 20)
	vp.SetContent("")

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(getTheme().primary)

	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		opts:      opts,
		drv:       opts.Driver,
		conn:      opts.Conn,
		logger:    opts.Logger.With("component", "tui"),
		ctx:       ctx,
		cancel:    cancel,
		viewport:  vp,
		textarea:  ta,
		spinner:   sp,
		rooms:     map[models.Snowflake][]models.Room{},
		unread:    map[models.Snowflake]int{},
		usernames: map[models.Snowflake]string{},
		presence:  map[models.Snowflake]models.Presence{},
		typing:    map[models.Snowflake]time.Time{},
		page:      pageHome,
		backoff:   opts.ReconnectMin,
		// typing 指示在服务端持续约 10 秒，不必每个按键都发
		typingRate: rate.NewLimiter(rate.Every(typingTimeout/2), 1),
	}
}

// Init 初始化 TUI
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, m.listen())
}

// Update 处理消息
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resize()
		m.updateViewport()
		return m, nil

	case eventMsg:
		if msg.err != nil {
			return m, m.handleGatewayError(msg.err)
		}
		cmds = append(cmds, m.handleEvent(msg.msg)...)
		cmds = append(cmds, m.listen())
		return m, tea.Batch(cmds...)

	case reconnectMsg:
		return m, m.listen()

	case heartbeatMsg:
		m.beating = false
		if m.stopped || m.heartbeat <= 0 {
			return m, nil
		}
		m.lastBeat = time.Now()
		return m, tea.Batch(m.sendGateway("heartbeat", &gateway.Heartbeat{}), m.scheduleHeartbeat())

	case flushedMsg:
		if msg.err != nil && !errors.Is(msg.err, gateway.ErrDisconnected) {
			m.lastError = fmt.Sprintf("%s: %v", msg.what, msg.err)
		}
		return m, nil

	case roomsMsg:
		if msg.err != nil {
			m.appendSystem("Could not load rooms: " + msg.err.Error())
			m.updateViewport()
			return m, nil
		}
		sort.Slice(msg.rooms, func(i, j int) bool { return msg.rooms[i].Position < msg.rooms[j].Position })
		m.rooms[msg.party] = msg.rooms
		if m.room.ID == 0 {
			if room, ok := m.pickInitialRoom(msg.party); ok {
				return m, m.openRoom(room)
			}
		}
		return m, nil

	case historyMsg:
		m.pending = false
		if msg.room != m.room.ID {
			return m, nil
		}
		if msg.err != nil {
			m.appendSystem("Could not load history: " + msg.err.Error())
		} else {
			m.loadHistory(msg.messages)
		}
		m.updateViewport()
		return m, nil

	case sentMsg:
		m.pending = false
		if msg.err != nil {
			m.appendSystem("Send failed: " + msg.err.Error())
		} else if msg.msg != nil && msg.msg.RoomID == m.room.ID {
			m.upsertMessage(msg.msg)
		}
		m.updateViewport()
		return m, nil

	case actionMsg:
		m.pending = false
		if msg.err != nil {
			m.appendSystem("Error: " + msg.err.Error())
		} else if msg.result != "" {
			m.appendSystem(msg.result)
		}
		m.updateViewport()
		return m, nil

	case spinner.TickMsg:
		if m.pending {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.cancel()
			return m, tea.Quit

		case tea.KeyEnter:
			text := strings.TrimSpace(m.textarea.Value())
			if text == "" {
				return m, nil
			}
			m.textarea.Reset()
			m.textarea.SetHeight(1)
			m.lastError = ""

			if strings.HasPrefix(text, "/") {
				return m.runCommand(text)
			}
			if m.room.ID == 0 {
				m.appendSystem("No room selected. Use /rooms and /join.")
				m.updateViewport()
				return m, nil
			}
			m.pending = true
			return m, tea.Batch(m.sendMessage(m.room.ID, text), m.spinner.Tick)

		case tea.KeyRunes, tea.KeySpace:
			if m.room.ID != 0 && m.typingRate.Allow() {
				cmds = append(cmds, m.startTyping(m.room.ID))
			}
		}
	}

	// 更新组件
	var tiCmd tea.Cmd
	m.textarea, tiCmd = m.textarea.Update(msg)
	cmds = append(cmds, tiCmd)

	if m.page == pageRoom {
		var vpCmd tea.Cmd
		m.viewport, vpCmd = m.viewport.Update(msg)
		cmds = append(cmds, vpCmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) runCommand(text string) (tea.Model, tea.Cmd) {
	name, args := parseCommand(text)
	cmd := findCommand(name)
	if cmd == nil {
		m.appendSystem("Unknown command: " + name)
		m.updateViewport()
		return *m, nil
	}
	result, err := cmd.Handler(m, args)
	switch {
	case err != nil:
		m.appendSystem("Error: " + err.Error())
	case result == quitResult:
		m.cancel()
		return *m, tea.Quit
	case result != "":
		m.appendSystem(result)
	}
	m.updateViewport()
	queued := m.queued
	m.queued = nil
	return *m, tea.Batch(queued...)
}

// enqueue 让斜杠命令附带异步操作
func (m *Model) enqueue(cmd tea.Cmd) {
	m.queued = append(m.queued, cmd)
}

func (m *Model) handleEvent(msg gateway.ServerMsg) []tea.Cmd {
	var cmds []tea.Cmd
	switch ev := msg.(type) {
	case *gateway.Hello:
		m.connected = true
		m.backoff = m.opts.ReconnectMin
		m.heartbeat = time.Duration(ev.HeartbeatInterval) * time.Millisecond
		if cmd := m.scheduleHeartbeat(); cmd != nil {
			cmds = append(cmds, cmd)
		}

	case *gateway.HeartbeatAck:
		if !m.lastBeat.IsZero() {
			m.lastRTT = time.Since(m.lastBeat)
		}

	case *gateway.Ready:
		m.self = ev.User
		m.usernames[ev.User.ID] = ev.User.Username
		m.parties = ev.Parties
		m.appendSystem(fmt.Sprintf("Signed in as %s#%04d, %d parties.", ev.User.Username, ev.User.Discriminator, len(ev.Parties)))
		for _, p := range ev.Parties {
			cmds = append(cmds, m.loadRooms(p.ID))
		}
		if m.room.ID != 0 {
			cmds = append(cmds, m.loadMessages(m.room.ID))
		}

	case *gateway.InvalidSession:
		m.appendSystem("Session invalidated by the server.")

	case *gateway.PartyCreate:
		m.parties = append(m.parties, ev.Party)
		cmds = append(cmds, m.loadRooms(ev.ID))

	case *gateway.PartyUpdate:
		for i := range m.parties {
			if m.parties[i].ID == ev.ID {
				m.parties[i] = ev.Party
			}
		}

	case *gateway.PartyDelete:
		for i := range m.parties {
			if m.parties[i].ID == ev.ID {
				m.parties = append(m.parties[:i], m.parties[i+1:]...)
				break
			}
		}
		delete(m.rooms, ev.ID)
		if m.room.PartyID == ev.ID {
			m.room = models.Room{}
			m.lines = nil
			m.page = pageHome
			m.appendSystem("The party you were viewing was deleted.")
		}

	case *gateway.MessageCreate:
		m.usernames[ev.Author.ID] = ev.Author.Username
		delete(m.typing, ev.Author.ID)
		if ev.RoomID == m.room.ID {
			m.upsertMessage(&ev.Message)
		} else if ev.Author.ID != m.self.ID {
			m.unread[ev.RoomID]++
		}

	case *gateway.MessageUpdate:
		if ev.RoomID == m.room.ID {
			m.upsertMessage(&ev.Message)
		}

	case *gateway.MessageDelete:
		if ev.RoomID == m.room.ID {
			m.removeMessage(ev.ID)
		}

	case *gateway.TypingStart:
		if ev.RoomID == m.room.ID && ev.UserID != m.self.ID {
			m.typing[ev.UserID] = time.Now()
		}

	case *gateway.PresenceUpdate:
		m.usernames[ev.User.ID] = ev.User.Username
		m.presence[ev.User.ID] = ev.Presence

	case *gateway.UserUpdate:
		m.usernames[ev.User.ID] = ev.User.Username
		if ev.User.ID == m.self.ID {
			m.self = ev.User
		}
	}
	m.updateViewport()
	return cmds
}

// handleGatewayError 决定错误之后是立即重读、退避重连还是停止
func (m *Model) handleGatewayError(err error) tea.Cmd {
	m.connected = false
	if errors.Is(err, gateway.ErrClosed) || errors.Is(err, context.Canceled) {
		m.stopped = true
		return nil
	}

	var decodeErr *gateway.DecodeError
	var compressErr *gateway.CompressionError
	if errors.As(err, &decodeErr) || errors.As(err, &compressErr) {
		m.logger.Warn("dropped gateway frame", "err", err)
		m.connected = true
		return m.listen()
	}

	var closeErr *gateway.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Reason {
		case gateway.ReasonAuthFailed, gateway.ReasonNotAuthenticated:
			m.stopped = true
			m.lastError = "authentication failed, run `lantern login`"
			m.appendSystem("Gateway rejected the session: " + closeErr.Error())
			m.updateViewport()
			return nil
		}
	}

	m.lastError = err.Error()
	m.logger.Info("gateway disconnected", "err", err, "retry_in", m.backoff)
	wait := m.backoff
	m.backoff = min(m.backoff*2, m.opts.ReconnectMax)
	return tea.Tick(wait, func(time.Time) tea.Msg { return reconnectMsg{} })
}

func (m *Model) pickInitialRoom(party models.Snowflake) (models.Room, bool) {
	rooms := m.rooms[party]
	if len(rooms) == 0 {
		return models.Room{}, false
	}
	if m.opts.Room != 0 {
		for _, r := range rooms {
			if r.ID == m.opts.Room {
				return r, true
			}
		}
		return models.Room{}, false
	}
	for _, p := range m.parties {
		if p.ID != party || p.DefaultRoom == 0 {
			continue
		}
		for _, r := range rooms {
			if r.ID == p.DefaultRoom {
				return r, true
			}
		}
	}
	return rooms[0], true
}

func (m *Model) openRoom(room models.Room) tea.Cmd {
	m.room = room
	m.page = pageRoom
	m.lines = nil
	m.typing = map[models.Snowflake]time.Time{}
	delete(m.unread, room.ID)
	m.pending = true
	m.updateViewport()
	return tea.Batch(m.loadMessages(room.ID), m.spinner.Tick)
}

// loadHistory 替换当前行；REST 返回的是新到旧
func (m *Model) loadHistory(msgs []models.Message) {
	m.lines = m.lines[:0]
	for i := len(msgs) - 1; i >= 0; i-- {
		m.upsertMessage(&msgs[i])
	}
}

func (m *Model) upsertMessage(msg *models.Message) {
	line := chatLine{
		ID:        msg.ID,
		AuthorID:  msg.Author.ID,
		Author:    msg.Author.Username,
		Content:   strings.TrimSpace(msg.Content),
		Timestamp: msg.ID.Timestamp(),
		Edited:    msg.EditedAt != nil,
	}
	for _, a := range msg.Attachments {
		line.Content += fmt.Sprintf("\n[file %s, %d bytes]", a.Filename, a.Size)
	}
	for i := range m.lines {
		if !m.lines[i].System && m.lines[i].ID == msg.ID {
			m.lines[i] = line
			return
		}
	}
	m.lines = append(m.lines, line)
}

func (m *Model) removeMessage(id models.Snowflake) {
	for i := range m.lines {
		if !m.lines[i].System && m.lines[i].ID == id {
			m.lines = append(m.lines[:i], m.lines[i+1:]...)
			return
		}
	}
}

func (m *Model) appendSystem(content string) {
	m.lines = append(m.lines, chatLine{
		Content:   strings.TrimSpace(content),
		Timestamp: time.Now(),
		System:    true,
	})
}

// View 渲染界面
func (m Model) View() string {
	if !m.ready {
		return "\n  Connecting..."
	}
	if m.page == pageHome {
		return m.renderHomePage()
	}
	return m.renderRoomPage()
}

func (m *Model) renderHomePage() string {
	theme := getTheme()
	var b strings.Builder

	topPadding := max((m.height-14)/2, 2)
	b.WriteString(strings.Repeat("\n", topPadding))
	b.WriteString(renderLogo(m.width))
	b.WriteString("\n")

	inputWidth := min(75, m.width-4)
	padding := max((m.width-inputWidth)/2, 0)
	leftBorder := lipgloss.NewStyle().Foreground(theme.primary).Render("┃ ")
	bottomBorder := lipgloss.NewStyle().Foreground(theme.primary).Render("╹")
	b.WriteString(strings.Repeat(" ", padding) + leftBorder + m.textarea.View() + "\n")
	b.WriteString(strings.Repeat(" ", padding) + bottomBorder + "\n")

	muted := lipgloss.NewStyle().Foreground(theme.textMuted)
	b.WriteString(strings.Repeat(" ", padding+2) + muted.Render(m.statusText()) + "\n")
	b.WriteString(strings.Repeat(" ", padding+2) + muted.Render("/rooms list  /join <room>  /help") + "\n")

	// 最近的系统消息
	for _, line := range lastLines(m.lines, 3) {
		b.WriteString("\n" + strings.Repeat(" ", padding+2) + muted.Italic(true).Render(line.Content))
	}

	currentLines := strings.Count(b.String(), "\n") + 1
	if remaining := m.height - currentLines - 2; remaining > 0 {
		b.WriteString(strings.Repeat("\n", remaining))
	}
	b.WriteString("\n" + m.renderFooter())
	return b.String()
}

func (m *Model) renderRoomPage() string {
	theme := getTheme()
	var b strings.Builder

	b.WriteString(m.renderRoomHeader())
	b.WriteString("\n")

	m.viewport.Height = max(m.height-8, 5)
	m.viewport.Width = m.width - 4
	b.WriteString(lipgloss.NewStyle().PaddingLeft(2).Render(m.viewport.View()))
	b.WriteString("\n")

	b.WriteString("  " + lipgloss.NewStyle().Foreground(theme.textMuted).Italic(true).Render(m.typingText()) + "\n")

	leftBorder := lipgloss.NewStyle().Foreground(theme.primary).Render("┃ ")
	input := m.textarea.View()
	if m.pending {
		input = m.spinner.View() + " " + input
	}
	b.WriteString("  " + leftBorder + input + "\n")
	b.WriteString("  " + lipgloss.NewStyle().Foreground(theme.primary).Render("╹") + "\n")

	b.WriteString(m.renderFooter())
	return b.String()
}

func (m *Model) renderRoomHeader() string {
	theme := getTheme()

	title := lipgloss.NewStyle().Bold(true).Foreground(theme.text).Render("# " + m.room.Name)
	if m.room.Topic != "" {
		title += lipgloss.NewStyle().Foreground(theme.textMuted).Render("  " + m.room.Topic)
	}
	right := ""
	if n := m.totalUnread(); n > 0 {
		right = lipgloss.NewStyle().Foreground(theme.warning).Render(fmt.Sprintf("%d unread", n))
	}

	gap := max(m.width-lipgloss.Width(title)-lipgloss.Width(right)-4, 1)
	leftBorder := lipgloss.NewStyle().Foreground(theme.border).Render("┃")
	return "  " + leftBorder + " " + title + strings.Repeat(" ", gap) + right
}

func (m *Model) renderFooter() string {
	theme := getTheme()

	var left string
	if m.connected {
		left = lipgloss.NewStyle().Background(theme.self).Foreground(lipgloss.Color("#000000")).Padding(0, 1).Render("ONLINE")
	} else {
		left = lipgloss.NewStyle().Background(theme.border).Foreground(theme.text).Padding(0, 1).Render("OFFLINE")
	}
	if m.lastError != "" {
		left += " " + lipgloss.NewStyle().Foreground(theme.error).Render(truncStr(m.lastError, 60))
	}

	right := m.opts.Version
	if m.lastRTT > 0 {
		right = fmt.Sprintf("rtt %s  %s", m.lastRTT.Round(time.Millisecond), right)
	}
	right = lipgloss.NewStyle().Foreground(theme.textMuted).Render(strings.TrimSpace(right))

	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right)-4, 1)
	return "  " + left + strings.Repeat(" ", gap) + right
}

func (m *Model) statusText() string {
	switch {
	case m.self.ID != 0:
		return fmt.Sprintf("%s  %d parties", m.self.Username, len(m.parties))
	case m.stopped:
		return "disconnected"
	default:
		return "waiting for gateway"
	}
}

func (m *Model) typingText() string {
	var names []string
	for id, at := range m.typing {
		if time.Since(at) > typingTimeout {
			continue
		}
		names = append(names, m.username(id))
	}
	sort.Strings(names)
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing..."
	default:
		return strings.Join(names, ", ") + " are typing..."
	}
}

func (m *Model) username(id models.Snowflake) string {
	if name, ok := m.usernames[id]; ok && name != "" {
		return name
	}
	return id.String()
}

func (m *Model) totalUnread() int {
	n := 0
	for _, c := range m.unread {
		n += c
	}
	return n
}

func (m *Model) resize() {
	m.viewport.Width = m.width - 4
	m.viewport.Height = m.height - 8
	m.textarea.SetWidth(min(70, m.width-10))
}

func (m *Model) updateViewport() {
	theme := getTheme()
	var b strings.Builder

	for i, line := range m.lines {
		if line.System {
			b.WriteString(lipgloss.NewStyle().Foreground(theme.textMuted).Italic(true).Render(line.Content))
		} else {
			color := theme.author
			if line.AuthorID == m.self.ID {
				color = theme.self
			}
			header := lipgloss.NewStyle().Foreground(color).Bold(true).Render(line.Author) +
				lipgloss.NewStyle().Foreground(theme.textMuted).Render("  "+line.Timestamp.Local().Format("15:04"))
			if line.Edited {
				header += lipgloss.NewStyle().Foreground(theme.textMuted).Render(" (edited)")
			}
			b.WriteString(header + "\n")
			b.WriteString(lipgloss.NewStyle().Foreground(theme.text).Width(max(m.viewport.Width-2, 10)).Render(line.Content))
		}
		if i < len(m.lines)-1 {
			b.WriteString("\n\n")
		}
	}

	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

// listen 读取下一条 gateway 消息；同一时刻只有一个 listen 在跑
func (m *Model) listen() tea.Cmd {
	if m.conn == nil || m.stopped {
		return nil
	}
	ctx, conn := m.ctx, m.conn
	return func() tea.Msg {
		msg, err := conn.Next(ctx)
		return eventMsg{msg: msg, err: err}
	}
}

func (m *Model) scheduleHeartbeat() tea.Cmd {
	if m.beating || m.heartbeat <= 0 {
		return nil
	}
	m.beating = true
	return tea.Tick(m.heartbeat, func(time.Time) tea.Msg { return heartbeatMsg{} })
}

func (m *Model) sendGateway(what string, msg gateway.ClientMsg) tea.Cmd {
	if m.conn == nil {
		return nil
	}
	ctx, conn := m.ctx, m.conn
	return func() tea.Msg {
		if err := conn.Send(msg); err != nil {
			return flushedMsg{what: what, err: err}
		}
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		return flushedMsg{what: what, err: conn.Flush(ctx)}
	}
}

func (m *Model) request(fn func(ctx context.Context) tea.Msg) tea.Cmd {
	parent := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, requestTimeout)
		defer cancel()
		return fn(ctx)
	}
}

func (m *Model) loadRooms(party models.Snowflake) tea.Cmd {
	d := m.drv
	return m.request(func(ctx context.Context) tea.Msg {
		rooms, err := driver.Execute(ctx, d, commands.GetPartyRooms{PartyID: party})
		if err != nil {
			return roomsMsg{party: party, err: err}
		}
		return roomsMsg{party: party, rooms: *rooms}
	})
}

func (m *Model) loadMessages(room models.Snowflake) tea.Cmd {
	d := m.drv
	return m.request(func(ctx context.Context) tea.Msg {
		msgs, err := driver.Execute(ctx, d, commands.GetMessages{
			RoomID: room,
			Query:  commands.GetMessagesQuery{Limit: historyPage},
		})
		if err != nil {
			return historyMsg{room: room, err: err}
		}
		return historyMsg{room: room, messages: *msgs}
	})
}

func (m *Model) sendMessage(room models.Snowflake, content string) tea.Cmd {
	d := m.drv
	return m.request(func(ctx context.Context) tea.Msg {
		msg, err := driver.Execute(ctx, d, commands.CreateMessage{
			RoomID: room,
			Msg:    commands.CreateMessageBody{Content: content},
		})
		return sentMsg{msg: msg, err: err}
	})
}

func (m *Model) startTyping(room models.Snowflake) tea.Cmd {
	d := m.drv
	logger := m.logger
	return m.request(func(ctx context.Context) tea.Msg {
		if _, err := driver.Execute(ctx, d, commands.StartTyping{RoomID: room}); err != nil {
			logger.Debug("typing indicator failed", "room", room, "err", err)
		}
		return nil
	})
}

func lastLines(lines []chatLine, n int) []chatLine {
	if len(lines) > n {
		return lines[len(lines)-n:]
	}
	return lines
}

// Run starts the TUI and blocks until the user quits.
func Run(opts Options) error {
	p := tea.NewProgram(
		NewModel(opts),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run TUI: %w", err)
	}
	return nil
}
