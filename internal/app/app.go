package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/vidyasagar/surfshell/internal/browser"
	"github.com/vidyasagar/surfshell/internal/favicon"
	"github.com/vidyasagar/surfshell/internal/history"
	"github.com/vidyasagar/surfshell/internal/navigation"
	"github.com/vidyasagar/surfshell/internal/storage"
	"github.com/vidyasagar/surfshell/internal/theme"
	"github.com/vidyasagar/surfshell/internal/ui"
)

// Mode is the current input mode.
type Mode int

const (
	ModeNormal  Mode = iota
	ModeInsert       // URL bar focused
	ModeHistory      // history panel focused
)

// Deps are the long-lived collaborators the TUI drives.
type Deps struct {
	Controller *navigation.Controller
	Surface    *browser.Surface
	History    *history.Store
	Resolver   *favicon.Resolver
	Settings   *storage.Settings
	Bridge     *Bridge
	Log        *zap.Logger
}

// Bridge hands work from background goroutines to the Update loop once a
// program is running. Before that, and after it exits, work runs inline.
type Bridge struct {
	mu   sync.Mutex
	send func(tea.Msg)
}

func NewBridge() *Bridge { return &Bridge{} }

// Dispatch runs fn on the Update loop. It matches favicon.WithDispatcher.
func (b *Bridge) Dispatch(fn func()) {
	b.mu.Lock()
	send := b.send
	b.mu.Unlock()
	if send == nil {
		fn()
		return
	}
	send(runMsg(fn))
}

func (b *Bridge) attach(send func(tea.Msg)) {
	b.mu.Lock()
	b.send = send
	b.mu.Unlock()
}

type (
	// navEventMsg carries a surface lifecycle event onto the Update loop.
	navEventMsg navigation.Event
	// sessionMsg signals a session change made off the Update loop (the
	// settle timer).
	sessionMsg navigation.Session
	// historyMsg signals a change to the visit list.
	historyMsg history.Change
	// runMsg runs a deferred delivery on the Update loop.
	runMsg func()
)

type openMsg string

type opDoneMsg struct {
	what string
	err  error
}

// Model is the top-level bubbletea model.
type Model struct {
	deps Deps
	keys KeyMap
	mode Mode

	urlBar       ui.URLBar
	viewport     ui.PageViewport
	statusBar    ui.StatusBar
	historyPanel ui.HistoryPanel

	width, height int
	startURL      string
}

// New creates the model. startURL may be empty, in which case the last
// saved location is opened.
func New(deps Deps, startURL string) Model {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if startURL == "" && deps.Settings != nil {
		startURL = deps.Settings.LastURL
	}
	m := Model{
		deps:         deps,
		keys:         DefaultKeyMap(),
		urlBar:       ui.NewURLBar(),
		viewport:     ui.NewPageViewport(),
		statusBar:    ui.NewStatusBar(),
		historyPanel: ui.NewHistoryPanel(),
		startURL:     startURL,
	}
	m.statusBar.SetSaving(deps.History.Saving())
	return m
}

// outbox forwards messages to a program in the order they were pushed.
// push never blocks, so listeners may call it from inside Update.
type outbox struct {
	mu    sync.Mutex
	queue []tea.Msg
	wake  chan struct{}
}

func newOutbox() *outbox {
	return &outbox{wake: make(chan struct{}, 1)}
}

func (o *outbox) push(msg tea.Msg) {
	o.mu.Lock()
	o.queue = append(o.queue, msg)
	o.mu.Unlock()
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// run drains the queue into send until ctx is done.
func (o *outbox) run(ctx context.Context, send func(tea.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.wake:
		}
		for {
			o.mu.Lock()
			batch := o.queue
			o.queue = nil
			o.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, msg := range batch {
				send(msg)
			}
		}
	}
}

// Run wires the observers to a new program and blocks until it exits.
func Run(ctx context.Context, deps Deps, startURL string, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := New(deps, startURL)
	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen(), tea.WithMouseCellMotion()}, opts...)
	p := tea.NewProgram(m, opts...)

	// Send blocks until Update receives the message, and listeners may run
	// inside Update, so all of them share one queue drained by a single
	// goroutine. Lifecycle events must arrive in emission order.
	out := newOutbox()
	go out.run(ctx, p.Send)
	send := out.push

	if deps.Bridge != nil {
		deps.Bridge.attach(send)
		defer deps.Bridge.attach(nil)
	}

	deps.Surface.OnEvent(func(ev navigation.Event) { send(navEventMsg(ev)) })
	defer deps.Surface.OnEvent(nil)
	unsubSession := deps.Controller.Subscribe(func(s navigation.Session) { send(sessionMsg(s)) })
	defer unsubSession()
	unsubHistory := deps.History.Subscribe(func(c history.Change) { send(historyMsg(c)) })
	defer unsubHistory()

	_, err := p.Run()
	return err
}

// Init opens the start URL. History was loaded by the caller; the panel and
// favicons are refreshed from it here.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{func() tea.Msg { return historyMsg(history.Change{Kind: history.Loaded}) }}
	if m.startURL != "" {
		u := m.startURL
		cmds = append(cmds, func() tea.Msg { return openMsg(u) })
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		if page := m.deps.Surface.Resize(m.viewport.Width()); page != nil {
			m.viewport.SetContent(page.Content)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case openMsg:
		m.open(string(msg))
		return m, nil

	case navEventMsg:
		ev := navigation.Event(msg)
		m.deps.Controller.HandleEvent(ev)
		switch ev.Kind {
		case navigation.Finished:
			if page := m.deps.Surface.Page(); page != nil {
				m.viewport.SetContent(page.Content)
			}
			m.statusBar.SetMessage("")
		case navigation.Failed:
			m.statusBar.SetMessage(fmt.Sprintf("load failed: %v", ev.Err))
		}
		m.syncSession()
		return m, nil

	case sessionMsg:
		m.syncSession()
		return m, nil

	case historyMsg:
		m.onHistoryChange(history.Change(msg))
		return m, nil

	case runMsg:
		msg()
		return m, nil

	case opDoneMsg:
		if msg.err != nil {
			m.deps.Log.Warn("operation failed", zap.String("op", msg.what), zap.Error(msg.err))
			m.statusBar.SetMessage(msg.what + " failed")
		}
		return m, nil
	}

	var cmd tea.Cmd
	if m.mode == ModeInsert {
		cmd = m.urlBar.Update(msg)
	} else {
		cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m *Model) open(raw string) {
	if err := m.deps.Controller.Load(raw); err != nil {
		m.urlBar.SetError("invalid URL")
		m.statusBar.SetMessage(err.Error())
		return
	}
	m.urlBar.SetError("")
	m.syncSession()
}

func (m *Model) syncSession() {
	s := m.deps.Controller.Session()
	m.urlBar.SetValue(s.CurrentURL)
	m.statusBar.SetProgress(s.IsLoading, s.LoadProgress)
	m.statusBar.SetPage(m.deps.Surface.Title(), s.CurrentHost)
	m.statusBar.SetScrollInfo(m.viewport.ScrollInfo())
}

// onHistoryChange refreshes the panel and asks for favicons of newly
// listed hosts. Deliveries come back through runMsg.
func (m *Model) onHistoryChange(c history.Change) {
	m.historyPanel.SetRecords(m.deps.History.Recent())

	var hosts []string
	switch c.Kind {
	case history.Added:
		if c.Record.Favicon == nil {
			hosts = append(hosts, c.Record.Host)
		}
	case history.Loaded:
		seen := map[string]bool{}
		for _, r := range m.deps.History.List() {
			if r.Favicon == nil && !seen[r.Host] {
				seen[r.Host] = true
				hosts = append(hosts, r.Host)
			}
		}
	}
	for _, host := range hosts {
		m.resolveFavicon(host)
	}
}

func (m *Model) resolveFavicon(host string) {
	if m.deps.Resolver == nil || host == "" {
		return
	}
	h := m.deps.History
	m.deps.Resolver.Resolve(context.Background(), host, func(r favicon.Result) {
		if r.Err != nil {
			return
		}
		h.AttachFavicon(r.Host, r.Image)
	})
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	switch m.mode {
	case ModeInsert:
		return m.handleInsert(msg)
	case ModeHistory:
		return m.handleHistory(msg)
	default:
		return m.handleNormal(msg)
	}
}

func (m Model) handleNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.ScrollDown):
		m.viewport.LineDown(1)
	case key.Matches(msg, m.keys.ScrollUp):
		m.viewport.LineUp(1)
	case key.Matches(msg, m.keys.HalfPageDown):
		m.viewport.HalfPageDown()
	case key.Matches(msg, m.keys.HalfPageUp):
		m.viewport.HalfPageUp()
	case key.Matches(msg, m.keys.GotoTop):
		m.viewport.GotoTop()
	case key.Matches(msg, m.keys.GotoBottom):
		m.viewport.GotoBottom()
	case key.Matches(msg, m.keys.OpenURL):
		m.mode = ModeInsert
		return m, m.urlBar.Focus()
	case key.Matches(msg, m.keys.Back):
		m.deps.Controller.GoBack()
	case key.Matches(msg, m.keys.Forward):
		m.deps.Controller.GoForward()
	case key.Matches(msg, m.keys.Reload):
		m.deps.Controller.Reload()
	case key.Matches(msg, m.keys.History):
		m.mode = ModeHistory
		m.historyPanel.SetRecords(m.deps.History.Recent())
		m.historyPanel.Show()
		m.layout()
	case key.Matches(msg, m.keys.ToggleSaving):
		m.toggleSaving()
	}
	m.syncSession()
	return m, nil
}

func (m Model) handleInsert(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.mode = ModeNormal
		m.urlBar.Blur()
		m.syncSession()
		return m, nil
	case key.Matches(msg, m.keys.Select):
		raw := m.urlBar.Value()
		m.mode = ModeNormal
		m.urlBar.Blur()
		m.open(raw)
		return m, nil
	}
	return m, m.urlBar.Update(msg)
}

func (m Model) handleHistory(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel), key.Matches(msg, m.keys.History):
		m.closeHistory()
	case key.Matches(msg, m.keys.ScrollDown):
		m.historyPanel.CursorDown()
	case key.Matches(msg, m.keys.ScrollUp):
		m.historyPanel.CursorUp()
	case key.Matches(msg, m.keys.GotoTop):
		m.historyPanel.GotoTop()
	case key.Matches(msg, m.keys.GotoBottom):
		m.historyPanel.GotoBottom()
	case key.Matches(msg, m.keys.Select):
		if rec, ok := m.historyPanel.Selected(); ok {
			m.closeHistory()
			m.open(rec.URL)
		}
	case key.Matches(msg, m.keys.DeleteEntry):
		if rec, ok := m.historyPanel.Selected(); ok {
			h, id := m.deps.History, rec.ID
			return m, func() tea.Msg {
				return opDoneMsg{what: "delete visit", err: h.Delete(context.Background(), id)}
			}
		}
	case key.Matches(msg, m.keys.ClearHistory):
		h := m.deps.History
		return m, func() tea.Msg {
			return opDoneMsg{what: "clear history", err: h.Clear(context.Background())}
		}
	case key.Matches(msg, m.keys.ToggleSaving):
		m.toggleSaving()
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) closeHistory() {
	m.mode = ModeNormal
	m.historyPanel.Hide()
	m.layout()
}

func (m *Model) toggleSaving() {
	on := !m.deps.History.Saving()
	m.deps.History.SetSaving(on)
	m.statusBar.SetSaving(on)
	if m.deps.Settings == nil {
		return
	}
	if err := m.deps.Settings.SetSaveHistory(on); err != nil {
		m.deps.Log.Warn("saving settings failed", zap.Error(err))
		m.statusBar.SetMessage("could not save settings")
	}
}

const (
	urlBarHeight    = 3
	statusBarHeight = 1
)

func (m *Model) layout() {
	m.urlBar.SetWidth(m.width)
	m.statusBar.SetWidth(m.width)

	h := max(m.height-urlBarHeight-statusBarHeight, 1)
	w := m.width
	if m.historyPanel.IsVisible() {
		pw := max(m.width*35/100, 24)
		m.historyPanel.SetSize(pw, h)
		w = max(m.width-pw-1, 1)
	}
	m.viewport.SetSize(w, h)
}

func (m Model) View() string {
	body := m.viewport.View()
	if m.historyPanel.IsVisible() {
		h := max(m.height-urlBarHeight-statusBarHeight, 1)
		divider := lipgloss.NewStyle().Foreground(theme.Current.Border).
			Render(strings.TrimSuffix(strings.Repeat("│\n", h), "\n"))
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.historyPanel.View(), divider, body)
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.urlBar.View(), body, m.statusBar.View())
}
