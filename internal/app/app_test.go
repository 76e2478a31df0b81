package app

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidyasagar/surfshell/internal/browser"
	"github.com/vidyasagar/surfshell/internal/cache"
	"github.com/vidyasagar/surfshell/internal/favicon"
	"github.com/vidyasagar/surfshell/internal/history"
	"github.com/vidyasagar/surfshell/internal/navigation"
	"github.com/vidyasagar/surfshell/internal/storage"
)

type iconFetcher struct{ body []byte }

func (f iconFetcher) FetchBytes(context.Context, string) ([]byte, error) { return f.body, nil }

func redPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			img.Set(x, y, color.NRGBA{R: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type harness struct {
	srv      *httptest.Server
	deps     Deps
	events   chan navigation.Event
	settings *storage.Settings
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html><head><title>Path %s</title></head><body><p>hello</p></body></html>", r.URL.Path)
	}))
	t.Cleanup(srv.Close)

	settings, err := storage.LoadSettingsFrom(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)

	durable, err := storage.NewFileVisitStore(t.TempDir())
	require.NoError(t, err)
	hist := history.NewStore(durable)

	surf, err := browser.NewSurface(browser.NewFetcherWithClient(srv.Client()), browser.WithStyle("notty"))
	require.NoError(t, err)
	t.Cleanup(surf.Close)

	events := make(chan navigation.Event, 32)
	surf.OnEvent(func(ev navigation.Event) { events <- ev })

	icons, err := cache.New(cache.Options{MaxEntries: 8, MaxCost: 1 << 20})
	require.NoError(t, err)
	bridge := NewBridge()
	resolver := favicon.NewResolver(icons, iconFetcher{body: redPNG(t)}, favicon.WithDispatcher(bridge.Dispatch))

	ctrl := navigation.NewController(surf, hist,
		navigation.WithSettleDelay(0),
		navigation.WithLocationSaver(settings))

	return &harness{
		srv:      srv,
		settings: settings,
		events:   events,
		deps: Deps{
			Controller: ctrl,
			Surface:    surf,
			History:    hist,
			Resolver:   resolver,
			Settings:   settings,
			Bridge:     bridge,
		},
	}
}

func step(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

// pump feeds surface events into the model until a load finishes or fails.
func (h *harness) pump(t *testing.T, m Model) Model {
	t.Helper()
	for {
		select {
		case ev := <-h.events:
			m, _ = step(t, m, navEventMsg(ev))
			if ev.Kind == navigation.Finished || ev.Kind == navigation.Failed {
				return m
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for navigation")
		}
	}
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModelOpenRecordsVisit(t *testing.T) {
	h := newHarness(t)
	m := New(h.deps, h.srv.URL+"/a")
	m, _ = step(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})

	m, _ = step(t, m, openMsg(m.startURL))
	m = h.pump(t, m)

	assert.Equal(t, 1, h.deps.History.Len())
	assert.Equal(t, h.srv.URL+"/a", h.settings.LastURL)
	assert.Equal(t, "127.0.0.1", h.settings.LastHost)
	assert.False(t, h.deps.Controller.Session().IsLoading)
	assert.Contains(t, m.View(), "hello")
}

func TestModelFaviconAttachedAfterVisit(t *testing.T) {
	h := newHarness(t)
	m := New(h.deps, "")
	m, _ = step(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	m, _ = step(t, m, openMsg(h.srv.URL+"/b"))
	m = h.pump(t, m)

	records := h.deps.History.List()
	require.Len(t, records, 1)
	_, _ = step(t, m, historyMsg(history.Change{Kind: history.Added, Record: records[0]}))

	require.Eventually(t, func() bool {
		list := h.deps.History.List()
		return len(list) == 1 && list[0].Favicon != nil
	}, 2*time.Second, 5*time.Millisecond)
}

func TestModelRejectsMalformedURL(t *testing.T) {
	h := newHarness(t)
	m := New(h.deps, "")
	m, _ = step(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})

	before := h.deps.Controller.Session()
	m, _ = step(t, m, openMsg("ht!tp://bad"))

	assert.Equal(t, before, h.deps.Controller.Session())
	assert.Contains(t, m.View(), "invalid URL")
	assert.Zero(t, h.deps.History.Len())
}

func TestModelToggleSavingPersists(t *testing.T) {
	h := newHarness(t)
	m := New(h.deps, "")
	m, _ = step(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})

	_, _ = step(t, m, keyMsg("S"))
	assert.False(t, h.deps.History.Saving())

	reloaded, err := storage.LoadSettingsFrom(h.settings.Path())
	require.NoError(t, err)
	assert.False(t, reloaded.SaveHistory)
}

func TestModelHistoryDelete(t *testing.T) {
	h := newHarness(t)
	m := New(h.deps, "")
	m, _ = step(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	m, _ = step(t, m, openMsg(h.srv.URL+"/c"))
	m = h.pump(t, m)
	require.Equal(t, 1, h.deps.History.Len())

	m, _ = step(t, m, keyMsg("h"))
	assert.Equal(t, ModeHistory, m.mode)
	assert.Contains(t, m.View(), "History (1)")

	m, cmd := step(t, m, keyMsg("d"))
	require.NotNil(t, cmd)
	done, ok := cmd().(opDoneMsg)
	require.True(t, ok)
	require.NoError(t, done.err)
	assert.Zero(t, h.deps.History.Len())

	m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, ModeNormal, m.mode)
}

// runProgram starts Run headless and stops it when the test ends.
func (h *harness) runProgram(t *testing.T, startURL string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Run(ctx, h.deps, startURL, tea.WithInput(nil), tea.WithoutRenderer())
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func (h *harness) waitSettled(t *testing.T, url string) {
	t.Helper()
	require.Eventually(t, func() bool {
		s := h.deps.Controller.Session()
		return s.CurrentURL == url && !s.IsLoading && s.LoadProgress == 1
	}, 3*time.Second, 2*time.Millisecond, "session: %+v", h.deps.Controller.Session())
}

func TestRunBackForwardSettles(t *testing.T) {
	h := newHarness(t)
	a, b := h.srv.URL+"/a", h.srv.URL+"/b"
	h.runProgram(t, a)
	h.waitSettled(t, a)

	require.NoError(t, h.deps.Controller.Load(b))
	h.waitSettled(t, b)

	// Cached back/forward emits Started and Finished back to back; they
	// must reach the controller in that order every time.
	for i := 0; i < 100; i++ {
		if i%2 == 0 {
			require.True(t, h.deps.Controller.GoBack())
			h.waitSettled(t, a)
		} else {
			require.True(t, h.deps.Controller.GoForward())
			h.waitSettled(t, b)
		}
	}
}

func TestRunRecordsStartURL(t *testing.T) {
	h := newHarness(t)
	h.runProgram(t, h.srv.URL+"/start")
	h.waitSettled(t, h.srv.URL+"/start")

	require.Eventually(t, func() bool { return h.deps.History.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, h.srv.URL+"/start", h.deps.History.List()[0].URL)
}

func TestOutboxKeepsOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan tea.Msg, 1000)
	o := newOutbox()
	go o.run(ctx, func(msg tea.Msg) { got <- msg })

	for i := 0; i < 1000; i++ {
		o.push(i)
	}
	for i := 0; i < 1000; i++ {
		select {
		case msg := <-got:
			require.Equal(t, i, msg)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out at message %d", i)
		}
	}
}
