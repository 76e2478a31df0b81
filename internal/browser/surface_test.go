package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/vidyasagar/surfshell/internal/errors"
	"github.com/vidyasagar/surfshell/internal/navigation"
)

type eventLog struct {
	mu     sync.Mutex
	events []navigation.Event
}

func (l *eventLog) add(ev navigation.Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []navigation.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]navigation.Event, len(l.events))
	copy(out, l.events)
	return out
}

func (l *eventLog) count(kind navigation.EventKind) int {
	n := 0
	for _, ev := range l.snapshot() {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (l *eventLog) waitFor(t *testing.T, kind navigation.EventKind, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return l.count(kind) >= n },
		2*time.Second, 5*time.Millisecond, "waiting for %d %s events", n, kind)
}

func pageServer(t *testing.T, slow chan struct{}) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for _, name := range []string{"a", "b", "c"} {
		mux.HandleFunc("/"+name, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprintf(w, "<html><head><title>Page %s</title></head><body><p>content of %s</p></body></html>", name, name)
		})
	}
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-slow:
		case <-r.Context().Done():
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><head><title>Slow</title></head><body><p>late</p></body></html>")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestSurface(t *testing.T, srv *httptest.Server) (*Surface, *eventLog) {
	t.Helper()
	s, err := NewSurface(NewFetcherWithClient(srv.Client()), WithStyle("notty"))
	require.NoError(t, err)
	t.Cleanup(s.Close)

	log := &eventLog{}
	s.OnEvent(log.add)
	return s, log
}

func TestSurfaceEventOrder(t *testing.T) {
	srv := pageServer(t, nil)
	s, log := newTestSurface(t, srv)

	require.NoError(t, s.LoadURL(srv.URL+"/a"))
	log.waitFor(t, navigation.Finished, 1)

	events := log.snapshot()
	require.NotEmpty(t, events)
	assert.Equal(t, navigation.Started, events[0].Kind)
	last := events[len(events)-1]
	assert.Equal(t, navigation.Finished, last.Kind)
	assert.Equal(t, srv.URL+"/a", last.URL)
	assert.Equal(t, "127.0.0.1", last.Host)
	assert.NotEmpty(t, last.Title)

	prev := 0.0
	for _, ev := range events[1 : len(events)-1] {
		require.Equal(t, navigation.Progress, ev.Kind)
		assert.GreaterOrEqual(t, ev.Progress, prev)
		prev = ev.Progress
	}

	assert.Equal(t, srv.URL+"/a", s.URL())
	assert.NotNil(t, s.Page())
}

func TestSurfaceBackForward(t *testing.T) {
	srv := pageServer(t, nil)
	s, log := newTestSurface(t, srv)

	assert.False(t, s.GoBack())
	assert.False(t, s.Reload())

	require.NoError(t, s.LoadURL(srv.URL+"/a"))
	log.waitFor(t, navigation.Finished, 1)
	require.NoError(t, s.LoadURL(srv.URL+"/b"))
	log.waitFor(t, navigation.Finished, 2)

	assert.True(t, s.CanGoBack())
	require.True(t, s.GoBack())
	assert.Equal(t, srv.URL+"/a", s.URL())
	log.waitFor(t, navigation.Finished, 3)

	assert.True(t, s.CanGoForward())
	require.True(t, s.GoForward())
	assert.Equal(t, srv.URL+"/b", s.URL())
	log.waitFor(t, navigation.Finished, 4)
	assert.False(t, s.GoForward())

	require.True(t, s.Reload())
	log.waitFor(t, navigation.Finished, 5)
	assert.Equal(t, srv.URL+"/b", s.URL())
}

func TestSurfaceLastLoadWins(t *testing.T) {
	slow := make(chan struct{})
	srv := pageServer(t, slow)
	s, log := newTestSurface(t, srv)

	require.NoError(t, s.LoadURL(srv.URL+"/slow"))
	require.NoError(t, s.LoadURL(srv.URL+"/c"))
	log.waitFor(t, navigation.Finished, 1)
	close(slow)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, log.count(navigation.Finished))
	assert.Zero(t, log.count(navigation.Failed))
	assert.Equal(t, srv.URL+"/c", s.URL())
}

func TestSurfaceFailure(t *testing.T) {
	srv := pageServer(t, nil)
	s, log := newTestSurface(t, srv)
	addr := srv.URL
	srv.Close()

	require.NoError(t, s.LoadURL(addr+"/a"))
	log.waitFor(t, navigation.Failed, 1)

	var failed navigation.Event
	for _, ev := range log.snapshot() {
		if ev.Kind == navigation.Failed {
			failed = ev
		}
	}
	assert.True(t, errs.Is(failed.Err, errs.ErrNavigationFailure))
	assert.Zero(t, log.count(navigation.Finished))
	assert.Empty(t, s.URL())
}

func TestSurfaceEmptyURL(t *testing.T) {
	s, err := NewSurface(NewFetcher())
	require.NoError(t, err)
	assert.Error(t, s.LoadURL(""))
}

// A controller wired to a live surface records one visit per finished load.
func TestSurfaceDrivesController(t *testing.T) {
	srv := pageServer(t, nil)
	s, _ := newTestSurface(t, srv)

	rec := &countingRecorder{}
	c := navigation.NewController(s, rec, navigation.WithSettleDelay(0))
	s.OnEvent(c.HandleEvent)

	require.NoError(t, c.Load(srv.URL+"/a"))
	require.Eventually(t, func() bool { return rec.n() == 1 }, 2*time.Second, 5*time.Millisecond)

	sess := c.Session()
	assert.Equal(t, srv.URL+"/a", sess.CurrentURL)
	assert.False(t, sess.IsLoading)
	assert.Equal(t, 1.0, sess.LoadProgress)
}

type countingRecorder struct {
	mu    sync.Mutex
	calls int
}

func (r *countingRecorder) RecordVisit(_ context.Context, _, _, _, _ string) error {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return nil
}

func (r *countingRecorder) n() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
