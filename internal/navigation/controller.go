// Package navigation owns the browsing session: it drives a render surface
// and turns completed top-level navigations into history records.
package navigation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vidyasagar/surfshell/internal/logging"
)

// DefaultSettleDelay is how long IsLoading stays true after a load finishes,
// so the progress bar is visibly full before it disappears.
const DefaultSettleDelay = 500 * time.Millisecond

// Surface is the render-surface collaborator. LoadURL starts a navigation
// and returns immediately; lifecycle events arrive through whatever event
// hook the implementation exposes and must be routed into HandleEvent.
type Surface interface {
	LoadURL(rawURL string) error
	GoBack() bool
	GoForward() bool
	Reload() bool
	URL() string
	Title() string
	Host() string
}

// Recorder receives one call per completed navigation.
type Recorder interface {
	RecordVisit(ctx context.Context, url, title, host, id string) error
}

// LocationSaver persists the last visited location.
type LocationSaver interface {
	SaveLocation(url, host string) error
}

// EventKind enumerates the navigation lifecycle.
type EventKind int

const (
	Started EventKind = iota
	Progress
	Finished
	Failed
)

func (k EventKind) String() string {
	switch k {
	case Started:
		return "started"
	case Progress:
		return "progress"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is one navigation lifecycle notification from the surface.
type Event struct {
	Kind     EventKind
	Progress float64 // Progress only
	URL      string  // Started: requested URL; Finished: final URL
	Title    string  // Finished only
	Host     string  // Finished only
	Err      error   // Failed only
}

// Session is a snapshot of the browsing state.
type Session struct {
	CurrentURL   string
	CurrentHost  string
	IsLoading    bool
	LoadProgress float64
}

// Controller owns the Session. It is safe for concurrent use; listeners
// are called outside its lock.
type Controller struct {
	surface  Surface
	recorder Recorder
	saver    LocationSaver
	log      *zap.Logger
	settle   time.Duration
	newID    func() string

	mu        sync.Mutex
	session   Session
	gen       uint64 // bumped on every Started; stale settle timers compare against it
	settling  *time.Timer
	listeners map[int]func(Session)
	nextSub   int
}

// Option customizes a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.log = logging.OrNop(l) }
}

// WithSettleDelay overrides DefaultSettleDelay. Zero clears IsLoading as
// soon as the Finished event is handled.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d < 0 {
			d = 0
		}
		c.settle = d
	}
}

// WithLocationSaver persists the location after each completed navigation.
func WithLocationSaver(s LocationSaver) Option {
	return func(c *Controller) { c.saver = s }
}

// WithIDGenerator replaces the visit identity generator.
func WithIDGenerator(fn func() string) Option {
	return func(c *Controller) { c.newID = fn }
}

// WithInitialLocation seeds the session, e.g. from persisted settings.
func WithInitialLocation(url, host string) Option {
	return func(c *Controller) {
		c.session.CurrentURL = url
		c.session.CurrentHost = host
	}
}

// NewController creates a Controller driving surface and reporting visits
// to recorder.
func NewController(surface Surface, recorder Recorder, opts ...Option) *Controller {
	c := &Controller{
		surface:   surface,
		recorder:  recorder,
		log:       zap.NewNop(),
		settle:    DefaultSettleDelay,
		newID:     func() string { return uuid.NewString() },
		listeners: make(map[int]func(Session)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns a snapshot of the current state.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Load normalizes raw and starts navigating to it. Malformed input leaves
// the session untouched and returns a MalformedInput error. A newer Load
// supersedes any navigation still in flight.
func (c *Controller) Load(raw string) error {
	target, err := Normalize(raw)
	if err != nil {
		c.log.Debug("rejected URL", zap.String("input", raw))
		return err
	}

	if err := c.surface.LoadURL(target); err != nil {
		c.log.Warn("surface refused load", zap.String("url", target), zap.Error(err))
		return err
	}

	c.mu.Lock()
	c.session.CurrentURL = target
	c.session.CurrentHost = HostOf(target)
	s := c.session
	c.mu.Unlock()

	c.publish(s)
	return nil
}

// GoBack navigates back if the surface has somewhere to go. A failed
// attempt changes nothing.
func (c *Controller) GoBack() bool {
	return c.step(c.surface.GoBack)
}

// GoForward navigates forward if possible.
func (c *Controller) GoForward() bool {
	return c.step(c.surface.GoForward)
}

// Reload reloads the current page if there is one.
func (c *Controller) Reload() bool {
	return c.step(c.surface.Reload)
}

func (c *Controller) step(move func() bool) bool {
	if !move() {
		return false
	}
	url := c.surface.URL()
	if url == "" {
		return true
	}

	c.mu.Lock()
	c.session.CurrentURL = url
	c.session.CurrentHost = c.surface.Host()
	s := c.session
	c.mu.Unlock()

	c.publish(s)
	return true
}

// HandleEvent applies a surface lifecycle event to the session. On Finished
// it records exactly one visit with a fresh identity.
func (c *Controller) HandleEvent(ev Event) {
	switch ev.Kind {
	case Started:
		c.mu.Lock()
		c.gen++
		c.stopSettleLocked()
		c.session.IsLoading = true
		c.session.LoadProgress = 0
		s := c.session
		c.mu.Unlock()
		c.publish(s)

	case Progress:
		c.mu.Lock()
		p := clamp(ev.Progress)
		if !c.session.IsLoading || p < c.session.LoadProgress {
			c.mu.Unlock()
			return
		}
		c.session.LoadProgress = p
		s := c.session
		c.mu.Unlock()
		c.publish(s)

	case Finished:
		c.finish(ev)

	case Failed:
		c.mu.Lock()
		c.stopSettleLocked()
		c.session.IsLoading = false
		s := c.session
		c.mu.Unlock()
		c.log.Warn("navigation failed", zap.String("url", ev.URL), zap.Error(ev.Err))
		c.publish(s)
	}
}

func (c *Controller) finish(ev Event) {
	host := ev.Host
	if host == "" {
		host = HostOf(ev.URL)
	}
	title := ev.Title
	if title == "" {
		title = "No title"
	}

	c.mu.Lock()
	c.session.LoadProgress = 1
	if ev.URL != "" {
		c.session.CurrentURL = ev.URL
		c.session.CurrentHost = host
	}
	if c.settle == 0 {
		c.session.IsLoading = false
	} else {
		c.stopSettleLocked()
		gen := c.gen
		c.settling = time.AfterFunc(c.settle, func() { c.settleDone(gen) })
	}
	s := c.session
	c.mu.Unlock()
	c.publish(s)

	if ev.URL == "" {
		return
	}

	if c.recorder != nil {
		id := c.newID()
		if err := c.recorder.RecordVisit(context.Background(), ev.URL, title, host, id); err != nil {
			c.log.Warn("recording visit failed", zap.String("url", ev.URL), zap.Error(err))
		}
	}
	if c.saver != nil {
		if err := c.saver.SaveLocation(ev.URL, host); err != nil {
			c.log.Warn("saving last location failed", zap.Error(err))
		}
	}
}

func (c *Controller) settleDone(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.settling = nil
	c.session.IsLoading = false
	s := c.session
	c.mu.Unlock()
	c.publish(s)
}

func (c *Controller) stopSettleLocked() {
	if c.settling != nil {
		c.settling.Stop()
		c.settling = nil
	}
}

// Subscribe registers fn for session changes. The returned func
// unsubscribes.
func (c *Controller) Subscribe(fn func(Session)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Controller) publish(s Session) {
	c.mu.Lock()
	fns := make([]func(Session), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

func clamp(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}
