package browser

import (
	"context"
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	errs "github.com/vidyasagar/surfshell/internal/errors"
	"github.com/vidyasagar/surfshell/internal/logging"
	"github.com/vidyasagar/surfshell/internal/navigation"
)

const (
	defaultPageCacheSize = 32
	noTitle              = "No title"
)

type cachedPage struct {
	article *Article
	page    *Page
}

// Surface is a terminal render surface. It fetches, extracts and renders
// pages on a background goroutine and reports the navigation lifecycle
// through the OnEvent hook. A newer navigation cancels the one in flight.
type Surface struct {
	fetcher *Fetcher
	log     *zap.Logger
	pages   *lru.Cache[string, cachedPage]

	mu      sync.Mutex
	width   int
	style   string
	stack   *backStack
	current *Page
	article *Article
	gen     uint64
	cancel  context.CancelFunc
	onEvent func(navigation.Event)
	wg      sync.WaitGroup
}

// SurfaceOption customizes a Surface.
type SurfaceOption func(*Surface)

// WithSurfaceLogger sets the logger.
func WithSurfaceLogger(l *zap.Logger) SurfaceOption {
	return func(s *Surface) { s.log = logging.OrNop(l) }
}

// WithWidth sets the render width in columns.
func WithWidth(w int) SurfaceOption {
	return func(s *Surface) { s.width = w }
}

// WithStyle sets the glamour style name.
func WithStyle(name string) SurfaceOption {
	return func(s *Surface) { s.style = name }
}

// NewSurface creates a Surface that loads pages with f.
func NewSurface(f *Fetcher, opts ...SurfaceOption) (*Surface, error) {
	pages, err := lru.New[string, cachedPage](defaultPageCacheSize)
	if err != nil {
		return nil, err
	}
	s := &Surface{
		fetcher: f,
		log:     zap.NewNop(),
		pages:   pages,
		width:   80,
		stack:   newBackStack(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// OnEvent registers the lifecycle hook. Events are delivered from
// background goroutines; callers that need a single owner goroutine must
// marshal them.
func (s *Surface) OnEvent(fn func(navigation.Event)) {
	s.mu.Lock()
	s.onEvent = fn
	s.mu.Unlock()
}

// LoadURL starts loading an absolute URL and pushes it onto the back stack
// once it finishes.
func (s *Surface) LoadURL(rawURL string) error {
	if rawURL == "" {
		return errs.NewNavigationFailure("load", errors.New("empty URL"))
	}
	s.start(rawURL, true, false)
	return nil
}

// GoBack moves back one entry. It reports false when there is nothing to
// go back to.
func (s *Surface) GoBack() bool {
	s.mu.Lock()
	url, ok := s.stack.back()
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.start(url, false, true)
	return true
}

// GoForward moves forward one entry.
func (s *Surface) GoForward() bool {
	s.mu.Lock()
	url, ok := s.stack.forward()
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.start(url, false, true)
	return true
}

// Reload refetches the current page, bypassing the page cache.
func (s *Surface) Reload() bool {
	s.mu.Lock()
	url := s.stack.current()
	s.mu.Unlock()
	if url == "" {
		return false
	}
	s.start(url, false, false)
	return true
}

// URL is the address of the current back-stack entry.
func (s *Surface) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stack.current()
}

// Title is the title of the last rendered page.
func (s *Surface) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.Title
}

// Host is the hostname of URL.
func (s *Surface) Host() string {
	return navigation.HostOf(s.URL())
}

// CanGoBack reports whether GoBack would do anything.
func (s *Surface) CanGoBack() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stack.canGoBack()
}

// CanGoForward reports whether GoForward would do anything.
func (s *Surface) CanGoForward() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stack.canGoForward()
}

// Page returns the last rendered page, or nil before the first load.
func (s *Surface) Page() *Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Resize re-renders the current page at width and returns it.
func (s *Surface) Resize(width int) *Page {
	s.mu.Lock()
	if width == s.width || width <= 0 {
		p := s.current
		s.mu.Unlock()
		return p
	}
	s.width = width
	s.pages.Purge()
	article, style := s.article, s.style
	s.mu.Unlock()

	if article == nil {
		return nil
	}
	page := s.render(article, width, style)

	s.mu.Lock()
	if s.article == article {
		s.current = page
	}
	s.mu.Unlock()
	return page
}

// Close cancels any load in flight and waits for it to stop.
func (s *Surface) Close() {
	s.mu.Lock()
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Surface) start(url string, push, useCache bool) {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	s.cancel = cancel
	width, style := s.width, s.style
	s.mu.Unlock()

	s.emit(gen, navigation.Event{Kind: navigation.Started, URL: url})

	if useCache {
		if cp, ok := s.pages.Get(url); ok {
			s.commit(gen, url, cp, push)
			cancel()
			return
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.load(ctx, gen, url, width, style, push)
	}()
}

func (s *Surface) load(ctx context.Context, gen uint64, url string, width int, style string, push bool) {
	s.emit(gen, navigation.Event{Kind: navigation.Progress, Progress: 0.1})

	res, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		s.fail(gen, url, err)
		return
	}
	s.emit(gen, navigation.Event{Kind: navigation.Progress, Progress: 0.5})

	article, err := Extract(res)
	if err != nil {
		s.fail(gen, url, err)
		return
	}
	s.emit(gen, navigation.Event{Kind: navigation.Progress, Progress: 0.8})

	cp := cachedPage{article: article, page: s.render(article, width, style)}
	s.pages.Add(res.FinalURL, cp)
	s.commit(gen, res.FinalURL, cp, push)
}

func (s *Surface) render(article *Article, width int, style string) *Page {
	page := Render(article, width, style)
	if page.Title == "" {
		page.Title = noTitle
	}
	page.Host = navigation.HostOf(article.FinalURL)
	return page
}

// commit makes cp the current page if gen is still the newest navigation.
func (s *Surface) commit(gen uint64, url string, cp cachedPage, push bool) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	if push {
		s.stack.push(url)
	}
	s.current = cp.page
	s.article = cp.article
	s.mu.Unlock()

	s.emit(gen, navigation.Event{
		Kind:  navigation.Finished,
		URL:   url,
		Title: cp.page.Title,
		Host:  cp.page.Host,
	})
}

func (s *Surface) fail(gen uint64, url string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	s.log.Debug("page load failed", zap.String("url", url), zap.Error(err))
	s.emit(gen, navigation.Event{
		Kind: navigation.Failed,
		URL:  url,
		Err:  errs.NewNavigationFailure("load", err),
	})
}

// emit delivers ev unless a newer navigation has started.
func (s *Surface) emit(gen uint64, ev navigation.Event) {
	s.mu.Lock()
	fn := s.onEvent
	stale := gen != s.gen
	s.mu.Unlock()
	if stale || fn == nil {
		return
	}
	fn(ev)
}
