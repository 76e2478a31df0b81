// Package favicon resolves per-host favicons through an ImageCache, falling
// back to a single fetch of https://{host}/favicon.ico on a miss.
package favicon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"sync"

	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	"github.com/vidyasagar/surfshell/internal/cache"
	errs "github.com/vidyasagar/surfshell/internal/errors"
	"github.com/vidyasagar/surfshell/internal/logging"
)

// Fetcher is the network collaborator used for favicon downloads. It must
// return an error for non-2xx responses.
type Fetcher interface {
	FetchBytes(ctx context.Context, rawURL string) ([]byte, error)
}

// Result is delivered to Resolve callbacks. Image is nil when the host has
// no usable favicon.
type Result struct {
	Host   string
	Image  image.Image
	Cached bool
	Err    error
}

// Resolver looks up favicons. It is safe for concurrent use; two concurrent
// misses for one host may both fetch, and the later one overwrites the cache
// entry.
type Resolver struct {
	cache    *cache.ImageCache
	fetcher  Fetcher
	log      *zap.Logger
	dispatch func(func())

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.log = logging.OrNop(l) }
}

// WithDispatcher routes async deliveries, e.g. onto the UI goroutine. The
// default runs the callback on the fetching goroutine.
func WithDispatcher(d func(func())) Option {
	return func(r *Resolver) {
		if d != nil {
			r.dispatch = d
		}
	}
}

// NewResolver creates a Resolver backed by c and f.
func NewResolver(c *cache.ImageCache, f Fetcher, opts ...Option) *Resolver {
	r := &Resolver{
		cache:    c,
		fetcher:  f,
		log:      zap.NewNop(),
		dispatch: func(fn func()) { fn() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// URLFor returns the conventional favicon location for host.
func URLFor(host string) string {
	return "https://" + host + "/favicon.ico"
}

// Cached returns the cached favicon for host without any network access.
func (r *Resolver) Cached(host string) (image.Image, bool) {
	return r.cache.Get(cacheKey(host))
}

// Lookup returns the favicon for host, fetching it on a cache miss. Failed
// fetches are not cached, so a later Lookup retries the network.
func (r *Resolver) Lookup(ctx context.Context, host string) (image.Image, error) {
	key := cacheKey(host)
	if key == "" {
		return nil, errs.NewNetworkFailure("favicon", errors.New("empty host"))
	}
	if img, ok := r.cache.Get(key); ok {
		return img, nil
	}

	body, err := r.fetcher.FetchBytes(ctx, URLFor(key))
	if err != nil {
		return nil, errs.NewNetworkFailure("favicon fetch", err)
	}

	img, format, err := decodeIcon(body)
	if err != nil {
		return nil, errs.NewNetworkFailure("favicon decode", fmt.Errorf("%s: %w", key, err))
	}

	r.cache.Put(key, img, cache.ImageCost(img))
	r.log.Debug("favicon cached",
		zap.String("host", key),
		zap.String("format", format),
		zap.Int64("cost", cache.ImageCost(img)),
	)
	return img, nil
}

// decodeIcon reads the header first so an oversized image is rejected
// without decoding its pixels.
func decodeIcon(body []byte) (image.Image, string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}
	if err := checkDimensions(cfg); err != nil {
		return nil, "", err
	}
	return image.Decode(bytes.NewReader(body))
}

// Resolve delivers the favicon for host to deliver. A cache hit is delivered
// before Resolve returns and Resolve reports true. A miss is fetched in the
// background and delivered through the dispatcher; once Close has been
// called, pending deliveries are dropped.
func (r *Resolver) Resolve(ctx context.Context, host string, deliver func(Result)) bool {
	if img, ok := r.Cached(host); ok {
		deliver(Result{Host: host, Image: img, Cached: true})
		return true
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()

		img, err := r.Lookup(ctx, host)
		if err != nil {
			r.log.Debug("favicon unavailable", zap.String("host", host), zap.Error(err))
		}
		res := Result{Host: host, Image: img, Err: err}

		r.dispatch(func() {
			r.mu.Lock()
			closed := r.closed
			r.mu.Unlock()
			if closed {
				return
			}
			deliver(res)
		})
	}()
	return false
}

// Close stops deliveries of in-flight resolves. Fetches already running are
// allowed to finish and still populate the cache.
func (r *Resolver) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

// Wait blocks until background fetches started by Resolve have finished.
func (r *Resolver) Wait() {
	r.wg.Wait()
}

// OrPlaceholder returns img, or the placeholder when img is nil.
func OrPlaceholder(img image.Image) image.Image {
	if img == nil {
		return Placeholder()
	}
	return img
}

var (
	placeholderOnce sync.Once
	placeholder     *image.NRGBA
)

// Placeholder is the 16x16 neutral grey square shown when a host has no
// favicon.
func Placeholder() image.Image {
	placeholderOnce.Do(func() {
		placeholder = image.NewNRGBA(image.Rect(0, 0, 16, 16))
		grey := color.NRGBA{R: 0x94, G: 0xA3, B: 0xB8, A: 0xFF}
		for y := 0; y < 16; y++ {
			for x := 0; x < 16; x++ {
				placeholder.SetNRGBA(x, y, grey)
			}
		}
	})
	return placeholder
}

// AverageColor returns the alpha-weighted mean colour of img, used by the
// terminal UI to draw a favicon as a single coloured glyph.
func AverageColor(img image.Image) color.NRGBA {
	if img == nil {
		return color.NRGBA{}
	}
	b := img.Bounds()
	var r, g, bl, a uint64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			w := uint64(c.A)
			r += uint64(c.R) * w
			g += uint64(c.G) * w
			bl += uint64(c.B) * w
			a += w
		}
	}
	if a == 0 {
		return color.NRGBA{}
	}
	return color.NRGBA{R: uint8(r / a), G: uint8(g / a), B: uint8(bl / a), A: 0xFF}
}

func cacheKey(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}
