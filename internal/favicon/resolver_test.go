package favicon

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidyasagar/surfshell/internal/cache"
	errs "github.com/vidyasagar/surfshell/internal/errors"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls []string
	body  []byte
	err   error
	gate  chan struct{} // when non-nil, FetchBytes waits for it
}

func (f *fakeFetcher) FetchBytes(_ context.Context, rawURL string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rawURL)
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return f.body, f.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newResolver(t *testing.T, f Fetcher, opts ...Option) (*Resolver, *cache.ImageCache) {
	t.Helper()
	c, err := cache.New(cache.Options{})
	require.NoError(t, err)
	return NewResolver(c, f, opts...), c
}

func TestURLFor(t *testing.T) {
	assert.Equal(t, "https://example.com/favicon.ico", URLFor("example.com"))
}

func TestLookup_CacheHitSkipsNetwork(t *testing.T) {
	f := &fakeFetcher{}
	r, c := newResolver(t, f)
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	c.Put("example.com", img, cache.ImageCost(img))

	got, err := r.Lookup(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Same(t, img, got)
	assert.Equal(t, 0, f.callCount())
}

func TestLookup_MissFetchesAndCaches(t *testing.T) {
	f := &fakeFetcher{body: pngBytes(t, 16, 16, color.NRGBA{R: 255, A: 255})}
	r, c := newResolver(t, f)

	got, err := r.Lookup(context.Background(), "Example.com")
	require.NoError(t, err)
	assert.Equal(t, 16, got.Bounds().Dx())
	require.Equal(t, []string{"https://example.com/favicon.ico"}, f.calls)

	_, ok := c.Get("example.com")
	assert.True(t, ok)

	_, err = r.Lookup(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, f.callCount(), "second lookup served from cache")
}

func TestLookup_FetchFailureIsNotCached(t *testing.T) {
	f := &fakeFetcher{err: errors.New("status 404")}
	r, c := newResolver(t, f)

	got, err := r.Lookup(context.Background(), "example.com")
	assert.Nil(t, got)
	assert.True(t, errs.Is(err, errs.ErrNetworkFailure))
	assert.Equal(t, 0, c.Len())

	_, err = r.Lookup(context.Background(), "example.com")
	assert.Error(t, err)
	assert.Equal(t, 2, f.callCount(), "no negative caching")
}

func TestLookup_UndecodableBody(t *testing.T) {
	f := &fakeFetcher{body: []byte("<html>not an icon</html>")}
	r, c := newResolver(t, f)

	_, err := r.Lookup(context.Background(), "example.com")
	assert.True(t, errs.Is(err, errs.ErrNetworkFailure))
	assert.Equal(t, 0, c.Len())
}

// pngHeader is a PNG signature plus a valid IHDR chunk declaring w x h RGBA
// pixels, with no image data behind it.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // truecolor with alpha

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestLookup_RejectsOversizedImage(t *testing.T) {
	f := &fakeFetcher{body: pngHeader(40000, 40000)}
	r, c := newResolver(t, f)

	got, err := r.Lookup(context.Background(), "example.com")
	assert.Nil(t, got)
	require.True(t, errs.Is(err, errs.ErrNetworkFailure))
	assert.Contains(t, err.Error(), "limit is 1024x1024")
	assert.Equal(t, 0, c.Len())
}

func TestDecodeIcon_AllowsMaxSide(t *testing.T) {
	img, format, err := decodeIcon(pngBytes(t, MaxSide, 1, color.NRGBA{A: 255}))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, MaxSide, img.Bounds().Dx())

	_, _, err = decodeIcon(pngBytes(t, MaxSide+1, 1, color.NRGBA{A: 255}))
	assert.Error(t, err)
}

func TestLookup_EmptyHost(t *testing.T) {
	f := &fakeFetcher{}
	r, _ := newResolver(t, f)

	_, err := r.Lookup(context.Background(), "  ")
	assert.Error(t, err)
	assert.Equal(t, 0, f.callCount())
}

func TestResolve_HitDeliversSynchronously(t *testing.T) {
	f := &fakeFetcher{}
	r, c := newResolver(t, f)
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	c.Put("a.test", img, cache.ImageCost(img))

	var got Result
	hit := r.Resolve(context.Background(), "a.test", func(res Result) { got = res })

	assert.True(t, hit)
	assert.True(t, got.Cached)
	assert.Same(t, img, got.Image)
	assert.Equal(t, 0, f.callCount())
}

func TestResolve_MissDeliversLater(t *testing.T) {
	f := &fakeFetcher{body: pngBytes(t, 4, 4, color.White)}
	r, _ := newResolver(t, f)

	results := make(chan Result, 1)
	hit := r.Resolve(context.Background(), "a.test", func(res Result) { results <- res })
	assert.False(t, hit)

	select {
	case res := <-results:
		require.NoError(t, res.Err)
		assert.NotNil(t, res.Image)
		assert.False(t, res.Cached)
	case <-time.After(2 * time.Second):
		t.Fatal("favicon was not delivered")
	}
}

func TestResolve_FailureDeliversNoImage(t *testing.T) {
	f := &fakeFetcher{err: errors.New("connection refused")}
	r, _ := newResolver(t, f)

	results := make(chan Result, 1)
	r.Resolve(context.Background(), "a.test", func(res Result) { results <- res })
	r.Wait()

	res := <-results
	assert.Nil(t, res.Image)
	assert.True(t, errs.Is(res.Err, errs.ErrNetworkFailure))
	assert.Same(t, Placeholder(), OrPlaceholder(res.Image))
}

func TestResolve_CloseDropsDelivery(t *testing.T) {
	f := &fakeFetcher{body: pngBytes(t, 4, 4, color.White), gate: make(chan struct{})}
	r, c := newResolver(t, f)

	delivered := false
	r.Resolve(context.Background(), "a.test", func(Result) { delivered = true })
	r.Close()
	close(f.gate)
	r.Wait()

	assert.False(t, delivered)
	_, ok := c.Get("a.test")
	assert.True(t, ok, "late fetch still fills the cache")

	assert.False(t, r.Resolve(context.Background(), "b.test", func(Result) { delivered = true }))
	assert.False(t, delivered)
}

func TestResolve_UsesDispatcher(t *testing.T) {
	f := &fakeFetcher{body: pngBytes(t, 4, 4, color.White)}
	queue := make(chan func(), 1)
	r, _ := newResolver(t, f, WithDispatcher(func(fn func()) { queue <- fn }))

	delivered := false
	r.Resolve(context.Background(), "a.test", func(Result) { delivered = true })
	r.Wait()
	assert.False(t, delivered, "delivery waits for the owner to run it")

	(<-queue)()
	assert.True(t, delivered)
}

func TestAverageColor(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 200, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{B: 200, A: 0})

	assert.Equal(t, color.NRGBA{R: 200, A: 255}, AverageColor(img))
	assert.Equal(t, color.NRGBA{}, AverageColor(nil))
}
