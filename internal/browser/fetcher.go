package browser

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout   = 15 * time.Second
	maxBodySize      = 10 << 20
	maxIconSize      = 1 << 20
	maxRedirects     = 10
	defaultUserAgent = "surfshell/0.1 (terminal browser; +https://github.com/vidyasagar/surfshell)"
)

// SharedTransport is shared by every Fetcher so page loads and favicon
// requests to the same host reuse connections.
var SharedTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ResponseHeaderTimeout: 15 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
}

// FetchResult is a fetched response body with the metadata Extract needs.
type FetchResult struct {
	URL         string
	FinalURL    string // after redirects
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
}

// Fetcher performs page and favicon GETs.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// NewFetcher creates a Fetcher on SharedTransport with a 15s timeout and
// at most ten redirects.
func NewFetcher() *Fetcher {
	return NewFetcherWithClient(&http.Client{
		Transport: SharedTransport,
		Timeout:   defaultTimeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	})
}

// NewFetcherWithClient wraps an existing client, e.g. an httptest server's.
func NewFetcherWithClient(c *http.Client) *Fetcher {
	return &Fetcher{client: c, userAgent: defaultUserAgent}
}

type request struct {
	accept  string
	limit   int64
	strict  bool // non-2xx is an error
	headers map[string]string
}

var (
	pageRequest = request{
		accept:  "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		limit:   maxBodySize,
		headers: map[string]string{"Accept-Language": "en-US,en;q=0.9"},
	}
	iconRequest = request{
		accept: "image/*,*/*;q=0.8",
		limit:  maxIconSize,
		strict: true,
	}
)

// Fetch retrieves a page. rawURL must already be absolute. Non-2xx
// responses come back as results so error pages still render.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	start := time.Now()
	res, err := f.get(ctx, rawURL, pageRequest)
	if err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)
	return res, nil
}

// FetchBytes downloads a small resource such as a favicon and fails on any
// non-2xx status.
func (f *Fetcher) FetchBytes(ctx context.Context, rawURL string) ([]byte, error) {
	res, err := f.get(ctx, rawURL, iconRequest)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string, r request) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", r.accept)
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if r.strict && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		return nil, fmt.Errorf("fetching %s: unexpected status %s", rawURL, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.limit))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}

	return &FetchResult{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// IsHTML checks if the content type indicates HTML.
func IsHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}
