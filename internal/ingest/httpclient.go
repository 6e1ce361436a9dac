package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fourthplaces/extractor/internal/cache"
)

// httpFetcher wraps http.Client with timeouts, bounded retry on transient
// errors, conditional GET via an on-disk HTTP cache, and a bounded redirect
// policy, grounded on the teacher's internal/fetch.Client.
type httpFetcher struct {
	HTTPClient        *http.Client
	UserAgent         string
	MaxAttempts       int
	PerRequestTimeout time.Duration
	Cache             *cache.HTTPCache
	RedirectMaxHops   int
	MaxConcurrent     int

	limiter     chan struct{}
	limiterOnce sync.Once
}

func (c *httpFetcher) getHTTPClient() *http.Client {
	if c.HTTPClient != nil {
		base := *c.HTTPClient
		base.CheckRedirect = c.checkRedirectFunc()
		return &base
	}
	return &http.Client{Timeout: c.PerRequestTimeout, CheckRedirect: c.checkRedirectFunc()}
}

type fetchResult struct {
	body         []byte
	contentType  string
	etag         string
	lastModified string
}

// get issues a GET with bounded retry for transient errors (5xx, context
// deadline exceeded) and conditional revalidation against the HTTP cache.
func (c *httpFetcher) get(ctx context.Context, rawURL string) (fetchResult, error) {
	var etag, lastMod string
	if c.Cache != nil {
		if meta, err := c.Cache.LoadMeta(ctx, rawURL); err == nil && meta != nil {
			etag = meta.ETag
			lastMod = meta.LastModified
		}
	}
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		res, status, err := c.tryOnce(ctx, rawURL, etag, lastMod)
		if err == nil {
			if c.Cache != nil && status == http.StatusOK {
				_ = c.Cache.Save(ctx, rawURL, res.contentType, res.etag, res.lastModified, res.body)
			}
			if status == http.StatusNotModified && c.Cache != nil {
				if cached, err := c.Cache.LoadBody(ctx, rawURL); err == nil {
					return fetchResult{body: cached, contentType: res.contentType}, nil
				}
			}
			return res, nil
		}
		if ctx.Err() != nil {
			return fetchResult{}, ctx.Err()
		}
		if !isTransient(err) || i == attempts-1 {
			return fetchResult{}, err
		}
		lastErr = err
		select {
		case <-time.After(time.Duration(i+1) * 200 * time.Millisecond):
		case <-ctx.Done():
			return fetchResult{}, ctx.Err()
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown fetch error")
	}
	return fetchResult{}, lastErr
}

func (c *httpFetcher) tryOnce(ctx context.Context, rawURL string, etag, lastMod string) (fetchResult, int, error) {
	c.acquire()
	defer c.release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fetchResult{}, 0, fmt.Errorf("new request: %w", err)
	}
	if req.URL == nil || !isHTTPScheme(req.URL) {
		return fetchResult{}, 0, fmt.Errorf("unsupported url scheme: %q", rawURL)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastMod != "" {
		req.Header.Set("If-Modified-Since", lastMod)
	}

	httpClient := c.getHTTPClient()
	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel := context.WithTimeout(req.Context(), c.PerRequestTimeout)
		defer cancel()
		req = req.WithContext(reqCtx)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fetchResult{}, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 && resp.StatusCode <= 599 {
		return fetchResult{}, resp.StatusCode, fmt.Errorf("server error: %d", resp.StatusCode)
	}
	if resp.StatusCode == http.StatusNotModified {
		return fetchResult{contentType: resp.Header.Get("Content-Type")}, resp.StatusCode, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fetchResult{}, resp.StatusCode, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !isAllowedHTMLContentType(contentType) {
		return fetchResult{}, resp.StatusCode, fmt.Errorf("unsupported content type: %s", contentType)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fetchResult{}, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return fetchResult{
		body:         b,
		contentType:  contentType,
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
	}, resp.StatusCode, nil
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return strings.Contains(err.Error(), "server error:")
}

func (c *httpFetcher) checkRedirectFunc() func(req *http.Request, via []*http.Request) error {
	max := c.RedirectMaxHops
	if max <= 0 {
		max = 5
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return errors.New("too many redirects")
		}
		if req.URL == nil || !isHTTPScheme(req.URL) {
			return errors.New("redirect to unsupported scheme")
		}
		return nil
	}
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func isAllowedHTMLContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	return strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}

func (c *httpFetcher) acquire() {
	if c.MaxConcurrent <= 0 {
		return
	}
	c.limiterOnce.Do(func() {
		c.limiter = make(chan struct{}, c.MaxConcurrent)
	})
	c.limiter <- struct{}{}
}

func (c *httpFetcher) release() {
	if c.MaxConcurrent <= 0 || c.limiter == nil {
		return
	}
	select {
	case <-c.limiter:
	default:
	}
}
