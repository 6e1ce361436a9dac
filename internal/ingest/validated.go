package ingest

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/fourthplaces/extractor/internal/xerrors"
)

// ValidatedIngestor is a decorator that MUST wrap any network-capable
// Ingestor before use (spec §4.2). It resolves hostnames and rejects
// non-public addresses, and re-resolves immediately before connect to
// defend against DNS rebinding: if the address used to connect differs from
// the address observed during the pre-flight check, the request is refused.
type ValidatedIngestor struct {
	inner   Ingestor
	resolve func(ctx context.Context, host string) ([]net.IP, error)
}

// NewValidatedIngestor wraps inner with SSRF validation. resolver is
// optional; nil uses net.DefaultResolver.
func NewValidatedIngestor(inner Ingestor, resolver func(ctx context.Context, host string) ([]net.IP, error)) *ValidatedIngestor {
	if resolver == nil {
		resolver = defaultResolve
	}
	return &ValidatedIngestor{inner: inner, resolve: resolver}
}

func defaultResolve(ctx context.Context, host string) ([]net.IP, error) {
	return net.DefaultResolver.LookupIP(ctx, "ip", host)
}

func (v *ValidatedIngestor) Name() string { return v.inner.Name() }

// preflight resolves host and rejects it outright if every candidate
// address is non-public. It returns the accepted address set so a
// connect-time dialer can re-check against DNS rebinding.
func (v *ValidatedIngestor) preflight(ctx context.Context, rawURL string) (map[string]bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, xerrors.NewCrawlError(xerrors.CrawlInvalidURL, rawURL, err)
	}
	host := u.Hostname()
	if isLocalOrPrivateHostname(host) {
		return nil, xerrors.NewCrawlError(xerrors.CrawlSecurity, rawURL, nil)
	}
	ips, err := v.resolve(ctx, host)
	if err != nil {
		return nil, xerrors.NewCrawlError(xerrors.CrawlInvalidURL, rawURL, err)
	}
	if len(ips) == 0 {
		return nil, xerrors.NewCrawlError(xerrors.CrawlInvalidURL, rawURL, nil)
	}
	allowed := make(map[string]bool, len(ips))
	anyPublic := false
	for _, ip := range ips {
		if isPublicIP(ip) {
			allowed[ip.String()] = true
			anyPublic = true
		}
	}
	if !anyPublic {
		return nil, xerrors.NewCrawlError(xerrors.CrawlSecurity, rawURL, nil)
	}
	return allowed, nil
}

// dialContext re-resolves at connect time and refuses to dial any address
// not present in the pre-flight allowed set, defeating DNS rebinding where
// the second lookup returns a different (private) address than the first.
func (v *ValidatedIngestor) dialContext(allowed map[string]bool) func(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		ip := net.ParseIP(host)
		if ip == nil {
			ips, err := v.resolve(ctx, host)
			if err != nil || len(ips) == 0 {
				return nil, xerrors.NewCrawlError(xerrors.CrawlSecurity, addr, err)
			}
			ip = ips[0]
			for _, candidate := range ips {
				if allowed[candidate.String()] {
					ip = candidate
					break
				}
			}
		}
		if !allowed[ip.String()] || !isPublicIP(ip) {
			return nil, xerrors.NewCrawlError(xerrors.CrawlSecurity, addr, nil)
		}
		return dialer.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
	}
}

// validatedClient returns an *http.Client whose transport dials only
// addresses that were present in the pre-flight resolution.
func (v *ValidatedIngestor) validatedClient(allowed map[string]bool) *http.Client {
	transport := &http.Transport{DialContext: v.dialContext(allowed)}
	return &http.Client{Transport: transport}
}

func isLocalOrPrivateHostname(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "localhost" || h == "localhost.localdomain" || h == "::1" || h == "[::1]" {
		return true
	}
	if ip := net.ParseIP(h); ip != nil {
		return !isPublicIP(ip)
	}
	return false
}

// isPublicIP rejects loopback, private (RFC1918), link-local, carrier-grade
// NAT (100.64.0.0/10), and IPv6 ULA/link-local addresses (spec §4.2).
func isPublicIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return false
	}
	if ip4 := ip.To4(); ip4 != nil {
		// Carrier-grade NAT: 100.64.0.0/10.
		if ip4[0] == 100 && ip4[1] >= 64 && ip4[1] <= 127 {
			return false
		}
	} else {
		// IPv6 unique local addresses: fc00::/7.
		if ip[0]&0xfe == 0xfc {
			return false
		}
	}
	return true
}

// FetchOne validates rawURL's resolved address before delegating to inner.
// Per spec §8 S5, a non-public address fails with Security and performs no
// HTTP I/O: the pre-flight check happens entirely before inner is invoked,
// and inner's own fetcher is expected to respect the pre-flight result by
// routing through a dialer restricted to the allowed address set (handled
// here for HTTPIngestor specifically; other Ingestor implementations must
// honor the same contract to be wrapped safely).
func (v *ValidatedIngestor) FetchOne(ctx context.Context, rawURL string) (RawPage, error) {
	allowed, err := v.preflight(ctx, rawURL)
	if err != nil {
		return RawPage{}, err
	}
	if httpIng, ok := v.inner.(*HTTPIngestor); ok {
		return fetchWithRestrictedClient(ctx, httpIng, rawURL, v.validatedClient(allowed))
	}
	return v.inner.FetchOne(ctx, rawURL)
}

// fetchWithRestrictedClient fetches rawURL with an *HTTPIngestor, temporarily
// substituting a client whose transport is pinned to the pre-flight
// resolution, then restores the original client.
func fetchWithRestrictedClient(ctx context.Context, h *HTTPIngestor, rawURL string, client *http.Client) (RawPage, error) {
	original := h.fetcher.HTTPClient
	h.fetcher.HTTPClient = client
	defer func() { h.fetcher.HTTPClient = original }()
	return h.FetchOne(ctx, rawURL)
}

func (v *ValidatedIngestor) FetchSpecific(ctx context.Context, urls []string) (Result, error) {
	var result Result
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return result, xerrors.ErrCancelled
		}
		page, err := v.FetchOne(ctx, u)
		if err != nil {
			result.Failures = append(result.Failures, PageFailure{URL: u, Err: err})
			continue
		}
		result.Pages = append(result.Pages, page)
	}
	return result, nil
}

// Discover validates every root and every discovered link before it is
// fetched, by delegating each fetch through FetchOne rather than letting the
// inner ingestor dial unchecked addresses during BFS expansion.
func (v *ValidatedIngestor) Discover(ctx context.Context, config DiscoverConfig) (Result, error) {
	var result Result
	visited := make(map[string]bool)
	type queued struct {
		url   string
		depth int
	}
	var queue []queued
	for _, root := range config.Roots {
		queue = append(queue, queued{url: root, depth: 0})
	}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return result, xerrors.ErrCancelled
		}
		if config.Limit > 0 && len(result.Pages) >= config.Limit {
			break
		}
		cur := queue[0]
		queue = queue[1:]
		if visited[cur.url] {
			continue
		}
		visited[cur.url] = true
		if !matchesGlobs(cur.url, config.IncludeGlobs, config.ExcludeGlobs) {
			continue
		}
		page, err := v.FetchOne(ctx, cur.url)
		if err != nil {
			if err == xerrors.ErrCancelled {
				return result, err
			}
			result.Failures = append(result.Failures, PageFailure{URL: cur.url, Err: err})
			continue
		}
		result.Pages = append(result.Pages, page)
		if cur.depth >= config.MaxDepth {
			continue
		}
		for _, link := range page.Links {
			if !visited[link] {
				queue = append(queue, queued{url: link, depth: cur.depth + 1})
			}
		}
	}
	return result, nil
}
