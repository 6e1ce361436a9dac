package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/fourthplaces/extractor/internal/cache"
)

// robotsGroup is one User-agent block of a robots.txt file.
type robotsGroup struct {
	Agents   []string
	Allow    []string
	Disallow []string
}

// robotsRules is a parsed robots.txt; grounded on the teacher's
// internal/robots package, extended with an IsAllowed matcher (longest-match
// wins, Allow breaking ties over Disallow of equal length).
type robotsRules struct {
	Groups []robotsGroup
}

func (r robotsRules) IsAllowed(userAgent, urlPath string) bool {
	group, ok := selectGroup(r.Groups, userAgent)
	if !ok {
		return true
	}
	allowLen := longestMatch(group.Allow, urlPath)
	disallowLen := longestMatch(group.Disallow, urlPath)
	if disallowLen < 0 {
		return true
	}
	if allowLen >= disallowLen {
		return allowLen >= 0
	}
	return false
}

func selectGroup(groups []robotsGroup, userAgent string) (robotsGroup, bool) {
	ua := strings.ToLower(userAgent)
	var wildcard *robotsGroup
	for i := range groups {
		g := groups[i]
		for _, agent := range g.Agents {
			if agent == "*" && wildcard == nil {
				wildcard = &groups[i]
			}
			if agent != "*" && strings.Contains(ua, agent) {
				return g, true
			}
		}
	}
	if wildcard != nil {
		return *wildcard, true
	}
	return robotsGroup{}, false
}

// longestMatch returns the length of the longest pattern in patterns that is
// a prefix of urlPath, or -1 if none match. An empty Disallow pattern never
// matches (robots.txt convention: "Disallow:" with no value allows all).
func longestMatch(patterns []string, urlPath string) int {
	best := -1
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if path.IsAbs(p) && strings.HasPrefix(urlPath, p) {
			if len(p) > best {
				best = len(p)
			}
		}
	}
	return best
}

func parseRobots(text string) robotsRules {
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var groups []robotsGroup
	current := robotsGroup{}
	flush := func() {
		if len(current.Agents) == 0 && len(current.Allow) == 0 && len(current.Disallow) == 0 {
			return
		}
		groups = append(groups, current)
		current = robotsGroup{}
	}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:colon]))
		val := strings.TrimSpace(line[colon+1:])
		switch key {
		case "user-agent", "useragent":
			if len(current.Agents) > 0 && (len(current.Allow) > 0 || len(current.Disallow) > 0) {
				flush()
			}
			current.Agents = append(current.Agents, strings.ToLower(val))
		case "allow":
			current.Allow = append(current.Allow, val)
		case "disallow":
			current.Disallow = append(current.Disallow, val)
		}
	}
	flush()
	return robotsRules{Groups: groups}
}

// robotsManager fetches and caches robots.txt per host, grounded on the
// teacher's internal/robots.Manager.
type robotsManager struct {
	HTTPClient  *http.Client
	Cache       *cache.HTTPCache
	UserAgent   string
	EntryExpiry time.Duration

	mu  sync.Mutex
	mem map[string]robotsMemEntry
}

type robotsMemEntry struct {
	rules  robotsRules
	expiry time.Time
}

func (m *robotsManager) allowed(ctx context.Context, rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("parse url: %w", err)
	}
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)

	m.mu.Lock()
	if m.mem == nil {
		m.mem = make(map[string]robotsMemEntry)
	}
	if ent, ok := m.mem[robotsURL]; ok && time.Now().Before(ent.expiry) {
		m.mu.Unlock()
		return ent.rules.IsAllowed(m.UserAgent, u.Path), nil
	}
	m.mu.Unlock()

	rules, err := m.fetch(ctx, robotsURL)
	if err != nil {
		// Per spec, a missing/unreachable robots.txt means proceed allowed.
		rules = robotsRules{}
	}
	m.storeMem(robotsURL, rules)
	return rules.IsAllowed(m.UserAgent, u.Path), nil
}

func (m *robotsManager) fetch(ctx context.Context, robotsURL string) (robotsRules, error) {
	client := m.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return robotsRules{}, err
	}
	if m.UserAgent != "" {
		req.Header.Set("User-Agent", m.UserAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return robotsRules{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return robotsRules{}, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return robotsRules{}, err
	}
	if m.Cache != nil {
		_ = m.Cache.Save(ctx, robotsURL, "text/plain", "", "", data)
	}
	return parseRobots(string(data)), nil
}

func (m *robotsManager) storeMem(key string, rules robotsRules) {
	exp := m.EntryExpiry
	if exp <= 0 {
		exp = 30 * time.Minute
	}
	m.mu.Lock()
	m.mem[key] = robotsMemEntry{rules: rules, expiry: time.Now().Add(exp)}
	m.mu.Unlock()
}
