package pagestore

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// ContentHash returns the canonical 64-lowercase-hex SHA-256 digest of
// content, per spec §6 "Content hashing".
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func siteOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

// MatchesFilter reports whether a page's URL/fetch time satisfy filter. A
// nil filter always matches.
func MatchesFilter(rawURL string, fetchedAtUnix int64, f *QueryFilter) bool {
	if f == nil {
		return true
	}
	site := siteOf(rawURL)
	if len(f.IncludeSites) > 0 {
		ok := false
		for _, s := range f.IncludeSites {
			if strings.EqualFold(s, site) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, s := range f.ExcludeSites {
		if strings.EqualFold(s, site) {
			return false
		}
	}
	if !f.MinDate.IsZero() && fetchedAtUnix < f.MinDate.Unix() {
		return false
	}
	if !f.MaxDate.IsZero() && fetchedAtUnix > f.MaxDate.Unix() {
		return false
	}
	return true
}
