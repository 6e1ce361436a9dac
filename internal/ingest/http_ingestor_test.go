package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPIngestorFetchOne_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`<html><head><title>Hi</title></head><body><main><p>Hello world</p><a href="/about">About</a></main></body></html>`))
	}))
	defer srv.Close()

	h := NewHTTPIngestor("extractor-test", nil, 4)
	page, err := h.FetchOne(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Title != "Hi" {
		t.Fatalf("expected title Hi, got %q", page.Title)
	}
	if page.Content == "" {
		t.Fatalf("expected non-empty content")
	}
	if len(page.Links) != 1 {
		t.Fatalf("expected one discovered link, got %v", page.Links)
	}
}

func TestHTTPIngestorFetchOne_RetryOn5xx(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(404)
			return
		}
		calls++
		if calls == 1 {
			w.WriteHeader(502)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(200)
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	h := NewHTTPIngestor("extractor-test", nil, 4)
	h.fetcher.MaxAttempts = 2
	h.fetcher.PerRequestTimeout = 2 * time.Second
	_, err := h.FetchOne(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
}

func TestHTTPIngestorDiscover_RespectsDepthAndGlobs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><a href="/page1">1</a><a href="/skip/page2">2</a></body></html>`))
	})
	mux.HandleFunc("/page1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>page1</body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	h := NewHTTPIngestor("extractor-test", nil, 4)
	result, err := h.Discover(context.Background(), DiscoverConfig{
		Roots:        []string{srv.URL + "/"},
		MaxDepth:     1,
		ExcludeGlobs: []string{"/skip/*"},
	})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	for _, p := range result.Pages {
		if p.URL == srv.URL+"/skip/page2" {
			t.Fatalf("expected excluded glob to be skipped, got %+v", result.Pages)
		}
	}
	if len(result.Pages) != 2 {
		t.Fatalf("expected root + page1, got %d pages: %+v", len(result.Pages), result.Pages)
	}
}

func TestRobotsDisallowReturnsPartialFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	})
	mux.HandleFunc("/private/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>secret</body></html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	h := NewHTTPIngestor("extractor-test", nil, 4)
	_, err := h.FetchOne(context.Background(), srv.URL+"/private/page")
	if err == nil {
		t.Fatalf("expected robots disallow error")
	}
}
