// Package sqlitevec is the embedded single-file PageStore backend: a SQLite
// database using sqlite-vec's vec0 virtual table for nearest-neighbor search
// and FTS5 for lexical search, grounded on bbiangul-go-reason's
// store/schema.go and store.go (VectorSearch, FTSSearch, InsertEmbedding).
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/fourthplaces/extractor/internal/pagestore"
)

func init() {
	sqlite_vec.Auto()
}

// Store wraps a *sql.DB implementing pagestore.PageStore.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// Open creates or opens a SQLite database at path, initializing schema.
func Open(path string, embeddingDim int) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db, embeddingDim: embeddingDim}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func normalizeLanguage(lang string) string {
	l := strings.ToLower(strings.TrimSpace(lang))
	switch l {
	case "", "unknown":
		return "english"
	}
	return l
}

// languageBucket maps a normalized language tag to one of the two FTS5
// tables schema.go maintains. Anything not recognized as Spanish falls back
// to the English bucket, matching normalizeLanguage's own fallback.
func languageBucket(lang string) string {
	if normalizeLanguage(lang) == "spanish" {
		return "spanish"
	}
	return "english"
}

var spanishWordSplit = regexp.MustCompile(`\s+`)

// stemSpanish is a deliberately small suffix stemmer: it strips the common
// Spanish plural endings "es"/"s" word by word so "niños" and "niño" index
// to the same FTS5 token. It is not a real morphological analyzer; FTS5
// ships no Spanish stemmer, so this is applied in Go to both indexed
// content and queries against pages_fts_spanish.
func stemSpanish(s string) string {
	words := spanishWordSplit.Split(s, -1)
	for i, w := range words {
		switch {
		case len(w) > 4 && strings.HasSuffix(w, "es"):
			words[i] = w[:len(w)-2]
		case len(w) > 3 && strings.HasSuffix(w, "s"):
			words[i] = w[:len(w)-1]
		}
	}
	return strings.Join(words, " ")
}

// GetPage implements pagestore.PageCache.
func (s *Store) GetPage(ctx context.Context, url string) (*pagestore.CachedPage, error) {
	row := s.db.QueryRowContext(ctx, `SELECT url, site_url, title, content, language, content_hash, fetched_at FROM pages WHERE url = ?`, url)
	var p pagestore.CachedPage
	var fetchedAt int64
	if err := row.Scan(&p.URL, &p.SiteURL, &p.Title, &p.Content, &p.Language, &p.ContentHash, &fetchedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get page: %w", err)
	}
	p.FetchedAt = time.Unix(fetchedAt, 0).UTC()
	return &p, nil
}

// StorePage implements pagestore.PageCache, upserting by URL and re-routing
// the page's FTS5 row to the bucket matching its (possibly changed)
// language.
func (s *Store) StorePage(ctx context.Context, page pagestore.CachedPage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store page: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pages (url, site_url, title, content, language, content_hash, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			site_url = excluded.site_url,
			title = excluded.title,
			content = excluded.content,
			language = excluded.language,
			content_hash = excluded.content_hash,
			fetched_at = excluded.fetched_at
	`, page.URL, page.SiteURL, page.Title, page.Content, normalizeLanguage(page.Language), page.ContentHash, page.FetchedAt.Unix())
	if err != nil {
		return fmt.Errorf("store page: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM pages_fts_english WHERE url = ?`, page.URL); err != nil {
		return fmt.Errorf("clear english fts row: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pages_fts_spanish WHERE url = ?`, page.URL); err != nil {
		return fmt.Errorf("clear spanish fts row: %w", err)
	}

	content, title := page.Content, page.Title
	table := "pages_fts_english"
	if languageBucket(page.Language) == "spanish" {
		table = "pages_fts_spanish"
		content = stemSpanish(content)
		title = stemSpanish(title)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (url, content, title) VALUES (?, ?, ?)`, table),
		page.URL, content, title); err != nil {
		return fmt.Errorf("index fts row: %w", err)
	}

	return tx.Commit()
}

// GetPages implements pagestore.PageCache.
func (s *Store) GetPages(ctx context.Context, urls []string) ([]pagestore.CachedPage, error) {
	out := make([]pagestore.CachedPage, 0, len(urls))
	for _, u := range urls {
		p, err := s.GetPage(ctx, u)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

// GetPagesForSite implements pagestore.PageCache.
func (s *Store) GetPagesForSite(ctx context.Context, site string) ([]pagestore.CachedPage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT url, site_url, title, content, language, content_hash, fetched_at FROM pages WHERE site_url = ?`, site)
	if err != nil {
		return nil, fmt.Errorf("get pages for site: %w", err)
	}
	defer rows.Close()
	var out []pagestore.CachedPage
	for rows.Next() {
		var p pagestore.CachedPage
		var fetchedAt int64
		if err := rows.Scan(&p.URL, &p.SiteURL, &p.Title, &p.Content, &p.Language, &p.ContentHash, &fetchedAt); err != nil {
			return nil, err
		}
		p.FetchedAt = time.Unix(fetchedAt, 0).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetSummary implements pagestore.SummaryCache, returning nil when the
// content hash has gone stale rather than an error.
func (s *Store) GetSummary(ctx context.Context, url string, contentHash string) (*pagestore.Summary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT content_hash, prompt_hash, summary_markdown, produced_at FROM summaries WHERE url = ?`, url)
	var sum pagestore.Summary
	sum.URL = url
	var producedAt int64
	if err := row.Scan(&sum.ContentHash, &sum.PromptHash, &sum.SummaryMarkdown, &producedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get summary: %w", err)
	}
	if sum.ContentHash != contentHash {
		return nil, nil
	}
	sum.ProducedAt = time.Unix(producedAt, 0).UTC()
	signals, err := s.loadSignals(ctx, url)
	if err != nil {
		return nil, err
	}
	sum.RecallSignals = signals
	return &sum, nil
}

func (s *Store) loadSignals(ctx context.Context, url string) ([]pagestore.Signal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT signal_type, value, subtype, confidence, context_snippet, tags FROM signals WHERE summary_url = ?`, url)
	if err != nil {
		return nil, fmt.Errorf("load signals: %w", err)
	}
	defer rows.Close()
	var out []pagestore.Signal
	for rows.Next() {
		var sig pagestore.Signal
		var subtype, snippet, tagsJSON sql.NullString
		var confidence sql.NullFloat64
		if err := rows.Scan(&sig.Type, &sig.Value, &subtype, &confidence, &snippet, &tagsJSON); err != nil {
			return nil, err
		}
		sig.Subtype = subtype.String
		sig.ContextSnippet = snippet.String
		if confidence.Valid {
			sig.Confidence = confidence.Float64
			sig.HasConfidence = true
		}
		if tagsJSON.Valid && tagsJSON.String != "" {
			_ = json.Unmarshal([]byte(tagsJSON.String), &sig.Tags)
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// StoreSummary implements pagestore.SummaryCache, upserting by URL and
// rewriting the normalized signals child table to match.
func (s *Store) StoreSummary(ctx context.Context, summary pagestore.Summary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store summary: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO summaries (url, content_hash, prompt_hash, summary_markdown, produced_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			content_hash = excluded.content_hash,
			prompt_hash = excluded.prompt_hash,
			summary_markdown = excluded.summary_markdown,
			produced_at = excluded.produced_at
	`, summary.URL, summary.ContentHash, summary.PromptHash, summary.SummaryMarkdown, summary.ProducedAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM signals WHERE summary_url = ?`, summary.URL); err != nil {
		return fmt.Errorf("clear signals: %w", err)
	}
	for _, sig := range summary.RecallSignals {
		var tagsJSON []byte
		if len(sig.Tags) > 0 {
			tagsJSON, _ = json.Marshal(sig.Tags)
		}
		var confidence interface{}
		if sig.HasConfidence {
			confidence = sig.Confidence
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO signals (summary_url, signal_type, value, subtype, confidence, context_snippet, tags)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, summary.URL, sig.Type, sig.Value, sig.Subtype, confidence, sig.ContextSnippet, string(tagsJSON))
		if err != nil {
			return fmt.Errorf("insert signal: %w", err)
		}
	}
	return tx.Commit()
}

// StoreEmbedding implements pagestore.EmbeddingStore. A vector of the wrong
// dimension fails loudly per spec §4.1.
func (s *Store) StoreEmbedding(ctx context.Context, url string, vector []float32, modelID string) error {
	if len(vector) != s.embeddingDim {
		return fmt.Errorf("embedding dimension mismatch: got %d want %d", len(vector), s.embeddingDim)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO vec_pages (url, embedding) VALUES (?, ?)`, url, serializeFloat32(vector)); err != nil {
		return fmt.Errorf("store embedding: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO embedding_meta (url, model_id) VALUES (?, ?)`, url, modelID); err != nil {
		return fmt.Errorf("store embedding meta: %w", err)
	}
	return nil
}

func filterSQL(filter *pagestore.QueryFilter) (string, []interface{}) {
	if filter == nil {
		return "", nil
	}
	var clauses []string
	var args []interface{}
	if len(filter.IncludeSites) > 0 {
		placeholders := strings.TrimRight(strings.Repeat("?,", len(filter.IncludeSites)), ",")
		clauses = append(clauses, fmt.Sprintf("p.site_url IN (%s)", placeholders))
		for _, st := range filter.IncludeSites {
			args = append(args, st)
		}
	}
	for _, st := range filter.ExcludeSites {
		clauses = append(clauses, "p.site_url <> ?")
		args = append(args, st)
	}
	if !filter.MinDate.IsZero() {
		clauses = append(clauses, "p.fetched_at >= ?")
		args = append(args, filter.MinDate.Unix())
	}
	if !filter.MaxDate.IsZero() {
		clauses = append(clauses, "p.fetched_at <= ?")
		args = append(args, filter.MaxDate.Unix())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(clauses, " AND "), args
}

// SearchSimilar implements pagestore.EmbeddingStore via vec0 KNN.
func (s *Store) SearchSimilar(ctx context.Context, vector []float32, limit int, filter *pagestore.QueryFilter) ([]pagestore.PageRef, error) {
	if limit <= 0 {
		limit = 10
	}
	extra, args := filterSQL(filter)
	q := fmt.Sprintf(`
		SELECT v.url, v.distance
		FROM vec_pages v
		JOIN pages p ON p.url = v.url
		WHERE v.embedding MATCH ? AND k = ? %s
		ORDER BY v.distance
	`, extra)
	allArgs := append([]interface{}{serializeFloat32(vector), limit}, args...)
	rows, err := s.db.QueryContext(ctx, q, allArgs...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()
	var out []pagestore.PageRef
	for rows.Next() {
		var url string
		var distance float64
		if err := rows.Scan(&url, &distance); err != nil {
			return nil, err
		}
		out = append(out, pagestore.PageRef{URL: url, Score: 1.0 - distance})
	}
	return out, rows.Err()
}

// SearchLexical implements pagestore.EmbeddingStore via BM25 ranking,
// querying both language-bucketed FTS5 tables and concatenating results: a
// page is indexed into exactly one bucket (see StorePage), so the two
// result sets never contain the same URL and need no fusion, only a
// combined sort (spec §4.1, §6; scenario S6).
func (s *Store) SearchLexical(ctx context.Context, queryText string, limit int, filter *pagestore.QueryFilter) ([]pagestore.PageRef, error) {
	if limit <= 0 {
		limit = 10
	}
	english, err := s.searchFTSBucket(ctx, "pages_fts_english", queryText, limit, filter)
	if err != nil {
		return nil, err
	}
	spanish, err := s.searchFTSBucket(ctx, "pages_fts_spanish", stemSpanish(queryText), limit, filter)
	if err != nil {
		return nil, err
	}
	out := append(english, spanish...)
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) searchFTSBucket(ctx context.Context, table, queryText string, limit int, filter *pagestore.QueryFilter) ([]pagestore.PageRef, error) {
	extra, args := filterSQL(filter)
	q := fmt.Sprintf(`
		SELECT p.url, f.rank
		FROM %s f
		JOIN pages p ON p.url = f.url
		WHERE %s MATCH ? %s
		ORDER BY f.rank
		LIMIT ?
	`, table, table, extra)
	allArgs := append([]interface{}{queryText}, args...)
	allArgs = append(allArgs, limit)
	rows, err := s.db.QueryContext(ctx, q, allArgs...)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()
	var out []pagestore.PageRef
	for rows.Next() {
		var url string
		var rank float64
		if err := rows.Scan(&url, &rank); err != nil {
			return nil, err
		}
		out = append(out, pagestore.PageRef{URL: url, Score: -rank})
	}
	return out, rows.Err()
}

// SearchHybrid implements pagestore.EmbeddingStore via Reciprocal Rank
// Fusion of the vector and lexical rankings (spec §4.1).
func (s *Store) SearchHybrid(ctx context.Context, queryText string, vector []float32, limit int, filter *pagestore.QueryFilter, semanticWeight float64) ([]pagestore.PageRef, error) {
	fetchLimit := limit * 4
	if fetchLimit < 50 {
		fetchLimit = 50
	}
	sem, err := s.SearchSimilar(ctx, vector, fetchLimit, filter)
	if err != nil {
		return nil, err
	}
	lex, err := s.SearchLexical(ctx, queryText, fetchLimit, filter)
	if err != nil {
		return nil, err
	}
	return pagestore.FuseRRF(sem, lex, semanticWeight, limit), nil
}
