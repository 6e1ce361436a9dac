// Package postgres is the production PageStore backend: pgx/v5 against
// Postgres with the pgvector extension for nearest-neighbor search and a
// trigger-maintained tsvector column for lexical search, grounded on the reposearch
// store (Migrate, UpsertChunk, Search) adapted from source chunks to pages
// and their summaries.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/fourthplaces/extractor/internal/pagestore"
)

// Store implements pagestore.PageStore against a Postgres database.
type Store struct {
	pool         *pgxpool.Pool
	embeddingDim int
}

// New opens a pooled connection using the given DSN/connection string.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

// Migrate applies schema DDL, sizing the vector column to embeddingDim.
func (s *Store) Migrate(ctx context.Context, embeddingDim int) error {
	s.embeddingDim = embeddingDim
	if _, err := s.pool.Exec(ctx, migrateSQL(embeddingDim)); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func normalizeLanguage(lang string) string {
	if lang == "" || lang == "unknown" {
		return "english"
	}
	return lang
}

// GetPage implements pagestore.PageCache.
func (s *Store) GetPage(ctx context.Context, url string) (*pagestore.CachedPage, error) {
	row := s.pool.QueryRow(ctx, `SELECT url, site_url, title, content, language, content_hash, fetched_at FROM pages WHERE url = $1`, url)
	var p pagestore.CachedPage
	if err := row.Scan(&p.URL, &p.SiteURL, &p.Title, &p.Content, &p.Language, &p.ContentHash, &p.FetchedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get page: %w", err)
	}
	return &p, nil
}

// StorePage implements pagestore.PageCache, upserting by URL.
func (s *Store) StorePage(ctx context.Context, page pagestore.CachedPage) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pages (url, site_url, title, content, language, content_hash, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (url) DO UPDATE SET
			site_url = EXCLUDED.site_url,
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			language = EXCLUDED.language,
			content_hash = EXCLUDED.content_hash,
			fetched_at = EXCLUDED.fetched_at
	`, page.URL, page.SiteURL, page.Title, page.Content, normalizeLanguage(page.Language), page.ContentHash, page.FetchedAt)
	if err != nil {
		return fmt.Errorf("store page: %w", err)
	}
	return nil
}

// GetPages implements pagestore.PageCache.
func (s *Store) GetPages(ctx context.Context, urls []string) ([]pagestore.CachedPage, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT url, site_url, title, content, language, content_hash, fetched_at FROM pages WHERE url = ANY($1)`, urls)
	if err != nil {
		return nil, fmt.Errorf("get pages: %w", err)
	}
	defer rows.Close()
	var out []pagestore.CachedPage
	for rows.Next() {
		var p pagestore.CachedPage
		if err := rows.Scan(&p.URL, &p.SiteURL, &p.Title, &p.Content, &p.Language, &p.ContentHash, &p.FetchedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPagesForSite implements pagestore.PageCache.
func (s *Store) GetPagesForSite(ctx context.Context, site string) ([]pagestore.CachedPage, error) {
	rows, err := s.pool.Query(ctx, `SELECT url, site_url, title, content, language, content_hash, fetched_at FROM pages WHERE site_url = $1`, site)
	if err != nil {
		return nil, fmt.Errorf("get pages for site: %w", err)
	}
	defer rows.Close()
	var out []pagestore.CachedPage
	for rows.Next() {
		var p pagestore.CachedPage
		if err := rows.Scan(&p.URL, &p.SiteURL, &p.Title, &p.Content, &p.Language, &p.ContentHash, &p.FetchedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetSummary implements pagestore.SummaryCache, returning nil when the
// content hash is stale.
func (s *Store) GetSummary(ctx context.Context, url string, contentHash string) (*pagestore.Summary, error) {
	row := s.pool.QueryRow(ctx, `SELECT content_hash, prompt_hash, summary_markdown, produced_at FROM summaries WHERE url = $1`, url)
	var sum pagestore.Summary
	sum.URL = url
	if err := row.Scan(&sum.ContentHash, &sum.PromptHash, &sum.SummaryMarkdown, &sum.ProducedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get summary: %w", err)
	}
	if sum.ContentHash != contentHash {
		return nil, nil
	}
	signals, err := s.loadSignals(ctx, url)
	if err != nil {
		return nil, err
	}
	sum.RecallSignals = signals
	return &sum, nil
}

func (s *Store) loadSignals(ctx context.Context, url string) ([]pagestore.Signal, error) {
	rows, err := s.pool.Query(ctx, `SELECT signal_type, value, subtype, confidence, context_snippet, tags FROM signals WHERE summary_url = $1`, url)
	if err != nil {
		return nil, fmt.Errorf("load signals: %w", err)
	}
	defer rows.Close()
	var out []pagestore.Signal
	for rows.Next() {
		var sig pagestore.Signal
		var subtype, snippet *string
		var confidence *float64
		var tags []string
		if err := rows.Scan(&sig.Type, &sig.Value, &subtype, &confidence, &snippet, &tags); err != nil {
			return nil, err
		}
		if subtype != nil {
			sig.Subtype = *subtype
		}
		if snippet != nil {
			sig.ContextSnippet = *snippet
		}
		if confidence != nil {
			sig.Confidence = *confidence
			sig.HasConfidence = true
		}
		sig.Tags = tags
		out = append(out, sig)
	}
	return out, rows.Err()
}

// StoreSummary implements pagestore.SummaryCache, upserting the summary row
// and replacing its signals child rows. It does not touch the embedding
// column; callers store the vector separately via StoreEmbedding, matching
// the teacher's strict CachedPage -> Summary -> Embedding write order.
func (s *Store) StoreSummary(ctx context.Context, summary pagestore.Summary) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store summary: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO summaries (url, content_hash, prompt_hash, summary_markdown, produced_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (url) DO UPDATE SET
			content_hash = EXCLUDED.content_hash,
			prompt_hash = EXCLUDED.prompt_hash,
			summary_markdown = EXCLUDED.summary_markdown,
			produced_at = EXCLUDED.produced_at,
			embedding = NULL,
			embedding_model = NULL
	`, summary.URL, summary.ContentHash, summary.PromptHash, summary.SummaryMarkdown, summary.ProducedAt)
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM signals WHERE summary_url = $1`, summary.URL); err != nil {
		return fmt.Errorf("clear signals: %w", err)
	}
	for _, sig := range summary.RecallSignals {
		var confidence interface{}
		if sig.HasConfidence {
			confidence = sig.Confidence
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO signals (summary_url, signal_type, value, subtype, confidence, context_snippet, tags)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, summary.URL, sig.Type, sig.Value, nullableString(sig.Subtype), confidence, nullableString(sig.ContextSnippet), sig.Tags)
		if err != nil {
			return fmt.Errorf("insert signal: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// StoreEmbedding implements pagestore.EmbeddingStore by attaching the vector
// to the existing summary row; the summary must already exist, preserving
// the CachedPage -> Summary -> Embedding write order.
func (s *Store) StoreEmbedding(ctx context.Context, url string, vector []float32, modelID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE summaries SET embedding = $1, embedding_model = $2 WHERE url = $3`,
		pgvector.NewVector(vector), modelID, url)
	if err != nil {
		return fmt.Errorf("store embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store embedding: no summary row for %s", url)
	}
	return nil
}

func filterSQL(filter *pagestore.QueryFilter, startArg int) (string, []interface{}) {
	if filter == nil {
		return "", nil
	}
	var clauses []string
	var args []interface{}
	n := startArg
	if len(filter.IncludeSites) > 0 {
		clauses = append(clauses, fmt.Sprintf("p.site_url = ANY($%d)", n))
		args = append(args, filter.IncludeSites)
		n++
	}
	if len(filter.ExcludeSites) > 0 {
		clauses = append(clauses, fmt.Sprintf("p.site_url <> ALL($%d)", n))
		args = append(args, filter.ExcludeSites)
		n++
	}
	if !filter.MinDate.IsZero() {
		clauses = append(clauses, fmt.Sprintf("p.fetched_at >= $%d", n))
		args = append(args, filter.MinDate)
		n++
	}
	if !filter.MaxDate.IsZero() {
		clauses = append(clauses, fmt.Sprintf("p.fetched_at <= $%d", n))
		args = append(args, filter.MaxDate)
		n++
	}
	if len(clauses) == 0 {
		return "", nil
	}
	out := ""
	for _, c := range clauses {
		out += " AND " + c
	}
	return out, args
}

// SearchSimilar implements pagestore.EmbeddingStore via pgvector cosine
// distance ordering against an ivfflat index.
func (s *Store) SearchSimilar(ctx context.Context, vector []float32, limit int, filter *pagestore.QueryFilter) ([]pagestore.PageRef, error) {
	if limit <= 0 {
		limit = 10
	}
	extra, extraArgs := filterSQL(filter, 3)
	q := fmt.Sprintf(`
		SELECT s.url, 1 - (s.embedding <=> $1) AS score
		FROM summaries s
		JOIN pages p ON p.url = s.url
		WHERE s.embedding IS NOT NULL %s
		ORDER BY s.embedding <=> $1
		LIMIT $2
	`, extra)
	args := append([]interface{}{pgvector.NewVector(vector), limit}, extraArgs...)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()
	var out []pagestore.PageRef
	for rows.Next() {
		var url string
		var score float64
		if err := rows.Scan(&url, &score); err != nil {
			return nil, err
		}
		out = append(out, pagestore.PageRef{URL: url, Score: score})
	}
	return out, rows.Err()
}

// SearchLexical implements pagestore.EmbeddingStore via ts_rank over the
// trigger-maintained tsvector column. The tsquery is built per row using
// that row's own page.language (via safe_regconfig), the same configuration
// the trigger used to build ts_summary, so a stemmed match like "niño" ->
// "niños" only fires for rows actually tagged with the matching language
// (spec §4.1, §6).
func (s *Store) SearchLexical(ctx context.Context, queryText string, limit int, filter *pagestore.QueryFilter) ([]pagestore.PageRef, error) {
	if limit <= 0 {
		limit = 10
	}
	extra, extraArgs := filterSQL(filter, 3)
	q := fmt.Sprintf(`
		SELECT s.url, ts_rank(s.ts_summary, websearch_to_tsquery(safe_regconfig(p.language), $1)) AS score
		FROM summaries s
		JOIN pages p ON p.url = s.url
		WHERE s.ts_summary @@ websearch_to_tsquery(safe_regconfig(p.language), $1) %s
		ORDER BY score DESC
		LIMIT $2
	`, extra)
	args := append([]interface{}{queryText, limit}, extraArgs...)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()
	var out []pagestore.PageRef
	for rows.Next() {
		var url string
		var score float64
		if err := rows.Scan(&url, &score); err != nil {
			return nil, err
		}
		out = append(out, pagestore.PageRef{URL: url, Score: score})
	}
	return out, rows.Err()
}

// SearchHybrid implements pagestore.EmbeddingStore via Reciprocal Rank
// Fusion of the vector and lexical rankings (spec §4.1), matching the
// in-memory and embedded backends exactly so callers see consistent fusion
// semantics across backends.
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
