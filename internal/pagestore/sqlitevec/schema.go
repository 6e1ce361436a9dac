package sqlitevec

import "fmt"

// schemaSQL returns the DDL for the embedded single-file backend. embeddingDim
// sizes the vec0 virtual table, matching the teacher pack's sqlite-vec usage.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS pages (
    url TEXT PRIMARY KEY,
    site_url TEXT NOT NULL,
    title TEXT,
    content TEXT NOT NULL,
    language TEXT NOT NULL DEFAULT 'english',
    content_hash TEXT NOT NULL,
    fetched_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS summaries (
    url TEXT PRIMARY KEY REFERENCES pages(url) ON DELETE CASCADE,
    content_hash TEXT NOT NULL,
    prompt_hash TEXT NOT NULL,
    summary_markdown TEXT NOT NULL,
    produced_at INTEGER NOT NULL
);

-- Normalized signals child table: one row per recall signal (spec §6).
CREATE TABLE IF NOT EXISTS signals (
    summary_url TEXT NOT NULL REFERENCES summaries(url) ON DELETE CASCADE,
    signal_type TEXT NOT NULL,
    value TEXT NOT NULL,
    subtype TEXT,
    confidence REAL,
    context_snippet TEXT,
    tags TEXT -- JSON array
);
CREATE INDEX IF NOT EXISTS idx_signals_url ON signals(summary_url);
CREATE INDEX IF NOT EXISTS idx_signals_type ON signals(signal_type);

-- Vector embeddings via sqlite-vec, one row per URL (rowid keyed off pages.rowid).
CREATE VIRTUAL TABLE IF NOT EXISTS vec_pages USING vec0(
    url TEXT PRIMARY KEY,
    embedding float[%d]
);

CREATE TABLE IF NOT EXISTS embedding_meta (
    url TEXT PRIMARY KEY,
    model_id TEXT NOT NULL
);

-- Full-text search via two language-bucketed FTS5 tables: FTS5 fixes its
-- tokenizer per virtual table, not per row, so a single table cannot
-- "switch" tokenizer by the page's language column. pages_fts_spanish folds
-- diacritics and is fed suffix-stemmed content by the Go write path
-- (store.go's stemSpanish), since FTS5 ships no Spanish stemmer.
-- pages_fts_english deliberately does not use the porter stemmer: Porter's
-- step 1a strips a bare trailing "s" from any word regardless of language,
-- which would make an English-tagged "niños" collapse to the same token as
-- the Spanish stem and defeat the per-language fallback (spec §4.1, §6).
-- Rows are routed to exactly one bucket by the application, not by a
-- declarative trigger, because routing depends on
-- normalizeLanguage(page.language) and on pre-stemming content in Go
-- before it reaches SQLite.
CREATE VIRTUAL TABLE IF NOT EXISTS pages_fts_english USING fts5(
    url UNINDEXED,
    content,
    title,
    tokenize='unicode61'
);

CREATE VIRTUAL TABLE IF NOT EXISTS pages_fts_spanish USING fts5(
    url UNINDEXED,
    content,
    title,
    tokenize='unicode61 remove_diacritics 2'
);

-- Optional persistence tables for auditability (spec §6), purely observational.
CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    query TEXT NOT NULL,
    query_hash TEXT NOT NULL,
    strategy TEXT NOT NULL,
    grounding TEXT,
    has_gaps INTEGER NOT NULL DEFAULT 0,
    tokens_used INTEGER NOT NULL DEFAULT 0,
    started_at INTEGER NOT NULL,
    completed_at INTEGER
);

CREATE TABLE IF NOT EXISTS gaps (
    id TEXT PRIMARY KEY,
    job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
    parent_gap_id TEXT,
    depth INTEGER NOT NULL DEFAULT 0,
    field TEXT NOT NULL,
    query TEXT NOT NULL,
    gap_type TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    expires_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_gaps_job ON gaps(job_id);

CREATE TABLE IF NOT EXISTS investigation_logs (
    id INTEGER PRIMARY KEY,
    job_id TEXT NOT NULL,
    step_kind TEXT NOT NULL,
    detail TEXT,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS gap_cache (
    gap_id TEXT PRIMARY KEY,
    resolved_urls TEXT,
    updated_at INTEGER NOT NULL
);
`, embeddingDim)
}
