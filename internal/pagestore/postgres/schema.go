package postgres

import "fmt"

// migrateSQL returns the DDL for the production Page Store backend, adapting
// the pgvector/tsvector/ivfflat pattern to pages, summaries and signals
// instead of source-code chunks.
func migrateSQL(embeddingDim int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;
CREATE EXTENSION IF NOT EXISTS pg_trgm;

CREATE TABLE IF NOT EXISTS pages (
  url           TEXT PRIMARY KEY,
  site_url      TEXT NOT NULL,
  title         TEXT,
  content       TEXT NOT NULL,
  language      TEXT NOT NULL DEFAULT 'english',
  content_hash  TEXT NOT NULL,
  fetched_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS summaries (
  url               TEXT PRIMARY KEY REFERENCES pages(url) ON DELETE CASCADE,
  content_hash      TEXT NOT NULL,
  prompt_hash       TEXT NOT NULL,
  summary_markdown  TEXT NOT NULL,
  produced_at       TIMESTAMPTZ NOT NULL,
  embedding         vector(%d),
  embedding_model   TEXT,
  ts_summary        tsvector
);

-- safe_regconfig resolves a page's language tag to a text search
-- configuration, falling back to 'english' for anything unknown so a typo'd
-- or foreign language tag never breaks indexing (spec §4.1/§6).
CREATE OR REPLACE FUNCTION safe_regconfig(lang TEXT) RETURNS regconfig AS $$
BEGIN
  RETURN lower(coalesce(nullif(lang, ''), 'english'))::regconfig;
EXCEPTION WHEN OTHERS THEN
  RETURN 'english'::regconfig;
END;
$$ LANGUAGE plpgsql IMMUTABLE;

-- summaries_ts_summary_trigger maintains ts_summary on write, consulting the
-- owning page's language column (spec §6: "a full-text search column
-- maintained by a write-side trigger that consults language with fallback
-- to english").
CREATE OR REPLACE FUNCTION summaries_ts_summary_trigger() RETURNS trigger AS $$
DECLARE
  page_language TEXT;
BEGIN
  SELECT language INTO page_language FROM pages WHERE url = NEW.url;
  NEW.ts_summary := to_tsvector(safe_regconfig(page_language), coalesce(NEW.summary_markdown, ''));
  RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS summaries_ts_summary_update ON summaries;
CREATE TRIGGER summaries_ts_summary_update
  BEFORE INSERT OR UPDATE ON summaries
  FOR EACH ROW EXECUTE FUNCTION summaries_ts_summary_trigger();

CREATE INDEX IF NOT EXISTS summaries_ts_summary_gin
  ON summaries USING GIN (ts_summary);

CREATE INDEX IF NOT EXISTS summaries_embedding_ivfflat
  ON summaries USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);

CREATE TABLE IF NOT EXISTS signals (
  id               BIGSERIAL PRIMARY KEY,
  summary_url      TEXT NOT NULL REFERENCES summaries(url) ON DELETE CASCADE,
  signal_type      TEXT NOT NULL,
  value            TEXT NOT NULL,
  subtype          TEXT,
  confidence       DOUBLE PRECISION,
  context_snippet  TEXT,
  tags             TEXT[]
);
CREATE INDEX IF NOT EXISTS signals_summary_url_idx ON signals(summary_url);
CREATE INDEX IF NOT EXISTS signals_type_idx ON signals(signal_type);

CREATE TABLE IF NOT EXISTS jobs (
  id            TEXT PRIMARY KEY,
  query         TEXT NOT NULL,
  query_hash    TEXT NOT NULL,
  strategy      TEXT NOT NULL,
  grounding     TEXT,
  has_gaps      BOOLEAN NOT NULL DEFAULT FALSE,
  tokens_used   BIGINT NOT NULL DEFAULT 0,
  started_at    TIMESTAMPTZ NOT NULL,
  completed_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS gaps (
  id             TEXT PRIMARY KEY,
  job_id         TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
  parent_gap_id  TEXT,
  depth          INT NOT NULL DEFAULT 0,
  field          TEXT NOT NULL,
  query          TEXT NOT NULL,
  gap_type       TEXT NOT NULL,
  status         TEXT NOT NULL DEFAULT 'pending',
  expires_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS gaps_job_idx ON gaps(job_id);
`, embeddingDim)
}
