// Command extractorctl is a minimal CLI demonstrating the Index façade: it
// ingests a set of URLs (or crawls from one or more roots) and then runs a
// single extraction query against the resulting store. Grounded on the
// teacher's cmd/goresearch/main.go flag wiring, zerolog setup, and
// exit-code-policy pattern.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/fourthplaces/extractor/internal/ai"
	"github.com/fourthplaces/extractor/internal/cache"
	"github.com/fourthplaces/extractor/internal/extractor"
	"github.com/fourthplaces/extractor/internal/index"
	"github.com/fourthplaces/extractor/internal/ingest"
	"github.com/fourthplaces/extractor/internal/orchestrator"
	"github.com/fourthplaces/extractor/internal/pagestore/memory"
)

// errNoExtractions is returned when a query yields zero Extractions, mapped
// to a non-zero exit code the way the teacher maps ErrNoUsableSources.
var errNoExtractions = fmt.Errorf("no extractions produced")

const (
	defaultMaxDepth = 2
	defaultLimit    = 50
	defaultCacheDir = ".extractor-cache"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		configPath    string
		urlsCSV       string
		rootsCSV      string
		maxDepth      int
		limit         int
		query         string
		llmBaseURL    string
		llmModel      string
		llmEmbedding  string
		llmKey        string
		cacheDir      string
		strictMode    bool
		outputPDF     string
		verbose       bool
		cacheGC       bool
		cacheClear    bool
		cacheMaxAge   time.Duration
		cacheMaxBytes int64
		cacheMaxCount int
	)

	flag.StringVar(&configPath, "config", "", "Optional YAML/JSON config file supplying defaults for unset flags")
	flag.StringVar(&urlsCSV, "urls", "", "Comma-separated URLs to fetch directly (fetch_specific)")
	flag.StringVar(&rootsCSV, "roots", "", "Comma-separated root URLs to crawl (discover)")
	flag.IntVar(&maxDepth, "max-depth", defaultMaxDepth, "Crawl depth when using -roots")
	flag.IntVar(&limit, "limit", defaultLimit, "Maximum pages to ingest when using -roots")
	flag.StringVar(&query, "query", "", "Extraction query to run after ingest")
	flag.StringVar(&llmBaseURL, "llm.base", os.Getenv("LLM_BASE_URL"), "OpenAI-compatible base URL")
	flag.StringVar(&llmModel, "llm.model", os.Getenv("LLM_MODEL"), "Chat model name")
	flag.StringVar(&llmEmbedding, "llm.embedding-model", os.Getenv("LLM_EMBEDDING_MODEL"), "Embedding model name")
	flag.StringVar(&llmKey, "llm.key", os.Getenv("LLM_API_KEY"), "API key for the OpenAI-compatible server")
	flag.StringVar(&cacheDir, "cache.dir", defaultCacheDir, "Cache directory shared by the prompt cache and the HTTP fetch cache")
	flag.BoolVar(&strictMode, "strict", true, "Drop Inferred claims and report them as gaps")
	flag.StringVar(&outputPDF, "output.pdf", "", "Optional path to render the first Extraction as a PDF")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.BoolVar(&cacheGC, "cache.gc", false, "Run cache maintenance (age/size eviction) before ingest and exit if no -urls/-roots/-query given")
	flag.BoolVar(&cacheClear, "cache.clear", false, "Wipe -cache.dir before anything else runs")
	flag.DurationVar(&cacheMaxAge, "cache.max-age", 30*24*time.Hour, "Evict cache entries older than this with -cache.gc")
	flag.Int64Var(&cacheMaxBytes, "cache.max-bytes", 0, "Evict oldest cache entries once -cache.dir exceeds this size with -cache.gc (0 disables)")
	flag.IntVar(&cacheMaxCount, "cache.max-count", 0, "Evict oldest cache entries once entry count exceeds this with -cache.gc (0 disables)")
	flag.Parse()

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg := runConfig{
		urls:          splitCSV(urlsCSV),
		roots:         splitCSV(rootsCSV),
		maxDepth:      maxDepth,
		limit:         limit,
		query:         query,
		llmBaseURL:    llmBaseURL,
		llmModel:      llmModel,
		llmEmbedding:  llmEmbedding,
		llmKey:        llmKey,
		cacheDir:      cacheDir,
		strictMode:    strictMode,
		outputPDF:     outputPDF,
		cacheGC:       cacheGC,
		cacheClear:    cacheClear,
		cacheMaxAge:   cacheMaxAge,
		cacheMaxBytes: cacheMaxBytes,
		cacheMaxCount: cacheMaxCount,
	}
	if configPath != "" {
		fc, err := loadConfigFile(configPath)
		if err != nil {
			log.Error().Err(err).Str("path", configPath).Msg("load config file")
			os.Exit(1)
		}
		applyFileConfig(&cfg, fc)
	}

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("run failed")
		if errors.Is(err, errNoExtractions) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type runConfig struct {
	urls, roots          []string
	maxDepth, limit      int
	query                string
	llmBaseURL, llmModel string
	llmEmbedding, llmKey string
	cacheDir             string
	strictMode           bool
	outputPDF            string
	cacheGC              bool
	cacheClear           bool
	cacheMaxAge          time.Duration
	cacheMaxBytes        int64
	cacheMaxCount        int
}

func run(cfg runConfig) error {
	ctx := context.Background()

	if cfg.cacheClear {
		if err := cache.ClearDir(cfg.cacheDir); err != nil {
			return fmt.Errorf("clear cache dir: %w", err)
		}
		log.Info().Str("dir", cfg.cacheDir).Msg("cache cleared")
	}
	if cfg.cacheGC {
		if err := runCacheGC(cfg); err != nil {
			return fmt.Errorf("cache gc: %w", err)
		}
		if len(cfg.urls) == 0 && len(cfg.roots) == 0 && cfg.query == "" {
			return nil
		}
	}

	store := memory.New()
	provider := newProvider(cfg)
	ix := index.New(store, provider)

	ingestor := newIngestor(cfg)

	if len(cfg.urls) > 0 {
		result, err := ix.IngestURLs(ctx, cfg.urls, ingestor)
		if err != nil {
			return fmt.Errorf("ingest urls: %w", err)
		}
		logIngestResult(result)
	}
	if len(cfg.roots) > 0 {
		result, err := ix.Ingest(ctx, ingest.DiscoverConfig{
			Roots:    cfg.roots,
			MaxDepth: cfg.maxDepth,
			Limit:    cfg.limit,
		}, ingestor)
		if err != nil {
			return fmt.Errorf("ingest discover: %w", err)
		}
		logIngestResult(result)
	}

	if cfg.query == "" {
		return nil
	}

	strict := cfg.strictMode
	extractions, err := ix.Extract(ctx, cfg.query, nil, index.ExtractionConfig{StrictMode: &strict})
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	if len(extractions) == 0 {
		return errNoExtractions
	}
	for i, e := range extractions {
		log.Info().Int("bucket", i).Str("grounding", groundingLabel(e.Grounding)).
			Str("status", statusLabel(e.Status)).Int("gaps", len(e.Gaps)).
			Int("sources", len(e.Sources)).Msg("extraction")
		fmt.Println(e.Content)
	}
	if cfg.outputPDF != "" {
		if err := extractor.RenderPDF(extractions[0], cfg.outputPDF); err != nil {
			return fmt.Errorf("render pdf: %w", err)
		}
		log.Info().Str("path", cfg.outputPDF).Msg("wrote pdf")
	}
	return nil
}

// runCacheGC evicts stale and oversized cache entries in both the HTTP
// fetch cache and the prompt cache before a run touches them, since they
// share one directory tree (cache.dir) but distinct file layouts.
func runCacheGC(cfg runConfig) error {
	httpAged, err := cache.PurgeHTTPCacheByAge(cfg.cacheDir, cfg.cacheMaxAge)
	if err != nil {
		return fmt.Errorf("purge http cache by age: %w", err)
	}
	promptAged, err := cache.PurgePromptCacheByAge(cfg.cacheDir, cfg.cacheMaxAge)
	if err != nil {
		return fmt.Errorf("purge prompt cache by age: %w", err)
	}
	httpEvicted, err := cache.EnforceHTTPCacheLimits(cfg.cacheDir, cfg.cacheMaxBytes, cfg.cacheMaxCount)
	if err != nil {
		return fmt.Errorf("enforce http cache limits: %w", err)
	}
	promptEvicted, err := cache.EnforcePromptCacheLimits(cfg.cacheDir, cfg.cacheMaxBytes, cfg.cacheMaxCount)
	if err != nil {
		return fmt.Errorf("enforce prompt cache limits: %w", err)
	}
	log.Info().Int("http_aged_out", httpAged).Int("prompt_aged_out", promptAged).
		Int("http_evicted", httpEvicted).Int("prompt_evicted", promptEvicted).Msg("cache gc")
	return nil
}

func newProvider(cfg runConfig) ai.AI {
	transportCfg := openai.DefaultConfig(cfg.llmKey)
	if cfg.llmBaseURL != "" {
		transportCfg.BaseURL = cfg.llmBaseURL
	}
	client := openai.NewClientWithConfig(transportCfg)
	return &ai.OpenAIProvider{
		Client:         client,
		ChatModel:      cfg.llmModel,
		EmbeddingModel: cfg.llmEmbedding,
		Cache:          &ai.PromptCache{Dir: cfg.cacheDir},
		Verbose:        zerolog.GlobalLevel() <= zerolog.DebugLevel,
	}
}

func newIngestor(cfg runConfig) ingest.Ingestor {
	httpCache := &cache.HTTPCache{Dir: cfg.cacheDir}
	httpIngestor := ingest.NewHTTPIngestor("extractorctl/1.0", httpCache, 8)
	return ingest.NewValidatedIngestor(httpIngestor, nil)
}

func logIngestResult(result orchestrator.Result) {
	log.Info().Str("run_id", result.RunID).Int("discovered", result.Discovered).Int("stored", result.Stored).
		Int("summarized", result.Summarized).Int("embedded", result.Embedded).
		Int("failures", len(result.Failures)).Msg("ingest")
	for _, f := range result.Failures {
		log.Warn().Str("url", f.URL).Err(f.Err).Msg("ingest failure")
	}
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func groundingLabel(g ai.Grounding) string {
	switch g {
	case ai.Verified:
		return "Verified"
	case ai.SingleSource:
		return "SingleSource"
	case ai.Conflicted:
		return "Conflicted"
	default:
		return "Inferred"
	}
}

func statusLabel(s ai.Status) string {
	switch s {
	case ai.Found:
		return "Found"
	case ai.Partial:
		return "Partial"
	case ai.Missing:
		return "Missing"
	default:
		return "Contradictory"
	}
}
