package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	yaml "gopkg.in/yaml.v3"
)

// fileConfig is the single-file configuration schema for extractorctl,
// grounded on the teacher's FileConfig: a YAML/JSON document whose values
// fill in defaults for fields flags did not set.
type fileConfig struct {
	URLs  []string `yaml:"urls" json:"urls"`
	Roots []string `yaml:"roots" json:"roots"`
	Query string   `yaml:"query" json:"query"`

	Crawl struct {
		MaxDepth int `yaml:"maxDepth" json:"maxDepth"`
		Limit    int `yaml:"limit" json:"limit"`
	} `yaml:"crawl" json:"crawl"`

	LLM struct {
		BaseURL        string `yaml:"base" json:"base"`
		Model          string `yaml:"model" json:"model"`
		EmbeddingModel string `yaml:"embeddingModel" json:"embeddingModel"`
		APIKey         string `yaml:"key" json:"key"`
	} `yaml:"llm" json:"llm"`

	Cache struct {
		Dir string `yaml:"dir" json:"dir"`
	} `yaml:"cache" json:"cache"`

	Strict    *bool  `yaml:"strict" json:"strict"`
	OutputPDF string `yaml:"outputPDF" json:"outputPDF"`
}

// loadConfigFile reads YAML or JSON into fileConfig, choosing the format by
// extension and falling back to trying both for an unrecognized one.
func loadConfigFile(path string) (fileConfig, error) {
	var fc fileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// applyFileConfig overlays fc into cfg for any field flags left at its zero
// or default value; a flag set to anything else always wins. A flag set
// explicitly to its default value cannot be told apart from an unset one,
// so the file value applies to it too.
func applyFileConfig(cfg *runConfig, fc fileConfig) {
	if len(cfg.urls) == 0 && len(fc.URLs) > 0 {
		cfg.urls = fc.URLs
	}
	if len(cfg.roots) == 0 && len(fc.Roots) > 0 {
		cfg.roots = fc.Roots
	}
	if cfg.query == "" && fc.Query != "" {
		cfg.query = fc.Query
	}
	if cfg.maxDepth == defaultMaxDepth && fc.Crawl.MaxDepth > 0 {
		cfg.maxDepth = fc.Crawl.MaxDepth
	}
	if cfg.limit == defaultLimit && fc.Crawl.Limit > 0 {
		cfg.limit = fc.Crawl.Limit
	}
	if cfg.llmBaseURL == "" && fc.LLM.BaseURL != "" {
		cfg.llmBaseURL = fc.LLM.BaseURL
	}
	if cfg.llmModel == "" && fc.LLM.Model != "" {
		cfg.llmModel = fc.LLM.Model
	}
	if cfg.llmEmbedding == "" && fc.LLM.EmbeddingModel != "" {
		cfg.llmEmbedding = fc.LLM.EmbeddingModel
	}
	if cfg.llmKey == "" && fc.LLM.APIKey != "" {
		cfg.llmKey = fc.LLM.APIKey
	}
	if cfg.cacheDir == defaultCacheDir && fc.Cache.Dir != "" {
		cfg.cacheDir = fc.Cache.Dir
	}
	if cfg.strictMode && fc.Strict != nil {
		cfg.strictMode = *fc.Strict
	}
	if cfg.outputPDF == "" && fc.OutputPDF != "" {
		cfg.outputPDF = fc.OutputPDF
	}
}
