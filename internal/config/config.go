// Package config loads settings from defaults, an optional YAML file and
// DOCJUDGE_* environment variables.
package config

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dgallion1/docjudge/internal/chunker"
	"github.com/dgallion1/docjudge/internal/llm"
	"github.com/dgallion1/docjudge/internal/ocr"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. DOCJUDGE_CHUNK_SIZE.
const EnvPrefix = "DOCJUDGE"

type Config struct {
	Port           int    `mapstructure:"port"`
	APIKey         string `mapstructure:"api_key"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
	ContextPath    string `mapstructure:"context_path"`

	Chunk     ChunkConfig     `mapstructure:"chunk"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	OCR       OCRConfig       `mapstructure:"ocr"`
	PDF       PDFConfig       `mapstructure:"pdf"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Ollama    OllamaConfig    `mapstructure:"ollama"`
	HF        HFConfig        `mapstructure:"hf"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Store     StoreConfig     `mapstructure:"store"`
	Workers   WorkersConfig   `mapstructure:"workers"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Log       LogConfig       `mapstructure:"log"`
}

type ChunkConfig struct {
	Size    int `mapstructure:"size"`
	Overlap int `mapstructure:"overlap"`
}

type AnalysisConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

type OCRConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Pdftoppm  string `mapstructure:"pdftoppm"`
	Tesseract string `mapstructure:"tesseract"`
	Lang      string `mapstructure:"lang"`
	DPI       int    `mapstructure:"dpi"`
}

type PDFConfig struct {
	FallbackPdftotext bool `mapstructure:"fallback_pdftotext"`
}

type BackendConfig struct {
	Provider   string        `mapstructure:"provider"`
	Model      string        `mapstructure:"model"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RatePerSec float64       `mapstructure:"rate_per_sec"`
	Burst      int           `mapstructure:"burst"`
}

type OllamaConfig struct {
	URL string `mapstructure:"url"`
}

type HFConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

type AnthropicConfig struct {
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	MaxTokens int64  `mapstructure:"max_tokens"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type WorkersConfig struct {
	Count     int `mapstructure:"count"`
	QueueSize int `mapstructure:"queue_size"`
}

type JobsConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var defaults = map[string]any{
	"port":                   8090,
	"api_key":                "",
	"max_upload_bytes":       int64(52428800), // 50MB
	"context_path":           "context.md",
	"chunk.size":             1000,
	"chunk.overlap":          200,
	"analysis.concurrency":   1,
	"ocr.enabled":            true,
	"ocr.pdftoppm":           "pdftoppm",
	"ocr.tesseract":          "tesseract",
	"ocr.lang":               "eng",
	"ocr.dpi":                300,
	"pdf.fallback_pdftotext": true,
	"backend.provider":       "ollama",
	"backend.model":          "gemma3",
	"backend.timeout":        "120s",
	"backend.max_retries":    3,
	"backend.rate_per_sec":   0.0,
	"backend.burst":          1,
	"ollama.url":             llm.DefaultOllamaURL,
	"hf.api_key":             "",
	"hf.base_url":            llm.DefaultHFBaseURL,
	"anthropic.api_key":      "",
	"anthropic.base_url":     "",
	"anthropic.max_tokens":   1024,
	"store.path":             "",
	"workers.count":          2,
	"workers.queue_size":     100,
	"jobs.ttl":               "1h",
	"log.level":              "info",
	"log.format":             "json",
}

// Load reads configuration. An explicit path must exist; otherwise
// docjudge.yaml in the working directory is used when present. Every key
// can be overridden by DOCJUDGE_<KEY> with dots replaced by underscores.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("docjudge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a default so Unmarshal sees env-only overrides.
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

// Validate checks the settings that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if err := c.ChunkConfig().Validate(); err != nil {
		return err
	}
	if c.Analysis.Concurrency < 1 {
		return eris.Errorf("config: analysis.concurrency must be >= 1, got %d", c.Analysis.Concurrency)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return eris.Errorf("config: port %d out of range", c.Port)
	}
	if c.MaxUploadBytes <= 0 {
		return eris.Errorf("config: max_upload_bytes must be positive")
	}
	if c.Backend.MaxRetries < 0 {
		return eris.Errorf("config: backend.max_retries must be >= 0")
	}
	if c.Workers.Count < 1 || c.Workers.QueueSize < 1 {
		return eris.Errorf("config: workers.count and workers.queue_size must be >= 1")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return eris.Errorf("config: log.format must be json or text, got %q", c.Log.Format)
	}
	return nil
}

// ChunkConfig returns the chunker settings.
func (c *Config) ChunkConfig() chunker.Config {
	return chunker.Config{ChunkSize: c.Chunk.Size, ChunkOverlap: c.Chunk.Overlap}
}

// BackendSpec returns the configured default provider and model.
func (c *Config) BackendSpec() llm.Spec {
	return llm.Spec{Provider: c.Backend.Provider, Model: c.Backend.Model}
}

// LLMSettings returns provider endpoints and credentials.
func (c *Config) LLMSettings() llm.Settings {
	return llm.Settings{
		OllamaURL:          c.Ollama.URL,
		HFBaseURL:          c.HF.BaseURL,
		HFAPIKey:           c.HF.APIKey,
		AnthropicAPIKey:    c.Anthropic.APIKey,
		AnthropicBaseURL:   c.Anthropic.BaseURL,
		AnthropicMaxTokens: c.Anthropic.MaxTokens,
		HTTPTimeout:        c.Backend.Timeout,
	}
}

// ResilientOptions returns the per-call policy for backends.
func (c *Config) ResilientOptions(stats *llm.Stats, log *slog.Logger) llm.ResilientOptions {
	return llm.ResilientOptions{
		Timeout:       c.Backend.Timeout,
		MaxRetries:    c.Backend.MaxRetries,
		RatePerSecond: c.Backend.RatePerSec,
		Burst:         c.Backend.Burst,
		Stats:         stats,
		Log:           log,
	}
}

// OCREngine builds the OCR engine, or nil when OCR is disabled.
func (c *Config) OCREngine(log *slog.Logger) *ocr.Engine {
	if !c.OCR.Enabled {
		return nil
	}
	return ocr.NewEngine(ocr.Config{
		Pdftoppm:  c.OCR.Pdftoppm,
		Tesseract: c.OCR.Tesseract,
		Lang:      c.OCR.Lang,
		DPI:       c.OCR.DPI,
	}, nil, log)
}

// NewLogger builds the slog logger described by cfg.
func NewLogger(cfg LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, eris.Wrapf(err, "config: parse log level %q", cfg.Level)
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}
