// Package analyzer turns text chunks into summaries, key information and
// topics using an LLM backend.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgallion1/docjudge/internal/llm"
	"github.com/dgallion1/docjudge/internal/model"
	"golang.org/x/sync/errgroup"
)

// Key-info error markers.
const (
	ErrInvalidJSON  = "INVALID_JSON"
	ErrBackendError = "BACKEND_ERROR"
)

// Options tune an Analyzer.
type Options struct {
	Concurrency int // chunks analyzed in parallel; <= 1 is sequential
	// SummaryTemplate and KeyInfoTemplate override the built-in prompts.
	SummaryTemplate string
	KeyInfoTemplate string
}

// Analyzer issues the summary and key-info calls for each chunk.
type Analyzer struct {
	backend llm.Backend
	log     *slog.Logger
	opts    Options
}

func New(backend llm.Backend, log *slog.Logger, opts Options) *Analyzer {
	if log == nil {
		log = slog.Default()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.SummaryTemplate == "" {
		opts.SummaryTemplate = SummaryPrompt
	}
	if opts.KeyInfoTemplate == "" {
		opts.KeyInfoTemplate = KeyInfoPrompt
	}
	return &Analyzer{backend: backend, log: log, opts: opts}
}

// Analyze runs both prompts for one chunk. A backend failure degrades the
// result instead of failing; only context cancellation returns an error.
func (a *Analyzer) Analyze(ctx context.Context, chunk model.Chunk) (model.ChunkResult, error) {
	res := model.ChunkResult{ChunkID: chunk.ID, Text: chunk.Text}

	summaryRaw, sumErr := a.backend.Chat(ctx, Fill(a.opts.SummaryTemplate, chunk.Text))
	if sumErr != nil && ctx.Err() != nil {
		return res, ctx.Err()
	}
	keyRaw, keyErr := a.backend.Chat(ctx, Fill(a.opts.KeyInfoTemplate, chunk.Text))
	if keyErr != nil && ctx.Err() != nil {
		return res, ctx.Err()
	}

	var summaryTopics []string
	if sumErr != nil {
		a.log.Warn("summary call failed", "chunk_id", chunk.ID, "error", sumErr)
		res.Degraded = true
	} else {
		res.Summary, summaryTopics = ParseSummary(summaryRaw)
	}

	if keyErr != nil {
		a.log.Warn("key info call failed", "chunk_id", chunk.ID, "error", keyErr)
		res.Degraded = true
		res.KeyInfo = map[string]any{"error": ErrBackendError, "message": keyErr.Error()}
	} else {
		res.KeyInfo = ParseKeyInfo(keyRaw)
	}

	res.Topics = DeriveTopics(res.KeyInfo, summaryTopics)
	return res, nil
}

// AnalyzeAll analyzes chunks with bounded concurrency. Results are ordered by
// chunk ID regardless of completion order. onDone, if set, is called once
// per finished chunk and must be safe for concurrent use.
func (a *Analyzer) AnalyzeAll(ctx context.Context, chunks []model.Chunk, onDone func(model.ChunkResult)) ([]model.ChunkResult, error) {
	results := make([]model.ChunkResult, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Concurrency)
	for i, c := range chunks {
		g.Go(func() error {
			r, err := a.Analyze(gctx, c)
			if err != nil {
				return err
			}
			results[i] = r
			if onDone != nil {
				onDone(r)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ParseSummary reads a summary response. A JSON object yields its "summary"
// field (the cleaned text when absent) and "topics" list; anything else is
// taken as a plain-text summary with no topics.
func ParseSummary(raw string) (string, []string) {
	d := llm.DecodeJSON(raw)
	obj, ok := d.Object()
	if !ok {
		return d.Cleaned, nil
	}
	summary := d.Cleaned
	if s, ok := obj["summary"]; ok && s != nil {
		summary = textOf(s)
	}
	return summary, StringList(obj["topics"])
}

// ParseKeyInfo reads a key-info response. Anything but a JSON object is
// recorded as {"error": "INVALID_JSON", "raw": cleaned}.
func ParseKeyInfo(raw string) map[string]any {
	d := llm.DecodeJSON(raw)
	if obj, ok := d.Object(); ok {
		return obj
	}
	return map[string]any{"error": ErrInvalidJSON, "raw": d.Cleaned}
}

// DeriveTopics unions key-info entities and facts with the summary topics,
// deduplicated in first-seen order. No case folding is applied.
func DeriveTopics(keyInfo map[string]any, summaryTopics []string) []string {
	var all []string
	all = append(all, StringList(keyInfo["entities"])...)
	all = append(all, StringList(keyInfo["facts"])...)
	all = append(all, summaryTopics...)
	return Dedupe(all)
}

// StringList coerces a JSON value into strings: list items are converted
// one by one, a lone string becomes a one-item list, blanks are dropped.
func StringList(v any) []string {
	var items []any
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		items = t
	case []string:
		for _, s := range t {
			items = append(items, s)
		}
	default:
		items = []any{t}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s := strings.TrimSpace(textOf(it)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Dedupe drops repeated strings, keeping the first occurrence.
func Dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func textOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64, bool:
		return fmt.Sprint(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
