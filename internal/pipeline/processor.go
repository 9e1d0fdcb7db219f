// Package pipeline runs documents through extraction, chunk analysis,
// scoring and synthesis, synchronously or on a worker queue.
package pipeline

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/docjudge/internal/analyzer"
	"github.com/dgallion1/docjudge/internal/chunker"
	"github.com/dgallion1/docjudge/internal/contextrules"
	"github.com/dgallion1/docjudge/internal/decision"
	"github.com/dgallion1/docjudge/internal/llm"
	"github.com/dgallion1/docjudge/internal/model"
	"github.com/dgallion1/docjudge/internal/ocr"
	"github.com/dgallion1/docjudge/internal/parser"
	"github.com/dgallion1/docjudge/internal/preprocess"
	"github.com/dgallion1/docjudge/internal/reasoner"
	"github.com/dgallion1/docjudge/internal/store"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// ErrBackendFailed is returned when no backend call of a run succeeded.
var ErrBackendFailed = eris.New("all backend calls failed")

// Observer receives progress events from a run. ChunkDone may be called
// concurrently when analysis runs in parallel.
type Observer interface {
	Stage(status JobStatus)
	ChunkTotal(n int)
	ChunkDone(r model.ChunkResult)
}

type nopObserver struct{}

func (nopObserver) Stage(JobStatus)             {}
func (nopObserver) ChunkTotal(int)              {}
func (nopObserver) ChunkDone(model.ChunkResult) {}

// Options configure a Processor.
type Options struct {
	Chunk             chunker.Config
	Concurrency       int
	UseOCR            bool        // default for ProcessDocument
	OCR               *ocr.Engine // nil disables OCR
	FallbackPdftotext bool
	Backend           llm.Backend       // used when a request names none
	Store             *store.JSONLStore // nil skips persistence
	Log               *slog.Logger
}

// Processor runs the document pipeline. It is safe for concurrent use.
type Processor struct {
	opts Options
	log  *slog.Logger
}

func NewProcessor(opts Options) (*Processor, error) {
	if opts.Chunk == (chunker.Config{}) {
		opts.Chunk = chunker.DefaultConfig()
	}
	if err := opts.Chunk.Validate(); err != nil {
		return nil, err
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Processor{opts: opts, log: opts.Log}, nil
}

// Request describes a single run.
type Request struct {
	Path     string // source file; ignored when Data is set
	Data     []byte
	Filename string // display name and extension source; defaults to base(Path)
	Rules    contextrules.Rules
	Backend  llm.Backend // nil uses the processor default
	UseOCR   bool
	Observer Observer
}

// ProcessDocument loads the context rules at contextPath (a missing file
// means no rules) and runs the file at filePath. A nil backend uses the
// processor default.
func (p *Processor) ProcessDocument(ctx context.Context, filePath, contextPath string, backend llm.Backend) (*DocumentJudgment, error) {
	rules, err := contextrules.Load(contextPath)
	if err != nil {
		return nil, err
	}
	return p.Process(ctx, Request{
		Path:    filePath,
		Rules:   rules,
		Backend: backend,
		UseOCR:  p.opts.UseOCR,
	})
}

// Process runs one document end to end. Extraction failures, including
// unsupported file types, are returned unchanged. Backend failures degrade
// individual chunks or the synthesis; the run fails with ErrBackendFailed
// only when every backend call failed.
func (p *Processor) Process(ctx context.Context, req Request) (*DocumentJudgment, error) {
	backend := req.Backend
	if backend == nil {
		backend = p.opts.Backend
	}
	if backend == nil {
		return nil, eris.Wrap(llm.ErrBackendUnavailable, "no backend configured")
	}
	obs := req.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	filename := req.Filename
	if filename == "" {
		filename = filepath.Base(req.Path)
	}

	runID := uuid.NewString()
	backendName := llm.NameOf(backend)
	log := p.log.With("run_id", runID, "filename", filename, "backend", backendName)

	// Phase 1: Extract
	obs.Stage(StatusExtracting)
	prs, err := parser.ForFile(filename, parser.Options{
		UseOCR:            req.UseOCR,
		OCR:               p.opts.OCR,
		FallbackPdftotext: p.opts.FallbackPdftotext,
		Log:               log,
	})
	if err != nil {
		return nil, err
	}
	data := req.Data
	if data == nil {
		data, err = os.ReadFile(req.Path)
		if err != nil {
			return nil, eris.Wrapf(err, "read %s", filename)
		}
	}
	ext, err := prs.Parse(ctx, bytes.NewReader(data), filename)
	if err != nil {
		return nil, err
	}

	text := preprocess.Preprocess(ext.Text)
	chunks, err := chunker.Split(text, p.opts.Chunk)
	if err != nil {
		return nil, err
	}
	meta := model.DocumentMetadata{
		Filename:        filename,
		Extension:       strings.ToLower(filepath.Ext(filename)),
		SizeBytes:       int64(len(data)),
		ContentHash:     ContentHashHex(data),
		Pages:           ext.Pages,
		OCRUsed:         ext.OCRUsed,
		CharCount:       len([]rune(text)),
		ChunkCount:      len(chunks),
		ChunkSize:       p.opts.Chunk.ChunkSize,
		ChunkOverlap:    p.opts.Chunk.ChunkOverlap,
		EstimatedTokens: chunker.EstimateTokens(text),
		Backend:         backendName,
	}
	obs.ChunkTotal(len(chunks))
	log.Info("document extracted", "pages", meta.Pages, "chars", meta.CharCount, "chunks", len(chunks), "ocr_used", meta.OCRUsed)

	// Phase 2: Analyze chunks
	obs.Stage(StatusAnalyzing)
	an := analyzer.New(backend, log, analyzer.Options{Concurrency: p.opts.Concurrency})
	results, err := an.AnalyzeAll(ctx, chunks, obs.ChunkDone)
	if err != nil {
		return nil, eris.Wrap(err, "analyze chunks")
	}
	if p.opts.Store != nil {
		if err := p.opts.Store.SaveMany(results); err != nil {
			return nil, eris.Wrap(err, "persist chunk results")
		}
	}

	engine := decision.NewEngine(req.Rules)
	combined := engine.CombineResponses(results, meta)
	score := engine.ComputeReadWorthiness(combined)
	confidence := engine.ComputeConfidence(results, meta)

	// Phase 3: Synthesize
	obs.Stage(StatusReasoning)
	synth, synthErr := reasoner.New(backend, log).Combine(ctx, results, req.Rules.Notes())
	if synthErr != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "synthesis")
		}
		if allChunksFailed(results) {
			return nil, eris.Wrapf(ErrBackendFailed, "%s: %v", backendName, synthErr)
		}
	}
	readDecision := reasoner.DecideNeedFullRead(synth)

	j := &DocumentJudgment{
		Summary:        combined.Summary,
		DocSummary:     synth.Summary,
		Insights:       synth.Insights,
		Uncertainties:  synth.Uncertainties,
		DocConfidence:  synth.Confidence,
		Topics:         combined.Topics,
		Score:          score,
		Recommendation: decision.FinalRecommendation(score),
		NeedFullRead:   readDecision.NeedFullRead,
		ReadReasons:    readDecision.Reasons,
		Confidence:     confidence,
		Metadata:       meta,
		Chunks:         results,
		Context:        req.Rules,
		RunID:          runID,
		Backend:        backendName,
	}
	if len(synth.Extra) > 0 {
		j.DocExtra = synth.Extra
	}

	log.Info("document judged",
		"score", j.Score,
		"recommendation", j.Recommendation,
		"need_full_read", j.NeedFullRead,
		"degraded_chunks", j.DegradedChunks(),
	)
	return j, nil
}

// allChunksFailed reports whether both calls failed for every chunk. It is
// true for an empty document.
func allChunksFailed(results []model.ChunkResult) bool {
	for _, r := range results {
		if !r.Degraded || r.KeyInfo["error"] != analyzer.ErrBackendError || r.Summary != "" {
			return false
		}
	}
	return true
}
