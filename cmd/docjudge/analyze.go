package main

import (
	"io"
	"os"

	"github.com/dgallion1/docjudge/internal/contextrules"
	"github.com/dgallion1/docjudge/internal/llm"
	"github.com/dgallion1/docjudge/internal/pipeline"
	"github.com/dgallion1/docjudge/internal/report"
	"github.com/dgallion1/docjudge/internal/store"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var analyzeFlags struct {
	context     string
	provider    string
	model       string
	stub        bool
	ocr         bool
	chunkSize   int
	overlap     int
	concurrency int
	format      string
	output      string
	store       string
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Analyze a document and print its judgment",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeFlags.context, "context", "", "context rules file (default from config)")
	f.StringVar(&analyzeFlags.provider, "provider", "", "backend provider: ollama, hf, anthropic, stub")
	f.StringVar(&analyzeFlags.model, "model", "", "backend model")
	f.BoolVar(&analyzeFlags.stub, "stub", false, "use canned offline responses")
	f.BoolVar(&analyzeFlags.ocr, "ocr", true, "OCR PDF pages without a text layer")
	f.IntVar(&analyzeFlags.chunkSize, "chunk-size", 0, "chunk size in characters")
	f.IntVar(&analyzeFlags.overlap, "overlap", 0, "chunk overlap in characters")
	f.IntVar(&analyzeFlags.concurrency, "concurrency", 0, "chunks analyzed in parallel")
	f.StringVar(&analyzeFlags.format, "format", "json", "output format: json, yaml, markdown, html")
	f.StringVarP(&analyzeFlags.output, "output", "o", "", "write the report to a file instead of stdout")
	f.StringVar(&analyzeFlags.store, "store", "", "append chunk results to this JSONL file")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if flags.Changed("chunk-size") {
		cfg.Chunk.Size = analyzeFlags.chunkSize
	}
	if flags.Changed("overlap") {
		cfg.Chunk.Overlap = analyzeFlags.overlap
	}
	if flags.Changed("concurrency") {
		cfg.Analysis.Concurrency = analyzeFlags.concurrency
	}
	if flags.Changed("ocr") {
		cfg.OCR.Enabled = analyzeFlags.ocr
	}
	if flags.Changed("store") {
		cfg.Store.Path = analyzeFlags.store
	}
	if flags.Changed("context") {
		cfg.ContextPath = analyzeFlags.context
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	format, err := report.ParseFormat(analyzeFlags.format)
	if err != nil {
		return err
	}

	log, err := newLogger(os.Stderr)
	if err != nil {
		return err
	}

	spec := cfg.BackendSpec()
	if analyzeFlags.provider != "" {
		spec.Provider = analyzeFlags.provider
	}
	if analyzeFlags.model != "" {
		spec.Model = analyzeFlags.model
	}
	if analyzeFlags.stub {
		spec = llm.Spec{Provider: "stub"}
	}
	backend, err := newBackend(spec, nil, log)
	if err != nil {
		return err
	}

	opts := pipeline.Options{
		Chunk:             cfg.ChunkConfig(),
		Concurrency:       cfg.Analysis.Concurrency,
		UseOCR:            cfg.OCR.Enabled,
		OCR:               cfg.OCREngine(log),
		FallbackPdftotext: cfg.PDF.FallbackPdftotext,
		Backend:           backend,
		Log:               log,
	}
	if cfg.Store.Path != "" {
		opts.Store = store.NewJSONLStore(cfg.Store.Path)
	}
	proc, err := pipeline.NewProcessor(opts)
	if err != nil {
		return err
	}

	rules, err := contextrules.Load(cfg.ContextPath)
	if err != nil {
		return err
	}
	if rules.IsEmpty() {
		log.Debug("no context rules", "path", cfg.ContextPath)
	}

	res, err := proc.Process(cmd.Context(), pipeline.Request{
		Path:   args[0],
		Rules:  rules,
		UseOCR: cfg.OCR.Enabled,
	})
	if err != nil {
		return err
	}

	var out io.Writer = cmd.OutOrStdout()
	if analyzeFlags.output != "" {
		f, err := os.Create(analyzeFlags.output)
		if err != nil {
			return eris.Wrapf(err, "create %s", analyzeFlags.output)
		}
		defer f.Close()
		out = f
	}
	return report.Render(out, res, format)
}
