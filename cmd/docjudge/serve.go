package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dgallion1/docjudge/internal/api"
	"github.com/dgallion1/docjudge/internal/contextrules"
	"github.com/dgallion1/docjudge/internal/llm"
	"github.com/dgallion1/docjudge/internal/pipeline"
	"github.com/dgallion1/docjudge/internal/store"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP analysis service",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := newLogger(os.Stdout)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	stats := llm.NewStats(time.Hour)
	defaultBackend, err := newBackend(cfg.BackendSpec(), stats, log)
	if err != nil {
		log.Error("default backend unavailable", "error", err)
		return err
	}

	rules, err := contextrules.Load(cfg.ContextPath)
	if err != nil {
		return err
	}

	opts := pipeline.Options{
		Chunk:             cfg.ChunkConfig(),
		Concurrency:       cfg.Analysis.Concurrency,
		UseOCR:            cfg.OCR.Enabled,
		OCR:               cfg.OCREngine(log),
		FallbackPdftotext: cfg.PDF.FallbackPdftotext,
		Backend:           defaultBackend,
		Log:               log,
	}
	if cfg.Store.Path != "" {
		opts.Store = store.NewJSONLStore(cfg.Store.Path)
	}
	proc, err := pipeline.NewProcessor(opts)
	if err != nil {
		return err
	}

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
		Workers:   cfg.Workers.Count,
		QueueSize: cfg.Workers.QueueSize,
		JobTTL:    cfg.Jobs.TTL,
	}, proc, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv, err := api.NewServer(api.Deps{
		Processor:    proc,
		Orchestrator: orch,
		NewBackend: func(spec llm.Spec) (llm.Backend, error) {
			return newBackend(spec, stats, log)
		},
		Stats:        stats,
		DefaultRules: rules,
		Log:          log,
	}, api.Options{
		APIKey:         cfg.APIKey,
		MaxUploadBytes: cfg.MaxUploadBytes,
		UseOCR:         cfg.OCR.Enabled,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // synchronous /analyze waits on the backend
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
		case <-ctx.Done():
		}
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
	}()

	log.Info("starting docjudge", "port", cfg.Port, "backend", llm.NameOf(defaultBackend), "auth", cfg.APIKey != "")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		return err
	}
	<-stopped
	return nil
}
