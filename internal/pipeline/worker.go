package pipeline

import (
	"context"
	"fmt"
	"log/slog"
)

// Worker processes a single document job.
type Worker struct {
	proc *Processor
	log  *slog.Logger
}

func NewWorker(proc *Processor, log *slog.Logger) *Worker {
	return &Worker{proc: proc, log: log}
}

// Process runs the full analysis pipeline for a job and records the outcome
// on it.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "filename", job.Filename)
	defer func() {
		if r := recover(); r != nil {
			phase := string(job.Snapshot().Status)
			log.Error("job panicked", "phase", phase, "panic", r)
			job.AddError(fmt.Sprintf("internal error: %v", r))
			job.SetStatus(StatusFailed, phase)
		}
	}()

	job.mu.Lock()
	req := Request{
		Data:     job.fileData,
		Filename: job.Filename,
		Rules:    job.rules,
		Backend:  job.backend,
		UseOCR:   job.useOCR,
		Observer: job,
	}
	job.mu.Unlock()

	if req.Data == nil {
		job.AddError("no file data")
		job.SetStatus(StatusFailed, "extracting")
		return
	}

	res, err := w.proc.Process(ctx, req)
	if err != nil {
		phase := string(job.Snapshot().Status)
		log.Error("job failed", "phase", phase, "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, phase)
		return
	}

	if n := res.DegradedChunks(); n > 0 {
		job.AddError(fmt.Sprintf("%d of %d chunks degraded by backend errors", n, len(res.Chunks)))
	}
	if msg, ok := res.DocExtra["error"].(string); ok {
		job.AddError("synthesis: " + msg)
	}
	job.Complete(res)
	log.Info("job completed", "score", res.Score, "recommendation", res.Recommendation)
}
