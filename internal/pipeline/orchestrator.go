package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

var (
	// ErrQueueFull is returned by Submit when the job queue has no room.
	ErrQueueFull = eris.New("job queue is full")
	// ErrStopped is returned by Submit after Stop.
	ErrStopped = eris.New("job queue is stopped")
)

// OrchestratorConfig sizes the worker pool.
type OrchestratorConfig struct {
	Workers         int
	QueueSize       int
	JobTTL          time.Duration
	CleanupInterval time.Duration
}

// Orchestrator manages the asynchronous document analysis queue.
type Orchestrator struct {
	jobs   *JobStore
	queue  chan *Job
	worker *Worker
	log    *slog.Logger
	cfg    OrchestratorConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu orders Submit against Stop closing the queue.
	mu      sync.Mutex
	stopped bool
}

// NewOrchestrator creates the pipeline. Call Start to launch workers.
func NewOrchestrator(cfg OrchestratorConfig, proc *Processor, log *slog.Logger) *Orchestrator {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		jobs:   NewJobStore(cfg.JobTTL),
		queue:  make(chan *Job, cfg.QueueSize),
		worker: NewWorker(proc, log),
		log:    log,
		cfg:    cfg,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.Workers {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					o.worker.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(o.cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop shuts down the workers and waits for them. Jobs still queued are
// marked failed. Stop is idempotent.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	close(o.queue)
	o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()

	for job := range o.queue {
		job.AddError("shut down before processing")
		job.SetStatus(StatusFailed, "queued")
	}
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		job.AddError("queue stopped")
		job.SetStatus(StatusFailed, "queued")
		return ErrStopped
	}
	select {
	case o.queue <- job:
		return nil
	default:
		job.AddError("queue full")
		job.SetStatus(StatusFailed, "queue_full")
		return eris.Wrapf(ErrQueueFull, "capacity %d", o.cfg.QueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}
