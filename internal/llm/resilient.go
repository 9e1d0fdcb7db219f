package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// ResilientOptions configure the call policy wrapped around a backend.
type ResilientOptions struct {
	Timeout       time.Duration // per call; 0 disables
	MaxRetries    int           // retries after the first attempt
	BaseBackoff   time.Duration // default 1s
	RatePerSecond float64       // 0 = unlimited
	Burst         int
	Stats         *Stats
	Log           *slog.Logger
}

// ResilientBackend bounds every call with a timeout, retries transient
// failures with backoff, and rate limits outgoing requests.
type ResilientBackend struct {
	inner   Backend
	opts    ResilientOptions
	limiter *rate.Limiter
}

func NewResilient(inner Backend, opts ResilientOptions) *ResilientBackend {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	r := &ResilientBackend{inner: inner, opts: opts}
	if opts.RatePerSecond > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), max(opts.Burst, 1))
	}
	return r
}

func (r *ResilientBackend) Name() string { return NameOf(r.inner) }

// Unwrap returns the wrapped backend.
func (r *ResilientBackend) Unwrap() Backend { return r.inner }

func (r *ResilientBackend) Chat(ctx context.Context, prompt string) (string, error) {
	return r.do(ctx, r.inner.Chat, prompt)
}

// Generate keeps the wrapped backend's completion mode, if any.
func (r *ResilientBackend) Generate(ctx context.Context, prompt string) (string, error) {
	return r.do(ctx, func(ctx context.Context, p string) (string, error) {
		return Generate(ctx, r.inner, p)
	}, prompt)
}

func (r *ResilientBackend) do(ctx context.Context, call func(context.Context, string) (string, error), prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.opts.MaxRetries; attempt++ {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return "", eris.Wrap(err, "rate limit wait")
			}
		}

		out, err := r.attempt(ctx, call, prompt)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !r.transient(err) || attempt == r.opts.MaxRetries {
			break
		}

		delay := Backoff(attempt, r.opts.BaseBackoff)
		r.opts.Log.Warn("retrying backend call",
			"backend", r.Name(), "attempt", attempt+1, "delay_ms", delay.Milliseconds(), "error", err)
		if r.opts.Stats != nil {
			r.opts.Stats.RecordRetry()
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", eris.Wrapf(lastErr, "%s call failed", r.Name())
}

func (r *ResilientBackend) attempt(ctx context.Context, call func(context.Context, string) (string, error), prompt string) (string, error) {
	callCtx := ctx
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}
	start := time.Now()
	out, err := call(callCtx, prompt)
	if r.opts.Stats != nil {
		r.opts.Stats.Record(time.Since(start), err != nil)
	}
	return out, err
}

// transient covers provider-signalled retryable errors and per-call timeouts
// while the parent context is still live.
func (r *ResilientBackend) transient(err error) bool {
	return IsRetryable(err) || errors.Is(err, context.DeadlineExceeded)
}
