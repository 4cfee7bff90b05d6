package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/semaphore"

	"github.com/markdave123-py/fincontexta/internal/core"
)

// Pipeline runs one ingestion attempt. Abandon records a terminal failure
// for a job that will not get another attempt.
type Pipeline interface {
	Run(ctx context.Context, req RunRequest) Result
	Abandon(ctx context.Context, req RunRequest, err error) Result
}

// errAttemptDeferred marks an attempt that ended in a retryable failure.
var errAttemptDeferred = errors.New("ingestion attempt deferred")

// JobRunner runs pipeline attempts in the background. Concurrency across all
// owners is bounded by the injected semaphore, which is held only while an
// attempt runs and never across a backoff wait.
type JobRunner struct {
	pipeline Pipeline
	sem      *semaphore.Weighted
	cfg      RunnerConfig
	baseCtx  context.Context
	wg       sync.WaitGroup
}

var _ Ingestor = (*JobRunner)(nil)

// NewJobRunner builds a runner. baseCtx bounds the lifetime of every run;
// cancelling it stops waiting runs but does not interrupt an attempt's
// final status write.
func NewJobRunner(baseCtx context.Context, pipeline Pipeline, sem *semaphore.Weighted, cfg RunnerConfig) *JobRunner {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = time.Minute
	}
	return &JobRunner{pipeline: pipeline, sem: sem, cfg: cfg, baseCtx: baseCtx}
}

// Submit schedules req and returns immediately.
func (r *JobRunner) Submit(req RunRequest) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		res := r.run(req)
		slog.Info("ingestion job settled", "job_id", req.JobID, "success", res.Success,
			"code", res.ErrorCode, "document_id", res.DocumentID)
	}()
}

// Wait blocks until every submitted job has settled.
func (r *JobRunner) Wait() {
	r.wg.Wait()
}

// run retries whole attempts while they fail with a retryable code.
// The last allowed attempt writes its failure as terminal.
func (r *JobRunner) run(req RunRequest) Result {
	var (
		last    Result
		settled bool
	)

	err := retry.Do(
		func() error {
			req.Attempt++
			req.DeferTransientFailure = req.Attempt < r.cfg.MaxAttempts
			if last.DocumentID != "" {
				req.DocumentID = last.DocumentID
			}
			req.Progress = max(req.Progress, last.Progress)

			res, err := r.runOnce(req)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			last = res
			if res.Success || !res.Retryable || !req.DeferTransientFailure {
				settled = true
				return nil
			}
			return fmt.Errorf("%w: %w", errAttemptDeferred, res.Err)
		},
		retry.Context(r.baseCtx),
		retry.Attempts(uint(r.cfg.MaxAttempts)),
		retry.Delay(r.cfg.BackoffBase),
		retry.MaxDelay(r.cfg.BackoffMax),
		retry.MaxJitter(r.cfg.BackoffJitter),
		retry.DelayType(r.backoff),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("ingestion attempt failed, backing off",
				"job_id", req.JobID, "attempt", n+1, "max_attempts", r.cfg.MaxAttempts, "err", err)
		}),
	)

	if !settled {
		if err == nil {
			err = errors.New("ingestion stopped before a final attempt")
		}
		return r.pipeline.Abandon(r.baseCtx, req, err)
	}
	return last
}

// runOnce holds one semaphore slot for the duration of a single attempt.
func (r *JobRunner) runOnce(req RunRequest) (Result, error) {
	if err := r.sem.Acquire(r.baseCtx, 1); err != nil {
		return Result{}, fmt.Errorf("acquire run slot: %w", err)
	}
	defer r.sem.Release(1)
	return r.pipeline.Run(r.baseCtx, req), nil
}

// backoff prefers the delay the upstream asked for and otherwise grows
// exponentially with jitter. Both are capped by MaxDelay.
func (r *JobRunner) backoff(n uint, err error, cfg *retry.Config) time.Duration {
	if d := core.SuggestedRetryDelay(err); d > 0 {
		return min(d, r.cfg.BackoffMax)
	}
	if r.cfg.BackoffJitter <= 0 {
		return retry.BackOffDelay(n, err, cfg)
	}
	return retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)(n, err, cfg)
}
