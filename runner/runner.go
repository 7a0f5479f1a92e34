// Package runner is a host-side executor for tasks: a partitioned worker
// pool that statically refuses tasks exercising capabilities the platform
// did not grant, keeps per-key submission order, and reports every run.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rickb777/date/v2/timespan"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/taskrow/taskrow/capability"
	"github.com/taskrow/taskrow/internal/dispatch"
	"github.com/taskrow/taskrow/row"
	"github.com/taskrow/taskrow/task"
)

// ErrRunnerClosed reports a submission to a runner that has been closed.
var ErrRunnerClosed = fmt.Errorf("runner closed")

// Defected resolves a handle whose task broke its binding contract while
// running. It is the runner's own variant, outside every task row: a
// defect is a bug in platform code, kept distinguishable from both success
// and every declared failure so it can never pass for either.
type Defected struct{ Defect error }

func (v Defected) Tag() string   { return "defected" }
func (v Defected) Error() string { return fmt.Sprintf("defected: %v", v.Defect) }
func (v Defected) Unwrap() error { return v.Defect }

// Config configures a Runner. Zero values are normalized to usable
// defaults.
type Config struct {
	// Granted is the platform's authorized capability set. Submissions
	// whose annotation is not covered are refused without running.
	Granted capability.Set

	// NumWorkers is the size of the worker pool (default 1). Tasks
	// submitted under the same key always land on the same worker.
	NumWorkers int

	// BufferSize is the per-worker queue depth (default 1).
	BufferSize int

	// Logger receives structured submission/refusal/resolution events.
	// Nil means no logging.
	Logger *zap.Logger

	// Metrics, when set, counts runs and refusals and observes durations.
	Metrics *Metrics

	// Observer, when set, receives a Report after every run.
	Observer func(Report)

	// Teardown functions run on Close; their errors are combined.
	Teardown []func() error
}

func normalizeConfig(cfg Config) Config {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return cfg
}

// Report describes one completed run.
type Report struct {
	// RunID uniquely identifies the run.
	RunID string

	// Task is the task's name, Key its partition key.
	Task string
	Key  string

	// Span is the execution window of the run.
	Span timespan.TimeSpan

	// Failure is the resolved row variant, nil on success.
	Failure row.Variant
}

type job struct {
	key    string
	run    func(workerCtx context.Context)
	cancel func()
}

// Runner owns the worker pool. It is safe to share across submitting
// goroutines; Close must be called exactly once, after consumers are done
// submitting.
type Runner struct {
	cfg        Config
	dispatcher dispatch.Dispatcher[job]
	cancel     context.CancelFunc
	closed     bool
}

// New starts the pool described by cfg.
func New(cfg Config) *Runner {
	cfg = normalizeConfig(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cfg: cfg,
		dispatcher: dispatch.NewPartitioned(ctx, cfg.NumWorkers, cfg.BufferSize,
			func(workerCtx context.Context, j job) { j.run(workerCtx) },
			func(j job) { j.cancel() },
		),
		cancel: cancel,
	}
}

// Submit enqueues t under the given partition key and returns the handle
// its resolution will arrive on.
//
// Refusal happens here, before anything runs: a task whose capability
// annotation exceeds the granted set yields ErrUnauthorizedCapability.
// Every accepted submission resolves exactly once: with the task's own
// result, with the Cancelled variant when ctx or the runner is cancelled
// before the task runs, or with the Defected variant when the task breaks
// its binding contract mid-run.
func Submit[T any](r *Runner, ctx context.Context, key string, t task.Task[T]) (<-chan task.Result[T], error) {
	if err := capability.Authorize(r.cfg.Granted, t.Capabilities()); err != nil {
		r.cfg.Logger.Warn("refused task",
			zap.String("task", t.Name()),
			zap.String("key", key),
			zap.Error(err),
		)
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.refusals.Inc()
		}
		return nil, err
	}

	runID := uuid.New().String()
	resCh := make(chan task.Result[T], 1)

	cancelled := func(cause error) {
		defer close(resCh)
		r.cfg.Logger.Debug("task cancelled before run",
			zap.String("task", t.Name()),
			zap.String("run_id", runID),
		)
		resCh <- task.Result[T]{Failure: row.Cancelled{Cause: cause}}
	}

	j := job{
		key: key,
		run: func(workerCtx context.Context) {
			if err := workerCtx.Err(); err != nil {
				cancelled(err)
				return
			}
			start := time.Now()
			defer close(resCh)
			defer func() {
				if rec := recover(); rec != nil {
					r.cfg.Logger.Error("defect while running task",
						zap.String("task", t.Name()),
						zap.String("run_id", runID),
						zap.Any("defect", rec),
					)
					failure := Defected{Defect: defectError(rec)}
					r.finishRun(t.Name(), runID, key, timespan.BetweenTimes(start, time.Now()), failure)
					resCh <- task.Result[T]{Failure: failure}
				}
			}()

			res := t.Run(ctx)
			r.finishRun(t.Name(), runID, key, timespan.BetweenTimes(start, time.Now()), res.Failure)
			resCh <- res
		},
		cancel: func() { cancelled(context.Canceled) },
	}

	if err := r.enqueue(ctx, j); err != nil {
		return nil, err
	}

	r.cfg.Logger.Debug("task submitted",
		zap.String("task", t.Name()),
		zap.String("run_id", runID),
		zap.String("key", key),
		zap.String("capabilities", t.Capabilities().String()),
	)
	return resCh, nil
}

// enqueue sends j to its partition. The recover is confined to the send:
// the only panic it may observe is the send on a queue already closed by
// shutdown, which becomes ErrRunnerClosed.
func (r *Runner) enqueue(ctx context.Context, j job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrRunnerClosed, rec)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case r.dispatcher.ChannelFor(j.key) <- j:
		return nil
	}
}

// finishRun emits the log line, metrics, and report of one completed run.
func (r *Runner) finishRun(taskName, runID, key string, span timespan.TimeSpan, failure row.Variant) {
	outcome := "success"
	if failure != nil {
		outcome = failure.Tag()
	}
	r.cfg.Logger.Debug("task resolved",
		zap.String("task", taskName),
		zap.String("run_id", runID),
		zap.String("outcome", outcome),
		zap.Duration("took", span.Duration()),
	)
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.observe(taskName, outcome, span.Duration())
	}
	if r.cfg.Observer != nil {
		r.cfg.Observer(Report{
			RunID:   runID,
			Task:    taskName,
			Key:     key,
			Span:    span,
			Failure: failure,
		})
	}
}

func defectError(rec any) error {
	if err, ok := rec.(error); ok {
		return err
	}
	return fmt.Errorf("%v", rec)
}

// Close stops the workers and runs the configured teardown functions,
// combining their errors. Jobs still queued when Close is called resolve
// to the Cancelled variant on their handles; nothing is dropped.
func (r *Runner) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.cancel()

	var err error
	for _, td := range r.cfg.Teardown {
		err = multierr.Append(err, td())
	}
	if syncErr := r.cfg.Logger.Sync(); syncErr != nil {
		r.cfg.Logger.Warn("failed to sync logger", zap.Error(syncErr))
	}
	return err
}
