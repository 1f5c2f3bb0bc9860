// Package poller waits for server-side tasks to reach a terminal status.
package poller

import (
	"context"
	"time"

	"github.com/tablerag/tablerag-client/internal/config"
	"github.com/tablerag/tablerag-client/internal/constants"
	"github.com/tablerag/tablerag-client/internal/logging"
	"github.com/tablerag/tablerag-client/internal/models"
)

// StatusReader reads one task snapshot. *api.Client satisfies it.
type StatusReader interface {
	GetTask(ctx context.Context, kind models.Kind, taskID string) (*models.Task, error)
}

// UpdateFunc receives every successfully read snapshot, terminal ones included.
type UpdateFunc func(task *models.Task)

// Waiter is implemented by both Poller and Registry.
type Waiter interface {
	Wait(ctx context.Context, kind models.Kind, taskID string, onUpdate UpdateFunc) (*models.Task, error)
}

// Options bound a poll loop.
type Options struct {
	// Interval between the end of one read and the start of the next.
	Interval time.Duration

	// MaxAttempts caps the number of reads. Zero means unbounded.
	MaxAttempts int

	// Timeouts is the per-kind deadline. Missing or zero entries mean unbounded.
	Timeouts map[models.Kind]time.Duration
}

// DefaultOptions returns a 1s interval with the default per-kind deadlines.
func DefaultOptions() Options {
	return Options{
		Interval: constants.DefaultPollInterval,
		Timeouts: map[models.Kind]time.Duration{
			models.KindData:       constants.DataPollTimeout,
			models.KindCleanup:    constants.CleanupPollTimeout,
			models.KindEmbeddings: constants.EmbeddingsPollTimeout,
		},
	}
}

// OptionsFromConfig maps the poll_* config keys onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Interval:    cfg.PollInterval(),
		MaxAttempts: cfg.PollMaxAttempts,
		Timeouts:    cfg.PollTimeouts(),
	}
}

// Poller runs independent poll loops. Use Registry to share loops between callers.
type Poller struct {
	reader StatusReader
	opts   Options
	logger *logging.Logger
}

// New creates a Poller. A non-positive interval falls back to the default.
func New(reader StatusReader, opts Options, logger *logging.Logger) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = constants.DefaultPollInterval
	}
	return &Poller{reader: reader, opts: opts, logger: logging.OrNop(logger)}
}

// Options returns the effective options.
func (p *Poller) Options() Options {
	return p.opts
}

// Wait reads the task status until it is succeeded or failed and returns that
// snapshot. Reads are never retried here: any read error, cancellation, deadline
// or attempt bound ends the wait with a *PollFailure.
func (p *Poller) Wait(ctx context.Context, kind models.Kind, taskID string, onUpdate UpdateFunc) (*models.Task, error) {
	if kind == "" || taskID == "" {
		return nil, ErrInvalidTask
	}

	if timeout := p.opts.Timeouts[kind]; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, timeout, ErrPollTimeout)
		defer cancel()
	}

	log := p.logger.Child("task", models.TaskKey{Kind: kind, ID: taskID}.String())
	var last *models.Task

	for attempt := 1; ; attempt++ {
		task, err := p.reader.GetTask(ctx, kind, taskID)
		if err != nil {
			return nil, p.failure(ctx, kind, taskID, attempt, last, err)
		}
		last = task

		log.Debug().Int("attempt", attempt).Str("status", string(task.Status)).Msg("status read")
		if onUpdate != nil {
			onUpdate(task)
		}

		if task.Status.IsTerminal() {
			return task, nil
		}

		if p.opts.MaxAttempts > 0 && attempt >= p.opts.MaxAttempts {
			return nil, &PollFailure{Kind: kind, TaskID: taskID, Attempt: attempt, Last: last, Err: ErrMaxAttempts}
		}

		timer := time.NewTimer(p.opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, p.failure(ctx, kind, taskID, attempt, last, ctx.Err())
		case <-timer.C:
		}
	}
}

// failure reports the cancellation cause when the context ended (our own
// deadline, a registry cancel or the caller's context), else the read error.
func (p *Poller) failure(ctx context.Context, kind models.Kind, taskID string, attempt int, last *models.Task, err error) error {
	cause := err
	if ctx.Err() != nil {
		cause = context.Cause(ctx)
	}
	p.logger.Debug().Str("task", models.TaskKey{Kind: kind, ID: taskID}.String()).Err(cause).Msg("poll ended without terminal status")
	return &PollFailure{Kind: kind, TaskID: taskID, Attempt: attempt, Last: last, Err: cause}
}
