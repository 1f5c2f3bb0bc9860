package workflow

import (
	"context"

	"github.com/tablerag/tablerag-client/internal/models"
	"github.com/tablerag/tablerag-client/internal/progress"
	"github.com/tablerag/tablerag-client/internal/util/sanitize"
)

// Cleanup removes every table imported from filename. The request is always
// confirmed and never a dry run.
func (r *Runner) Cleanup(ctx context.Context, filename string, sink progress.Sink) (*models.Task, error) {
	sink = progress.OrDiscard(sink)

	filename = sanitize.Field(filename)
	if filename == "" {
		sink.SetStatus("enter the original filename")
		return nil, &ValidationError{Err: ErrEmptyFilename}
	}
	return r.SubmitCleanup(ctx, models.NewConfirmedCleanup(filename), sink)
}

// SubmitCleanup posts req, polls the cleanup task and reloads the table
// listing once the task is terminal. A failed reload is only logged. Every
// target must be a non-blank filename.
func (r *Runner) SubmitCleanup(ctx context.Context, req models.CleanupRequest, sink progress.Sink) (*models.Task, error) {
	sink = progress.OrDiscard(sink)

	if len(req.Targets) == 0 {
		sink.SetStatus("enter the original filename")
		return nil, &ValidationError{Err: ErrEmptyFilename}
	}
	targets := make([]string, 0, len(req.Targets))
	for _, target := range req.Targets {
		target = sanitize.Field(target)
		if target == "" {
			sink.SetStatus("enter the original filename")
			return nil, &ValidationError{Err: ErrEmptyFilename}
		}
		targets = append(targets, target)
	}
	req.Targets = targets

	sink.SetStatus("submitting cleanup task...")
	resp, err := r.api.SubmitCleanup(ctx, req)
	if err != nil {
		sink.SetStatus("submit failed")
		return nil, err
	}

	task, err := r.track(ctx, models.KindCleanup, "cleanup", resp, sink)
	if err != nil {
		return nil, err
	}

	if r.refresher != nil {
		if rerr := r.refresher.Reload(ctx); rerr != nil {
			r.logger.Debug().Err(rerr).Msg("table refresh after cleanup failed")
		}
	}
	return task, nil
}
