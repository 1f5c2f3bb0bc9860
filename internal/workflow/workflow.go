// Package workflow runs the user-facing operations: upload, import, embedding
// builds, cleanup and chat. Each task-bearing operation submits a request, polls
// the task until it is terminal and reports progress to a sink.
package workflow

import (
	"context"
	"fmt"

	"github.com/tablerag/tablerag-client/internal/api"
	"github.com/tablerag/tablerag-client/internal/events"
	"github.com/tablerag/tablerag-client/internal/logging"
	"github.com/tablerag/tablerag-client/internal/models"
	"github.com/tablerag/tablerag-client/internal/poller"
	"github.com/tablerag/tablerag-client/internal/progress"
	"github.com/tablerag/tablerag-client/internal/source"
)

// API is the subset of *api.Client the workflows call.
type API interface {
	UploadFile(ctx context.Context, file api.FilePart, excelDir string) (*models.SubmitResponse, error)
	UploadFiles(ctx context.Context, files []api.FilePart, excelDir string) (*models.SubmitResponse, error)
	UploadAndRebuild(ctx context.Context, files []api.FilePart, excelDir string, opts models.RebuildOptions) (*models.SubmitResponse, error)
	SubmitImport(ctx context.Context, req models.ImportRequest) (*models.SubmitResponse, error)
	BuildEmbeddings(ctx context.Context, req models.EmbeddingsRequest) (*models.SubmitResponse, error)
	SubmitCleanup(ctx context.Context, req models.CleanupRequest) (*models.SubmitResponse, error)
	Ask(ctx context.Context, q models.ChatQuery) (*models.ChatAnswer, error)
}

// Opener opens upload sources. *source.Resolver satisfies it.
type Opener interface {
	Open(ctx context.Context, ref string) (*source.File, error)
}

// TableRefresher reloads the table listing after a cleanup.
type TableRefresher interface {
	Reload(ctx context.Context) error
}

// Runner holds what the workflows share. Create one per session.
type Runner struct {
	api        API
	waiter     poller.Waiter
	sources    Opener
	newTracker func(files int) progress.ByteTracker
	refresher  TableRefresher
	bus        *events.EventBus
	logger     *logging.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithSources sets the resolver for upload references. Defaults to local-only
// resolution without cloud credentials.
func WithSources(o Opener) Option {
	return func(r *Runner) { r.sources = o }
}

// WithByteTracker reports upload bytes to a tracker created per upload.
func WithByteTracker(newTracker func(files int) progress.ByteTracker) Option {
	return func(r *Runner) { r.newTracker = newTracker }
}

// WithEventBus publishes chat exchanges on bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(r *Runner) { r.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a Runner. waiter is usually a *poller.Registry so concurrent
// watchers of one task share a poll loop.
func NewRunner(client API, waiter poller.Waiter, opts ...Option) *Runner {
	r := &Runner{api: client, waiter: waiter}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrNop(r.logger)
	if r.sources == nil {
		r.sources = source.NewResolver(nil, nil, r.logger)
	}
	return r
}

// SetTableRefresher registers the listing reloaded after every cleanup.
func (r *Runner) SetTableRefresher(t TableRefresher) {
	r.refresher = t
}

// track polls a freshly submitted task and reports each step to sink.
// Only non-terminal snapshots produce a "task status" message.
func (r *Runner) track(ctx context.Context, kind models.Kind, label string, resp *models.SubmitResponse, sink progress.Sink) (*models.Task, error) {
	submitted := models.NewSubmittedTask(kind, resp)
	sink.SetStatus(fmt.Sprintf("submitted %s task %s, polling...", label, submitted.ID))
	r.logger.Debug().Str("task", submitted.Key().String()).Str("status", string(submitted.Status)).Msg("task submitted")

	task, err := r.waiter.Wait(ctx, kind, submitted.ID, func(t *models.Task) {
		if !t.Status.IsTerminal() {
			sink.SetStatus(fmt.Sprintf("task status: %s", t.Status))
		}
	})
	if err != nil {
		sink.SetStatus(fmt.Sprintf("error: %v", err))
		return nil, err
	}

	sink.SetStatus(fmt.Sprintf("done: %s", task.Status))
	if task.Status == models.StatusFailed && task.Error != "" {
		r.logger.Debug().Str("task", task.Key().String()).Str("error", task.Error).Msg("task failed on server")
	}
	return task, nil
}
