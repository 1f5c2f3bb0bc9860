package workflow

import (
	"context"

	"github.com/tablerag/tablerag-client/internal/models"
	"github.com/tablerag/tablerag-client/internal/progress"
)

// Import asks the server to import its excel directory and polls the data task.
func (r *Runner) Import(ctx context.Context, req models.ImportRequest, sink progress.Sink) (*models.Task, error) {
	sink = progress.OrDiscard(sink)

	sink.SetStatus("submitting import task...")
	resp, err := r.api.SubmitImport(ctx, req)
	if err != nil {
		sink.SetStatus("submit failed")
		return nil, err
	}
	return r.track(ctx, models.KindData, "import", resp, sink)
}

// BuildEmbeddings starts an embedding build and polls it.
func (r *Runner) BuildEmbeddings(ctx context.Context, req models.EmbeddingsRequest, sink progress.Sink) (*models.Task, error) {
	sink = progress.OrDiscard(sink)

	if !req.Policy.Valid() {
		err := &ValidationError{Err: ErrInvalidPolicy, Detail: string(req.Policy)}
		sink.SetStatus(err.Error())
		return nil, err
	}

	sink.SetStatus("submitting embeddings task...")
	resp, err := r.api.BuildEmbeddings(ctx, req)
	if err != nil {
		sink.SetStatus("submit failed")
		return nil, err
	}
	return r.track(ctx, models.KindEmbeddings, "embeddings", resp, sink)
}
