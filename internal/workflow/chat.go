package workflow

import (
	"context"

	"github.com/tablerag/tablerag-client/internal/models"
	"github.com/tablerag/tablerag-client/internal/progress"
)

// Ask sends one chat question and shows the answer verbatim. There is no
// conversation state between calls.
func (r *Runner) Ask(ctx context.Context, q models.ChatQuery, sink progress.Sink) (string, error) {
	sink = progress.OrDiscard(sink)

	q = q.Normalize()
	if q.Question == "" {
		sink.SetStatus("enter a question")
		return "", &ValidationError{Err: ErrEmptyQuestion}
	}

	sink.SetStatus("asking...")
	answer, err := r.api.Ask(ctx, q)
	if err != nil {
		sink.SetStatus("request failed")
		return "", err
	}

	sink.SetStatus(answer.Answer)
	r.bus.PublishChat(q.Question, q.TableID, answer.Answer)
	return answer.Answer, nil
}
