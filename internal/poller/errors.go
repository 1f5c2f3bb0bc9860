package poller

import (
	"context"
	"errors"
	"fmt"

	"github.com/tablerag/tablerag-client/internal/models"
)

var (
	// ErrInvalidTask is returned before any request when kind or id is empty.
	ErrInvalidTask = errors.New("task kind and id are required")

	// ErrPollTimeout indicates the per-kind deadline elapsed before a terminal status.
	ErrPollTimeout = errors.New("polling deadline exceeded")

	// ErrMaxAttempts indicates the configured number of status reads was used up.
	ErrMaxAttempts = errors.New("maximum status reads reached")

	// ErrCancelled indicates Registry.Cancel stopped the loop. It matches context.Canceled.
	ErrCancelled = fmt.Errorf("task watch cancelled: %w", context.Canceled)

	// ErrRegistryClosed is returned by Watch after Close.
	ErrRegistryClosed = errors.New("poll registry closed")
)

// PollFailure ends a wait without a terminal status. Err is the transport error,
// context error, ErrPollTimeout or ErrMaxAttempts. Last is the most recent snapshot,
// if any read succeeded.
type PollFailure struct {
	Kind    models.Kind
	TaskID  string
	Attempt int
	Last    *models.Task
	Err     error
}

func (e *PollFailure) Error() string {
	return fmt.Sprintf("polling %s task %s failed after %d reads: %v", e.Kind, e.TaskID, e.Attempt, e.Err)
}

func (e *PollFailure) Unwrap() error {
	return e.Err
}
