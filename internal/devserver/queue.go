package devserver

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tablerag/tablerag-client/internal/logging"
	"github.com/tablerag/tablerag-client/internal/models"
)

// TaskFunc is the body of an emulated server task.
type TaskFunc func(ctx context.Context) (interface{}, error)

// TaskRecord is the wire shape of GET /{kind}/tasks/{id}. Unset times are null.
type TaskRecord struct {
	TaskID    string        `json:"task_id"`
	Status    models.Status `json:"status"`
	Result    interface{}   `json:"result"`
	Error     *string       `json:"error"`
	CreatedAt float64       `json:"created_at"`
	StartedAt *float64      `json:"started_at"`
	EndedAt   *float64      `json:"ended_at"`
}

// TaskQueue runs every submitted task in its own goroutine. Tasks stay queued
// for a moment, then running for the configured duration before their body runs.
// Finished records are dropped once they are older than the retention window;
// reading one afterwards is a 404.
type TaskQueue struct {
	duration  time.Duration
	retention time.Duration
	logger    *logging.Logger

	mu    sync.RWMutex
	tasks map[string]*TaskRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTaskQueue creates a queue whose tasks run for at least duration and are
// kept for retention after they finish. A non-positive retention keeps them forever.
func NewTaskQueue(duration, retention time.Duration, logger *logging.Logger) *TaskQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &TaskQueue{
		duration:  duration,
		retention: retention,
		logger:    logging.OrNop(logger),
		tasks:    make(map[string]*TaskRecord),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Submit registers fn as a queued task and returns its id.
func (q *TaskQueue) Submit(fn TaskFunc) string {
	rec := &TaskRecord{
		TaskID:    uuid.New().String(),
		Status:    models.StatusQueued,
		CreatedAt: epoch(time.Now()),
	}

	q.mu.Lock()
	q.pruneLocked(time.Now())
	q.tasks[rec.TaskID] = rec
	q.mu.Unlock()

	q.wg.Add(1)
	go q.run(rec.TaskID, fn)
	return rec.TaskID
}

func (q *TaskQueue) run(id string, fn TaskFunc) {
	defer q.wg.Done()

	// Let a client observe the queued state.
	if !q.sleep(q.duration / 4) {
		return
	}
	q.update(id, func(rec *TaskRecord) {
		started := epoch(time.Now())
		rec.Status = models.StatusRunning
		rec.StartedAt = &started
	})

	if !q.sleep(q.duration) {
		return
	}
	result, err := fn(q.ctx)

	q.update(id, func(rec *TaskRecord) {
		ended := epoch(time.Now())
		rec.EndedAt = &ended
		if err != nil {
			msg := err.Error()
			rec.Status = models.StatusFailed
			rec.Error = &msg
			return
		}
		rec.Status = models.StatusSucceeded
		rec.Result = result
	})
	q.logger.Debug().Str("task_id", id).Err(err).Msg("emulated task finished")
}

func (q *TaskQueue) sleep(d time.Duration) bool {
	if d <= 0 {
		return q.ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-q.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (q *TaskQueue) update(id string, fn func(*TaskRecord)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if rec, ok := q.tasks[id]; ok {
		fn(rec)
	}
}

// pruneLocked drops finished records older than the retention window.
func (q *TaskQueue) pruneLocked(now time.Time) {
	if q.retention <= 0 {
		return
	}
	cutoff := epoch(now.Add(-q.retention))
	for id, rec := range q.tasks {
		if rec.EndedAt != nil && *rec.EndedAt < cutoff {
			delete(q.tasks, id)
			q.logger.Debug().Str("task_id", id).Msg("expired task record dropped")
		}
	}
}

// Len returns how many task records are held.
func (q *TaskQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.tasks)
}

// Get returns a copy of the task record.
func (q *TaskQueue) Get(id string) (TaskRecord, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	rec, ok := q.tasks[id]
	if !ok {
		return TaskRecord{}, false
	}
	if q.retention > 0 && rec.EndedAt != nil && *rec.EndedAt < epoch(time.Now().Add(-q.retention)) {
		return TaskRecord{}, false
	}
	return *rec, true
}

// Close abandons unfinished tasks and waits for their goroutines.
func (q *TaskQueue) Close() {
	q.cancel()
	q.wg.Wait()
}

func epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
