package poller

import (
	"context"
	"sort"
	"sync"

	"github.com/tablerag/tablerag-client/internal/events"
	"github.com/tablerag/tablerag-client/internal/logging"
	"github.com/tablerag/tablerag-client/internal/models"
)

// Registry keeps at most one poll loop per task identity. Later watchers of the
// same task attach to the running loop and share its snapshots and result.
//
// Observer callbacks run on the loop goroutine and must not call back into the
// registry.
type Registry struct {
	ctx    context.Context
	cancel context.CancelFunc
	poller *Poller
	bus    *events.EventBus
	logger *logging.Logger

	mu     sync.Mutex
	active map[models.TaskKey]*watch
	nextID int
	closed bool
	wg     sync.WaitGroup
}

type watch struct {
	key    models.TaskKey
	cancel context.CancelCauseFunc
	done   chan struct{}

	mu        sync.Mutex
	observers map[int]UpdateFunc
	last      *models.Task
	result    *models.Task
	err       error
}

// Handle is one observer's view of a shared poll loop.
type Handle struct {
	reg *Registry
	w   *watch
	id  int
}

// NewRegistry creates a registry whose loops stop when ctx ends or Close is called.
// bus may be nil.
func NewRegistry(ctx context.Context, p *Poller, bus *events.EventBus, logger *logging.Logger) *Registry {
	ctx, cancel := context.WithCancel(ctx)
	return &Registry{
		ctx:    ctx,
		cancel: cancel,
		poller: p,
		bus:    bus,
		logger: logging.OrNop(logger),
		active: make(map[models.TaskKey]*watch),
	}
}

// Watch starts polling the task, or attaches to the loop already polling it.
// attached is true in the second case; the caller then immediately receives the
// latest snapshot, if one was read.
func (r *Registry) Watch(kind models.Kind, taskID string, onUpdate UpdateFunc) (h *Handle, attached bool, err error) {
	if kind == "" || taskID == "" {
		return nil, false, ErrInvalidTask
	}
	key := models.TaskKey{Kind: kind, ID: taskID}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, false, ErrRegistryClosed
	}
	r.nextID++
	id := r.nextID

	if w, ok := r.active[key]; ok {
		w.mu.Lock()
		r.mu.Unlock()
		w.observers[id] = onUpdate
		if w.last != nil && onUpdate != nil {
			onUpdate(w.last)
		}
		w.mu.Unlock()
		r.logger.Debug().Str("task", key.String()).Msg("attached to running poll")
		return &Handle{reg: r, w: w, id: id}, true, nil
	}

	ctx, cancel := context.WithCancelCause(r.ctx)
	w := &watch{
		key:       key,
		cancel:    cancel,
		done:      make(chan struct{}),
		observers: map[int]UpdateFunc{id: onUpdate},
	}
	r.active[key] = w
	r.wg.Add(1)
	r.mu.Unlock()

	go r.run(ctx, w)
	return &Handle{reg: r, w: w, id: id}, false, nil
}

func (r *Registry) run(ctx context.Context, w *watch) {
	defer r.wg.Done()
	defer w.cancel(nil)

	task, err := r.poller.Wait(ctx, w.key.Kind, w.key.ID, func(t *models.Task) {
		n := w.broadcast(t)
		if !t.Status.IsTerminal() {
			r.bus.PublishTask(events.EventTaskUpdate, t, n, nil)
		}
	})

	w.mu.Lock()
	w.result, w.err = task, err
	observers := len(w.observers)
	last := w.last
	w.mu.Unlock()

	// Remove before signalling so a waiter that returns can start a fresh watch.
	r.mu.Lock()
	if r.active[w.key] == w {
		delete(r.active, w.key)
	}
	r.mu.Unlock()

	if err != nil {
		snapshot := last
		if snapshot == nil {
			snapshot = &models.Task{Kind: w.key.Kind, ID: w.key.ID}
		}
		r.bus.PublishTask(events.EventTaskAborted, snapshot, observers, err)
	} else {
		r.bus.PublishTask(events.EventTaskTerminal, task, observers, nil)
	}

	close(w.done)
}

func (w *watch) broadcast(t *models.Task) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.last = t
	for _, fn := range w.observers {
		if fn != nil {
			fn(t)
		}
	}
	return len(w.observers)
}

// Wait blocks until the shared loop ends or ctx is done. Ending ctx detaches
// only this observer; the loop is cancelled when its last observer leaves.
func (h *Handle) Wait(ctx context.Context) (*models.Task, error) {
	select {
	case <-h.w.done:
		h.w.mu.Lock()
		defer h.w.mu.Unlock()
		return h.w.result, h.w.err
	case <-ctx.Done():
		last := h.Detach()
		return nil, &PollFailure{Kind: h.w.key.Kind, TaskID: h.w.key.ID, Last: last, Err: context.Cause(ctx)}
	}
}

// Detach stops delivering snapshots to this observer and returns the latest one.
func (h *Handle) Detach() *models.Task {
	r, w := h.reg, h.w

	r.mu.Lock()
	defer r.mu.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.observers, h.id)
	if len(w.observers) == 0 {
		if r.active[w.key] == w {
			delete(r.active, w.key)
		}
		w.cancel(ErrCancelled)
	}
	return w.last
}

// Cancel stops the shared loop for every observer.
func (h *Handle) Cancel() {
	h.reg.Cancel(h.w.key.Kind, h.w.key.ID)
}

// Done is closed when the shared loop has ended.
func (h *Handle) Done() <-chan struct{} {
	return h.w.done
}

// Key returns the task identity being watched.
func (h *Handle) Key() models.TaskKey {
	return h.w.key
}

// Wait watches the task and blocks until it is terminal. It satisfies Waiter.
func (r *Registry) Wait(ctx context.Context, kind models.Kind, taskID string, onUpdate UpdateFunc) (*models.Task, error) {
	h, _, err := r.Watch(kind, taskID, onUpdate)
	if err != nil {
		return nil, err
	}
	return h.Wait(ctx)
}

// Cancel aborts the loop polling the task. Every observer's Wait returns a
// *PollFailure wrapping ErrCancelled. It reports whether a loop was running.
func (r *Registry) Cancel(kind models.Kind, taskID string) bool {
	key := models.TaskKey{Kind: kind, ID: taskID}

	r.mu.Lock()
	w, ok := r.active[key]
	if ok {
		delete(r.active, key)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	w.cancel(ErrCancelled)
	r.logger.Debug().Str("task", key.String()).Msg("poll cancelled")
	return true
}

// Active lists the identities currently being polled, sorted.
func (r *Registry) Active() []models.TaskKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]models.TaskKey, 0, len(r.active))
	for key := range r.active {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}

// Close cancels every loop and waits for them to exit.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for key, w := range r.active {
		w.cancel(ErrCancelled)
		delete(r.active, key)
	}
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}
