package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tablerag/tablerag-client/internal/events"
	"github.com/tablerag/tablerag-client/internal/models"
)

func newTestRegistry(t *testing.T, reader StatusReader, bus *events.EventBus) *Registry {
	t.Helper()
	reg := NewRegistry(context.Background(), New(reader, fastOptions(), nil), bus, nil)
	t.Cleanup(reg.Close)
	return reg
}

type waitResult struct {
	task *models.Task
	err  error
}

func waitAsync(h *Handle, ctx context.Context) <-chan waitResult {
	ch := make(chan waitResult, 1)
	go func() {
		task, err := h.Wait(ctx)
		ch <- waitResult{task, err}
	}()
	return ch
}

func receive(t *testing.T, ch <-chan waitResult) waitResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
		return waitResult{}
	}
}

func TestRegistrySharesOneLoop(t *testing.T) {
	reader := &gatedReader{}
	reg := newTestRegistry(t, reader, nil)

	h1, attached1, err := reg.Watch(models.KindData, "t1", nil)
	if err != nil || attached1 {
		t.Fatalf("first Watch: attached=%v err=%v", attached1, err)
	}
	h2, attached2, err := reg.Watch(models.KindData, "t1", nil)
	if err != nil || !attached2 {
		t.Fatalf("second Watch should attach: attached=%v err=%v", attached2, err)
	}
	if got := len(reg.Active()); got != 1 {
		t.Errorf("active loops = %d, want 1", got)
	}

	r1 := waitAsync(h1, context.Background())
	r2 := waitAsync(h2, context.Background())
	time.Sleep(30 * time.Millisecond)
	reader.released.Store(true)

	res1, res2 := receive(t, r1), receive(t, r2)
	if res1.err != nil || res2.err != nil {
		t.Fatalf("errors: %v, %v", res1.err, res2.err)
	}
	if res1.task != res2.task {
		t.Error("observers should receive the same terminal snapshot from one loop")
	}
	if res1.task.Status != models.StatusSucceeded {
		t.Errorf("status = %s", res1.task.Status)
	}
}

func TestRegistryDifferentKindsAreDistinct(t *testing.T) {
	reg := newTestRegistry(t, &gatedReader{}, nil)

	reg.Watch(models.KindData, "same", nil)
	_, attached, _ := reg.Watch(models.KindCleanup, "same", nil)
	if attached {
		t.Error("ids are only unique within a kind")
	}
	if got := len(reg.Active()); got != 2 {
		t.Errorf("active loops = %d, want 2", got)
	}
}

func TestRegistryEveryObserverGetsSnapshots(t *testing.T) {
	reader := &gatedReader{}
	reg := newTestRegistry(t, reader, nil)

	var mu sync.Mutex
	counts := map[string]int{}
	observe := func(name string) UpdateFunc {
		return func(task *models.Task) {
			mu.Lock()
			counts[name]++
			mu.Unlock()
		}
	}

	h1, _, _ := reg.Watch(models.KindData, "t1", observe("a"))
	time.Sleep(25 * time.Millisecond)
	h2, _, _ := reg.Watch(models.KindData, "t1", observe("b"))

	r1, r2 := waitAsync(h1, context.Background()), waitAsync(h2, context.Background())
	time.Sleep(25 * time.Millisecond)
	reader.released.Store(true)
	receive(t, r1)
	receive(t, r2)

	mu.Lock()
	defer mu.Unlock()
	if counts["a"] < 2 || counts["b"] < 2 {
		t.Errorf("snapshot counts = %v, both observers should see updates and the terminal snapshot", counts)
	}
}

func TestRegistryCancelAbortsEveryObserver(t *testing.T) {
	reg := newTestRegistry(t, &gatedReader{}, nil)

	h1, _, _ := reg.Watch(models.KindCleanup, "c1", nil)
	h2, _, _ := reg.Watch(models.KindCleanup, "c1", nil)
	r1, r2 := waitAsync(h1, context.Background()), waitAsync(h2, context.Background())

	time.Sleep(20 * time.Millisecond)
	if !reg.Cancel(models.KindCleanup, "c1") {
		t.Fatal("Cancel() = false, want true for a running loop")
	}

	for _, res := range []waitResult{receive(t, r1), receive(t, r2)} {
		var pf *PollFailure
		if !errors.As(res.err, &pf) {
			t.Fatalf("error = %v, want *PollFailure", res.err)
		}
		if !errors.Is(res.err, ErrCancelled) || !errors.Is(res.err, context.Canceled) {
			t.Errorf("error = %v, want ErrCancelled", res.err)
		}
	}
	if len(reg.Active()) != 0 {
		t.Errorf("active = %v, want empty", reg.Active())
	}
	if reg.Cancel(models.KindCleanup, "c1") {
		t.Error("second Cancel() should report no running loop")
	}
}

func TestRegistryObserverTimeoutKeepsLoop(t *testing.T) {
	reader := &gatedReader{}
	reg := newTestRegistry(t, reader, nil)

	impatient, _, _ := reg.Watch(models.KindData, "t1", nil)
	patient, _, _ := reg.Watch(models.KindData, "t1", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := impatient.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("impatient error = %v, want deadline exceeded", err)
	}

	r := waitAsync(patient, context.Background())
	reader.released.Store(true)
	res := receive(t, r)
	if res.err != nil || res.task.Status != models.StatusSucceeded {
		t.Errorf("remaining observer should still get the result: %+v", res)
	}
}

func TestRegistryLastObserverLeavingStopsLoop(t *testing.T) {
	reg := newTestRegistry(t, &gatedReader{}, nil)

	h, _, _ := reg.Watch(models.KindData, "t1", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("loop kept running without observers")
	}
	if len(reg.Active()) != 0 {
		t.Errorf("active = %v, want empty", reg.Active())
	}
}

func TestRegistryAttachDeliversLastSnapshot(t *testing.T) {
	reader := &gatedReader{}
	reg := newTestRegistry(t, reader, nil)

	reg.Watch(models.KindData, "t1", nil)
	time.Sleep(25 * time.Millisecond)

	var got *models.Task
	_, attached, _ := reg.Watch(models.KindData, "t1", func(task *models.Task) {
		if got == nil {
			got = task
		}
	})
	if !attached {
		t.Fatal("expected to attach")
	}
	if got == nil || got.Status != models.StatusRunning {
		t.Errorf("attaching observer should immediately receive the last snapshot, got %+v", got)
	}
}

func TestRegistryRemovesFinishedEntries(t *testing.T) {
	reader := &gatedReader{}
	reader.released.Store(true)
	reg := newTestRegistry(t, reader, nil)

	if _, err := reg.Wait(context.Background(), models.KindData, "t1", nil); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(reg.Active()) != 0 {
		t.Errorf("active = %v, want empty after completion", reg.Active())
	}

	_, attached, _ := reg.Watch(models.KindData, "t1", nil)
	if attached {
		t.Error("a finished task should start a fresh loop")
	}
}

func TestRegistryPublishesTaskEvents(t *testing.T) {
	bus := events.NewEventBus(16)
	defer bus.Close()
	updates := bus.Subscribe(events.EventTaskUpdate)
	terminal := bus.Subscribe(events.EventTaskTerminal)

	reader := &gatedReader{}
	reg := newTestRegistry(t, reader, bus)
	h, _, _ := reg.Watch(models.KindData, "t1", nil)
	r := waitAsync(h, context.Background())

	select {
	case ev := <-updates:
		if te := ev.(*events.TaskEvent); te.Task.Status != models.StatusRunning || te.Observers != 1 {
			t.Errorf("update event = %+v", te)
		}
	case <-time.After(time.Second):
		t.Fatal("no update event")
	}

	reader.released.Store(true)
	receive(t, r)

	select {
	case ev := <-terminal:
		if te := ev.(*events.TaskEvent); te.Task.Status != models.StatusSucceeded {
			t.Errorf("terminal event = %+v", te)
		}
	case <-time.After(time.Second):
		t.Fatal("no terminal event")
	}
}

func TestRegistryClose(t *testing.T) {
	reg := NewRegistry(context.Background(), New(&gatedReader{}, fastOptions(), nil), nil, nil)

	h, _, _ := reg.Watch(models.KindData, "t1", nil)
	r := waitAsync(h, context.Background())
	reg.Close()

	if res := receive(t, r); !errors.Is(res.err, context.Canceled) {
		t.Errorf("error = %v, want cancellation", res.err)
	}
	if _, _, err := reg.Watch(models.KindData, "t2", nil); !errors.Is(err, ErrRegistryClosed) {
		t.Errorf("Watch after Close error = %v, want ErrRegistryClosed", err)
	}
}

func TestRegistryRejectsEmptyIdentity(t *testing.T) {
	reg := newTestRegistry(t, &gatedReader{}, nil)
	if _, err := reg.Wait(context.Background(), models.KindData, "", nil); !errors.Is(err, ErrInvalidTask) {
		t.Errorf("error = %v, want ErrInvalidTask", err)
	}
}
