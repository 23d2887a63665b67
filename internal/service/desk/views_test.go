package desk

import (
	"context"
	"testing"
	"time"

	"github.com/yurimoinhos/flowpay/internal/live"
	"github.com/yurimoinhos/flowpay/internal/model"
)

func next[T any](t *testing.T, ch <-chan live.Sample[T]) T {
	t.Helper()
	select {
	case s, ok := <-ch:
		if !ok {
			t.Fatal("stream closed")
		}
		if s.Err != nil {
			t.Fatalf("sample error: %v", s.Err)
		}
		return s.Value
	case <-time.After(2 * time.Second):
		t.Fatal("no sample")
	}
	panic("unreachable")
}

// waitClosed drains ch until it closes.
func waitClosed[T any](t *testing.T, ch <-chan live.Sample[T]) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream did not close")
		}
	}
}

func TestWatchQueuePositionEmitsChanges(t *testing.T) {
	svc, _ := newTestService(t, 1)
	mustCreate(t, svc, "a@flow.io", model.ServiceLoans)
	mustCreate(t, svc, "b@flow.io", model.ServiceLoans)
	mustCreate(t, svc, "c@flow.io", model.ServiceLoans)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := svc.WatchQueuePosition(ctx, "c@flow.io")
	if err != nil {
		t.Fatal(err)
	}

	first := next(t, ch)
	if first.Position != 2 || first.Status != model.StatusPending || first.ServiceType != model.ServiceLoans {
		t.Fatalf("first = %+v, want position 2 PENDING LOANS", first)
	}

	if _, err := svc.FinishActiveSession(context.Background(), "b@flow.io"); err != nil {
		t.Fatal(err)
	}
	if p := next(t, ch); p.Position != 1 || p.Status != model.StatusPending {
		t.Fatalf("after b left = %+v, want position 1", p)
	}

	if _, err := svc.FinishActiveSession(context.Background(), "a@flow.io"); err != nil {
		t.Fatal(err)
	}
	if p := next(t, ch); p.Status != model.StatusInProgress {
		t.Fatalf("after a finished = %+v, want IN_PROGRESS", p)
	}
}

func TestWatchQueuePositionEndsWhenCompleted(t *testing.T) {
	svc, store := newTestService(t, 1)
	a := mustCreate(t, svc, "a@flow.io", model.ServiceLoans)

	ch, err := svc.WatchQueuePosition(context.Background(), "a@flow.io")
	if err != nil {
		t.Fatal(err)
	}
	if p := next(t, ch); p.Status != model.StatusInProgress {
		t.Fatalf("first = %+v, want IN_PROGRESS", p)
	}

	if _, err := svc.CompleteSession(context.Background(), a.ID); err != nil {
		t.Fatal(err)
	}
	if p := next(t, ch); p.Status != model.StatusCompleted || p.Position != 0 {
		t.Fatalf("last = %+v, want COMPLETED at position 0", p)
	}
	waitClosed(t, ch)
	if got := store.status(a.ID); got != model.StatusCompleted {
		t.Fatalf("a = %s, want COMPLETED", got)
	}
}

func TestWatchQueuePositionDisconnectCancelsWaitingSession(t *testing.T) {
	svc, store := newTestService(t, 1)
	ctx := context.Background()
	a := mustCreate(t, svc, "a@flow.io", model.ServiceLoans)
	b := mustCreate(t, svc, "b@flow.io", model.ServiceLoans)
	c := mustCreate(t, svc, "c@flow.io", model.ServiceLoans)

	// free a's slot behind the desk's back so only the disconnect refills it
	done := *mustFind(t, store, a.ID)
	at := store.now()
	done.Status, done.FinishedAt = model.StatusCompleted, &at
	if _, err := store.SaveSession(ctx, done); err != nil {
		t.Fatal(err)
	}

	subCtx, disconnect := context.WithCancel(ctx)
	ch, err := svc.WatchQueuePosition(subCtx, "b@flow.io")
	if err != nil {
		t.Fatal(err)
	}
	if p := next(t, ch); p.Status != model.StatusPending {
		t.Fatalf("first = %+v, want PENDING", p)
	}
	disconnect()
	waitClosed(t, ch)

	if got := store.status(b.ID); got != model.StatusCanceled {
		t.Fatalf("b = %s, want CANCELED", got)
	}
	if got := store.status(c.ID); got != model.StatusInProgress {
		t.Fatalf("c = %s, want IN_PROGRESS after the freed slot was refilled", got)
	}
}

func TestWatchQueuePositionDisconnectKeepsInProgress(t *testing.T) {
	svc, store := newTestService(t, 1)
	a := mustCreate(t, svc, "a@flow.io", model.ServiceLoans)

	subCtx, disconnect := context.WithCancel(context.Background())
	ch, err := svc.WatchQueuePosition(subCtx, "a@flow.io")
	if err != nil {
		t.Fatal(err)
	}
	next(t, ch)
	disconnect()
	waitClosed(t, ch)

	if got := store.status(a.ID); got != model.StatusInProgress {
		t.Fatalf("a = %s, want IN_PROGRESS", got)
	}
}

func TestWatchQueuePositionTimeoutLeavesSession(t *testing.T) {
	svc, store := newTestService(t, 1)
	svc.cfg.QueueStreamTimeout = 30 * time.Millisecond
	mustCreate(t, svc, "a@flow.io", model.ServiceLoans)
	b := mustCreate(t, svc, "b@flow.io", model.ServiceLoans)

	ch, err := svc.WatchQueuePosition(context.Background(), "b@flow.io")
	if err != nil {
		t.Fatal(err)
	}
	waitClosed(t, ch)

	if got := store.status(b.ID); got != model.StatusPending {
		t.Fatalf("b = %s, want PENDING after timeout", got)
	}
}

func TestWatchQueuePositionWithoutSession(t *testing.T) {
	svc, _ := newTestService(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := svc.WatchQueuePosition(ctx, "late@flow.io")
	if err != nil {
		t.Fatal(err)
	}

	// nothing is emitted until the customer joins
	select {
	case s := <-ch:
		t.Fatalf("unexpected sample %+v", s)
	case <-time.After(20 * time.Millisecond):
	}

	mustCreate(t, svc, "late@flow.io", model.ServiceOther)
	// PENDING may be observed before the promotion lands
	for p := next(t, ch); p.Status != model.StatusInProgress; p = next(t, ch) {
		if p.Status != model.StatusPending {
			t.Fatalf("sample = %+v, want PENDING or IN_PROGRESS", p)
		}
	}
	cancel()
	waitClosed(t, ch)

	if _, err := svc.WatchQueuePosition(context.Background(), "  "); err == nil {
		t.Fatal("expected validation error for blank email")
	}
}

func TestWatchInProgress(t *testing.T) {
	svc, _ := newTestService(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := svc.WatchInProgress(ctx, model.ServiceCardProblems)
	if err != nil {
		t.Fatal(err)
	}
	if list := next(t, ch); len(list) != 0 {
		t.Fatalf("initial list = %+v, want empty", list)
	}

	mustCreate(t, svc, "a@flow.io", model.ServiceCardProblems)
	list := next(t, ch)
	if len(list) != 1 || list[0].CustomerEmail != "a@flow.io" || list[0].CustomerName != "A" {
		t.Fatalf("list = %+v, want a@flow.io", list)
	}

	// a different queue does not produce an update
	mustCreate(t, svc, "z@flow.io", model.ServiceOther)
	mustCreate(t, svc, "b@flow.io", model.ServiceCardProblems)
	if list := next(t, ch); len(list) != 2 {
		t.Fatalf("list = %+v, want two sessions", list)
	}

	if _, err := svc.WatchInProgress(ctx, "NOPE"); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestWatchMetrics(t *testing.T) {
	svc, _ := newTestService(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := svc.WatchMetrics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if m := next(t, ch); m.TotalSessions != 0 {
		t.Fatalf("initial = %+v", m)
	}
	mustCreate(t, svc, "a@flow.io", model.ServiceLoans)
	// a sample may land between the insert and the promotion
	for {
		m := next(t, ch)
		if m.TotalSessions != 1 {
			t.Fatalf("after create = %+v", m)
		}
		if m.InProgressCount == 1 && m.PendingCount == 0 {
			return
		}
	}
}

func mustFind(t *testing.T, store *memStore, id int64) *model.Session {
	t.Helper()
	s, err := store.FindSessionByID(context.Background(), id)
	if err != nil || s == nil {
		t.Fatalf("find session %d: %v", id, err)
	}
	return s
}
