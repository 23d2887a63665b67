package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/yurimoinhos/flowpay/internal/kafka"
	"github.com/yurimoinhos/flowpay/internal/model"
	"github.com/yurimoinhos/flowpay/internal/repository"
)

func TestBreakerOpensAndProbes(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }

	b.OnFailure()
	if !b.TryAcquire() {
		t.Fatal("one failure must not open the breaker")
	}
	b.OnFailure()
	if b.TryAcquire() {
		t.Fatal("breaker should be open after two failures")
	}

	now = now.Add(2 * time.Second)
	if !b.TryAcquire() {
		t.Fatal("probe should pass once openFor elapsed")
	}
	if b.TryAcquire() {
		t.Fatal("only one probe at a time")
	}

	b.OnFailure()
	if b.TryAcquire() {
		t.Fatal("failed probe reopens the breaker")
	}
	now = now.Add(2 * time.Second)
	if !b.TryAcquire() {
		t.Fatal("second probe should pass")
	}
	b.OnSuccess()
	if !b.TryAcquire() || !b.TryAcquire() {
		t.Fatal("closed breaker lets everything through")
	}
}

type fakeOutbox struct {
	mu        sync.Mutex
	rows      []model.OutboxEvent
	deleted   []int64
	attempted []int64
}

var _ repository.OutboxRepository = (*fakeOutbox)(nil)

func (f *fakeOutbox) Insert(context.Context, *sqlx.Tx, string, string, string, []byte) error {
	return nil
}

func (f *fakeOutbox) FetchBatch(_ context.Context, limit int) ([]model.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.rows) < limit {
		limit = len(f.rows)
	}
	return append([]model.OutboxEvent(nil), f.rows[:limit]...), nil
}

func (f *fakeOutbox) DeleteByIDs(_ context.Context, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ids...)
	keep := f.rows[:0]
	for _, r := range f.rows {
		if !contains(ids, r.ID) {
			keep = append(keep, r)
		}
	}
	f.rows = keep
	return nil
}

func (f *fakeOutbox) IncrementAttempts(_ context.Context, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempted = append(f.attempted, ids...)
	return nil
}

func (f *fakeOutbox) deletedSnapshot() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.deleted...)
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

type fakePublisher struct {
	err  error
	sent []kafka.Message
}

func (p *fakePublisher) Publish(_ context.Context, msgs ...kafka.Message) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msgs...)
	return nil
}

func outboxRows(n int) []model.OutboxEvent {
	rows := make([]model.OutboxEvent, n)
	for i := range rows {
		rows[i] = model.OutboxEvent{
			ID:          int64(i + 1),
			Aggregate:   "session",
			AggregateID: "7",
			Topic:       "flowpay.sessions",
			Payload:     []byte(`{}`),
		}
	}
	return rows
}

func TestRelayOncePublishesAndDeletes(t *testing.T) {
	ob := &fakeOutbox{rows: outboxRows(3)}
	pub := &fakePublisher{}
	r := NewRelay(ob, pub, NewBreaker(5, time.Second), nil)
	r.BatchSize = 2

	n, err := r.RelayOnce(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("RelayOnce = %d, %v", n, err)
	}
	if len(pub.sent) != 2 || string(pub.sent[0].Key) != "7" || pub.sent[0].Topic != "flowpay.sessions" {
		t.Fatalf("sent = %+v", pub.sent)
	}
	if len(ob.rows) != 1 || ob.rows[0].ID != 3 {
		t.Fatalf("remaining = %+v", ob.rows)
	}
}

func TestRelayOnceKeepsRowsOnFailure(t *testing.T) {
	ob := &fakeOutbox{rows: outboxRows(2)}
	pub := &fakePublisher{err: errors.New("broker down")}
	r := NewRelay(ob, pub, NewBreaker(1, time.Hour), nil)

	if _, err := r.RelayOnce(context.Background()); err == nil {
		t.Fatal("expected publish error")
	}
	if len(ob.rows) != 2 || len(ob.deleted) != 0 {
		t.Fatalf("rows must survive a failed publish: %+v", ob.rows)
	}
	if len(ob.attempted) != 2 {
		t.Fatalf("attempts bumped for %v", ob.attempted)
	}

	// breaker is open now; nothing reaches the broker
	pub.err = nil
	if _, err := r.RelayOnce(context.Background()); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("err = %v, want ErrBreakerOpen", err)
	}
	if len(pub.sent) != 0 {
		t.Fatalf("sent while open: %+v", pub.sent)
	}
}

func TestRelayRunDrainsUntilCancelled(t *testing.T) {
	ob := &fakeOutbox{rows: outboxRows(5)}
	pub := &fakePublisher{}
	r := NewRelay(ob, pub, nil, nil)
	r.BatchSize = 2
	r.PollInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// full batches are drained back to back before the first tick
	deadline := time.Now().Add(2 * time.Second)
	for len(ob.deletedSnapshot()) < 5 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if got := len(ob.deletedSnapshot()); got != 5 {
		t.Fatalf("deleted %d rows, want 5", got)
	}
}

type fakeSource struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []kafka.Message
}

func (s *fakeSource) Fetch(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-s.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (s *fakeSource) Commit(_ context.Context, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = append(s.committed, msgs...)
	return nil
}

func (s *fakeSource) committedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.committed)
}

type fakeEvents struct {
	mu       sync.Mutex
	failures int
	inserted []model.SessionEvent
}

func (f *fakeEvents) InsertBatch(_ context.Context, events []model.SessionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("clickhouse unavailable")
	}
	f.inserted = append(f.inserted, events...)
	return nil
}

func (f *fakeEvents) List(context.Context, repository.SessionEventFilter) ([]model.SessionEventRow, error) {
	return nil, nil
}

func (f *fakeEvents) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserted)
}

func eventMessage(t *testing.T, id string, sessionID int64, offset int64) kafka.Message {
	t.Helper()
	b, err := json.Marshal(model.SessionEvent{
		ID:          id,
		Type:        model.EventCreated,
		SessionID:   sessionID,
		ServiceType: model.ServiceLoans,
		Status:      model.StatusPending,
		OccurredAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{Offset: offset, Value: b}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAnalyticsWritesBatchAndCommits(t *testing.T) {
	src := &fakeSource{msgs: make(chan kafka.Message, 3)}
	src.msgs <- eventMessage(t, "01A", 1, 0)
	src.msgs <- kafka.Message{Offset: 1, Value: []byte(`not json`)}
	src.msgs <- eventMessage(t, "01B", 2, 2)

	events := &fakeEvents{}
	a := NewAnalytics(src, events, nil)
	a.BatchSize = 3
	a.BatchWait = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	waitFor(t, func() bool { return src.committedCount() == 3 })
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if events.count() != 2 {
		t.Fatalf("inserted %d events, want 2", events.count())
	}
}

func TestAnalyticsRetriesFailedBatchBeforeCommit(t *testing.T) {
	src := &fakeSource{msgs: make(chan kafka.Message, 1)}
	src.msgs <- eventMessage(t, "01A", 1, 0)

	events := &fakeEvents{failures: 2}
	a := NewAnalytics(src, events, nil)
	a.BatchSize = 1
	a.BatchWait = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	waitFor(t, func() bool { return events.count() == 1 })
	waitFor(t, func() bool { return src.committedCount() == 1 })
}
