package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/yurimoinhos/flowpay/internal/kafka"
	"github.com/yurimoinhos/flowpay/internal/metrics"
	"github.com/yurimoinhos/flowpay/internal/model"
	"github.com/yurimoinhos/flowpay/internal/repository"
	"go.uber.org/zap"
)

// Source is the read side of the broker.
type Source interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msgs ...kafka.Message) error
}

// Analytics copies session events from Kafka into ClickHouse. Offsets are
// committed after the batch is written; replays collapse on the event id.
type Analytics struct {
	Source Source
	Events repository.CHSessionEventsRepository
	Log    *zap.Logger

	BatchSize int           // max buffered events per flush
	BatchWait time.Duration // max time to wait before flush
}

func NewAnalytics(src Source, events repository.CHSessionEventsRepository, log *zap.Logger) *Analytics {
	if log == nil {
		log = zap.NewNop()
	}
	return &Analytics{
		Source:    src,
		Events:    events,
		Log:       log,
		BatchSize: 500,
		BatchWait: time.Second,
	}
}

type ingestItem struct {
	msg   kafka.Message
	event *model.SessionEvent // nil for undecodable messages
}

// Run blocks until ctx is cancelled, then flushes what it holds.
func (a *Analytics) Run(ctx context.Context) error {
	if a.BatchSize <= 0 {
		a.BatchSize = 500
	}
	if a.BatchWait <= 0 {
		a.BatchWait = time.Second
	}

	in := make(chan ingestItem, a.BatchSize)
	go a.fetch(ctx, in)
	a.runBatchWriter(ctx, in)
	return nil
}

func (a *Analytics) fetch(ctx context.Context, out chan<- ingestItem) {
	defer close(out)
	for {
		m, err := a.Source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.Log.Warn("analytics: kafka fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}

		it := ingestItem{msg: m}
		var ev model.SessionEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil || ev.ID == "" || ev.SessionID == 0 {
			// poison: committed with the next flush, never written
			metrics.EventsIngested.WithLabelValues("invalid").Inc()
			a.Log.Warn("analytics: skipping undecodable event",
				zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset), zap.Error(err))
		} else {
			it.event = &ev
		}

		select {
		case out <- it:
		case <-ctx.Done():
			return
		}
	}
}

// runBatchWriter flushes by size or time. A failed write keeps the batch and
// stops reading until a later tick gets it through.
func (a *Analytics) runBatchWriter(ctx context.Context, in <-chan ingestItem) {
	tick := time.NewTicker(a.BatchWait)
	defer tick.Stop()

	var buf []ingestItem

	for {
		src := in
		if len(buf) >= a.BatchSize {
			src = nil
		}

		select {
		case <-ctx.Done():
			if len(buf) > 0 {
				fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				a.flush(fctx, &buf)
				cancel()
			}
			return

		case it, ok := <-src:
			if !ok {
				a.flush(context.WithoutCancel(ctx), &buf)
				return
			}
			buf = append(buf, it)
			if len(buf) >= a.BatchSize {
				a.flush(ctx, &buf)
			}

		case <-tick.C:
			a.flush(ctx, &buf)
		}
	}
}

func (a *Analytics) flush(ctx context.Context, buf *[]ingestItem) bool {
	items := *buf
	if len(items) == 0 {
		return true
	}

	events := make([]model.SessionEvent, 0, len(items))
	msgs := make([]kafka.Message, 0, len(items))
	for _, it := range items {
		msgs = append(msgs, it.msg)
		if it.event != nil {
			events = append(events, *it.event)
		}
	}

	if len(events) > 0 {
		if err := a.Events.InsertBatch(ctx, events); err != nil {
			metrics.EventsIngested.WithLabelValues("error").Add(float64(len(events)))
			a.Log.Error("analytics: clickhouse insert failed", zap.Int("events", len(events)), zap.Error(err))
			return false
		}
		metrics.EventsIngested.WithLabelValues("ok").Add(float64(len(events)))
	}

	if err := a.Source.Commit(ctx, msgs...); err != nil {
		// rows are in; a replay is absorbed by the table engine
		a.Log.Warn("analytics: commit failed", zap.Error(err))
	}
	a.Log.Debug("analytics: flushed", zap.Int("events", len(events)), zap.Int("messages", len(msgs)))
	*buf = items[:0]
	return true
}
