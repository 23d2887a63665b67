package worker

import (
	"context"
	"errors"
	"time"

	"github.com/yurimoinhos/flowpay/internal/kafka"
	"github.com/yurimoinhos/flowpay/internal/metrics"
	"github.com/yurimoinhos/flowpay/internal/model"
	"github.com/yurimoinhos/flowpay/internal/repository"
	"go.uber.org/zap"
)

var ErrBreakerOpen = errors.New("relay: breaker open")

// Publisher is the write side of the broker.
type Publisher interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

// Relay moves committed outbox rows to Kafka. Rows are deleted only after
// the broker acknowledged them, so delivery is at-least-once.
type Relay struct {
	Outbox    repository.OutboxRepository
	Publisher Publisher
	Breaker   *Breaker
	Log       *zap.Logger

	BatchSize    int
	PollInterval time.Duration
}

func NewRelay(outbox repository.OutboxRepository, pub Publisher, breaker *Breaker, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{
		Outbox:       outbox,
		Publisher:    pub,
		Breaker:      breaker,
		Log:          log,
		BatchSize:    100,
		PollInterval: 500 * time.Millisecond,
	}
}

// Run polls the outbox until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	if r.BatchSize <= 0 {
		r.BatchSize = 100
	}
	if r.PollInterval <= 0 {
		r.PollInterval = 500 * time.Millisecond
	}

	tick := time.NewTicker(r.PollInterval)
	defer tick.Stop()

	for {
		// drain while full batches keep coming
		for {
			n, err := r.RelayOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if !errors.Is(err, ErrBreakerOpen) {
					r.Log.Warn("relay: batch failed", zap.Error(err))
				}
				break
			}
			if n < r.BatchSize {
				break
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}

// RelayOnce publishes one batch and reports how many rows it moved.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	rows, err := r.Outbox.FetchBatch(ctx, r.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	if r.Breaker != nil && !r.Breaker.TryAcquire() {
		metrics.OutboxPublished.WithLabelValues("skipped").Add(float64(len(rows)))
		return 0, ErrBreakerOpen
	}

	ids := make([]int64, 0, len(rows))
	msgs := make([]kafka.Message, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
		msgs = append(msgs, toMessage(row))
	}

	if err := r.Publisher.Publish(ctx, msgs...); err != nil {
		if r.Breaker != nil {
			r.Breaker.OnFailure()
		}
		metrics.OutboxPublished.WithLabelValues("error").Add(float64(len(rows)))
		if aerr := r.Outbox.IncrementAttempts(context.WithoutCancel(ctx), ids); aerr != nil {
			r.Log.Warn("relay: bump attempts failed", zap.Error(aerr))
		}
		return 0, err
	}
	if r.Breaker != nil {
		r.Breaker.OnSuccess()
	}
	metrics.OutboxPublished.WithLabelValues("ok").Add(float64(len(rows)))

	// a failed delete republishes the batch; the analytics store dedups by event id
	if err := r.Outbox.DeleteByIDs(context.WithoutCancel(ctx), ids); err != nil {
		return len(rows), err
	}
	r.Log.Debug("relay: published", zap.Int("rows", len(rows)))
	return len(rows), nil
}

func toMessage(row model.OutboxEvent) kafka.Message {
	return kafka.Message{
		Topic: row.Topic,
		Key:   []byte(row.AggregateID),
		Value: row.Payload,
		Headers: []kafka.Header{
			{Key: "aggregate", Value: []byte(row.Aggregate)},
		},
		Time: row.CreatedAt,
	}
}
