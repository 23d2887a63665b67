package desk

import (
	"context"
	"fmt"
	"math"

	"github.com/yurimoinhos/flowpay/internal/model"
	"github.com/yurimoinhos/flowpay/internal/repository"
	"golang.org/x/sync/errgroup"
)

// Aggregator computes desk-wide statistics from the session table at query time.
type Aggregator struct {
	sessions repository.SessionsRepository
}

func NewAggregator(sessions repository.SessionsRepository) *Aggregator {
	return &Aggregator{sessions: sessions}
}

func (a *Aggregator) Snapshot(ctx context.Context) (model.SessionMetrics, error) {
	var (
		counts       model.StatusCounts
		avgDuration  float64
		avgPerClient float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		counts, err = a.sessions.AggregateCounts(gctx)
		return err
	})
	g.Go(func() (err error) {
		avgDuration, err = a.sessions.AverageDuration(gctx)
		return err
	})
	g.Go(func() (err error) {
		avgPerClient, err = a.sessions.AveragePerCustomer(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.SessionMetrics{}, fmt.Errorf("session metrics: %w", err)
	}
	return buildMetrics(counts, avgDuration, avgPerClient), nil
}

func buildMetrics(c model.StatusCounts, avgDuration, avgPerCustomer float64) model.SessionMetrics {
	finalized := c.Completed + c.Canceled
	return model.SessionMetrics{
		AverageSessionsPerCustomer:    finite(avgPerCustomer),
		AverageServiceDurationSeconds: finite(avgDuration),
		PendingCount:                  c.Pending,
		InProgressCount:               c.InProgress,
		CompletedCount:                c.Completed,
		CanceledCount:                 c.Canceled,
		TotalSessions:                 c.Total(),
		CompletionRate:                percent(c.Completed, finalized),
		CancellationRate:              percent(c.Canceled, finalized),
	}
}

func percent(n, of int64) float64 {
	if of == 0 {
		return 0
	}
	return float64(n) / float64(of) * 100
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Metrics returns the current desk-wide snapshot.
func (s *Service) Metrics(ctx context.Context) (model.SessionMetrics, error) {
	return s.stats.Snapshot(ctx)
}
