package desk

import (
	"context"
	"errors"
	"fmt"

	"github.com/yurimoinhos/flowpay/internal/metrics"
	"github.com/yurimoinhos/flowpay/internal/model"
	"github.com/yurimoinhos/flowpay/internal/repository"
	"go.uber.org/zap"
)

// Admission keeps the IN_PROGRESS slots of each service type filled in
// arrival order. It holds no lock: every promotion is a conditional write on
// the session version and the service type's slot gate, and a lost race is
// retried against fresh state.
type Admission struct {
	sessions    repository.SessionsRepository
	maxSlots    int
	maxAttempts int
	log         *zap.Logger
}

func NewAdmission(sessions repository.SessionsRepository, maxSlots, maxAttempts int, log *zap.Logger) *Admission {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Admission{sessions: sessions, maxSlots: maxSlots, maxAttempts: maxAttempts, log: log}
}

func (a *Admission) MaxSlots() int { return a.maxSlots }

type outcome int

const (
	promoted outcome = iota
	skipped
	queueEmpty
	slotsFull
)

// Promote moves up to the free capacity of st from PENDING to IN_PROGRESS,
// oldest first, and reports how many sessions this call promoted. It is a
// no-op when nothing is free or nothing waits.
func (a *Admission) Promote(ctx context.Context, st model.ServiceType) (int, error) {
	inProgress, err := a.sessions.CountInProgress(ctx, st)
	if err != nil {
		return 0, fmt.Errorf("count in progress: %w", err)
	}
	free := a.maxSlots - inProgress
	if free <= 0 {
		return 0, nil
	}

	n := 0
	for i := 0; i < free; i++ {
		res, err := a.promoteNext(ctx, st)
		if err != nil {
			return n, err
		}
		switch res {
		case promoted:
			n++
		case queueEmpty, slotsFull:
			return n, nil
		}
	}
	return n, nil
}

// promoteNext promotes the current head of the queue. The gate version is
// read before the in-progress count: any promotion committed in between
// bumps the gate and fails this attempt's write.
func (a *Admission) promoteNext(ctx context.Context, st model.ServiceType) (outcome, error) {
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		gate, err := a.sessions.SlotGate(ctx, st)
		if err != nil {
			return 0, fmt.Errorf("slot gate: %w", err)
		}
		inProgress, err := a.sessions.CountInProgress(ctx, st)
		if err != nil {
			return 0, fmt.Errorf("count in progress: %w", err)
		}
		if inProgress >= a.maxSlots {
			return slotsFull, nil
		}

		cand, err := a.sessions.FindOldestPending(ctx, st)
		if err != nil {
			return 0, fmt.Errorf("find oldest pending: %w", err)
		}
		if cand == nil {
			return queueEmpty, nil
		}

		s, err := a.sessions.PromoteSession(ctx, *cand, gate)
		if errors.Is(err, repository.ErrVersionConflict) {
			metrics.PromotionConflicts.WithLabelValues(st.String()).Inc()
			a.log.Debug("promotion conflict",
				zap.Int64("session_id", cand.ID),
				zap.String("service_type", st.String()),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("promote session %d: %w", cand.ID, err)
		}

		metrics.SessionsTotal.WithLabelValues(string(model.EventPromoted), st.String()).Inc()
		a.log.Info("session promoted",
			zap.Int64("session_id", s.ID),
			zap.String("service_type", st.String()),
		)
		return promoted, nil
	}
	return skipped, nil
}
