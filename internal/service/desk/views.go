package desk

import (
	"context"
	"fmt"
	"time"

	"github.com/yurimoinhos/flowpay/internal/live"
	"github.com/yurimoinhos/flowpay/internal/model"
	"github.com/yurimoinhos/flowpay/internal/util"
	"go.uber.org/zap"
)

const abandonTimeout = 10 * time.Second

// WatchQueuePosition streams (position, status) changes of the customer's
// session. The stream ends after the session is reported COMPLETED, after
// QueueStreamTimeout, or when ctx is canceled. Cancellation by the consumer
// while the session is still PENDING cancels it and refills the freed slot;
// an IN_PROGRESS session is left alone. The timeout does not cancel anything.
func (s *Service) WatchQueuePosition(ctx context.Context, email string) (<-chan live.Sample[model.QueuePosition], error) {
	email = util.NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrValidation)
	}

	streamCtx, cancel := context.WithTimeout(ctx, s.cfg.QueueStreamTimeout)

	// tracked is only touched by the sampling goroutine.
	var tracked int64
	fetch := func(ctx context.Context) (model.QueuePosition, bool, error) {
		active, err := s.sessions.FindActiveSessionByEmail(ctx, email)
		if err != nil {
			return model.QueuePosition{}, false, err
		}
		if active != nil {
			tracked = active.ID
			return s.positionFor(ctx, email, *active)
		}
		if tracked == 0 {
			return model.QueuePosition{}, false, nil
		}
		// the session we were following has finished
		ended, err := s.sessions.FindSessionByID(ctx, tracked)
		if err != nil || ended == nil {
			return model.QueuePosition{}, false, err
		}
		return model.QueuePosition{
			SessionID:   ended.ID,
			Status:      ended.Status,
			ServiceType: ended.ServiceType,
			Timestamp:   s.now(),
		}, true, nil
	}

	in := live.Watch(streamCtx, fetch, live.Options[model.QueuePosition]{
		Interval: s.cfg.SampleInterval,
		Equal:    model.QueuePosition.SameAs,
		Done:     func(p model.QueuePosition) bool { return p.Status == model.StatusCompleted },
	})

	out := make(chan live.Sample[model.QueuePosition])
	go func() {
		defer close(out)
		defer cancel()
		for smp := range in {
			select {
			case out <- smp:
			case <-streamCtx.Done():
			}
		}
		if ctx.Err() != nil {
			s.releaseAbandoned(context.WithoutCancel(ctx), email)
		}
	}()
	return out, nil
}

// releaseAbandoned cancels the customer's session if it is still waiting.
func (s *Service) releaseAbandoned(ctx context.Context, email string) {
	ctx, cancel := context.WithTimeout(ctx, abandonTimeout)
	defer cancel()

	pending := model.StatusPending
	done, err := s.finish(ctx, email, &pending)
	if err != nil {
		s.log.Debug("abandoned stream: nothing to cancel", zap.String("email", email), zap.Error(err))
		return
	}
	if done.Active() {
		return
	}
	s.log.Info("waiting session canceled after disconnect",
		zap.Int64("session_id", done.ID),
		zap.String("email", email),
	)
	if _, err := s.admission.Promote(ctx, done.ServiceType); err != nil {
		s.log.Error("promote after disconnect", zap.String("service_type", done.ServiceType.String()), zap.Error(err))
	}
}

// WatchInProgress streams the IN_PROGRESS list of st whenever it changes.
func (s *Service) WatchInProgress(ctx context.Context, st model.ServiceType) (<-chan live.Sample[[]model.InProgressSession], error) {
	if !st.Valid() {
		return nil, fmt.Errorf("%w: unknown service type %q", ErrValidation, st)
	}
	fetch := func(ctx context.Context) ([]model.InProgressSession, bool, error) {
		list, err := s.sessions.FindAllInProgress(ctx, st)
		return list, err == nil, err
	}
	return live.Watch(ctx, fetch, live.Options[[]model.InProgressSession]{
		Interval: s.cfg.SampleInterval,
		Equal:    model.SameInProgress,
	}), nil
}

// WatchMetrics streams the desk-wide snapshot whenever it changes.
func (s *Service) WatchMetrics(ctx context.Context) (<-chan live.Sample[model.SessionMetrics], error) {
	fetch := func(ctx context.Context) (model.SessionMetrics, bool, error) {
		m, err := s.stats.Snapshot(ctx)
		return m, err == nil, err
	}
	return live.Watch(ctx, fetch, live.Options[model.SessionMetrics]{
		Interval: s.cfg.SampleInterval,
		Equal:    func(a, b model.SessionMetrics) bool { return a == b },
	}), nil
}
