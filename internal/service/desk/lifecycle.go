package desk

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yurimoinhos/flowpay/internal/metrics"
	"github.com/yurimoinhos/flowpay/internal/model"
	"github.com/yurimoinhos/flowpay/internal/repository"
	"github.com/yurimoinhos/flowpay/internal/util"
	"go.uber.org/zap"
)

type CreateSessionRequest struct {
	Name        string
	Email       string
	ServiceType string
}

// CreateSession queues a new PENDING session for the customer and refills
// free slots of its service type. The created session is returned even when
// the follow-up promotion fails.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (model.Session, error) {
	if strings.TrimSpace(req.ServiceType) == "" {
		return model.Session{}, fmt.Errorf("%w: service type is required", ErrValidation)
	}
	st, ok := model.ParseServiceType(req.ServiceType)
	if !ok {
		return model.Session{}, fmt.Errorf("%w: unknown service type %q", ErrValidation, req.ServiceType)
	}
	email := util.NormalizeEmail(req.Email)
	if !util.ValidEmail(email) {
		return model.Session{}, fmt.Errorf("%w: a valid email is required", ErrValidation)
	}

	active, err := s.sessions.FindActiveSessionByEmail(ctx, email)
	if err != nil {
		return model.Session{}, fmt.Errorf("find active session: %w", err)
	}
	if active != nil {
		return model.Session{}, fmt.Errorf("%w: customer %s already has an active session (%s)", ErrConflict, email, active.Status)
	}

	cust, err := s.resolveCustomer(ctx, strings.TrimSpace(req.Name), email)
	if err != nil {
		return model.Session{}, err
	}

	sess, err := s.sessions.InsertSession(ctx, model.Session{
		CustomerID:  cust.ID,
		ServiceType: st,
		Status:      model.StatusPending,
		StartedAt:   s.now(),
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return model.Session{}, fmt.Errorf("%w: customer %s already has an active session", ErrConflict, email)
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("insert session: %w", err)
	}

	metrics.SessionsTotal.WithLabelValues(string(model.EventCreated), st.String()).Inc()
	s.log.Info("session created",
		zap.Int64("session_id", sess.ID),
		zap.String("email", email),
		zap.String("service_type", st.String()),
	)

	if _, err := s.admission.Promote(ctx, st); err != nil {
		return sess, fmt.Errorf("promote %s: %w", st, err)
	}
	return sess, nil
}

func (s *Service) resolveCustomer(ctx context.Context, name, email string) (model.Customer, error) {
	c, err := s.customers.FindCustomerByEmail(ctx, email)
	if err != nil {
		return model.Customer{}, fmt.Errorf("find customer: %w", err)
	}
	if c != nil {
		return *c, nil
	}
	saved, err := s.customers.SaveCustomer(ctx, model.Customer{Name: name, Email: email, CreatedAt: s.now()})
	if err != nil {
		return model.Customer{}, fmt.Errorf("save customer: %w", err)
	}
	return saved, nil
}

// FinishActiveSession ends the customer's active session: IN_PROGRESS becomes
// COMPLETED, PENDING becomes CANCELED. A concurrent change between the read
// and the conditional write is re-evaluated against the new state.
func (s *Service) FinishActiveSession(ctx context.Context, email string) (model.Session, error) {
	email = util.NormalizeEmail(email)
	exists, err := s.customers.CustomerExists(ctx, email)
	if err != nil {
		return model.Session{}, fmt.Errorf("customer exists: %w", err)
	}
	if !exists {
		return model.Session{}, fmt.Errorf("%w: customer %s", ErrNotFound, email)
	}

	done, err := s.finish(ctx, email, nil)
	if err != nil {
		return model.Session{}, err
	}
	if done.Active() {
		return done, nil
	}

	if _, err := s.admission.Promote(ctx, done.ServiceType); err != nil {
		return done, fmt.Errorf("promote %s: %w", done.ServiceType, err)
	}
	return done, nil
}

// finish resolves and writes the terminal status of the active session of
// email. When only is set, sessions in other statuses are returned untouched.
func (s *Service) finish(ctx context.Context, email string, only *model.SessionStatus) (model.Session, error) {
	for attempt := 1; ; attempt++ {
		active, err := s.sessions.FindActiveSessionByEmail(ctx, email)
		if err != nil {
			return model.Session{}, fmt.Errorf("find active session: %w", err)
		}
		if active == nil {
			return model.Session{}, fmt.Errorf("%w: no active session for %s", ErrNotFound, email)
		}
		if only != nil && active.Status != *only {
			return *active, nil
		}
		status, ok := active.Status.FinishStatus()
		if !ok {
			return *active, nil
		}

		done, err := s.sessions.SetFinishedNow(ctx, email, status, active.Version)
		if errors.Is(err, repository.ErrVersionConflict) || errors.Is(err, repository.ErrNotFound) {
			if attempt < s.cfg.PromoteAttempts {
				continue
			}
			return model.Session{}, fmt.Errorf("%w: session %d changed concurrently", ErrConflict, active.ID)
		}
		if err != nil {
			return model.Session{}, fmt.Errorf("finish session %d: %w", active.ID, err)
		}

		metrics.SessionsTotal.WithLabelValues(string(model.EventTypeFor(status)), done.ServiceType.String()).Inc()
		s.log.Info("session finished",
			zap.Int64("session_id", done.ID),
			zap.String("email", email),
			zap.String("status", status.String()),
		)
		return done, nil
	}
}

// CompleteSession is the operator path: only IN_PROGRESS sessions can be
// completed.
func (s *Service) CompleteSession(ctx context.Context, id int64) (model.Session, error) {
	sess, err := s.sessions.FindSessionByID(ctx, id)
	if err != nil {
		return model.Session{}, fmt.Errorf("find session: %w", err)
	}
	if sess == nil {
		return model.Session{}, fmt.Errorf("%w: session %d", ErrNotFound, id)
	}
	if sess.Status != model.StatusInProgress {
		return model.Session{}, fmt.Errorf("%w: only IN_PROGRESS sessions can be completed, current status: %s", ErrConflict, sess.Status)
	}

	at := s.now()
	sess.Status = model.StatusCompleted
	sess.FinishedAt = &at
	done, err := s.sessions.SaveSession(ctx, *sess)
	if errors.Is(err, repository.ErrVersionConflict) {
		return model.Session{}, fmt.Errorf("%w: session %d changed concurrently", ErrConflict, id)
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("save session %d: %w", id, err)
	}

	metrics.SessionsTotal.WithLabelValues(string(model.EventCompleted), done.ServiceType.String()).Inc()
	s.log.Info("session completed", zap.Int64("session_id", id))

	if _, err := s.admission.Promote(ctx, done.ServiceType); err != nil {
		return done, fmt.Errorf("promote %s: %w", done.ServiceType, err)
	}
	return done, nil
}
