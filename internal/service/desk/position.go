package desk

import (
	"context"
	"errors"
	"fmt"

	"github.com/yurimoinhos/flowpay/internal/model"
	"github.com/yurimoinhos/flowpay/internal/repository"
	"github.com/yurimoinhos/flowpay/internal/util"
)

// PositionOf returns the customer's place among PENDING sessions of the same
// service type, counting from 1.
func (s *Service) PositionOf(ctx context.Context, email string) (model.QueuePosition, error) {
	email = util.NormalizeEmail(email)
	active, err := s.sessions.FindActiveSessionByEmail(ctx, email)
	if err != nil {
		return model.QueuePosition{}, fmt.Errorf("find active session: %w", err)
	}
	if active == nil {
		return model.QueuePosition{}, fmt.Errorf("%w: no active session for %s", ErrNotFound, email)
	}
	p, found, err := s.positionFor(ctx, email, *active)
	if err != nil {
		return model.QueuePosition{}, err
	}
	if !found {
		return model.QueuePosition{}, fmt.Errorf("%w: no active session for %s", ErrNotFound, email)
	}
	return p, nil
}

// positionFor ranks active. found is false when the session finished between
// the two reads.
func (s *Service) positionFor(ctx context.Context, email string, active model.Session) (model.QueuePosition, bool, error) {
	pos, err := s.sessions.QueuePosition(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return model.QueuePosition{}, false, nil
	}
	if err != nil {
		return model.QueuePosition{}, false, fmt.Errorf("queue position: %w", err)
	}
	return model.QueuePosition{
		SessionID:   active.ID,
		Position:    pos,
		Status:      active.Status,
		ServiceType: active.ServiceType,
		Timestamp:   s.now(),
	}, true, nil
}

// CheckAvailableSlots returns the free IN_PROGRESS capacity of st.
func (s *Service) CheckAvailableSlots(ctx context.Context, st model.ServiceType) (int, error) {
	if !st.Valid() {
		return 0, fmt.Errorf("%w: unknown service type %q", ErrValidation, st)
	}
	n, err := s.sessions.CountInProgress(ctx, st)
	if err != nil {
		return 0, fmt.Errorf("count in progress: %w", err)
	}
	return max(s.admission.MaxSlots()-n, 0), nil
}

// AvailableSlotsFor reports free capacity for the service type of the
// customer's active session.
func (s *Service) AvailableSlotsFor(ctx context.Context, email string) (int, error) {
	email = util.NormalizeEmail(email)
	active, err := s.sessions.FindActiveSessionByEmail(ctx, email)
	if err != nil {
		return 0, fmt.Errorf("find active session: %w", err)
	}
	if active == nil {
		return 0, fmt.Errorf("%w: no active session for %s", ErrNotFound, email)
	}
	return s.CheckAvailableSlots(ctx, active.ServiceType)
}
