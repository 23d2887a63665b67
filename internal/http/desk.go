package http

import (
	"context"

	"github.com/yurimoinhos/flowpay/internal/live"
	"github.com/yurimoinhos/flowpay/internal/model"
	"github.com/yurimoinhos/flowpay/internal/service/desk"
)

// Desk is what the handlers need from the service desk.
type Desk interface {
	CreateSession(ctx context.Context, req desk.CreateSessionRequest) (model.Session, error)
	FinishActiveSession(ctx context.Context, email string) (model.Session, error)
	CompleteSession(ctx context.Context, id int64) (model.Session, error)
	PositionOf(ctx context.Context, email string) (model.QueuePosition, error)
	CheckAvailableSlots(ctx context.Context, st model.ServiceType) (int, error)
	AvailableSlotsFor(ctx context.Context, email string) (int, error)
	WatchQueuePosition(ctx context.Context, email string) (<-chan live.Sample[model.QueuePosition], error)
	WatchInProgress(ctx context.Context, st model.ServiceType) (<-chan live.Sample[[]model.InProgressSession], error)
	WatchMetrics(ctx context.Context) (<-chan live.Sample[model.SessionMetrics], error)
}

var _ Desk = (*desk.Service)(nil)
