package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/yurimoinhos/flowpay/internal/model"
)

// SessionEventFilter narrows a history query. Zero values match everything.
type SessionEventFilter struct {
	Email       string
	ServiceType model.ServiceType
	Status      model.SessionStatus
	Limit       int
	Offset      int
}

// CHSessionEventsRepository stores and lists session history in ClickHouse.
type CHSessionEventsRepository interface {
	InsertBatch(ctx context.Context, events []model.SessionEvent) error
	List(ctx context.Context, f SessionEventFilter) ([]model.SessionEventRow, error)
}

type chSessionEventsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHSessionEventsRepository(ch *sqlx.DB) CHSessionEventsRepository {
	return &chSessionEventsRepository{ch: ch}
}

// InsertBatch uses the driver's prepared-batch protocol: every Exec on the
// statement appends a row and Commit sends the block.
func (r *chSessionEventsRepository) InsertBatch(ctx context.Context, events []model.SessionEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := r.ch.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO flowpay.session_events
		    (id, type, session_id, customer_id, customer_email, service_type, status, occurred_at)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			ev.ID, string(ev.Type), ev.SessionID, ev.CustomerID, ev.CustomerEmail,
			ev.ServiceType.String(), ev.Status.String(), ev.OccurredAt,
		); err != nil {
			return fmt.Errorf("append event %s: %w", ev.ID, err)
		}
	}
	return tx.Commit()
}

func (r *chSessionEventsRepository) List(ctx context.Context, f SessionEventFilter) ([]model.SessionEventRow, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := `
		SELECT id, type, session_id, customer_id, customer_email, service_type, status, occurred_at
		FROM flowpay.session_events
		WHERE 1 = 1
	`
	var args []any

	if f.Email != "" {
		q += " AND customer_email = ?"
		args = append(args, f.Email)
	}
	if f.ServiceType != "" {
		q += " AND service_type = ?"
		args = append(args, f.ServiceType.String())
	}
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status.String())
	}

	q += " ORDER BY occurred_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	rows := []model.SessionEventRow{}
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
