package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/yurimoinhos/flowpay/internal/model"
	"github.com/yurimoinhos/flowpay/internal/util"
)

const sessionAggregate = "session"

// SessionsRepository persists sessions. Every mutation is conditional on the
// version the caller read and writes an outbox event in the same transaction.
type SessionsRepository interface {
	// FindActiveSessionByEmail returns nil, nil when the customer has no
	// session with finished_at unset.
	FindActiveSessionByEmail(ctx context.Context, email string) (*model.Session, error)
	FindSessionByID(ctx context.Context, id int64) (*model.Session, error)

	// InsertSession returns ErrDuplicate when the customer already has an
	// active session.
	InsertSession(ctx context.Context, s model.Session) (model.Session, error)
	// SaveSession writes status and finished_at when s.Version still matches.
	SaveSession(ctx context.Context, s model.Session) (model.Session, error)
	// SetFinishedNow finishes the customer's active session with status when
	// it is still at version.
	SetFinishedNow(ctx context.Context, email string, status model.SessionStatus, version int64) (model.Session, error)

	// SlotGate returns the admission gate version of a service type.
	SlotGate(ctx context.Context, st model.ServiceType) (int64, error)
	// PromoteSession moves a PENDING session to IN_PROGRESS. Both the session
	// version and the gate version must match or ErrVersionConflict is returned.
	PromoteSession(ctx context.Context, s model.Session, gate int64) (model.Session, error)

	CountInProgress(ctx context.Context, st model.ServiceType) (int, error)
	FindOldestPending(ctx context.Context, st model.ServiceType) (*model.Session, error)
	FindAllInProgress(ctx context.Context, st model.ServiceType) ([]model.InProgressSession, error)
	// QueuePosition returns ErrNotFound when the email has no active session.
	QueuePosition(ctx context.Context, email string) (int64, error)

	AggregateCounts(ctx context.Context) (model.StatusCounts, error)
	AverageDuration(ctx context.Context) (float64, error)
	AveragePerCustomer(ctx context.Context) (float64, error)
}

type SessionsRepositoryImpl struct {
	db     *sqlx.DB
	outbox OutboxRepository
	topic  string
	now    func() time.Time
}

func NewSessionsRepository(db *sqlx.DB, outbox OutboxRepository, topic string) *SessionsRepositoryImpl {
	return &SessionsRepositoryImpl{
		db:     db,
		outbox: outbox,
		topic:  topic,
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

var _ SessionsRepository = (*SessionsRepositoryImpl)(nil)

const sessionColumns = `cs.id, cs.customer_id, cs.service_type, cs.status, cs.started_at, cs.finished_at, cs.version`

func (r *SessionsRepositoryImpl) getOne(ctx context.Context, q string, args ...any) (*model.Session, error) {
	var s model.Session
	err := r.db.GetContext(ctx, &s, q, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionsRepositoryImpl) FindActiveSessionByEmail(ctx context.Context, email string) (*model.Session, error) {
	return r.getOne(ctx, `
		SELECT `+sessionColumns+`
		  FROM customer_sessions cs
		  JOIN customers c ON c.id = cs.customer_id
		 WHERE c.email = ? AND cs.finished_at IS NULL
		 LIMIT 1
	`, email)
}

func (r *SessionsRepositoryImpl) FindSessionByID(ctx context.Context, id int64) (*model.Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM customer_sessions cs WHERE cs.id = ?`, id)
}

func (r *SessionsRepositoryImpl) InsertSession(ctx context.Context, s model.Session) (model.Session, error) {
	const q = `
		INSERT INTO customer_sessions
		    (customer_id, service_type, status, started_at, finished_at, version)
		VALUES
		    (?,           ?,            ?,      ?,          NULL,        0)
	`
	s.Version = 0
	s.FinishedAt = nil
	err := withTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, q, s.CustomerID, s.ServiceType.String(), s.Status.String(), s.StartedAt)
		if err != nil {
			if isDuplicate(err) {
				return ErrDuplicate
			}
			return err
		}
		if s.ID, err = res.LastInsertId(); err != nil {
			return err
		}
		return r.emit(ctx, tx, s)
	})
	if err != nil {
		return model.Session{}, err
	}
	return s, nil
}

func (r *SessionsRepositoryImpl) SaveSession(ctx context.Context, s model.Session) (model.Session, error) {
	const q = `
		UPDATE customer_sessions
		   SET status = ?, finished_at = ?, version = version + 1
		 WHERE id = ? AND version = ?
	`
	err := withTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, q, s.Status.String(), s.FinishedAt, s.ID, s.Version)
		if err := expectOne(res, err); err != nil {
			return err
		}
		s.Version++
		return r.emit(ctx, tx, s)
	})
	if err != nil {
		return model.Session{}, err
	}
	return s, nil
}

func (r *SessionsRepositoryImpl) SetFinishedNow(ctx context.Context, email string, status model.SessionStatus, version int64) (model.Session, error) {
	var out model.Session
	err := withTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &out, `
			SELECT `+sessionColumns+`
			  FROM customer_sessions cs
			  JOIN customers c ON c.id = cs.customer_id
			 WHERE c.email = ? AND cs.finished_at IS NULL
			 LIMIT 1
		`, email)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if out.Version != version {
			return ErrVersionConflict
		}

		at := r.now()
		res, err := tx.ExecContext(ctx, `
			UPDATE customer_sessions
			   SET status = ?, finished_at = ?, version = version + 1
			 WHERE id = ? AND version = ? AND finished_at IS NULL
		`, status.String(), at, out.ID, version)
		if err := expectOne(res, err); err != nil {
			return err
		}
		out.Status = status
		out.FinishedAt = &at
		out.Version++
		return r.emit(ctx, tx, out)
	})
	if err != nil {
		return model.Session{}, err
	}
	return out, nil
}

func (r *SessionsRepositoryImpl) SlotGate(ctx context.Context, st model.ServiceType) (int64, error) {
	const sel = `SELECT version FROM service_slots WHERE service_type = ?`
	var v int64
	err := r.db.GetContext(ctx, &v, sel, st.String())
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := r.db.ExecContext(ctx, `INSERT IGNORE INTO service_slots (service_type, version) VALUES (?, 0)`, st.String()); err != nil {
			return 0, err
		}
		err = r.db.GetContext(ctx, &v, sel, st.String())
	}
	return v, err
}

func (r *SessionsRepositoryImpl) PromoteSession(ctx context.Context, s model.Session, gate int64) (model.Session, error) {
	err := withTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE service_slots
			   SET version = version + 1
			 WHERE service_type = ? AND version = ?
		`, s.ServiceType.String(), gate)
		if err := expectOne(res, err); err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx, `
			UPDATE customer_sessions
			   SET status = ?, version = version + 1
			 WHERE id = ? AND version = ? AND status = ? AND finished_at IS NULL
		`, model.StatusInProgress.String(), s.ID, s.Version, model.StatusPending.String())
		if err := expectOne(res, err); err != nil {
			return err
		}
		s.Status = model.StatusInProgress
		s.Version++
		return r.emit(ctx, tx, s)
	})
	if err != nil {
		return model.Session{}, err
	}
	return s, nil
}

func (r *SessionsRepositoryImpl) CountInProgress(ctx context.Context, st model.ServiceType) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*)
		  FROM customer_sessions
		 WHERE service_type = ? AND status = ? AND finished_at IS NULL
	`, st.String(), model.StatusInProgress.String())
	return n, err
}

func (r *SessionsRepositoryImpl) FindOldestPending(ctx context.Context, st model.ServiceType) (*model.Session, error) {
	return r.getOne(ctx, `
		SELECT `+sessionColumns+`
		  FROM customer_sessions cs
		 WHERE cs.service_type = ? AND cs.status = ? AND cs.finished_at IS NULL
		 ORDER BY cs.started_at, cs.id
		 LIMIT 1
	`, st.String(), model.StatusPending.String())
}

func (r *SessionsRepositoryImpl) FindAllInProgress(ctx context.Context, st model.ServiceType) ([]model.InProgressSession, error) {
	rows := []model.InProgressSession{}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT cs.id AS session_id, c.name AS customer_name, c.email AS customer_email,
		       cs.service_type, cs.started_at
		  FROM customer_sessions cs
		  JOIN customers c ON c.id = cs.customer_id
		 WHERE cs.service_type = ? AND cs.status = ? AND cs.finished_at IS NULL
		 ORDER BY cs.started_at, cs.id
	`, st.String(), model.StatusInProgress.String())
	return rows, err
}

func (r *SessionsRepositoryImpl) QueuePosition(ctx context.Context, email string) (int64, error) {
	me, err := r.FindActiveSessionByEmail(ctx, email)
	if err != nil {
		return 0, err
	}
	if me == nil {
		return 0, ErrNotFound
	}

	var ahead int64
	err = r.db.GetContext(ctx, &ahead, `
		SELECT COUNT(*)
		  FROM customer_sessions
		 WHERE service_type = ? AND status = ? AND finished_at IS NULL
		   AND (started_at < ? OR (started_at = ? AND id < ?))
	`, me.ServiceType.String(), model.StatusPending.String(), me.StartedAt, me.StartedAt, me.ID)
	if err != nil {
		return 0, err
	}
	return ahead + 1, nil
}

func (r *SessionsRepositoryImpl) AggregateCounts(ctx context.Context) (model.StatusCounts, error) {
	var rows []struct {
		Status model.SessionStatus `db:"status"`
		N      int64               `db:"n"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS n FROM customer_sessions GROUP BY status`); err != nil {
		return model.StatusCounts{}, err
	}

	var c model.StatusCounts
	for _, row := range rows {
		switch row.Status {
		case model.StatusPending:
			c.Pending = row.N
		case model.StatusInProgress:
			c.InProgress = row.N
		case model.StatusCompleted:
			c.Completed = row.N
		case model.StatusCanceled:
			c.Canceled = row.N
		}
	}
	return c, nil
}

func (r *SessionsRepositoryImpl) AverageDuration(ctx context.Context) (float64, error) {
	var avg sql.NullFloat64
	err := r.db.GetContext(ctx, &avg, `
		SELECT AVG(TIMESTAMPDIFF(MICROSECOND, started_at, finished_at)) / 1000000
		  FROM customer_sessions
		 WHERE status = ? AND finished_at IS NOT NULL
	`, model.StatusCompleted.String())
	return avg.Float64, err
}

func (r *SessionsRepositoryImpl) AveragePerCustomer(ctx context.Context) (float64, error) {
	var avg sql.NullFloat64
	err := r.db.GetContext(ctx, &avg, `
		SELECT COUNT(*) / NULLIF(COUNT(DISTINCT customer_id), 0)
		  FROM customer_sessions
	`)
	return avg.Float64, err
}

// emit appends the session's current state to the outbox inside tx.
func (r *SessionsRepositoryImpl) emit(ctx context.Context, tx *sqlx.Tx, s model.Session) error {
	var email string
	if err := tx.GetContext(ctx, &email, `SELECT email FROM customers WHERE id = ?`, s.CustomerID); err != nil {
		return fmt.Errorf("outbox customer lookup: %w", err)
	}

	at := r.now()
	if s.FinishedAt != nil {
		at = *s.FinishedAt
	} else if s.Status == model.StatusPending {
		at = s.StartedAt
	}
	payload, err := json.Marshal(model.SessionEvent{
		ID:            util.NewID(at),
		Type:          model.EventTypeFor(s.Status),
		SessionID:     s.ID,
		CustomerID:    s.CustomerID,
		CustomerEmail: email,
		ServiceType:   s.ServiceType,
		Status:        s.Status,
		OccurredAt:    at,
	})
	if err != nil {
		return err
	}
	return r.outbox.Insert(ctx, tx, sessionAggregate, strconv.FormatInt(s.ID, 10), r.topic, payload)
}

func expectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrVersionConflict
	}
	return nil
}
