package model

import "time"

type SessionStatus string

const (
	StatusPending    SessionStatus = "PENDING"
	StatusInProgress SessionStatus = "IN_PROGRESS"
	StatusCompleted  SessionStatus = "COMPLETED"
	StatusCanceled   SessionStatus = "CANCELED"
)

func (s SessionStatus) String() string { return string(s) }

func (s SessionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

// Active reports whether a session in this status still has no finish time.
func (s SessionStatus) Active() bool {
	return s == StatusPending || s == StatusInProgress
}

// FinishStatus maps an active status to the terminal status a manual finish
// resolves it to. ok is false for statuses that are already terminal.
func (s SessionStatus) FinishStatus() (SessionStatus, bool) {
	switch s {
	case StatusInProgress:
		return StatusCompleted, true
	case StatusPending:
		return StatusCanceled, true
	}
	return s, false
}

// Session is one unit of queueing and service. Version increases on every
// persisted write; stores reject writes carrying a stale version.
type Session struct {
	ID          int64         `db:"id"`
	CustomerID  int64         `db:"customer_id"`
	ServiceType ServiceType   `db:"service_type"`
	Status      SessionStatus `db:"status"`
	StartedAt   time.Time     `db:"started_at"`
	FinishedAt  *time.Time    `db:"finished_at"`
	Version     int64         `db:"version"`
}

func (s Session) Active() bool { return s.FinishedAt == nil }

// InProgressSession is an IN_PROGRESS session joined with its customer.
type InProgressSession struct {
	SessionID     int64       `db:"session_id"     json:"sessionId"`
	CustomerName  string      `db:"customer_name"  json:"customerName"`
	CustomerEmail string      `db:"customer_email" json:"customerEmail"`
	ServiceType   ServiceType `db:"service_type"   json:"serviceType"`
	StartedAt     time.Time   `db:"started_at"     json:"startedAt"`
}

// SameInProgress compares two lists element by element.
func SameInProgress(a, b []InProgressSession) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.SessionID != y.SessionID || x.CustomerName != y.CustomerName ||
			x.CustomerEmail != y.CustomerEmail || x.ServiceType != y.ServiceType ||
			!x.StartedAt.Equal(y.StartedAt) {
			return false
		}
	}
	return true
}
