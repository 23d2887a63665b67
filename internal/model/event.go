package model

import "time"

type SessionEventType string

const (
	EventCreated   SessionEventType = "created"
	EventPromoted  SessionEventType = "promoted"
	EventCompleted SessionEventType = "completed"
	EventCanceled  SessionEventType = "canceled"
)

// EventTypeFor names the transition that left a session in status st.
func EventTypeFor(st SessionStatus) SessionEventType {
	switch st {
	case StatusInProgress:
		return EventPromoted
	case StatusCompleted:
		return EventCompleted
	case StatusCanceled:
		return EventCanceled
	default:
		return EventCreated
	}
}

// SessionEvent is the payload written to the outbox and published to Kafka.
type SessionEvent struct {
	ID            string           `json:"id"` // ULID
	Type          SessionEventType `json:"type"`
	SessionID     int64            `json:"session_id"`
	CustomerID    int64            `json:"customer_id"`
	CustomerEmail string           `json:"customer_email"`
	ServiceType   ServiceType      `json:"service_type"`
	Status        SessionStatus    `json:"status"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

// SessionEventRow is a SessionEvent as read back from ClickHouse.
type SessionEventRow struct {
	ID            string    `db:"id"             json:"id"`
	Type          string    `db:"type"           json:"type"`
	SessionID     int64     `db:"session_id"     json:"sessionId"`
	CustomerID    int64     `db:"customer_id"    json:"customerId"`
	CustomerEmail string    `db:"customer_email" json:"customerEmail"`
	ServiceType   string    `db:"service_type"   json:"serviceType"`
	Status        string    `db:"status"         json:"status"`
	OccurredAt    time.Time `db:"occurred_at"    json:"occurredAt"`
}
