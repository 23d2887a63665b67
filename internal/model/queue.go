package model

import "time"

// QueuePosition is what a waiting customer sees. Position is 0 once the
// session is terminal.
type QueuePosition struct {
	SessionID   int64         `json:"-"`
	Position    int64         `json:"position"`
	Status      SessionStatus `json:"status"`
	ServiceType ServiceType   `json:"serviceType"`
	Timestamp   time.Time     `json:"timestamp"`
}

// SameAs compares the change-detection key only.
func (p QueuePosition) SameAs(o QueuePosition) bool {
	return p.Position == o.Position && p.Status == o.Status
}

type StatusCounts struct {
	Pending    int64
	InProgress int64
	Completed  int64
	Canceled   int64
}

func (c StatusCounts) Total() int64 {
	return c.Pending + c.InProgress + c.Completed + c.Canceled
}

type SessionMetrics struct {
	AverageSessionsPerCustomer    float64 `json:"averageSessionsPerCustomer"`
	AverageServiceDurationSeconds float64 `json:"averageServiceDurationSeconds"`
	PendingCount                  int64   `json:"pendingCount"`
	InProgressCount               int64   `json:"inProgressCount"`
	CompletedCount                int64   `json:"completedCount"`
	CanceledCount                 int64   `json:"canceledCount"`
	TotalSessions                 int64   `json:"totalSessions"`
	CompletionRate                float64 `json:"completionRate"`
	CancellationRate              float64 `json:"cancellationRate"`
}
