package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowpay_sessions_total",
			Help: "Session lifecycle transitions by event and service type",
		},
		[]string{"event", "service_type"}, // created|promoted|completed|canceled
	)

	PromotionConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowpay_promotion_conflicts_total",
			Help: "Promotion writes rejected by an optimistic version check",
		},
		[]string{"service_type"},
	)

	LiveSubscribers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flowpay_live_subscribers",
			Help: "Open live-update subscriptions by view",
		},
		[]string{"view"}, // queue|in_progress|metrics
	)

	OutboxPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowpay_outbox_published_total",
			Help: "Outbox rows relayed to Kafka by result",
		},
		[]string{"result"}, // ok|error|skipped
	)

	EventsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowpay_events_ingested_total",
			Help: "Session events written to ClickHouse by result",
		},
		[]string{"result"}, // ok|error|invalid
	)
)

var registerOnce sync.Once

// MustRegister registers all collectors once per process; later calls are no-ops.
func MustRegister(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(
			SessionsTotal,
			PromotionConflicts,
			LiveSubscribers,
			OutboxPublished,
			EventsIngested,
		)
	})
}
