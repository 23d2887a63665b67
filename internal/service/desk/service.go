// Package desk runs the service desk: session lifecycle, slot admission,
// queue positions, aggregate metrics and the live views built on them.
package desk

import (
	"time"

	"github.com/yurimoinhos/flowpay/internal/repository"
	"go.uber.org/zap"
)

type Config struct {
	MaxSlotsPerService int
	PromoteAttempts    int
	SampleInterval     time.Duration
	QueueStreamTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxSlotsPerService <= 0 {
		c.MaxSlotsPerService = 3
	}
	if c.PromoteAttempts <= 0 {
		c.PromoteAttempts = 3
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = time.Second
	}
	if c.QueueStreamTimeout <= 0 {
		c.QueueStreamTimeout = time.Hour
	}
	return c
}

type Service struct {
	customers repository.CustomersRepository
	sessions  repository.SessionsRepository
	admission *Admission
	stats     *Aggregator
	cfg       Config
	log       *zap.Logger
	now       func() time.Time
}

// New wires the desk over the given stores.
func New(
	customers repository.CustomersRepository,
	sessions repository.SessionsRepository,
	cfg Config,
	log *zap.Logger,
) *Service {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		customers: customers,
		sessions:  sessions,
		admission: NewAdmission(sessions, cfg.MaxSlotsPerService, cfg.PromoteAttempts, log),
		stats:     NewAggregator(sessions),
		cfg:       cfg,
		log:       log,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}
