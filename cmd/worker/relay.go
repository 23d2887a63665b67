package worker

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/yurimoinhos/flowpay/internal/db"
	"github.com/yurimoinhos/flowpay/internal/kafka"
	"github.com/yurimoinhos/flowpay/internal/repository"
	"github.com/yurimoinhos/flowpay/internal/worker"
	"go.uber.org/zap"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Publish outbox rows to Kafka",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := bootstrap(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		dbx, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer dbx.Close()

		producer := kafka.NewProducer(kafka.ProducerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		})
		defer producer.Close()

		breaker := worker.NewBreaker(
			cfg.Relay.Breaker.FailThreshold,
			time.Duration(cfg.Relay.Breaker.OpenForMs)*time.Millisecond,
		)
		r := worker.NewRelay(repository.NewOutboxRepository(dbx), producer, breaker, log.Named("relay"))

		// tune knobs
		if cfg.Relay.BatchSize > 0 {
			r.BatchSize = cfg.Relay.BatchSize
		}
		if cfg.Relay.PollInterval > 0 {
			r.PollInterval = cfg.Relay.PollInterval
		}

		ctx, stop := signalContext()
		defer stop()

		log.Info("relay started",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
			zap.Int("batch_size", r.BatchSize),
			zap.Duration("poll_interval", r.PollInterval))

		return r.Run(ctx)
	},
}
