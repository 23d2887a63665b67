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

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Copy session events from Kafka into ClickHouse",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := bootstrap(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		chDB, err := db.NewClickHouseConnection(cfg.ClickHouse)
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		defer chDB.Close()

		groupID := cfg.Kafka.GroupID
		if groupID == "" {
			groupID = "flowpay-analytics"
		}
		consumer := kafka.NewConsumerFromConfig(kafka.Config{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          cfg.Kafka.Topic,
			GroupID:        groupID,
			MinBytes:       cfg.Kafka.MinBytes,
			MaxBytes:       cfg.Kafka.MaxBytes,
			CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
		})
		defer consumer.Close()

		a := worker.NewAnalytics(consumer, repository.NewCHSessionEventsRepository(chDB), log.Named("analytics"))

		// tune knobs
		if cfg.Analytics.BatchSize > 0 {
			a.BatchSize = cfg.Analytics.BatchSize
		}
		if cfg.Analytics.BatchWait > 0 {
			a.BatchWait = cfg.Analytics.BatchWait
		}

		ctx, stop := signalContext()
		defer stop()

		log.Info("analytics started",
			zap.String("topic", cfg.Kafka.Topic),
			zap.String("group", groupID),
			zap.Int("batch_size", a.BatchSize),
			zap.Duration("batch_wait", a.BatchWait))

		return a.Run(ctx)
	},
}
