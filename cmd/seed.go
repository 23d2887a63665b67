package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/yurimoinhos/flowpay/internal/db"
	"github.com/yurimoinhos/flowpay/internal/model"
	"github.com/yurimoinhos/flowpay/internal/repository"
	"github.com/yurimoinhos/flowpay/internal/service/desk"
	"go.uber.org/zap"
)

var seedSessions bool

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo customers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		customersRepo := repository.NewCustomersRepository(sqlDB)
		outboxRepo := repository.NewOutboxRepository(sqlDB)
		sessionsRepo := repository.NewSessionsRepository(sqlDB, outboxRepo, cfg.Kafka.Topic)

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		log.Info("seeding demo customers", zap.Int("count", len(demoCustomers)))
		for _, c := range demoCustomers {
			if _, err := customersRepo.SaveCustomer(ctx, model.Customer{Name: c.name, Email: c.email}); err != nil {
				return fmt.Errorf("save customer %q: %w", c.email, err)
			}
		}
		if !seedSessions {
			return nil
		}

		// queue through the desk so admission and the outbox see every session
		d := desk.New(customersRepo, sessionsRepo, desk.Config{
			MaxSlotsPerService: cfg.Desk.MaxSlotsPerService,
			PromoteAttempts:    cfg.Desk.PromoteAttempts,
		}, log.Named("desk"))
		for _, c := range demoCustomers {
			s, err := d.CreateSession(ctx, desk.CreateSessionRequest{
				Name:        c.name,
				Email:       c.email,
				ServiceType: c.serviceType.String(),
			})
			switch {
			case errors.Is(err, desk.ErrConflict):
				log.Info("customer already queued", zap.String("email", c.email))
			case err != nil:
				return fmt.Errorf("queue %q: %w", c.email, err)
			default:
				log.Info("queued", zap.String("email", c.email), zap.Int64("session_id", s.ID))
			}
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().BoolVar(&seedSessions, "sessions", false, "also open one session per demo customer")
}

var demoCustomers = []struct {
	name        string
	email       string
	serviceType model.ServiceType
}{
	{"Ana Souza", "ana.souza@flowpay.test", model.ServiceCardProblems},
	{"Bruno Lima", "bruno.lima@flowpay.test", model.ServiceLoans},
	{"Carla Dias", "carla.dias@flowpay.test", model.ServiceLoans},
	{"Diego Alves", "diego.alves@flowpay.test", model.ServiceLoans},
	{"Elisa Rocha", "elisa.rocha@flowpay.test", model.ServiceLoans},
	{"Fabio Nunes", "fabio.nunes@flowpay.test", model.ServiceOther},
}
