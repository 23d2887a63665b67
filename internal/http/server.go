package http

import (
	"context"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/yurimoinhos/flowpay/internal/config"
	"github.com/yurimoinhos/flowpay/internal/http/middleware"
	"github.com/yurimoinhos/flowpay/internal/metrics"
	"github.com/yurimoinhos/flowpay/internal/repository"
	"github.com/yurimoinhos/flowpay/internal/service/desk"
	"go.uber.org/zap"
)

type Server struct {
	e   *echo.Echo
	log *zap.Logger
}

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client, zl *zap.Logger) *Server {
	// repos (MySQL)
	customersRepo := repository.NewCustomersRepository(mysqlDB)
	outboxRepo := repository.NewOutboxRepository(mysqlDB)
	sessionsRepo := repository.NewSessionsRepository(mysqlDB, outboxRepo, cfg.Kafka.Topic)

	// repos (ClickHouse)
	chEventsRepo := repository.NewCHSessionEventsRepository(clickhouseDB)

	// services
	deskSvc := desk.New(customersRepo, sessionsRepo, desk.Config{
		MaxSlotsPerService: cfg.Desk.MaxSlotsPerService,
		PromoteAttempts:    cfg.Desk.PromoteAttempts,
		SampleInterval:     cfg.Desk.SampleInterval,
		QueueStreamTimeout: cfg.Desk.QueueStreamTimeout,
	}, zl.Named("desk"))

	return &Server{e: newRouter(cfg, deskSvc, chEventsRepo, rds, zl), log: zl}
}

func newRouter(cfg config.Config, d Desk, history repository.CHSessionEventsRepository, rds *redis.Client, zl *zap.Logger) *echo.Echo {
	if zl == nil {
		zl = zap.NewNop()
	}

	// echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(log.WARN)
	e.Use(echoMid.Recover(), echoMid.Logger())
	e.Use(echoMid.CORSWithConfig(echoMid.CORSConfig{
		AllowOrigins:  cfg.HTTP.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders:  []string{echo.HeaderContentType, middleware.OperatorKeyHeader},
		ExposeHeaders: []string{echo.HeaderLocation},
	}))

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	operatorMW := middleware.OperatorKeyMiddleware(cfg.HTTP.OperatorKeys)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		Limit:          cfg.RateLimit.Requests,
		KeyPrefix:      "rl:create:",
		Window:         cfg.RateLimit.Window,
		RetryAfterHint: true,
	})

	// routes: customers
	api := e.Group("/api")
	cust := api.Group("/customer")
	cust.POST("", createSessionHandler(d, zl), rlMW)
	cust.PUT("/:email", finishSessionHandler(d, zl))
	cust.GET("/:email/queue", queueStreamHandler(d, zl))
	cust.GET("/:email/position", positionHandler(d, zl))
	cust.GET("/:email/slots-available", customerSlotsHandler(d, zl))
	cust.GET("/slots/:serviceType", slotsHandler(d, zl))

	// routes: attendants
	cust.GET("/in-progress/:serviceType", inProgressStreamHandler(d, zl), operatorMW)
	cust.GET("/metrics", metricsStreamHandler(d, zl), operatorMW)
	cust.PUT("/sessions/:sessionId/complete", completeSessionHandler(d, zl), operatorMW)
	api.GET("/reports/sessions", listSessionEventsHandler(history, zl), operatorMW)

	return e
}

func (s *Server) Start(addr string) error {
	s.log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
