package db

import (
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/yurimoinhos/flowpay/internal/config"
)

// NewMySQLConnection opens the session store. Timestamps are read as UTC
// time.Time whatever the DSN says.
func NewMySQLConnection(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn, err := normalizeMySQLDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	configurePool(db, cfg)

	if err := ping(db, cfg.PingTimeout, 5*time.Second); err != nil {
		return nil, err
	}
	return db, nil
}

func normalizeMySQLDSN(dsn string) (string, error) {
	if dsn == "" {
		return "", fmt.Errorf("empty MySQL DSN")
	}
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse MySQL DSN: %w", err)
	}
	mc.ParseTime = true
	mc.Loc = time.UTC
	// migrations run as one multi-statement script
	mc.MultiStatements = true
	return mc.FormatDSN(), nil
}
