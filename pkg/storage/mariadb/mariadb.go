package mariadb

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/c14220110/clinic-queue/config"
	_ "github.com/go-sql-driver/mysql"
)

//go:embed schema.sql
var schemaSQL string

// Connect opens and pings a MariaDB/MySQL pool using the credentials from config.
func Connect(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	return open(ctx, cfg.MySQLDSN(false), cfg.DBMaxConns)
}

func open(ctx context.Context, dsn string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns / 2)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, cfg *config.Config) error {
	db, err := open(ctx, cfg.MySQLDSN(true), 1)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
