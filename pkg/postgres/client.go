// Package postgres opens the database that holds catalog mirrors, corpus
// tables and persisted mapping runs.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	"github.com/rdsm-lab/disease-mapper/pkg/config"
	"github.com/rdsm-lab/disease-mapper/pkg/resilience"
)

type Client struct {
	DB *sql.DB
}

// connectBackoff gives a database started alongside the service in the same
// compose file time to accept connections.
var connectBackoff = resilience.Backoff{
	Attempts:   5,
	Initial:    time.Second,
	Max:        8 * time.Second,
	PerAttempt: 5 * time.Second,
}

// Open configures the pool from cfg and pings until the server answers or
// the attempts run out.
func Open(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := resilience.Retry(ctx, "postgres-ping", connectBackoff, db.PingContext); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("connected to postgres", "host", cfg.Host, "database", cfg.Database)
	return &Client{DB: db}, nil
}

// FromDB wraps an already opened handle, e.g. one from sqlmock.
func FromDB(db *sql.DB) *Client {
	return &Client{DB: db}
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// WithTx runs fn in a transaction, committing when it returns nil and
// rolling back when it fails or panics.
func (c *Client) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
