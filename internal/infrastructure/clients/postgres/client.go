package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/reviewfunnel/pkg/config"
	"github.com/zatekoja/reviewfunnel/pkg/retry"
)

// Client wraps the connection pool holding locations, feedback and opt-ins.
type Client struct {
	db *sql.DB
}

// NewClient opens the pool and waits for PostgreSQL to accept connections.
// A configured database is required, so startup keeps trying for a while.
func NewClient(cfg *config.DatabaseConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Funnel writes are single-row inserts; a small pool is plenty.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := retry.Connect(context.Background(), retry.RequiredStore(), "postgres", db.PingContext); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres unavailable at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	log.Info().Str("host", cfg.Host).Str("database", cfg.Database).Msg("connected to postgres")
	return &Client{db: db}, nil
}

// NewFromDB wraps an already opened database handle.
func NewFromDB(db *sql.DB) *Client {
	return &Client{db: db}
}

func (c *Client) DB() *sql.DB {
	return c.db
}

func (c *Client) Close() error {
	return c.db.Close()
}

// BeginTx starts a transaction; location upserts replace platforms atomically.
func (c *Client) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return c.db.BeginTx(ctx, nil)
}

// Ping backs the readiness checks of the database adapters.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

// EnsureSchema creates the funnel tables when they do not exist yet.
func (c *Client) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS locations (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		logo_url   TEXT,
		street     TEXT,
		city       TEXT,
		state      TEXT,
		zip_code   TEXT,
		country    TEXT,
		is_active  BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS review_platforms (
		location_id TEXT NOT NULL REFERENCES locations(id) ON DELETE CASCADE,
		position    INTEGER NOT NULL,
		name        TEXT NOT NULL,
		url         TEXT NOT NULL,
		PRIMARY KEY (location_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS feedback (
		id                TEXT PRIMARY KEY,
		location_id       TEXT REFERENCES locations(id),
		rating            INTEGER,
		comment           TEXT,
		name              TEXT,
		email             TEXT,
		phone             TEXT,
		contact_requested BOOLEAN NOT NULL DEFAULT FALSE,
		kind              TEXT NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS feedback_location_created_idx ON feedback (location_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS opt_ins (
		id          TEXT PRIMARY KEY,
		location_id TEXT NOT NULL REFERENCES locations(id),
		name        TEXT NOT NULL,
		email       TEXT,
		phone       TEXT,
		rating      INTEGER,
		created_at  TIMESTAMPTZ NOT NULL
	)`,
}
