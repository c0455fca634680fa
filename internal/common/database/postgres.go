package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"malnutrition-workers/internal/common/config"

	_ "github.com/lib/pq"
)

// Schema creates the tables written by the record-assessment worker.
const Schema = `
CREATE TABLE IF NOT EXISTS malnutrition_assessments (
	id                 UUID PRIMARY KEY,
	patient_id         TEXT NOT NULL,
	primary_diagnosis  TEXT NOT NULL,
	severity           TEXT NOT NULL,
	risk_level         TEXT NOT NULL,
	confidence         NUMERIC(4,2) NOT NULL,
	partial            BOOLEAN NOT NULL DEFAULT FALSE,
	review_required    BOOLEAN NOT NULL DEFAULT FALSE,
	z_scores           JSONB NOT NULL,
	result             JSONB NOT NULL,
	engine_version     TEXT NOT NULL,
	assessed_at        TIMESTAMPTZ NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_malnutrition_assessments_patient
	ON malnutrition_assessments (patient_id, assessed_at DESC);

CREATE TABLE IF NOT EXISTS audit_log (
	id             BIGSERIAL PRIMARY KEY,
	event_type     TEXT NOT NULL,
	resource_type  TEXT NOT NULL,
	resource_id    TEXT NOT NULL,
	details        JSONB,
	created_at     TIMESTAMPTZ NOT NULL
);
`

type PostgresClient struct {
	DB *sql.DB
}

func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db}, nil
}

// EnsureSchema applies Schema. Every statement is idempotent.
func (c *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := c.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

func (c *PostgresClient) GetDB() *sql.DB {
	return c.DB
}
