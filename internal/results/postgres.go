package results

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/Markfds01/shine-switchpoints/internal/posterior"
)

// execer is the subset of *sql.DB the sink needs.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresSink stores posterior summary rows.
type PostgresSink struct {
	db execer
}

// NewPostgresSink wraps an open database handle.
func NewPostgresSink(db execer) *PostgresSink {
	return &PostgresSink{db: db}
}

// OpenPostgres connects to dsn and makes sure the summary table exists.
// The caller closes the returned *sql.DB.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresSink, *sql.DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := NewPostgresSink(conn)
	if err := s.Init(ctx); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return s, conn, nil
}

const createSummaryTable = `
	CREATE TABLE IF NOT EXISTS posterior_summary (
		id          BIGSERIAL PRIMARY KEY,
		run         TEXT NOT NULL,
		model       TEXT NOT NULL,
		region      TEXT NOT NULL,
		age_group   TEXT NOT NULL DEFAULT '',
		variable    TEXT NOT NULL,
		component   INTEGER NOT NULL,
		mean        DOUBLE PRECISION NOT NULL,
		sd          DOUBLE PRECISION NOT NULL,
		quantiles   DOUBLE PRECISION[] NOT NULL,
		r_hat       DOUBLE PRECISION,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

const insertSummaryRow = `
	INSERT INTO posterior_summary (run, model, region, age_group, variable, component, mean, sd, quantiles, r_hat)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

// Init creates the summary table if it does not exist.
func (s *PostgresSink) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createSummaryTable); err != nil {
		return fmt.Errorf("create posterior_summary: %w", err)
	}
	return nil
}

// Store inserts one row per summarised component. Quantiles are stored as
// an array of the 2.5, 50 and 97.5 percentiles.
func (s *PostgresSink) Store(ctx context.Context, run Run, rows []posterior.Row) error {
	for _, r := range rows {
		_, err := s.db.ExecContext(ctx, insertSummaryRow,
			run.Stem,
			run.Model,
			run.Region,
			run.Group,
			r.Name,
			r.Component,
			r.Mean,
			r.SD,
			pq.Array([]float64{r.Q025, r.Q50, r.Q975}),
			r.RHat,
		)
		if err != nil {
			return fmt.Errorf("insert %s[%d] of %s: %w", r.Name, r.Component, run.Stem, err)
		}
	}
	return nil
}
