// internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/loginfill/api/schemas"
	"github.com/xkilldash9x/loginfill/internal/autofill"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS fill_events (
    id                UUID PRIMARY KEY,
    occurred_at       TIMESTAMPTZ NOT NULL,
    kind              TEXT NOT NULL,
    page_url          TEXT NOT NULL DEFAULT '',
    user_resolved     BOOLEAN NOT NULL,
    password_resolved BOOLEAN NOT NULL,
    selection         TEXT NOT NULL DEFAULT '',
    error             TEXT,
    duration_ms       BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS fill_events_occurred_at_idx ON fill_events (occurred_at DESC);
`

const insertSQL = `
INSERT INTO fill_events (id, occurred_at, kind, page_url, user_resolved, password_resolved, selection, error, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
`

const recentSQL = `
SELECT id, occurred_at, kind, page_url, user_resolved, password_resolved, selection, error, duration_ms
FROM fill_events
ORDER BY occurred_at DESC
LIMIT $1;
`

// Event is one journaled request. It holds no credential values.
type Event struct {
	ID               uuid.UUID           `yaml:"id" json:"id"`
	OccurredAt       time.Time           `yaml:"occurred_at" json:"occurred_at"`
	Kind             schemas.RequestType `yaml:"kind" json:"kind"`
	PageURL          string              `yaml:"page_url,omitempty" json:"page_url,omitempty"`
	UserResolved     bool                `yaml:"user_resolved" json:"user_resolved"`
	PasswordResolved bool                `yaml:"password_resolved" json:"password_resolved"`
	Selection        string              `yaml:"selection,omitempty" json:"selection,omitempty"`
	Error            string              `yaml:"error,omitempty" json:"error,omitempty"`
	Duration         time.Duration       `yaml:"duration" json:"duration"`
}

// Journal records fill outcomes in PostgreSQL.
type Journal struct {
	pool DBPool
	log  *zap.Logger
	now  func() time.Time
}

var _ autofill.Recorder = (*Journal)(nil)

// New creates a journal and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Journal, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Journal{
		pool: pool,
		log:  logger.Named("journal"),
		now:  time.Now,
	}, nil
}

// Connect opens a pool for dsn, creates the schema and returns the journal
// with a function that closes the pool.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*Journal, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	j, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := j.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return j, pool.Close, nil
}

// EnsureSchema creates the journal table when missing.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create journal schema: %w", err)
	}
	return nil
}

// Record implements autofill.Recorder.
func (j *Journal) Record(ctx context.Context, o autofill.Outcome) error {
	var errText *string
	if o.Err != nil {
		msg := o.Err.Error()
		errText = &msg
	}
	id := uuid.New()
	_, err := j.pool.Exec(ctx, insertSQL,
		id,
		j.now().UTC(),
		string(o.Kind),
		RedactURL(o.PageURL),
		o.UserResolved,
		o.PasswordResolved,
		string(o.Path),
		errText,
		o.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert fill event: %w", err)
	}
	j.log.Debug("Journaled fill event.", zap.Stringer("id", id), zap.String("kind", string(o.Kind)))
	return nil
}

// Recent returns up to limit events, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	rows, err := j.pool.Query(ctx, recentSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query fill events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e        Event
			kind     string
			errText  *string
			duration int64
		)
		if err := rows.Scan(&e.ID, &e.OccurredAt, &kind, &e.PageURL, &e.UserResolved,
			&e.PasswordResolved, &e.Selection, &errText, &duration); err != nil {
			return nil, fmt.Errorf("failed to scan fill event row: %w", err)
		}
		e.Kind = schemas.RequestType(kind)
		if errText != nil {
			e.Error = *errText
		}
		e.Duration = time.Duration(duration) * time.Millisecond
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return events, nil
}

// RedactURL keeps scheme, host and path. Userinfo, query and fragment can
// carry secrets and are dropped.
func RedactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	u.User = nil
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
