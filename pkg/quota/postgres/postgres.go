// Package postgres provides a PostgreSQL-backed quota.Limiter so that
// several service replicas share one token ledger. Balances live in the
// quota_limits table keyed by (subject id, subject type); consumption is
// a single row-level UPDATE, so concurrent turns never lose a debit.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tkralik/turnstile/pkg/quota"
)

const createQuotaTable = `
	CREATE TABLE IF NOT EXISTS quota_limits (
		id          text NOT NULL,
		subject     char(1) NOT NULL,
		quota_limit bigint NOT NULL,
		available   bigint,
		updated_at  timestamp with time zone,
		revoked_at  timestamp with time zone,
		PRIMARY KEY(id, subject)
	);
`

// Limiter is a PostgreSQL-backed quota ledger.
type Limiter struct {
	pool         *pgxpool.Pool
	name         string
	subjectType  string
	initialQuota int64
}

var _ quota.Limiter = (*Limiter)(nil)

// Config holds connection settings and the ledger parameters.
type Config struct {
	// DSN is the PostgreSQL connection string.
	DSN string

	// MaxConns is the maximum number of connections in the pool (default: 10).
	MaxConns int32

	// MinConns is the minimum number of idle connections maintained (default: 2).
	MinConns int32

	// MaxConnLifetime is the maximum lifetime of a connection before it is
	// closed and replaced (default: 5 minutes).
	MaxConnLifetime time.Duration

	// Name identifies the limiter in quota snapshots.
	Name string

	// SubjectType is quota.SubjectUser or quota.SubjectCluster.
	SubjectType string

	// InitialQuota is the balance a new subject row starts with.
	InitialQuota int64
}

func (c *Config) defaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 10
	}
	if c.MinConns == 0 {
		c.MinConns = 2
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = 5 * time.Minute
	}
	if c.SubjectType == "" {
		c.SubjectType = quota.SubjectUser
	}
}

// New creates a PostgreSQL quota ledger and ensures its schema exists.
func New(ctx context.Context, cfg Config) (*Limiter, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if _, err := pool.Exec(ctx, createQuotaTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initializing quota table: %w", err)
	}

	return &Limiter{
		pool:         pool,
		name:         cfg.Name,
		subjectType:  cfg.SubjectType,
		initialQuota: cfg.InitialQuota,
	}, nil
}

// Name identifies the limiter in quota snapshots.
func (l *Limiter) Name() string { return l.name }

// Available returns the subject's remaining balance, inserting the row
// with the initial quota on first contact.
func (l *Limiter) Available(ctx context.Context, subjectID string) (int64, error) {
	key := l.key(subjectID)

	var available int64
	err := l.pool.QueryRow(ctx,
		"SELECT available FROM quota_limits WHERE id = $1 AND subject = $2",
		key, l.subjectType,
	).Scan(&available)

	if errors.Is(err, pgx.ErrNoRows) {
		if err := l.initRow(ctx, key); err != nil {
			return 0, err
		}
		return l.initialQuota, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying quota: %w", err)
	}
	return available, nil
}

// CheckAvailable fails with a QuotaExceededError when the balance is gone.
func (l *Limiter) CheckAvailable(ctx context.Context, subjectID string) error {
	available, err := l.Available(ctx, subjectID)
	if err != nil {
		return err
	}
	if available <= 0 {
		return quota.Exceeded(l.subjectType, l.key(subjectID), available)
	}
	return nil
}

// Consume deducts the turn's token usage with a single atomic UPDATE.
func (l *Limiter) Consume(ctx context.Context, subjectID string, inputTokens, outputTokens int64) error {
	key := l.key(subjectID)
	total := inputTokens + outputTokens

	tag, err := l.pool.Exec(ctx, `
		UPDATE quota_limits
		   SET available = available - $1, updated_at = NOW()
		 WHERE id = $2 AND subject = $3
	`, total, key, l.subjectType)
	if err != nil {
		return fmt.Errorf("consuming quota: %w", err)
	}

	// First contact without a prior Available call: seed the row, already
	// debited.
	if tag.RowsAffected() == 0 {
		if err := l.initRow(ctx, key); err != nil {
			return err
		}
		_, err := l.pool.Exec(ctx, `
			UPDATE quota_limits
			   SET available = available - $1, updated_at = NOW()
			 WHERE id = $2 AND subject = $3
		`, total, key, l.subjectType)
		if err != nil {
			return fmt.Errorf("consuming quota: %w", err)
		}
	}
	return nil
}

// Revoke resets the subject's balance to the initial quota.
func (l *Limiter) Revoke(ctx context.Context, subjectID string) error {
	key := l.key(subjectID)

	_, err := l.pool.Exec(ctx, `
		INSERT INTO quota_limits (id, subject, quota_limit, available, revoked_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id, subject)
		DO UPDATE SET available = EXCLUDED.available, revoked_at = NOW()
	`, key, l.subjectType, l.initialQuota, l.initialQuota)
	if err != nil {
		return fmt.Errorf("revoking quota: %w", err)
	}
	return nil
}

// HealthCheck verifies the database connection.
func (l *Limiter) HealthCheck(ctx context.Context) error {
	return l.pool.Ping(ctx)
}

// Close releases the connection pool.
func (l *Limiter) Close() error {
	l.pool.Close()
	return nil
}

func (l *Limiter) key(subjectID string) string {
	if l.subjectType == quota.SubjectCluster {
		return ""
	}
	return subjectID
}

func (l *Limiter) initRow(ctx context.Context, key string) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO quota_limits (id, subject, quota_limit, available, revoked_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id, subject) DO NOTHING
	`, key, l.subjectType, l.initialQuota, l.initialQuota)
	if err != nil {
		return fmt.Errorf("initializing quota row: %w", err)
	}
	return nil
}
