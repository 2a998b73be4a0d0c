package revocation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresCache persists revocations in the token_revocations table.
type PostgresCache struct {
	db    *sql.DB
	clock Clock
}

// PostgresOption configures a PostgresCache.
type PostgresOption func(*PostgresCache)

// WithPostgresClock sets the clock function for testability.
func WithPostgresClock(clock Clock) PostgresOption {
	return func(c *PostgresCache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func NewPostgresCache(db *sql.DB, opts ...PostgresOption) *PostgresCache {
	c := &PostgresCache{
		db:    db,
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Revoke inserts the entry, or replaces a row that has already expired.
// An active row keeps its expiry.
func (c *PostgresCache) Revoke(ctx context.Context, fingerprint string, expiresAt time.Time) error {
	expiresAt = normalizeExpiry(expiresAt)
	now := c.clock()
	if !expiresAt.After(now) {
		return nil
	}
	query := `
		INSERT INTO token_revocations (fingerprint, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (fingerprint) DO UPDATE SET
			expires_at = EXCLUDED.expires_at
		WHERE token_revocations.expires_at <= $3
	`
	res, err := c.db.ExecContext(ctx, query, fingerprint, expiresAt, now)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		revocationsTotal.WithLabelValues(backendPostgres).Inc()
	}
	return nil
}

func (c *PostgresCache) IsRevoked(ctx context.Context, fingerprint string) (bool, error) {
	start := time.Now()
	defer observeCheck(backendPostgres, start)

	var expiresAt time.Time
	err := c.db.QueryRowContext(ctx, `SELECT expires_at FROM token_revocations WHERE fingerprint = $1`, fingerprint).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check token revocation: %w", err)
	}
	return c.clock().Before(expiresAt), nil
}

func (c *PostgresCache) Sweep(ctx context.Context) (int, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM token_revocations WHERE expires_at <= $1`, c.clock())
	if err != nil {
		return 0, fmt.Errorf("sweep token revocations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep token revocations: %w", err)
	}
	sweptTotal.WithLabelValues(backendPostgres).Add(float64(n))
	return int(n), nil
}
