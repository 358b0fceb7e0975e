package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/domain"
)

const (
	incrementRetries = 3
	incrementPause   = 50 * time.Millisecond
)

// Store implements counterstore.Store using PostgreSQL. The increment
// is a single atomic UPDATE; the counters table's trigger emits the
// change notification as a side effect of the commit.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Current returns the counter's current value.
func (s *Store) Current(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT count FROM counters LIMIT 1`).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("current count: %w", domain.ErrNotFound)
		}
		return 0, fmt.Errorf("current count: %w", err)
	}
	return count, nil
}

// Increment atomically bumps the counter and returns the new value.
// Transient failures are retried a bounded number of times.
func (s *Store) Increment(ctx context.Context) (int64, error) {
	var lastErr error
	for attempt := range incrementRetries {
		var count int64
		err := s.pool.QueryRow(ctx, `UPDATE counters SET count = count + 1 RETURNING count`).Scan(&count)
		if err == nil {
			return count, nil
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("increment: %w", domain.ErrNotFound)
		}
		lastErr = err

		if attempt < incrementRetries-1 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(incrementPause):
			}
		}
	}
	return 0, fmt.Errorf("increment after %d attempts: %w", incrementRetries, lastErr)
}
