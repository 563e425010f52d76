package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const createTableSQL = `
CREATE TABLE IF NOT EXISTS subscriptions (
	id           BIGSERIAL PRIMARY KEY,
	key          TEXT NOT NULL UNIQUE,
	subscription JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresStore keeps subscriptions in a Postgres table with a unique key column.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to url and creates the subscriptions table if needed.
func OpenPostgres(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate subscriptions table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Create(ctx context.Context, sub Subscription) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO subscriptions (key, subscription) VALUES ($1, $2)`,
		sub.Key(), string(sub.Canonical()),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx, `SELECT subscription::text FROM subscriptions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		var sub Subscription
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, sub Subscription) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM subscriptions WHERE key = $1`, sub.Key())
	if err != nil {
		return 0, fmt.Errorf("delete subscription: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
