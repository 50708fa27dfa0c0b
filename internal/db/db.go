package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// InitSchema creates the four schedule tables if they do not exist yet. The
// schema is append-only and never migrated; the primary keys on the derived
// identifier columns are what turn "check then insert" into a single atomic
// insert-if-absent.
func InitSchema(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			uid BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			level INTEGER NOT NULL,
			token TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS class_durations (
			ccid TEXT PRIMARY KEY,
			cid TEXT NOT NULL,
			owner_token TEXT NOT NULL,
			label TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			start_offset INTEGER NOT NULL,
			end_offset INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS terms (
			cid TEXT PRIMARY KEY,
			ccid TEXT NOT NULL,
			owner_token TEXT NOT NULL,
			first_school TEXT NOT NULL DEFAULT '',
			second_school TEXT NOT NULL DEFAULT '',
			class_count INTEGER NOT NULL DEFAULT 0,
			week_count INTEGER NOT NULL DEFAULT 0,
			start_at BIGINT NOT NULL DEFAULT 0,
			end_at BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS classes (
			ccid TEXT PRIMARY KEY,
			cid TEXT NOT NULL,
			owner_token TEXT NOT NULL,
			table_name TEXT NOT NULL,
			class_name TEXT NOT NULL,
			week TEXT NOT NULL,
			weekday TEXT NOT NULL,
			refc TEXT NOT NULL,
			teacher TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			classroom TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS class_durations_owner_idx ON class_durations (owner_token)`,
		`CREATE INDEX IF NOT EXISTS terms_owner_idx ON terms (owner_token)`,
		`CREATE INDEX IF NOT EXISTS classes_owner_idx ON classes (owner_token)`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
