package e2e_harness

import (
	"context"
	"database/sql"
	"fmt"
)

// SeedPostgres creates the tables described by internal/testdata/metadata and inserts one
// existing customer (id 1, version 1).
func SeedPostgres(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS customers (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  email TEXT,
  version INTEGER NOT NULL DEFAULT 1,
  created_at TIMESTAMPTZ
);`,
		`CREATE SEQUENCE IF NOT EXISTS orders_id_seq START 1000;`,
		`CREATE TABLE IF NOT EXISTS orders (
  id BIGINT PRIMARY KEY,
  customer_id BIGINT NOT NULL REFERENCES customers(id),
  total NUMERIC(12,2)
);`,
		`CREATE TABLE IF NOT EXISTS categories (
  id UUID PRIMARY KEY,
  parent_id UUID REFERENCES categories(id),
  name TEXT NOT NULL
);`,
	}

	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, `
INSERT INTO customers (name, email, version) VALUES ($1, $2, $3)
ON CONFLICT (name) DO NOTHING
`, "Seed Customer", "seed@example.com", 1); err != nil {
		return fmt.Errorf("insert customers: %w", err)
	}
	return nil
}

// CountRows returns the number of rows of table.
func CountRows(ctx context.Context, db *sql.DB, table string) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
