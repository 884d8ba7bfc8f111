package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/lychee-technology/breeze"
	"go.uber.org/zap"
)

type rowStorePool interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// PgxRowStore is the Postgres row store built on a pgx pool.
type PgxRowStore struct {
	pool      rowStorePool
	isolation pgx.TxIsoLevel
	stmts     statementBuilder
}

// NewPgxRowStore creates a row store; isolationLevel uses the READ_COMMITTED style names of the config.
func NewPgxRowStore(pool rowStorePool, isolationLevel string) *PgxRowStore {
	return &PgxRowStore{
		pool:      pool,
		isolation: pgxIsolationLevel(isolationLevel),
		stmts:     newStatementBuilder(breeze.DialectPostgres),
	}
}

func pgxIsolationLevel(level string) pgx.TxIsoLevel {
	switch strings.ToUpper(strings.ReplaceAll(level, " ", "_")) {
	case "READ_UNCOMMITTED":
		return pgx.ReadUncommitted
	case "READ_COMMITTED":
		return pgx.ReadCommitted
	case "REPEATABLE_READ":
		return pgx.RepeatableRead
	case "SERIALIZABLE":
		return pgx.Serializable
	default:
		return ""
	}
}

func (s *PgxRowStore) BeginTx(ctx context.Context) (breeze.Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: s.isolation})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &pgxTx{tx: tx, stmts: s.stmts}, nil
}

type pgxTx struct {
	tx    pgx.Tx
	stmts statementBuilder
}

func (t *pgxTx) Insert(ctx context.Context, et *breeze.EntityType, values map[string]any) (map[string]any, error) {
	query, args := t.stmts.insert(et, values)
	zap.S().Debugw("insert entity", "entityType", et.Name, "query", query)
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, &breeze.StatementError{Statement: query, Err: err}
	}
	defer rows.Close()

	var row map[string]any
	if rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, &breeze.StatementError{Statement: query, Err: err}
		}
		fields := rows.FieldDescriptions()
		columns := make([]string, len(fields))
		for i, fd := range fields {
			columns[i] = fd.Name
		}
		row = rowValues(et, columns, normalizePgxValues(vals))
	}
	if err := rows.Err(); err != nil {
		return nil, &breeze.StatementError{Statement: query, Err: err}
	}
	if row == nil {
		return nil, &breeze.StatementError{Statement: query, Err: fmt.Errorf("insert returned no row")}
	}
	return row, nil
}

func (t *pgxTx) Update(ctx context.Context, et *breeze.EntityType, set, where map[string]any) (int64, error) {
	query, args, err := t.stmts.update(et, set, where)
	if err != nil {
		return 0, err
	}
	zap.S().Debugw("update entity", "entityType", et.Name, "query", query)
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, &breeze.StatementError{Statement: query, Err: err}
	}
	return tag.RowsAffected(), nil
}

func (t *pgxTx) Delete(ctx context.Context, et *breeze.EntityType, where map[string]any, limit int) error {
	query, args, err := t.stmts.delete(et, where, limit)
	if err != nil {
		return err
	}
	zap.S().Debugw("delete entity", "entityType", et.Name, "query", query)
	if _, err := t.tx.Exec(ctx, query, args...); err != nil {
		return &breeze.StatementError{Statement: query, Err: err}
	}
	return nil
}

func (t *pgxTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, &breeze.StatementError{Statement: query, Err: err}
	}
	return tag.RowsAffected(), nil
}

func (t *pgxTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgxTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// normalizePgxValues turns the pgx representations of uuid and numeric columns into plain values.
func normalizePgxValues(values []any) []any {
	for i, v := range values {
		switch val := v.(type) {
		case [16]byte:
			values[i] = uuid.UUID(val).String()
		case pgtype.Numeric:
			if f, err := val.Float64Value(); err == nil && f.Valid {
				values[i] = f.Float64
			}
		}
	}
	return values
}
