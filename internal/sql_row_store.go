package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/breeze"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver
)

// SQLRowStore is the row store built on database/sql. It serves the sqlite dialect and Postgres
// through the pgx stdlib driver.
type SQLRowStore struct {
	db        *sql.DB
	isolation sql.IsolationLevel
	stmts     statementBuilder
}

// NewSQLRowStore creates a row store for db speaking dialect.
func NewSQLRowStore(db *sql.DB, dialect breeze.Dialect, isolationLevel string) *SQLRowStore {
	isolation := sql.LevelDefault
	// sqlite only knows serializable transactions
	if dialect != breeze.DialectSQLite {
		isolation = sqlIsolationLevel(isolationLevel)
	}
	return &SQLRowStore{
		db:        db,
		isolation: isolation,
		stmts:     newStatementBuilder(dialect),
	}
}

func sqlIsolationLevel(level string) sql.IsolationLevel {
	switch pgxIsolationLevel(level) {
	case pgx.ReadUncommitted:
		return sql.LevelReadUncommitted
	case pgx.ReadCommitted:
		return sql.LevelReadCommitted
	case pgx.RepeatableRead:
		return sql.LevelRepeatableRead
	case pgx.Serializable:
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

func (s *SQLRowStore) BeginTx(ctx context.Context) (breeze.Tx, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: s.isolation})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &sqlTx{tx: tx, stmts: s.stmts}, nil
}

type sqlTx struct {
	tx    *sql.Tx
	stmts statementBuilder
}

func (t *sqlTx) Insert(ctx context.Context, et *breeze.EntityType, values map[string]any) (map[string]any, error) {
	query, args := t.stmts.insert(et, values)
	zap.S().Debugw("insert entity", "entityType", et.Name, "query", query)
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &breeze.StatementError{Statement: query, Err: err}
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, &breeze.StatementError{Statement: query, Err: err}
	}
	var row map[string]any
	if rows.Next() {
		vals := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &breeze.StatementError{Statement: query, Err: err}
		}
		row = rowValues(et, columns, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, &breeze.StatementError{Statement: query, Err: err}
	}
	if row == nil {
		return nil, &breeze.StatementError{Statement: query, Err: fmt.Errorf("insert returned no row")}
	}
	return row, nil
}

func (t *sqlTx) Update(ctx context.Context, et *breeze.EntityType, set, where map[string]any) (int64, error) {
	query, args, err := t.stmts.update(et, set, where)
	if err != nil {
		return 0, err
	}
	zap.S().Debugw("update entity", "entityType", et.Name, "query", query)
	return t.exec(ctx, query, args...)
}

func (t *sqlTx) Delete(ctx context.Context, et *breeze.EntityType, where map[string]any, limit int) error {
	query, args, err := t.stmts.delete(et, where, limit)
	if err != nil {
		return err
	}
	zap.S().Debugw("delete entity", "entityType", et.Name, "query", query)
	_, err = t.exec(ctx, query, args...)
	return err
}

func (t *sqlTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return t.exec(ctx, query, args...)
}

func (t *sqlTx) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, &breeze.StatementError{Statement: query, Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, &breeze.StatementError{Statement: query, Err: err}
	}
	return affected, nil
}

func (t *sqlTx) Commit(_ context.Context) error {
	return t.tx.Commit()
}

func (t *sqlTx) Rollback(_ context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}
