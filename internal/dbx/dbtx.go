package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// execer is the subset of database/sql shared by *sql.DB, *sql.Conn and
// *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// withTx begins a transaction on conn, runs fn with a handle bound to it,
// and then commits on success or rolls back on error/panic. Panics are
// rethrown after the rollback.
func withTx(ctx context.Context, conn *sql.Conn, fn func(ctx context.Context, q Querier) error) (err error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback transaction: %w", rbErr))
			}
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			err = fmt.Errorf("commit transaction: %w", cErr)
		}
	}()

	err = fn(ctx, txQuerier{tx: tx})
	return err
}

// txQuerier runs statements on an open transaction. Nothing is retried
// here: after a connection failure the transaction is gone anyway.
type txQuerier struct {
	tx *sql.Tx
}

func (q txQuerier) Query(ctx context.Context, statement string, args ...any) (*Result, error) {
	return query(ctx, q.tx, statement, args)
}

func (q txQuerier) QueryOne(ctx context.Context, statement string, args ...any) (Row, error) {
	res, err := query(ctx, q.tx, statement, args)
	if err != nil {
		return nil, err
	}
	return res.First(), nil
}

func (q txQuerier) Exec(ctx context.Context, statement string, args ...any) (*Result, error) {
	return exec(ctx, q.tx, statement, args)
}

func query(ctx context.Context, e execer, statement string, args []any) (*Result, error) {
	rows, err := e.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	res := &Result{Command: commandOf(statement), Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	res.RowCount = int64(len(res.Rows))
	return res, nil
}

func exec(ctx context.Context, e execer, statement string, args []any) (*Result, error) {
	r, err := e.ExecContext(ctx, statement, args...)
	if err != nil {
		return nil, err
	}
	n, _ := r.RowsAffected()
	return &Result{Command: commandOf(statement), RowCount: n}, nil
}
