// Package dbx is the relational access layer: a small contract for running
// parameterized statements and transactions, a PostgreSQL adapter that
// implements it over a connection pool, and a Holder that owns the single
// adapter of a process.
//
// Statements always use positional placeholders ($1, $2, ...). Values are
// passed separately and are never interpolated into statement text.
package dbx

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Querier runs statements. Both the adapter and the handle passed to a
// Transaction work function satisfy it, so repositories do not care whether
// they run inside a transaction.
type Querier interface {
	// Query runs a statement and collects every returned row.
	Query(ctx context.Context, statement string, args ...any) (*Result, error)

	// QueryOne returns the first row, or (nil, nil) when there is none.
	QueryOne(ctx context.Context, statement string, args ...any) (Row, error)

	// Exec runs a statement that returns no rows. RowCount is the number of
	// affected rows.
	Exec(ctx context.Context, statement string, args ...any) (*Result, error)
}

// Access is the full contract used by services.
type Access interface {
	Querier

	// BeginTransaction, CommitTransaction and RollbackTransaction give manual
	// control over one adapter-wide transaction. Prefer Transaction.
	BeginTransaction(ctx context.Context) error
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error

	// Transaction runs work inside its own transaction. It commits when work
	// returns nil and rolls back otherwise; a panic in work rolls back and is
	// re-raised. The connection is released on every path.
	Transaction(ctx context.Context, work func(ctx context.Context, q Querier) error) error

	// Close releases a pending manual transaction and shuts the pool down.
	// Calling it more than once is safe.
	Close() error

	// HealthCheck runs SELECT 1 and reports success. It never returns an error.
	HealthCheck(ctx context.Context) bool
}

// InTransaction is Transaction for work that produces a value.
func InTransaction[T any](ctx context.Context, a Access, work func(ctx context.Context, q Querier) (T, error)) (T, error) {
	var out T
	err := a.Transaction(ctx, func(ctx context.Context, q Querier) error {
		v, err := work(ctx, q)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Result is the outcome of a statement.
type Result struct {
	// Command is the leading SQL verb, e.g. "SELECT" or "INSERT".
	Command  string
	RowCount int64
	Columns  []string
	Rows     []Row
}

// First returns the first row or nil.
func (r *Result) First() Row {
	if r == nil || len(r.Rows) == 0 {
		return nil
	}
	return r.Rows[0]
}

// Row maps column names to driver values.
type Row map[string]any

// String returns the column as a string. []byte values are converted;
// NULL and missing columns yield "".
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case [16]byte:
		return uuid.UUID(v).String()
	default:
		return fmt.Sprint(v)
	}
}

// Int64 returns the column as an int64, or 0 when it is not numeric.
func (r Row) Int64(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// Time returns the column as a time.Time, or the zero time.
func (r Row) Time(col string) time.Time {
	if v, ok := r[col].(time.Time); ok {
		return v
	}
	return time.Time{}
}

// Bool returns the column as a bool.
func (r Row) Bool(col string) bool {
	v, _ := r[col].(bool)
	return v
}
