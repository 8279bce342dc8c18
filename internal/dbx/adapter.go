package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/jackc/pgx/v5/stdlib"
)

// Adapter implements Access on top of a pooled *sql.DB driven by pgx.
type Adapter struct {
	db     *sql.DB
	opts   Options
	logger logging.Logger
	closed atomic.Bool

	// mu guards the manual transaction handle.
	mu   sync.Mutex
	conn *sql.Conn
	tx   *sql.Tx
}

var _ Access = (*Adapter)(nil)

// Open builds a PostgreSQL pool from opts. No connection is made until the
// first statement runs.
func Open(opts Options, logger logging.Logger) (*Adapter, error) {
	if opts.DSN == "" {
		return nil, ErrMissingDSN
	}
	opts = opts.withDefaults()

	cc, err := connConfig(opts)
	if err != nil {
		return nil, err
	}

	db := stdlib.OpenDB(*cc)
	db.SetMaxOpenConns(opts.MaxConns)
	db.SetMaxIdleConns(opts.MaxConns)
	db.SetConnMaxIdleTime(opts.IdleTimeout)

	return NewAdapter(db, opts, logger), nil
}

// NewAdapter wraps an already opened pool. Pool limits are left as they are.
func NewAdapter(db *sql.DB, opts Options, logger logging.Logger) *Adapter {
	return &Adapter{
		db:     db,
		opts:   opts.withDefaults(),
		logger: logger.With("module", "dbx"),
	}
}

// DB exposes the pool for tooling that needs *sql.DB, such as migrations.
func (a *Adapter) DB() *sql.DB {
	return a.db
}

func (a *Adapter) Query(ctx context.Context, statement string, args ...any) (*Result, error) {
	if tx := a.activeTx(); tx != nil {
		return query(ctx, tx, statement, args)
	}

	var res *Result
	err := a.withRetry(ctx, statement, func(ctx context.Context) error {
		conn, err := a.acquire(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		r, err := query(ctx, conn, statement, args)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (a *Adapter) QueryOne(ctx context.Context, statement string, args ...any) (Row, error) {
	res, err := a.Query(ctx, statement, args...)
	if err != nil {
		return nil, err
	}
	return res.First(), nil
}

func (a *Adapter) Exec(ctx context.Context, statement string, args ...any) (*Result, error) {
	if tx := a.activeTx(); tx != nil {
		return exec(ctx, tx, statement, args)
	}

	var res *Result
	err := a.withRetry(ctx, statement, func(ctx context.Context) error {
		conn, err := a.acquire(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		r, err := exec(ctx, conn, statement, args)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// BeginTransaction checks out a dedicated connection and starts a
// transaction on it. Until CommitTransaction or RollbackTransaction, every
// Query/QueryOne/Exec on this adapter runs on that connection.
//
// The transaction outlives ctx cancellation; it ends only through Commit,
// Rollback or Close.
func (a *Adapter) BeginTransaction(ctx context.Context) error {
	if a.activeTx() != nil {
		return ErrTransactionInProgress
	}

	// Checkout can wait up to AcquireTimeout; a.mu is not held meanwhile so
	// statements on the pool keep flowing.
	conn, err := a.acquire(ctx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.tx != nil {
		_ = conn.Close()
		return ErrTransactionInProgress
	}

	tx, err := conn.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("begin transaction: %w", err)
	}

	a.conn, a.tx = conn, tx
	return nil
}

func (a *Adapter) CommitTransaction(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.tx == nil {
		return ErrNoTransaction
	}
	err := a.tx.Commit()
	if err != nil {
		err = fmt.Errorf("commit transaction: %w", err)
	}
	return a.releaseLocked(err)
}

func (a *Adapter) RollbackTransaction(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.tx == nil {
		return ErrNoTransaction
	}
	err := a.tx.Rollback()
	if err != nil {
		err = fmt.Errorf("rollback transaction: %w", err)
	}
	return a.releaseLocked(err)
}

// releaseLocked returns the transaction connection to the pool and clears
// the handle whatever happened to the COMMIT/ROLLBACK itself.
func (a *Adapter) releaseLocked(err error) error {
	closeErr := a.conn.Close()
	a.conn, a.tx = nil, nil
	if closeErr != nil && !errors.Is(closeErr, sql.ErrConnDone) {
		return errors.Join(err, fmt.Errorf("release connection: %w", closeErr))
	}
	return err
}

func (a *Adapter) Transaction(ctx context.Context, work func(ctx context.Context, q Querier) error) error {
	conn, err := a.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	return withTx(ctx, conn, work)
}

func (a *Adapter) Close() error {
	if a.closed.Swap(true) {
		return nil
	}

	a.mu.Lock()
	if a.tx != nil {
		_ = a.tx.Rollback()
		_ = a.releaseLocked(nil)
	}
	a.mu.Unlock()

	return a.db.Close()
}

func (a *Adapter) HealthCheck(ctx context.Context) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			a.logger.Error(ctx, "health check panicked", "panic", p)
			ok = false
		}
	}()

	if a.closed.Load() {
		return false
	}

	hctx, cancel := context.WithTimeout(ctx, a.opts.AcquireTimeout)
	defer cancel()

	var one int
	if err := a.db.QueryRowContext(hctx, "SELECT 1").Scan(&one); err != nil {
		a.logger.Warn(ctx, "health check failed", "error", err)
		return false
	}
	return one == 1
}

func (a *Adapter) activeTx() *sql.Tx {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tx
}

// acquire checks a connection out of the pool, giving up after
// AcquireTimeout. The caller must Close it.
func (a *Adapter) acquire(ctx context.Context) (*sql.Conn, error) {
	if a.closed.Load() {
		return nil, ErrClosed
	}

	actx, cancel := context.WithTimeout(ctx, a.opts.AcquireTimeout)
	defer cancel()

	conn, err := a.db.Conn(actx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %w", ErrAcquireTimeout, err)
		}
		return nil, err
	}
	return conn, nil
}

// commandOf returns the leading SQL verb of a statement.
func commandOf(statement string) string {
	fields := strings.Fields(statement)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}
