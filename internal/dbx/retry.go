package dbx

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
)

// transientErrnos are socket-level failures worth another attempt.
var transientErrnos = []syscall.Errno{
	syscall.ECONNRESET,
	syscall.ECONNREFUSED,
	syscall.ECONNABORTED,
	syscall.ETIMEDOUT,
	syscall.EPIPE,
}

// transientMessages is the allow-list matched against error text when no
// typed error is available, e.g. errors flattened by a proxy.
var transientMessages = []string{
	"econnreset",
	"etimedout",
	"enotfound",
	"econnrefused",
	"connection reset",
	"connection refused",
	"connection timed out",
	"no such host",
	"i/o timeout",
	"timeout expired",
	"broken pipe",
	"unexpected eof",
	"connection terminated unexpectedly",
	"server closed the connection unexpectedly",
}

// IsTransient reports whether err is a connectivity failure that is likely
// to succeed on retry. Constraint violations, syntax errors, statement
// timeouts and caller cancellation are not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrAcquireTimeout) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	for _, errno := range transientErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isTransientSQLState(pgErr.Code)
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range transientMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// isTransientSQLState matches class 08 (connection exception) and the
// operator-intervention shutdown codes.
func isTransientSQLState(code string) bool {
	if strings.HasPrefix(code, "08") {
		return true
	}
	switch code {
	case "57P01", "57P02", "57P03":
		return true
	}
	return false
}

type singleAttemptKey struct{}

// SingleAttempt marks ctx so pool statements run once, without retries.
// Meant for best-effort writes that should fail fast.
func SingleAttempt(ctx context.Context) context.Context {
	return context.WithValue(ctx, singleAttemptKey{}, true)
}

// IsSingleAttempt reports whether ctx was marked by SingleAttempt.
func IsSingleAttempt(ctx context.Context) bool {
	v, _ := ctx.Value(singleAttemptKey{}).(bool)
	return v
}

// withRetry runs fn up to MaxAttempts times while it fails with transient
// errors, sleeping attempt*RetryBaseDelay between attempts (1s, 2s, ...).
func (a *Adapter) withRetry(ctx context.Context, statement string, fn func(ctx context.Context) error) error {
	maxAttempts := a.opts.MaxAttempts
	if IsSingleAttempt(ctx) {
		maxAttempts = 1
	}

	attempt := 0
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		if attempt >= maxAttempts {
			return 0, true
		}
		return time.Duration(attempt) * a.opts.RetryBaseDelay, false
	})

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil || !IsTransient(err) {
			return err
		}

		a.logger.Warn(ctx, "transient database error",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"command", commandOf(statement),
			"error", err,
		)
		if attempt < maxAttempts && a.opts.OnRetry != nil {
			a.opts.OnRetry(attempt, err)
		}
		return retry.RetryableError(err)
	})

	if err != nil && attempt >= maxAttempts && IsTransient(err) {
		return fmt.Errorf("%w: gave up after %d attempts: %w", ErrTransient, attempt, err)
	}
	return err
}
