package dbx

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
)

// Opener constructs an adapter; Open in production, a stub in tests.
type Opener func(opts Options, logger logging.Logger) (*Adapter, error)

// Holder owns the one Adapter of a process. It is created by the entry
// point and passed to whoever needs database access; nothing reaches it
// through package state.
//
// Get is safe for concurrent use. Reset is meant for shutdown and tests and
// must not race with callers still using the adapter.
type Holder struct {
	opts   Options
	logger logging.Logger
	open   Opener

	mu       sync.Mutex
	instance *Adapter
}

func NewHolder(opts Options, logger logging.Logger) *Holder {
	return &Holder{opts: opts, logger: logger, open: Open}
}

// Get returns the adapter, opening it on first use.
func (h *Holder) Get(ctx context.Context) (*Adapter, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.instance != nil {
		return h.instance, nil
	}
	if h.opts.DSN == "" {
		return nil, ErrMissingDSN
	}

	a, err := h.open(h.opts, h.logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	h.instance = a

	h.logger.Info(ctx, "database adapter initialized",
		"max_conns", a.opts.MaxConns,
		"ssl", ResolveSSL(h.opts.DSN, h.opts.RequireSSL, h.opts.Production).String(),
	)
	return a, nil
}

// Reset closes the adapter, if any, and forgets it. The next Get opens a
// fresh one.
func (h *Holder) Reset() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.instance == nil {
		return nil
	}
	err := h.instance.Close()
	h.instance = nil
	return err
}

// HealthCheck reports whether the adapter exists and answers SELECT 1.
func (h *Holder) HealthCheck(ctx context.Context) bool {
	h.mu.Lock()
	a := h.instance
	h.mu.Unlock()

	return a != nil && a.HealthCheck(ctx)
}
