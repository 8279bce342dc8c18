package dbx

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// Pool and retry defaults.
const (
	DefaultMaxConns         = 20
	DefaultIdleTimeout      = 30 * time.Second
	DefaultAcquireTimeout   = 15 * time.Second
	DefaultStatementTimeout = 30 * time.Second
	DefaultKeepAliveDelay   = 10 * time.Second
	DefaultMaxAttempts      = 3
	DefaultRetryBaseDelay   = time.Second
)

// Options configure an Adapter. Zero values are replaced by the defaults
// above; only DSN is mandatory.
type Options struct {
	DSN string

	MaxConns         int
	IdleTimeout      time.Duration
	AcquireTimeout   time.Duration
	StatementTimeout time.Duration
	KeepAliveDelay   time.Duration

	// RequireSSL forces TLS regardless of host and environment.
	RequireSSL bool
	// Production turns TLS on for hosts that would otherwise go without.
	Production bool

	MaxAttempts    int
	RetryBaseDelay time.Duration

	// OnRetry, when set, is called before each retry sleep.
	OnRetry func(attempt int, err error)
}

func (o Options) withDefaults() Options {
	if o.MaxConns <= 0 {
		o.MaxConns = DefaultMaxConns
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = DefaultAcquireTimeout
	}
	if o.StatementTimeout <= 0 {
		o.StatementTimeout = DefaultStatementTimeout
	}
	if o.KeepAliveDelay <= 0 {
		o.KeepAliveDelay = DefaultKeepAliveDelay
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = DefaultRetryBaseDelay
	}
	return o
}

// SSLMode is the transport security applied to new connections.
type SSLMode int

const (
	SSLDisabled SSLMode = iota
	// SSLRequired encrypts the connection but accepts self-signed server
	// certificates, which is what managed database services hand out.
	SSLRequired
)

func (m SSLMode) String() string {
	if m == SSLRequired {
		return "require"
	}
	return "disable"
}

// managedCloudHostSuffix identifies RDS-style hosts that only accept TLS.
const managedCloudHostSuffix = ".rds.amazonaws.com"

// ResolveSSL derives the SSL policy for a connection string.
func ResolveSSL(dsn string, requireSSL, production bool) SSLMode {
	switch {
	case strings.Contains(strings.ToLower(dsn), managedCloudHostSuffix), requireSSL:
		return SSLRequired
	case production:
		return SSLRequired
	default:
		return SSLDisabled
	}
}

// connConfig turns Options into a pgx connection config: TCP keep-alive,
// connect timeout, server-side statement_timeout and TLS. An sslmode in
// the connection string is honored; ResolveSSL only fills in when there
// is none, or upgrades a weaker mode to required.
func connConfig(o Options) (*pgx.ConnConfig, error) {
	cfg, err := pgx.ParseConfig(o.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	cfg.ConnectTimeout = o.AcquireTimeout
	if cfg.RuntimeParams == nil {
		cfg.RuntimeParams = map[string]string{}
	}
	cfg.RuntimeParams["statement_timeout"] = strconv.FormatInt(o.StatementTimeout.Milliseconds(), 10)

	dialer := &net.Dialer{
		Timeout: o.AcquireTimeout,
		KeepAliveConfig: net.KeepAliveConfig{
			Enable: true,
			Idle:   o.KeepAliveDelay,
		},
	}
	cfg.DialFunc = dialer.DialContext

	policy := ResolveSSL(o.DSN, o.RequireSSL, o.Production)
	switch mode := sslModeOf(o.DSN); {
	case mode == "require", mode == "verify-ca", mode == "verify-full":
		// already at least as strict as any policy; pgx applied it as written
	case mode != "" && policy == SSLDisabled:
		// disable/allow/prefer as written
	default:
		applySSLPolicy(cfg, policy)
	}

	return cfg, nil
}

// applySSLPolicy pins the connection to a single attempt under policy.
// pgx's default sslmode=prefer adds a plaintext fallback that would
// otherwise dial the same host a second time.
func applySSLPolicy(cfg *pgx.ConnConfig, policy SSLMode) {
	cfg.Fallbacks = nil
	cfg.TLSConfig = nil
	if policy == SSLRequired {
		cfg.TLSConfig = &tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: true, //nolint:gosec // managed databases use self-signed certs
		}
	}
}

var keywordSSLMode = regexp.MustCompile(`(?:^|\s)sslmode\s*=\s*'?([a-z-]+)`)

// sslModeOf returns the sslmode named by the connection string, or by
// PGSSLMODE when the string has none. Empty means pgx would default to
// prefer.
func sslModeOf(dsn string) string {
	var mode string
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		if u, err := url.Parse(dsn); err == nil {
			mode = u.Query().Get("sslmode")
		}
	} else if m := keywordSSLMode.FindStringSubmatch(dsn); m != nil {
		mode = m[1]
	}
	if mode == "" {
		mode = os.Getenv("PGSSLMODE")
	}
	return strings.ToLower(mode)
}
