// Package db wraps the relational connection pool behind a lease discipline:
// every connection is checked out with Acquire, used through its Lease, and
// handed back with Release on every exit path.
package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/TheShubhendra/marriagebot/cfg"
	"github.com/TheShubhendra/marriagebot/telemetry"
)

var (
	// ErrDatabaseDisabled means the configuration marks the database
	// subsystem disabled. Fatal at startup, never recoverable at runtime.
	ErrDatabaseDisabled = errors.New("db: database disabled in configuration")

	// ErrAlreadyInitialized means Open was called twice without a Close
	ErrAlreadyInitialized = errors.New("db: pool already initialized")

	// ErrNotInitialized means the pool was used before Open
	ErrNotInitialized = errors.New("db: pool not initialized")

	// ErrTransactionActive means Begin was called while a transaction is
	// already open on the lease
	ErrTransactionActive = errors.New("db: transaction already active on this lease")

	// ErrNoTransaction means Commit or Rollback was called without an open
	// transaction
	ErrNoTransaction = errors.New("db: no active transaction on this lease")

	// ErrProtocolViolation means the caller broke the lease contract, e.g.
	// releasing a lease that still holds an open transaction
	ErrProtocolViolation = errors.New("db: connection lease protocol violation")
)

// PoolManager owns the bounded pool of relational connections. One instance
// is constructed at process startup and passed by handle to every component
// needing database access; there is no package-level pool state.
type PoolManager struct {
	config cfg.DatabaseConfiguration

	mu sync.Mutex
	db *sqlx.DB
}

// NewPoolManager creates a pool manager from configuration. A configuration
// with the database disabled is rejected outright.
func NewPoolManager(config cfg.DatabaseConfiguration) (*PoolManager, error) {
	if !config.Enabled {
		return nil, ErrDatabaseDisabled
	}
	if config.PoolSize < 1 {
		return nil, fmt.Errorf("connection pool size must be >= 1, got %d", config.PoolSize)
	}

	return &PoolManager{config: config}, nil
}

// Open creates the bounded connection pool and verifies connectivity.
// Calling Open twice without a Close returns ErrAlreadyInitialized.
func (p *PoolManager) Open(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db != nil {
		return ErrAlreadyInitialized
	}

	d, err := sqlx.Open(p.config.Driver, p.config.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	d.SetMaxOpenConns(p.config.PoolSize)
	d.SetMaxIdleConns(p.config.PoolSize)
	d.SetConnMaxIdleTime(time.Duration(p.config.MaxIdleTimeSeconds) * time.Second)
	d.SetConnMaxLifetime(time.Duration(p.config.MaxLifetimeSeconds) * time.Second)

	if err := d.PingContext(ctx); err != nil {
		d.Close()
		return fmt.Errorf("failed to reach database: %w", err)
	}

	p.db = d
	log.Info().
		Str("driver", p.config.Driver).
		Int("pool_size", p.config.PoolSize).
		Msg("Database pool initialized")
	return nil
}

// Close shuts the pool down. After Close the manager may be opened again.
func (p *PoolManager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return nil
	}

	err := p.db.Close()
	p.db = nil
	return err
}

// Driver returns the configured driver name
func (p *PoolManager) Driver() string {
	return p.config.Driver
}

// Acquire checks one connection out of the pool. It blocks only the calling
// goroutine until a connection frees up or ctx is cancelled; the pool never
// grows past its configured size.
func (p *PoolManager) Acquire(ctx context.Context) (*Lease, error) {
	p.mu.Lock()
	d := p.db
	p.mu.Unlock()

	if d == nil {
		return nil, ErrNotInitialized
	}

	start := time.Now()
	conn, err := d.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	telemetry.AcquireWaitSeconds.Observe(time.Since(start).Seconds())
	telemetry.LeasesInUse.Inc()

	return &Lease{conn: conn}, nil
}

// Release returns the lease's connection to the pool. The caller must finish
// any transaction first: releasing with a dangling transaction keeps the
// lease checked out and returns ErrProtocolViolation.
func (p *PoolManager) Release(lease *Lease) error {
	if lease == nil {
		return nil
	}
	if lease.tx != nil {
		return fmt.Errorf("%w: released with an open transaction", ErrProtocolViolation)
	}
	if lease.released {
		return fmt.Errorf("%w: lease already released", ErrProtocolViolation)
	}

	lease.released = true
	telemetry.LeasesInUse.Dec()
	return lease.conn.Close()
}
