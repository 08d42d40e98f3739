// Package lock provides a cross-process named lease. Exclusivity is backed
// by a row in the shared SQLite file, so independently started worker
// processes contend through the same resource, and a lease TTL guarantees a
// crashed holder cannot starve later refreshes.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrContended marks an acquire attempt that timed out while another holder
// kept the lease. Callers report it distinctly from data errors.
var ErrContended = errors.New("lock held by another process")

// Lease is an acquired lock. Release is safe on all exit paths; releasing a
// lease that already expired and was taken over is a no-op.
type Lease struct {
	l      *Locker
	name   string
	holder string
}

// Locker acquires named leases.
type Locker struct {
	db           *sql.DB
	ttl          time.Duration
	pollInterval time.Duration
}

// Option applies a configuration option to the Locker.
type Option func(*Locker)

// WithTTL sets how long a lease survives without release. It must exceed the
// longest expected refresh cycle.
func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithPollInterval sets the retry interval while waiting for a busy lease.
func WithPollInterval(d time.Duration) Option {
	return func(l *Locker) {
		if d > 0 {
			l.pollInterval = d
		}
	}
}

// New creates a Locker over the shared database handle.
func New(db *sql.DB, opts ...Option) *Locker {
	l := &Locker{
		db:           db,
		ttl:          10 * time.Minute,
		pollInterval: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire obtains the named lease, polling until ctx expires. On contention
// past the deadline it returns ErrContended; it never blocks indefinitely.
func (l *Locker) Acquire(ctx context.Context, name string) (*Lease, error) {
	holder := uuid.NewString()
	for {
		ok, err := l.tryAcquire(ctx, name, holder)
		if err != nil {
			return nil, err
		}
		if ok {
			return &Lease{l: l, name: name, holder: holder}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ErrContended
		case <-time.After(l.pollInterval):
		}
	}
}

// tryAcquire performs one atomic take-if-free-or-expired attempt. BEGIN
// IMMEDIATE serializes writers at the database level, so two processes can
// never both see the lease as free.
func (l *Locker) tryAcquire(ctx context.Context, name, holder string) (bool, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin lock tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().UnixMilli()
	var (
		current string
		expires int64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT holder, expires_at FROM refresh_lease WHERE name = ?`, name).
		Scan(&current, &expires)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Free; fall through to take it.
	case err != nil:
		return false, fmt.Errorf("query lease: %w", err)
	case expires > now && current != holder:
		return false, nil
	}

	expiresAt := time.Now().UTC().Add(l.ttl).UnixMilli()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO refresh_lease (name, holder, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET holder = excluded.holder, expires_at = excluded.expires_at`,
		name, holder, expiresAt); err != nil {
		return false, fmt.Errorf("take lease: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit lease: %w", err)
	}
	return true, nil
}

// Release gives the lease back. Only the current holder's row is deleted, so
// a stale release after TTL takeover cannot drop someone else's lease.
func (le *Lease) Release(ctx context.Context) error {
	if le == nil || le.l == nil {
		return nil
	}
	_, err := le.l.db.ExecContext(ctx,
		`DELETE FROM refresh_lease WHERE name = ? AND holder = ?`, le.name, le.holder)
	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}
