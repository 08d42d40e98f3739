// Package dedupe tracks game dedup keys within a refresh cycle so the same
// real-world game is never upserted twice, regardless of how many provider
// feeds report it.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records seen dedup keys for at-most-once processing.
type Deduper interface {
	// SeenAndRecord atomically checks whether key was seen and records it if
	// not. Returns true if key was already seen.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets a key, allowing it to be retried after a failed
	// persist.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// Option applies a configuration option to the cycle deduper.
type Option func(*cycleDeduper)

// WithSizeHint pre-sizes the seen set for the expected candidate volume.
func WithSizeHint(n int) Option {
	return func(d *cycleDeduper) {
		if n > 0 {
			d.hint = n
		}
	}
}

// cycleDeduper is a mutex-guarded set. A refresh cycle is bounded by the
// league's season size, so no eviction is needed; a fresh deduper is built
// per cycle.
type cycleDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
	size atomic.Int64
	hint int
}

// NewCycle creates a deduper scoped to one refresh cycle.
func NewCycle(opts ...Option) Deduper {
	d := &cycleDeduper{hint: 256}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]struct{}, d.hint)
	return d
}

func (d *cycleDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return true
	}
	d.seen[key] = struct{}{}
	d.size.Add(1)
	return false
}

func (d *cycleDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		delete(d.seen, key)
		d.size.Add(-1)
	}
}

func (d *cycleDeduper) Size() int64 {
	return d.size.Load()
}
