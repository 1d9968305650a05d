package respool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"reeldex/internal/logging"
)

// LoadFunc constructs a resource on first acquisition.
type LoadFunc func() (any, error)

// Pool tracks shared resources by identifier with reference counting.
type Pool struct {
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	id    string
	refs  int
	value any
	err   error
	ready chan struct{}
}

// New constructs an empty pool.
func New(logger *slog.Logger) *Pool {
	return &Pool{
		logger:  logging.NewComponentLogger(logger, "respool"),
		entries: make(map[string]*entry),
	}
}

// Acquire returns a lease on the resource with the given identifier,
// loading it via load when no live lease exists. Concurrent acquirers of
// the same identifier share a single load; if that load fails, every
// waiter receives the error and a later Acquire retries from scratch.
func (p *Pool) Acquire(ctx context.Context, id string, load LoadFunc) (*Lease, error) {
	if id == "" {
		return nil, errors.New("resource id is required")
	}
	if load == nil {
		return nil, errors.New("load function is required")
	}

	p.mu.Lock()
	if e, ok := p.entries[id]; ok {
		e.refs++
		p.mu.Unlock()

		select {
		case <-e.ready:
		case <-ctx.Done():
			p.release(e)
			return nil, ctx.Err()
		}
		if e.err != nil {
			return nil, e.err
		}
		return &Lease{pool: p, entry: e}, nil
	}

	e := &entry{id: id, refs: 1, ready: make(chan struct{})}
	p.entries[id] = e
	p.mu.Unlock()

	value, err := load()

	p.mu.Lock()
	e.value = value
	e.err = err
	close(e.ready)
	if err != nil {
		delete(p.entries, id)
		p.mu.Unlock()
		return nil, fmt.Errorf("load resource %s: %w", id, err)
	}
	p.mu.Unlock()

	p.logger.Debug("resource loaded", logging.String("resource", id))
	return &Lease{pool: p, entry: e}, nil
}

// Size reports the number of live resources.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Refs reports the reference count for the identifier, zero when absent.
func (p *Pool) Refs(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[id]; ok {
		return e.refs
	}
	return 0
}

// Reset evicts every resource regardless of reference count, closing the
// ones that implement io.Closer. Outstanding leases become inert; their
// Release calls are still safe. Used on interrupt so external handles do
// not leak past the run.
func (p *Pool) Reset() {
	p.mu.Lock()
	evicted := make([]*entry, 0, len(p.entries))
	for id, e := range p.entries {
		delete(p.entries, id)
		evicted = append(evicted, e)
	}
	p.mu.Unlock()

	for _, e := range evicted {
		p.closeValue(e)
	}
}

func (p *Pool) release(e *entry) {
	p.mu.Lock()
	e.refs--
	if e.refs > 0 {
		p.mu.Unlock()
		return
	}
	// The pool may already have evicted this entry via Reset.
	if current, ok := p.entries[e.id]; ok && current == e {
		delete(p.entries, e.id)
	} else {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.closeValue(e)
	p.logger.Debug("resource evicted", logging.String("resource", e.id))
}

func (p *Pool) closeValue(e *entry) {
	closer, ok := e.value.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		p.logger.Warn("resource close failed",
			logging.String("resource", e.id),
			logging.Error(err))
	}
}

// Lease is a counted reference to a pooled resource.
type Lease struct {
	pool  *Pool
	entry *entry
	once  sync.Once
}

// Value returns the loaded resource.
func (l *Lease) Value() any {
	if l == nil || l.entry == nil {
		return nil
	}
	return l.entry.value
}

// Release returns the lease to the pool. The last release evicts the
// resource. Calling Release more than once has no further effect.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		l.pool.release(l.entry)
	})
}
