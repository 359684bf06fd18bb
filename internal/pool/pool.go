// Package pool bounds concurrent access to store connections.
//
// A Pool admits at most Config.MaxSize concurrent leases through a FIFO
// counting gate. Get reuses an idle connection when one is available and
// dials a new one otherwise. Stale idle connections are evicted lazily on
// Get and Put; the pool never starts goroutines of its own.
//
//	p, err := pool.New(cfg, dial)
//	lease, err := p.Get(ctx)
//	if err != nil {
//	    return err
//	}
//	defer p.Put(lease)
//	use(lease.Conn())
package pool

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

// timeNow is overridden in tests.
var timeNow = time.Now

// DialFunc opens a new connection.
type DialFunc[C io.Closer] func(ctx context.Context) (C, error)

// Option configures a Pool.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger sets the logger used for eviction and close failures.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

type entry[C io.Closer] struct {
	conn      C
	createdAt time.Time
	lastUsed  time.Time
}

// Pool is a bounded set of reusable connections. It is safe for concurrent
// use.
type Pool[C io.Closer] struct {
	cfg    Config
	dial   DialFunc[C]
	gate   *semaphore.Weighted
	logger *zap.Logger

	mu     sync.Mutex
	idle   []*entry[C] // most recently returned last
	closed bool

	inUse        atomic.Int64
	waitCount    atomic.Int64
	waitDuration atomic.Int64
	dialed       atomic.Int64
	evicted      atomic.Int64
	timeouts     atomic.Int64
}

// New validates cfg and returns an empty pool. No connection is opened
// until Get or Warm.
func New[C io.Closer](cfg Config, dial DialFunc[C], opts ...Option) (*Pool[C], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dial == nil {
		return nil, vecerr.Config("pool.dial", "dial function is required")
	}
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Pool[C]{
		cfg:    cfg,
		dial:   dial,
		gate:   semaphore.NewWeighted(int64(cfg.MaxSize)),
		logger: o.logger,
		idle:   make([]*entry[C], 0, cfg.MaxSize),
	}, nil
}

// Config returns the pool configuration.
func (p *Pool[C]) Config() Config { return p.cfg }

// Get leases a connection. It waits at most Config.Timeout for a free slot
// and returns vecerr.ErrPoolTimeout when none frees up. If ctx ends first
// the context error is returned wrapped as a connection error. A failed
// dial releases the slot before returning.
func (p *Pool[C]) Get(ctx context.Context) (*Lease[C], error) {
	if p.isClosed() {
		return nil, vecerr.ErrPoolClosed
	}

	if !p.gate.TryAcquire(1) {
		p.waitCount.Add(1)
		start := timeNow()
		waitCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		err := p.gate.Acquire(waitCtx, 1)
		cancel()
		p.waitDuration.Add(int64(timeNow().Sub(start)))
		if err != nil {
			if ctx.Err() != nil {
				return nil, vecerr.Connection("acquire", ctx.Err())
			}
			p.timeouts.Add(1)
			return nil, vecerr.ErrPoolTimeout
		}
	}
	p.inUse.Add(1)

	if p.isClosed() {
		p.releaseSlot()
		return nil, vecerr.ErrPoolClosed
	}

	e := p.takeIdle()
	if e == nil {
		conn, err := p.dial(ctx)
		if err != nil {
			p.releaseSlot()
			return nil, vecerr.Connection("dial", err)
		}
		p.dialed.Add(1)
		now := timeNow()
		e = &entry[C]{conn: conn, createdAt: now, lastUsed: now}
	}
	return &Lease[C]{pool: p, entry: e}, nil
}

// Put returns a leased connection to the idle set and frees its slot.
// Calling Put more than once for the same lease is a no-op. After Close the
// connection is closed instead and ErrPoolClosed is returned; the slot is
// still freed.
func (p *Pool[C]) Put(l *Lease[C]) error {
	if l == nil || l.pool != p {
		return vecerr.Invalid("lease", "lease does not belong to this pool")
	}
	var err error
	l.once.Do(func() {
		defer p.releaseSlot()
		e := l.entry
		now := timeNow()

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			p.closeConn(e, "pool closed")
			err = vecerr.ErrPoolClosed
			return
		}
		if p.expiredLifetime(e, now) {
			p.mu.Unlock()
			p.evicted.Add(1)
			p.closeConn(e, "max lifetime reached")
			return
		}
		e.lastUsed = now
		p.idle = append(p.idle, e)
		p.mu.Unlock()
	})
	return err
}

// Discard closes a leased connection instead of returning it, for
// connections known to be broken, and frees its slot.
func (p *Pool[C]) Discard(l *Lease[C]) {
	if l == nil || l.pool != p {
		return
	}
	l.once.Do(func() {
		defer p.releaseSlot()
		p.closeConn(l.entry, "discarded")
	})
}

// Close closes every idle connection. Leased connections are closed as
// they are returned. Get fails with ErrPoolClosed afterwards. Close is
// idempotent.
func (p *Pool[C]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var errs []error
	for _, e := range idle {
		if err := e.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Size returns the number of free slots: MaxSize minus leased connections.
func (p *Pool[C]) Size() int {
	return p.cfg.MaxSize - int(p.inUse.Load())
}

// Warm opens idle connections until MinIdle are available, without
// exceeding MaxSize connections in total. Each dial holds a slot, so Warm
// stops early when every slot is leased.
func (p *Pool[C]) Warm(ctx context.Context) error {
	for {
		if !p.gate.TryAcquire(1) {
			return nil
		}
		done, err := p.warmOne(ctx)
		p.gate.Release(1)
		if err != nil || done {
			return err
		}
	}
}

// warmOne adds one idle connection while the caller holds a slot. It
// reports done when no more are needed.
func (p *Pool[C]) warmOne(ctx context.Context) (bool, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return true, vecerr.ErrPoolClosed
	}
	need := len(p.idle) < p.cfg.MinIdle && p.total() < p.cfg.MaxSize
	p.mu.Unlock()
	if !need {
		return true, nil
	}

	conn, err := p.dial(ctx)
	if err != nil {
		return true, vecerr.Connection("dial", err)
	}
	p.dialed.Add(1)
	now := timeNow()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = conn.Close()
		return true, vecerr.ErrPoolClosed
	}
	if p.total() >= p.cfg.MaxSize {
		p.mu.Unlock()
		_ = conn.Close()
		return true, nil
	}
	p.idle = append(p.idle, &entry[C]{conn: conn, createdAt: now, lastUsed: now})
	p.mu.Unlock()
	return false, nil
}

// total counts idle and leased connections. Callers hold p.mu.
func (p *Pool[C]) total() int {
	return len(p.idle) + int(p.inUse.Load())
}

// Stats is a point-in-time view of pool usage.
type Stats struct {
	MaxSize      int
	InUse        int
	Idle         int
	WaitCount    int64
	WaitDuration time.Duration
	Dialed       int64
	Evicted      int64
	Timeouts     int64
}

// Stats returns current usage counters.
func (p *Pool[C]) Stats() Stats {
	p.mu.Lock()
	idle := len(p.idle)
	p.mu.Unlock()
	return Stats{
		MaxSize:      p.cfg.MaxSize,
		InUse:        int(p.inUse.Load()),
		Idle:         idle,
		WaitCount:    p.waitCount.Load(),
		WaitDuration: time.Duration(p.waitDuration.Load()),
		Dialed:       p.dialed.Load(),
		Evicted:      p.evicted.Load(),
		Timeouts:     p.timeouts.Load(),
	}
}

func (p *Pool[C]) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pool[C]) releaseSlot() {
	p.inUse.Add(-1)
	p.gate.Release(1)
}

// takeIdle evicts stale idle connections and pops the most recently used
// survivor.
func (p *Pool[C]) takeIdle() *entry[C] {
	now := timeNow()
	p.mu.Lock()
	var stale []*entry[C]
	kept := p.idle[:0]
	for i, e := range p.idle {
		remaining := len(p.idle) - i - 1 + len(kept)
		switch {
		case p.expiredLifetime(e, now):
			stale = append(stale, e)
		case p.expiredIdle(e, now) && remaining >= p.cfg.MinIdle:
			stale = append(stale, e)
		default:
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(p.idle); i++ {
		p.idle[i] = nil
	}
	p.idle = kept

	var got *entry[C]
	if n := len(p.idle); n > 0 {
		got = p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
	}
	p.mu.Unlock()

	for _, e := range stale {
		p.evicted.Add(1)
		p.closeConn(e, "stale")
	}
	if got != nil {
		got.lastUsed = now
	}
	return got
}

func (p *Pool[C]) expiredLifetime(e *entry[C], now time.Time) bool {
	return p.cfg.MaxLifetime > 0 && now.Sub(e.createdAt) >= p.cfg.MaxLifetime
}

func (p *Pool[C]) expiredIdle(e *entry[C], now time.Time) bool {
	return p.cfg.IdleTimeout > 0 && now.Sub(e.lastUsed) >= p.cfg.IdleTimeout
}

func (p *Pool[C]) closeConn(e *entry[C], reason string) {
	if err := e.conn.Close(); err != nil {
		p.logger.Warn("closing pooled connection failed",
			zap.String("reason", reason),
			zap.Error(err))
	}
}

// Lease is a checked-out connection. Return it with Pool.Put, or
// Pool.Discard if it is broken.
type Lease[C io.Closer] struct {
	pool  *Pool[C]
	entry *entry[C]
	once  sync.Once
}

// Conn returns the leased connection.
func (l *Lease[C]) Conn() C { return l.entry.conn }

// CreatedAt returns when the underlying connection was opened.
func (l *Lease[C]) CreatedAt() time.Time { return l.entry.createdAt }

// Release is shorthand for Put on the owning pool.
func (l *Lease[C]) Release() error { return l.pool.Put(l) }
