package memcache

import (
	"context"
	"sync"
	"time"

	"github.com/colinmarc/memcache/internal/coarsetime"
)

// PoolConfig configures a ConnectionPool.
type PoolConfig struct {
	// MaxSize bounds the number of SingleClients the pool will ever hold,
	// free or leased out (§4.3). Default 10.
	MaxSize int

	// IdleTimeout, if positive, closes an idle pool member that has sat
	// in the free set longer than this when the next Acquire scans past
	// it (§4.3: "idle-timeout reclamation"). Zero disables reclamation.
	IdleTimeout time.Duration

	// ClientConfig is passed to NewSingleClient for every member the
	// pool creates.
	ClientConfig Config
}

// pooledConn is one free-or-used member: a SingleClient plus the
// bookkeeping the pool needs to reclaim it.
type pooledConn struct {
	client   *SingleClient
	lastUsed time.Time
}

// ConnectionPool is a bounded pool of SingleClients to one ServerEndpoint
// (§4.3). Unlike a wait-based pool, Acquire never blocks: once MaxSize
// members are leased out, the next Acquire returns ErrPoolExhausted
// immediately. This mirrors pymemcache's PooledClient, which treats an
// exhausted pool as a caller-visible backpressure signal rather than
// something to queue behind.
//
// Grounded on the teacher's channelPool (pool_custom.go) for the
// free/used bookkeeping shape, generalized from a buffered channel (which
// can only block or drop) to an explicit free/used pair behind one mutex
// so Acquire can return an error instead of waiting.
type ConnectionPool struct {
	endpoint ServerEndpoint
	config   PoolConfig

	mu        sync.Mutex
	free      []*pooledConn
	used      map[*pooledConn]struct{}
	stats     *poolStatsCollector
	breaker   CircuitBreaker
	onDestroy func()
}

// NewConnectionPool constructs a pool of SingleClients against endpoint.
func NewConnectionPool(endpoint ServerEndpoint, config PoolConfig) *ConnectionPool {
	if config.MaxSize <= 0 {
		config.MaxSize = 10
	}
	return &ConnectionPool{
		endpoint: endpoint,
		config:   config,
		used:     make(map[*pooledConn]struct{}, config.MaxSize),
		stats:    newPoolStatsCollector(),
	}
}

// Acquire removes a member from the free set (reaping idle-expired ones
// first) or, if none are free and the pool has room, creates a new one.
// If the pool is already at MaxSize with nothing free, it returns
// ErrPoolExhausted rather than waiting (§4.3).
func (p *ConnectionPool) Acquire(ctx context.Context) (*SingleClient, error) {
	p.stats.recordAcquire()

	p.mu.Lock()
	now := coarsetime.Now()
	for len(p.free) > 0 {
		pc := p.free[len(p.free)-1]
		p.free = p.free[:len(p.free)-1]

		if p.config.IdleTimeout > 0 && now.Sub(pc.lastUsed) > p.config.IdleTimeout {
			p.stats.recordDestroy()
			p.notifyDestroy()
			p.mu.Unlock()
			pc.client.Close()
			p.mu.Lock()
			continue
		}

		p.used[pc] = struct{}{}
		p.stats.recordAcquireFromIdle()
		p.mu.Unlock()
		return pc.client, nil
	}

	if len(p.used) >= p.config.MaxSize {
		p.mu.Unlock()
		p.stats.recordAcquireError()
		return nil, ErrPoolExhausted
	}

	pc := &pooledConn{client: NewSingleClient(p.endpoint, p.config.ClientConfig)}
	p.used[pc] = struct{}{}
	p.stats.recordCreate()
	p.stats.recordActivate()
	p.mu.Unlock()

	if err := pc.client.Connect(ctx); err != nil {
		p.mu.Lock()
		delete(p.used, pc)
		p.mu.Unlock()
		p.stats.recordAcquireError()
		p.stats.recordDestroy()
		p.notifyDestroy()
		return nil, err
	}
	return pc.client, nil
}

// release moves client back to the free set.
func (p *ConnectionPool) release(client *SingleClient) {
	p.mu.Lock()
	for pc := range p.used {
		if pc.client == client {
			delete(p.used, pc)
			pc.lastUsed = coarsetime.Now()
			p.free = append(p.free, pc)
			p.stats.recordRelease()
			p.mu.Unlock()
			return
		}
	}
	p.mu.Unlock()
}

// destroy removes client from the pool entirely and closes its socket,
// used when the command that borrowed it hit an I/O error (§4.3: acquire
// and either release-or-destroy is a scoped, non-reentrant discipline).
func (p *ConnectionPool) destroy(client *SingleClient) {
	p.mu.Lock()
	for pc := range p.used {
		if pc.client == client {
			delete(p.used, pc)
			p.stats.recordDestroy()
			p.notifyDestroy()
			break
		}
	}
	p.mu.Unlock()
	client.Close()
}

// WithCircuitBreaker installs an optional breaker in front of every Use
// call. This sits beneath §4.4's required Healthy/Failing/Dead machine
// (HashClient routes first, then calls Use), not in place of it: the breaker can short-circuit a pathologically failing
// server faster than the per-attempt state machine would, at the cost of
// rejecting calls the state machine alone would still have attempted.
func (p *ConnectionPool) WithCircuitBreaker(cb CircuitBreaker) *ConnectionPool {
	p.breaker = cb
	return p
}

// WithOnDestroy installs a callback invoked every time this pool destroys
// a member (idle reap, I/O-error destroy, or Clear), letting an owner like
// HashClient fold a per-server pool's destroys into its own stats.
func (p *ConnectionPool) WithOnDestroy(fn func()) *ConnectionPool {
	p.onDestroy = fn
	return p
}

func (p *ConnectionPool) notifyDestroy() {
	if p.onDestroy != nil {
		p.onDestroy()
	}
}

// Use acquires a client, runs fn, and releases or destroys the client
// depending on whether fn returned an I/O-class error (§7 rule 3: a
// protocol-level error like a cache miss does not condemn the
// connection; any other error does).
func (p *ConnectionPool) Use(ctx context.Context, fn func(*SingleClient) error) error {
	if p.breaker != nil {
		return p.breaker.Execute(func() error { return p.useOnce(ctx, fn) })
	}
	return p.useOnce(ctx, fn)
}

func (p *ConnectionPool) useOnce(ctx context.Context, fn func(*SingleClient) error) error {
	client, err := p.Acquire(ctx)
	if err != nil {
		return err
	}

	err = fn(client)
	if err != nil && !isProtocolError(err) {
		p.destroy(client)
	} else {
		p.release(client)
	}
	return err
}

// Clear drains both the free and used sets and closes every member,
// including ones currently leased out (§4.3: "under the lock, drain both
// collections into a temporary list; release the lock; invoke
// after_remove on each"), matching pymemcache's ObjectPool.clear(), which
// closes _used_objs alongside _free_objs rather than only the idle ones.
// Closing a net.Conn a borrower is mid-command on is safe: the borrower's
// in-flight Read/Write simply fails, surfacing as the I/O error its own
// release-or-destroy path already knows how to handle.
func (p *ConnectionPool) Clear() {
	p.mu.Lock()
	toClose := make([]*pooledConn, 0, len(p.free)+len(p.used))
	toClose = append(toClose, p.free...)
	for pc := range p.used {
		toClose = append(toClose, pc)
	}
	p.free = nil
	p.used = make(map[*pooledConn]struct{}, p.config.MaxSize)
	p.mu.Unlock()

	for _, pc := range toClose {
		p.stats.recordDestroy()
		p.notifyDestroy()
		pc.client.Close()
	}
}

// Stats returns a snapshot of the pool's counters.
func (p *ConnectionPool) Stats() PoolStats {
	return p.stats.snapshot()
}

// Len returns the current |free|+|used| total, always ≤ MaxSize (§8).
func (p *ConnectionPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free) + len(p.used)
}
