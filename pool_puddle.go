package memcache

import (
	"context"
	"time"

	"github.com/jackc/puddle/v2"
)

// PuddlePool is an alternate, wait-based SingleClient pool backed by
// jackc/puddle. Unlike ConnectionPool, whose Acquire returns
// ErrPoolExhausted immediately at MaxSize (the §4.3 contract HashClient
// relies on), PuddlePool's Acquire blocks until a member frees up or ctx
// is cancelled. It exists for callers who explicitly want backpressure
// instead of a fail-fast error — HashClient itself is built on
// ConnectionPool, not this.
//
// Grounded on the teacher's puddlePool (pool_puddle.go), re-parameterized
// from the deleted meta-protocol *Connection to this module's
// *SingleClient.
type PuddlePool struct {
	pool *puddle.Pool[*SingleClient]
}

// NewPuddlePool constructs a PuddlePool of SingleClients against
// endpoint, with at most maxSize members alive at once.
func NewPuddlePool(endpoint ServerEndpoint, config Config, maxSize int32) (*PuddlePool, error) {
	poolConfig := &puddle.Config[*SingleClient]{
		Constructor: func(ctx context.Context) (*SingleClient, error) {
			c := NewSingleClient(endpoint, config)
			if err := c.Connect(ctx); err != nil {
				return nil, err
			}
			return c, nil
		},
		Destructor: func(c *SingleClient) {
			_ = c.Close()
		},
		MaxSize: maxSize,
	}

	p, err := puddle.NewPool(poolConfig)
	if err != nil {
		return nil, err
	}
	return &PuddlePool{pool: p}, nil
}

// Use acquires a member, runs fn, and releases it back to the pool. A
// broken member (anything but a protocol-class error) is destroyed
// instead of returned, the same release-or-destroy discipline
// ConnectionPool.Use applies.
func (p *PuddlePool) Use(ctx context.Context, fn func(*SingleClient) error) error {
	res, err := p.pool.Acquire(ctx)
	if err != nil {
		return err
	}

	err = fn(res.Value())
	if err != nil && !isProtocolError(err) {
		res.Destroy()
	} else {
		res.Release()
	}
	return err
}

// Close closes every member and the pool itself.
func (p *PuddlePool) Close() {
	p.pool.Close()
}

// Stats returns a snapshot of puddle's own pool statistics, translated
// into this module's PoolStats shape for uniform reporting alongside
// ConnectionPool.
func (p *PuddlePool) Stats() PoolStats {
	s := p.pool.Stat()
	return PoolStats{
		TotalConns:       s.TotalResources(),
		IdleConns:        s.IdleResources(),
		ActiveConns:      s.AcquiredResources(),
		AcquireCount:     uint64(s.AcquireCount()),
		AcquireWaitCount: uint64(s.EmptyAcquireCount()),
		AcquireErrors:    uint64(s.CanceledAcquireCount()),
		AcquireWaitTimeNs: uint64(s.EmptyAcquireWaitTime() / time.Nanosecond),
	}
}
