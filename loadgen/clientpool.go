package loadgen

import (
	"context"
	"sync/atomic"

	"github.com/jackc/puddle/v2"
	"github.com/pior/emc"
	"github.com/pior/emc/text"
)

// PoolStats contains statistics about the client pool.
type PoolStats struct {
	TotalClients     int32
	IdleClients      int32
	AcquiredClients  int32
	AcquireCount     uint64
	CreatedClients   uint64
	DestroyedClients uint64
}

// ClientPool hands out exclusively-owned clients, one connection each.
// Workers hold their client for the whole run, so the pool never shares a
// connection between two workers.
type ClientPool struct {
	pool      *puddle.Pool[*emc.Client]
	created   atomic.Int64
	destroyed atomic.Int64
}

// NewClientPool creates a pool of at most maxSize clients built by constructor.
func NewClientPool(constructor func(ctx context.Context) (*emc.Client, error), maxSize int32) (*ClientPool, error) {
	p := &ClientPool{}

	poolConfig := &puddle.Config[*emc.Client]{
		Constructor: func(ctx context.Context) (*emc.Client, error) {
			c, err := constructor(ctx)
			if err == nil {
				p.created.Add(1)
			}
			return c, err
		},
		Destructor: func(c *emc.Client) {
			p.destroyed.Add(1)
			_ = c.Close()
		},
		MaxSize: maxSize,
	}

	pool, err := puddle.NewPool(poolConfig)
	if err != nil {
		return nil, err
	}
	p.pool = pool
	return p, nil
}

// DialConstructor returns a constructor connecting a new client to addr.
func DialConstructor(addr string, config emc.Config) func(ctx context.Context) (*emc.Client, error) {
	return func(ctx context.Context) (*emc.Client, error) {
		c := emc.NewClient(addr, config)
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Acquire returns an idle client or creates one. The caller must call Release.
func (p *ClientPool) Acquire(ctx context.Context) (*Lease, error) {
	res, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Lease{res: res}, nil
}

// Close destroys all clients. It blocks until acquired clients are released.
func (p *ClientPool) Close() {
	p.pool.Close()
}

// Stats returns a snapshot of pool statistics.
func (p *ClientPool) Stats() PoolStats {
	s := p.pool.Stat()
	return PoolStats{
		TotalClients:     s.TotalResources(),
		IdleClients:      s.IdleResources(),
		AcquiredClients:  s.AcquiredResources(),
		AcquireCount:     uint64(s.AcquireCount()),
		CreatedClients:   uint64(p.created.Load()),
		DestroyedClients: uint64(p.destroyed.Load()),
	}
}

// Lease is a client checked out of a ClientPool.
type Lease struct {
	res *puddle.Resource[*emc.Client]
}

// Client returns the leased client.
func (l *Lease) Client() *emc.Client {
	return l.res.Value()
}

// Release returns the client to the pool. A client whose last command failed
// at the connection level is destroyed instead.
func (l *Lease) Release(lastErr error) {
	if text.ShouldCloseConnection(lastErr) {
		l.res.Destroy()
		return
	}
	l.res.Release()
}
