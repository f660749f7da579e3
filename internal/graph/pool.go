// Package graph implements the Neo4j-backed GraphStore: document and chunk
// persistence, native vector and full-text search, and a bounded session
// pool that caps concurrent storage operations.
package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kbforge/graphrag-go/internal/rag"
)

// Pool sizing defaults applied when the corresponding config field is zero.
const (
	// DefaultPoolSize is the maximum number of concurrently leased sessions.
	DefaultPoolSize = 10
	// DefaultAcquireTimeout bounds how long Acquire waits for a free slot.
	DefaultAcquireTimeout = 5 * time.Second
)

// sessionPool is a bounded pool of Neo4j sessions. Each Acquire leases one
// session exclusively for the duration of a single logical operation; the
// returned release function must be called on every exit path. When all
// slots are taken, Acquire blocks until one frees up or the acquire timeout
// elapses, in which case it fails with rag.ErrPoolExhausted.
type sessionPool struct {
	// open creates a new session. Injected so tests can run the pool
	// without a live server.
	open func(ctx context.Context) neo4j.SessionWithContext

	// slots is the semaphore bounding concurrent leases.
	slots chan struct{}

	// timeout is the maximum wait for a free slot.
	timeout time.Duration

	// metrics instruments lease activity. Never nil.
	metrics *storeMetrics
}

// newSessionPool constructs a sessionPool with the given slot count and
// acquire timeout. Zero values select the defaults.
func newSessionPool(open func(ctx context.Context) neo4j.SessionWithContext, size int, timeout time.Duration, metrics *storeMetrics) *sessionPool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}
	p := &sessionPool{
		open:    open,
		slots:   make(chan struct{}, size),
		timeout: timeout,
		metrics: metrics,
	}
	for i := 0; i < size; i++ {
		p.slots <- struct{}{}
	}
	return p
}

// Acquire leases a session, blocking until a slot is free, the pool timeout
// elapses, or ctx is cancelled. On success it returns the session and a
// release function that is safe to call more than once; exactly one call
// returns the slot.
func (p *sessionPool) Acquire(ctx context.Context) (neo4j.SessionWithContext, func(), error) {
	wait := time.NewTimer(p.timeout)
	defer wait.Stop()
	start := time.Now()

	select {
	case <-p.slots:
	case <-wait.C:
		p.metrics.poolExhaustedTotal.Inc()
		return nil, nil, fmt.Errorf("graph: no session available within %s: %w", p.timeout, rag.ErrPoolExhausted)
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("graph: acquire cancelled: %w", ctx.Err())
	}

	p.metrics.poolWaitSeconds.Observe(time.Since(start).Seconds())
	p.metrics.poolInUse.Inc()

	session := p.open(ctx)

	var once sync.Once
	release := func() {
		once.Do(func() {
			if session != nil {
				// Closing must not inherit a cancelled request context.
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = session.Close(closeCtx)
			}
			p.metrics.poolInUse.Dec()
			p.slots <- struct{}{}
		})
	}
	return session, release, nil
}

// InUse returns the number of sessions currently leased.
func (p *sessionPool) InUse() int {
	return cap(p.slots) - len(p.slots)
}
