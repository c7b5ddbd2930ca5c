// Package cache implements a bounded key->service table with single-flight
// construction under a single mutex, idle eviction, and a background purge
// task.
//
// The shape is adapted from the reference-counted construct-once table
// pattern used for shared, lazily-constructed resources (see
// usagepool_test.go's LoadOrNew/refcount contract, which this
// generalizes): entries are held by the cache itself, plus one logical
// reference per outstanding handle, and a value is only eligible for idle
// eviction once the cache is its only remaining owner.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/meshcore/sidecar/collaborators"
	"github.com/meshcore/sidecar/svc"
)

// entry is one cache-resident service plus its bookkeeping.
type entry[Req, Resp any] struct {
	svc        svc.Service[Req, Resp]
	lastAccess time.Time
	refs       int32
}

// Cache is a bounded, idle-evicting, single-flight key→service table: the
// C2 component. It implements svc.Maker so it can be pushed as a layer in
// front of any inner maker.
type Cache[K comparable, Req, Resp any] struct {
	mu       sync.Mutex
	entries  map[K]*entry[Req, Resp]
	capacity int
	maxIdle  time.Duration
	inner    svc.Maker[K, Req, Resp]

	now func() time.Time
}

// New builds a Cache in front of inner with the given capacity and max
// idle age. Call Run in a goroutine to start the background
// purge task; the cache is usable (Access still works) without Run, but
// idle entries will not be evicted.
func New[K comparable, Req, Resp any](inner svc.Maker[K, Req, Resp], capacity int, maxIdle time.Duration) *Cache[K, Req, Resp] {
	return &Cache[K, Req, Resp]{
		entries:  make(map[K]*entry[Req, Resp]),
		capacity: capacity,
		maxIdle:  maxIdle,
		inner:    inner,
		now:      time.Now,
	}
}

// Access implements the cache's single operation : if key
// is present, refresh its last-access time and return its service; if
// absent and there is capacity, construct one via the inner maker, insert
// it, and return it; if absent and full, return NoCapacity.
//
// Construction happens under the cache's mutex to preserve single-flight
// per the Uniqueness invariant, so inner must be cheap and non-blocking
func (c *Cache[K, Req, Resp]) Access(ctx context.Context, key K) (svc.Service[Req, Resp], error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.lastAccess = c.now()
		e.refs++
		s := e.svc
		c.mu.Unlock()
		return s, nil
	}
	if len(c.entries) >= c.capacity {
		c.mu.Unlock()
		return nil, collaborators.NewNoCapacity(c.capacity)
	}
	// Reserve the slot before releasing the lock isn't possible here
	// because Make may itself need to run synchronously; instead we hold
	// the lock across Make, which is the contract inner must honor.
	s, err := c.inner.Make(ctx, key)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.entries[key] = &entry[Req, Resp]{svc: s, lastAccess: c.now(), refs: 1}
	c.mu.Unlock()
	return s, nil
}

// Make adapts Access to the svc.Maker interface so Cache can be used
// anywhere a Maker is expected (e.g. wrapped by router.Router).
func (c *Cache[K, Req, Resp]) Make(ctx context.Context, key K) (svc.Service[Req, Resp], error) {
	return c.Access(ctx, key)
}

// Release drops one reference for key, making the entry eligible for idle
// eviction once its last external reference is gone. Callers that hold
// cheap clones of a cached service (per this tree's handle model) should
// call Release when they are done with their clone; Router calls this
// automatically around each oneshot dispatch.
func (c *Cache[K, Req, Resp]) Release(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && e.refs > 0 {
		e.refs--
	}
}

// Len reports the number of resident entries, for the capacity-bound
// invariant.
func (c *Cache[K, Req, Resp]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Run drives the background purge task until ctx is cancelled, scanning at
// the given interval and removing any entry whose last access is older
// than maxIdle and whose refcount is zero. Run blocks;
// call it from its own goroutine.
func (c *Cache[K, Req, Resp]) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.purge()
		}
	}
}

func (c *Cache[K, Req, Resp]) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, e := range c.entries {
		if e.refs == 0 && now.Sub(e.lastAccess) >= c.maxIdle {
			delete(c.entries, key)
		}
	}
}
