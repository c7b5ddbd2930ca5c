// A DNS canonicalization cache, matching linkerd's canonicalize layer:
// repeated requests to the same logical name should not re-resolve on
// every call, so resolved names are cached until the resolver's own TTL
// (ValidUntil) expires.
package proxy

import (
	"context"
	"sync"
	"time"

	"github.com/meshcore/sidecar/collaborators"
)

type canonicalEntry struct {
	name       string
	validUntil time.Time
}

// Canonicalizer wraps a collaborators.DnsResolver with a TTL-respecting
// cache keyed by the original name.
type Canonicalizer struct {
	resolver collaborators.DnsResolver

	mu      sync.Mutex
	entries map[string]canonicalEntry
	now     func() time.Time
}

// NewCanonicalizer builds a Canonicalizer over resolver.
func NewCanonicalizer(resolver collaborators.DnsResolver) *Canonicalizer {
	return &Canonicalizer{resolver: resolver, entries: make(map[string]canonicalEntry), now: time.Now}
}

// Refine returns the canonical name for name, consulting the cache first
// and only calling the resolver again once the cached entry's TTL has
// elapsed. A nil resolver makes Refine the identity function, so outbound
// assembly can omit canonicalization entirely when no resolver is
// configured.
func (c *Canonicalizer) Refine(ctx context.Context, name string) (string, error) {
	if c.resolver == nil {
		return name, nil
	}
	now := c.now()
	c.mu.Lock()
	if e, ok := c.entries[name]; ok && now.Before(e.validUntil) {
		c.mu.Unlock()
		return e.name, nil
	}
	c.mu.Unlock()

	canonical, validUntil, err := c.resolver.Refine(ctx, name)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.entries[name] = canonicalEntry{name: canonical, validUntil: validUntil}
	c.mu.Unlock()
	return canonical, nil
}
