// Package profiles implements the per-destination route table and
// weighted traffic split dispatcher: route selection by request match,
// and a concrete-destination router that forwards or splits traffic
// across weighted overrides, updated from a live profile stream without
// blocking request processing.
package profiles

import (
	"sync/atomic"

	"github.com/meshcore/sidecar/collaborators"
)

// Extractor pulls the fields a RequestMatch needs out of a protocol
// request. HTTP routes instantiate this over *http.Request.
type Extractor[Req any] func(req Req) (method, path string, headers map[string][]string)

// Table holds the current route table for one destination, swapped
// atomically whenever ProfileClient delivers an update.
type Table struct {
	cur atomic.Pointer[collaborators.Routes]
}

// NewTable constructs a Table seeded with initial.
func NewTable(initial collaborators.Routes) *Table {
	t := &Table{}
	t.Store(initial)
	return t
}

// Store atomically replaces the route table.
func (t *Table) Store(r collaborators.Routes) {
	cp := r
	t.cur.Store(&cp)
}

// Load returns the current route table.
func (t *Table) Load() collaborators.Routes {
	if p := t.cur.Load(); p != nil {
		return *p
	}
	return collaborators.Routes{}
}

// Select scans the rules in order and returns the first match, falling
// back to the table's default route.
func Select[Req any](t *Table, req Req, extract Extractor[Req]) collaborators.Route {
	routes := t.Load()
	method, path, headers := extract(req)
	for _, rule := range routes.Rules {
		if rule.Match != nil && rule.Match(method, path, headers) {
			return rule.Route
		}
	}
	return routes.Default
}
