// Package dedup keeps a per-kind bounded ring of recently-seen submission
// ids. The in-memory ring saves DB load
// for hot replays; the DB check (via Checker) survives process restarts.
package dedup

import (
	"context"
	"sync"
	"time"
)

const ringSize = 1000

// Window is how far back the DB fallback check looks for a prior row with
// the same unique_id.
const Window = time.Hour

// Checker consults durable storage for a prior submission with the given
// unique id received within Window. Implemented by processors against gorm.
type Checker func(ctx context.Context, kind, uniqueID string) (exists bool, err error)

// ring is a fixed-capacity FIFO set: Contains is O(1), Add evicts the
// oldest entry once full.
type ring struct {
	mu    sync.Mutex
	order []string
	set   map[string]struct{}
}

func newRing() *ring {
	return &ring{set: make(map[string]struct{}, ringSize)}
}

func (r *ring) contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.set[id]
	return ok
}

func (r *ring) add(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.set[id]; ok {
		return
	}
	if len(r.order) >= ringSize {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.set, oldest)
	}
	r.order = append(r.order, id)
	r.set[id] = struct{}{}
}

// Cache holds one ring per submission kind (drop, pb, ca, clog, pet).
type Cache struct {
	mu    sync.Mutex
	rings map[string]*ring
}

func New() *Cache {
	return &Cache{rings: make(map[string]*ring)}
}

func (c *Cache) ringFor(kind string) *ring {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rings[kind]
	if !ok {
		r = newRing()
		c.rings[kind] = r
	}
	return r
}

// Check is the two-step dedup: a ring hit rejects
// immediately; otherwise the ring is populated and the DB is consulted via
// check. Returns true if the submission is a duplicate and should be
// rejected.
func (c *Cache) Check(ctx context.Context, kind, uniqueID string, check Checker) (duplicate bool, err error) {
	if uniqueID == "" {
		return false, nil
	}
	r := c.ringFor(kind)
	if r.contains(uniqueID) {
		return true, nil
	}
	r.add(uniqueID)
	exists, err := check(ctx, kind, uniqueID)
	if err != nil {
		return false, err
	}
	return exists, nil
}
