package engine

import "MirrorTrade/internal/model"

// orderTracker remembers which master order IDs have been consumed, with
// bounded memory. An order stays "fresh" until it is committed by a
// handler or ages past the waiting limit; this keeps a completed order
// visible to the classifier while the positions API catches up with it.
type orderTracker struct {
	seen     map[string]struct{}
	order    []string // insertion order, for trimming
	waiting  map[string]int
	maxAge   int
	capacity int
}

func newOrderTracker(maxAge int) *orderTracker {
	return &orderTracker{
		seen:     make(map[string]struct{}),
		waiting:  make(map[string]int),
		maxAge:   maxAge,
		capacity: 2000,
	}
}

// fresh filters the session order list down to completed orders that have
// not been committed yet.
func (t *orderTracker) fresh(orders []model.OrderEvent) []model.OrderEvent {
	var out []model.OrderEvent
	for _, o := range orders {
		if o.Status != model.StatusComplete {
			continue
		}
		if _, ok := t.seen[o.OrderID]; ok {
			continue
		}
		out = append(out, o)
	}
	return out
}

// commit marks order IDs as consumed.
func (t *orderTracker) commit(ids ...string) {
	for _, id := range ids {
		if _, ok := t.seen[id]; ok {
			continue
		}
		t.seen[id] = struct{}{}
		t.order = append(t.order, id)
		delete(t.waiting, id)
	}
	t.trim()
}

// age bumps the wait count of every uncommitted fresh order and commits
// the ones that waited too long for position corroboration.
func (t *orderTracker) age(orders []model.OrderEvent) {
	for _, o := range orders {
		t.waiting[o.OrderID]++
		if t.waiting[o.OrderID] >= t.maxAge {
			t.commit(o.OrderID)
		}
	}
}

func (t *orderTracker) trim() {
	if len(t.order) <= t.capacity {
		return
	}
	drop := t.order[:len(t.order)-t.capacity/2]
	for _, id := range drop {
		delete(t.seen, id)
	}
	t.order = t.order[len(t.order)-t.capacity/2:]
}

// resetSession wipes everything; brokerage order IDs are per trading day.
func (t *orderTracker) resetSession() {
	t.seen = make(map[string]struct{})
	t.order = nil
	t.waiting = make(map[string]int)
}
