package engine

import "math"

// LotTable resolves per-instrument lot sizes from configuration, with a
// declared default. Lookups are cached so each instrument reference
// resolves once.
type LotTable struct {
	def       int64
	overrides map[string]int64
	resolved  map[string]int64
}

// NewLotTable builds a lot table. def must be positive.
func NewLotTable(def int64, overrides map[string]int64) *LotTable {
	return &LotTable{
		def:       def,
		overrides: overrides,
		resolved:  make(map[string]int64),
	}
}

// Resolve returns the lot size for an instrument.
func (t *LotTable) Resolve(instrument string) int64 {
	if lot, ok := t.resolved[instrument]; ok {
		return lot
	}
	lot := t.def
	if v, ok := t.overrides[instrument]; ok {
		lot = v
	}
	t.resolved[instrument] = lot
	return lot
}

// replicaQty is the entry-side quantity for a child: the master quantity
// scaled by the frozen ratio and floored to a whole number of lots. Zero
// is a valid result and means the child sits this leg out.
func replicaQty(masterQty int64, ratio float64, lot int64) int64 {
	if masterQty <= 0 || ratio <= 0 || lot <= 0 {
		return 0
	}
	// Small epsilon guards against float representation pushing an exact
	// lot count below the floor.
	lots := math.Floor(float64(masterQty)*ratio/float64(lot) + 1e-9)
	if lots < 0 {
		return 0
	}
	return int64(lots) * lot
}

// exitQty is the quantity a child sheds for a partial exit: its open
// quantity scaled by the master's exit ratio, floored to whole lots and
// capped at the open quantity. Full exits bypass this and close the open
// quantity exactly.
func exitQty(openQty int64, ratio float64, lot int64) int64 {
	if openQty <= 0 || ratio <= 0 || lot <= 0 {
		return 0
	}
	if ratio >= 1 {
		return openQty
	}
	lots := math.Floor(float64(openQty)*ratio/float64(lot) + 1e-9)
	qty := int64(lots) * lot
	if qty > openQty {
		qty = openQty
	}
	return qty
}
