package model

import "time"

// StrategyState is the single persisted record describing the currently
// active replication strategy. It is created on the first qualifying entry
// tick, mutated on every subsequent entry/exit tick, and cleared on
// full-flat detection or operator reset. FrozenRatios is written exactly
// once per strategy lifetime.
type StrategyState struct {
	Active bool `json:"active"`

	// FrozenRatios maps child account ID to the capital-allocation ratio
	// computed on the first entry leg. Never recomputed while active.
	FrozenRatios map[string]float64 `json:"frozen_ratios,omitempty"`

	// Snapshot pair that produced the ratios, kept for audit.
	MasterPreTradeMargin float64            `json:"master_pre_trade_margin,omitempty"`
	ChildBaselines       map[string]float64 `json:"child_baselines,omitempty"`

	// InstrumentMemory maps child ID -> instrument -> signed replicated
	// quantity. Used for duplicate-exit suppression and reconciliation.
	InstrumentMemory map[string]map[string]int64 `json:"instrument_memory,omitempty"`

	CreatedAt     time.Time `json:"created_at,omitempty"`
	LastUpdatedAt time.Time `json:"last_updated_at,omitempty"`
}

// Ratio returns the frozen ratio for a child, zero if none is recorded.
func (s *StrategyState) Ratio(childID string) float64 {
	if s.FrozenRatios == nil {
		return 0
	}
	return s.FrozenRatios[childID]
}

// ReplicatedQty returns the signed quantity last replicated to a child for
// an instrument.
func (s *StrategyState) ReplicatedQty(childID, instrument string) int64 {
	mem, ok := s.InstrumentMemory[childID]
	if !ok {
		return 0
	}
	return mem[instrument]
}

// SetReplicatedQty records a child's replicated quantity, dropping the
// entry when it reaches zero.
func (s *StrategyState) SetReplicatedQty(childID, instrument string, qty int64) {
	if s.InstrumentMemory == nil {
		s.InstrumentMemory = make(map[string]map[string]int64)
	}
	mem, ok := s.InstrumentMemory[childID]
	if !ok {
		mem = make(map[string]int64)
		s.InstrumentMemory[childID] = mem
	}
	if qty == 0 {
		delete(mem, instrument)
		if len(mem) == 0 {
			delete(s.InstrumentMemory, childID)
		}
		return
	}
	mem[instrument] = qty
}

// MemoryEmpty reports whether no replicated quantity remains for any child.
func (s *StrategyState) MemoryEmpty() bool {
	for _, mem := range s.InstrumentMemory {
		if len(mem) > 0 {
			return false
		}
	}
	return true
}

// Clone returns a deep copy, used so a failed persistence attempt never
// leaves half-applied mutations in memory.
func (s *StrategyState) Clone() *StrategyState {
	out := *s
	if s.FrozenRatios != nil {
		out.FrozenRatios = make(map[string]float64, len(s.FrozenRatios))
		for k, v := range s.FrozenRatios {
			out.FrozenRatios[k] = v
		}
	}
	if s.ChildBaselines != nil {
		out.ChildBaselines = make(map[string]float64, len(s.ChildBaselines))
		for k, v := range s.ChildBaselines {
			out.ChildBaselines[k] = v
		}
	}
	if s.InstrumentMemory != nil {
		out.InstrumentMemory = make(map[string]map[string]int64, len(s.InstrumentMemory))
		for child, mem := range s.InstrumentMemory {
			cp := make(map[string]int64, len(mem))
			for instr, qty := range mem {
				cp[instr] = qty
			}
			out.InstrumentMemory[child] = cp
		}
	}
	return &out
}
