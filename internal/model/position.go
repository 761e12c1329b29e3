package model

// PositionSnapshot maps instrument to signed net quantity for one account
// at one poll. Instruments with zero quantity are omitted.
type PositionSnapshot map[string]int64

// Quantity returns the signed net quantity for an instrument, zero if the
// instrument is absent.
func (p PositionSnapshot) Quantity(instrument string) int64 {
	return p[instrument]
}

// Flat reports whether every instrument is at zero.
func (p PositionSnapshot) Flat() bool {
	for _, qty := range p {
		if qty != 0 {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (p PositionSnapshot) Clone() PositionSnapshot {
	out := make(PositionSnapshot, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Instruments returns the union of instrument keys in this and other.
func (p PositionSnapshot) Instruments(other PositionSnapshot) []string {
	seen := make(map[string]struct{}, len(p)+len(other))
	var out []string
	for k := range p {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	for k := range other {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}
