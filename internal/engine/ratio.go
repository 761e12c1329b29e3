package engine

import "MirrorTrade/internal/model"

// freezeRatios computes the per-child capital-allocation ratios from the
// master's pre-trade available margin. Called exactly once per strategy
// lifetime, on the first entry after an inactive period; the result is
// persisted and reused for every subsequent leg.
func freezeRatios(children []model.Account, preTradeAvailable float64) (ratios, baselines map[string]float64) {
	ratios = make(map[string]float64, len(children))
	baselines = make(map[string]float64, len(children))
	for _, child := range children {
		baselines[child.ID] = child.Available
		if preTradeAvailable <= 0 {
			ratios[child.ID] = 0
			continue
		}
		r := child.CapitalBase() / preTradeAvailable
		if r < 0 {
			r = 0
		}
		if r > 1 {
			r = 1
		}
		ratios[child.ID] = r
	}
	return ratios, baselines
}
