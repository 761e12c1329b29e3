package model

import "time"

// MarginSnapshot is one account's margin figures at one poll. Ephemeral:
// only the baseline captured into StrategyState outlives the tick.
type MarginSnapshot struct {
	Available  float64
	Used       float64
	Total      float64
	ObservedAt time.Time
}
