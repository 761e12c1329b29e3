package engine

import (
	"time"

	"github.com/rs/zerolog"

	"MirrorTrade/internal/model"
)

// Classification is the single verdict produced for one polling tick.
type Classification string

const (
	ClassEntry         Classification = "ENTRY"
	ClassExit          Classification = "EXIT"
	ClassFlatReconcile Classification = "FLAT_RECONCILE"
	ClassNoop          Classification = "NOOP"
)

// observation is the consistent-as-possible view pulled from the broker
// for one tick. Orders, margin, and positions come from separate calls
// and may describe slightly different instants.
type observation struct {
	orders    []model.OrderEvent // full session order list
	newOrders []model.OrderEvent // completed and not yet seen
	pending   bool               // any order still working at the exchange
	margin    model.MarginSnapshot
	positions model.PositionSnapshot
}

// ExitLeg is one instrument whose master position shrank this tick.
type ExitLeg struct {
	Instrument string
	PrevQty    int64
	CurrQty    int64
	Ratio      float64 // (|prev| - |curr|) / |prev|
	Full       bool    // curr == 0
}

// decision is the classifier output handed to the tick handlers.
type decision struct {
	class    Classification
	entries  []model.VirtualOrder
	entryIDs []string // order IDs consumed by this entry
	exits    []ExitLeg
	preTrade float64 // master available margin before this entry's effect
	note     string
}

// classifier owns the tick loop's transient memory: the previous position
// snapshot, the margin baseline, and the debounce/grace bookkeeping. It is
// wiped on process start; only StrategyState survives restarts.
type classifier struct {
	graceWindow    time.Duration
	maxDebounce    int
	minMarginDelta float64
	now            func() time.Time

	prev         model.PositionSnapshot
	baseline     float64
	haveBaseline bool
	debounce     int
	lastEntryAt  time.Time

	log zerolog.Logger
}

func newClassifier(graceWindow time.Duration, maxDebounce int, minMarginDelta float64, log zerolog.Logger) *classifier {
	return &classifier{
		graceWindow:    graceWindow,
		maxDebounce:    maxDebounce,
		minMarginDelta: minMarginDelta,
		now:            time.Now,
		prev:           model.PositionSnapshot{},
		log:            log,
	}
}

// classify produces exactly one Classification for the tick, evaluated in
// priority order: flat check, entry, exit, noop.
func (c *classifier) classify(obs observation, active bool) decision {
	if !c.haveBaseline {
		c.baseline = obs.margin.Available
		c.haveBaseline = true
	}

	// Rule 1: master flat with nothing in flight.
	if obs.positions.Flat() && !obs.pending && len(obs.newOrders) == 0 {
		if !active {
			c.absorb(obs.margin)
			return decision{class: ClassNoop, note: "flat and inactive"}
		}
		if since := c.now().Sub(c.lastEntryAt); !c.lastEntryAt.IsZero() && since < c.graceWindow {
			// Positions can lag the order API right after an entry.
			c.log.Debug().Dur("since_entry", since).Msg("flat read inside grace window, holding")
			return decision{class: ClassNoop, note: "grace window"}
		}
		return decision{class: ClassFlatReconcile}
	}

	// Rule 2: new orders corroborated by a position increase.
	var entryLegs []model.OrderEvent
	for _, o := range obs.newOrders {
		if abs64(obs.positions.Quantity(o.Instrument)) > abs64(c.prev.Quantity(o.Instrument)) {
			entryLegs = append(entryLegs, o)
		}
	}
	if len(entryLegs) > 0 {
		c.debounce = 0
		ids := make([]string, len(entryLegs))
		for i, o := range entryLegs {
			ids[i] = o.OrderID
		}
		return decision{
			class:    ClassEntry,
			entries:  aggregateOrders(entryLegs),
			entryIDs: ids,
			preTrade: c.baseline,
		}
	}

	// Rule 3: position magnitude decrease while active.
	if active {
		if exits := c.exitLegs(obs.positions); len(exits) > 0 {
			return decision{class: ClassExit, exits: exits}
		}
	}

	// Completed orders not yet corroborated by positions: hold the margin
	// baseline so the entry classified once positions catch up still sees
	// the pre-trade figure. The order tracker ages these out if positions
	// never move.
	if len(obs.newOrders) > 0 {
		return decision{class: ClassNoop, note: "awaiting position corroboration"}
	}

	// Margin debounce: a margin drop with no corroborating order holds the
	// baseline for a bounded number of ticks in case the order API lags.
	if c.baseline-obs.margin.Available >= c.minMarginDelta {
		c.debounce++
		if c.debounce >= c.maxDebounce {
			c.log.Warn().
				Float64("baseline", c.baseline).
				Float64("available", obs.margin.Available).
				Int("ticks", c.debounce).
				Msg("margin drop never corroborated by an order, absorbing")
			c.absorb(obs.margin)
			return decision{class: ClassNoop, note: "debounce exhausted"}
		}
		return decision{class: ClassNoop, note: "margin debounce"}
	}

	c.absorb(obs.margin)
	return decision{class: ClassNoop}
}

// exitLegs compares current against previous positions and returns every
// instrument whose magnitude decreased.
func (c *classifier) exitLegs(curr model.PositionSnapshot) []ExitLeg {
	var legs []ExitLeg
	for _, instr := range c.prev.Instruments(curr) {
		prevQty := c.prev.Quantity(instr)
		currQty := curr.Quantity(instr)
		if abs64(currQty) >= abs64(prevQty) || prevQty == 0 {
			continue
		}
		legs = append(legs, ExitLeg{
			Instrument: instr,
			PrevQty:    prevQty,
			CurrQty:    currQty,
			Ratio:      float64(abs64(prevQty)-abs64(currQty)) / float64(abs64(prevQty)),
			Full:       currQty == 0,
		})
	}
	return legs
}

// markEntry records an entry for the grace window and absorbs the entry's
// margin effect into the baseline.
func (c *classifier) markEntry(margin model.MarginSnapshot) {
	c.lastEntryAt = c.now()
	c.debounce = 0
	c.absorb(margin)
}

// absorb moves the margin baseline to the live figure so MTM drift is
// never misread as an entry later.
func (c *classifier) absorb(margin model.MarginSnapshot) {
	c.baseline = margin.Available
	c.debounce = 0
}

// advancePositions updates the previous-position memory after a handled
// tick. For an ENTRY tick, instruments that decreased are deliberately
// left at their old values so the decrease still classifies as EXIT on
// the next tick instead of being lost.
func (c *classifier) advancePositions(curr model.PositionSnapshot, entryTick bool) {
	if !entryTick {
		c.prev = curr.Clone()
		return
	}
	next := make(model.PositionSnapshot)
	for _, instr := range c.prev.Instruments(curr) {
		prevQty := c.prev.Quantity(instr)
		currQty := curr.Quantity(instr)
		if abs64(currQty) < abs64(prevQty) {
			next[instr] = prevQty
		} else if currQty != 0 {
			next[instr] = currQty
		}
	}
	c.prev = next
}

// reset wipes all transient memory, used on operator reset and session roll.
func (c *classifier) reset() {
	c.prev = model.PositionSnapshot{}
	c.haveBaseline = false
	c.baseline = 0
	c.debounce = 0
	c.lastEntryAt = time.Time{}
}

// aggregateOrders merges same-tick orders sharing instrument and side into
// VirtualOrders so split lots are replicated as one quantity.
func aggregateOrders(orders []model.OrderEvent) []model.VirtualOrder {
	type key struct {
		instrument string
		side       model.Side
	}
	idx := make(map[key]int)
	var out []model.VirtualOrder
	for _, o := range orders {
		k := key{o.Instrument, o.Side}
		if i, ok := idx[k]; ok {
			out[i].TotalQuantity += o.Quantity
			continue
		}
		idx[k] = len(out)
		out = append(out, model.VirtualOrder{
			Instrument:    o.Instrument,
			Side:          o.Side,
			TotalQuantity: o.Quantity,
			Product:       o.Product,
		})
	}
	return out
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
