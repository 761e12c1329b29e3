package engine

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"MirrorTrade/internal/model"
)

func testClassifier() *classifier {
	return newClassifier(10*time.Second, 3, 500, zerolog.Nop())
}

func TestClassify_FlatInactiveIsNoop(t *testing.T) {
	c := testClassifier()
	obs := observation{
		margin:    model.MarginSnapshot{Available: 1000000},
		positions: model.PositionSnapshot{},
	}
	dec := c.classify(obs, false)
	if dec.class != ClassNoop {
		t.Fatalf("class = %s, want NOOP", dec.class)
	}
	if c.baseline != 1000000 {
		t.Errorf("baseline = %v, want 1000000", c.baseline)
	}
}

func TestClassify_FlatActiveTriggersReconcile(t *testing.T) {
	c := testClassifier()
	obs := observation{
		margin:    model.MarginSnapshot{Available: 1000000},
		positions: model.PositionSnapshot{},
	}
	dec := c.classify(obs, true)
	if dec.class != ClassFlatReconcile {
		t.Fatalf("class = %s, want FLAT_RECONCILE", dec.class)
	}
}

func TestClassify_PendingOrderBlocksFlat(t *testing.T) {
	c := testClassifier()
	obs := observation{
		orders:    []model.OrderEvent{{OrderID: "M1", Status: model.StatusOpen}},
		pending:   true,
		margin:    model.MarginSnapshot{Available: 1000000},
		positions: model.PositionSnapshot{},
	}
	dec := c.classify(obs, true)
	if dec.class != ClassNoop {
		t.Fatalf("class = %s, want NOOP for flat read with a working order", dec.class)
	}
}

func TestClassify_GraceWindowSuppressesFlat(t *testing.T) {
	c := testClassifier()
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	now := base
	c.now = func() time.Time { return now }

	c.markEntry(model.MarginSnapshot{Available: 800000})

	obs := observation{
		margin:    model.MarginSnapshot{Available: 800000},
		positions: model.PositionSnapshot{},
	}

	now = base.Add(5 * time.Second)
	if dec := c.classify(obs, true); dec.class != ClassNoop {
		t.Fatalf("inside grace window: class = %s, want NOOP", dec.class)
	}

	now = base.Add(11 * time.Second)
	if dec := c.classify(obs, true); dec.class != ClassFlatReconcile {
		t.Fatalf("after grace window: class = %s, want FLAT_RECONCILE", dec.class)
	}
}

func TestClassify_EntryRequiresPositionIncrease(t *testing.T) {
	c := testClassifier()
	order := model.OrderEvent{OrderID: "M1", Instrument: "RELIANCE", Side: model.SideBuy, Quantity: 100, Status: model.StatusComplete}

	// Order completed but positions have not caught up.
	obs := observation{
		orders:    []model.OrderEvent{order},
		newOrders: []model.OrderEvent{order},
		margin:    model.MarginSnapshot{Available: 1000000},
		positions: model.PositionSnapshot{},
	}
	if dec := c.classify(obs, false); dec.class != ClassNoop {
		t.Fatalf("uncorroborated order: class = %s, want NOOP", dec.class)
	}

	// Next tick the position appears.
	obs.positions = model.PositionSnapshot{"RELIANCE": 100}
	dec := c.classify(obs, false)
	if dec.class != ClassEntry {
		t.Fatalf("corroborated order: class = %s, want ENTRY", dec.class)
	}
	if len(dec.entryIDs) != 1 || dec.entryIDs[0] != "M1" {
		t.Errorf("entryIDs = %v, want [M1]", dec.entryIDs)
	}
}

// The margin effect of a completed order lands before the position does;
// the baseline must survive that gap so the eventual entry freezes its
// ratio against the pre-trade margin.
func TestClassify_BaselineHeldWhileOrderUncorroborated(t *testing.T) {
	c := testClassifier()
	c.classify(observation{
		margin:    model.MarginSnapshot{Available: 1000000},
		positions: model.PositionSnapshot{},
	}, false)

	order := model.OrderEvent{OrderID: "M1", Instrument: "NIFTY24AUGFUT", Side: model.SideBuy, Quantity: 650, Status: model.StatusComplete}
	lagging := observation{
		orders:    []model.OrderEvent{order},
		newOrders: []model.OrderEvent{order},
		margin:    model.MarginSnapshot{Available: 600000},
		positions: model.PositionSnapshot{},
	}
	dec := c.classify(lagging, false)
	if dec.class != ClassNoop {
		t.Fatalf("lagging tick: class = %s, want NOOP", dec.class)
	}
	if c.baseline != 1000000 {
		t.Fatalf("lagging tick: baseline = %v, want held at 1000000", c.baseline)
	}

	landed := lagging
	landed.positions = model.PositionSnapshot{"NIFTY24AUGFUT": 650}
	dec = c.classify(landed, false)
	if dec.class != ClassEntry {
		t.Fatalf("landed tick: class = %s, want ENTRY", dec.class)
	}
	if dec.preTrade != 1000000 {
		t.Errorf("preTrade = %v, want pre-trade baseline 1000000", dec.preTrade)
	}
}

func TestClassify_AggregatesSplitOrders(t *testing.T) {
	c := testClassifier()
	var orders []model.OrderEvent
	for i := 0; i < 4; i++ {
		orders = append(orders, model.OrderEvent{
			OrderID:    string(rune('A' + i)),
			Instrument: "NIFTY24AUGFUT",
			Side:       model.SideBuy,
			Quantity:   25,
			Status:     model.StatusComplete,
		})
	}
	obs := observation{
		orders:    orders,
		newOrders: orders,
		margin:    model.MarginSnapshot{Available: 1000000},
		positions: model.PositionSnapshot{"NIFTY24AUGFUT": 100},
	}
	dec := c.classify(obs, false)
	if dec.class != ClassEntry {
		t.Fatalf("class = %s, want ENTRY", dec.class)
	}
	if len(dec.entries) != 1 {
		t.Fatalf("virtual orders = %d, want 1", len(dec.entries))
	}
	if dec.entries[0].TotalQuantity != 100 {
		t.Errorf("aggregated quantity = %d, want 100", dec.entries[0].TotalQuantity)
	}
}

func TestClassify_ExitLegs(t *testing.T) {
	c := testClassifier()
	c.advancePositions(model.PositionSnapshot{"A": 650, "B": -650}, false)

	obs := observation{
		margin:    model.MarginSnapshot{Available: 900000},
		positions: model.PositionSnapshot{"A": 325},
	}
	dec := c.classify(obs, true)
	if dec.class != ClassExit {
		t.Fatalf("class = %s, want EXIT", dec.class)
	}
	if len(dec.exits) != 2 {
		t.Fatalf("exit legs = %d, want 2", len(dec.exits))
	}
	for _, leg := range dec.exits {
		switch leg.Instrument {
		case "A":
			if leg.Full || leg.Ratio != 0.5 {
				t.Errorf("A: full=%v ratio=%v, want partial 0.5", leg.Full, leg.Ratio)
			}
		case "B":
			if !leg.Full || leg.Ratio != 1.0 {
				t.Errorf("B: full=%v ratio=%v, want full 1.0", leg.Full, leg.Ratio)
			}
		default:
			t.Errorf("unexpected leg %s", leg.Instrument)
		}
	}
}

func TestClassify_MarginDebounce(t *testing.T) {
	c := testClassifier()
	pendingOrder := model.OrderEvent{OrderID: "M1", Instrument: "A", Side: model.SideBuy, Quantity: 650, Status: model.StatusOpen}

	// Baseline established while idle.
	c.classify(observation{
		margin:    model.MarginSnapshot{Available: 1000000},
		positions: model.PositionSnapshot{},
	}, false)

	// Margin drops with only a working order to show for it: the baseline
	// must hold while the order API catches up.
	dropped := observation{
		orders:    []model.OrderEvent{pendingOrder},
		pending:   true,
		margin:    model.MarginSnapshot{Available: 800000},
		positions: model.PositionSnapshot{},
	}
	for i := 0; i < 2; i++ {
		dec := c.classify(dropped, false)
		if dec.class != ClassNoop {
			t.Fatalf("debounce tick %d: class = %s, want NOOP", i+1, dec.class)
		}
		if c.baseline != 1000000 {
			t.Fatalf("debounce tick %d: baseline = %v, want held at 1000000", i+1, c.baseline)
		}
	}

	// Order completes and the position lands: the entry sees the pre-drop
	// margin.
	completed := pendingOrder
	completed.Status = model.StatusComplete
	dec := c.classify(observation{
		orders:    []model.OrderEvent{completed},
		newOrders: []model.OrderEvent{completed},
		margin:    model.MarginSnapshot{Available: 800000},
		positions: model.PositionSnapshot{"A": 650},
	}, false)
	if dec.class != ClassEntry {
		t.Fatalf("class = %s, want ENTRY", dec.class)
	}
	if dec.preTrade != 1000000 {
		t.Errorf("preTrade = %v, want pre-drop baseline 1000000", dec.preTrade)
	}
}

func TestClassify_DebounceExhaustionAbsorbs(t *testing.T) {
	c := testClassifier()
	c.classify(observation{
		margin:    model.MarginSnapshot{Available: 1000000},
		positions: model.PositionSnapshot{},
	}, false)

	dropped := observation{
		orders:    []model.OrderEvent{{OrderID: "M1", Status: model.StatusOpen}},
		pending:   true,
		margin:    model.MarginSnapshot{Available: 800000},
		positions: model.PositionSnapshot{},
	}
	var dec decision
	for i := 0; i < 3; i++ {
		dec = c.classify(dropped, false)
	}
	if dec.note != "debounce exhausted" {
		t.Fatalf("note = %q, want debounce exhausted", dec.note)
	}
	if c.baseline != 800000 {
		t.Errorf("baseline = %v, want absorbed 800000", c.baseline)
	}
}

func TestAdvancePositions_EntryTickHoldsDecreases(t *testing.T) {
	c := testClassifier()
	c.advancePositions(model.PositionSnapshot{"A": 650, "B": -650}, false)

	// Same tick: A grew, B shrank. The B decrease must survive so the next
	// tick can classify it as an exit.
	c.advancePositions(model.PositionSnapshot{"A": 975, "B": -325}, true)

	if got := c.prev.Quantity("A"); got != 975 {
		t.Errorf("A = %d, want advanced to 975", got)
	}
	if got := c.prev.Quantity("B"); got != -650 {
		t.Errorf("B = %d, want held at -650", got)
	}
}
