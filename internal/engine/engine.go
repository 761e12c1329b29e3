package engine

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"MirrorTrade/internal/broker"
	"MirrorTrade/internal/model"
	"MirrorTrade/internal/recorder"
	"MirrorTrade/internal/state"
)

// Options tunes the decision engine.
type Options struct {
	GraceWindow    time.Duration // flat suppression after an entry
	DebounceTicks  int           // margin-without-order deferrals before giving up
	MinMarginDelta float64       // margin moves below this are noise
	DefaultProduct string        // product for exits with no remembered entry
	DryRun         bool
}

// TickResult summarises one tick for the caller (logging, alerting).
type TickResult struct {
	Classification Classification
	Entries        []model.VirtualOrder
	Exits          []ExitLeg
	Placed         int
	Failures       []string
	RatioFrozen    bool
	Cleared        bool
	Skipped        bool
	Note           string
}

// Engine is the replication decision engine: it observes master state once
// per tick, classifies the change, and emits child order instructions. All
// mutations of StrategyState and the transient tick memory happen under one
// mutex, so ticks, operator resets, and audits are totally ordered.
type Engine struct {
	mu      sync.Mutex
	broker  broker.Broker
	store   *state.Store
	rec     recorder.Recorder
	lots    *LotTable
	cls     *classifier
	tracker *orderTracker
	opts    Options
	log     zerolog.Logger

	// productHint remembers the product type of each instrument's entry so
	// exits replicate it. Transient; exits after a restart fall back to
	// the configured default.
	productHint map[string]string

	// appliedExits remembers which exit legs (child, instrument, master
	// quantity after the exit) were already resolved while the previous
	// position snapshot is held for a partial replay. Cleared once the
	// snapshot advances past the pending legs.
	appliedExits map[string]map[string]int64

	resetRequested atomic.Bool
}

// New builds an Engine.
func New(b broker.Broker, store *state.Store, rec recorder.Recorder, lots *LotTable, opts Options, log zerolog.Logger) *Engine {
	if opts.DefaultProduct == "" {
		opts.DefaultProduct = "NRML"
	}
	if opts.DebounceTicks <= 0 {
		opts.DebounceTicks = 3
	}
	return &Engine{
		broker:      b,
		store:       store,
		rec:         rec,
		lots:        lots,
		cls:         newClassifier(opts.GraceWindow, opts.DebounceTicks, opts.MinMarginDelta, log),
		tracker:     newOrderTracker(opts.DebounceTicks),
		opts:        opts,
		log:         log,
		productHint: make(map[string]string),
	}
}

// StrategyState returns a read-only snapshot for display.
func (e *Engine) StrategyState() model.StrategyState {
	return e.store.Snapshot()
}

// RequestReset queues an operator reset, consumed at the start of the next
// tick. One slot; the latest request wins.
func (e *Engine) RequestReset() {
	e.resetRequested.Store(true)
}

// ResetStrategy clears the strategy state immediately. Safe at any time:
// it takes the same lock as the tick loop, so it applies strictly between
// ticks. Idempotent.
func (e *Engine) ResetStrategy() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resetLocked("explicit reset")
}

func (e *Engine) resetLocked(note string) error {
	if err := e.store.Clear(); err != nil {
		e.log.Error().Err(err).Msg("reset: clear strategy state")
		return err
	}
	e.cls.reset()
	e.productHint = make(map[string]string)
	e.appliedExits = nil
	if err := e.rec.RecordStrategyEvent(&recorder.StrategyEvent{EventType: "RESET", Note: note}); err != nil {
		e.log.Error().Err(err).Msg("record reset event")
	}
	e.log.Info().Str("note", note).Msg("strategy state reset")
	return nil
}

// ResetSession wipes the seen-order cache at the brokerage day roll; order
// IDs are only unique within a session.
func (e *Engine) ResetSession() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tracker.resetSession()
	e.log.Info().Msg("order session cache reset")
}

// Tick runs one full observe-classify-handle-persist cycle. Failures are
// contained at tick granularity: the worst outcome is a skipped tick.
func (e *Engine) Tick(ctx context.Context) TickResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.resetRequested.Swap(false) {
		_ = e.resetLocked("operator reset")
	}

	obs, ok := e.observe(ctx)
	if !ok {
		return TickResult{Classification: ClassNoop, Skipped: true, Note: "observation failed"}
	}

	st := e.store.Snapshot()
	if st.Active && st.MemoryEmpty() && !obs.positions.Flat() {
		// Strategy says active but we have no record of replicating
		// anything, while the master holds positions. Surfaced for the
		// operator; the flat reconciler will self-heal once the master
		// closes out.
		e.log.Warn().
			Int("master_positions", len(obs.positions)).
			Msg("inconsistent state: active strategy with empty instrument memory")
	}

	dec := e.cls.classify(obs, st.Active)
	res := TickResult{Classification: dec.class, Entries: dec.entries, Exits: dec.exits, Note: dec.note}

	switch dec.class {
	case ClassEntry:
		e.handleEntry(ctx, obs, dec, &res)
	case ClassExit:
		e.handleExit(ctx, obs, dec, &res)
	case ClassFlatReconcile:
		e.appliedExits = nil
		e.reconcileFlat(ctx, obs.positions, &res)
	default:
		e.appliedExits = nil
		e.tracker.age(obs.newOrders)
		e.cls.advancePositions(obs.positions, false)
	}

	if err := e.rec.RecordTick(&recorder.TickRecord{
		Classification:  string(res.Classification),
		MarginAvailable: obs.margin.Available,
		MarginUsed:      obs.margin.Used,
		OpenPositions:   len(obs.positions),
		NewOrders:       len(obs.newOrders),
		Note:            res.Note,
	}); err != nil {
		e.log.Error().Err(err).Msg("record tick")
	}
	return res
}

// observe pulls orders, margin, and positions. Each call is independently
// fallible; any failure abandons the tick with a warning.
func (e *Engine) observe(ctx context.Context) (observation, bool) {
	orders, err := e.broker.ListMasterOrders(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("tick abandoned: list master orders")
		return observation{}, false
	}
	margin, err := e.broker.MasterMargin(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("tick abandoned: master margin")
		return observation{}, false
	}
	positions, err := e.broker.MasterPositions(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("tick abandoned: master positions")
		return observation{}, false
	}

	pending := false
	for _, o := range orders {
		if o.Pending() {
			pending = true
			break
		}
	}
	return observation{
		orders:    orders,
		newOrders: e.tracker.fresh(orders),
		pending:   pending,
		margin:    margin,
		positions: positions,
	}, true
}

// EndOfDayAudit verifies the flat invariant at session close: an active
// strategy with a genuinely flat master is reconciled immediately rather
// than waiting for the next tick to classify it.
func (e *Engine) EndOfDayAudit(ctx context.Context) TickResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.store.Snapshot()
	res := TickResult{Classification: ClassNoop, Note: "eod audit"}
	if !st.Active {
		e.log.Info().Msg("eod audit: strategy inactive")
		return res
	}
	positions, err := e.broker.MasterPositions(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("eod audit abandoned: master positions")
		res.Skipped = true
		return res
	}
	if !positions.Flat() {
		e.log.Info().Int("open", len(positions)).Msg("eod audit: master still holds positions")
		return res
	}
	res.Classification = ClassFlatReconcile
	e.reconcileFlat(ctx, positions, &res)
	return res
}

// exitApplied reports whether this child's share of an exit leg was
// already resolved on a previous pass over the same held snapshot.
func (e *Engine) exitApplied(childID, instrument string, masterQty int64) bool {
	mem, ok := e.appliedExits[childID]
	if !ok {
		return false
	}
	qty, ok := mem[instrument]
	return ok && qty == masterQty
}

func (e *Engine) markExitApplied(childID, instrument string, masterQty int64) {
	if e.appliedExits == nil {
		e.appliedExits = make(map[string]map[string]int64)
	}
	if e.appliedExits[childID] == nil {
		e.appliedExits[childID] = make(map[string]int64)
	}
	e.appliedExits[childID][instrument] = masterQty
}

func marshalRatios(ratios map[string]float64) string {
	b, err := json.Marshal(ratios)
	if err != nil {
		return ""
	}
	return string(b)
}
