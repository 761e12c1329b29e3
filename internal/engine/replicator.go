package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"MirrorTrade/internal/broker"
	"MirrorTrade/internal/model"
	"MirrorTrade/internal/recorder"
)

// handleEntry freezes the ratio if this is the strategy's first leg, then
// replicates every aggregated virtual order to every child.
func (e *Engine) handleEntry(ctx context.Context, obs observation, dec decision, res *TickResult) {
	children, err := e.broker.Children(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("entry abandoned: list children")
		res.Skipped = true
		return
	}

	st := e.store.Snapshot()
	if !st.Active {
		ratios, baselines := freezeRatios(children, dec.preTrade)
		// The ratio is persisted before any replica order goes out, so a
		// crash mid-entry cannot lose it.
		err := e.store.Apply(func(s *model.StrategyState) {
			s.Active = true
			s.FrozenRatios = ratios
			s.MasterPreTradeMargin = dec.preTrade
			s.ChildBaselines = baselines
			s.InstrumentMemory = nil
			s.CreatedAt = e.cls.now()
		})
		if err != nil {
			// Seen-order cache is not advanced, so the same orders
			// classify as ENTRY again next tick.
			e.log.Error().Err(err).Msg("entry abandoned: persist frozen ratio")
			res.Skipped = true
			return
		}
		res.RatioFrozen = true
		st = e.store.Snapshot()
		if err := e.rec.RecordStrategyEvent(&recorder.StrategyEvent{
			EventType:            "ACTIVATED",
			MasterPreTradeMargin: dec.preTrade,
			Ratios:               marshalRatios(ratios),
		}); err != nil {
			e.log.Error().Err(err).Msg("record activation")
		}
		e.log.Info().
			Float64("pre_trade_margin", dec.preTrade).
			Interface("ratios", ratios).
			Msg("strategy activated, ratios frozen")
	}

	type memDelta struct {
		childID    string
		instrument string
		delta      int64
	}
	var deltas []memDelta

	for _, vo := range dec.entries {
		lot := e.lots.Resolve(vo.Instrument)
		if vo.Product != "" {
			e.productHint[vo.Instrument] = vo.Product
		}
		for _, child := range children {
			ratio := st.Ratio(child.ID)
			qty := replicaQty(vo.TotalQuantity, ratio, lot)
			if qty == 0 {
				e.log.Debug().
					Str("child", child.ID).
					Str("instrument", vo.Instrument).
					Float64("ratio", ratio).
					Int64("master_qty", vo.TotalQuantity).
					Msg("replica quantity rounds to zero, skipping")
				continue
			}
			if !e.place(ctx, child, vo.Instrument, vo.Side, qty, vo.Product, "entry", ratio, res) {
				continue
			}
			signed := qty
			if vo.Side == model.SideSell {
				signed = -qty
			}
			deltas = append(deltas, memDelta{child.ID, vo.Instrument, signed})
		}
	}

	// The entry is consumed regardless of per-child outcomes: replaying it
	// against the same master orders would double-replicate.
	e.tracker.commit(dec.entryIDs...)
	e.cls.markEntry(obs.margin)
	e.cls.advancePositions(obs.positions, true)

	if len(deltas) == 0 {
		return
	}
	if err := e.store.Apply(func(s *model.StrategyState) {
		for _, d := range deltas {
			s.SetReplicatedQty(d.childID, d.instrument, s.ReplicatedQty(d.childID, d.instrument)+d.delta)
		}
	}); err != nil {
		// Orders are already live; under-recorded memory is healed by the
		// flat reconciler's live cross-check.
		e.log.Error().Err(err).Msg("persist instrument memory after entry")
	}
}

// handleExit replicates master position decreases proportionally. Exit
// quantities are computed against each child's live broker-reported
// positions, with instrument memory only suppressing duplicates, so a
// crash-and-replay never double-exits.
func (e *Engine) handleExit(ctx context.Context, obs observation, dec decision, res *TickResult) {
	children, err := e.broker.Children(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("exit abandoned: list children")
		res.Skipped = true
		return
	}

	st := e.store.Snapshot()
	type memSet struct {
		childID    string
		instrument string
		qty        int64
	}
	var updates []memSet
	allChildrenSeen := true

	for _, child := range children {
		live, err := e.broker.ChildPositions(ctx, child.ID)
		if err != nil {
			e.log.Warn().Err(err).Str("child", child.ID).Msg("exit: child positions unavailable, retrying next tick")
			res.Failures = append(res.Failures, fmt.Sprintf("%s: positions unavailable", child.ID))
			allChildrenSeen = false
			continue
		}
		for _, leg := range dec.exits {
			mem := st.ReplicatedQty(child.ID, leg.Instrument)
			liveQty := live.Quantity(leg.Instrument)
			if mem == 0 && liveQty == 0 {
				continue
			}
			lot := e.lots.Resolve(leg.Instrument)

			// The proportional target comes from the remembered replicated
			// quantity, never the live read: a leg replayed from a held
			// snapshot recomputes the same target instead of re-applying
			// the ratio to an already-reduced position.
			var target int64 // child quantity that should remain open
			if !leg.Full {
				target = abs64(mem) - exitQty(abs64(mem), leg.Ratio, lot)
			}

			if abs64(mem) <= target {
				// Already replicated this exit on a previous pass.
				continue
			}
			submit := abs64(liveQty) - target
			if submit <= 0 {
				// Child is already at (or past) the target; just settle
				// the memory.
				updates = append(updates, memSet{child.ID, leg.Instrument, signedTarget(liveQty, mem, target)})
				e.markExitApplied(child.ID, leg.Instrument, leg.CurrQty)
				continue
			}
			if e.exitApplied(child.ID, leg.Instrument, leg.CurrQty) {
				// The order for this leg already went out on a previous
				// pass; memory was settled, so recomputing the target from
				// it would double-apply the ratio. Wait for the fill.
				continue
			}

			side := model.SideSell
			if liveQty < 0 || (liveQty == 0 && mem < 0) {
				side = model.SideBuy
			}
			if !e.place(ctx, child, leg.Instrument, side, submit, e.productFor(leg.Instrument), "exit", leg.Ratio, res) {
				// Memory stays put and the previous snapshot is held, so
				// this child's exit is retried on the next tick.
				allChildrenSeen = false
				continue
			}
			updates = append(updates, memSet{child.ID, leg.Instrument, signedTarget(liveQty, mem, target)})
			e.markExitApplied(child.ID, leg.Instrument, leg.CurrQty)
		}
	}

	if len(updates) > 0 {
		if err := e.store.Apply(func(s *model.StrategyState) {
			for _, u := range updates {
				s.SetReplicatedQty(u.childID, u.instrument, u.qty)
			}
		}); err != nil {
			// Positions memory stays put; the same exit recomputes next
			// tick and the live-quantity math suppresses duplicates.
			e.log.Error().Err(err).Msg("persist instrument memory after exit")
			return
		}
	}

	if allChildrenSeen {
		e.cls.advancePositions(obs.positions, false)
		e.tracker.age(obs.newOrders)
		e.appliedExits = nil
	}

	st = e.store.Snapshot()
	if obs.positions.Flat() && st.MemoryEmpty() {
		if err := e.store.Clear(); err != nil {
			e.log.Error().Err(err).Msg("clear strategy state after full exit")
			return
		}
		res.Cleared = true
		if err := e.rec.RecordStrategyEvent(&recorder.StrategyEvent{
			EventType: "CLEARED",
			Note:      "full exit",
		}); err != nil {
			e.log.Error().Err(err).Msg("record clear")
		}
		e.log.Info().Msg("master flat and memory empty, strategy cleared")
	}
}

// signedTarget keeps the sign of the child's position on the new target
// quantity.
func signedTarget(liveQty, mem, target int64) int64 {
	if target == 0 {
		return 0
	}
	ref := liveQty
	if ref == 0 {
		ref = mem
	}
	if ref < 0 {
		return -target
	}
	return target
}

func (e *Engine) productFor(instrument string) string {
	if p, ok := e.productHint[instrument]; ok {
		return p
	}
	return e.opts.DefaultProduct
}

// place submits one replica order for one child, honouring dry-run and
// recording the attempt. A failure never affects other children.
func (e *Engine) place(ctx context.Context, child model.Account, instrument string, side model.Side, qty int64, product, kind string, ratio float64, res *TickResult) bool {
	if product == "" {
		product = e.opts.DefaultProduct
	}
	rec := &recorder.ReplicaOrder{
		ID:         uuid.NewString(),
		ChildID:    child.ID,
		Instrument: instrument,
		Side:       string(side),
		Quantity:   qty,
		Kind:       kind,
		Ratio:      ratio,
	}

	if e.opts.DryRun {
		e.log.Info().
			Str("child", child.ID).
			Str("instrument", instrument).
			Str("side", string(side)).
			Int64("qty", qty).
			Str("kind", kind).
			Msg("dry run: replica order not sent")
		rec.Status = "simulated"
		if err := e.rec.RecordReplicaOrder(rec); err != nil {
			e.log.Error().Err(err).Msg("record replica order")
		}
		res.Placed++
		return true
	}

	ack, err := e.broker.PlaceOrder(ctx, child, instrument, side, qty, product)
	if err != nil {
		if broker.IsRejected(err) {
			rec.Status = "rejected"
		} else {
			rec.Status = "failed"
		}
		rec.Note = err.Error()
		e.log.Error().Err(err).
			Str("child", child.ID).
			Str("instrument", instrument).
			Int64("qty", qty).
			Str("kind", kind).
			Msg("replica order failed")
		res.Failures = append(res.Failures, fmt.Sprintf("%s %s %s x%d: %v", child.ID, side, instrument, qty, err))
		if rerr := e.rec.RecordReplicaOrder(rec); rerr != nil {
			e.log.Error().Err(rerr).Msg("record replica order")
		}
		return false
	}

	rec.Status = "placed"
	rec.BrokerOrderID = ack.OrderID
	e.log.Info().
		Str("child", child.ID).
		Str("instrument", instrument).
		Str("side", string(side)).
		Int64("qty", qty).
		Str("kind", kind).
		Str("order_id", ack.OrderID).
		Msg("replica order placed")
	if err := e.rec.RecordReplicaOrder(rec); err != nil {
		e.log.Error().Err(err).Msg("record replica order")
	}
	res.Placed++
	return true
}
