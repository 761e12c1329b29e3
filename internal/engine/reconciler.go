package engine

import (
	"context"
	"fmt"

	"MirrorTrade/internal/model"
	"MirrorTrade/internal/recorder"
)

// reconcileFlat is the zero-position compliance path: the master is
// genuinely flat, so every child instrument still open in instrument
// memory is force-closed at 100%, and the strategy is cleared. Memory is
// cross-checked against live child positions first so phantom entries
// (already flat on the broker) are purged instead of re-exited. Runs after
// restarts too: an active persisted state with a flat master lands here.
func (e *Engine) reconcileFlat(ctx context.Context, positions model.PositionSnapshot, res *TickResult) {
	st := e.store.Snapshot()
	if !st.Active {
		return
	}

	children, err := e.broker.Children(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("reconcile abandoned: list children")
		res.Skipped = true
		return
	}

	type memSet struct {
		childID    string
		instrument string
	}
	var settled []memSet
	allClean := true

	for _, child := range children {
		mem := st.InstrumentMemory[child.ID]
		if len(mem) == 0 {
			continue
		}
		live, err := e.broker.ChildPositions(ctx, child.ID)
		if err != nil {
			// Without a live read we cannot tell phantom from real;
			// forcing exits blind could re-exit a flat instrument.
			e.log.Warn().Err(err).Str("child", child.ID).Msg("reconcile: child positions unavailable, retrying next tick")
			res.Failures = append(res.Failures, fmt.Sprintf("%s: positions unavailable", child.ID))
			allClean = false
			continue
		}

		purged, forced := 0, 0
		for instrument, qty := range mem {
			liveQty := live.Quantity(instrument)
			if liveQty == 0 {
				// Phantom token: recorded as replicated but already flat
				// on the broker.
				e.log.Info().
					Str("child", child.ID).
					Str("instrument", instrument).
					Int64("recorded_qty", qty).
					Msg("purging phantom instrument memory entry")
				settled = append(settled, memSet{child.ID, instrument})
				purged++
				continue
			}
			side := model.SideSell
			if liveQty < 0 {
				side = model.SideBuy
			}
			if !e.place(ctx, child, instrument, side, abs64(liveQty), e.productFor(instrument), "forced_exit", 1.0, res) {
				allClean = false
				continue
			}
			settled = append(settled, memSet{child.ID, instrument})
			forced++
		}

		if err := e.rec.RecordReconcile(&recorder.ReconcileEvent{
			ChildID: child.ID,
			Purged:  purged,
			Forced:  forced,
		}); err != nil {
			e.log.Error().Err(err).Msg("record reconcile")
		}
	}

	if len(settled) > 0 {
		if err := e.store.Apply(func(s *model.StrategyState) {
			for _, u := range settled {
				s.SetReplicatedQty(u.childID, u.instrument, 0)
			}
		}); err != nil {
			e.log.Error().Err(err).Msg("persist instrument memory after reconcile")
			return
		}
	}

	e.cls.advancePositions(positions, false)

	if !allClean {
		// Leave the strategy active; the next tick classifies
		// FLAT_RECONCILE again and finishes the job.
		return
	}
	if err := e.store.Clear(); err != nil {
		e.log.Error().Err(err).Msg("clear strategy state after reconcile")
		return
	}
	res.Cleared = true
	if err := e.rec.RecordStrategyEvent(&recorder.StrategyEvent{
		EventType: "CLEARED",
		Note:      "flat reconcile",
	}); err != nil {
		e.log.Error().Err(err).Msg("record clear")
	}
	e.log.Info().Msg("flat reconcile complete, strategy cleared")
}
