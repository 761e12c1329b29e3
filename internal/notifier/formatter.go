package notifier

import (
	"fmt"
	"sort"
	"strings"

	"MirrorTrade/internal/model"
)

// FormatStrategyState renders a StrategyState snapshot for the operator.
func FormatStrategyState(st *model.StrategyState) string {
	var b strings.Builder
	if !st.Active {
		b.WriteString("💤 <b>Strategy INACTIVE</b>\nNo open replication cycle.")
		return b.String()
	}

	b.WriteString("🔁 <b>Strategy ACTIVE</b>\n")
	fmt.Fprintf(&b, "Pre-trade margin: ₹%.0f\n", st.MasterPreTradeMargin)
	if !st.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "Since: %s\n", st.CreatedAt.Format("02 Jan 15:04:05"))
	}

	childIDs := make([]string, 0, len(st.FrozenRatios))
	for id := range st.FrozenRatios {
		childIDs = append(childIDs, id)
	}
	sort.Strings(childIDs)
	for _, id := range childIDs {
		fmt.Fprintf(&b, "\n<b>%s</b> — ratio %.4f", id, st.FrozenRatios[id])
		mem := st.InstrumentMemory[id]
		instruments := make([]string, 0, len(mem))
		for instr := range mem {
			instruments = append(instruments, instr)
		}
		sort.Strings(instruments)
		for _, instr := range instruments {
			fmt.Fprintf(&b, "\n  • %s: %+d", instr, mem[instr])
		}
	}
	return b.String()
}

// FormatOrderFailures renders per-child failures from one tick.
func FormatOrderFailures(classification string, failures []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "❌ <b>Replication failures</b> (%s)\n", classification)
	for _, f := range failures {
		b.WriteString("\n• " + f)
	}
	return b.String()
}
