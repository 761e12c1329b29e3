package model

import "testing"

func TestSetReplicatedQty_DropsZeroEntries(t *testing.T) {
	st := &StrategyState{}
	st.SetReplicatedQty("c1", "A", 195)
	st.SetReplicatedQty("c1", "B", -65)

	if st.ReplicatedQty("c1", "A") != 195 {
		t.Fatalf("A = %d, want 195", st.ReplicatedQty("c1", "A"))
	}
	st.SetReplicatedQty("c1", "A", 0)
	if _, ok := st.InstrumentMemory["c1"]["A"]; ok {
		t.Fatal("zero quantity should remove the instrument entry")
	}
	st.SetReplicatedQty("c1", "B", 0)
	if _, ok := st.InstrumentMemory["c1"]; ok {
		t.Fatal("empty child map should be removed")
	}
	if !st.MemoryEmpty() {
		t.Fatal("memory should be empty")
	}
}

func TestStrategyState_CloneIsDeep(t *testing.T) {
	st := &StrategyState{
		Active:       true,
		FrozenRatios: map[string]float64{"c1": 0.3},
	}
	st.SetReplicatedQty("c1", "A", 195)

	cp := st.Clone()
	cp.FrozenRatios["c1"] = 0.9
	cp.SetReplicatedQty("c1", "A", 0)

	if st.FrozenRatios["c1"] != 0.3 {
		t.Error("clone shares the ratio map")
	}
	if st.ReplicatedQty("c1", "A") != 195 {
		t.Error("clone shares the instrument memory")
	}
}

func TestPositionSnapshot_Flat(t *testing.T) {
	if !(PositionSnapshot{}).Flat() {
		t.Error("empty snapshot should be flat")
	}
	if !(PositionSnapshot{"A": 0}).Flat() {
		t.Error("zero-quantity entries should count as flat")
	}
	if (PositionSnapshot{"A": -65}).Flat() {
		t.Error("short position is not flat")
	}
}

func TestPositionSnapshot_Instruments(t *testing.T) {
	a := PositionSnapshot{"A": 650, "B": -650}
	b := PositionSnapshot{"B": -325, "C": 65}
	got := a.Instruments(b)
	if len(got) != 3 {
		t.Fatalf("union = %v, want 3 instruments", got)
	}
}

func TestSide_Opposite(t *testing.T) {
	if SideBuy.Opposite() != SideSell || SideSell.Opposite() != SideBuy {
		t.Error("opposite sides wrong")
	}
}
