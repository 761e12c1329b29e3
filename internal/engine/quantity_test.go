package engine

import "testing"

func TestReplicaQty(t *testing.T) {
	tests := []struct {
		name      string
		masterQty int64
		ratio     float64
		lot       int64
		want      int64
	}{
		{"exact lot multiple", 650, 0.3, 65, 195},
		{"floors partial lot", 325, 0.3, 65, 65},
		{"rounds to zero", 100, 0.3, 65, 0},
		{"unit lot", 100, 0.5, 1, 50},
		{"full ratio", 650, 1.0, 65, 650},
		{"zero ratio", 650, 0, 65, 0},
		{"zero master qty", 0, 0.5, 65, 0},
		{"float repr does not lose a lot", 300, 0.1, 30, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := replicaQty(tt.masterQty, tt.ratio, tt.lot); got != tt.want {
				t.Errorf("replicaQty(%d, %v, %d) = %d, want %d", tt.masterQty, tt.ratio, tt.lot, got, tt.want)
			}
		})
	}
}

func TestExitQty(t *testing.T) {
	tests := []struct {
		name    string
		openQty int64
		ratio   float64
		lot     int64
		want    int64
	}{
		{"half exit", 130, 0.5, 65, 65},
		{"full ratio closes everything", 195, 1.0, 65, 195},
		{"ratio above one still capped", 195, 1.5, 65, 195},
		{"floors to lot", 195, 0.5, 65, 65},
		{"zero open", 0, 0.5, 65, 0},
		{"rounds to zero", 65, 0.1, 65, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitQty(tt.openQty, tt.ratio, tt.lot); got != tt.want {
				t.Errorf("exitQty(%d, %v, %d) = %d, want %d", tt.openQty, tt.ratio, tt.lot, got, tt.want)
			}
		})
	}
}

func TestLotTable_Resolve(t *testing.T) {
	lt := NewLotTable(1, map[string]int64{"NIFTY24AUGFUT": 65})
	if got := lt.Resolve("NIFTY24AUGFUT"); got != 65 {
		t.Errorf("override lot = %d, want 65", got)
	}
	if got := lt.Resolve("RELIANCE"); got != 1 {
		t.Errorf("default lot = %d, want 1", got)
	}
	// Cached lookup stays stable.
	if got := lt.Resolve("NIFTY24AUGFUT"); got != 65 {
		t.Errorf("cached lot = %d, want 65", got)
	}
}
