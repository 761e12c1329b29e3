package recorder

// TickRecord holds the outcome of one classified polling tick.
type TickRecord struct {
	Classification  string
	MarginAvailable float64
	MarginUsed      float64
	OpenPositions   int
	NewOrders       int
	Note            string
}

// ReplicaOrder records one child order attempt, successful or not.
type ReplicaOrder struct {
	ID            string // client-side UUID
	ChildID       string
	Instrument    string
	Side          string
	Quantity      int64
	Kind          string // "entry" | "exit" | "forced_exit"
	Status        string // "placed" | "simulated" | "rejected" | "failed"
	BrokerOrderID string
	Ratio         float64
	Note          string
}

// StrategyEvent records a strategy lifecycle transition.
type StrategyEvent struct {
	EventType            string // "ACTIVATED" | "CLEARED" | "RESET"
	MasterPreTradeMargin float64
	Ratios               string // JSON child -> ratio
	Note                 string
}

// ReconcileEvent records one reconciler pass over a child.
type ReconcileEvent struct {
	ChildID string
	Purged  int // phantom entries dropped
	Forced  int // forced exit orders issued
	Note    string
}

// Recorder persists the audit trail for after-the-fact diagnosis.
type Recorder interface {
	RecordTick(rec *TickRecord) error
	RecordReplicaOrder(ord *ReplicaOrder) error
	RecordStrategyEvent(evt *StrategyEvent) error
	RecordReconcile(evt *ReconcileEvent) error
	Close() error
}
