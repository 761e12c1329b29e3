package recorder

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordTick(_ *TickRecord) error             { return nil }
func (n *NoopRecorder) RecordReplicaOrder(_ *ReplicaOrder) error   { return nil }
func (n *NoopRecorder) RecordStrategyEvent(_ *StrategyEvent) error { return nil }
func (n *NoopRecorder) RecordReconcile(_ *ReconcileEvent) error    { return nil }
func (n *NoopRecorder) Close() error                               { return nil }
