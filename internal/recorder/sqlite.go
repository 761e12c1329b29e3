package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists the audit trail to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log zerolog.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so dashboards can read while the engine writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ticks (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp        INTEGER NOT NULL,
			classification   TEXT,
			margin_available REAL,
			margin_used      REAL,
			open_positions   INTEGER,
			new_orders       INTEGER,
			note             TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_ts ON ticks(timestamp)`,

		`CREATE TABLE IF NOT EXISTS replica_orders (
			id              TEXT PRIMARY KEY,
			timestamp       INTEGER NOT NULL,
			child_id        TEXT,
			instrument      TEXT,
			side            TEXT,
			quantity        INTEGER,
			kind            TEXT,
			status          TEXT,
			broker_order_id TEXT,
			ratio           REAL,
			note            TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_replica_ts ON replica_orders(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_replica_child ON replica_orders(child_id)`,

		`CREATE TABLE IF NOT EXISTS strategy_events (
			id                      INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp               INTEGER NOT NULL,
			event_type              TEXT,
			master_pre_trade_margin REAL,
			ratios                  TEXT,
			note                    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_strategy_ts ON strategy_events(timestamp)`,

		`CREATE TABLE IF NOT EXISTS reconcile_events (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			child_id  TEXT,
			purged    INTEGER,
			forced    INTEGER,
			note      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reconcile_ts ON reconcile_events(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordTick(rec *TickRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO ticks
		(timestamp, classification, margin_available, margin_used, open_positions, new_orders, note)
		VALUES (?,?,?,?,?,?,?)`,
		time.Now().Unix(), rec.Classification,
		rec.MarginAvailable, rec.MarginUsed,
		rec.OpenPositions, rec.NewOrders, rec.Note,
	)
	return err
}

func (r *SQLiteRecorder) RecordReplicaOrder(ord *ReplicaOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO replica_orders
		(id, timestamp, child_id, instrument, side, quantity, kind, status, broker_order_id, ratio, note)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		ord.ID, time.Now().Unix(), ord.ChildID, ord.Instrument,
		ord.Side, ord.Quantity, ord.Kind, ord.Status,
		ord.BrokerOrderID, ord.Ratio, ord.Note,
	)
	return err
}

func (r *SQLiteRecorder) RecordStrategyEvent(evt *StrategyEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO strategy_events
		(timestamp, event_type, master_pre_trade_margin, ratios, note)
		VALUES (?,?,?,?,?)`,
		time.Now().Unix(), evt.EventType,
		evt.MasterPreTradeMargin, evt.Ratios, evt.Note,
	)
	return err
}

func (r *SQLiteRecorder) RecordReconcile(evt *ReconcileEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO reconcile_events
		(timestamp, child_id, purged, forced, note)
		VALUES (?,?,?,?,?)`,
		time.Now().Unix(), evt.ChildID, evt.Purged, evt.Forced, evt.Note,
	)
	return err
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
