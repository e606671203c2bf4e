// Package persistence archives simulation runs in SQLite. Every run gets its
// own ID; nothing is ever read back into a live simulation.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/planet-harvest/internal/engine"
	"github.com/talgya/planet-harvest/internal/world"
)

// DB wraps a SQLite connection for the run archive.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		base_x INTEGER NOT NULL,
		base_y INTEGER NOT NULL,
		agents INTEGER NOT NULL,
		resources INTEGER NOT NULL,
		total_utility REAL NOT NULL,
		config_json TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		last_tick INTEGER NOT NULL DEFAULT 0,
		stop_reason TEXT
	);

	CREATE TABLE IF NOT EXISTS tick_stats (
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		delivered INTEGER NOT NULL,
		delivered_utility REAL NOT NULL,
		remaining INTEGER NOT NULL,
		in_transit INTEGER NOT NULL,
		waiting INTEGER NOT NULL,
		priority TEXT NOT NULL,
		PRIMARY KEY (run_id, tick)
	);

	CREATE TABLE IF NOT EXISTS deliveries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		resource_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		utility REAL NOT NULL,
		carriers TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agents (
		run_id TEXT NOT NULL,
		id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		state TEXT NOT NULL,
		pos_x INTEGER NOT NULL,
		pos_y INTEGER NOT NULL,
		steps INTEGER NOT NULL,
		delivered INTEGER NOT NULL,
		utility_share REAL NOT NULL,
		PRIMARY KEY (run_id, id)
	);

	CREATE TABLE IF NOT EXISTS run_meta (
		run_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (run_id, key)
	);

	CREATE INDEX IF NOT EXISTS idx_events_run_tick ON events(run_id, tick);
	CREATE INDEX IF NOT EXISTS idx_deliveries_run ON deliveries(run_id, tick);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// RunRow is one archived run.
type RunRow struct {
	ID           string  `db:"id" json:"id"`
	Seed         int64   `db:"seed" json:"seed"`
	Width        int     `db:"width" json:"width"`
	Height       int     `db:"height" json:"height"`
	BaseX        int     `db:"base_x" json:"base_x"`
	BaseY        int     `db:"base_y" json:"base_y"`
	Agents       int     `db:"agents" json:"agents"`
	Resources    int     `db:"resources" json:"resources"`
	TotalUtility float64 `db:"total_utility" json:"total_utility"`
	ConfigJSON   string  `db:"config_json" json:"-"`
	StartedAt    string  `db:"started_at" json:"started_at"`
	FinishedAt   *string `db:"finished_at" json:"finished_at,omitempty"`
	LastTick     uint64  `db:"last_tick" json:"last_tick"`
	StopReason   *string `db:"stop_reason" json:"stop_reason,omitempty"`
}

// DeliveryRow is one archived ledger entry.
type DeliveryRow struct {
	Tick       uint64  `db:"tick" json:"tick"`
	ResourceID uint64  `db:"resource_id" json:"resource_id"`
	Kind       string  `db:"kind" json:"kind"`
	Utility    float64 `db:"utility" json:"utility"`
	Carriers   string  `db:"carriers" json:"carriers"`
}

// StatsRow is one archived tick summary.
type StatsRow struct {
	Tick             uint64  `db:"tick"`
	Delivered        int     `db:"delivered"`
	DeliveredUtility float64 `db:"delivered_utility"`
	Remaining        int     `db:"remaining"`
	InTransit        int     `db:"in_transit"`
	Waiting          int     `db:"waiting"`
	Priority         string  `db:"priority"`
}

// BeginRun records a new run and returns its ID. cfg is stored as JSON for
// reference.
func (db *DB) BeginRun(status engine.Status, cfg any) (string, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	id := uuid.NewString()
	_, err = db.conn.Exec(`INSERT INTO runs
		(id, seed, width, height, base_x, base_y, agents, resources, total_utility, config_json, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, status.Seed, status.Width, status.Height, status.Base.X, status.Base.Y,
		status.Agents, status.Resources, status.TotalUtility, string(cfgJSON),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	slog.Info("run archived", "run_id", id, "seed", status.Seed)
	return id, nil
}

// SaveFrame appends one tick: its stats row, deliveries and events.
func (db *DB) SaveFrame(runID string, f engine.TickFrame) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	st := f.Stats
	if _, err := tx.Exec(`INSERT OR REPLACE INTO tick_stats
		(run_id, tick, delivered, delivered_utility, remaining, in_transit, waiting, priority)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, f.Tick, st.Delivered, st.DeliveredUtility, st.Remaining, st.InTransit, st.Waiting, st.Priority,
	); err != nil {
		return fmt.Errorf("insert stats %d: %w", f.Tick, err)
	}

	for _, d := range f.Deliveries {
		if _, err := tx.Exec(`INSERT INTO deliveries
			(run_id, tick, resource_id, kind, utility, carriers) VALUES (?, ?, ?, ?, ?, ?)`,
			runID, d.Tick, uint64(d.ResourceID), d.Kind.String(), d.Utility, joinCarriers(d.Carriers),
		); err != nil {
			return fmt.Errorf("insert delivery %d: %w", d.ResourceID, err)
		}
	}

	for _, e := range f.Events {
		if _, err := tx.Exec(
			"INSERT INTO events (run_id, tick, description, category) VALUES (?, ?, ?, ?)",
			runID, e.Tick, e.Description, e.Category,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SaveAgents writes the final state of every agent (full replace per run).
func (db *DB) SaveAgents(runID string, views []engine.AgentView) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM agents WHERE run_id = ?", runID); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO agents
		(run_id, id, kind, state, pos_x, pos_y, steps, delivered, utility_share)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range views {
		if _, err := stmt.Exec(runID, uint64(a.ID), a.Kind, a.State, a.Pos.X, a.Pos.Y, a.Steps, a.Delivered, a.UtilityEarn); err != nil {
			return fmt.Errorf("insert agent %d: %w", a.ID, err)
		}
	}

	return tx.Commit()
}

// FinishRun stamps the run with its last tick and why it stopped.
func (db *DB) FinishRun(runID string, tick uint64, reason string) error {
	_, err := db.conn.Exec(
		"UPDATE runs SET finished_at = ?, last_tick = ?, stop_reason = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339), tick, reason, runID,
	)
	return err
}

// SaveMeta stores a key-value pair for a run.
func (db *DB) SaveMeta(runID, key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO run_meta (run_id, key, value) VALUES (?, ?, ?)",
		runID, key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(runID, key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM run_meta WHERE run_id = ? AND key = ?", runID, key)
	return value, err
}

// Run returns one archived run.
func (db *DB) Run(runID string) (RunRow, error) {
	var r RunRow
	err := db.conn.Get(&r, "SELECT * FROM runs WHERE id = ?", runID)
	return r, err
}

// Runs lists archived runs, newest first.
func (db *DB) Runs(limit int) ([]RunRow, error) {
	var runs []RunRow
	err := db.conn.Select(&runs, "SELECT * FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?", limit)
	return runs, err
}

// Deliveries returns a run's ledger in delivery order.
func (db *DB) Deliveries(runID string) ([]DeliveryRow, error) {
	var out []DeliveryRow
	err := db.conn.Select(&out,
		"SELECT tick, resource_id, kind, utility, carriers FROM deliveries WHERE run_id = ? ORDER BY id",
		runID,
	)
	return out, err
}

// Stats returns a run's tick summaries in tick order.
func (db *DB) Stats(runID string) ([]StatsRow, error) {
	var out []StatsRow
	err := db.conn.Select(&out,
		`SELECT tick, delivered, delivered_utility, remaining, in_transit, waiting, priority
		 FROM tick_stats WHERE run_id = ? ORDER BY tick`,
		runID,
	)
	return out, err
}

// RecentEvents returns the most recent N events of a run.
func (db *DB) RecentEvents(runID string, limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		"SELECT tick, description, category FROM events WHERE run_id = ? ORDER BY id DESC LIMIT ?",
		runID, limit,
	)
	return events, err
}

func joinCarriers(ids []world.AgentID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, ",")
}
