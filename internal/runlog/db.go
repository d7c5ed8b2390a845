// Package runlog records controller runs to sqlite: one row per run and
// one per tick. Schema changes go through the embedded migrations.
package runlog

import (
	"database/sql"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/crowd-drive/internal/monitoring"
)

// DB is the run database.
type DB struct {
	*sql.DB
	path string
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
}

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema.
func Open(path string) (*DB, error) {
	db, err := OpenNoMigrate(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenNoMigrate opens the database without touching the schema.
func OpenNoMigrate(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run database: %w", err)
	}
	// One writer; WAL lets tailsql read alongside it.
	sqlDB.SetMaxOpenConns(1)
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return &DB{DB: sqlDB, path: path}, nil
}

// Run is one recorded controller run.
type Run struct {
	ID           string     `json:"run_id"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	VehicleModel string     `json:"vehicle_model"`
	Source       string     `json:"source"`
	Outcome      string     `json:"outcome,omitempty"`
	Detail       string     `json:"detail,omitempty"`
	Ticks        int        `json:"ticks"`
	TotalReward  float64    `json:"total_reward"`
}

// Tick is one recorded tick.
type Tick struct {
	Tick           uint64    `json:"tick"`
	Time           time.Time `json:"ts"`
	Mode           string    `json:"mode"`
	Published      bool      `json:"published"`
	TargetSpeed    float64   `json:"target_speed"`
	Steer          float64   `json:"steer"`
	Speed          float64   `json:"speed"`
	X              float64   `json:"x"`
	Y              float64   `json:"y"`
	Heading        float64   `json:"heading"`
	Reward         float64   `json:"reward"`
	CollisionAgent *int      `json:"collision_agent,omitempty"`
}

// Runs returns the most recent runs first, at most limit of them.
func (db *DB) Runs(limit int) ([]Run, error) {
	rows, err := db.Query(`SELECT run_id, started_at, ended_at, vehicle_model, source,
		COALESCE(outcome, ''), COALESCE(detail, ''), ticks, total_reward
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var ended sql.NullTime
		if err := rows.Scan(&r.ID, &r.StartedAt, &ended, &r.VehicleModel, &r.Source,
			&r.Outcome, &r.Detail, &r.Ticks, &r.TotalReward); err != nil {
			return nil, err
		}
		if ended.Valid {
			r.EndedAt = &ended.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Ticks returns the ticks of run id in order.
func (db *DB) Ticks(id string) ([]Tick, error) {
	rows, err := db.Query(`SELECT tick, ts, mode, published, target_speed, steer, speed,
		x, y, heading, reward, collision_agent
		FROM ticks WHERE run_id = ? ORDER BY tick`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ticks []Tick
	for rows.Next() {
		var t Tick
		var agent sql.NullInt64
		if err := rows.Scan(&t.Tick, &t.Time, &t.Mode, &t.Published, &t.TargetSpeed, &t.Steer,
			&t.Speed, &t.X, &t.Y, &t.Heading, &t.Reward, &agent); err != nil {
			return nil, err
		}
		if agent.Valid {
			id := int(agent.Int64)
			t.CollisionAgent = &id
		}
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}

// ModeCounts returns how many ticks of run id were spent in each mode.
func (db *DB) ModeCounts(id string) (map[string]int, error) {
	rows, err := db.Query(`SELECT mode, COUNT(*) FROM ticks WHERE run_id = ? GROUP BY mode`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var mode string
		var n int
		if err := rows.Scan(&mode, &n); err != nil {
			return nil, err
		}
		out[mode] = n
	}
	return out, rows.Err()
}

// AttachAdminRoutes mounts tailsql over the run database and a JSON list
// of recent runs under /debug/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{RoutePrefix: "/debug/tailsql/"})
	if err != nil {
		return fmt.Errorf("create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{Label: "Run log"})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.HandleFunc("runs", "recent controller runs as JSON", func(w http.ResponseWriter, r *http.Request) {
		runs, err := db.Runs(50)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to list runs: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(runs); err != nil {
			monitoring.Logf("runs: encode response: %v", err)
		}
	})
	return nil
}
