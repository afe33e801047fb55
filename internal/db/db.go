// Package db records planner cycles in SQLite for later inspection.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/banshee-data/highway-planner/internal/geom"

	_ "modernc.org/sqlite"
)

// DefaultRecentLimit bounds RecentCycles when the caller passes no limit.
const DefaultRecentLimit = 100

// MaxRecentLimit is the largest limit RecentCycles accepts.
const MaxRecentLimit = 5000

type DB struct {
	*sql.DB
	path string
}

// NewDB opens (creating if needed) the database at path and brings its
// schema up to date.
func NewDB(path string) (*DB, error) {
	dsn := path + "?" + url.Values{"_pragma": {
		"busy_timeout(5000)",
		"journal_mode(WAL)",
		"synchronous(NORMAL)",
		"temp_store(MEMORY)",
	}}.Encode()

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db := &DB{DB: sqlDB, path: path}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the file the database was opened from.
func (db *DB) Path() string { return db.path }

// CycleRecord is one stored planning cycle.
type CycleRecord struct {
	SessionID      string            `json:"session_id"`
	Cycle          uint64            `json:"cycle"`
	Lane           int               `json:"lane"`
	PreviousLane   int               `json:"previous_lane"`
	ReferenceSpeed float64           `json:"reference_speed"`
	TooClose       bool              `json:"too_close"`
	EgoS           float64           `json:"ego_s"`
	EgoD           float64           `json:"ego_d"`
	KeptPoints     int               `json:"kept_points"`
	VehicleCount   int               `json:"vehicle_count"`
	Trajectory     []geom.WorldPoint `json:"trajectory"`
	CreatedAt      time.Time         `json:"created_at"`
}

// RecordCycle stores rec. Recording the same session and cycle twice
// replaces the earlier row.
func (db *DB) RecordCycle(rec CycleRecord) error {
	if rec.SessionID == "" {
		return fmt.Errorf("record cycle %d: missing session id", rec.Cycle)
	}
	trajectory := rec.Trajectory
	if trajectory == nil {
		trajectory = []geom.WorldPoint{}
	}
	data, err := json.Marshal(trajectory)
	if err != nil {
		return fmt.Errorf("failed to encode trajectory: %w", err)
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = db.Exec(
		`INSERT OR REPLACE INTO planner_cycles (
			session_id, cycle, lane, previous_lane, reference_speed, too_close,
			ego_s, ego_d, kept_points, vehicle_count, trajectory_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, int64(rec.Cycle), rec.Lane, rec.PreviousLane, rec.ReferenceSpeed, rec.TooClose,
		rec.EgoS, rec.EgoD, rec.KeptPoints, rec.VehicleCount, string(data), createdAt.UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert cycle %d: %w", rec.Cycle, err)
	}
	return nil
}

const cycleColumns = `session_id, cycle, lane, previous_lane, reference_speed, too_close,
	ego_s, ego_d, kept_points, vehicle_count, trajectory_json, created_at`

// RecentCycles returns up to limit cycles, newest first. A limit of zero
// or less means DefaultRecentLimit.
func (db *DB) RecentCycles(limit int) ([]CycleRecord, error) {
	limit = clampLimit(limit)
	rows, err := db.Query(
		`SELECT `+cycleColumns+` FROM planner_cycles
		ORDER BY created_at DESC, cycle DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanCycles(rows)
}

// SessionCycles returns up to limit cycles of one session in cycle order.
func (db *DB) SessionCycles(sessionID string, limit int) ([]CycleRecord, error) {
	limit = clampLimit(limit)
	rows, err := db.Query(
		`SELECT `+cycleColumns+` FROM planner_cycles
		WHERE session_id = ? ORDER BY cycle ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	return scanCycles(rows)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		return MaxRecentLimit
	}
	return limit
}

func scanCycles(rows *sql.Rows) ([]CycleRecord, error) {
	defer rows.Close()

	cycles := []CycleRecord{}
	for rows.Next() {
		var (
			rec       CycleRecord
			cycle     int64
			tooClose  int
			data      string
			createdAt int64
		)
		if err := rows.Scan(
			&rec.SessionID, &cycle, &rec.Lane, &rec.PreviousLane, &rec.ReferenceSpeed, &tooClose,
			&rec.EgoS, &rec.EgoD, &rec.KeptPoints, &rec.VehicleCount, &data, &createdAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &rec.Trajectory); err != nil {
			return nil, fmt.Errorf("failed to decode trajectory of cycle %d: %w", cycle, err)
		}
		rec.Cycle = uint64(cycle)
		rec.TooClose = tooClose != 0
		rec.CreatedAt = time.UnixMicro(createdAt).UTC()
		cycles = append(cycles, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cycles, nil
}

// Session summarises the cycles recorded for one simulator connection.
type Session struct {
	SessionID   string    `json:"session_id"`
	Cycles      int       `json:"cycles"`
	LaneChanges int       `json:"lane_changes"`
	MaxSpeed    float64   `json:"max_speed"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// Sessions lists recorded sessions, most recently active first.
func (db *DB) Sessions() ([]Session, error) {
	rows, err := db.Query(`
		SELECT session_id, COUNT(*), SUM(lane != previous_lane), MAX(reference_speed),
			MIN(created_at), MAX(created_at)
		FROM planner_cycles
		GROUP BY session_id
		ORDER BY MAX(created_at) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var (
			s           Session
			first, last int64
		)
		if err := rows.Scan(&s.SessionID, &s.Cycles, &s.LaneChanges, &s.MaxSpeed, &first, &last); err != nil {
			return nil, err
		}
		s.FirstSeen = time.UnixMicro(first).UTC()
		s.LastSeen = time.UnixMicro(last).UTC()
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
