// Package trace records what a simulation showed the controller, tick by
// tick, and plays it back as a simulation of its own.
package trace

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/traffic"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS trace_junctions (
	run_id         TEXT NOT NULL,
	ord            INTEGER NOT NULL,
	junction_id    TEXT NOT NULL,
	phase_count    INTEGER NOT NULL,
	initial_phase  INTEGER NOT NULL,
	PRIMARY KEY (run_id, junction_id)
);

CREATE TABLE IF NOT EXISTS trace_lanes (
	run_id       TEXT NOT NULL,
	junction_id  TEXT NOT NULL,
	ord          INTEGER NOT NULL,
	lane_id      TEXT NOT NULL,
	PRIMARY KEY (run_id, junction_id, ord)
);

CREATE TABLE IF NOT EXISTS trace_samples (
	run_id    TEXT NOT NULL,
	tick      INTEGER NOT NULL,
	lane_id   TEXT NOT NULL,
	vehicles  INTEGER NOT NULL,
	stopped   INTEGER NOT NULL,
	waiting   REAL NOT NULL,
	PRIMARY KEY (run_id, tick, lane_id)
);
`

// EnsureSchema creates the trace tables in db if they are missing.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate trace: %w", err)
	}
	return nil
}

// #endregion schema

// #region types

// ErrNoTrace is returned when a run has no recorded trace.
var ErrNoTrace = errors.New("no trace recorded")

// Junction is the recorded topology of one junction.
type Junction struct {
	ID           traffic.JunctionID `json:"id"`
	PhaseCount   int                `json:"phase_count"`
	InitialPhase int                `json:"initial_phase"`
	Lanes        []traffic.LaneID   `json:"lanes"`
}

// Sample is one lane at one tick.
type Sample struct {
	Vehicles int     `json:"vehicles"`
	Stopped  int     `json:"stopped"`
	Waiting  float64 `json:"waiting"`
}

// Trace is a recorded run. Samples[lane][t] is the lane at tick t; Ticks is
// the last recorded tick.
type Trace struct {
	RunID     string                      `json:"run_id"`
	Junctions []Junction                  `json:"junctions"`
	Samples   map[traffic.LaneID][]Sample `json:"samples"`
	Ticks     int                         `json:"ticks"`
}

// #endregion types

// #region load
// Load reads the trace recorded for runID.
func Load(db *sql.DB, runID string) (*Trace, error) {
	tr := &Trace{RunID: runID, Samples: make(map[traffic.LaneID][]Sample)}

	rows, err := db.Query(
		`SELECT junction_id, phase_count, initial_phase FROM trace_junctions WHERE run_id = ? ORDER BY ord`, runID)
	if err != nil {
		return nil, fmt.Errorf("load junctions: %w", err)
	}
	for rows.Next() {
		var j Junction
		if err := rows.Scan(&j.ID, &j.PhaseCount, &j.InitialPhase); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan junction: %w", err)
		}
		tr.Junctions = append(tr.Junctions, j)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load junctions: %w", err)
	}

	for i := range tr.Junctions {
		lanes, err := loadLanes(db, runID, tr.Junctions[i].ID)
		if err != nil {
			return nil, err
		}
		tr.Junctions[i].Lanes = lanes
	}

	rows, err = db.Query(
		`SELECT tick, lane_id, vehicles, stopped, waiting FROM trace_samples WHERE run_id = ? ORDER BY tick`, runID)
	if err != nil {
		return nil, fmt.Errorf("load samples: %w", err)
	}
	defer rows.Close()
	var n int
	for rows.Next() {
		var (
			tick int
			lane traffic.LaneID
			s    Sample
		)
		if err := rows.Scan(&tick, &lane, &s.Vehicles, &s.Stopped, &s.Waiting); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		tr.put(lane, tick, s)
		n++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load samples: %w", err)
	}

	if len(tr.Junctions) == 0 && n == 0 {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNoTrace)
	}
	return tr, nil
}

func loadLanes(db *sql.DB, runID string, junction traffic.JunctionID) ([]traffic.LaneID, error) {
	rows, err := db.Query(
		`SELECT lane_id FROM trace_lanes WHERE run_id = ? AND junction_id = ? ORDER BY ord`, runID, junction)
	if err != nil {
		return nil, fmt.Errorf("load lanes %s: %w", junction, err)
	}
	defer rows.Close()
	var lanes []traffic.LaneID
	for rows.Next() {
		var l traffic.LaneID
		if err := rows.Scan(&l); err != nil {
			return nil, fmt.Errorf("scan lane: %w", err)
		}
		lanes = append(lanes, l)
	}
	return lanes, rows.Err()
}

// put stores s at tick, padding any gap with the previous sample.
func (tr *Trace) put(lane traffic.LaneID, tick int, s Sample) {
	seq := tr.Samples[lane]
	for len(seq) < tick {
		var prev Sample
		if len(seq) > 0 {
			prev = seq[len(seq)-1]
		}
		seq = append(seq, prev)
	}
	if tick < len(seq) {
		seq[tick] = s
	} else {
		seq = append(seq, s)
	}
	tr.Samples[lane] = seq
	if tick > tr.Ticks {
		tr.Ticks = tick
	}
}

// #endregion load

// #region fixture

// WriteFile saves the trace as an indented JSON fixture.
func (tr *Trace) WriteFile(path string) error {
	data, err := json.MarshalIndent(tr, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write trace %s: %w", path, err)
	}
	return nil
}

// ReadFile loads a JSON fixture written by WriteFile.
func ReadFile(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trace %s: %w", path, err)
	}
	var tr Trace
	if err := json.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("parse trace %s: %w", path, err)
	}
	if tr.Samples == nil {
		tr.Samples = make(map[traffic.LaneID][]Sample)
	}
	return &tr, nil
}

// #endregion fixture
