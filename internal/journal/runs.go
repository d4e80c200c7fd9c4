package journal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/config"
	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/control"
	"github.com/google/uuid"
)

// #region types

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// ErrRunNotFound is returned when a run ID is not in the journal.
var ErrRunNotFound = errors.New("run not found")

// Run is one row of the runs table.
type Run struct {
	RunID         string        `json:"run_id"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    *time.Time    `json:"finished_at,omitempty"`
	Transport     string        `json:"transport"`
	Config        config.Config `json:"config"`
	Steps         int           `json:"steps"`
	Ticks         int           `json:"ticks"`
	OptimizerRuns int           `json:"optimizer_runs"`
	Status        string        `json:"status"`
}

// #endregion types

// #region start-run
// StartRun registers a new run and returns its ID.
func (s *Store) StartRun(transport string, cfg config.Config) (string, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	id := uuid.New().String()
	_, err = s.db.Exec(
		`INSERT INTO runs (run_id, started_at, transport, config_json, status) VALUES (?, ?, ?, ?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339Nano), transport, string(cfgJSON), StatusRunning,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// #endregion start-run

// #region finish-run
// FinishRun stores the final counters of a run and its status.
func (s *Store) FinishRun(st control.State, status string) error {
	res, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, steps = ?, ticks = ?, optimizer_runs = ?, status = ? WHERE run_id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), st.Step, st.Ticks, st.OptimizerRuns, status, st.RunID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", st.RunID, ErrRunNotFound)
	}
	return nil
}

// #endregion finish-run

// #region queries
const runColumns = `run_id, started_at, finished_at, transport, config_json, steps, ticks, optimizer_runs, status`

// GetRun loads one run.
func (s *Store) GetRun(runID string) (Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r                Run
		started, cfgJSON string
		finished         sql.NullString
	)
	if err := sc.Scan(&r.RunID, &started, &finished, &r.Transport, &cfgJSON, &r.Steps, &r.Ticks, &r.OptimizerRuns, &r.Status); err != nil {
		return Run{}, err
	}
	var err error
	if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	if finished.Valid {
		t, err := time.Parse(time.RFC3339Nano, finished.String)
		if err != nil {
			return Run{}, fmt.Errorf("parse finished_at: %w", err)
		}
		r.FinishedAt = &t
	}
	if err := json.Unmarshal([]byte(cfgJSON), &r.Config); err != nil {
		return Run{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return r, nil
}

// #endregion queries
