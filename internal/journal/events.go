package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/control"
	"github.com/danielpatrickdp/adaptive-signal/go-controller/internal/traffic"
)

// #region types
// EventRecord is one row of run_events.
type EventRecord struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	control.Event
}

// #endregion types

// #region log-event
// LogEvent appends one loop event to a run.
func (s *Store) LogEvent(ctx context.Context, runID string, ev control.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_events (run_id, step, tick, kind, junction_id, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID,
		ev.Step,
		ev.Tick,
		string(ev.Kind),
		nullIfEmpty(string(ev.Junction)),
		nullIfEmpty(ev.Detail),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

// #endregion log-event

// #region list-events
// ListEvents returns a run's events in insertion order. An empty kind
// returns every kind.
func (s *Store) ListEvents(runID string, kind control.EventKind) ([]EventRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, step, tick, kind, junction_id, detail, created_at
		 FROM run_events WHERE run_id = ? AND (? = '' OR kind = ?) ORDER BY id`,
		runID, string(kind), string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var (
			rec              EventRecord
			kindStr, created string
			junction, detail sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Step, &rec.Tick, &kindStr, &junction, &detail, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.Kind = control.EventKind(kindStr)
		rec.Junction = traffic.JunctionID(junction.String)
		rec.Detail = detail.String
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// #endregion list-events

// #region run-log
// RunLog writes the events of one run. It satisfies control.Recorder.
type RunLog struct {
	store *Store
	runID string
}

// RunLog binds the journal to runID.
func (s *Store) RunLog(runID string) *RunLog {
	return &RunLog{store: s, runID: runID}
}

func (r *RunLog) Record(ctx context.Context, ev control.Event) error {
	return r.store.LogEvent(ctx, r.runID, ev)
}

// #endregion run-log
