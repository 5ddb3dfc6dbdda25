// Package runrecord persists an explicit per-unit, per-stage status record
// for each curation run. Filesystem presence checks remain the gating
// mechanism during a run; the record is the authoritative report of what
// happened, including stages that partially wrote outputs before failing.
package runrecord

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mriqsm/curate/internal/pipeline"
)

// DBName is the record database filename inside an output root.
const DBName = "curate_runs.db"

// Store is a handle to the run-record database. The schema is created on
// open when missing.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the record database inside outputRoot.
func Open(outputRoot string) (*Store, error) {
	return OpenPath(filepath.Join(outputRoot, DBName))
}

// OpenPath opens the record database at an explicit path.
func OpenPath(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("runrecord: open %s: %w", path, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			root TEXT,
			output_root TEXT,
			started_at TEXT
		);
		CREATE TABLE IF NOT EXISTS units (
			run_id TEXT,
			subject TEXT,
			session TEXT,
			outcome TEXT,
			reason TEXT,
			finished_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (run_id, subject, session),
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		);
		CREATE TABLE IF NOT EXISTS unit_stages (
			run_id TEXT,
			subject TEXT,
			session TEXT,
			stage TEXT,
			status TEXT,
			detail TEXT,
			finished_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (run_id, subject, session, stage),
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("runrecord: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Run is one recorded curation run. It implements pipeline.Recorder.
type Run struct {
	ID    string
	store *Store
}

var _ pipeline.Recorder = (*Run)(nil)

// StartRun registers a new run and returns its recorder.
func (s *Store) StartRun(root, outputRoot string) (*Run, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, root, output_root, started_at) VALUES (?, ?, ?, ?)`,
		id, root, outputRoot, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("runrecord: start run: %w", err)
	}
	return &Run{ID: id, store: s}, nil
}

// RecordStage upserts one stage transition for a unit.
func (r *Run) RecordStage(u pipeline.Unit, stage pipeline.Stage, status pipeline.StageStatus, detail string) error {
	_, err := r.store.db.Exec(`
		INSERT INTO unit_stages (run_id, subject, session, stage, status, detail)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, subject, session, stage)
		DO UPDATE SET status = excluded.status, detail = excluded.detail,
			finished_at = CURRENT_TIMESTAMP`,
		r.ID, u.Subject, u.Session, stage.String(), string(status), detail)
	if err != nil {
		return fmt.Errorf("runrecord: record stage: %w", err)
	}
	return nil
}

// RecordUnit upserts the final outcome of a unit.
func (r *Run) RecordUnit(u pipeline.Unit, outcome pipeline.UnitOutcome, reason string) error {
	_, err := r.store.db.Exec(`
		INSERT INTO units (run_id, subject, session, outcome, reason)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (run_id, subject, session)
		DO UPDATE SET outcome = excluded.outcome, reason = excluded.reason,
			finished_at = CURRENT_TIMESTAMP`,
		r.ID, u.Subject, u.Session, string(outcome), reason)
	if err != nil {
		return fmt.Errorf("runrecord: record unit: %w", err)
	}
	return nil
}

// RunInfo describes one recorded run. StartedAt is RFC 3339 text.
type RunInfo struct {
	ID         string
	Root       string
	OutputRoot string
	StartedAt  string
}

// UnitRow is the recorded outcome of one unit in a run.
type UnitRow struct {
	Subject string
	Session string
	Outcome string
	Reason  string
}

// StageRow is one recorded stage transition.
type StageRow struct {
	Subject string
	Session string
	Stage   string
	Status  string
	Detail  string
}

// LatestRun returns the most recently started run with its unit outcomes
// and stage rows. Returns sql.ErrNoRows when the database holds no runs.
func (s *Store) LatestRun() (RunInfo, []UnitRow, []StageRow, error) {
	var info RunInfo
	err := s.db.QueryRow(`
		SELECT run_id, root, output_root, started_at FROM runs
		ORDER BY rowid DESC LIMIT 1`).
		Scan(&info.ID, &info.Root, &info.OutputRoot, &info.StartedAt)
	if err != nil {
		return RunInfo{}, nil, nil, fmt.Errorf("runrecord: latest run: %w", err)
	}

	units, err := s.unitRows(info.ID)
	if err != nil {
		return RunInfo{}, nil, nil, err
	}
	stages, err := s.stageRows(info.ID)
	if err != nil {
		return RunInfo{}, nil, nil, err
	}
	return info, units, stages, nil
}

func (s *Store) unitRows(runID string) ([]UnitRow, error) {
	rows, err := s.db.Query(`
		SELECT subject, session, outcome, reason FROM units
		WHERE run_id = ? ORDER BY subject, session`, runID)
	if err != nil {
		return nil, fmt.Errorf("runrecord: units: %w", err)
	}
	defer rows.Close()

	var out []UnitRow
	for rows.Next() {
		var r UnitRow
		if err := rows.Scan(&r.Subject, &r.Session, &r.Outcome, &r.Reason); err != nil {
			return nil, fmt.Errorf("runrecord: units: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) stageRows(runID string) ([]StageRow, error) {
	rows, err := s.db.Query(`
		SELECT subject, session, stage, status, detail FROM unit_stages
		WHERE run_id = ? ORDER BY subject, session, rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("runrecord: stages: %w", err)
	}
	defer rows.Close()

	var out []StageRow
	for rows.Next() {
		var r StageRow
		if err := rows.Scan(&r.Subject, &r.Session, &r.Stage, &r.Status, &r.Detail); err != nil {
			return nil, fmt.Errorf("runrecord: stages: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
