package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"constfold/internal/fold"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ RunStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to init schema")
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			graph_path TEXT,
			started_at INTEGER,
			duration_ns INTEGER,
			fetch JSON,
			nodes_before INTEGER,
			nodes_after INTEGER,
			foldable INTEGER,
			candidates INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS folds (
			run_id TEXT,
			seq INTEGER,
			node TEXT,
			slot INTEGER,
			literal TEXT,
			control_deps JSON,
			dtype TEXT,
			shape JSON,
			bytes INTEGER,
			rewired INTEGER,
			PRIMARY KEY (run_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS materialized (
			run_id TEXT,
			seq INTEGER,
			node TEXT,
			op TEXT,
			source TEXT,
			value TEXT,
			PRIMARY KEY (run_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS skips (
			run_id TEXT,
			seq INTEGER,
			node TEXT,
			reason TEXT,
			detail TEXT,
			PRIMARY KEY (run_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) SaveReport(ctx context.Context, r *fold.Report, graphPath string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	fetch, _ := json.Marshal(r.Fetch)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, graph_path, started_at, duration_ns, fetch, nodes_before, nodes_after, foldable, candidates)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.RunID, graphPath, r.StartedAt.UnixNano(), int64(r.Duration), string(fetch),
		r.NodesBefore, r.NodesAfter, r.Foldable, r.Candidates); err != nil {
		return errors.Wrapf(err, "failed to insert run %s", r.RunID)
	}

	// 1. Folds
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO folds (run_id, seq, node, slot, literal, control_deps, dtype, shape, bytes, rewired)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, f := range r.Folded {
		deps, _ := json.Marshal(f.ControlDeps)
		shape, _ := json.Marshal(f.Shape)
		if _, err := stmt.ExecContext(ctx, r.RunID, i, f.Node, f.Slot, f.Literal, string(deps), f.DType, string(shape), f.Bytes, f.Rewired); err != nil {
			return errors.Wrapf(err, "failed to insert fold of %s", f.Node)
		}
	}

	// 2. Materialized shape queries
	for i, m := range r.Materialized {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO materialized (run_id, seq, node, op, source, value) VALUES (?, ?, ?, ?, ?, ?)
		`, r.RunID, i, m.Node, m.Op, m.Source, m.Value); err != nil {
			return errors.Wrapf(err, "failed to insert materialized %s", m.Node)
		}
	}

	// 3. Skips
	for i, sk := range r.Skipped {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO skips (run_id, seq, node, reason, detail) VALUES (?, ?, ?, ?, ?)
		`, r.RunID, i, sk.Node, sk.Reason, sk.Detail); err != nil {
			return errors.Wrapf(err, "failed to insert skip of %s", sk.Node)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.graph_path, r.started_at, r.duration_ns, r.fetch, r.nodes_before, r.nodes_after,
			(SELECT COUNT(*) FROM materialized m WHERE m.run_id = r.id),
			(SELECT COUNT(*) FROM folds f WHERE f.run_id = r.id),
			(SELECT COUNT(*) FROM skips s WHERE s.run_id = r.id)
		FROM runs r
		ORDER BY r.started_at DESC, r.id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run       Run
			started   int64
			duration  int64
			fetchJSON string
		)
		if err := rows.Scan(&run.ID, &run.GraphPath, &started, &duration, &fetchJSON,
			&run.NodesBefore, &run.NodesAfter, &run.Materialized, &run.Folded, &run.Skipped); err != nil {
			return nil, err
		}
		run.StartedAt = time.Unix(0, started)
		run.Duration = time.Duration(duration)
		if err := json.Unmarshal([]byte(fetchJSON), &run.Fetch); err != nil {
			return nil, errors.Wrapf(err, "run %s has a corrupt fetch list", run.ID)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) GetFolds(ctx context.Context, runID string) ([]fold.FoldRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT node, slot, literal, control_deps, dtype, shape, bytes, rewired
		FROM folds WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []fold.FoldRecord
	for rows.Next() {
		var (
			f           fold.FoldRecord
			deps, shape string
		)
		if err := rows.Scan(&f.Node, &f.Slot, &f.Literal, &deps, &f.DType, &shape, &f.Bytes, &f.Rewired); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(deps), &f.ControlDeps); err != nil {
			return nil, errors.Wrapf(err, "fold of %s has corrupt control deps", f.Node)
		}
		if err := json.Unmarshal([]byte(shape), &f.Shape); err != nil {
			return nil, errors.Wrapf(err, "fold of %s has a corrupt shape", f.Node)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetSkips(ctx context.Context, runID string) ([]fold.SkipRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT node, reason, detail FROM skips WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []fold.SkipRecord
	for rows.Next() {
		var sk fold.SkipRecord
		if err := rows.Scan(&sk.Node, &sk.Reason, &sk.Detail); err != nil {
			return nil, err
		}
		out = append(out, sk)
	}
	return out, rows.Err()
}
