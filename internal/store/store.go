// Package store archives verification runs in SQLite: one row per run plus
// the assignment or unsat core it produced.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/enclavecheck/internal/encoder"
	"github.com/ppiankov/enclavecheck/internal/model"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("store: run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	backend     TEXT NOT NULL,
	policy_hash TEXT NOT NULL,
	graph_hash  TEXT NOT NULL,
	status      TEXT NOT NULL,
	constraints INTEGER NOT NULL,
	core_size   INTEGER NOT NULL,
	elapsed_ms  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS assignments (
	run_id  TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	node    INTEGER NOT NULL,
	enclave TEXT NOT NULL,
	taint   TEXT NOT NULL,
	PRIMARY KEY (run_id, node)
);
CREATE TABLE IF NOT EXISTS core (
	run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq       INTEGER NOT NULL,
	kind      TEXT NOT NULL,
	rule      TEXT NOT NULL,
	entity    INTEGER NOT NULL,
	args      TEXT NOT NULL,
	assertion TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS runs_started ON runs(started_at);
`

// Run is one archived verification.
type Run struct {
	ID          string        `json:"id"`
	StartedAt   time.Time     `json:"started_at"`
	Backend     string        `json:"backend"`
	PolicyHash  string        `json:"policy_hash"`
	GraphHash   string        `json:"graph_hash"`
	Status      model.Status  `json:"status"`
	Constraints int           `json:"constraints"`
	CoreSize    int           `json:"core_size"`
	Elapsed     time.Duration `json:"elapsed"`
}

// CoreRow is one archived core constraint.
type CoreRow struct {
	Seq       int        `json:"seq"`
	Kind      model.Kind `json:"kind"`
	Rule      string     `json:"rule"`
	Entity    int        `json:"entity"`
	Args      []string   `json:"args,omitempty"`
	Assertion string     `json:"assertion"`
}

// Store is an open archive.
type Store struct {
	db *sql.DB
}

// Open opens or creates the archive at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// SQLite has a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// SaveRun archives a run with its assignment or core in one transaction.
func (s *Store) SaveRun(ctx context.Context, run Run, assignment []model.Assignment, core []encoder.Constraint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, backend, policy_hash, graph_hash, status, constraints, core_size, elapsed_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC().Format(time.RFC3339Nano), run.Backend, run.PolicyHash, run.GraphHash,
		string(run.Status), run.Constraints, run.CoreSize, run.Elapsed.Milliseconds())
	if err != nil {
		return fmt.Errorf("store: insert run: %w", err)
	}

	if len(assignment) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO assignments (run_id, node, enclave, taint) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("store: prepare assignment: %w", err)
		}
		defer stmt.Close()
		for _, a := range assignment {
			if _, err := stmt.ExecContext(ctx, run.ID, a.Node, a.Enclave, a.Taint); err != nil {
				return fmt.Errorf("store: insert assignment: %w", err)
			}
		}
	}

	if len(core) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO core (run_id, seq, kind, rule, entity, args, assertion) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("store: prepare core: %w", err)
		}
		defer stmt.Close()
		for _, c := range core {
			if _, err := stmt.ExecContext(ctx, run.ID, c.Seq, string(c.Kind), c.Rule, c.Entity,
				strings.Join(c.Args, "\x1f"), c.Assertion); err != nil {
				return fmt.Errorf("store: insert core: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// Runs returns the most recent runs, newest first. A non-positive limit
// returns all of them.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	q := `SELECT id, started_at, backend, policy_hash, graph_hash, status, constraints, core_size, elapsed_ms
	      FROM runs ORDER BY started_at DESC, id`
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get returns one run.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, backend, policy_hash, graph_hash, status, constraints, core_size, elapsed_ms
		 FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r       Run
		started string
		status  string
		elapsed int64
	)
	if err := sc.Scan(&r.ID, &started, &r.Backend, &r.PolicyHash, &r.GraphHash, &status,
		&r.Constraints, &r.CoreSize, &elapsed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("store: scan run: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return Run{}, fmt.Errorf("store: run %s: bad timestamp: %w", r.ID, err)
	}
	r.StartedAt = t
	r.Status = model.Status(status)
	r.Elapsed = time.Duration(elapsed) * time.Millisecond
	return r, nil
}

// Assignment returns the archived assignment of a run, by node id.
func (s *Store) Assignment(ctx context.Context, runID string) ([]model.Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT node, enclave, taint FROM assignments WHERE run_id = ? ORDER BY node`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: query assignment: %w", err)
	}
	defer rows.Close()

	var out []model.Assignment
	for rows.Next() {
		var a model.Assignment
		if err := rows.Scan(&a.Node, &a.Enclave, &a.Taint); err != nil {
			return nil, fmt.Errorf("store: scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Core returns the archived core of a run in assertion order.
func (s *Store) Core(ctx context.Context, runID string) ([]CoreRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, kind, rule, entity, args, assertion FROM core WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: query core: %w", err)
	}
	defer rows.Close()

	var out []CoreRow
	for rows.Next() {
		var (
			c    CoreRow
			kind string
			args string
		)
		if err := rows.Scan(&c.Seq, &kind, &c.Rule, &c.Entity, &args, &c.Assertion); err != nil {
			return nil, fmt.Errorf("store: scan core: %w", err)
		}
		c.Kind = model.Kind(kind)
		if args != "" {
			c.Args = strings.Split(args, "\x1f")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
