package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kailas-cloud/treerag/internal/domain"
	"github.com/kailas-cloud/treerag/internal/domain/decision"
)

const schema = `
CREATE TABLE IF NOT EXISTS traversals (
	traversal_id  TEXT PRIMARY KEY,
	document_id   TEXT NOT NULL,
	query         TEXT NOT NULL,
	mode          TEXT NOT NULL,
	visited       INTEGER NOT NULL,
	selected      INTEGER NOT NULL,
	recovered     INTEGER NOT NULL,
	over_filtered INTEGER NOT NULL,
	threshold     REAL NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS decision_log (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	traversal_id   TEXT NOT NULL,
	seq            INTEGER NOT NULL,
	node_id        TEXT NOT NULL,
	title          TEXT,
	depth          INTEGER NOT NULL,
	llm_score      REAL NOT NULL,
	keyword_score  REAL NOT NULL,
	combined_score REAL NOT NULL,
	confidence     REAL NOT NULL,
	is_relevant    INTEGER NOT NULL,
	reason         TEXT,
	FOREIGN KEY (traversal_id) REFERENCES traversals(traversal_id)
);

CREATE INDEX IF NOT EXISTS idx_decision_log_traversal ON decision_log(traversal_id, seq);
`

// Store persists traversal decision logs in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// single writer; in-memory databases are per-connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Record writes a traversal summary and its decision records in one transaction.
func (s *Store) Record(ctx context.Context, t decision.Summary, records []decision.Record) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO traversals (traversal_id, document_id, query, mode, visited, selected, recovered, over_filtered, threshold, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TraversalID.String(), t.DocumentID, t.Query, t.Mode,
		t.Visited, t.Selected, t.Recovered, boolInt(t.OverFiltered), t.Threshold,
		t.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert traversal: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO decision_log (traversal_id, seq, node_id, title, depth, llm_score, keyword_score, combined_score, confidence, is_relevant, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare decision insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		_, err := stmt.ExecContext(ctx,
			t.TraversalID.String(), i, r.NodeID, nullIfEmpty(r.Title), r.Depth,
			r.LLMScore, r.KeywordScore, r.CombinedScore, r.Confidence,
			boolInt(r.IsRelevant), nullIfEmpty(r.Reason),
		)
		if err != nil {
			return fmt.Errorf("insert decision %s: %w", r.NodeID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Get returns an audited traversal with its decision records in evaluation order.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (decision.Summary, []decision.Record, error) {
	var (
		t         decision.Summary
		rawID     string
		overFilt  int
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT traversal_id, document_id, query, mode, visited, selected, recovered, over_filtered, threshold, created_at
		 FROM traversals WHERE traversal_id = ?`, id.String(),
	).Scan(&rawID, &t.DocumentID, &t.Query, &t.Mode, &t.Visited, &t.Selected, &t.Recovered, &overFilt, &t.Threshold, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decision.Summary{}, nil, domain.ErrNotFound
		}
		return decision.Summary{}, nil, fmt.Errorf("query traversal: %w", err)
	}
	t.TraversalID = id
	t.OverFiltered = overFilt != 0
	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return decision.Summary{}, nil, fmt.Errorf("parse created_at: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT node_id, COALESCE(title, ''), depth, llm_score, keyword_score, combined_score, confidence, is_relevant, COALESCE(reason, '')
		 FROM decision_log WHERE traversal_id = ? ORDER BY seq`, id.String())
	if err != nil {
		return decision.Summary{}, nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var records []decision.Record
	for rows.Next() {
		var (
			r        decision.Record
			relevant int
		)
		if err := rows.Scan(&r.NodeID, &r.Title, &r.Depth, &r.LLMScore, &r.KeywordScore,
			&r.CombinedScore, &r.Confidence, &relevant, &r.Reason); err != nil {
			return decision.Summary{}, nil, fmt.Errorf("scan decision: %w", err)
		}
		r.IsRelevant = relevant != 0
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return decision.Summary{}, nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return t, records, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
