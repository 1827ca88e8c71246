// Package store persists template snapshots in a local sqlite database:
// the parsed template's canonical hash next to the raw policy export it
// came from, so drift against the last known state can be detected
// without a live server.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loomworks/ctc/pkg/ct"
	"github.com/loomworks/ctc/pkg/normalize"
	"github.com/loomworks/ctc/pkg/policy"
)

// ErrNoSnapshot is returned when no snapshot matches a lookup.
var ErrNoSnapshot = errors.New("snapshot not found")

// Snapshot is one captured template state.
type Snapshot struct {
	ID            int64
	BlueprintID   string
	CTID          string
	Name          string
	CanonicalHash string
	Export        []byte
	CapturedAt    time.Time
}

// NewSnapshot captures tpl and the policy export it was parsed from.
// The canonical hash covers the whole template, so representation
// differences (key order, number forms) hash identically.
func NewSnapshot(blueprintID string, tpl *ct.Template, export []policy.Policy) (Snapshot, error) {
	hash, err := normalize.Hash(tpl)
	if err != nil {
		return Snapshot{}, fmt.Errorf("hash template: %w", err)
	}
	exportJSON, err := json.Marshal(policy.WrapPolicies(export))
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode export: %w", err)
	}
	return Snapshot{
		BlueprintID:   blueprintID,
		CTID:          tpl.ID,
		Name:          tpl.Name,
		CanonicalHash: hash,
		Export:        exportJSON,
		CapturedAt:    time.Now().UTC(),
	}, nil
}

// Policies decodes the stored policy export.
func (s Snapshot) Policies() ([]policy.Policy, error) {
	return policy.DecodePolicyBytes(s.Export)
}

// SnapshotStore reads and writes snapshots through one database handle.
type SnapshotStore struct {
	db *sql.DB
}

// Open opens the snapshot database at path, creating it if needed.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open snapshot database: %w", err)
	}
	return db, nil
}

func NewSnapshotStore(db *sql.DB) (*SnapshotStore, error) {
	s := &SnapshotStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SnapshotStore) migrate() error {
	queries := []string{`
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		blueprint_id TEXT NOT NULL,
		ct_id TEXT NOT NULL,
		name TEXT NOT NULL,
		canonical_hash TEXT NOT NULL,
		export_json TEXT NOT NULL,
		captured_at DATETIME NOT NULL
	);`, `
	CREATE INDEX IF NOT EXISTS idx_snapshots_lookup
		ON snapshots (blueprint_id, name, id);`,
	}
	for _, query := range queries {
		if _, err := s.db.ExecContext(context.Background(), query); err != nil {
			return fmt.Errorf("migrate snapshots: %w", err)
		}
	}
	return nil
}

// Save appends one snapshot.
func (s *SnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	query := `INSERT INTO snapshots (
		blueprint_id, ct_id, name, canonical_hash, export_json, captured_at
	) VALUES (?, ?, ?, ?, ?, ?)`

	capturedAt := snap.CapturedAt.UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, query,
		snap.BlueprintID, snap.CTID, snap.Name, snap.CanonicalHash, string(snap.Export), capturedAt,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot of name in blueprintID, or
// ErrNoSnapshot.
func (s *SnapshotStore) Latest(ctx context.Context, blueprintID, name string) (*Snapshot, error) {
	query := `
		SELECT id, blueprint_id, ct_id, name, canonical_hash, export_json, captured_at
		FROM snapshots
		WHERE blueprint_id = ? AND name = ?
		ORDER BY id DESC
		LIMIT 1
	`
	row := s.db.QueryRowContext(ctx, query, blueprintID, name)
	snap, err := scanSnapshot(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSnapshot
		}
		return nil, err
	}
	return snap, nil
}

// List returns the most recent snapshots in blueprintID, newest first.
func (s *SnapshotStore) List(ctx context.Context, blueprintID string, limit int) ([]Snapshot, error) {
	query := `
		SELECT id, blueprint_id, ct_id, name, canonical_hash, export_json, captured_at
		FROM snapshots
		WHERE blueprint_id = ?
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, blueprintID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var snapshots []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snapshots, nil
}

func scanSnapshot(scan func(dest ...any) error) (*Snapshot, error) {
	var (
		id            int64
		blueprintID   string
		ctID          string
		name          string
		canonicalHash string
		exportJSON    string
		capturedAt    string
	)
	if err := scan(&id, &blueprintID, &ctID, &name, &canonicalHash, &exportJSON, &capturedAt); err != nil {
		return nil, err
	}
	return &Snapshot{
		ID:            id,
		BlueprintID:   blueprintID,
		CTID:          ctID,
		Name:          name,
		CanonicalHash: canonicalHash,
		Export:        []byte(exportJSON),
		CapturedAt:    parseTime(capturedAt),
	}, nil
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
