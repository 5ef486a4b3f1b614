// Package mirror keeps a local replica of board state for fast listing and
// filtering. The replica is an unlocked, eventually-consistent cache: it is
// written after (never before) the authoritative board write, its errors are
// tolerated by callers, and nothing reads it for correctness decisions.
//
// The history table rides in the same database: one audit entry per logical
// engine operation, diagnostic only.
package mirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/conveyorhq/conveyor/internal/status"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("mirror record not found")

// Record is the local replica of one work item.
type Record struct {
	LocalID             int64
	BusinessID          string
	Kind                status.ItemKind
	Title               string
	TrackerID           string // board node ID; empty until approval
	TrackerNumber       int
	TrackerURL          string
	Status              status.Status
	ReviewStatus        status.ReviewStatus
	ImplementationPhase string
	UpdatedAt           time.Time
}

// HistoryEntry is one audit record for a logical state operation.
type HistoryEntry struct {
	ID         int64
	BusinessID string
	Actor      string
	Operation  string
	FromStatus status.Status
	ToStatus   status.Status
	FromReview status.ReviewStatus
	ToReview   status.ReviewStatus
	CreatedAt  time.Time
}

// Filter narrows List results. Zero values mean no filtering on that field.
type Filter struct {
	Kind         status.ItemKind
	Status       status.Status
	ReviewStatus status.ReviewStatus
	SyncedOnly   bool // only records with a tracker ref
}

// Store is a sqlite-backed mirror store.
type Store struct {
	db     *sql.DB
	closed atomic.Bool
}

const schema = `
CREATE TABLE IF NOT EXISTS items (
	local_id             INTEGER PRIMARY KEY AUTOINCREMENT,
	business_id          TEXT NOT NULL UNIQUE,
	kind                 TEXT NOT NULL,
	title                TEXT NOT NULL DEFAULT '',
	tracker_id           TEXT NOT NULL DEFAULT '',
	tracker_number       INTEGER NOT NULL DEFAULT 0,
	tracker_url          TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL DEFAULT '',
	review_status        TEXT NOT NULL DEFAULT '',
	implementation_phase TEXT NOT NULL DEFAULT '',
	updated_at           TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_tracker_number ON items(tracker_number);
CREATE INDEX IF NOT EXISTS idx_items_status ON items(status);

CREATE TABLE IF NOT EXISTS history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	business_id TEXT NOT NULL,
	actor       TEXT NOT NULL,
	operation   TEXT NOT NULL,
	from_status TEXT NOT NULL DEFAULT '',
	to_status   TEXT NOT NULL DEFAULT '',
	from_review TEXT NOT NULL DEFAULT '',
	to_review   TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_business_id ON history(business_id);
`

// Open opens (creating if needed) the mirror database at path. Use
// ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror db: %w", err)
	}
	// The mirror is single-process; one connection avoids sqlite write races.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create mirror schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database. Safe to call more than once.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// Upsert inserts or replaces the replica record for a business ID.
func (s *Store) Upsert(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (business_id, kind, title, tracker_id, tracker_number, tracker_url,
			status, review_status, implementation_phase, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(business_id) DO UPDATE SET
			kind = excluded.kind,
			title = excluded.title,
			tracker_id = excluded.tracker_id,
			tracker_number = excluded.tracker_number,
			tracker_url = excluded.tracker_url,
			status = excluded.status,
			review_status = excluded.review_status,
			implementation_phase = excluded.implementation_phase,
			updated_at = excluded.updated_at`,
		rec.BusinessID, string(rec.Kind), rec.Title, rec.TrackerID, rec.TrackerNumber,
		rec.TrackerURL, string(rec.Status), string(rec.ReviewStatus),
		rec.ImplementationPhase, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert mirror record %s: %w", rec.BusinessID, err)
	}
	return nil
}

const selectColumns = `local_id, business_id, kind, title, tracker_id, tracker_number,
	tracker_url, status, review_status, implementation_phase, updated_at`

func scanRecord(row interface{ Scan(...interface{}) error }) (*Record, error) {
	var rec Record
	var kind, st, review string
	err := row.Scan(&rec.LocalID, &rec.BusinessID, &kind, &rec.Title, &rec.TrackerID,
		&rec.TrackerNumber, &rec.TrackerURL, &st, &review, &rec.ImplementationPhase,
		&rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Kind = status.ItemKind(kind)
	rec.Status = status.Status(st)
	rec.ReviewStatus = status.ReviewStatus(review)
	return &rec, nil
}

// GetByBusinessID looks up a record by its source document ID.
func (s *Store) GetByBusinessID(ctx context.Context, businessID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM items WHERE business_id = ?`, businessID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("business id %s: %w", businessID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read mirror record %s: %w", businessID, err)
	}
	return rec, nil
}

// GetByLocalID looks up a record by its local row ID. Front-ends that only
// hold the mirror row (the UI listing) resolve items through this.
func (s *Store) GetByLocalID(ctx context.Context, localID int64) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM items WHERE local_id = ?`, localID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("local id %d: %w", localID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read mirror record %d: %w", localID, err)
	}
	return rec, nil
}

// GetByTrackerNumber looks up a record by its board card number.
func (s *Store) GetByTrackerNumber(ctx context.Context, number int) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM items WHERE tracker_number = ?`, number)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tracker number %d: %w", number, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read mirror record #%d: %w", number, err)
	}
	return rec, nil
}

// ApplyState updates the replicated state fields after an authoritative
// board write. nil pointers leave a field untouched; the review change
// carries its own tri-state.
func (s *Store) ApplyState(ctx context.Context, businessID string, st *status.Status, review status.ReviewChange, implPhase *string) error {
	query := `UPDATE items SET updated_at = ?`
	args := []interface{}{time.Now().UTC()}

	if st != nil {
		query += `, status = ?`
		args = append(args, string(*st))
	}
	if !review.IsKeep() {
		query += `, review_status = ?`
		if v, ok := review.Value(); ok {
			args = append(args, string(v))
		} else {
			args = append(args, "")
		}
	}
	if implPhase != nil {
		query += `, implementation_phase = ?`
		args = append(args, *implPhase)
	}

	query += ` WHERE business_id = ?`
	args = append(args, businessID)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to apply state to mirror record %s: %w", businessID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("business id %s: %w", businessID, ErrNotFound)
	}
	return nil
}

// UpdateTitle renames the replica record.
func (s *Store) UpdateTitle(ctx context.Context, businessID, title string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE items SET title = ?, updated_at = ? WHERE business_id = ?`,
		title, time.Now().UTC(), businessID)
	if err != nil {
		return fmt.Errorf("failed to rename mirror record %s: %w", businessID, err)
	}
	return nil
}

// Delete purges the replica record and its history.
func (s *Store) Delete(ctx context.Context, businessID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE business_id = ?`, businessID); err != nil {
		return fmt.Errorf("failed to delete mirror record %s: %w", businessID, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE business_id = ?`, businessID); err != nil {
		return fmt.Errorf("failed to delete history for %s: %w", businessID, err)
	}
	return nil
}

// List returns replica records matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Record, error) {
	query := `SELECT ` + selectColumns + ` FROM items WHERE 1=1`
	var args []interface{}

	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.ReviewStatus != "" {
		query += ` AND review_status = ?`
		args = append(args, string(filter.ReviewStatus))
	}
	if filter.SyncedOnly {
		query += ` AND tracker_id != ''`
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list mirror records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mirror record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// AppendHistory records one audit entry for a logical operation.
func (s *Store) AppendHistory(ctx context.Context, entry *HistoryEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history (business_id, actor, operation, from_status, to_status,
			from_review, to_review, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.BusinessID, entry.Actor, entry.Operation,
		string(entry.FromStatus), string(entry.ToStatus),
		string(entry.FromReview), string(entry.ToReview), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to append history for %s: %w", entry.BusinessID, err)
	}
	return nil
}

// History returns the most recent audit entries for an item, newest first.
func (s *Store) History(ctx context.Context, businessID string, limit int) ([]*HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, business_id, actor, operation, from_status, to_status, from_review, to_review, created_at
		FROM history WHERE business_id = ? ORDER BY id DESC LIMIT ?`, businessID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read history for %s: %w", businessID, err)
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var fromSt, toSt, fromRev, toRev string
		if err := rows.Scan(&e.ID, &e.BusinessID, &e.Actor, &e.Operation,
			&fromSt, &toSt, &fromRev, &toRev, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.FromStatus = status.Status(fromSt)
		e.ToStatus = status.Status(toSt)
		e.FromReview = status.ReviewStatus(fromRev)
		e.ToReview = status.ReviewStatus(toRev)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
