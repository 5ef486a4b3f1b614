// Package docstore holds the primary business records: the feature requests
// and bug reports that work items originate from, plus their design
// artifacts and decision records. A record exists here before it exists
// anywhere else; the board card and mirror row are created at approval.
package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/conveyorhq/conveyor/internal/status"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Simplified source-record status values. The document store tracks a much
// coarser state than the board: it only needs to know whether the request is
// still being worked.
const (
	SourceStatusOpen       = "open"
	SourceStatusInProgress = "in_progress"
	SourceStatusDone       = "done"
)

// Request is a feature request or bug report.
type Request struct {
	ID            string
	Kind          status.ItemKind
	Title         string
	Body          string
	SourceStatus  string
	Priority      int // 0 (critical) .. 4 (none)
	TrackerID     string
	TrackerNumber int
	TrackerURL    string
	PhaseCount    int // implementation phases recorded at tech-design approval
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Synced reports whether the request has been promoted to a board card.
func (r *Request) Synced() bool { return r.TrackerID != "" }

// DesignArtifact records an approved design document: its phase, where the
// content lives in the artifact store, and the PR it was produced under.
type DesignArtifact struct {
	ID        int64
	RequestID string
	Phase     string // "product-dev", "product", "tech"
	Location  string // artifact store key
	Status    string // "approved"
	PRNumber  int
	CreatedAt time.Time
}

// DecisionOption is one selectable option on a decision record.
type DecisionOption struct {
	Label    string            `json:"label"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// RoutingDescriptor tells the decision router how a choice maps to a phase:
// read the chosen option's metadata at MetadataKey, then look the value up
// in StatusMap.
type RoutingDescriptor struct {
	MetadataKey string                   `json:"metadata_key"`
	StatusMap   map[string]status.Status `json:"status_map"`
}

// Decision is a stored decision record awaiting (or holding) a choice.
type Decision struct {
	RequestID        string
	Question         string
	Options          []DecisionOption
	RecommendedIndex int
	ChosenIndex      *int
	Routing          *RoutingDescriptor // nil when the decision is informational
	CreatedAt        time.Time
}

// Store is the sqlite-backed document store.
type Store struct {
	db     *sql.DB
	closed atomic.Bool
}

const schema = `
CREATE TABLE IF NOT EXISTS requests (
	id             TEXT PRIMARY KEY,
	kind           TEXT NOT NULL,
	title          TEXT NOT NULL,
	body           TEXT NOT NULL DEFAULT '',
	source_status  TEXT NOT NULL DEFAULT 'open',
	priority       INTEGER NOT NULL DEFAULT 2,
	tracker_id     TEXT NOT NULL DEFAULT '',
	tracker_number INTEGER NOT NULL DEFAULT 0,
	tracker_url    TEXT NOT NULL DEFAULT '',
	phase_count    INTEGER NOT NULL DEFAULT 0,
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_requests_tracker_number ON requests(tracker_number);

CREATE TABLE IF NOT EXISTS design_artifacts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL,
	phase      TEXT NOT NULL,
	location   TEXT NOT NULL,
	status     TEXT NOT NULL,
	pr_number  INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_artifacts_request_id ON design_artifacts(request_id);

CREATE TABLE IF NOT EXISTS decisions (
	request_id        TEXT PRIMARY KEY,
	question          TEXT NOT NULL DEFAULT '',
	options           TEXT NOT NULL,
	recommended_index INTEGER NOT NULL DEFAULT 0,
	chosen_index      INTEGER,
	routing           TEXT,
	created_at        TIMESTAMP NOT NULL
);
`

// Open opens (creating if needed) the document store at path. Use ":memory:"
// for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document store: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create document schema: %w", err)
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

// CreateRequest inserts a new request record. An empty ID gets a generated
// UUID.
func (s *Store) CreateRequest(ctx context.Context, req *Request) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.SourceStatus == "" {
		req.SourceStatus = SourceStatusOpen
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO requests (id, kind, title, body, source_status, priority,
			tracker_id, tracker_number, tracker_url, phase_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, string(req.Kind), req.Title, req.Body, req.SourceStatus, req.Priority,
		req.TrackerID, req.TrackerNumber, req.TrackerURL, req.PhaseCount, now, now)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

const requestColumns = `id, kind, title, body, source_status, priority,
	tracker_id, tracker_number, tracker_url, phase_count, created_at, updated_at`

func scanRequest(row interface{ Scan(...interface{}) error }) (*Request, error) {
	var req Request
	var kind string
	err := row.Scan(&req.ID, &kind, &req.Title, &req.Body, &req.SourceStatus,
		&req.Priority, &req.TrackerID, &req.TrackerNumber, &req.TrackerURL,
		&req.PhaseCount, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}
	req.Kind = status.ItemKind(kind)
	return &req, nil
}

// GetRequest looks up a request by ID.
func (s *Store) GetRequest(ctx context.Context, id string) (*Request, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("request %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read request %s: %w", id, err)
	}
	return req, nil
}

// GetRequestByTrackerNumber looks up a request by its board card number.
func (s *Store) GetRequestByTrackerNumber(ctx context.Context, number int) (*Request, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE tracker_number = ?`, number)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tracker #%d: %w", number, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read request #%d: %w", number, err)
	}
	return req, nil
}

// SetTracker records the board identity assigned at approval time.
func (s *Store) SetTracker(ctx context.Context, id, trackerID string, number int, url string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE requests SET tracker_id = ?, tracker_number = ?, tracker_url = ?, updated_at = ?
		WHERE id = ?`,
		trackerID, number, url, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set tracker on request %s: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("request %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateSourceStatus sets the simplified source-record status.
func (s *Store) UpdateSourceStatus(ctx context.Context, id, sourceStatus string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE requests SET source_status = ?, updated_at = ? WHERE id = ?`,
		sourceStatus, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update status on request %s: %w", id, err)
	}
	return nil
}

// UpdateTitle renames a request.
func (s *Store) UpdateTitle(ctx context.Context, id, title string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE requests SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to rename request %s: %w", id, err)
	}
	return nil
}

// UpdatePriority reprioritizes a request.
func (s *Store) UpdatePriority(ctx context.Context, id string, priority int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE requests SET priority = ?, updated_at = ? WHERE id = ?`,
		priority, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to reprioritize request %s: %w", id, err)
	}
	return nil
}

// SetPhaseCount records how many implementation phases the tech design
// yielded. Used at completion time to clean up per-phase branches.
func (s *Store) SetPhaseCount(ctx context.Context, id string, count int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE requests SET phase_count = ?, updated_at = ? WHERE id = ?`,
		count, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set phase count on request %s: %w", id, err)
	}
	return nil
}

// DeleteRequest purges a request and its artifacts and decision.
func (s *Store) DeleteRequest(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM requests WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete request %s: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("request %s: %w", id, ErrNotFound)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM design_artifacts WHERE request_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete artifacts for %s: %w", id, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM decisions WHERE request_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete decision for %s: %w", id, err)
	}
	return nil
}

// SaveDesignArtifact records an approved design artifact.
func (s *Store) SaveDesignArtifact(ctx context.Context, artifact *DesignArtifact) error {
	artifact.CreatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO design_artifacts (request_id, phase, location, status, pr_number, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		artifact.RequestID, artifact.Phase, artifact.Location, artifact.Status,
		artifact.PRNumber, artifact.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save design artifact for %s: %w", artifact.RequestID, err)
	}
	if id, err := result.LastInsertId(); err == nil {
		artifact.ID = id
	}
	return nil
}

// DesignArtifacts returns the recorded artifacts for a request, oldest first.
func (s *Store) DesignArtifacts(ctx context.Context, requestID string) ([]*DesignArtifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, phase, location, status, pr_number, created_at
		FROM design_artifacts WHERE request_id = ? ORDER BY id`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts for %s: %w", requestID, err)
	}
	defer rows.Close()

	var artifacts []*DesignArtifact
	for rows.Next() {
		var a DesignArtifact
		if err := rows.Scan(&a.ID, &a.RequestID, &a.Phase, &a.Location, &a.Status,
			&a.PRNumber, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		artifacts = append(artifacts, &a)
	}
	return artifacts, rows.Err()
}

// SaveDecision stores (or replaces) the decision record for a request.
func (s *Store) SaveDecision(ctx context.Context, decision *Decision) error {
	options, err := json.Marshal(decision.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal decision options: %w", err)
	}
	var routing sql.NullString
	if decision.Routing != nil {
		raw, err := json.Marshal(decision.Routing)
		if err != nil {
			return fmt.Errorf("failed to marshal routing descriptor: %w", err)
		}
		routing = sql.NullString{String: string(raw), Valid: true}
	}
	var chosen sql.NullInt64
	if decision.ChosenIndex != nil {
		chosen = sql.NullInt64{Int64: int64(*decision.ChosenIndex), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO decisions (request_id, question, options, recommended_index, chosen_index, routing, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_id) DO UPDATE SET
			question = excluded.question,
			options = excluded.options,
			recommended_index = excluded.recommended_index,
			chosen_index = excluded.chosen_index,
			routing = excluded.routing`,
		decision.RequestID, decision.Question, string(options),
		decision.RecommendedIndex, chosen, routing, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save decision for %s: %w", decision.RequestID, err)
	}
	return nil
}

// GetDecision looks up the decision record for a request.
func (s *Store) GetDecision(ctx context.Context, requestID string) (*Decision, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT request_id, question, options, recommended_index, chosen_index, routing, created_at
		FROM decisions WHERE request_id = ?`, requestID)

	var d Decision
	var options string
	var chosen sql.NullInt64
	var routing sql.NullString
	err := row.Scan(&d.RequestID, &d.Question, &options, &d.RecommendedIndex,
		&chosen, &routing, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("decision for %s: %w", requestID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read decision for %s: %w", requestID, err)
	}

	if err := json.Unmarshal([]byte(options), &d.Options); err != nil {
		return nil, fmt.Errorf("failed to parse decision options for %s: %w", requestID, err)
	}
	if chosen.Valid {
		idx := int(chosen.Int64)
		d.ChosenIndex = &idx
	}
	if routing.Valid {
		var desc RoutingDescriptor
		if err := json.Unmarshal([]byte(routing.String), &desc); err != nil {
			return nil, fmt.Errorf("failed to parse routing descriptor for %s: %w", requestID, err)
		}
		d.Routing = &desc
	}
	return &d, nil
}

// SetDecisionChoice records which option was picked.
func (s *Store) SetDecisionChoice(ctx context.Context, requestID string, index int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE decisions SET chosen_index = ? WHERE request_id = ?`, index, requestID)
	if err != nil {
		return fmt.Errorf("failed to record decision choice for %s: %w", requestID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("decision for %s: %w", requestID, ErrNotFound)
	}
	return nil
}
