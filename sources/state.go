package sources

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrStateNotFound is returned when no checkpoint has been stored for a
// source.
var ErrStateNotFound = errors.New("source state not found")

// StateStore keeps per-source crawl checkpoints and run history in SQLite so
// an interrupted crawl can resume where it left off.
type StateStore struct {
	db *sql.DB
}

// SourceState is the durable progress of one source.
type SourceState struct {
	SourceID  string    `json:"source_id"`
	NextPage  int       `json:"next_page"`
	Completed bool      `json:"completed"`
	Articles  int       `json:"articles"`
	Saved     int       `json:"saved"`
	LastError *string   `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunRecord is a stored run summary. Summary holds the JSON document
// produced by the orchestrator.
type RunRecord struct {
	RunID      uuid.UUID `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Summary    string    `json:"summary"`
}

// NewStateStore opens (or creates) the state database at dbPath.
func NewStateStore(dbPath string) (*StateStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &StateStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the tables if they don't exist.
func (s *StateStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS source_state (
		source_id TEXT PRIMARY KEY,
		next_page INTEGER NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		articles INTEGER NOT NULL DEFAULT 0,
		saved INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		summary TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *StateStore) Close() error {
	return s.db.Close()
}

// SaveCheckpoint records the page a resumed crawl of sourceID should start
// from and clears the completed flag.
func (s *StateStore) SaveCheckpoint(sourceID string, nextPage int) error {
	query := `
		INSERT INTO source_state (source_id, next_page, completed, updated_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			next_page = excluded.next_page,
			completed = 0,
			updated_at = excluded.updated_at
	`

	now := time.Now()
	if _, err := s.db.Exec(query, sourceID, nextPage, formatTime(&now)); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// RecordResult stores the outcome of a source crawl. A nil crawlErr clears
// any previous error.
func (s *StateStore) RecordResult(sourceID string, completed bool, articles, saved int, crawlErr error) error {
	var lastError *string
	if crawlErr != nil {
		msg := crawlErr.Error()
		lastError = &msg
	}

	query := `
		INSERT INTO source_state (source_id, next_page, completed, articles, saved, last_error, updated_at)
		VALUES (?, 0, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			completed = excluded.completed,
			articles = excluded.articles,
			saved = excluded.saved,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`

	now := time.Now()
	_, err := s.db.Exec(query, sourceID, completed, articles, saved, lastError, formatTime(&now))
	if err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}
	return nil
}

// GetState returns the stored state for sourceID.
func (s *StateStore) GetState(sourceID string) (*SourceState, error) {
	query := `
		SELECT source_id, next_page, completed, articles, saved, last_error, updated_at
		FROM source_state
		WHERE source_id = ?
	`

	state, err := scanState(s.db.QueryRow(query, sourceID))
	if err == sql.ErrNoRows {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query source state: %w", err)
	}
	return state, nil
}

// ResumePage returns the checkpoint page for sourceID, or ok=false when the
// source has no usable checkpoint (never crawled, or last crawl completed).
func (s *StateStore) ResumePage(sourceID string) (page int, ok bool, err error) {
	state, err := s.GetState(sourceID)
	if errors.Is(err, ErrStateNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if state.Completed || state.NextPage < 1 {
		return 0, false, nil
	}
	return state.NextPage, true, nil
}

// ListStates returns every stored source state ordered by id.
func (s *StateStore) ListStates() ([]SourceState, error) {
	query := `
		SELECT source_id, next_page, completed, articles, saved, last_error, updated_at
		FROM source_state
		ORDER BY source_id
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query source states: %w", err)
	}
	defer rows.Close()

	var states []SourceState
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source state: %w", err)
		}
		states = append(states, *state)
	}
	return states, rows.Err()
}

// RecordRun stores a finished run's summary document.
func (s *StateStore) RecordRun(runID uuid.UUID, startedAt, finishedAt time.Time, summaryJSON string) error {
	query := `INSERT INTO runs (run_id, started_at, finished_at, summary) VALUES (?, ?, ?, ?)`
	_, err := s.db.Exec(query, runID.String(), formatTime(&startedAt), formatTime(&finishedAt), summaryJSON)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("run %s already recorded", runID)
		}
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first. A limit of 0 returns all.
func (s *StateStore) ListRuns(limit int) ([]RunRecord, error) {
	query := `SELECT run_id, started_at, finished_at, summary FROM runs ORDER BY started_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var runIDStr, startedAtStr, finishedAtStr, summary string
		if err := rows.Scan(&runIDStr, &startedAtStr, &finishedAtStr, &summary); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runID, err := uuid.Parse(runIDStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse run ID: %w", err)
		}
		runs = append(runs, RunRecord{
			RunID:      runID,
			StartedAt:  parseTime(startedAtStr),
			FinishedAt: parseTime(finishedAtStr),
			Summary:    summary,
		})
	}
	return runs, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner) (*SourceState, error) {
	var state SourceState
	var lastError sql.NullString
	var updatedAtStr string

	err := row.Scan(
		&state.SourceID, &state.NextPage, &state.Completed,
		&state.Articles, &state.Saved, &lastError, &updatedAtStr,
	)
	if err != nil {
		return nil, err
	}

	if lastError.Valid {
		state.LastError = &lastError.String
	}
	state.UpdatedAt = parseTime(updatedAtStr)
	return &state, nil
}

// formatTime stores t as RFC 3339 text. A nil time is stored as NULL.
func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

// parseTime reads a stored timestamp; the fractional part is optional.
func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
