package runstore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hochfrequenz/prompt-scraper/internal/domain"
)

var (
	// ErrRunNotFound is returned when a run id does not exist
	ErrRunNotFound = errors.New("run not found")
	// ErrAmbiguousID is returned when an id prefix matches more than one run
	ErrAmbiguousID = errors.New("ambiguous run id")
)

// Store provides SQLite-backed run history
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run
func (s *Store) CreateRun(run *domain.Run) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, prompt, status, progress, preview, result_count, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Prompt,
		string(run.Status),
		run.Progress,
		run.Preview,
		nullInt(run.ResultCount),
		run.StartedAt.UTC(),
		nullTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// AppendPhase records one phase line for a run
func (s *Store) AppendPhase(entry domain.PhaseEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO run_phases (run_id, seq, timestamp, phase) VALUES (?, ?, ?, ?)
	`, entry.RunID, entry.Seq, entry.Timestamp.UTC(), string(entry.Phase))
	if err != nil {
		return fmt.Errorf("insert phase for %s: %w", entry.RunID, err)
	}
	return nil
}

// FinishRun stores the final status, progress, preview and result count
func (s *Store) FinishRun(run *domain.Run) error {
	res, err := s.db.Exec(`
		UPDATE runs SET status = ?, progress = ?, preview = ?, result_count = ?, finished_at = ?
		WHERE id = ?
	`,
		string(run.Status),
		run.Progress,
		run.Preview,
		nullInt(run.ResultCount),
		nullTime(run.FinishedAt),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", run.ID, err)
	}
	return requireRow(res, run.ID)
}

// SaveResults replaces the stored result rows of a run
func (s *Store) SaveResults(runID string, records []domain.ResultRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM results WHERE run_id = ?`, runID); err != nil {
		return err
	}
	for i, r := range records {
		if _, err := tx.Exec(`
			INSERT INTO results (run_id, position, name, price, rating, url) VALUES (?, ?, ?, ?, ?, ?)
		`, runID, i, r.Name, r.Price, r.Rating, r.URL); err != nil {
			return fmt.Errorf("insert result for %s: %w", runID, err)
		}
	}
	return tx.Commit()
}

// GetRun retrieves a run by ID
func (s *Store) GetRun(id string) (*domain.Run, error) {
	row := s.db.QueryRow(`
		SELECT id, prompt, status, progress, preview, result_count, started_at, finished_at
		FROM runs WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// ResolveID expands a unique id prefix, as printed by history listings,
// to the full run id. An exact match always wins.
func (s *Store) ResolveID(prefix string) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("%w: empty id", ErrRunNotFound)
	}

	var id string
	err := s.db.QueryRow(`SELECT id FROM runs WHERE id = ?`, prefix).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	pattern := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(prefix) + "%"
	rows, err := s.db.Query(`SELECT id FROM runs WHERE id LIKE ? ESCAPE '\' LIMIT 2`, pattern)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return "", err
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguousID, prefix)
	}
}

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) ListRuns(limit int) ([]*domain.Run, error) {
	query := `SELECT id, prompt, status, progress, preview, result_count, started_at, finished_at
		FROM runs ORDER BY started_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// History returns the display form of the most recent runs
func (s *Store) History(limit int) ([]domain.HistoryEntry, error) {
	runs, err := s.ListRuns(limit)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.HistoryEntry, len(runs))
	for i, r := range runs {
		entries[i] = r.HistoryEntry()
	}
	return entries, nil
}

// ListPhases returns the recorded phases of a run in emission order
func (s *Store) ListPhases(runID string) ([]domain.PhaseEntry, error) {
	rows, err := s.db.Query(`
		SELECT run_id, seq, timestamp, phase FROM run_phases WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var phases []domain.PhaseEntry
	for rows.Next() {
		var p domain.PhaseEntry
		var phase string
		if err := rows.Scan(&p.RunID, &p.Seq, &p.Timestamp, &phase); err != nil {
			return nil, err
		}
		p.Phase = domain.ExecutionPhase(phase)
		phases = append(phases, p)
	}
	return phases, rows.Err()
}

// GetResults returns the stored results of a run in order
func (s *Store) GetResults(runID string) ([]domain.ResultRecord, error) {
	rows, err := s.db.Query(`
		SELECT name, price, rating, url FROM results WHERE run_id = ? ORDER BY position
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.ResultRecord
	for rows.Next() {
		var r domain.ResultRecord
		if err := rows.Scan(&r.Name, &r.Price, &r.Rating, &r.URL); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// LatestResults returns the newest successful run that has stored results
func (s *Store) LatestResults() (*domain.Run, []domain.ResultRecord, error) {
	var id string
	err := s.db.QueryRow(`
		SELECT r.id FROM runs r
		WHERE r.status = ? AND EXISTS (SELECT 1 FROM results x WHERE x.run_id = r.id)
		ORDER BY r.started_at DESC, r.rowid DESC LIMIT 1
	`, string(domain.RunSuccess)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrRunNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	run, err := s.GetRun(id)
	if err != nil {
		return nil, nil, err
	}
	records, err := s.GetResults(id)
	if err != nil {
		return nil, nil, err
	}
	return run, records, nil
}

// DeleteRun removes a run with its phases and results
func (s *Store) DeleteRun(id string) error {
	res, err := s.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

// ClearHistory removes every run and returns how many were deleted
func (s *Store) ClearHistory() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM runs`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkInterrupted fails runs left in the running state by a previous
// process. It returns how many were updated.
func (s *Store) MarkInterrupted() (int64, error) {
	res, err := s.db.Exec(`
		UPDATE runs SET status = ?, preview = ?, finished_at = ? WHERE status = ?
	`, string(domain.RunFailed), domain.CancelledPreview, time.Now().UTC(), string(domain.RunRunning))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*domain.Run, error) {
	var run domain.Run
	var status string
	var resultCount sql.NullInt64
	var finishedAt sql.NullTime

	err := row.Scan(&run.ID, &run.Prompt, &status, &run.Progress, &run.Preview, &resultCount, &run.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	run.Status = domain.RunStatus(status)
	if resultCount.Valid {
		n := int(resultCount.Int64)
		run.ResultCount = &n
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
