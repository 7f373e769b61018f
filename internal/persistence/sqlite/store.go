// Package sqlite provides a single-file store for local development and small
// deployments. It implements the same repositories as the postgres store but
// writes no outbox events.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"example.com/hobbytracker/internal/domain"
	"example.com/hobbytracker/internal/observability"
	"example.com/hobbytracker/internal/runmetrics"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements domain.RunRepository and domain.RecordRepository.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database file at path. The pool is
// limited to one connection, which serialises writers.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

const runColumns = `id, distance_km, duration_minutes, training_type, location, external_id, external_name, pace, average_speed_kmh, total_elevation_gain_m, occurred_at, created_at`

// FindRunByExternalID returns the run synced from externalID, or nil.
func (s *Store) FindRunByExternalID(ctx context.Context, externalID int64) (*domain.LocalRun, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE external_id = ?`, externalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

// InsertRunIfAbsent stores run unless its external id is already present, in
// which case the stored row is returned with created=false.
func (s *Store) InsertRunIfAbsent(ctx context.Context, run domain.LocalRun) (domain.LocalRun, bool, error) {
	if run.ExternalID == nil {
		return domain.LocalRun{}, false, errors.New("insert run if absent: external id required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.LocalRun{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	run.CreatedAt = s.now().UTC()
	err = tx.QueryRowContext(ctx, `INSERT INTO runs (distance_km, duration_minutes, training_type, location, external_id, external_name, pace, average_speed_kmh, total_elevation_gain_m, occurred_at, created_at)
        VALUES (?,?,?,?,?,?,?,?,?,?,?)
        ON CONFLICT(external_id) DO NOTHING
        RETURNING id`,
		run.DistanceKm,
		run.DurationMinutes,
		string(run.TrainingType),
		run.Location,
		*run.ExternalID,
		nullIfEmpty(run.ExternalName),
		nullIfEmpty(run.Pace),
		run.AverageSpeedKmh,
		run.TotalElevationGainM,
		formatTime(run.OccurredAt),
		formatTime(run.CreatedAt),
	).Scan(&run.ID)
	if errors.Is(err, sql.ErrNoRows) {
		existing, findErr := scanRun(tx.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE external_id = ?`, *run.ExternalID))
		if findErr != nil {
			return domain.LocalRun{}, false, fmt.Errorf("read existing run: %w", findErr)
		}
		return existing, false, tx.Commit()
	}
	if err != nil {
		return domain.LocalRun{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return domain.LocalRun{}, false, err
	}
	run.OccurredAt = truncate(run.OccurredAt)
	run.CreatedAt = truncate(run.CreatedAt)
	observability.RecordRunPersisted(run.CreatedAt)
	return run, true, nil
}

// CreateRun stores a hand-entered run.
func (s *Store) CreateRun(ctx context.Context, run domain.LocalRun) (domain.LocalRun, error) {
	run.CreatedAt = s.now().UTC()
	res, err := s.db.ExecContext(ctx, `INSERT INTO runs (distance_km, duration_minutes, training_type, location, occurred_at, created_at) VALUES (?,?,?,?,?,?)`,
		run.DistanceKm, run.DurationMinutes, string(run.TrainingType), run.Location, formatTime(run.OccurredAt), formatTime(run.CreatedAt))
	if err != nil {
		return domain.LocalRun{}, err
	}
	if run.ID, err = res.LastInsertId(); err != nil {
		return domain.LocalRun{}, err
	}
	run.OccurredAt = truncate(run.OccurredAt)
	run.CreatedAt = truncate(run.CreatedAt)
	return run, nil
}

// ListRuns returns runs newest first, keyset-paginated on (occurred_at, id).
func (s *Store) ListRuns(ctx context.Context, cursor *domain.Cursor, limit int) ([]domain.LocalRun, *domain.Cursor, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	args := make([]any, 0, 4)
	if cursor != nil {
		ts := formatTime(cursor.OccurredAt)
		query += ` WHERE occurred_at < ? OR (occurred_at = ? AND id < ?)`
		args = append(args, ts, ts, cursor.ID)
	}
	query += ` ORDER BY occurred_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.LocalRun, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, run)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{OccurredAt: last.OccurredAt, ID: last.ID}
	}
	return results, next, nil
}

// CreateBook stores a book.
func (s *Store) CreateBook(ctx context.Context, book domain.Book) (domain.Book, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO books (title, author, total_pages, current_page, cover_url, status, updated_at) VALUES (?,?,?,?,?,?,?)`,
		book.Title, book.Author, book.TotalPages, book.CurrentPage, book.CoverURL, string(book.Status), formatTime(book.UpdatedAt))
	if err != nil {
		return domain.Book{}, err
	}
	if book.ID, err = res.LastInsertId(); err != nil {
		return domain.Book{}, err
	}
	book.UpdatedAt = truncate(book.UpdatedAt)
	return book, nil
}

// UpdateBook applies the set fields of update.
func (s *Store) UpdateBook(ctx context.Context, id int64, update domain.BookUpdate) error {
	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)
	if update.CurrentPage != nil {
		sets = append(sets, "current_page = ?")
		args = append(args, *update.CurrentPage)
	}
	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Rating != nil {
		sets = append(sets, "rating = ?")
		args = append(args, *update.Rating)
	}
	if update.Summary != nil {
		sets = append(sets, "summary = ?")
		args = append(args, *update.Summary)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(s.now()), id)

	res, err := s.db.ExecContext(ctx, `UPDATE books SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// ListBooks returns books most recently updated first.
func (s *Store) ListBooks(ctx context.Context) ([]domain.Book, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, author, total_pages, current_page, cover_url, status, rating, summary, updated_at
        FROM books ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := make([]domain.Book, 0)
	for rows.Next() {
		var (
			book      domain.Book
			status    string
			rating    sql.NullInt64
			updatedAt string
		)
		if err := rows.Scan(&book.ID, &book.Title, &book.Author, &book.TotalPages, &book.CurrentPage, &book.CoverURL, &status, &rating, &book.Summary, &updatedAt); err != nil {
			return nil, err
		}
		book.Status = domain.BookStatus(status)
		if rating.Valid {
			r := int(rating.Int64)
			book.Rating = &r
		}
		if book.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

// CreateWorkout stores a workout.
func (s *Store) CreateWorkout(ctx context.Context, workout domain.Workout) (domain.Workout, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO workouts (focus, duration_minutes, effort, occurred_at) VALUES (?,?,?,?)`,
		workout.Focus, workout.DurationMinutes, workout.Effort, formatTime(workout.OccurredAt))
	if err != nil {
		return domain.Workout{}, err
	}
	if workout.ID, err = res.LastInsertId(); err != nil {
		return domain.Workout{}, err
	}
	workout.OccurredAt = truncate(workout.OccurredAt)
	return workout, nil
}

// ListWorkouts returns workouts newest first.
func (s *Store) ListWorkouts(ctx context.Context) ([]domain.Workout, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, focus, duration_minutes, effort, occurred_at FROM workouts ORDER BY occurred_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	workouts := make([]domain.Workout, 0)
	for rows.Next() {
		var (
			w          domain.Workout
			occurredAt string
		)
		if err := rows.Scan(&w.ID, &w.Focus, &w.DurationMinutes, &w.Effort, &occurredAt); err != nil {
			return nil, err
		}
		if w.OccurredAt, err = parseTime(occurredAt); err != nil {
			return nil, err
		}
		workouts = append(workouts, w)
	}
	return workouts, rows.Err()
}

// CreateWorkLog stores a productivity entry.
func (s *Store) CreateWorkLog(ctx context.Context, entry domain.WorkLog) (domain.WorkLog, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO work_logs (tasks_completed, productivity, notes, occurred_at) VALUES (?,?,?,?)`,
		entry.TasksCompleted, entry.Productivity, entry.Notes, formatTime(entry.OccurredAt))
	if err != nil {
		return domain.WorkLog{}, err
	}
	if entry.ID, err = res.LastInsertId(); err != nil {
		return domain.WorkLog{}, err
	}
	entry.OccurredAt = truncate(entry.OccurredAt)
	return entry, nil
}

// ListWorkLogs returns productivity entries newest first.
func (s *Store) ListWorkLogs(ctx context.Context) ([]domain.WorkLog, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, tasks_completed, productivity, notes, occurred_at FROM work_logs ORDER BY occurred_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.WorkLog, 0)
	for rows.Next() {
		var (
			e          domain.WorkLog
			occurredAt string
		)
		if err := rows.Scan(&e.ID, &e.TasksCompleted, &e.Productivity, &e.Notes, &occurredAt); err != nil {
			return nil, err
		}
		if e.OccurredAt, err = parseTime(occurredAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var deleteStatements = map[domain.EntityKind]string{
	domain.KindBooks:    `DELETE FROM books WHERE id = ?`,
	domain.KindRuns:     `DELETE FROM runs WHERE id = ?`,
	domain.KindWorkouts: `DELETE FROM workouts WHERE id = ?`,
	domain.KindWork:     `DELETE FROM work_logs WHERE id = ?`,
}

// Delete removes one record of kind.
func (s *Store) Delete(ctx context.Context, kind domain.EntityKind, id int64) error {
	stmt, ok := deleteStatements[kind]
	if !ok {
		return &domain.ValidationError{Field: "kind", Reason: fmt.Sprintf("unsupported kind %q", kind)}
	}
	res, err := s.db.ExecContext(ctx, stmt, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (domain.LocalRun, error) {
	var (
		run          domain.LocalRun
		trainingType string
		externalID   sql.NullInt64
		externalName sql.NullString
		pace         sql.NullString
		avgSpeed     sql.NullFloat64
		elevation    sql.NullFloat64
		occurredAt   string
		createdAt    string
	)
	if err := row.Scan(&run.ID, &run.DistanceKm, &run.DurationMinutes, &trainingType, &run.Location, &externalID, &externalName, &pace, &avgSpeed, &elevation, &occurredAt, &createdAt); err != nil {
		return domain.LocalRun{}, err
	}
	run.TrainingType = runmetrics.TrainingType(trainingType)
	if externalID.Valid {
		id := externalID.Int64
		run.ExternalID = &id
	}
	run.ExternalName = externalName.String
	run.Pace = pace.String
	run.AverageSpeedKmh = avgSpeed.Float64
	run.TotalElevationGainM = elevation.Float64

	var err error
	if run.OccurredAt, err = parseTime(occurredAt); err != nil {
		return domain.LocalRun{}, err
	}
	if run.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.LocalRun{}, err
	}
	return run, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", value, err)
	}
	return t, nil
}

// truncate normalises t to the value parseTime reads back.
func truncate(t time.Time) time.Time {
	return t.UTC().Round(0)
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
