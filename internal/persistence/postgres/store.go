// Package postgres provides the pgx-backed store for runs, records and the
// outbox.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/hobbytracker/internal/domain"
	"example.com/hobbytracker/internal/events"
	"example.com/hobbytracker/internal/observability"
	"example.com/hobbytracker/internal/runmetrics"
)

// Store implements domain.RunRepository and domain.RecordRepository.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// Open connects to databaseURL and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

const runColumns = `id, distance_km, duration_minutes, training_type, location, external_id, external_name, pace, average_speed_kmh, total_elevation_gain_m, occurred_at, created_at`

// FindRunByExternalID returns the run synced from externalID, or nil.
func (s *Store) FindRunByExternalID(ctx context.Context, externalID int64) (*domain.LocalRun, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE external_id = $1`, externalID)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

// InsertRunIfAbsent stores run and its run.synced outbox event in one
// transaction. A concurrent insert of the same external id loses on the unique
// constraint and reads back the winner.
func (s *Store) InsertRunIfAbsent(ctx context.Context, run domain.LocalRun) (domain.LocalRun, bool, error) {
	if run.ExternalID == nil {
		return domain.LocalRun{}, false, errors.New("insert run if absent: external id required")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.LocalRun{}, false, err
	}
	defer tx.Rollback(ctx)

	const insert = `INSERT INTO runs (distance_km, duration_minutes, training_type, location, external_id, external_name, pace, average_speed_kmh, total_elevation_gain_m, occurred_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (external_id) DO NOTHING
        RETURNING id, created_at`

	err = tx.QueryRow(ctx, insert,
		run.DistanceKm,
		run.DurationMinutes,
		string(run.TrainingType),
		run.Location,
		*run.ExternalID,
		nullIfEmpty(run.ExternalName),
		nullIfEmpty(run.Pace),
		run.AverageSpeedKmh,
		run.TotalElevationGainM,
		run.OccurredAt,
	).Scan(&run.ID, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, findErr := scanRun(tx.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE external_id = $1`, *run.ExternalID))
		if findErr != nil {
			return domain.LocalRun{}, false, fmt.Errorf("read existing run: %w", findErr)
		}
		return existing, false, tx.Commit(ctx)
	}
	if err != nil {
		return domain.LocalRun{}, false, err
	}

	payload, err := events.NewRunSynced(run)
	if err != nil {
		return domain.LocalRun{}, false, err
	}
	if err := insertOutbox(ctx, tx, strconv.FormatInt(run.ID, 10), events.RunSyncedType, events.RunEventsTopic, payload.PartitionKey(), payload.DedupeKey(), payload); err != nil {
		return domain.LocalRun{}, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.LocalRun{}, false, err
	}
	observability.RecordRunPersisted(run.CreatedAt)
	return run, true, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, aggregateID, eventType, topic, partitionKey, dedupeKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = tx.Exec(ctx, stmt, "run", aggregateID, eventType, topic, partitionKey, body, dedupeKey)
	return err
}

// CreateRun stores a hand-entered run.
func (s *Store) CreateRun(ctx context.Context, run domain.LocalRun) (domain.LocalRun, error) {
	const insert = `INSERT INTO runs (distance_km, duration_minutes, training_type, location, occurred_at)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`

	if err := s.pool.QueryRow(ctx, insert, run.DistanceKm, run.DurationMinutes, string(run.TrainingType), run.Location, run.OccurredAt).
		Scan(&run.ID, &run.CreatedAt); err != nil {
		return domain.LocalRun{}, err
	}
	return run, nil
}

// ListRuns returns runs newest first, keyset-paginated on (occurred_at, id).
func (s *Store) ListRuns(ctx context.Context, cursor *domain.Cursor, limit int) ([]domain.LocalRun, *domain.Cursor, error) {
	args := []interface{}{limit}
	query := `SELECT ` + runColumns + ` FROM runs`

	if cursor != nil {
		query += ` WHERE (occurred_at, id) < ($2, $3)`
		args = append(args, cursor.OccurredAt, cursor.ID)
	}
	query += ` ORDER BY occurred_at DESC, id DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, args...)
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
	const insert = `INSERT INTO books (title, author, total_pages, current_page, cover_url, status, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id`

	if err := s.pool.QueryRow(ctx, insert, book.Title, book.Author, book.TotalPages, book.CurrentPage, book.CoverURL, string(book.Status), book.UpdatedAt).
		Scan(&book.ID); err != nil {
		return domain.Book{}, err
	}
	return book, nil
}

// UpdateBook applies the set fields of update. Column names come from a fixed
// list; only values are parameters.
func (s *Store) UpdateBook(ctx context.Context, id int64, update domain.BookUpdate) error {
	sets := make([]string, 0, 5)
	args := make([]interface{}, 0, 6)
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.CurrentPage != nil {
		add("current_page", *update.CurrentPage)
	}
	if update.Status != nil {
		add("status", string(*update.Status))
	}
	if update.Rating != nil {
		add("rating", *update.Rating)
	}
	if update.Summary != nil {
		add("summary", *update.Summary)
	}
	add("updated_at", s.now().UTC())
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE books SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

// ListBooks returns books most recently updated first.
func (s *Store) ListBooks(ctx context.Context) ([]domain.Book, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, title, author, total_pages, current_page, cover_url, status, rating, summary, updated_at
        FROM books ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := make([]domain.Book, 0)
	for rows.Next() {
		var (
			book   domain.Book
			status string
		)
		if err := rows.Scan(&book.ID, &book.Title, &book.Author, &book.TotalPages, &book.CurrentPage, &book.CoverURL, &status, &book.Rating, &book.Summary, &book.UpdatedAt); err != nil {
			return nil, err
		}
		book.Status = domain.BookStatus(status)
		books = append(books, book)
	}
	return books, rows.Err()
}

// CreateWorkout stores a workout.
func (s *Store) CreateWorkout(ctx context.Context, workout domain.Workout) (domain.Workout, error) {
	const insert = `INSERT INTO workouts (focus, duration_minutes, effort, occurred_at) VALUES ($1,$2,$3,$4) RETURNING id`
	if err := s.pool.QueryRow(ctx, insert, workout.Focus, workout.DurationMinutes, workout.Effort, workout.OccurredAt).Scan(&workout.ID); err != nil {
		return domain.Workout{}, err
	}
	return workout, nil
}

// ListWorkouts returns workouts newest first.
func (s *Store) ListWorkouts(ctx context.Context) ([]domain.Workout, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, focus, duration_minutes, effort, occurred_at FROM workouts ORDER BY occurred_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	workouts := make([]domain.Workout, 0)
	for rows.Next() {
		var w domain.Workout
		if err := rows.Scan(&w.ID, &w.Focus, &w.DurationMinutes, &w.Effort, &w.OccurredAt); err != nil {
			return nil, err
		}
		workouts = append(workouts, w)
	}
	return workouts, rows.Err()
}

// CreateWorkLog stores a productivity entry.
func (s *Store) CreateWorkLog(ctx context.Context, entry domain.WorkLog) (domain.WorkLog, error) {
	const insert = `INSERT INTO work_logs (tasks_completed, productivity, notes, occurred_at) VALUES ($1,$2,$3,$4) RETURNING id`
	if err := s.pool.QueryRow(ctx, insert, entry.TasksCompleted, entry.Productivity, entry.Notes, entry.OccurredAt).Scan(&entry.ID); err != nil {
		return domain.WorkLog{}, err
	}
	return entry, nil
}

// ListWorkLogs returns productivity entries newest first.
func (s *Store) ListWorkLogs(ctx context.Context) ([]domain.WorkLog, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, tasks_completed, productivity, notes, occurred_at FROM work_logs ORDER BY occurred_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.WorkLog, 0)
	for rows.Next() {
		var e domain.WorkLog
		if err := rows.Scan(&e.ID, &e.TasksCompleted, &e.Productivity, &e.Notes, &e.OccurredAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var deleteStatements = map[domain.EntityKind]string{
	domain.KindBooks:    `DELETE FROM books WHERE id = $1`,
	domain.KindRuns:     `DELETE FROM runs WHERE id = $1`,
	domain.KindWorkouts: `DELETE FROM workouts WHERE id = $1`,
	domain.KindWork:     `DELETE FROM work_logs WHERE id = $1`,
}

// Delete removes one record of kind.
func (s *Store) Delete(ctx context.Context, kind domain.EntityKind, id int64) error {
	stmt, ok := deleteStatements[kind]
	if !ok {
		return &domain.ValidationError{Field: "kind", Reason: fmt.Sprintf("unsupported kind %q", kind)}
	}
	tag, err := s.pool.Exec(ctx, stmt, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

func scanRun(row pgx.Row) (domain.LocalRun, error) {
	var (
		run          domain.LocalRun
		trainingType string
		externalName *string
		pace         *string
		avgSpeed     *float64
		elevation    *float64
	)
	if err := row.Scan(&run.ID, &run.DistanceKm, &run.DurationMinutes, &trainingType, &run.Location, &run.ExternalID, &externalName, &pace, &avgSpeed, &elevation, &run.OccurredAt, &run.CreatedAt); err != nil {
		return domain.LocalRun{}, err
	}
	run.TrainingType = runmetrics.TrainingType(trainingType)
	if externalName != nil {
		run.ExternalName = *externalName
	}
	if pace != nil {
		run.Pace = *pace
	}
	if avgSpeed != nil {
		run.AverageSpeedKmh = *avgSpeed
	}
	if elevation != nil {
		run.TotalElevationGainM = *elevation
	}
	return run, nil
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
