package domain

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"example.com/hobbytracker/internal/runmetrics"
)

// RecordRepository captures the persistence operations of the record logs.
type RecordRepository interface {
	CreateBook(ctx context.Context, book Book) (Book, error)
	UpdateBook(ctx context.Context, id int64, update BookUpdate) error
	CreateRun(ctx context.Context, run LocalRun) (LocalRun, error)
	CreateWorkout(ctx context.Context, workout Workout) (Workout, error)
	CreateWorkLog(ctx context.Context, entry WorkLog) (WorkLog, error)
	Delete(ctx context.Context, kind EntityKind, id int64) error

	ListBooks(ctx context.Context) ([]Book, error)
	ListRuns(ctx context.Context, cursor *Cursor, limit int) ([]LocalRun, *Cursor, error)
	ListWorkouts(ctx context.Context) ([]Workout, error)
	ListWorkLogs(ctx context.Context) ([]WorkLog, error)
}

// summaryRunLimit bounds the runs included in the dashboard summary.
const summaryRunLimit = 500

// RecordService handles the hand-entered logs.
type RecordService struct {
	repo RecordRepository
	now  func() time.Time
}

// NewRecordService constructs a RecordService.
func NewRecordService(repo RecordRepository) *RecordService {
	return &RecordService{repo: repo, now: time.Now}
}

// AddBook records a new book with no pages read.
func (s *RecordService) AddBook(ctx context.Context, title, author string, pages int, coverURL string) (Book, error) {
	if strings.TrimSpace(title) == "" {
		return Book{}, &ValidationError{Field: "title", Reason: "is required"}
	}
	if pages < 0 {
		return Book{}, &ValidationError{Field: "pages", Reason: "must be >= 0"}
	}
	return s.repo.CreateBook(ctx, Book{
		Title:      strings.TrimSpace(title),
		Author:     strings.TrimSpace(author),
		TotalPages: pages,
		CoverURL:   coverURL,
		Status:     BookReading,
		UpdatedAt:  s.now().UTC(),
	})
}

// UpdateBook applies a partial update.
func (s *RecordService) UpdateBook(ctx context.Context, id int64, update BookUpdate) error {
	if update.Empty() {
		return &ValidationError{Field: "body", Reason: "must set at least one field"}
	}
	if err := update.Validate(); err != nil {
		return err
	}
	return s.repo.UpdateBook(ctx, id, update)
}

// AddRun records a run entered by hand. It never carries an external id.
func (s *RecordService) AddRun(ctx context.Context, distanceKm float64, durationMinutes int, trainingType runmetrics.TrainingType, location string) (LocalRun, error) {
	if distanceKm <= 0 {
		return LocalRun{}, &ValidationError{Field: "distance_km", Reason: "must be > 0"}
	}
	if durationMinutes <= 0 {
		return LocalRun{}, &ValidationError{Field: "duration_minutes", Reason: "must be > 0"}
	}
	if trainingType == "" {
		trainingType = runmetrics.TrainingRodagem
	}
	if !trainingType.Valid() {
		return LocalRun{}, &ValidationError{Field: "training_type", Reason: "must be Tiro, Longo or Rodagem"}
	}
	return s.repo.CreateRun(ctx, LocalRun{
		DistanceKm:      runmetrics.Round2(distanceKm),
		DurationMinutes: durationMinutes,
		TrainingType:    trainingType,
		Location:        strings.TrimSpace(location),
		OccurredAt:      s.now().UTC(),
	})
}

// AddWorkout records a workout session.
func (s *RecordService) AddWorkout(ctx context.Context, focus string, durationMinutes, effort int) (Workout, error) {
	if strings.TrimSpace(focus) == "" {
		return Workout{}, &ValidationError{Field: "focus", Reason: "is required"}
	}
	if durationMinutes <= 0 {
		return Workout{}, &ValidationError{Field: "duration_minutes", Reason: "must be > 0"}
	}
	return s.repo.CreateWorkout(ctx, Workout{
		Focus:           strings.TrimSpace(focus),
		DurationMinutes: durationMinutes,
		Effort:          effort,
		OccurredAt:      s.now().UTC(),
	})
}

// AddWorkLog records a productivity entry.
func (s *RecordService) AddWorkLog(ctx context.Context, tasksCompleted, productivity int, notes string) (WorkLog, error) {
	if tasksCompleted < 0 {
		return WorkLog{}, &ValidationError{Field: "tasks_completed", Reason: "must be >= 0"}
	}
	return s.repo.CreateWorkLog(ctx, WorkLog{
		TasksCompleted: tasksCompleted,
		Productivity:   productivity,
		Notes:          notes,
		OccurredAt:     s.now().UTC(),
	})
}

// Delete removes a record of the given kind.
func (s *RecordService) Delete(ctx context.Context, kind EntityKind, id int64) error {
	return s.repo.Delete(ctx, kind, id)
}

// ListRuns pages through runs newest first.
func (s *RecordService) ListRuns(ctx context.Context, cursor *Cursor, limit int) ([]LocalRun, *Cursor, error) {
	return s.repo.ListRuns(ctx, cursor, limit)
}

// Summary loads every record list concurrently.
func (s *RecordService) Summary(ctx context.Context) (Summary, error) {
	var summary Summary
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		books, err := s.repo.ListBooks(gctx)
		summary.Books = books
		return err
	})
	g.Go(func() error {
		runs, _, err := s.repo.ListRuns(gctx, nil, summaryRunLimit)
		summary.Runs = runs
		return err
	})
	g.Go(func() error {
		workouts, err := s.repo.ListWorkouts(gctx)
		summary.Workouts = workouts
		return err
	})
	g.Go(func() error {
		work, err := s.repo.ListWorkLogs(gctx)
		summary.Work = work
		return err
	})

	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return summary, nil
}
