package domain

import (
	"fmt"
	"time"
)

// EntityKind enumerates the record tables that may be deleted by id. Each kind
// maps to a fixed statement in the stores; caller input never reaches SQL text.
type EntityKind string

const (
	KindBooks    EntityKind = "books"
	KindRuns     EntityKind = "runs"
	KindWorkouts EntityKind = "workouts"
	KindWork     EntityKind = "work"
)

// ParseEntityKind validates a kind taken from a request path.
func ParseEntityKind(raw string) (EntityKind, error) {
	switch kind := EntityKind(raw); kind {
	case KindBooks, KindRuns, KindWorkouts, KindWork:
		return kind, nil
	}
	return "", &ValidationError{Field: "kind", Reason: fmt.Sprintf("must be one of books, runs, workouts, work (got %q)", raw)}
}

// BookStatus tracks reading progress.
type BookStatus string

const (
	BookReading  BookStatus = "reading"
	BookFinished BookStatus = "finished"
	BookPaused   BookStatus = "paused"
)

// Book is a reading log entry.
type Book struct {
	ID          int64
	Title       string
	Author      string
	TotalPages  int
	CurrentPage int
	CoverURL    string
	Status      BookStatus
	Rating      *int
	Summary     string
	UpdatedAt   time.Time
}

// BookUpdate carries the optional fields of a partial book update.
type BookUpdate struct {
	CurrentPage *int
	Status      *BookStatus
	Rating      *int
	Summary     *string
}

// Empty reports whether no field is set.
func (u BookUpdate) Empty() bool {
	return u.CurrentPage == nil && u.Status == nil && u.Rating == nil && u.Summary == nil
}

// Validate checks ranges of the supplied fields.
func (u BookUpdate) Validate() error {
	if u.CurrentPage != nil && *u.CurrentPage < 0 {
		return &ValidationError{Field: "current_page", Reason: "must be >= 0"}
	}
	if u.Rating != nil && (*u.Rating < 1 || *u.Rating > 10) {
		return &ValidationError{Field: "rating", Reason: "must be between 1 and 10"}
	}
	if u.Status != nil {
		switch *u.Status {
		case BookReading, BookFinished, BookPaused:
		default:
			return &ValidationError{Field: "status", Reason: "must be reading, finished or paused"}
		}
	}
	return nil
}

// Workout is a strength or gym session.
type Workout struct {
	ID              int64
	Focus           string
	DurationMinutes int
	Effort          int
	OccurredAt      time.Time
}

// WorkLog is a daily productivity entry.
type WorkLog struct {
	ID             int64
	TasksCompleted int
	Productivity   int
	Notes          string
	OccurredAt     time.Time
}

// Summary bundles every record list for the dashboard.
type Summary struct {
	Books    []Book
	Runs     []LocalRun
	Workouts []Workout
	Work     []WorkLog
}
