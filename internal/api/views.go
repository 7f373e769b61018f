package api

import (
	"time"

	"example.com/hobbytracker/internal/domain"
)

// CreateBookRequest is the payload for POST /v1/books.
type CreateBookRequest struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Pages  int    `json:"pages"`
	Cover  string `json:"cover"`
}

// UpdateBookRequest is the partial payload for PUT /v1/books/{id}.
type UpdateBookRequest struct {
	CurrentPage *int    `json:"current_page"`
	Status      *string `json:"status"`
	Rating      *int    `json:"rating"`
	Summary     *string `json:"summary"`
}

func (r UpdateBookRequest) toUpdate() domain.BookUpdate {
	update := domain.BookUpdate{
		CurrentPage: r.CurrentPage,
		Rating:      r.Rating,
		Summary:     r.Summary,
	}
	if r.Status != nil {
		status := domain.BookStatus(*r.Status)
		update.Status = &status
	}
	return update
}

// CreateRunRequest is the payload for POST /v1/runs.
type CreateRunRequest struct {
	DistanceKm      float64 `json:"distance_km"`
	DurationMinutes int     `json:"duration_minutes"`
	TrainingType    string  `json:"training_type"`
	Location        string  `json:"location"`
}

// CreateWorkoutRequest is the payload for POST /v1/workouts.
type CreateWorkoutRequest struct {
	Focus           string `json:"focus"`
	DurationMinutes int    `json:"duration_minutes"`
	Effort          int    `json:"effort"`
}

// CreateWorkLogRequest is the payload for POST /v1/work.
type CreateWorkLogRequest struct {
	TasksCompleted int    `json:"tasks_completed"`
	Productivity   int    `json:"productivity"`
	Notes          string `json:"notes"`
}

// ManualSyncResponse is returned by POST /sync/manual.
type ManualSyncResponse struct {
	Message string  `json:"message"`
	Run     RunView `json:"run"`
}

// RunView exposes a stored run.
type RunView struct {
	ID                  int64     `json:"id"`
	DistanceKm          float64   `json:"distance_km"`
	DurationMinutes     int       `json:"duration_minutes"`
	TrainingType        string    `json:"training_type"`
	Location            string    `json:"location"`
	ExternalID          *int64    `json:"external_id"`
	ExternalName        string    `json:"external_name,omitempty"`
	Pace                string    `json:"pace,omitempty"`
	AverageSpeedKmh     float64   `json:"average_speed_kmh"`
	TotalElevationGainM float64   `json:"total_elevation_gain"`
	OccurredAt          time.Time `json:"occurred_at"`
	CreatedAt           time.Time `json:"created_at"`
}

// ListRunsResponse packages a page of runs.
type ListRunsResponse struct {
	Items      []RunView `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// BookView exposes a book.
type BookView struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	TotalPages  int       `json:"total_pages"`
	CurrentPage int       `json:"current_page"`
	CoverURL    string    `json:"cover_url,omitempty"`
	Status      string    `json:"status"`
	Rating      *int      `json:"rating"`
	Summary     string    `json:"summary,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WorkoutView exposes a workout.
type WorkoutView struct {
	ID              int64     `json:"id"`
	Focus           string    `json:"focus"`
	DurationMinutes int       `json:"duration_minutes"`
	Effort          int       `json:"effort"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// WorkLogView exposes a work log entry.
type WorkLogView struct {
	ID             int64     `json:"id"`
	TasksCompleted int       `json:"tasks_completed"`
	Productivity   int       `json:"productivity"`
	Notes          string    `json:"notes"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// SummaryResponse bundles every record list.
type SummaryResponse struct {
	Books    []BookView    `json:"books"`
	Runs     []RunView     `json:"runs"`
	Workouts []WorkoutView `json:"workouts"`
	Work     []WorkLogView `json:"work"`
}

func toRunView(run domain.LocalRun) RunView {
	return RunView{
		ID:                  run.ID,
		DistanceKm:          run.DistanceKm,
		DurationMinutes:     run.DurationMinutes,
		TrainingType:        string(run.TrainingType),
		Location:            run.Location,
		ExternalID:          run.ExternalID,
		ExternalName:        run.ExternalName,
		Pace:                run.Pace,
		AverageSpeedKmh:     run.AverageSpeedKmh,
		TotalElevationGainM: run.TotalElevationGainM,
		OccurredAt:          run.OccurredAt,
		CreatedAt:           run.CreatedAt,
	}
}

func toBookView(book domain.Book) BookView {
	return BookView{
		ID:          book.ID,
		Title:       book.Title,
		Author:      book.Author,
		TotalPages:  book.TotalPages,
		CurrentPage: book.CurrentPage,
		CoverURL:    book.CoverURL,
		Status:      string(book.Status),
		Rating:      book.Rating,
		Summary:     book.Summary,
		UpdatedAt:   book.UpdatedAt,
	}
}

func toWorkoutView(workout domain.Workout) WorkoutView {
	return WorkoutView{
		ID:              workout.ID,
		Focus:           workout.Focus,
		DurationMinutes: workout.DurationMinutes,
		Effort:          workout.Effort,
		OccurredAt:      workout.OccurredAt,
	}
}

func toWorkLogView(entry domain.WorkLog) WorkLogView {
	return WorkLogView{
		ID:             entry.ID,
		TasksCompleted: entry.TasksCompleted,
		Productivity:   entry.Productivity,
		Notes:          entry.Notes,
		OccurredAt:     entry.OccurredAt,
	}
}

func toSummaryResponse(summary domain.Summary) SummaryResponse {
	resp := SummaryResponse{
		Books:    make([]BookView, 0, len(summary.Books)),
		Runs:     make([]RunView, 0, len(summary.Runs)),
		Workouts: make([]WorkoutView, 0, len(summary.Workouts)),
		Work:     make([]WorkLogView, 0, len(summary.Work)),
	}
	for _, book := range summary.Books {
		resp.Books = append(resp.Books, toBookView(book))
	}
	for _, run := range summary.Runs {
		resp.Runs = append(resp.Runs, toRunView(run))
	}
	for _, workout := range summary.Workouts {
		resp.Workouts = append(resp.Workouts, toWorkoutView(workout))
	}
	for _, entry := range summary.Work {
		resp.Work = append(resp.Work, toWorkLogView(entry))
	}
	return resp
}
