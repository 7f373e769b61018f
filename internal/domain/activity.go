package domain

import (
	"time"

	"example.com/hobbytracker/internal/runmetrics"
)

// DefaultLocation labels runs whose activity carries no timezone.
const DefaultLocation = "Strava"

// Activity is a normalized record fetched from the remote fitness platform. It
// is built per fetch and discarded once mapped to a LocalRun.
type Activity struct {
	ExternalID          int64   `json:"id"`
	Name                string  `json:"name"`
	SportType           string  `json:"type"`
	DistanceKm          float64 `json:"distance_km"`
	MovingTime          string  `json:"moving_time"`
	ElapsedTime         string  `json:"elapsed_time"`
	Pace                string  `json:"pace,omitempty"`
	AverageSpeedKmh     float64 `json:"average_speed_kmh"`
	MaxSpeedKmh         float64 `json:"max_speed_kmh"`
	TotalElevationGainM float64 `json:"total_elevation_gain"`
	StartDate           string  `json:"start_date,omitempty"`
	StartDateLocal      string  `json:"start_date_local,omitempty"`
	Timezone            string  `json:"timezone,omitempty"`
	KudosCount          int     `json:"kudos_count"`
	AchievementCount    int     `json:"achievement_count"`
}

// LocalRun is the persisted running record. ExternalID is nil for runs logged
// by hand and unique otherwise.
type LocalRun struct {
	ID                  int64
	DistanceKm          float64
	DurationMinutes     int
	TrainingType        runmetrics.TrainingType
	Location            string
	ExternalID          *int64
	ExternalName        string
	Pace                string
	AverageSpeedKmh     float64
	TotalElevationGainM float64
	OccurredAt          time.Time
	CreatedAt           time.Time
}

// Cursor models the keyset pagination token for run listings.
type Cursor struct {
	OccurredAt time.Time
	ID         int64
}

// BuildRun applies the derived metrics to an activity. A malformed moving time
// yields zero minutes and is returned as the second value so callers can log it.
func BuildRun(activity Activity, now time.Time) (LocalRun, error) {
	minutes, formatErr := runmetrics.DurationMinutes(activity.MovingTime)

	location := activity.Timezone
	if location == "" {
		location = DefaultLocation
	}

	externalID := activity.ExternalID
	return LocalRun{
		DistanceKm:          activity.DistanceKm,
		DurationMinutes:     minutes,
		TrainingType:        runmetrics.ClassifyTrainingType(activity.Pace),
		Location:            location,
		ExternalID:          &externalID,
		ExternalName:        activity.Name,
		Pace:                activity.Pace,
		AverageSpeedKmh:     activity.AverageSpeedKmh,
		TotalElevationGainM: activity.TotalElevationGainM,
		OccurredAt:          occurredAt(activity.StartDateLocal, now),
	}, formatErr
}

var startDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func occurredAt(startDateLocal string, now time.Time) time.Time {
	if startDateLocal == "" {
		return now
	}
	for _, layout := range startDateLayouts {
		if ts, err := time.Parse(layout, startDateLocal); err == nil {
			return ts
		}
	}
	return now
}
