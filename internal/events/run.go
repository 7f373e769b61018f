// Package events defines the payloads published through the outbox.
package events

import (
	"fmt"
	"time"

	"example.com/hobbytracker/internal/domain"
)

const (
	// RunSyncedType is the event_type of RunSynced.
	RunSyncedType = "run.synced"
	// RunEventsTopic receives every run event.
	RunEventsTopic = "run_events"
)

// RunSynced is emitted when an activity from the remote platform is stored as
// a new run.
type RunSynced struct {
	RunID           int64     `json:"run_id"`
	ExternalID      int64     `json:"external_id"`
	Name            string    `json:"name"`
	DistanceKm      float64   `json:"distance_km"`
	DurationMinutes int       `json:"duration_minutes"`
	TrainingType    string    `json:"training_type"`
	Pace            string    `json:"pace,omitempty"`
	Location        string    `json:"location"`
	OccurredAt      time.Time `json:"occurred_at"`
	SyncedAt        time.Time `json:"synced_at"`
}

// NewRunSynced builds the payload for a stored run.
func NewRunSynced(run domain.LocalRun) (RunSynced, error) {
	if run.ExternalID == nil {
		return RunSynced{}, fmt.Errorf("run %d has no external id", run.ID)
	}
	return RunSynced{
		RunID:           run.ID,
		ExternalID:      *run.ExternalID,
		Name:            run.ExternalName,
		DistanceKm:      run.DistanceKm,
		DurationMinutes: run.DurationMinutes,
		TrainingType:    string(run.TrainingType),
		Pace:            run.Pace,
		Location:        run.Location,
		OccurredAt:      run.OccurredAt.UTC(),
		SyncedAt:        run.CreatedAt.UTC(),
	}, nil
}

// PartitionKey keeps every event of one remote activity on one partition.
func (e RunSynced) PartitionKey() string {
	return fmt.Sprintf("activity:%d", e.ExternalID)
}

// DedupeKey identifies the event in the outbox.
func (e RunSynced) DedupeKey() string {
	return fmt.Sprintf("%d:%s", e.ExternalID, RunSyncedType)
}
