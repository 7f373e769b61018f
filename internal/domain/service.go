// Package domain defines the business logic for the hobby tracker: activity
// sync from the remote fitness platform and the personal record logs.
package domain

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ActivitySource fetches normalized activities from the remote platform.
type ActivitySource interface {
	LatestActivity(ctx context.Context) (Activity, error)
	ActivityByID(ctx context.Context, externalID int64) (Activity, error)
}

// RunRepository captures the run persistence operations needed by sync.
type RunRepository interface {
	FindRunByExternalID(ctx context.Context, externalID int64) (*LocalRun, error)
	// InsertRunIfAbsent stores run unless a row with the same ExternalID exists,
	// in which case the existing row is returned with created=false. The check
	// and the insert are atomic.
	InsertRunIfAbsent(ctx context.Context, run LocalRun) (LocalRun, bool, error)
}

// UnavailableSource stands in for the remote platform while sync is disabled.
// Every call returns Err.
type UnavailableSource struct {
	Err error
}

// LatestActivity implements ActivitySource.
func (s UnavailableSource) LatestActivity(context.Context) (Activity, error) {
	return Activity{}, s.Err
}

// ActivityByID implements ActivitySource.
func (s UnavailableSource) ActivityByID(context.Context, int64) (Activity, error) {
	return Activity{}, s.Err
}

// SyncResult is the outcome of syncing one activity. Created is false when the
// activity had already been stored; Run is then the existing row.
type SyncResult struct {
	Created bool
	Run     LocalRun
}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithLogger overrides the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the time source used when an activity has no start date.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service orchestrates activity sync from the remote platform into local runs.
type Service struct {
	source ActivitySource
	runs   RunRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewService constructs a Service.
func NewService(source ActivitySource, runs RunRepository, opts ...Option) *Service {
	s := &Service{
		source: source,
		runs:   runs,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncLatest fetches the most recent remote activity and stores it unless it
// was synced before. Calling it repeatedly without new remote activity never
// duplicates a run.
func (s *Service) SyncLatest(ctx context.Context) (SyncResult, error) {
	activity, err := s.source.LatestActivity(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("fetch latest activity: %w", err)
	}
	return s.store(ctx, activity)
}

// IngestActivity fetches one activity by its remote id and stores it unless it
// was synced before.
func (s *Service) IngestActivity(ctx context.Context, externalID int64) (SyncResult, error) {
	activity, err := s.source.ActivityByID(ctx, externalID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("fetch activity %d: %w", externalID, err)
	}
	return s.store(ctx, activity)
}

func (s *Service) store(ctx context.Context, activity Activity) (SyncResult, error) {
	existing, err := s.runs.FindRunByExternalID(ctx, activity.ExternalID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("lookup run for activity %d: %w", activity.ExternalID, err)
	}
	if existing != nil {
		return SyncResult{Created: false, Run: *existing}, nil
	}

	run, formatErr := BuildRun(activity, s.now().UTC())
	if formatErr != nil {
		s.logger.Warn("activity moving time not parseable, storing zero minutes",
			zap.Int64("external_id", activity.ExternalID),
			zap.String("moving_time", activity.MovingTime),
			zap.Error(formatErr))
	}

	stored, created, err := s.runs.InsertRunIfAbsent(ctx, run)
	if err != nil {
		return SyncResult{}, fmt.Errorf("store run for activity %d: %w", activity.ExternalID, err)
	}
	return SyncResult{Created: created, Run: stored}, nil
}
