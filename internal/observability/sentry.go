// Package observability holds the prometheus collectors and error reporting
// used across the service.
package observability

import (
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// SentryConfig configures error tracking.
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
}

// Reporter forwards errors that never reach an HTTP caller.
type Reporter interface {
	Report(err error, tags map[string]string)
	Flush(timeout time.Duration) bool
}

// NoopReporter discards reports.
type NoopReporter struct{}

// Report implements Reporter.
func (NoopReporter) Report(error, map[string]string) {}

// Flush implements Reporter.
func (NoopReporter) Flush(time.Duration) bool { return true }

// SentryReporter sends reports to Sentry.
type SentryReporter struct {
	logger *zap.Logger
}

// NewReporter initialises Sentry. An empty DSN disables reporting and returns a
// NoopReporter.
func NewReporter(cfg SentryConfig, logger *zap.Logger) (Reporter, error) {
	if cfg.DSN == "" {
		logger.Info("sentry DSN not configured, error tracking disabled")
		return NoopReporter{}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			if event.Request != nil && event.Request.Headers != nil {
				delete(event.Request.Headers, "Authorization")
				delete(event.Request.Headers, "Cookie")
				delete(event.Request.Headers, "X-Hub-Signature-256")
			}
			return event
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sentry init: %w", err)
	}

	logger.Info("sentry initialized", zap.String("environment", cfg.Environment))
	return &SentryReporter{logger: logger}, nil
}

// Report implements Reporter.
func (r *SentryReporter) Report(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		scope.SetTag("error_kind", errorKind(err))
		sentry.CaptureException(err)
	})
	r.logger.Debug("error reported to sentry", zap.Error(err))
}

// Flush implements Reporter.
func (r *SentryReporter) Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

func errorKind(err error) string {
	var unwrapped interface{ Unwrap() error }
	if errors.As(err, &unwrapped) {
		if inner := unwrapped.Unwrap(); inner != nil {
			return fmt.Sprintf("%T", inner)
		}
	}
	return fmt.Sprintf("%T", err)
}
