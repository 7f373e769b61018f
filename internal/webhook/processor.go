package webhook

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"example.com/hobbytracker/internal/domain"
	"example.com/hobbytracker/internal/observability"
)

// Outcome labels the terminal state of one delivery.
type Outcome string

const (
	OutcomeCreated           Outcome = "created"
	OutcomeAlreadySynced     Outcome = "already_synced"
	OutcomeIgnored           Outcome = "ignored"
	OutcomeDuplicateDelivery Outcome = "duplicate_delivery"
	OutcomeSignatureInvalid  Outcome = "signature_invalid"
	OutcomeFailed            Outcome = "failed"
	OutcomeDisabled          Outcome = "disabled"
)

// DefaultProcessTimeout bounds one detached ingestion.
const DefaultProcessTimeout = 30 * time.Second

// releaseTimeout bounds returning a dedupe claim once ingestion has failed,
// which may be because the processing deadline already passed.
const releaseTimeout = 5 * time.Second

// Ingester stores the activity named by a push event.
type Ingester interface {
	IngestActivity(ctx context.Context, externalID int64) (domain.SyncResult, error)
}

// ErrorReporter forwards failures that no caller will see.
type ErrorReporter interface {
	Report(err error, tags map[string]string)
}

// Delivery is one received push, captured before the acknowledgement is sent.
type Delivery struct {
	ID        string
	Body      []byte
	Signature string
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithDeduper installs a redelivery filter.
func WithDeduper(deduper Deduper) Option {
	return func(p *Processor) {
		p.deduper = deduper
	}
}

// WithReporter installs an error reporter for failed ingestions.
func WithReporter(reporter ErrorReporter) Option {
	return func(p *Processor) {
		p.reporter = reporter
	}
}

// WithTimeout overrides DefaultProcessTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(p *Processor) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// Processor runs deliveries after they have been acknowledged. Errors end at
// the processor: they are logged, counted and reported, never returned.
type Processor struct {
	ingester      Ingester
	signingSecret string
	deduper       Deduper
	reporter      ErrorReporter
	logger        *zap.Logger
	timeout       time.Duration
	inflight      sync.WaitGroup
}

// NewProcessor constructs a Processor.
func NewProcessor(ingester Ingester, signingSecret string, opts ...Option) *Processor {
	p := &Processor{
		ingester:      ingester,
		signingSecret: signingSecret,
		deduper:       NoopDeduper{},
		logger:        zap.NewNop(),
		timeout:       DefaultProcessTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dispatch processes d on a detached goroutine. Cancellation of ctx, such as
// the inbound request finishing, does not stop processing.
func (p *Processor) Dispatch(ctx context.Context, d Delivery) {
	detached := context.WithoutCancel(ctx)
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("webhook processing panic: %v", r)
				p.logger.Error("webhook processing panicked", zap.String("delivery_id", d.ID), zap.Any("panic", r))
				p.report(err, d, Event{})
				observability.RecordWebhookOutcome(string(OutcomeFailed))
			}
		}()

		ctx, cancel := context.WithTimeout(detached, p.timeout)
		defer cancel()
		p.Process(ctx, d)
	}()
}

// Wait blocks until every dispatched delivery finishes or ctx ends.
func (p *Processor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Process runs one delivery synchronously and returns its outcome.
func (p *Processor) Process(ctx context.Context, d Delivery) Outcome {
	outcome := p.process(ctx, d)
	observability.RecordWebhookOutcome(string(outcome))
	return outcome
}

func (p *Processor) process(ctx context.Context, d Delivery) Outcome {
	logger := p.logger.With(zap.String("delivery_id", d.ID))

	if err := VerifySignature(p.signingSecret, d.Body, d.Signature); err != nil {
		logger.Warn("dropping webhook delivery with invalid signature")
		return OutcomeSignatureInvalid
	}

	event, err := DecodeEvent(d.Body)
	if err != nil {
		logger.Warn("dropping undecodable webhook delivery", zap.Error(err))
		return OutcomeFailed
	}
	logger = logger.With(
		zap.String("object_type", event.ObjectType),
		zap.String("aspect_type", event.AspectType),
		zap.Int64("object_id", event.ObjectID),
	)

	if !event.TriggersIngestion() {
		logger.Debug("ignoring webhook event")
		return OutcomeIgnored
	}

	key := event.DedupeKey()
	claimed, err := p.deduper.Claim(ctx, key, d.ID)
	if err != nil {
		logger.Warn("dedupe claim failed, processing anyway", zap.Error(err))
		claimed = true
	}
	if !claimed {
		logger.Info("skipping redelivered webhook event")
		return OutcomeDuplicateDelivery
	}

	result, err := p.ingester.IngestActivity(ctx, event.ObjectID)
	if err != nil {
		p.release(ctx, key, logger)
		var cfgErr *domain.ConfigurationError
		if errors.As(err, &cfgErr) {
			logger.Warn("activity sync disabled, webhook event dropped", zap.String("setting", cfgErr.Setting))
			return OutcomeDisabled
		}
		logger.Error("webhook ingestion failed", zap.Error(err))
		p.report(err, d, event)
		return OutcomeFailed
	}

	if !result.Created {
		logger.Info("activity already synced", zap.Int64("run_id", result.Run.ID))
		return OutcomeAlreadySynced
	}
	logger.Info("activity synced from webhook", zap.Int64("run_id", result.Run.ID), zap.String("training_type", string(result.Run.TrainingType)))
	return OutcomeCreated
}

func (p *Processor) release(ctx context.Context, key string, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := p.deduper.Release(ctx, key); err != nil {
		logger.Warn("dedupe release failed", zap.Error(err))
	}
}

func (p *Processor) report(err error, d Delivery, event Event) {
	if p.reporter == nil {
		return
	}
	tags := map[string]string{"component": "webhook", "delivery_id": d.ID}
	if event.ObjectID != 0 {
		tags["object_id"] = strconv.FormatInt(event.ObjectID, 10)
	}
	p.reporter.Report(err, tags)
}
