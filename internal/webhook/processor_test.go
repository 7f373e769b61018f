package webhook

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"example.com/hobbytracker/internal/domain"
)

const testSecret = "signing-secret"

type stubIngester struct {
	mu      sync.Mutex
	calls   []int64
	seen    map[int64]bool
	err     error
	release chan struct{}
}

func newStubIngester() *stubIngester {
	return &stubIngester{seen: make(map[int64]bool)}
}

func (s *stubIngester) IngestActivity(ctx context.Context, externalID int64) (domain.SyncResult, error) {
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return domain.SyncResult{}, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, externalID)
	if s.err != nil {
		return domain.SyncResult{}, s.err
	}
	id := externalID
	run := domain.LocalRun{ID: int64(len(s.seen) + 1), ExternalID: &id, CreatedAt: time.Now()}
	if s.seen[externalID] {
		return domain.SyncResult{Created: false, Run: run}, nil
	}
	s.seen[externalID] = true
	return domain.SyncResult{Created: true, Run: run}, nil
}

func (s *stubIngester) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type memoryDeduper struct {
	mu       sync.Mutex
	claims   map[string]string
	released []string
	err      error
}

func newMemoryDeduper() *memoryDeduper {
	return &memoryDeduper{claims: make(map[string]string)}
}

func (m *memoryDeduper) Claim(_ context.Context, key, deliveryID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.claims[key]; ok {
		return false, nil
	}
	m.claims[key] = deliveryID
	return true, nil
}

func (m *memoryDeduper) Release(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, key)
	m.released = append(m.released, key)
	return nil
}

type recordingReporter struct {
	mu   sync.Mutex
	errs []error
	tags []map[string]string
}

func (r *recordingReporter) Report(err error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
	r.tags = append(r.tags, tags)
}

func signedDelivery(body string) Delivery {
	return Delivery{ID: "delivery-1", Body: []byte(body), Signature: SignatureValue(testSecret, []byte(body))}
}

const createEvent = `{"object_type":"activity","object_id":987,"aspect_type":"create","owner_id":1}`

func TestProcessCreatesThenAlreadySynced(t *testing.T) {
	ingester := newStubIngester()
	p := NewProcessor(ingester, testSecret)

	require.Equal(t, OutcomeCreated, p.Process(context.Background(), signedDelivery(createEvent)))
	require.Equal(t, OutcomeAlreadySynced, p.Process(context.Background(), signedDelivery(createEvent)))
	require.Equal(t, []int64{987, 987}, ingester.calls)
}

func TestProcessDropsInvalidSignature(t *testing.T) {
	ingester := newStubIngester()
	p := NewProcessor(ingester, testSecret)

	d := Delivery{ID: "d", Body: []byte(createEvent), Signature: SignatureValue("wrong", []byte(createEvent))}
	require.Equal(t, OutcomeSignatureInvalid, p.Process(context.Background(), d))
	require.Zero(t, ingester.callCount())
}

func TestProcessWithoutSignatureHeader(t *testing.T) {
	ingester := newStubIngester()
	p := NewProcessor(ingester, testSecret)

	require.Equal(t, OutcomeCreated, p.Process(context.Background(), Delivery{ID: "d", Body: []byte(createEvent)}))
}

func TestProcessIgnoresNonCreateEvents(t *testing.T) {
	ingester := newStubIngester()
	p := NewProcessor(ingester, testSecret)

	for _, body := range []string{
		`{"object_type":"activity","object_id":987,"aspect_type":"update"}`,
		`{"object_type":"activity","object_id":987,"aspect_type":"delete"}`,
		`{"object_type":"athlete","object_id":1,"aspect_type":"update","updates":{"authorized":"false"}}`,
	} {
		require.Equal(t, OutcomeIgnored, p.Process(context.Background(), signedDelivery(body)))
	}
	require.Equal(t, OutcomeFailed, p.Process(context.Background(), signedDelivery(`{"object_type":`)))
	require.Zero(t, ingester.callCount())
}

func TestProcessSuppressesRedeliveryWhileClaimed(t *testing.T) {
	ingester := newStubIngester()
	deduper := newMemoryDeduper()
	p := NewProcessor(ingester, testSecret, WithDeduper(deduper))

	require.Equal(t, OutcomeCreated, p.Process(context.Background(), signedDelivery(createEvent)))
	require.Equal(t, OutcomeDuplicateDelivery, p.Process(context.Background(), signedDelivery(createEvent)))
	require.Equal(t, 1, ingester.callCount())
}

func TestProcessReleasesClaimAndReportsOnFailure(t *testing.T) {
	ingester := newStubIngester()
	ingester.err = &domain.UpstreamFetchError{Status: 503, URL: "https://api/activities/987"}
	deduper := newMemoryDeduper()
	reporter := &recordingReporter{}
	p := NewProcessor(ingester, testSecret, WithDeduper(deduper), WithReporter(reporter))

	require.Equal(t, OutcomeFailed, p.Process(context.Background(), signedDelivery(createEvent)))
	require.Equal(t, []string{"webhook:activity:987:create"}, deduper.released)
	require.Len(t, reporter.errs, 1)
	require.Equal(t, "987", reporter.tags[0]["object_id"])

	ingester.err = nil
	require.Equal(t, OutcomeCreated, p.Process(context.Background(), signedDelivery(createEvent)))
}

func TestProcessReleasesClaimAfterDeadline(t *testing.T) {
	ingester := newStubIngester()
	ingester.release = make(chan struct{})
	deduper := newMemoryDeduper()
	p := NewProcessor(ingester, testSecret, WithDeduper(deduper))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Equal(t, OutcomeFailed, p.Process(ctx, signedDelivery(createEvent)))
	require.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)

	deduper.mu.Lock()
	require.Equal(t, []string{"webhook:activity:987:create"}, deduper.released)
	require.Empty(t, deduper.claims)
	deduper.mu.Unlock()

	close(ingester.release)
	require.Equal(t, OutcomeCreated, p.Process(context.Background(), signedDelivery(createEvent)))
}

func TestProcessDisabledSync(t *testing.T) {
	ingester := newStubIngester()
	ingester.err = &domain.ConfigurationError{Setting: "STRAVA_REFRESH_TOKEN"}
	reporter := &recordingReporter{}
	p := NewProcessor(ingester, testSecret, WithReporter(reporter))

	require.Equal(t, OutcomeDisabled, p.Process(context.Background(), signedDelivery(createEvent)))
	require.Empty(t, reporter.errs)
}

func TestProcessFailsOpenWhenDeduperErrors(t *testing.T) {
	ingester := newStubIngester()
	deduper := newMemoryDeduper()
	deduper.err = errors.New("redis down")
	p := NewProcessor(ingester, testSecret, WithDeduper(deduper))

	require.Equal(t, OutcomeCreated, p.Process(context.Background(), signedDelivery(createEvent)))
}

func TestDispatchOutlivesRequestContext(t *testing.T) {
	ingester := newStubIngester()
	ingester.release = make(chan struct{})
	p := NewProcessor(ingester, testSecret, WithTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	p.Dispatch(ctx, signedDelivery(createEvent))
	cancel()
	close(ingester.release)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, p.Wait(waitCtx))
	require.Equal(t, 1, ingester.callCount())
}

func TestWaitHonoursContext(t *testing.T) {
	ingester := newStubIngester()
	ingester.release = make(chan struct{})
	defer close(ingester.release)
	p := NewProcessor(ingester, testSecret, WithTimeout(time.Minute))

	p.Dispatch(context.Background(), signedDelivery(createEvent))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, p.Wait(ctx), context.DeadlineExceeded)
}

type fakeClaimer struct {
	setNX   bool
	err     error
	keys    []string
	ttl     time.Duration
	deleted []string
}

func (f *fakeClaimer) SetNX(ctx context.Context, key string, _ interface{}, expiration time.Duration) *redis.BoolCmd {
	f.keys = append(f.keys, key)
	f.ttl = expiration
	return redis.NewBoolResult(f.setNX, f.err)
}

func (f *fakeClaimer) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.deleted = append(f.deleted, keys...)
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestRedisDeduper(t *testing.T) {
	claimer := &fakeClaimer{setNX: true}
	deduper := NewRedisDeduper(claimer, 0)

	ok, err := deduper.Claim(context.Background(), "webhook:activity:1:create", "d1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, DefaultDedupeTTL, claimer.ttl)

	claimer.setNX = false
	ok, err = deduper.Claim(context.Background(), "webhook:activity:1:create", "d2")
	require.NoError(t, err)
	require.False(t, ok)

	claimer.err = errors.New("connection refused")
	_, err = deduper.Claim(context.Background(), "webhook:activity:1:create", "d3")
	require.ErrorContains(t, err, "connection refused")

	require.NoError(t, deduper.Release(context.Background(), "webhook:activity:1:create"))
	require.Equal(t, []string{"webhook:activity:1:create"}, claimer.deleted)
}
