package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"example.com/hobbytracker/internal/domain"
	"example.com/hobbytracker/internal/persistence"
	"example.com/hobbytracker/internal/persistence/sqlite"
	"example.com/hobbytracker/internal/webhook"
)

const testVerifyToken = "s3cret-verify"

type fakeSource struct {
	activity domain.Activity
}

func (s *fakeSource) LatestActivity(context.Context) (domain.Activity, error) {
	return s.activity, nil
}

func (s *fakeSource) ActivityByID(_ context.Context, id int64) (domain.Activity, error) {
	activity := s.activity
	activity.ExternalID = id
	return activity, nil
}

type recordingDispatcher struct {
	mu         sync.Mutex
	deliveries []webhook.Delivery
}

func (d *recordingDispatcher) Dispatch(_ context.Context, delivery webhook.Delivery) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deliveries = append(d.deliveries, delivery)
}

type testEnv struct {
	router     http.Handler
	store      *sqlite.Store
	sync       *domain.Service
	dispatcher *recordingDispatcher
}

func newTestEnv(t *testing.T, source domain.ActivitySource) *testEnv {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := persistence.NewInitializer(store).Ensure(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	syncService := domain.NewService(source, store)
	dispatcher := &recordingDispatcher{}
	handler := NewHandler(syncService, domain.NewRecordService(store), dispatcher, testVerifyToken, zap.NewNop())

	router := NewRouter(zap.NewNop())
	handler.RegisterRoutes(router)
	return &testEnv{router: router, store: store, sync: syncService, dispatcher: dispatcher}
}

func (e *testEnv) do(t *testing.T, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func morningRun() domain.Activity {
	return domain.Activity{
		ExternalID:          987,
		Name:                "Morning Run",
		SportType:           "Run",
		DistanceKm:          10.01,
		MovingTime:          "01:02:05",
		Pace:                "04:10/km",
		AverageSpeedKmh:     14.39,
		TotalElevationGainM: 52.35,
		StartDateLocal:      "2026-03-01T07:00:00Z",
		Timezone:            "(GMT-03:00) America/Sao_Paulo",
	}
}

func TestHandshakeEchoesChallenge(t *testing.T) {
	env := newTestEnv(t, &fakeSource{})

	rr := env.do(t, http.MethodGet, "/webhook/activity-sync?hub.mode=subscribe&hub.verify_token="+testVerifyToken+"&hub.challenge=abc123", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	if rr.Body.String() != `{"hub.challenge":"abc123"}` {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
}

func TestHandshakeRejectsWrongToken(t *testing.T) {
	env := newTestEnv(t, &fakeSource{})

	rr := env.do(t, http.MethodGet, "/webhook/activity-sync?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=abc123", "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "abc123") {
		t.Fatalf("challenge echoed on rejection: %s", rr.Body.String())
	}
}

func TestReceiveEventAcknowledgesAndDispatches(t *testing.T) {
	env := newTestEnv(t, &fakeSource{})

	body := `{"object_type":"activity","object_id":42,"aspect_type":"create"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/activity-sync", strings.NewReader(body))
	req.Header.Set(webhook.SignatureHeader, "sha256=abcd")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"received":true}`, rr.Body.String())

	require.Len(t, env.dispatcher.deliveries, 1)
	delivery := env.dispatcher.deliveries[0]
	require.NotEmpty(t, delivery.ID)
	require.Equal(t, body, string(delivery.Body))
	require.Equal(t, "sha256=abcd", delivery.Signature)
}

func TestWebhookRedeliveryStoresOneRun(t *testing.T) {
	env := newTestEnv(t, &fakeSource{activity: morningRun()})
	processor := webhook.NewProcessor(env.sync, "")
	handler := NewHandler(env.sync, domain.NewRecordService(env.store), processor, testVerifyToken, zap.NewNop())
	router := NewRouter(zap.NewNop())
	handler.RegisterRoutes(router)

	body := []byte(`{"object_type":"activity","object_id":555,"aspect_type":"create","owner_id":1}`)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhook/activity-sync", bytes.NewReader(body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		require.NoError(t, processor.Wait(ctx))
		cancel()
	}

	runs, _, err := env.store.ListRuns(context.Background(), nil, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, int64(555), *runs[0].ExternalID)
	require.Equal(t, "Tiro", string(runs[0].TrainingType))
	require.Equal(t, 62, runs[0].DurationMinutes)
}

func TestManualSyncIsIdempotent(t *testing.T) {
	env := newTestEnv(t, &fakeSource{activity: morningRun()})

	first := env.do(t, http.MethodPost, "/sync/manual", "")
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	var created ManualSyncResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &created))
	require.Equal(t, msgRunSynced, created.Message)
	require.NotZero(t, created.Run.ID)
	require.Equal(t, "(GMT-03:00) America/Sao_Paulo", created.Run.Location)

	second := env.do(t, http.MethodPost, "/sync/manual", "")
	require.Equal(t, http.StatusOK, second.Code)
	var again ManualSyncResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &again))
	require.Equal(t, msgRunAlreadySynced, again.Message)
	require.Equal(t, created.Run.ID, again.Run.ID)

	runs, _, err := env.store.ListRuns(context.Background(), nil, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestManualSyncWhileDisabled(t *testing.T) {
	env := newTestEnv(t, domain.UnavailableSource{Err: &domain.ConfigurationError{Setting: "STRAVA_REFRESH_TOKEN"}})

	rr := env.do(t, http.MethodPost, "/sync/manual", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	require.Equal(t, "configuration_error", payload["type"])
	require.Contains(t, payload["error"], "STRAVA_REFRESH_TOKEN")
}

func TestSyncErrorType(t *testing.T) {
	cases := map[string]error{
		"configuration_error":  &domain.ConfigurationError{Setting: "X"},
		"upstream_auth_error":  &domain.UpstreamAuthError{Status: 401},
		"upstream_timeout":     &domain.UpstreamTimeoutError{Op: "fetch", Err: context.DeadlineExceeded},
		"upstream_fetch_error": &domain.UpstreamFetchError{Status: 500},
		"no_activity":          domain.ErrNoActivity,
		"malformed_activity":   domain.ErrMalformedActivity,
		"storage_error":        context.Canceled,
	}
	for want, err := range cases {
		if got := syncErrorType(err); got != want {
			t.Fatalf("syncErrorType(%v) = %s, want %s", err, got, want)
		}
	}
}

func TestBookLifecycle(t *testing.T) {
	env := newTestEnv(t, &fakeSource{})

	rr := env.do(t, http.MethodPost, "/v1/books", `{"title":"Dom Casmurro","author":"Machado de Assis","pages":256}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var book BookView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &book))
	require.Equal(t, "reading", book.Status)
	require.Zero(t, book.CurrentPage)

	target := "/v1/books/" + itoa(book.ID)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPut, target, `{"rating":11}`).Code)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPut, target, `{}`).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, target, `{"current_page":120,"rating":8}`).Code)
	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodPut, "/v1/books/999", `{"current_page":1}`).Code)

	summary := env.do(t, http.MethodGet, "/v1/summary", "")
	require.Equal(t, http.StatusOK, summary.Code)
	var resp SummaryResponse
	require.NoError(t, json.Unmarshal(summary.Body.Bytes(), &resp))
	require.Len(t, resp.Books, 1)
	require.Equal(t, 120, resp.Books[0].CurrentPage)
	require.NotNil(t, resp.Books[0].Rating)
	require.Equal(t, 8, *resp.Books[0].Rating)
	require.Empty(t, resp.Runs)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/v1/records/books/"+itoa(book.ID), "").Code)
	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/v1/records/books/"+itoa(book.ID), "").Code)
}

func TestDeleteRejectsUnknownKind(t *testing.T) {
	env := newTestEnv(t, &fakeSource{})

	rr := env.do(t, http.MethodDelete, "/v1/records/users/1", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodDelete, "/v1/records/runs/abc", "").Code)
}

func TestRecordCreationAndRunPaging(t *testing.T) {
	env := newTestEnv(t, &fakeSource{})

	for i := 0; i < 3; i++ {
		rr := env.do(t, http.MethodPost, "/v1/runs", `{"distance_km":5.123,"duration_minutes":28,"training_type":"Longo","location":"Ibirapuera"}`)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/v1/runs", `{"distance_km":5,"duration_minutes":28,"training_type":"Sprint"}`).Code)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/v1/runs", `not json`).Code)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/workouts", `{"focus":"pernas","duration_minutes":45,"effort":8}`).Code)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/work", `{"tasks_completed":5,"productivity":7,"notes":"deploy"}`).Code)

	rr := env.do(t, http.MethodGet, "/v1/runs?limit=2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var page ListRunsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)
	require.Nil(t, page.Items[0].ExternalID)
	require.Equal(t, 5.12, page.Items[0].DistanceKm)

	rr = env.do(t, http.MethodGet, "/v1/runs?limit=2&cursor="+page.NextCursor, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var rest ListRunsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rest))
	require.Len(t, rest.Items, 1)
	require.Empty(t, rest.NextCursor)

	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/runs?cursor=%25%25", "").Code)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, &fakeSource{})
	rr := env.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
