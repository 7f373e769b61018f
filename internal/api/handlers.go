// Package api exposes HTTP handlers for the hobby tracker.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"example.com/hobbytracker/internal/domain"
	"example.com/hobbytracker/internal/observability"
	"example.com/hobbytracker/internal/persistence"
	"example.com/hobbytracker/internal/runmetrics"
	"example.com/hobbytracker/internal/webhook"
)

const (
	maxWebhookBody  = 1 << 20
	defaultRunLimit = 20
	maxRunLimit     = 100

	msgRunSynced        = "Corrida sincronizada do Strava!"
	msgRunAlreadySynced = "Corrida já sincronizada!"
)

// DeliveryDispatcher hands an acknowledged push delivery to background
// processing.
type DeliveryDispatcher interface {
	Dispatch(ctx context.Context, d webhook.Delivery)
}

// Handler coordinates HTTP requests with the domain services.
type Handler struct {
	sync        *domain.Service
	records     *domain.RecordService
	deliveries  DeliveryDispatcher
	verifyToken string
	logger      *zap.Logger
}

// NewHandler builds a Handler.
func NewHandler(sync *domain.Service, records *domain.RecordService, deliveries DeliveryDispatcher, verifyToken string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sync:        sync,
		records:     records,
		deliveries:  deliveries,
		verifyToken: verifyToken,
		logger:      logger,
	}
}

// RegisterRoutes wires endpoints to the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", healthz)

	r.Get("/webhook/activity-sync", h.handshake)
	r.Post("/webhook/activity-sync", h.receiveEvent)
	r.Post("/sync/manual", h.manualSync)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/books", h.createBook)
		r.Put("/books/{id}", h.updateBook)
		r.Post("/runs", h.createRun)
		r.Get("/runs", h.listRuns)
		r.Post("/workouts", h.createWorkout)
		r.Post("/work", h.createWorkLog)
		r.Delete("/records/{kind}/{id}", h.deleteRecord)
		r.Get("/summary", h.summary)
	})
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handshake(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	challenge, err := webhook.VerifyHandshake(webhook.HandshakeRequest{
		Mode:        query.Get("hub.mode"),
		VerifyToken: query.Get("hub.verify_token"),
		Challenge:   query.Get("hub.challenge"),
	}, h.verifyToken)
	if err != nil {
		h.logger.Warn("webhook handshake rejected", zap.String("mode", query.Get("hub.mode")))
		writeError(w, http.StatusForbidden, "forbidden", "handshake rejected")
		return
	}

	h.logger.Info("webhook handshake accepted")
	writeJSON(w, http.StatusOK, map[string]string{"hub.challenge": challenge})
}

// receiveEvent acknowledges every push before any processing; the platform
// retries anything that is not a fast 2xx.
func (h *Handler) receiveEvent(w http.ResponseWriter, r *http.Request) {
	deliveryID := uuid.NewString()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})

	if err != nil {
		h.logger.Warn("webhook body unreadable, delivery dropped", zap.String("delivery_id", deliveryID), zap.Error(err))
		observability.RecordWebhookOutcome(string(webhook.OutcomeFailed))
		return
	}

	h.deliveries.Dispatch(r.Context(), webhook.Delivery{
		ID:        deliveryID,
		Body:      body,
		Signature: r.Header.Get(webhook.SignatureHeader),
	})
}

func (h *Handler) manualSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.sync.SyncLatest(r.Context())
	if err != nil {
		code := syncErrorType(err)
		observability.RecordManualSync(code)
		h.logger.Error("manual sync failed", zap.String("type", code), zap.Error(err))
		writeError(w, http.StatusBadRequest, code, err.Error())
		return
	}

	resp := ManualSyncResponse{Message: msgRunAlreadySynced, Run: toRunView(result.Run)}
	if result.Created {
		resp.Message = msgRunSynced
		observability.RecordManualSync("created")
	} else {
		observability.RecordManualSync("already_synced")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) createBook(w http.ResponseWriter, r *http.Request) {
	var req CreateBookRequest
	if !decodeBody(w, r, &req) {
		return
	}
	book, err := h.records.AddBook(r.Context(), req.Title, req.Author, req.Pages, req.Cover)
	if err != nil {
		h.writeRecordError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookView(book))
}

func (h *Handler) updateBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateBookRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.records.UpdateBook(r.Context(), id, req.toUpdate()); err != nil {
		h.writeRecordError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Livro atualizado!"})
}

func (h *Handler) createRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if !decodeBody(w, r, &req) {
		return
	}
	run, err := h.records.AddRun(r.Context(), req.DistanceKm, req.DurationMinutes, runmetrics.TrainingType(req.TrainingType), req.Location)
	if err != nil {
		h.writeRecordError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRunView(run))
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = min(parsed, maxRunLimit)
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	runs, next, err := h.records.ListRuns(r.Context(), cursor, limit)
	if err != nil {
		h.writeRecordError(w, err)
		return
	}

	resp := ListRunsResponse{
		Items:      make([]RunView, 0, len(runs)),
		NextCursor: persistence.EncodeCursor(next),
	}
	for _, run := range runs {
		resp.Items = append(resp.Items, toRunView(run))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) createWorkout(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkoutRequest
	if !decodeBody(w, r, &req) {
		return
	}
	workout, err := h.records.AddWorkout(r.Context(), req.Focus, req.DurationMinutes, req.Effort)
	if err != nil {
		h.writeRecordError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkoutView(workout))
}

func (h *Handler) createWorkLog(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkLogRequest
	if !decodeBody(w, r, &req) {
		return
	}
	entry, err := h.records.AddWorkLog(r.Context(), req.TasksCompleted, req.Productivity, req.Notes)
	if err != nil {
		h.writeRecordError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkLogView(entry))
}

func (h *Handler) deleteRecord(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseEntityKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.writeRecordError(w, err)
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.records.Delete(r.Context(), kind, id); err != nil {
		h.writeRecordError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Item deletado!"})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.records.Summary(r.Context())
	if err != nil {
		h.writeRecordError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryResponse(summary))
}

func (h *Handler) writeRecordError(w http.ResponseWriter, err error) {
	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		h.logger.Error("record operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error", "storage failure")
	}
}

// syncErrorType names the error class of a failed manual sync.
func syncErrorType(err error) string {
	var (
		cfgErr     *domain.ConfigurationError
		authErr    *domain.UpstreamAuthError
		timeoutErr *domain.UpstreamTimeoutError
		fetchErr   *domain.UpstreamFetchError
	)
	switch {
	case errors.As(err, &cfgErr):
		return "configuration_error"
	case errors.As(err, &authErr):
		return "upstream_auth_error"
	case errors.As(err, &timeoutErr):
		return "upstream_timeout"
	case errors.As(err, &fetchErr):
		return "upstream_fetch_error"
	case errors.Is(err, domain.ErrNoActivity):
		return "no_activity"
	case errors.Is(err, domain.ErrMalformedActivity):
		return "malformed_activity"
	default:
		return "storage_error"
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{
		"type":  code,
		"error": strings.TrimSpace(detail),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
