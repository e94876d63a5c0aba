package httpapi

import (
	"encoding/json"
	"errors"
	"expvar"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kushalX13/CurbKey/internal/claim"
	"github.com/kushalX13/CurbKey/internal/clock"
	"github.com/kushalX13/CurbKey/internal/events"
	"github.com/kushalX13/CurbKey/internal/lifecycle"
	"github.com/kushalX13/CurbKey/internal/stats"
	"github.com/kushalX13/CurbKey/internal/store"
	"github.com/kushalX13/CurbKey/internal/telemetry"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 500
	defaultAuditLimit = 200
)

type Handler struct {
	store    store.Store
	claims   *claim.Service
	stats    *stats.Service
	hub      *events.Hub
	policy   lifecycle.Policy
	validate *validator.Validate
	clock    clock.Clock
	logger   *slog.Logger
	proxies  TrustedProxies

	claimTTL       time.Duration
	tickBatchSize  int
	streamDuration time.Duration
	streamPoll     time.Duration
	heartbeat      time.Duration
}

type Options struct {
	Claims    *claim.Service
	Stats     *stats.Service
	Hub       *events.Hub
	Clock     clock.Clock
	Logger    *slog.Logger
	Validate  *validator.Validate
	ClaimTTL  time.Duration
	TickBatch int

	// TrustedProxies gates X-Forwarded-For for the per-address claim limit.
	TrustedProxies TrustedProxies

	// StreamDuration caps one event-stream response; clients reconnect
	// with their last id.
	StreamDuration time.Duration
	StreamPoll     time.Duration
	Heartbeat      time.Duration
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(st store.Store, options Options) *Handler {
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	validate := options.Validate
	if validate == nil {
		validate = validator.New()
	}
	claims := options.Claims
	if claims == nil {
		claims = claim.NewService(st, claim.Options{Clock: clk, Logger: logger})
	}
	statsSvc := options.Stats
	if statsSvc == nil {
		statsSvc = stats.NewService(st, clk)
	}
	h := &Handler{
		store:          st,
		claims:         claims,
		stats:          statsSvc,
		hub:            options.Hub,
		policy:         lifecycle.DefaultPolicy(),
		validate:       validate,
		clock:          clk,
		logger:         logger,
		proxies:        options.TrustedProxies,
		claimTTL:       options.ClaimTTL,
		tickBatchSize:  options.TickBatch,
		streamDuration: options.StreamDuration,
		streamPoll:     options.StreamPoll,
		heartbeat:      options.Heartbeat,
	}
	if h.tickBatchSize <= 0 {
		h.tickBatchSize = 100
	}
	if h.streamDuration <= 0 {
		h.streamDuration = 50 * time.Second
	}
	if h.streamPoll <= 0 {
		h.streamPoll = time.Second
	}
	if h.heartbeat <= 0 {
		h.heartbeat = 15 * time.Second
	}
	return h
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.Handle("GET /metrics", expvar.Handler())

	mux.HandleFunc("GET /api/requests", h.staff(h.handleListRequests))
	mux.HandleFunc("PATCH /api/requests/{id}/status", h.staff(h.handleTransition))
	mux.HandleFunc("POST /api/requests/{id}/tips", h.staff(h.handleRecordTip))
	mux.HandleFunc("POST /api/tickets", h.staff(h.handleCreateTicket))
	mux.HandleFunc("PATCH /api/tickets/{id}/car", h.staff(h.handleUpdateCar))
	mux.HandleFunc("POST /api/scheduler/tick", h.staff(h.handleTick))
	mux.HandleFunc("GET /api/events", h.staff(h.handleListEvents))
	mux.HandleFunc("GET /api/events/stream", h.staff(h.handleVenueStream))
	mux.HandleFunc("GET /api/tips/summary", h.staff(h.handleTipSummary))
	mux.HandleFunc("GET /api/metrics", h.staff(h.handleMetrics))
	mux.HandleFunc("GET /api/audit", h.staff(h.handleAudit))

	mux.HandleFunc("GET /t/{token}", h.handleGetTicket)
	mux.HandleFunc("GET /t/{token}/exits", h.handleTicketExits)
	mux.HandleFunc("GET /t/{token}/recommendations", h.handleRecommendations)
	mux.HandleFunc("POST /t/{token}/request", h.handleCreateRequest)
	mux.HandleFunc("PATCH /t/{token}/request/{id}/schedule", h.handleReschedule)
	mux.HandleFunc("GET /t/{token}/events", h.handleTicketStream)

	mux.HandleFunc("POST /v/{slug}/claim/start", h.handleClaimStart)
	mux.HandleFunc("POST /v/{slug}/claim/confirm", h.handleClaimConfirm)

	if h.hub != nil {
		mux.Handle("/realtime/", h.realtimeHandler())
	}
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// decode reads a JSON body into target and runs struct validation.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	return h.decodeBody(w, r, target, false)
}

// decodeOptional accepts an empty body and validates the zero value.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	return h.decodeBody(w, r, target, true)
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, target interface{}, allowEmpty bool) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil && !(allowEmpty && errors.Is(err, io.EOF)) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		writeValidationError(w, r, err)
		return false
	}
	return true
}

func writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		fields = append(fields, fieldErr.Field()+" ("+fieldErr.Tag()+")")
	}
	writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "invalid fields: "+strings.Join(fields, ", "))
}

// pathID parses a positive integer path parameter.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, fallback int64) (int64, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", name+" must be a non-negative integer")
		return 0, false
	}
	return value, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapError(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String(telemetry.LogFieldRequestID, requestIDFromRequest(r)),
			slog.Any(telemetry.LogFieldErr, err),
			telemetry.TraceAttr(r.Context()))
	}
	writeError(w, requestIDFromRequest(r), status, code, msg)
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", err.Error()
	case errors.Is(err, store.ErrVenueNotFound):
		return http.StatusNotFound, "venue_not_found", "venue not found"
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found", "ticket not found"
	case errors.Is(err, store.ErrRequestNotFound):
		return http.StatusNotFound, "request_not_found", "request not found"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found", "not found"
	case errors.Is(err, store.ErrInvalidExit):
		return http.StatusBadRequest, "invalid_exit", "exit does not belong to this venue"
	case errors.Is(err, store.ErrInvalidDelay):
		return http.StatusBadRequest, "invalid_delay", err.Error()
	case errors.Is(err, store.ErrRescheduleWindow):
		return http.StatusBadRequest, "reschedule_window", err.Error()
	case errors.Is(err, store.ErrRescheduleLimit):
		return http.StatusConflict, "reschedule_limit", err.Error()
	case errors.Is(err, store.ErrRescheduleCooldown):
		return http.StatusTooManyRequests, "cooldown", err.Error()
	case errors.Is(err, store.ErrCodeExpired):
		return http.StatusGone, "code_expired", "claim code expired"
	case errors.Is(err, store.ErrInvalidCode):
		return http.StatusBadRequest, "invalid_code", "invalid claim code"
	case errors.Is(err, store.ErrInvalidPhone):
		return http.StatusBadRequest, "invalid_phone", "phone must have 8-16 digits"
	case errors.Is(err, store.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited", "too many attempts"
	case errors.Is(err, store.ErrInvalidTip):
		return http.StatusBadRequest, "invalid_tip", "amount_cents must be positive"
	case errors.Is(err, store.ErrSessionNotFound), errors.Is(err, store.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized", "invalid session"
	case errors.Is(err, store.ErrForbidden):
		return http.StatusForbidden, "forbidden", "access denied"
	case errors.Is(err, store.ErrClaimCodeExhausted):
		return http.StatusServiceUnavailable, "claim_code_exhausted", "could not issue a claim code, retry"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
