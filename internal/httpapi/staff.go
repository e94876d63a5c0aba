package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/kushalX13/CurbKey/internal/lifecycle"
	"github.com/kushalX13/CurbKey/internal/models"
	"github.com/kushalX13/CurbKey/internal/stats"
	"github.com/kushalX13/CurbKey/internal/store"
	"github.com/kushalX13/CurbKey/internal/telemetry"
	"github.com/kushalX13/CurbKey/internal/worker"
)

type createTicketRequest struct {
	VenueID            int64  `json:"venue_id" validate:"omitempty,gt=0"`
	CarNumber          string `json:"car_number" validate:"max=16"`
	VehicleDescription string `json:"vehicle_description" validate:"max=120"`
}

type createTicketResponse struct {
	Ticket    models.Ticket `json:"ticket"`
	GuestPath string        `json:"guest_path"`
	ClaimCode string        `json:"claim_code"`
	VenueSlug string        `json:"venue_slug"`
}

type updateCarRequest struct {
	CarNumber          string `json:"car_number" validate:"max=16"`
	VehicleDescription string `json:"vehicle_description" validate:"max=120"`
}

type transitionRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=200"`
}

type recordTipRequest struct {
	AmountCents int64 `json:"amount_cents" validate:"gt=0"`
}

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	venueID, ok := venueScope(w, r)
	if !ok {
		return
	}
	scope, err := lifecycle.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	cursor, ok := queryInt(w, r, "cursor", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", lifecycle.DefaultPageLimit)
	if !ok {
		return
	}

	page, err := h.store.ListRequests(r.Context(), store.ListRequestsInput{
		VenueID: venueID,
		Scope:   scope,
		Cursor:  cursor,
		Limit:   lifecycle.ClampLimit(int(limit)),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body transitionRequest
	if !h.decode(w, r, &body) {
		return
	}
	target, err := lifecycle.Parse(body.Status)
	if err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_status", err.Error())
		return
	}

	current, err := h.store.GetRequest(r.Context(), requestID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !requireVenue(w, r, current.VenueID) {
		return
	}
	session, _ := sessionFromContext(r.Context())

	updated, err := h.store.Transition(r.Context(), store.TransitionInput{
		RequestID:  requestID,
		Target:     target,
		ActorID:    session.UserID,
		Note:       body.Note,
		OccurredAt: h.clock.Now(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "request transitioned",
		slog.Int64(telemetry.LogFieldVenueID, updated.VenueID),
		slog.Int64("request", updated.ID),
		slog.String("from", string(current.Status)),
		slog.String(telemetry.LogFieldStatus, string(updated.Status)),
		slog.String("actor", session.UserID),
		telemetry.TraceAttr(r.Context()))
	writeJSON(w, http.StatusOK, map[string]interface{}{"request": updated})
}

func (h *Handler) handleRecordTip(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body recordTipRequest
	if !h.decode(w, r, &body) {
		return
	}
	current, err := h.store.GetRequest(r.Context(), requestID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !requireVenue(w, r, current.VenueID) {
		return
	}
	tip, err := h.store.RecordTip(r.Context(), store.RecordTipInput{
		RequestID:   requestID,
		AmountCents: body.AmountCents,
		CreatedAt:   h.clock.Now(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tip": tip})
}

func (h *Handler) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var body createTicketRequest
	if !h.decodeOptional(w, r, &body) {
		return
	}
	session, _ := sessionFromContext(r.Context())
	venueID := body.VenueID
	if venueID == 0 {
		venueID = session.VenueID
	}
	if !requireVenue(w, r, venueID) {
		return
	}
	venue, err := h.store.GetVenue(r.Context(), venueID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ticket, err := h.store.CreateTicket(r.Context(), store.CreateTicketInput{
		VenueID:   venue.ID,
		ClaimTTL:  h.claimTTL,
		CreatedAt: h.clock.Now(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	code := ticket.ClaimCode
	if body.CarNumber != "" || body.VehicleDescription != "" {
		ticket, err = h.store.UpdateCarDetails(r.Context(), store.UpdateCarInput{
			TicketID:           ticket.ID,
			CarNumber:          body.CarNumber,
			VehicleDescription: body.VehicleDescription,
		})
		if err != nil {
			h.fail(w, r, err)
			return
		}
	}
	h.logger.InfoContext(r.Context(), "ticket created",
		slog.Int64(telemetry.LogFieldVenueID, venue.ID),
		slog.Int64(telemetry.LogFieldTicketID, ticket.ID),
		telemetry.TraceAttr(r.Context()))
	writeJSON(w, http.StatusCreated, createTicketResponse{
		Ticket:    ticket,
		GuestPath: store.GuestPath(ticket.Token),
		ClaimCode: code,
		VenueSlug: venue.Slug,
	})
}

func (h *Handler) handleUpdateCar(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body updateCarRequest
	if !h.decode(w, r, &body) {
		return
	}
	current, err := h.store.GetTicket(r.Context(), ticketID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !requireVenue(w, r, current.VenueID) {
		return
	}
	ticket, err := h.store.UpdateCarDetails(r.Context(), store.UpdateCarInput{
		TicketID:           ticketID,
		CarNumber:          body.CarNumber,
		VehicleDescription: body.VehicleDescription,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ticket": ticket})
}

func (h *Handler) handleTick(w http.ResponseWriter, r *http.Request) {
	session, ok := requireManager(w, r)
	if !ok {
		return
	}
	flipped, err := worker.Drain(r.Context(), h.store, h.clock.Now(), h.tickBatchSize)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "manual scheduler tick",
		slog.Int("flipped", flipped),
		slog.String("actor", session.UserID),
		telemetry.TraceAttr(r.Context()))
	writeJSON(w, http.StatusOK, map[string]int{"flipped": flipped})
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	venueID, ok := venueScope(w, r)
	if !ok {
		return
	}
	afterID, ok := queryInt(w, r, "after_id", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", defaultEventLimit)
	if !ok {
		return
	}
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}
	evs, err := h.store.ListEvents(r.Context(), store.EventFilter{VenueID: venueID, AfterID: afterID, Limit: int(limit)})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if evs == nil {
		evs = []models.StatusEvent{}
	}
	writeJSON(w, http.StatusOK, evs)
}

func (h *Handler) handleTipSummary(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireManager(w, r); !ok {
		return
	}
	venueID, ok := venueScope(w, r)
	if !ok {
		return
	}
	summary, err := h.stats.TipSummary(r.Context(), venueID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireManager(w, r); !ok {
		return
	}
	venueID, ok := venueScope(w, r)
	if !ok {
		return
	}
	hours, ok := queryInt(w, r, "window_hours", stats.DefaultWindowHours)
	if !ok {
		return
	}
	metrics, err := h.stats.Metrics(r.Context(), venueID, stats.Window{Hours: int(hours)})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireManager(w, r); !ok {
		return
	}
	venueID, ok := venueScope(w, r)
	if !ok {
		return
	}
	evs, err := h.store.ListAudit(r.Context(), venueID, defaultAuditLimit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if evs == nil {
		evs = []models.StatusEvent{}
	}
	writeJSON(w, http.StatusOK, evs)
}
