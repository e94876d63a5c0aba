package httpapi

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kushalX13/CurbKey/internal/models"
	"github.com/kushalX13/CurbKey/internal/stats"
	"github.com/kushalX13/CurbKey/internal/store"
	"github.com/kushalX13/CurbKey/internal/telemetry"
)

type createRequestRequest struct {
	ExitID       int64      `json:"exit_id" validate:"required,gt=0"`
	DelayMinutes int        `json:"delay_minutes" validate:"min=0"`
	ScheduledFor *time.Time `json:"scheduled_for"`
}

type createRequestResponse struct {
	Request    models.Request `json:"request"`
	Idempotent bool           `json:"idempotent"`
}

type rescheduleRequest struct {
	DelayMinutes int `json:"delay_minutes" validate:"required"`
}

type ticketResponse struct {
	Ticket  models.Ticket   `json:"ticket"`
	Request *models.Request `json:"request"`
}

type claimStartRequest struct {
	Phone string `json:"phone" validate:"required"`
}

type claimConfirmRequest struct {
	Phone     string `json:"phone" validate:"required"`
	ClaimCode string `json:"claim_code" validate:"required"`
}

// ticketFromPath resolves the guest credential, the ticket token.
func (h *Handler) ticketFromPath(w http.ResponseWriter, r *http.Request) (models.Ticket, bool) {
	token := strings.TrimSpace(r.PathValue("token"))
	if token == "" {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "ticket_not_found", "ticket not found")
		return models.Ticket{}, false
	}
	ticket, err := h.store.GetTicketByToken(r.Context(), token)
	if err != nil {
		h.fail(w, r, err)
		return models.Ticket{}, false
	}
	return ticket, true
}

func (h *Handler) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, ok := h.ticketFromPath(w, r)
	if !ok {
		return
	}
	resp := ticketResponse{Ticket: ticket}
	req, found, err := h.store.LatestRequest(r.Context(), ticket.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if found {
		resp.Request = &req
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleTicketExits(w http.ResponseWriter, r *http.Request) {
	ticket, ok := h.ticketFromPath(w, r)
	if !ok {
		return
	}
	exits, err := h.store.ListExits(r.Context(), ticket.VenueID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if exits == nil {
		exits = []models.Exit{}
	}
	writeJSON(w, http.StatusOK, exits)
}

func (h *Handler) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	ticket, ok := h.ticketFromPath(w, r)
	if !ok {
		return
	}
	rec, err := h.stats.Recommend(r.Context(), ticket.VenueID, stats.Window{}, stats.DefaultQueuePenalty)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	ticket, ok := h.ticketFromPath(w, r)
	if !ok {
		return
	}
	var body createRequestRequest
	if !h.decode(w, r, &body) {
		return
	}
	req, created, err := h.store.CreateRequest(r.Context(), store.CreateRequestInput{
		TicketID:     ticket.ID,
		ExitID:       body.ExitID,
		DelayMinutes: body.DelayMinutes,
		ScheduledFor: body.ScheduledFor,
		CreatedAt:    h.clock.Now(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if created {
		h.logger.InfoContext(r.Context(), "pickup requested",
			slog.Int64(telemetry.LogFieldVenueID, ticket.VenueID),
			slog.Int64(telemetry.LogFieldTicketID, ticket.ID),
			slog.String(telemetry.LogFieldStatus, string(req.Status)),
			telemetry.TraceAttr(r.Context()))
	}
	writeJSON(w, http.StatusOK, createRequestResponse{Request: req, Idempotent: !created})
}

func (h *Handler) handleReschedule(w http.ResponseWriter, r *http.Request) {
	ticket, ok := h.ticketFromPath(w, r)
	if !ok {
		return
	}
	requestID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body rescheduleRequest
	if !h.decode(w, r, &body) {
		return
	}
	req, err := h.store.Reschedule(r.Context(), store.RescheduleInput{
		TicketID:     ticket.ID,
		RequestID:    requestID,
		DelayMinutes: body.DelayMinutes,
		OccurredAt:   h.clock.Now(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"request": req})
}

func (h *Handler) handleClaimStart(w http.ResponseWriter, r *http.Request) {
	if err := h.claims.AllowClient(r.Context(), h.proxies.ClientIP(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	var body claimStartRequest
	if !h.decode(w, r, &body) {
		return
	}
	if err := h.claims.Start(r.Context(), r.PathValue("slug"), body.Phone); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleClaimConfirm(w http.ResponseWriter, r *http.Request) {
	if err := h.claims.AllowClient(r.Context(), h.proxies.ClientIP(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	var body claimConfirmRequest
	if !h.decode(w, r, &body) {
		return
	}
	result, err := h.claims.Confirm(r.Context(), r.PathValue("slug"), body.Phone, body.ClaimCode)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
