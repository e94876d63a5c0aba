package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kushalX13/CurbKey/internal/events"
	"github.com/kushalX13/CurbKey/internal/models"
	"github.com/kushalX13/CurbKey/internal/sse"
	"github.com/kushalX13/CurbKey/internal/store"
	"github.com/kushalX13/CurbKey/internal/telemetry"
)

const streamBatchSize = 50

func (h *Handler) handleTicketStream(w http.ResponseWriter, r *http.Request) {
	ticket, ok := h.ticketFromPath(w, r)
	if !ok {
		return
	}
	lastID, ok := lastEventID(w, r)
	if !ok {
		return
	}
	h.stream(w, r, store.EventFilter{TicketID: ticket.ID}, events.Subscription{TicketID: ticket.ID}, lastID)
}

func (h *Handler) handleVenueStream(w http.ResponseWriter, r *http.Request) {
	venueID, ok := venueScope(w, r)
	if !ok {
		return
	}
	lastID, ok := lastEventID(w, r)
	if !ok {
		return
	}
	h.stream(w, r, store.EventFilter{VenueID: venueID}, events.Subscription{VenueID: venueID}, lastID)
}

// lastEventID reads the resume cursor from last_id, falling back to the
// Last-Event-ID header browsers send on reconnect.
func lastEventID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("last_id"))
	if raw == "" {
		raw = strings.TrimSpace(r.Header.Get("Last-Event-ID"))
	}
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "last_id must be a non-negative integer")
		return 0, false
	}
	return id, true
}

// stream replays events after lastID from the store and keeps the response
// open until the client leaves or the stream duration elapses. The hub only
// wakes the loop early; the store stays the source of every frame, so frames
// go out in id order without duplicates.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, filter store.EventFilter, sub events.Subscription, lastID int64) {
	ctx := r.Context()
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", sse.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	var wake <-chan models.StatusEvent
	if h.hub != nil {
		client := &events.Client{ID: uuid.NewString(), Send: make(chan models.StatusEvent, 32), Subscription: sub}
		h.hub.Register(client)
		defer h.hub.Unregister(client)
		wake = client.Send
	}

	if err := sse.WriteComment(w, "connected"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		h.logger.WarnContext(ctx, "event stream not flushable", slog.Any(telemetry.LogFieldErr, err))
		return
	}

	deadline := time.NewTimer(h.streamDuration)
	defer deadline.Stop()
	poll := time.NewTicker(h.streamPoll)
	defer poll.Stop()
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		filter.AfterID = lastID
		filter.Limit = streamBatchSize
		evs, err := h.store.ListEvents(ctx, filter)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.logger.WarnContext(ctx, "event stream read failed", slog.Any(telemetry.LogFieldErr, err), telemetry.TraceAttr(ctx))
		}
		for _, ev := range evs {
			if err := sse.WriteStatus(w, ev); err != nil {
				return
			}
			lastID = ev.ID
		}
		if len(evs) > 0 {
			if err := rc.Flush(); err != nil {
				return
			}
		}
		if len(evs) == streamBatchSize {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-poll.C:
		case <-heartbeat.C:
			if err := sse.WriteComment(w, "ping"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case _, ok := <-wake:
			if !ok {
				wake = nil
			}
		}
	}
}
