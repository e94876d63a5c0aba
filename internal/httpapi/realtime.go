package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"

	"github.com/kushalX13/CurbKey/internal/events"
	"github.com/kushalX13/CurbKey/internal/models"
	"github.com/kushalX13/CurbKey/internal/telemetry"
)

// SockJS close codes sent to staff consoles.
const (
	closeMissingSession = 4001
	closeInvalidSession = 4002
	closeAccessDenied   = 4003
)

func (h *Handler) realtimeHandler() http.Handler {
	return sockjs.NewHandler("/realtime", sockjs.DefaultOptions, h.serveRealtime)
}

// serveRealtime pushes status events for the session's venue. Clients may
// narrow to one ticket or pause delivery with subscribe / unsubscribe
// messages.
func (h *Handler) serveRealtime(session sockjs.Session) {
	req := session.Request()
	sessionID := sessionIDFromRequest(req)
	if sessionID == "" {
		_ = session.Close(closeMissingSession, "missing session")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	auth, err := h.store.GetSession(ctx, sessionID)
	cancel()
	if err != nil || (!auth.ExpiresAt.IsZero() && h.clock.Now().After(auth.ExpiresAt)) {
		_ = session.Close(closeInvalidSession, "invalid session")
		return
	}
	if !h.policy.IsStaff(auth.Role) {
		_ = session.Close(closeAccessDenied, "access denied")
		return
	}

	client := &events.Client{
		ID:           uuid.NewString(),
		Send:         make(chan models.StatusEvent, 16),
		Subscription: events.Subscription{VenueID: auth.VenueID},
	}
	h.hub.Register(client)
	defer h.hub.Unregister(client)

	go func() {
		for ev := range client.Send {
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			_ = session.Send(string(payload))
		}
	}()

	for {
		msg, err := session.Recv()
		if err != nil {
			return
		}
		parsed, ok := events.ParseSubscribe([]byte(msg))
		if !ok {
			continue
		}
		if parsed.Action == "unsubscribe" {
			h.hub.UpdateSubscription(client, events.Subscription{VenueID: auth.VenueID, Paused: true})
			continue
		}
		if parsed.VenueID != 0 && parsed.VenueID != auth.VenueID {
			h.logger.Warn("realtime subscribe outside venue",
				slog.String("user", auth.UserID),
				slog.Int64(telemetry.LogFieldVenueID, parsed.VenueID))
			_ = session.Close(closeAccessDenied, "access denied")
			return
		}
		h.hub.UpdateSubscription(client, events.Subscription{VenueID: auth.VenueID, TicketID: parsed.TicketID})
	}
}
