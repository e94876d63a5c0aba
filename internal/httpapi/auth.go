package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/kushalX13/CurbKey/internal/models"
	"github.com/kushalX13/CurbKey/internal/store"
)

type authContextKey struct{}

// staff resolves the caller's session before running next. Guests never
// reach staff routes.
func (h *Handler) staff(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := h.authenticate(r)
		if err != nil {
			if errors.Is(err, store.ErrUnauthorized) || errors.Is(err, store.ErrSessionNotFound) {
				writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing or expired session")
				return
			}
			h.fail(w, r, err)
			return
		}
		if !h.policy.IsStaff(session.Role) {
			writeError(w, requestIDFromRequest(r), http.StatusForbidden, "forbidden", "staff access required")
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, session)
		next(w, r.WithContext(ctx))
	}
}

func (h *Handler) authenticate(r *http.Request) (store.Session, error) {
	sessionID := sessionIDFromRequest(r)
	if sessionID == "" {
		return store.Session{}, store.ErrUnauthorized
	}
	session, err := h.store.GetSession(r.Context(), sessionID)
	if err != nil {
		return store.Session{}, err
	}
	if !session.ExpiresAt.IsZero() && h.clock.Now().After(session.ExpiresAt) {
		return store.Session{}, store.ErrUnauthorized
	}
	return session, nil
}

func sessionFromContext(ctx context.Context) (store.Session, bool) {
	session, ok := ctx.Value(authContextKey{}).(store.Session)
	return session, ok
}

func requireManager(w http.ResponseWriter, r *http.Request) (store.Session, bool) {
	session, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
		return store.Session{}, false
	}
	if session.Role != models.RoleManager {
		writeError(w, requestIDFromRequest(r), http.StatusForbidden, "forbidden", "manager access required")
		return store.Session{}, false
	}
	return session, true
}

// venueScope returns the venue a staff call operates on. The venue_id query
// parameter is optional and must match the session's venue.
func venueScope(w http.ResponseWriter, r *http.Request) (int64, bool) {
	session, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
		return 0, false
	}
	raw := strings.TrimSpace(r.URL.Query().Get("venue_id"))
	if raw == "" {
		return session.VenueID, true
	}
	venueID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || venueID <= 0 {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "venue_id must be a positive integer")
		return 0, false
	}
	return venueID, requireVenue(w, r, venueID)
}

func requireVenue(w http.ResponseWriter, r *http.Request, venueID int64) bool {
	session, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
		return false
	}
	if session.VenueID != venueID {
		writeError(w, requestIDFromRequest(r), http.StatusForbidden, "forbidden", "venue access denied")
		return false
	}
	return true
}

func sessionIDFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	if id := strings.TrimSpace(r.Header.Get("X-Session-ID")); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get("session_id"))
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}
