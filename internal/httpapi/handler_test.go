package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kushalX13/CurbKey/internal/clock"
	"github.com/kushalX13/CurbKey/internal/models"
	"github.com/kushalX13/CurbKey/internal/store"
)

// fakeStore implements only what a test sets; any other call panics on the
// nil embedded interface.
type fakeStore struct {
	store.Store
	sessions       map[string]store.Session
	getRequestFn   func(ctx context.Context, requestID int64) (models.Request, error)
	transitionFn   func(ctx context.Context, input store.TransitionInput) (models.Request, error)
	tickFn         func(ctx context.Context, now time.Time, batchSize int) (int, error)
	ticketByToken  func(ctx context.Context, token string) (models.Ticket, error)
	listRequestsFn func(ctx context.Context, input store.ListRequestsInput) (models.RequestPage, error)
}

func (f fakeStore) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	session, ok := f.sessions[sessionID]
	if !ok {
		return store.Session{}, store.ErrSessionNotFound
	}
	return session, nil
}

func (f fakeStore) GetRequest(ctx context.Context, requestID int64) (models.Request, error) {
	if f.getRequestFn == nil {
		return models.Request{}, store.NotFound(store.ErrRequestNotFound)
	}
	return f.getRequestFn(ctx, requestID)
}

func (f fakeStore) Transition(ctx context.Context, input store.TransitionInput) (models.Request, error) {
	if f.transitionFn == nil {
		return models.Request{}, nil
	}
	return f.transitionFn(ctx, input)
}

func (f fakeStore) Tick(ctx context.Context, now time.Time, batchSize int) (int, error) {
	if f.tickFn == nil {
		return 0, nil
	}
	return f.tickFn(ctx, now, batchSize)
}

func (f fakeStore) GetTicketByToken(ctx context.Context, token string) (models.Ticket, error) {
	if f.ticketByToken == nil {
		return models.Ticket{}, store.NotFound(store.ErrTicketNotFound)
	}
	return f.ticketByToken(ctx, token)
}

func (f fakeStore) ListRequests(ctx context.Context, input store.ListRequestsInput) (models.RequestPage, error) {
	if f.listRequestsFn == nil {
		return models.RequestPage{Requests: []models.Request{}}, nil
	}
	return f.listRequestsFn(ctx, input)
}

var testNow = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func staffSessions() map[string]store.Session {
	return map[string]store.Session{
		"valet-session":   {SessionID: "valet-session", UserID: "valet-1", VenueID: 1, Role: models.RoleValet},
		"manager-session": {SessionID: "manager-session", UserID: "manager-1", VenueID: 1, Role: models.RoleManager},
		"guest-session":   {SessionID: "guest-session", UserID: "guest-1", VenueID: 1, Role: models.RoleGuest},
		"expired-session": {SessionID: "expired-session", UserID: "valet-2", VenueID: 1, Role: models.RoleValet, ExpiresAt: testNow.Add(-time.Minute)},
	}
}

func newTestHandler(st store.Store) *Handler {
	return NewHandler(st, Options{Clock: clock.Fake(testNow)})
}

func serve(h *Handler, method, path, session string, body interface{}) *httptest.ResponseRecorder {
	var payload bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&payload).Encode(body)
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "req-1")
	if session != "" {
		req.Header.Set("Authorization", "Bearer "+session)
	}
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	rec := serve(newTestHandler(fakeStore{}), http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestStaffRoutesRequireSession(t *testing.T) {
	h := newTestHandler(fakeStore{sessions: staffSessions()})
	tests := []struct {
		name    string
		session string
		status  int
		code    string
	}{
		{"missing", "", http.StatusUnauthorized, "unauthorized"},
		{"unknown", "nope", http.StatusUnauthorized, "unauthorized"},
		{"expired", "expired-session", http.StatusUnauthorized, "unauthorized"},
		{"guest role", "guest-session", http.StatusForbidden, "forbidden"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(h, http.MethodGet, "/api/requests", tc.session, nil)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			resp := decodeError(t, rec)
			if resp.Error.Code != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, resp.Error.Code)
			}
			if resp.RequestID != "req-1" {
				t.Fatalf("expected request id echoed, got %q", resp.RequestID)
			}
		})
	}
}

func TestListRequestsScopesToSessionVenue(t *testing.T) {
	var got store.ListRequestsInput
	h := newTestHandler(fakeStore{
		sessions: staffSessions(),
		listRequestsFn: func(ctx context.Context, input store.ListRequestsInput) (models.RequestPage, error) {
			got = input
			return models.RequestPage{Requests: []models.Request{}}, nil
		},
	})

	rec := serve(h, http.MethodGet, "/api/requests?scope=history&cursor=40&limit=500", "valet-session", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.VenueID != 1 || got.Scope != "history" || got.Cursor != 40 || got.Limit != 100 {
		t.Fatalf("unexpected list input: %+v", got)
	}

	rec = serve(h, http.MethodGet, "/api/requests?venue_id=2", "valet-session", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for other venue, got %d", rec.Code)
	}

	rec = serve(h, http.MethodGet, "/api/requests?scope=archived", "valet-session", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad scope, got %d", rec.Code)
	}
}

func TestTransitionConflict(t *testing.T) {
	var actor string
	h := newTestHandler(fakeStore{
		sessions: staffSessions(),
		getRequestFn: func(ctx context.Context, requestID int64) (models.Request, error) {
			return models.Request{ID: requestID, VenueID: 1, Status: models.StatusReady}, nil
		},
		transitionFn: func(ctx context.Context, input store.TransitionInput) (models.Request, error) {
			actor = input.ActorID
			return models.Request{}, fmt.Errorf("%w: READY -> RETRIEVING", store.ErrInvalidTransition)
		},
	})

	rec := serve(h, http.MethodPatch, "/api/requests/5/status", "valet-session", map[string]string{"status": "retrieving"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error.Code != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %s", resp.Error.Code)
	}
	if actor != "valet-1" {
		t.Fatalf("expected actor valet-1, got %q", actor)
	}
}

func TestTransitionRejectsBadInput(t *testing.T) {
	h := newTestHandler(fakeStore{
		sessions: staffSessions(),
		getRequestFn: func(ctx context.Context, requestID int64) (models.Request, error) {
			return models.Request{ID: requestID, VenueID: 2, Status: models.StatusRequested}, nil
		},
	})

	tests := []struct {
		name   string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"unknown status", "/api/requests/5/status", map[string]string{"status": "PARKED"}, http.StatusBadRequest, "invalid_status"},
		{"missing status", "/api/requests/5/status", map[string]string{}, http.StatusBadRequest, "invalid_request"},
		{"unknown field", "/api/requests/5/status", map[string]string{"state": "READY"}, http.StatusBadRequest, "invalid_json"},
		{"bad id", "/api/requests/abc/status", map[string]string{"status": "READY"}, http.StatusBadRequest, "invalid_request"},
		{"other venue", "/api/requests/5/status", map[string]string{"status": "RETRIEVING"}, http.StatusForbidden, "forbidden"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(h, http.MethodPatch, tc.path, "valet-session", tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if resp := decodeError(t, rec); resp.Error.Code != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, resp.Error.Code)
			}
		})
	}
}

func TestTickRequiresManager(t *testing.T) {
	var gotNow time.Time
	var gotBatch int
	h := newTestHandler(fakeStore{
		sessions: staffSessions(),
		tickFn: func(ctx context.Context, now time.Time, batchSize int) (int, error) {
			gotNow, gotBatch = now, batchSize
			return 2, nil
		},
	})

	rec := serve(h, http.MethodPost, "/api/scheduler/tick", "valet-session", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for valet, got %d", rec.Code)
	}

	rec = serve(h, http.MethodPost, "/api/scheduler/tick", "manager-session", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["flipped"] != 2 || gotBatch != 100 || !gotNow.Equal(testNow) {
		t.Fatalf("unexpected tick call: flipped=%d batch=%d now=%s", resp["flipped"], gotBatch, gotNow)
	}
}

func TestGuestRoutesUnknownToken(t *testing.T) {
	h := newTestHandler(fakeStore{})
	rec := serve(h, http.MethodGet, "/t/missing", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error.Code != "ticket_not_found" {
		t.Fatalf("expected ticket_not_found, got %s", resp.Error.Code)
	}
}

func TestCreateRequestRequiresExit(t *testing.T) {
	h := newTestHandler(fakeStore{
		ticketByToken: func(ctx context.Context, token string) (models.Ticket, error) {
			return models.Ticket{ID: 3, VenueID: 1, Token: token}, nil
		},
	})
	rec := serve(h, http.MethodPost, "/t/tok/request", "", map[string]int{"delay_minutes": 5})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error.Code != "invalid_request" {
		t.Fatalf("expected invalid_request, got %s", resp.Error.Code)
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: READY -> REQUESTED", store.ErrInvalidTransition), http.StatusConflict, "invalid_transition"},
		{store.NotFound(store.ErrTicketNotFound), http.StatusNotFound, "ticket_not_found"},
		{store.NotFound(store.ErrRequestNotFound), http.StatusNotFound, "request_not_found"},
		{store.NotFound(store.ErrVenueNotFound), http.StatusNotFound, "venue_not_found"},
		{store.ErrNotFound, http.StatusNotFound, "not_found"},
		{store.ErrInvalidExit, http.StatusBadRequest, "invalid_exit"},
		{store.ErrCodeExpired, http.StatusGone, "code_expired"},
		{store.ErrInvalidCode, http.StatusBadRequest, "invalid_code"},
		{store.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{store.ErrRescheduleWindow, http.StatusBadRequest, "reschedule_window"},
		{store.ErrRescheduleLimit, http.StatusConflict, "reschedule_limit"},
		{store.ErrCooldown, http.StatusTooManyRequests, "cooldown"},
		{store.ErrInvalidTip, http.StatusBadRequest, "invalid_tip"},
		{store.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{store.ErrForbidden, http.StatusForbidden, "forbidden"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			status, code, _ := mapError(tc.err)
			if status != tc.status || code != tc.code {
				t.Fatalf("expected %d/%s, got %d/%s", tc.status, tc.code, status, code)
			}
		})
	}
}
