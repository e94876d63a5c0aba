package syncengine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/kushalX13/CurbKey/internal/lifecycle"
	"github.com/kushalX13/CurbKey/internal/models"
	"github.com/kushalX13/CurbKey/internal/sse"
	"github.com/kushalX13/CurbKey/internal/stats"
	"github.com/kushalX13/CurbKey/internal/store"
)

const defaultTimeout = 10 * time.Second

// ClientOptions configure a Client. Session is the staff session id sent as
// a bearer token; guest calls authenticate with the ticket token in the path
// and leave it empty. Timeout bounds every call except event streams.
type ClientOptions struct {
	Session    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client talks to the valet HTTP API and maps failures onto the error
// taxonomy in this package.
type Client struct {
	baseURL string
	session string
	http    *http.Client
	timeout time.Duration
}

func NewClient(baseURL string, opts ClientOptions) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		session: opts.Session,
		http:    httpClient,
		timeout: timeout,
	}
}

// WithSession returns a copy of the client authenticated as session.
func (c *Client) WithSession(session string) *Client {
	clone := *c
	clone.session = session
	return &clone
}

// APIError is a non-2xx response. It unwraps to the matching sentinel so
// callers can use errors.Is.
type APIError struct {
	Status  int
	Code    string
	Message string
	kind    error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return http.StatusText(e.Status)
}

func (e *APIError) Unwrap() error { return e.kind }

type errorEnvelope struct {
	RequestID string `json:"request_id"`
	Error     struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func classify(status int, code string) error {
	switch code {
	case "invalid_transition":
		return ErrInvalidTransition
	case "code_expired":
		return ErrCodeExpired
	case "invalid_code":
		return ErrInvalidCode
	case "cooldown":
		return ErrCooldown
	case "rate_limited":
		return ErrRateLimited
	case "reschedule_window":
		return ErrRescheduleWindow
	case "reschedule_limit":
		return ErrRescheduleLimit
	case "invalid_exit":
		return ErrInvalidExit
	case "venue_not_found":
		return store.NotFound(ErrVenueNotFound)
	case "forbidden":
		return errors.Join(ErrUnauthorized, ErrForbidden)
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrInvalidTransition
	case http.StatusGone:
		return ErrCodeExpired
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return ErrNetworkUnavailable
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var envelope errorEnvelope
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(body, &envelope); err == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}
	apiErr.kind = classify(apiErr.Status, apiErr.Code)
	return apiErr
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session != "" {
		req.Header.Set("Authorization", "Bearer "+c.session)
	}
	return req, nil
}

// transportError keeps caller cancellation as is and reports everything else
// that kept the request from completing as the network being unavailable.
func transportError(parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(callCtx, method, path, query, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if callCtx.Err() != nil {
			return transportError(ctx, err)
		}
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func venueQuery(venueID int64) url.Values {
	query := url.Values{}
	if venueID > 0 {
		query.Set("venue_id", strconv.FormatInt(venueID, 10))
	}
	return query
}

func (c *Client) ListRequests(ctx context.Context, venueID int64, scope lifecycle.Scope, cursor int64, limit int) (models.RequestPage, error) {
	query := venueQuery(venueID)
	if scope != "" {
		query.Set("scope", string(scope))
	}
	if cursor > 0 {
		query.Set("cursor", strconv.FormatInt(cursor, 10))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var page models.RequestPage
	if err := c.do(ctx, http.MethodGet, "/api/requests", query, nil, &page); err != nil {
		return models.RequestPage{}, err
	}
	return page, nil
}

func (c *Client) Transition(ctx context.Context, requestID int64, target models.Status, note string) (models.Request, error) {
	body := map[string]string{"status": string(target)}
	if note != "" {
		body["note"] = note
	}
	var out struct {
		Request models.Request `json:"request"`
	}
	path := fmt.Sprintf("/api/requests/%d/status", requestID)
	if err := c.do(ctx, http.MethodPatch, path, nil, body, &out); err != nil {
		return models.Request{}, err
	}
	return out.Request, nil
}

func (c *Client) RecordTip(ctx context.Context, requestID, amountCents int64) (models.Tip, error) {
	var out struct {
		Tip models.Tip `json:"tip"`
	}
	path := fmt.Sprintf("/api/requests/%d/tips", requestID)
	if err := c.do(ctx, http.MethodPost, path, nil, map[string]int64{"amount_cents": amountCents}, &out); err != nil {
		return models.Tip{}, err
	}
	return out.Tip, nil
}

type CreateTicketParams struct {
	VenueID            int64  `json:"venue_id,omitempty"`
	CarNumber          string `json:"car_number,omitempty"`
	VehicleDescription string `json:"vehicle_description,omitempty"`
}

// IssuedTicket is what staff hand to the guest at drop-off.
type IssuedTicket struct {
	Ticket    models.Ticket `json:"ticket"`
	GuestPath string        `json:"guest_path"`
	ClaimCode string        `json:"claim_code"`
	VenueSlug string        `json:"venue_slug"`
}

func (c *Client) CreateTicket(ctx context.Context, params CreateTicketParams) (IssuedTicket, error) {
	var out IssuedTicket
	if err := c.do(ctx, http.MethodPost, "/api/tickets", nil, params, &out); err != nil {
		return IssuedTicket{}, err
	}
	return out, nil
}

func (c *Client) UpdateCar(ctx context.Context, ticketID int64, carNumber, description string) (models.Ticket, error) {
	body := map[string]string{"car_number": carNumber, "vehicle_description": description}
	var out struct {
		Ticket models.Ticket `json:"ticket"`
	}
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/tickets/%d/car", ticketID), nil, body, &out); err != nil {
		return models.Ticket{}, err
	}
	return out.Ticket, nil
}

func (c *Client) Tick(ctx context.Context) (int, error) {
	var out struct {
		Flipped int `json:"flipped"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/scheduler/tick", nil, nil, &out); err != nil {
		return 0, err
	}
	return out.Flipped, nil
}

func (c *Client) ListEvents(ctx context.Context, venueID, afterID int64, limit int) ([]models.StatusEvent, error) {
	query := venueQuery(venueID)
	if afterID > 0 {
		query.Set("after_id", strconv.FormatInt(afterID, 10))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var evs []models.StatusEvent
	if err := c.do(ctx, http.MethodGet, "/api/events", query, nil, &evs); err != nil {
		return nil, err
	}
	return evs, nil
}

func (c *Client) Metrics(ctx context.Context, venueID int64, windowHours int) (stats.Metrics, error) {
	query := venueQuery(venueID)
	if windowHours > 0 {
		query.Set("window_hours", strconv.Itoa(windowHours))
	}
	var out stats.Metrics
	if err := c.do(ctx, http.MethodGet, "/api/metrics", query, nil, &out); err != nil {
		return stats.Metrics{}, err
	}
	return out, nil
}

func (c *Client) TipSummary(ctx context.Context, venueID int64) ([]models.TipSummary, error) {
	var out []models.TipSummary
	if err := c.do(ctx, http.MethodGet, "/api/tips/summary", venueQuery(venueID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Audit(ctx context.Context, venueID int64) ([]models.StatusEvent, error) {
	var out []models.StatusEvent
	if err := c.do(ctx, http.MethodGet, "/api/audit", venueQuery(venueID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TicketView is the guest's view of a ticket: the ticket plus its latest
// request, if any.
type TicketView struct {
	Ticket  models.Ticket   `json:"ticket"`
	Request *models.Request `json:"request"`
}

func ticketPath(token string, parts ...string) string {
	path := "/t/" + url.PathEscape(token)
	for _, part := range parts {
		path += "/" + part
	}
	return path
}

func (c *Client) GetTicket(ctx context.Context, token string) (TicketView, error) {
	var out TicketView
	if err := c.do(ctx, http.MethodGet, ticketPath(token), nil, nil, &out); err != nil {
		return TicketView{}, err
	}
	return out, nil
}

func (c *Client) Exits(ctx context.Context, token string) ([]models.Exit, error) {
	var out []models.Exit
	if err := c.do(ctx, http.MethodGet, ticketPath(token, "exits"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Recommend(ctx context.Context, token string) (stats.Recommendation, error) {
	var out stats.Recommendation
	if err := c.do(ctx, http.MethodGet, ticketPath(token, "recommendations"), nil, nil, &out); err != nil {
		return stats.Recommendation{}, err
	}
	return out, nil
}

type CreateRequestParams struct {
	ExitID       int64      `json:"exit_id"`
	DelayMinutes int        `json:"delay_minutes,omitempty"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
}

// CreateRequest asks for the car. The bool is true when the ticket already
// had an active request and that one was returned instead.
func (c *Client) CreateRequest(ctx context.Context, token string, params CreateRequestParams) (models.Request, bool, error) {
	var out struct {
		Request    models.Request `json:"request"`
		Idempotent bool           `json:"idempotent"`
	}
	if err := c.do(ctx, http.MethodPost, ticketPath(token, "request"), nil, params, &out); err != nil {
		return models.Request{}, false, err
	}
	return out.Request, out.Idempotent, nil
}

func (c *Client) Reschedule(ctx context.Context, token string, requestID int64, delayMinutes int) (models.Request, error) {
	var out struct {
		Request models.Request `json:"request"`
	}
	path := ticketPath(token, "request", strconv.FormatInt(requestID, 10), "schedule")
	if err := c.do(ctx, http.MethodPatch, path, nil, map[string]int{"delay_minutes": delayMinutes}, &out); err != nil {
		return models.Request{}, err
	}
	return out.Request, nil
}

func claimPath(slug, action string) string {
	return "/v/" + url.PathEscape(slug) + "/claim/" + action
}

func (c *Client) StartClaim(ctx context.Context, slug, phone string) error {
	return c.do(ctx, http.MethodPost, claimPath(slug, "start"), nil, map[string]string{"phone": phone}, nil)
}

func (c *Client) ConfirmClaim(ctx context.Context, slug, phone, code string) (models.ClaimResult, error) {
	body := map[string]string{"phone": phone, "claim_code": code}
	var out models.ClaimResult
	if err := c.do(ctx, http.MethodPost, claimPath(slug, "confirm"), nil, body, &out); err != nil {
		return models.ClaimResult{}, err
	}
	return out, nil
}

// openStream connects to an SSE endpoint. The connection lives until ctx is
// canceled or the server ends the response; the per-call timeout only covers
// the response headers.
func (c *Client) openStream(ctx context.Context, path string, query url.Values, lastID int64) (io.ReadCloser, error) {
	if query == nil {
		query = url.Values{}
	}
	if lastID > 0 {
		query.Set("last_id", strconv.FormatInt(lastID, 10))
	}
	streamCtx, cancel := context.WithCancel(ctx)
	req, err := c.newRequest(streamCtx, http.MethodGet, path, query, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", sse.ContentType)

	headers := time.AfterFunc(c.timeout, cancel)
	resp, err := c.http.Do(req)
	if !headers.Stop() && err == nil {
		resp.Body.Close()
		err = context.DeadlineExceeded
	}
	if err != nil {
		cancel()
		return nil, transportError(ctx, err)
	}
	if resp.StatusCode >= 300 {
		defer cancel()
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return streamBody{ReadCloser: resp.Body, cancel: cancel}, nil
}

type streamBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b streamBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// TicketEvents opens the guest event stream for one ticket.
func (c *Client) TicketEvents(token string) OpenFunc {
	return func(ctx context.Context, lastID int64) (io.ReadCloser, error) {
		return c.openStream(ctx, ticketPath(token, "events"), nil, lastID)
	}
}

// VenueEvents opens the staff event stream for a venue.
func (c *Client) VenueEvents(venueID int64) OpenFunc {
	return func(ctx context.Context, lastID int64) (io.ReadCloser, error) {
		return c.openStream(ctx, "/api/events/stream", venueQuery(venueID), lastID)
	}
}

// VenueSnapshot fetches every page of a venue scope.
func (c *Client) VenueSnapshot(venueID int64, scope lifecycle.Scope) FetchFunc {
	return func(ctx context.Context) ([]models.Request, error) {
		var (
			all    []models.Request
			cursor int64
		)
		for {
			page, err := c.ListRequests(ctx, venueID, scope, cursor, lifecycle.MaxPageLimit)
			if err != nil {
				return nil, err
			}
			all = append(all, page.Requests...)
			if page.NextCursor == nil {
				return all, nil
			}
			cursor = *page.NextCursor
		}
	}
}

// TicketSnapshot fetches the latest request of one ticket. A ticket without
// a request yields an empty snapshot.
func (c *Client) TicketSnapshot(token string) FetchFunc {
	return func(ctx context.Context) ([]models.Request, error) {
		view, err := c.GetTicket(ctx, token)
		if err != nil {
			return nil, err
		}
		if view.Request == nil {
			return nil, nil
		}
		return []models.Request{*view.Request}, nil
	}
}

// Pages adapts ListRequests to a Pager source.
func (c *Client) Pages(venueID int64, scope lifecycle.Scope) PageSource {
	return func(ctx context.Context, cursor int64, limit int) (models.RequestPage, error) {
		return c.ListRequests(ctx, venueID, scope, cursor, limit)
	}
}
