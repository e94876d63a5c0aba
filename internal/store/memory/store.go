// Package memory is an in-process Store used by tests and the single-binary
// dev mode. One mutex guards everything, so every operation is atomic.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kushalX13/CurbKey/internal/lifecycle"
	"github.com/kushalX13/CurbKey/internal/models"
	"github.com/kushalX13/CurbKey/internal/store"
)

type Store struct {
	mu sync.Mutex

	venues   map[int64]models.Venue
	exits    map[int64]models.Exit
	tickets  map[int64]*models.Ticket
	requests map[int64]*models.Request
	events   []models.StatusEvent
	tips     []models.Tip
	sessions map[string]store.Session

	nextID map[string]int64
}

func NewStore() *Store {
	return &Store{
		venues:   make(map[int64]models.Venue),
		exits:    make(map[int64]models.Exit),
		tickets:  make(map[int64]*models.Ticket),
		requests: make(map[int64]*models.Request),
		sessions: make(map[string]store.Session),
		nextID:   make(map[string]int64),
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) id(kind string) int64 {
	s.nextID[kind]++
	return s.nextID[kind]
}

// AddVenue seeds a venue with exits created in the given code order.
func (s *Store) AddVenue(name, slug string, exitCodes ...string) models.Venue {
	s.mu.Lock()
	defer s.mu.Unlock()
	venue := models.Venue{ID: s.id("venue"), Name: name, Slug: slug}
	for _, code := range exitCodes {
		exit := models.Exit{ID: s.id("exit"), VenueID: venue.ID, Code: code, Name: "Exit " + code, IsActive: true}
		s.exits[exit.ID] = exit
		venue.Exits = append(venue.Exits, exit)
	}
	s.venues[venue.ID] = venue
	return venue
}

func (s *Store) AddSession(session store.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.SessionID] = session
}

// SetClaimCode overrides the generated claim code and expiry of a ticket.
func (s *Store) SetClaimCode(ticketID int64, code string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return store.NotFound(store.ErrTicketNotFound)
	}
	t.ClaimCode = code
	exp := expiresAt
	t.ClaimCodeExpiresAt = &exp
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok || (!session.ExpiresAt.IsZero() && time.Now().After(session.ExpiresAt)) {
		return store.Session{}, store.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) GetVenue(ctx context.Context, venueID int64) (models.Venue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	venue, ok := s.venues[venueID]
	if !ok {
		return models.Venue{}, store.NotFound(store.ErrVenueNotFound)
	}
	return venue, nil
}

func (s *Store) GetVenueBySlug(ctx context.Context, slug string) (models.Venue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, venue := range s.venues {
		if venue.Slug == slug {
			return venue, nil
		}
	}
	return models.Venue{}, store.NotFound(store.ErrVenueNotFound)
}

func (s *Store) ListExits(ctx context.Context, venueID int64) ([]models.Exit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	venue, ok := s.venues[venueID]
	if !ok {
		return nil, store.NotFound(store.ErrVenueNotFound)
	}
	var exits []models.Exit
	for _, exit := range venue.Exits {
		if s.exits[exit.ID].IsActive {
			exits = append(exits, s.exits[exit.ID])
		}
	}
	return exits, nil
}

func (s *Store) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.venues[input.VenueID]; !ok {
		return models.Ticket{}, store.NotFound(store.ErrVenueNotFound)
	}
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	ttl := input.ClaimTTL
	if ttl <= 0 {
		ttl = store.DefaultClaimTTL
	}

	token, err := store.NewToken()
	if err != nil {
		return models.Ticket{}, err
	}
	code, err := s.uniqueClaimCode(input.VenueID, createdAt)
	if err != nil {
		return models.Ticket{}, err
	}
	expires := createdAt.Add(ttl)
	ticket := &models.Ticket{
		ID:                 s.id("ticket"),
		VenueID:            input.VenueID,
		Token:              token,
		ClaimCode:          code,
		ClaimCodeExpiresAt: &expires,
		CreatedAt:          createdAt,
	}
	s.tickets[ticket.ID] = ticket
	return *ticket, nil
}

func (s *Store) uniqueClaimCode(venueID int64, now time.Time) (string, error) {
	for i := 0; i < store.ClaimCodeAttempts; i++ {
		code, err := store.NewClaimCode()
		if err != nil {
			return "", err
		}
		taken := false
		for _, t := range s.tickets {
			if t.VenueID == venueID && t.ClaimCode == code && t.ClaimedAt == nil && !store.ClaimExpired(t.ClaimCodeExpiresAt, now) {
				taken = true
				break
			}
		}
		if !taken {
			return code, nil
		}
	}
	return "", store.ErrClaimCodeExhausted
}

func (s *Store) GetTicket(ctx context.Context, ticketID int64) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return models.Ticket{}, store.NotFound(store.ErrTicketNotFound)
	}
	return project(*t), nil
}

func (s *Store) GetTicketByToken(ctx context.Context, token string) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tickets {
		if t.Token == token {
			return project(*t), nil
		}
	}
	return models.Ticket{}, store.NotFound(store.ErrTicketNotFound)
}

func (s *Store) UpdateCarDetails(ctx context.Context, input store.UpdateCarInput) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[input.TicketID]
	if !ok {
		return models.Ticket{}, store.NotFound(store.ErrTicketNotFound)
	}
	t.CarNumber = strings.TrimSpace(input.CarNumber)
	t.VehicleDescription = strings.TrimSpace(input.VehicleDescription)
	return project(*t), nil
}

func (s *Store) FindTicketByClaimCode(ctx context.Context, venueID int64, code, phone string) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rank := func(t *models.Ticket) int {
		switch {
		case t.ClaimedAt != nil && t.ClaimedPhone == phone:
			return 2
		case t.ClaimedAt == nil:
			return 1
		}
		return 0
	}
	var found *models.Ticket
	for _, t := range s.tickets {
		if t.VenueID != venueID || t.ClaimCode != code {
			continue
		}
		if found == nil || rank(t) > rank(found) || (rank(t) == rank(found) && t.ID > found.ID) {
			found = t
		}
	}
	if found == nil {
		return models.Ticket{}, store.NotFound(store.ErrTicketNotFound)
	}
	return *found, nil
}

func (s *Store) MarkClaimed(ctx context.Context, input store.ClaimInput) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[input.TicketID]
	if !ok {
		return models.Ticket{}, store.NotFound(store.ErrTicketNotFound)
	}
	if t.ClaimedAt != nil {
		if t.ClaimedPhone != input.Phone {
			return models.Ticket{}, store.ErrAlreadyClaimed
		}
		return *t, nil
	}
	at := input.ClaimedAt
	t.ClaimedAt = &at
	t.ClaimedPhone = input.Phone
	return *t, nil
}

func (s *Store) CreateRequest(ctx context.Context, input store.CreateRequestInput) (models.Request, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[input.TicketID]
	if !ok {
		return models.Request{}, false, store.NotFound(store.ErrTicketNotFound)
	}
	exit, ok := s.exits[input.ExitID]
	if !ok || exit.VenueID != t.VenueID || !exit.IsActive {
		return models.Request{}, false, store.ErrInvalidExit
	}

	now := input.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	status, scheduledFor, err := lifecycle.InitialStatus(now, input.DelayMinutes, input.ScheduledFor)
	if err != nil {
		return models.Request{}, false, err
	}

	if latest := s.latestLocked(t.ID); latest != nil && lifecycle.IsActive(latest.Status) {
		return s.decorate(*latest), false, nil
	}

	req := &models.Request{
		ID:           s.id("request"),
		TicketID:     t.ID,
		ExitID:       exit.ID,
		Status:       status,
		ScheduledFor: scheduledFor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.requests[req.ID] = req
	s.appendEventLocked(req, models.StatusNone, status, lifecycle.CreationNote(status, now, scheduledFor, exit.Code), now)
	return s.decorate(*req), true, nil
}

func (s *Store) GetRequest(ctx context.Context, requestID int64) (models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return models.Request{}, store.NotFound(store.ErrRequestNotFound)
	}
	return s.decorate(*req), nil
}

func (s *Store) LatestRequest(ctx context.Context, ticketID int64) (models.Request, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[ticketID]; !ok {
		return models.Request{}, false, store.NotFound(store.ErrTicketNotFound)
	}
	latest := s.latestLocked(ticketID)
	if latest == nil {
		return models.Request{}, false, nil
	}
	return s.decorate(*latest), true, nil
}

func (s *Store) latestLocked(ticketID int64) *models.Request {
	var latest *models.Request
	for _, req := range s.requests {
		if req.TicketID == ticketID && (latest == nil || req.ID > latest.ID) {
			latest = req
		}
	}
	return latest
}

func (s *Store) Transition(ctx context.Context, input store.TransitionInput) (models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[input.RequestID]
	if !ok {
		return models.Request{}, store.NotFound(store.ErrRequestNotFound)
	}
	if err := lifecycle.Validate(req.Status, input.Target); err != nil {
		return models.Request{}, err
	}
	now := input.OccurredAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	from := req.Status
	req.Status = input.Target
	req.UpdatedAt = now
	if input.Target == models.StatusPickedUp {
		req.DeliveredBy = input.ActorID
		req.DeliveredAt = &now
		if t := s.tickets[req.TicketID]; t != nil && t.ClosedAt == nil {
			t.ClosedAt = &now
		}
	}
	s.appendEventLocked(req, from, input.Target, input.Note, now)
	return s.decorate(*req), nil
}

func (s *Store) Reschedule(ctx context.Context, input store.RescheduleInput) (models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[input.RequestID]
	if !ok || req.TicketID != input.TicketID {
		return models.Request{}, store.NotFound(store.ErrRequestNotFound)
	}
	now := input.OccurredAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	at, err := lifecycle.CheckReschedule(*req, now, input.DelayMinutes)
	if err != nil {
		return models.Request{}, err
	}
	req.ScheduledFor = &at
	req.RescheduleCount++
	req.LastRescheduledAt = &now
	req.UpdatedAt = now
	s.appendEventLocked(req, models.StatusScheduled, models.StatusScheduled, lifecycle.RescheduleNote(input.DelayMinutes), now)
	return s.decorate(*req), nil
}

func (s *Store) Tick(ctx context.Context, now time.Time, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*models.Request
	for _, req := range s.requests {
		if lifecycle.Due(*req, now) {
			due = append(due, req)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledFor.Before(*due[j].ScheduledFor) })
	if len(due) > batchSize {
		due = due[:batchSize]
	}
	for _, req := range due {
		req.Status = models.StatusRequested
		req.UpdatedAt = now
		s.appendEventLocked(req, models.StatusScheduled, models.StatusRequested, lifecycle.AutoTriggeredNote, now)
	}
	return len(due), nil
}

func (s *Store) ListRequests(ctx context.Context, input store.ListRequestsInput) (models.RequestPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit := lifecycle.ClampLimit(input.Limit)

	var matched []*models.Request
	for _, req := range s.requests {
		if input.VenueID != 0 && s.venueOf(req) != input.VenueID {
			continue
		}
		if !input.Scope.Contains(req.Status) {
			continue
		}
		if input.Cursor > 0 && req.ID >= input.Cursor {
			continue
		}
		matched = append(matched, req)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	page := models.RequestPage{Requests: []models.Request{}}
	hasMore := len(matched) > limit
	if hasMore {
		matched = matched[:limit]
	}
	for _, req := range matched {
		page.Requests = append(page.Requests, s.decorate(*req))
	}
	if hasMore {
		next := matched[len(matched)-1].ID
		page.NextCursor = &next
	}
	return page, nil
}

func (s *Store) QueueByExit(ctx context.Context, venueID int64) ([]store.ExitQueue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[int64]*store.ExitQueue{}
	for _, req := range s.requests {
		if s.venueOf(req) != venueID || !lifecycle.IsActive(req.Status) {
			continue
		}
		q, ok := counts[req.ExitID]
		if !ok {
			q = &store.ExitQueue{ExitID: req.ExitID}
			counts[req.ExitID] = q
		}
		q.Count++
		if req.Status == models.StatusScheduled {
			q.Scheduled++
		}
	}
	out := make([]store.ExitQueue, 0, len(counts))
	for _, q := range counts {
		out = append(out, *q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExitID < out[j].ExitID })
	return out, nil
}

func (s *Store) ListEvents(ctx context.Context, filter store.EventFilter) ([]models.StatusEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StatusEvent
	for _, ev := range s.events {
		if ev.ID <= filter.AfterID {
			continue
		}
		if filter.VenueID != 0 && ev.VenueID != filter.VenueID {
			continue
		}
		if filter.TicketID != 0 && ev.TicketID != filter.TicketID {
			continue
		}
		if !filter.Since.IsZero() && ev.CreatedAt.Before(filter.Since) {
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) LatestEventID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return 0, nil
	}
	return s.events[len(s.events)-1].ID, nil
}

func (s *Store) ListAudit(ctx context.Context, venueID int64, limit int) ([]models.StatusEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 200
	}
	var out []models.StatusEvent
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		if s.events[i].VenueID == venueID {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}

func (s *Store) RecordTip(ctx context.Context, input store.RecordTipInput) (models.Tip, error) {
	if input.AmountCents <= 0 {
		return models.Tip{}, store.ErrInvalidTip
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[input.RequestID]
	if !ok {
		return models.Tip{}, store.NotFound(store.ErrRequestNotFound)
	}
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	tip := models.Tip{
		ID:          s.id("tip"),
		RequestID:   req.ID,
		VenueID:     s.venueOf(req),
		AmountCents: input.AmountCents,
		Status:      models.TipStatusRecorded,
		DeliveredBy: req.DeliveredBy,
		CreatedAt:   createdAt,
	}
	s.tips = append(s.tips, tip)
	return tip, nil
}

func (s *Store) ListTips(ctx context.Context, venueID int64) ([]models.Tip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Tip
	for _, tip := range s.tips {
		if tip.VenueID == venueID {
			tip.DeliveredBy = s.requests[tip.RequestID].DeliveredBy
			out = append(out, tip)
		}
	}
	return out, nil
}

func (s *Store) appendEventLocked(req *models.Request, from, to models.Status, note string, at time.Time) {
	s.events = append(s.events, models.StatusEvent{
		ID:         s.id("event"),
		TicketID:   req.TicketID,
		VenueID:    s.venueOf(req),
		RequestID:  req.ID,
		ExitID:     req.ExitID,
		FromStatus: from,
		ToStatus:   to,
		Note:       note,
		CreatedAt:  at,
	})
}

func (s *Store) venueOf(req *models.Request) int64 {
	if t := s.tickets[req.TicketID]; t != nil {
		return t.VenueID
	}
	return 0
}

func (s *Store) decorate(req models.Request) models.Request {
	if t := s.tickets[req.TicketID]; t != nil {
		req.VenueID = t.VenueID
		req.TicketToken = t.Token
		req.CarNumber = t.CarNumber
		req.VehicleDescription = t.VehicleDescription
		req.ClaimedPhoneMasked = store.MaskPhone(t.ClaimedPhone)
	}
	if exit, ok := s.exits[req.ExitID]; ok {
		req.ExitCode = exit.Code
	}
	return req
}

func project(t models.Ticket) models.Ticket {
	t.ClaimedPhoneMasked = store.MaskPhone(t.ClaimedPhone)
	return t
}

