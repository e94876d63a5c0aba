package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kushalX13/CurbKey/internal/lifecycle"
	"github.com/kushalX13/CurbKey/internal/models"
	"github.com/kushalX13/CurbKey/internal/store"
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

type Store struct {
	db       DB
	claimTTL time.Duration
}

type Options struct {
	ClaimTTL time.Duration
}

func NewStore(db DB, options Options) *Store {
	ttl := options.ClaimTTL
	if ttl <= 0 {
		ttl = store.DefaultClaimTTL
	}
	return &Store{db: db, claimTTL: ttl}
}

var _ store.Store = (*Store)(nil)

const requestSelect = `
	SELECT r.id, r.ticket_id, t.venue_id, t.token, r.exit_id, e.code, r.status, r.scheduled_for,
		r.reschedule_count, r.last_rescheduled_at, t.car_number, t.vehicle_description, t.claimed_phone,
		r.delivered_by, r.delivered_at, r.created_at, r.updated_at
	FROM requests r
	JOIN tickets t ON t.id = r.ticket_id
	JOIN exits e ON e.id = r.exit_id
`

const ticketSelect = `
	SELECT id, venue_id, token, car_number, vehicle_description, claim_code, claim_code_expires_at,
		claimed_at, claimed_phone, created_at, closed_at
	FROM tickets
`

const eventSelect = `
	SELECT e.id, e.ticket_id, e.venue_id, e.request_id, r.exit_id, e.from_status, e.to_status, e.note, e.created_at
	FROM status_events e
	JOIN requests r ON r.id = e.request_id
`

// eventLogLock serializes status_events inserts until commit, so ids become
// visible in the order they are handed out and readers paging by id > N never
// pass over a row that commits later.
const eventLogLock = `SELECT pg_advisory_xact_lock($1)`

const eventLogLockKey int64 = 0x637572626b6579

const eventInsert = `
	INSERT INTO status_events (ticket_id, venue_id, request_id, from_status, to_status, note, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7)
	RETURNING id
`

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	var session store.Session
	row := s.db.QueryRow(ctx, `
		SELECT session_id, user_id, venue_id, role, expires_at
		FROM sessions
		WHERE session_id = $1 AND expires_at > now()
	`, sessionID)
	if err := row.Scan(&session.SessionID, &session.UserID, &session.VenueID, &session.Role, &session.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Session{}, store.ErrSessionNotFound
		}
		return store.Session{}, err
	}
	return session, nil
}

func (s *Store) GetVenue(ctx context.Context, venueID int64) (models.Venue, error) {
	return s.getVenue(ctx, `SELECT id, name, slug FROM venues WHERE id = $1`, venueID)
}

func (s *Store) GetVenueBySlug(ctx context.Context, slug string) (models.Venue, error) {
	return s.getVenue(ctx, `SELECT id, name, slug FROM venues WHERE slug = $1`, slug)
}

func (s *Store) getVenue(ctx context.Context, query string, arg any) (models.Venue, error) {
	var venue models.Venue
	if err := s.db.QueryRow(ctx, query, arg).Scan(&venue.ID, &venue.Name, &venue.Slug); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Venue{}, store.NotFound(store.ErrVenueNotFound)
		}
		return models.Venue{}, err
	}
	exits, err := s.ListExits(ctx, venue.ID)
	if err != nil {
		return models.Venue{}, err
	}
	venue.Exits = exits
	return venue, nil
}

func (s *Store) ListExits(ctx context.Context, venueID int64) ([]models.Exit, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, venue_id, code, name, is_active
		FROM exits
		WHERE venue_id = $1 AND is_active
		ORDER BY id ASC
	`, venueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exits []models.Exit
	for rows.Next() {
		var exit models.Exit
		if err := rows.Scan(&exit.ID, &exit.VenueID, &exit.Code, &exit.Name, &exit.IsActive); err != nil {
			return nil, err
		}
		exits = append(exits, exit)
	}
	return exits, rows.Err()
}

func (s *Store) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var exists bool
	if err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM venues WHERE id = $1)`, input.VenueID).Scan(&exists); err != nil {
		return models.Ticket{}, err
	}
	if !exists {
		err = store.NotFound(store.ErrVenueNotFound)
		return models.Ticket{}, err
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	ttl := input.ClaimTTL
	if ttl <= 0 {
		ttl = s.claimTTL
	}

	code, err := uniqueClaimCode(ctx, tx, input.VenueID, createdAt)
	if err != nil {
		return models.Ticket{}, err
	}
	token, err := store.NewToken()
	if err != nil {
		return models.Ticket{}, err
	}
	expires := createdAt.Add(ttl)

	ticket := models.Ticket{
		VenueID:            input.VenueID,
		Token:              token,
		ClaimCode:          code,
		ClaimCodeExpiresAt: &expires,
		CreatedAt:          createdAt,
	}
	if err = tx.QueryRow(ctx, `
		INSERT INTO tickets (venue_id, token, claim_code, claim_code_expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id
	`, input.VenueID, token, code, expires, createdAt).Scan(&ticket.ID); err != nil {
		return models.Ticket{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func uniqueClaimCode(ctx context.Context, q queryer, venueID int64, now time.Time) (string, error) {
	for i := 0; i < store.ClaimCodeAttempts; i++ {
		code, err := store.NewClaimCode()
		if err != nil {
			return "", err
		}
		var taken bool
		if err := q.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM tickets
				WHERE venue_id = $1 AND claim_code = $2 AND claimed_at IS NULL AND claim_code_expires_at > $3
			)
		`, venueID, code, now).Scan(&taken); err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", store.ErrClaimCodeExhausted
}

func (s *Store) GetTicket(ctx context.Context, ticketID int64) (models.Ticket, error) {
	return s.getTicket(ctx, ticketSelect+` WHERE id = $1`, ticketID)
}

func (s *Store) GetTicketByToken(ctx context.Context, token string) (models.Ticket, error) {
	return s.getTicket(ctx, ticketSelect+` WHERE token = $1`, token)
}

func (s *Store) FindTicketByClaimCode(ctx context.Context, venueID int64, code, phone string) (models.Ticket, error) {
	row := s.db.QueryRow(ctx, ticketSelect+`
		WHERE venue_id = $1 AND claim_code = $2
		ORDER BY COALESCE(claimed_phone = $3, FALSE) DESC, (claimed_at IS NULL) DESC, id DESC
		LIMIT 1
	`, venueID, code, phone)
	return scanTicketRow(row)
}

func (s *Store) getTicket(ctx context.Context, query string, arg any) (models.Ticket, error) {
	ticket, err := scanTicketRow(s.db.QueryRow(ctx, query, arg))
	if err != nil {
		return models.Ticket{}, err
	}
	ticket.ClaimedPhoneMasked = store.MaskPhone(ticket.ClaimedPhone)
	ticket.ClaimedPhone = ""
	return ticket, nil
}

func (s *Store) UpdateCarDetails(ctx context.Context, input store.UpdateCarInput) (models.Ticket, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE tickets SET car_number = $2, vehicle_description = $3
		WHERE id = $1
	`, input.TicketID, strings.TrimSpace(input.CarNumber), strings.TrimSpace(input.VehicleDescription))
	if err != nil {
		return models.Ticket{}, err
	}
	if tag.RowsAffected() == 0 {
		return models.Ticket{}, store.NotFound(store.ErrTicketNotFound)
	}
	return s.GetTicket(ctx, input.TicketID)
}

func (s *Store) MarkClaimed(ctx context.Context, input store.ClaimInput) (models.Ticket, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE tickets SET claimed_at = $2, claimed_phone = $3
		WHERE id = $1 AND claimed_at IS NULL
		RETURNING id, venue_id, token, car_number, vehicle_description, claim_code, claim_code_expires_at,
			claimed_at, claimed_phone, created_at, closed_at
	`, input.TicketID, input.ClaimedAt, input.Phone)
	ticket, err := scanTicketRow(row)
	if err == nil {
		return ticket, nil
	}
	if !errors.Is(err, store.ErrTicketNotFound) {
		return models.Ticket{}, err
	}

	// Either the ticket does not exist or someone claimed it first.
	current, err := scanTicketRow(s.db.QueryRow(ctx, ticketSelect+` WHERE id = $1`, input.TicketID))
	if err != nil {
		return models.Ticket{}, err
	}
	if current.ClaimedPhone != input.Phone {
		return models.Ticket{}, store.ErrAlreadyClaimed
	}
	return current, nil
}

func (s *Store) CreateRequest(ctx context.Context, input store.CreateRequestInput) (models.Request, bool, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Request{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var venueID int64
	if err = tx.QueryRow(ctx, `SELECT venue_id FROM tickets WHERE id = $1 FOR UPDATE`, input.TicketID).Scan(&venueID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.NotFound(store.ErrTicketNotFound)
		}
		return models.Request{}, false, err
	}

	var exitCode string
	if err = tx.QueryRow(ctx, `SELECT code FROM exits WHERE id = $1 AND venue_id = $2 AND is_active`, input.ExitID, venueID).Scan(&exitCode); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrInvalidExit
		}
		return models.Request{}, false, err
	}

	now := input.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	status, scheduledFor, err := lifecycle.InitialStatus(now, input.DelayMinutes, input.ScheduledFor)
	if err != nil {
		return models.Request{}, false, err
	}

	var activeID int64
	err = tx.QueryRow(ctx, `
		SELECT id FROM requests
		WHERE ticket_id = $1 AND status = ANY($2)
		ORDER BY id DESC
		LIMIT 1
	`, input.TicketID, statusStrings(lifecycle.ActiveStatuses())).Scan(&activeID)
	switch {
	case err == nil:
		var existing models.Request
		if existing, err = scanRequestRow(tx.QueryRow(ctx, requestSelect+` WHERE r.id = $1`, activeID)); err != nil {
			return models.Request{}, false, err
		}
		if err = tx.Commit(ctx); err != nil {
			return models.Request{}, false, err
		}
		return existing, false, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return models.Request{}, false, err
	}

	var requestID int64
	if err = tx.QueryRow(ctx, `
		INSERT INTO requests (ticket_id, exit_id, status, scheduled_for, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$5)
		RETURNING id
	`, input.TicketID, input.ExitID, string(status), scheduledFor, now).Scan(&requestID); err != nil {
		return models.Request{}, false, err
	}

	note := lifecycle.CreationNote(status, now, scheduledFor, exitCode)
	if _, err = insertEvent(ctx, tx, input.TicketID, venueID, requestID, models.StatusNone, status, note, now); err != nil {
		return models.Request{}, false, err
	}

	req, err := scanRequestRow(tx.QueryRow(ctx, requestSelect+` WHERE r.id = $1`, requestID))
	if err != nil {
		return models.Request{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Request{}, false, err
	}
	return req, true, nil
}

func (s *Store) GetRequest(ctx context.Context, requestID int64) (models.Request, error) {
	return scanRequestRow(s.db.QueryRow(ctx, requestSelect+` WHERE r.id = $1`, requestID))
}

func (s *Store) LatestRequest(ctx context.Context, ticketID int64) (models.Request, bool, error) {
	req, err := scanRequestRow(s.db.QueryRow(ctx, requestSelect+` WHERE r.ticket_id = $1 ORDER BY r.id DESC LIMIT 1`, ticketID))
	if err != nil {
		if errors.Is(err, store.ErrRequestNotFound) {
			if _, terr := s.GetTicket(ctx, ticketID); terr != nil {
				return models.Request{}, false, terr
			}
			return models.Request{}, false, nil
		}
		return models.Request{}, false, err
	}
	return req, true, nil
}

func (s *Store) Transition(ctx context.Context, input store.TransitionInput) (models.Request, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Request{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var (
		raw      string
		ticketID int64
		venueID  int64
	)
	if err = tx.QueryRow(ctx, `
		SELECT r.status, r.ticket_id, t.venue_id
		FROM requests r JOIN tickets t ON t.id = r.ticket_id
		WHERE r.id = $1
		FOR UPDATE OF r
	`, input.RequestID).Scan(&raw, &ticketID, &venueID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.NotFound(store.ErrRequestNotFound)
		}
		return models.Request{}, err
	}
	current := models.Status(raw)
	if err = lifecycle.Validate(current, input.Target); err != nil {
		return models.Request{}, err
	}

	now := input.OccurredAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	tag, err := tx.Exec(ctx, `
		UPDATE requests SET status = $2, updated_at = $3,
			delivered_by = CASE WHEN $2 = 'PICKED_UP' THEN $4 ELSE delivered_by END,
			delivered_at = CASE WHEN $2 = 'PICKED_UP' THEN $3 ELSE delivered_at END
		WHERE id = $1 AND status = $5
	`, input.RequestID, string(input.Target), now, nullIfEmpty(input.ActorID), string(current))
	if err != nil {
		return models.Request{}, err
	}
	if tag.RowsAffected() == 0 {
		err = fmt.Errorf("%w: request %d changed concurrently", store.ErrInvalidTransition, input.RequestID)
		return models.Request{}, err
	}

	if input.Target == models.StatusPickedUp {
		if _, err = tx.Exec(ctx, `UPDATE tickets SET closed_at = $2 WHERE id = $1 AND closed_at IS NULL`, ticketID, now); err != nil {
			return models.Request{}, err
		}
	}
	if _, err = insertEvent(ctx, tx, ticketID, venueID, input.RequestID, current, input.Target, input.Note, now); err != nil {
		return models.Request{}, err
	}

	req, err := scanRequestRow(tx.QueryRow(ctx, requestSelect+` WHERE r.id = $1`, input.RequestID))
	if err != nil {
		return models.Request{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Request{}, err
	}
	return req, nil
}

func (s *Store) Reschedule(ctx context.Context, input store.RescheduleInput) (models.Request, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Request{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	req, err := scanRequestRow(tx.QueryRow(ctx, requestSelect+` WHERE r.id = $1 AND r.ticket_id = $2 FOR UPDATE OF r`, input.RequestID, input.TicketID))
	if err != nil {
		return models.Request{}, err
	}

	now := input.OccurredAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	at, err := lifecycle.CheckReschedule(req, now, input.DelayMinutes)
	if err != nil {
		return models.Request{}, err
	}

	if _, err = tx.Exec(ctx, `
		UPDATE requests
		SET scheduled_for = $2, reschedule_count = reschedule_count + 1, last_rescheduled_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'SCHEDULED'
	`, req.ID, at, now); err != nil {
		return models.Request{}, err
	}
	note := lifecycle.RescheduleNote(input.DelayMinutes)
	if _, err = insertEvent(ctx, tx, req.TicketID, req.VenueID, req.ID, models.StatusScheduled, models.StatusScheduled, note, now); err != nil {
		return models.Request{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Request{}, err
	}
	req.ScheduledFor = &at
	req.RescheduleCount++
	req.LastRescheduledAt = &now
	req.UpdatedAt = now
	return req, nil
}

// Tick promotes due SCHEDULED requests. Rows locked by a concurrent tick are
// skipped and the status guard on the UPDATE keeps promotion single-shot.
func (s *Store) Tick(ctx context.Context, now time.Time, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	rows, err := tx.Query(ctx, `
		SELECT r.id, r.ticket_id, t.venue_id
		FROM requests r JOIN tickets t ON t.id = r.ticket_id
		WHERE r.status = 'SCHEDULED' AND r.scheduled_for <= $1
		ORDER BY r.scheduled_for ASC
		FOR UPDATE OF r SKIP LOCKED
		LIMIT $2
	`, now, batchSize)
	if err != nil {
		return 0, err
	}

	type dueItem struct {
		requestID int64
		ticketID  int64
		venueID   int64
	}
	var items []dueItem
	for rows.Next() {
		var item dueItem
		if err = rows.Scan(&item.requestID, &item.ticketID, &item.venueID); err != nil {
			rows.Close()
			return 0, err
		}
		items = append(items, item)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return 0, err
	}

	promoted := 0
	for _, item := range items {
		var tag pgconn.CommandTag
		tag, err = tx.Exec(ctx, `UPDATE requests SET status = 'REQUESTED', updated_at = $2 WHERE id = $1 AND status = 'SCHEDULED'`, item.requestID, now)
		if err != nil {
			return 0, err
		}
		if tag.RowsAffected() == 0 {
			continue
		}
		if _, err = insertEvent(ctx, tx, item.ticketID, item.venueID, item.requestID, models.StatusScheduled, models.StatusRequested, lifecycle.AutoTriggeredNote, now); err != nil {
			return 0, err
		}
		promoted++
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	return promoted, nil
}

func (s *Store) ListRequests(ctx context.Context, input store.ListRequestsInput) (models.RequestPage, error) {
	limit := lifecycle.ClampLimit(input.Limit)
	query := requestSelect + ` WHERE t.venue_id = $1 AND r.status = ANY($2)`
	args := []interface{}{input.VenueID, statusStrings(input.Scope.Statuses())}
	if input.Cursor > 0 {
		query += " AND r.id < $3"
		args = append(args, input.Cursor)
	}
	query += fmt.Sprintf(" ORDER BY r.id DESC LIMIT %d", limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return models.RequestPage{}, err
	}
	defer rows.Close()

	page := models.RequestPage{Requests: []models.Request{}}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return models.RequestPage{}, err
		}
		page.Requests = append(page.Requests, req)
	}
	if err := rows.Err(); err != nil {
		return models.RequestPage{}, err
	}
	if len(page.Requests) > limit {
		page.Requests = page.Requests[:limit]
		next := page.Requests[limit-1].ID
		page.NextCursor = &next
	}
	return page, nil
}

func (s *Store) QueueByExit(ctx context.Context, venueID int64) ([]store.ExitQueue, error) {
	rows, err := s.db.Query(ctx, `
		SELECT r.exit_id, count(*), count(*) FILTER (WHERE r.status = 'SCHEDULED')
		FROM requests r JOIN tickets t ON t.id = r.ticket_id
		WHERE t.venue_id = $1 AND r.status = ANY($2)
		GROUP BY r.exit_id
		ORDER BY r.exit_id
	`, venueID, statusStrings(lifecycle.ActiveStatuses()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.ExitQueue
	for rows.Next() {
		var q store.ExitQueue
		var count, scheduled int64
		if err := rows.Scan(&q.ExitID, &count, &scheduled); err != nil {
			return nil, err
		}
		q.Count = int(count)
		q.Scheduled = int(scheduled)
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *Store) ListEvents(ctx context.Context, filter store.EventFilter) ([]models.StatusEvent, error) {
	query := eventSelect + ` WHERE e.id > $1`
	args := []interface{}{filter.AfterID}
	if filter.VenueID != 0 {
		args = append(args, filter.VenueID)
		query += fmt.Sprintf(" AND e.venue_id = $%d", len(args))
	}
	if filter.TicketID != 0 {
		args = append(args, filter.TicketID)
		query += fmt.Sprintf(" AND e.ticket_id = $%d", len(args))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		query += fmt.Sprintf(" AND e.created_at >= $%d", len(args))
	}
	query += " ORDER BY e.id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	return s.queryEvents(ctx, query, args...)
}

func (s *Store) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM status_events`).Scan(&id)
	return id, err
}

func (s *Store) ListAudit(ctx context.Context, venueID int64, limit int) ([]models.StatusEvent, error) {
	if limit <= 0 {
		limit = 200
	}
	return s.queryEvents(ctx, eventSelect+` WHERE e.venue_id = $1 ORDER BY e.id DESC LIMIT $2`, venueID, limit)
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]models.StatusEvent, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.StatusEvent
	for rows.Next() {
		var ev models.StatusEvent
		var fromNull sql.NullString
		var to string
		if err := rows.Scan(&ev.ID, &ev.TicketID, &ev.VenueID, &ev.RequestID, &ev.ExitID, &fromNull, &to, &ev.Note, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.FromStatus = models.Status(fromNull.String)
		ev.ToStatus = models.Status(to)
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *Store) RecordTip(ctx context.Context, input store.RecordTipInput) (models.Tip, error) {
	if input.AmountCents <= 0 {
		return models.Tip{}, store.ErrInvalidTip
	}
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tip := models.Tip{RequestID: input.RequestID, AmountCents: input.AmountCents, Status: models.TipStatusRecorded, CreatedAt: createdAt}
	var deliveredBy sql.NullString
	if err := s.db.QueryRow(ctx, `
		SELECT t.venue_id, r.delivered_by
		FROM requests r JOIN tickets t ON t.id = r.ticket_id
		WHERE r.id = $1
	`, input.RequestID).Scan(&tip.VenueID, &deliveredBy); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Tip{}, store.NotFound(store.ErrRequestNotFound)
		}
		return models.Tip{}, err
	}
	tip.DeliveredBy = deliveredBy.String

	if err := s.db.QueryRow(ctx, `
		INSERT INTO tips (request_id, venue_id, amount_cents, status, created_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id
	`, tip.RequestID, tip.VenueID, tip.AmountCents, tip.Status, createdAt).Scan(&tip.ID); err != nil {
		return models.Tip{}, err
	}
	return tip, nil
}

func (s *Store) ListTips(ctx context.Context, venueID int64) ([]models.Tip, error) {
	rows, err := s.db.Query(ctx, `
		SELECT tp.id, tp.request_id, tp.venue_id, tp.amount_cents, tp.status, r.delivered_by, tp.created_at
		FROM tips tp JOIN requests r ON r.id = tp.request_id
		WHERE tp.venue_id = $1
		ORDER BY tp.id ASC
	`, venueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tips []models.Tip
	for rows.Next() {
		var tip models.Tip
		var deliveredBy sql.NullString
		if err := rows.Scan(&tip.ID, &tip.RequestID, &tip.VenueID, &tip.AmountCents, &tip.Status, &deliveredBy, &tip.CreatedAt); err != nil {
			return nil, err
		}
		tip.DeliveredBy = deliveredBy.String
		tips = append(tips, tip)
	}
	return tips, rows.Err()
}

// insertEvent must run inside a transaction. Callers take every row lock they
// need before it; the event-log lock is held to commit.
func insertEvent(ctx context.Context, q queryer, ticketID, venueID, requestID int64, from, to models.Status, note string, at time.Time) (int64, error) {
	if _, err := q.Exec(ctx, eventLogLock, eventLogLockKey); err != nil {
		return 0, fmt.Errorf("lock event log: %w", err)
	}
	var id int64
	err := q.QueryRow(ctx, eventInsert, ticketID, venueID, requestID, nullIfEmpty(string(from)), string(to), note, at).Scan(&id)
	return id, err
}

func scanRequestRow(row scanner) (models.Request, error) {
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Request{}, store.NotFound(store.ErrRequestNotFound)
	}
	return req, err
}

func scanRequest(row scanner) (models.Request, error) {
	var req models.Request
	var (
		status          string
		scheduledFor    sql.NullTime
		lastRescheduled sql.NullTime
		claimedPhone    sql.NullString
		deliveredBy     sql.NullString
		deliveredAt     sql.NullTime
	)
	if err := row.Scan(&req.ID, &req.TicketID, &req.VenueID, &req.TicketToken, &req.ExitID, &req.ExitCode, &status, &scheduledFor,
		&req.RescheduleCount, &lastRescheduled, &req.CarNumber, &req.VehicleDescription, &claimedPhone,
		&deliveredBy, &deliveredAt, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return models.Request{}, err
	}
	req.Status = models.Status(status)
	req.ScheduledFor = nullTimePtr(scheduledFor)
	req.LastRescheduledAt = nullTimePtr(lastRescheduled)
	req.ClaimedPhoneMasked = store.MaskPhone(claimedPhone.String)
	req.DeliveredBy = deliveredBy.String
	req.DeliveredAt = nullTimePtr(deliveredAt)
	return req, nil
}

func scanTicketRow(row scanner) (models.Ticket, error) {
	var ticket models.Ticket
	var (
		claimCode    sql.NullString
		expiresAt    sql.NullTime
		claimedAt    sql.NullTime
		claimedPhone sql.NullString
		closedAt     sql.NullTime
	)
	if err := row.Scan(&ticket.ID, &ticket.VenueID, &ticket.Token, &ticket.CarNumber, &ticket.VehicleDescription,
		&claimCode, &expiresAt, &claimedAt, &claimedPhone, &ticket.CreatedAt, &closedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.NotFound(store.ErrTicketNotFound)
		}
		return models.Ticket{}, err
	}
	ticket.ClaimCode = claimCode.String
	ticket.ClaimCodeExpiresAt = nullTimePtr(expiresAt)
	ticket.ClaimedAt = nullTimePtr(claimedAt)
	ticket.ClaimedPhone = claimedPhone.String
	ticket.ClosedAt = nullTimePtr(closedAt)
	return ticket, nil
}

func statusStrings(statuses []models.Status) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time.UTC()
	return &t
}
