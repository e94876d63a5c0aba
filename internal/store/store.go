package store

import (
	"context"
	"time"

	"github.com/kushalX13/CurbKey/internal/lifecycle"
	"github.com/kushalX13/CurbKey/internal/models"
)

type CreateTicketInput struct {
	VenueID   int64
	ClaimTTL  time.Duration
	CreatedAt time.Time
}

type UpdateCarInput struct {
	TicketID           int64
	CarNumber          string
	VehicleDescription string
}

type ClaimInput struct {
	TicketID  int64
	Phone     string
	ClaimedAt time.Time
}

type CreateRequestInput struct {
	TicketID     int64
	ExitID       int64
	DelayMinutes int
	ScheduledFor *time.Time
	CreatedAt    time.Time
}

type TransitionInput struct {
	RequestID  int64
	Target     models.Status
	ActorID    string
	Note       string
	OccurredAt time.Time
}

type RescheduleInput struct {
	TicketID     int64
	RequestID    int64
	DelayMinutes int
	OccurredAt   time.Time
}

type ListRequestsInput struct {
	VenueID int64
	Scope   lifecycle.Scope
	Cursor  int64
	Limit   int
}

type EventFilter struct {
	VenueID  int64
	TicketID int64
	AfterID  int64
	Since    time.Time
	Limit    int
}

type RecordTipInput struct {
	RequestID   int64
	AmountCents int64
	CreatedAt   time.Time
}

// ExitQueue counts active requests waiting on one exit. Scheduled is the
// subset not yet requested.
type ExitQueue struct {
	ExitID    int64
	Count     int
	Scheduled int
}

type Session struct {
	SessionID string
	UserID    string
	VenueID   int64
	Role      string
	ExpiresAt time.Time
}

// Store is the single source of truth for venues, tickets, requests and the
// status event log. Implementations must make Transition and Tick safe under
// concurrent callers.
type Store interface {
	GetSession(ctx context.Context, sessionID string) (Session, error)

	GetVenue(ctx context.Context, venueID int64) (models.Venue, error)
	GetVenueBySlug(ctx context.Context, slug string) (models.Venue, error)
	ListExits(ctx context.Context, venueID int64) ([]models.Exit, error)

	CreateTicket(ctx context.Context, input CreateTicketInput) (models.Ticket, error)
	GetTicket(ctx context.Context, ticketID int64) (models.Ticket, error)
	GetTicketByToken(ctx context.Context, token string) (models.Ticket, error)
	UpdateCarDetails(ctx context.Context, input UpdateCarInput) (models.Ticket, error)
	// FindTicketByClaimCode resolves a code at a venue for one phone. A ticket
	// that phone already claimed wins, then an unclaimed ticket, then the
	// newest ticket holding the code.
	FindTicketByClaimCode(ctx context.Context, venueID int64, code, phone string) (models.Ticket, error)
	MarkClaimed(ctx context.Context, input ClaimInput) (models.Ticket, error)

	CreateRequest(ctx context.Context, input CreateRequestInput) (models.Request, bool, error)
	GetRequest(ctx context.Context, requestID int64) (models.Request, error)
	LatestRequest(ctx context.Context, ticketID int64) (models.Request, bool, error)
	Transition(ctx context.Context, input TransitionInput) (models.Request, error)
	Reschedule(ctx context.Context, input RescheduleInput) (models.Request, error)
	Tick(ctx context.Context, now time.Time, batchSize int) (int, error)
	ListRequests(ctx context.Context, input ListRequestsInput) (models.RequestPage, error)
	QueueByExit(ctx context.Context, venueID int64) ([]ExitQueue, error)

	ListEvents(ctx context.Context, filter EventFilter) ([]models.StatusEvent, error)
	LatestEventID(ctx context.Context) (int64, error)
	ListAudit(ctx context.Context, venueID int64, limit int) ([]models.StatusEvent, error)

	RecordTip(ctx context.Context, input RecordTipInput) (models.Tip, error)
	ListTips(ctx context.Context, venueID int64) ([]models.Tip, error)
}
