package models

import "time"

type Status string

const (
	StatusNone       Status = ""
	StatusScheduled  Status = "SCHEDULED"
	StatusRequested  Status = "REQUESTED"
	StatusAssigned   Status = "ASSIGNED"
	StatusRetrieving Status = "RETRIEVING"
	StatusReady      Status = "READY"
	StatusPickedUp   Status = "PICKED_UP"
	StatusClosed     Status = "CLOSED"
	StatusCanceled   Status = "CANCELED"
)

type Request struct {
	ID                 int64      `json:"id"`
	TicketID           int64      `json:"ticket_id"`
	VenueID            int64      `json:"venue_id"`
	TicketToken        string     `json:"ticket_token,omitempty"`
	ExitID             int64      `json:"exit_id"`
	ExitCode           string     `json:"exit_code,omitempty"`
	Status             Status     `json:"status"`
	ScheduledFor       *time.Time `json:"scheduled_for,omitempty"`
	RescheduleCount    int        `json:"reschedule_count"`
	LastRescheduledAt  *time.Time `json:"last_rescheduled_at,omitempty"`
	CarNumber          string     `json:"car_number,omitempty"`
	VehicleDescription string     `json:"vehicle_description,omitempty"`
	ClaimedPhoneMasked string     `json:"claimed_phone_masked,omitempty"`
	DeliveredBy        string     `json:"delivered_by,omitempty"`
	DeliveredAt        *time.Time `json:"delivered_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	// Provisional marks a locally applied change not yet confirmed by the server.
	Provisional bool `json:"-"`
}

type StatusEvent struct {
	ID         int64     `json:"id"`
	TicketID   int64     `json:"ticket_id"`
	VenueID    int64     `json:"venue_id"`
	RequestID  int64     `json:"request_id"`
	ExitID     int64     `json:"exit_id,omitempty"`
	FromStatus Status    `json:"from_status,omitempty"`
	ToStatus   Status    `json:"to_status"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type RequestPage struct {
	Requests   []Request `json:"requests"`
	NextCursor *int64    `json:"next_cursor"`
}
