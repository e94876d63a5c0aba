package models

import "time"

type Venue struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Exits []Exit `json:"exits,omitempty"`
}

type Exit struct {
	ID       int64  `json:"id"`
	VenueID  int64  `json:"venue_id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

type Ticket struct {
	ID                 int64      `json:"id"`
	VenueID            int64      `json:"venue_id"`
	Token              string     `json:"token"`
	CarNumber          string     `json:"car_number,omitempty"`
	VehicleDescription string     `json:"vehicle_description,omitempty"`
	ClaimCode          string     `json:"-"`
	ClaimCodeExpiresAt *time.Time `json:"claim_code_expires_at,omitempty"`
	ClaimedAt          *time.Time `json:"claimed_at,omitempty"`
	ClaimedPhone       string     `json:"-"`
	ClaimedPhoneMasked string     `json:"claimed_phone_masked,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	ClosedAt           *time.Time `json:"closed_at,omitempty"`
}

type ClaimResult struct {
	GuestPath     string `json:"guest_path"`
	TicketToken   string `json:"ticket_token"`
	MaskedVehicle string `json:"masked_vehicle,omitempty"`
}

type Tip struct {
	ID          int64     `json:"id"`
	RequestID   int64     `json:"request_id"`
	VenueID     int64     `json:"venue_id"`
	AmountCents int64     `json:"amount_cents"`
	Status      string    `json:"status"`
	DeliveredBy string    `json:"delivered_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

const TipStatusRecorded = "RECORDED"

type TipSummary struct {
	DeliveredBy string `json:"valet"`
	Count       int    `json:"count"`
	TotalCents  int64  `json:"total_cents"`
	Total       string `json:"total,omitempty"`
}
