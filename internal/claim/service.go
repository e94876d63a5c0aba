// Package claim binds a guest phone to a ticket using the short code the
// valet hands out, with attempt limits per phone, venue and client address.
package claim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/kushalX13/CurbKey/internal/clock"
	"github.com/kushalX13/CurbKey/internal/models"
	"github.com/kushalX13/CurbKey/internal/store"
)

type Limits struct {
	PhoneMaxFailures int
	VenueMaxFailures int
	IPMaxAttempts    int
}

func DefaultLimits() Limits {
	return Limits{PhoneMaxFailures: 5, VenueMaxFailures: 30, IPMaxAttempts: 15}
}

const (
	DefaultFailureWindow = 15 * time.Minute
	DefaultIPWindow      = 5 * time.Minute
)

type Options struct {
	Clock    clock.Clock
	Failures Limiter
	Attempts Limiter
	Limits   Limits
	Logger   *slog.Logger
}

type Service struct {
	store    store.Store
	clock    clock.Clock
	failures Limiter
	attempts Limiter
	limits   Limits
	logger   *slog.Logger
}

func NewService(st store.Store, options Options) *Service {
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}
	limits := options.Limits
	defaults := DefaultLimits()
	if limits.PhoneMaxFailures <= 0 {
		limits.PhoneMaxFailures = defaults.PhoneMaxFailures
	}
	if limits.VenueMaxFailures <= 0 {
		limits.VenueMaxFailures = defaults.VenueMaxFailures
	}
	if limits.IPMaxAttempts <= 0 {
		limits.IPMaxAttempts = defaults.IPMaxAttempts
	}
	failures := options.Failures
	if failures == nil {
		failures = NewMemoryLimiter(clk, DefaultFailureWindow)
	}
	attempts := options.Attempts
	if attempts == nil {
		attempts = NewMemoryLimiter(clk, DefaultIPWindow)
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    st,
		clock:    clk,
		failures: failures,
		attempts: attempts,
		limits:   limits,
		logger:   logger,
	}
}

// AllowClient counts one claim call from a client address.
func (s *Service) AllowClient(ctx context.Context, ip string) error {
	if ip == "" {
		return nil
	}
	key := "ip:" + ip
	exceeded, err := s.attempts.Exceeded(ctx, key, s.limits.IPMaxAttempts)
	if err != nil {
		return err
	}
	if exceeded {
		return store.ErrRateLimited
	}
	return s.attempts.Record(ctx, key)
}

// Start checks that a claim can begin for the venue. It never reveals a code.
func (s *Service) Start(ctx context.Context, venueSlug, rawPhone string) error {
	venue, err := s.store.GetVenueBySlug(ctx, venueSlug)
	if err != nil {
		return err
	}
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return err
	}
	return s.checkLimits(ctx, phone, venue.ID)
}

func (s *Service) Confirm(ctx context.Context, venueSlug, rawPhone, code string) (models.ClaimResult, error) {
	venue, err := s.store.GetVenueBySlug(ctx, venueSlug)
	if err != nil {
		return models.ClaimResult{}, err
	}
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return models.ClaimResult{}, err
	}
	if err := s.checkLimits(ctx, phone, venue.ID); err != nil {
		return models.ClaimResult{}, err
	}

	code = strings.TrimSpace(code)
	if !validCode(code) {
		return models.ClaimResult{}, s.fail(ctx, phone, venue.ID)
	}
	ticket, err := s.store.FindTicketByClaimCode(ctx, venue.ID, code, phone)
	if errors.Is(err, store.ErrNotFound) {
		return models.ClaimResult{}, s.fail(ctx, phone, venue.ID)
	}
	if err != nil {
		return models.ClaimResult{}, err
	}

	claimedBySame := ticket.ClaimedAt != nil && ticket.ClaimedPhone == phone
	if !claimedBySame {
		if store.ClaimExpired(ticket.ClaimCodeExpiresAt, s.clock.Now()) {
			return models.ClaimResult{}, store.ErrCodeExpired
		}
		if ticket.ClaimedAt != nil {
			return models.ClaimResult{}, s.fail(ctx, phone, venue.ID)
		}
		ticket, err = s.store.MarkClaimed(ctx, store.ClaimInput{TicketID: ticket.ID, Phone: phone, ClaimedAt: s.clock.Now()})
		if errors.Is(err, store.ErrAlreadyClaimed) {
			return models.ClaimResult{}, s.fail(ctx, phone, venue.ID)
		}
		if err != nil {
			return models.ClaimResult{}, err
		}
		s.logger.Info("ticket claimed", slog.Int64("venue_id", venue.ID), slog.Int64("ticket_id", ticket.ID), slog.String("phone", store.MaskPhone(phone)))
	}

	if err := s.failures.Clear(ctx, phoneKey(phone)); err != nil {
		s.logger.Warn("clear claim failures", slog.String("error", err.Error()))
	}
	return Result(ticket), nil
}

// Result is what a guest receives after a successful claim.
func Result(ticket models.Ticket) models.ClaimResult {
	masked := store.MaskVehicle(ticket.CarNumber)
	return models.ClaimResult{
		GuestPath:     store.GuestPath(ticket.Token),
		TicketToken:   ticket.Token,
		MaskedVehicle: masked,
	}
}

func (s *Service) checkLimits(ctx context.Context, phone string, venueID int64) error {
	exceeded, err := s.failures.Exceeded(ctx, phoneKey(phone), s.limits.PhoneMaxFailures)
	if err != nil {
		return err
	}
	if exceeded {
		return store.ErrRateLimited
	}
	exceeded, err = s.failures.Exceeded(ctx, venueKey(venueID), s.limits.VenueMaxFailures)
	if err != nil {
		return err
	}
	if exceeded {
		s.logger.Warn("venue claim failures over limit", slog.Int64("venue_id", venueID))
		return store.ErrRateLimited
	}
	return nil
}

// fail records a failed attempt and returns ErrInvalidCode.
func (s *Service) fail(ctx context.Context, phone string, venueID int64) error {
	for _, key := range []string{phoneKey(phone), venueKey(venueID)} {
		if err := s.failures.Record(ctx, key); err != nil {
			return fmt.Errorf("record claim failure: %w", err)
		}
	}
	return store.ErrInvalidCode
}

func phoneKey(phone string) string {
	return "phone:" + phone
}

func venueKey(venueID int64) string {
	return "venue:" + strconv.FormatInt(venueID, 10)
}
