package store

import (
	"errors"

	"github.com/kushalX13/CurbKey/internal/lifecycle"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrVenueNotFound      = errors.New("venue not found")
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrRequestNotFound    = errors.New("request not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvalidExit        = errors.New("exit does not belong to this venue")
	ErrAlreadyClaimed     = errors.New("ticket already claimed by another phone")
	ErrClaimCodeExhausted = errors.New("could not generate unique claim code")
	ErrInvalidTip         = errors.New("tip amount must be positive")
	ErrInvalidCode        = errors.New("invalid claim code")
	ErrCodeExpired        = errors.New("claim code expired")
	ErrInvalidPhone       = errors.New("invalid phone number")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")

	ErrInvalidTransition  = lifecycle.ErrInvalidTransition
	ErrInvalidDelay       = lifecycle.ErrInvalidDelay
	ErrRescheduleWindow   = lifecycle.ErrRescheduleWindow
	ErrRescheduleLimit    = lifecycle.ErrRescheduleLimit
	ErrRescheduleCooldown = lifecycle.ErrRescheduleCooldown
	ErrCooldown           = lifecycle.ErrRescheduleCooldown
)

// notFound wraps a specific not-found error so callers can match either it or
// ErrNotFound.
type notFound struct{ err error }

func (e notFound) Error() string        { return e.err.Error() }
func (e notFound) Is(target error) bool { return target == ErrNotFound || target == e.err }

func NotFound(err error) error { return notFound{err: err} }
