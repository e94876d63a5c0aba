package syncengine

import (
	"errors"

	"github.com/kushalX13/CurbKey/internal/store"
)

// The server's error taxonomy, re-exported so console code can match on
// client errors without importing the store.
var (
	ErrInvalidTransition = store.ErrInvalidTransition
	ErrNotFound          = store.ErrNotFound
	ErrVenueNotFound     = store.ErrVenueNotFound
	ErrCodeExpired       = store.ErrCodeExpired
	ErrInvalidCode       = store.ErrInvalidCode
	ErrRateLimited       = store.ErrRateLimited
	ErrUnauthorized      = store.ErrUnauthorized
	ErrForbidden         = store.ErrForbidden
	ErrInvalidExit       = store.ErrInvalidExit
	ErrRescheduleWindow  = store.ErrRescheduleWindow
	ErrRescheduleLimit   = store.ErrRescheduleLimit
	ErrCooldown          = store.ErrCooldown

	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrMutationInFlight   = errors.New("mutation already in flight")
)
