package lifecycle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kushalX13/CurbKey/internal/models"
)

var ErrInvalidTransition = errors.New("invalid transition")

// transitionMap lists, per current status, the statuses a request may move to.
// Terminal statuses map to nothing.
var transitionMap = map[models.Status][]models.Status{
	models.StatusScheduled:  {models.StatusRequested},
	models.StatusRequested:  {models.StatusRetrieving},
	models.StatusAssigned:   {models.StatusRetrieving},
	models.StatusRetrieving: {models.StatusReady},
	models.StatusReady:      {models.StatusPickedUp},
	models.StatusPickedUp:   nil,
	models.StatusClosed:     nil,
	models.StatusCanceled:   nil,
}

var activeStatuses = []models.Status{
	models.StatusScheduled,
	models.StatusRequested,
	models.StatusAssigned,
	models.StatusRetrieving,
	models.StatusReady,
}

var historyStatuses = []models.Status{
	models.StatusPickedUp,
	models.StatusClosed,
	models.StatusCanceled,
}

func CanTransition(from, to models.Status) bool {
	for _, status := range transitionMap[from] {
		if status == to {
			return true
		}
	}
	return false
}

// Validate returns ErrInvalidTransition wrapped with both statuses when the
// move is not on the graph.
func Validate(from, to models.Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, display(from), display(to))
}

func Next(from models.Status) []models.Status {
	next := transitionMap[from]
	out := make([]models.Status, len(next))
	copy(out, next)
	return out
}

func IsKnown(status models.Status) bool {
	_, ok := transitionMap[status]
	return ok
}

func IsTerminal(status models.Status) bool {
	next, ok := transitionMap[status]
	return ok && len(next) == 0
}

func IsActive(status models.Status) bool {
	for _, s := range activeStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func ActiveStatuses() []models.Status {
	return append([]models.Status(nil), activeStatuses...)
}

func HistoryStatuses() []models.Status {
	return append([]models.Status(nil), historyStatuses...)
}

// IsInitial reports whether a request may be created directly in status.
func IsInitial(status models.Status) bool {
	return status == models.StatusScheduled || status == models.StatusRequested
}

func Parse(raw string) (models.Status, error) {
	status := models.Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !IsKnown(status) {
		return models.StatusNone, fmt.Errorf("unknown status %q", raw)
	}
	return status, nil
}

func display(status models.Status) string {
	if status == models.StatusNone {
		return "NONE"
	}
	return string(status)
}
