package lifecycle

import (
	"fmt"
	"strings"

	"github.com/kushalX13/CurbKey/internal/models"
)

type Scope string

const (
	ScopeActive  Scope = "active"
	ScopeHistory Scope = "history"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

func ParseScope(raw string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ScopeActive:
		return ScopeActive, nil
	case ScopeHistory:
		return ScopeHistory, nil
	default:
		return "", fmt.Errorf("scope must be active or history, got %q", raw)
	}
}

func (s Scope) Statuses() []models.Status {
	if s == ScopeHistory {
		return HistoryStatuses()
	}
	return ActiveStatuses()
}

func (s Scope) Contains(status models.Status) bool {
	for _, st := range s.Statuses() {
		if st == status {
			return true
		}
	}
	return false
}

// ClampLimit applies the default page size and caps it.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageLimit
	}
	if limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}
