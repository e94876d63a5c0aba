package lifecycle

import "github.com/kushalX13/CurbKey/internal/models"

// Policy answers which status changes a role may trigger. Every console reads
// from the same table so the three never disagree.
type Policy struct {
	staff map[string]bool
}

func DefaultPolicy() Policy {
	return Policy{staff: map[string]bool{
		models.RoleValet:   true,
		models.RoleManager: true,
	}}
}

// Actions returns the target statuses role may move a request in status to.
// Guests never drive transitions; they only create and reschedule.
func (p Policy) Actions(role string, status models.Status) []models.Status {
	if !p.staff[role] {
		return nil
	}
	return Next(status)
}

func (p Policy) Allowed(role string, from, to models.Status) bool {
	for _, target := range p.Actions(role, from) {
		if target == to {
			return true
		}
	}
	return false
}

func (p Policy) CanTick(role string) bool {
	return role == models.RoleManager
}

func (p Policy) CanCreateRequest(role string) bool {
	return role == models.RoleGuest
}

func (p Policy) CanReschedule(role string) bool {
	return role == models.RoleGuest
}

func (p Policy) IsStaff(role string) bool {
	return p.staff[role]
}
