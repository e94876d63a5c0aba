package syncengine

import (
	"sort"

	"github.com/kushalX13/CurbKey/internal/lifecycle"
	"github.com/kushalX13/CurbKey/internal/models"
)

// View is the local copy of one watched scope: requests by id plus the
// highest event id applied. It is not safe for concurrent use; a Watcher
// serializes access.
type View struct {
	scope    lifecycle.Scope
	requests map[int64]models.Request
	mark     int64
}

// NewView returns an empty view. An empty scope keeps every request.
func NewView(scope lifecycle.Scope) *View {
	return &View{scope: scope, requests: make(map[int64]models.Request)}
}

// Apply folds one status event into the view. Events at or below the mark
// were already applied and are ignored, so replays leave the view unchanged.
func (v *View) Apply(ev models.StatusEvent) bool {
	if ev.ID <= v.mark {
		return false
	}
	v.mark = ev.ID
	if ev.RequestID == 0 {
		return false
	}

	req, ok := v.requests[ev.RequestID]
	if !ok {
		req = models.Request{
			ID:        ev.RequestID,
			TicketID:  ev.TicketID,
			VenueID:   ev.VenueID,
			ExitID:    ev.ExitID,
			CreatedAt: ev.CreatedAt,
		}
	}
	req.Status = ev.ToStatus
	req.UpdatedAt = ev.CreatedAt
	req.Provisional = false
	if ev.ToStatus == models.StatusPickedUp && req.DeliveredAt == nil {
		at := ev.CreatedAt
		req.DeliveredAt = &at
	}
	v.requests[req.ID] = req
	return true
}

// Replace swaps in a server snapshot wholesale. Provisional changes are
// dropped; the mark is left alone.
func (v *View) Replace(snapshot []models.Request) {
	next := make(map[int64]models.Request, len(snapshot))
	for _, req := range snapshot {
		req.Provisional = false
		next[req.ID] = req
	}
	v.requests = next
}

// Optimistic records a status change the server has not confirmed yet. The
// next snapshot or event for the request overwrites it.
func (v *View) Optimistic(requestID int64, status models.Status) bool {
	req, ok := v.requests[requestID]
	if !ok {
		return false
	}
	req.Status = status
	req.Provisional = true
	v.requests[requestID] = req
	return true
}

func (v *View) Mark() int64 { return v.mark }

func (v *View) Get(requestID int64) (models.Request, bool) {
	req, ok := v.requests[requestID]
	return req, ok
}

// Requests lists the requests in scope ordered by id.
func (v *View) Requests() []models.Request {
	out := make([]models.Request, 0, len(v.requests))
	for _, req := range v.requests {
		if v.scope != "" && !v.scope.Contains(req.Status) {
			continue
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
