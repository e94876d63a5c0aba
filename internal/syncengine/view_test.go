package syncengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kushalX13/CurbKey/internal/lifecycle"
	"github.com/kushalX13/CurbKey/internal/models"
)

var eventTime = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func statusEvent(id, requestID int64, from, to models.Status) models.StatusEvent {
	return models.StatusEvent{
		ID:         id,
		TicketID:   requestID * 10,
		VenueID:    1,
		RequestID:  requestID,
		ExitID:     3,
		FromStatus: from,
		ToStatus:   to,
		CreatedAt:  eventTime.Add(time.Duration(id) * time.Second),
	}
}

func TestViewApplyAdvancesMark(t *testing.T) {
	v := NewView("")
	require.True(t, v.Apply(statusEvent(1, 7, models.StatusNone, models.StatusRequested)))
	require.True(t, v.Apply(statusEvent(2, 7, models.StatusRequested, models.StatusRetrieving)))

	req, ok := v.Get(7)
	require.True(t, ok)
	assert.Equal(t, models.StatusRetrieving, req.Status)
	assert.Equal(t, int64(70), req.TicketID)
	assert.Equal(t, int64(3), req.ExitID)
	assert.Equal(t, int64(2), v.Mark())
}

func TestViewReplayIsIgnored(t *testing.T) {
	evs := []models.StatusEvent{
		statusEvent(1, 7, models.StatusNone, models.StatusRequested),
		statusEvent(2, 8, models.StatusNone, models.StatusScheduled),
		statusEvent(3, 7, models.StatusRequested, models.StatusRetrieving),
	}
	v := NewView("")
	for _, ev := range evs {
		v.Apply(ev)
	}
	before := v.Requests()

	for _, ev := range evs {
		assert.False(t, v.Apply(ev), "event %d applied twice", ev.ID)
	}
	assert.Equal(t, before, v.Requests())
	assert.Equal(t, int64(3), v.Mark())
}

func TestViewScopeFiltersRequests(t *testing.T) {
	v := NewView(lifecycle.ScopeActive)
	v.Apply(statusEvent(1, 7, models.StatusNone, models.StatusRequested))
	v.Apply(statusEvent(2, 8, models.StatusNone, models.StatusRequested))
	v.Apply(statusEvent(3, 7, models.StatusReady, models.StatusPickedUp))

	got := v.Requests()
	require.Len(t, got, 1)
	assert.Equal(t, int64(8), got[0].ID)

	picked, ok := v.Get(7)
	require.True(t, ok)
	require.NotNil(t, picked.DeliveredAt)
	assert.Equal(t, eventTime.Add(3*time.Second), *picked.DeliveredAt)
}

func TestViewOptimisticIsOverwritten(t *testing.T) {
	v := NewView("")
	v.Replace([]models.Request{{ID: 4, Status: models.StatusRequested}})

	require.True(t, v.Optimistic(4, models.StatusRetrieving))
	assert.False(t, v.Optimistic(99, models.StatusRetrieving))
	req, _ := v.Get(4)
	assert.True(t, req.Provisional)
	assert.Equal(t, models.StatusRetrieving, req.Status)

	v.Replace([]models.Request{{ID: 4, Status: models.StatusRequested}})
	req, _ = v.Get(4)
	assert.False(t, req.Provisional)
	assert.Equal(t, models.StatusRequested, req.Status)

	v.Optimistic(4, models.StatusRetrieving)
	v.Apply(statusEvent(9, 4, models.StatusRequested, models.StatusRetrieving))
	req, _ = v.Get(4)
	assert.False(t, req.Provisional)
}

func TestViewReplaceDropsMissing(t *testing.T) {
	v := NewView("")
	v.Replace([]models.Request{{ID: 1}, {ID: 2}})
	v.Replace([]models.Request{{ID: 2}})

	_, ok := v.Get(1)
	assert.False(t, ok)
	assert.Len(t, v.Requests(), 1)
}
