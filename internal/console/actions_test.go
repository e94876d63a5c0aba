package console

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kushalX13/CurbKey/internal/lifecycle"
	"github.com/kushalX13/CurbKey/internal/models"
)

func TestActionsFollowPolicy(t *testing.T) {
	policy := lifecycle.DefaultPolicy()
	cases := []struct {
		role   string
		status models.Status
		want   []Action
	}{
		{models.RoleValet, models.StatusScheduled, []Action{{models.StatusRequested, "Get car now"}}},
		{models.RoleValet, models.StatusRequested, []Action{{models.StatusRetrieving, "Start retrieving"}}},
		{models.RoleManager, models.StatusAssigned, []Action{{models.StatusRetrieving, "Start retrieving"}}},
		{models.RoleValet, models.StatusRetrieving, []Action{{models.StatusReady, "Mark ready"}}},
		{models.RoleManager, models.StatusReady, []Action{{models.StatusPickedUp, "Mark picked up"}}},
		{models.RoleValet, models.StatusPickedUp, nil},
		{models.RoleGuest, models.StatusRequested, nil},
	}
	for _, tc := range cases {
		got := Actions(policy, tc.role, models.Request{Status: tc.status})
		assert.Equal(t, tc.want, got, "%s on %s", tc.role, tc.status)
	}
}
