package console

import (
	"github.com/kushalX13/CurbKey/internal/lifecycle"
	"github.com/kushalX13/CurbKey/internal/models"
)

// Action is one button a console offers for a request.
type Action struct {
	Target models.Status
	Label  string
}

var actionLabels = map[models.Status]string{
	models.StatusRequested:  "Get car now",
	models.StatusRetrieving: "Start retrieving",
	models.StatusReady:      "Mark ready",
	models.StatusPickedUp:   "Mark picked up",
}

func label(target models.Status) string {
	if l, ok := actionLabels[target]; ok {
		return l
	}
	return string(target)
}

// Actions lists what role may do with req, read from the shared policy.
func Actions(policy lifecycle.Policy, role string, req models.Request) []Action {
	targets := policy.Actions(role, req.Status)
	if len(targets) == 0 {
		return nil
	}
	out := make([]Action, 0, len(targets))
	for _, target := range targets {
		out = append(out, Action{Target: target, Label: label(target)})
	}
	return out
}
