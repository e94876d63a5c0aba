package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kushalX13/CurbKey/internal/lifecycle"
	"github.com/kushalX13/CurbKey/internal/models"
	"github.com/kushalX13/CurbKey/internal/stats"
	"github.com/kushalX13/CurbKey/internal/syncengine"
)

const (
	columnWidthID     = 8
	columnWidthExit   = 6
	columnWidthCar    = 12
	columnWidthStatus = 12
	defaultWidth      = 80
)

// Renderer draws console views as plain terminal text, one line per row.
type Renderer struct {
	theme  Theme
	width  int
	policy lifecycle.Policy
}

func NewRenderer(theme Theme, width int) Renderer {
	if width <= 0 {
		width = defaultWidth
	}
	return Renderer{theme: theme, width: width, policy: lifecycle.DefaultPolicy()}
}

func (r Renderer) header(text string) string {
	return lipgloss.NewStyle().
		Foreground(r.theme.HeaderForeground).
		Bold(true).
		Width(r.width).
		MaxWidth(r.width).
		Render(text)
}

func (r Renderer) faint(text string) string {
	return lipgloss.NewStyle().Foreground(r.theme.FaintText).Render(text)
}

func (r Renderer) status(status models.Status, provisional bool) string {
	text := string(status)
	if provisional {
		text += "*"
	}
	return lipgloss.NewStyle().
		Foreground(r.theme.StatusColor(status)).
		Width(columnWidthStatus).
		Render(text)
}

func cell(text string, width int) string {
	return lipgloss.NewStyle().Width(width).MaxWidth(width).Render(text)
}

func exitLabel(req models.Request) string {
	if req.ExitCode != "" {
		return req.ExitCode
	}
	if req.ExitID > 0 {
		return fmt.Sprintf("#%d", req.ExitID)
	}
	return "-"
}

func carLabel(req models.Request) string {
	if req.CarNumber != "" {
		return req.CarNumber
	}
	if req.VehicleDescription != "" {
		return req.VehicleDescription
	}
	return "-"
}

// RenderRow draws one request with the actions role may take on it.
//
//	#12     A     7ABC123     RETRIEVING  [Mark ready]
func (r Renderer) RenderRow(role string, req models.Request) string {
	var labels []string
	for _, action := range Actions(r.policy, role, req) {
		labels = append(labels, "["+action.Label+"]")
	}
	row := cell(fmt.Sprintf("#%d", req.ID), columnWidthID) +
		cell(exitLabel(req), columnWidthExit) +
		cell(carLabel(req), columnWidthCar) +
		r.status(req.Status, req.Provisional) +
		strings.Join(labels, " ")
	return lipgloss.NewStyle().Foreground(r.theme.NormalText).MaxWidth(r.width).Render(row)
}

// RenderQueue draws a watched scope: a title line, one row per request and a
// banner while the sync engine reports the server unavailable.
func (r Renderer) RenderQueue(title, role string, state syncengine.State) string {
	var b strings.Builder
	b.WriteString(r.header(fmt.Sprintf("%s (%d)", title, len(state.Requests))))
	b.WriteByte('\n')
	if state.Unavailable {
		b.WriteString(r.banner(role, state.Err))
		b.WriteByte('\n')
	}
	if len(state.Requests) == 0 {
		b.WriteString(r.faint("No requests."))
		b.WriteByte('\n')
		return b.String()
	}
	for _, req := range state.Requests {
		b.WriteString(r.RenderRow(role, req))
		b.WriteByte('\n')
	}
	return b.String()
}

func (r Renderer) banner(role string, err error) string {
	notice := Surface(role, err)
	text := "Connection lost. Retrying…"
	if notice.SignIn {
		text = notice.Message
	} else if notice.Message != "" && role != models.RoleGuest {
		text += " " + notice.Message
	}
	return lipgloss.NewStyle().Foreground(r.theme.Warning).Bold(true).Render(text)
}

// RenderTicket draws the guest's view of their ticket.
func (r Renderer) RenderTicket(view syncengine.TicketView) string {
	var b strings.Builder
	b.WriteString(r.header("Your car"))
	b.WriteByte('\n')
	if view.Ticket.CarNumber != "" {
		fmt.Fprintf(&b, "Car: %s\n", view.Ticket.CarNumber)
	}
	if view.Request == nil {
		b.WriteString(r.faint("No pickup requested yet."))
		b.WriteByte('\n')
		return b.String()
	}
	req := *view.Request
	fmt.Fprintf(&b, "Status: %s\n", strings.TrimSpace(r.status(req.Status, false)))
	fmt.Fprintf(&b, "Exit: %s\n", exitLabel(req))
	if req.Status == models.StatusScheduled && req.ScheduledFor != nil {
		fmt.Fprintf(&b, "Scheduled for %s\n", req.ScheduledFor.Format("15:04"))
	}
	if req.Status == models.StatusReady {
		b.WriteString(lipgloss.NewStyle().Foreground(r.theme.StatusReady).Bold(true).Render("Your car is ready."))
		b.WriteByte('\n')
	}
	return b.String()
}

// RenderMetrics draws the manager's stats panel.
func (r Renderer) RenderMetrics(m stats.Metrics, tips []models.TipSummary) string {
	var b strings.Builder
	b.WriteString(r.header(fmt.Sprintf("Venue %d, last %dh", m.VenueID, m.WindowHours)))
	b.WriteByte('\n')
	fmt.Fprintf(&b, "Active queue: %d\n", m.ActiveQueue)
	fmt.Fprintf(&b, "Avg request to ready: %s\n", seconds(m.AvgRequestToReadySeconds))
	fmt.Fprintf(&b, "Avg request to pickup: %s\n", seconds(m.AvgRequestToPickedSeconds))
	for _, exit := range m.Exits {
		b.WriteString(cell(exit.Code, columnWidthExit) + fmt.Sprintf("queue %d, eta %s\n", exit.Queue, seconds(exit.EtaSeconds)))
	}
	if len(tips) > 0 {
		b.WriteString(r.header("Tips"))
		b.WriteByte('\n')
		for _, tip := range tips {
			b.WriteString(cell(tip.DeliveredBy, columnWidthCar) + fmt.Sprintf("%d  %s\n", tip.Count, tip.Total))
		}
	}
	return b.String()
}

func seconds(v float64) string {
	if v <= 0 {
		return "-"
	}
	total := int(v + 0.5)
	return fmt.Sprintf("%dm%02ds", total/60, total%60)
}
