package console

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/kushalX13/CurbKey/internal/models"
)

// Theme is the palette shared by the console renderers. Colors are ANSI
// 256-color codes.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color

	StatusScheduled  lipgloss.Color
	StatusRequested  lipgloss.Color
	StatusRetrieving lipgloss.Color
	StatusReady      lipgloss.Color
	StatusDone       lipgloss.Color

	Warning lipgloss.Color
	Error   lipgloss.Color
}

var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),

	StatusScheduled:  lipgloss.Color("141"), // light purple
	StatusRequested:  lipgloss.Color("208"), // orange
	StatusRetrieving: lipgloss.Color("220"), // amber
	StatusReady:      lipgloss.Color("114"), // green
	StatusDone:       lipgloss.Color("245"), // gray

	Warning: lipgloss.Color("220"),
	Error:   lipgloss.Color("196"),
}

// StatusColor returns the color for a request status. ASSIGNED shares the
// REQUESTED color since both wait on a valet.
func (theme Theme) StatusColor(status models.Status) lipgloss.Color {
	switch status {
	case models.StatusScheduled:
		return theme.StatusScheduled
	case models.StatusRequested, models.StatusAssigned:
		return theme.StatusRequested
	case models.StatusRetrieving:
		return theme.StatusRetrieving
	case models.StatusReady:
		return theme.StatusReady
	case models.StatusPickedUp, models.StatusClosed, models.StatusCanceled:
		return theme.StatusDone
	default:
		return theme.FaintText
	}
}
