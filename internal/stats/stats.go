// Package stats derives manager metrics, per-exit estimates and tip
// summaries from the status event log.
package stats

import (
	"context"
	"sort"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/kushalX13/CurbKey/internal/clock"
	"github.com/kushalX13/CurbKey/internal/models"
	"github.com/kushalX13/CurbKey/internal/store"
)

const (
	DefaultWindowHours  = 24
	DefaultMaxSeconds   = 1800
	DefaultQueuePenalty = 30
	unassignedValet     = "unassigned"
)

type Window struct {
	Hours      int
	MaxSeconds int
}

func (w Window) normalized() Window {
	if w.Hours <= 0 {
		w.Hours = DefaultWindowHours
	}
	if w.MaxSeconds <= 0 {
		w.MaxSeconds = DefaultMaxSeconds
	}
	return w
}

type Metrics struct {
	VenueID                   int64      `json:"venue_id"`
	ActiveQueue               int        `json:"active_queue"`
	WindowHours               int        `json:"window_hours"`
	MaxSeconds                int        `json:"max_seconds"`
	AvgRequestToReadySeconds  float64    `json:"avg_req_to_ready_seconds"`
	AvgRequestToPickedSeconds float64    `json:"avg_req_to_picked_seconds"`
	Exits                     []ExitStat `json:"exits"`
}

type ExitStat struct {
	ExitID     int64   `json:"exit_id"`
	Code       string  `json:"code"`
	Name       string  `json:"name"`
	Queue      int     `json:"queue"`
	EtaSeconds float64 `json:"eta_seconds"`
	EtaSamples int     `json:"eta_samples"`
	Score      float64 `json:"score"`
}

type Recommendation struct {
	VenueID      int64      `json:"venue_id"`
	Recommended  *ExitStat  `json:"recommended"`
	Options      []ExitStat `json:"options"`
	QueuePenalty int        `json:"queue_penalty"`
	WindowHours  int        `json:"window_hours"`
	MaxSeconds   int        `json:"max_seconds"`
}

type Service struct {
	store   store.Store
	clock   clock.Clock
	printer *message.Printer
}

func NewService(st store.Store, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	return &Service{store: st, clock: clk, printer: message.NewPrinter(language.AmericanEnglish)}
}

// timeline holds the first time a request reached each milestone.
type timeline struct {
	exitID    int64
	requested time.Time
	ready     time.Time
	picked    time.Time
}

func (s *Service) timelines(ctx context.Context, venueID int64, w Window) (map[int64]*timeline, error) {
	since := s.clock.Now().Add(-time.Duration(w.Hours) * time.Hour)
	events, err := s.store.ListEvents(ctx, store.EventFilter{VenueID: venueID, Since: since})
	if err != nil {
		return nil, err
	}
	out := make(map[int64]*timeline)
	for _, ev := range events {
		tl, ok := out[ev.RequestID]
		if !ok {
			tl = &timeline{exitID: ev.ExitID}
			out[ev.RequestID] = tl
		}
		var slot *time.Time
		switch ev.ToStatus {
		case models.StatusRequested:
			slot = &tl.requested
		case models.StatusReady:
			slot = &tl.ready
		case models.StatusPickedUp:
			slot = &tl.picked
		default:
			continue
		}
		if slot.IsZero() || ev.CreatedAt.Before(*slot) {
			*slot = ev.CreatedAt
		}
	}
	return out, nil
}

// duration returns the gap between two milestones when both exist and the
// sample is not an outlier.
func duration(from, to time.Time, maxSeconds int) (float64, bool) {
	if from.IsZero() || to.IsZero() {
		return 0, false
	}
	secs := to.Sub(from).Seconds()
	if secs > float64(maxSeconds) {
		return 0, false
	}
	return secs, true
}

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v float64) {
	m.sum += v
	m.n++
}

func (m mean) value() float64 {
	if m.n == 0 {
		return 0
	}
	return m.sum / float64(m.n)
}

func (s *Service) Metrics(ctx context.Context, venueID int64, w Window) (Metrics, error) {
	w = w.normalized()
	tls, err := s.timelines(ctx, venueID, w)
	if err != nil {
		return Metrics{}, err
	}
	var ready, picked mean
	for _, tl := range tls {
		if secs, ok := duration(tl.requested, tl.ready, w.MaxSeconds); ok {
			ready.add(secs)
		}
		if secs, ok := duration(tl.requested, tl.picked, w.MaxSeconds); ok {
			picked.add(secs)
		}
	}

	queue, err := s.store.QueueByExit(ctx, venueID)
	if err != nil {
		return Metrics{}, err
	}
	active := 0
	for _, q := range queue {
		active += q.Count - q.Scheduled
	}

	exits, err := s.exitStats(ctx, venueID, w, tls, queue, DefaultQueuePenalty)
	if err != nil {
		return Metrics{}, err
	}

	return Metrics{
		VenueID:                   venueID,
		ActiveQueue:               active,
		WindowHours:               w.Hours,
		MaxSeconds:                w.MaxSeconds,
		AvgRequestToReadySeconds:  ready.value(),
		AvgRequestToPickedSeconds: picked.value(),
		Exits:                     exits,
	}, nil
}

// Recommend ranks the venue's exits by eta plus a penalty per queued car.
func (s *Service) Recommend(ctx context.Context, venueID int64, w Window, queuePenalty int) (Recommendation, error) {
	w = w.normalized()
	if queuePenalty <= 0 {
		queuePenalty = DefaultQueuePenalty
	}
	tls, err := s.timelines(ctx, venueID, w)
	if err != nil {
		return Recommendation{}, err
	}
	queue, err := s.store.QueueByExit(ctx, venueID)
	if err != nil {
		return Recommendation{}, err
	}
	options, err := s.exitStats(ctx, venueID, w, tls, queue, queuePenalty)
	if err != nil {
		return Recommendation{}, err
	}

	rec := Recommendation{
		VenueID:      venueID,
		Options:      options,
		QueuePenalty: queuePenalty,
		WindowHours:  w.Hours,
		MaxSeconds:   w.MaxSeconds,
	}
	for i := range options {
		if rec.Recommended == nil || options[i].Score < rec.Recommended.Score {
			best := options[i]
			rec.Recommended = &best
		}
	}
	return rec, nil
}

func (s *Service) exitStats(ctx context.Context, venueID int64, w Window, tls map[int64]*timeline, queue []store.ExitQueue, queuePenalty int) ([]ExitStat, error) {
	exits, err := s.store.ListExits(ctx, venueID)
	if err != nil {
		return nil, err
	}
	etas := make(map[int64]*mean)
	for _, tl := range tls {
		secs, ok := duration(tl.requested, tl.ready, w.MaxSeconds)
		if !ok {
			continue
		}
		m, found := etas[tl.exitID]
		if !found {
			m = &mean{}
			etas[tl.exitID] = m
		}
		m.add(secs)
	}
	queued := make(map[int64]int, len(queue))
	for _, q := range queue {
		queued[q.ExitID] = q.Count
	}

	out := make([]ExitStat, 0, len(exits))
	for _, exit := range exits {
		stat := ExitStat{ExitID: exit.ID, Code: exit.Code, Name: exit.Name, Queue: queued[exit.ID]}
		if m, ok := etas[exit.ID]; ok {
			stat.EtaSeconds = m.value()
			stat.EtaSamples = m.n
		}
		stat.Score = stat.EtaSeconds + float64(queuePenalty*stat.Queue)
		out = append(out, stat)
	}
	return out, nil
}

// TipSummary totals recorded tips per valet, largest total first.
func (s *Service) TipSummary(ctx context.Context, venueID int64) ([]models.TipSummary, error) {
	tips, err := s.store.ListTips(ctx, venueID)
	if err != nil {
		return nil, err
	}
	byValet := make(map[string]*models.TipSummary)
	for _, tip := range tips {
		valet := tip.DeliveredBy
		if valet == "" {
			valet = unassignedValet
		}
		sum, ok := byValet[valet]
		if !ok {
			sum = &models.TipSummary{DeliveredBy: valet}
			byValet[valet] = sum
		}
		sum.Count++
		sum.TotalCents += tip.AmountCents
	}

	out := make([]models.TipSummary, 0, len(byValet))
	for _, sum := range byValet {
		sum.Total = s.FormatCents(sum.TotalCents)
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalCents != out[j].TotalCents {
			return out[i].TotalCents > out[j].TotalCents
		}
		return out[i].DeliveredBy < out[j].DeliveredBy
	})
	return out, nil
}

func (s *Service) FormatCents(cents int64) string {
	return s.printer.Sprintf("$%.2f", float64(cents)/100)
}
