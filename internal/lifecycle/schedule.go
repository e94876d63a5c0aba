package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/kushalX13/CurbKey/internal/models"
)

const (
	MaxDelayMinutes      = 120
	MinRescheduleLead    = 30 * time.Second
	MaxReschedules       = 3
	RescheduleCooldown   = 10 * time.Second
	AutoTriggeredNote    = "Auto-triggered from schedule"
	rescheduleNoteFormat = "Rescheduled to +%d min"
	scheduledNoteFormat  = "Scheduled for +%d min at exit %s"
	requestedNoteFormat  = "Requested at exit %s"
)

var (
	ErrInvalidDelay       = errors.New("invalid delay")
	ErrRescheduleWindow   = errors.New("too close to scheduled time")
	ErrRescheduleLimit    = errors.New("reschedule limit reached")
	ErrRescheduleCooldown = errors.New("reschedule cooldown active")
)

// InitialStatus decides how a new request starts. A zero delay and no
// explicit time means "now".
func InitialStatus(now time.Time, delayMinutes int, scheduledFor *time.Time) (models.Status, *time.Time, error) {
	if scheduledFor != nil {
		at := scheduledFor.UTC()
		if !at.After(now) {
			return models.StatusNone, nil, fmt.Errorf("%w: scheduled_for must be in the future", ErrInvalidDelay)
		}
		if at.Sub(now) > MaxDelayMinutes*time.Minute {
			return models.StatusNone, nil, fmt.Errorf("%w: scheduled_for must be within %d minutes", ErrInvalidDelay, MaxDelayMinutes)
		}
		return models.StatusScheduled, &at, nil
	}
	if delayMinutes < 0 || delayMinutes > MaxDelayMinutes {
		return models.StatusNone, nil, fmt.Errorf("%w: delay_minutes must be between 0 and %d", ErrInvalidDelay, MaxDelayMinutes)
	}
	if delayMinutes == 0 {
		return models.StatusRequested, nil, nil
	}
	at := now.Add(time.Duration(delayMinutes) * time.Minute).UTC()
	return models.StatusScheduled, &at, nil
}

// CheckReschedule validates moving a SCHEDULED request to now+delay.
func CheckReschedule(req models.Request, now time.Time, delayMinutes int) (time.Time, error) {
	if req.Status != models.StatusScheduled {
		return time.Time{}, Validate(req.Status, models.StatusScheduled)
	}
	if delayMinutes < 1 || delayMinutes > MaxDelayMinutes {
		return time.Time{}, fmt.Errorf("%w: delay_minutes must be 1..%d", ErrInvalidDelay, MaxDelayMinutes)
	}
	if req.ScheduledFor != nil && req.ScheduledFor.Sub(now) < MinRescheduleLead {
		return time.Time{}, ErrRescheduleWindow
	}
	if req.RescheduleCount >= MaxReschedules {
		return time.Time{}, ErrRescheduleLimit
	}
	if req.LastRescheduledAt != nil && now.Sub(*req.LastRescheduledAt) < RescheduleCooldown {
		return time.Time{}, ErrRescheduleCooldown
	}
	return now.Add(time.Duration(delayMinutes) * time.Minute).UTC(), nil
}

func RescheduleNote(delayMinutes int) string {
	return fmt.Sprintf(rescheduleNoteFormat, delayMinutes)
}

func CreationNote(status models.Status, now time.Time, scheduledFor *time.Time, exitCode string) string {
	if status == models.StatusScheduled && scheduledFor != nil {
		minutes := int(scheduledFor.Sub(now) / time.Minute)
		return fmt.Sprintf(scheduledNoteFormat, minutes, exitCode)
	}
	return fmt.Sprintf(requestedNoteFormat, exitCode)
}

// Due reports whether a scheduled request should be promoted at now.
func Due(req models.Request, now time.Time) bool {
	return req.Status == models.StatusScheduled && req.ScheduledFor != nil && !req.ScheduledFor.After(now)
}
