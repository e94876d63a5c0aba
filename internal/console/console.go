// Package console holds the guest, valet and manager front ends: what each
// role sees, which actions it is offered and how failures are shown.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/kushalX13/CurbKey/internal/clock"
	"github.com/kushalX13/CurbKey/internal/lifecycle"
	"github.com/kushalX13/CurbKey/internal/models"
	"github.com/kushalX13/CurbKey/internal/syncengine"
	"github.com/kushalX13/CurbKey/internal/telemetry"
)

const (
	TransportPoll   = "poll"
	TransportStream = "stream"
)

type Options struct {
	Role      string
	VenueID   int64
	Token     string
	Scope     lifecycle.Scope
	Transport string
	Threshold int
	Backoff   time.Duration
	Width     int
	Clock     clock.Clock
	Logger    *slog.Logger
	Out       io.Writer
}

// Console watches one scope for one role and renders every change to Out.
type Console struct {
	role     string
	venueID  int64
	token    string
	client   *syncengine.Client
	watcher  *syncengine.Watcher
	guard    syncengine.Guard
	policy   lifecycle.Policy
	renderer Renderer
	clock    clock.Clock
	backoff  time.Duration
	logger   *slog.Logger

	outMu sync.Mutex
	out   io.Writer
}

// New builds a console. Guests watch their ticket by token; staff watch
// their venue's scope.
func New(client *syncengine.Client, opts Options) (*Console, error) {
	switch opts.Role {
	case models.RoleGuest:
		if opts.Token == "" {
			return nil, errors.New("guest console needs a ticket token")
		}
	case models.RoleValet, models.RoleManager:
	default:
		return nil, fmt.Errorf("unknown role %q", opts.Role)
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}

	c := &Console{
		role:     opts.Role,
		venueID:  opts.VenueID,
		token:    opts.Token,
		client:   client,
		policy:   lifecycle.DefaultPolicy(),
		renderer: NewRenderer(DefaultTheme, opts.Width),
		clock:    clk,
		backoff:  opts.Backoff,
		logger:   logger.With(slog.String(telemetry.LogFieldComponent, "console"), slog.String("role", opts.Role)),
		out:      out,
	}
	scope := opts.Scope
	if opts.Role == models.RoleGuest {
		scope = ""
	} else if scope == "" {
		scope = lifecycle.ScopeActive
	}
	transport, err := c.transport(opts.Transport, scope)
	if err != nil {
		return nil, err
	}
	c.watcher = syncengine.NewWatcher(transport, syncengine.WatcherOptions{
		Scope:     scope,
		Threshold: opts.Threshold,
		Logger:    logger,
		OnChange:  c.render,
	})
	return c, nil
}

func (c *Console) transport(kind string, scope lifecycle.Scope) (syncengine.Transport, error) {
	switch kind {
	case "", TransportPoll:
		if c.role == models.RoleGuest {
			return syncengine.PollTransport{Fetch: c.client.TicketSnapshot(c.token), Interval: syncengine.GuestPollInterval, Clock: c.clock}, nil
		}
		interval := syncengine.ValetPollInterval
		if c.role == models.RoleManager {
			interval = syncengine.ManagerPollInterval
		}
		return syncengine.PollTransport{Fetch: c.client.VenueSnapshot(c.venueID, scope), Interval: interval, Clock: c.clock}, nil
	case TransportStream:
		open := c.client.VenueEvents(c.venueID)
		if c.role == models.RoleGuest {
			open = c.client.TicketEvents(c.token)
		}
		return syncengine.StreamTransport{Open: open, Backoff: c.backoff, Clock: c.clock}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
}

func (c *Console) title() string {
	if c.role == models.RoleGuest {
		return "Your pickup"
	}
	return fmt.Sprintf("Venue %d queue", c.venueID)
}

func (c *Console) render(state syncengine.State) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if _, err := io.WriteString(c.out, c.renderer.RenderQueue(c.title(), c.role, state)); err != nil {
		c.logger.Warn("console render failed", slog.Any(telemetry.LogFieldErr, err))
	}
}

// Run watches until ctx is done. Managers also get the stats panel
// refreshed on its own, slower interval.
func (c *Console) Run(ctx context.Context) error {
	c.watcher.Start(ctx)
	defer c.watcher.Stop()

	if c.role != models.RoleManager {
		<-ctx.Done()
		return nil
	}
	for {
		c.renderStats(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-c.clock.After(syncengine.StatsPollInterval):
		}
	}
}

func (c *Console) renderStats(ctx context.Context) {
	metrics, err := c.client.Metrics(ctx, c.venueID, 0)
	if err != nil {
		c.notify(ctx, err)
		return
	}
	tips, err := c.client.TipSummary(ctx, c.venueID)
	if err != nil {
		c.notify(ctx, err)
		return
	}
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, _ = io.WriteString(c.out, c.renderer.RenderMetrics(metrics, tips))
}

func (c *Console) notify(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	notice := Surface(c.role, err)
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintln(c.out, notice.Message)
}

func (c *Console) State() syncengine.State { return c.watcher.State() }

// Advance moves a request to target. Moves the shared policy does not offer
// are refused without a call, and a second tap while the first is in flight
// gets ErrMutationInFlight. The new status shows locally at once and is
// reconciled by the next snapshot or event.
func (c *Console) Advance(ctx context.Context, requestID int64, target models.Status) (models.Request, error) {
	for _, req := range c.watcher.State().Requests {
		if req.ID == requestID && !c.policy.Allowed(c.role, req.Status, target) {
			return models.Request{}, fmt.Errorf("%w: %s may not move %s to %s", syncengine.ErrInvalidTransition, c.role, req.Status, target)
		}
	}
	if !c.policy.IsStaff(c.role) {
		return models.Request{}, fmt.Errorf("%w: %s cannot change request status", syncengine.ErrForbidden, c.role)
	}

	var updated models.Request
	err := c.guard.Do(ctx, requestID, func(ctx context.Context) error {
		var err error
		updated, err = c.client.Transition(ctx, requestID, target, "")
		return err
	})
	if err != nil {
		return models.Request{}, err
	}
	c.watcher.Optimistic(requestID, updated.Status)
	return updated, nil
}

// Tick runs the scheduler once on the server. Managers only.
func (c *Console) Tick(ctx context.Context) (int, error) {
	if !c.policy.CanTick(c.role) {
		return 0, fmt.Errorf("%w: %s cannot run the scheduler", syncengine.ErrForbidden, c.role)
	}
	return c.client.Tick(ctx)
}

// RequestCar asks for the guest's car, now or after delayMinutes.
func (c *Console) RequestCar(ctx context.Context, exitID int64, delayMinutes int) (models.Request, error) {
	if !c.policy.CanCreateRequest(c.role) {
		return models.Request{}, fmt.Errorf("%w: %s cannot request a car", syncengine.ErrForbidden, c.role)
	}
	req, _, err := c.client.CreateRequest(ctx, c.token, syncengine.CreateRequestParams{ExitID: exitID, DelayMinutes: delayMinutes})
	return req, err
}

func (c *Console) Reschedule(ctx context.Context, requestID int64, delayMinutes int) (models.Request, error) {
	if !c.policy.CanReschedule(c.role) {
		return models.Request{}, fmt.Errorf("%w: %s cannot reschedule", syncengine.ErrForbidden, c.role)
	}
	var updated models.Request
	err := c.guard.Do(ctx, requestID, func(ctx context.Context) error {
		var err error
		updated, err = c.client.Reschedule(ctx, c.token, requestID, delayMinutes)
		return err
	})
	return updated, err
}
