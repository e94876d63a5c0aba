package syncengine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kushalX13/CurbKey/internal/lifecycle"
	"github.com/kushalX13/CurbKey/internal/models"
	"github.com/kushalX13/CurbKey/internal/telemetry"
)

// State is what a console renders.
type State struct {
	Requests    []models.Request
	Mark        int64
	Unavailable bool
	Err         error
}

type WatcherOptions struct {
	Scope     lifecycle.Scope
	Threshold int
	Logger    *slog.Logger
	// OnChange is called after every change to the state, one call at a
	// time. It may read State but must not call Optimistic.
	OnChange func(State)
}

// Watcher owns the view for one watched scope and the transport feeding it.
type Watcher struct {
	transport Transport
	logger    *slog.Logger
	onChange  func(State)

	mu     sync.Mutex
	view   *View
	health Health

	notifyMu sync.Mutex
	runMu    sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewWatcher(transport Transport, opts WatcherOptions) *Watcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		transport: transport,
		logger:    logger.With(slog.String(telemetry.LogFieldComponent, "syncengine")),
		onChange:  opts.OnChange,
		view:      NewView(opts.Scope),
		health:    NewHealth(opts.Threshold),
	}
}

// Start runs the transport in the background. Calling Start on a running
// watcher does nothing.
func (w *Watcher) Start(ctx context.Context) {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		err := w.transport.Run(runCtx, watcherSink{w})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.ErrorContext(runCtx, "sync transport stopped", slog.Any(telemetry.LogFieldErr, err))
		}
	}()
}

// Stop cancels the transport and waits for it to exit. No callbacks fire
// after Stop returns.
func (w *Watcher) Stop() {
	w.runMu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	w.wg.Wait()
}

func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stateLocked()
}

func (w *Watcher) stateLocked() State {
	return State{
		Requests:    w.view.Requests(),
		Mark:        w.view.Mark(),
		Unavailable: w.health.Unavailable(),
		Err:         w.health.Err(),
	}
}

// Optimistic shows a status change locally before the server confirms it.
func (w *Watcher) Optimistic(requestID int64, status models.Status) {
	w.update(func(v *View, _ *Health) bool { return v.Optimistic(requestID, status) })
}

func (w *Watcher) update(fn func(v *View, h *Health) bool) {
	w.notifyMu.Lock()
	defer w.notifyMu.Unlock()

	w.mu.Lock()
	changed := fn(w.view, &w.health)
	state := w.stateLocked()
	w.mu.Unlock()

	if changed && w.onChange != nil {
		w.onChange(state)
	}
}

type watcherSink struct{ w *Watcher }

func (s watcherSink) Replace(snapshot []models.Request) {
	s.w.update(func(v *View, _ *Health) bool {
		v.Replace(snapshot)
		return true
	})
}

func (s watcherSink) Apply(ev models.StatusEvent) {
	s.w.update(func(v *View, _ *Health) bool { return v.Apply(ev) })
}

func (s watcherSink) Mark() int64 {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	return s.w.view.Mark()
}

func (s watcherSink) Failure(err error) {
	s.w.logger.Debug("sync read failed", slog.Any(telemetry.LogFieldErr, err))
	s.w.update(func(_ *View, h *Health) bool {
		changed := h.Failure(err)
		if changed {
			s.w.logger.Warn("sync unavailable",
				slog.Int("failures", h.Failures()),
				slog.Any(telemetry.LogFieldErr, err))
		}
		return changed
	})
}

func (s watcherSink) Success() {
	s.w.update(func(_ *View, h *Health) bool { return h.Success() })
}
