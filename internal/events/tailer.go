package events

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kushalX13/CurbKey/internal/models"
	"github.com/kushalX13/CurbKey/internal/store"
	"github.com/kushalX13/CurbKey/internal/telemetry"
)

type EventSource interface {
	ListEvents(ctx context.Context, filter store.EventFilter) ([]models.StatusEvent, error)
	LatestEventID(ctx context.Context) (int64, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, ev models.StatusEvent) error
}

type TailerOptions struct {
	Interval  time.Duration
	BatchSize int
	Publisher EventPublisher
	Logger    *slog.Logger
}

// Tailer follows the status event log by id and fans new events out to the
// hub and, when configured, to JetStream. The hub and the publisher keep
// separate cursors: a failed publish is retried on the next poll without
// holding back or repeating hub delivery.
type Tailer struct {
	source    EventSource
	hub       *Hub
	publisher EventPublisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger

	lastID      atomic.Int64
	publishedID atomic.Int64
	running     int32
}

func NewTailer(source EventSource, hub *Hub, options TailerOptions) *Tailer {
	interval := options.Interval
	if interval <= 0 {
		interval = time.Second
	}
	batch := options.BatchSize
	if batch <= 0 {
		batch = 100
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Tailer{
		source:    source,
		hub:       hub,
		publisher: options.Publisher,
		interval:  interval,
		batchSize: batch,
		logger:    logger,
	}
}

// Seek skips history so only events written from now on are fanned out.
func (t *Tailer) Seek(ctx context.Context) error {
	id, err := t.source.LatestEventID(ctx)
	if err != nil {
		return err
	}
	t.lastID.Store(id)
	t.publishedID.Store(id)
	return nil
}

func (t *Tailer) LastID() int64 {
	return t.lastID.Load()
}

// PublishedID is the id of the last event JetStream acknowledged.
func (t *Tailer) PublishedID() int64 {
	if t.publisher == nil {
		return t.lastID.Load()
	}
	return t.publishedID.Load()
}

// Poll runs one pass and reports how many events it forwarded. Overlapping
// calls return immediately.
func (t *Tailer) Poll(ctx context.Context) (int, error) {
	if !atomic.CompareAndSwapInt32(&t.running, 0, 1) {
		return 0, nil
	}
	defer atomic.StoreInt32(&t.running, 0)

	after := t.lastID.Load()
	events, err := t.source.ListEvents(ctx, store.EventFilter{AfterID: after, Limit: t.batchSize})
	if err != nil {
		return 0, err
	}
	for _, ev := range events {
		t.hub.Broadcast(ev)
		t.lastID.Store(ev.ID)
	}
	if t.publisher != nil {
		if err := t.publish(ctx, after, events); err != nil {
			return len(events), err
		}
	}
	return len(events), nil
}

// publish forwards events past the publish cursor in id order and stops at the
// first failure so nothing is skipped. When the cursor lags the hub the
// backlog is read again from the store.
func (t *Tailer) publish(ctx context.Context, after int64, events []models.StatusEvent) error {
	from := t.publishedID.Load()
	if from != after {
		var err error
		events, err = t.source.ListEvents(ctx, store.EventFilter{AfterID: from, Limit: t.batchSize})
		if err != nil {
			return err
		}
	}
	for _, ev := range events {
		if err := t.publisher.Publish(ctx, ev); err != nil {
			t.logger.WarnContext(ctx, "event not published, will retry", slog.Int64(telemetry.LogFieldEventID, ev.ID), slog.Any(telemetry.LogFieldErr, err))
			return nil
		}
		t.publishedID.Store(ev.ID)
	}
	return nil
}

func (t *Tailer) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pollCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if _, err := t.Poll(pollCtx); err != nil {
				t.logger.Error("event tail error", slog.Any(telemetry.LogFieldErr, err))
			}
			cancel()
		}
	}
}
