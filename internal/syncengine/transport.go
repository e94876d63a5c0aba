// Package syncengine keeps a console's local view of requests in step with
// the server, either by polling snapshots or by tailing the event stream.
package syncengine

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/kushalX13/CurbKey/internal/clock"
	"github.com/kushalX13/CurbKey/internal/models"
	"github.com/kushalX13/CurbKey/internal/sse"
)

const (
	ValetPollInterval       = 2 * time.Second
	GuestPollInterval       = 4 * time.Second
	ManagerPollInterval     = 5 * time.Second
	StatsPollInterval       = 30 * time.Second
	DefaultBackoff          = 1500 * time.Millisecond
	DefaultFailureThreshold = 3
)

// FetchFunc loads the full current snapshot of a scope.
type FetchFunc func(ctx context.Context) ([]models.Request, error)

// OpenFunc opens an event stream resuming after lastID.
type OpenFunc func(ctx context.Context, lastID int64) (io.ReadCloser, error)

// Sink receives what a Transport learns. Calls arrive from a single
// goroutine.
type Sink interface {
	Replace(snapshot []models.Request)
	Apply(ev models.StatusEvent)
	Mark() int64
	Failure(err error)
	Success()
}

// Transport runs until ctx is done and returns ctx.Err(). Read failures are
// reported to the sink and retried, never returned.
type Transport interface {
	Run(ctx context.Context, sink Sink) error
}

// PollTransport refetches the whole scope every Interval and replaces the
// view with the result.
type PollTransport struct {
	Fetch    FetchFunc
	Interval time.Duration
	Clock    clock.Clock
}

func (p PollTransport) Run(ctx context.Context, sink Sink) error {
	clk := p.Clock
	if clk == nil {
		clk = clock.Real()
	}
	interval := p.Interval
	if interval <= 0 {
		interval = ValetPollInterval
	}
	for {
		snapshot, err := p.Fetch(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			sink.Failure(err)
		default:
			sink.Replace(snapshot)
			sink.Success()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clk.After(interval):
		}
	}
}

// StreamTransport tails the SSE event log from the sink's high-water mark.
// When the stream drops, it reconnects after Backoff. A connection the server
// ends cleanly is not a failure.
type StreamTransport struct {
	Open    OpenFunc
	Backoff time.Duration
	Clock   clock.Clock
}

func (s StreamTransport) Run(ctx context.Context, sink Sink) error {
	clk := s.Clock
	if clk == nil {
		clk = clock.Real()
	}
	backoff := s.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	for {
		err := s.consume(ctx, sink)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			sink.Failure(err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clk.After(backoff):
		}
	}
}

func (s StreamTransport) consume(ctx context.Context, sink Sink) error {
	body, err := s.Open(ctx, sink.Mark())
	if err != nil {
		return err
	}
	defer body.Close()
	sink.Success()

	dec := sse.NewDecoder(body)
	for {
		frame, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if frame.Name != sse.EventStatus {
			continue
		}
		ev, err := sse.DecodeStatus(frame)
		if err != nil {
			return err
		}
		sink.Apply(ev)
	}
}
