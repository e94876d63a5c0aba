package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kushalX13/CurbKey/internal/clock"
	"github.com/kushalX13/CurbKey/internal/models"
	"github.com/kushalX13/CurbKey/internal/store"
	"github.com/kushalX13/CurbKey/internal/store/memory"
)

var testNow = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

type blockingTicker struct {
	entered chan struct{}
	release chan struct{}
}

func (b blockingTicker) Tick(ctx context.Context, now time.Time, batchSize int) (int, error) {
	close(b.entered)
	<-b.release
	return 1, nil
}

func TestRunOnceRejectsOverlap(t *testing.T) {
	ticker := blockingTicker{entered: make(chan struct{}), release: make(chan struct{})}
	s := New(ticker, Config{Clock: clock.Fake(testNow)})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if n, err := s.RunOnce(context.Background()); err != nil || n != 1 {
			t.Errorf("first tick: n=%d err=%v", n, err)
		}
	}()
	<-ticker.entered

	if _, err := s.RunOnce(context.Background()); !errors.Is(err, ErrTickRunning) {
		t.Fatalf("expected ErrTickRunning, got %v", err)
	}
	close(ticker.release)
	wg.Wait()
}

func TestStartFlipsDueRequests(t *testing.T) {
	st := memory.NewStore()
	venue := st.AddVenue("Acme Hotel", "acme", "A")
	ctx := context.Background()
	ticket, err := st.CreateTicket(ctx, store.CreateTicketInput{VenueID: venue.ID, CreatedAt: testNow})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	req, _, err := st.CreateRequest(ctx, store.CreateRequestInput{
		TicketID:     ticket.ID,
		ExitID:       venue.Exits[0].ID,
		DelayMinutes: 2,
		CreatedAt:    testNow,
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if req.Status != models.StatusScheduled {
		t.Fatalf("expected SCHEDULED, got %s", req.Status)
	}

	clk := clock.Fake(testNow)
	s := New(st, Config{Clock: clk})
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		Start(runCtx, time.Minute, s)
		close(done)
	}()

	clk.WaitForWaiters(1)
	if got, _ := st.GetRequest(ctx, req.ID); got.Status != models.StatusScheduled {
		t.Fatalf("flipped before due: %s", got.Status)
	}
	clk.Advance(time.Minute)
	clk.WaitForWaiters(1)
	clk.Advance(time.Minute)
	clk.WaitForWaiters(1)

	got, err := st.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if got.Status != models.StatusRequested {
		t.Fatalf("expected REQUESTED after due time, got %s", got.Status)
	}
	if n, err := s.RunOnce(ctx); err != nil || n != 0 {
		t.Fatalf("second tick should flip nothing: n=%d err=%v", n, err)
	}

	cancel()
	<-done
}

func TestRunOnceFlipsEveryDueRequestPastBatchSize(t *testing.T) {
	st := memory.NewStore()
	venue := st.AddVenue("Acme Hotel", "acme", "A")
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		ticket, err := st.CreateTicket(ctx, store.CreateTicketInput{VenueID: venue.ID, CreatedAt: testNow})
		if err != nil {
			t.Fatalf("create ticket: %v", err)
		}
		if _, _, err := st.CreateRequest(ctx, store.CreateRequestInput{
			TicketID:     ticket.ID,
			ExitID:       venue.Exits[0].ID,
			DelayMinutes: 1 + i,
			CreatedAt:    testNow,
		}); err != nil {
			t.Fatalf("create request: %v", err)
		}
	}

	s := New(st, Config{BatchSize: 2, Clock: clock.Fake(testNow.Add(time.Hour))})
	if n, err := s.RunOnce(ctx); err != nil || n != 5 {
		t.Fatalf("expected all 5 due requests flipped, got n=%d err=%v", n, err)
	}
	if n, err := s.RunOnce(ctx); err != nil || n != 0 {
		t.Fatalf("second tick should flip nothing: n=%d err=%v", n, err)
	}
}

type failingTicker struct{ calls int }

func (f *failingTicker) Tick(ctx context.Context, now time.Time, batchSize int) (int, error) {
	f.calls++
	if f.calls == 2 {
		return 0, errors.New("connection reset")
	}
	return batchSize, nil
}

func TestDrainStopsOnError(t *testing.T) {
	ticker := &failingTicker{}
	n, err := Drain(context.Background(), ticker, testNow, 3)
	if err == nil || n != 3 || ticker.calls != 2 {
		t.Fatalf("expected first batch counted then error, got n=%d calls=%d err=%v", n, ticker.calls, err)
	}
}
