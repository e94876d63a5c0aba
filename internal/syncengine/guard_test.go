package syncengine

import (
	"context"
	"errors"
	"testing"
)

func TestGuardRejectsConcurrentMutation(t *testing.T) {
	var g Guard
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- g.Do(context.Background(), 7, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if !g.Busy(7) {
		t.Fatalf("expected request 7 busy")
	}
	called := false
	err := g.Do(context.Background(), 7, func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrMutationInFlight) {
		t.Fatalf("expected ErrMutationInFlight, got %v", err)
	}
	if called {
		t.Fatalf("second mutation must not run")
	}
	if err := g.Do(context.Background(), 8, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("other request should not be blocked: %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first mutation: %v", err)
	}
	if g.Busy(7) {
		t.Fatalf("expected request 7 released")
	}
}

func TestGuardReleasesOnError(t *testing.T) {
	var g Guard
	boom := errors.New("boom")
	if err := g.Do(context.Background(), 1, func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := g.Do(context.Background(), 1, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("expected guard released, got %v", err)
	}
}
