package syncengine

import (
	"errors"
	"fmt"
	"testing"
)

func TestHealthThreshold(t *testing.T) {
	h := NewHealth(3)
	boom := errors.New("boom")

	if h.Failure(boom) || h.Failure(boom) {
		t.Fatalf("unavailable before threshold")
	}
	if h.Unavailable() {
		t.Fatalf("expected available after two failures")
	}
	if !h.Failure(boom) {
		t.Fatalf("third failure should flip availability")
	}
	if h.Failure(boom) {
		t.Fatalf("already unavailable, no change expected")
	}
	if !errors.Is(h.Err(), boom) {
		t.Fatalf("expected last error kept, got %v", h.Err())
	}
	if !h.Success() {
		t.Fatalf("success should clear unavailability")
	}
	if h.Failures() != 0 || h.Err() != nil {
		t.Fatalf("expected reset, got %d failures err=%v", h.Failures(), h.Err())
	}
}

func TestHealthSuccessResetsRun(t *testing.T) {
	h := NewHealth(2)
	h.Failure(errors.New("one"))
	h.Success()
	if h.Failure(errors.New("two")) {
		t.Fatalf("failure run should restart after success")
	}
}

func TestHealthUnauthorizedIsImmediate(t *testing.T) {
	h := NewHealth(3)
	if !h.Failure(fmt.Errorf("list: %w", ErrUnauthorized)) {
		t.Fatalf("unauthorized should flip availability at once")
	}
}
