package syncengine

import "errors"

// Health turns a run of read failures into an availability flag. Single
// failures stay silent; the flag flips after threshold consecutive ones and
// clears on the next success. An unauthorized response flips it at once
// because retrying cannot fix it.
type Health struct {
	threshold   int
	failures    int
	unavailable bool
	err         error
}

func NewHealth(threshold int) Health {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	return Health{threshold: threshold}
}

// Failure records err and reports whether availability changed.
func (h *Health) Failure(err error) bool {
	h.failures++
	h.err = err
	if h.unavailable {
		return false
	}
	if h.failures >= h.threshold || errors.Is(err, ErrUnauthorized) {
		h.unavailable = true
		return true
	}
	return false
}

// Success resets the failure run and reports whether availability changed.
func (h *Health) Success() bool {
	h.failures = 0
	h.err = nil
	if !h.unavailable {
		return false
	}
	h.unavailable = false
	return true
}

func (h Health) Unavailable() bool { return h.unavailable }

// Err is the latest failure, kept until the next success.
func (h Health) Err() error { return h.err }

func (h Health) Failures() int { return h.failures }
