package syncengine

import (
	"context"
	"sync"
)

// Guard allows one in-flight mutation per request id. The zero value is
// ready to use.
type Guard struct {
	mu   sync.Mutex
	busy map[int64]struct{}
}

// Do runs fn unless a mutation for id is already running, in which case it
// returns ErrMutationInFlight without calling fn.
func (g *Guard) Do(ctx context.Context, id int64, fn func(ctx context.Context) error) error {
	g.mu.Lock()
	if g.busy == nil {
		g.busy = make(map[int64]struct{})
	}
	if _, ok := g.busy[id]; ok {
		g.mu.Unlock()
		return ErrMutationInFlight
	}
	g.busy[id] = struct{}{}
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.busy, id)
		g.mu.Unlock()
	}()
	return fn(ctx)
}

func (g *Guard) Busy(id int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.busy[id]
	return ok
}
