package syncengine

import (
	"context"
	"sync"

	"github.com/kushalX13/CurbKey/internal/lifecycle"
	"github.com/kushalX13/CurbKey/internal/models"
)

// PageSource loads one keyset page after cursor.
type PageSource func(ctx context.Context, cursor int64, limit int) (models.RequestPage, error)

// Pager walks a scope forward one page at a time. Loaded items are only ever
// appended, so the rendered prefix never moves.
type Pager struct {
	source PageSource
	limit  int

	mu     sync.Mutex
	cursor int64
	done   bool
	items  []models.Request
	seen   map[int64]struct{}
}

func NewPager(source PageSource, limit int) *Pager {
	return &Pager{
		source: source,
		limit:  lifecycle.ClampLimit(limit),
		seen:   make(map[int64]struct{}),
	}
}

// Next loads the following page and returns the items it added. Items already
// loaded are skipped. After the last page Next returns nothing.
func (p *Pager) Next(ctx context.Context) ([]models.Request, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return nil, nil
	}

	page, err := p.source(ctx, p.cursor, p.limit)
	if err != nil {
		return nil, err
	}
	var added []models.Request
	for _, req := range page.Requests {
		if _, dup := p.seen[req.ID]; dup {
			continue
		}
		p.seen[req.ID] = struct{}{}
		added = append(added, req)
	}
	p.items = append(p.items, added...)

	if page.NextCursor == nil {
		p.done = true
	} else {
		p.cursor = *page.NextCursor
	}
	return added, nil
}

func (p *Pager) Done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

func (p *Pager) Items() []models.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Request(nil), p.items...)
}

// Reset starts over from the first page.
func (p *Pager) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor = 0
	p.done = false
	p.items = nil
	p.seen = make(map[int64]struct{})
}
