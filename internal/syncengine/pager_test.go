package syncengine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kushalX13/CurbKey/internal/models"
)

// keysetSource serves ids in descending order, like the server's keyset
// pagination.
func keysetSource(ids []int64, calls *int) PageSource {
	return func(_ context.Context, cursor int64, limit int) (models.RequestPage, error) {
		*calls++
		var page models.RequestPage
		for _, id := range ids {
			if cursor > 0 && id >= cursor {
				continue
			}
			if len(page.Requests) == limit {
				next := page.Requests[len(page.Requests)-1].ID
				page.NextCursor = &next
				break
			}
			page.Requests = append(page.Requests, models.Request{ID: id})
		}
		return page, nil
	}
}

func requestIDs(reqs []models.Request) []int64 {
	out := make([]int64, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, req.ID)
	}
	return out
}

func TestPagerMatchesUnpaginated(t *testing.T) {
	ids := []int64{9, 8, 7, 6, 5, 4, 3}
	var calls int
	p := NewPager(keysetSource(ids, &calls), 3)

	first, err := p.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{9, 8, 7}, requestIDs(first))
	prefix := p.Items()

	for !p.Done() {
		_, err := p.Next(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, ids, requestIDs(p.Items()))
	assert.Equal(t, prefix, p.Items()[:len(prefix)])
	assert.Equal(t, 3, calls)

	more, err := p.Next(context.Background())
	require.NoError(t, err)
	assert.Empty(t, more)
	assert.Equal(t, 3, calls)
}

func TestPagerSkipsDuplicates(t *testing.T) {
	next := int64(5)
	pages := []models.RequestPage{
		{Requests: []models.Request{{ID: 6}, {ID: 5}}, NextCursor: &next},
		{Requests: []models.Request{{ID: 5}, {ID: 4}}},
	}
	p := NewPager(func(_ context.Context, cursor int64, limit int) (models.RequestPage, error) {
		page := pages[0]
		pages = pages[1:]
		return page, nil
	}, 2)

	_, err := p.Next(context.Background())
	require.NoError(t, err)
	added, err := p.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{4}, requestIDs(added))
	assert.Equal(t, []int64{6, 5, 4}, requestIDs(p.Items()))
	assert.True(t, p.Done())
}

func TestPagerErrorKeepsPosition(t *testing.T) {
	fail := true
	var calls int
	source := keysetSource([]int64{3, 2, 1}, &calls)
	p := NewPager(func(ctx context.Context, cursor int64, limit int) (models.RequestPage, error) {
		if fail {
			return models.RequestPage{}, ErrNetworkUnavailable
		}
		return source(ctx, cursor, limit)
	}, 2)

	_, err := p.Next(context.Background())
	require.True(t, errors.Is(err, ErrNetworkUnavailable))
	assert.False(t, p.Done())
	assert.Empty(t, p.Items())

	fail = false
	_, err = p.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2}, requestIDs(p.Items()))

	p.Reset()
	assert.Empty(t, p.Items())
	assert.False(t, p.Done())
}
