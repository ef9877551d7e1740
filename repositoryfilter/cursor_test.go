package repositoryfilter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-repository-filter/repositoryfilter"
)

func TestPaginateCursorForward(t *testing.T) {
	db := newEngineDB(t)
	e := newEngine(t, db)
	ctx := context.Background()

	page1, err := e.PaginateCursor(ctx, repositoryfilter.CursorOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, articleIDs(page1.Items))
	assert.True(t, page1.HasNext)
	assert.False(t, page1.HasPrev)
	require.NotEmpty(t, page1.NextCursor)
	assert.Empty(t, page1.PrevCursor)

	page2, err := e.PaginateCursor(ctx, repositoryfilter.CursorOptions{Limit: 2, After: page1.NextCursor})
	require.NoError(t, err)
	assert.Equal(t, []string{"a3", "a4"}, articleIDs(page2.Items))
	assert.True(t, page2.HasNext)
	assert.True(t, page2.HasPrev)

	page3, err := e.PaginateCursor(ctx, repositoryfilter.CursorOptions{Limit: 2, After: page2.NextCursor})
	require.NoError(t, err)
	assert.Equal(t, []string{"a5"}, articleIDs(page3.Items))
	assert.False(t, page3.HasNext)
	assert.True(t, page3.HasPrev)
	assert.Empty(t, page3.NextCursor)
}

func TestPaginateCursorBackward(t *testing.T) {
	db := newEngineDB(t)
	e := newEngine(t, db)
	ctx := context.Background()

	// Walk to the middle, then page back from it.
	page1, err := e.PaginateCursor(ctx, repositoryfilter.CursorOptions{Limit: 2})
	require.NoError(t, err)
	page2, err := e.PaginateCursor(ctx, repositoryfilter.CursorOptions{Limit: 2, After: page1.NextCursor})
	require.NoError(t, err)
	require.NotEmpty(t, page2.PrevCursor)

	back, err := e.PaginateCursor(ctx, repositoryfilter.CursorOptions{Limit: 2, Before: page2.PrevCursor})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, articleIDs(back.Items))
	assert.True(t, back.HasNext)
	assert.False(t, back.HasPrev)
}

func TestPaginateCursorBackwardTruncates(t *testing.T) {
	db := newEngineDB(t)
	e := newEngine(t, db)
	ctx := context.Background()

	// Everything before a5, one row per page: the newest rows win and the
	// extra row signals more pages behind.
	pages, err := e.PaginateCursor(ctx, repositoryfilter.CursorOptions{Limit: 3})
	require.NoError(t, err)
	last, err := e.PaginateCursor(ctx, repositoryfilter.CursorOptions{Limit: 2, After: pages.NextCursor})
	require.NoError(t, err)
	require.Equal(t, []string{"a4", "a5"}, articleIDs(last.Items))

	back, err := e.PaginateCursor(ctx, repositoryfilter.CursorOptions{Limit: 2, Before: last.PrevCursor})
	require.NoError(t, err)
	assert.Equal(t, []string{"a2", "a3"}, articleIDs(back.Items))
	assert.True(t, back.HasPrev)
	assert.True(t, back.HasNext)
	assert.NotEmpty(t, back.PrevCursor)
}

func TestPaginateCursorWithFilters(t *testing.T) {
	db := newEngineDB(t)
	e := newEngine(t, db)
	ctx := context.Background()

	opts := repositoryfilter.CursorOptions{
		Limit:   2,
		Filters: map[string]any{"status": "published"},
	}
	page, err := e.PaginateCursor(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, articleIDs(page.Items))
	assert.True(t, page.HasNext)

	opts.After = page.NextCursor
	next, err := e.PaginateCursor(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"a4"}, articleIDs(next.Items))
	assert.False(t, next.HasNext)
}

func TestPaginateCursorCustomField(t *testing.T) {
	db := newEngineDB(t)
	e := newEngine(t, db)

	page, err := e.PaginateCursor(context.Background(), repositoryfilter.CursorOptions{
		Field: "views",
		Limit: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a4", "a3"}, articleIDs(page.Items))
}

func TestPaginateCursorIncludeTotal(t *testing.T) {
	db := newEngineDB(t)
	e := newEngine(t, db)

	page, err := e.PaginateCursor(context.Background(), repositoryfilter.CursorOptions{
		Limit:        2,
		IncludeTotal: true,
	})
	require.NoError(t, err)
	require.NotNil(t, page.TotalCount)
	assert.Equal(t, 5, *page.TotalCount)
}

func TestPaginateCursorIncludesDeleted(t *testing.T) {
	db := newEngineDB(t)
	e := newEngine(t, db)

	page, err := e.PaginateCursor(context.Background(), repositoryfilter.CursorOptions{
		Limit:          10,
		IncludeDeleted: true,
	})
	require.NoError(t, err)
	assert.Len(t, page.Items, 6)
	assert.False(t, page.HasNext)
}

func TestPaginateCursorValidation(t *testing.T) {
	db := newEngineDB(t)
	e := newEngine(t, db)
	ctx := context.Background()

	_, err := e.PaginateCursor(ctx, repositoryfilter.CursorOptions{Field: "bogus", Limit: 2})
	assert.ErrorContains(t, err, "unknown cursor field")

	_, err = e.PaginateCursor(ctx, repositoryfilter.CursorOptions{Limit: 2, After: "x", Before: "y"})
	assert.ErrorContains(t, err, "both after and before")

	_, err = e.PaginateCursor(ctx, repositoryfilter.CursorOptions{Limit: -1})
	assert.ErrorContains(t, err, "must not be negative")

	_, err = e.PaginateCursor(ctx, repositoryfilter.CursorOptions{Limit: 2, After: "!!! not base64 !!!"})
	assert.ErrorContains(t, err, "malformed cursor")
}
