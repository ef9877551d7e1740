package repositoryfilter

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/goliatone/go-repository-filter/filter"
)

// CursorPage is one page of a cursor-paginated walk. Cursors are opaque
// tokens encoding the boundary item's cursor-field value; a nil TotalCount
// means the caller did not ask for one.
type CursorPage[T any] struct {
	Items      []*T   `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	PrevCursor string `json:"prev_cursor,omitempty"`
	HasNext    bool   `json:"has_next"`
	HasPrev    bool   `json:"has_prev"`
	TotalCount *int   `json:"total_count,omitempty"`
}

// CursorOptions drives PaginateCursor. Field must be a unique, totally
// ordered column; it defaults to the primary key. At most one of After and
// Before may be set.
type CursorOptions struct {
	Field          string
	Limit          int
	After          string
	Before         string
	Filters        map[string]any
	IncludeDeleted bool
	IncludeTotal   bool
}

// PaginateCursor fetches limit+1 rows past the cursor boundary, keeps limit
// of them, and uses the extra row to decide whether a further page exists.
// Pages walked backwards are re-reversed so items always come back in
// ascending cursor order.
func (e *Engine[T]) PaginateCursor(ctx context.Context, opts CursorOptions) (CursorPage[T], error) {
	return cached(ctx, e, "PaginateCursor", []any{opts}, func(ctx context.Context) (CursorPage[T], error) {
		return e.paginateCursor(ctx, opts)
	})
}

func (e *Engine[T]) paginateCursor(ctx context.Context, opts CursorOptions) (CursorPage[T], error) {
	var page CursorPage[T]

	field := opts.Field
	if field == "" {
		field = e.schema.Meta.PK
	}
	if !e.schema.HasColumn(field) {
		return page, fmt.Errorf("repositoryfilter: unknown cursor field %q", field)
	}
	if opts.After != "" && opts.Before != "" {
		return page, fmt.Errorf("repositoryfilter: cursor page cannot use both after and before")
	}
	if opts.Limit < 0 {
		return page, fmt.Errorf("repositoryfilter: cursor limit must not be negative")
	}

	backward := opts.Before != ""

	var records []*T
	q, err := e.compiler.BuildList(e.baseSelect(&records), opts.Filters, filter.ListOptions{
		IncludeDeleted: opts.IncludeDeleted,
	})
	if err != nil {
		return page, err
	}

	col := bun.Ident(field)
	switch {
	case opts.After != "":
		boundary, err := decodeCursor(opts.After)
		if err != nil {
			return page, err
		}
		q = q.Where("?TableAlias.? > ?", col, boundary).OrderExpr("?TableAlias.? ASC", col)
	case backward:
		boundary, err := decodeCursor(opts.Before)
		if err != nil {
			return page, err
		}
		q = q.Where("?TableAlias.? < ?", col, boundary).OrderExpr("?TableAlias.? DESC", col)
	default:
		q = q.OrderExpr("?TableAlias.? ASC", col)
	}

	// One row past the page tells us whether more pages exist without a
	// second query.
	if err := q.Limit(opts.Limit + 1).Scan(ctx); err != nil {
		return page, err
	}

	hasMore := len(records) > opts.Limit
	if hasMore {
		records = records[:opts.Limit]
	}
	if backward {
		reverse(records)
	}
	page.Items = records

	if backward {
		page.HasPrev = hasMore
		page.HasNext = true // the row the Before cursor came from is still ahead
	} else {
		page.HasNext = hasMore
		page.HasPrev = opts.After != ""
	}

	if len(records) > 0 {
		if page.HasNext {
			cur, err := e.cursorFor(records[len(records)-1], field)
			if err != nil {
				return page, err
			}
			page.NextCursor = cur
		}
		if page.HasPrev {
			cur, err := e.cursorFor(records[0], field)
			if err != nil {
				return page, err
			}
			page.PrevCursor = cur
		}
	}

	if opts.IncludeTotal {
		total, err := e.cursorTotal(ctx, opts)
		if err != nil {
			return page, err
		}
		page.TotalCount = &total
	}

	return page, nil
}

func (e *Engine[T]) cursorTotal(ctx context.Context, opts CursorOptions) (int, error) {
	q, err := e.compiler.BuildList(e.baseSelect((*T)(nil)), opts.Filters, filter.ListOptions{
		IncludeDeleted: opts.IncludeDeleted,
	})
	if err != nil {
		return 0, err
	}
	return q.Count(ctx)
}

// cursorFor encodes the item's cursor-field value as an opaque token.
func (e *Engine[T]) cursorFor(record *T, field string) (string, error) {
	fv, ok := e.fieldFor(record, field)
	if !ok {
		return "", fmt.Errorf("repositoryfilter: cursor field %q not present on record", field)
	}
	return encodeCursor(fv.Interface())
}

func encodeCursor(v any) (string, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("repositoryfilter: encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func decodeCursor(cursor string) (any, error) {
	data, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("repositoryfilter: malformed cursor: %w", err)
	}
	var v any
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("repositoryfilter: malformed cursor: %w", err)
	}
	return v, nil
}

func reverse[T any](items []*T) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}
