package repositoryfilter

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// AggregateOp is one aggregate projection.
type AggregateOp string

const (
	AggCount AggregateOp = "count"
	AggSum   AggregateOp = "sum"
	AggAvg   AggregateOp = "avg"
	AggMin   AggregateOp = "min"
	AggMax   AggregateOp = "max"
)

var aggregateFns = map[AggregateOp]string{
	AggCount: "count",
	AggSum:   "sum",
	AggAvg:   "avg",
	AggMin:   "min",
	AggMax:   "max",
}

// AggregateOptions selects the target field, the projections and an
// optional grouping column. Filters are restricted to direct columns:
// aggregation over joined relations is not supported.
type AggregateOptions struct {
	Field          string
	Ops            []AggregateOp
	GroupBy        string
	Filters        map[string]any
	IncludeDeleted bool
}

// AggregateRow is one result row: the projected values keyed by op, plus
// the group key when grouped.
type AggregateRow struct {
	Group  any                 `json:"group,omitempty"`
	Values map[AggregateOp]any `json:"values"`
}

// Aggregate computes the requested projections, one SQL aggregate per op.
// Unknown field or group column is fatal, unlike the lenient filter path:
// silently aggregating the wrong thing is worse than failing.
func (e *Engine[T]) Aggregate(ctx context.Context, opts AggregateOptions) ([]AggregateRow, error) {
	return cached(ctx, e, "Aggregate", []any{opts}, func(ctx context.Context) ([]AggregateRow, error) {
		return e.aggregate(ctx, opts)
	})
}

func (e *Engine[T]) aggregate(ctx context.Context, opts AggregateOptions) ([]AggregateRow, error) {
	if len(opts.Ops) == 0 {
		return nil, fmt.Errorf("repositoryfilter: aggregate needs at least one op")
	}
	if opts.Field == "" || !e.schema.HasColumn(opts.Field) {
		return nil, fmt.Errorf("repositoryfilter: unknown aggregate field %q", opts.Field)
	}
	if opts.GroupBy != "" && !e.schema.HasColumn(opts.GroupBy) {
		return nil, fmt.Errorf("repositoryfilter: unknown group column %q", opts.GroupBy)
	}
	for _, op := range opts.Ops {
		if _, ok := aggregateFns[op]; !ok {
			return nil, fmt.Errorf("repositoryfilter: unknown aggregate op %q", op)
		}
	}

	compiled, err := e.compiler.CompileMap(opts.Filters)
	if err != nil {
		return nil, err
	}
	if compiled.NeedsJoins() {
		return nil, fmt.Errorf("repositoryfilter: aggregate filters must target direct columns")
	}

	q := e.db.NewSelect().Model((*T)(nil))
	q = e.compiler.ApplyVisibility(q, opts.IncludeDeleted)
	q = compiled.Apply(q)

	grouped := opts.GroupBy != ""
	if grouped {
		q = q.ColumnExpr("?TableAlias.? AS group_value", bun.Ident(opts.GroupBy)).
			GroupExpr("?TableAlias.?", bun.Ident(opts.GroupBy))
	}
	for _, op := range opts.Ops {
		if op == AggCount {
			q = q.ColumnExpr("count(*) AS agg_count")
			continue
		}
		// aggregateFns is a closed map, so concatenating the function name
		// is safe; a ? placeholder before ( trips up bun's formatter.
		q = q.ColumnExpr(aggregateFns[op]+"(?TableAlias.?) AS ?",
			bun.Ident(opts.Field), bun.Ident("agg_"+string(op)))
	}

	var rows []map[string]any
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, err
	}

	out := make([]AggregateRow, 0, len(rows))
	for _, row := range rows {
		r := AggregateRow{Values: make(map[AggregateOp]any, len(opts.Ops))}
		if grouped {
			r.Group = row["group_value"]
		}
		for _, op := range opts.Ops {
			r.Values[op] = row["agg_"+string(op)]
		}
		out = append(out, r)
	}
	return out, nil
}
