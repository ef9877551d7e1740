package filter

import (
	"strings"

	"github.com/uptrace/bun"
)

// ListOptions carries the non-filter parts of a listing: window, ordering,
// and soft-delete visibility.
type ListOptions struct {
	Offset int
	Limit  int

	// OrderBy entries are field names, optionally relation-qualified
	// (author__name) and optionally prefixed with "-" for descending.
	OrderBy []string

	// IncludeDeleted lifts the base visibility predicate that hides
	// soft-deleted rows.
	IncludeDeleted bool
}

// ApplyVisibility restricts the query to non-deleted rows unless the caller
// opted into seeing them. Models without a deleted_at column are unaffected.
func (c *Compiler) ApplyVisibility(q *bun.SelectQuery, includeDeleted bool) *bun.SelectQuery {
	if includeDeleted || c.schema.Meta.DeletedAt == "" {
		return q
	}
	return q.Where("?TableAlias.? IS NULL", bun.Ident(c.schema.Meta.DeletedAt))
}

// BuildList assembles a listing query: visibility predicate, compiled
// filters with their joins, ordering, then offset/limit. It returns the
// query unexecuted.
func (c *Compiler) BuildList(q *bun.SelectQuery, filters map[string]any, opts ListOptions) (*bun.SelectQuery, error) {
	b := c.newBuild()
	where, err := c.compileMapInto(b, filters)
	if err != nil {
		return nil, err
	}
	order, err := c.compileOrder(b, opts.OrderBy)
	if err != nil {
		return nil, err
	}
	return c.assemble(q, b, where, order, opts), nil
}

// BuildComplex assembles a listing query from a logical filter tree instead
// of a flat map.
func (c *Compiler) BuildComplex(q *bun.SelectQuery, node Node, opts ListOptions) (*bun.SelectQuery, error) {
	b := c.newBuild()
	root, err := c.compileNode(b, node)
	if err != nil {
		return nil, err
	}
	var where []fragment
	if root != nil {
		where = append(where, *root)
	}
	order, err := c.compileOrder(b, opts.OrderBy)
	if err != nil {
		return nil, err
	}
	return c.assemble(q, b, where, order, opts), nil
}

// CompileNode compiles a logical filter tree into an applicable predicate
// set without ordering or windowing.
func (c *Compiler) CompileNode(node Node) (*Compiled, error) {
	b := c.newBuild()
	root, err := c.compileNode(b, node)
	if err != nil {
		return nil, err
	}
	compiled := &Compiled{joins: b.joins, rank: b.rank}
	if root != nil {
		compiled.where = []fragment{*root}
	}
	return compiled, nil
}

func (c *Compiler) assemble(q *bun.SelectQuery, b *build, where []fragment, order []fragment, opts ListOptions) *bun.SelectQuery {
	q = c.ApplyVisibility(q, opts.IncludeDeleted)
	for _, j := range b.joins {
		q = q.Join(j.sql, j.args...)
	}
	for _, f := range where {
		q = q.Where(f.sql, f.args...)
	}
	for _, f := range order {
		q = q.OrderExpr(f.sql, f.args...)
	}
	if len(order) == 0 && b.rank != nil {
		q = q.OrderExpr(b.rank.sql+" DESC", b.rank.args...)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	return q
}

// compileNode reduces a logical tree to a single fragment, or nil when the
// branch resolves to nothing. Every branch is fail-open in lenient mode: an
// uncompilable child is dropped, it never poisons its siblings.
func (c *Compiler) compileNode(b *build, node Node) (*fragment, error) {
	switch node.kind() {
	case nodeLeaf:
		parts, err := c.compileMapInto(b, node.Leaf)
		if err != nil {
			return nil, err
		}
		if len(parts) == 0 {
			return nil, nil
		}
		f := andFragments(parts)
		return &f, nil

	case nodeAnd:
		parts, err := c.compileChildren(b, node.And)
		if err != nil || len(parts) == 0 {
			return nil, err
		}
		f := andFragments(parts)
		return &f, nil

	case nodeOr:
		parts, err := c.compileChildren(b, node.Or)
		if err != nil || len(parts) == 0 {
			return nil, err
		}
		// A single resolvable child needs no disjunction wrapper.
		f := orFragments(parts)
		return &f, nil

	case nodeNot:
		parts, err := c.compileChildren(b, node.Not)
		if err != nil || len(parts) == 0 {
			return nil, err
		}
		f := notFragment(andFragments(parts))
		return &f, nil
	}
	return nil, nil
}

func (c *Compiler) compileChildren(b *build, children []Node) ([]fragment, error) {
	var parts []fragment
	for _, child := range children {
		f, err := c.compileNode(b, child)
		if err != nil {
			return nil, err
		}
		if f != nil {
			parts = append(parts, *f)
		}
	}
	return parts, nil
}

// compileOrder resolves order entries, reusing the build's join memoization
// so ordering by author__name shares the join a filter on the same path
// already created.
func (c *Compiler) compileOrder(b *build, orderBy []string) ([]fragment, error) {
	var out []fragment
	for _, entry := range orderBy {
		field := entry
		dir := " ASC"
		if strings.HasPrefix(field, "-") {
			field = field[1:]
			dir = " DESC"
		}
		path, _ := ParseKey(field)
		ref, err := b.resolvePath(field, path)
		if err != nil {
			if c.mode == ModeStrict {
				return nil, err
			}
			c.logger.Warn("filter: dropping order field", "field", entry, "error", err)
			continue
		}
		col := ref.expr()
		out = append(out, fragment{sql: col.sql + dir, args: col.args})
	}
	return out, nil
}
