package repositoryfilter

import (
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-filter/filter"
)

// Criteria exposes a compiled filter map as a go-repository-bun
// SelectCriteria, so repositories built on that package can consume
// operator filters without adopting the engine. The criteria shape has no
// error channel; a filter set that fails to compile yields a pass-through
// criteria and the compiler logs what was dropped.
func Criteria(c *filter.Compiler, filters map[string]any) repository.SelectCriteria {
	compiled, err := c.CompileMap(filters)
	if err != nil || compiled == nil {
		return passThrough
	}
	return compiled.Apply
}

// ComplexCriteria is Criteria for an AND/OR/NOT filter tree.
func ComplexCriteria(c *filter.Compiler, node filter.Node) repository.SelectCriteria {
	compiled, err := c.CompileNode(node)
	if err != nil || compiled == nil {
		return passThrough
	}
	return compiled.Apply
}

func passThrough(q *bun.SelectQuery) *bun.SelectQuery { return q }
