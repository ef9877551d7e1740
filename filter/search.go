package filter

import (
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// SearchType selects how free text is parsed into a search query.
type SearchType string

const (
	SearchPlain     SearchType = "plain"
	SearchPhrase    SearchType = "phrase"
	SearchWebsearch SearchType = "websearch"
	SearchRaw       SearchType = "raw"
)

// DefaultSearchLanguage is used when a search carries no language qualifier.
const DefaultSearchLanguage = "english"

// tsqueryFn maps a search type to the Postgres tsquery parser.
var tsqueryFn = map[SearchType]string{
	SearchPlain:     "plainto_tsquery",
	SearchPhrase:    "phraseto_tsquery",
	SearchWebsearch: "websearch_to_tsquery",
	SearchRaw:       "to_tsquery",
}

// searchTypeOf maps full-text operators to their search type.
func searchTypeOf(op Operator) SearchType {
	switch op {
	case OpSearchPhrase, OpSearchPhraseRank:
		return SearchPhrase
	case OpSearchWebsearch, OpSearchWebsearchRank:
		return SearchWebsearch
	case OpSearchRaw:
		return SearchRaw
	}
	return SearchPlain
}

// compileSearchFilter compiles a single-column full-text filter. On
// Postgres this is a tsvector match; elsewhere it degrades to a substring
// match so listings stay available on embedded databases. Rank variants
// additionally record a rank expression on the build for ordering.
func (b *build) compileSearchFilter(col fragment, op Operator, operand any) (fragment, error) {
	query, lang, _ := searchOperand(operand)
	if lang == "" {
		lang = DefaultSearchLanguage
	}

	match, rank := b.searchFragments([]fragment{col}, searchTypeOf(op), query, lang)
	if op.ranked() {
		b.rank = &rank
	}
	return match, nil
}

// searchFragments builds the match predicate and rank expression over one
// or more column fragments.
func (b *build) searchFragments(cols []fragment, st SearchType, query, lang string) (match, rank fragment) {
	if b.c.schema.Dialect == dialect.PG {
		var doc strings.Builder
		var docArgs []any
		for i, col := range cols {
			if i > 0 {
				doc.WriteString(" || ' ' || ")
			}
			doc.WriteString("coalesce(" + col.sql + ", '')")
			docArgs = append(docArgs, col.args...)
		}
		vector := "to_tsvector(?, " + doc.String() + ")"
		tsquery := tsqueryFn[st] + "(?, ?)"

		matchArgs := append([]any{lang}, docArgs...)
		matchArgs = append(matchArgs, lang, query)
		match = fragment{sql: vector + " @@ " + tsquery, args: matchArgs}

		rankArgs := append([]any{lang}, docArgs...)
		rankArgs = append(rankArgs, lang, query)
		rank = fragment{sql: "ts_rank(" + vector + ", " + tsquery + ")", args: rankArgs}
		return match, rank
	}

	// Substring fallback for non-Postgres stores. Rank counts matching
	// columns so ordering is still meaningful.
	var parts []fragment
	var rankSQL strings.Builder
	var rankArgs []any
	for i, col := range cols {
		cond := fragment{
			sql:  "lower(" + col.sql + ") LIKE '%' || lower(?) || '%'",
			args: append(append([]any{}, col.args...), query),
		}
		parts = append(parts, cond)
		if i > 0 {
			rankSQL.WriteString(" + ")
		}
		rankSQL.WriteString("(CASE WHEN " + cond.sql + " THEN 1.0 ELSE 0.0 END)")
		rankArgs = append(rankArgs, cond.args...)
	}
	return orFragments(parts), fragment{sql: "(" + rankSQL.String() + ")", args: rankArgs}
}

// HasRank reports whether a rank expression was produced by a *_rank filter.
func (p *Compiled) HasRank() bool { return p != nil && p.rank != nil }

// OrderByRank orders the query by the recorded rank expression, highest
// first. No-op when no rank filter was compiled.
func (p *Compiled) OrderByRank(q *bun.SelectQuery) *bun.SelectQuery {
	if !p.HasRank() {
		return q
	}
	return q.OrderExpr(p.rank.sql+" DESC", p.rank.args...)
}

// SearchSpec describes a multi-field full-text search.
type SearchSpec struct {
	Fields   []string
	Text     string
	Type     SearchType
	Language string

	// MinRank drops hits below the threshold when non-nil.
	MinRank *float64

	// IncludeRank selects the rank as an extra column named RankAlias
	// (default "rank") and orders by it, highest first.
	IncludeRank bool
	RankAlias   string
}

// ApplySearch attaches a multi-field full-text match to the query. Unknown
// fields are dropped in lenient mode; if none survive, the query matches
// nothing rather than everything, consistent with "find nothing" for an
// unusable search. Strict mode errors instead.
func (c *Compiler) ApplySearch(q *bun.SelectQuery, spec SearchSpec) (*bun.SelectQuery, error) {
	if spec.Type == "" {
		spec.Type = SearchPlain
	}
	if _, ok := tsqueryFn[spec.Type]; !ok {
		return nil, fmt.Errorf("%w: unknown search type %q", ErrInvalidOperand, spec.Type)
	}
	lang := spec.Language
	if lang == "" {
		lang = DefaultSearchLanguage
	}

	b := c.newBuild()
	var cols []fragment
	for _, field := range spec.Fields {
		path, _ := ParseKey(field)
		ref, err := b.resolvePath(field, path)
		if err != nil {
			if c.mode == ModeStrict {
				return nil, err
			}
			c.logger.Warn("filter: dropping search field", "field", field, "error", err)
			continue
		}
		cols = append(cols, ref.expr())
	}
	if len(cols) == 0 {
		return q.Where(alwaysFalse), nil
	}

	match, rank := b.searchFragments(cols, spec.Type, spec.Text, lang)
	for _, j := range b.joins {
		q = q.Join(j.sql, j.args...)
	}
	q = q.Where(match.sql, match.args...)

	if spec.MinRank != nil {
		q = q.Where(rank.sql+" >= ?", append(append([]any{}, rank.args...), *spec.MinRank)...)
	}
	if spec.IncludeRank {
		alias := spec.RankAlias
		if alias == "" {
			alias = "rank"
		}
		q = q.ColumnExpr("?TableAlias.*").
			ColumnExpr(rank.sql+" AS ?", append(append([]any{}, rank.args...), bun.Ident(alias))...)
	}
	q = q.OrderExpr(rank.sql+" DESC", rank.args...)
	return q, nil
}
