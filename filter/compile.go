package filter

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// Predicate mutates a bun select query, the same shape go-repository-bun
// uses for select criteria. Compiled filters are exposed in this form so
// they compose with existing repository code.
type Predicate func(*bun.SelectQuery) *bun.SelectQuery

// Mode controls what happens when a single filter cannot be compiled.
//
// In lenient mode a bad filter is logged and dropped, leaving the rest of
// the query intact; a caller cannot tell "matched everything" apart from
// "silently ignored". Strict mode turns every drop into an error instead.
type Mode int

const (
	ModeLenient Mode = iota
	ModeStrict
)

// Compiler turns filter keys and operands into query predicates for one
// schema. A Compiler is immutable and safe for concurrent use; per-query
// state (join memoization) lives in the build context created per call.
type Compiler struct {
	schema *Schema
	mode   Mode
	logger *slog.Logger
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithMode selects strict or lenient compilation.
func WithMode(m Mode) CompilerOption {
	return func(c *Compiler) { c.mode = m }
}

// WithLogger sets the logger used for dropped-filter warnings.
func WithLogger(l *slog.Logger) CompilerOption {
	return func(c *Compiler) { c.logger = l }
}

// NewCompiler creates a compiler bound to a schema.
func NewCompiler(schema *Schema, opts ...CompilerOption) *Compiler {
	c := &Compiler{schema: schema, mode: ModeLenient}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Schema returns the schema this compiler validates against.
func (c *Compiler) Schema() *Schema { return c.schema }

// Mode returns the configured compile mode.
func (c *Compiler) Mode() Mode { return c.mode }

// fragment is one renderable piece of SQL with its bind args. Fragments are
// combined textually (golem-style) so NOT and OR nest without touching the
// query until Apply.
type fragment struct {
	sql  string
	args []any
}

// join is one memoized join clause keyed by its path prefix.
type join struct {
	alias string
	sql   string
	args  []any
}

// build carries the per-query-build state: the joins resolved so far, keyed
// by path prefix so repeated prefixes reuse one join. A build is created and
// consumed within one logical call and is not shared across goroutines.
type build struct {
	c       *Compiler
	joins   []*join
	joinIdx map[string]*join
	rank    *fragment
}

func (c *Compiler) newBuild() *build {
	return &build{c: c, joinIdx: map[string]*join{}}
}

// columnRef is a resolved column: empty alias means the base table, which
// renders through bun's ?TableAlias placeholder.
type columnRef struct {
	alias string
	col   string
}

func (r columnRef) expr() fragment {
	if r.alias == "" {
		return fragment{sql: "?TableAlias.?", args: []any{bun.Ident(r.col)}}
	}
	return fragment{sql: "?.?", args: []any{bun.Ident(r.alias), bun.Ident(r.col)}}
}

// resolvePath walks a filter path through the schema, memoizing one join
// per relation prefix, and returns the terminal column reference.
func (b *build) resolvePath(key string, path []string) (columnRef, error) {
	if len(path) == 0 || path[0] == "" {
		return columnRef{}, fieldErr(key, "", ErrUnknownField, "empty path")
	}

	schema := b.c.schema
	parentAlias := ""
	for i := 0; i < len(path)-1; i++ {
		rel, ok := schema.RelationFor(path[i])
		if !ok {
			return columnRef{}, fieldErr(key, "", ErrUnknownField,
				fmt.Sprintf("%s is not a relation of %s", path[i], schema.Table))
		}
		prefix := strings.Join(path[:i+1], keySeparator)
		j, seen := b.joinIdx[prefix]
		if !seen {
			j = b.joinClause(prefix, parentAlias, rel)
			b.joinIdx[prefix] = j
			b.joins = append(b.joins, j)
		}
		parentAlias = j.alias
		schema = rel.JoinSchema
	}

	terminal := path[len(path)-1]
	if !schema.HasColumn(terminal) {
		return columnRef{}, fieldErr(key, "", ErrUnknownField,
			fmt.Sprintf("%s is not a column of %s", terminal, schema.Table))
	}
	return columnRef{alias: parentAlias, col: terminal}, nil
}

// joinClause renders one LEFT JOIN for a relation hop. The alias is the
// path prefix itself, which is deterministic and collision-free per build.
func (b *build) joinClause(alias, parentAlias string, rel *Relation) *join {
	var sql strings.Builder
	args := []any{bun.Ident(rel.JoinTable), bun.Ident(alias)}
	sql.WriteString("LEFT JOIN ? AS ? ON ")
	for i := range rel.BaseColumns {
		if i > 0 {
			sql.WriteString(" AND ")
		}
		base := columnRef{alias: parentAlias, col: rel.BaseColumns[i]}.expr()
		sql.WriteString("?.? = ")
		sql.WriteString(base.sql)
		args = append(args, bun.Ident(alias), bun.Ident(rel.JoinColumns[i]))
		args = append(args, base.args...)
	}
	return &join{alias: alias, sql: sql.String(), args: args}
}

const (
	alwaysTrue  = "1 = 1"
	alwaysFalse = "1 = 0"
)

// compileExpression compiles one filter into a fragment. Errors wrap the
// sentinel taxonomy; the caller decides whether to drop or propagate based
// on the compiler mode.
func (b *build) compileExpression(key string, expr Expression) (fragment, error) {
	op := expr.Op
	if !op.IsValid() {
		return fragment{}, fieldErr(key, op, ErrUnknownOperator, "")
	}

	ref, err := b.resolvePath(key, expr.Path)
	if err != nil {
		return fragment{}, err
	}

	operand := expr.Operand

	// Non-string operands on string operators degrade to plain equality
	// rather than failing. Documented quirk carried from the source system.
	if op.FamilyOf() == FamilyString {
		if _, ok := operand.(string); !ok {
			b.c.logger.Debug("filter: non-string operand degrades to eq",
				"key", key, "operator", string(op))
			op = OpEq
		}
	}

	if err := validateOperand(op, operand); err != nil {
		return fragment{}, fieldErr(key, op, ErrInvalidOperand, err.Error())
	}

	col := ref.expr()
	switch op.FamilyOf() {
	case FamilyComparison:
		return b.compileComparison(col, op, operand), nil
	case FamilyString:
		return b.compileString(col, op, operand.(string)), nil
	case FamilyCollection:
		return b.compileCollection(col, op, operand), nil
	case FamilyRange:
		return b.compileRange(col, op, operand), nil
	case FamilyNull:
		return b.compileNull(col, op, operand), nil
	case FamilyDatePart:
		return b.compileDatePart(col, op, operand), nil
	case FamilyJSON:
		return b.compileJSON(col, op, operand), nil
	case FamilyFullText:
		return b.compileSearchFilter(col, op, operand)
	}
	return fragment{}, fieldErr(key, op, ErrUnknownOperator, "unhandled family")
}

func (b *build) compileComparison(col fragment, op Operator, operand any) fragment {
	if operand == nil {
		// eq/ne against nil are the only meaningful nil comparisons.
		switch op {
		case OpEq:
			return fragment{sql: col.sql + " IS NULL", args: col.args}
		case OpNe:
			return fragment{sql: col.sql + " IS NOT NULL", args: col.args}
		}
	}
	cmp := map[Operator]string{
		OpEq: "=", OpNe: "<>", OpLt: "<", OpLte: "<=", OpGt: ">", OpGte: ">=",
	}[op]
	return fragment{
		sql:  col.sql + " " + cmp + " ?",
		args: append(col.args, operand),
	}
}

// escapeLike guards pattern metacharacters in user operands; the generated
// LIKE always carries ESCAPE '\'.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (b *build) compileString(col fragment, op Operator, s string) fragment {
	pg := b.c.schema.Dialect == dialect.PG

	pattern := func(p string) fragment {
		like := "LIKE"
		lhs := col.sql
		if op.caseInsensitive() {
			if pg {
				like = "ILIKE"
			} else {
				lhs = "lower(" + col.sql + ")"
				p = strings.ToLower(p)
			}
		}
		return fragment{
			sql:  lhs + " " + like + " ? ESCAPE '\\'",
			args: append(col.args, p),
		}
	}

	switch op {
	case OpLike, OpILike:
		// The operand is already a pattern; no escaping.
		lhs, p := col.sql, s
		like := "LIKE"
		if op == OpILike {
			if pg {
				like = "ILIKE"
			} else {
				lhs = "lower(" + col.sql + ")"
				p = strings.ToLower(p)
			}
		}
		return fragment{sql: lhs + " " + like + " ?", args: append(col.args, p)}
	case OpExact:
		return fragment{sql: col.sql + " = ?", args: append(col.args, s)}
	case OpIExact:
		return fragment{sql: "lower(" + col.sql + ") = lower(?)", args: append(col.args, s)}
	case OpContains, OpIContains:
		return pattern("%" + escapeLike(s) + "%")
	case OpStartsWith, OpIStartsWith:
		return pattern(escapeLike(s) + "%")
	case OpEndsWith, OpIEndsWith:
		return pattern("%" + escapeLike(s))
	case OpRegex:
		if pg {
			return fragment{sql: col.sql + " ~ ?", args: append(col.args, s)}
		}
		return fragment{sql: col.sql + " REGEXP ?", args: append(col.args, s)}
	case OpIRegex:
		if pg {
			return fragment{sql: col.sql + " ~* ?", args: append(col.args, s)}
		}
		return fragment{sql: "lower(" + col.sql + ") REGEXP lower(?)", args: append(col.args, s)}
	}
	// Unreachable: the family switch routed only string operators here.
	return fragment{sql: alwaysTrue}
}

func (b *build) compileCollection(col fragment, op Operator, operand any) fragment {
	values, _ := asSlice(operand)
	if len(values) == 0 {
		// An empty allow-list excludes everything; an empty deny-list
		// excludes nothing.
		if op == OpIn {
			return fragment{sql: alwaysFalse}
		}
		return fragment{sql: alwaysTrue}
	}
	neg := ""
	if op == OpNotIn {
		neg = "NOT "
	}
	return fragment{
		sql:  col.sql + " " + neg + "IN (?)",
		args: append(col.args, bun.In(values)),
	}
}

func (b *build) compileRange(col fragment, op Operator, operand any) fragment {
	pair, _ := asSlice(operand)
	neg := ""
	if op == OpNotBetween {
		neg = "NOT "
	}
	return fragment{
		sql:  col.sql + " " + neg + "BETWEEN ? AND ?",
		args: append(col.args, pair[0], pair[1]),
	}
}

func (b *build) compileNull(col fragment, op Operator, operand any) fragment {
	wantNull := true
	if flag, ok := operand.(bool); ok {
		wantNull = flag
	}
	if op == OpIsNotNull {
		wantNull = !wantNull
	}
	if wantNull {
		return fragment{sql: col.sql + " IS NULL", args: col.args}
	}
	return fragment{sql: col.sql + " IS NOT NULL", args: col.args}
}

// pgExtractField maps date-part operators to EXTRACT fields.
var pgExtractField = map[Operator]string{
	OpYear: "YEAR", OpMonth: "MONTH", OpDay: "DAY", OpWeek: "WEEK",
	OpQuarter: "QUARTER", OpHour: "HOUR", OpMinute: "MINUTE", OpSecond: "SECOND",
}

// sqliteStrftime maps date-part operators to strftime format specifiers.
var sqliteStrftime = map[Operator]string{
	OpYear: "%Y", OpMonth: "%m", OpDay: "%d", OpWeek: "%W",
	OpHour: "%H", OpMinute: "%M", OpSecond: "%S",
}

func (b *build) compileDatePart(col fragment, op Operator, operand any) fragment {
	n, _ := asInt(operand)

	if b.c.schema.Dialect == dialect.PG {
		if op == OpWeekDay {
			// DOW is 0-6 with Sunday=0; the filter vocabulary is 1-7
			// with Sunday=1.
			return fragment{
				sql:  "(CAST(EXTRACT(DOW FROM " + col.sql + ") AS int) + 1) = ?",
				args: append(col.args, n),
			}
		}
		return fragment{
			sql:  "CAST(EXTRACT(" + pgExtractField[op] + " FROM " + col.sql + ") AS int) = ?",
			args: append(col.args, n),
		}
	}

	switch op {
	case OpQuarter:
		return fragment{
			sql:  "((CAST(strftime('%m', " + col.sql + ") AS INTEGER) + 2) / 3) = ?",
			args: append(col.args, n),
		}
	case OpWeekDay:
		return fragment{
			sql:  "(CAST(strftime('%w', " + col.sql + ") AS INTEGER) + 1) = ?",
			args: append(col.args, n),
		}
	}
	return fragment{
		sql:  "CAST(strftime('" + sqliteStrftime[op] + "', " + col.sql + ") AS INTEGER) = ?",
		args: append(col.args, n),
	}
}

func (b *build) compileJSON(col fragment, op Operator, operand any) fragment {
	if b.c.schema.Dialect == dialect.PG {
		return b.compileJSONPg(col, op, operand)
	}
	return b.compileJSONGeneric(col, op, operand)
}

func (b *build) compileJSONPg(col fragment, op Operator, operand any) fragment {
	jsonb := "CAST(" + col.sql + " AS jsonb)"
	switch op {
	case OpJSONHasKey:
		return fragment{sql: "jsonb_exists(" + jsonb + ", ?)", args: append(col.args, operand)}
	case OpJSONHasKeys:
		keys, _ := asSlice(operand)
		return fragment{sql: "jsonb_exists_all(" + jsonb + ", ARRAY[?])", args: append(col.args, bun.In(keys))}
	case OpJSONHasAnyKeys:
		keys, _ := asSlice(operand)
		return fragment{sql: "jsonb_exists_any(" + jsonb + ", ARRAY[?])", args: append(col.args, bun.In(keys))}
	case OpJSONExtract:
		pair, _ := asSlice(operand)
		parts := strings.Split(pair[0].(string), ".")
		path := make([]any, len(parts))
		for i, p := range parts {
			path[i] = p
		}
		args := append(col.args, bun.In(path), pair[1])
		return fragment{sql: "jsonb_extract_path_text(" + jsonb + ", ?) = ?", args: args}
	}
	return fragment{sql: alwaysTrue}
}

func (b *build) compileJSONGeneric(col fragment, op Operator, operand any) fragment {
	keyPath := func(k string) string { return "$." + k }
	exists := func(k string) fragment {
		return fragment{
			sql:  "json_type(" + col.sql + ", ?) IS NOT NULL",
			args: append(append([]any{}, col.args...), keyPath(k)),
		}
	}
	switch op {
	case OpJSONHasKey:
		return exists(operand.(string))
	case OpJSONHasKeys, OpJSONHasAnyKeys:
		keys, _ := asSlice(operand)
		parts := make([]fragment, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, exists(k.(string)))
		}
		if op == OpJSONHasKeys {
			return andFragments(parts)
		}
		return orFragments(parts)
	case OpJSONExtract:
		pair, _ := asSlice(operand)
		args := append(col.args, keyPath(pair[0].(string)), pair[1])
		return fragment{sql: "json_extract(" + col.sql + ", ?) = ?", args: args}
	}
	return fragment{sql: alwaysTrue}
}

// andFragments reduces fragments with conjunction. Zero fragments compile to
// no predicate, which callers must treat as absent, so this returns the
// neutral true.
func andFragments(parts []fragment) fragment {
	return joinFragments(parts, " AND ", alwaysTrue)
}

func orFragments(parts []fragment) fragment {
	return joinFragments(parts, " OR ", alwaysFalse)
}

func joinFragments(parts []fragment, sep, empty string) fragment {
	switch len(parts) {
	case 0:
		return fragment{sql: empty}
	case 1:
		return parts[0]
	}
	var sql strings.Builder
	var args []any
	sql.WriteString("(")
	for i, p := range parts {
		if i > 0 {
			sql.WriteString(sep)
		}
		sql.WriteString(p.sql)
		args = append(args, p.args...)
	}
	sql.WriteString(")")
	return fragment{sql: sql.String(), args: args}
}

func notFragment(f fragment) fragment {
	return fragment{sql: "NOT (" + f.sql + ")", args: f.args}
}

// Compiled is the result of compiling a filter set: the joins it needs and
// the conjunction of its predicates. Apply attaches both to a query.
type Compiled struct {
	joins []*join
	where []fragment
	rank  *fragment
}

// Apply attaches the compiled joins and predicates to a select query.
func (p *Compiled) Apply(q *bun.SelectQuery) *bun.SelectQuery {
	if p == nil {
		return q
	}
	for _, j := range p.joins {
		q = q.Join(j.sql, j.args...)
	}
	for _, f := range p.where {
		q = q.Where(f.sql, f.args...)
	}
	return q
}

// Predicate returns the compiled filter set as a criteria function.
func (p *Compiled) Predicate() Predicate {
	return p.Apply
}

// Empty reports whether nothing was compiled.
func (p *Compiled) Empty() bool {
	return p == nil || (len(p.joins) == 0 && len(p.where) == 0)
}

// NeedsJoins reports whether any predicate traverses a relation.
func (p *Compiled) NeedsJoins() bool {
	return p != nil && len(p.joins) > 0
}

// CompileMap compiles a filter map. In lenient mode a filter that fails to
// compile is logged and skipped, never fatal; strict mode returns the first
// error. Keys are processed in sorted order so the generated SQL, and any
// cache key derived from it, is deterministic.
func (c *Compiler) CompileMap(filters map[string]any) (*Compiled, error) {
	b := c.newBuild()
	where, err := c.compileMapInto(b, filters)
	if err != nil {
		return nil, err
	}
	return &Compiled{joins: b.joins, where: where, rank: b.rank}, nil
}

func (c *Compiler) compileMapInto(b *build, filters map[string]any) ([]fragment, error) {
	var where []fragment
	for _, key := range sortedKeys(filters) {
		expr := Parse(key, filters[key])
		f, err := b.compileExpression(key, expr)
		if err != nil {
			if c.mode == ModeStrict {
				return nil, err
			}
			c.logger.Warn("filter: dropping filter", "key", key, "error", err)
			continue
		}
		where = append(where, f)
	}
	return where, nil
}

// CompileExpression compiles a single expression. Unlike CompileMap this is
// always strict: the caller asked for exactly this filter.
func (c *Compiler) CompileExpression(expr Expression) (*Compiled, error) {
	b := c.newBuild()
	key := strings.Join(expr.Path, keySeparator)
	f, err := b.compileExpression(key, expr)
	if err != nil {
		return nil, err
	}
	return &Compiled{joins: b.joins, where: []fragment{f}, rank: b.rank}, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
