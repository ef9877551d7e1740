// Package filter compiles a declarative key/operator vocabulary into bun
// query predicates.
//
// # Overview
//
// Callers express ad-hoc conditions as filter keys of the form
//
//	field[__relation...][__operator]
//
// paired with an operand. The package parses each key, validates the operand
// against the operator's declared shape, and compiles the result into SQL
// fragments applied through bun:
//
//	schema, _ := filter.SchemaOf[Post](db)
//	compiler := filter.NewCompiler(schema)
//
//	q := db.NewSelect().Model(&posts)
//	q, _ = compiler.BuildList(q, map[string]any{
//		"status":       "published",
//		"views__gte":   1000,
//		"author__name": "ada",
//	}, filter.ListOptions{Limit: 20, OrderBy: []string{"-created_at"}})
//
// # Operator families
//
//   - comparison: eq ne lt lte gt gte
//   - string: like ilike exact contains startswith endswith regex and
//     i-prefixed case-insensitive variants
//   - collection: in not_in (an empty in-list matches nothing, an empty
//     not_in-list matches everything)
//   - range: between not_between
//   - null checks: isnull isnotnull (bool operand inverts the check)
//   - date parts: year month day week quarter week_day hour minute second
//   - JSON paths: json_has_key json_has_keys json_has_any_keys json_extract
//   - full text: search search_phrase search_websearch search_raw and
//     *_rank variants carrying an orderable rank expression
//
// A missing operator suffix means eq.
//
// # Failure policy
//
// In the default lenient mode a filter that names an unknown field or
// operator, or carries an operand of the wrong shape, is logged and dropped;
// the rest of the query still executes. ModeStrict turns every drop into an
// error. Single-expression compilation (CompileExpression, cursor fields,
// aggregation pivots) is always strict because no meaningful result is
// possible without that one filter.
//
// # Relations
//
// Path segments before the terminal field traverse has-one and belongs-to
// relations introspected from bun model tags. Each distinct path prefix
// produces exactly one LEFT JOIN per query build, shared by every filter and
// order entry using that prefix.
//
// # Dialects
//
// Generated SQL adapts to the connected dialect: date parts use EXTRACT on
// Postgres and strftime on SQLite; full text uses tsvector/tsquery on
// Postgres and degrades to substring matching elsewhere so listings stay
// available on embedded stores.
package filter
