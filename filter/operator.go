// Package filter compiles declarative filter keys into bun query predicates.
// This file defines the closed operator registry shared by parsing,
// validation and compilation.
package filter

import "strings"

// Operator names a predicate builder in the registry. The registry is
// immutable at runtime; an unregistered suffix is an ErrUnknownOperator,
// never a silent equality match.
type Operator string

const (
	// Comparison operators
	OpEq  Operator = "eq"
	OpNe  Operator = "ne"
	OpLt  Operator = "lt"
	OpLte Operator = "lte"
	OpGt  Operator = "gt"
	OpGte Operator = "gte"

	// String operators. The i-prefixed variants are case-insensitive.
	OpLike        Operator = "like"
	OpILike       Operator = "ilike"
	OpExact       Operator = "exact"
	OpIExact      Operator = "iexact"
	OpContains    Operator = "contains"
	OpIContains   Operator = "icontains"
	OpStartsWith  Operator = "startswith"
	OpIStartsWith Operator = "istartswith"
	OpEndsWith    Operator = "endswith"
	OpIEndsWith   Operator = "iendswith"
	OpRegex       Operator = "regex"
	OpIRegex      Operator = "iregex"

	// Collection operators
	OpIn    Operator = "in"
	OpNotIn Operator = "not_in"

	// Range operators
	OpBetween    Operator = "between"
	OpNotBetween Operator = "not_between"

	// Null checks. The operand is a bool flag that can invert the check.
	OpIsNull    Operator = "isnull"
	OpIsNotNull Operator = "isnotnull"

	// Date-part operators
	OpYear    Operator = "year"
	OpMonth   Operator = "month"
	OpDay     Operator = "day"
	OpWeek    Operator = "week"
	OpQuarter Operator = "quarter"
	OpWeekDay Operator = "week_day"
	OpHour    Operator = "hour"
	OpMinute  Operator = "minute"
	OpSecond  Operator = "second"

	// JSON-path operators
	OpJSONHasKey     Operator = "json_has_key"
	OpJSONHasKeys    Operator = "json_has_keys"
	OpJSONHasAnyKeys Operator = "json_has_any_keys"
	OpJSONExtract    Operator = "json_extract"

	// Full-text operators. Rank variants also yield an orderable rank
	// expression. The operand is the query string or a [query, language]
	// pair for language-qualified search.
	OpSearch              Operator = "search"
	OpSearchPhrase        Operator = "search_phrase"
	OpSearchWebsearch     Operator = "search_websearch"
	OpSearchRaw           Operator = "search_raw"
	OpSearchRank          Operator = "search_rank"
	OpSearchPhraseRank    Operator = "search_phrase_rank"
	OpSearchWebsearchRank Operator = "search_websearch_rank"
)

// Family groups operators that share an operand shape and compile strategy.
type Family int

const (
	FamilyComparison Family = iota
	FamilyString
	FamilyCollection
	FamilyRange
	FamilyNull
	FamilyDatePart
	FamilyJSON
	FamilyFullText
)

// operators is the single source of truth for both compilation and operand
// validation. Lookups never mutate it.
var operators = map[Operator]Family{
	OpEq: FamilyComparison, OpNe: FamilyComparison,
	OpLt: FamilyComparison, OpLte: FamilyComparison,
	OpGt: FamilyComparison, OpGte: FamilyComparison,

	OpLike: FamilyString, OpILike: FamilyString,
	OpExact: FamilyString, OpIExact: FamilyString,
	OpContains: FamilyString, OpIContains: FamilyString,
	OpStartsWith: FamilyString, OpIStartsWith: FamilyString,
	OpEndsWith: FamilyString, OpIEndsWith: FamilyString,
	OpRegex: FamilyString, OpIRegex: FamilyString,

	OpIn: FamilyCollection, OpNotIn: FamilyCollection,

	OpBetween: FamilyRange, OpNotBetween: FamilyRange,

	OpIsNull: FamilyNull, OpIsNotNull: FamilyNull,

	OpYear: FamilyDatePart, OpMonth: FamilyDatePart, OpDay: FamilyDatePart,
	OpWeek: FamilyDatePart, OpQuarter: FamilyDatePart, OpWeekDay: FamilyDatePart,
	OpHour: FamilyDatePart, OpMinute: FamilyDatePart, OpSecond: FamilyDatePart,

	OpJSONHasKey: FamilyJSON, OpJSONHasKeys: FamilyJSON,
	OpJSONHasAnyKeys: FamilyJSON, OpJSONExtract: FamilyJSON,

	OpSearch: FamilyFullText, OpSearchPhrase: FamilyFullText,
	OpSearchWebsearch: FamilyFullText, OpSearchRaw: FamilyFullText,
	OpSearchRank: FamilyFullText, OpSearchPhraseRank: FamilyFullText,
	OpSearchWebsearchRank: FamilyFullText,
}

// IsValid reports whether op is registered.
func (op Operator) IsValid() bool {
	_, ok := operators[op]
	return ok
}

// FamilyOf returns the operator's family. Calling it with an unregistered
// operator returns FamilyComparison; callers must check IsValid first.
func (op Operator) FamilyOf() Family {
	return operators[op]
}

// caseInsensitive reports whether a string operator matches without case.
func (op Operator) caseInsensitive() bool {
	switch op {
	case OpILike, OpIExact, OpIContains, OpIStartsWith, OpIEndsWith, OpIRegex:
		return true
	}
	return false
}

// ranked reports whether a full-text operator carries a rank expression.
func (op Operator) ranked() bool {
	switch op {
	case OpSearchRank, OpSearchPhraseRank, OpSearchWebsearchRank:
		return true
	}
	return false
}

// keySeparator splits path segments and the operator suffix in filter keys.
const keySeparator = "__"

// ParseKey splits a filter key of the form field[__relation...][__operator]
// into a path and an operator. A missing or unrecognized trailing segment
// means the whole key is a path and the operator defaults to OpEq; the path
// itself is validated later against the schema, which is where unknown
// fields surface.
func ParseKey(key string) (path []string, op Operator) {
	segments := strings.Split(key, keySeparator)
	last := Operator(segments[len(segments)-1])
	if len(segments) > 1 && last.IsValid() {
		return segments[:len(segments)-1], last
	}
	return segments, OpEq
}
