package filter

import (
	"fmt"
	"reflect"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// datePartBounds holds the calendar-correct operand range per date-part
// operator. The registry is the single source of truth: an operator missing
// here is not a date part.
var datePartBounds = map[Operator][2]int{
	OpYear:    {1, 9999},
	OpMonth:   {1, 12},
	OpDay:     {1, 31},
	OpWeek:    {1, 53},
	OpQuarter: {1, 4},
	OpWeekDay: {1, 7},
	OpHour:    {0, 23},
	OpMinute:  {0, 59},
	OpSecond:  {0, 59},
}

// validateOperand applies the operator's shape validator. String operators
// are not validated here: a non-string operand degrades to eq at compile
// time instead of failing, which compile handles before calling this.
func validateOperand(op Operator, operand any) error {
	switch op.FamilyOf() {
	case FamilyComparison, FamilyString:
		return nil

	case FamilyCollection:
		if _, ok := asSlice(operand); !ok {
			return fmt.Errorf("%w: %s requires a collection operand", ErrInvalidOperand, op)
		}
		return nil

	case FamilyRange:
		pair, ok := asSlice(operand)
		if !ok {
			return fmt.Errorf("%w: %s requires an ordered pair", ErrInvalidOperand, op)
		}
		if err := validation.Validate(pair, validation.Required, validation.Length(2, 2)); err != nil {
			return fmt.Errorf("%w: %s requires an ordered pair: %v", ErrInvalidOperand, op, err)
		}
		return nil

	case FamilyNull:
		if operand == nil {
			return nil
		}
		if _, ok := operand.(bool); !ok {
			return fmt.Errorf("%w: %s takes a boolean flag", ErrInvalidOperand, op)
		}
		return nil

	case FamilyDatePart:
		n, ok := asInt(operand)
		if !ok {
			return fmt.Errorf("%w: %s requires an integer operand", ErrInvalidOperand, op)
		}
		// ozzo's Min/Max skip zero values, which would let 0 through the
		// calendar bounds, so the range check is explicit.
		bounds := datePartBounds[op]
		if n < bounds[0] || n > bounds[1] {
			return fmt.Errorf("%w: %s operand %d out of range [%d,%d]", ErrInvalidOperand, op, n, bounds[0], bounds[1])
		}
		return nil

	case FamilyJSON:
		return validateJSONOperand(op, operand)

	case FamilyFullText:
		if _, _, ok := searchOperand(operand); !ok {
			return fmt.Errorf("%w: %s requires a query string or a [query, language] pair", ErrInvalidOperand, op)
		}
		return nil
	}
	return nil
}

func validateJSONOperand(op Operator, operand any) error {
	switch op {
	case OpJSONHasKey:
		if _, ok := operand.(string); !ok {
			return fmt.Errorf("%w: %s requires a string key", ErrInvalidOperand, op)
		}
	case OpJSONHasKeys, OpJSONHasAnyKeys:
		keys, ok := asSlice(operand)
		if !ok || len(keys) == 0 {
			return fmt.Errorf("%w: %s requires a non-empty key collection", ErrInvalidOperand, op)
		}
		for _, k := range keys {
			if _, ok := k.(string); !ok {
				return fmt.Errorf("%w: %s keys must be strings", ErrInvalidOperand, op)
			}
		}
	case OpJSONExtract:
		pair, ok := asSlice(operand)
		if !ok {
			return fmt.Errorf("%w: %s requires a [path, expected] pair", ErrInvalidOperand, op)
		}
		if err := validation.Validate(pair, validation.Required, validation.Length(2, 2)); err != nil {
			return fmt.Errorf("%w: %s requires a [path, expected] pair: %v", ErrInvalidOperand, op, err)
		}
		if _, ok := pair[0].(string); !ok {
			return fmt.Errorf("%w: %s path must be a string", ErrInvalidOperand, op)
		}
	}
	return nil
}

// searchOperand extracts (query, language) from a full-text operand.
// Language is empty for the plain string form.
func searchOperand(operand any) (query, language string, ok bool) {
	if s, isStr := operand.(string); isStr {
		return s, "", true
	}
	pair, isSlice := asSlice(operand)
	if !isSlice || len(pair) != 2 {
		return "", "", false
	}
	q, qok := pair[0].(string)
	lang, lok := pair[1].(string)
	if !qok || !lok {
		return "", "", false
	}
	return q, lang, true
}

// asSlice normalizes any slice or array operand into []any. Strings are not
// collections here even though reflect ranges over them.
func asSlice(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// asInt accepts the integer kinds plus whole floats, which is what JSON
// decoding hands us for numeric operands.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float32:
		if float32(int(n)) == n {
			return int(n), true
		}
	case float64:
		if float64(int(n)) == n {
			return int(n), true
		}
	}
	return 0, false
}
