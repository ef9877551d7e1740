package filter

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownField is returned when a filter path names a column or
	// relation the schema does not have.
	ErrUnknownField = errors.New("unknown field")

	// ErrUnknownOperator is returned when a filter key carries an operator
	// suffix that is not in the registry.
	ErrUnknownOperator = errors.New("unknown operator")

	// ErrInvalidOperand is returned when an operand fails the operator's
	// shape validator.
	ErrInvalidOperand = errors.New("invalid operand")
)

// FieldError describes why a single filter could not be compiled. It wraps
// one of the sentinel errors above so callers can branch with errors.Is.
type FieldError struct {
	Key    string
	Op     Operator
	Reason string
	Err    error
}

func (e *FieldError) Error() string {
	var b strings.Builder
	b.WriteString("filter ")
	b.WriteString(displayKey(e.Key))
	if e.Op != "" {
		fmt.Fprintf(&b, " (%s)", e.Op)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

func (e *FieldError) Unwrap() error { return e.Err }

func displayKey(s string) string {
	if s == "" {
		return "<empty>"
	}
	return s
}

func fieldErr(key string, op Operator, err error, reason string) *FieldError {
	return &FieldError{Key: key, Op: op, Reason: reason, Err: err}
}
