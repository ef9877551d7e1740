package cache

import (
	"context"
	"errors"
	"reflect"
)

// errBadFetchFn is returned when a fetch function does not match the
// FetchFn[T] shape.
var errBadFetchFn = errors.New("cache: fetchFn must have signature func(context.Context) (T, error)")

// validateFetchFn performs validation of the fetchFn parameter to ensure it
// matches the expected signature: func(context.Context) (T, error).
func validateFetchFn(fetchFn any) error {
	if fetchFn == nil {
		return errBadFetchFn
	}

	fnType := reflect.TypeOf(fetchFn)
	if fnType.Kind() != reflect.Func {
		return errBadFetchFn
	}
	if fnType.NumIn() != 1 || fnType.NumOut() != 2 {
		return errBadFetchFn
	}

	contextType := reflect.TypeOf((*context.Context)(nil)).Elem()
	if !fnType.In(0).Implements(contextType) {
		return errBadFetchFn
	}
	errorType := reflect.TypeOf((*error)(nil)).Elem()
	if !fnType.Out(1).Implements(errorType) {
		return errBadFetchFn
	}
	return nil
}

// callFetchFn invokes any function matching FetchFn[T] via reflection.
// fetchFn must already be validated by validateFetchFn.
func callFetchFn(ctx context.Context, fetchFn any) (any, error) {
	if fn, ok := fetchFn.(func(context.Context) (any, error)); ok {
		return fn(ctx)
	}

	results := reflect.ValueOf(fetchFn).Call([]reflect.Value{reflect.ValueOf(ctx)})

	var result any
	if rv := results[0]; rv.IsValid() && rv.CanInterface() {
		result = rv.Interface()
	}
	var err error
	if ev := results[1]; ev.IsValid() && !ev.IsNil() {
		err = ev.Interface().(error)
	}
	return result, err
}
