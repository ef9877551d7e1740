package cache

import (
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// snapshot returns a deep copy of v so cached entries are never shared by
// reference with callers. Values that cannot round-trip through msgpack are
// returned as-is; scalar and immutable values skip the copy entirely.
func snapshot(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.String:
		return v
	}

	data, err := msgpack.Marshal(v)
	if err != nil {
		return v
	}
	out := reflect.New(rv.Type())
	if err := msgpack.Unmarshal(data, out.Interface()); err != nil {
		return v
	}
	return out.Elem().Interface()
}
