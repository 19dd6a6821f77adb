// Package query encodes Graph API parameter sets into query strings.
//
// Parameter values are a closed set of kinds. Scalars are stringified
// verbatim, sequences and structured records are serialized to compact JSON
// before percent-encoding, and null values are dropped from the output.
package query

import (
	"reflect"
	"strconv"

	"github.com/goccy/go-json"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	// KindNull marks an absent value. Null entries are omitted when encoding.
	KindNull Kind = iota

	// KindScalar is a string or number rendered as-is.
	KindScalar

	// KindSequence is an ordered list rendered as a JSON array.
	KindSequence

	// KindStructured is a record rendered as a JSON object.
	KindStructured
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindSequence:
		return "sequence"
	case KindStructured:
		return "structured"
	default:
		return "null"
	}
}

// Value is a single parameter value. The zero Value is null.
type Value struct {
	kind   Kind
	scalar string
	raw    any
}

// String returns a scalar value holding s.
func String(s string) Value {
	return Value{kind: KindScalar, scalar: s}
}

// Int returns a scalar value holding n in base 10.
func Int(n int64) Value {
	return Value{kind: KindScalar, scalar: strconv.FormatInt(n, 10)}
}

// Float returns a scalar value holding f in its shortest decimal form.
func Float(f float64) Value {
	return Value{kind: KindScalar, scalar: strconv.FormatFloat(f, 'f', -1, 64)}
}

// Sequence returns a value that encodes items as a JSON array.
func Sequence[T any](items ...T) Value {
	list := make([]T, len(items))
	copy(list, items)
	return Value{kind: KindSequence, raw: list}
}

// Structured returns a value that encodes record as a JSON object.
// A nil record is null, including a typed nil pointer, map, slice or
// interface.
func Structured(record any) Value {
	if isNil(record) {
		return Null()
	}
	return Value{kind: KindStructured, raw: record}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

// Null returns the null value.
func Null() Value {
	return Value{}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind {
	return v.kind
}

// IsNull reports whether v is null.
func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// Text returns the unescaped string form of v and whether v is present.
//
// Sequence and structured values must be JSON-serializable; a value that
// cannot be marshaled (for example a channel or a cyclic structure) is a
// programming error and panics.
func (v Value) Text() (string, bool) {
	switch v.kind {
	case KindScalar:
		return v.scalar, true
	case KindSequence, KindStructured:
		data, err := json.Marshal(v.raw)
		if err != nil {
			panic("query: value is not JSON-serializable: " + err.Error())
		}
		return string(data), true
	default:
		return "", false
	}
}
