// Package value implements the engine's sum-typed column value domain, and
// the Row mapping that carries one record's worth of them.
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Kind tags the variant carried by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindFloat64
	KindDecimal
	KindString
	KindBytes
	KindTime
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return `null`
	case KindBool:
		return `bool`
	case KindInt64:
		return `int64`
	case KindFloat64:
		return `float64`
	case KindDecimal:
		return `decimal`
	case KindString:
		return `string`
	case KindBytes:
		return `bytes`
	case KindTime:
		return `time`
	case KindJSON:
		return `json`
	default:
		return fmt.Sprintf(`kind(%d)`, uint8(k))
	}
}

// Value is a single column value, drawn from the engine's closed value
// domain. Integer widths (tinyint..bigint, signed/unsigned) are not modeled
// as distinct Go types -- per-endpoint metadata providers narrow/widen on
// the way in and out, and the core only ever sees a KindInt64 once a value
// is in flight (mirrors the teacher's single `*int64`/`sql.NullInt64` scan
// target convention in sql/export/export.go).
//
// The zero Value is KindNull.
type Value struct {
	kind  Kind
	b     bool
	i     int64
	f     float64
	dec   *Decimal
	s     string
	bytes []byte
	t     time.Time
	json  json.RawMessage
}

func Null() Value                 { return Value{kind: KindNull} }
func Bool(v bool) Value           { return Value{kind: KindBool, b: v} }
func Int64(v int64) Value         { return Value{kind: KindInt64, i: v} }
func Float64(v float64) Value     { return Value{kind: KindFloat64, f: v} }
func DecimalValue(d Decimal) Value { return Value{kind: KindDecimal, dec: &d} }
func String(v string) Value       { return Value{kind: KindString, s: v} }
func Bytes(v []byte) Value        { return Value{kind: KindBytes, bytes: v} }
func Time(v time.Time) Value      { return Value{kind: KindTime, t: v} }
func JSON(v json.RawMessage) Value { return Value{kind: KindJSON, json: v} }

func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsNull() bool  { return v.kind == KindNull }

func (v Value) Bool() (bool, bool)             { return v.b, v.kind == KindBool }
func (v Value) Int64() (int64, bool)           { return v.i, v.kind == KindInt64 }
func (v Value) Float64() (float64, bool)       { return v.f, v.kind == KindFloat64 }
func (v Value) Decimal() (Decimal, bool) {
	if v.kind != KindDecimal || v.dec == nil {
		return Decimal{}, false
	}
	return *v.dec, true
}
func (v Value) String() (string, bool)         { return v.s, v.kind == KindString }
func (v Value) Bytes() ([]byte, bool)          { return v.bytes, v.kind == KindBytes }
func (v Value) Time() (time.Time, bool)        { return v.t, v.kind == KindTime }
func (v Value) RawJSON() (json.RawMessage, bool) { return v.json, v.kind == KindJSON }

// Equal compares two Values for value equality, using Decimal.Cmp for the
// decimal variant (so differing scale/representation of the same number
// compares equal) and byte-wise comparison for bytes/JSON.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindInt64:
		return v.i == other.i
	case KindFloat64:
		return v.f == other.f
	case KindDecimal:
		return v.dec.Cmp(*other.dec) == 0
	case KindString:
		return v.s == other.s
	case KindBytes:
		return bytes.Equal(v.bytes, other.bytes)
	case KindTime:
		return v.t.Equal(other.t)
	case KindJSON:
		return bytes.Equal(v.json, other.json)
	default:
		return false
	}
}

// HashBytes returns a canonical byte encoding of v suitable for hashing
// (e.g. the Parallelizer's primary-key partition key, spec.md §4.3 rule
// iii). The encoding is kind-tagged so values of different kinds never
// collide, and stable across calls for equal values.
func (v Value) HashBytes() []byte {
	switch v.kind {
	case KindNull:
		return []byte{byte(KindNull)}
	case KindBool:
		if v.b {
			return []byte{byte(KindBool), 1}
		}
		return []byte{byte(KindBool), 0}
	case KindInt64:
		return append([]byte{byte(KindInt64)}, fmt.Sprintf(`%d`, v.i)...)
	case KindFloat64:
		return append([]byte{byte(KindFloat64)}, fmt.Sprintf(`%v`, v.f)...)
	case KindDecimal:
		return append([]byte{byte(KindDecimal)}, v.dec.String()...)
	case KindString:
		return append([]byte{byte(KindString)}, v.s...)
	case KindBytes:
		return append([]byte{byte(KindBytes)}, v.bytes...)
	case KindTime:
		return append([]byte{byte(KindTime)}, v.t.Format(time.RFC3339Nano)...)
	case KindJSON:
		return append([]byte{byte(KindJSON)}, v.json...)
	default:
		return nil
	}
}

// Native returns v's value as a driver.Valuer-compatible Go type, for
// passing as a database/sql query argument. Decimal values are stringified
// (drivers vary in native decimal support); JSON is passed as its raw bytes.
func (v Value) Native() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt64:
		return v.i
	case KindFloat64:
		return v.f
	case KindDecimal:
		return v.dec.String()
	case KindString:
		return v.s
	case KindBytes:
		return v.bytes
	case KindTime:
		return v.t
	case KindJSON:
		return []byte(v.json)
	default:
		return nil
	}
}

// FromDriverValue converts a value scanned out of a database/sql row
// (always one of nil, int64, float64, bool, []byte, string, or time.Time,
// per the driver.Value contract) into a Value, mirroring the teacher's
// single *int64/sql.NullInt64 scan-target convention: the narrowing
// (tinyint vs bigint, varchar vs text) happens at the endpoint metadata
// layer, not here.
func FromDriverValue(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case int64:
		return Int64(x)
	case float64:
		return Float64(x)
	case bool:
		return Bool(x)
	case []byte:
		return Bytes(append([]byte(nil), x...))
	case string:
		return String(x)
	case time.Time:
		return Time(x)
	default:
		return String(fmt.Sprint(x))
	}
}

func (v Value) GoString() string {
	switch v.kind {
	case KindNull:
		return `value.Null()`
	case KindBool:
		return fmt.Sprintf(`value.Bool(%v)`, v.b)
	case KindInt64:
		return fmt.Sprintf(`value.Int64(%d)`, v.i)
	case KindFloat64:
		return fmt.Sprintf(`value.Float64(%v)`, v.f)
	case KindDecimal:
		return fmt.Sprintf(`value.DecimalValue(%s)`, v.dec.String())
	case KindString:
		return fmt.Sprintf(`value.String(%q)`, v.s)
	case KindBytes:
		return fmt.Sprintf(`value.Bytes(% x)`, v.bytes)
	case KindTime:
		return fmt.Sprintf(`value.Time(%s)`, v.t.Format(time.RFC3339Nano))
	case KindJSON:
		return fmt.Sprintf(`value.JSON(%s)`, string(v.json))
	default:
		return `value.Value{}`
	}
}
