package descriptor

import (
	"time"

	"github.com/google/uuid"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindInt16
	KindInt32
	KindInt64
	KindInt128
	KindFloat
	KindDouble
	KindDecimal
	KindText
	KindBinary
	KindDate
	KindTime
	KindTimestamp
	KindBoolean
	KindGUID
	KindBlobHandle
	KindArrayHandle
	KindDecFloat
)

// Value is the tagged union a field's slot holds: one bound parameter or
// one fetched column value. The zero Value is null.
//
// 128-bit integers travel as fixed 16-byte two's-complement little-endian
// buffers; GUIDs share the 16-byte octets wire layout.
type Value struct {
	Kind Kind

	Int    int64    // Int16/Int32/Int64, Decimal (scaled), Boolean (0/1)
	Int128 [16]byte // little-endian two's complement
	Float  float64  // Float/Double
	Text   string
	Bytes  []byte
	Time   time.Time
	GUID   uuid.UUID
	Handle int64 // blob or array identifier quad
}

// Null is the null value.
var Null = Value{Kind: KindNull}

// IsNull reports whether the value is null.
func (v Value) IsNull() bool {
	return v.Kind == KindNull
}

func NewInt16(v int16) Value     { return Value{Kind: KindInt16, Int: int64(v)} }
func NewInt32(v int32) Value     { return Value{Kind: KindInt32, Int: int64(v)} }
func NewInt64(v int64) Value     { return Value{Kind: KindInt64, Int: v} }
func NewFloat(v float32) Value   { return Value{Kind: KindFloat, Float: float64(v)} }
func NewDouble(v float64) Value  { return Value{Kind: KindDouble, Float: v} }
func NewText(s string) Value     { return Value{Kind: KindText, Text: s} }
func NewBinary(p []byte) Value   { return Value{Kind: KindBinary, Bytes: p} }
func NewBoolean(b bool) Value    { return Value{Kind: KindBoolean, Int: boolInt(b)} }
func NewGUID(u uuid.UUID) Value  { return Value{Kind: KindGUID, GUID: u} }
func NewBlobHandle(id int64) Value  { return Value{Kind: KindBlobHandle, Handle: id} }
func NewArrayHandle(id int64) Value { return Value{Kind: KindArrayHandle, Handle: id} }

// NewDecimal builds a decimal value from its integer representation
// already scaled by the owning field's numeric scale.
func NewDecimal(scaled int64) Value {
	return Value{Kind: KindDecimal, Int: scaled}
}

// NewDecFloat builds a DECFLOAT value from its raw IEEE 754-2008 DFP
// bytes (8 for DECFLOAT(16), 16 for DECFLOAT(34)).
func NewDecFloat(p []byte) Value {
	return Value{Kind: KindDecFloat, Bytes: p}
}

// NewInt128 builds a 128-bit integer value from its 16-byte
// little-endian two's-complement form.
func NewInt128(le [16]byte) Value {
	return Value{Kind: KindInt128, Int128: le}
}

func NewDate(t time.Time) Value      { return Value{Kind: KindDate, Time: t} }
func NewTime(t time.Time) Value      { return Value{Kind: KindTime, Time: t} }
func NewTimestamp(t time.Time) Value { return Value{Kind: KindTimestamp, Time: t} }

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
