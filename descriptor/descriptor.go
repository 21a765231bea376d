// Package descriptor models the shape of a statement's parameter set or
// result row: an ordered, fixed-length sequence of typed fields, plus
// the compiled binary type buffer (BLR) the protocol sends to describe
// that shape to the server.
package descriptor

import (
	"fmt"

	"github.com/tomyedwab/fbwire/fberr"
)

// Descriptor is an ordered, fixed-length sequence of fields. The field
// count is set at construction and never changes.
//
// The compiled BLR buffer is memoized per descriptor: repeated Compile
// calls with no intervening shape-determining change return the same
// buffer instance, which callers rely on to key cached protocol
// messages. Toggling only a field's nullable bit never invalidates it.
type Descriptor struct {
	fields []Field

	blr      []byte
	blrDirty bool
}

// New creates a descriptor with the given immutable field count.
func New(count int) *Descriptor {
	d := &Descriptor{
		fields:   make([]Field, count),
		blrDirty: true,
	}
	for i := range d.fields {
		d.fields[i].owner = d
	}
	return d
}

// Count returns the number of fields.
func (d *Descriptor) Count() int {
	return len(d.fields)
}

// Field returns the i'th field for inspection or mutation.
func (d *Descriptor) Field(i int) *Field {
	return &d.fields[i]
}

// Compile returns the binary type buffer describing the descriptor's
// current shape. The result is deterministic in the shape-determining
// field values and cached until one of them changes; callers must treat
// the returned slice as read-only.
func (d *Descriptor) Compile() ([]byte, error) {
	if !d.blrDirty && d.blr != nil {
		return d.blr, nil
	}

	n := len(d.fields)
	buf := make([]byte, 0, 8+n*4)
	buf = append(buf, blrVersion5, blrBegin, blrMessage, 0)
	// Each field contributes two message slots: the value itself and its
	// 2-byte null indicator.
	buf = append(buf, byte(n*2), byte(n*2>>8))

	for i := range d.fields {
		f := &d.fields[i]
		var err error
		buf, err = appendFieldBLR(buf, f)
		if err != nil {
			return nil, err
		}
		// Null indicator slot.
		buf = append(buf, blrShort, 0)
	}

	buf = append(buf, blrEnd, blrEOC)
	d.blr = buf
	d.blrDirty = false
	return d.blr, nil
}

func appendFieldBLR(buf []byte, f *Field) ([]byte, error) {
	length := f.length
	switch f.BaseType() {
	case SQLVarying:
		return append(buf, blrVarying, byte(length), byte(length>>8)), nil
	case SQLText:
		return append(buf, blrText, byte(length), byte(length>>8)), nil
	case SQLShort:
		return append(buf, blrShort, byte(f.scale)), nil
	case SQLLong:
		return append(buf, blrLong, byte(f.scale)), nil
	case SQLInt64:
		return append(buf, blrInt64, byte(f.scale)), nil
	case SQLInt128:
		return append(buf, blrInt128, byte(f.scale)), nil
	case SQLQuad:
		return append(buf, blrQuad, byte(f.scale)), nil
	case SQLFloat:
		return append(buf, blrFloat), nil
	case SQLDouble:
		return append(buf, blrDouble), nil
	case SQLDFloat:
		return append(buf, blrDFloat), nil
	case SQLDate:
		return append(buf, blrSQLDate), nil
	case SQLTime:
		return append(buf, blrSQLTime), nil
	case SQLTimestamp:
		return append(buf, blrTimestamp), nil
	case SQLTimeTZ:
		return append(buf, blrSQLTimeTZ), nil
	case SQLTimestampTZ:
		return append(buf, blrTimestampTZ), nil
	case SQLBoolean:
		return append(buf, blrBool), nil
	case SQLDec16:
		return append(buf, blrDec64), nil
	case SQLDec34:
		return append(buf, blrDec128), nil
	case SQLBlob, SQLArray:
		return append(buf, blrQuad, 0), nil
	default:
		return nil, fberr.NewMarshalingRangeError(
			fmt.Sprintf("cannot compile type descriptor for unknown type code %d", f.BaseType()))
	}
}
