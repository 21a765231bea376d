// Package native maps a Descriptor onto the fixed-layout record array
// used by the in-process library path. One contiguous arena holds every
// field's data region and its 2-byte null indicator; slots address the
// arena by offset, never by raw pointer, and the whole allocation is
// released in one step.
package native

import (
	"fmt"

	"github.com/tomyedwab/fbwire/descriptor"
	"github.com/tomyedwab/fbwire/fberr"
)

// Indicator values stored alongside each slot.
const (
	IndicatorNotNull int16 = 0
	IndicatorNull    int16 = -1
)

// slotAlign keeps every data region 8-byte aligned within the arena.
const slotAlign = 8

// slot locates one field's data and indicator regions in the arena.
type slot struct {
	dataOff int
	dataLen int
	indOff  int
}

// Handle owns a native record layout for one Descriptor. It is valid
// until Release and must be released on every exit path, exactly once.
type Handle struct {
	desc     *descriptor.Descriptor
	arena    []byte
	slots    []slot
	released bool
}

// ToNative allocates the fixed layout mirroring the descriptor: one data
// region sized by the field's type plus a 2-byte indicator per field.
func ToNative(desc *descriptor.Descriptor) (*Handle, error) {
	slots := make([]slot, desc.Count())
	off := 0
	for i := range slots {
		n, err := slotSize(desc.Field(i))
		if err != nil {
			return nil, err
		}
		off = align(off, slotAlign)
		slots[i].dataOff = off
		slots[i].dataLen = n
		off += n
		off = align(off, 2)
		slots[i].indOff = off
		off += 2
	}
	return &Handle{
		desc:  desc,
		arena: make([]byte, off),
		slots: slots,
	}, nil
}

func align(off, to int) int {
	return (off + to - 1) &^ (to - 1)
}

// slotSize returns the data region size in bytes for one field.
func slotSize(f *descriptor.Field) (int, error) {
	switch f.BaseType() {
	case descriptor.SQLBoolean:
		return 1, nil
	case descriptor.SQLShort:
		return 2, nil
	case descriptor.SQLLong, descriptor.SQLFloat, descriptor.SQLDate, descriptor.SQLTime:
		return 4, nil
	case descriptor.SQLInt64, descriptor.SQLQuad, descriptor.SQLDouble, descriptor.SQLDFloat,
		descriptor.SQLTimestamp, descriptor.SQLBlob, descriptor.SQLArray, descriptor.SQLDec16:
		return 8, nil
	case descriptor.SQLInt128, descriptor.SQLDec34:
		return 16, nil
	case descriptor.SQLText:
		return int(f.Length()), nil
	case descriptor.SQLVarying:
		// 2-byte actual-length prefix ahead of the payload capacity.
		return 2 + int(f.Length()), nil
	default:
		return 0, fberr.NewMarshalingRangeError(
			fmt.Sprintf("no native layout for type code %d", f.BaseType()))
	}
}

// Count returns the number of slots.
func (h *Handle) Count() int {
	return len(h.slots)
}

// Data returns the data region of slot i for direct access by value
// codecs. The slice aliases the arena; it is invalid after Release.
func (h *Handle) Data(i int) []byte {
	if h.released {
		return nil
	}
	s := h.slots[i]
	return h.arena[s.dataOff : s.dataOff+s.dataLen]
}

// Indicator returns slot i's null indicator.
func (h *Handle) Indicator(i int) int16 {
	if h.released {
		return IndicatorNull
	}
	s := h.slots[i]
	return int16(h.arena[s.indOff]) | int16(h.arena[s.indOff+1])<<8
}

// SetIndicator stores slot i's null indicator.
func (h *Handle) SetIndicator(i int, v int16) {
	if h.released {
		return
	}
	s := h.slots[i]
	h.arena[s.indOff] = byte(v)
	h.arena[s.indOff+1] = byte(v >> 8)
}

// Released reports whether the handle's storage has been freed.
func (h *Handle) Released() bool {
	return h.released
}

// Release frees the arena. Releasing an already-released handle is a
// no-op.
func (h *Handle) Release() {
	if h.released {
		return
	}
	h.released = true
	h.arena = nil
	h.slots = nil
}

func (h *Handle) check() error {
	if h.released {
		return fberr.NewMarshalingRangeError("native handle used after release")
	}
	return nil
}
