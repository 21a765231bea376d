package native

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/tomyedwab/fbwire/descriptor"
	"github.com/tomyedwab/fbwire/fberr"
)

// WriteValues copies the descriptor's current field values into the
// native slots, setting each indicator.
func (h *Handle) WriteValues() error {
	if err := h.check(); err != nil {
		return err
	}
	for i := 0; i < h.desc.Count(); i++ {
		f := h.desc.Field(i)
		if f.IsNull() {
			h.SetIndicator(i, IndicatorNull)
			continue
		}
		h.SetIndicator(i, IndicatorNotNull)
		if err := h.writeSlot(i, f); err != nil {
			return err
		}
	}
	return nil
}

// ReadRow decodes the native slots back into values, storing each into
// the descriptor's value slot as well.
func (h *Handle) ReadRow() ([]descriptor.Value, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	row := make([]descriptor.Value, h.desc.Count())
	for i := range row {
		f := h.desc.Field(i)
		if h.Indicator(i) == IndicatorNull {
			row[i] = descriptor.Null
			f.SetNull(true)
			continue
		}
		v, err := h.readSlot(i, f)
		if err != nil {
			return nil, err
		}
		row[i] = v
		f.SetValue(v)
	}
	return row, nil
}

func (h *Handle) writeSlot(i int, f *descriptor.Field) error {
	data := h.Data(i)
	v := f.Value()

	switch f.BaseType() {
	case descriptor.SQLBoolean:
		data[0] = 0
		if v.Int != 0 {
			data[0] = 1
		}

	case descriptor.SQLShort:
		binary.LittleEndian.PutUint16(data, uint16(v.Int))

	case descriptor.SQLLong:
		binary.LittleEndian.PutUint32(data, uint32(v.Int))

	case descriptor.SQLInt64, descriptor.SQLQuad:
		binary.LittleEndian.PutUint64(data, uint64(v.Int))

	case descriptor.SQLInt128:
		copy(data, v.Int128[:])

	case descriptor.SQLFloat:
		binary.LittleEndian.PutUint32(data, math.Float32bits(float32(v.Float)))

	case descriptor.SQLDouble, descriptor.SQLDFloat:
		binary.LittleEndian.PutUint64(data, math.Float64bits(v.Float))

	case descriptor.SQLDate:
		binary.LittleEndian.PutUint32(data, uint32(descriptor.EncodeDate(v.Time)))

	case descriptor.SQLTime:
		binary.LittleEndian.PutUint32(data, uint32(descriptor.EncodeTimeOfDay(v.Time)))

	case descriptor.SQLTimestamp:
		binary.LittleEndian.PutUint32(data, uint32(descriptor.EncodeDate(v.Time)))
		binary.LittleEndian.PutUint32(data[4:], uint32(descriptor.EncodeTimeOfDay(v.Time)))

	case descriptor.SQLDec16, descriptor.SQLDec34:
		copy(data, v.Bytes)

	case descriptor.SQLBlob, descriptor.SQLArray:
		binary.LittleEndian.PutUint64(data, uint64(v.Handle))

	case descriptor.SQLText:
		if f.IsGUID() {
			copy(data, v.GUID[:])
			return nil
		}
		payload, err := textPayload(v, f.SubType())
		if err != nil {
			return err
		}
		payload = truncateChars(payload, len(data), charsetFor(f.SubType()))
		n := copy(data, payload)
		pad := byte(' ')
		if f.SubType() == descriptor.SubTypeOctets {
			pad = 0
		}
		for ; n < len(data); n++ {
			data[n] = pad
		}

	case descriptor.SQLVarying:
		payload, err := textPayload(v, f.SubType())
		if err != nil {
			return err
		}
		payload = truncateChars(payload, len(data)-2, charsetFor(f.SubType()))
		binary.LittleEndian.PutUint16(data, uint16(len(payload)))
		copy(data[2:], payload)

	default:
		return fberr.NewMarshalingRangeError(
			fmt.Sprintf("cannot marshal value of type code %d", f.BaseType()))
	}
	return nil
}

func (h *Handle) readSlot(i int, f *descriptor.Field) (descriptor.Value, error) {
	data := h.Data(i)

	switch f.BaseType() {
	case descriptor.SQLBoolean:
		return descriptor.NewBoolean(data[0] != 0), nil

	case descriptor.SQLShort:
		n := int16(binary.LittleEndian.Uint16(data))
		if f.Scale() < 0 {
			return descriptor.NewDecimal(int64(n)), nil
		}
		return descriptor.NewInt16(n), nil

	case descriptor.SQLLong:
		n := int32(binary.LittleEndian.Uint32(data))
		if f.Scale() < 0 {
			return descriptor.NewDecimal(int64(n)), nil
		}
		return descriptor.NewInt32(n), nil

	case descriptor.SQLInt64, descriptor.SQLQuad:
		n := int64(binary.LittleEndian.Uint64(data))
		if f.Scale() < 0 {
			return descriptor.NewDecimal(n), nil
		}
		return descriptor.NewInt64(n), nil

	case descriptor.SQLInt128:
		var raw [16]byte
		copy(raw[:], data)
		return descriptor.NewInt128(raw), nil

	case descriptor.SQLFloat:
		return descriptor.NewFloat(math.Float32frombits(binary.LittleEndian.Uint32(data))), nil

	case descriptor.SQLDouble, descriptor.SQLDFloat:
		return descriptor.NewDouble(math.Float64frombits(binary.LittleEndian.Uint64(data))), nil

	case descriptor.SQLDate:
		return descriptor.NewDate(
			descriptor.DecodeDate(int32(binary.LittleEndian.Uint32(data)))), nil

	case descriptor.SQLTime:
		return descriptor.NewTime(
			descriptor.DecodeTimeOfDay(int32(binary.LittleEndian.Uint32(data)))), nil

	case descriptor.SQLTimestamp:
		date := descriptor.DecodeDate(int32(binary.LittleEndian.Uint32(data)))
		tod := descriptor.DecodeTimeOfDay(int32(binary.LittleEndian.Uint32(data[4:])))
		return descriptor.NewTimestamp(descriptor.CombineTimestamp(date, tod)), nil

	case descriptor.SQLDec16, descriptor.SQLDec34:
		return descriptor.NewDecFloat(append([]byte(nil), data...)), nil

	case descriptor.SQLBlob:
		return descriptor.NewBlobHandle(int64(binary.LittleEndian.Uint64(data))), nil

	case descriptor.SQLArray:
		return descriptor.NewArrayHandle(int64(binary.LittleEndian.Uint64(data))), nil

	case descriptor.SQLText:
		if f.IsGUID() {
			u, err := uuid.FromBytes(data)
			if err != nil {
				return descriptor.Null, fberr.NewMarshalingRangeError("malformed GUID payload")
			}
			return descriptor.NewGUID(u), nil
		}
		if f.SubType() == descriptor.SubTypeOctets {
			return descriptor.NewBinary(append([]byte(nil), data...)), nil
		}
		s, err := decodeText(data, charsetFor(f.SubType()))
		if err != nil {
			return descriptor.Null, err
		}
		return descriptor.NewText(trimPadding(s)), nil

	case descriptor.SQLVarying:
		n := int(binary.LittleEndian.Uint16(data))
		if n > len(data)-2 {
			return descriptor.Null, fberr.NewMarshalingRangeError(
				fmt.Sprintf("varying length %d exceeds field capacity %d", n, len(data)-2))
		}
		payload := data[2 : 2+n]
		if f.SubType() == descriptor.SubTypeOctets {
			return descriptor.NewBinary(append([]byte(nil), payload...)), nil
		}
		s, err := decodeText(payload, charsetFor(f.SubType()))
		if err != nil {
			return descriptor.Null, err
		}
		return descriptor.NewText(s), nil

	default:
		return descriptor.Null, fberr.NewMarshalingRangeError(
			fmt.Sprintf("cannot unmarshal value of type code %d", f.BaseType()))
	}
}

// textPayload encodes a text or binary value for its field charset.
func textPayload(v descriptor.Value, subType int32) ([]byte, error) {
	if v.Kind != descriptor.KindText {
		return v.Bytes, nil
	}
	return encodeText(v.Text, charsetFor(subType))
}

func trimPadding(s string) string {
	end := len(s)
	for end > 0 && s[end-1] == ' ' {
		end--
	}
	return s[:end]
}
