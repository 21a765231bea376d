package rowcodec

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/tomyedwab/fbwire/descriptor"
	"github.com/tomyedwab/fbwire/fberr"
	"github.com/tomyedwab/fbwire/wire"
)

func writeValue(ctx context.Context, ch *wire.Channel, f *descriptor.Field) error {
	v := f.Value()
	switch f.BaseType() {
	case descriptor.SQLVarying:
		return ch.WriteBlock(ctx, varyingBytes(v))

	case descriptor.SQLText:
		if f.IsGUID() {
			return ch.WriteBytes(ctx, v.GUID[:])
		}
		return ch.WriteBlock(ctx, fixedTextBytes(v, int(f.Length()), f.SubType()))

	case descriptor.SQLShort, descriptor.SQLLong:
		return ch.WriteInt32(ctx, int32(v.Int))

	case descriptor.SQLInt64, descriptor.SQLQuad:
		return writeInt64(ctx, ch, v.Int)

	case descriptor.SQLInt128:
		return ch.WriteBytes(ctx, v.Int128[:])

	case descriptor.SQLFloat:
		return ch.WriteInt32(ctx, int32(math.Float32bits(float32(v.Float))))

	case descriptor.SQLDouble, descriptor.SQLDFloat:
		return writeInt64(ctx, ch, int64(math.Float64bits(v.Float)))

	case descriptor.SQLDate:
		return ch.WriteInt32(ctx, descriptor.EncodeDate(v.Time))

	case descriptor.SQLTime:
		return ch.WriteInt32(ctx, descriptor.EncodeTimeOfDay(v.Time))

	case descriptor.SQLTimestamp:
		if err := ch.WriteInt32(ctx, descriptor.EncodeDate(v.Time)); err != nil {
			return err
		}
		return ch.WriteInt32(ctx, descriptor.EncodeTimeOfDay(v.Time))

	case descriptor.SQLBoolean:
		b := []byte{0, 0, 0, 0}
		if v.Int != 0 {
			b[0] = 1
		}
		return ch.WriteBytes(ctx, b)

	case descriptor.SQLDec16:
		return ch.WriteBytes(ctx, fixedBytes(v.Bytes, 8))

	case descriptor.SQLDec34:
		return ch.WriteBytes(ctx, fixedBytes(v.Bytes, 16))

	case descriptor.SQLBlob, descriptor.SQLArray:
		return writeInt64(ctx, ch, v.Handle)

	default:
		return fberr.NewMarshalingRangeError(
			fmt.Sprintf("cannot encode value of type code %d", f.BaseType()))
	}
}

func readValue(ctx context.Context, ch *wire.Channel, f *descriptor.Field) (descriptor.Value, error) {
	switch f.BaseType() {
	case descriptor.SQLVarying:
		p, err := ch.ReadBlock(ctx)
		if err != nil {
			return descriptor.Null, err
		}
		if f.SubType() == descriptor.SubTypeOctets {
			return descriptor.NewBinary(p), nil
		}
		return descriptor.NewText(string(p)), nil

	case descriptor.SQLText:
		if f.IsGUID() {
			var raw [16]byte
			if err := ch.ReadBytes(ctx, raw[:]); err != nil {
				return descriptor.Null, err
			}
			u, err := uuid.FromBytes(raw[:])
			if err != nil {
				return descriptor.Null, fberr.NewMarshalingRangeError("malformed GUID payload")
			}
			return descriptor.NewGUID(u), nil
		}
		p := make([]byte, f.Length())
		if err := ch.ReadBlockInto(ctx, p); err != nil {
			return descriptor.Null, err
		}
		if f.SubType() == descriptor.SubTypeOctets {
			return descriptor.NewBinary(p), nil
		}
		return descriptor.NewText(trimPadding(string(p))), nil

	case descriptor.SQLShort:
		n, err := ch.ReadInt32(ctx)
		if err != nil {
			return descriptor.Null, err
		}
		if f.Scale() < 0 {
			return descriptor.NewDecimal(int64(n)), nil
		}
		return descriptor.NewInt16(int16(n)), nil

	case descriptor.SQLLong:
		n, err := ch.ReadInt32(ctx)
		if err != nil {
			return descriptor.Null, err
		}
		if f.Scale() < 0 {
			return descriptor.NewDecimal(int64(n)), nil
		}
		return descriptor.NewInt32(n), nil

	case descriptor.SQLInt64, descriptor.SQLQuad:
		n, err := readInt64(ctx, ch)
		if err != nil {
			return descriptor.Null, err
		}
		if f.Scale() < 0 {
			return descriptor.NewDecimal(n), nil
		}
		return descriptor.NewInt64(n), nil

	case descriptor.SQLInt128:
		var raw [16]byte
		if err := ch.ReadBytes(ctx, raw[:]); err != nil {
			return descriptor.Null, err
		}
		return descriptor.NewInt128(raw), nil

	case descriptor.SQLFloat:
		n, err := ch.ReadInt32(ctx)
		if err != nil {
			return descriptor.Null, err
		}
		return descriptor.NewFloat(math.Float32frombits(uint32(n))), nil

	case descriptor.SQLDouble, descriptor.SQLDFloat:
		n, err := readInt64(ctx, ch)
		if err != nil {
			return descriptor.Null, err
		}
		return descriptor.NewDouble(math.Float64frombits(uint64(n))), nil

	case descriptor.SQLDate:
		n, err := ch.ReadInt32(ctx)
		if err != nil {
			return descriptor.Null, err
		}
		return descriptor.NewDate(descriptor.DecodeDate(n)), nil

	case descriptor.SQLTime:
		n, err := ch.ReadInt32(ctx)
		if err != nil {
			return descriptor.Null, err
		}
		return descriptor.NewTime(descriptor.DecodeTimeOfDay(n)), nil

	case descriptor.SQLTimestamp:
		days, err := ch.ReadInt32(ctx)
		if err != nil {
			return descriptor.Null, err
		}
		units, err := ch.ReadInt32(ctx)
		if err != nil {
			return descriptor.Null, err
		}
		return descriptor.NewTimestamp(descriptor.CombineTimestamp(
			descriptor.DecodeDate(days), descriptor.DecodeTimeOfDay(units))), nil

	case descriptor.SQLBoolean:
		var b [4]byte
		if err := ch.ReadBytes(ctx, b[:]); err != nil {
			return descriptor.Null, err
		}
		return descriptor.NewBoolean(b[0] != 0), nil

	case descriptor.SQLDec16:
		p := make([]byte, 8)
		if err := ch.ReadBytes(ctx, p); err != nil {
			return descriptor.Null, err
		}
		return descriptor.NewDecFloat(p), nil

	case descriptor.SQLDec34:
		p := make([]byte, 16)
		if err := ch.ReadBytes(ctx, p); err != nil {
			return descriptor.Null, err
		}
		return descriptor.NewDecFloat(p), nil

	case descriptor.SQLBlob:
		n, err := readInt64(ctx, ch)
		if err != nil {
			return descriptor.Null, err
		}
		return descriptor.NewBlobHandle(n), nil

	case descriptor.SQLArray:
		n, err := readInt64(ctx, ch)
		if err != nil {
			return descriptor.Null, err
		}
		return descriptor.NewArrayHandle(n), nil

	default:
		return descriptor.Null, fberr.NewMarshalingRangeError(
			fmt.Sprintf("cannot decode value of type code %d", f.BaseType()))
	}
}

func writeInt64(ctx context.Context, ch *wire.Channel, v int64) error {
	if err := ch.WriteInt32(ctx, int32(v>>32)); err != nil {
		return err
	}
	return ch.WriteInt32(ctx, int32(v))
}

func readInt64(ctx context.Context, ch *wire.Channel) (int64, error) {
	hi, err := ch.ReadInt32(ctx)
	if err != nil {
		return 0, err
	}
	lo, err := ch.ReadInt32(ctx)
	if err != nil {
		return 0, err
	}
	return int64(hi)<<32 | int64(uint32(lo)), nil
}

func varyingBytes(v descriptor.Value) []byte {
	if v.Kind == descriptor.KindText {
		return []byte(v.Text)
	}
	return v.Bytes
}

// fixedTextBytes pads a CHAR value out to its declared length: spaces
// for character data, zeros for octets.
func fixedTextBytes(v descriptor.Value, length int, subType int32) []byte {
	var src []byte
	if v.Kind == descriptor.KindText {
		src = []byte(v.Text)
	} else {
		src = v.Bytes
	}
	if len(src) >= length {
		return src[:length]
	}
	out := make([]byte, length)
	copy(out, src)
	if subType != descriptor.SubTypeOctets {
		for i := len(src); i < length; i++ {
			out[i] = ' '
		}
	}
	return out
}

func fixedBytes(p []byte, length int) []byte {
	if len(p) >= length {
		return p[:length]
	}
	out := make([]byte, length)
	copy(out, p)
	return out
}

func trimPadding(s string) string {
	end := len(s)
	for end > 0 && s[end-1] == ' ' {
		end--
	}
	return s[:end]
}
