package driver

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomyedwab/fbwire/descriptor"
	"github.com/tomyedwab/fbwire/fberr"
)

// convertArg lifts a driver argument into the descriptor value model.
// Field-specific adaptation (scaling, blob handles) happens later in
// coerceValue once the target field is known.
func convertArg(v driver.Value) (descriptor.Value, error) {
	switch x := v.(type) {
	case nil:
		return descriptor.Null, nil
	case int64:
		return descriptor.NewInt64(x), nil
	case float64:
		return descriptor.NewDouble(x), nil
	case bool:
		return descriptor.NewBoolean(x), nil
	case string:
		return descriptor.NewText(x), nil
	case []byte:
		return descriptor.NewBinary(x), nil
	case time.Time:
		return descriptor.NewTimestamp(x), nil
	case uuid.UUID:
		return descriptor.NewGUID(x), nil
	case descriptor.Value:
		return x, nil
	default:
		return descriptor.Null, fberr.NewMarshalingRangeError(
			fmt.Sprintf("cannot bind argument of type %T", v))
	}
}

// coerceValue adapts a converted argument to its target field: integers
// are scaled onto NUMERIC columns, floats rounded onto integer columns,
// and handle-valued arguments recognized for blob and array slots.
func coerceValue(f *descriptor.Field, v descriptor.Value) (descriptor.Value, error) {
	if v.IsNull() {
		return v, nil
	}

	switch f.BaseType() {
	case descriptor.SQLShort, descriptor.SQLLong, descriptor.SQLInt64, descriptor.SQLQuad:
		if f.Scale() < 0 {
			switch v.Kind {
			case descriptor.KindDecimal:
				return v, nil
			case descriptor.KindInt16, descriptor.KindInt32, descriptor.KindInt64:
				return descriptor.NewDecimal(v.Int * pow10(-f.Scale())), nil
			case descriptor.KindFloat, descriptor.KindDouble:
				scaled := math.Round(v.Float * float64(pow10(-f.Scale())))
				return descriptor.NewDecimal(int64(scaled)), nil
			case descriptor.KindText:
				return parseDecimalText(v.Text, -f.Scale())
			}
		}
		switch v.Kind {
		case descriptor.KindInt16, descriptor.KindInt32, descriptor.KindInt64,
			descriptor.KindBoolean, descriptor.KindDecimal:
			return v, nil
		case descriptor.KindFloat, descriptor.KindDouble:
			return descriptor.NewInt64(int64(math.Round(v.Float))), nil
		}

	case descriptor.SQLFloat, descriptor.SQLDouble, descriptor.SQLDFloat:
		switch v.Kind {
		case descriptor.KindFloat, descriptor.KindDouble:
			return v, nil
		case descriptor.KindInt16, descriptor.KindInt32, descriptor.KindInt64:
			return descriptor.NewDouble(float64(v.Int)), nil
		}

	case descriptor.SQLText, descriptor.SQLVarying:
		switch v.Kind {
		case descriptor.KindText, descriptor.KindBinary:
			return v, nil
		case descriptor.KindGUID:
			if f.IsGUID() {
				return v, nil
			}
			return descriptor.NewText(v.GUID.String()), nil
		}

	case descriptor.SQLBoolean:
		switch v.Kind {
		case descriptor.KindBoolean:
			return v, nil
		case descriptor.KindInt16, descriptor.KindInt32, descriptor.KindInt64:
			return descriptor.NewBoolean(v.Int != 0), nil
		}

	case descriptor.SQLDate, descriptor.SQLTime, descriptor.SQLTimestamp:
		switch v.Kind {
		case descriptor.KindDate, descriptor.KindTime, descriptor.KindTimestamp:
			return v, nil
		}

	case descriptor.SQLBlob, descriptor.SQLArray:
		switch v.Kind {
		case descriptor.KindBlobHandle, descriptor.KindArrayHandle:
			return v, nil
		case descriptor.KindInt64:
			return descriptor.NewBlobHandle(v.Int), nil
		}

	case descriptor.SQLInt128:
		if v.Kind == descriptor.KindInt128 {
			return v, nil
		}

	case descriptor.SQLDec16, descriptor.SQLDec34:
		if v.Kind == descriptor.KindDecFloat {
			return v, nil
		}
	}

	return descriptor.Null, fberr.NewMarshalingRangeError(
		fmt.Sprintf("cannot bind %s value to %s column", kindName(v.Kind), f.Class()))
}

// columnValue materializes a fetched value as a driver.Value. Scaled
// integers are rendered as decimal strings so precision survives the
// trip through database/sql.
func columnValue(f *descriptor.Field, v descriptor.Value) (driver.Value, error) {
	switch v.Kind {
	case descriptor.KindNull:
		return nil, nil
	case descriptor.KindInt16, descriptor.KindInt32, descriptor.KindInt64:
		return v.Int, nil
	case descriptor.KindDecimal:
		return formatScaled(v.Int, -f.Scale()), nil
	case descriptor.KindFloat, descriptor.KindDouble:
		return v.Float, nil
	case descriptor.KindText:
		return v.Text, nil
	case descriptor.KindBinary:
		return v.Bytes, nil
	case descriptor.KindBoolean:
		return v.Int != 0, nil
	case descriptor.KindDate, descriptor.KindTime, descriptor.KindTimestamp:
		return v.Time, nil
	case descriptor.KindGUID:
		return v.GUID.String(), nil
	case descriptor.KindBlobHandle, descriptor.KindArrayHandle:
		return v.Handle, nil
	case descriptor.KindInt128:
		out := make([]byte, 16)
		copy(out, v.Int128[:])
		return out, nil
	case descriptor.KindDecFloat:
		return v.Bytes, nil
	default:
		return nil, fberr.NewMarshalingRangeError(
			fmt.Sprintf("cannot materialize %s column value", kindName(v.Kind)))
	}
}

// formatScaled renders a scaled integer with the given number of
// fractional digits, e.g. (12345, 2) -> "123.45".
func formatScaled(scaled int64, digits int32) string {
	if digits <= 0 {
		return strconv.FormatInt(scaled, 10)
	}
	neg := scaled < 0
	if neg {
		scaled = -scaled
	}
	div := pow10(digits)
	whole := scaled / div
	frac := scaled % div

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString(strconv.FormatInt(whole, 10))
	b.WriteByte('.')
	fs := strconv.FormatInt(frac, 10)
	for i := len(fs); i < int(digits); i++ {
		b.WriteByte('0')
	}
	b.WriteString(fs)
	return b.String()
}

// parseDecimalText parses a decimal literal onto a scaled integer with
// the given number of fractional digits.
func parseDecimalText(s string, digits int32) (descriptor.Value, error) {
	whole, frac := s, ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		whole, frac = s[:dot], s[dot+1:]
	}
	if len(frac) > int(digits) {
		frac = frac[:digits]
	}
	for len(frac) < int(digits) {
		frac += "0"
	}
	n, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return descriptor.Null, fberr.NewMarshalingRangeError(
			fmt.Sprintf("cannot parse %q as a decimal", s))
	}
	return descriptor.NewDecimal(n), nil
}

func pow10(n int32) int64 {
	out := int64(1)
	for ; n > 0; n-- {
		out *= 10
	}
	return out
}

func kindName(k descriptor.Kind) string {
	switch k {
	case descriptor.KindNull:
		return "null"
	case descriptor.KindInt16:
		return "int16"
	case descriptor.KindInt32:
		return "int32"
	case descriptor.KindInt64:
		return "int64"
	case descriptor.KindInt128:
		return "int128"
	case descriptor.KindDecimal:
		return "decimal"
	case descriptor.KindFloat:
		return "float"
	case descriptor.KindDouble:
		return "double"
	case descriptor.KindText:
		return "text"
	case descriptor.KindBinary:
		return "binary"
	case descriptor.KindBoolean:
		return "boolean"
	case descriptor.KindDate:
		return "date"
	case descriptor.KindTime:
		return "time"
	case descriptor.KindTimestamp:
		return "timestamp"
	case descriptor.KindGUID:
		return "guid"
	case descriptor.KindBlobHandle:
		return "blob handle"
	case descriptor.KindArrayHandle:
		return "array handle"
	case descriptor.KindDecFloat:
		return "decfloat"
	default:
		return "unknown"
	}
}
