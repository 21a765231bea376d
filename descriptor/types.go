package descriptor

// SQL type codes as they appear in a prepared statement's metadata. The
// low bit of a field's type code is the nullable flag; everything else
// identifies the base type.
const (
	SQLText        int32 = 452
	SQLVarying     int32 = 448
	SQLShort       int32 = 500
	SQLLong        int32 = 496
	SQLFloat       int32 = 482
	SQLDouble      int32 = 480
	SQLDFloat      int32 = 530
	SQLTimestamp   int32 = 510
	SQLBlob        int32 = 520
	SQLArray       int32 = 540
	SQLQuad        int32 = 550
	SQLTime        int32 = 560
	SQLDate        int32 = 570
	SQLInt64       int32 = 580
	SQLInt128      int32 = 32752
	SQLTimestampTZ int32 = 32754
	SQLTimeTZ      int32 = 32756
	SQLDec16       int32 = 32760
	SQLDec34       int32 = 32762
	SQLBoolean     int32 = 32764
	SQLNull        int32 = 32766
)

// BLR codes used when compiling a descriptor into its binary type
// representation.
const (
	blrText        byte = 14
	blrShort       byte = 7
	blrLong        byte = 8
	blrQuad        byte = 9
	blrFloat       byte = 10
	blrDFloat      byte = 11
	blrSQLDate     byte = 12
	blrSQLTime     byte = 13
	blrInt64       byte = 16
	blrBool        byte = 23
	blrDec64       byte = 24
	blrDec128      byte = 25
	blrInt128      byte = 26
	blrDouble      byte = 27
	blrSQLTimeTZ   byte = 28
	blrTimestampTZ byte = 29
	blrTimestamp   byte = 35
	blrVarying     byte = 37

	blrVersion5 byte = 5
	blrBegin    byte = 2
	blrMessage  byte = 4
	blrEnd      byte = 255
	blrEOC      byte = 76
)

// Well-known subtypes.
const (
	// SubTypeOctets marks CHAR/BINARY data holding raw octets; a
	// 16-byte octets field shares its wire layout with GUID values.
	SubTypeOctets int32 = 1

	// SubTypeBlobText marks a text blob (as opposed to the binary
	// default of 0).
	SubTypeBlobText int32 = 1

	// Numeric/decimal subtypes on integer-backed fields.
	SubTypeNumeric int32 = 1
	SubTypeDecimal int32 = 2
)

// DataClass is the logical SQL type category derived from a field's base
// type, subtype and scale. It is recomputed whenever any of those three
// change.
type DataClass int

const (
	ClassUnknown DataClass = iota
	ClassSmallInt
	ClassInteger
	ClassBigInt
	ClassInt128
	ClassNumeric
	ClassDecimal
	ClassFloat
	ClassDouble
	ClassChar
	ClassVarChar
	ClassDate
	ClassTime
	ClassTimestamp
	ClassBoolean
	ClassGUID
	ClassBinary
	ClassBlob
	ClassBlobText
	ClassArray
)

func (c DataClass) String() string {
	switch c {
	case ClassSmallInt:
		return "SMALLINT"
	case ClassInteger:
		return "INTEGER"
	case ClassBigInt:
		return "BIGINT"
	case ClassInt128:
		return "INT128"
	case ClassNumeric:
		return "NUMERIC"
	case ClassDecimal:
		return "DECIMAL"
	case ClassFloat:
		return "FLOAT"
	case ClassDouble:
		return "DOUBLE PRECISION"
	case ClassChar:
		return "CHAR"
	case ClassVarChar:
		return "VARCHAR"
	case ClassDate:
		return "DATE"
	case ClassTime:
		return "TIME"
	case ClassTimestamp:
		return "TIMESTAMP"
	case ClassBoolean:
		return "BOOLEAN"
	case ClassGUID:
		return "CHAR(16) CHARACTER SET OCTETS"
	case ClassBinary:
		return "BINARY"
	case ClassBlob:
		return "BLOB SUB_TYPE BINARY"
	case ClassBlobText:
		return "BLOB SUB_TYPE TEXT"
	case ClassArray:
		return "ARRAY"
	default:
		return "UNKNOWN"
	}
}
