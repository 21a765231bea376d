package descriptor

// Class returns the logical SQL type category for the field, derived
// from its base type, subtype and numeric scale. The result is cached on
// the field and recomputed after any of those three changes.
func (f *Field) Class() DataClass {
	if f.classValid {
		return f.class
	}
	f.class = classify(f.BaseType(), f.subType, f.scale)
	f.classValid = true
	return f.class
}

func classify(baseType, subType, scale int32) DataClass {
	switch baseType {
	case SQLShort, SQLLong, SQLInt64, SQLInt128, SQLQuad:
		if subType == SubTypeDecimal || (subType == 0 && scale < 0) {
			return ClassDecimal
		}
		if subType == SubTypeNumeric {
			return ClassNumeric
		}
		switch baseType {
		case SQLShort:
			return ClassSmallInt
		case SQLLong:
			return ClassInteger
		case SQLInt64, SQLQuad:
			return ClassBigInt
		default:
			return ClassInt128
		}
	case SQLFloat:
		return ClassFloat
	case SQLDouble, SQLDFloat:
		return ClassDouble
	case SQLText:
		if subType == SubTypeOctets {
			return ClassBinary
		}
		return ClassChar
	case SQLVarying:
		if subType == SubTypeOctets {
			return ClassBinary
		}
		return ClassVarChar
	case SQLDate:
		return ClassDate
	case SQLTime, SQLTimeTZ:
		return ClassTime
	case SQLTimestamp, SQLTimestampTZ:
		return ClassTimestamp
	case SQLBoolean:
		return ClassBoolean
	case SQLDec16, SQLDec34:
		return ClassDecimal
	case SQLBlob:
		if subType == SubTypeBlobText {
			return ClassBlobText
		}
		return ClassBlob
	case SQLArray:
		return ClassArray
	default:
		return ClassUnknown
	}
}

// IsGUID reports whether the field carries GUID values: a fixed 16-byte
// octets CHAR shares the GUID wire layout.
func (f *Field) IsGUID() bool {
	return f.BaseType() == SQLText && f.subType == SubTypeOctets && f.length == 16
}
