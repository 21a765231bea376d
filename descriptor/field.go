package descriptor

// Field holds one column's or parameter's type metadata plus its current
// value slot. The base type code, subtype, numeric scale and length are
// shape-determining: changing any of them invalidates the owning
// descriptor's compiled type buffer. The nullable bit of the type code
// and the value slot may change freely.
type Field struct {
	owner *Descriptor

	Name     string
	Relation string
	Alias    string

	dataType int32 // base type code; low bit is the nullable flag
	subType  int32
	scale    int32
	length   int32

	value    Value
	nullFlag bool

	// Derived classification, recomputed after shape changes.
	class      DataClass
	classValid bool
}

// DataType returns the raw type code including the nullable bit.
func (f *Field) DataType() int32 {
	return f.dataType
}

// BaseType returns the type code with the nullable bit masked off.
func (f *Field) BaseType() int32 {
	return f.dataType &^ 1
}

// Nullable reports the nullable bit of the type code.
func (f *Field) Nullable() bool {
	return f.dataType&1 != 0
}

// SubType returns the field's subtype.
func (f *Field) SubType() int32 {
	return f.subType
}

// Scale returns the field's numeric scale (negative for fractional
// digits).
func (f *Field) Scale() int32 {
	return f.scale
}

// Length returns the field's declared byte length.
func (f *Field) Length() int32 {
	return f.length
}

// SetDataType sets the raw type code. Only a base-type change (any bit
// other than the nullable flag) dirties the compiled shape.
func (f *Field) SetDataType(code int32) {
	if f.dataType&^1 != code&^1 {
		f.markShapeChanged()
	}
	f.dataType = code
}

// SetNullable toggles the nullable bit without touching cached shape.
func (f *Field) SetNullable(nullable bool) {
	if nullable {
		f.dataType |= 1
	} else {
		f.dataType &^= 1
	}
}

// SetSubType sets the subtype, dirtying the compiled shape.
func (f *Field) SetSubType(st int32) {
	if f.subType != st {
		f.subType = st
		f.markShapeChanged()
	}
}

// SetScale sets the numeric scale, dirtying the compiled shape.
func (f *Field) SetScale(scale int32) {
	if f.scale != scale {
		f.scale = scale
		f.markShapeChanged()
	}
}

// SetLength sets the byte length, dirtying the compiled shape.
func (f *Field) SetLength(length int32) {
	if f.length != length {
		f.length = length
		f.markShapeChanged()
	}
}

// Value returns the field's current value slot.
func (f *Field) Value() Value {
	if f.nullFlag {
		return Null
	}
	return f.value
}

// SetValue binds a value into the slot. Binding never affects cached
// shape.
func (f *Field) SetValue(v Value) {
	f.value = v
	f.nullFlag = v.IsNull()
}

// SetNull marks the slot null without clearing the stored value.
func (f *Field) SetNull(null bool) {
	f.nullFlag = null
}

// IsNull reports whether the slot currently holds null.
func (f *Field) IsNull() bool {
	return f.nullFlag || f.value.IsNull()
}

func (f *Field) markShapeChanged() {
	f.classValid = false
	if f.owner != nil {
		f.owner.blrDirty = true
	}
}
