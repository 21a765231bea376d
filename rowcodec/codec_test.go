package rowcodec

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomyedwab/fbwire/descriptor"
	"github.com/tomyedwab/fbwire/wire"
)

// loopback is an in-memory transport: everything written can be read
// back in order.
type loopback struct {
	bytes.Buffer
}

func (l *loopback) Close() error { return nil }

func newLoopback() (*wire.Channel, *loopback) {
	lb := &loopback{}
	return wire.NewChannel(lb), lb
}

func setField(f *descriptor.Field, dataType, subType, scale, length int32, v descriptor.Value) {
	f.SetDataType(dataType)
	f.SetSubType(subType)
	f.SetScale(scale)
	f.SetLength(length)
	f.SetValue(v)
}

// TestRowRoundTrip writes a row of every supported type through a
// loopback channel and verifies the decoded values match.
func TestRowRoundTrip(t *testing.T) {
	guid := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")
	ts := time.Date(2024, time.March, 15, 13, 45, 30, 500000000, time.UTC)
	var i128 [16]byte
	i128[0] = 0x2a
	i128[15] = 0x80 // negative two's complement

	d := descriptor.New(12)
	setField(d.Field(0), descriptor.SQLShort, 0, 0, 2, descriptor.NewInt16(-42))
	setField(d.Field(1), descriptor.SQLLong, 0, 0, 4, descriptor.NewInt32(1<<30))
	setField(d.Field(2), descriptor.SQLInt64, 0, 0, 8, descriptor.NewInt64(-1<<40))
	setField(d.Field(3), descriptor.SQLInt128, 0, 0, 16, descriptor.NewInt128(i128))
	setField(d.Field(4), descriptor.SQLVarying, 0, 0, 40, descriptor.NewText("héllo"))
	setField(d.Field(5), descriptor.SQLText, 0, 0, 8, descriptor.NewText("abc"))
	setField(d.Field(6), descriptor.SQLText, descriptor.SubTypeOctets, 0, 16, descriptor.NewGUID(guid))
	setField(d.Field(7), descriptor.SQLDouble, 0, 0, 8, descriptor.NewDouble(3.14159))
	setField(d.Field(8), descriptor.SQLBoolean, 0, 0, 1, descriptor.NewBoolean(true))
	setField(d.Field(9), descriptor.SQLTimestamp, 0, 0, 8, descriptor.NewTimestamp(ts))
	setField(d.Field(10), descriptor.SQLLong, 0, -2, 4, descriptor.NewDecimal(12345)) // 123.45
	setField(d.Field(11), descriptor.SQLBlob, 0, 0, 8, descriptor.NewBlobHandle(0x0102030405060708))

	ch, _ := newLoopback()
	codec := NewCodec()

	if err := codec.WriteRow(ch, d); err != nil {
		t.Fatalf("WriteRow failed: %v", err)
	}
	if err := ch.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	row, err := codec.ReadRow(ch, d)
	if err != nil {
		t.Fatalf("ReadRow failed: %v", err)
	}

	if got := row[0].Int; got != -42 {
		t.Errorf("field 0 = %d, want -42", got)
	}
	if got := row[1].Int; got != 1<<30 {
		t.Errorf("field 1 = %d, want %d", got, 1<<30)
	}
	if got := row[2].Int; got != -1<<40 {
		t.Errorf("field 2 = %d, want %d", got, -1<<40)
	}
	if row[3].Int128 != i128 {
		t.Errorf("field 3 = %v, want %v", row[3].Int128, i128)
	}
	if got := row[4].Text; got != "héllo" {
		t.Errorf("field 4 = %q, want %q", got, "héllo")
	}
	if got := row[5].Text; got != "abc" {
		t.Errorf("field 5 = %q, want %q", got, "abc")
	}
	if row[6].GUID != guid {
		t.Errorf("field 6 = %v, want %v", row[6].GUID, guid)
	}
	if got := row[7].Float; got != 3.14159 {
		t.Errorf("field 7 = %v, want 3.14159", got)
	}
	if row[8].Int != 1 {
		t.Errorf("field 8 = %d, want 1 (true)", row[8].Int)
	}
	if !row[9].Time.Equal(ts) {
		t.Errorf("field 9 = %v, want %v", row[9].Time, ts)
	}
	if row[10].Kind != descriptor.KindDecimal || row[10].Int != 12345 {
		t.Errorf("field 10 = %+v, want decimal 12345", row[10])
	}
	if got := row[11].Handle; got != 0x0102030405060708 {
		t.Errorf("field 11 = %#x, want 0x0102030405060708", got)
	}
}

// TestAllNullRow verifies an all-null row produces only the bitmap block
// and decodes back to nulls.
func TestAllNullRow(t *testing.T) {
	d := descriptor.New(9)
	for i := 0; i < d.Count(); i++ {
		setField(d.Field(i), descriptor.SQLLong, 0, 0, 4, descriptor.Null)
	}

	ch, lb := newLoopback()
	codec := NewCodec()

	if err := codec.WriteRow(ch, d); err != nil {
		t.Fatalf("WriteRow failed: %v", err)
	}
	if err := ch.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	// 9 fields → 2 bitmap bytes → 4-byte length + 2 bytes + 2 pad.
	if got := lb.Len(); got != 8 {
		t.Errorf("wire size = %d bytes, want 8 (bitmap block only)", got)
	}

	row, err := codec.ReadRow(ch, d)
	if err != nil {
		t.Fatalf("ReadRow failed: %v", err)
	}
	for i, v := range row {
		if !v.IsNull() {
			t.Errorf("field %d = %+v, want null", i, v)
		}
	}
	if got := lb.Len(); got != 0 {
		t.Errorf("%d unconsumed bytes after all-null row", got)
	}
}

// TestMixedNullRow verifies null fields contribute no payload bytes and
// are restored in position.
func TestMixedNullRow(t *testing.T) {
	d := descriptor.New(3)
	setField(d.Field(0), descriptor.SQLLong, 0, 0, 4, descriptor.NewInt32(7))
	setField(d.Field(1), descriptor.SQLVarying, 0, 0, 20, descriptor.Null)
	setField(d.Field(2), descriptor.SQLLong, 0, 0, 4, descriptor.NewInt32(9))

	ch, _ := newLoopback()
	codec := NewCodec()

	if err := codec.WriteRow(ch, d); err != nil {
		t.Fatalf("WriteRow failed: %v", err)
	}
	if err := ch.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	row, err := codec.ReadRow(ch, d)
	if err != nil {
		t.Fatalf("ReadRow failed: %v", err)
	}
	if row[0].Int != 7 {
		t.Errorf("field 0 = %d, want 7", row[0].Int)
	}
	if !row[1].IsNull() {
		t.Errorf("field 1 = %+v, want null", row[1])
	}
	if row[2].Int != 9 {
		t.Errorf("field 2 = %d, want 9", row[2].Int)
	}
}

// TestZeroFieldRow verifies an empty row never touches the channel.
func TestZeroFieldRow(t *testing.T) {
	d := descriptor.New(0)
	ch, lb := newLoopback()
	codec := NewCodec()

	if err := codec.WriteRow(ch, d); err != nil {
		t.Fatalf("WriteRow failed: %v", err)
	}
	if err := ch.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if lb.Len() != 0 {
		t.Errorf("zero-field row produced %d bytes, want 0", lb.Len())
	}

	row, err := codec.ReadRow(ch, d)
	if err != nil {
		t.Fatalf("ReadRow failed: %v", err)
	}
	if len(row) != 0 {
		t.Errorf("zero-field row decoded to %d values", len(row))
	}
}

// TestBitmapLayout verifies bit i of byte i/8 at position i%8 is set for
// null fields.
func TestBitmapLayout(t *testing.T) {
	d := descriptor.New(10)
	for i := 0; i < d.Count(); i++ {
		v := descriptor.NewInt32(int32(i))
		if i == 0 || i == 7 || i == 9 {
			v = descriptor.Null
		}
		setField(d.Field(i), descriptor.SQLLong, 0, 0, 4, v)
	}

	ch, lb := newLoopback()
	codec := NewCodec()
	if err := codec.WriteRow(ch, d); err != nil {
		t.Fatalf("WriteRow failed: %v", err)
	}
	if err := ch.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	raw := lb.Bytes()
	// Block header: 4-byte big-endian length (2), then the bitmap.
	if raw[3] != 2 {
		t.Fatalf("bitmap block length = %d, want 2", raw[3])
	}
	if raw[4] != 0x81 { // bits 0 and 7
		t.Errorf("bitmap byte 0 = %#x, want 0x81", raw[4])
	}
	if raw[5] != 0x02 { // bit 9 → bit 1 of byte 1
		t.Errorf("bitmap byte 1 = %#x, want 0x02", raw[5])
	}
}
