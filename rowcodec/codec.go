// Package rowcodec serializes parameter rows and deserializes result
// rows over a protocol channel. A row is framed as a null-presence
// bitmap (one bit per field in declaration order, set when the field is
// null) sent as one opaque block, followed by the raw encoded bytes of
// every non-null value. Null fields contribute no payload bytes.
package rowcodec

import (
	"context"
	"sync"

	"github.com/tomyedwab/fbwire/descriptor"
	"github.com/tomyedwab/fbwire/wire"
)

// Bitmap buffers above this size are rented from a shared pool instead
// of being kept on the codec.
const pooledBitmapThreshold = 1024

var bitmapPool = sync.Pool{
	New: func() interface{} {
		return make([]byte, 0, 2*pooledBitmapThreshold)
	},
}

// Codec encodes and decodes rows for one statement. It owns a reusable
// bitmap buffer and is not safe for concurrent use; every statement
// instance gets its own codec.
type Codec struct {
	bitmap []byte
}

// NewCodec creates a row codec.
func NewCodec() *Codec {
	return &Codec{}
}

// bitmapBuf returns an n-byte bitmap buffer and a release function that
// must run on every exit path. Small buffers live on the codec; larger
// ones are rented from the shared pool.
func (c *Codec) bitmapBuf(n int) ([]byte, func()) {
	if n <= pooledBitmapThreshold {
		if cap(c.bitmap) < n {
			c.bitmap = make([]byte, n)
		}
		return c.bitmap[:n], func() {}
	}
	buf := bitmapPool.Get().([]byte)
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	buf = buf[:n]
	return buf, func() { bitmapPool.Put(buf[:0]) }
}

// WriteRow writes the descriptor's current field values as one row. It
// is the blocking form of WriteRowContext.
func (c *Codec) WriteRow(ch *wire.Channel, d *descriptor.Descriptor) error {
	return c.WriteRowContext(context.Background(), ch, d)
}

// WriteRowContext writes the descriptor's current field values as one
// row. Cancellation is honored at channel I/O boundaries only; byte
// order is identical to the blocking form.
func (c *Codec) WriteRowContext(ctx context.Context, ch *wire.Channel, d *descriptor.Descriptor) error {
	n := d.Count()
	if n == 0 {
		return nil
	}

	bitmap, release := c.bitmapBuf((n + 7) / 8)
	defer release()

	for i := range bitmap {
		bitmap[i] = 0
	}
	for i := 0; i < n; i++ {
		if d.Field(i).IsNull() {
			bitmap[i/8] |= 1 << (i % 8)
		}
	}
	if err := ch.WriteBlock(ctx, bitmap); err != nil {
		return err
	}

	for i := 0; i < n; i++ {
		f := d.Field(i)
		if f.IsNull() {
			continue
		}
		if err := writeValue(ctx, ch, f); err != nil {
			return err
		}
	}
	return nil
}

// ReadRow reads one row into a value slice ordered like the descriptor's
// fields. It is the blocking form of ReadRowContext.
func (c *Codec) ReadRow(ch *wire.Channel, d *descriptor.Descriptor) ([]descriptor.Value, error) {
	return c.ReadRowContext(context.Background(), ch, d)
}

// ReadRowContext reads one row. A zero-field descriptor returns an empty
// row without touching the channel. Fields whose bitmap bit is set
// decode to null without consuming payload bytes.
func (c *Codec) ReadRowContext(ctx context.Context, ch *wire.Channel, d *descriptor.Descriptor) ([]descriptor.Value, error) {
	n := d.Count()
	if n == 0 {
		return []descriptor.Value{}, nil
	}

	bitmap, release := c.bitmapBuf((n + 7) / 8)
	defer release()

	if err := ch.ReadBlockInto(ctx, bitmap); err != nil {
		return nil, err
	}

	row := make([]descriptor.Value, n)
	for i := 0; i < n; i++ {
		f := d.Field(i)
		if bitmap[i/8]&(1<<(i%8)) != 0 {
			row[i] = descriptor.Null
			f.SetValue(descriptor.Null)
			continue
		}
		v, err := readValue(ctx, ch, f)
		if err != nil {
			return nil, err
		}
		row[i] = v
		f.SetValue(v)
	}
	return row, nil
}
