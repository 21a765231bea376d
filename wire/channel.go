package wire

import (
	"bufio"
	"context"
	"crypto/cipher"
	"encoding/binary"
	"io"

	"github.com/tomyedwab/fbwire/fberr"
)

// Channel is the ordered, reliable byte stream all protocol messages
// travel over. It frames data XDR-style: 4-byte big-endian integers and
// opcodes, opaque blocks padded to a 4-byte boundary.
//
// A Channel is owned by a single connection and carries exactly one
// in-flight request at a time; none of its methods are safe for
// concurrent use. Cancellation is checked at I/O boundaries only — once
// a write has partially flushed, the channel is poisoned and every
// subsequent operation fails until the connection is re-established.
type Channel struct {
	rwc io.ReadWriteCloser
	cr  *cipherReader
	cw  *cipherWriter
	r   *bufio.Reader
	w   *bufio.Writer

	poisoned bool
	pad      [4]byte
}

// NewChannel wraps a transport (a net.Conn in production, a pipe in
// tests) in a protocol channel.
func NewChannel(rwc io.ReadWriteCloser) *Channel {
	cr := &cipherReader{r: rwc}
	cw := &cipherWriter{w: rwc}
	return &Channel{
		rwc: rwc,
		cr:  cr,
		cw:  cw,
		r:   bufio.NewReader(cr),
		w:   bufio.NewWriter(cw),
	}
}

// SetReadCipher turns on transparent decryption of inbound traffic.
func (c *Channel) SetReadCipher(s cipher.Stream) {
	c.cr.stream = s
}

// SetWriteCipher turns on transparent encryption of outbound traffic.
// Callers must Flush any plaintext still buffered before swapping the
// cipher in.
func (c *Channel) SetWriteCipher(s cipher.Stream) {
	c.cw.stream = s
}

// Poisoned reports whether a partial write has left the channel in an
// unusable state.
func (c *Channel) Poisoned() bool {
	return c.poisoned
}

// Close closes the underlying transport.
func (c *Channel) Close() error {
	return c.rwc.Close()
}

func (c *Channel) check(ctx context.Context) error {
	if c.poisoned {
		return fberr.NewIOError("channel poisoned by earlier partial write", nil)
	}
	return ctx.Err()
}

// WriteOpcode writes a 4-byte big-endian operation code.
func (c *Channel) WriteOpcode(ctx context.Context, op int32) error {
	return c.WriteInt32(ctx, op)
}

// WriteInt32 writes a 4-byte big-endian integer.
func (c *Channel) WriteInt32(ctx context.Context, v int32) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	if _, err := c.w.Write(buf[:]); err != nil {
		c.poisoned = true
		return fberr.NewIOError("write int32", err)
	}
	return nil
}

// WriteBytes writes raw bytes with no framing.
func (c *Channel) WriteBytes(ctx context.Context, p []byte) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	if _, err := c.w.Write(p); err != nil {
		c.poisoned = true
		return fberr.NewIOError("write bytes", err)
	}
	return nil
}

// WriteBlock writes an opaque block: 4-byte big-endian length, payload,
// then zero padding up to the next 4-byte boundary.
func (c *Channel) WriteBlock(ctx context.Context, p []byte) error {
	if err := c.WriteInt32(ctx, int32(len(p))); err != nil {
		return err
	}
	if err := c.WriteBytes(ctx, p); err != nil {
		return err
	}
	if pad := (4 - len(p)&3) & 3; pad > 0 {
		return c.WriteBytes(ctx, c.pad[:pad])
	}
	return nil
}

// WriteString writes s as an opaque block.
func (c *Channel) WriteString(ctx context.Context, s string) error {
	return c.WriteBlock(ctx, []byte(s))
}

// Flush pushes buffered output to the transport. A flush failure poisons
// the channel: some bytes may already be on the wire.
func (c *Channel) Flush(ctx context.Context) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	if err := c.w.Flush(); err != nil {
		c.poisoned = true
		return fberr.NewIOError("flush", err)
	}
	return nil
}

// ReadInt32 reads a 4-byte big-endian integer.
func (c *Channel) ReadInt32(ctx context.Context) (int32, error) {
	if err := c.check(ctx); err != nil {
		return 0, err
	}
	var buf [4]byte
	if _, err := io.ReadFull(c.r, buf[:]); err != nil {
		return 0, fberr.NewIOError("read int32", err)
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

// ReadOpcode reads the next operation code, skipping keepalive OpDummy
// markers the server may interleave between responses.
func (c *Channel) ReadOpcode(ctx context.Context) (int32, error) {
	for {
		op, err := c.ReadInt32(ctx)
		if err != nil {
			return 0, err
		}
		if op != OpDummy {
			return op, nil
		}
	}
}

// ReadBytes reads exactly len(p) raw bytes.
func (c *Channel) ReadBytes(ctx context.Context, p []byte) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	if _, err := io.ReadFull(c.r, p); err != nil {
		return fberr.NewIOError("read bytes", err)
	}
	return nil
}

// ReadBlock reads an opaque block written by WriteBlock, discarding the
// alignment padding.
func (c *Channel) ReadBlock(ctx context.Context) ([]byte, error) {
	n, err := c.ReadInt32(ctx)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fberr.NewProtocolErrorf("negative block length %d", n)
	}
	p := make([]byte, n)
	if err := c.ReadBytes(ctx, p); err != nil {
		return nil, err
	}
	if pad := (4 - int(n)&3) & 3; pad > 0 {
		var scratch [4]byte
		if err := c.ReadBytes(ctx, scratch[:pad]); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ReadBlockInto reads an opaque block into p, which must be exactly the
// block's length. Used by row decoding where the size is known from the
// descriptor.
func (c *Channel) ReadBlockInto(ctx context.Context, p []byte) error {
	n, err := c.ReadInt32(ctx)
	if err != nil {
		return err
	}
	if int(n) != len(p) {
		return fberr.NewProtocolErrorf("block length %d, expected %d", n, len(p))
	}
	if err := c.ReadBytes(ctx, p); err != nil {
		return err
	}
	if pad := (4 - int(n)&3) & 3; pad > 0 {
		var scratch [4]byte
		return c.ReadBytes(ctx, scratch[:pad])
	}
	return nil
}

// ReadString reads an opaque block as a string.
func (c *Channel) ReadString(ctx context.Context) (string, error) {
	p, err := c.ReadBlock(ctx)
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// cipherReader applies a stream cipher beneath the channel's buffered
// reader; a nil stream passes bytes through untouched.
type cipherReader struct {
	r      io.Reader
	stream cipher.Stream
}

func (cr *cipherReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 && cr.stream != nil {
		cr.stream.XORKeyStream(p[:n], p[:n])
	}
	return n, err
}

// cipherWriter applies a stream cipher beneath the channel's buffered
// writer; a nil stream passes bytes through untouched.
type cipherWriter struct {
	w       io.Writer
	stream  cipher.Stream
	scratch []byte
}

func (cw *cipherWriter) Write(p []byte) (int, error) {
	if cw.stream == nil {
		return cw.w.Write(p)
	}
	if cap(cw.scratch) < len(p) {
		cw.scratch = make([]byte, len(p))
	}
	buf := cw.scratch[:len(p)]
	cw.stream.XORKeyStream(buf, p)
	return cw.w.Write(buf)
}
