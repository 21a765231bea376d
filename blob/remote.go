package blob

import (
	"context"
	"encoding/binary"

	"github.com/tomyedwab/fbwire/fberr"
	"github.com/tomyedwab/fbwire/wire"
)

// segment status codes returned in a get-segment response handle.
const (
	segmentMore int32 = 1 // buffer filled, segment continues
	segmentEOF  int32 = 2 // blob exhausted
)

// maxSegmentRequest caps one get-segment request; the protocol carries
// the length in a signed 16-bit field.
const maxSegmentRequest = 32767

// Remote drives one server-side blob cursor over the wire protocol.
type Remote struct {
	ch     *wire.Channel
	handle int32
	closed bool
}

// Open opens the blob identified by id under the given transaction and
// returns a stream over it.
func Open(ctx context.Context, ch *wire.Channel, txnHandle int32, id int64) (*Stream, error) {
	steps := []error{
		ch.WriteOpcode(ctx, wire.OpOpenBlob2),
		ch.WriteBlock(ctx, nil), // blob parameter buffer
		ch.WriteInt32(ctx, txnHandle),
		ch.WriteInt32(ctx, int32(id>>32)),
		ch.WriteInt32(ctx, int32(id)),
		ch.Flush(ctx),
	}
	for _, err := range steps {
		if err != nil {
			return nil, err
		}
	}
	resp, err := readGenericResponse(ctx, ch)
	if err != nil {
		return nil, err
	}
	return NewStream(&Remote{ch: ch, handle: resp.Handle}), nil
}

// Create makes a new blob under the given transaction, returning a
// writer for its content and the blob id to bind into a row.
func Create(ctx context.Context, ch *wire.Channel, txnHandle int32) (*Writer, int64, error) {
	steps := []error{
		ch.WriteOpcode(ctx, wire.OpCreateBlob2),
		ch.WriteBlock(ctx, nil), // blob parameter buffer
		ch.WriteInt32(ctx, txnHandle),
		ch.WriteInt32(ctx, 0),
		ch.WriteInt32(ctx, 0),
		ch.Flush(ctx),
	}
	for _, err := range steps {
		if err != nil {
			return nil, 0, err
		}
	}
	resp, err := readGenericResponse(ctx, ch)
	if err != nil {
		return nil, 0, err
	}
	return &Writer{remote: &Remote{ch: ch, handle: resp.Handle}}, resp.ObjectID, nil
}

// GetSegment requests the next run of segment data into buf. The server
// packs one or more 2-byte length-prefixed segments into the response
// buffer; a response status of 2 marks end-of-blob.
func (r *Remote) GetSegment(ctx context.Context, buf []byte) (int, bool, error) {
	want := len(buf)
	if want > maxSegmentRequest {
		want = maxSegmentRequest
	}
	steps := []error{
		r.ch.WriteOpcode(ctx, wire.OpGetSegment),
		r.ch.WriteInt32(ctx, r.handle),
		r.ch.WriteInt32(ctx, int32(want)),
		r.ch.WriteInt32(ctx, 0),
		r.ch.Flush(ctx),
	}
	for _, err := range steps {
		if err != nil {
			return 0, false, err
		}
	}
	resp, err := readGenericResponse(ctx, r.ch)
	if err != nil {
		return 0, false, err
	}

	n, err := unpackSegments(resp.Data, buf)
	if err != nil {
		return 0, false, err
	}
	return n, resp.Handle == segmentEOF, nil
}

// unpackSegments flattens the response's (2-byte little-endian length,
// payload) runs into dst.
func unpackSegments(src, dst []byte) (int, error) {
	total := 0
	for len(src) > 0 {
		if len(src) < 2 {
			return 0, fberr.NewProtocolError("truncated segment length prefix")
		}
		n := int(binary.LittleEndian.Uint16(src))
		src = src[2:]
		if n > len(src) {
			return 0, fberr.NewProtocolErrorf("segment declares %d bytes, %d available", n, len(src))
		}
		if total+n > len(dst) {
			return 0, fberr.NewProtocolErrorf("segment data overflows %d-byte buffer", len(dst))
		}
		copy(dst[total:], src[:n])
		total += n
		src = src[n:]
	}
	return total, nil
}

// Seek repositions the server cursor. The server clamps the target to
// the blob's length and returns the resulting offset.
func (r *Remote) Seek(ctx context.Context, offset int64, origin int32) (int64, error) {
	steps := []error{
		r.ch.WriteOpcode(ctx, wire.OpSeekBlob),
		r.ch.WriteInt32(ctx, r.handle),
		r.ch.WriteInt32(ctx, origin),
		r.ch.WriteInt32(ctx, int32(offset)),
		r.ch.Flush(ctx),
	}
	for _, err := range steps {
		if err != nil {
			return 0, err
		}
	}
	resp, err := readGenericResponse(ctx, r.ch)
	if err != nil {
		return 0, err
	}
	return int64(resp.Handle), nil
}

// PutSegment appends one segment to a blob open for writing.
func (r *Remote) PutSegment(ctx context.Context, p []byte) error {
	steps := []error{
		r.ch.WriteOpcode(ctx, wire.OpPutSegment),
		r.ch.WriteInt32(ctx, r.handle),
		r.ch.WriteInt32(ctx, int32(len(p))),
		r.ch.WriteBlock(ctx, p),
		r.ch.Flush(ctx),
	}
	for _, err := range steps {
		if err != nil {
			return err
		}
	}
	_, err := readGenericResponse(ctx, r.ch)
	return err
}

// Close releases the server cursor; closing twice is a no-op.
func (r *Remote) Close(ctx context.Context) error {
	if r.closed {
		return nil
	}
	r.closed = true
	steps := []error{
		r.ch.WriteOpcode(ctx, wire.OpCloseBlob),
		r.ch.WriteInt32(ctx, r.handle),
		r.ch.Flush(ctx),
	}
	for _, err := range steps {
		if err != nil {
			return err
		}
	}
	_, err := readGenericResponse(ctx, r.ch)
	return err
}

// Writer streams content into a newly created blob, chunking writes
// into protocol-sized segments.
type Writer struct {
	remote *Remote
}

// Write implements io.Writer using a background context.
func (w *Writer) Write(p []byte) (int, error) {
	return w.WriteContext(context.Background(), p)
}

func (w *Writer) WriteContext(ctx context.Context, p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		n := len(p)
		if n > maxSegmentRequest {
			n = maxSegmentRequest
		}
		if err := w.remote.PutSegment(ctx, p[:n]); err != nil {
			return total, err
		}
		total += n
		p = p[n:]
	}
	return total, nil
}

// Close finishes the blob.
func (w *Writer) Close() error {
	return w.remote.Close(context.Background())
}

func (w *Writer) CloseContext(ctx context.Context) error {
	return w.remote.Close(ctx)
}

// readGenericResponse reads the next message, which must be a generic
// response with a clean status vector.
func readGenericResponse(ctx context.Context, ch *wire.Channel) (*wire.Response, error) {
	op, err := ch.ReadOpcode(ctx)
	if err != nil {
		return nil, err
	}
	if op != wire.OpResponse {
		return nil, fberr.NewProtocolErrorf("unexpected operation code %d, want generic response", op)
	}
	resp, err := ch.ReadResponseBody(ctx)
	if err != nil {
		return nil, err
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return resp, nil
}
