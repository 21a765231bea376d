package blob

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"testing"

	"github.com/tomyedwab/fbwire/fberr"
	"github.com/tomyedwab/fbwire/wire"
)

// duplex separates the two directions so a client channel never reads
// back its own requests. Responses are scripted into `in` up front.
type duplex struct {
	in  bytes.Buffer // server -> client, pre-scripted
	out bytes.Buffer // client -> server, inspected afterwards
}

func (d *duplex) Read(p []byte) (int, error)  { return d.in.Read(p) }
func (d *duplex) Write(p []byte) (int, error) { return d.out.Write(p) }
func (d *duplex) Close() error                { return nil }

// leg adapts one buffer of a duplex to a channel transport.
type leg struct{ *bytes.Buffer }

func (leg) Close() error { return nil }

// script writes a clean generic response into the duplex's inbound leg.
func (d *duplex) script(t *testing.T, handle int32, objectID int64, data []byte) {
	t.Helper()
	ch := wire.NewChannel(leg{&d.in})
	ctx := context.Background()
	steps := []error{
		ch.WriteOpcode(ctx, wire.OpResponse),
		ch.WriteInt32(ctx, handle),
		ch.WriteInt32(ctx, int32(objectID>>32)),
		ch.WriteInt32(ctx, int32(objectID)),
		ch.WriteBlock(ctx, data),
		ch.WriteInt32(ctx, wire.IscArgGds),
		ch.WriteInt32(ctx, 0),
		ch.WriteInt32(ctx, wire.IscArgEnd),
		ch.Flush(ctx),
	}
	for _, err := range steps {
		if err != nil {
			t.Fatalf("scripting response: %v", err)
		}
	}
}

// packSegments builds a get-segment response payload from runs.
func packSegments(runs ...[]byte) []byte {
	var out []byte
	for _, r := range runs {
		var pfx [2]byte
		binary.LittleEndian.PutUint16(pfx[:], uint16(len(r)))
		out = append(out, pfx[:]...)
		out = append(out, r...)
	}
	return out
}

func TestOpenReadsBlob(t *testing.T) {
	d := &duplex{}
	d.script(t, 7, 0, nil) // open: blob handle 7
	d.script(t, segmentMore, 0, packSegments([]byte("hello "), []byte("wor")))
	d.script(t, segmentEOF, 0, packSegments([]byte("ld")))

	ctx := context.Background()
	s, err := Open(ctx, wire.NewChannel(d), 3, 0x0000000400000005)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("content = %q", got)
	}

	// Inspect the open request framing.
	req := wire.NewChannel(leg{&d.out})
	op, _ := req.ReadOpcode(ctx)
	if op != wire.OpOpenBlob2 {
		t.Fatalf("first request op = %d, want %d", op, wire.OpOpenBlob2)
	}
	if bpb, _ := req.ReadBlock(ctx); len(bpb) != 0 {
		t.Errorf("blob parameter buffer = % x, want empty", bpb)
	}
	if txn, _ := req.ReadInt32(ctx); txn != 3 {
		t.Errorf("transaction handle = %d, want 3", txn)
	}
	hi, _ := req.ReadInt32(ctx)
	lo, _ := req.ReadInt32(ctx)
	if hi != 4 || lo != 5 {
		t.Errorf("blob id = %d/%d, want 4/5", hi, lo)
	}
}

func TestSeekBlob(t *testing.T) {
	d := &duplex{}
	d.script(t, 12, 0, nil) // seek response: new position

	r := &Remote{ch: wire.NewChannel(d), handle: 9}
	pos, err := r.Seek(context.Background(), 12, wire.BlobSeekFromHead)
	if err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	if pos != 12 {
		t.Errorf("position = %d, want 12", pos)
	}

	ctx := context.Background()
	req := wire.NewChannel(leg{&d.out})
	op, _ := req.ReadOpcode(ctx)
	handle, _ := req.ReadInt32(ctx)
	origin, _ := req.ReadInt32(ctx)
	offset, _ := req.ReadInt32(ctx)
	if op != wire.OpSeekBlob || handle != 9 || origin != wire.BlobSeekFromHead || offset != 12 {
		t.Errorf("seek request = op %d handle %d origin %d offset %d", op, handle, origin, offset)
	}
}

func TestWriterChunksSegments(t *testing.T) {
	d := &duplex{}
	d.script(t, 0, 0, nil) // first put
	d.script(t, 0, 0, nil) // second put
	d.script(t, 0, 0, nil) // close

	w := &Writer{remote: &Remote{ch: wire.NewChannel(d), handle: 4}}
	payload := bytes.Repeat([]byte{0x5c}, maxSegmentRequest+100)

	n, err := w.Write(payload)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("Write = %d, want %d", n, len(payload))
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	ctx := context.Background()
	req := wire.NewChannel(leg{&d.out})
	for _, wantLen := range []int32{maxSegmentRequest, 100} {
		op, _ := req.ReadOpcode(ctx)
		handle, _ := req.ReadInt32(ctx)
		segLen, _ := req.ReadInt32(ctx)
		if op != wire.OpPutSegment || handle != 4 || segLen != wantLen {
			t.Fatalf("put request = op %d handle %d len %d, want len %d", op, handle, segLen, wantLen)
		}
		if _, err := req.ReadBlock(ctx); err != nil {
			t.Fatalf("reading segment payload: %v", err)
		}
	}
	op, _ := req.ReadOpcode(ctx)
	if op != wire.OpCloseBlob {
		t.Errorf("final request op = %d, want %d", op, wire.OpCloseBlob)
	}
}

func TestUnpackSegments(t *testing.T) {
	dst := make([]byte, 16)
	n, err := unpackSegments(packSegments([]byte("abc"), []byte("de")), dst)
	if err != nil {
		t.Fatalf("unpack failed: %v", err)
	}
	if string(dst[:n]) != "abcde" {
		t.Errorf("unpacked = %q", dst[:n])
	}

	if _, err := unpackSegments([]byte{5}, dst); !fberr.IsProtocolError(err) {
		t.Errorf("truncated prefix: err = %v, want protocol error", err)
	}
	if _, err := unpackSegments([]byte{9, 0, 'x'}, dst); !fberr.IsProtocolError(err) {
		t.Errorf("short payload: err = %v, want protocol error", err)
	}
	if _, err := unpackSegments(packSegments(bytes.Repeat([]byte{1}, 32)), dst); !fberr.IsProtocolError(err) {
		t.Errorf("overflow: err = %v, want protocol error", err)
	}
}

func TestServerErrorSurfaces(t *testing.T) {
	d := &duplex{}
	ch := wire.NewChannel(leg{&d.in})
	ctx := context.Background()
	steps := []error{
		ch.WriteOpcode(ctx, wire.OpResponse),
		ch.WriteInt32(ctx, 0),
		ch.WriteInt32(ctx, 0),
		ch.WriteInt32(ctx, 0),
		ch.WriteBlock(ctx, nil),
		ch.WriteInt32(ctx, wire.IscArgGds),
		ch.WriteInt32(ctx, 335544332), // invalid blob handle
		ch.WriteInt32(ctx, wire.IscArgEnd),
		ch.Flush(ctx),
	}
	for _, err := range steps {
		if err != nil {
			t.Fatalf("scripting response: %v", err)
		}
	}

	r := &Remote{ch: wire.NewChannel(d), handle: 1}
	if _, _, err := r.GetSegment(context.Background(), make([]byte, 8)); !fberr.IsProtocolError(err) {
		t.Fatalf("err = %v, want protocol error", err)
	}
}
