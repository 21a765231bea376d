package blob

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/tomyedwab/fbwire/fberr"
	"github.com/tomyedwab/fbwire/wire"
)

// memoryBlob fakes the server side: fixed-size segments over a byte
// slice, with clamped seeking.
type memoryBlob struct {
	data    []byte
	segment int
	pos     int
	closed  bool
	fetches int
}

func (m *memoryBlob) GetSegment(ctx context.Context, buf []byte) (int, bool, error) {
	m.fetches++
	n := m.segment
	if n > len(buf) {
		n = len(buf)
	}
	if rest := len(m.data) - m.pos; n > rest {
		n = rest
	}
	copy(buf, m.data[m.pos:m.pos+n])
	m.pos += n
	return n, m.pos == len(m.data), nil
}

func (m *memoryBlob) Seek(ctx context.Context, offset int64, origin int32) (int64, error) {
	var target int64
	switch origin {
	case wire.BlobSeekFromHead:
		target = offset
	case wire.BlobSeekRelative:
		target = int64(m.pos) + offset
	case wire.BlobSeekFromTail:
		target = int64(len(m.data)) + offset
	}
	if target < 0 {
		target = 0
	}
	if target > int64(len(m.data)) {
		target = int64(len(m.data))
	}
	m.pos = int(target)
	return target, nil
}

func (m *memoryBlob) Close(ctx context.Context) error {
	m.closed = true
	return nil
}

func testContent(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i * 7)
	}
	return p
}

// TestReadWindow reads 5 bytes into the middle of a sentinel-filled
// destination: nothing outside the requested window may change, and a
// seek back to the start must serve fresh bytes, not stale buffer.
func TestReadWindow(t *testing.T) {
	content := testContent(32)
	src := &memoryBlob{data: content, segment: 8}
	s := NewStream(src)

	dst := bytes.Repeat([]byte{0xaa}, 32)
	n, err := s.Read(dst[10:15])
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if n != 5 {
		t.Fatalf("Read = %d bytes, want 5", n)
	}
	if !bytes.Equal(dst[10:15], content[:5]) {
		t.Errorf("window = % x, want % x", dst[10:15], content[:5])
	}
	for i, b := range dst {
		if (i < 10 || i >= 15) && b != 0xaa {
			t.Fatalf("destination byte %d touched outside the window", i)
		}
	}

	if _, err := s.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	fetchesBefore := src.fetches
	again := make([]byte, 5)
	if _, err := s.Read(again); err != nil {
		t.Fatalf("re-read failed: %v", err)
	}
	if !bytes.Equal(again, content[:5]) {
		t.Errorf("re-read = % x, want % x", again, content[:5])
	}
	if src.fetches == fetchesBefore {
		t.Error("read after seek served stale buffered data")
	}
}

func TestReadAllAcrossSegments(t *testing.T) {
	content := testContent(100)
	s := NewStream(&memoryBlob{data: content, segment: 8})

	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("ReadAll = %d bytes, want %d matching bytes", len(got), len(content))
	}
}

// TestSeekCurrent verifies relative seeks are measured from the logical
// read position, not the server cursor sitting past the buffer.
func TestSeekCurrent(t *testing.T) {
	content := testContent(64)
	s := NewStream(&memoryBlob{data: content, segment: 16})

	head := make([]byte, 3)
	if _, err := io.ReadFull(s, head); err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	pos, err := s.Seek(2, io.SeekCurrent)
	if err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	if pos != 5 {
		t.Fatalf("position after relative seek = %d, want 5", pos)
	}

	next := make([]byte, 4)
	if _, err := io.ReadFull(s, next); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(next, content[5:9]) {
		t.Errorf("read after seek = % x, want % x", next, content[5:9])
	}
}

func TestSeekClamping(t *testing.T) {
	content := testContent(20)
	s := NewStream(&memoryBlob{data: content, segment: 8})

	if pos, _ := s.Seek(-10, io.SeekStart); pos != 0 {
		t.Errorf("seek before start = %d, want 0", pos)
	}
	if pos, _ := s.Seek(100, io.SeekStart); pos != 20 {
		t.Errorf("seek past end = %d, want 20", pos)
	}
	if pos, _ := s.Seek(-4, io.SeekEnd); pos != 16 {
		t.Errorf("tail-relative seek = %d, want 16", pos)
	}
	tail := make([]byte, 4)
	if _, err := io.ReadFull(s, tail); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(tail, content[16:]) {
		t.Errorf("tail = % x, want % x", tail, content[16:])
	}
}

func TestCloseAndCancel(t *testing.T) {
	src := &memoryBlob{data: testContent(8), segment: 8}
	s := NewStream(src)

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !src.closed {
		t.Error("underlying cursor not closed")
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close should be a no-op: %v", err)
	}
	if _, err := s.Read(make([]byte, 1)); !fberr.IsIOError(err) {
		t.Errorf("read after close: err = %v, want I/O error", err)
	}

	s2 := NewStream(&memoryBlob{data: testContent(8), segment: 8})
	if err := s2.Cancel(context.Background()); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if _, err := s2.Seek(0, io.SeekStart); !fberr.IsIOError(err) {
		t.Errorf("seek after cancel: err = %v, want I/O error", err)
	}
}

func TestReadAtEOF(t *testing.T) {
	s := NewStream(&memoryBlob{data: testContent(4), segment: 8})

	got, err := io.ReadAll(s)
	if err != nil || len(got) != 4 {
		t.Fatalf("ReadAll = %d bytes, err %v", len(got), err)
	}
	if _, err := s.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("read past end: err = %v, want io.EOF", err)
	}
}
