// Package blob exposes a server-side segmented large object as a
// seekable byte stream. The Stream sits over segment-fetch primitives;
// the Remote type implements those primitives over the wire protocol.
package blob

import (
	"context"
	"io"

	"github.com/tomyedwab/fbwire/fberr"
	"github.com/tomyedwab/fbwire/wire"
)

// defaultSegmentSize is the per-fetch buffer size. The server caps
// segments at 64KB minus framing; 32KB keeps one fetch per buffer.
const defaultSegmentSize = 32 * 1024

// Fetcher is the segment-level primitive set behind a Stream: one
// server blob cursor.
type Fetcher interface {
	// GetSegment fills buf with the next segment's bytes, reporting the
	// byte count and whether the blob is exhausted.
	GetSegment(ctx context.Context, buf []byte) (int, bool, error)

	// Seek repositions the cursor and returns the resulting absolute
	// offset, clamped to [0, blob length].
	Seek(ctx context.Context, offset int64, origin int32) (int64, error)

	// Close releases the server cursor.
	Close(ctx context.Context) error
}

// Stream is a seekable reader over a blob. It buffers one fetched
// segment at a time and serves reads from that buffer; a Seek discards
// the buffer so the next read fetches fresh data. Not safe for
// concurrent use.
type Stream struct {
	src Fetcher

	buf    []byte // buffered segment storage
	fill   int    // valid bytes in buf
	off    int    // consumed prefix of the fill
	pos    int64  // logical read position
	eof    bool
	closed bool
}

// NewStream wraps a fetcher in a seekable stream positioned at the
// blob's start.
func NewStream(src Fetcher) *Stream {
	return &Stream{
		src: src,
		buf: make([]byte, defaultSegmentSize),
	}
}

// Read implements io.Reader using a background context.
func (s *Stream) Read(p []byte) (int, error) {
	return s.ReadContext(context.Background(), p)
}

// ReadContext copies up to len(p) bytes at the current position into p,
// fetching and buffering one segment at a time. It never touches bytes
// of p beyond the count it returns.
func (s *Stream) ReadContext(ctx context.Context, p []byte) (int, error) {
	if s.closed {
		return 0, fberr.NewIOError("read on closed blob stream", nil)
	}
	total := 0
	for total < len(p) {
		if s.off < s.fill {
			n := copy(p[total:], s.buf[s.off:s.fill])
			s.off += n
			s.pos += int64(n)
			total += n
			continue
		}
		if s.eof {
			break
		}
		n, ended, err := s.src.GetSegment(ctx, s.buf)
		if err != nil {
			return total, err
		}
		if n == 0 && !ended {
			return total, fberr.NewProtocolError("empty segment without end-of-blob")
		}
		s.fill = n
		s.off = 0
		s.eof = ended
	}
	if total == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return total, nil
}

// Seek implements io.Seeker using a background context.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	return s.SeekContext(context.Background(), offset, whence)
}

// SeekContext discards any buffered segment and repositions the cursor.
// The next read always fetches fresh data from the new position.
func (s *Stream) SeekContext(ctx context.Context, offset int64, whence int) (int64, error) {
	if s.closed {
		return 0, fberr.NewIOError("seek on closed blob stream", nil)
	}

	var origin int32
	switch whence {
	case io.SeekStart:
		origin = wire.BlobSeekFromHead
	case io.SeekCurrent:
		origin = wire.BlobSeekRelative
		// The server cursor sits past the buffered-but-unread bytes.
		offset -= int64(s.fill - s.off)
	case io.SeekEnd:
		origin = wire.BlobSeekFromTail
	default:
		return 0, fberr.NewMarshalingRangeError("bad seek whence")
	}

	s.fill = 0
	s.off = 0
	s.eof = false

	pos, err := s.src.Seek(ctx, offset, origin)
	if err != nil {
		return 0, err
	}
	s.pos = pos
	return pos, nil
}

// Close releases the server cursor. Closing twice is a no-op.
func (s *Stream) Close() error {
	return s.CloseContext(context.Background())
}

func (s *Stream) CloseContext(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.buf = nil
	return s.src.Close(ctx)
}

// Cancel abandons the blob. At this layer cancellation and close are
// the same transition.
func (s *Stream) Cancel(ctx context.Context) error {
	return s.CloseContext(ctx)
}
