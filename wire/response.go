package wire

import (
	"context"
	"fmt"

	"github.com/tomyedwab/fbwire/fberr"
)

// Status vector argument tags.
const (
	IscArgEnd    int32 = 0
	IscArgGds    int32 = 1
	IscArgString int32 = 2
	IscArgNumber int32 = 4
)

// Response is the body of a generic server response: an object handle,
// an object id, an opaque data buffer and the decoded status vector.
type Response struct {
	Handle   int32
	ObjectID int64
	Data     []byte

	// Err carries the status vector's primary error, nil on success.
	Err error
}

// ReadResponseBody parses a generic response whose OpResponse code has
// already been consumed.
func (c *Channel) ReadResponseBody(ctx context.Context) (*Response, error) {
	r := &Response{}
	var err error
	if r.Handle, err = c.ReadInt32(ctx); err != nil {
		return nil, err
	}
	hi, err := c.ReadInt32(ctx)
	if err != nil {
		return nil, err
	}
	lo, err := c.ReadInt32(ctx)
	if err != nil {
		return nil, err
	}
	r.ObjectID = int64(hi)<<32 | int64(uint32(lo))
	if r.Data, err = c.ReadBlock(ctx); err != nil {
		return nil, err
	}
	r.Err, err = c.readStatusVector(ctx)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// readStatusVector consumes a status vector, converting a non-zero
// primary code into an error.
func (c *Channel) readStatusVector(ctx context.Context) (error, error) {
	var code int32
	var detail string

	for {
		tag, err := c.ReadInt32(ctx)
		if err != nil {
			return nil, err
		}
		switch tag {
		case IscArgEnd:
			if code != 0 {
				if detail != "" {
					return fberr.NewProtocolErrorf("server error %d: %s", code, detail), nil
				}
				return fberr.NewProtocolErrorf("server error %d", code), nil
			}
			return nil, nil
		case IscArgGds:
			v, err := c.ReadInt32(ctx)
			if err != nil {
				return nil, err
			}
			if code == 0 {
				code = v
			}
		case IscArgString:
			s, err := c.ReadString(ctx)
			if err != nil {
				return nil, err
			}
			if detail == "" {
				detail = s
			} else {
				detail = fmt.Sprintf("%s; %s", detail, s)
			}
		case IscArgNumber:
			if _, err := c.ReadInt32(ctx); err != nil {
				return nil, err
			}
		default:
			return nil, fberr.NewProtocolErrorf("unknown status vector tag %d", tag)
		}
	}
}
