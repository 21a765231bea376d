package driver

import (
	"context"
	"database/sql/driver"
	"io"

	"github.com/tomyedwab/fbwire/fberr"
	"github.com/tomyedwab/fbwire/wire"
)

// fetchBatchSize is the row count requested per fetch round trip.
const fetchBatchSize = 200

// fetchStatusEOF is the fetch status the server reports once the cursor
// is exhausted.
const fetchStatusEOF int32 = 100

// Rows streams a cursor's result set. Each fetch request pulls a batch;
// the server answers with one op_fetch_response per row and a trailing
// zero-count response closing the batch with the cursor status.
type Rows struct {
	stmt     *Stmt
	fetching bool
	eof      bool
	closed   bool
}

func newRows(s *Stmt) *Rows {
	if s.info.output == nil || s.info.output.Count() == 0 {
		return &Rows{stmt: s, eof: true}
	}
	return &Rows{stmt: s}
}

// Columns returns the column aliases reported at prepare time, falling
// back to field names when the query declares no alias.
func (r *Rows) Columns() []string {
	out := r.stmt.info.output
	if out == nil {
		return []string{}
	}
	cols := make([]string, out.Count())
	for i := range cols {
		f := out.Field(i)
		if f.Alias != "" {
			cols[i] = f.Alias
		} else {
			cols[i] = f.Name
		}
	}
	return cols
}

// Next advances to the next row, requesting another batch from the
// server when the current one is exhausted.
func (r *Rows) Next(dest []driver.Value) error {
	ctx := context.Background()
	if r.closed {
		return io.EOF
	}

	for {
		if r.eof {
			return io.EOF
		}
		if !r.fetching {
			if err := r.sendFetch(ctx); err != nil {
				return err
			}
			r.fetching = true
		}

		op, err := r.stmt.conn.ch.ReadOpcode(ctx)
		if err != nil {
			return err
		}
		switch op {
		case wire.OpFetchResponse:
		case wire.OpResponse:
			// A fetch that fails server-side comes back as a generic
			// response carrying the status vector.
			body, err := r.stmt.conn.ch.ReadResponseBody(ctx)
			if err != nil {
				return err
			}
			if body.Err != nil {
				return body.Err
			}
			return fberr.NewProtocolError("unexpected generic response to fetch")
		default:
			return fberr.NewProtocolErrorf("expected op_fetch_response, got opcode %d", op)
		}

		status, err := r.stmt.conn.ch.ReadInt32(ctx)
		if err != nil {
			return err
		}
		count, err := r.stmt.conn.ch.ReadInt32(ctx)
		if err != nil {
			return err
		}

		if count > 0 {
			row, err := r.stmt.codec.ReadRowContext(ctx, r.stmt.conn.ch, r.stmt.info.output)
			if err != nil {
				return err
			}
			for i, v := range row {
				dv, err := columnValue(r.stmt.info.output.Field(i), v)
				if err != nil {
					return err
				}
				dest[i] = dv
			}
			return nil
		}

		r.fetching = false
		if status == fetchStatusEOF {
			r.eof = true
			return io.EOF
		}
	}
}

func (r *Rows) sendFetch(ctx context.Context) error {
	blr, err := r.stmt.info.output.Compile()
	if err != nil {
		return err
	}
	ch := r.stmt.conn.ch
	if err := ch.WriteOpcode(ctx, wire.OpFetch); err != nil {
		return err
	}
	if err := ch.WriteInt32(ctx, r.stmt.handle); err != nil {
		return err
	}
	if err := ch.WriteBlock(ctx, blr); err != nil {
		return err
	}
	if err := ch.WriteInt32(ctx, 0); err != nil {
		return err
	}
	if err := ch.WriteInt32(ctx, fetchBatchSize); err != nil {
		return err
	}
	return ch.Flush(ctx)
}

// Close releases the cursor and settles the auto transaction. A batch
// still in flight is drained first so the channel stays aligned.
func (r *Rows) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.stmt.closed || r.stmt.conn.closed {
		return nil
	}
	ctx := context.Background()

	if r.fetching {
		if err := r.drain(ctx); err != nil {
			return err
		}
	}
	if r.stmt.info.output != nil && r.stmt.info.output.Count() > 0 {
		if err := r.stmt.free(ctx, dsqlClose); err != nil {
			return err
		}
	}
	return r.stmt.conn.settleAutoTx(ctx)
}

// drain consumes the remainder of an in-flight batch.
func (r *Rows) drain(ctx context.Context) error {
	ch := r.stmt.conn.ch
	for {
		op, err := ch.ReadOpcode(ctx)
		if err != nil {
			return err
		}
		if op != wire.OpFetchResponse {
			return fberr.NewProtocolErrorf("expected op_fetch_response, got opcode %d", op)
		}
		status, err := ch.ReadInt32(ctx)
		if err != nil {
			return err
		}
		count, err := ch.ReadInt32(ctx)
		if err != nil {
			return err
		}
		if count > 0 {
			if _, err := r.stmt.codec.ReadRowContext(ctx, ch, r.stmt.info.output); err != nil {
				return err
			}
			continue
		}
		r.fetching = false
		if status == fetchStatusEOF {
			r.eof = true
		}
		return nil
	}
}
