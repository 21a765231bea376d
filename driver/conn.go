package driver

import (
	"context"
	"database/sql"
	"database/sql/driver"

	"github.com/tomyedwab/fbwire/fberr"
	"github.com/tomyedwab/fbwire/wire"
)

// Database parameter block tags.
const (
	dpbVersion1 byte = 1
	dpbUserName byte = 28
	dpbPassword byte = 29
	dpbLcCtype  byte = 48
)

// Transaction parameter block tags.
const (
	tpbVersion3      byte = 3
	tpbConcurrency   byte = 2
	tpbWait          byte = 6
	tpbRead          byte = 8
	tpbWrite         byte = 9
	tpbReadCommitted byte = 15
	tpbRecVersion    byte = 17
)

// Conn is one attached database connection. The protocol is half duplex
// with a single request in flight at a time; the database/sql pool never
// shares a driver connection across goroutines, which is the only
// serialization this type relies on.
//
// Statements executed outside an explicit transaction run inside a
// connection-scoped auto transaction that is committed retaining after
// each statement completes, so its snapshot advances without giving up
// the server-side transaction slot.
type Conn struct {
	ch       *wire.Channel
	protocol int32

	dbHandle     int32
	autoTxHandle int32
	autoTxOpen   bool
	tx           *Tx
	closed       bool
}

func newConn(ch *wire.Channel, protocol int32) *Conn {
	return &Conn{ch: ch, protocol: protocol}
}

// attach binds the authenticated connection to the database named in the
// configuration.
func (c *Conn) attach(ctx context.Context, cfg *config) error {
	dpb := []byte{dpbVersion1}
	dpb = appendDpbString(dpb, dpbLcCtype, cfg.charset)
	if cfg.auth.User != "" {
		dpb = appendDpbString(dpb, dpbUserName, cfg.auth.User)
	}

	if err := c.ch.WriteOpcode(ctx, wire.OpAttach); err != nil {
		return err
	}
	if err := c.ch.WriteInt32(ctx, 0); err != nil {
		return err
	}
	if err := c.ch.WriteString(ctx, cfg.database); err != nil {
		return err
	}
	if err := c.ch.WriteBlock(ctx, dpb); err != nil {
		return err
	}
	if err := c.ch.Flush(ctx); err != nil {
		return err
	}

	resp, err := c.response(ctx)
	if err != nil {
		return err
	}
	c.dbHandle = resp.Handle
	return nil
}

func appendDpbString(dpb []byte, tag byte, s string) []byte {
	if len(s) > 255 {
		s = s[:255]
	}
	dpb = append(dpb, tag, byte(len(s)))
	return append(dpb, s...)
}

// response reads the generic response to the last request, surfacing a
// server status vector as the returned error.
func (c *Conn) response(ctx context.Context) (*wire.Response, error) {
	op, err := c.ch.ReadOpcode(ctx)
	if err != nil {
		return nil, err
	}
	if op != wire.OpResponse {
		return nil, fberr.NewProtocolErrorf("expected op_response, got opcode %d", op)
	}
	body, err := c.ch.ReadResponseBody(ctx)
	if err != nil {
		return nil, err
	}
	if body.Err != nil {
		return nil, body.Err
	}
	return body, nil
}

// Channel exposes the connection's protocol channel for blob transfers
// keyed on handles fetched through this connection.
func (c *Conn) Channel() *wire.Channel {
	return c.ch
}

// TransactionHandle returns the handle blob operations should run under:
// the explicit transaction when one is active, the auto transaction
// otherwise.
func (c *Conn) TransactionHandle(ctx context.Context) (int32, error) {
	return c.txHandle(ctx)
}

// txHandle returns the active transaction handle, lazily starting the
// connection's auto transaction when no explicit one is open.
func (c *Conn) txHandle(ctx context.Context) (int32, error) {
	if c.tx != nil {
		return c.tx.handle, nil
	}
	if !c.autoTxOpen {
		h, err := c.startTransaction(ctx, defaultTPB(false))
		if err != nil {
			return 0, err
		}
		c.autoTxHandle = h
		c.autoTxOpen = true
	}
	return c.autoTxHandle, nil
}

// defaultTPB builds the transaction parameter block: read committed with
// record versions, waiting on locks.
func defaultTPB(readOnly bool) []byte {
	access := tpbWrite
	if readOnly {
		access = tpbRead
	}
	return []byte{tpbVersion3, access, tpbWait, tpbReadCommitted, tpbRecVersion}
}

func (c *Conn) startTransaction(ctx context.Context, tpb []byte) (int32, error) {
	if err := c.ch.WriteOpcode(ctx, wire.OpTransaction); err != nil {
		return 0, err
	}
	if err := c.ch.WriteInt32(ctx, c.dbHandle); err != nil {
		return 0, err
	}
	if err := c.ch.WriteBlock(ctx, tpb); err != nil {
		return 0, err
	}
	if err := c.ch.Flush(ctx); err != nil {
		return 0, err
	}
	resp, err := c.response(ctx)
	if err != nil {
		return 0, err
	}
	return resp.Handle, nil
}

// endTransaction sends a one-handle transaction verb (commit, rollback
// or commit retaining) and reads its response.
func (c *Conn) endTransaction(ctx context.Context, op, handle int32) error {
	if err := c.ch.WriteOpcode(ctx, op); err != nil {
		return err
	}
	if err := c.ch.WriteInt32(ctx, handle); err != nil {
		return err
	}
	if err := c.ch.Flush(ctx); err != nil {
		return err
	}
	_, err := c.response(ctx)
	return err
}

// settleAutoTx advances the auto transaction's snapshot after a
// statement completes outside an explicit transaction.
func (c *Conn) settleAutoTx(ctx context.Context) error {
	if c.tx != nil || !c.autoTxOpen {
		return nil
	}
	return c.endTransaction(ctx, wire.OpCommitRetaining, c.autoTxHandle)
}

// Prepare returns a prepared statement bound to this connection.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

// PrepareContext allocates a statement handle and prepares the query on
// it, decoding the returned metadata into input and output descriptors.
func (c *Conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if c.closed {
		return nil, driver.ErrBadConn
	}
	return prepareStmt(ctx, c, query)
}

// Begin starts an explicit transaction with default options.
func (c *Conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx starts an explicit transaction. Only the default and read
// committed isolation levels are supported; the read-only option flips
// the transaction's access mode.
func (c *Conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if c.closed {
		return nil, driver.ErrBadConn
	}
	if c.tx != nil {
		return nil, fberr.NewProtocolError("transaction already active on this connection")
	}
	switch sql.IsolationLevel(opts.Isolation) {
	case sql.LevelDefault, sql.LevelReadCommitted:
	default:
		return nil, fberr.NewProtocolErrorf("unsupported isolation level %d", opts.Isolation)
	}

	h, err := c.startTransaction(ctx, defaultTPB(opts.ReadOnly))
	if err != nil {
		return nil, err
	}
	c.tx = &Tx{conn: c, handle: h}
	return c.tx, nil
}

// Ping round-trips an op_ping through the server.
func (c *Conn) Ping(ctx context.Context) error {
	if c.closed {
		return driver.ErrBadConn
	}
	if err := c.ch.WriteOpcode(ctx, wire.OpPing); err != nil {
		return driver.ErrBadConn
	}
	if err := c.ch.Flush(ctx); err != nil {
		return driver.ErrBadConn
	}
	if _, err := c.response(ctx); err != nil {
		return driver.ErrBadConn
	}
	return nil
}

// IsValid reports whether the pool may hand this connection out again.
func (c *Conn) IsValid() bool {
	return !c.closed && !c.ch.Poisoned()
}

// Close commits the auto transaction, detaches from the database and
// closes the underlying channel.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	ctx := context.Background()

	if c.autoTxOpen {
		c.autoTxOpen = false
		if err := c.endTransaction(ctx, wire.OpCommit, c.autoTxHandle); err != nil {
			c.ch.Close()
			return err
		}
	}

	err := c.ch.WriteOpcode(ctx, wire.OpDetach)
	if err == nil {
		err = c.ch.WriteInt32(ctx, c.dbHandle)
	}
	if err == nil {
		err = c.ch.Flush(ctx)
	}
	if err == nil {
		_, err = c.response(ctx)
	}
	if cerr := c.ch.Close(); err == nil {
		err = cerr
	}
	return err
}

// Tx is an explicit server transaction.
type Tx struct {
	conn   *Conn
	handle int32
	done   bool
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return t.end(wire.OpCommit)
}

// Rollback aborts the transaction.
func (t *Tx) Rollback() error {
	return t.end(wire.OpRollback)
}

func (t *Tx) end(op int32) error {
	if t.done {
		return fberr.NewProtocolError("transaction already committed or rolled back")
	}
	t.done = true
	t.conn.tx = nil
	return t.conn.endTransaction(context.Background(), op, t.handle)
}
