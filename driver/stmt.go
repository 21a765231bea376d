package driver

import (
	"context"
	"database/sql/driver"
	"fmt"

	"github.com/tomyedwab/fbwire/descriptor"
	"github.com/tomyedwab/fbwire/fberr"
	"github.com/tomyedwab/fbwire/params"
	"github.com/tomyedwab/fbwire/rowcodec"
	"github.com/tomyedwab/fbwire/wire"
)

const sqlDialect = 3

// Free-statement verbs.
const (
	dsqlClose int32 = 1
	dsqlDrop  int32 = 2
)

const prepareInfoBufferLen = 32 * 1024

// Stmt is one prepared statement. It owns a statement handle on the
// server, the input and output descriptors decoded from the prepare
// metadata, and a row codec reused across executions.
type Stmt struct {
	conn     *Conn
	handle   int32
	text     string
	declared []string
	mapper   *params.Mapper
	info     *prepareInfo
	codec    *rowcodec.Codec
	closed   bool
}

// prepareStmt allocates a statement handle and prepares the query on it.
func prepareStmt(ctx context.Context, c *Conn, query string) (*Stmt, error) {
	text, declared, err := rewriteNamedParams(query)
	if err != nil {
		return nil, err
	}

	ch := c.ch
	if err := ch.WriteOpcode(ctx, wire.OpAllocateStmt); err != nil {
		return nil, err
	}
	if err := ch.WriteInt32(ctx, c.dbHandle); err != nil {
		return nil, err
	}
	if err := ch.Flush(ctx); err != nil {
		return nil, err
	}
	resp, err := c.response(ctx)
	if err != nil {
		return nil, err
	}
	handle := resp.Handle

	txh, err := c.txHandle(ctx)
	if err != nil {
		return nil, err
	}

	if err := ch.WriteOpcode(ctx, wire.OpPrepareStmt); err != nil {
		return nil, err
	}
	if err := ch.WriteInt32(ctx, txh); err != nil {
		return nil, err
	}
	if err := ch.WriteInt32(ctx, handle); err != nil {
		return nil, err
	}
	if err := ch.WriteInt32(ctx, sqlDialect); err != nil {
		return nil, err
	}
	if err := ch.WriteString(ctx, text); err != nil {
		return nil, err
	}
	if err := ch.WriteBlock(ctx, prepareInfoItems); err != nil {
		return nil, err
	}
	if err := ch.WriteInt32(ctx, prepareInfoBufferLen); err != nil {
		return nil, err
	}
	if err := ch.Flush(ctx); err != nil {
		return nil, err
	}
	resp, err = c.response(ctx)
	if err != nil {
		return nil, err
	}

	info, err := parsePrepareInfo(resp.Data)
	if err != nil {
		return nil, err
	}

	s := &Stmt{
		conn:   c,
		handle: handle,
		text:   text,
		info:   info,
		codec:  rowcodec.NewCodec(),
	}
	if len(declared) > 0 {
		s.declared = declared
		s.mapper = params.NewMapper(declared)
	}
	return s, nil
}

// NumInput returns the number of placeholders, or -1 for named-parameter
// statements where distinct argument and placeholder counts may differ.
func (s *Stmt) NumInput() int {
	if s.mapper != nil {
		return -1
	}
	if s.info.input == nil {
		return 0
	}
	return s.info.input.Count()
}

// Exec executes the statement with positional arguments.
func (s *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), positionalArgs(args))
}

// ExecContext executes the statement, settles the auto transaction and
// reports the affected row count.
func (s *Stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	if err := s.execute(ctx, args); err != nil {
		return nil, err
	}
	affected, err := s.affectedRows(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.conn.settleAutoTx(ctx); err != nil {
		return nil, err
	}
	return result{affected: affected}, nil
}

// Query executes the statement with positional arguments.
func (s *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), positionalArgs(args))
}

// QueryContext executes the statement and returns its cursor. Rows are
// pulled from the server in batches as the caller advances.
func (s *Stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if err := s.execute(ctx, args); err != nil {
		return nil, err
	}
	return newRows(s), nil
}

// Close drops the statement handle on the server.
func (s *Stmt) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn.closed {
		return nil
	}
	return s.free(context.Background(), dsqlDrop)
}

func (s *Stmt) free(ctx context.Context, verb int32) error {
	ch := s.conn.ch
	if err := ch.WriteOpcode(ctx, wire.OpFreeStmt); err != nil {
		return err
	}
	if err := ch.WriteInt32(ctx, s.handle); err != nil {
		return err
	}
	if err := ch.WriteInt32(ctx, verb); err != nil {
		return err
	}
	if err := ch.Flush(ctx); err != nil {
		return err
	}
	_, err := s.conn.response(ctx)
	return err
}

// execute binds the arguments and sends the execute request.
func (s *Stmt) execute(ctx context.Context, args []driver.NamedValue) error {
	if s.closed || s.conn.closed {
		return driver.ErrBadConn
	}
	txh, err := s.conn.txHandle(ctx)
	if err != nil {
		return err
	}
	if err := s.bindArgs(args); err != nil {
		return err
	}

	hasParams := s.info.input != nil && s.info.input.Count() > 0
	var blr []byte
	if hasParams {
		blr, err = s.info.input.Compile()
		if err != nil {
			return err
		}
	}

	ch := s.conn.ch
	if err := ch.WriteOpcode(ctx, wire.OpExecute); err != nil {
		return err
	}
	if err := ch.WriteInt32(ctx, s.handle); err != nil {
		return err
	}
	if err := ch.WriteInt32(ctx, txh); err != nil {
		return err
	}
	if err := ch.WriteBlock(ctx, blr); err != nil {
		return err
	}
	if err := ch.WriteInt32(ctx, 0); err != nil {
		return err
	}
	msgCount := int32(0)
	if hasParams {
		msgCount = 1
	}
	if err := ch.WriteInt32(ctx, msgCount); err != nil {
		return err
	}
	if hasParams {
		if err := s.codec.WriteRowContext(ctx, ch, s.info.input); err != nil {
			return err
		}
	}
	if s.conn.protocol >= 16 {
		// Statement timeout, added in protocol 16. Zero means none.
		if err := ch.WriteInt32(ctx, 0); err != nil {
			return err
		}
	}
	if err := ch.Flush(ctx); err != nil {
		return err
	}
	_, err = s.conn.response(ctx)
	return err
}

// bindArgs fills the input descriptor's fields from the caller's
// arguments, resolving declared names when the statement was written
// with named parameters.
func (s *Stmt) bindArgs(args []driver.NamedValue) error {
	in := s.info.input
	count := 0
	if in != nil {
		count = in.Count()
	}

	if s.mapper == nil {
		if len(args) != count {
			return fberr.NewProtocolErrorf(
				"statement takes %d parameters, %d bound", count, len(args))
		}
		for i, arg := range args {
			if err := bindField(in.Field(i), arg.Value); err != nil {
				return err
			}
		}
		return nil
	}

	if count != len(s.declared) {
		return fberr.NewProtocolErrorf(
			"statement declares %d parameters, server reports %d", len(s.declared), count)
	}

	coll := params.NewCollection()
	for _, arg := range args {
		name := arg.Name
		if name == "" {
			if arg.Ordinal < 1 || arg.Ordinal > len(s.declared) {
				return fberr.NewParameterBindingError(fmt.Sprintf("#%d", arg.Ordinal))
			}
			name = s.declared[arg.Ordinal-1]
		}
		v, err := convertArg(arg.Value)
		if err != nil {
			return err
		}
		coll.Add(name, v)
	}

	values, err := s.mapper.Fill(coll)
	if err != nil {
		return err
	}
	for i, v := range values {
		f := in.Field(i)
		coerced, err := coerceValue(f, v)
		if err != nil {
			return err
		}
		f.SetValue(coerced)
	}
	return nil
}

// bindField converts and assigns one positional argument.
func bindField(f *descriptor.Field, v driver.Value) error {
	dv, err := convertArg(v)
	if err != nil {
		return err
	}
	coerced, err := coerceValue(f, dv)
	if err != nil {
		return err
	}
	f.SetValue(coerced)
	return nil
}

// affectedRows asks the server for the statement's record counts after a
// DML execute. Selects report zero without a round trip.
func (s *Stmt) affectedRows(ctx context.Context) (int64, error) {
	switch s.info.stmtType {
	case stmtTypeInsert, stmtTypeUpdate, stmtTypeDelete, stmtTypeExecProc:
	default:
		return 0, nil
	}

	ch := s.conn.ch
	if err := ch.WriteOpcode(ctx, wire.OpInfoSQL); err != nil {
		return 0, err
	}
	if err := ch.WriteInt32(ctx, s.handle); err != nil {
		return 0, err
	}
	if err := ch.WriteInt32(ctx, 0); err != nil {
		return 0, err
	}
	if err := ch.WriteBlock(ctx, []byte{iscInfoSQLRecords}); err != nil {
		return 0, err
	}
	if err := ch.WriteInt32(ctx, prepareInfoBufferLen); err != nil {
		return 0, err
	}
	if err := ch.Flush(ctx); err != nil {
		return 0, err
	}
	resp, err := s.conn.response(ctx)
	if err != nil {
		return 0, err
	}
	counts, err := parseRecordCounts(resp.Data)
	if err != nil {
		return 0, err
	}
	return counts.inserted + counts.updated + counts.deleted, nil
}

// positionalArgs wraps plain values for the context-aware entry points.
func positionalArgs(args []driver.Value) []driver.NamedValue {
	named := make([]driver.NamedValue, len(args))
	for i, v := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return named
}

// result reports the affected row count. The server does not surface
// generated keys through the execute path, so LastInsertId always fails.
type result struct {
	affected int64
}

func (r result) LastInsertId() (int64, error) {
	return 0, fberr.NewProtocolError("last insert id is not reported; use RETURNING")
}

func (r result) RowsAffected() (int64, error) {
	return r.affected, nil
}

// rewriteNamedParams replaces :name and @name placeholders with
// positional markers, recording the declared names in order. Quoted
// strings, quoted identifiers and comments are left untouched. Mixing
// named and bare positional markers in one statement is rejected.
func rewriteNamedParams(query string) (string, []string, error) {
	var (
		out      []byte
		declared []string
		bare     bool
	)

	i := 0
	for i < len(query) {
		c := query[i]
		switch {
		case c == '\'' || c == '"':
			// String literal or quoted identifier; a doubled quote
			// escapes itself.
			quote := c
			j := i + 1
			for j < len(query) {
				if query[j] == quote {
					if j+1 < len(query) && query[j+1] == quote {
						j += 2
						continue
					}
					j++
					break
				}
				j++
			}
			out = append(out, query[i:j]...)
			i = j

		case c == '-' && i+1 < len(query) && query[i+1] == '-':
			j := i
			for j < len(query) && query[j] != '\n' {
				j++
			}
			out = append(out, query[i:j]...)
			i = j

		case c == '/' && i+1 < len(query) && query[i+1] == '*':
			j := i + 2
			for j+1 < len(query) && !(query[j] == '*' && query[j+1] == '/') {
				j++
			}
			if j+1 < len(query) {
				j += 2
			} else {
				j = len(query)
			}
			out = append(out, query[i:j]...)
			i = j

		case c == '?':
			bare = true
			out = append(out, c)
			i++

		case (c == ':' || c == '@') && i+1 < len(query) && isNameStart(query[i+1]):
			j := i + 1
			for j < len(query) && isNameByte(query[j]) {
				j++
			}
			declared = append(declared, query[i+1:j])
			out = append(out, '?')
			i = j

		default:
			out = append(out, c)
			i++
		}
	}

	if bare && len(declared) > 0 {
		return "", nil, fberr.NewProtocolError(
			"statement mixes named and positional parameters")
	}
	return string(out), declared, nil
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameByte(c byte) bool {
	return isNameStart(c) || c == '$' || (c >= '0' && c <= '9')
}
