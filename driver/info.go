package driver

import (
	"encoding/binary"

	"github.com/tomyedwab/fbwire/descriptor"
	"github.com/tomyedwab/fbwire/fberr"
)

// Statement information items requested at prepare time.
const (
	iscInfoEnd       byte = 1
	iscInfoTruncated byte = 2

	iscInfoSQLSelect       byte = 4
	iscInfoSQLBind         byte = 5
	iscInfoSQLNumVariables byte = 6
	iscInfoSQLDescribeVars byte = 7
	iscInfoSQLDescribeEnd  byte = 8
	iscInfoSQLSqldaSeq     byte = 9
	iscInfoSQLType         byte = 11
	iscInfoSQLSubType      byte = 12
	iscInfoSQLScale        byte = 13
	iscInfoSQLLength       byte = 14
	iscInfoSQLField        byte = 16
	iscInfoSQLRelation     byte = 17
	iscInfoSQLAlias        byte = 19
	iscInfoSQLStmtType     byte = 21
)

// Statement types reported by iscInfoSQLStmtType.
const (
	stmtTypeSelect    int32 = 1
	stmtTypeInsert    int32 = 2
	stmtTypeUpdate    int32 = 3
	stmtTypeDelete    int32 = 4
	stmtTypeDDL       int32 = 5
	stmtTypeExecProc  int32 = 8
	stmtTypeSetGen    int32 = 9
	stmtTypeSavepoint int32 = 12
)

// prepareInfoItems is the request sent with every prepare: statement
// type, then the full variable description of both row sets.
var prepareInfoItems = []byte{
	iscInfoSQLStmtType,
	iscInfoSQLSelect, iscInfoSQLDescribeVars,
	iscInfoSQLSqldaSeq, iscInfoSQLType, iscInfoSQLSubType,
	iscInfoSQLScale, iscInfoSQLLength,
	iscInfoSQLField, iscInfoSQLRelation, iscInfoSQLAlias,
	iscInfoSQLDescribeEnd,
	iscInfoSQLBind, iscInfoSQLDescribeVars,
	iscInfoSQLSqldaSeq, iscInfoSQLType, iscInfoSQLSubType,
	iscInfoSQLScale, iscInfoSQLLength,
	iscInfoSQLDescribeEnd,
}

// prepareInfo is the decoded result of a prepare request.
type prepareInfo struct {
	stmtType int32
	output   *descriptor.Descriptor
	input    *descriptor.Descriptor
}

// fieldSpec accumulates one variable's description before it is applied
// to a descriptor slot.
type fieldSpec struct {
	seq      int32
	dataType int32
	subType  int32
	scale    int32
	length   int32
	field    string
	relation string
	alias    string
}

// parsePrepareInfo decodes the info buffer returned for a prepare
// request: a flat (item, 2-byte little-endian length, payload) stream
// with variable descriptions grouped under select/bind markers.
func parsePrepareInfo(buf []byte) (*prepareInfo, error) {
	info := &prepareInfo{}

	var specs []fieldSpec
	var current *fieldSpec
	var section byte

	flushVars := func() error {
		if current != nil {
			specs = append(specs, *current)
			current = nil
		}
		if specs == nil {
			return nil
		}
		desc, err := buildDescriptor(specs)
		if err != nil {
			return err
		}
		switch section {
		case iscInfoSQLSelect:
			info.output = desc
		case iscInfoSQLBind:
			info.input = desc
		}
		specs = nil
		return nil
	}

	for len(buf) > 0 {
		item := buf[0]
		buf = buf[1:]
		switch item {
		case iscInfoEnd:
			if err := flushVars(); err != nil {
				return nil, err
			}
			return info, nil
		case iscInfoTruncated:
			return nil, fberr.NewProtocolError("prepare info buffer truncated by server")
		case iscInfoSQLSelect, iscInfoSQLBind:
			if err := flushVars(); err != nil {
				return nil, err
			}
			section = item
			specs = []fieldSpec{}
			continue
		case iscInfoSQLDescribeVars:
			// Followed by a counted item like any other; the count is
			// redundant with the sequence numbers.
			if _, rest, err := readInfoValue(buf); err != nil {
				return nil, err
			} else {
				buf = rest
			}
			continue
		case iscInfoSQLDescribeEnd:
			if current != nil {
				specs = append(specs, *current)
				current = nil
			}
			continue
		}

		payload, rest, err := readInfoValue(buf)
		if err != nil {
			return nil, err
		}
		buf = rest

		switch item {
		case iscInfoSQLStmtType:
			info.stmtType = infoInt32(payload)
		case iscInfoSQLSqldaSeq:
			if current != nil {
				specs = append(specs, *current)
			}
			current = &fieldSpec{seq: infoInt32(payload)}
		case iscInfoSQLType:
			current.dataType = infoInt32(payload)
		case iscInfoSQLSubType:
			current.subType = infoInt32(payload)
		case iscInfoSQLScale:
			current.scale = infoInt32(payload)
		case iscInfoSQLLength:
			current.length = infoInt32(payload)
		case iscInfoSQLField:
			current.field = string(payload)
		case iscInfoSQLRelation:
			current.relation = string(payload)
		case iscInfoSQLAlias:
			current.alias = string(payload)
		default:
			return nil, fberr.NewProtocolErrorf("unknown prepare info item %d", item)
		}
	}
	return nil, fberr.NewProtocolError("prepare info buffer missing end marker")
}

func readInfoValue(buf []byte) (payload, rest []byte, err error) {
	if len(buf) < 2 {
		return nil, nil, fberr.NewProtocolError("truncated prepare info item")
	}
	n := int(binary.LittleEndian.Uint16(buf))
	if len(buf) < 2+n {
		return nil, nil, fberr.NewProtocolErrorf("prepare info item declares %d bytes, %d available", n, len(buf)-2)
	}
	return buf[2 : 2+n], buf[2+n:], nil
}

// infoInt32 decodes a little-endian integer of 1, 2 or 4 bytes.
func infoInt32(p []byte) int32 {
	var v int32
	for i := len(p) - 1; i >= 0; i-- {
		v = v<<8 | int32(p[i])
	}
	return v
}

func buildDescriptor(specs []fieldSpec) (*descriptor.Descriptor, error) {
	desc := descriptor.New(len(specs))
	for i, s := range specs {
		if int(s.seq) != i+1 {
			return nil, fberr.NewProtocolErrorf("variable sequence %d out of order", s.seq)
		}
		f := desc.Field(i)
		f.SetDataType(s.dataType)
		f.SetSubType(s.subType)
		f.SetScale(s.scale)
		f.SetLength(s.length)
		f.Name = s.field
		f.Relation = s.relation
		f.Alias = s.alias
	}
	return desc, nil
}

// Record-count info items.
const (
	iscInfoSQLRecords byte = 23

	iscInfoReqSelectCount byte = 13
	iscInfoReqInsertCount byte = 14
	iscInfoReqUpdateCount byte = 15
	iscInfoReqDeleteCount byte = 16
)

// recordCounts holds the per-verb row counts reported for an executed
// statement.
type recordCounts struct {
	selected int64
	inserted int64
	updated  int64
	deleted  int64
}

// parseRecordCounts decodes the isc_info_sql_records response: the outer
// item wraps an inner counted stream of per-verb counts.
func parseRecordCounts(buf []byte) (recordCounts, error) {
	var rc recordCounts
	for len(buf) > 0 {
		item := buf[0]
		buf = buf[1:]
		switch item {
		case iscInfoEnd:
			return rc, nil
		case iscInfoTruncated:
			return rc, fberr.NewProtocolError("record count buffer truncated by server")
		case iscInfoSQLRecords:
			inner, rest, err := readInfoValue(buf)
			if err != nil {
				return rc, err
			}
			buf = rest
			for len(inner) > 0 && inner[0] != iscInfoEnd {
				tag := inner[0]
				payload, r, err := readInfoValue(inner[1:])
				if err != nil {
					return rc, err
				}
				inner = r
				n := int64(infoInt32(payload))
				switch tag {
				case iscInfoReqSelectCount:
					rc.selected = n
				case iscInfoReqInsertCount:
					rc.inserted = n
				case iscInfoReqUpdateCount:
					rc.updated = n
				case iscInfoReqDeleteCount:
					rc.deleted = n
				default:
					return rc, fberr.NewProtocolErrorf("unknown record count item %d", tag)
				}
			}
		default:
			return rc, fberr.NewProtocolErrorf("unknown info item %d", item)
		}
	}
	return rc, fberr.NewProtocolError("record count buffer missing end marker")
}
