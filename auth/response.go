package auth

import (
	"context"

	"github.com/tomyedwab/fbwire/fberr"
	"github.com/tomyedwab/fbwire/wire"
)

// responseKind tags the server messages the negotiator understands.
// Anything else is a protocol violation, handled by the caller's
// exhaustive switch.
type responseKind int

const (
	respAccept responseKind = iota
	respAcceptData
	respCondAccept
	respContAuth
	respCryptKeyCallback
	respGeneric
)

type serverResponse struct {
	kind   responseKind
	opcode int32

	protocol      int32
	pluginName    string
	data          []byte
	keys          []byte
	authenticated bool

	// Decoded status vector of a generic response; nil on success.
	err error
}

// readResponse reads and classifies the next server message.
func (n *Negotiator) readResponse(ctx context.Context) (*serverResponse, error) {
	op, err := n.ch.ReadOpcode(ctx)
	if err != nil {
		return nil, err
	}

	resp := &serverResponse{opcode: op}
	switch op {
	case wire.OpAccept:
		resp.kind = respAccept
		if resp.protocol, err = n.ch.ReadInt32(ctx); err != nil {
			return nil, err
		}
		// Architecture and transport type; only the version matters to
		// the client.
		if _, err = n.ch.ReadInt32(ctx); err != nil {
			return nil, err
		}
		if _, err = n.ch.ReadInt32(ctx); err != nil {
			return nil, err
		}
		return resp, nil

	case wire.OpAcceptData, wire.OpCondAccept:
		if op == wire.OpAcceptData {
			resp.kind = respAcceptData
		} else {
			resp.kind = respCondAccept
		}
		if resp.protocol, err = n.ch.ReadInt32(ctx); err != nil {
			return nil, err
		}
		if _, err = n.ch.ReadInt32(ctx); err != nil {
			return nil, err
		}
		if _, err = n.ch.ReadInt32(ctx); err != nil {
			return nil, err
		}
		if resp.data, err = n.ch.ReadBlock(ctx); err != nil {
			return nil, err
		}
		if resp.pluginName, err = n.ch.ReadString(ctx); err != nil {
			return nil, err
		}
		flag, err := n.ch.ReadInt32(ctx)
		if err != nil {
			return nil, err
		}
		resp.authenticated = flag != 0
		if resp.keys, err = n.ch.ReadBlock(ctx); err != nil {
			return nil, err
		}
		return resp, nil

	case wire.OpContAuth:
		resp.kind = respContAuth
		if resp.data, err = n.ch.ReadBlock(ctx); err != nil {
			return nil, err
		}
		if resp.pluginName, err = n.ch.ReadString(ctx); err != nil {
			return nil, err
		}
		// Plugin list; the accepted plugin never changes mid-exchange.
		if _, err = n.ch.ReadString(ctx); err != nil {
			return nil, err
		}
		if resp.keys, err = n.ch.ReadBlock(ctx); err != nil {
			return nil, err
		}
		return resp, nil

	case wire.OpCryptKeyCallback:
		resp.kind = respCryptKeyCallback
		if resp.data, err = n.ch.ReadBlock(ctx); err != nil {
			return nil, err
		}
		return resp, nil

	case wire.OpResponse:
		resp.kind = respGeneric
		body, err := n.ch.ReadResponseBody(ctx)
		if err != nil {
			return nil, err
		}
		resp.data = body.Data
		resp.err = body.Err
		return resp, nil

	case wire.OpReject:
		return nil, fberr.NewProtocolError("server rejected the connection request")

	default:
		return nil, fberr.NewProtocolErrorf("unexpected operation code %d", op)
	}
}
