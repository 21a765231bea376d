package auth

import (
	"context"
	"os"
	"os/user"
	"strings"

	"github.com/tomyedwab/fbwire/fberr"
	"github.com/tomyedwab/fbwire/wire"
)

// Config describes the identity and encryption policy for one
// connection attempt.
type Config struct {
	Database string
	User     string
	Password string

	// Trusted selects OS-integrated authentication instead of the
	// interactive password plugins.
	Trusted bool

	// WireCrypt is one of wire.WireCryptDisabled, Enabled or Required.
	WireCrypt int32

	// Cipher names the wire encryption algorithm to activate: "Arc4"
	// (the default) or "ChaCha".
	Cipher string

	// KeyCallback, when set, answers server crypt-key-callback rounds.
	// A nil callback answers with an empty payload.
	KeyCallback func(serverData []byte) []byte
}

// State identifies where the negotiation currently stands.
type State int

const (
	StateStart State = iota
	StatePluginSelected
	StateAwaitingServerData
	StateHasClientProof
	StateContAuthSent
	StateAuthenticated
	StateWireCryptPending
	StateWireCryptActive
	StateReleased
)

// Handshake framing constants.
const (
	connectVersion3 = 3
	archGeneric     = 1
	ptypeLazySend   = 5

	sessionKeyName = "Symmetric"
)

// Negotiator drives the authentication handshake over a channel and, on
// success, activates wire encryption according to policy. One negotiator
// serves one connection attempt.
type Negotiator struct {
	cfg *Config
	ch  *wire.Channel

	state   State
	plugins []Plugin
	plugin  Plugin
	login   string

	protocol      int32
	sessionKey    []byte
	serverKeys    []byte
	authenticated bool
	cryptActive   bool

	// Client data for the next continuation round: the proof once a
	// challenge has been answered, otherwise the plugin's public data.
	clientData []byte
}

// NewNegotiator creates a negotiator for one connection attempt.
func NewNegotiator(cfg *Config, ch *wire.Channel) *Negotiator {
	return &Negotiator{
		cfg:     cfg,
		ch:      ch,
		state:   StateStart,
		plugins: SelectPlugins(cfg.Trusted),
		login:   NormalizeLogin(cfg.User),
	}
}

// State returns the current negotiation state.
func (n *Negotiator) State() State {
	return n.state
}

// Protocol returns the negotiated protocol version after Negotiate.
func (n *Negotiator) Protocol() int32 {
	return n.protocol
}

// SessionKey returns the derived session key, if any.
func (n *Negotiator) SessionKey() []byte {
	return n.sessionKey
}

// Negotiate performs the full handshake: connect, plugin selection,
// proof exchange and wire-crypt activation. On return the negotiator is
// released; a required-but-inactive encryption policy surfaces as an
// encryption policy error after all other steps complete.
func (n *Negotiator) Negotiate(ctx context.Context) error {
	defer n.Release()

	if err := n.sendConnect(ctx); err != nil {
		return err
	}
	if err := n.authenticate(ctx); err != nil {
		return err
	}
	if err := n.activateEncryption(ctx); err != nil {
		return err
	}
	return n.validateCryptPolicy()
}

// sendConnect builds the client identification payload and offers the
// configured plugins in preference order.
func (n *Negotiator) sendConnect(ctx context.Context) error {
	pluginNames := make([]string, len(n.plugins))
	for i, p := range n.plugins {
		pluginNames[i] = p.Name()
	}
	pluginList := strings.Join(pluginNames, ",")
	ident := buildIdentification(n.cfg, n.plugins, pluginList)

	versions := []int32{wire.ProtocolVersion13, wire.ProtocolVersion15, wire.ProtocolVersion16}

	if err := n.ch.WriteOpcode(ctx, wire.OpConnect); err != nil {
		return err
	}
	if err := n.ch.WriteInt32(ctx, wire.OpAttach); err != nil {
		return err
	}
	if err := n.ch.WriteInt32(ctx, connectVersion3); err != nil {
		return err
	}
	if err := n.ch.WriteInt32(ctx, archGeneric); err != nil {
		return err
	}
	if err := n.ch.WriteString(ctx, n.cfg.Database); err != nil {
		return err
	}
	if err := n.ch.WriteInt32(ctx, int32(len(versions))); err != nil {
		return err
	}
	if err := n.ch.WriteBlock(ctx, ident); err != nil {
		return err
	}
	for i, v := range versions {
		if err := n.ch.WriteInt32(ctx, v); err != nil {
			return err
		}
		if err := n.ch.WriteInt32(ctx, archGeneric); err != nil {
			return err
		}
		if err := n.ch.WriteInt32(ctx, 0); err != nil {
			return err
		}
		if err := n.ch.WriteInt32(ctx, ptypeLazySend); err != nil {
			return err
		}
		if err := n.ch.WriteInt32(ctx, int32(i+1)); err != nil {
			return err
		}
	}
	if err := n.ch.Flush(ctx); err != nil {
		return err
	}

	n.state = StatePluginSelected
	return nil
}

// authenticate runs the proof exchange state machine until the server
// reports success or the exchange fails.
func (n *Negotiator) authenticate(ctx context.Context) error {
	resp, err := n.readResponse(ctx)
	if err != nil {
		return err
	}

	switch resp.kind {
	case respAccept:
		// Legacy acceptance without attach-time authentication.
		n.protocol = resp.protocol
		n.plugin = n.plugins[0]
		n.authenticated = true
		n.state = StateAuthenticated
		return nil

	case respAcceptData, respCondAccept:
		n.protocol = resp.protocol
		if err := n.selectPlugin(resp.pluginName); err != nil {
			return err
		}
		n.serverKeys = resp.keys

		if resp.authenticated {
			n.authenticated = true
			n.state = StateAuthenticated
			return nil
		}
		if len(resp.data) > 0 {
			// Server supplied its challenge up front: answer with the
			// proof immediately.
			proof, err := n.plugin.ComputeProof(n.login, n.cfg.Password, resp.data)
			if err != nil {
				return err
			}
			n.clientData = proof
			n.state = StateHasClientProof
		} else {
			n.clientData = n.plugin.ClientData()
			n.state = StateAwaitingServerData
		}
		return n.contAuthLoop(ctx)

	default:
		return fberr.NewProtocolErrorf("unexpected response %d to connect request", resp.opcode)
	}
}

// contAuthLoop sends continuation messages and processes server
// responses until authentication completes.
func (n *Negotiator) contAuthLoop(ctx context.Context) error {
	for {
		if err := n.sendContAuth(ctx); err != nil {
			return err
		}
		n.state = StateContAuthSent

		for {
			resp, err := n.readResponse(ctx)
			if err != nil {
				return err
			}

			switch resp.kind {
			case respContAuth:
				// New server data: recompute the proof and resend.
				proof, err := n.plugin.ComputeProof(n.login, n.cfg.Password, resp.data)
				if err != nil {
					return err
				}
				n.clientData = proof
				if len(resp.keys) > 0 {
					n.serverKeys = resp.keys
				}

			case respCryptKeyCallback:
				// A valid non-terminal round: answer and keep waiting
				// in the same state.
				var answer []byte
				if n.cfg.KeyCallback != nil {
					answer = n.cfg.KeyCallback(resp.data)
				}
				if err := n.ch.WriteOpcode(ctx, wire.OpCryptKeyCallback); err != nil {
					return err
				}
				if err := n.ch.WriteBlock(ctx, answer); err != nil {
					return err
				}
				if err := n.ch.Flush(ctx); err != nil {
					return err
				}
				continue

			case respGeneric:
				if resp.err != nil {
					return resp.err
				}
				if len(resp.data) > 0 {
					n.serverKeys = resp.data
				}
				if key := n.plugin.SessionKey(); key != nil {
					n.sessionKey = append([]byte(nil), key...)
				}
				n.authenticated = true
				n.state = StateAuthenticated
				return nil

			default:
				return fberr.NewProtocolErrorf("unexpected response %d during authentication", resp.opcode)
			}
			break
		}
	}
}

// sendContAuth sends the client data along with the accepted plugin name
// doubling as the plugin list, echoing any server key material.
func (n *Negotiator) sendContAuth(ctx context.Context) error {
	if err := n.ch.WriteOpcode(ctx, wire.OpContAuth); err != nil {
		return err
	}
	if err := n.ch.WriteBlock(ctx, n.clientData); err != nil {
		return err
	}
	if err := n.ch.WriteString(ctx, n.plugin.Name()); err != nil {
		return err
	}
	if err := n.ch.WriteString(ctx, n.plugin.Name()); err != nil {
		return err
	}
	if err := n.ch.WriteBlock(ctx, n.serverKeys); err != nil {
		return err
	}
	return n.ch.Flush(ctx)
}

func (n *Negotiator) selectPlugin(name string) error {
	for _, p := range n.plugins {
		if p.Name() == name {
			n.plugin = p
			return nil
		}
	}
	return fberr.NewUnsupportedPluginError(name)
}

// Release drops all negotiation secrets. The session key itself has
// already been copied out for the channel cipher by then.
func (n *Negotiator) Release() {
	if n.state == StateReleased {
		return
	}
	for _, p := range n.plugins {
		p.Release()
	}
	n.state = StateReleased
}

func osUserName() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "unknown"
}

func clientHostName() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "localhost"
}
