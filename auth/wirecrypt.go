package auth

import (
	"context"
	"crypto/cipher"
	"crypto/rc4"
	"crypto/sha256"

	"golang.org/x/crypto/chacha20"

	"github.com/tomyedwab/fbwire/fberr"
	"github.com/tomyedwab/fbwire/wire"
)

// activateEncryption turns on wire encryption when policy and the
// negotiated session allow it. The activation message goes out in
// plaintext; outbound encryption starts before the server's confirmation
// is read, so the confirmation itself arrives under the new cipher.
func (n *Negotiator) activateEncryption(ctx context.Context) error {
	if n.cfg.WireCrypt == wire.WireCryptDisabled {
		return nil
	}
	if n.sessionKey == nil || !n.supportsWireCrypt() {
		return nil
	}

	cipherName := n.cfg.Cipher
	if cipherName == "" {
		cipherName = "Arc4"
	}

	n.state = StateWireCryptPending

	if err := n.ch.WriteOpcode(ctx, wire.OpCrypt); err != nil {
		return err
	}
	if err := n.ch.WriteString(ctx, cipherName); err != nil {
		return err
	}
	if err := n.ch.WriteString(ctx, sessionKeyName); err != nil {
		return err
	}
	if err := n.ch.Flush(ctx); err != nil {
		return err
	}

	inbound, outbound, err := newCipherPair(cipherName, n.sessionKey)
	if err != nil {
		return err
	}
	n.ch.SetWriteCipher(outbound)
	n.ch.SetReadCipher(inbound)

	resp, err := n.readResponse(ctx)
	if err != nil {
		return err
	}
	if resp.kind != respGeneric {
		return fberr.NewProtocolErrorf("unexpected response %d to encryption activation", resp.opcode)
	}
	if resp.err != nil {
		return resp.err
	}

	n.cryptActive = true
	n.state = StateWireCryptActive
	return nil
}

// validateCryptPolicy runs at the end of the connection sequence: a
// required policy on an encryption-capable protocol with no completed
// activation is fatal.
func (n *Negotiator) validateCryptPolicy() error {
	if n.cfg.WireCrypt != wire.WireCryptRequired {
		return nil
	}
	if n.supportsWireCrypt() && !n.cryptActive {
		return fberr.NewEncryptionPolicyError("wire encryption is required but was not activated")
	}
	return nil
}

// supportsWireCrypt reports whether the negotiated protocol version can
// carry encrypted traffic.
func (n *Negotiator) supportsWireCrypt() bool {
	return wire.ProtocolBaseVersion(n.protocol) >= wire.ProtocolBaseVersion(wire.ProtocolVersion13)
}

// newCipherPair builds independent inbound and outbound stream ciphers
// keyed by the session key.
func newCipherPair(name string, key []byte) (inbound, outbound cipher.Stream, err error) {
	switch name {
	case "Arc4":
		inbound, err = rc4.NewCipher(key)
		if err != nil {
			return nil, nil, fberr.NewErrorWithCause(fberr.ErrorTypeProtocol, "bad Arc4 session key", err)
		}
		outbound, err = rc4.NewCipher(key)
		if err != nil {
			return nil, nil, fberr.NewErrorWithCause(fberr.ErrorTypeProtocol, "bad Arc4 session key", err)
		}
		return inbound, outbound, nil

	case "ChaCha":
		derived := sha256.Sum256(key)
		var nonce [chacha20.NonceSize]byte
		inbound, err = chacha20.NewUnauthenticatedCipher(derived[:], nonce[:])
		if err != nil {
			return nil, nil, fberr.NewErrorWithCause(fberr.ErrorTypeProtocol, "bad ChaCha session key", err)
		}
		outbound, err = chacha20.NewUnauthenticatedCipher(derived[:], nonce[:])
		if err != nil {
			return nil, nil, fberr.NewErrorWithCause(fberr.ErrorTypeProtocol, "bad ChaCha session key", err)
		}
		return inbound, outbound, nil

	default:
		return nil, nil, fberr.NewProtocolErrorf("unknown wire encryption cipher %q", name)
	}
}
