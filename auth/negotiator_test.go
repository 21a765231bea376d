package auth

import (
	"bytes"
	"context"
	"crypto/rc4"
	"net"
	"testing"
	"time"

	"github.com/tomyedwab/fbwire/fberr"
	"github.com/tomyedwab/fbwire/wire"
)

// fakeServer scripts one side of the handshake over an in-memory pipe.
// It runs in its own goroutine, so failures are reported with Errorf.
type fakeServer struct {
	t  *testing.T
	ch *wire.Channel

	login           string
	clientPublicHex []byte
}

func startHandshakeTest(t *testing.T, cfg *Config, script func(*fakeServer)) error {
	t.Helper()
	clientEnd, serverEnd := net.Pipe()
	t.Cleanup(func() {
		clientEnd.Close()
		serverEnd.Close()
	})

	srv := &fakeServer{t: t, ch: wire.NewChannel(serverEnd)}
	done := make(chan struct{})
	go func() {
		defer close(done)
		script(srv)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n := NewNegotiator(cfg, wire.NewChannel(clientEnd))
	err := n.Negotiate(ctx)

	// Unblock the server script if the client bailed out mid-exchange.
	clientEnd.Close()
	<-done
	return err
}

// readConnect consumes the connect request and captures the login and
// the plugin's client public key from the identification block.
func (s *fakeServer) readConnect() bool {
	ctx := context.Background()
	op, err := s.ch.ReadOpcode(ctx)
	if err != nil || op != wire.OpConnect {
		s.t.Errorf("connect opcode = %d, err = %v", op, err)
		return false
	}
	for i := 0; i < 3; i++ { // operation, version, architecture
		if _, err := s.ch.ReadInt32(ctx); err != nil {
			s.t.Errorf("connect header: %v", err)
			return false
		}
	}
	if _, err := s.ch.ReadString(ctx); err != nil {
		s.t.Errorf("connect database: %v", err)
		return false
	}
	count, err := s.ch.ReadInt32(ctx)
	if err != nil {
		s.t.Errorf("connect version count: %v", err)
		return false
	}
	ident, err := s.ch.ReadBlock(ctx)
	if err != nil {
		s.t.Errorf("connect identification: %v", err)
		return false
	}
	for i := int32(0); i < count*5; i++ {
		if _, err := s.ch.ReadInt32(ctx); err != nil {
			s.t.Errorf("connect version entry: %v", err)
			return false
		}
	}

	for len(ident) >= 2 {
		tag, length := ident[0], int(ident[1])
		if len(ident) < 2+length {
			s.t.Errorf("malformed identification entry % x", ident)
			return false
		}
		payload := ident[2 : 2+length]
		switch tag {
		case wire.CnctLogin:
			s.login = string(payload)
		case wire.CnctSpecificData:
			if s.clientPublicHex == nil {
				s.clientPublicHex = append([]byte(nil), payload...)
			}
		}
		ident = ident[2+length:]
	}
	return true
}

func (s *fakeServer) sendAcceptData(protocol int32, data []byte, plugin string, authenticated int32) bool {
	ctx := context.Background()
	steps := []error{
		s.ch.WriteOpcode(ctx, wire.OpAcceptData),
		s.ch.WriteInt32(ctx, protocol),
		s.ch.WriteInt32(ctx, archGeneric),
		s.ch.WriteInt32(ctx, ptypeLazySend),
		s.ch.WriteBlock(ctx, data),
		s.ch.WriteString(ctx, plugin),
		s.ch.WriteInt32(ctx, authenticated),
		s.ch.WriteBlock(ctx, nil),
		s.ch.Flush(ctx),
	}
	for _, err := range steps {
		if err != nil {
			s.t.Errorf("sending accept data: %v", err)
			return false
		}
	}
	return true
}

// readContAuth consumes a continuation message and returns the client
// data it carries.
func (s *fakeServer) readContAuth() []byte {
	ctx := context.Background()
	op, err := s.ch.ReadOpcode(ctx)
	if err != nil || op != wire.OpContAuth {
		s.t.Errorf("continuation opcode = %d, err = %v", op, err)
		return nil
	}
	data, err := s.ch.ReadBlock(ctx)
	if err != nil {
		s.t.Errorf("continuation data: %v", err)
		return nil
	}
	if _, err := s.ch.ReadString(ctx); err != nil { // plugin name
		s.t.Errorf("continuation plugin: %v", err)
		return nil
	}
	if _, err := s.ch.ReadString(ctx); err != nil { // plugin list
		s.t.Errorf("continuation plugin list: %v", err)
		return nil
	}
	if _, err := s.ch.ReadBlock(ctx); err != nil { // keys
		s.t.Errorf("continuation keys: %v", err)
		return nil
	}
	return data
}

// sendResponse sends a generic response whose status vector carries the
// given primary code; zero means success.
func (s *fakeServer) sendResponse(code int32, detail string) bool {
	ctx := context.Background()
	steps := []error{
		s.ch.WriteOpcode(ctx, wire.OpResponse),
		s.ch.WriteInt32(ctx, 0), // object handle
		s.ch.WriteInt32(ctx, 0), // object id, high
		s.ch.WriteInt32(ctx, 0), // object id, low
		s.ch.WriteBlock(ctx, nil),
		s.ch.WriteInt32(ctx, wire.IscArgGds),
		s.ch.WriteInt32(ctx, code),
	}
	if detail != "" {
		steps = append(steps,
			s.ch.WriteInt32(ctx, wire.IscArgString),
			s.ch.WriteString(ctx, detail))
	}
	steps = append(steps,
		s.ch.WriteInt32(ctx, wire.IscArgEnd),
		s.ch.Flush(ctx))
	for _, err := range steps {
		if err != nil {
			s.t.Errorf("sending response: %v", err)
			return false
		}
	}
	return true
}

// serveCrypt consumes the encryption activation request and confirms it
// under the freshly keyed ciphers.
func (s *fakeServer) serveCrypt(sessionKey []byte) {
	ctx := context.Background()
	op, err := s.ch.ReadOpcode(ctx)
	if err != nil || op != wire.OpCrypt {
		s.t.Errorf("crypt opcode = %d, err = %v", op, err)
		return
	}
	cipherName, err := s.ch.ReadString(ctx)
	if err != nil || cipherName != "Arc4" {
		s.t.Errorf("crypt cipher = %q, err = %v", cipherName, err)
		return
	}
	keyName, err := s.ch.ReadString(ctx)
	if err != nil || keyName != sessionKeyName {
		s.t.Errorf("crypt key name = %q, err = %v", keyName, err)
		return
	}

	inbound, _ := rc4.NewCipher(sessionKey)
	outbound, _ := rc4.NewCipher(sessionKey)
	s.ch.SetReadCipher(inbound)
	s.ch.SetWriteCipher(outbound)
	s.sendResponse(0, "")
}

// srpExchange runs the server half of a password proof exchange after
// the client's connect request has been read. Returns the verifier with
// the derived session key, or nil.
func (s *fakeServer) srpExchange(password string) *srpVerifier {
	verifier := newSrpVerifier(s.t, s.login, password)
	if !s.sendAcceptData(wire.ProtocolVersion16, verifier.challenge(), "Srp256", 0) {
		return nil
	}
	proof := s.readContAuth()
	if proof == nil {
		return nil
	}
	if !verifier.verify(s.t, s.clientPublicHex, proof, NewSrp256().(*srpClient).proofHash) {
		s.t.Error("client proof did not verify")
		return nil
	}
	return verifier
}

func TestNegotiateSrp256(t *testing.T) {
	cfg := &Config{
		Database:  "employee",
		User:      "sysdba",
		Password:  "masterkey",
		WireCrypt: wire.WireCryptDisabled,
	}

	var serverKey []byte
	err := startHandshakeTest(t, cfg, func(s *fakeServer) {
		if !s.readConnect() {
			return
		}
		if s.login != "SYSDBA" {
			s.t.Errorf("login on the wire = %q, want %q", s.login, "SYSDBA")
		}
		verifier := s.srpExchange("masterkey")
		if verifier == nil {
			return
		}
		serverKey = verifier.sessionKey
		s.sendResponse(0, "")
	})
	if err != nil {
		t.Fatalf("Negotiate failed: %v", err)
	}
	if len(serverKey) == 0 {
		t.Error("server derived no session key")
	}
}

func TestNegotiateWithWireCrypt(t *testing.T) {
	cfg := &Config{
		Database:  "employee",
		User:      "sysdba",
		Password:  "masterkey",
		WireCrypt: wire.WireCryptRequired,
	}

	err := startHandshakeTest(t, cfg, func(s *fakeServer) {
		if !s.readConnect() {
			return
		}
		verifier := s.srpExchange("masterkey")
		if verifier == nil {
			return
		}
		if !s.sendResponse(0, "") {
			return
		}
		s.serveCrypt(verifier.sessionKey)
	})
	if err != nil {
		t.Fatalf("Negotiate with required encryption failed: %v", err)
	}
}

// TestDeferredChallenge covers servers that accept without a challenge
// and issue it in a continuation round instead.
func TestDeferredChallenge(t *testing.T) {
	cfg := &Config{
		Database:  "employee",
		User:      "sysdba",
		Password:  "masterkey",
		WireCrypt: wire.WireCryptDisabled,
	}

	err := startHandshakeTest(t, cfg, func(s *fakeServer) {
		if !s.readConnect() {
			return
		}
		if !s.sendAcceptData(wire.ProtocolVersion16, nil, "Srp256", 0) {
			return
		}

		// First continuation carries the public key, not a proof.
		clientData := s.readContAuth()
		if clientData == nil {
			return
		}
		if !bytes.Equal(clientData, s.clientPublicHex) {
			s.t.Error("first continuation should repeat the client public key")
		}

		verifier := newSrpVerifier(s.t, s.login, "masterkey")
		ctx := context.Background()
		steps := []error{
			s.ch.WriteOpcode(ctx, wire.OpContAuth),
			s.ch.WriteBlock(ctx, verifier.challenge()),
			s.ch.WriteString(ctx, "Srp256"),
			s.ch.WriteString(ctx, "Srp256"),
			s.ch.WriteBlock(ctx, nil),
			s.ch.Flush(ctx),
		}
		for _, err := range steps {
			if err != nil {
				s.t.Errorf("sending continuation challenge: %v", err)
				return
			}
		}

		proof := s.readContAuth()
		if proof == nil {
			return
		}
		if !verifier.verify(s.t, s.clientPublicHex, proof, NewSrp256().(*srpClient).proofHash) {
			s.t.Error("client proof did not verify after deferred challenge")
		}
		s.sendResponse(0, "")
	})
	if err != nil {
		t.Fatalf("Negotiate with deferred challenge failed: %v", err)
	}
}

// TestCryptKeyCallbackRound verifies a key callback round is answered
// without advancing the exchange.
func TestCryptKeyCallbackRound(t *testing.T) {
	var callbackData []byte
	cfg := &Config{
		Database:  "employee",
		User:      "sysdba",
		Password:  "masterkey",
		WireCrypt: wire.WireCryptDisabled,
		KeyCallback: func(serverData []byte) []byte {
			callbackData = append([]byte(nil), serverData...)
			return []byte("callback-answer")
		},
	}

	err := startHandshakeTest(t, cfg, func(s *fakeServer) {
		if !s.readConnect() {
			return
		}
		verifier := s.srpExchange("masterkey")
		if verifier == nil {
			return
		}

		ctx := context.Background()
		if err := s.ch.WriteOpcode(ctx, wire.OpCryptKeyCallback); err != nil {
			s.t.Errorf("sending key callback: %v", err)
			return
		}
		if err := s.ch.WriteBlock(ctx, []byte("server-seed")); err != nil {
			s.t.Errorf("sending key callback data: %v", err)
			return
		}
		if err := s.ch.Flush(ctx); err != nil {
			s.t.Errorf("flushing key callback: %v", err)
			return
		}

		op, err := s.ch.ReadOpcode(ctx)
		if err != nil || op != wire.OpCryptKeyCallback {
			s.t.Errorf("callback answer opcode = %d, err = %v", op, err)
			return
		}
		answer, err := s.ch.ReadBlock(ctx)
		if err != nil {
			s.t.Errorf("callback answer data: %v", err)
			return
		}
		if string(answer) != "callback-answer" {
			s.t.Errorf("callback answer = %q", answer)
		}
		s.sendResponse(0, "")
	})
	if err != nil {
		t.Fatalf("Negotiate with key callback failed: %v", err)
	}
	if string(callbackData) != "server-seed" {
		t.Errorf("callback received %q, want %q", callbackData, "server-seed")
	}
}

func TestUnsupportedPluginRejected(t *testing.T) {
	cfg := &Config{Database: "employee", User: "sysdba", Password: "masterkey"}

	err := startHandshakeTest(t, cfg, func(s *fakeServer) {
		if !s.readConnect() {
			return
		}
		s.sendAcceptData(wire.ProtocolVersion16, nil, "Legacy_Auth", 0)
	})
	if !fberr.IsUnsupportedPluginError(err) {
		t.Fatalf("err = %v, want unsupported plugin error", err)
	}
}

func TestUnexpectedOpcodeIsProtocolError(t *testing.T) {
	cfg := &Config{Database: "employee", User: "sysdba", Password: "masterkey"}

	err := startHandshakeTest(t, cfg, func(s *fakeServer) {
		if !s.readConnect() {
			return
		}
		ctx := context.Background()
		if err := s.ch.WriteOpcode(ctx, 999); err != nil {
			return
		}
		s.ch.Flush(ctx)
	})
	if !fberr.IsProtocolError(err) {
		t.Fatalf("err = %v, want protocol error", err)
	}
}

func TestServerErrorStatusVector(t *testing.T) {
	cfg := &Config{Database: "employee", User: "sysdba", Password: "wrongpass"}

	err := startHandshakeTest(t, cfg, func(s *fakeServer) {
		if !s.readConnect() {
			return
		}
		verifier := newSrpVerifier(s.t, s.login, "masterkey")
		if !s.sendAcceptData(wire.ProtocolVersion16, verifier.challenge(), "Srp256", 0) {
			return
		}
		if s.readContAuth() == nil {
			return
		}
		s.sendResponse(335544472, "Your user name and password are not defined")
	})
	if !fberr.IsProtocolError(err) {
		t.Fatalf("err = %v, want protocol error from status vector", err)
	}
	if err.Error() == "" || !bytes.Contains([]byte(err.Error()), []byte("335544472")) {
		t.Errorf("error %q does not carry the server code", err)
	}
}

// TestRequiredEncryptionWithoutKey covers a server that authenticates
// the attachment without a proof exchange: no session key means no
// encryption, which a required policy must reject.
func TestRequiredEncryptionWithoutKey(t *testing.T) {
	cfg := &Config{
		Database:  "employee",
		User:      "sysdba",
		Password:  "masterkey",
		WireCrypt: wire.WireCryptRequired,
	}

	err := startHandshakeTest(t, cfg, func(s *fakeServer) {
		if !s.readConnect() {
			return
		}
		s.sendAcceptData(wire.ProtocolVersion16, nil, "Srp256", 1)
	})
	if !fberr.IsEncryptionPolicyError(err) {
		t.Fatalf("err = %v, want encryption policy error", err)
	}
}

// TestLegacyAccept covers servers answering with a bare accept: the
// attachment proceeds without attach-time authentication data.
func TestLegacyAccept(t *testing.T) {
	cfg := &Config{Database: "employee", User: "sysdba", Password: "masterkey"}

	err := startHandshakeTest(t, cfg, func(s *fakeServer) {
		if !s.readConnect() {
			return
		}
		ctx := context.Background()
		steps := []error{
			s.ch.WriteOpcode(ctx, wire.OpAccept),
			s.ch.WriteInt32(ctx, wire.ProtocolVersion13),
			s.ch.WriteInt32(ctx, archGeneric),
			s.ch.WriteInt32(ctx, ptypeLazySend),
			s.ch.Flush(ctx),
		}
		for _, err := range steps {
			if err != nil {
				s.t.Errorf("sending accept: %v", err)
				return
			}
		}
	})
	if err != nil {
		t.Fatalf("Negotiate with legacy accept failed: %v", err)
	}
}
