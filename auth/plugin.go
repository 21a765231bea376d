// Package auth drives the connection handshake: plugin selection, the
// multi-round proof exchange, session key derivation and optional wire
// encryption activation.
package auth

// Plugin is one authentication mechanism. A plugin instance lives for a
// single connection attempt; Release drops its key material and must be
// called on completion or abandonment.
type Plugin interface {
	// Name is the plugin name as negotiated on the wire.
	Name() string

	// ClientData is the plugin-specific payload offered before any
	// server challenge is seen (the client public key for password
	// plugins, an identity token for integrated ones).
	ClientData() []byte

	// ComputeProof consumes the server's challenge data and returns the
	// client proof to send. login is already normalized.
	ComputeProof(login, password string, serverData []byte) ([]byte, error)

	// SessionKey returns the derived session key once ComputeProof has
	// run, or nil.
	SessionKey() []byte

	// Release drops cryptographic material. Safe to call repeatedly.
	Release()
}

// trustedPlugin performs OS-integrated authentication: the server
// validates the attached identity token out of band, so there is no
// password proof and no session key.
type trustedPlugin struct{}

// NewTrusted creates the OS-integrated plugin.
func NewTrusted() Plugin {
	return trustedPlugin{}
}

func (trustedPlugin) Name() string { return "Trusted" }

func (trustedPlugin) ClientData() []byte {
	return []byte(osUserName() + "@" + clientHostName())
}

func (trustedPlugin) ComputeProof(login, password string, serverData []byte) ([]byte, error) {
	// The server continues the exchange by validating the identity
	// token; the client just echoes its data.
	return nil, nil
}

func (trustedPlugin) SessionKey() []byte { return nil }
func (trustedPlugin) Release()           {}

// SelectPlugins returns the plugins offered for a configured identity,
// in preference order. The result is a pure function of the identity
// kind: integrated auth offers exactly the OS plugin; interactive auth
// offers both password plugins, strongest first.
func SelectPlugins(trusted bool) []Plugin {
	if trusted {
		return []Plugin{NewTrusted()}
	}
	return []Plugin{NewSrp256(), NewSrp()}
}
