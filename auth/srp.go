package auth

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"math/big"

	"github.com/tomyedwab/fbwire/fberr"
)

// The SRP group shared by every server: a 1024-bit safe prime with
// generator 2.
const srpPrimeHex = "E67D2E994B2F900C3F41F08F5BB2627ED0D49EE1FE767A52" +
	"EFCD565CD6E768812C3E1E9CE8F0A8BEA6CB13CD29DDEBF7" +
	"A96D4A93B55D488DF099A15C89DCB0640738EB2CDEA9FC31" +
	"B02E06C1CD18D7818D8A0E263B3834D2CF00750E6BB1F7DC" +
	"7CBAA71A4AEFFAAFEC1D9E8861C1FDE2D9619FB3BD7F4FF0" +
	"9E4E62A3F74F"

var (
	srpPrime     = mustParseHex(srpPrimeHex)
	srpGenerator = big.NewInt(2)
	// k = H(N, g), both operands left-padded to the prime's width.
	srpK = hashBig(sha1.New, padToPrime(srpPrime), padToPrime(srpGenerator))
)

func mustParseHex(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("auth: bad SRP prime constant")
	}
	return n
}

func padToPrime(n *big.Int) []byte {
	return n.FillBytes(make([]byte, len(srpPrime.Bytes())))
}

func hashBig(newHash func() hash.Hash, parts ...[]byte) *big.Int {
	h := newHash()
	for _, p := range parts {
		h.Write(p)
	}
	return new(big.Int).SetBytes(h.Sum(nil))
}

// srpClient implements the password-proof key exchange. The SHA-256
// variant differs from the base plugin only in the hash used for the
// client proof; the session key is always SHA-1 of the shared secret.
type srpClient struct {
	name      string
	proofHash func() hash.Hash

	private *big.Int // ephemeral a
	public  *big.Int // A = g^a mod N

	sessionKey []byte
	released   bool
}

// NewSrp creates the SHA-1-proof SRP plugin.
func NewSrp() Plugin {
	return newSrpClient("Srp", sha1.New)
}

// NewSrp256 creates the SHA-256-proof SRP plugin, preferred by modern
// servers.
func NewSrp256() Plugin {
	return newSrpClient("Srp256", sha256.New)
}

func newSrpClient(name string, proofHash func() hash.Hash) *srpClient {
	private, err := rand.Int(rand.Reader, srpPrime)
	if err != nil {
		// The platform CSPRNG failing is not recoverable at this layer.
		panic(fmt.Sprintf("auth: entropy source failed: %v", err))
	}
	return &srpClient{
		name:      name,
		proofHash: proofHash,
		private:   private,
		public:    new(big.Int).Exp(srpGenerator, private, srpPrime),
	}
}

func (c *srpClient) Name() string {
	return c.name
}

// ClientData returns the hex-encoded client public key sent in the
// identification block and in continuation messages before the server's
// challenge arrives.
func (c *srpClient) ClientData() []byte {
	return []byte(fmt.Sprintf("%X", c.public))
}

// ComputeProof derives the shared session key from the server challenge
// (salt and server public key) and returns the hex-encoded client proof.
// The login must already be normalized.
func (c *srpClient) ComputeProof(login, password string, serverData []byte) ([]byte, error) {
	salt, serverPub, err := parseServerChallenge(serverData)
	if err != nil {
		return nil, err
	}
	if new(big.Int).Mod(serverPub, srpPrime).Sign() == 0 {
		return nil, fberr.NewProtocolError("server public key is zero modulo the group prime")
	}

	// x = H(salt, H(login:password)), u = H(A, B)
	inner := sha1.Sum([]byte(login + ":" + password))
	x := hashBig(sha1.New, salt, inner[:])
	u := hashBig(sha1.New, c.public.Bytes(), serverPub.Bytes())

	// S = (B - k*g^x) ^ (a + u*x) mod N
	gx := new(big.Int).Exp(srpGenerator, x, srpPrime)
	base := new(big.Int).Sub(serverPub, new(big.Int).Mul(srpK, gx))
	base.Mod(base, srpPrime)
	exp := new(big.Int).Add(c.private, new(big.Int).Mul(u, x))
	secret := new(big.Int).Exp(base, exp, srpPrime)

	key := sha1.Sum(secret.Bytes())
	c.sessionKey = key[:]

	// M = H(H(N) xor H(g), H(login), salt, A, B, K)
	hn := hashBig(sha1.New, srpPrime.Bytes())
	hg := hashBig(sha1.New, srpGenerator.Bytes())
	hn.Xor(hn, hg)
	hl := sha1.Sum([]byte(login))

	h := c.proofHash()
	h.Write(hn.Bytes())
	h.Write(hl[:])
	h.Write(salt)
	h.Write(c.public.Bytes())
	h.Write(serverPub.Bytes())
	h.Write(c.sessionKey)
	proof := h.Sum(nil)

	return []byte(fmt.Sprintf("%X", proof)), nil
}

func (c *srpClient) SessionKey() []byte {
	return c.sessionKey
}

// Release drops the ephemeral key material. Zeroing is hygiene, not a
// correctness requirement.
func (c *srpClient) Release() {
	if c.released {
		return
	}
	c.released = true
	if c.private != nil {
		c.private.SetInt64(0)
	}
	for i := range c.sessionKey {
		c.sessionKey[i] = 0
	}
	c.sessionKey = nil
}

// parseServerChallenge splits the accept-data payload: a 2-byte
// little-endian length-prefixed salt followed by a length-prefixed
// hex-encoded server public key.
func parseServerChallenge(data []byte) (salt []byte, serverPub *big.Int, err error) {
	salt, rest, err := readPrefixed(data)
	if err != nil {
		return nil, nil, err
	}
	pubHex, _, err := readPrefixed(rest)
	if err != nil {
		return nil, nil, err
	}
	pubBytes, err := hex.DecodeString(string(pubHex))
	if err != nil {
		return nil, nil, fberr.NewProtocolError("server public key is not valid hex")
	}
	return salt, new(big.Int).SetBytes(pubBytes), nil
}

func readPrefixed(data []byte) (payload, rest []byte, err error) {
	if len(data) < 2 {
		return nil, nil, fberr.NewProtocolError("truncated server challenge data")
	}
	n := int(data[0]) | int(data[1])<<8
	if len(data) < 2+n {
		return nil, nil, fberr.NewProtocolErrorf("server challenge declares %d bytes, %d available", n, len(data)-2)
	}
	return data[2 : 2+n], data[2+n:], nil
}
