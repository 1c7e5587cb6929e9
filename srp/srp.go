// Package srp implements the client role of the SRP-6a password
// authenticated key exchange as spoken by Luanti servers: the RFC 5054
// 2048-bit group with generator 2 and SHA-256 throughout.
//
// The dialect is particular about integer encodings: the public value A
// is transmitted zero-padded to the group length, while every hash input
// except N (and g inside k) uses the minimal big-endian encoding. A
// generic SRP library will not interoperate.
package srp

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"

	"github.com/pkg/errors"
)

// The 2048-bit safe prime group from RFC 5054, as hardcoded in the
// Luanti server.
const groupNHex = "AC6BDB41324A9A9BF166DE5E1389582FAF72B6651987EE07" +
	"FC3192943DB56050A37329CBB4A099ED8193E0757767A13DD5" +
	"2312AB4B03310DCD7F48A9DA04FD50E8083969EDB767B0CF609" +
	"5179A163AB3661A05FBD5FAAAE82918A9962F0B93B855F97993" +
	"EC975EEAA80D740ADBF4FF747359D041D5C33EA71D281E446B14" +
	"773BCA97B43A23FB801676BD207A436C6481F1D2B9078717461A" +
	"5B9D32E688F87748544523B524B0D57D5EA77A2775D2ECFA032C" +
	"FBDBF52FB3786160279004E57AE6AF874E7303CE53299CCC041C7" +
	"BC308D82A5698F3A8D0C38271AE35F8E9DBFBB694B5C803D89F7A" +
	"E435DE236D525F54759B65E372FCD68EF20FA7111F9E4AFF73"

var (
	groupN, _ = new(big.Int).SetString(groupNHex, 16)
	groupG    = big.NewInt(2)
	two       = big.NewInt(2)
)

// groupLen is the byte length of N, used wherever the dialect pads.
var groupLen = (groupN.BitLen() + 7) / 8

const saltLen = 16

// Exchange is one SRP authentication or registration attempt. It is
// created per connection attempt and must not be reused once the
// session key is established or the attempt failed.
type Exchange struct {
	username string // lowercased identity
	password string

	a    *big.Int // private exponent
	pubA *big.Int // A = g^a mod N

	salt        []byte
	pubB        *big.Int
	key         []byte // K = H(S)
	proofM      []byte
	serverProof []byte // expected H(A | M | K)
}

// New creates an exchange for the given credentials, generating the
// private exponent. The username is matched case-insensitively by the
// server, so it is lowercased here once and used in that form for
// every derivation.
func New(username, password string) (*Exchange, error) {
	// a in [2, N-1].
	r, err := rand.Int(rand.Reader, new(big.Int).Sub(groupN, two))
	if err != nil {
		return nil, errors.Wrap(err, "generating SRP private exponent")
	}
	e := &Exchange{
		username: strings.ToLower(username),
		password: password,
		a:        r.Add(r, two),
	}
	e.pubA = new(big.Int).Exp(groupG, e.a, groupN)
	return e, nil
}

// Begin returns the identity and the public value A, zero-padded to the
// group length for transmission.
func (e *Exchange) Begin() (username string, bytesA []byte) {
	return e.username, padBytes(e.pubA, groupLen)
}

// ProcessChallenge consumes the server challenge (salt, B) and returns
// the client proof M. A challenge with B ≡ 0 (mod N) or a zero
// scrambling parameter is a protocol violation and aborts the attempt.
func (e *Exchange) ProcessChallenge(salt, bytesB []byte) ([]byte, error) {
	e.salt = append([]byte(nil), salt...)
	e.pubB = new(big.Int).SetBytes(bytesB)

	if new(big.Int).Mod(e.pubB, groupN).Sign() == 0 {
		return nil, errors.New("server sent invalid public value B")
	}

	u := intHash(minBytes(e.pubA), minBytes(e.pubB))
	if u.Sign() == 0 {
		return nil, errors.New("scrambling parameter u is zero")
	}

	x := e.deriveX(e.salt)
	v := new(big.Int).Exp(groupG, x, groupN)
	k := intHash(padBytes(groupN, groupLen), padBytes(groupG, groupLen))

	// S = (B - k*v) ^ (a + u*x) mod N
	base := new(big.Int).Mul(k, v)
	base.Mod(base, groupN)
	base.Sub(e.pubB, base)
	base.Mod(base, groupN)
	exp := new(big.Int).Mul(u, x)
	exp.Add(exp, e.a)
	s := new(big.Int).Exp(base, exp, groupN)

	e.key = hash(minBytes(s))
	e.proofM = e.proof()
	e.serverProof = hash(minBytes(e.pubA), e.proofM, e.key)
	return e.proofM, nil
}

// VerifyServerProof checks the server's H(A|M|K) against the locally
// computed value. A mismatch means the server does not actually know
// the verifier and authentication must fail.
func (e *Exchange) VerifyServerProof(proof []byte) bool {
	return e.serverProof != nil && bytes.Equal(e.serverProof, proof)
}

// SessionKey returns the shared key K, or nil before the challenge has
// been processed.
func (e *Exchange) SessionKey() []byte {
	return e.key
}

// RegistrationMaterial produces what FIRST_SRP registration needs: a
// fresh random salt, the verifier v = g^x mod N, and whether the
// password is empty (the server applies policy to that).
func (e *Exchange) RegistrationMaterial() (salt, verifier []byte, emptyPassword bool, err error) {
	salt = make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, false, errors.Wrap(err, "generating registration salt")
	}
	x := e.deriveX(salt)
	v := new(big.Int).Exp(groupG, x, groupN)
	return salt, minBytes(v), e.password == "", nil
}

// deriveX computes x = H(salt | H(username ":" password)).
func (e *Exchange) deriveX(salt []byte) *big.Int {
	inner := hash([]byte(e.username + ":" + e.password))
	return intHash(salt, inner)
}

// proof computes the client proof
// M = H((H(N) xor H(g)) | H(username) | salt | A | B | K), with N
// padded and g minimal inside the xor term.
func (e *Exchange) proof() []byte {
	hn := hash(padBytes(groupN, groupLen))
	hg := hash(minBytes(groupG))
	hxor := make([]byte, len(hn))
	for i := range hn {
		hxor[i] = hn[i] ^ hg[i]
	}
	return hash(hxor, hash([]byte(e.username)), e.salt,
		minBytes(e.pubA), minBytes(e.pubB), e.key)
}

func hash(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func intHash(parts ...[]byte) *big.Int {
	return new(big.Int).SetBytes(hash(parts...))
}

// minBytes is the minimal big-endian encoding of v (empty for zero).
func minBytes(v *big.Int) []byte {
	return v.Bytes()
}

// padBytes encodes v zero-padded to size bytes.
func padBytes(v *big.Int, size int) []byte {
	b := v.Bytes()
	if len(b) > size {
		panic(fmt.Sprintf("srp: %d-byte integer exceeds %d-byte field", len(b), size))
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}
