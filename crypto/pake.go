// Copyright (C) 2025 warden-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// Package crypto is the cryptographic core: an asymmetric PAKE over
// Ristretto255 with a triple Diffie-Hellman key exchange, the key
// derivation hierarchy built on its export key, the AEAD used for
// secrets at rest, and ECDSA remote signing.
//
// The OPRF uses a single server-wide key held in ServerSetup; only the
// client's static keypair and the resulting envelope live in each
// account's registration blob. This keeps registration a single OPRF
// evaluation round trip instead of
// requiring the server to remember per-registration state between
// messages.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"

	ristretto "github.com/gtank/ristretto255"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"

	"github.com/warden-project/warden/internal/rng"
)

const (
	argonTime   = 3
	argonMemory = 1e5
	argonKeyLen = 32
)

// ServerSetup is the server's long-term PAKE material: an OPRF key shared
// by every account's registration and a static Diffie-Hellman keypair
// used in every session's triple-DH. Created once and persisted to the
// configured opaque_server_key path; reused on every subsequent start.
type ServerSetup struct {
	OPRFKey    *ristretto.Scalar
	PrivateKey *ristretto.Scalar
	PublicKey  *ristretto.Element
}

// GenerateServerSetup creates fresh server-wide PAKE material.
func GenerateServerSetup() (*ServerSetup, error) {
	k, err := randomScalar()
	if err != nil {
		return nil, err
	}
	ps, err := randomScalar()
	if err != nil {
		return nil, err
	}
	return &ServerSetup{
		OPRFKey:    k,
		PrivateKey: ps,
		PublicKey:  new(ristretto.Element).ScalarBaseMult(ps),
	}, nil
}

type serverSetupWire struct {
	OPRFKey    []byte `json:"oprf_key"`
	PrivateKey []byte `json:"private_key"`
}

// Marshal encodes the setup for storage at the configured path.
func (s *ServerSetup) Marshal() ([]byte, error) {
	return json.Marshal(serverSetupWire{
		OPRFKey:    s.OPRFKey.Encode(nil),
		PrivateKey: s.PrivateKey.Encode(nil),
	})
}

// UnmarshalServerSetup decodes a setup previously written by Marshal.
func UnmarshalServerSetup(data []byte) (*ServerSetup, error) {
	var wire serverSetupWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	k := new(ristretto.Scalar)
	if err := k.Decode(wire.OPRFKey); err != nil {
		return nil, err
	}
	ps := new(ristretto.Scalar)
	if err := ps.Decode(wire.PrivateKey); err != nil {
		return nil, err
	}
	return &ServerSetup{
		OPRFKey:    k,
		PrivateKey: ps,
		PublicKey:  new(ristretto.Element).ScalarBaseMult(ps),
	}, nil
}

// AuthCiphertext is an arbitrary-length ciphertext with its MAC tag.
// OPAQUE envelopes need a stronger property than ordinary AEAD modes
// ("key committal"), so registration uses AES-CTR with a separate
// HMAC-SHA3 key rather than e.g. AES-GCM.
type AuthCiphertext struct {
	Tag        []byte `json:"tag"`
	Ciphertext []byte `json:"ciphertext"`
}

type envelope struct {
	ClientPrivateKey []byte `json:"pu"`
	ClientPublicKey  []byte `json:"Pu"`
	ServerPublicKey  []byte `json:"Ps"`
}

// RegistrationRequest is the client's first (and only) registration
// message: the blinded password.
type RegistrationRequest struct {
	Alpha *ristretto.Element
}

// RegistrationResponse is the server's OPRF evaluation of the blinded
// password, plus its static public key.
type RegistrationResponse struct {
	Beta            *ristretto.Element
	ServerPublicKey *ristretto.Element
}

// RegistrationRecord is what the client finally uploads to be stored as
// the account's opaque_server_registration_blob.
type RegistrationRecord struct {
	ClientPublicKey *ristretto.Element
	Envelope        AuthCiphertext
}

// BeginRegistration blinds the password with a fresh random factor. The
// blinding factor r must be kept by the client until FinishRegistration.
func BeginRegistration(password string) (req *RegistrationRequest, blind *ristretto.Scalar, err error) {
	r, err := randomScalar()
	if err != nil {
		return nil, nil, err
	}
	x := sha3.Sum512([]byte(password))
	alpha := new(ristretto.Element).FromUniformBytes(x[:])
	alpha.ScalarMult(r, alpha)
	return &RegistrationRequest{Alpha: alpha}, r, nil
}

// EvaluateRegistration is the server's side of the single OPRF round
// trip: it never observes the password, only the blinded element.
func (s *ServerSetup) EvaluateRegistration(req *RegistrationRequest) *RegistrationResponse {
	beta := new(ristretto.Element).ScalarMult(s.OPRFKey, req.Alpha)
	return &RegistrationResponse{Beta: beta, ServerPublicKey: s.PublicKey}
}

// FinishRegistration unblinds the server's OPRF evaluation, derives a
// fresh client static keypair, and seals it into an envelope the server
// will store verbatim as the account's registration blob.
func FinishRegistration(resp *RegistrationResponse, password string, blind *ristretto.Scalar) (*RegistrationRecord, error) {
	x := sha3.Sum512([]byte(password))
	rw := oprfUnblind(resp.Beta, blind, x)

	hmacKey, cipherKey := deriveEnvelopeKeys(rw)

	pu, err := randomScalar()
	if err != nil {
		return nil, err
	}
	Pu := new(ristretto.Element).ScalarBaseMult(pu)

	plaintext, err := json.Marshal(envelope{
		ClientPrivateKey: pu.Encode(nil),
		ClientPublicKey:  Pu.Encode(nil),
		ServerPublicKey:  resp.ServerPublicKey.Encode(nil),
	})
	if err != nil {
		return nil, err
	}

	ciphertext, tag, err := sealEnvelope(cipherKey, hmacKey, plaintext)
	if err != nil {
		return nil, err
	}

	return &RegistrationRecord{
		ClientPublicKey: Pu,
		Envelope:        AuthCiphertext{Tag: tag, Ciphertext: ciphertext},
	}, nil
}

// AuthRequest is the client's login message: a fresh OPRF blinding of the
// password plus a fresh ephemeral Diffie-Hellman share.
type AuthRequest struct {
	Alpha *ristretto.Element
	Xu    *ristretto.Element
}

// AuthResponse is the server's reply: its OPRF evaluation, its ephemeral
// share, the stored envelope, and a confirmation MAC proving it holds the
// same shared secret the client is about to derive.
type AuthResponse struct {
	Beta            *ristretto.Element
	Xs              *ristretto.Element
	Envelope        AuthCiphertext
	ServerConfirm   []byte
}

// BeginAuth blinds the password for a fresh login attempt.
func BeginAuth(password string) (req *AuthRequest, blind *ristretto.Scalar, xu *ristretto.Scalar, err error) {
	r, err := randomScalar()
	if err != nil {
		return nil, nil, nil, err
	}
	xuScalar, err := randomScalar()
	if err != nil {
		return nil, nil, nil, err
	}
	x := sha3.Sum512([]byte(password))
	alpha := new(ristretto.Element).FromUniformBytes(x[:])
	alpha.ScalarMult(r, alpha)

	return &AuthRequest{
		Alpha: alpha,
		Xu:    new(ristretto.Element).ScalarBaseMult(xuScalar),
	}, r, xuScalar, nil
}

// SessionKeys holds the outputs of a completed key exchange: a 64-byte
// session key for transport confidentiality and a 64-byte export key
// that seeds the client-side key derivation hierarchy. The session key
// is fresh per login; the export key is a pure function of the password
// and the server's OPRF key, so the same password always reproduces the
// same export key and therefore the same master key. Only FinishAuth
// populates ExportKey — the server's half never sees it. Never sent over
// the wire.
type SessionKeys struct {
	SessionKey []byte
	ExportKey  []byte
}

// EvaluateAuth is the server's side of login: it looks up the account's
// stored public key and envelope (by account_id, via the caller), runs
// the OPRF, and performs its half of the triple-DH. The returned
// expectedClientConfirm is never sent to the client; the caller checks it
// against AuthFinishRequest.Finalization with VerifyClientConfirm.
func (s *ServerSetup) EvaluateAuth(req *AuthRequest, clientPublicKey *ristretto.Element, env AuthCiphertext) (resp *AuthResponse, keys SessionKeys, expectedClientConfirm []byte, err error) {
	beta := new(ristretto.Element).ScalarMult(s.OPRFKey, req.Alpha)

	xs, err := randomScalar()
	if err != nil {
		return nil, SessionKeys{}, nil, err
	}
	Xs := new(ristretto.Element).ScalarBaseMult(xs)

	transcript := tripleDHServer(s.PrivateKey, xs, clientPublicKey, req.Xu)
	sessionKey, serverConfirm, clientConfirm := deriveSessionMaterial(transcript)
	keys = SessionKeys{SessionKey: sessionKey}

	return &AuthResponse{
		Beta:          beta,
		Xs:            Xs,
		Envelope:      env,
		ServerConfirm: serverConfirm,
	}, keys, clientConfirm, nil
}

// FinishAuth is the client's side of login: it recovers its static
// keypair from the envelope, runs its half of the triple-DH, verifies
// the server's confirmation MAC, and returns the derived session
// material plus its own confirmation MAC to send back to the server.
func FinishAuth(resp *AuthResponse, password string, blind *ristretto.Scalar, xu *ristretto.Scalar) (SessionKeys, []byte, error) {
	x := sha3.Sum512([]byte(password))
	rw := oprfUnblind(resp.Beta, blind, x)

	hmacKey, cipherKey := deriveEnvelopeKeys(rw)
	plaintext, err := openEnvelope(cipherKey, hmacKey, resp.Envelope)
	if err != nil {
		return SessionKeys{}, nil, err
	}

	var env envelope
	if err := json.Unmarshal(plaintext, &env); err != nil {
		return SessionKeys{}, nil, err
	}

	pu := new(ristretto.Scalar)
	if err := pu.Decode(env.ClientPrivateKey); err != nil {
		return SessionKeys{}, nil, err
	}
	Ps := new(ristretto.Element)
	if err := Ps.Decode(env.ServerPublicKey); err != nil {
		return SessionKeys{}, nil, err
	}

	transcript := tripleDHClient(pu, xu, Ps, resp.Xs)
	sessionKey, serverConfirm, clientConfirm := deriveSessionMaterial(transcript)

	if subtle.ConstantTimeCompare(serverConfirm, resp.ServerConfirm) != 1 {
		return SessionKeys{}, nil, errors.New("crypto: server authentication failed")
	}

	return SessionKeys{SessionKey: sessionKey, ExportKey: deriveExportKey(rw)}, clientConfirm, nil
}

// VerifyClientConfirm lets the server check the client's final
// confirmation MAC against the transcript it computed in EvaluateAuth:
// the caller keeps EvaluateAuth's expectedClientConfirm and compares it
// here, in constant time, with the client's finalization.
func VerifyClientConfirm(expected, actual []byte) bool {
	return subtle.ConstantTimeCompare(expected, actual) == 1
}

func randomScalar() (*ristretto.Scalar, error) {
	b, err := rng.Bytes(64)
	if err != nil {
		return nil, err
	}
	return new(ristretto.Scalar).FromUniformBytes(b), nil
}

// oprfUnblind recovers H(x, H'(x)^k) from the server's blinded
// evaluation beta = (H'(x)^r)^k, the blinding factor r, and the
// original input x, hardening the result with Argon2id.
func oprfUnblind(beta *ristretto.Element, r *ristretto.Scalar, x [64]byte) []byte {
	rInv := new(ristretto.Scalar).Invert(r)
	unblinded := new(ristretto.Element).ScalarMult(rInv, beta)
	hash := sha3.Sum512(append(x[:], unblinded.Encode(nil)...))
	return argon2.IDKey(hash[:], nil, argonTime, argonMemory, 4, argonKeyLen)
}

func deriveEnvelopeKeys(rw []byte) (hmacKey, cipherKey []byte) {
	h := hkdf.New(sha3.New512, rw, nil, []byte("warden-envelope"))
	cipherKey = make([]byte, 32)
	hmacKey = make([]byte, 32)
	if _, err := io.ReadFull(h, cipherKey); err != nil {
		panic("crypto: hkdf expand failed")
	}
	if _, err := io.ReadFull(h, hmacKey); err != nil {
		panic("crypto: hkdf expand failed")
	}
	return
}

func sealEnvelope(cipherKey, hmacKey, plaintext []byte) (ciphertext, tag []byte, err error) {
	block, err := aes.NewCipher(cipherKey)
	if err != nil {
		return nil, nil, err
	}
	iv := make([]byte, block.BlockSize())
	ctr := cipher.NewCTR(block, iv)
	ciphertext = make([]byte, len(plaintext))
	ctr.XORKeyStream(ciphertext, plaintext)

	mac := hmac.New(sha3.New256, hmacKey)
	mac.Write(ciphertext)
	return ciphertext, mac.Sum(nil), nil
}

func openEnvelope(cipherKey, hmacKey []byte, env AuthCiphertext) ([]byte, error) {
	mac := hmac.New(sha3.New256, hmacKey)
	mac.Write(env.Ciphertext)
	if subtle.ConstantTimeCompare(mac.Sum(nil), env.Tag) != 1 {
		return nil, errors.New("crypto: envelope authentication failed")
	}

	block, err := aes.NewCipher(cipherKey)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, block.BlockSize())
	ctr := cipher.NewCTR(block, iv)
	plaintext := make([]byte, len(env.Ciphertext))
	ctr.XORKeyStream(plaintext, env.Ciphertext)
	return plaintext, nil
}

// tripleDHServer is the server's half of the 3DH key exchange. The
// concatenation order is role-specific: the server's xs·Pu equals the
// client's pu·Xs and its ps·Xu equals the client's xu·Ps, so both sides
// hash the three shared points in the same order and arrive at the same
// transcript.
func tripleDHServer(ps, xs *ristretto.Scalar, Pu, Xu *ristretto.Element) [32]byte {
	xsPu := new(ristretto.Element).ScalarMult(xs, Pu)
	psXu := new(ristretto.Element).ScalarMult(ps, Xu)
	xsXu := new(ristretto.Element).ScalarMult(xs, Xu)

	transcript := append(xsPu.Encode(nil), psXu.Encode(nil)...)
	transcript = append(transcript, xsXu.Encode(nil)...)
	return sha3.Sum256(transcript)
}

// tripleDHClient is the client's half of the 3DH key exchange; see
// tripleDHServer for the ordering contract.
func tripleDHClient(pu, xu *ristretto.Scalar, Ps, Xs *ristretto.Element) [32]byte {
	puXs := new(ristretto.Element).ScalarMult(pu, Xs)
	xuPs := new(ristretto.Element).ScalarMult(xu, Ps)
	xuXs := new(ristretto.Element).ScalarMult(xu, Xs)

	transcript := append(puXs.Encode(nil), xuPs.Encode(nil)...)
	transcript = append(transcript, xuXs.Encode(nil)...)
	return sha3.Sum256(transcript)
}

// deriveSessionMaterial expands the 3DH transcript hash into the
// session key and both confirmation MACs via one HKDF stream.
func deriveSessionMaterial(transcript [32]byte) (sessionKey, serverConfirm, clientConfirm []byte) {
	h := hkdf.New(sha3.New512, transcript[:], nil, []byte("warden-session"))

	sessionKey = make([]byte, 64)
	serverConfirm = make([]byte, 32)
	clientConfirm = make([]byte, 32)

	for _, buf := range [][]byte{sessionKey, serverConfirm, clientConfirm} {
		if _, err := io.ReadFull(h, buf); err != nil {
			panic("crypto: hkdf expand failed")
		}
	}
	return
}

// deriveExportKey expands the hardened OPRF output into the 64-byte
// export key. rw depends only on the password and the server's OPRF
// key, which keeps the export key (and everything derived from it)
// stable across logins.
func deriveExportKey(rw []byte) []byte {
	h := hkdf.New(sha3.New512, rw, nil, []byte("warden-export"))
	exportKey := make([]byte, 64)
	if _, err := io.ReadFull(h, exportKey); err != nil {
		panic("crypto: hkdf expand failed")
	}
	return exportKey
}
