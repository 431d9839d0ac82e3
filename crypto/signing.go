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

package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"math/big"

	"github.com/warden-project/warden/internal/rng"
)

// SigningCurve is the standard curve used for every remote signing key.
var SigningCurve = elliptic.P256()

// GenerateSigningKey creates a fresh ECDSA keypair (the "remote
// generate" signing-key path).
func GenerateSigningKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(SigningCurve, rng.Reader{})
}

// DeriveSigningKey deterministically derives an ECDSA keypair from 32
// raw imported bytes plus (user_id, key_id), the "import" path: the
// client never uploads a raw private scalar, only the seed plus enough
// context that two accounts importing the same seed get distinct keys.
func DeriveSigningKey(seed []byte, userID []byte, keyID []byte) (*ecdsa.PrivateKey, error) {
	digest, err := deriveKey(seed, "signing-key", append(append([]byte{}, userID...), keyID...), 32)
	if err != nil {
		return nil, err
	}

	d := new(big.Int).SetBytes(digest)
	order := SigningCurve.Params().N
	d.Mod(d, order)
	if d.Sign() == 0 {
		d.SetInt64(1)
	}

	priv := new(ecdsa.PrivateKey)
	priv.PublicKey.Curve = SigningCurve
	priv.D = d
	priv.PublicKey.X, priv.PublicKey.Y = SigningCurve.ScalarBaseMult(d.Bytes())
	return priv, nil
}

// MarshalSigningKey encodes a private key's scalar for storage as a
// StoredSecret's ciphertext plaintext.
func MarshalSigningKey(priv *ecdsa.PrivateKey) []byte {
	return priv.D.FillBytes(make([]byte, 32))
}

// UnmarshalSigningKey reconstructs a private key from MarshalSigningKey's
// output.
func UnmarshalSigningKey(data []byte) *ecdsa.PrivateKey {
	priv := new(ecdsa.PrivateKey)
	priv.PublicKey.Curve = SigningCurve
	priv.D = new(big.Int).SetBytes(data)
	priv.PublicKey.X, priv.PublicKey.Y = SigningCurve.ScalarBaseMult(priv.D.Bytes())
	return priv
}

// SignBytes signs an arbitrary byte string with the server-held private
// key for remote_sign_bytes, hashing with SHA-256 before signing.
func SignBytes(priv *ecdsa.PrivateKey, message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	return ecdsa.SignASN1(rng.Reader{}, priv, digest[:])
}

// VerifySignature checks a signature produced by SignBytes.
func VerifySignature(pub *ecdsa.PublicKey, message, signature []byte) bool {
	digest := sha256.Sum256(message)
	return ecdsa.VerifyASN1(pub, digest[:], signature)
}
