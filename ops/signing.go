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

package ops

import (
	"crypto/elliptic"

	wcrypto "github.com/warden-project/warden/crypto"
	"github.com/warden-project/warden/internal/wardenerr"
	"github.com/warden-project/warden/protocol"
	"github.com/warden-project/warden/secretstore"
)

// ImportSigningKey runs the authenticated "import" signing-key path:
// the client uploads 32 raw seed bytes (never a private
// scalar), and the server derives an ECDSA keypair deterministically from
// the seed plus (user_id, key_id) before storing it as a
// signing_key_pair.
func ImportSigningKey(c *Context) error {
	var req protocol.ImportSigningKeyRequest
	if err := c.Channel.Receive(&req); err != nil {
		return err
	}

	keyID, err := wcrypto.NewKeyID(c.UserID())
	if err != nil {
		return err
	}
	c.KeyID = keyID

	priv, err := wcrypto.DeriveSigningKey(req.Seed, c.UserID(), keyID)
	if err != nil {
		return wardenerr.Wrap(wardenerr.CodeCryptoFailure, err, "derive signing key")
	}

	secret := &secretstore.StoredSecret{
		KeyID:      keyID,
		AccountID:  c.AccountID(),
		SecretType: secretstore.SecretTypeSigningKeyPair,
		Bytes:      wcrypto.MarshalSigningKey(priv),
	}
	if err := c.Deps.Store.AddSecret(secret); err != nil {
		return err
	}

	return c.Channel.Send(&protocol.ImportSigningKeyResponse{
		KeyID:     keyID,
		PublicKey: elliptic.Marshal(wcrypto.SigningCurve, priv.PublicKey.X, priv.PublicKey.Y),
	})
}

// RemoteGenerateSigningKey runs the authenticated "remote generate" path:
// the server generates a fresh ECDSA keypair and stores it as a
// remote_signing_key, whose private scalar never leaves the server.
func RemoteGenerateSigningKey(c *Context) error {
	var req protocol.RemoteGenerateSigningKeyRequest
	if err := c.Channel.Receive(&req); err != nil {
		return err
	}

	priv, err := wcrypto.GenerateSigningKey()
	if err != nil {
		return wardenerr.Wrap(wardenerr.CodeCryptoFailure, err, "generate signing key")
	}

	keyID, err := wcrypto.NewKeyID(c.UserID())
	if err != nil {
		return err
	}
	c.KeyID = keyID

	secret := &secretstore.StoredSecret{
		KeyID:      keyID,
		AccountID:  c.AccountID(),
		SecretType: secretstore.SecretTypeRemoteSigningKey,
		Bytes:      wcrypto.MarshalSigningKey(priv),
	}
	if err := c.Deps.Store.AddSecret(secret); err != nil {
		return err
	}

	return c.Channel.Send(&protocol.RemoteGenerateSigningKeyResponse{
		KeyID:     keyID,
		PublicKey: elliptic.Marshal(wcrypto.SigningCurve, priv.PublicKey.X, priv.PublicKey.Y),
	})
}

// RemoteSignBytes runs the authenticated remote-sign path: the ownership
// check inside GetSecret (filtered to remote_signing_key) is what stops
// one account from signing with another's key.
func RemoteSignBytes(c *Context) error {
	var req protocol.RemoteSignBytesRequest
	if err := c.Channel.Receive(&req); err != nil {
		return err
	}
	c.KeyID = req.KeyID

	secret, err := c.Deps.Store.GetSecret(c.AccountID(), req.KeyID, secretstore.SecretFilter{SecretType: secretstore.SecretTypeRemoteSigningKey})
	if err != nil {
		return err
	}

	priv := wcrypto.UnmarshalSigningKey(secret.Bytes)
	sig, err := wcrypto.SignBytes(priv, req.Bytes)
	if err != nil {
		return wardenerr.Wrap(wardenerr.CodeCryptoFailure, err, "sign bytes")
	}

	return c.Channel.Send(&protocol.RemoteSignBytesResponse{Signature: sig})
}
