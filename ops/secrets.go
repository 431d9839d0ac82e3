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
	wcrypto "github.com/warden-project/warden/crypto"
	"github.com/warden-project/warden/protocol"
	"github.com/warden-project/warden/secretstore"
)

// GenerateSecret runs the authenticated arbitrary-secret allocation:
// the server mints a fresh KeyId and hands it to the client, which
// encrypts its own secret under StorageKey with AAD bound to
// (user_id, key_id, secret_type) and uploads the ciphertext.
func GenerateSecret(c *Context) error {
	keyID, err := wcrypto.NewKeyID(c.UserID())
	if err != nil {
		return err
	}
	c.KeyID = keyID

	if err := c.Channel.Send(&protocol.GenerateSecretKeyID{KeyID: keyID}); err != nil {
		return err
	}

	var upload protocol.GenerateSecretUpload
	if err := c.Channel.Receive(&upload); err != nil {
		return err
	}

	secret := &secretstore.StoredSecret{
		KeyID:      keyID,
		AccountID:  c.AccountID(),
		SecretType: secretstore.SecretTypeArbitrary,
		Bytes:      upload.Ciphertext,
	}
	if err := c.Deps.Store.AddSecret(secret); err != nil {
		return err
	}

	return c.Channel.Send(&protocol.GenerateSecretAck{Success: true})
}

// RetrieveSecret runs the authenticated fetch. The server returns the
// same ciphertext regardless of RetrieveContext: Null means "confirm
// existence only" at the client, which simply discards the payload.
func RetrieveSecret(c *Context) error {
	var req protocol.RetrieveSecretRequest
	if err := c.Channel.Receive(&req); err != nil {
		return err
	}
	c.KeyID = req.KeyID

	secret, err := c.Deps.Store.GetSecret(c.AccountID(), req.KeyID, secretstore.SecretFilter{Any: true})
	if err != nil {
		return err
	}

	if err := c.Deps.Store.MarkRetrieved(c.AccountID(), req.KeyID); err != nil {
		return err
	}

	return c.Channel.Send(&protocol.RetrieveSecretResponse{Ciphertext: secret.Bytes})
}

// DeleteKey runs the authenticated deletion: removing a non-existent
// key fails KeyNotFound, surfaced directly by the store.
func DeleteKey(c *Context) error {
	var req protocol.DeleteKeyRequest
	if err := c.Channel.Receive(&req); err != nil {
		return err
	}
	c.KeyID = req.KeyID

	if err := c.Deps.Store.DeleteSecret(c.AccountID(), req.KeyID); err != nil {
		return err
	}

	return c.Channel.Send(&protocol.DeleteKeyResponse{Success: true})
}
