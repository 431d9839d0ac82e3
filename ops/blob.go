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
	"github.com/warden-project/warden/internal/wardenerr"
	"github.com/warden-project/warden/protocol"
	"github.com/warden-project/warden/secretstore"
)

// StoreServerEncryptedBlob runs the authenticated opaque-blob store:
// the server, not the client, encrypts the bytes, under
// remote_storage_key, bound to (user_id, key_id). Oversize blobs fail
// BlobSizeTooLarge before anything is encrypted or stored.
func StoreServerEncryptedBlob(c *Context) error {
	var req protocol.StoreBlobRequest
	if err := c.Channel.Receive(&req); err != nil {
		return err
	}
	if int64(len(req.Blob)) > c.Deps.MaxBlobSize {
		return wardenerr.ErrBlobTooLarge
	}

	keyID, err := wcrypto.NewKeyID(c.UserID())
	if err != nil {
		return err
	}
	c.KeyID = keyID

	ciphertext, err := wcrypto.Seal(
		c.Deps.RemoteStorageKey,
		wcrypto.SecretAssociatedData(c.UserID(), keyID, secretstore.SecretTypeServerEncryptedBlob.String()),
		req.Blob,
	)
	if err != nil {
		return wardenerr.Wrap(wardenerr.CodeCryptoFailure, err, "seal blob")
	}

	secret := &secretstore.StoredSecret{
		KeyID:      keyID,
		AccountID:  c.AccountID(),
		SecretType: secretstore.SecretTypeServerEncryptedBlob,
		Bytes:      ciphertext,
	}
	if err := c.Deps.Store.AddSecret(secret); err != nil {
		return err
	}

	return c.Channel.Send(&protocol.StoreBlobResponse{KeyID: keyID})
}

// RetrieveServerEncryptedBlob runs the authenticated opaque-blob fetch:
// the server decrypts under remote_storage_key and returns the exact
// original bytes.
func RetrieveServerEncryptedBlob(c *Context) error {
	var req protocol.RetrieveBlobRequest
	if err := c.Channel.Receive(&req); err != nil {
		return err
	}
	c.KeyID = req.KeyID

	secret, err := c.Deps.Store.GetSecret(c.AccountID(), req.KeyID, secretstore.SecretFilter{SecretType: secretstore.SecretTypeServerEncryptedBlob})
	if err != nil {
		return err
	}

	blob, err := wcrypto.Open(
		c.Deps.RemoteStorageKey,
		wcrypto.SecretAssociatedData(c.UserID(), req.KeyID, secretstore.SecretTypeServerEncryptedBlob.String()),
		secret.Bytes,
	)
	if err != nil {
		return wardenerr.ErrInvalidCiphertext
	}

	if err := c.Deps.Store.MarkRetrieved(c.AccountID(), req.KeyID); err != nil {
		return err
	}

	return c.Channel.Send(&protocol.RetrieveBlobResponse{Blob: blob})
}
