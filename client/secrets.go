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

package client

import (
	"context"

	wcrypto "github.com/warden-project/warden/crypto"
	"github.com/warden-project/warden/internal/wardenerr"
	"github.com/warden-project/warden/protocol"
	"github.com/warden-project/warden/secretstore"
)

// GenerateSecret runs the authenticated arbitrary-secret allocation: the
// server hands out a fresh key id, and the client seals secret under
// StorageKey with AAD bound to (user_id, key_id, secret_type) before
// uploading the ciphertext.
func (c *Client) GenerateSecret(ctx context.Context, secret []byte) ([]byte, ResponseMetadata, error) {
	if err := c.ensureStorageKey(ctx); err != nil {
		return nil, ResponseMetadata{}, err
	}

	ch, meta, err := c.openChannel(ctx, protocol.ActionGenerateSecret)
	if err != nil {
		return nil, meta, err
	}

	var keyIDMsg protocol.GenerateSecretKeyID
	if err := ch.Receive(&keyIDMsg); err != nil {
		return nil, meta, err
	}

	c.mu.Lock()
	userID := c.userID
	storageKey := c.storageKey
	c.mu.Unlock()

	ad := wcrypto.SecretAssociatedData(userID, keyIDMsg.KeyID, secretstore.SecretTypeArbitrary.String())
	ciphertext, err := wcrypto.Seal(storageKey, ad, secret)
	if err != nil {
		return nil, meta, wardenerr.Wrap(wardenerr.CodeCryptoFailure, err, "seal secret")
	}

	if err := ch.Send(&protocol.GenerateSecretUpload{Ciphertext: ciphertext}); err != nil {
		return nil, meta, err
	}

	var ack protocol.GenerateSecretAck
	if err := ch.Receive(&ack); err != nil {
		return nil, meta, err
	}
	if !ack.Success {
		return nil, meta, wardenerr.New(wardenerr.CodeUnknown, "generate secret did not succeed")
	}

	return keyIDMsg.KeyID, meta, nil
}

// RetrieveSecret runs the authenticated fetch. With localOnly the
// returned ciphertext is decrypted locally and the plaintext returned;
// otherwise the request carries the Null context, the server still sends
// the ciphertext, and the call discards it and returns nil bytes once the
// secret's existence is confirmed.
func (c *Client) RetrieveSecret(ctx context.Context, keyID []byte, localOnly bool) ([]byte, ResponseMetadata, error) {
	if err := c.ensureStorageKey(ctx); err != nil {
		return nil, ResponseMetadata{}, err
	}

	ch, meta, err := c.openChannel(ctx, protocol.ActionRetrieveSecret)
	if err != nil {
		return nil, meta, err
	}

	rctx := protocol.RetrieveContextNull
	if localOnly {
		rctx = protocol.RetrieveContextLocalOnly
	}
	if err := ch.Send(&protocol.RetrieveSecretRequest{KeyID: keyID, Context: rctx}); err != nil {
		return nil, meta, err
	}

	var resp protocol.RetrieveSecretResponse
	if err := ch.Receive(&resp); err != nil {
		return nil, meta, err
	}
	if !localOnly {
		return nil, meta, nil
	}

	c.mu.Lock()
	userID := c.userID
	storageKey := c.storageKey
	c.mu.Unlock()

	ad := wcrypto.SecretAssociatedData(userID, keyID, secretstore.SecretTypeArbitrary.String())
	plaintext, err := wcrypto.Open(storageKey, ad, resp.Ciphertext)
	if err != nil {
		return nil, meta, wardenerr.ErrInvalidCiphertext
	}

	return plaintext, meta, nil
}

// DeleteKey runs the authenticated deletion of any key kind: arbitrary
// secret, signing key, remote signing key, or server-encrypted blob.
func (c *Client) DeleteKey(ctx context.Context, keyID []byte) (ResponseMetadata, error) {
	ch, meta, err := c.openChannel(ctx, protocol.ActionDeleteKey)
	if err != nil {
		return meta, err
	}

	if err := ch.Send(&protocol.DeleteKeyRequest{KeyID: keyID}); err != nil {
		return meta, err
	}

	var resp protocol.DeleteKeyResponse
	if err := ch.Receive(&resp); err != nil {
		return meta, err
	}
	if !resp.Success {
		return meta, wardenerr.New(wardenerr.CodeUnknown, "delete key did not succeed")
	}

	return meta, nil
}
