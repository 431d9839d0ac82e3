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
	"github.com/warden-project/warden/internal/rng"
	"github.com/warden-project/warden/internal/wardenerr"
	"github.com/warden-project/warden/protocol"
)

// CreateStorageKey runs the authenticated write-once storage-key
// upload: the server sends the client's own UserId first (letting a
// freshly registered client learn it without a separate GetUserID
// round trip), the client samples a fresh 32-byte StorageKey, seals it
// under MasterKey, and uploads the ciphertext.
func (c *Client) CreateStorageKey(ctx context.Context) (ResponseMetadata, error) {
	ch, meta, err := c.openChannel(ctx, protocol.ActionCreateStorageKey)
	if err != nil {
		return meta, err
	}

	var userIDMsg protocol.CreateStorageKeyUserID
	if err := ch.Receive(&userIDMsg); err != nil {
		return meta, err
	}

	c.mu.Lock()
	if c.userID == nil {
		c.userID = userIDMsg.UserID
	}
	if err := c.deriveMasterKeyLocked(); err != nil {
		c.mu.Unlock()
		return meta, err
	}
	masterKey := c.masterKey
	c.mu.Unlock()

	storageKey, err := rng.Bytes(wcrypto.AEADKeySize)
	if err != nil {
		return meta, wardenerr.Wrap(wardenerr.CodeCryptoFailure, err, "generate storage key")
	}

	ciphertext, err := wcrypto.Seal(masterKey, wcrypto.StorageKeyAssociatedData(userIDMsg.UserID), storageKey)
	if err != nil {
		return meta, wardenerr.Wrap(wardenerr.CodeCryptoFailure, err, "seal storage key")
	}

	if err := ch.Send(&protocol.CreateStorageKeyUpload{EncryptedStorageKey: ciphertext}); err != nil {
		return meta, err
	}

	var ack protocol.CreateStorageKeyAck
	if err := ch.Receive(&ack); err != nil {
		return meta, err
	}
	if !ack.Success {
		return meta, wardenerr.New(wardenerr.CodeUnknown, "create storage key did not succeed")
	}

	c.mu.Lock()
	c.storageKey = storageKey
	c.mu.Unlock()

	return meta, nil
}

// RetrieveStorageKey runs the authenticated storage-key fetch,
// decrypting the result locally and caching it for subsequent secret
// operations. An account that never called CreateStorageKey fails
// StorageKeyNotSet.
func (c *Client) RetrieveStorageKey(ctx context.Context) (ResponseMetadata, error) {
	if err := c.ensureUserID(ctx); err != nil {
		return ResponseMetadata{}, err
	}

	ch, meta, err := c.openChannel(ctx, protocol.ActionRetrieveStorageKey)
	if err != nil {
		return meta, err
	}

	c.mu.Lock()
	userID := c.userID
	if err := c.deriveMasterKeyLocked(); err != nil {
		c.mu.Unlock()
		return meta, err
	}
	masterKey := c.masterKey
	c.mu.Unlock()

	if err := ch.Send(&protocol.RetrieveStorageKeyRequest{UserID: userID}); err != nil {
		return meta, err
	}

	var resp protocol.RetrieveStorageKeyResponse
	if err := ch.Receive(&resp); err != nil {
		return meta, err
	}

	storageKey, err := wcrypto.Open(masterKey, wcrypto.StorageKeyAssociatedData(userID), resp.EncryptedStorageKey)
	if err != nil {
		return meta, wardenerr.ErrInvalidCiphertext
	}

	c.mu.Lock()
	c.storageKey = storageKey
	c.mu.Unlock()

	return meta, nil
}

// ensureStorageKey makes sure StorageKey is cached, fetching it with
// RetrieveStorageKey if the client has not already established or
// retrieved one this session.
func (c *Client) ensureStorageKey(ctx context.Context) error {
	c.mu.Lock()
	known := c.storageKey != nil
	c.mu.Unlock()
	if known {
		return nil
	}
	_, err := c.RetrieveStorageKey(ctx)
	return err
}
