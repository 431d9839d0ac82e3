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
	"bytes"

	"github.com/warden-project/warden/internal/logger"
	"github.com/warden-project/warden/internal/wardenerr"
	"github.com/warden-project/warden/protocol"
)

// CreateStorageKey runs the authenticated write-once storage-key
// upload: the server first sends the client its own UserId for AAD
// binding (no client request precedes it), then the client uploads
// Encrypted<StorageKey>. A second attempt on an account that
// already has a storage key fails StorageKeyAlreadySet, checked here so
// the compensating rollback below only ever fires for an account that
// has never had one set.
//
// CreateStorageKey is the client's mandatory follow-up to a successful
// Register; if the write itself fails here (store unavailable, and not
// the already-set case above),
// the server compensates by deleting the account, since the client has
// no other way to unwind a Register it cannot complete.
func CreateStorageKey(c *Context) error {
	if err := c.Channel.Send(&protocol.CreateStorageKeyUserID{UserID: c.UserID()}); err != nil {
		return err
	}

	var upload protocol.CreateStorageKeyUpload
	if err := c.Channel.Receive(&upload); err != nil {
		return err
	}

	account, err := c.Deps.Store.FindUserByID(c.UserID())
	if err != nil {
		return err
	}
	if account == nil {
		return wardenerr.ErrInvalidAccount
	}
	if account.EncryptedStorageKey != nil {
		return wardenerr.ErrStorageKeyAlreadySet
	}

	if err := c.Deps.Store.SetStorageKey(c.UserID(), upload.EncryptedStorageKey); err != nil {
		if delErr := c.Deps.Store.DeleteUser(c.UserID()); delErr != nil {
			c.Deps.Logger.Error("compensating account delete after failed create_storage_key failed",
				logger.Error(delErr))
		}
		return err
	}

	return c.Channel.Send(&protocol.CreateStorageKeyAck{Success: true})
}

// RetrieveStorageKey runs the authenticated storage-key fetch. An
// account that registered but never called CreateStorageKey fails
// StorageKeyNotSet; the server never creates a storage key on demand.
func RetrieveStorageKey(c *Context) error {
	var req protocol.RetrieveStorageKeyRequest
	if err := c.Channel.Receive(&req); err != nil {
		return err
	}
	if !bytes.Equal(req.UserID, c.UserID()) {
		return wardenerr.ErrInvalidAccount
	}

	account, err := c.Deps.Store.FindUserByID(c.UserID())
	if err != nil {
		return err
	}
	if account == nil {
		return wardenerr.ErrInvalidAccount
	}
	if account.EncryptedStorageKey == nil {
		return wardenerr.ErrStorageKeyNotSet
	}

	return c.Channel.Send(&protocol.RetrieveStorageKeyResponse{EncryptedStorageKey: account.EncryptedStorageKey})
}
