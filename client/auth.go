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
)

// Authenticate runs the unauthenticated login state machine.
// On success the client caches the session id and the PAKE export key;
// MasterKey itself is derived lazily once the user id is known (see
// ensureUserID), since deriving it requires user_id and the client does
// not necessarily know its own user_id until its first authenticated
// call.
func (c *Client) Authenticate(ctx context.Context, accountName, password string) (ResponseMetadata, error) {
	ch, meta, err := c.openChannel(ctx, protocol.ActionAuthenticate)
	if err != nil {
		return meta, err
	}

	req, blind, xu, err := wcrypto.BeginAuth(password)
	if err != nil {
		return meta, wardenerr.Wrap(wardenerr.CodeCryptoFailure, err, "begin auth")
	}

	if err := ch.Send(&protocol.AuthStartRequest{AccountName: accountName, Request: req.ToWire()}); err != nil {
		return meta, err
	}

	var startResp protocol.AuthStartResponse
	if err := ch.Receive(&startResp); err != nil {
		return meta, err
	}
	resp, err := startResp.Response.FromWire()
	if err != nil {
		return meta, wardenerr.Wrap(wardenerr.CodeInvalidMessage, err, "bad auth response")
	}

	keys, clientConfirm, err := wcrypto.FinishAuth(resp, password, blind, xu)
	if err != nil {
		return meta, wardenerr.ErrInvalidLogin
	}

	if err := ch.Send(&protocol.AuthFinishRequest{Finalization: clientConfirm}); err != nil {
		return meta, err
	}

	var finishResp protocol.AuthFinishResponse
	if err := ch.Receive(&finishResp); err != nil {
		return meta, err
	}
	if !finishResp.Success {
		return meta, wardenerr.ErrInvalidLogin
	}

	c.mu.Lock()
	c.accountName = accountName
	c.sessionID = finishResp.SessionID
	c.exportKey = keys.ExportKey
	c.masterKey = nil
	c.userID = nil
	c.storageKey = nil
	c.mu.Unlock()

	return meta, nil
}

// ensureUserID makes sure the client knows its own user id, fetching it
// with GetUserID on first use. Every operation that needs MasterKey or
// StorageKey calls this first.
func (c *Client) ensureUserID(ctx context.Context) error {
	c.mu.Lock()
	known := c.userID != nil
	c.mu.Unlock()
	if known {
		return nil
	}
	_, _, err := c.GetUserID(ctx)
	return err
}

// deriveMasterKeyLocked derives and caches MasterKey once both the
// export key (from Authenticate) and the user id (from ensureUserID)
// are available. Caller must hold c.mu.
func (c *Client) deriveMasterKeyLocked() error {
	if c.masterKey != nil {
		return nil
	}
	if c.exportKey == nil || c.userID == nil {
		return wardenerr.New(wardenerr.CodeUnauthenticated, "master key unavailable: not authenticated")
	}
	key, err := wcrypto.DeriveMasterKey(c.exportKey, c.userID)
	if err != nil {
		return wardenerr.Wrap(wardenerr.CodeCryptoFailure, err, "derive master key")
	}
	c.masterKey = key
	return nil
}
