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

	"github.com/warden-project/warden/protocol"
)

// GetUserID runs the authenticated user-id fetch. The client caches the
// result and, if it already holds a PAKE export key from Authenticate,
// derives MasterKey immediately afterward.
func (c *Client) GetUserID(ctx context.Context) ([]byte, ResponseMetadata, error) {
	ch, meta, err := c.openChannel(ctx, protocol.ActionGetUserID)
	if err != nil {
		return nil, meta, err
	}

	if err := ch.Send(&protocol.GetUserIDRequest{}); err != nil {
		return nil, meta, err
	}

	var resp protocol.GetUserIDResponse
	if err := ch.Receive(&resp); err != nil {
		return nil, meta, err
	}

	c.mu.Lock()
	c.userID = resp.UserID
	_ = c.deriveMasterKeyLocked() // best-effort: no-op until exportKey is also set
	c.mu.Unlock()

	return resp.UserID, meta, nil
}

// Logout runs the authenticated session teardown: delete is
// idempotent, so the call succeeds regardless of the session row's
// prior state. The client clears all cached key material.
func (c *Client) Logout(ctx context.Context) (ResponseMetadata, error) {
	ch, meta, err := c.openChannel(ctx, protocol.ActionLogout)
	if err != nil {
		return meta, err
	}

	if err := ch.Send(&protocol.LogoutRequest{}); err != nil {
		return meta, err
	}

	var resp protocol.LogoutResponse
	if err := ch.Receive(&resp); err != nil {
		return meta, err
	}

	c.mu.Lock()
	c.sessionID = ""
	c.exportKey = nil
	c.masterKey = nil
	c.storageKey = nil
	c.mu.Unlock()

	return meta, nil
}

// CheckSession runs the lightweight session-validity probe on an
// unauthenticated channel. An empty sessionID checks the client's own
// cached session.
func (c *Client) CheckSession(ctx context.Context, sessionID string) (bool, ResponseMetadata, error) {
	if sessionID == "" {
		sessionID = c.SessionID()
	}

	ch, meta, err := c.openChannel(ctx, protocol.ActionCheckSession)
	if err != nil {
		return false, meta, err
	}

	if err := ch.Send(&protocol.CheckSessionRequest{SessionID: sessionID}); err != nil {
		return false, meta, err
	}

	var resp protocol.CheckSessionResponse
	if err := ch.Receive(&resp); err != nil {
		return false, meta, err
	}

	return resp.Valid, meta, nil
}
