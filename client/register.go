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

// Register runs the unauthenticated register state machine against
// accountName/password. It does not create the storage key: the client
// must follow a successful Register with CreateStorageKey itself;
// RegisterAndProvision does both.
func (c *Client) Register(ctx context.Context, accountName, password string) (ResponseMetadata, error) {
	ch, meta, err := c.openChannel(ctx, protocol.ActionRegister)
	if err != nil {
		return meta, err
	}

	req, blind, err := wcrypto.BeginRegistration(password)
	if err != nil {
		return meta, wardenerr.Wrap(wardenerr.CodeCryptoFailure, err, "begin registration")
	}

	if err := ch.Send(&protocol.RegisterStartRequest{AccountName: accountName, Request: req.ToWire()}); err != nil {
		return meta, err
	}

	var startResp protocol.RegisterStartResponse
	if err := ch.Receive(&startResp); err != nil {
		return meta, err
	}
	resp, err := startResp.Response.FromWire()
	if err != nil {
		return meta, wardenerr.Wrap(wardenerr.CodeInvalidMessage, err, "bad registration response")
	}

	rec, err := wcrypto.FinishRegistration(resp, password, blind)
	if err != nil {
		return meta, wardenerr.Wrap(wardenerr.CodeCryptoFailure, err, "finish registration")
	}

	if err := ch.Send(&protocol.RegisterFinishRequest{Upload: rec.ToWire()}); err != nil {
		return meta, err
	}

	var finishResp protocol.RegisterFinishResponse
	if err := ch.Receive(&finishResp); err != nil {
		return meta, err
	}
	if !finishResp.Success {
		return meta, wardenerr.New(wardenerr.CodeUnknown, "registration did not succeed")
	}

	c.mu.Lock()
	c.accountName = accountName
	c.mu.Unlock()

	return meta, nil
}

// RegisterAndProvision runs Register followed immediately by
// Authenticate and CreateStorageKey. A freshly registered account that
// never establishes a storage key can exist but cannot perform any
// arbitrary-secret operation, so ordinary callers want this convenience
// instead of the three calls by hand.
func (c *Client) RegisterAndProvision(ctx context.Context, accountName, password string) error {
	if _, err := c.Register(ctx, accountName, password); err != nil {
		return err
	}
	if _, err := c.Authenticate(ctx, accountName, password); err != nil {
		return err
	}
	if _, err := c.CreateStorageKey(ctx); err != nil {
		return err
	}
	return nil
}
