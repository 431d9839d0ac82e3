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

	"github.com/warden-project/warden/internal/wardenerr"
	"github.com/warden-project/warden/protocol"
)

// ImportSigningKey uploads 32 raw seed bytes; the server derives the
// ECDSA keypair deterministically and never returns the private scalar.
func (c *Client) ImportSigningKey(ctx context.Context, seed []byte) (keyID, publicKey []byte, meta ResponseMetadata, err error) {
	ch, meta, err := c.openChannel(ctx, protocol.ActionImportSigningKey)
	if err != nil {
		return nil, nil, meta, err
	}

	if err := ch.Send(&protocol.ImportSigningKeyRequest{Seed: seed}); err != nil {
		return nil, nil, meta, err
	}

	var resp protocol.ImportSigningKeyResponse
	if err := ch.Receive(&resp); err != nil {
		return nil, nil, meta, err
	}

	return resp.KeyID, resp.PublicKey, meta, nil
}

// RemoteGenerateSigningKey asks the server to generate a fresh ECDSA
// keypair whose private scalar never leaves the server.
func (c *Client) RemoteGenerateSigningKey(ctx context.Context) (keyID, publicKey []byte, meta ResponseMetadata, err error) {
	ch, meta, err := c.openChannel(ctx, protocol.ActionRemoteGenerateSigningKey)
	if err != nil {
		return nil, nil, meta, err
	}

	if err := ch.Send(&protocol.RemoteGenerateSigningKeyRequest{}); err != nil {
		return nil, nil, meta, err
	}

	var resp protocol.RemoteGenerateSigningKeyResponse
	if err := ch.Receive(&resp); err != nil {
		return nil, nil, meta, err
	}

	return resp.KeyID, resp.PublicKey, meta, nil
}

// RemoteSignBytes asks the server to sign bytes with the remote signing
// key named by keyID. Ownership is enforced server-side; a keyID owned
// by another account fails with an incorrect-key-metadata error.
func (c *Client) RemoteSignBytes(ctx context.Context, keyID, data []byte) ([]byte, ResponseMetadata, error) {
	ch, meta, err := c.openChannel(ctx, protocol.ActionRemoteSignBytes)
	if err != nil {
		return nil, meta, err
	}

	if err := ch.Send(&protocol.RemoteSignBytesRequest{KeyID: keyID, Bytes: data}); err != nil {
		return nil, meta, err
	}

	var resp protocol.RemoteSignBytesResponse
	if err := ch.Receive(&resp); err != nil {
		return nil, meta, err
	}
	if len(resp.Signature) == 0 {
		return nil, meta, wardenerr.New(wardenerr.CodeUnknown, "remote sign returned no signature")
	}

	return resp.Signature, meta, nil
}
