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

// StoreServerEncryptedBlob uploads raw bytes for the server to encrypt
// and store under its own remote storage key; the client holds no key
// material for this path at all.
func (c *Client) StoreServerEncryptedBlob(ctx context.Context, blob []byte) ([]byte, ResponseMetadata, error) {
	ch, meta, err := c.openChannel(ctx, protocol.ActionStoreServerEncryptedBlob)
	if err != nil {
		return nil, meta, err
	}

	if err := ch.Send(&protocol.StoreBlobRequest{Blob: blob}); err != nil {
		return nil, meta, err
	}

	var resp protocol.StoreBlobResponse
	if err := ch.Receive(&resp); err != nil {
		return nil, meta, err
	}

	return resp.KeyID, meta, nil
}

// RetrieveServerEncryptedBlob fetches the plaintext blob named by
// keyID; the server decrypts before returning it.
func (c *Client) RetrieveServerEncryptedBlob(ctx context.Context, keyID []byte) ([]byte, ResponseMetadata, error) {
	ch, meta, err := c.openChannel(ctx, protocol.ActionRetrieveServerEncryptedBlob)
	if err != nil {
		return nil, meta, err
	}

	if err := ch.Send(&protocol.RetrieveBlobRequest{KeyID: keyID}); err != nil {
		return nil, meta, err
	}

	var resp protocol.RetrieveBlobResponse
	if err := ch.Receive(&resp); err != nil {
		return nil, meta, err
	}

	return resp.Blob, meta, nil
}
