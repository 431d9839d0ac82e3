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

package crypto

import (
	"io"

	"golang.org/x/crypto/blake2b"
)

// DeriveMasterKey computes the client-side MasterKey = KDF(export_key,
// "master-key" || user_id), the root of the key derivation hierarchy.
// Only ever computed on the client; the server never sees export_key.
func DeriveMasterKey(exportKey, userID []byte) ([]byte, error) {
	return deriveKey(exportKey, "master-key", userID, 32)
}

// deriveKey expands ikm with keyed Blake2b, binding the output to a
// domain-separation label and entity identifiers.
func deriveKey(ikm []byte, label string, context []byte, size int) ([]byte, error) {
	h, err := blake2b.New(size, ikm)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(h, label); err != nil {
		return nil, err
	}
	if _, err := h.Write(context); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
