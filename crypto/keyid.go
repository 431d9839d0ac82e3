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
	"github.com/mr-tron/base58"

	"github.com/warden-project/warden/internal/rng"
)

// KeyIDSize is the length in bytes of a generated KeyId.
const KeyIDSize = 16

// NewKeyID samples 16 fresh random bytes, hashes them with user_id under
// a domain-separated construction, and takes the first KeyIDSize bytes
// of the output. Collisions are negligible; secretstore additionally
// enforces (account_id, key_id) uniqueness.
func NewKeyID(userID []byte) ([]byte, error) {
	seed, err := rng.Bytes(KeyIDSize)
	if err != nil {
		return nil, err
	}
	digest, err := deriveKey(seed, "key-id", userID, 32)
	if err != nil {
		return nil, err
	}
	return digest[:KeyIDSize], nil
}

// RenderKeyID renders a key-id as a human-readable base58 string, for
// audit log output and CLI display.
func RenderKeyID(keyID []byte) string {
	return base58.Encode(keyID)
}

// ParseKeyID parses a base58 key-id back into raw bytes.
func ParseKeyID(s string) ([]byte, error) {
	return base58.Decode(s)
}
