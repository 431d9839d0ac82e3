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
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/warden-project/warden/internal/rng"
)

// AEADKeySize is the key size required by every encryption under this
// package: StorageKey, remote_storage_key, and every per-secret key.
const AEADKeySize = chacha20poly1305.KeySize

// Seal encrypts plaintext under key with the given associated data. The
// nonce is sampled uniformly at random and prepended to the returned
// ciphertext.
func Seal(key, associatedData, plaintext []byte) ([]byte, error) {
	if len(key) != AEADKeySize {
		return nil, fmt.Errorf("crypto: aead key must be %d bytes", AEADKeySize)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}

	nonce, err := rng.Bytes(aead.NonceSize())
	if err != nil {
		return nil, err
	}

	sealed := aead.Seal(nil, nonce, plaintext, associatedData)
	return append(nonce, sealed...), nil
}

// Open decrypts a value produced by Seal; associatedData must match
// exactly what was supplied to Seal.
func Open(key, associatedData, ciphertext []byte) ([]byte, error) {
	if len(key) != AEADKeySize {
		return nil, fmt.Errorf("crypto: aead key must be %d bytes", AEADKeySize)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, errors.New("crypto: ciphertext shorter than nonce")
	}

	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, associatedData)
	if err != nil {
		return nil, errors.New("crypto: ciphertext failed authentication")
	}
	return plaintext, nil
}

// SecretAssociatedData builds the domain-separated AAD binding a
// per-secret ciphertext to the entities it is scoped to.
func SecretAssociatedData(userID []byte, keyID []byte, secretType string) []byte {
	aad := append([]byte("warden-secret-v1:"), userID...)
	aad = append(aad, ':')
	aad = append(aad, keyID...)
	aad = append(aad, ':')
	aad = append(aad, []byte(secretType)...)
	return aad
}

// StorageKeyAssociatedData builds the AAD for the Encrypted<StorageKey>
// stored server-side, binding it to the owning account's user id.
func StorageKeyAssociatedData(userID []byte) []byte {
	return append([]byte("warden-storage-key-v1:"), userID...)
}

// SessionKeyAssociatedData builds the AAD for a session key encrypted
// under remote_storage_key before being handed to the session cache. It
// is keyed on the account name rather than the session id: the session
// id does not exist yet at the point the key must be sealed (the cache
// assigns it on Create), so account name is the stable identifier
// available at seal time.
func SessionKeyAssociatedData(accountName string) []byte {
	return append([]byte("warden-session-key-v1:"), []byte(accountName)...)
}
