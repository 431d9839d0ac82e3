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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-project/warden/internal/rng"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := rng.Bytes(AEADKeySize)
	require.NoError(t, err)
	return key
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := testKey(t)
	aad := SecretAssociatedData([]byte("user-1"), []byte("key-1"), "arbitrary_secret")
	plaintext := []byte("the secret bytes")

	ciphertext, err := Seal(key, aad, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := Open(key, aad, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestOpenRejectsMismatchedIdentity(t *testing.T) {
	key := testKey(t)
	plaintext := []byte("the secret bytes")

	ciphertext, err := Seal(key, SecretAssociatedData([]byte("user-1"), []byte("key-1"), "arbitrary_secret"), plaintext)
	require.NoError(t, err)

	// Any change to the bound identity must break decryption.
	for _, aad := range [][]byte{
		SecretAssociatedData([]byte("user-2"), []byte("key-1"), "arbitrary_secret"),
		SecretAssociatedData([]byte("user-1"), []byte("key-2"), "arbitrary_secret"),
		SecretAssociatedData([]byte("user-1"), []byte("key-1"), "remote_signing_key"),
	} {
		_, err := Open(key, aad, ciphertext)
		assert.Error(t, err)
	}
}

func TestOpenRejectsWrongKeyAndTampering(t *testing.T) {
	key := testKey(t)
	aad := StorageKeyAssociatedData([]byte("user-1"))

	ciphertext, err := Seal(key, aad, []byte("payload"))
	require.NoError(t, err)

	_, err = Open(testKey(t), aad, ciphertext)
	assert.Error(t, err)

	tampered := append([]byte(nil), ciphertext...)
	tampered[len(tampered)-1] ^= 0x01
	_, err = Open(key, aad, tampered)
	assert.Error(t, err)

	_, err = Open(key, aad, []byte("tiny"))
	assert.Error(t, err)
}

func TestSealUsesFreshNonces(t *testing.T) {
	key := testKey(t)
	aad := StorageKeyAssociatedData([]byte("user-1"))

	first, err := Seal(key, aad, []byte("payload"))
	require.NoError(t, err)
	second, err := Seal(key, aad, []byte("payload"))
	require.NoError(t, err)

	assert.False(t, bytes.Equal(first, second))
}

func TestSealRejectsBadKeySize(t *testing.T) {
	_, err := Seal([]byte("short"), nil, []byte("payload"))
	assert.Error(t, err)
	_, err = Open([]byte("short"), nil, []byte("payload"))
	assert.Error(t, err)
}
