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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	priv, err := GenerateSigningKey()
	require.NoError(t, err)

	message := []byte{0xde, 0xad, 0xbe, 0xef}
	sig, err := SignBytes(priv, message)
	require.NoError(t, err)

	assert.True(t, VerifySignature(&priv.PublicKey, message, sig))
	assert.False(t, VerifySignature(&priv.PublicKey, []byte("other bytes"), sig))
}

func TestDeriveSigningKeyIsDeterministic(t *testing.T) {
	seed := []byte("0123456789abcdef0123456789abcdef")
	userID := []byte("user-1")
	keyID := []byte("key-1")

	first, err := DeriveSigningKey(seed, userID, keyID)
	require.NoError(t, err)
	second, err := DeriveSigningKey(seed, userID, keyID)
	require.NoError(t, err)
	assert.Equal(t, first.D, second.D)

	// The same seed imported under a different identity yields a
	// different keypair.
	other, err := DeriveSigningKey(seed, []byte("user-2"), keyID)
	require.NoError(t, err)
	assert.NotEqual(t, first.D, other.D)

	other, err = DeriveSigningKey(seed, userID, []byte("key-2"))
	require.NoError(t, err)
	assert.NotEqual(t, first.D, other.D)
}

func TestMarshalSigningKeyRoundTrip(t *testing.T) {
	priv, err := GenerateSigningKey()
	require.NoError(t, err)

	restored := UnmarshalSigningKey(MarshalSigningKey(priv))
	assert.Equal(t, priv.D, restored.D)
	assert.Equal(t, priv.PublicKey.X, restored.PublicKey.X)
	assert.Equal(t, priv.PublicKey.Y, restored.PublicKey.Y)

	message := []byte("signed after a restart")
	sig, err := SignBytes(restored, message)
	require.NoError(t, err)
	assert.True(t, VerifySignature(&priv.PublicKey, message, sig))
}

func TestNewKeyID(t *testing.T) {
	userID := []byte("user-1")

	first, err := NewKeyID(userID)
	require.NoError(t, err)
	assert.Len(t, first, KeyIDSize)

	second, err := NewKeyID(userID)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestKeyIDRendering(t *testing.T) {
	keyID, err := NewKeyID([]byte("user-1"))
	require.NoError(t, err)

	parsed, err := ParseKeyID(RenderKeyID(keyID))
	require.NoError(t, err)
	assert.Equal(t, keyID, parsed)
}
