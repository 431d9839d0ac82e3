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

// register runs the full registration round trip and returns the blob
// the server would persist for the account.
func register(t *testing.T, setup *ServerSetup, password string) []byte {
	t.Helper()

	req, blind, err := BeginRegistration(password)
	require.NoError(t, err)

	resp := setup.EvaluateRegistration(req)

	rec, err := FinishRegistration(resp, password, blind)
	require.NoError(t, err)

	blob, err := MarshalRegistrationBlob(rec)
	require.NoError(t, err)
	return blob
}

// login runs the full login round trip against a stored registration
// blob, returning both sides' view of the exchange.
func login(t *testing.T, setup *ServerSetup, blob []byte, password string) (server SessionKeys, client SessionKeys, confirmOK bool, clientErr error) {
	t.Helper()

	clientPublicKey, envelope, err := UnmarshalRegistrationBlob(blob)
	require.NoError(t, err)

	req, blind, xu, err := BeginAuth(password)
	require.NoError(t, err)

	resp, serverKeys, expectedConfirm, err := setup.EvaluateAuth(req, clientPublicKey, envelope)
	require.NoError(t, err)

	clientKeys, clientConfirm, err := FinishAuth(resp, password, blind, xu)
	if err != nil {
		return serverKeys, SessionKeys{}, false, err
	}

	return serverKeys, clientKeys, VerifyClientConfirm(expectedConfirm, clientConfirm), nil
}

func TestRegisterThenAuthenticate(t *testing.T) {
	setup, err := GenerateServerSetup()
	require.NoError(t, err)

	blob := register(t, setup, "pw-correct")
	serverKeys, clientKeys, confirmOK, err := login(t, setup, blob, "pw-correct")
	require.NoError(t, err)

	assert.True(t, confirmOK)
	assert.Equal(t, serverKeys.SessionKey, clientKeys.SessionKey)
	assert.Len(t, clientKeys.SessionKey, 64)
	assert.Len(t, clientKeys.ExportKey, 64)
	// The export key never materializes server-side.
	assert.Nil(t, serverKeys.ExportKey)
}

func TestAuthenticateWrongPasswordFails(t *testing.T) {
	setup, err := GenerateServerSetup()
	require.NoError(t, err)

	blob := register(t, setup, "pw-correct")
	_, _, _, err = login(t, setup, blob, "pw-wrong")
	assert.Error(t, err)
}

func TestExportKeyStableAcrossLogins(t *testing.T) {
	setup, err := GenerateServerSetup()
	require.NoError(t, err)

	blob := register(t, setup, "pw-correct")

	_, first, _, err := login(t, setup, blob, "pw-correct")
	require.NoError(t, err)
	_, second, _, err := login(t, setup, blob, "pw-correct")
	require.NoError(t, err)

	// The export key seeds the master key, which must decrypt a storage
	// key sealed in an earlier session; the session key is fresh per login.
	assert.Equal(t, first.ExportKey, second.ExportKey)
	assert.NotEqual(t, first.SessionKey, second.SessionKey)

	userID := []byte("0123456789abcdef")
	mk1, err := DeriveMasterKey(first.ExportKey, userID)
	require.NoError(t, err)
	mk2, err := DeriveMasterKey(second.ExportKey, userID)
	require.NoError(t, err)
	assert.Equal(t, mk1, mk2)
}

func TestClientDetectsForgedServerConfirm(t *testing.T) {
	setup, err := GenerateServerSetup()
	require.NoError(t, err)

	blob := register(t, setup, "pw-correct")
	clientPublicKey, envelope, err := UnmarshalRegistrationBlob(blob)
	require.NoError(t, err)

	req, blind, xu, err := BeginAuth("pw-correct")
	require.NoError(t, err)
	resp, _, _, err := setup.EvaluateAuth(req, clientPublicKey, envelope)
	require.NoError(t, err)

	resp.ServerConfirm[0] ^= 0xff
	_, _, err = FinishAuth(resp, "pw-correct", blind, xu)
	assert.Error(t, err)
}

func TestServerRejectsBadFinalization(t *testing.T) {
	setup, err := GenerateServerSetup()
	require.NoError(t, err)

	blob := register(t, setup, "pw-correct")
	clientPublicKey, envelope, err := UnmarshalRegistrationBlob(blob)
	require.NoError(t, err)

	req, _, _, err := BeginAuth("pw-correct")
	require.NoError(t, err)
	_, _, expectedConfirm, err := setup.EvaluateAuth(req, clientPublicKey, envelope)
	require.NoError(t, err)

	assert.False(t, VerifyClientConfirm(expectedConfirm, []byte("not the confirm MAC")))
}

func TestServerSetupMarshalRoundTrip(t *testing.T) {
	setup, err := GenerateServerSetup()
	require.NoError(t, err)

	data, err := setup.Marshal()
	require.NoError(t, err)

	restored, err := UnmarshalServerSetup(data)
	require.NoError(t, err)

	// A registration made before a restart must still authenticate after.
	blob := register(t, setup, "pw")
	_, _, confirmOK, err := login(t, restored, blob, "pw")
	require.NoError(t, err)
	assert.True(t, confirmOK)
}

func TestAuthWireRoundTrip(t *testing.T) {
	req, _, _, err := BeginAuth("pw")
	require.NoError(t, err)

	parsed, err := req.ToWire().FromWire()
	require.NoError(t, err)
	assert.Equal(t, req.Alpha.Encode(nil), parsed.Alpha.Encode(nil))
	assert.Equal(t, req.Xu.Encode(nil), parsed.Xu.Encode(nil))

	bad := AuthRequestWire{Alpha: []byte("short"), Xu: []byte("short")}
	_, err = bad.FromWire()
	assert.Error(t, err)
}
