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

package ops

import (
	wcrypto "github.com/warden-project/warden/crypto"
	"github.com/warden-project/warden/internal/wardenerr"
	"github.com/warden-project/warden/protocol"
)

// Authenticate runs the unauthenticated login state machine.
// On success it encrypts the derived session key under remote_storage_key
// and registers it with the session cache; the client derives MasterKey
// itself from the PAKE export key, which never crosses the wire.
func Authenticate(c *Context) error {
	var start protocol.AuthStartRequest
	if err := c.Channel.Receive(&start); err != nil {
		return err
	}

	account, err := c.Deps.Store.FindUser(start.AccountName)
	if err != nil {
		return err
	}
	if account == nil {
		return wardenerr.ErrInvalidAccount
	}

	clientPublicKey, envelope, err := wcrypto.UnmarshalRegistrationBlob(account.OpaqueServerRegistrationBlob)
	if err != nil {
		return wardenerr.Wrap(wardenerr.CodeInternal, err, "unmarshal registration blob")
	}

	req, err := start.Request.FromWire()
	if err != nil {
		return wardenerr.Wrap(wardenerr.CodeInvalidMessage, err, "bad auth request")
	}

	resp, keys, expectedClientConfirm, err := c.Deps.ServerSetup.EvaluateAuth(req, clientPublicKey, envelope)
	if err != nil {
		return wardenerr.Wrap(wardenerr.CodeCryptoFailure, err, "evaluate auth")
	}

	if err := c.Channel.Send(&protocol.AuthStartResponse{Response: resp.ToWire()}); err != nil {
		return err
	}

	var finish protocol.AuthFinishRequest
	if err := c.Channel.Receive(&finish); err != nil {
		return err
	}

	if !wcrypto.VerifyClientConfirm(expectedClientConfirm, finish.Finalization) {
		return wardenerr.ErrInvalidLogin
	}

	sessionKeyCiphertext, err := wcrypto.Seal(
		c.Deps.RemoteStorageKey,
		wcrypto.SessionKeyAssociatedData(start.AccountName),
		keys.SessionKey,
	)
	if err != nil {
		return wardenerr.Wrap(wardenerr.CodeCryptoFailure, err, "seal session key")
	}

	sessionID, err := c.Deps.Sessions.Create(account.AccountID, account.UserID, sessionKeyCiphertext, c.Deps.SessionTTL)
	if err != nil {
		return wardenerr.Wrap(wardenerr.CodeStorageUnavailable, err, "create session")
	}

	return c.Channel.Send(&protocol.AuthFinishResponse{SessionID: sessionID, Success: true})
}
