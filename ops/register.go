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
	"github.com/warden-project/warden/internal/rng"
	"github.com/warden-project/warden/internal/wardenerr"
	"github.com/warden-project/warden/protocol"
	"github.com/warden-project/warden/secretstore"
)

// Register runs the unauthenticated register state machine:
// check the account name is free, run the PAKE registration round trip,
// then loop sampling a fresh user_id until one collides with no existing
// account. It deliberately does not create the storage key: the client
// must follow a successful Register with CreateStorageKey, which itself
// performs the compensating DeleteUser if its storage-key write fails
// (see CreateStorageKey).
func Register(c *Context) error {
	var start protocol.RegisterStartRequest
	if err := c.Channel.Receive(&start); err != nil {
		return err
	}

	if existing, err := c.Deps.Store.FindUser(start.AccountName); err != nil {
		return err
	} else if existing != nil {
		return wardenerr.ErrDuplicateAccount
	}

	req, err := start.Request.FromWire()
	if err != nil {
		return wardenerr.Wrap(wardenerr.CodeInvalidMessage, err, "bad registration request")
	}
	resp := c.Deps.ServerSetup.EvaluateRegistration(req)

	if err := c.Channel.Send(&protocol.RegisterStartResponse{Response: resp.ToWire()}); err != nil {
		return err
	}

	var finish protocol.RegisterFinishRequest
	if err := c.Channel.Receive(&finish); err != nil {
		return err
	}
	rec, err := finish.Upload.FromWire()
	if err != nil {
		return wardenerr.Wrap(wardenerr.CodeInvalidMessage, err, "bad registration upload")
	}
	blob, err := wcrypto.MarshalRegistrationBlob(rec)
	if err != nil {
		return wardenerr.Wrap(wardenerr.CodeInternal, err, "marshal registration blob")
	}

	userID, err := freshUserID(c.Deps.Store)
	if err != nil {
		return err
	}

	if _, err := c.Deps.Store.CreateUser(userID, start.AccountName, blob); err != nil {
		return err
	}

	return c.Channel.Send(&protocol.RegisterFinishResponse{Success: true})
}

// freshUserID samples 16 random bytes and loops until FindUserByID
// comes back empty.
func freshUserID(store secretstore.Store) ([]byte, error) {
	for {
		userID, err := rng.Bytes(16)
		if err != nil {
			return nil, wardenerr.Wrap(wardenerr.CodeInternal, err, "generate user id")
		}
		existing, err := store.FindUserByID(userID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return userID, nil
		}
	}
}
