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
	"github.com/warden-project/warden/protocol"
	"github.com/warden-project/warden/sessioncache"
)

// Logout runs the authenticated session teardown: delete is idempotent,
// so success is reported regardless of the row's prior state.
func Logout(c *Context) error {
	var req protocol.LogoutRequest
	if err := c.Channel.Receive(&req); err != nil {
		return err
	}

	if err := c.Deps.Sessions.Delete(c.SessionID()); err != nil {
		return err
	}

	return c.Channel.Send(&protocol.LogoutResponse{Success: true})
}

// GetUserID returns the UserId already carried in the channel's
// authentication tag; no store lookup is needed.
func GetUserID(c *Context) error {
	var req protocol.GetUserIDRequest
	if err := c.Channel.Receive(&req); err != nil {
		return err
	}

	return c.Channel.Send(&protocol.GetUserIDResponse{UserID: c.UserID()})
}

// CheckSession is a lightweight probe that runs on an unauthenticated
// channel, since its entire purpose is to let a client ask "is this
// session still good?" without needing one that already is. It emits no
// audit event; it exists for client-side polling only.
func CheckSession(c *Context) error {
	var req protocol.CheckSessionRequest
	if err := c.Channel.Receive(&req); err != nil {
		return err
	}

	_, result, err := c.Deps.Sessions.Find(req.SessionID)
	if err != nil {
		return err
	}

	return c.Channel.Send(&protocol.CheckSessionResponse{Valid: result == sessioncache.ResultFound})
}
