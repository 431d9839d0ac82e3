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

// Package ops implements one short, deterministic, straight-line
// state machine per operation, each driving the channel and consulting
// the cryptographic core, session cache, and secret/audit store. Every
// function here has the shape func(*Context) error: the dispatcher is
// the only caller, and supplies a Context already carrying a resolved
// (or deliberately skipped) authentication tag on its Channel.
package ops

import (
	"time"

	"github.com/warden-project/warden/channel"
	wcrypto "github.com/warden-project/warden/crypto"
	"github.com/warden-project/warden/internal/logger"
	"github.com/warden-project/warden/pkg/health"
	"github.com/warden-project/warden/secretstore"
	"github.com/warden-project/warden/sessioncache"
)

// Deps are the long-lived collaborators every operation consults. One
// Deps is constructed at server startup and shared by every request.
type Deps struct {
	Store            secretstore.Store
	Sessions         sessioncache.Cache
	ServerSetup      *wcrypto.ServerSetup
	RemoteStorageKey []byte
	SessionTTL       time.Duration
	MaxBlobSize      int64
	Health           *health.Checker
	Logger           logger.Logger
}

// Context is handed to every operation by the dispatcher: the channel
// bound to this invocation plus the shared Deps. KeyID is set by
// operations that touch one stored secret, so the dispatcher can attach
// it to the terminal audit event without every operation reimplementing
// that bookkeeping.
type Context struct {
	Deps    *Deps
	Channel *channel.Channel
	KeyID   []byte
}

// AccountID is a convenience accessor for the authenticated account, valid
// only for operations the dispatcher resolved a session for.
func (c *Context) AccountID() int64 {
	if auth := c.Channel.Metadata().Authenticated; auth != nil {
		return auth.AccountID
	}
	return 0
}

// UserID is a convenience accessor mirroring AccountID.
func (c *Context) UserID() []byte {
	if auth := c.Channel.Metadata().Authenticated; auth != nil {
		return auth.UserID
	}
	return nil
}

// AccountName is a convenience accessor mirroring AccountID.
func (c *Context) AccountName() string {
	if auth := c.Channel.Metadata().Authenticated; auth != nil {
		return auth.AccountName
	}
	return ""
}

// SessionID is a convenience accessor mirroring AccountID.
func (c *Context) SessionID() string {
	if auth := c.Channel.Metadata().Authenticated; auth != nil {
		return auth.SessionID
	}
	return ""
}
