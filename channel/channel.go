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

// Package channel implements a duplex, in-order, strictly typed message
// stream bound to exactly one operation invocation. It sits directly on
// top of package rpc's Operate stream and enforces the channel's
// authentication tag: every Message statically declares whether it
// requires an authenticated channel, and Send/Receive refuse a mismatch
// before anything reaches the wire.
package channel

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warden-project/warden/internal/wardenerr"
	"github.com/warden-project/warden/protocol"
	"github.com/warden-project/warden/rpc"
)

// AuthInfo is the channel's authentication tag: the account/user/session
// the dispatcher resolved before constructing the channel.
type AuthInfo struct {
	AccountID   int64
	AccountName string
	UserID      []byte
	SessionID   string
}

// Metadata is the per-operation context carried alongside every frame:
// request id, action, and an optional AuthInfo.
type Metadata struct {
	RequestID     uuid.UUID
	Action        protocol.Action
	Authenticated *AuthInfo
}

// stream is satisfied by both rpc.GatewayOperateServer and
// rpc.GatewayOperateClient, so one Channel implementation serves both the
// server's operation state machines and the client driver.
type stream interface {
	Send(*rpc.Frame) error
	Recv() (*rpc.Frame, error)
}

// DefaultMessageTimeout is the implicit per-message receive timeout.
// Channel does not itself start a timer — the caller's context should
// carry a deadline no looser than this — but it is exposed so
// dispatchers and the client driver share one constant.
const DefaultMessageTimeout = 60 * time.Second

// Channel provides typed, ordered, authentication-aware send/receive
// over one Operate stream.
type Channel struct {
	s    stream
	meta Metadata

	mu       sync.Mutex
	errSent  bool
	finished bool
}

// New binds a raw Operate stream to per-operation metadata.
func New(s stream, meta Metadata) *Channel {
	return &Channel{s: s, meta: meta}
}

// Metadata returns the channel's request id, action, and authentication
// tag.
func (c *Channel) Metadata() Metadata { return c.meta }

// Authenticated reports whether the channel carries a resolved session.
func (c *Channel) Authenticated() bool { return c.meta.Authenticated != nil }

// Send serializes msg as JSON and writes it as the next outbound frame.
// It refuses the send if msg's authentication requirement does not match
// the channel's own tag (AuthenticatedChannelNeeded /
// UnauthenticatedChannelNeeded), and refuses to write anything after an
// error frame or normal close.
func (c *Channel) Send(msg protocol.Message) error {
	if err := c.checkAuth(msg); err != nil {
		return err
	}

	c.mu.Lock()
	closed := c.finished || c.errSent
	c.mu.Unlock()
	if closed {
		return wardenerr.ErrChannelClosed
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return wardenerr.Wrap(wardenerr.CodeInternal, err, "marshal message")
	}
	if err := c.s.Send(&rpc.Frame{Content: data}); err != nil {
		return wardenerr.Wrap(wardenerr.CodeChannelClosed, err, "peer hung up")
	}
	return nil
}

// Receive reads the next inbound frame and deserializes it into out. out
// must be a non-nil pointer to a protocol.Message implementation. Returns
// ErrInvalidMessage if the bytes do not parse as out's type,
// ErrNoMessageReceived if the stream ended cleanly with no frame pending,
// or a CodeTransport error on any other I/O failure.
func (c *Channel) Receive(out protocol.Message) error {
	if err := c.checkAuth(out); err != nil {
		return err
	}

	frame, err := c.s.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return wardenerr.ErrNoMessageReceived
		}
		return wardenerr.Wrap(wardenerr.CodeTransport, err, "transport failure")
	}

	if err := json.Unmarshal(frame.Content, out); err != nil {
		return wardenerr.Wrap(wardenerr.CodeInvalidMessage, err, "message did not parse")
	}
	return nil
}

func (c *Channel) checkAuth(msg protocol.Message) error {
	needsAuth := msg.RequiresAuthentication()
	hasAuth := c.meta.Authenticated != nil
	if needsAuth && !hasAuth {
		return wardenerr.ErrAuthenticatedChannelNeeded
	}
	if !needsAuth && hasAuth {
		return wardenerr.ErrUnauthenticatedChannelNeeded
	}
	return nil
}

// SendError writes a terminal ErrorFrame and marks the channel closed.
// It is idempotent: a second call after the first returns nil without
// writing anything.
// SendError bypasses the authentication-tag check, since an error must be
// deliverable regardless of which phase of the operation it interrupts.
func (c *Channel) SendError(werr *wardenerr.Error) error {
	c.mu.Lock()
	if c.errSent || c.finished {
		c.mu.Unlock()
		return nil
	}
	c.errSent = true
	c.mu.Unlock()

	frame := protocol.ErrorFrame{Code: werr.Code.String(), Message: werr.Message}
	data, err := json.Marshal(frame)
	if err != nil {
		return wardenerr.Wrap(wardenerr.CodeInternal, err, "marshal error frame")
	}
	if sendErr := c.s.Send(&rpc.Frame{Content: data}); sendErr != nil {
		return wardenerr.Wrap(wardenerr.CodeChannelClosed, sendErr, "peer hung up")
	}
	return nil
}

// Close marks the channel finished; further Send/Receive calls fail with
// ErrChannelClosed. It does not close the underlying gRPC stream, which
// the dispatcher ends by returning from the Operate handler.
func (c *Channel) Close() {
	c.mu.Lock()
	c.finished = true
	c.mu.Unlock()
}
