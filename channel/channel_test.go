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

package channel

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-project/warden/internal/wardenerr"
	"github.com/warden-project/warden/protocol"
	"github.com/warden-project/warden/rpc"
)

// fakeStream is one end of an in-memory Operate stream: frames sent here
// land in out, frames queued in in are returned by Recv. A closed in
// channel reads as a clean EOF.
type fakeStream struct {
	in  chan *rpc.Frame
	out chan *rpc.Frame
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		in:  make(chan *rpc.Frame, 8),
		out: make(chan *rpc.Frame, 8),
	}
}

func (s *fakeStream) Send(f *rpc.Frame) error {
	s.out <- f
	return nil
}

func (s *fakeStream) Recv() (*rpc.Frame, error) {
	f, ok := <-s.in
	if !ok {
		return nil, io.EOF
	}
	return f, nil
}

func (s *fakeStream) queue(t *testing.T, msg interface{}) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	s.in <- &rpc.Frame{Content: data}
}

func unauthChannel(s *fakeStream) *Channel {
	return New(s, Metadata{RequestID: uuid.New(), Action: protocol.ActionHealth})
}

func authChannel(s *fakeStream) *Channel {
	return New(s, Metadata{
		RequestID:     uuid.New(),
		Action:        protocol.ActionGenerateSecret,
		Authenticated: &AuthInfo{AccountID: 1, UserID: []byte("u"), SessionID: "sid"},
	})
}

func TestSendReceiveTypedMessages(t *testing.T) {
	stream := newFakeStream()
	ch := unauthChannel(stream)

	require.NoError(t, ch.Send(&protocol.HealthResponse{Healthy: true}))

	frame := <-stream.out
	var sent protocol.HealthResponse
	require.NoError(t, json.Unmarshal(frame.Content, &sent))
	assert.True(t, sent.Healthy)

	stream.queue(t, &protocol.HealthRequest{})
	var req protocol.HealthRequest
	require.NoError(t, ch.Receive(&req))
}

func TestAuthenticationTagMismatchRefused(t *testing.T) {
	stream := newFakeStream()

	// An authenticated message on an unauthenticated channel.
	err := unauthChannel(stream).Send(&protocol.GenerateSecretAck{Success: true})
	assert.True(t, wardenerr.Is(err, wardenerr.CodeAuthenticatedChannelNeeded))

	// An unauthenticated message on an authenticated channel.
	err = authChannel(stream).Send(&protocol.HealthResponse{Healthy: true})
	assert.True(t, wardenerr.Is(err, wardenerr.CodeUnauthenticatedChannelNeeded))

	// The same check applies before reading anything off the wire.
	var ack protocol.GenerateSecretAck
	err = unauthChannel(stream).Receive(&ack)
	assert.True(t, wardenerr.Is(err, wardenerr.CodeAuthenticatedChannelNeeded))
	assert.Empty(t, stream.out)
}

func TestReceiveCleanEOFIsNoMessageReceived(t *testing.T) {
	stream := newFakeStream()
	close(stream.in)

	var req protocol.HealthRequest
	err := unauthChannel(stream).Receive(&req)
	assert.True(t, wardenerr.Is(err, wardenerr.CodeNoMessageReceived))
}

func TestReceiveUnparsableFrameIsInvalidMessage(t *testing.T) {
	stream := newFakeStream()
	stream.in <- &rpc.Frame{Content: []byte("not json")}

	var req protocol.HealthRequest
	err := unauthChannel(stream).Receive(&req)
	assert.True(t, wardenerr.Is(err, wardenerr.CodeInvalidMessage))
}

func TestSendErrorIsIdempotentAndTerminal(t *testing.T) {
	stream := newFakeStream()
	ch := unauthChannel(stream)

	require.NoError(t, ch.SendError(wardenerr.ErrInvalidLogin))
	require.NoError(t, ch.SendError(wardenerr.ErrInvalidLogin))
	assert.Len(t, stream.out, 1)

	frame := <-stream.out
	var ef protocol.ErrorFrame
	require.NoError(t, json.Unmarshal(frame.Content, &ef))
	assert.Equal(t, wardenerr.CodeInvalidLogin.String(), ef.Code)

	// Nothing else may be written after the error frame.
	err := ch.Send(&protocol.HealthResponse{Healthy: true})
	assert.True(t, wardenerr.Is(err, wardenerr.CodeChannelClosed))
}

func TestCloseStopsFurtherSends(t *testing.T) {
	stream := newFakeStream()
	ch := unauthChannel(stream)
	ch.Close()

	err := ch.Send(&protocol.HealthResponse{Healthy: true})
	assert.True(t, wardenerr.Is(err, wardenerr.CodeChannelClosed))
}
