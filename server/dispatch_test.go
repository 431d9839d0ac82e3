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

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	wcrypto "github.com/warden-project/warden/crypto"
	"github.com/warden-project/warden/internal/logger"
	"github.com/warden-project/warden/internal/rng"
	"github.com/warden-project/warden/ops"
	"github.com/warden-project/warden/pkg/health"
	"github.com/warden-project/warden/protocol"
	"github.com/warden-project/warden/rpc"
	"github.com/warden-project/warden/secretstore"
	memstore "github.com/warden-project/warden/secretstore/memory"
	"github.com/warden-project/warden/sessioncache"
	memcache "github.com/warden-project/warden/sessioncache/memory"
)

// fakeOperateStream stands in for one gRPC Operate stream: frames queued
// in `in` are what the client sent; `out` collects what the dispatcher
// and operation sent back.
type fakeOperateStream struct {
	grpc.ServerStream
	ctx context.Context
	in  chan *rpc.Frame
	out chan *rpc.Frame
}

func (s *fakeOperateStream) Context() context.Context { return s.ctx }

func (s *fakeOperateStream) Send(f *rpc.Frame) error { s.out <- f; return nil }

func (s *fakeOperateStream) Recv() (*rpc.Frame, error) {
	select {
	case f, ok := <-s.in:
		if !ok {
			return nil, io.EOF
		}
		return f, nil
	default:
		return nil, io.EOF
	}
}

func newOperateStream(md metadata.MD) *fakeOperateStream {
	return &fakeOperateStream{
		ctx: metadata.NewIncomingContext(context.Background(), md),
		in:  make(chan *rpc.Frame, 8),
		out: make(chan *rpc.Frame, 8),
	}
}

func (s *fakeOperateStream) queue(t *testing.T, msg interface{}) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	s.in <- &rpc.Frame{Content: data}
}

// auditSpy records every audit event alongside the real store.
type auditSpy struct {
	secretstore.Store
	events []*secretstore.AuditEvent
}

func (s *auditSpy) CreateAuditEvent(event *secretstore.AuditEvent) error {
	s.events = append(s.events, event)
	return s.Store.CreateAuditEvent(event)
}

func newTestGateway(t *testing.T) (*Gateway, *auditSpy, *ops.Deps) {
	t.Helper()

	setup, err := wcrypto.GenerateServerSetup()
	require.NoError(t, err)
	remoteKey, err := rng.Bytes(wcrypto.AEADKeySize)
	require.NoError(t, err)

	spy := &auditSpy{Store: memstore.New()}
	deps := &ops.Deps{
		Store:            spy,
		Sessions:         memcache.New(),
		ServerSetup:      setup,
		RemoteStorageKey: remoteKey,
		SessionTTL:       time.Hour,
		MaxBlobSize:      1024,
		Health:           health.NewChecker(nil),
		Logger:           logger.NewLogger(io.Discard, logger.ErrorLevel),
	}
	return New(deps), spy, deps
}

func operateMD(action protocol.Action, requestID uuid.UUID, sessionID string) metadata.MD {
	md := metadata.Pairs(
		protocol.MetadataAction, string(action),
		protocol.MetadataRequestID, requestID.String(),
	)
	if sessionID != "" {
		md.Set(protocol.MetadataSessionID, sessionID)
	}
	return md
}

func TestOperateHealthEmitsStartedAndTerminalAudit(t *testing.T) {
	gateway, spy, _ := newTestGateway(t)

	requestID := uuid.New()
	stream := newOperateStream(operateMD(protocol.ActionHealth, requestID, ""))
	stream.queue(t, &protocol.HealthRequest{})

	require.NoError(t, gateway.Operate(stream))

	require.Len(t, spy.events, 2)
	assert.Equal(t, secretstore.EventStarted, spy.events[0].Status)
	assert.Equal(t, secretstore.EventSuccessful, spy.events[1].Status)
	assert.Equal(t, requestID.String(), spy.events[0].RequestID)
	assert.Equal(t, requestID.String(), spy.events[1].RequestID)
	assert.Equal(t, string(protocol.ActionHealth), spy.events[0].Action)

	// The operation's response frame reached the stream.
	require.Len(t, stream.out, 1)
}

func TestOperateUnknownActionRejected(t *testing.T) {
	gateway, spy, _ := newTestGateway(t)

	stream := newOperateStream(operateMD(protocol.Action("drop_table"), uuid.New(), ""))

	err := gateway.Operate(stream)
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Empty(t, spy.events)
}

func TestOperateMissingSessionFailsBeforeStarting(t *testing.T) {
	gateway, spy, _ := newTestGateway(t)

	stream := newOperateStream(operateMD(protocol.ActionGenerateSecret, uuid.New(), ""))

	err := gateway.Operate(stream)
	require.Error(t, err)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	// One Failed event for the declared action; no Started event.
	require.Len(t, spy.events, 1)
	assert.Equal(t, secretstore.EventFailed, spy.events[0].Status)
	assert.Equal(t, string(protocol.ActionGenerateSecret), spy.events[0].Action)
}

func TestOperateExpiredSessionFails(t *testing.T) {
	gateway, spy, deps := newTestGateway(t)

	account, err := deps.Store.CreateUser([]byte("alice-user-id-16"), "alice", []byte("blob"))
	require.NoError(t, err)

	sessionID, err := deps.Sessions.Create(account.AccountID, account.UserID, []byte("ct"), time.Millisecond)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	stream := newOperateStream(operateMD(protocol.ActionGenerateSecret, uuid.New(), sessionID))

	opErr := gateway.Operate(stream)
	require.Error(t, opErr)
	assert.Equal(t, codes.Unauthenticated, status.Code(opErr))
	assert.Equal(t, "invalid session", status.Convert(opErr).Message())

	require.Len(t, spy.events, 1)
	assert.Equal(t, secretstore.EventFailed, spy.events[0].Status)
	assert.Contains(t, spy.events[0].Message, "invalid_session")
}

func TestOperateSessionCacheOutageIsInternal(t *testing.T) {
	gateway, spy, deps := newTestGateway(t)
	deps.Sessions = &failingCache{}

	stream := newOperateStream(operateMD(protocol.ActionGenerateSecret, uuid.New(), uuid.NewString()))

	err := gateway.Operate(stream)
	require.Error(t, err)
	// Never Unauthenticated: the client must not mistake an outage for
	// session expiry.
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Equal(t, "internal error", status.Convert(err).Message())
	require.Len(t, spy.events, 1)
	assert.Equal(t, secretstore.EventFailed, spy.events[0].Status)
}

func TestOperateAuthenticatedLogoutSucceeds(t *testing.T) {
	gateway, spy, deps := newTestGateway(t)

	account, err := deps.Store.CreateUser([]byte("alice-user-id-16"), "alice", []byte("blob"))
	require.NoError(t, err)
	sessionID, err := deps.Sessions.Create(account.AccountID, account.UserID, []byte("ct"), time.Hour)
	require.NoError(t, err)

	requestID := uuid.New()
	stream := newOperateStream(operateMD(protocol.ActionLogout, requestID, sessionID))
	stream.queue(t, &protocol.LogoutRequest{})

	require.NoError(t, gateway.Operate(stream))

	_, result, err := deps.Sessions.Find(sessionID)
	require.NoError(t, err)
	assert.NotEqual(t, 0, int(result))

	require.Len(t, spy.events, 2)
	assert.Equal(t, secretstore.EventStarted, spy.events[0].Status)
	assert.Equal(t, secretstore.EventSuccessful, spy.events[1].Status)
	assert.Equal(t, account.AccountID, spy.events[0].AccountID)
}

func TestOperateFailedOperationSendsErrorFrame(t *testing.T) {
	gateway, spy, deps := newTestGateway(t)

	_, err := deps.Store.CreateUser([]byte("alice-user-id-16"), "alice", []byte("blob"))
	require.NoError(t, err)

	// A register attempt against a taken name dies inside the operation.
	req, _, err := wcrypto.BeginRegistration("pw")
	require.NoError(t, err)

	stream := newOperateStream(operateMD(protocol.ActionRegister, uuid.New(), ""))
	stream.queue(t, &protocol.RegisterStartRequest{AccountName: "alice", Request: req.ToWire()})

	opErr := gateway.Operate(stream)
	require.Error(t, opErr)
	assert.Equal(t, codes.AlreadyExists, status.Code(opErr))

	// The defensive error frame precedes the status.
	require.Len(t, stream.out, 1)
	var frame protocol.ErrorFrame
	require.NoError(t, json.Unmarshal((<-stream.out).Content, &frame))
	assert.Equal(t, "duplicate_account", frame.Code)

	require.Len(t, spy.events, 2)
	assert.Equal(t, secretstore.EventStarted, spy.events[0].Status)
	assert.Equal(t, secretstore.EventFailed, spy.events[1].Status)
	assert.NotEmpty(t, spy.events[1].Message)
}

func TestOperateCheckSessionEmitsNoAudit(t *testing.T) {
	gateway, spy, _ := newTestGateway(t)

	stream := newOperateStream(operateMD(protocol.ActionCheckSession, uuid.New(), ""))
	stream.queue(t, &protocol.CheckSessionRequest{SessionID: uuid.NewString()})

	require.NoError(t, gateway.Operate(stream))
	assert.Empty(t, spy.events)
}

// failingCache simulates a session cache outage.
type failingCache struct{}

func (failingCache) Create(int64, []byte, []byte, time.Duration) (string, error) {
	return "", errUnavailable
}

func (failingCache) Find(string) (*sessioncache.Session, sessioncache.Result, error) {
	return nil, sessioncache.ResultMissing, errUnavailable
}

func (failingCache) Delete(string) error { return errUnavailable }

var errUnavailable = errors.New("cache unreachable")
