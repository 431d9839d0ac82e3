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

// Package server implements the dispatcher and audit wrapper. One
// Gateway fields every incoming Operate stream regardless of action,
// resolves (or deliberately skips) session authentication, constructs
// the per-invocation channel and ops.Context, runs the matching
// operation state machine, and emits the Started/Successful/Failed
// audit events around it.
package server

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/metadata"

	"github.com/warden-project/warden/channel"
	"github.com/warden-project/warden/internal/logger"
	"github.com/warden-project/warden/internal/metrics"
	"github.com/warden-project/warden/internal/wardenerr"
	"github.com/warden-project/warden/ops"
	"github.com/warden-project/warden/protocol"
	"github.com/warden-project/warden/rpc"
	"github.com/warden-project/warden/secretstore"
	"github.com/warden-project/warden/sessioncache"
)

// errorGracePeriod is how long Operate waits after writing an error frame
// before returning the terminal gRPC status, so a client that is mid-Recv
// has a chance to read the defensive error frame before the stream drops.
const errorGracePeriod = 50 * time.Millisecond

type operationFunc func(*ops.Context) error

// Gateway implements rpc.GatewayServer: the single Operate method every
// action multiplexes onto.
type Gateway struct {
	deps *ops.Deps
	log  logger.Logger
	ops  map[protocol.Action]operationFunc
}

// New constructs a Gateway wired to the shared operation dependencies.
func New(deps *ops.Deps) *Gateway {
	g := &Gateway{deps: deps, log: deps.Logger}
	g.ops = map[protocol.Action]operationFunc{
		protocol.ActionRegister:                   ops.Register,
		protocol.ActionAuthenticate:                ops.Authenticate,
		protocol.ActionCreateStorageKey:            ops.CreateStorageKey,
		protocol.ActionRetrieveStorageKey:          ops.RetrieveStorageKey,
		protocol.ActionGenerateSecret:              ops.GenerateSecret,
		protocol.ActionRetrieveSecret:              ops.RetrieveSecret,
		protocol.ActionImportSigningKey:            ops.ImportSigningKey,
		protocol.ActionRemoteGenerateSigningKey:    ops.RemoteGenerateSigningKey,
		protocol.ActionRemoteSignBytes:             ops.RemoteSignBytes,
		protocol.ActionStoreServerEncryptedBlob:    ops.StoreServerEncryptedBlob,
		protocol.ActionRetrieveServerEncryptedBlob: ops.RetrieveServerEncryptedBlob,
		protocol.ActionDeleteKey:                   ops.DeleteKey,
		protocol.ActionLogout:                      ops.Logout,
		protocol.ActionGetUserID:                   ops.GetUserID,
		protocol.ActionRetrieveAuditEvents:         ops.RetrieveAuditEvents,
		protocol.ActionHealth:                      ops.Health,
		protocol.ActionMetrics:                     ops.Metrics,
		protocol.ActionCheckSession:                ops.CheckSession,
	}
	return g
}

// Operate is the dispatcher's one entry point, driving every action
// over the single Operate stream.
func (g *Gateway) Operate(stream rpc.GatewayOperateServer) error {
	md, _ := metadata.FromIncomingContext(stream.Context())

	action := protocol.Action(firstMeta(md, protocol.MetadataAction))
	if !action.Valid() {
		werr := wardenerr.New(wardenerr.CodeInvalidRequest, "unknown action")
		return wardenerr.ToStatus(werr).Err()
	}

	requestID := parseRequestID(firstMeta(md, protocol.MetadataRequestID))
	sessionIDHeader := firstMeta(md, protocol.MetadataSessionID)

	var auth *channel.AuthInfo
	if action.RequiresAuthentication() {
		resolved, err := g.resolveSession(sessionIDHeader)
		if err != nil {
			g.emitAudit(requestID, 0, nil, action, secretstore.EventFailed, err)
			return wardenerr.ToStatus(err).Err()
		}
		auth = resolved
	}

	var accountID int64
	if auth != nil {
		accountID = auth.AccountID
	}

	ch := channel.New(stream, channel.Metadata{
		RequestID:     requestID,
		Action:        action,
		Authenticated: auth,
	})

	g.emitAudit(requestID, accountID, nil, action, secretstore.EventStarted, nil)

	opCtx := &ops.Context{Deps: g.deps, Channel: ch}
	fn, ok := g.ops[action]
	if !ok {
		err := wardenerr.New(wardenerr.CodeInvalidRequest, "action not implemented")
		g.emitAudit(requestID, accountID, nil, action, secretstore.EventFailed, err)
		return wardenerr.ToStatus(err).Err()
	}

	start := time.Now()
	err := fn(opCtx)
	metrics.Global().Record(string(action), err == nil, time.Since(start))

	if err != nil {
		werr := asWardenError(err)
		g.log.Error("operation failed",
			logger.String("action", string(action)),
			logger.String("request_id", requestID.String()),
			logger.Error(err))

		ch.SendError(werr)
		g.emitAudit(requestID, accountID, opCtx.KeyID, action, secretstore.EventFailed, werr)
		time.Sleep(errorGracePeriod)
		return wardenerr.ToStatus(werr).Err()
	}

	g.emitAudit(requestID, accountID, opCtx.KeyID, action, secretstore.EventSuccessful, nil)
	return nil
}

// resolveSession performs the dispatcher's session lookup: a missing or
// expired session aborts the operation, and a cache outage is always
// CodeStorageUnavailable so it never reads to the client as ordinary
// session expiry.
func (g *Gateway) resolveSession(sessionID string) (*channel.AuthInfo, error) {
	if sessionID == "" {
		return nil, wardenerr.ErrInvalidSession
	}

	sess, result, err := g.deps.Sessions.Find(sessionID)
	if err != nil {
		return nil, wardenerr.Wrap(wardenerr.CodeStorageUnavailable, err, "session cache unavailable")
	}
	switch result {
	case sessioncache.ResultExpired:
		// Reported as invalid rather than expired: the client's remedy is
		// the same either way, and the cache may already have dropped the
		// row, making the two cases indistinguishable on a retry. The
		// expired kind stays in the chain for the server log.
		return nil, wardenerr.Wrap(wardenerr.CodeInvalidSession, wardenerr.ErrExpiredSession, "invalid session")
	case sessioncache.ResultMissing:
		return nil, wardenerr.ErrInvalidSession
	}

	account, err := g.deps.Store.FindUserByID(sess.UserID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, wardenerr.ErrInvalidAccount
	}

	return &channel.AuthInfo{
		AccountID:   sess.AccountID,
		AccountName: account.AccountName,
		UserID:      sess.UserID,
		SessionID:   sessionID,
	}, nil
}

// emitAudit writes one audit event. CheckSession is a client-side
// polling probe and deliberately emits none. A write failure is logged,
// never allowed to fail the RPC: a Failed event must never be silently
// dropped, but the channel must still close cleanly even when the audit
// store itself is down.
func (g *Gateway) emitAudit(requestID uuid.UUID, accountID int64, keyID []byte, action protocol.Action, status secretstore.EventStatus, cause error) {
	if action == protocol.ActionCheckSession {
		return
	}

	event := &secretstore.AuditEvent{
		RequestID: requestID.String(),
		AccountID: accountID,
		KeyID:     keyID,
		Action:    string(action),
		Status:    status,
		Timestamp: time.Now(),
	}
	if cause != nil {
		event.Message = wardenerr.FormatAudit(cause)
	}

	if err := g.deps.Store.CreateAuditEvent(event); err != nil {
		g.log.Error("audit event write failed",
			logger.String("request_id", event.RequestID),
			logger.String("action", event.Action),
			logger.String("status", status.String()),
			logger.Error(err))
	}
}

func asWardenError(err error) *wardenerr.Error {
	var werr *wardenerr.Error
	if errors.As(err, &werr) {
		return werr
	}
	return wardenerr.Wrap(wardenerr.CodeInternal, err, "internal error")
}

func firstMeta(md metadata.MD, key string) string {
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func parseRequestID(s string) uuid.UUID {
	if s == "" {
		return uuid.New()
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.New()
	}
	return u
}
