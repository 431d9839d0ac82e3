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

// Package client is the client-side mirror of the server's operation
// state machines. It drives the channel exactly as the server does,
// holds the derived key hierarchy (MasterKey, StorageKey) in memory for
// the lifetime of one authenticated session, and exposes one typed
// method per action for a CLI or other front-end to call; this package
// is the surface such a front-end would be built on.
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/warden-project/warden/channel"
	"github.com/warden-project/warden/internal/wardenerr"
	"github.com/warden-project/warden/protocol"
	"github.com/warden-project/warden/rpc"
)

// Config is the client-side configuration: the server location plus
// optional mutual-TLS material.
type Config struct {
	ServerLocation   string
	TrustCertificate string // PEM file; empty uses the system pool
	ClientTLSKey     string
	ClientTLSCert    string
}

// Client holds one gRPC connection and the key material and session
// state derived from a single authenticated login. It is not safe for
// concurrent use by multiple goroutines issuing different operations at
// once: one operation state machine runs per connection, and the CLI
// this library serves is itself single-threaded.
type Client struct {
	cfg  Config
	conn *grpc.ClientConn
	gw   rpc.GatewayClient

	mu          sync.Mutex
	accountName string
	userID      []byte
	sessionID   string
	exportKey   []byte
	masterKey   []byte
	storageKey  []byte
}

// Dial opens the gRPC connection described by cfg. TLS is used whenever
// TrustCertificate or client certificate material is configured;
// otherwise the connection is plaintext, matching a local/dev server.
func Dial(cfg Config) (*Client, error) {
	creds, err := dialCredentials(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := grpc.NewClient(cfg.ServerLocation, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", cfg.ServerLocation, err)
	}

	return &Client{
		cfg:  cfg,
		conn: conn,
		gw:   rpc.NewGatewayClient(conn),
	}, nil
}

func dialCredentials(cfg Config) (credentials.TransportCredentials, error) {
	if cfg.TrustCertificate == "" && cfg.ClientTLSCert == "" {
		return insecure.NewCredentials(), nil
	}

	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.TrustCertificate != "" {
		pem, err := os.ReadFile(cfg.TrustCertificate)
		if err != nil {
			return nil, fmt.Errorf("client: read trust certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("client: trust certificate %s contains no valid PEM", cfg.TrustCertificate)
		}
		tlsCfg.RootCAs = pool
	}

	if cfg.ClientTLSCert != "" && cfg.ClientTLSKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientTLSCert, cfg.ClientTLSKey)
		if err != nil {
			return nil, fmt.Errorf("client: load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	return credentials.NewTLS(tlsCfg), nil
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// ResponseMetadata accompanies every client call: the request id lets
// a caller correlate a failure with server-side logs.
type ResponseMetadata struct {
	RequestID string
}

// UserID returns the user id, or nil until GetUserID or CreateStorageKey
// has fetched it; Authenticate clears it.
func (c *Client) UserID() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// SessionID returns the current session id, or "" before Authenticate.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// openChannel starts one Operate stream for action, attaches the
// metadata the dispatcher expects (action, account name, session id),
// and binds it to a fresh channel.Channel whose authentication tag
// mirrors the server's own protocol.Action.RequiresAuthentication, so
// the client enforces the same message-type contract client-side.
func (c *Client) openChannel(ctx context.Context, action protocol.Action) (*channel.Channel, ResponseMetadata, error) {
	requestID := uuid.New()

	md := metadata.Pairs(
		protocol.MetadataAction, string(action),
		protocol.MetadataRequestID, requestID.String(),
	)

	c.mu.Lock()
	accountName := c.accountName
	sessionID := c.sessionID
	c.mu.Unlock()

	if accountName != "" {
		md.Set(protocol.MetadataAccountName, accountName)
	}
	if sessionID != "" {
		md.Set(protocol.MetadataSessionID, sessionID)
	}

	ctx = metadata.NewOutgoingContext(ctx, md)
	stream, err := c.gw.Operate(ctx)
	if err != nil {
		return nil, ResponseMetadata{RequestID: requestID.String()}, wardenerr.Wrap(wardenerr.CodeTransport, err, "open operate stream")
	}

	var auth *channel.AuthInfo
	if action.RequiresAuthentication() {
		auth = &channel.AuthInfo{SessionID: sessionID}
	}

	ch := channel.New(stream, channel.Metadata{
		RequestID:     requestID,
		Action:        action,
		Authenticated: auth,
	})
	return ch, ResponseMetadata{RequestID: requestID.String()}, nil
}
