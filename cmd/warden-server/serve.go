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

package main

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/warden-project/warden/config"
	wcrypto "github.com/warden-project/warden/crypto"
	"github.com/warden-project/warden/internal/logger"
	"github.com/warden-project/warden/ops"
	"github.com/warden-project/warden/pkg/health"
	"github.com/warden-project/warden/rpc"
	"github.com/warden-project/warden/secretstore"
	"github.com/warden-project/warden/secretstore/mongo"
	"github.com/warden-project/warden/secretstore/postgres"
	"github.com/warden-project/warden/server"
	"github.com/warden-project/warden/sessioncache"
	sessmemory "github.com/warden-project/warden/sessioncache/memory"
	sesspostgres "github.com/warden-project/warden/sessioncache/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
)

// exitCode mirrors the CLI exit codes the server binary commits to: 0
// clean shutdown, 1 configuration or bind failure, 2 database
// unavailable after exceeding the configured retry budget.
type exitCode int

const (
	exitClean        exitCode = 0
	exitConfigOrBind exitCode = 1
	exitDatabase     exitCode = 2
)

// serveError carries the exit code a failure should produce, so runServe
// and main don't have to re-derive it from the error's shape.
type serveError struct {
	code exitCode
	err  error
}

func (e *serveError) Error() string { return e.err.Error() }
func (e *serveError) Unwrap() error { return e.err }

func configFail(err error) error { return &serveError{code: exitConfigOrBind, err: err} }
func dbFail(err error) error     { return &serveError{code: exitDatabase, err: err} }

// runServe loads configuration, wires every component, and blocks until
// an OS signal requests shutdown or a listener fails.
func runServe(configPath string, dotEnvPath string, remoteStorageKeyOverride string) error {
	cfg, err := config.Load(config.LoaderOptions{Path: configPath, DotEnvPath: dotEnvPath})
	if err != nil {
		return configFail(fmt.Errorf("load config: %w", err))
	}
	if remoteStorageKeyOverride != "" {
		cfg.RemoteStorageKey = remoteStorageKeyOverride
	}

	log := logger.NewDefaultLogger()
	if lvl, ok := parseLevel(cfg.Logging.Level); ok {
		log.SetLevel(lvl)
	}
	log.SetPrettyPrint(cfg.Logging.Pretty)

	remoteStorageKey, err := base64.StdEncoding.DecodeString(cfg.RemoteStorageKey)
	if err != nil {
		return configFail(fmt.Errorf("decode remote_storage_key: %w", err))
	}
	if len(remoteStorageKey) != wcrypto.AEADKeySize {
		return configFail(fmt.Errorf("remote_storage_key must decode to %d bytes, got %d", wcrypto.AEADKeySize, len(remoteStorageKey)))
	}

	store, sessions, pingDB, err := connectBackends(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	checker := health.NewChecker(map[string]health.DependencyCheck{
		"secret_store": pingDB,
	})
	deps := &ops.Deps{
		Store:            store,
		Sessions:         sessions,
		RemoteStorageKey: remoteStorageKey,
		SessionTTL:       cfg.SessionCache.SessionTTL,
		MaxBlobSize:      cfg.MaxBlobSize,
		Health:           checker,
		Logger:           log,
	}
	gateway := server.New(deps)

	serveGroup, serveCtx := errgroup.WithContext(context.Background())

	var listeners []*grpc.Server
	for i, svc := range cfg.Service {
		setupPath := resolveOpaquePath(svc)
		setup, err := loadOrGenerateServerSetup(setupPath)
		if err != nil {
			return configFail(fmt.Errorf("service[%d] server setup: %w", i, err))
		}
		// Each listening endpoint owns its own PAKE server setup; the
		// dispatcher is shared, so the last-loaded setup wins when
		// several [[service]] blocks are configured. A single-service
		// deployment (the common case) is unaffected.
		deps.ServerSetup = setup

		srv, lis, err := startListener(svc, gateway, log)
		if err != nil {
			return configFail(fmt.Errorf("service[%d] listen: %w", i, err))
		}
		listeners = append(listeners, srv)
		serveGroup.Go(func() error {
			if err := srv.Serve(lis); err != nil && err != grpc.ErrServerStopped {
				return err
			}
			return nil
		})
	}

	var healthSrv *health.Server
	if cfg.Metrics.Enabled {
		healthSrv = health.NewServer(checker, log, metricsPort(cfg.Metrics.Address))
		if cfg.Metrics.AuthSecret != "" {
			secret, err := base64.StdEncoding.DecodeString(cfg.Metrics.AuthSecret)
			if err != nil {
				return configFail(fmt.Errorf("decode metrics auth_secret: %w", err))
			}
			healthSrv.WithAuthSecret(secret)
		}
		if err := healthSrv.Start(); err != nil {
			return configFail(fmt.Errorf("start metrics server: %w", err))
		}
	}

	log.Info("warden server started", logger.Int("services", len(listeners)))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("shutting down")
	case <-serveCtx.Done():
		log.Error("listener failed", logger.Error(context.Cause(serveCtx)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, srv := range listeners {
		srv.GracefulStop()
	}
	if healthSrv != nil {
		_ = healthSrv.Stop(ctx)
	}
	return serveGroup.Wait()
}

// connectBackends dials the configured secret store and pairs it with a
// session cache: Postgres gets the Postgres session cache so both share
// one pool, MongoDB falls back to the in-process memory cache, since no
// Mongo-backed session cache exists, and a config with no database
// backend fails as a configuration error. This trades session durability for MongoDB
// deployments against not maintaining a second database dependency for
// a cache that is already wall-clock-expiring and reconstructible.
func connectBackends(cfg *config.Config, log logger.Logger) (secretstore.Store, sessioncache.Cache, health.DependencyCheck, error) {
	retries := cfg.Database.ConnectionRetries
	if retries <= 0 {
		retries = 1
	}
	delay := cfg.Database.ConnectionRetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	switch cfg.Database.Backend() {
	case config.BackendPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.ConnectionTimeout)
		defer cancel()

		var pool *pgxpool.Pool
		var lastErr error
		for attempt := 0; attempt < retries; attempt++ {
			pool, lastErr = pgxpool.New(ctx, cfg.Database.PostgresURI)
			if lastErr == nil {
				if lastErr = pool.Ping(ctx); lastErr == nil {
					break
				}
			}
			log.Warn("postgres connection attempt failed",
				logger.Int("attempt", attempt+1), logger.Error(lastErr))
			time.Sleep(delay)
		}
		if lastErr != nil {
			return nil, nil, nil, dbFail(fmt.Errorf("connect postgres after %d attempts: %w", retries, lastErr))
		}

		store := postgres.New(ctx, pool)
		cache := sesspostgres.New(ctx, pool)
		return store, cache, func(ctx context.Context) error { return store.Ping() }, nil

	case config.BackendMongoDB:
		var store *mongo.Store
		var lastErr error
		for attempt := 0; attempt < retries; attempt++ {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.ConnectionTimeout)
			store, lastErr = mongo.Connect(ctx, cfg.Database.MongoDBURI, cfg.Database.DBName)
			cancel()
			if lastErr == nil {
				break
			}
			log.Warn("mongodb connection attempt failed",
				logger.Int("attempt", attempt+1), logger.Error(lastErr))
			time.Sleep(delay)
		}
		if lastErr != nil {
			return nil, nil, nil, dbFail(fmt.Errorf("connect mongodb after %d attempts: %w", retries, lastErr))
		}

		cache := sessmemory.New()
		return store, cache, func(ctx context.Context) error { return store.Ping() }, nil

	default:
		return nil, nil, nil, configFail(fmt.Errorf("no database backend configured"))
	}
}

// startListener dials credentials and binds one gRPC listener for a
// single [[service]] block; the caller supervises the Serve loop.
func startListener(svc config.ServiceConfig, gateway *server.Gateway, log logger.Logger) (*grpc.Server, net.Listener, error) {
	creds, err := serviceCredentials(svc)
	if err != nil {
		return nil, nil, err
	}

	opts := []grpc.ServerOption{rpc.ServerCodecOption()}
	if creds != nil {
		opts = append(opts, grpc.Creds(creds))
	}

	srv := grpc.NewServer(opts...)
	rpc.RegisterGatewayServer(srv, gateway)

	addr := net.JoinHostPort(svc.Address, fmt.Sprintf("%d", svc.Port))
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	log.Info("listening", logger.String("address", addr))

	return srv, lis, nil
}

// serviceCredentials builds TLS transport credentials for one service
// block. A service with no certificate configured serves plaintext,
// which is only appropriate behind a terminating proxy in production.
// client_auth makes the TLS handshake require a client certificate;
// verifying a presented client certificate
// against a trust store is left to the proxy or listener fronting this
// port, since the config schema carries no separate client CA path.
func serviceCredentials(svc config.ServiceConfig) (credentials.TransportCredentials, error) {
	if svc.Certificate == "" || svc.PrivateKey == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(svc.Certificate, svc.PrivateKey)
	if err != nil {
		return nil, err
	}
	tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}}
	if svc.ClientAuth {
		tlsCfg.ClientAuth = tls.RequireAnyClientCert
	}
	return credentials.NewTLS(tlsCfg), nil
}

// resolveOpaquePath joins OpaquePath as a directory prefix with
// OpaqueServerKey's filename when OpaquePath is set, otherwise
// OpaqueServerKey is used as-is. This gives both TOML keys a role: the
// persisted-state section names opaque_server_key as the file, and
// opaque_path lets several [[service]] blocks share one setup directory
// without repeating it in every entry.
func resolveOpaquePath(svc config.ServiceConfig) string {
	if svc.OpaquePath == "" {
		return svc.OpaqueServerKey
	}
	return filepath.Join(svc.OpaquePath, svc.OpaqueServerKey)
}

func metricsPort(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 9090
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return 9090
	}
	return port
}

func parseLevel(s string) (logger.Level, bool) {
	switch s {
	case "debug":
		return logger.DebugLevel, true
	case "info":
		return logger.InfoLevel, true
	case "warn":
		return logger.WarnLevel, true
	case "error":
		return logger.ErrorLevel, true
	default:
		return logger.InfoLevel, false
	}
}
