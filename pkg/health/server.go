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

package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/warden-project/warden/internal/logger"
	"github.com/warden-project/warden/internal/metrics"
)

// watchInterval is how often /health/watch pushes a fresh status frame.
const watchInterval = 10 * time.Second

// Server exposes the health checker and the Prometheus-backed action
// snapshot over a plain HTTP mux, separate from the gRPC key server port.
type Server struct {
	checker    *Checker
	logger     logger.Logger
	port       int
	server     *http.Server
	authSecret []byte
}

// NewServer creates a new health check server.
func NewServer(checker *Checker, log logger.Logger, port int) *Server {
	return &Server{
		checker: checker,
		logger:  log,
		port:    port,
	}
}

// WithAuthSecret requires a bearer token (an HMAC-signed JWT under this
// secret) on /metrics and /health/watch. Liveness and readiness stay
// open so orchestrators can probe without credentials.
func (s *Server) WithAuthSecret(secret []byte) *Server {
	s.authSecret = secret
	return s
}

// Start starts the health check server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/live", s.handleLiveness)
	mux.HandleFunc("/health/ready", s.handleReadiness)
	mux.HandleFunc("/health/watch", s.requireBearer(s.handleWatch))
	mux.HandleFunc("/metrics", s.requireBearer(s.handleMetrics))
	mux.Handle("/metrics/prometheus", s.requireBearer(func(w http.ResponseWriter, r *http.Request) {
		metrics.Handler().ServeHTTP(w, r)
	}))

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("starting health check server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("health check server error: " + err.Error())
		}
	}()

	return nil
}

// Stop stops the health check server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.checker.CheckAll(r.Context())

	switch status.Status {
	case StatusUnhealthy:
		w.WriteHeader(http.StatusServiceUnavailable)
	default:
		w.WriteHeader(http.StatusOK)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// handleReadiness reports ready only once every dependency check passes.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	status := s.checker.CheckAll(r.Context())

	ready := status.Status != StatusUnhealthy

	response := map[string]interface{}{
		"ready":        ready,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"dependencies": status.Dependencies,
	}

	if !ready {
		response["errors"] = status.Errors
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// requireBearer gates a handler behind the configured admin token. With
// no secret configured every request passes.
func (s *Server) requireBearer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(s.authSecret) == 0 {
			next(w, r)
			return
		}

		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		token, err := jwt.Parse(raw, func(tok *jwt.Token) (interface{}, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
			}
			return s.authSecret, nil
		})
		if err != nil || !token.Valid {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

var watchUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleWatch streams the aggregate health status over a websocket, one
// JSON frame immediately and then one per watchInterval, until the peer
// disconnects.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := watchUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		status := s.checker.CheckAll(r.Context())
		if err := conn.WriteJSON(status); err != nil {
			return
		}
		select {
		case <-ticker.C:
		case <-r.Context().Done():
			return
		}
	}
}

// handleMetrics reports the in-process per-action snapshot as JSON. The
// Prometheus exposition format is served separately by metrics.Handler().
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snapshot := metrics.Global().Snapshot()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(snapshot)
}

// StartHealthServer is a convenience function that wires a checker with
// the given dependency probes and starts the HTTP server.
func StartHealthServer(port int, checks map[string]DependencyCheck, log logger.Logger) (*Server, error) {
	checker := NewChecker(checks)
	server := NewServer(checker, log, port)
	if err := server.Start(); err != nil {
		return nil, err
	}
	return server, nil
}
