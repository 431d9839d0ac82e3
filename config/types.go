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

// Package config loads and validates the key server's TOML
// configuration: the [[service]] listener blocks, [database],
// [session_cache], the remote storage key and the blob size cap.
package config

import "time"

// Config is the top-level server configuration, as loaded from TOML.
type Config struct {
	Service         []ServiceConfig `toml:"service"`
	Database        DatabaseConfig  `toml:"database"`
	SessionCache    SessionCacheConfig `toml:"session_cache"`
	RemoteStorageKey string         `toml:"remote_storage_key"`
	MaxBlobSize     int64           `toml:"max_blob_size"`
	Logging         LoggingConfig   `toml:"logging"`
	Metrics         MetricsConfig   `toml:"metrics"`
}

// ServiceConfig describes one listening endpoint.
type ServiceConfig struct {
	Address         string `toml:"address"`
	Port            int    `toml:"port"`
	PrivateKey      string `toml:"private_key"`
	Certificate     string `toml:"certificate"`
	OpaqueServerKey string `toml:"opaque_server_key"`
	OpaquePath      string `toml:"opaque_path"`
	ClientAuth      bool   `toml:"client_auth"`
}

// DatabaseConfig selects and configures the secret/audit store backend.
type DatabaseConfig struct {
	MongoDBURI        string        `toml:"mongodb_uri"`
	PostgresURI       string        `toml:"postgres_uri"`
	DBName            string        `toml:"db_name"`
	MaxConnections    int           `toml:"max_connections"`
	ConnectionRetries int           `toml:"connection_retries"`
	ConnectionRetryDelay time.Duration `toml:"connection_retry_delay"`
	ConnectionTimeout time.Duration `toml:"connection_timeout"`
}

// SessionCacheConfig configures the session cache.
type SessionCacheConfig struct {
	SessionTTL time.Duration `toml:"session_ttl"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

// MetricsConfig controls the health/metrics HTTP endpoint. AuthSecret,
// when set (base64), gates /metrics and /health/watch behind a bearer
// token signed with it.
type MetricsConfig struct {
	Enabled    bool   `toml:"enabled"`
	Address    string `toml:"address"`
	AuthSecret string `toml:"auth_secret"`
}

// Backend identifies which secret-store engine is configured.
type Backend int

const (
	BackendUnset Backend = iota
	BackendPostgres
	BackendMongoDB
)

// Backend inspects DatabaseConfig and reports which store engine is
// configured. PostgresURI takes precedence if both are set.
func (d DatabaseConfig) Backend() Backend {
	switch {
	case d.PostgresURI != "":
		return BackendPostgres
	case d.MongoDBURI != "":
		return BackendMongoDB
	default:
		return BackendUnset
	}
}
