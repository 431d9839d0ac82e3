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

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// LoaderOptions configures how a server configuration file is located and
// processed.
type LoaderOptions struct {
	// Path is the TOML file to load. Defaults to "warden.toml".
	Path string
	// DotEnvPath, if non-empty, is loaded with godotenv before substitution.
	DotEnvPath string
	// SkipEnvSubstitution disables ${VAR}/${VAR:default} substitution.
	SkipEnvSubstitution bool
}

// DefaultLoaderOptions returns the default loader configuration.
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{
		Path:       "warden.toml",
		DotEnvPath: ".env",
	}
}

// Load reads and validates the server configuration.
func Load(opts ...LoaderOptions) (*Config, error) {
	options := DefaultLoaderOptions()
	if len(opts) > 0 {
		options = opts[0]
	}

	if options.DotEnvPath != "" {
		if _, err := os.Stat(options.DotEnvPath); err == nil {
			if err := godotenv.Load(options.DotEnvPath); err != nil {
				return nil, fmt.Errorf("load .env: %w", err)
			}
		}
	}

	raw, err := os.ReadFile(options.Path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", options.Path, err)
	}

	if !options.SkipEnvSubstitution {
		raw = []byte(SubstituteEnvVars(string(raw)))
	}

	var cfg Config
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", options.Path, err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.SessionCache.SessionTTL == 0 {
		cfg.SessionCache.SessionTTL = defaultSessionTTL
	}
	if cfg.MaxBlobSize == 0 {
		cfg.MaxBlobSize = defaultMaxBlobSize
	}
	if cfg.Database.MaxConnections == 0 {
		cfg.Database.MaxConnections = defaultMaxConnections
	}
	if cfg.Database.ConnectionTimeout == 0 {
		cfg.Database.ConnectionTimeout = defaultConnectionTimeout
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":9090"
	}
}

const (
	defaultSessionTTL        = time.Hour
	defaultMaxBlobSize       = 1 << 20 // 1 MiB
	defaultMaxConnections    = 10
	defaultConnectionTimeout = 10 * time.Second
)

// Validate checks that the configuration is internally consistent and
// sufficient to start the server.
func (c *Config) Validate() error {
	if len(c.Service) == 0 {
		return fmt.Errorf("config: at least one [[service]] block is required")
	}
	for i, svc := range c.Service {
		if svc.Address == "" {
			return fmt.Errorf("config: service[%d].address is required", i)
		}
		if svc.Port == 0 {
			return fmt.Errorf("config: service[%d].port is required", i)
		}
		if svc.OpaqueServerKey == "" {
			return fmt.Errorf("config: service[%d].opaque_server_key is required", i)
		}
	}
	if c.Database.Backend() == BackendUnset {
		return fmt.Errorf("config: database requires mongodb_uri or postgres_uri")
	}
	if c.RemoteStorageKey == "" {
		return fmt.Errorf("config: remote_storage_key is required")
	}
	if c.MaxBlobSize <= 0 {
		return fmt.Errorf("config: max_blob_size must be positive")
	}
	return nil
}
