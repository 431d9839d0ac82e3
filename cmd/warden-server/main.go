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
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/warden-project/warden/pkg/version"
)

var (
	configPath       string
	dotEnvPath       string
	remoteStorageKey string
)

var rootCmd = &cobra.Command{
	Use:   "warden-server",
	Short: "Warden secret custody service",
	Long: `warden-server runs the secret custody key server: PAKE-based account
registration and authentication, encrypted secret and signing-key
custody, and the audited gRPC surface clients drive through the warden
client library.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(configPath, dotEnvPath, remoteStorageKey)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		var serveErr *serveError
		if errors.As(err, &serveErr) {
			os.Exit(int(serveErr.code))
		}
		os.Exit(int(exitConfigOrBind))
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String())
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(versionCmd)

	rootCmd.Flags().StringVar(&configPath, "config", "warden.toml", "path to the server TOML configuration")
	rootCmd.Flags().StringVar(&dotEnvPath, "env-file", ".env", "optional .env file loaded before config substitution")
	rootCmd.Flags().StringVar(&remoteStorageKey, "remote-storage-key", "", "base64-encoded 32 byte remote storage key, overrides the config file value")
}
