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
	"fmt"
	"os"

	wcrypto "github.com/warden-project/warden/crypto"
)

// loadOrGenerateServerSetup reads the PAKE server setup from path,
// creating it on first run. The setup is the server's most sensitive
// long-term material; the file is written with 0600 permissions.
func loadOrGenerateServerSetup(path string) (*wcrypto.ServerSetup, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return wcrypto.UnmarshalServerSetup(data)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read server setup %s: %w", path, err)
	}

	setup, err := wcrypto.GenerateServerSetup()
	if err != nil {
		return nil, fmt.Errorf("generate server setup: %w", err)
	}

	marshaled, err := setup.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal server setup: %w", err)
	}
	if err := os.WriteFile(path, marshaled, 0o600); err != nil {
		return nil, fmt.Errorf("write server setup %s: %w", path, err)
	}
	return setup, nil
}
