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

package ops

import (
	"context"

	"github.com/warden-project/warden/pkg/health"
	"github.com/warden-project/warden/protocol"
)

// Health runs the unauthenticated liveness probe. The wire contract
// collapses the checker's full per-dependency breakdown down to one
// bool; the breakdown itself is served over the HTTP health endpoints
// rather than this channel.
func Health(c *Context) error {
	var req protocol.HealthRequest
	if err := c.Channel.Receive(&req); err != nil {
		return err
	}

	status := c.Deps.Health.CheckAll(context.Background())
	return c.Channel.Send(&protocol.HealthResponse{Healthy: status.Status == health.StatusHealthy})
}
