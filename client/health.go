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

package client

import (
	"context"

	"github.com/warden-project/warden/protocol"
)

// Health runs the unauthenticated liveness probe.
func (c *Client) Health(ctx context.Context) (bool, ResponseMetadata, error) {
	ch, meta, err := c.openChannel(ctx, protocol.ActionHealth)
	if err != nil {
		return false, meta, err
	}

	if err := ch.Send(&protocol.HealthRequest{}); err != nil {
		return false, meta, err
	}

	var resp protocol.HealthResponse
	if err := ch.Receive(&resp); err != nil {
		return false, meta, err
	}

	return resp.Healthy, meta, nil
}

// Metrics fetches the process-wide mean response time per action, in
// milliseconds.
func (c *Client) Metrics(ctx context.Context) (map[string]float64, ResponseMetadata, error) {
	ch, meta, err := c.openChannel(ctx, protocol.ActionMetrics)
	if err != nil {
		return nil, meta, err
	}

	if err := ch.Send(&protocol.MetricsRequest{}); err != nil {
		return nil, meta, err
	}

	var resp protocol.MetricsResponse
	if err := ch.Receive(&resp); err != nil {
		return nil, meta, err
	}

	return resp.MeanResponseTimeMillis, meta, nil
}
