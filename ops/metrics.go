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
	"github.com/warden-project/warden/internal/metrics"
	"github.com/warden-project/warden/protocol"
)

// Metrics runs the unauthenticated metrics probe: it reports the
// process-wide collector's
// mean response time per action, in milliseconds, derived from the same
// samples the dispatcher feeds on every completed operation.
func Metrics(c *Context) error {
	var req protocol.MetricsRequest
	if err := c.Channel.Receive(&req); err != nil {
		return err
	}

	snap := metrics.Global().Snapshot()
	means := make(map[string]float64, len(snap.Actions))
	for _, a := range snap.Actions {
		means[a.Action] = a.MeanDurationUs / 1000
	}

	return c.Channel.Send(&protocol.MetricsResponse{MeanResponseTimeMillis: means})
}
