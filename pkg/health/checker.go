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
	"time"
)

// DependencyCheck probes one external dependency and reports an error if
// it is unreachable or degraded.
type DependencyCheck func(ctx context.Context) error

// Checker aggregates named dependency checks (the secret/audit store, the
// session cache) with the system resource check. Only the aggregate
// Status crosses the wire on the Health action; CheckAll's full breakdown
// backs the HTTP /health endpoints.
type Checker struct {
	checks  map[string]DependencyCheck
	timeout time.Duration
}

// NewChecker creates a checker over the given named dependency probes.
func NewChecker(checks map[string]DependencyCheck) *Checker {
	return &Checker{
		checks:  checks,
		timeout: 5 * time.Second,
	}
}

// WithTimeout overrides the per-check timeout (default 5s).
func (c *Checker) WithTimeout(d time.Duration) *Checker {
	c.timeout = d
	return c
}

// CheckAll runs every dependency check plus the system check and returns
// the aggregate.
func (c *Checker) CheckAll(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Timestamp:    time.Now(),
		Status:       StatusHealthy,
		Dependencies: make(map[string]*DependencyHealth, len(c.checks)),
		Errors:       make([]string, 0),
	}

	for name, check := range c.checks {
		checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
		start := time.Now()
		err := check(checkCtx)
		latency := time.Since(start)
		cancel()

		dep := &DependencyHealth{Status: StatusHealthy, Latency: latency.String()}
		if err != nil {
			dep.Status = StatusUnhealthy
			dep.Error = err.Error()
			status.Status = StatusUnhealthy
			status.Errors = append(status.Errors, name+": "+err.Error())
		}
		status.Dependencies[name] = dep
	}

	status.SystemStatus = CheckSystem()
	if status.SystemStatus.Status != StatusHealthy {
		if status.Status == StatusHealthy {
			status.Status = status.SystemStatus.Status
		} else if status.SystemStatus.Status == StatusUnhealthy {
			status.Status = StatusUnhealthy
		}
		if status.SystemStatus.Error != "" {
			status.Errors = append(status.Errors, "system: "+status.SystemStatus.Error)
		}
	}

	return status
}
