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

// SPDX-License-Identifier: LGPL-3.0-or-later

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the process-wide Prometheus registry exposed at /metrics.
var Registry = prometheus.NewRegistry()

var (
	operationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "warden",
		Name:      "operation_duration_seconds",
		Help:      "Latency of key server operations by action and outcome.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"action", "outcome"})

	operationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Name:      "operations_total",
		Help:      "Count of completed key server operations by action and outcome.",
	}, []string{"action", "outcome"})
)

func init() {
	Registry.MustRegister(operationDuration, operationsTotal)
}

func recordPrometheus(action string, success bool, d time.Duration) {
	outcome := "failed"
	if success {
		outcome = "successful"
	}
	operationDuration.WithLabelValues(action, outcome).Observe(d.Seconds())
	operationsTotal.WithLabelValues(action, outcome).Inc()
}
