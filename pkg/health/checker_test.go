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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckAllHealthyWhenAllChecksPass(t *testing.T) {
	checker := NewChecker(map[string]DependencyCheck{
		"store": func(ctx context.Context) error { return nil },
		"cache": func(ctx context.Context) error { return nil },
	})

	status := checker.CheckAll(context.Background())

	assert.Equal(t, StatusHealthy, status.Status)
	assert.Empty(t, status.Errors)
	assert.Equal(t, StatusHealthy, status.Dependencies["store"].Status)
	assert.Equal(t, StatusHealthy, status.Dependencies["cache"].Status)
}

func TestCheckAllUnhealthyWhenADependencyFails(t *testing.T) {
	checker := NewChecker(map[string]DependencyCheck{
		"store": func(ctx context.Context) error { return errors.New("connection refused") },
		"cache": func(ctx context.Context) error { return nil },
	})

	status := checker.CheckAll(context.Background())

	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.NotEmpty(t, status.Errors)
	assert.Equal(t, StatusUnhealthy, status.Dependencies["store"].Status)
	assert.Equal(t, StatusHealthy, status.Dependencies["cache"].Status)
}

func TestCheckSystemReportsMemoryAndGoroutines(t *testing.T) {
	sys := CheckSystem()

	assert.NotZero(t, sys.MemoryTotalMB)
	assert.GreaterOrEqual(t, sys.GoRoutines, 1)
}
