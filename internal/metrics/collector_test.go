// SPDX-License-Identifier: LGPL-3.0-or-later

package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordsPerActionMeans(t *testing.T) {
	c := NewCollector()

	c.Record("generate_secret", true, 10*time.Millisecond)
	c.Record("generate_secret", true, 30*time.Millisecond)
	c.Record("health", false, 1*time.Millisecond)

	snap := c.Snapshot()
	require.Len(t, snap.Actions, 2)

	// Sorted by action name.
	assert.Equal(t, "generate_secret", snap.Actions[0].Action)
	assert.Equal(t, "health", snap.Actions[1].Action)

	gs := snap.Actions[0]
	assert.EqualValues(t, 2, gs.Count)
	assert.EqualValues(t, 2, gs.Successes)
	assert.InDelta(t, 20000, gs.MeanDurationUs, 1)

	h := snap.Actions[1]
	assert.EqualValues(t, 1, h.Failures)
}

func TestCollectorBoundsTimingSamples(t *testing.T) {
	c := NewCollector()
	for i := 0; i < maxTimingSamples+100; i++ {
		c.Record("health", true, time.Millisecond)
	}

	snap := c.Snapshot()
	require.Len(t, snap.Actions, 1)
	// The counter keeps counting even after old samples are dropped.
	assert.EqualValues(t, maxTimingSamples+100, snap.Actions[0].Count)
}

func TestCollectorReset(t *testing.T) {
	c := NewCollector()
	c.Record("health", true, time.Millisecond)
	c.Reset()
	assert.Empty(t, c.Snapshot().Actions)
}
