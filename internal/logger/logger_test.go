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

package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelStrings(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{FatalLevel, "FATAL"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.level.String())
	}
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, WarnLevel)

	log.Debug("debug message")
	log.Info("info message")
	assert.Empty(t, buf.String())

	log.Warn("warn message")
	assert.NotEmpty(t, buf.String())

	buf.Reset()
	log.Error("error message")
	assert.NotEmpty(t, buf.String())
}

func TestStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, InfoLevel)

	log.Info("test message",
		String("key1", "value1"),
		Int("key2", 42),
		Bool("key3", true),
		Error(errors.New("test error")),
		Duration("duration", time.Second),
	)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "test message", entry["message"])
	assert.Equal(t, "value1", entry["key1"])
	assert.Equal(t, float64(42), entry["key2"])
	assert.Equal(t, true, entry["key3"])
	assert.Equal(t, "test error", entry["error"])
	assert.Equal(t, "1s", entry["duration"])
	assert.NotNil(t, entry["timestamp"])
	assert.NotNil(t, entry["caller"])
}

func TestErrorFieldNil(t *testing.T) {
	field := Error(nil)
	assert.Equal(t, "error", field.Key)
	assert.Nil(t, field.Value)
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&buf, InfoLevel)

	child := base.WithFields(
		String("component", "dispatcher"),
		String("request_id", "req-123"),
	)
	child.Info("test message")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "dispatcher", entry["component"])
	assert.Equal(t, "req-123", entry["request_id"])

	// The parent stays unannotated.
	buf.Reset()
	base.Info("another message")
	entry = nil
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, "component")
}

func TestSetAndGetLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, InfoLevel)
	assert.Equal(t, InfoLevel, log.GetLevel())

	log.Debug("debug 1")
	assert.Empty(t, buf.String())

	log.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, log.GetLevel())
	log.Debug("debug 2")
	assert.NotEmpty(t, buf.String())
}

func TestPrettyPrint(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, InfoLevel)
	log.SetPrettyPrint(true)

	log.Info("test message", String("key", "value"))

	output := buf.String()
	assert.Contains(t, output, "{\n")
	assert.Contains(t, output, "  \"")
	assert.Contains(t, output, "\n}")
}

func BenchmarkLogger(b *testing.B) {
	log := NewLogger(&bytes.Buffer{}, InfoLevel)

	b.Run("SimpleLog", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			log.Info("benchmark message")
		}
	})

	b.Run("LogWithFields", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			log.Info("benchmark message",
				String("key1", "value1"),
				Int("key2", 42),
				Bool("key3", true),
			)
		}
	})

	b.Run("FilteredLog", func(b *testing.B) {
		log.SetLevel(ErrorLevel)
		for i := 0; i < b.N; i++ {
			log.Debug("filtered message")
		}
	})
}
