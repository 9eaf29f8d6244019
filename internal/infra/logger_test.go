package infra

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesJSONOutsideDevelopment(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(newLogger(&buf, "production"), "queue")
	logger.Info().Str("story_id", "story-1").Msg("queue: job acknowledged")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "queue", line["component"])
	assert.Equal(t, "story-1", line["story_id"])
	assert.Equal(t, "production", line["app_env"])
	assert.Equal(t, "info", line["level"])
}

func TestLoggerSkipsDebugOutsideDevelopment(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "production")
	logger.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())
}
