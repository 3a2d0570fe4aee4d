package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fleet-engine/config"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)

	log.WithField("tenant_id", "acme").Debug("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "acme", line["tenant_id"])
	assert.Equal(t, "debug", line["level"])
}

func TestNew_LevelFallback(t *testing.T) {
	log := NewWithOutput(config.LoggingConfig{Level: "loud"}, &bytes.Buffer{})
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())

	log = NewWithOutput(config.LoggingConfig{Level: "warn"}, &bytes.Buffer{})
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())
}
