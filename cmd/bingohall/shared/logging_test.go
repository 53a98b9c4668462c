package shared

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevels(t *testing.T) {
	t.Parallel()
	logger, err := newLogger(&bytes.Buffer{}, LogOptions{Level: "warn"})
	require.NoError(t, err)
	assert.Equal(t, log.WarnLevel, logger.GetLevel())

	logger, err = newLogger(&bytes.Buffer{}, LogOptions{Level: "warn", Debug: true})
	require.NoError(t, err)
	assert.Equal(t, log.DebugLevel, logger.GetLevel())

	_, err = newLogger(&bytes.Buffer{}, LogOptions{Level: "chatty"})
	assert.Error(t, err)
	_, err = newLogger(&bytes.Buffer{}, LogOptions{Format: "xml"})
	assert.Error(t, err)
}

func TestNewLoggerJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger, err := newLogger(&buf, LogOptions{Format: "json", NoColor: true})
	require.NoError(t, err)

	logger.WithPrefix("round").Info("Round reset", "round", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Round reset", line["msg"])
	assert.Equal(t, "round", line["prefix"])
	assert.EqualValues(t, 3, line["round"])
}
