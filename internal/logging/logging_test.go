package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/circe/internal/logging"
)

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	log, err := logging.New("debug", "text", &buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	log.WithField("session", "abc").Info("Session started")
	assert.Contains(t, buf.String(), "Session started")
	assert.Contains(t, buf.String(), "session=abc")
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := logging.New("warn", "JSON", &buf)
	require.NoError(t, err)

	log.Info("filtered")
	assert.Zero(t, buf.Len())

	log.WithField("recipient", "bob").Warn("Dropping message")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "bob", entry["recipient"])
	assert.Equal(t, "warning", entry["level"])
}

func TestNewRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		format string
	}{
		{"unknown level", "loud", "text"},
		{"unknown format", "info", "xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := logging.New(tt.level, tt.format, &bytes.Buffer{})
			assert.Error(t, err)
		})
	}
}
