package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New("debug", "json", &buf)

	logger.WithField("booking_id", "abc").Debug("booking created")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "booking created", entry["msg"])
	assert.Equal(t, "abc", entry["booking_id"])
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	logger := New("loud", "text", nil)
	assert.Equal(t, log.InfoLevel, logger.GetLevel())
}
