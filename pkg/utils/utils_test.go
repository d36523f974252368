package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("suren@example.com"))
	assert.NoError(t, ValidateEmail("hr.team+onboarding@corp.example.co"))
	assert.Error(t, ValidateEmail(""))
	assert.Error(t, ValidateEmail("suren@"))
	assert.Error(t, ValidateEmail("no-at-sign.example.com"))
}

func TestValidateInstanceID(t *testing.T) {
	assert.NoError(t, ValidateInstanceID("onboarding-emp0000057"))
	assert.NoError(t, ValidateInstanceID("onboarding-3f1c2b9e-4d7a-4c1e-9a8b-2f6d5e4c3b2a"))
	assert.Error(t, ValidateInstanceID(""))
	assert.Error(t, ValidateInstanceID("has space"))
	assert.Error(t, ValidateInstanceID("a/b"))
	assert.Error(t, ValidateInstanceID(strings.Repeat("x", 129)))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "Suren\tRodrigo\nline", SanitizeString(" Suren\tRod\x00rigo\nline\x7f "))
}

func TestNewLogger_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")

	logger, err := NewLogger(LoggerConfig{Level: "debug", OutputPath: path, Format: "json"})
	require.NoError(t, err)

	NewKVLogger(logger).Info("Onboarding started", "instance_id", "onboarding-emp1")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"Onboarding started"`)
	assert.Contains(t, string(data), `"instance_id":"onboarding-emp1"`)
}

func TestNewLogger_UnknownLevelFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger(LoggerConfig{Level: "loud", OutputPath: "stderr", Format: "console"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1))
	assert.True(t, logger.Core().Enabled(0))
}
