package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "", "WARN", "warning", "error"} {
		_, err := parseLevel(lvl)
		assert.NoError(t, err, lvl)
	}
	_, err := parseLevel("verbose")
	assert.Error(t, err)
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "surfshell.log")

	logger, err := New(FileConfig("debug", path))
	require.NoError(t, err)
	logger.Info("visit recorded")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "visit recorded")
}

func TestNewOrNop_BadLevel(t *testing.T) {
	logger := NewOrNop(Config{Level: "loud"})
	require.NotNil(t, logger)
	logger.Info("dropped")
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}
