package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerobuffer-go/zerobuffer/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, 16*datasize.MB, cfg.Buffer.PayloadSize)
	assert.Equal(t, 4*datasize.KB, cfg.Buffer.MetadataSize)
	assert.Equal(t, 5*time.Second, cfg.Buffer.ReadTimeout.Duration())
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zerobuffer.toml")
	content := `
[buffer]
payload_size = "1MiB"
metadata_size = "0B"
read_timeout = "2s"
write_timeout = "3s"
lock_dir = "/tmp/example/locks"

[logging]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, datasize.MB, cfg.Buffer.PayloadSize)
	assert.Equal(t, datasize.ByteSize(0), cfg.Buffer.MetadataSize)
	assert.Equal(t, 2*time.Second, cfg.Buffer.ReadTimeout.Duration())
	assert.Equal(t, 3*time.Second, cfg.Buffer.WriteTimeout.Duration())
	assert.Equal(t, "/tmp/example/locks", cfg.Buffer.LockDir)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ZEROBUFFER_PAYLOAD_SIZE", "2MiB")
	t.Setenv("ZEROBUFFER_LOG_LEVEL", "warn")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 2*datasize.MB, cfg.Buffer.PayloadSize)
	assert.Equal(t, "warn", cfg.Logging.Level)
}
