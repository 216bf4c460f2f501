// Package config loads ZeroBuffer's ambient defaults — buffer sizing,
// timeouts, the creation-lock directory, and the logging level — from a
// TOML file with environment-variable overrides, following the same
// load-then-override shape the reference corpus uses for its own
// TOML-backed configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Buffer holds buffer sizing, timeout and lock-directory defaults.
// Reader.Create and Writer.Connect do not read them; callers pass the
// values on through BufferConfig and options themselves.
type Buffer struct {
	PayloadSize  datasize.ByteSize `toml:"payload_size"`
	MetadataSize datasize.ByteSize `toml:"metadata_size"`
	ReadTimeout  duration          `toml:"read_timeout"`
	WriteTimeout duration          `toml:"write_timeout"`
	LockDir      string            `toml:"lock_dir"`
}

// Logging holds the logging subsystem's defaults.
type Logging struct {
	Level string `toml:"level"`
}

// Config is the root of the TOML configuration document (§6.5).
type Config struct {
	Buffer  Buffer  `toml:"buffer"`
	Logging Logging `toml:"logging"`
}

// duration parses TOML strings like "5s" via time.ParseDuration; TOML
// itself has no native duration type.
type duration time.Duration

func (d *duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", string(b), err)
	}
	*d = duration(parsed)
	return nil
}

func (d duration) Duration() time.Duration { return time.Duration(d) }

const (
	defaultPayloadSize  = 16 * datasize.MB
	defaultMetadataSize = 4 * datasize.KB
	defaultTimeout      = 5 * time.Second
	defaultLockDir      = "/tmp/zerobuffer/locks"
	defaultLogLevel     = "info"
)

// Default returns the built-in defaults, used when no config file is
// present and no environment overrides apply.
func Default() Config {
	return Config{
		Buffer: Buffer{
			PayloadSize:  defaultPayloadSize,
			MetadataSize: defaultMetadataSize,
			ReadTimeout:  duration(defaultTimeout),
			WriteTimeout: duration(defaultTimeout),
			LockDir:      defaultLockDir,
		},
		Logging: Logging{Level: defaultLogLevel},
	}
}

// Load reads a TOML config file at path, starting from Default() so
// unspecified fields keep their built-in values, then applies
// ZEROBUFFER_* environment variable overrides (after loading a .env
// file from the working directory, if one exists — a no-op when absent).
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	_ = godotenv.Load() // best-effort; absent .env is not an error

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("ZEROBUFFER_PAYLOAD_SIZE"); ok {
		var sz datasize.ByteSize
		if err := sz.UnmarshalText([]byte(v)); err == nil {
			cfg.Buffer.PayloadSize = sz
		}
	}
	if v, ok := os.LookupEnv("ZEROBUFFER_METADATA_SIZE"); ok {
		var sz datasize.ByteSize
		if err := sz.UnmarshalText([]byte(v)); err == nil {
			cfg.Buffer.MetadataSize = sz
		}
	}
	if v, ok := os.LookupEnv("ZEROBUFFER_LOCK_DIR"); ok && v != "" {
		cfg.Buffer.LockDir = v
	}
	if v, ok := os.LookupEnv("ZEROBUFFER_LOG_LEVEL"); ok && v != "" {
		cfg.Logging.Level = v
	}
	if v, ok := os.LookupEnv("ZEROBUFFER_READ_TIMEOUT"); ok {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Buffer.ReadTimeout = duration(parsed)
		}
	}
	if v, ok := os.LookupEnv("ZEROBUFFER_WRITE_TIMEOUT"); ok {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Buffer.WriteTimeout = duration(parsed)
		}
	}
}
