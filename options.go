package zerobuffer

import (
	"time"

	"go.uber.org/zap"

	"github.com/zerobuffer-go/zerobuffer/logging"
)

// BufferConfig parameterizes a fresh buffer's shared memory layout
// (§6.3 Reader::create(name, {metadata_size, payload_size})).
type BufferConfig struct {
	MetadataSize uint64
	PayloadSize  uint64
}

type settings struct {
	logger  *zap.SugaredLogger
	lockDir string
}

func defaultSettings() settings {
	return settings{
		logger:  logging.Noop(),
		lockDir: "/tmp/zerobuffer/locks",
	}
}

// Option customizes a Reader or Writer at construction time.
type Option func(*settings)

// WithLogger attaches a structured logger for lifecycle and liveness
// diagnostics. The default is a no-op logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *settings) { s.logger = l }
}

// WithLockDir overrides the directory used for the per-buffer creation
// lock file (§4.1.3, §6.1). Defaults to /tmp/zerobuffer/locks.
func WithLockDir(dir string) Option {
	return func(s *settings) { s.lockDir = dir }
}

// defaultPollInterval governs how often ReadFrame/WriteFrame re-check
// peer liveness while waiting out a caller-supplied timeout in smaller
// slices (§4.7): a long single semaphore timedwait would otherwise
// delay ReaderDead/WriterDead detection until the entire timeout
// elapses even when the peer died at the very start of the wait.
const defaultPollInterval = 200 * time.Millisecond
