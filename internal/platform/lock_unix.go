//go:build unix

package platform

import (
	"fmt"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// creationLockPollInterval is how often a blocked Lock retries flock
// while waiting out its timeout; POSIX flock has no timed variant.
const creationLockPollInterval = 5 * time.Millisecond

type fileLock struct {
	path string
	fd   int
}

func (p *unixPlatform) CreationLock(name string) (Lock, error) {
	path := filepath.Join(p.lockDir, name+".lock")

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0o600)
	if err != nil {
		return nil, fmt.Errorf("zerobuffer: open lock file %s: %w", path, err)
	}
	return &fileLock{path: path, fd: fd}, nil
}

func (l *fileLock) Lock(timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		if err := unix.Flock(l.fd, unix.LOCK_EX); err != nil {
			return false, fmt.Errorf("zerobuffer: flock %s: %w", l.path, err)
		}
		return false, nil
	}

	deadline := time.Now().Add(timeout)
	for {
		err := unix.Flock(l.fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return false, nil
		}
		if err != unix.EWOULDBLOCK {
			return false, fmt.Errorf("zerobuffer: flock %s: %w", l.path, err)
		}
		if time.Now().After(deadline) {
			return true, nil
		}
		time.Sleep(creationLockPollInterval)
	}
}

func (l *fileLock) Unlock() error {
	unlockErr := unix.Flock(l.fd, unix.LOCK_UN)
	closeErr := unix.Close(l.fd)
	if unlockErr != nil {
		return fmt.Errorf("zerobuffer: unlock %s: %w", l.path, unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("zerobuffer: close lock file %s: %w", l.path, closeErr)
	}
	return nil
}
