//go:build unix

package platform

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// shmDir is where POSIX shared memory objects conventionally live on
// Linux. Buffer names are taken verbatim from the caller and joined
// under this directory, matching the "/dev/shm/<name>" convention used
// throughout the reference corpus's shared-memory code.
const shmDir = "/dev/shm"

type unixPlatform struct {
	lockDir string
}

// New returns the POSIX implementation of Platform. lockDir is the
// directory used for per-buffer creation-lock files; it is created if
// missing.
func New(lockDir string) (Platform, error) {
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("zerobuffer: creating lock dir %s: %w", lockDir, err)
	}
	return &unixPlatform{lockDir: lockDir}, nil
}

func shmPath(name string) string {
	return filepath.Join(shmDir, name)
}

type unixSharedMemory struct {
	fd   int
	data []byte
}

func (p *unixPlatform) OpenOrCreateSharedMemory(name string, size int64) (SharedMemory, bool, error) {
	path := shmPath(name)

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, 0o600)
	created := true
	if err != nil {
		if err != unix.EEXIST {
			return nil, false, fmt.Errorf("zerobuffer: open %s: %w", path, err)
		}
		created = false
		fd, err = unix.Open(path, unix.O_RDWR, 0o600)
		if err != nil {
			return nil, false, fmt.Errorf("zerobuffer: open existing %s: %w", path, err)
		}
	}

	if created {
		if err := unix.Ftruncate(fd, size); err != nil {
			unix.Close(fd)
			unix.Unlink(path)
			return nil, false, fmt.Errorf("zerobuffer: ftruncate %s: %w", path, err)
		}
	} else {
		// An existing object is mapped at its own size, which may differ
		// from the size the caller asked for.
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			unix.Close(fd)
			return nil, false, fmt.Errorf("zerobuffer: fstat %s: %w", path, err)
		}
		size = st.Size
	}

	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		if created {
			unix.Unlink(path)
		}
		return nil, false, fmt.Errorf("zerobuffer: mmap %s: %w", path, err)
	}

	return &unixSharedMemory{fd: fd, data: data}, created, nil
}

func (p *unixPlatform) OpenSharedMemory(name string) (SharedMemory, int64, error) {
	path := shmPath(name)

	fd, err := unix.Open(path, unix.O_RDWR, 0o600)
	if err != nil {
		return nil, 0, fmt.Errorf("zerobuffer: open %s: %w", path, err)
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, 0, fmt.Errorf("zerobuffer: fstat %s: %w", path, err)
	}
	size := st.Size

	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, 0, fmt.Errorf("zerobuffer: mmap %s: %w", path, err)
	}

	return &unixSharedMemory{fd: fd, data: data}, size, nil
}

func (p *unixPlatform) UnlinkSharedMemory(name string) error {
	if err := unix.Unlink(shmPath(name)); err != nil && err != unix.ENOENT {
		return fmt.Errorf("zerobuffer: unlink %s: %w", name, err)
	}
	return nil
}

func (m *unixSharedMemory) Bytes() []byte { return m.data }

func (m *unixSharedMemory) Sync() error {
	if len(m.data) == 0 {
		return nil
	}
	return unix.Msync(m.data, unix.MS_SYNC)
}

func (m *unixSharedMemory) Close() error {
	var err error
	if len(m.data) > 0 {
		if e := unix.Munmap(m.data); e != nil {
			err = fmt.Errorf("zerobuffer: munmap: %w", e)
		}
		m.data = nil
	}
	if e := unix.Close(m.fd); e != nil && err == nil {
		err = fmt.Errorf("zerobuffer: close shm fd: %w", e)
	}
	return err
}
