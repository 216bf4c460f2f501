//go:build unix && cgo

package platform

/*
#include <errno.h>
#include <fcntl.h>
#include <semaphore.h>
#include <sys/stat.h>
#include <time.h>

static sem_t *zb_sem_open_create(const char *name, unsigned int value, int *errnum) {
	sem_t *s = sem_open(name, O_CREAT, 0600, value);
	if (s == SEM_FAILED) {
		*errnum = errno;
		return NULL;
	}
	return s;
}

static int zb_sem_timedwait(sem_t *s, long sec, long nsec) {
	struct timespec ts;
	ts.tv_sec = sec;
	ts.tv_nsec = nsec;
	return sem_timedwait(s, &ts);
}
*/
import "C"

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

type posixSemaphore struct {
	name string
	sem  *C.sem_t
}

func (p *unixPlatform) OpenOrCreateSemaphore(name string, initial uint32) (Semaphore, error) {
	cName := C.CString("/" + name)
	defer C.free(unsafe.Pointer(cName))

	var errnum C.int
	sem := C.zb_sem_open_create(cName, C.uint(initial), &errnum)
	if sem == nil {
		return nil, fmt.Errorf("zerobuffer: sem_open %s: %w", name, unix.Errno(errnum))
	}
	return &posixSemaphore{name: name, sem: sem}, nil
}

func (p *unixPlatform) UnlinkSemaphore(name string) error {
	cName := C.CString("/" + name)
	defer C.free(unsafe.Pointer(cName))

	if rc, err := C.sem_unlink(cName); rc != 0 {
		if err == unix.ENOENT {
			return nil
		}
		return fmt.Errorf("zerobuffer: sem_unlink %s: %w", name, err)
	}
	return nil
}

func (s *posixSemaphore) Post() error {
	if rc, err := C.sem_post(s.sem); rc != 0 {
		return fmt.Errorf("zerobuffer: sem_post %s: %w", s.name, err)
	}
	return nil
}

// Wait blocks until the semaphore's count is positive (consuming one
// unit) or timeout elapses. timeout == 0 waits forever.
func (s *posixSemaphore) Wait(timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		for {
			rc, err := C.sem_wait(s.sem)
			if rc == 0 {
				return false, nil
			}
			if err == unix.EINTR {
				continue
			}
			return false, fmt.Errorf("zerobuffer: sem_wait %s: %w", s.name, err)
		}
	}

	deadline := time.Now().Add(timeout)
	for {
		sec, nsec := unixTimeSpec(deadline)
		rc, err := C.zb_sem_timedwait(s.sem, C.long(sec), C.long(nsec))
		if rc == 0 {
			return false, nil
		}
		switch err {
		case unix.EINTR:
			continue
		case unix.ETIMEDOUT:
			return true, nil
		default:
			return false, fmt.Errorf("zerobuffer: sem_timedwait %s: %w", s.name, err)
		}
	}
}

func (s *posixSemaphore) Close() error {
	if rc, err := C.sem_close(s.sem); rc != 0 {
		return fmt.Errorf("zerobuffer: sem_close %s: %w", s.name, err)
	}
	return nil
}

func unixTimeSpec(t time.Time) (sec, nsec int64) {
	return t.Unix(), int64(t.Nanosecond())
}
