//go:build unix && !cgo

package platform

import (
	"errors"
	"time"
)

// errNoCgo is returned when this binary was built without cgo: POSIX
// named semaphores require sem_open et al from libc, which this module
// only binds via cgo (see sem_unix.go). There is no pure-Go named
// counting semaphore in the reference corpus to fall back to.
var errNoCgo = errors.New("zerobuffer: named semaphores require building with cgo enabled")

type noCgoSemaphore struct{}

func (p *unixPlatform) OpenOrCreateSemaphore(name string, initial uint32) (Semaphore, error) {
	return nil, errNoCgo
}

func (p *unixPlatform) UnlinkSemaphore(name string) error {
	return errNoCgo
}

func (noCgoSemaphore) Post() error { return errNoCgo }

func (noCgoSemaphore) Wait(timeout time.Duration) (bool, error) { return false, errNoCgo }

func (noCgoSemaphore) Close() error { return errNoCgo }
