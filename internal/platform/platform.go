// Package platform abstracts the OS primitives the ring buffer protocol
// is built on: named shared memory, named counting semaphores, an
// advisory creation lock, and a process-liveness probe.
//
// Only POSIX (unix && cgo) is implemented, grounded on the mmap/semaphore
// conventions used across the reference corpus. A Windows implementation
// would satisfy the same interfaces from a platform_windows.go file;
// nothing above this package is platform-specific.
package platform

import "time"

// SharedMemory is a named, process-shared mapping of bytes.
type SharedMemory interface {
	// Bytes returns the mapped region. Valid until Close.
	Bytes() []byte
	// Sync flushes the mapping (best-effort; mmap(MAP_SHARED) is already
	// coherent across processes on Linux, this exists for parity with
	// platforms/backends that need an explicit msync).
	Sync() error
	// Close unmaps the region. It does not unlink the underlying object.
	Close() error
}

// Semaphore is a named POSIX counting semaphore.
type Semaphore interface {
	// Post increments the semaphore count, waking one waiter if any.
	Post() error
	// Wait blocks until the count is positive (decrementing it) or the
	// timeout elapses. A zero timeout means wait forever.
	Wait(timeout time.Duration) (timedOut bool, err error)
	// Close closes this process's handle to the semaphore.
	Close() error
}

// Lock is an advisory, cross-process exclusive file lock used to
// serialize the narrow "create-or-reclaim buffer" critical section.
type Lock interface {
	// Lock blocks until the lock is acquired or the timeout elapses.
	Lock(timeout time.Duration) (timedOut bool, err error)
	// Unlock releases the lock.
	Unlock() error
}

// Platform bundles the factories needed to stand up or attach to a
// named buffer's OS resources.
type Platform interface {
	// OpenOrCreateSharedMemory creates the region if absent, or opens it
	// if present. created reports which branch was taken.
	OpenOrCreateSharedMemory(name string, size int64) (mem SharedMemory, created bool, err error)
	// OpenSharedMemory opens an existing region; it must not create one.
	OpenSharedMemory(name string) (mem SharedMemory, size int64, err error)
	// UnlinkSharedMemory removes the named region from the OS namespace.
	// Existing mappings remain valid until their Close.
	UnlinkSharedMemory(name string) error

	// OpenOrCreateSemaphore creates the named semaphore with the given
	// initial count if absent, or opens it if present.
	OpenOrCreateSemaphore(name string, initial uint32) (Semaphore, error)
	// UnlinkSemaphore removes the named semaphore from the OS namespace.
	UnlinkSemaphore(name string) error

	// CreationLock returns the advisory lock file for a buffer name.
	CreationLock(name string) (Lock, error)

	// ProcessAlive reports whether pid refers to a live process, without
	// sending it a real signal.
	ProcessAlive(pid uint64) bool

	// Getpid returns the calling process's OS pid.
	Getpid() uint64
}

// Names derives the conventional OS object names for a buffer name, per
// SPEC_FULL.md §3: semaphore and shared memory names are derived from
// the buffer name rather than stored in the OIEB.
type Names struct {
	SharedMemory string
	SemWrite     string // data-available; writer posts, reader waits
	SemRead      string // space-available; reader posts, writer waits
}

func NameFor(buffer string) Names {
	return Names{
		SharedMemory: buffer,
		SemWrite:     "sem-w-" + buffer,
		SemRead:      "sem-r-" + buffer,
	}
}
