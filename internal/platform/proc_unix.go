//go:build unix

package platform

import "golang.org/x/sys/unix"

// ProcessAlive probes pid with signal 0, the standard POSIX idiom for
// checking process existence without actually signaling it. EPERM means
// the process exists but is owned by another user; that still counts as
// alive for liveness purposes.
func (p *unixPlatform) ProcessAlive(pid uint64) bool {
	if pid == 0 {
		return false
	}
	err := unix.Kill(int(pid), 0)
	if err == nil || err == unix.EPERM {
		return true
	}
	return false
}

func (p *unixPlatform) Getpid() uint64 {
	return uint64(unix.Getpid())
}
