package zerobuffer

import (
	"time"

	"github.com/zerobuffer-go/zerobuffer/internal/platform"
)

// waitSemaphore blocks on sem until it is signaled, the caller's
// timeout elapses, or the peer (identified by peerPID, re-read on every
// sub-wait since it may not be stamped yet) is found dead (§4.7).
//
// A timeout of 0 waits forever from the caller's point of view, but
// liveness is still polled on defaultPollInterval boundaries so peer
// death is detected promptly instead of only after an indefinite hang.
func waitSemaphore(sem platform.Semaphore, timeout time.Duration, peerPID func() uint64, peerAlive func(uint64) bool) (timedOut, peerDead bool, err error) {
	hasDeadline := timeout > 0
	var deadline time.Time
	if hasDeadline {
		deadline = time.Now().Add(timeout)
	}

	for {
		wait := defaultPollInterval
		if hasDeadline {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				if pid := peerPID(); pid != 0 && !peerAlive(pid) {
					return false, true, nil
				}
				return true, false, nil
			}
			if remaining < wait {
				wait = remaining
			}
		}

		to, werr := sem.Wait(wait)
		if werr != nil {
			return false, false, werr
		}
		if !to {
			return false, false, nil
		}

		if pid := peerPID(); pid != 0 && !peerAlive(pid) {
			return false, true, nil
		}
		// peer alive (or not yet connected): keep waiting, re-entering the
		// loop re-evaluates the overall deadline above.
	}
}
