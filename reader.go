package zerobuffer

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/zerobuffer-go/zerobuffer/internal/platform"
)

// Reader owns a buffer: it creates (or reclaims) the shared memory
// region and both semaphores, consumes frames in FIFO order, and is
// responsible for eventual teardown (§4.4). Exactly one Reader may be
// live for a given name at a time.
//
// Reader is not safe for concurrent use from multiple goroutines,
// except for the observational getters, per §5.
type Reader struct {
	mu sync.Mutex

	name string
	plat platform.Platform
	log  *zap.SugaredLogger

	region *region
	semW   platform.Semaphore // data-available
	semR   platform.Semaphore // space-available

	held   *Frame
	closed bool
}

// creationLockTimeout bounds how long Create waits to acquire the
// narrow create-or-reclaim critical section (§4.1.3); this lock is only
// ever held briefly, so a generous fixed timeout is appropriate rather
// than exposing it as a parameter.
const creationLockTimeout = 10 * time.Second

// Create creates a fresh buffer, or reclaims one abandoned by a dead
// reader, per §4.7. It fails with ErrBufferAlreadyExists if a live
// reader already owns name.
func Create(name string, cfg BufferConfig, opts ...Option) (*Reader, error) {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}

	plat, err := platform.New(s.lockDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSystemResourceExhausted, err)
	}

	lock, err := plat.CreationLock(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSystemResourceExhausted, err)
	}
	timedOut, err := lock.Lock(creationLockTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSystemResourceExhausted, err)
	}
	if timedOut {
		return nil, fmt.Errorf("%w: timed out acquiring creation lock for %q", ErrSystemResourceExhausted, name)
	}
	defer lock.Unlock()

	names := platform.NameFor(name)
	size := totalRegionSize(cfg.MetadataSize, cfg.PayloadSize)

	for attempt := 0; attempt < 2; attempt++ {
		mem, created, err := plat.OpenOrCreateSharedMemory(names.SharedMemory, size)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSystemResourceExhausted, err)
		}

		if created {
			reg := mapRegion(mem, cfg.MetadataSize, cfg.PayloadSize)
			initOIEB(reg.oieb, cfg.MetadataSize, cfg.PayloadSize)
			reg.oieb.ReaderPID.Store(plat.Getpid())

			semW, err := plat.OpenOrCreateSemaphore(names.SemWrite, 0)
			if err != nil {
				reg.close()
				plat.UnlinkSharedMemory(names.SharedMemory)
				return nil, fmt.Errorf("%w: %v", ErrSystemResourceExhausted, err)
			}
			semR, err := plat.OpenOrCreateSemaphore(names.SemRead, 0)
			if err != nil {
				semW.Close()
				reg.close()
				plat.UnlinkSharedMemory(names.SharedMemory)
				return nil, fmt.Errorf("%w: %v", ErrSystemResourceExhausted, err)
			}

			s.logger.Infow("buffer created", "buffer", name, "payload_size", cfg.PayloadSize, "metadata_size", cfg.MetadataSize)
			return &Reader{name: name, plat: plat, log: s.logger, region: reg, semW: semW, semR: semR}, nil
		}

		// Existing region: either a live reader owns it, or it is stale.
		reg, err := openExistingRegion(mem)
		if err != nil {
			mem.Close()
			return nil, err
		}

		readerPID := reg.oieb.ReaderPID.Load()
		if readerPID != 0 && plat.ProcessAlive(readerPID) {
			reg.close()
			return nil, ErrBufferAlreadyExists
		}

		s.logger.Warnw("reclaiming stale buffer", "buffer", name, "prior_reader_pid", readerPID)
		reg.close()
		if err := plat.UnlinkSharedMemory(names.SharedMemory); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSystemResourceExhausted, err)
		}
		if err := plat.UnlinkSemaphore(names.SemWrite); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSystemResourceExhausted, err)
		}
		if err := plat.UnlinkSemaphore(names.SemRead); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSystemResourceExhausted, err)
		}
		// loop: the next OpenOrCreateSharedMemory attempt will create fresh.
	}

	return nil, fmt.Errorf("%w: could not reclaim %q", ErrSystemResourceExhausted, name)
}

// ReadFrame blocks until a frame is available, the timeout elapses, or
// the writer is found dead (§4.3.3). A zero timeout waits forever. The
// returned Frame must be passed to Release before the next ReadFrame
// call.
func (r *Reader) ReadFrame(timeout time.Duration) (*Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if r.held != nil {
		return nil, ErrFrameAlreadyHeld
	}

	needWait := true
	for {
		if needWait {
			timedOut, peerDead, err := waitSemaphore(r.semW, timeout, r.region.oieb.WriterPID.Load, r.plat.ProcessAlive)
			if err != nil {
				return nil, fmt.Errorf("zerobuffer: waiting for data: %w", err)
			}
			if peerDead {
				r.log.Errorw("writer dead", "buffer", r.name)
				return nil, ErrWriterDead
			}
			if timedOut {
				return nil, ErrTimeout
			}
		}

		pos := r.region.oieb.ReadPos.Load()
		size, seq := getFrameHeader(r.region.payload, pos)

		if size == 0 {
			// Wrap marker: absorb internally (§4.3.3 step 3). The sem-w
			// unit already consumed above belongs to the real frame that
			// follows, which the writer only signaled after placing both
			// the marker and the frame — so we re-examine the new
			// read_pos without waiting again.
			consumed := r.region.oieb.PayloadSize - pos
			r.region.oieb.ReadPos.Store(0)
			atomicSubUint64(&r.region.oieb.BytesInUse, consumed)
			if err := r.semR.Post(); err != nil {
				return nil, fmt.Errorf("zerobuffer: posting space-available: %w", err)
			}
			needWait = false
			continue
		}

		if frameHeaderSize+size > r.region.oieb.PayloadSize-pos {
			r.log.Errorw("corrupted frame header", "buffer", r.name, "pos", pos, "size", size)
			return nil, fmt.Errorf("%w: frame at %d overruns ring", ErrCorruptedHeader, pos)
		}

		total := alignUp(frameHeaderSize + size)
		f := &Frame{
			Sequence: seq,
			data:     r.region.payload[pos+frameHeaderSize : pos+frameHeaderSize+size],
			pos:      pos,
			total:    total,
			valid:    true,
		}
		r.held = f
		return f, nil
	}
}

// Release returns a previously read Frame's space to the ring, making
// it available for the writer to reuse (§4.3.3 step 6). Calling it
// twice with the same Frame, or with a Frame not currently on loan, is
// rejected with ErrFrameNotHeld.
func (r *Reader) Release(f *Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if f == nil || !f.valid || f != r.held {
		return ErrFrameNotHeld
	}

	f.valid = false
	r.held = nil

	newReadPos := f.pos + f.total
	if newReadPos == r.region.oieb.PayloadSize {
		newReadPos = 0
	}
	r.region.oieb.ReadPos.Store(newReadPos)

	atomicSubUint64(&r.region.oieb.BytesInUse, f.total)

	// read_pos otherwise advances normally; the §4.3.1 both-cursors-to-0
	// optimization is applied by the writer alone, the next time it
	// observes bytes_in_use == 0 (see Writer.reserve).

	if err := r.semR.Post(); err != nil {
		return fmt.Errorf("zerobuffer: posting space-available: %w", err)
	}
	return nil
}

// GetMetadata returns a copy of the writer-published metadata, or an
// empty slice if none has been set yet.
func (r *Reader) GetMetadata() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.region.oieb.MetadataWritten.Load()
	out := make([]byte, n)
	copy(out, r.region.metadata[:n])
	return out
}

// GetMetadataView returns a zero-copy view of the metadata area. The
// slice aliases shared memory and is valid only until the Reader closes.
func (r *Reader) GetMetadataView() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.region.oieb.MetadataWritten.Load()
	return r.region.metadata[:n]
}

// IsWriterConnected polls for a non-zero writer_pid until timeout
// elapses (§4.4). A zero timeout checks once without blocking.
func (r *Reader) IsWriterConnected(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		r.mu.Lock()
		pid := r.region.oieb.WriterPID.Load()
		r.mu.Unlock()
		if pid != 0 {
			return true
		}
		if timeout <= 0 || time.Now().After(deadline) {
			return pid != 0
		}
		time.Sleep(defaultPollInterval)
	}
}

// Close destroys the buffer: it clears reader_pid and unlinks the
// shared memory and both semaphores (§4.4 "destroy (implicit)"). Any
// outstanding Frame becomes invalid. Cleanup failures are aggregated so
// one failing step does not prevent the others from running.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if r.held != nil {
		r.held.valid = false
		r.held = nil
	}

	r.region.oieb.ReaderPID.Store(0)

	names := platform.NameFor(r.name)
	var err error
	err = multierr.Append(err, r.semW.Close())
	err = multierr.Append(err, r.semR.Close())
	err = multierr.Append(err, r.region.close())
	err = multierr.Append(err, r.plat.UnlinkSharedMemory(names.SharedMemory))
	err = multierr.Append(err, r.plat.UnlinkSemaphore(names.SemWrite))
	err = multierr.Append(err, r.plat.UnlinkSemaphore(names.SemRead))

	if err != nil {
		r.log.Errorw("buffer teardown had errors", "buffer", r.name, "error", err)
		return fmt.Errorf("zerobuffer: closing buffer %q: %w", r.name, err)
	}
	r.log.Infow("buffer destroyed", "buffer", r.name)
	return nil
}
