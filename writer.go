package zerobuffer

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/zerobuffer-go/zerobuffer/internal/platform"
)

// Writer connects to an existing buffer and produces frames (§4.5).
// Exactly one Writer may be connected to a given buffer at a time.
//
// Writer is not safe for concurrent use from multiple goroutines,
// except for the observational getters, per §5.
type Writer struct {
	mu sync.Mutex

	name string
	plat platform.Platform
	log  *zap.SugaredLogger

	region *region
	semW   platform.Semaphore
	semR   platform.Semaphore

	framesWritten atomic.Uint64
	bytesWritten  atomic.Uint64

	closed bool
}

// Connect attaches to an existing buffer. It fails with
// ErrBufferNotFound if name was never created, ErrReaderDead if the
// buffer exists but its reader has exited, and
// ErrWriterAlreadyConnected if another live writer already holds it.
func Connect(name string, opts ...Option) (*Writer, error) {
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

	mem, _, err := plat.OpenSharedMemory(names.SharedMemory)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBufferNotFound, err)
	}

	reg, err := openExistingRegion(mem)
	if err != nil {
		mem.Close()
		return nil, err
	}

	readerPID := reg.oieb.ReaderPID.Load()
	if readerPID == 0 || !plat.ProcessAlive(readerPID) {
		reg.close()
		return nil, ErrReaderDead
	}

	writerPID := reg.oieb.WriterPID.Load()
	if writerPID != 0 && plat.ProcessAlive(writerPID) {
		reg.close()
		return nil, ErrWriterAlreadyConnected
	}

	semW, err := plat.OpenOrCreateSemaphore(names.SemWrite, 0)
	if err != nil {
		reg.close()
		return nil, fmt.Errorf("%w: %v", ErrSystemResourceExhausted, err)
	}
	semR, err := plat.OpenOrCreateSemaphore(names.SemRead, 0)
	if err != nil {
		semW.Close()
		reg.close()
		return nil, fmt.Errorf("%w: %v", ErrSystemResourceExhausted, err)
	}

	reg.oieb.WriterPID.Store(plat.Getpid())

	s.logger.Infow("writer connected", "buffer", name)
	return &Writer{name: name, plat: plat, log: s.logger, region: reg, semW: semW, semR: semR}, nil
}

// SetMetadata publishes the buffer's write-once metadata (§4.3.6). It
// fails with ErrMetadataAlreadySet once metadata_written is non-zero,
// and ErrMetadataTooLarge if data does not fit metadata_size.
func (w *Writer) SetMetadata(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.region.oieb.MetadataWritten.Load() != 0 {
		return ErrMetadataAlreadySet
	}
	if uint64(len(data)) > w.region.oieb.MetadataSize {
		return ErrMetadataTooLarge
	}

	copy(w.region.metadata, data)
	w.region.oieb.MetadataWritten.Store(uint64(len(data)))
	return nil
}

// WriteFrame writes one frame, blocking until there is room or the
// reader is found dead; it fails at once if the buffer cannot ever hold
// a frame this large (§4.3.2). It takes no timeout: while the reader
// stays alive it waits for space indefinitely.
func (w *Writer) WriteFrame(data []byte) error {
	if len(data) == 0 {
		return ErrInvalidFrameSize
	}
	_, err := w.reserve(uint64(len(data)), func(body []byte) (int, error) {
		copy(body, data)
		return len(data), nil
	})
	return err
}

// WriteFrameFunc reserves space for a frame of up to maxSize bytes and
// lets fill write the response body directly into the shared-memory
// payload slice, publishing it without an intermediate copy (§4.6
// "mutable handler variant"). fill returns the number of bytes actually
// written; returning 0 is rejected with ErrInvalidFrameSize, matching
// WriteFrame's contract for an empty body. If fill returns an error, no
// publish happens and the reserved space is returned to the ring.
func (w *Writer) WriteFrameFunc(maxSize uint64, fill func(body []byte) (int, error)) (int, error) {
	return w.reserve(maxSize, fill)
}

// reserve is the shared WriteFrame/WriteFrameFunc core: it waits for
// room for up to maxSize bytes of body (emitting wrap markers as
// needed), hands fill the exact slice to populate, and publishes the
// frame using fill's reported length.
func (w *Writer) reserve(maxSize uint64, fill func(body []byte) (int, error)) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, ErrClosed
	}

	total := alignUp(frameHeaderSize + maxSize)
	if total > w.region.oieb.PayloadSize {
		return 0, ErrFrameTooLargeForBuffer
	}

	for {
		payloadSize := w.region.oieb.PayloadSize
		writePos := w.region.oieb.WritePos.Load()
		readPos := w.region.oieb.ReadPos.Load()
		bytesInUse := w.region.oieb.BytesInUse.Load()

		if bytesInUse == 0 && writePos != 0 {
			// §4.3.1's permitted optimization: when nothing is outstanding,
			// write_pos and read_pos are structurally equal (every byte ever
			// written has been released), so the writer — the only party
			// that can be active at this instant, since an empty ring means
			// the reader holds no frame and has nothing to wait for yet —
			// may reset both to 0 to reclaim the full contiguous span. This
			// is safe despite read_pos being reader-owned in general: the
			// reader only observes read_pos after waking from sem-w, which
			// is posted strictly after this reset (§5 happens-before edge).
			w.region.oieb.WritePos.Store(0)
			w.region.oieb.ReadPos.Store(0)
			writePos, readPos = 0, 0
		}

		free := freeContiguous(payloadSize, writePos, readPos, bytesInUse)

		if writePos+total > payloadSize {
			// Doesn't fit in the contiguous tail: emit a wrap marker and
			// retry from offset 0, per §4.3.2 step 2. emitWrapMarker first
			// waits for space if unread data still occupies the tail.
			if err := w.emitWrapMarker(writePos); err != nil {
				return 0, err
			}
			continue
		}

		if free < total {
			timedOut, peerDead, err := waitSemaphore(w.semR, 0, w.region.oieb.ReaderPID.Load, w.plat.ProcessAlive)
			_ = timedOut // waitSemaphore with timeout=0 never times out
			if err != nil {
				return 0, fmt.Errorf("zerobuffer: waiting for space: %w", err)
			}
			if peerDead {
				w.log.Errorw("reader dead", "buffer", w.name)
				return 0, ErrReaderDead
			}
			continue
		}

		body := w.region.payload[writePos+frameHeaderSize : writePos+frameHeaderSize+maxSize]
		n, err := fill(body)
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, ErrInvalidFrameSize
		}

		actual := alignUp(frameHeaderSize + uint64(n))
		seq := w.region.oieb.NextSequence.Add(1) - 1
		putFrameHeader(w.region.payload, writePos, uint64(n), seq)

		newWritePos := writePos + actual
		if newWritePos == payloadSize {
			newWritePos = 0
		}
		w.region.oieb.WritePos.Store(newWritePos)
		w.region.oieb.BytesInUse.Add(actual)

		if err := w.semW.Post(); err != nil {
			return 0, fmt.Errorf("zerobuffer: posting data-available: %w", err)
		}

		w.framesWritten.Add(1)
		w.bytesWritten.Add(uint64(n))
		return n, nil
	}
}

// emitWrapMarker writes a zero-length frame header consuming the
// unusable tail of the ring and resets write_pos to 0 (§4.3.2 step 2).
// It may itself need to wait for space if the tail is currently held by
// unread data.
func (w *Writer) emitWrapMarker(writePos uint64) error {
	payloadSize := w.region.oieb.PayloadSize
	tailLen := payloadSize - writePos

	for {
		bytesInUse := w.region.oieb.BytesInUse.Load()
		readPos := w.region.oieb.ReadPos.Load()
		free := freeContiguous(payloadSize, writePos, readPos, bytesInUse)
		if free >= tailLen {
			break
		}
		timedOut, peerDead, err := waitSemaphore(w.semR, 0, w.region.oieb.ReaderPID.Load, w.plat.ProcessAlive)
		_ = timedOut
		if err != nil {
			return fmt.Errorf("zerobuffer: waiting for space (wrap): %w", err)
		}
		if peerDead {
			return ErrReaderDead
		}
	}

	// Wrap markers are never surfaced to the reader and must not perturb
	// the sequence numbers delivered for real frames (§4.3.4, §8): leave
	// the header's sequence field at 0 rather than drawing from
	// NextSequence, which real frames alone advance.
	putFrameHeader(w.region.payload, writePos, 0, 0)
	w.region.oieb.WritePos.Store(0)
	w.region.oieb.BytesInUse.Add(tailLen)
	return nil
}

// IsReaderConnected reports whether a live reader currently owns the
// buffer.
func (w *Writer) IsReaderConnected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	pid := w.region.oieb.ReaderPID.Load()
	return pid != 0 && w.plat.ProcessAlive(pid)
}

// FramesWritten returns the number of frames successfully written by
// this Writer instance.
func (w *Writer) FramesWritten() uint64 { return w.framesWritten.Load() }

// BytesWritten returns the total body bytes successfully written by
// this Writer instance.
func (w *Writer) BytesWritten() uint64 { return w.bytesWritten.Load() }

// Close disconnects the writer, clearing writer_pid so a later writer
// (or the reader's liveness checks) can tell this one is gone.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.region.oieb.WriterPID.Store(0)

	var err error
	if e := w.semW.Close(); e != nil {
		err = e
	}
	if e := w.semR.Close(); e != nil && err == nil {
		err = e
	}
	if e := w.region.close(); e != nil && err == nil {
		err = e
	}
	w.log.Infow("writer disconnected", "buffer", w.name)
	return err
}
