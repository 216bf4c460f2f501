package zerobuffer

import "errors"

// Sentinel errors returned by Reader, Writer and the duplex channel.
// Callers should compare with errors.Is, since internal plumbing wraps
// these with additional context via fmt.Errorf("...: %w", ...).
var (
	// ErrBufferAlreadyExists is returned by Reader.Create when a live
	// reader already owns the requested buffer name.
	ErrBufferAlreadyExists = errors.New("zerobuffer: buffer already exists")

	// ErrBufferNotFound is returned by Writer.Connect when no buffer of
	// that name has ever been created.
	ErrBufferNotFound = errors.New("zerobuffer: buffer not found")

	// ErrWriterAlreadyConnected is returned by Writer.Connect when another
	// live writer already holds the buffer.
	ErrWriterAlreadyConnected = errors.New("zerobuffer: writer already connected")

	// ErrReaderDead is returned to a writer once it detects its reader's
	// process has exited without a clean disconnect.
	ErrReaderDead = errors.New("zerobuffer: reader is dead")

	// ErrWriterDead is returned to a reader once it detects its writer's
	// process has exited without a clean disconnect.
	ErrWriterDead = errors.New("zerobuffer: writer is dead")

	// ErrTimeout is returned by blocking operations whose deadline elapsed
	// while the peer was still alive. It is not a terminal error.
	ErrTimeout = errors.New("zerobuffer: timed out")

	// ErrInvalidFrameSize is returned for a zero-length write_frame call.
	ErrInvalidFrameSize = errors.New("zerobuffer: invalid frame size")

	// ErrFrameTooLargeForBuffer is returned when a frame, including its
	// 16-byte header, can never fit in the payload ring regardless of
	// free space.
	ErrFrameTooLargeForBuffer = errors.New("zerobuffer: frame too large for buffer")

	// ErrMetadataAlreadySet is returned by a second call to SetMetadata.
	ErrMetadataAlreadySet = errors.New("zerobuffer: metadata already set")

	// ErrMetadataTooLarge is returned when the metadata payload exceeds
	// the buffer's configured metadata_size.
	ErrMetadataTooLarge = errors.New("zerobuffer: metadata too large")

	// ErrCorruptedHeader is returned when a frame header is structurally
	// inconsistent with the ring's invariants (bad magic, payload_size
	// exceeding remaining capacity, etc). The party that observes it must
	// disconnect; no repair is attempted.
	ErrCorruptedHeader = errors.New("zerobuffer: corrupted header")

	// ErrSystemResourceExhausted wraps OS-level failures to allocate the
	// shared memory region, semaphores, or lock file.
	ErrSystemResourceExhausted = errors.New("zerobuffer: system resource exhausted")

	// ErrFrameAlreadyHeld is returned by ReadFrame when a previously
	// returned Frame has not yet been released (§4.4: release_frame must
	// be called before the next read_frame).
	ErrFrameAlreadyHeld = errors.New("zerobuffer: previous frame not yet released")

	// ErrFrameNotHeld is a Go-specific addition: returned by Release when
	// called without an outstanding frame, or with a frame that does not
	// match the one currently on loan. The protocol itself treats double
	// release as undefined (§8); this makes the common misuse detectable
	// instead of silently corrupting the ring.
	ErrFrameNotHeld = errors.New("zerobuffer: no frame held, or frame already released")

	// ErrClosed is returned by ReadFrame, Release, SetMetadata, WriteFrame
	// and WriteFrameFunc when called after Close.
	ErrClosed = errors.New("zerobuffer: buffer closed")
)
