package zerobuffer

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// oiebMagic identifies a valid OIEB at offset 0 of the shared region.
var oiebMagic = [4]byte{'Z', 'B', 'U', 'F'}

const (
	versionMajor = 1
	versionMinor = 0

	// flagHeaderAligned8 records that this implementation pads every
	// frame to an 8-byte boundary inside the ring (§9 open question:
	// alignment is part of the wire contract and must be pinned here so
	// a mismatched peer is detected instead of silently misreading).
	flagHeaderAligned8 uint16 = 1 << 0

	frameAlignment = 8

	// frameHeaderSize is the 16-byte header preceding every frame body
	// in the payload ring (§3.3).
	frameHeaderSize = 16
)

// oieb is the Operational Information Exchange Block: the fixed-layout
// control block at offset 0 of the shared memory region. Its fields are
// overlaid directly onto the mmap'd bytes via unsafe.Pointer, so cursor
// fields use the atomic wrapper types (not plain integers) to get
// cross-process-safe loads/stores for free — the same technique the
// corpus's mmap'd atomic-ring-buffer code uses for its indices.
//
// Field order and widths are part of the wire contract (§6.2) and must
// not change without bumping versionMajor.
type oieb struct {
	Magic        [4]byte
	VersionMajor uint8
	VersionMinor uint8
	Flags        uint16

	OiebSize     uint64
	MetadataSize uint64

	MetadataWritten atomic.Uint64
	PayloadSize     uint64

	WritePos     atomic.Uint64
	ReadPos      atomic.Uint64
	BytesInUse   atomic.Uint64
	NextSequence atomic.Uint64

	ReaderPID atomic.Uint64
	WriterPID atomic.Uint64

	_ [40]byte // reserved, pads to oiebSize
}

const oiebSize = 128

func init() {
	if unsafe.Sizeof(oieb{}) != oiebSize {
		panic(fmt.Sprintf("zerobuffer: oieb size is %d, expected %d", unsafe.Sizeof(oieb{}), oiebSize))
	}
}

// castOIEB overlays an *oieb onto the start of a shared memory mapping.
// The caller must guarantee region is at least oiebSize bytes and stays
// alive (mapped) for as long as the returned pointer is used.
func castOIEB(region []byte) *oieb {
	if len(region) < oiebSize {
		panic("zerobuffer: region smaller than OIEB")
	}
	return (*oieb)(unsafe.Pointer(&region[0]))
}

// initOIEB stamps a freshly created region's control block. Called only
// by the reader that creates the buffer, before any semaphore or pid is
// published.
func initOIEB(o *oieb, metadataSize, payloadSize uint64) {
	o.Magic = oiebMagic
	o.VersionMajor = versionMajor
	o.VersionMinor = versionMinor
	o.Flags = flagHeaderAligned8
	o.OiebSize = oiebSize
	o.MetadataSize = metadataSize
	o.MetadataWritten.Store(0)
	o.PayloadSize = payloadSize
	o.WritePos.Store(0)
	o.ReadPos.Store(0)
	o.BytesInUse.Store(0)
	o.NextSequence.Store(1)
	o.ReaderPID.Store(0)
	o.WriterPID.Store(0)
}

// validate checks the structural invariants that must hold for any OIEB
// observed by a peer attaching to an existing region.
func validateOIEB(o *oieb) error {
	if o.Magic != oiebMagic {
		return fmt.Errorf("%w: bad magic", ErrCorruptedHeader)
	}
	if o.VersionMajor != versionMajor {
		return fmt.Errorf("%w: unsupported version %d.%d", ErrCorruptedHeader, o.VersionMajor, o.VersionMinor)
	}
	if o.OiebSize != oiebSize {
		return fmt.Errorf("%w: unexpected oieb_size %d", ErrCorruptedHeader, o.OiebSize)
	}
	if o.Flags&flagHeaderAligned8 == 0 {
		return fmt.Errorf("%w: peer uses incompatible frame alignment", ErrCorruptedHeader)
	}
	biu := o.BytesInUse.Load()
	if biu > o.PayloadSize {
		return fmt.Errorf("%w: bytes_in_use %d exceeds payload_size %d", ErrCorruptedHeader, biu, o.PayloadSize)
	}
	wp, rp := o.WritePos.Load(), o.ReadPos.Load()
	if wp >= o.PayloadSize || rp >= o.PayloadSize {
		return fmt.Errorf("%w: cursor out of range", ErrCorruptedHeader)
	}
	return nil
}

// totalRegionSize is the full shared memory allocation for a buffer.
func totalRegionSize(metadataSize, payloadSize uint64) int64 {
	return int64(oiebSize) + int64(metadataSize) + int64(payloadSize)
}

func alignUp(n uint64) uint64 {
	return (n + frameAlignment - 1) &^ (frameAlignment - 1)
}
