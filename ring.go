package zerobuffer

import (
	"encoding/binary"
	"sync/atomic"
)

// atomicSubUint64 subtracts delta from a, returning the new value. Go
// permits unary negation of unsigned operands (it wraps modulo 2^64),
// which is exactly the two's-complement trick atomic.Uint64.Add needs
// to perform a subtraction.
func atomicSubUint64(a *atomic.Uint64, delta uint64) uint64 {
	return a.Add(-delta)
}

// Every frame in the payload ring is preceded by a 16-byte header
// (§3.3): an 8-byte payload_size (0 means wrap marker) and an 8-byte
// sequence_number. Header bytes are written by the producer and made
// visible to the peer only after the cursor/bytes_in_use publish and
// semaphore post (§4.2), so plain little-endian encoding is sufficient
// here — no per-byte atomics are needed for the header contents
// themselves. Wrap markers carry no real sequence number (the reader
// never surfaces them) and do not advance NextSequence, so real frames
// keep strictly increasing, gap-free sequence numbers end to end.

func putFrameHeader(payload []byte, pos uint64, size, seq uint64) {
	binary.LittleEndian.PutUint64(payload[pos:], size)
	binary.LittleEndian.PutUint64(payload[pos+8:], seq)
}

func getFrameHeader(payload []byte, pos uint64) (size, seq uint64) {
	size = binary.LittleEndian.Uint64(payload[pos:])
	seq = binary.LittleEndian.Uint64(payload[pos+8:])
	return
}

// freeContiguous returns the free space immediately available starting
// at writePos without wrapping (§4.3.1). bytesInUse disambiguates the
// full/empty case that write_pos == read_pos alone cannot: the ring is
// full when bytesInUse == payloadSize, empty when bytesInUse == 0 (in
// which case write_pos == read_pos structurally, since every byte ever
// written has been released). Either way, the contiguous run to the end
// of the ring is what the writer can use without emitting a wrap marker;
// the span before read_pos only becomes usable once one is written.
func freeContiguous(payloadSize, writePos, readPos, bytesInUse uint64) uint64 {
	if bytesInUse == payloadSize {
		return 0
	}
	if writePos >= readPos {
		return payloadSize - writePos
	}
	return readPos - writePos
}
