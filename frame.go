package zerobuffer

// Frame is a borrowed view into the reader's shared memory payload
// ring. It is valid only until the matching Reader.Release call, or
// until the Reader is closed — whichever comes first (§4.4, §9 "Borrowed
// frames vs. garbage collection"). Holding onto Data after release, or
// reading it concurrently with a second read_frame, is undefined
// behavior per §8; Release itself makes double-use detectable by
// invalidating the Frame so a reused reference trips ErrFrameNotHeld on
// its next Release.
type Frame struct {
	// Sequence is the frame's writer-assigned sequence number. Real
	// frames delivered to callers have strictly increasing sequence
	// numbers with no gaps; wrap markers are never surfaced here.
	Sequence uint64

	data    []byte
	pos     uint64 // offset of this frame's header within the payload ring
	total   uint64 // header + body + alignment padding, i.e. ring space reclaimed on release
	valid   bool
}

// Data returns the frame body. The returned slice aliases shared
// memory; do not retain it past Release.
func (f *Frame) Data() []byte {
	if !f.valid {
		return nil
	}
	return f.data
}

// Size is len(f.Data()).
func (f *Frame) Size() int {
	return len(f.Data())
}
