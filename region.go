package zerobuffer

import (
	"fmt"

	"github.com/zerobuffer-go/zerobuffer/internal/platform"
)

// region bundles one process's mapping of a buffer's shared memory with
// convenient views into its three sections (§3.1): the OIEB, the
// metadata area, and the payload ring.
type region struct {
	mem      platform.SharedMemory
	oieb     *oieb
	metadata []byte
	payload  []byte
}

func mapRegion(mem platform.SharedMemory, metadataSize, payloadSize uint64) *region {
	raw := mem.Bytes()
	r := &region{
		mem:  mem,
		oieb: castOIEB(raw),
	}
	metaStart := uint64(oiebSize)
	metaEnd := metaStart + metadataSize
	r.metadata = raw[metaStart:metaEnd]
	r.payload = raw[metaEnd : metaEnd+payloadSize]
	return r
}

func (r *region) close() error {
	return r.mem.Close()
}

// openExistingRegion maps a buffer whose size is not yet known to the
// caller: it casts just the fixed-size OIEB first, validates it, and
// only then slices the metadata/payload areas using the sizes recorded
// in the header itself.
func openExistingRegion(mem platform.SharedMemory) (*region, error) {
	raw := mem.Bytes()
	if uint64(len(raw)) < oiebSize {
		return nil, ErrCorruptedHeader
	}
	o := castOIEB(raw)
	if err := validateOIEB(o); err != nil {
		return nil, err
	}
	need := totalRegionSize(o.MetadataSize, o.PayloadSize)
	if int64(len(raw)) < need {
		return nil, fmt.Errorf("%w: region shorter than oieb declares", ErrCorruptedHeader)
	}
	metaStart := uint64(oiebSize)
	metaEnd := metaStart + o.MetadataSize
	return &region{
		mem:      mem,
		oieb:     o,
		metadata: raw[metaStart:metaEnd],
		payload:  raw[metaEnd : metaEnd+o.PayloadSize],
	}, nil
}
