package fountain

import (
	"fmt"
	"hash/crc32"
	"math/bits"
)

// Outcome reports the decoder state after one frame.
type Outcome struct {
	// Complete is true once decoding has finished, successfully or not.
	Complete bool
	// Success is meaningful only when Complete is true.
	Success bool
	// Data holds the reconstructed payload when Complete && Success.
	Data []byte
	// Progress is a monotonically non-decreasing fraction in [0, 1].
	Progress float64
	// FramesNeeded estimates how many more useful frames are required.
	FramesNeeded int
}

// row is one independent linear combination of fragments. vec is a bitset
// over fragment indices; data is the XOR of those fragments.
type row struct {
	vec  []uint64
	data []byte
}

// Decoder incrementally reassembles a payload from scanned frames. Frames
// may arrive in any order, duplicated, or partially missing; each useful
// frame raises progress, and nothing a hostile frame carries can destroy
// prior progress.
type Decoder struct {
	locked     bool // header fields pinned by the first valid frame
	total      int
	payloadLen int
	checksum   uint32

	pivots map[int]*row
	rank   int

	final *Outcome // set once terminal, then returned verbatim
}

// NewDecoder returns an empty incremental-assembly state.
func NewDecoder() *Decoder {
	return &Decoder{pivots: make(map[int]*row)}
}

// ProcessFrame feeds one scanned frame into the assembly.
//
// A non-nil error with Complete=false is an ignorable per-frame scan error:
// the frame was malformed or inconsistent with the stream and was dropped
// without touching prior progress. A non-nil error with Complete=true is
// terminal (reconstruction finished but failed its integrity check).
func (d *Decoder) ProcessFrame(text string) (*Outcome, error) {
	if d.final != nil {
		return d.final, nil
	}

	if IsSingleFrame(text) {
		payload, err := parseSingleFrame(text)
		if err != nil {
			return d.outcome(), fmt.Errorf("ignoring frame: %w", err)
		}
		d.final = &Outcome{Complete: true, Success: true, Data: payload, Progress: 1}
		return d.final, nil
	}
	if !IsMultiFrame(text) {
		return d.outcome(), fmt.Errorf("ignoring frame: unrecognized frame prefix")
	}

	f, err := parseMultiFrame(text)
	if err != nil {
		return d.outcome(), fmt.Errorf("ignoring frame: %w", err)
	}

	if !d.locked {
		d.locked = true
		d.total = f.total
		d.payloadLen = f.payloadLen
		d.checksum = f.checksum
	} else if f.total != d.total || f.payloadLen != d.payloadLen || f.checksum != d.checksum {
		return d.outcome(), fmt.Errorf("ignoring frame: belongs to a different payload (%d/%d/%08x, stream is %d/%d/%08x)",
			f.total, f.payloadLen, f.checksum, d.total, d.payloadLen, d.checksum)
	}
	d.absorb(f)

	if d.rank == d.total {
		d.finish()
	}
	return d.outcome(), terminalErr(d.final)
}

func terminalErr(final *Outcome) error {
	if final != nil && !final.Success {
		return fmt.Errorf("payload checksum mismatch after reconstruction")
	}
	return nil
}

// absorb runs online elimination: the frame's combination vector is reduced
// against all known pivots; if anything independent remains it becomes a new
// pivot, otherwise the frame was a duplicate and is dropped silently.
func (d *Decoder) absorb(f *frame) {
	vec := make([]uint64, (d.total+63)/64)
	for _, idx := range fragmentsFor(f.seq, d.total, d.checksum) {
		vec[idx/64] |= 1 << (idx % 64)
	}
	data := make([]byte, len(f.data))
	copy(data, f.data)

	for {
		pivot := lowestBit(vec)
		if pivot < 0 {
			return // fully reduced: duplicate or dependent frame
		}
		existing, ok := d.pivots[pivot]
		if !ok {
			d.pivots[pivot] = &row{vec: vec, data: data}
			d.rank++
			return
		}
		xorVec(vec, existing.vec)
		xorBytes(data, existing.data)
	}
}

// finish back-substitutes the full-rank system into fragments and verifies
// the payload checksum.
func (d *Decoder) finish() {
	size := fragmentSize(d.payloadLen, d.total)
	solved := make([][]byte, d.total)

	// Pivot rows have their lowest set bit at the pivot index, so all other
	// set bits reference higher, already-solved fragments when walking down.
	for i := d.total - 1; i >= 0; i-- {
		r := d.pivots[i]
		frag := make([]byte, size)
		copy(frag, r.data)
		for j := i + 1; j < d.total; j++ {
			if r.vec[j/64]&(1<<(j%64)) != 0 {
				xorBytes(frag, solved[j])
			}
		}
		solved[i] = frag
	}

	payload := make([]byte, 0, d.total*size)
	for _, frag := range solved {
		payload = append(payload, frag...)
	}
	payload = payload[:d.payloadLen]

	if crc32.ChecksumIEEE(payload) != d.checksum {
		d.final = &Outcome{Complete: true, Success: false, Progress: 1}
		return
	}
	d.final = &Outcome{Complete: true, Success: true, Data: payload, Progress: 1}
}

func (d *Decoder) outcome() *Outcome {
	if d.final != nil {
		return d.final
	}
	o := &Outcome{}
	if d.locked && d.total > 0 {
		o.Progress = float64(d.rank) / float64(d.total)
		o.FramesNeeded = d.total - d.rank
	}
	return o
}

func lowestBit(vec []uint64) int {
	for i, w := range vec {
		if w != 0 {
			return i*64 + bits.TrailingZeros64(w)
		}
	}
	return -1
}

func xorVec(dst, src []uint64) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}

func xorBytes(dst, src []byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}
