package fountain

import "math"

// The fragment combination of every frame is derived deterministically from
// (seq, checksum), so both devices reproduce it from the frame header alone.
// The wire format is therefore pinned to this generator; the standard
// library's rand sources are not part of any compatibility promise, which is
// why a fixed splitmix64 is inlined here.
type seqRand struct {
	state uint64
}

func newSeqRand(seq int, checksum uint32) *seqRand {
	return &seqRand{state: uint64(seq)<<32 ^ uint64(checksum) ^ 0x9e3779b97f4a7c15}
}

func (r *seqRand) next() uint64 {
	r.state += 0x9e3779b97f4a7c15
	z := r.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// float64 in [0, 1)
func (r *seqRand) float() float64 {
	return float64(r.next()>>11) / (1 << 53)
}

// intn returns a value in [0, n)
func (r *seqRand) intn(n int) int {
	return int(r.next() % uint64(n))
}

// degree draws a mix degree from an ideal-soliton-shaped distribution,
// clamped to [2, k]. Degree-1 coverage comes from the systematic first k
// frames, so redundant frames always combine at least two fragments.
func (r *seqRand) degree(k int) int {
	u := r.float()
	if u <= 0 {
		return 2
	}
	d := int(math.Ceil(1 / u))
	if d < 2 {
		d = 2
	}
	if d > k {
		d = k
	}
	return d
}

// choose picks d distinct fragment indices in [0, k) via a partial shuffle.
func (r *seqRand) choose(k, d int) []int {
	indices := make([]int, k)
	for i := range indices {
		indices[i] = i
	}
	for i := 0; i < d; i++ {
		j := i + r.intn(k-i)
		indices[i], indices[j] = indices[j], indices[i]
	}
	return indices[:d]
}

// fragmentsFor returns the fragment combination of the frame with the given
// sequence number. The first k frames are systematic (one fragment each);
// later frames are pseudo-random mixes.
func fragmentsFor(seq, k int, checksum uint32) []int {
	if seq <= k {
		return []int{seq - 1}
	}
	r := newSeqRand(seq, checksum)
	return r.choose(k, r.degree(k))
}
