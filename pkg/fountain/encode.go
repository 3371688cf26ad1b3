package fountain

import (
	"fmt"
	"hash/crc32"
)

// Redundancy is the minimum ratio of generated frames to logical fragments.
// A receiver that misses a share of the stream can still reconstruct from
// the surplus without ever re-requesting a frame.
const Redundancy = 1.5

// Config controls frame generation.
type Config struct {
	// MaxFragmentBytes is the number of payload bytes per frame before
	// transport overhead. Payloads at or below this fit in one frame.
	MaxFragmentBytes int
	// FramesPerSecond is the advisory display rate for the rendering UI.
	// It does not affect encoding.
	FramesPerSecond int
	// MinFragments, when positive, floors the generated frame count of a
	// multi-frame stream. Useful when the display loop cannot cycle.
	MinFragments int
}

// DefaultConfig matches the single-frame capacity of the protocol codec.
var DefaultConfig = Config{
	MaxFragmentBytes: 800,
	FramesPerSecond:  5,
}

// EncodeResult is a generated frame stream.
type EncodeResult struct {
	Frames       []string
	IsMultiFrame bool
	FrameCount   int
}

// Encode turns a byte payload into a sequence of self-describing optical
// frames. Payloads within the single-frame capacity produce exactly one
// frame; larger payloads produce a redundant rateless stream that the
// decoder can reassemble from any sufficiently large subset, in any order.
func Encode(data []byte, cfg Config) (*EncodeResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot encode empty payload")
	}
	if cfg.MaxFragmentBytes <= 0 {
		cfg.MaxFragmentBytes = DefaultConfig.MaxFragmentBytes
	}

	if len(data) <= cfg.MaxFragmentBytes {
		return &EncodeResult{
			Frames:       []string{formatSingleFrame(data)},
			IsMultiFrame: false,
			FrameCount:   1,
		}, nil
	}

	k := (len(data) + cfg.MaxFragmentBytes - 1) / cfg.MaxFragmentBytes
	checksum := crc32.ChecksumIEEE(data)
	fragments := splitFragments(data, k)

	frameCount := int(float64(k)*Redundancy + 0.999999)
	if frameCount < cfg.MinFragments {
		frameCount = cfg.MinFragments
	}

	frames := make([]string, 0, frameCount)
	for seq := 1; seq <= frameCount; seq++ {
		f := &frame{
			seq:        seq,
			total:      k,
			payloadLen: len(data),
			checksum:   checksum,
			data:       mixFragments(fragments, fragmentsFor(seq, k, checksum)),
		}
		frames = append(frames, f.format())
	}

	return &EncodeResult{
		Frames:       frames,
		IsMultiFrame: true,
		FrameCount:   frameCount,
	}, nil
}

// splitFragments cuts the payload into k fragments, zero-padding the tail so
// every fragment has the same size.
func splitFragments(data []byte, k int) [][]byte {
	size := fragmentSize(len(data), k)
	fragments := make([][]byte, k)
	for i := 0; i < k; i++ {
		frag := make([]byte, size)
		copy(frag, data[i*size:min(len(data), (i+1)*size)])
		fragments[i] = frag
	}
	return fragments
}

// mixFragments XORs the selected fragments together.
func mixFragments(fragments [][]byte, indices []int) []byte {
	mix := make([]byte, len(fragments[0]))
	for _, idx := range indices {
		for i, b := range fragments[idx] {
			mix[i] ^= b
		}
	}
	return mix
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
