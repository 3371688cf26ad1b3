package fountain

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// Frame grammar. Every frame is standalone: type, fragment-combination seed
// and payload-identity are all carried in the frame text, no prior handshake
// is needed to interpret one.
//
//	single:  vqf1:s:<base64url payload>
//	multi:   vqf1:m:<seq>/<k>:<payloadLen>:<crc32 hex>:<base64url mix>
const (
	framePrefix       = "vqf1"
	singlePrefix      = framePrefix + ":s:"
	multiPrefix       = framePrefix + ":m:"
	multiHeaderFields = 4
)

type frame struct {
	seq        int // 1-based sequence number, seeds the fragment combination
	total      int // k, the logical fragment count
	payloadLen int
	checksum   uint32
	data       []byte // fragmentSize bytes, XOR of the combined fragments
}

// IsSingleFrame reports whether text looks like a self-contained
// single-frame payload. Cheap syntactic check for the scanning UI.
func IsSingleFrame(text string) bool {
	return strings.HasPrefix(text, singlePrefix)
}

// IsMultiFrame reports whether text looks like one frame of a multi-frame
// stream.
func IsMultiFrame(text string) bool {
	return strings.HasPrefix(text, multiPrefix)
}

func formatSingleFrame(payload []byte) string {
	return singlePrefix + base64.RawURLEncoding.EncodeToString(payload)
}

func parseSingleFrame(text string) ([]byte, error) {
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(text, singlePrefix))
	if err != nil {
		return nil, fmt.Errorf("invalid single-frame payload encoding: %w", err)
	}
	return payload, nil
}

func (f *frame) format() string {
	return fmt.Sprintf("%s%d/%d:%d:%08x:%s",
		multiPrefix, f.seq, f.total, f.payloadLen, f.checksum,
		base64.RawURLEncoding.EncodeToString(f.data))
}

func parseMultiFrame(text string) (*frame, error) {
	body := strings.TrimPrefix(text, multiPrefix)
	parts := strings.SplitN(body, ":", multiHeaderFields)
	if len(parts) != multiHeaderFields {
		return nil, fmt.Errorf("expected %d frame fields, got %d", multiHeaderFields, len(parts))
	}

	seqTotal := strings.SplitN(parts[0], "/", 2)
	if len(seqTotal) != 2 {
		return nil, fmt.Errorf("invalid seq/total field %q", parts[0])
	}
	seq, err := strconv.Atoi(seqTotal[0])
	if err != nil || seq < 1 {
		return nil, fmt.Errorf("invalid frame seq %q", seqTotal[0])
	}
	total, err := strconv.Atoi(seqTotal[1])
	if err != nil || total < 1 {
		return nil, fmt.Errorf("invalid fragment total %q", seqTotal[1])
	}

	payloadLen, err := strconv.Atoi(parts[1])
	if err != nil || payloadLen < 1 {
		return nil, fmt.Errorf("invalid payload length %q", parts[1])
	}

	checksum, err := strconv.ParseUint(parts[2], 16, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid checksum %q", parts[2])
	}

	data, err := base64.RawURLEncoding.DecodeString(parts[3])
	if err != nil {
		return nil, fmt.Errorf("invalid frame data encoding: %w", err)
	}
	if len(data) != fragmentSize(payloadLen, total) {
		return nil, fmt.Errorf("frame data is %d bytes, expected %d", len(data), fragmentSize(payloadLen, total))
	}

	return &frame{
		seq:        seq,
		total:      total,
		payloadLen: payloadLen,
		checksum:   uint32(checksum),
		data:       data,
	}, nil
}

// fragmentSize is the padded size of every logical fragment.
func fragmentSize(payloadLen, total int) int {
	return (payloadLen + total - 1) / total
}
