package gosym

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func encodeVarint(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			break
		}
	}
	return out
}

func zigzag(v int32) uint64 {
	if v < 0 {
		return uint64(^(v << 1))
	}
	return uint64(v) << 1
}

// TestPcvalDecodesTwoEntries builds a two-entry pcval stream by hand:
// value 0 over [10,20), then value 5 over [20,25). The first entry's
// delta is encoded relative to the iterator's -1 starting value, so it
// must decode to +1 (zigzag(1)) to land on 0, not zigzag(0).
func TestPcvalDecodesTwoEntries(t *testing.T) {
	var stream []byte
	stream = append(stream, encodeVarint(zigzag(1))...)
	stream = append(stream, encodeVarint(10)...) // pc delta -> pcEnd=20
	stream = append(stream, encodeVarint(zigzag(5))...)
	stream = append(stream, encodeVarint(5)...) // pc delta -> pcEnd=25
	stream = append(stream, 0)                  // terminator

	it := newPcval(stream, 10, 1)

	v, ok := it.valueAt(10)
	require.True(t, ok)
	require.Equal(t, int32(0), v)

	v, ok = it.valueAt(19)
	require.True(t, ok)
	require.Equal(t, int32(0), v)

	v, ok = it.valueAt(20)
	require.True(t, ok)
	require.Equal(t, int32(5), v)

	v, ok = it.valueAt(24)
	require.True(t, ok)
	require.Equal(t, int32(5), v)

	_, ok = it.valueAt(25)
	require.False(t, ok)
}

func TestReadVarintMultiByte(t *testing.T) {
	encoded := encodeVarint(300)
	v, n := readVarint(encoded)
	require.Equal(t, uint64(300), v)
	require.Equal(t, len(encoded), n)
}
