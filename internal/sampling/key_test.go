package sampling

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// TestKeySize guards the wire-layout size: sizeof(Key) == 36, matching
// struct sample_key in probe.c. Like the static assertion in key.go, it
// checks the total size only, not individual field offsets.
func TestKeySize(t *testing.T) {
	require.Equal(t, uintptr(36), unsafe.Sizeof(Key{}))
}

func TestCommStringPlaceholdersEmptyComm(t *testing.T) {
	var k Key
	require.Equal(t, "[unknown_process]", k.CommString())
}

func TestCommStringRoundTrip(t *testing.T) {
	k := Key{Comm: CommFromString("myapp")}
	require.Equal(t, "myapp", k.CommString())
}

func TestCommFromStringTruncates(t *testing.T) {
	long := "a-name-that-is-far-too-long-for-task-comm"
	comm := CommFromString(long)
	require.LessOrEqual(t, len(comm), TaskCommLen)
}

func TestEbpfStatsAdd(t *testing.T) {
	a := EbpfStats{SamplesDropped: 1, StackMapFull: 2}
	b := EbpfStats{SamplesDropped: 3, UnwindFailures: 4}
	a.Add(b)
	require.Equal(t, uint64(4), a.SamplesDropped)
	require.Equal(t, uint64(2), a.StackMapFull)
	require.Equal(t, uint64(4), a.UnwindFailures)
}
