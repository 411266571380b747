package kernelsim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestOnCPUCountConservation guards §8 property 2 in reduced form: N
// identical on-CPU samples for one key fold into one aggregated count of
// N, not N separate entries.
func TestOnCPUCountConservation(t *testing.T) {
	b := New(0)
	require.NoError(t, b.SetTargetPID(100))

	for i := 0; i < 50; i++ {
		b.RecordOnCPU(100, 100, "fib", []uint64{0x1000}, nil)
	}

	counts, err := b.DrainOnCPU()
	require.NoError(t, err)
	require.Len(t, counts, 1)
	require.Equal(t, uint64(50), counts[0].Count)
}

// TestOffCPUPairing guards §8 property 6 and the Absent->OutRecorded->
// Consumed transition of §4.B: a schedule-out followed by a schedule-in
// 200ms later must attribute 200ms of off-CPU time to the sleeping key.
func TestOffCPUPairing(t *testing.T) {
	b := New(0)
	require.NoError(t, b.SetTargetPID(100))

	const nsPerMs = 1_000_000
	b.RecordSchedOut(100, 100, "app", 1000*nsPerMs, []uint64{0x2000}, nil)
	b.RecordSchedIn(100, 100, 1200*nsPerMs)

	counts, err := b.DrainOffCPU()
	require.NoError(t, err)
	require.Len(t, counts, 1)
	require.Equal(t, uint64(200*nsPerMs), counts[0].Count)
}

// TestOffCPUClamp guards the ceiling on a single off-CPU interval (10s by
// default), exercised here with a 5s clamp passed to New.
func TestOffCPUClamp(t *testing.T) {
	b := New(5_000_000_000) // 5s clamp for this test
	require.NoError(t, b.SetTargetPID(100))

	b.RecordSchedOut(100, 100, "app", 0, nil, nil)
	b.RecordSchedIn(100, 100, 20_000_000_000) // 20s elapsed

	counts, err := b.DrainOffCPU()
	require.NoError(t, err)
	require.Len(t, counts, 1)
	require.Equal(t, uint64(5_000_000_000), counts[0].Count)
}

// TestExpiredPendingDiscarded guards the Expired transition: a
// schedule-out with no matching schedule-in before session end must not
// appear in the off-CPU drain, and ExpirePending reports it was dropped.
func TestExpiredPendingDiscarded(t *testing.T) {
	b := New(0)
	require.NoError(t, b.SetTargetPID(100))

	b.RecordSchedOut(100, 100, "app", 0, nil, nil)

	counts, err := b.DrainOffCPU()
	require.NoError(t, err)
	require.Empty(t, counts)
	require.Equal(t, 1, b.ExpirePending())
}

// TestTargetFilterRejectsOtherTGID guards §3.4's filter semantics.
func TestTargetFilterRejectsOtherTGID(t *testing.T) {
	b := New(0)
	require.NoError(t, b.SetTargetPID(100))

	b.RecordOnCPU(999, 999, "other", []uint64{0x1000}, nil)

	counts, err := b.DrainOnCPU()
	require.NoError(t, err)
	require.Empty(t, counts)
}

// TestDetachSentinelRejectsEverything guards the teardown sentinel from
// §5's cancellation sequence.
func TestDetachSentinelRejectsEverything(t *testing.T) {
	b := New(0)
	require.NoError(t, b.SetTargetPID(0xFFFFFFFF))

	b.RecordOnCPU(100, 100, "app", []uint64{0x1000}, nil)

	counts, err := b.DrainOnCPU()
	require.NoError(t, err)
	require.Empty(t, counts)
}

func TestStackTruncationTopOff(t *testing.T) {
	b := New(0)
	require.NoError(t, b.SetTargetPID(0))

	deep := make([]uint64, 200)
	for i := range deep {
		deep[i] = uint64(i + 1)
	}
	b.RecordOnCPU(1, 1, "app", deep, nil)

	counts, err := b.DrainOnCPU()
	require.NoError(t, err)
	require.Len(t, counts, 1)

	pcs, err := b.ResolveStack(counts[0].Key.UserStackID)
	require.NoError(t, err)
	require.Len(t, pcs, 127)
	require.Equal(t, uint64(1), pcs[0]) // root-side frames kept, deepest dropped
}
