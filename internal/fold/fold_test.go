package fold

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cropsey/goflame/internal/gosym"
	"github.com/cropsey/goflame/internal/sampling"
)

type fakeResolver struct {
	names map[uint64]string
}

func (f fakeResolver) Resolve(pc uint64) (gosym.Frame, bool) {
	name, ok := f.names[pc]
	if !ok {
		return gosym.Frame{}, false
	}
	return gosym.Frame{Name: name}, true
}

func TestEmptyCommBecomesPlaceholder(t *testing.T) {
	agg := New(fakeResolver{names: map[uint64]string{1: "main.fib"}}, nil)
	agg.Add(Stack{Key: sampling.Key{UserStackID: -1, SampleType: sampling.SampleTypeOnCPU}, UserPCs: []uint64{1}}, 5)

	lines := agg.Lines()
	require.Len(t, lines, 1)
	require.True(t, strings.HasPrefix(lines[0], "[unknown_process];main.fib "))
}

func TestSemicolonEscaped(t *testing.T) {
	agg := New(fakeResolver{names: map[uint64]string{1: "pkg.Foo;bar"}}, nil)
	agg.Add(Stack{Key: sampling.Key{Comm: sampling.CommFromString("app")}, UserPCs: []uint64{1}}, 1)

	lines := agg.Lines()
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "pkg.Foo;bar")
	require.Equal(t, 1, strings.Count(lines[0], ";"))
}

func TestOffCPULeafSuffix(t *testing.T) {
	agg := New(fakeResolver{names: map[uint64]string{1: "runtime.futexsleep"}}, nil)
	agg.Add(Stack{
		Key:     sampling.Key{SampleType: sampling.SampleTypeOffCPU, Comm: sampling.CommFromString("app")},
		UserPCs: []uint64{1},
	}, 200_000_000)

	lines := agg.Lines()
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "runtime.futexsleep_[o]")
}

func TestUnresolvedPCFormatsAsUnknown(t *testing.T) {
	agg := New(fakeResolver{names: map[uint64]string{}}, nil)
	agg.Add(Stack{Key: sampling.Key{Comm: sampling.CommFromString("app")}, UserPCs: []uint64{0xdeadbeef}}, 1)

	lines := agg.Lines()
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "[unknown:0xdeadbeef]")
}

func TestKernelFrameFallsBackWithoutKallsyms(t *testing.T) {
	agg := New(fakeResolver{names: map[uint64]string{}}, nil)
	agg.Add(Stack{
		Key:       sampling.Key{Comm: sampling.CommFromString("app")},
		KernelPCs: []uint64{0x1000},
	}, 1)

	lines := agg.Lines()
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "[kernel]_[k]")
}
