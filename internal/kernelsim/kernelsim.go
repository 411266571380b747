// Package kernelsim is a pure-Go reference model of the kernel-side
// sampling state machine described by probe.c: on-CPU counting and the
// off-CPU Absent->OutRecorded->{Consumed,Expired} pairing machine from
// §4.B. It exists so the count-conservation and off-CPU-pairing
// properties in §8 can be exercised by ordinary unit tests, without
// root, a kernel with BTF, or any actual eBPF load — ports the teacher's
// inline stack-building logic (stack_from_elf.go's humanReadableStack)
// into a driving harness instead of a kernel probe.
package kernelsim

import (
	"context"
	"sync"

	"github.com/cropsey/goflame/internal/loader"
	"github.com/cropsey/goflame/internal/sampling"
)

// pendingEntry mirrors probe.c's struct pending_offcpu.
type pendingEntry struct {
	tsNS uint64
	key  sampling.Key
}

// Backend is a loader.Backend implementation that tests drive directly
// with RecordOnCPU/RecordSchedOut/RecordSchedIn instead of real kernel
// events.
type Backend struct {
	mu sync.Mutex

	target uint32

	stacks      map[int32][]uint64
	nextStackID int32

	onCPUCounts  map[sampling.Key]uint64
	offCPUCounts map[sampling.Key]uint64
	pending      map[uint32]pendingEntry

	stats sampling.EbpfStats

	maxOffCPUNS uint64
}

// New builds an unloaded fake backend. maxOffCPUNS mirrors probe.c's
// OFFCPU_MAX_NS clamp; pass 0 to use the spec's 10s default.
func New(maxOffCPUNS uint64) *Backend {
	if maxOffCPUNS == 0 {
		maxOffCPUNS = 10_000_000_000
	}
	return &Backend{
		stacks:       make(map[int32][]uint64),
		onCPUCounts:  make(map[sampling.Key]uint64),
		offCPUCounts: make(map[sampling.Key]uint64),
		pending:      make(map[uint32]pendingEntry),
		maxOffCPUNS:  maxOffCPUNS,
	}
}

var _ loader.Backend = (*Backend)(nil)

func (b *Backend) Load(ctx context.Context) error                 { return nil }
func (b *Backend) AttachOnCPU(ctx context.Context, hz int) error  { return nil }
func (b *Backend) AttachOffCPU(ctx context.Context) error         { return nil }
func (b *Backend) Detach() error                                  { return nil }
func (b *Backend) Close() error                                   { return nil }

func (b *Backend) SetTargetPID(pid uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = pid
	return nil
}

func (b *Backend) passesFilter(tgid uint32) bool {
	if b.target == 0xFFFFFFFF {
		return false
	}
	return b.target == 0 || tgid == b.target
}

// recordStack interns a synthetic stack trace, returning its stack id
// (identical stacks share one id), or -1 if pcs is empty (mirrors
// bpf_get_stackid's -1-on-miss contract).
func (b *Backend) recordStack(pcs []uint64) int32 {
	if len(pcs) == 0 {
		return -1
	}
	if len(pcs) > sampling.MaxStackDepth {
		pcs = pcs[:sampling.MaxStackDepth] // top-off truncation per §9
	}
next:
	for existingID, existing := range b.stacks {
		if len(existing) != len(pcs) {
			continue
		}
		for i := range pcs {
			if existing[i] != pcs[i] {
				continue next
			}
		}
		return existingID
	}
	id := b.nextStackID
	b.nextStackID++
	b.stacks[id] = pcs
	return id
}

// RecordOnCPU simulates one on-CPU sample, mirroring on_cpu_sample.
func (b *Backend) RecordOnCPU(tgid, pid uint32, comm string, userPCs, kernelPCs []uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.passesFilter(tgid) {
		return
	}
	key := sampling.Key{
		Pid: pid, Tgid: tgid,
		UserStackID:   b.recordStack(userPCs),
		KernelStackID: b.recordStack(kernelPCs),
		SampleType:    sampling.SampleTypeOnCPU,
		Comm:          sampling.CommFromString(comm),
	}
	b.onCPUCounts[key]++
}

// RecordSchedOut simulates the prev-task half of off_cpu_sched_switch.
func (b *Backend) RecordSchedOut(tgid, tid uint32, comm string, tsNS uint64, userPCs, kernelPCs []uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.passesFilter(tgid) {
		return
	}
	key := sampling.Key{
		Pid: tid, Tgid: tgid,
		UserStackID:   b.recordStack(userPCs),
		KernelStackID: b.recordStack(kernelPCs),
		SampleType:    sampling.SampleTypeOffCPU,
		Comm:          sampling.CommFromString(comm),
	}
	b.pending[tid] = pendingEntry{tsNS: tsNS, key: key}
}

// RecordSchedIn simulates the next-task half: Consumed transition if a
// pending entry exists, otherwise a no-op (Absent stays Absent).
func (b *Backend) RecordSchedIn(tgid, tid uint32, tsNS uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.passesFilter(tgid) {
		return
	}
	entry, ok := b.pending[tid]
	if !ok {
		return
	}
	delete(b.pending, tid)

	delta := tsNS - entry.tsNS
	if delta > b.maxOffCPUNS {
		delta = b.maxOffCPUNS
	}
	b.offCPUCounts[entry.key] += delta
}

// ExpirePending discards any entries still in OutRecorded at session
// end, matching the Expired transition in §4.B's state machine.
func (b *Backend) ExpirePending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.pending)
	b.pending = make(map[uint32]pendingEntry)
	return n
}

func (b *Backend) DrainOnCPU() ([]sampling.CountKey, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]sampling.CountKey, 0, len(b.onCPUCounts))
	for k, v := range b.onCPUCounts {
		out = append(out, sampling.CountKey{Key: k, Count: v})
	}
	return out, nil
}

func (b *Backend) DrainOffCPU() ([]sampling.CountKey, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]sampling.CountKey, 0, len(b.offCPUCounts))
	for k, v := range b.offCPUCounts {
		out = append(out, sampling.CountKey{Key: k, Count: v})
	}
	return out, nil
}

func (b *Backend) ResolveStack(stackID int32) ([]uint64, error) {
	if stackID < 0 {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stacks[stackID], nil
}

func (b *Backend) Stats() sampling.EbpfStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}
