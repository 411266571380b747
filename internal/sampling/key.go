// Package sampling defines the wire format shared between the kernel-side
// probes and the user-space loader. Its types have no operations of their
// own; they exist to pin down a byte layout that must agree on both sides
// of the kernel boundary.
package sampling

import "unsafe"

// Sample types carried in Key.SampleType.
const (
	SampleTypeOnCPU  uint8 = 0
	SampleTypeOffCPU uint8 = 1
)

const (
	// TaskCommLen mirrors Linux's TASK_COMM_LEN.
	TaskCommLen = 16

	// MaxStackDepth is the deepest stack the kernel stack-trace map will
	// record; imposed by PERF_MAX_STACK_DEPTH. Stacks deeper than this are
	// truncated top-off: frames farthest from the root are dropped first.
	MaxStackDepth = 127

	// KeyLayoutVersion is bumped whenever Key's wire layout changes. The
	// probe object records no layout version, and the loader does not
	// check this constant before attaching.
	KeyLayoutVersion = 1
)

// Key identifies one aggregated stack. Its packed byte image must be
// bit-for-bit identical in the eBPF program and in Go: same field order,
// same padding, same endianness. The three padding bytes are part of the
// hashed contract, not incidental filler — without them the verifier and
// userspace would hash different byte patterns and counts would fragment
// across what should be one bucket.
type Key struct {
	Pid           uint32
	Tgid          uint32
	UserStackID   int32
	KernelStackID int32
	SampleType    uint8
	_             [3]byte
	Comm          [TaskCommLen]byte
}

// static size assertion: Key must stay exactly 36 bytes, matching
// struct sample_key in probe.c. (The two sides agree with each other at
// 36; an earlier draft of this assertion claimed 32, which neither this
// field list nor probe.c's actually sum to.)
var _ [36]byte = [unsafe.Sizeof(Key{})]byte{}

// CommString converts the null-padded comm field to a Go string, returning
// the placeholder used throughout the pipeline for an empty comm. Emitting
// a placeholder rather than "" matters downstream: an empty frame name
// collapses child trees in the flame graph renderer.
func (k Key) CommString() string {
	n := 0
	for n < len(k.Comm) && k.Comm[n] != 0 {
		n++
	}
	if n == 0 {
		return "[unknown_process]"
	}
	return string(k.Comm[:n])
}

// CommFromString packs s into a null-padded 16-byte comm field, truncating
// if necessary.
func CommFromString(s string) [TaskCommLen]byte {
	var out [TaskCommLen]byte
	copy(out[:], s)
	return out
}

// EbpfStats accumulates the non-fatal per-session counters described in the
// error handling design: samples dropped, the two map-full conditions,
// unwind failures and symbol lookup failures.
// Every step increments these directly rather than returning an error.
type EbpfStats struct {
	SamplesDropped       uint64
	StackMapFull         uint64
	CountsMapFull        uint64
	UnwindFailures       uint64
	SymbolLookupFailures uint64
}

// Add merges other into s.
func (s *EbpfStats) Add(other EbpfStats) {
	s.SamplesDropped += other.SamplesDropped
	s.StackMapFull += other.StackMapFull
	s.CountsMapFull += other.CountsMapFull
	s.UnwindFailures += other.UnwindFailures
	s.SymbolLookupFailures += other.SymbolLookupFailures
}

// CountKey pairs a Key with its observed count, as produced by Drain.
type CountKey struct {
	Key   Key
	Count uint64
}
