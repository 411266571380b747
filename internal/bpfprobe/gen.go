// Package bpfprobe names the maps and programs defined by probe.c and
// exposes the path convention the loader uses to find the compiled
// object. It deliberately does not import bpf2go-generated bindings:
// the loader resolves this package's object by path at runtime via
// ebpf.LoadCollectionSpec, so the tree stays buildable without having
// run `go generate` against a clang toolchain first — the same state
// the teacher's own repository is checked in at before its bpf2go step
// runs.
package bpfprobe

//go:generate go run github.com/cilium/ebpf/cmd/bpf2go -cc clang -cflags "-O2 -g -Wall -Werror" -target native -type sample_key probe probe.c -- -I../../headers

// Map names, matching the SEC(".maps") identifiers in probe.c exactly.
const (
	MapStackTraces    = "stack_traces"
	MapOnCPUCounts    = "on_cpu_counts"
	MapOffCPUCounts   = "off_cpu_counts"
	MapPendingOffCPU  = "pending_offcpu"
	MapTargetPID      = "target_pid"
	MapStats          = "ebpf_stats"
)

// Program names, matching the SEC("perf_event"/"tp_btf/...") functions.
const (
	ProgOnCPUSample      = "on_cpu_sample"
	ProgOffCPUSchedSwitch = "off_cpu_sched_switch"
)

// DetachSentinel is the impossible PID value written to target_pid at
// teardown to short-circuit future matches while the real detach (probe
// unload) proceeds, per §5's cancellation sequence.
const DetachSentinel uint32 = 0xFFFFFFFF

// DefaultObjectPath is where the loader looks for the bpf2go-compiled
// object when the caller does not override it with an explicit path
// (e.g. via the CLI's --probe-object flag).
const DefaultObjectPath = "probe_bpfel.o"

// StatIndex orders the ebpf_stats array map; must match enum stat_index
// in probe.c field-for-field.
type StatIndex uint32

const (
	StatSamplesDropped StatIndex = iota
	StatStackMapFull
	StatCountsMapFull
	StatUnwindFailures
	StatSymbolLookupFailures
)
