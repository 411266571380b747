// Package loader drives the kernel-side probes: loading the compiled
// object, attaching it across CPUs and the sched_switch tracepoint,
// writing the target PID filter, and draining the resulting maps. It
// generalizes the teacher's inline main()-body perf-event wiring
// (profiler/main.go, perf_hacking/main.go) into a Backend interface with
// two implementations: ebpfBackend, the real cilium/ebpf-driven one, and
// kernelsim's fake, used by tests that cannot load eBPF programs.
package loader

import (
	"context"

	"github.com/cropsey/goflame/internal/sampling"
)

// Backend is the minimum surface a sampling engine must provide. A
// Session is built on top of one Backend value and never reaches past it
// into cilium/ebpf or kernelsim types directly.
type Backend interface {
	// Load loads the compiled probe object (or, for a fake backend,
	// primes its internal state) and creates the declared maps.
	Load(ctx context.Context) error

	// AttachOnCPU attaches the on-CPU sampling probe to every online CPU
	// at the given frequency in Hz.
	AttachOnCPU(ctx context.Context, frequencyHz int) error

	// AttachOffCPU attaches the off-CPU sched_switch tracepoint probe.
	AttachOffCPU(ctx context.Context) error

	// SetTargetPID writes the single-slot PID filter. 0 means
	// system-wide; bpfprobe.DetachSentinel disables further matches.
	SetTargetPID(pid uint32) error

	// DrainOnCPU performs a non-destructive read of the on-CPU counts map.
	DrainOnCPU() ([]sampling.CountKey, error)

	// DrainOffCPU performs a non-destructive read of the off-CPU counts map.
	DrainOffCPU() ([]sampling.CountKey, error)

	// ResolveStack reads the stack-trace map for stackID, returning an
	// empty slice for stackID < 0 per §4.D.
	ResolveStack(stackID int32) ([]uint64, error)

	// Stats snapshots the kernel-side failure counters.
	Stats() sampling.EbpfStats

	// Detach tears down every attachment this backend holds. It is
	// called once during Session teardown and must not panic or abort
	// on a partial failure — callers aggregate
	// errors and keep going per §5's teardown sequence.
	Detach() error

	// Close unloads programs and frees maps. Idempotent.
	Close() error
}
