package loader

import (
	"context"
	"time"

	"github.com/cropsey/goflame/internal/bpfprobe"
	"github.com/cropsey/goflame/internal/sampling"
)

// Config describes one profiling session's invocation, mirroring the
// operation signature in §4.D: start(target_pid, frequency_hz, modes).
type Config struct {
	TargetPID   uint32
	FrequencyHz int
	OnCPU       bool
	OffCPU      bool
}

// Session owns one Backend for the lifetime of one profiling run. There
// is no process-wide singleton: every field a probe or map touches is
// reachable only through this value, per §9's "global mutable eBPF maps"
// redesign note.
type Session struct {
	backend Backend
	cfg     Config

	onCPUAttached  bool
	offCPUAttached bool
}

// Start loads the backend, attaches the configured probes, and writes
// the target PID filter. On any failure it tears down whatever was
// already attached before returning, so callers never need to call Stop
// on a Session that failed to Start.
func Start(ctx context.Context, backend Backend, cfg Config) (*Session, error) {
	s := &Session{backend: backend, cfg: cfg}

	if err := backend.Load(ctx); err != nil {
		return nil, err
	}

	if cfg.OnCPU {
		if err := backend.AttachOnCPU(ctx, cfg.FrequencyHz); err != nil {
			_ = s.teardown()
			return nil, err
		}
		s.onCPUAttached = true
	}

	if cfg.OffCPU {
		if err := backend.AttachOffCPU(ctx); err != nil {
			_ = s.teardown()
			return nil, err
		}
		s.offCPUAttached = true
	}

	if err := backend.SetTargetPID(cfg.TargetPID); err != nil {
		_ = s.teardown()
		return nil, err
	}

	return s, nil
}

// RunFor blocks until dur elapses or ctx is cancelled, then performs the
// §5 teardown sequence: sentinel the PID filter, drain, detach, unload.
// It returns the drained counts and kernel-side statistics regardless of
// whether teardown's individual steps succeeded, since §5 requires every
// step to be attempted even after a partial failure.
func (s *Session) RunFor(ctx context.Context, dur time.Duration) (onCPU, offCPU []sampling.CountKey, stats sampling.EbpfStats, err error) {
	t := time.NewTimer(dur)
	defer t.Stop()

	select {
	case <-t.C:
	case <-ctx.Done():
	}

	return s.Stop()
}

// Stop runs the teardown sequence described in §5 and returns the final
// drained counts plus kernel-side statistics. Stop keeps no state of its
// own: a second call repeats every step against the already detached and
// closed backend and returns whatever those calls yield.
func (s *Session) Stop() (onCPU, offCPU []sampling.CountKey, stats sampling.EbpfStats, err error) {
	// Step 1: sentinel the filter so no new samples match while detach
	// proceeds.
	if e := s.backend.SetTargetPID(bpfprobe.DetachSentinel); e != nil && err == nil {
		err = e
	}

	// Step 2: drain before detaching, since detach may race with
	// in-flight kernel-side map writes that are still visible right now.
	var e error
	onCPU, e = s.backend.DrainOnCPU()
	if e != nil && err == nil {
		err = e
	}
	offCPU, e = s.backend.DrainOffCPU()
	if e != nil && err == nil {
		err = e
	}

	stats = s.backend.Stats()

	// Step 3: detach probes.
	if e := s.backend.Detach(); e != nil && err == nil {
		err = e
	}

	// Step 4: unload.
	if e := s.backend.Close(); e != nil && err == nil {
		err = e
	}

	return onCPU, offCPU, stats, err
}

// ResolveStack delegates to the backend; see Backend.ResolveStack.
func (s *Session) ResolveStack(stackID int32) ([]uint64, error) {
	return s.backend.ResolveStack(stackID)
}

// teardown is used on a failed Start: detach whatever was attached and
// close the backend, swallowing errors since the caller is already
// returning the original failure.
func (s *Session) teardown() error {
	if s.onCPUAttached || s.offCPUAttached {
		_ = s.backend.Detach()
	}
	return s.backend.Close()
}
