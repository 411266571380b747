// Package session ties the loader, binary inspector, symbol resolver,
// folded-stack aggregator, and flame-graph renderer into the single
// entry point cmd/goflame drives: one profiling run, start to finish.
// It generalizes the teacher's main() body — which inlined loader setup,
// a print loop, and teardown all in one function — into a reusable,
// testable value, per §9's "handles owned by a Session value" redesign
// note.
package session

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cropsey/goflame/internal/binutil"
	"github.com/cropsey/goflame/internal/fold"
	"github.com/cropsey/goflame/internal/gosym"
	"github.com/cropsey/goflame/internal/loader"
	"github.com/cropsey/goflame/internal/metrics"
	"github.com/cropsey/goflame/internal/profilererr"
	"github.com/cropsey/goflame/internal/sampling"
)

// Request describes one invocation of the profiler core, independent of
// how it was parsed (cmd/goflame's flag set, or a future operator
// collaborator calling this package directly).
type Request struct {
	PID         int
	Duration    time.Duration
	OnCPU       bool
	OffCPU      bool
	FrequencyHz int
}

// Result is everything the output stage (folded text, SVG, or both)
// needs, plus the stats a caller reports via metrics.Registry.
type Result struct {
	SessionID string
	Lines     []string
	Stats     sampling.EbpfStats
	Duration  time.Duration
}

// Run executes one full profiling session: validate the target, load
// and attach probes, sleep out the duration, drain and symbolize, and
// return the folded-stack lines. It never writes output itself — that
// is cmd/goflame's job, matching §6.4's "each invocation is stateless"
// rule by keeping this package free of file or stdout writes.
func Run(ctx context.Context, req Request, backend loader.Backend, log zerolog.Logger) (*Result, error) {
	sessionID := uuid.New().String()
	log = log.With().Str("session_id", sessionID).Logger()

	// The kernel-side filter in probe.c treats tgid 0 as "no filter"
	// (system-wide), but this package resolves user-space symbols against
	// exactly one target binary's gopclntab (binutil.Open takes one pid).
	// A system-wide run has no single binary to resolve against, so --pid 0
	// is rejected here rather than silently producing [unknown] frames for
	// every process on the box; see DESIGN.md's Open Questions section.
	if req.PID <= 0 {
		return nil, profilererr.New(profilererr.KindInvalidArgs, "pid must be positive: system-wide profiling (pid 0) is not supported by the symbolizer")
	}
	if !req.OnCPU && !req.OffCPU {
		req.OnCPU = true
	}

	userResolver := fold.Resolver(noopResolver{})
	insp, err := binutil.Open(req.PID)
	if err != nil {
		if kind, ok := profilererr.As(err); !ok || kind != profilererr.KindNotGoBinary {
			return nil, err
		}
		log.Warn().Err(err).Msg("target is not a Go binary, frames will render as [unknown]")
	} else {
		defer insp.Close()

		resolver, err := gosym.NewResolver(insp)
		if err != nil {
			log.Warn().Err(err).Msg("symbol resolver unavailable, frames will render as [unknown]")
		}
		if resolver != nil {
			userResolver = resolver
		}
	}

	kernelSyms := loadKernelSymbols(log)

	cfg := loader.Config{
		TargetPID:   uint32(req.PID),
		FrequencyHz: req.FrequencyHz,
		OnCPU:       req.OnCPU,
		OffCPU:      req.OffCPU,
	}

	sess, err := loader.Start(ctx, backend, cfg)
	if err != nil {
		return nil, err
	}

	log.Info().Int("pid", req.PID).Dur("duration", req.Duration).Msg("session started")

	onCPU, offCPU, stats, stopErr := sess.RunFor(ctx, req.Duration)
	if stopErr != nil {
		log.Warn().Err(stopErr).Msg("teardown reported an error; partial results returned")
	}

	agg := fold.New(userResolver, kernelSyms)
	if err := foldDrained(agg, sess, onCPU); err != nil {
		log.Warn().Err(err).Msg("failed to resolve some on-CPU stacks")
	}
	if err := foldDrained(agg, sess, offCPU); err != nil {
		log.Warn().Err(err).Msg("failed to resolve some off-CPU stacks")
	}

	return &Result{
		SessionID: sessionID,
		Lines:     agg.Lines(),
		Stats:     stats,
		Duration:  req.Duration,
	}, nil
}

// noopResolver substitutes for a degraded or absent gosym.Resolver.
// gosym.NewResolver can return (nil, err); storing that nil *Resolver
// directly into the fold.Resolver interface would produce a non-nil
// interface wrapping a nil pointer, panicking on the first Resolve call.
// noopResolver always reports failure, so every user PC renders via
// gosym.FormatUnknown instead.
type noopResolver struct{}

func (noopResolver) Resolve(pc uint64) (gosym.Frame, bool) { return gosym.Frame{}, false }

func foldDrained(agg *fold.Aggregator, sess *loader.Session, counts []sampling.CountKey) error {
	var firstErr error
	for _, ck := range counts {
		userPCs, err := sess.ResolveStack(ck.Key.UserStackID)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		kernelPCs, err := sess.ResolveStack(ck.Key.KernelStackID)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		agg.Add(fold.Stack{Key: ck.Key, UserPCs: userPCs, KernelPCs: kernelPCs}, ck.Count)
	}
	return firstErr
}

func loadKernelSymbols(log zerolog.Logger) *gosym.KernelSymbols {
	f, err := os.Open("/proc/kallsyms")
	if err != nil {
		log.Debug().Err(err).Msg("kallsyms unavailable, kernel frames will render as [kernel]")
		return nil
	}
	defer f.Close()

	syms, err := gosym.ParseKallsyms(f)
	if err != nil {
		log.Debug().Err(err).Msg("failed to parse kallsyms")
		return nil
	}
	return syms
}

// WriteFolded writes res.Lines as the §6.3 folded-text format.
func WriteFolded(w io.Writer, res *Result) error {
	for _, line := range res.Lines {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return profilererr.Wrap(err, profilererr.KindOutputWriteFailed, "write folded output")
		}
	}
	return nil
}

// ObserveMetrics records res into reg, matching §5's "Observe records
// one completed session's outcome" contract.
func ObserveMetrics(reg *metrics.Registry, res *Result) {
	var total uint64
	for _, line := range res.Lines {
		sp := strings.LastIndexByte(line, ' ')
		if sp < 0 {
			continue
		}
		if n, err := strconv.ParseUint(line[sp+1:], 10, 64); err == nil {
			total += n
		}
	}
	reg.Observe(res.Stats, total, res.Duration)
}
