// Package fold assembles the folded-stack multiset of §3.6/§4.G from
// drained sample keys, resolved user frames, and kernel symbols. It is
// new code — the teacher never aggregated stacks, only printed each one
// — but follows the teacher's plain-text, no-frills output style
// (profiler/main.go's fmt.Println loop) rather than introducing a
// templating layer for what is fundamentally line-oriented text.
package fold

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cropsey/goflame/internal/gosym"
	"github.com/cropsey/goflame/internal/sampling"
)

// semicolonEscape is substituted for ';' inside frame names so the
// folded format's own field separator never appears inside a field, per
// §6.3.
const semicolonEscape = ";"

// Stack is one resolved sample: its key, plus the raw user and kernel
// PCs captured for it (already in bottom-to-top order as read from the
// stack-trace map).
type Stack struct {
	Key       sampling.Key
	UserPCs   []uint64
	KernelPCs []uint64
}

// Resolver is the subset of gosym.Resolver's surface the folder needs,
// named so tests can substitute a fake without depending on a live ELF
// inspector.
type Resolver interface {
	Resolve(pc uint64) (gosym.Frame, bool)
}

// Aggregator accumulates folded-stack lines keyed by their frame tuple,
// summing counts for repeated tuples exactly as CountsMap already does
// in-kernel — this second pass exists because distinct SampleKeys (e.g.
// differing only by tid) can still fold to the same printable stack.
type Aggregator struct {
	kernelSyms *gosym.KernelSymbols
	resolver   Resolver
	totals     map[string]uint64
}

// New builds an Aggregator. kernelSyms may be nil (kallsyms unavailable
// or unreadable); kernel frames then render as the bare "[kernel]"
// placeholder per §4.G.
func New(resolver Resolver, kernelSyms *gosym.KernelSymbols) *Aggregator {
	return &Aggregator{resolver: resolver, kernelSyms: kernelSyms, totals: make(map[string]uint64)}
}

// Add folds one stack into the running totals.
func (a *Aggregator) Add(s Stack, count uint64) {
	frames := make([]string, 0, len(s.KernelPCs)+len(s.UserPCs)+1)
	frames = append(frames, processName(s.Key))
	frames = append(frames, a.kernelFrames(s.KernelPCs)...)
	frames = append(frames, a.userFrames(s.UserPCs)...)
	frames = coalesceDuplicates(frames)

	if s.Key.SampleType == sampling.SampleTypeOffCPU && len(frames) > 0 {
		frames[len(frames)-1] = frames[len(frames)-1] + "_[o]"
	}

	line := strings.Join(frames, ";")
	a.totals[line] += count
}

func processName(key sampling.Key) string {
	return key.CommString()
}

// kernelFrames resolves kernel PCs bottom-to-top, each suffixed _[k].
// Frames are rendered via kallsyms when available, else the bare
// "[kernel]" placeholder, matching §4.G's fallback rule.
func (a *Aggregator) kernelFrames(pcs []uint64) []string {
	pcs = truncateTopOff(pcs)
	out := make([]string, 0, len(pcs))
	for _, pc := range pcs {
		name := "[kernel]"
		if a.kernelSyms != nil {
			if n, ok := a.kernelSyms.Resolve(pc); ok {
				name = n
			}
		}
		out = append(out, escapeSemicolons(name)+"_[k]")
	}
	return out
}

func (a *Aggregator) userFrames(pcs []uint64) []string {
	pcs = truncateTopOff(pcs)
	out := make([]string, 0, len(pcs))
	for _, pc := range pcs {
		frame, ok := a.resolver.Resolve(pc)
		if !ok {
			out = append(out, gosym.FormatUnknown(pc))
			continue
		}
		name := escapeSemicolons(frame.Name)
		if frame.Line != 0 {
			name = fmt.Sprintf("%s:%d", name, frame.Line)
		}
		out = append(out, name)
	}
	return out
}

// truncateTopOff enforces the §9 open-question decision: when a
// captured stack exceeds MaxStackDepth, drop frames farthest from the
// root (the tail of a bottom-to-top slice) rather than the frames
// closest to it.
func truncateTopOff(pcs []uint64) []uint64 {
	if len(pcs) <= sampling.MaxStackDepth {
		return pcs
	}
	return pcs[:sampling.MaxStackDepth]
}

func escapeSemicolons(name string) string {
	if !strings.Contains(name, ";") {
		return name
	}
	return strings.ReplaceAll(name, ";", semicolonEscape)
}

// coalesceDuplicates merges consecutive identical frame strings into
// one, per §4.G's "coalesce only if both name and line are identical"
// rule — since the folded line already encodes name+line as one string,
// plain adjacency comparison implements that rule directly.
func coalesceDuplicates(frames []string) []string {
	if len(frames) == 0 {
		return frames
	}
	out := make([]string, 0, len(frames))
	out = append(out, frames[0])
	for _, f := range frames[1:] {
		if f == out[len(out)-1] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Lines returns the accumulated folded-stack lines in a stable,
// lexicographically sorted order, so repeated renders of the same
// aggregation are byte-identical regardless of map iteration order.
func (a *Aggregator) Lines() []string {
	lines := make([]string, 0, len(a.totals))
	for stack, count := range a.totals {
		lines = append(lines, fmt.Sprintf("%s %d", stack, count))
	}
	sort.Strings(lines)
	return lines
}

// WriteTo renders the accumulated lines as the folded-stack text format
// of §6.3: one stack per line, final newline required.
func (a *Aggregator) WriteTo(w interface{ Write([]byte) (int, error) }) (int64, error) {
	var n int64
	for _, line := range a.Lines() {
		written, err := w.Write([]byte(line + "\n"))
		n += int64(written)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
