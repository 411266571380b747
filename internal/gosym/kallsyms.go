package gosym

import (
	"bufio"
	"io"
	"sort"
	"strconv"
	"strings"
)

// kallsymEntry is one parsed line of /proc/kallsyms: an address and the
// symbol name active at it, sorted by address for binary search.
type kallsymEntry struct {
	addr uint64
	name string
}

// KernelSymbols resolves kernel-space PCs (captured by the off-CPU and
// on-CPU probes' KernelStackID) against the running kernel's exported
// symbol table. It is built once per session and is immutable after
// that — unlike user-space resolution, there is exactly one kernel
// address space to resolve against, so no per-process cache is needed.
type KernelSymbols struct {
	entries []kallsymEntry
}

// ParseKallsyms reads /proc/kallsyms (or an equivalent reader, for
// tests) into a sorted lookup table. Lines for symbols with no
// associated address ('U' undefined, or address 0 when running without
// CAP_SYSLOG, which the kernel reports as all-zero addresses) are
// skipped, since they cannot participate in nearest-below lookup.
func ParseKallsyms(r io.Reader) (*KernelSymbols, error) {
	var entries []kallsymEntry
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 {
			continue
		}
		addr, err := strconv.ParseUint(fields[0], 16, 64)
		if err != nil || addr == 0 {
			continue
		}
		entries = append(entries, kallsymEntry{addr: addr, name: fields[2]})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].addr < entries[j].addr })
	return &KernelSymbols{entries: entries}, nil
}

// Resolve returns the nearest symbol at or below pc, matching the
// kernel's own convention for reporting addresses inside a function
// body rather than only at its entry point.
func (k *KernelSymbols) Resolve(pc uint64) (string, bool) {
	if len(k.entries) == 0 {
		return "", false
	}
	idx := sort.Search(len(k.entries), func(i int) bool {
		return k.entries[i].addr > pc
	}) - 1
	if idx < 0 {
		return "", false
	}
	return k.entries[idx].name, true
}
