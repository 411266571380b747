package gosym

import (
	"debug/elf"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cropsey/goflame/internal/binutil"
)

// cacheCapacity bounds the resolver's PC->frame memo. 4096 entries covers
// the hot set of any real workload's stack traces many times over without
// letting a pathological profile (e.g. heavy use of generics producing a
// huge number of distinct instantiated PCs) grow the cache unbounded.
const cacheCapacity = 4096

// Resolver symbolizes user-space PCs for one target process. gopclntab is
// authoritative; when the inspector found gopclntab only by its magic
// scan from .go.buildinfo and those bytes do not parse, it degrades to
// nearest-symbol-below lookups over the ELF symbol table with no line info.
// An optional DWARF reader supplements line numbers gopclntab itself
// could not decode, for binaries built without -trimpath/-s/-w.
type Resolver struct {
	table   *Table
	base    uint64
	cache   *lru.Cache[uint64, Frame]
	elfSyms []elf.Symbol // fallback only, sorted by Value
	dwarf   *dwarfSupplement
}

// NewResolver builds a Resolver from an already-opened Inspector. For a
// position-independent (ET_DYN) binary the resolver keeps the inspector's
// ModuleBase() and subtracts it from each sampled runtime PC before
// lookup. For a fixed-address (ET_EXEC) binary, whose gopclntab PCs
// already are runtime addresses, the base is zero and the conversion is a
// no-op. ModuleBase() is read from the ELF program headers, not from the
// process's runtime mappings, so the load bias of a PIE mapped at a
// randomized address is not applied.
func NewResolver(insp *binutil.Inspector) (*Resolver, error) {
	textStart, err := sectionAddr(insp.ELF(), ".text")
	if err != nil {
		return nil, err
	}

	table, err := Parse(insp.Gopclntab(), textStart)
	if err != nil && !insp.UsedBuildInfoFallback() {
		return nil, err
	}

	base := insp.ModuleBase()
	if insp.ELF().Type == elf.ET_EXEC {
		base = 0
	}
	r := &Resolver{table: table, base: base}

	cache, err := lru.New[uint64, Frame](cacheCapacity)
	if err != nil {
		return nil, err
	}
	r.cache = cache

	if table == nil || err != nil {
		syms, symErr := insp.Symbols()
		if symErr == nil {
			r.elfSyms = syms
		}
	}

	if ds, ok := newDwarfSupplement(insp.ELF()); ok {
		r.dwarf = ds
	}

	return r, nil
}

func sectionAddr(ef *elf.File, name string) (uint64, error) {
	sec := ef.Section(name)
	if sec == nil {
		return 0, nil
	}
	return sec.Addr, nil
}

// Resolve symbolizes a single absolute runtime PC. The returned bool is
// false only when every available strategy failed; callers render
// FormatUnknown(pc) in that case per the folded-stack format.
func (r *Resolver) Resolve(runtimePC uint64) (Frame, bool) {
	if cached, ok := r.cache.Get(runtimePC); ok {
		return cached, true
	}

	filePC := runtimePC
	if r.base != 0 && runtimePC >= r.base {
		filePC = runtimePC - r.base
	}

	frame, ok := r.lookupUncached(filePC)
	if ok && r.dwarf != nil && frame.Line == 0 {
		if file, line, ok2 := r.dwarf.lineFor(filePC); ok2 {
			frame.File, frame.Line = file, line
		}
	}
	if ok {
		r.cache.Add(runtimePC, frame)
	}
	return frame, ok
}

func (r *Resolver) lookupUncached(filePC uint64) (Frame, bool) {
	if r.table != nil {
		if frame, ok := r.table.Lookup(filePC); ok {
			return frame, true
		}
	}
	return r.lookupElfSymbol(filePC)
}

// lookupElfSymbol is the last-resort path: nearest function symbol at or
// below filePC, with no line information. It only engages when gopclntab
// itself was unusable, never as a gopclntab override.
func (r *Resolver) lookupElfSymbol(filePC uint64) (Frame, bool) {
	if len(r.elfSyms) == 0 {
		return Frame{}, false
	}
	idx := sort.Search(len(r.elfSyms), func(i int) bool {
		return r.elfSyms[i].Value > filePC
	}) - 1
	if idx < 0 {
		return Frame{}, false
	}
	sym := r.elfSyms[idx]
	if sym.Value+sym.Size <= filePC && sym.Size != 0 {
		return Frame{}, false
	}
	if sym.Name == "" {
		return Frame{}, false
	}
	return Frame{Name: sym.Name}, true
}
