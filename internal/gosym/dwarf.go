package gosym

import (
	"debug/dwarf"
	"debug/elf"

	"github.com/go-delve/delve/pkg/dwarf/reader"
)

// dwarfSupplement fills in source lines gopclntab itself could not
// decode (functions inlined at -O0 edges, or binaries where the pctab
// line stream was truncated) by walking DWARF compile units the way the
// teacher's seekDwarfEntry does: find the subprogram whose low/high PC
// range contains the PC in question, seek its compile unit's line table
// to that PC. It is never authoritative — a
// binary built with -trimpath or stripped of .debug_info simply has no
// supplement, and gopclntab's own answer stands uncontested.
type dwarfSupplement struct {
	data *dwarf.Data
}

func newDwarfSupplement(ef *elf.File) (*dwarfSupplement, bool) {
	if ef == nil {
		return nil, false
	}
	d, err := ef.DWARF()
	if err != nil {
		return nil, false
	}
	return &dwarfSupplement{data: d}, true
}

// lineFor looks up the file:line active at filePC by scanning compile
// units for the subprogram entry whose low/high PC range contains it,
// then seeking that unit's line table. This is O(subprograms) per call,
// matching the teacher's linear entry.Next() walk; it is only reached
// for PCs gopclntab's own pcfile/pcln streams left without a line, so it
// runs rarely relative to total resolve volume.
func (d *dwarfSupplement) lineFor(filePC uint64) (file string, line int, ok bool) {
	dr := reader.New(d.data)

	var lastCompileUnit *dwarf.Entry
	for {
		entry, err := dr.Next()
		if err != nil || entry == nil {
			return "", 0, false
		}
		if entry.Tag == dwarf.TagCompileUnit {
			pinned := *entry
			lastCompileUnit = &pinned
			continue
		}
		if entry.Tag != dwarf.TagSubprogram {
			continue
		}

		low, lowOK := entry.Val(dwarf.AttrLowpc).(uint64)
		if !lowOK {
			continue
		}
		high, hasHigh := highPC(entry, low)
		if !hasHigh || filePC < low || filePC >= high {
			continue
		}

		lr, err := d.data.LineReader(lastCompileUnit)
		if err != nil {
			return "", 0, false
		}
		var le dwarf.LineEntry
		if err := lr.SeekPC(filePC, &le); err != nil {
			return "", 0, false
		}
		return le.File.Name, le.Line, true
	}
}

// highPC resolves DWARF's two encodings of a subprogram's upper bound:
// either an absolute address (AttrHighpc as uint64) or, per DWARF4+, an
// offset from low added here to make it absolute.
func highPC(entry *dwarf.Entry, low uint64) (uint64, bool) {
	v := entry.Val(dwarf.AttrHighpc)
	switch h := v.(type) {
	case uint64:
		if h > low {
			return h, true
		}
		return low + h, true
	case int64:
		return low + uint64(h), true
	default:
		return 0, false
	}
}
