package gosym

import (
	"fmt"
	"sort"
)

// Frame is a symbolized program counter: a function name and, when the
// line-number substream decodes successfully, its source location.
type Frame struct {
	Name string
	File string
	Line int
}

// Lookup resolves an absolute runtime PC to its enclosing function and,
// when possible, the source line active at that PC. It performs a binary
// search over the sorted function table — O(log numFuncs), no linear
// scans — followed by two pctab walks (file, then line).
//
// pc must already be an absolute address. Lookup never subtracts
// text_start or any module base; callers are responsible for converting
// a raw sample PC (which may carry a module's load bias) to the absolute
// address space this Table was parsed against before calling Lookup.
func (t *Table) Lookup(pc uint64) (Frame, bool) {
	if len(t.entries) == 0 {
		return Frame{}, false
	}

	idx := sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].pcStart > pc
	}) - 1
	if idx < 0 {
		return Frame{}, false
	}

	entry := t.entries[idx]
	entryPC, fi, ok := t.funcInfoAt(entry.funcOffset)
	if !ok {
		return Frame{}, false
	}
	if entryPC != entry.pcStart {
		// The functab and the func-info record disagree about this
		// function's entry point; the table is corrupt or we've walked
		// into padding. Treat as unresolved rather than guess.
		return Frame{}, false
	}

	name := readString(t.funcnametab, int(fi.nameOff))
	if name == "" {
		return Frame{}, false
	}

	frame := Frame{Name: name}

	if fileIdx, ok := t.pcvalAt(fi.pcfileOff, entryPC, pc); ok {
		if file, ok := t.fileAt(fileIdx, fi.npcdata); ok {
			frame.File = file
		}
	}
	if line, ok := t.pcvalAt(fi.pclnOff, entryPC, pc); ok {
		frame.Line = int(line)
	}

	return frame, true
}

// pcvalAt decodes the pctab-style stream at the given offset into pctab,
// covering the function starting at entryPC, and returns the value
// active at pc.
func (t *Table) pcvalAt(streamOff int32, entryPC, pc uint64) (int32, bool) {
	if streamOff < 0 || int(streamOff) >= len(t.pctab) {
		return 0, false
	}
	it := newPcval(t.pctab[streamOff:], entryPC, t.quantum)
	return it.valueAt(pc)
}

// fileAt resolves a file-table index to a path. For 1.16+ binaries the
// index decoded off the pcfile stream is local to the function and must
// first be shifted by the function's own CU offset (funcInfo.npcdata) to
// become a global index into cutab; cutab then stores an offset into
// filetab, where the actual path string lives. Pre-1.16 the index
// addresses filetab directly as a string table. Both forms are ported
// from the Rust reference's get_file_name (cutab/filetab indirection,
// file_index += func.npc_data).
func (t *Table) fileAt(index, cuBase int32) (string, bool) {
	if index < 0 {
		return "", false
	}
	if t.version == Version1_2 {
		off, ok := readUint32At(t.filetab, int(index)*4)
		if !ok {
			return "", false
		}
		return readString(t.filetab, int(off)), true
	}

	fileOff, ok := readUint32At(t.cutab, int(index+cuBase)*4)
	if !ok || fileOff == 0xffffffff {
		return "", false
	}
	return readString(t.filetab, int(fileOff)), true
}

// FuncName returns just the function name for pc. It runs the full
// Lookup, including the file and line walks, and keeps only the name.
func (t *Table) FuncName(pc uint64) (string, bool) {
	f, ok := t.Lookup(pc)
	if !ok {
		return "", false
	}
	return f.Name, true
}

// FormatUnknown renders the synthetic placeholder for a PC this table
// (and any fallback) could not resolve.
func FormatUnknown(pc uint64) string {
	return fmt.Sprintf("[unknown:0x%x]", pc)
}
