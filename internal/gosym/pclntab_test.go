package gosym

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildGo118Table hand-assembles a minimal Go 1.18+ gopclntab containing
// exactly one function, placed at the text_start + raw-offset the v0.1.0
// regression (§9) would double-subtract. It mirrors the layout Parse
// expects: header, functab index + func-info record, funcnametab.
func buildGo118Table(t *testing.T, textStart uint64, rawOffset uint32, name string) []byte {
	t.Helper()

	const headerSize = 72
	const functabOff = headerSize
	indexSize := 8 // one (pcOff, funcOff) pair
	recordSize := 4 + 32
	funcnameOff := functabOff + indexSize + recordSize

	nameBytes := append([]byte(name), 0)
	total := funcnameOff + len(nameBytes)
	data := make([]byte, total)

	binary.LittleEndian.PutUint32(data[0:4], 0xfffffff0)
	data[6] = 1 // quantum
	data[7] = 8 // ptrSize
	binary.LittleEndian.PutUint64(data[8:16], 1)   // numFuncs
	binary.LittleEndian.PutUint64(data[16:24], 0)  // nfiles, unused
	binary.LittleEndian.PutUint64(data[24:32], textStart)
	binary.LittleEndian.PutUint64(data[32:40], uint64(funcnameOff))
	binary.LittleEndian.PutUint64(data[40:48], uint64(total)) // cuOff (empty)
	binary.LittleEndian.PutUint64(data[48:56], uint64(total)) // filetabOff (empty)
	binary.LittleEndian.PutUint64(data[56:64], uint64(total)) // pctabOff (empty)
	binary.LittleEndian.PutUint64(data[64:72], uint64(functabOff))

	// functab index: one entry.
	binary.LittleEndian.PutUint32(data[functabOff:functabOff+4], rawOffset)
	binary.LittleEndian.PutUint32(data[functabOff+4:functabOff+8], uint32(indexSize))

	// func-info record, at functab offset `indexSize`.
	rec := functabOff + indexSize
	binary.LittleEndian.PutUint32(data[rec:rec+4], rawOffset) // entry pc dup
	binary.LittleEndian.PutUint32(data[rec+4:rec+8], 0)        // nameOff
	binary.LittleEndian.PutUint32(data[rec+8:rec+12], 0)       // argsSize
	binary.LittleEndian.PutUint32(data[rec+12:rec+16], 0)      // frameSize
	binary.LittleEndian.PutUint32(data[rec+16:rec+20], 0)      // pcspOff
	binary.LittleEndian.PutUint32(data[rec+20:rec+24], 0xFFFFFFFF) // pcfileOff = -1
	binary.LittleEndian.PutUint32(data[rec+24:rec+28], 0xFFFFFFFF) // pclnOff = -1
	binary.LittleEndian.PutUint32(data[rec+28:rec+32], 0)      // nfuncdata
	binary.LittleEndian.PutUint32(data[rec+32:rec+36], 0)      // npcdata

	copy(data[funcnameOff:], nameBytes)

	return data
}

// TestGo118AbsolutePCRegression guards against the v0.1.0 bug named in
// §9: a function recorded at raw offset 0x2050 against text_start
// 0x401000 must resolve the PC 0x403050 to that function, not to
// "unknown" and not to some off-by-one neighbor reached by subtracting
// text_start a second time.
func TestGo118AbsolutePCRegression(t *testing.T) {
	data := buildGo118Table(t, 0x401000, 0x2050, "main.fib")

	table, err := Parse(data, 0)
	require.NoError(t, err)
	require.Equal(t, Version1_18, table.Version())
	require.Equal(t, uint64(0x401000), table.TextStart())

	frame, ok := table.Lookup(0x403050)
	require.True(t, ok)
	require.Equal(t, "main.fib", frame.Name)

	// A PC before the function's entry point must miss.
	_, ok = table.Lookup(0x403049)
	require.False(t, ok)
}

func TestLookupIdempotent(t *testing.T) {
	data := buildGo118Table(t, 0x401000, 0x2050, "main.fib")
	table, err := Parse(data, 0)
	require.NoError(t, err)

	first, ok1 := table.Lookup(0x403050)
	second, ok2 := table.Lookup(0x403050)
	require.True(t, ok1)
	require.True(t, ok2)
	require.Equal(t, first, second)
}

func TestParseRejectsUnknownMagic(t *testing.T) {
	data := make([]byte, 16)
	binary.LittleEndian.PutUint32(data[0:4], 0xdeadbeef)
	_, err := Parse(data, 0)
	require.Error(t, err)
}
