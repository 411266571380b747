package gosym

// pcvalIterator decodes a pctab-style variable-length stream: an
// alternating sequence of a zigzag-encoded value delta and an unsigned
// pc delta (scaled by the table's quantum). The stream terminates on a
// raw (pre-zigzag) value-delta of exactly zero, except on the very first
// entry, where a zero delta is a legitimate encoding of the function's
// starting value — mirroring the reference's step(..., first bool) check
// (uvdelta == 0 && !first). valueAt stops advancing once pc falls inside
// the most recently decoded entry's range.
type pcvalIterator struct {
	data    []byte
	pos     int
	quantum uint8
	first   bool

	val     int32
	pcStart uint64
	pcEnd   uint64
	ok      bool
}

// newPcval builds an iterator over data starting at startPC and primes
// it with one decoded entry, mirroring Pcval::new's initial step() call.
func newPcval(data []byte, startPC uint64, quantum uint8) *pcvalIterator {
	// val starts at -1: the first entry's zigzag delta is always encoded
	// relative to -1, not 0, matching the Go runtime's pcvalue and the
	// reference's Pcval::new. Starting at 0 silently shifts every decoded
	// line number and file index by one.
	p := &pcvalIterator{data: data, quantum: quantum, pcEnd: startPC, first: true, val: -1}
	p.ok = p.step()
	return p
}

// step decodes the next (value-delta, pc-delta) pair, advancing pcEnd and
// accumulating val. It returns false once the stream is exhausted or its
// terminator (a raw value-delta of zero past the first entry) is hit.
func (p *pcvalIterator) step() bool {
	if p.pos >= len(p.data) {
		return false
	}

	deltaVal, n := readVarint(p.data[p.pos:])
	if n == 0 {
		return false
	}
	if deltaVal == 0 && !p.first {
		return false
	}
	p.pos += n
	p.first = false

	var d int32
	if deltaVal&1 != 0 {
		d = int32(^(deltaVal >> 1))
	} else {
		d = int32(deltaVal >> 1)
	}
	p.val += d

	deltaPC, n2 := readVarint(p.data[p.pos:])
	if n2 == 0 {
		return false
	}
	p.pos += n2

	p.pcStart = p.pcEnd
	p.pcEnd += deltaPC * uint64(p.quantum)
	return true
}

// valueAt returns the decoded value covering pc, advancing through the
// stream as needed. It mirrors the Rust map_pcval helper: step forward
// while pc falls at or past the current entry's end.
func (p *pcvalIterator) valueAt(pc uint64) (int32, bool) {
	if !p.ok {
		return 0, false
	}
	for pc >= p.pcEnd {
		if !p.step() {
			return 0, false
		}
	}
	return p.val, true
}

// readVarint decodes an unsigned LEB128 varint, returning the value and
// the number of bytes consumed (0 on a truncated/invalid encoding).
func readVarint(data []byte) (uint64, int) {
	var v uint64
	var shift uint
	for i, b := range data {
		if shift >= 64 {
			return 0, 0
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, i + 1
		}
		shift += 7
	}
	return 0, 0
}
