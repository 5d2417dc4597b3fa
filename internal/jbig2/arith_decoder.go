package jbig2

// qeEntry is one row of the MQ probability estimation table (T.88 Table E.1).
type qeEntry struct {
	qe        uint32
	nmps      uint8
	nlps      uint8
	switchMPS bool
}

var qeTable = [47]qeEntry{
	{0x5601, 1, 1, true}, {0x3401, 2, 6, false}, {0x1801, 3, 9, false},
	{0x0AC1, 4, 12, false}, {0x0521, 5, 29, false}, {0x0221, 38, 33, false},
	{0x5601, 7, 6, true}, {0x5401, 8, 14, false}, {0x4801, 9, 14, false},
	{0x3801, 10, 14, false}, {0x3001, 11, 17, false}, {0x2401, 12, 18, false},
	{0x1C01, 13, 20, false}, {0x1601, 29, 21, false}, {0x5601, 15, 14, true},
	{0x5401, 16, 14, false}, {0x5101, 17, 15, false}, {0x4801, 18, 16, false},
	{0x3801, 19, 17, false}, {0x3401, 20, 18, false}, {0x3001, 21, 19, false},
	{0x2801, 22, 19, false}, {0x2401, 23, 20, false}, {0x2201, 24, 21, false},
	{0x1C01, 25, 22, false}, {0x1801, 26, 23, false}, {0x1601, 27, 24, false},
	{0x1401, 28, 25, false}, {0x1201, 29, 26, false}, {0x1101, 30, 27, false},
	{0x0AC1, 31, 28, false}, {0x09C1, 32, 29, false}, {0x08A1, 33, 30, false},
	{0x0521, 34, 31, false}, {0x0441, 35, 32, false}, {0x02A1, 36, 33, false},
	{0x0221, 37, 34, false}, {0x0141, 38, 35, false}, {0x0111, 39, 36, false},
	{0x0085, 40, 37, false}, {0x0049, 41, 38, false}, {0x0025, 42, 39, false},
	{0x0015, 43, 40, false}, {0x0009, 44, 41, false}, {0x0005, 45, 42, false},
	{0x0001, 45, 43, false}, {0x5601, 46, 46, false},
}

// ContextStats is an adaptive context table. Each entry packs the
// probability state index in the upper bits and the MPS in bit 0.
type ContextStats struct {
	cx []uint8
}

// NewContextStats returns a zeroed table with size entries.
func NewContextStats(size int) *ContextStats {
	return &ContextStats{cx: make([]uint8, size)}
}

// Size returns the number of contexts.
func (s *ContextStats) Size() int {
	if s == nil {
		return 0
	}
	return len(s.cx)
}

// Reset returns every context to state 0 with MPS 0.
func (s *ContextStats) Reset() {
	clear(s.cx)
}

// Copy returns an independent copy of the table.
func (s *ContextStats) Copy() *ContextStats {
	if s == nil {
		return nil
	}
	return &ContextStats{cx: append([]uint8(nil), s.cx...)}
}

// State reports the probability index and MPS of context cx.
func (s *ContextStats) State(cx int) (index uint8, mps int) {
	v := s.cx[cx]
	return v >> 1, int(v & 1)
}

// IntContext names the integer arithmetic decoding procedures.
type IntContext int

const (
	IADH IntContext = iota
	IADW
	IAEX
	IAAI
	IADT
	IAIT
	IAFS
	IADS
	IARDX
	IARDY
	IARDW
	IARDH
	IARI
	numIntContexts
)

const intContextSize = 1 << 9

// GenericContextSize returns the context table size for a generic region
// template.
func GenericContextSize(template int) int {
	switch template {
	case 0:
		return 1 << 16
	case 1:
		return 1 << 13
	default:
		return 1 << 10
	}
}

// RefinementContextSize returns the context table size for a refinement
// template.
func RefinementContextSize(template int) int {
	if template == 0 {
		return 1 << 13
	}
	return 1 << 10
}

// ArithDecoder is the MQ decoder of T.88 Annex E. It reads bytes through a
// shared BitReader and owns the named context tables used by the region
// procedures of one decode invocation.
type ArithDecoder struct {
	r   *BitReader
	end int

	a  uint32
	c  uint32
	b  byte
	ct int

	// markerSeen is set once 0xFF followed by a byte above 0x8F has been
	// met. From then on the decoder feeds 1-bits without consuming input.
	markerSeen bool

	generic    *ContextStats
	refinement *ContextStats
	ints       [numIntContexts]*ContextStats
	iaid       *ContextStats
}

// NewArithDecoder binds a decoder to r. Call Start before decoding.
func NewArithDecoder(r *BitReader) *ArithDecoder {
	return &ArithDecoder{r: r}
}

// Start primes the registers from the reader's current byte. Bytes at or
// beyond end are never consumed; they read as 0xFF.
func (d *ArithDecoder) Start(end int) {
	if end > d.r.Len() || end < 0 {
		end = d.r.Len()
	}
	d.r.ConsumeRemainingBits()
	d.end = end
	d.markerSeen = false
	d.b = d.nextByte()
	d.c = uint32(d.b^0xFF) << 16
	d.byteIn()
	d.c <<= 7
	d.ct -= 7
	d.a = 0x8000
}

func (d *ArithDecoder) nextByte() byte {
	if d.r.Offset() >= d.end {
		return 0xFF
	}
	b, err := d.r.ReadByte()
	if err != nil {
		return 0xFF
	}
	return b
}

func (d *ArithDecoder) peekByte() byte {
	if d.r.Offset() >= d.end {
		return 0xFF
	}
	b, ok := d.r.PeekByte(0)
	if !ok {
		return 0xFF
	}
	return b
}

func (d *ArithDecoder) byteIn() {
	if d.b == 0xFF {
		b1 := d.peekByte()
		if b1 > 0x8F {
			d.markerSeen = true
			d.ct = 8
			return
		}
		d.b = d.nextByte()
		d.c += 0xFE00 - uint32(d.b)<<9
		d.ct = 7
		return
	}
	d.b = d.nextByte()
	d.c += 0xFF00 - uint32(d.b)<<8
	d.ct = 8
}

func (d *ArithDecoder) renormalize() {
	for {
		if d.ct == 0 {
			d.byteIn()
		}
		d.a <<= 1
		d.c <<= 1
		d.ct--
		if d.a&0x8000 != 0 {
			return
		}
	}
}

// DecodeBit decodes one binary decision in context cx of stats.
func (d *ArithDecoder) DecodeBit(cx int, stats *ContextStats) int {
	e := &stats.cx[cx]
	index := *e >> 1
	mps := int(*e & 1)
	q := qeTable[index]

	d.a -= q.qe
	var bit int
	if d.c>>16 < d.a {
		if d.a&0x8000 != 0 {
			return mps
		}
		// MPS exchange
		if d.a < q.qe {
			bit = 1 - mps
			if q.switchMPS {
				mps = 1 - mps
			}
			index = q.nlps
		} else {
			bit = mps
			index = q.nmps
		}
	} else {
		d.c -= d.a << 16
		// LPS exchange
		if d.a < q.qe {
			bit = mps
			index = q.nmps
		} else {
			bit = 1 - mps
			if q.switchMPS {
				mps = 1 - mps
			}
			index = q.nlps
		}
		d.a = q.qe
	}
	*e = index<<1 | uint8(mps)
	d.renormalize()
	return bit
}

// intClass describes one magnitude class of the integer procedure (T.88 A.2).
type intClass struct {
	bits   uint
	offset int64
}

var intClasses = [6]intClass{
	{2, 0}, {4, 4}, {6, 20}, {8, 84}, {12, 340}, {32, 4436},
}

// DecodeInt runs the integer decoding procedure over stats. The second
// result is false for the out-of-band value (sign set, magnitude 0).
func (d *ArithDecoder) DecodeInt(stats *ContextStats) (int64, bool) {
	prev := 1
	decode := func() int {
		bit := d.DecodeBit(prev, stats)
		if prev < 256 {
			prev = prev<<1 | bit
		} else {
			prev = (prev<<1|bit)&0x1FF | 0x100
		}
		return bit
	}

	sign := decode()
	class := 0
	for class < len(intClasses)-1 && decode() == 1 {
		class++
	}
	var v int64
	for i := uint(0); i < intClasses[class].bits; i++ {
		v = v<<1 | int64(decode())
	}
	v += intClasses[class].offset

	if sign == 1 {
		if v == 0 {
			return 0, false
		}
		v = -v
	}
	return v, true
}

// DecodeIAID decodes a codeLen-bit symbol identifier (T.88 A.3).
func (d *ArithDecoder) DecodeIAID(codeLen uint, stats *ContextStats) uint32 {
	prev := 1
	for i := uint(0); i < codeLen; i++ {
		prev = prev<<1 | d.DecodeBit(prev, stats)
	}
	return uint32(prev - 1<<codeLen)
}

// MarkerSeen reports whether the end-of-data marker has been reached.
func (d *ArithDecoder) MarkerSeen() bool { return d.markerSeen }

// ResetGenericStats installs the generic region table for template. A
// non-nil inherit is copied; otherwise the table is cleared, and
// reallocated when its size does not match the template.
func (d *ArithDecoder) ResetGenericStats(template int, inherit *ContextStats) error {
	d.generic = prepareStats(d.generic, GenericContextSize(template), inherit)
	if d.generic == nil {
		return decodeFailure("inherited generic context table has %d entries, template %d needs %d",
			inherit.Size(), template, GenericContextSize(template))
	}
	return nil
}

// ResetRefinementStats is the refinement counterpart of ResetGenericStats.
func (d *ArithDecoder) ResetRefinementStats(template int, inherit *ContextStats) error {
	d.refinement = prepareStats(d.refinement, RefinementContextSize(template), inherit)
	if d.refinement == nil {
		return decodeFailure("inherited refinement context table has %d entries, template %d needs %d",
			inherit.Size(), template, RefinementContextSize(template))
	}
	return nil
}

func prepareStats(cur *ContextStats, size int, inherit *ContextStats) *ContextStats {
	if inherit != nil {
		if inherit.Size() != size {
			return nil
		}
		return inherit.Copy()
	}
	if cur.Size() != size {
		return NewContextStats(size)
	}
	cur.Reset()
	return cur
}

// ResetIntStats clears the thirteen integer tables and sizes the IAID
// table for symCodeLen.
func (d *ArithDecoder) ResetIntStats(symCodeLen uint) {
	for i := range d.ints {
		if d.ints[i] == nil {
			d.ints[i] = NewContextStats(intContextSize)
		} else {
			d.ints[i].Reset()
		}
	}
	size := 1 << (symCodeLen + 1)
	if d.iaid.Size() != size {
		d.iaid = NewContextStats(size)
	} else {
		d.iaid.Reset()
	}
}

// GenericStats returns the current generic region table.
func (d *ArithDecoder) GenericStats() *ContextStats { return d.generic }

// RefinementStats returns the current refinement table.
func (d *ArithDecoder) RefinementStats() *ContextStats { return d.refinement }

// IntStats returns the table of one integer procedure.
func (d *ArithDecoder) IntStats(which IntContext) *ContextStats { return d.ints[which] }

// IAIDStats returns the symbol identifier table.
func (d *ArithDecoder) IAIDStats() *ContextStats { return d.iaid }
