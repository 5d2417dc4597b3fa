package jbig2

import "encoding/binary"

// mqEncoder is the MQ encoder of T.88 Annex E, used to build arithmetic
// coded fixtures. Context tables use the same packing as ContextStats.
type mqEncoder struct {
	a   uint32
	c   uint32
	ct  int
	buf []byte
}

func newMQEncoder() *mqEncoder {
	return &mqEncoder{a: 0x8000, ct: 12}
}

func (e *mqEncoder) encode(stats []uint8, cx, bit int) {
	s := &stats[cx]
	index, mps := *s>>1, int(*s&1)
	q := qeTable[index]

	e.a -= q.qe
	if bit == mps {
		if e.a&0x8000 != 0 {
			e.c += q.qe
			return
		}
		if e.a < q.qe {
			e.a = q.qe
		} else {
			e.c += q.qe
		}
		index = q.nmps
	} else {
		if e.a < q.qe {
			e.c += q.qe
		} else {
			e.a = q.qe
		}
		if q.switchMPS {
			mps = 1 - mps
		}
		index = q.nlps
	}
	*s = index<<1 | uint8(mps)
	for e.a&0x8000 == 0 {
		e.a <<= 1
		e.c <<= 1
		e.ct--
		if e.ct == 0 {
			e.byteOut()
		}
	}
}

func (e *mqEncoder) byteOut() {
	if len(e.buf) == 0 {
		e.buf = append(e.buf, byte(e.c>>19))
		e.c &= 0x7ffff
		e.ct = 8
		return
	}
	last := &e.buf[len(e.buf)-1]
	switch {
	case *last == 0xff:
		e.buf = append(e.buf, byte(e.c>>20))
		e.c &= 0xfffff
		e.ct = 7
	case e.c >= 0x8000000:
		*last++
		if *last == 0xff {
			e.c &= 0x7ffffff
			e.buf = append(e.buf, byte(e.c>>20))
			e.c &= 0xfffff
			e.ct = 7
			return
		}
		e.buf = append(e.buf, byte(e.c>>19))
		e.c &= 0x7ffff
		e.ct = 8
	default:
		e.buf = append(e.buf, byte(e.c>>19))
		e.c &= 0x7ffff
		e.ct = 8
	}
}

// flush terminates the code stream and appends the 0xFF 0xAC end marker.
func (e *mqEncoder) flush() []byte {
	temp := e.c + e.a
	e.c |= 0xffff
	if e.c >= temp {
		e.c -= 0x8000
	}
	e.c <<= uint(e.ct)
	e.byteOut()
	e.c <<= uint(e.ct)
	e.byteOut()
	out := e.buf
	if len(out) > 0 && out[len(out)-1] == 0xff {
		out = out[:len(out)-1]
	}
	return append(out, 0xff, 0xac)
}

// encodeInt runs the integer encoding procedure of T.88 A.2.
func (e *mqEncoder) encodeInt(stats []uint8, v int64) {
	sign := 0
	if v < 0 {
		sign, v = 1, -v
	}
	class := 0
	for class < len(intClasses)-1 && v >= intClasses[class+1].offset {
		class++
	}
	e.encodeIntBits(stats, sign, class, v-intClasses[class].offset)
}

// encodeOOB codes the out-of-band value.
func (e *mqEncoder) encodeOOB(stats []uint8) {
	e.encodeIntBits(stats, 1, 0, 0)
}

func (e *mqEncoder) encodeIntBits(stats []uint8, sign, class int, v int64) {
	prev := 1
	put := func(bit int) {
		e.encode(stats, prev, bit)
		if prev < 256 {
			prev = prev<<1 | bit
		} else {
			prev = (prev<<1|bit)&0x1ff | 0x100
		}
	}
	put(sign)
	for i := 0; i < class; i++ {
		put(1)
	}
	if class < len(intClasses)-1 {
		put(0)
	}
	for i := int(intClasses[class].bits) - 1; i >= 0; i-- {
		put(int(v>>uint(i)) & 1)
	}
}

func (e *mqEncoder) encodeIAID(stats []uint8, codeLen uint, id uint32) {
	prev := 1
	for i := int(codeLen) - 1; i >= 0; i-- {
		bit := int(id>>uint(i)) & 1
		e.encode(stats, prev, bit)
		prev = prev<<1 | bit
	}
}

// intEncoders holds one table per integer procedure, mirroring
// ArithDecoder.ResetIntStats.
type intEncoders struct {
	e    *mqEncoder
	ints [numIntContexts][]uint8
	iaid []uint8
}

func newIntEncoders(e *mqEncoder, symCodeLen uint) *intEncoders {
	ie := &intEncoders{e: e, iaid: make([]uint8, 1<<(symCodeLen+1))}
	for i := range ie.ints {
		ie.ints[i] = make([]uint8, intContextSize)
	}
	return ie
}

func (ie *intEncoders) put(cx IntContext, v int64) { ie.e.encodeInt(ie.ints[cx], v) }

func (ie *intEncoders) oob(cx IntContext) { ie.e.encodeOOB(ie.ints[cx]) }

// genericContext computes the generic region context of pixel (x, y)
// pixel by pixel, straight from the template drawings of T.88 6.2.5.3.
func genericContext(bm *Bitmap, template int, at []ATPixel, x, y int) int {
	px := func(dx, dy int) int { return bm.Get(x+dx, y+dy) }
	var bits [][2]int
	switch template {
	case 0:
		bits = [][2]int{
			{-1, 0}, {-2, 0}, {-3, 0}, {-4, 0}, {at[0].X, at[0].Y},
			{2, -1}, {1, -1}, {0, -1}, {-1, -1}, {-2, -1},
			{at[1].X, at[1].Y}, {at[2].X, at[2].Y},
			{1, -2}, {0, -2}, {-1, -2}, {at[3].X, at[3].Y},
		}
	case 1:
		bits = [][2]int{
			{-1, 0}, {-2, 0}, {-3, 0}, {at[0].X, at[0].Y},
			{2, -1}, {1, -1}, {0, -1}, {-1, -1}, {-2, -1},
			{2, -2}, {1, -2}, {0, -2}, {-1, -2},
		}
	case 2:
		bits = [][2]int{
			{-1, 0}, {-2, 0}, {at[0].X, at[0].Y},
			{1, -1}, {0, -1}, {-1, -1}, {-2, -1},
			{1, -2}, {0, -2}, {-1, -2},
		}
	default:
		bits = [][2]int{
			{-1, 0}, {-2, 0}, {-3, 0}, {-4, 0}, {at[0].X, at[0].Y},
			{1, -1}, {0, -1}, {-1, -1}, {-2, -1}, {-3, -1},
		}
	}
	cx := 0
	for i, b := range bits {
		cx |= px(b[0], b[1]) << i
	}
	return cx
}

// encodeGeneric arithmetic codes bm as a generic region, continuing in
// stats.
func (e *mqEncoder) encodeGeneric(stats []uint8, bm *Bitmap, template int, at []ATPixel, tpgdon bool) {
	if len(at) == 0 {
		at = DefaultGenericAT(template)
	}
	ltp := 0
	for y := 0; y < bm.Height(); y++ {
		if tpgdon {
			same := 1
			for x := 0; x < bm.Width(); x++ {
				if bm.Get(x, y) != bm.Get(x, y-1) {
					same = 0
					break
				}
			}
			e.encode(stats, genericTemplates[template].sltp, same^ltp)
			ltp = same
			if ltp == 1 {
				continue
			}
		}
		for x := 0; x < bm.Width(); x++ {
			e.encode(stats, genericContext(bm, template, at, x, y), bm.Get(x, y))
		}
	}
}

// bitmapFromRows builds a bitmap from strings of '#' (black) and '.'.
func bitmapFromRows(rows ...string) *Bitmap {
	w := 0
	if len(rows) > 0 {
		w = len(rows[0])
	}
	bm, err := NewBitmap(w, len(rows))
	if err != nil {
		panic(err)
	}
	for y, row := range rows {
		for x, c := range row {
			if c == '#' {
				bm.Set(x, y, 1)
			}
		}
	}
	return bm
}

// streamBuilder assembles segment headers and payloads.
type streamBuilder struct {
	buf []byte
}

func (b *streamBuilder) u32(v uint32) { b.buf = binary.BigEndian.AppendUint32(b.buf, v) }

func (b *streamBuilder) u16(v uint16) { b.buf = binary.BigEndian.AppendUint16(b.buf, v) }

// segment appends a header in the short forms (segment numbers below 256,
// fewer than five references) followed by data.
func (b *streamBuilder) segment(number uint32, t SegmentType, refs []uint32, page uint32, data []byte) {
	b.u32(number)
	b.buf = append(b.buf, byte(t), byte(len(refs))<<5)
	for _, r := range refs {
		b.buf = append(b.buf, byte(r))
	}
	b.buf = append(b.buf, byte(page))
	b.u32(uint32(len(data)))
	b.buf = append(b.buf, data...)
}

func pageInfoData(width, height uint32, flags uint8) []byte {
	var b streamBuilder
	b.u32(width)
	b.u32(height)
	b.u32(0)
	b.u32(0)
	b.buf = append(b.buf, flags)
	b.u16(0)
	return b.buf
}

func regionInfoData(width, height, x, y uint32, flags uint8) []byte {
	var b streamBuilder
	b.u32(width)
	b.u32(height)
	b.u32(x)
	b.u32(y)
	b.buf = append(b.buf, flags)
	return b.buf
}

func atData(at []ATPixel) []byte {
	var out []byte
	for _, p := range at {
		out = append(out, byte(int8(p.X)), byte(int8(p.Y)))
	}
	return out
}

// genericRegionData builds the payload of an arithmetic generic region
// segment with nominal AT pixels.
func genericRegionData(bm *Bitmap, x, y uint32, template int, tpgdon bool) []byte {
	data := regionInfoData(uint32(bm.Width()), uint32(bm.Height()), x, y, 0)
	flags := byte(template << 1)
	if tpgdon {
		flags |= 0x08
	}
	data = append(data, flags)
	at := DefaultGenericAT(template)
	data = append(data, atData(at)...)
	e := newMQEncoder()
	e.encodeGeneric(make([]uint8, GenericContextSize(template)), bm, template, at, tpgdon)
	return append(data, e.flush()...)
}
