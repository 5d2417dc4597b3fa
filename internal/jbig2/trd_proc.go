package jbig2

import (
	"log/slog"
)

// TextHuffmanTables are the code tables selected by a Huffman coded text
// region.
type TextHuffmanTables struct {
	FS, DS, DT         *HuffmanTable
	RDW, RDH, RDX, RDY *HuffmanTable
	RSize              *HuffmanTable
}

// TRDProc holds the parameters of the text region decoding procedure
// (T.88 6.4).
type TRDProc struct {
	Huffman      bool
	Refine       bool
	RefTemplate  int
	Transposed   bool
	DefaultPixel int
	DSOffset     int
	Width        int
	Height       int
	NumInstances uint32
	LogStrips    uint
	RefCorner    int
	CombOp       ComposeOp
	RefAT        [2]ATPixel

	// Symbols is the concatenation of every input symbol dictionary.
	Symbols    []*Bitmap
	SymCodeLen uint
	// SymbolIDs decodes symbol identifiers in Huffman mode. When nil the
	// identifiers are read as SymCodeLen raw bits.
	SymbolIDs *HuffmanTable
	Tables    TextHuffmanTables

	Logger *slog.Logger
}

type textField int

const (
	fieldDT textField = iota
	fieldFS
	fieldDS
	fieldIT
	fieldRI
	fieldRDW
	fieldRDH
	fieldRDX
	fieldRDY
)

var textFieldNames = [...]string{"DT", "FS", "DS", "IT", "RI", "RDW", "RDH", "RDX", "RDY"}

// textSource yields the coded quantities of a text region, independent of
// the entropy coder.
type textSource interface {
	next(f textField) (int64, bool, error)
	symbolID() (uint32, error)
	refine(p *GRRDProc) (*Bitmap, error)
}

type arithTextSource struct {
	a       *ArithDecoder
	codeLen uint
}

var arithTextContexts = [...]IntContext{
	fieldDT: IADT, fieldFS: IAFS, fieldDS: IADS, fieldIT: IAIT, fieldRI: IARI,
	fieldRDW: IARDW, fieldRDH: IARDH, fieldRDX: IARDX, fieldRDY: IARDY,
}

func (s *arithTextSource) next(f textField) (int64, bool, error) {
	v, ok := s.a.DecodeInt(s.a.IntStats(arithTextContexts[f]))
	return v, ok, nil
}

func (s *arithTextSource) symbolID() (uint32, error) {
	return s.a.DecodeIAID(s.codeLen, s.a.IAIDStats()), nil
}

func (s *arithTextSource) refine(p *GRRDProc) (*Bitmap, error) {
	return p.Decode(s.a)
}

type huffmanTextSource struct {
	r         *BitReader
	h         *HuffmanDecoder
	a         *ArithDecoder
	tables    *TextHuffmanTables
	symbolIDs *HuffmanTable
	codeLen   uint
	logStrips uint
}

func (s *huffmanTextSource) next(f textField) (int64, bool, error) {
	var t *HuffmanTable
	switch f {
	case fieldIT:
		v, err := s.r.ReadBits(s.logStrips)
		return int64(v), true, err
	case fieldRI:
		v, err := s.r.ReadBit()
		return int64(v), true, err
	case fieldDT:
		t = s.tables.DT
	case fieldFS:
		t = s.tables.FS
	case fieldDS:
		t = s.tables.DS
	case fieldRDW:
		t = s.tables.RDW
	case fieldRDH:
		t = s.tables.RDH
	case fieldRDX:
		t = s.tables.RDX
	case fieldRDY:
		t = s.tables.RDY
	}
	return s.h.DecodeInt(t)
}

func (s *huffmanTextSource) symbolID() (uint32, error) {
	if s.symbolIDs == nil {
		return s.r.ReadBits(s.codeLen)
	}
	v, ok, err := s.h.DecodeInt(s.symbolIDs)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, decodeFailure("symbol identifier is OOB")
	}
	return uint32(v), nil
}

// refine reads the refinement byte count, then decodes the refined bitmap
// with the arithmetic decoder over exactly that many bytes.
func (s *huffmanTextSource) refine(p *GRRDProc) (*Bitmap, error) {
	size, ok, err := s.h.DecodeInt(s.tables.RSize)
	if err != nil {
		return nil, err
	}
	if !ok || size < 0 {
		return nil, decodeFailure("invalid refinement size %d", size)
	}
	s.r.ConsumeRemainingBits()
	start := s.r.Offset()
	if int64(s.r.Len()-start) < size {
		return nil, decodeFailure("refinement size %d exceeds remaining %d bytes", size, s.r.Len()-start)
	}
	end := start + int(size)
	s.a.Start(end)
	bm, err := p.Decode(s.a)
	if err != nil {
		return nil, err
	}
	if err := s.r.SetOffset(end); err != nil {
		return nil, err
	}
	return bm, nil
}

// DecodeArith decodes an arithmetic coded region. The integer, IAID and
// (when refinement is on) refinement tables of a must be prepared.
func (p *TRDProc) DecodeArith(a *ArithDecoder) (*Bitmap, error) {
	return p.decode(&arithTextSource{a: a, codeLen: p.SymCodeLen})
}

// DecodeHuffman decodes a Huffman coded region read from r. Refinements
// run through a, whose refinement table must be prepared.
func (p *TRDProc) DecodeHuffman(r *BitReader, a *ArithDecoder) (*Bitmap, error) {
	t := p.Tables
	if t.FS == nil || t.DS == nil || t.DT == nil {
		return nil, decodeFailure("text region is missing FS, DS or DT table")
	}
	if p.Refine && (t.RDW == nil || t.RDH == nil || t.RDX == nil || t.RDY == nil || t.RSize == nil) {
		return nil, decodeFailure("text region is missing refinement tables")
	}
	return p.decode(&huffmanTextSource{
		r:         r,
		h:         NewHuffmanDecoder(r),
		a:         a,
		tables:    &p.Tables,
		symbolIDs: p.SymbolIDs,
		codeLen:   p.SymCodeLen,
		logStrips: p.LogStrips,
	})
}

func (p *TRDProc) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.Logger
}

func mustNext(s textSource, f textField) (int64, error) {
	v, ok, err := s.next(f)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, decodeFailure("text region %s is OOB", textFieldNames[f])
	}
	return v, nil
}

func (p *TRDProc) decode(s textSource) (*Bitmap, error) {
	bm, err := NewBitmap(p.Width, p.Height)
	if err != nil {
		return nil, err
	}
	bm.Clear(p.DefaultPixel)

	strips := int64(1) << p.LogStrips
	dt, err := mustNext(s, fieldDT)
	if err != nil {
		return nil, err
	}
	stripT := -dt * strips
	var firstS int64

	for n := uint32(0); n < p.NumInstances; {
		if dt, err = mustNext(s, fieldDT); err != nil {
			return nil, err
		}
		stripT += dt * strips

		// A strip ends only on an OOB S delta, the last strip included.
		var curS int64
		for first := true; ; first = false {
			if first {
				dfs, err := mustNext(s, fieldFS)
				if err != nil {
					return nil, err
				}
				firstS += dfs
				curS = firstS
			} else {
				ids, ok, err := s.next(fieldDS)
				if err != nil {
					return nil, err
				}
				if !ok {
					break
				}
				curS += ids + int64(p.DSOffset)
			}
			if n >= p.NumInstances {
				break
			}

			var curT int64
			if strips != 1 {
				if curT, err = mustNext(s, fieldIT); err != nil {
					return nil, err
				}
			}
			ti := stripT + curT
			if ti < -1<<30 || ti > 1<<30 || curS < -1<<30 || curS > 1<<30 {
				return nil, decodeFailure("text region position (%d,%d) out of range", curS, ti)
			}

			id, err := s.symbolID()
			if err != nil {
				return nil, err
			}
			var ri int64
			if p.Refine {
				if ri, err = mustNext(s, fieldRI); err != nil {
					return nil, err
				}
			}

			var glyph *Bitmap
			if int(id) < len(p.Symbols) {
				glyph = p.Symbols[id]
			}
			missing := glyph == nil
			if missing {
				glyph = &Bitmap{}
			}
			if ri != 0 {
				if glyph, err = p.refineInstance(s, glyph); err != nil {
					return nil, err
				}
			}
			n++
			if missing {
				p.logger().Warn("text region symbol id out of range", "id", id, "symbols", len(p.Symbols))
				continue
			}
			curS = p.place(bm, glyph, curS, ti)
		}
	}
	return bm, nil
}

func (p *TRDProc) refineInstance(s textSource, ref *Bitmap) (*Bitmap, error) {
	var d [4]int64
	for i, f := range []textField{fieldRDW, fieldRDH, fieldRDX, fieldRDY} {
		v, err := mustNext(s, f)
		if err != nil {
			return nil, err
		}
		d[i] = v
	}
	rdw, rdh, rdx, rdy := d[0], d[1], d[2], d[3]
	w, h := int64(ref.Width())+rdw, int64(ref.Height())+rdh
	if w < 0 || h < 0 || w > MaxImageSize || h > MaxImageSize {
		return nil, decodeFailure("refined symbol size %dx%d", w, h)
	}
	if rdx < -MaxImageSize || rdx > MaxImageSize || rdy < -MaxImageSize || rdy > MaxImageSize {
		return nil, decodeFailure("refinement offset (%d,%d) out of range", rdx, rdy)
	}
	return s.refine(&GRRDProc{
		Template:    p.RefTemplate,
		Width:       int(w),
		Height:      int(h),
		ReferenceDX: int(rdw>>1 + rdx),
		ReferenceDY: int(rdh>>1 + rdy),
		Reference:   ref,
		AT:          p.RefAT,
	})
}

// place composites glyph with its reference corner at (s, t) and returns
// the S coordinate advanced past it.
func (p *TRDProc) place(bm, glyph *Bitmap, s, t int64) int64 {
	wi, hi := int64(glyph.Width()), int64(glyph.Height())
	right := p.RefCorner == CornerTopRight || p.RefCorner == CornerBottomRight
	bottom := p.RefCorner == CornerBottomLeft || p.RefCorner == CornerBottomRight

	var x, y int64
	if !p.Transposed {
		if right {
			s += wi - 1
		}
		x, y = s, t
		if right {
			x = s - wi + 1
		}
		if bottom {
			y = t - hi + 1
		}
	} else {
		if bottom {
			s += hi - 1
		}
		x, y = t, s
		if right {
			x = t - wi + 1
		}
		if bottom {
			y = s - hi + 1
		}
	}
	bm.Combine(glyph, int(x), int(y), p.CombOp)

	switch {
	case !p.Transposed && !right:
		s += wi - 1
	case p.Transposed && !bottom:
		s += hi - 1
	}
	return s
}
