package jbig2

import (
	"log/slog"

	"github.com/rasterpdf/jbig2/internal/mmr"
)

// SymbolHuffmanTables are the code tables selected by a Huffman coded
// symbol dictionary.
type SymbolHuffmanTables struct {
	DH, DW, BMSize, AggInst *HuffmanTable
}

// SDDProc holds the parameters of the symbol dictionary decoding procedure
// (T.88 6.5).
type SDDProc struct {
	Huffman     bool
	RefAgg      bool
	Template    int
	RefTemplate int
	AT          []ATPixel
	RefAT       [2]ATPixel
	NumExSyms   uint32
	NumNewSyms  uint32
	InSyms      []*Bitmap
	Tables      SymbolHuffmanTables

	Logger *slog.Logger
}

// sddState tracks one run of the procedure.
type sddState struct {
	p       *SDDProc
	r       *BitReader
	a       *ArithDecoder
	h       *HuffmanDecoder
	newSyms []*Bitmap
	codeLen uint
}

// Decode runs the procedure and returns the exported symbols. In
// arithmetic mode a must already be started with its integer, IAID and
// generic tables prepared; the refinement table is needed when RefAgg is
// set, in either mode.
func (p *SDDProc) Decode(r *BitReader, a *ArithDecoder) ([]*Bitmap, error) {
	if p.NumNewSyms > MaxNewSymbols || p.NumExSyms > MaxExportSymbols {
		return nil, decodeFailure("symbol dictionary declares %d new and %d exported symbols", p.NumNewSyms, p.NumExSyms)
	}
	if p.Huffman {
		t := p.Tables
		if t.DH == nil || t.DW == nil || t.BMSize == nil || (p.RefAgg && t.AggInst == nil) {
			return nil, decodeFailure("symbol dictionary is missing Huffman tables")
		}
	}
	s := &sddState{
		p:       p,
		r:       r,
		a:       a,
		h:       NewHuffmanDecoder(r),
		newSyms: make([]*Bitmap, 0, p.NumNewSyms),
		codeLen: SymbolDictCodeLen(len(p.InSyms), p.NumNewSyms),
	}

	var height int64
	for uint32(len(s.newSyms)) < p.NumNewSyms {
		dh, err := s.mustDecode(p.Tables.DH, IADH, "DH")
		if err != nil {
			return nil, err
		}
		if height += dh; height < 0 || height > MaxImageSize {
			return nil, decodeFailure("symbol height class %d", height)
		}

		first := len(s.newSyms)
		var width, total int64
		for {
			dw, ok, err := s.decodeInt(p.Tables.DW, IADW)
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			if uint32(len(s.newSyms)) >= p.NumNewSyms {
				return nil, decodeFailure("symbol dictionary decodes more than %d symbols", p.NumNewSyms)
			}
			if width += dw; width < 0 || width > MaxImageSize {
				return nil, decodeFailure("symbol width %d", width)
			}
			if total += width; total > MaxImageSize {
				return nil, decodeFailure("height class width %d", total)
			}

			if p.Huffman && !p.RefAgg {
				s.newSyms = append(s.newSyms, &Bitmap{width: int(width)})
				continue
			}
			sym, err := s.symbol(int(width), int(height))
			if err != nil {
				return nil, err
			}
			s.newSyms = append(s.newSyms, sym)
		}

		if p.Huffman && !p.RefAgg {
			if err := s.collective(first, int(total), int(height)); err != nil {
				return nil, err
			}
		}
	}

	return s.exported()
}

// SymbolDictCodeLen is the identifier width used inside a dictionary that
// refines or aggregates over its input and new symbols.
func SymbolDictCodeLen(numIn int, numNew uint32) uint {
	return symbolCodeLen(numIn + int(numNew))
}

func (s *sddState) decodeInt(t *HuffmanTable, cx IntContext) (int64, bool, error) {
	if s.p.Huffman {
		return s.h.DecodeInt(t)
	}
	v, ok := s.a.DecodeInt(s.a.IntStats(cx))
	return v, ok, nil
}

func (s *sddState) mustDecode(t *HuffmanTable, cx IntContext, name string) (int64, error) {
	v, ok, err := s.decodeInt(t, cx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, decodeFailure("symbol dictionary %s is OOB", name)
	}
	return v, nil
}

// symbol decodes one symbol bitmap directly, by generic coding or by
// refinement/aggregation.
func (s *sddState) symbol(width, height int) (*Bitmap, error) {
	p := s.p
	if !p.RefAgg {
		g := &GRDProc{Template: p.Template, Width: width, Height: height, AT: p.AT}
		return g.DecodeArith(s.a)
	}

	n, err := s.mustDecode(p.Tables.AggInst, IAAI, "REFAGGNINST")
	if err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, decodeFailure("aggregate instance count %d", n)
	}
	syms := append(append([]*Bitmap(nil), p.InSyms...), s.newSyms...)
	if n > 1 {
		return s.aggregate(syms, width, height, uint32(n))
	}

	var id uint32
	if p.Huffman {
		id, err = s.r.ReadBits(s.codeLen)
		if err != nil {
			return nil, err
		}
	} else {
		id = s.a.DecodeIAID(s.codeLen, s.a.IAIDStats())
	}
	if int(id) >= len(syms) {
		return nil, decodeFailure("refinement references symbol %d of %d", id, len(syms))
	}
	rdx, err := s.mustDecode(standardTables[15], IARDX, "RDX")
	if err != nil {
		return nil, err
	}
	rdy, err := s.mustDecode(standardTables[15], IARDY, "RDY")
	if err != nil {
		return nil, err
	}
	g := &GRRDProc{
		Template:    p.RefTemplate,
		Width:       width,
		Height:      height,
		ReferenceDX: int(rdx),
		ReferenceDY: int(rdy),
		Reference:   syms[id],
		AT:          p.RefAT,
	}
	if !p.Huffman {
		return g.Decode(s.a)
	}
	src := &huffmanTextSource{r: s.r, h: s.h, a: s.a, tables: &TextHuffmanTables{RSize: standardTables[1]}}
	return src.refine(g)
}

// aggregate decodes a symbol as a text region of n refined instances of
// earlier symbols.
func (s *sddState) aggregate(syms []*Bitmap, width, height int, n uint32) (*Bitmap, error) {
	p := s.p
	trd := &TRDProc{
		Huffman:      p.Huffman,
		Refine:       true,
		RefTemplate:  p.RefTemplate,
		Width:        width,
		Height:       height,
		NumInstances: n,
		RefCorner:    CornerTopLeft,
		CombOp:       ComposeOR,
		RefAT:        p.RefAT,
		Symbols:      syms,
		SymCodeLen:   s.codeLen,
		Logger:       p.Logger,
	}
	if !p.Huffman {
		return trd.DecodeArith(s.a)
	}
	trd.Tables = TextHuffmanTables{
		FS:    standardTables[6],
		DS:    standardTables[8],
		DT:    standardTables[11],
		RDW:   standardTables[15],
		RDH:   standardTables[15],
		RDX:   standardTables[15],
		RDY:   standardTables[15],
		RSize: standardTables[1],
	}
	return trd.DecodeHuffman(s.r, s.a)
}

// collective decodes the height class bitmap of a Huffman coded dictionary
// and splits it into the symbols from index first on, whose widths are
// already recorded.
func (s *sddState) collective(first, total, height int) error {
	size, err := s.mustDecode(s.p.Tables.BMSize, 0, "BMSIZE")
	if err != nil {
		return err
	}
	s.r.ConsumeRemainingBits()
	start := s.r.Offset()
	if size < 0 || int64(s.r.Len()-start) < size {
		return decodeFailure("collective bitmap size %d", size)
	}

	var bhc *Bitmap
	if size == 0 {
		stride := (total + 7) / 8
		raw, err := s.r.ReadBytes(stride * height)
		if err != nil {
			return err
		}
		if bhc, err = BitmapFromPacked(total, height, raw); err != nil {
			return err
		}
	} else {
		g := &GRDProc{MMR: true, Width: total, Height: height}
		d := mmr.NewDecoder(s.r.Bytes()[:start+int(size)], start)
		if bhc, _, err = g.DecodeMMR(d); err != nil {
			return err
		}
		if err := s.r.SetOffset(start + int(size)); err != nil {
			return err
		}
	}

	x := 0
	for i := first; i < len(s.newSyms); i++ {
		w := s.newSyms[i].width
		sym, err := bhc.Slice(x, 0, w, height)
		if err != nil {
			return err
		}
		s.newSyms[i] = sym
		x += w
	}
	return nil
}

// exported decodes the export run lengths and collects the flagged input
// and new symbols, in order.
func (s *sddState) exported() ([]*Bitmap, error) {
	p := s.p
	total := len(p.InSyms) + len(s.newSyms)
	out := make([]*Bitmap, 0, p.NumExSyms)
	exporting := false
	for i := 0; i < total; {
		run, err := s.mustDecode(standardTables[1], IAEX, "EXRUNLENGTH")
		if err != nil {
			return nil, err
		}
		if run < 0 || run > int64(total-i) {
			return nil, decodeFailure("export run %d with %d symbols left", run, total-i)
		}
		if exporting {
			if uint32(len(out))+uint32(run) > p.NumExSyms {
				return nil, decodeFailure("symbol dictionary exports more than %d symbols", p.NumExSyms)
			}
			for j := i; j < i+int(run); j++ {
				if j < len(p.InSyms) {
					out = append(out, p.InSyms[j])
				} else {
					out = append(out, s.newSyms[j-len(p.InSyms)])
				}
			}
		}
		i += int(run)
		exporting = !exporting
	}
	if uint32(len(out)) != p.NumExSyms && p.Logger != nil {
		p.Logger.Warn("symbol dictionary export count mismatch", "declared", p.NumExSyms, "exported", len(out))
	}
	return out, nil
}
