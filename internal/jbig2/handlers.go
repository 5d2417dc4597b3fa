package jbig2

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/rasterpdf/jbig2/internal/mmr"
)

// segmentHandler decodes the payload of one kind of segment. The reader is
// positioned at the start of the payload.
type segmentHandler interface {
	decode(c *Context, seg *Segment) error
}

type segmentHandlerFunc func(c *Context, seg *Segment) error

func (f segmentHandlerFunc) decode(c *Context, seg *Segment) error { return f(c, seg) }

var segmentHandlers = map[SegmentType]segmentHandler{
	SegmentSymbolDictionary:            segmentHandlerFunc((*Context).decodeSymbolDict),
	SegmentIntermediateTextRegion:      segmentHandlerFunc((*Context).decodeTextRegion),
	SegmentImmediateTextRegion:         segmentHandlerFunc((*Context).decodeTextRegion),
	SegmentImmediateLosslessTextRegion: segmentHandlerFunc((*Context).decodeTextRegion),
	SegmentPatternDictionary:           segmentHandlerFunc((*Context).decodePatternDict),
	SegmentIntermediateHalftoneRegion:  segmentHandlerFunc((*Context).decodeHalftoneRegion),
	SegmentImmediateHalftoneRegion:     segmentHandlerFunc((*Context).decodeHalftoneRegion),
	SegmentImmediateLosslessHalftone:   segmentHandlerFunc((*Context).decodeHalftoneRegion),
	SegmentIntermediateGenericRegion:   segmentHandlerFunc((*Context).decodeGenericRegion),
	SegmentImmediateGenericRegion:      segmentHandlerFunc((*Context).decodeGenericRegion),
	SegmentImmediateLosslessGeneric:    segmentHandlerFunc((*Context).decodeGenericRegion),
	SegmentIntermediateRefinement:      segmentHandlerFunc((*Context).decodeRefinementRegion),
	SegmentImmediateRefinement:         segmentHandlerFunc((*Context).decodeRefinementRegion),
	SegmentImmediateLosslessRefinement: segmentHandlerFunc((*Context).decodeRefinementRegion),
	SegmentPageInformation:             segmentHandlerFunc((*Context).decodePageInfo),
	SegmentEndOfPage:                   segmentHandlerFunc((*Context).decodeEndOfPage),
	SegmentEndOfStripe:                 segmentHandlerFunc((*Context).decodeEndOfStripe),
	SegmentEndOfFile:                   segmentHandlerFunc((*Context).decodeEndOfFile),
	SegmentTables:                      segmentHandlerFunc((*Context).decodeTables),
}

// dataEnd is the offset one past the segment payload.
func (seg *Segment) dataEnd() int { return seg.DataOffset + int(seg.DataLength) }

func (c *Context) decodePageInfo(seg *Segment) error {
	info, err := parsePageInfo(c.r)
	if err != nil {
		return err
	}
	seg.Page = info
	if _, ok := c.pages[seg.PageAssociation]; ok {
		c.log.Warn("jbig2 page information repeated", "page", seg.PageAssociation)
	}
	p, err := newPage(seg.PageAssociation, info, c.cfg.MaxPixels)
	if err != nil {
		return err
	}
	c.pages[seg.PageAssociation] = p
	c.current = p
	return nil
}

func (c *Context) decodeEndOfPage(seg *Segment) error {
	if p, ok := c.pages[seg.PageAssociation]; ok && p == c.current {
		c.current = nil
	}
	return nil
}

// decodeEndOfStripe grows a page of unknown height to include the stripe's
// last row.
func (c *Context) decodeEndOfStripe(seg *Segment) error {
	y, err := c.r.ReadUint32()
	if err != nil {
		return err
	}
	p, err := c.pageFor(seg)
	if err != nil {
		return err
	}
	if int64(y) >= MaxImageSize {
		return decodeFailure("end of stripe at row %d", y)
	}
	return p.ensureHeight(int(y) + 1)
}

func (c *Context) decodeEndOfFile(*Segment) error { return nil }

func (c *Context) decodeTables(seg *Segment) error {
	t, err := ParseHuffmanTable(c.r)
	if err != nil {
		return err
	}
	seg.Table = t
	return nil
}

// tableSelector hands out the standard table chosen by a selector field
// or, for the custom value, the next table from the referred-to segments.
type tableSelector struct {
	custom []*HuffmanTable
}

func newTableSelector(refs []*Segment) *tableSelector {
	s := &tableSelector{}
	for _, ref := range refs {
		if ref.Table != nil {
			s.custom = append(s.custom, ref.Table)
		}
	}
	return s
}

// pick maps sel to standard[sel], or to a custom table when sel equals
// customSel.
func (s *tableSelector) pick(name string, sel, customSel uint16, standard ...int) (*HuffmanTable, error) {
	if sel == customSel {
		if len(s.custom) == 0 {
			return nil, decodeFailure("%s selects a custom Huffman table, none referred to", name)
		}
		t := s.custom[0]
		s.custom = s.custom[1:]
		return t, nil
	}
	if int(sel) >= len(standard) {
		return nil, decodeFailure("%s table selector %d", name, sel)
	}
	return standardTables[standard[sel]], nil
}

// inputSymbols concatenates the exported symbols of the referred-to
// dictionaries and returns the last of them.
func inputSymbols(refs []*Segment) ([]*Bitmap, *SymbolDict) {
	var syms []*Bitmap
	var last *SymbolDict
	for _, ref := range refs {
		if ref.SymbolDict != nil {
			syms = append(syms, ref.SymbolDict.Symbols...)
			last = ref.SymbolDict
		}
	}
	return syms, last
}

func (c *Context) decodeSymbolDict(seg *Segment) error {
	flags, err := c.r.ReadUint16()
	if err != nil {
		return err
	}
	p := &SDDProc{
		Huffman:     flags&0x0001 != 0,
		RefAgg:      flags&0x0002 != 0,
		Template:    int(flags >> 10 & 0x03),
		RefTemplate: int(flags >> 12 & 0x01),
		Logger:      c.log,
	}
	contextUsed := flags&0x0100 != 0
	contextRetained := flags&0x0200 != 0

	if !p.Huffman {
		n := 1
		if p.Template == 0 {
			n = 4
		}
		if p.AT, err = readAT(c.r, n); err != nil {
			return err
		}
	}
	p.RefAT = DefaultRefinementAT
	if p.RefAgg && p.RefTemplate == 0 {
		at, err := readAT(c.r, 2)
		if err != nil {
			return err
		}
		copy(p.RefAT[:], at)
	}
	if p.NumExSyms, err = c.r.ReadUint32(); err != nil {
		return err
	}
	if p.NumNewSyms, err = c.r.ReadUint32(); err != nil {
		return err
	}

	refs, err := c.referred(seg)
	if err != nil {
		return err
	}
	var last *SymbolDict
	p.InSyms, last = inputSymbols(refs)

	if p.Huffman {
		sel := newTableSelector(refs)
		if p.Tables.DH, err = sel.pick("SDHUFFDH", flags>>2&0x03, 3, 4, 5); err != nil {
			return err
		}
		if p.Tables.DW, err = sel.pick("SDHUFFDW", flags>>4&0x03, 3, 2, 3); err != nil {
			return err
		}
		if p.Tables.BMSize, err = sel.pick("SDHUFFBMSIZE", flags>>6&0x01, 1, 1); err != nil {
			return err
		}
		if p.RefAgg {
			if p.Tables.AggInst, err = sel.pick("SDHUFFAGGINST", flags>>7&0x01, 1, 1); err != nil {
				return err
			}
		}
	}

	var inheritG, inheritR *ContextStats
	if contextUsed && !p.Huffman {
		if last == nil || last.GenericStats == nil {
			return decodeFailure("symbol dictionary reuses contexts that no referred dictionary retained")
		}
		inheritG, inheritR = last.GenericStats, last.RefinementStats
	}
	if !p.Huffman {
		c.arith.Start(seg.dataEnd())
		c.arith.ResetIntStats(SymbolDictCodeLen(len(p.InSyms), p.NumNewSyms))
		if err := c.arith.ResetGenericStats(p.Template, inheritG); err != nil {
			return err
		}
	}
	if p.RefAgg {
		if err := c.arith.ResetRefinementStats(p.RefTemplate, inheritR); err != nil {
			return err
		}
	}

	syms, err := p.Decode(c.r, c.arith)
	if err != nil {
		return err
	}
	sd := &SymbolDict{Symbols: syms}
	if contextRetained && !p.Huffman {
		sd.retain(c.arith, p.RefAgg)
	}
	seg.SymbolDict = sd
	return nil
}

func (c *Context) decodeTextRegion(seg *Segment) error {
	ri, err := parseRegionInfo(c.r)
	if err != nil {
		return err
	}
	flags, err := c.r.ReadUint16()
	if err != nil {
		return err
	}
	p := &TRDProc{
		Huffman:      flags&0x0001 != 0,
		Refine:       flags&0x0002 != 0,
		LogStrips:    uint(flags >> 2 & 0x03),
		RefCorner:    int(flags >> 4 & 0x03),
		Transposed:   flags&0x0040 != 0,
		CombOp:       ComposeOp(flags >> 7 & 0x03),
		DefaultPixel: int(flags >> 9 & 0x01),
		RefTemplate:  int(flags >> 15 & 0x01),
		Width:        int(ri.Width),
		Height:       int(ri.Height),
		RefAT:        DefaultRefinementAT,
		Logger:       c.log,
	}
	if p.DSOffset = int(flags >> 10 & 0x1f); p.DSOffset > 15 {
		p.DSOffset -= 32
	}
	var huffFlags uint16
	if p.Huffman {
		if huffFlags, err = c.r.ReadUint16(); err != nil {
			return err
		}
	}
	if p.Refine && p.RefTemplate == 0 {
		at, err := readAT(c.r, 2)
		if err != nil {
			return err
		}
		copy(p.RefAT[:], at)
	}
	if p.NumInstances, err = c.r.ReadUint32(); err != nil {
		return err
	}

	refs, err := c.referred(seg)
	if err != nil {
		return err
	}
	p.Symbols, _ = inputSymbols(refs)
	p.SymCodeLen = symbolCodeLen(len(p.Symbols))

	var bm *Bitmap
	if p.Huffman {
		if err := c.textHuffmanTables(p, refs, huffFlags); err != nil {
			return err
		}
		if p.SymbolIDs, err = decodeSymbolIDTable(c.r, len(p.Symbols)); err != nil {
			return err
		}
		if p.Refine {
			if err := c.arith.ResetRefinementStats(p.RefTemplate, nil); err != nil {
				return err
			}
		}
		bm, err = p.DecodeHuffman(c.r, c.arith)
	} else {
		c.arith.Start(seg.dataEnd())
		c.arith.ResetIntStats(p.SymCodeLen)
		if p.Refine {
			if err := c.arith.ResetRefinementStats(p.RefTemplate, nil); err != nil {
				return err
			}
		}
		bm, err = p.DecodeArith(c.arith)
	}
	if err != nil {
		return err
	}
	return c.storeRegion(seg, ri, bm)
}

func (c *Context) textHuffmanTables(p *TRDProc, refs []*Segment, f uint16) error {
	sel := newTableSelector(refs)
	t := &p.Tables
	var err error
	picks := []struct {
		name      string
		dst       **HuffmanTable
		sel       uint16
		customSel uint16
		standard  []int
	}{
		{"SBHUFFFS", &t.FS, f & 0x03, 3, []int{6, 7}},
		{"SBHUFFDS", &t.DS, f >> 2 & 0x03, 3, []int{8, 9, 10}},
		{"SBHUFFDT", &t.DT, f >> 4 & 0x03, 3, []int{11, 12, 13}},
		{"SBHUFFRDW", &t.RDW, f >> 6 & 0x03, 3, []int{14, 15}},
		{"SBHUFFRDH", &t.RDH, f >> 8 & 0x03, 3, []int{14, 15}},
		{"SBHUFFRDX", &t.RDX, f >> 10 & 0x03, 3, []int{14, 15}},
		{"SBHUFFRDY", &t.RDY, f >> 12 & 0x03, 3, []int{14, 15}},
		{"SBHUFFRSIZE", &t.RSize, f >> 14 & 0x01, 1, []int{1}},
	}
	for _, pk := range picks {
		if *pk.dst, err = sel.pick(pk.name, pk.sel, pk.customSel, pk.standard...); err != nil {
			return err
		}
	}
	return nil
}

// decodeSymbolIDTable reads the run-length coded code lengths of the
// symbol identifier table (T.88 7.4.3.1.7) and builds the table.
func decodeSymbolIDTable(r *BitReader, numSyms int) (*HuffmanTable, error) {
	runLens := make([]uint8, 35)
	for i := range runLens {
		v, err := r.ReadBits(4)
		if err != nil {
			return nil, err
		}
		runLens[i] = uint8(v)
	}
	runTable, err := NewCodeLengthTable(runLens)
	if err != nil {
		return nil, err
	}

	h := NewHuffmanDecoder(r)
	lengths := make([]uint8, numSyms)
	for i := 0; i < numSyms; {
		code, ok, err := h.DecodeInt(runTable)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, decodeFailure("symbol identifier run code is OOB")
		}
		if code < 32 {
			lengths[i] = uint8(code)
			i++
			continue
		}
		var extra uint
		var base int
		var v uint8
		switch code {
		case 32:
			if i == 0 {
				return nil, decodeFailure("symbol identifier run repeats a missing length")
			}
			extra, base, v = 2, 3, lengths[i-1]
		case 33:
			extra, base = 3, 3
		default:
			extra, base = 7, 11
		}
		n, err := r.ReadBits(extra)
		if err != nil {
			return nil, err
		}
		run := base + int(n)
		if i+run > numSyms {
			return nil, decodeFailure("symbol identifier run of %d overflows %d symbols", run, numSyms)
		}
		for j := 0; j < run; j++ {
			lengths[i+j] = v
		}
		i += run
	}
	r.ConsumeRemainingBits()
	return NewCodeLengthTable(lengths)
}

func (c *Context) decodePatternDict(seg *Segment) error {
	flags, err := c.r.ReadByte()
	if err != nil {
		return err
	}
	w, err := c.r.ReadByte()
	if err != nil {
		return err
	}
	h, err := c.r.ReadByte()
	if err != nil {
		return err
	}
	grayMax, err := c.r.ReadUint32()
	if err != nil {
		return err
	}
	p := &PDDProc{
		MMR:      flags&0x01 != 0,
		Template: int(flags >> 1 & 0x03),
		Width:    int(w),
		Height:   int(h),
		GrayMax:  grayMax,
	}
	var pd *PatternDict
	if p.MMR {
		pd, err = p.DecodeMMR(mmr.NewDecoder(c.r.Bytes()[:seg.dataEnd()], c.r.Offset()))
	} else {
		c.arith.Start(seg.dataEnd())
		if err := c.arith.ResetGenericStats(p.Template, nil); err != nil {
			return err
		}
		pd, err = p.DecodeArith(c.arith)
	}
	if err != nil {
		return err
	}
	seg.PatternDict = pd
	return nil
}

func (c *Context) decodeHalftoneRegion(seg *Segment) error {
	ri, err := parseRegionInfo(c.r)
	if err != nil {
		return err
	}
	flags, err := c.r.ReadByte()
	if err != nil {
		return err
	}
	var grid [6]uint32
	for i := range grid {
		if i < 4 {
			grid[i], err = c.r.ReadUint32()
		} else {
			var v uint16
			v, err = c.r.ReadUint16()
			grid[i] = uint32(v)
		}
		if err != nil {
			return err
		}
	}

	refs, err := c.referred(seg)
	if err != nil {
		return err
	}
	var pd *PatternDict
	for _, ref := range refs {
		if ref.PatternDict != nil {
			pd = ref.PatternDict
			break
		}
	}
	if pd == nil {
		return decodeFailure("halftone region refers to no pattern dictionary")
	}
	if grid[0] > MaxImageSize || grid[1] > MaxImageSize {
		return decodeFailure("halftone grid %dx%d", grid[0], grid[1])
	}

	p := &HTRDProc{
		Width:        int(ri.Width),
		Height:       int(ri.Height),
		MMR:          flags&0x01 != 0,
		Template:     int(flags >> 1 & 0x03),
		EnableSkip:   flags&0x08 != 0,
		CombOp:       ComposeOp(flags >> 4 & 0x07),
		DefaultPixel: int(flags >> 7 & 0x01),
		Patterns:     pd.Patterns,
		GridWidth:    int(grid[0]),
		GridHeight:   int(grid[1]),
		GridX:        int32(grid[2]),
		GridY:        int32(grid[3]),
		VectorX:      uint16(grid[4]),
		VectorY:      uint16(grid[5]),
		PatternW:     pd.Width,
		PatternH:     pd.Height,
	}
	var bm *Bitmap
	if p.MMR {
		bm, err = p.DecodeMMR(mmr.NewDecoder(c.r.Bytes()[:seg.dataEnd()], c.r.Offset()))
	} else {
		c.arith.Start(seg.dataEnd())
		if err := c.arith.ResetGenericStats(p.Template, nil); err != nil {
			return err
		}
		bm, err = p.DecodeArith(c.arith)
	}
	if err != nil {
		return err
	}
	return c.storeRegion(seg, ri, bm)
}

func (c *Context) decodeGenericRegion(seg *Segment) error {
	ri, err := parseRegionInfo(c.r)
	if err != nil {
		return err
	}
	flags, err := c.r.ReadByte()
	if err != nil {
		return err
	}
	if flags&0x10 != 0 {
		return decodeFailure("extended generic region templates")
	}
	p := &GRDProc{
		MMR:      flags&0x01 != 0,
		Template: int(flags >> 1 & 0x03),
		TPGDON:   flags&0x08 != 0,
		Width:    int(ri.Width),
		Height:   int(ri.Height),
	}
	if !p.MMR {
		n := 1
		if p.Template == 0 {
			n = 4
		}
		if p.AT, err = readAT(c.r, n); err != nil {
			return err
		}
	}

	if seg.DataLength == unknownDataLength {
		rows, err := c.measureGenericRegion(seg, p.MMR)
		if err != nil {
			return err
		}
		if ri.Height < 0 || int64(rows) < int64(ri.Height) {
			p.Height = int(rows)
			ri.Height = int32(rows)
		}
	}
	if p.Height < 0 {
		return decodeFailure("generic region of unknown height")
	}

	var bm *Bitmap
	if p.MMR {
		var eofb bool
		d := mmr.NewDecoder(c.r.Bytes()[:seg.dataEnd()], c.r.Offset())
		if bm, eofb, err = p.DecodeMMR(d); err != nil {
			return err
		}
		if !eofb {
			c.log.Warn("jbig2 MMR data without end-of-facsimile-block", "segment", seg.Number)
		}
	} else {
		c.arith.Start(seg.dataEnd())
		if err := c.arith.ResetGenericStats(p.Template, nil); err != nil {
			return err
		}
		if bm, err = p.DecodeArith(c.arith); err != nil {
			return err
		}
	}
	return c.storeRegion(seg, ri, bm)
}

// measureGenericRegion finds the end of an immediate generic region whose
// data length was left unknown (T.88 7.2.7): the coded data ends with
// 0xFF 0xAC (arithmetic) or 0x00 0x00 (MMR) followed by a 4-byte row
// count. It fills in seg.DataLength and returns the row count.
func (c *Context) measureGenericRegion(seg *Segment, isMMR bool) (uint32, error) {
	marker := []byte{0xFF, 0xAC}
	if isMMR {
		marker = []byte{0x00, 0x00}
	}
	data := c.r.Bytes()
	start := c.r.Offset()
	i := bytes.Index(data[start:], marker)
	if i < 0 || start+i+6 > len(data) {
		return 0, fmt.Errorf("%w: no end marker for generic region of unknown length", ErrStreamExhausted)
	}
	end := start + i + 6
	seg.DataLength = uint32(end - seg.DataOffset)
	return binary.BigEndian.Uint32(data[end-4 : end]), nil
}

func (c *Context) decodeRefinementRegion(seg *Segment) error {
	ri, err := parseRegionInfo(c.r)
	if err != nil {
		return err
	}
	flags, err := c.r.ReadByte()
	if err != nil {
		return err
	}
	p := &GRRDProc{
		Template: int(flags & 0x01),
		TPGRON:   flags&0x02 != 0,
		Width:    int(ri.Width),
		Height:   int(ri.Height),
		AT:       DefaultRefinementAT,
	}
	if p.Template == 0 {
		at, err := readAT(c.r, 2)
		if err != nil {
			return err
		}
		copy(p.AT[:], at)
	}

	refs, err := c.referred(seg)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		if ref.Type().IsRegion() && ref.Bitmap != nil {
			p.Reference = ref.Bitmap
			break
		}
	}
	if p.Reference == nil {
		if len(refs) > 0 {
			return decodeFailure("refinement region refers to no intermediate region")
		}
		page, err := c.pageFor(seg)
		if err != nil {
			return err
		}
		ref, err := NewBitmap(p.Width, p.Height)
		if err != nil {
			return err
		}
		ref.Combine(page.Bitmap, -int(ri.X), -int(ri.Y), ComposeReplace)
		p.Reference = ref
	}

	c.arith.Start(seg.dataEnd())
	if err := c.arith.ResetRefinementStats(p.Template, nil); err != nil {
		return err
	}
	bm, err := p.Decode(c.arith)
	if err != nil {
		return err
	}
	return c.storeRegion(seg, ri, bm)
}
