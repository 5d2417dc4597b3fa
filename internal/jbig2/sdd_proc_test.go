package jbig2

import (
	"context"
	"errors"
	"testing"
)

func checkSymbols(t *testing.T, got []*Bitmap, want ...*Bitmap) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("Expected %d symbols, got %d", len(want), len(got))
	}
	for i := range want {
		checkBitmap(t, got[i], want[i])
	}
}

func huffmanSymbolTables() SymbolHuffmanTables {
	return SymbolHuffmanTables{
		DH:      standardTables[4],
		DW:      standardTables[2],
		BMSize:  standardTables[1],
		AggInst: standardTables[1],
	}
}

func TestSDDProcHuffmanCollective(t *testing.T) {
	t.Run("uncompressed", func(t *testing.T) {
		var w bitWriter
		w.code(standardTables[4], 3)
		w.code(standardTables[2], 2)
		w.code(standardTables[2], 1)
		w.oob(standardTables[2])
		w.code(standardTables[1], 0)
		// glyphB and glyphA side by side, one byte per row.
		w.bytes([]byte{0xe8, 0x90, 0xe8})
		w.code(standardTables[1], 0)
		w.code(standardTables[1], 2)

		p := &SDDProc{Huffman: true, NumExSyms: 2, NumNewSyms: 2, Tables: huffmanSymbolTables()}
		syms, err := p.Decode(NewBitReader(w.buf), nil)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		checkSymbols(t, syms, glyphB, glyphA)
	})

	t.Run("MMR", func(t *testing.T) {
		// One 8-pixel row with pixels 2..4 black.
		row := []byte{0x2f, 0x40, 0x04, 0x00, 0x40}
		var w bitWriter
		w.code(standardTables[4], 1)
		w.code(standardTables[2], 3)
		w.code(standardTables[2], 2)
		w.oob(standardTables[2])
		w.code(standardTables[1], int64(len(row)))
		w.bytes(row)
		w.code(standardTables[1], 0)
		w.code(standardTables[1], 2)

		p := &SDDProc{Huffman: true, NumExSyms: 2, NumNewSyms: 2, Tables: huffmanSymbolTables()}
		syms, err := p.Decode(NewBitReader(w.buf), nil)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		checkSymbols(t, syms, bitmapFromRows("..#"), bitmapFromRows("##..."))
	})
}

func TestSDDProcRefinedSymbol(t *testing.T) {
	in := []*Bitmap{glyphB}
	ref := &GRRDProc{Template: 1, Width: 3, Height: 3, ReferenceDX: 1, Reference: glyphB}

	t.Run("arithmetic", func(t *testing.T) {
		e := newMQEncoder()
		ie := newIntEncoders(e, 1)
		ie.put(IADH, 3)
		ie.put(IADW, 3)
		ie.put(IAAI, 1)
		e.encodeIAID(ie.iaid, 1, 0)
		ie.put(IARDX, 1)
		ie.put(IARDY, 0)
		encodeRefinement(e, make([]uint8, RefinementContextSize(1)), ref, glyphA)
		ie.oob(IADW)
		ie.put(IAEX, 1)
		ie.put(IAEX, 1)
		data := e.flush()

		r, a := arithFixture(data, 1)
		if err := a.ResetRefinementStats(1, nil); err != nil {
			t.Fatal(err)
		}
		p := &SDDProc{RefAgg: true, RefTemplate: 1, NumExSyms: 1, NumNewSyms: 1, InSyms: in}
		syms, err := p.Decode(r, a)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		checkSymbols(t, syms, glyphA)
	})

	t.Run("huffman", func(t *testing.T) {
		re := newMQEncoder()
		encodeRefinement(re, make([]uint8, RefinementContextSize(1)), ref, glyphA)
		refined := re.flush()

		var w bitWriter
		w.code(standardTables[4], 3)
		w.code(standardTables[2], 3)
		w.code(standardTables[1], 1)
		w.put(0, 1) // symbol id
		w.code(standardTables[15], 1)
		w.code(standardTables[15], 0)
		w.code(standardTables[1], int64(len(refined)))
		w.bytes(refined)
		w.oob(standardTables[2])
		w.code(standardTables[1], 1)
		w.code(standardTables[1], 1)

		r := NewBitReader(w.buf)
		a := NewArithDecoder(r)
		if err := a.ResetRefinementStats(1, nil); err != nil {
			t.Fatal(err)
		}
		p := &SDDProc{Huffman: true, RefAgg: true, RefTemplate: 1, NumExSyms: 1, NumNewSyms: 1, InSyms: in,
			Tables: huffmanSymbolTables()}
		syms, err := p.Decode(r, a)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		checkSymbols(t, syms, glyphA)
	})
}

// An aggregate symbol is a one-strip text region: glyphA at S=0 and glyphB
// at S=4. The strip, and with it the region, ends on an OOB S delta.
func TestSDDProcAggregate(t *testing.T) {
	in := []*Bitmap{glyphA, glyphB}
	want := bitmapFromRows(
		"#.#.##",
		".#..#.",
		"#.#.##",
	)

	t.Run("arithmetic", func(t *testing.T) {
		e := newMQEncoder()
		ie := newIntEncoders(e, 2)
		ie.put(IADH, 3)
		ie.put(IADW, 6)
		ie.put(IAAI, 2)
		ie.put(IADT, 0)
		ie.put(IADT, 0)
		ie.put(IAFS, 0)
		e.encodeIAID(ie.iaid, 2, 0)
		ie.put(IARI, 0)
		ie.put(IADS, 2)
		e.encodeIAID(ie.iaid, 2, 1)
		ie.put(IARI, 0)
		ie.oob(IADS)
		ie.oob(IADW)
		ie.put(IAEX, 2)
		ie.put(IAEX, 1)
		data := e.flush()

		r, a := arithFixture(data, 2)
		if err := a.ResetRefinementStats(1, nil); err != nil {
			t.Fatal(err)
		}
		p := &SDDProc{RefAgg: true, RefTemplate: 1, NumExSyms: 1, NumNewSyms: 1, InSyms: in}
		syms, err := p.Decode(r, a)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		checkSymbols(t, syms, want)
	})

	t.Run("huffman", func(t *testing.T) {
		var w bitWriter
		w.code(standardTables[4], 3)
		w.code(standardTables[2], 6)
		w.code(standardTables[1], 2)
		w.code(standardTables[11], 1)
		w.code(standardTables[11], 1)
		w.code(standardTables[6], 0)
		w.put(0, 2) // symbol id
		w.put(0, 1) // RI
		w.code(standardTables[8], 2)
		w.put(1, 2)
		w.put(0, 1)
		w.oob(standardTables[8])
		w.oob(standardTables[2])
		w.code(standardTables[1], 2)
		w.code(standardTables[1], 1)

		r := NewBitReader(w.buf)
		p := &SDDProc{Huffman: true, RefAgg: true, RefTemplate: 1, NumExSyms: 1, NumNewSyms: 1, InSyms: in,
			Tables: huffmanSymbolTables()}
		syms, err := p.Decode(r, NewArithDecoder(r))
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		checkSymbols(t, syms, want)
	})
}

func TestSDDProcErrors(t *testing.T) {
	var w bitWriter
	w.code(standardTables[4], 1)
	w.code(standardTables[2], 1)
	w.oob(standardTables[2])
	w.code(standardTables[1], 0)
	w.bytes([]byte{0x80})
	// The first run claims more symbols than exist.
	w.code(standardTables[1], 5)

	tests := []struct {
		name string
		p    SDDProc
	}{
		{"missing tables", SDDProc{Huffman: true, NumNewSyms: 1}},
		{"too many symbols", SDDProc{Huffman: true, NumNewSyms: MaxNewSymbols + 1, Tables: huffmanSymbolTables()}},
		{"export run", SDDProc{Huffman: true, NumExSyms: 1, NumNewSyms: 1, Tables: huffmanSymbolTables()}},
	}
	for _, tt := range tests {
		if _, err := tt.p.Decode(NewBitReader(w.buf), nil); !errors.Is(err, ErrDecodeFailure) {
			t.Errorf("%s: Expected ErrDecodeFailure, got %v", tt.name, err)
		}
	}
}

// contextDictData codes syms, all of one height, as an arithmetic
// dictionary with the given flags over numIn input symbols. The generic
// table continues in stats and every symbol is exported.
func contextDictData(flags uint16, stats []uint8, numIn int, syms ...*Bitmap) []byte {
	var b streamBuilder
	b.u16(flags)
	at := DefaultGenericAT(0)
	b.buf = append(b.buf, atData(at)...)
	total := numIn + len(syms)
	b.u32(uint32(total))
	b.u32(uint32(len(syms)))

	e := newMQEncoder()
	ie := newIntEncoders(e, symbolCodeLen(total))
	ie.put(IADH, int64(syms[0].Height()))
	width := 0
	for _, sym := range syms {
		ie.put(IADW, int64(sym.Width()-width))
		width = sym.Width()
		e.encodeGeneric(stats, sym, 0, at, false)
	}
	ie.oob(IADW)
	ie.put(IAEX, 0)
	ie.put(IAEX, int64(total))
	return append(b.buf, e.flush()...)
}

func TestDecodeSymbolDictContextReuse(t *testing.T) {
	stats := make([]uint8, GenericContextSize(0))
	first := contextDictData(0x0200, stats, 0, glyphA)
	second := contextDictData(0x0100, append([]uint8(nil), stats...), 1, glyphB)

	var b streamBuilder
	b.segment(0, SegmentPageInformation, nil, 1, pageInfoData(8, 4, 0))
	b.segment(1, SegmentSymbolDictionary, nil, 1, first)
	b.segment(2, SegmentSymbolDictionary, []uint32{1}, 1, second)

	c := decodeStream(t, b.buf, nil)
	retained := c.FindSegment(1).SymbolDict
	if retained.GenericStats == nil {
		t.Fatal("Expected the first dictionary to retain its generic table")
	}
	if retained.RefinementStats != nil {
		t.Error("Expected no refinement table without refinement")
	}
	sd := c.FindSegment(2).SymbolDict
	if sd.GenericStats != nil {
		t.Error("Expected the second dictionary to retain nothing")
	}
	checkSymbols(t, sd.Symbols, glyphA, glyphB)
}

func TestDecodeSymbolDictContextNotRetained(t *testing.T) {
	stats := make([]uint8, GenericContextSize(0))
	first := contextDictData(0, stats, 0, glyphA)
	second := contextDictData(0x0100, stats, 1, glyphB)

	var b streamBuilder
	b.segment(0, SegmentPageInformation, nil, 1, pageInfoData(8, 4, 0))
	b.segment(1, SegmentSymbolDictionary, nil, 1, first)
	b.segment(2, SegmentSymbolDictionary, []uint32{1}, 1, second)

	err := NewContext(Config{}).Decode(context.Background(), b.buf, nil)
	if !errors.Is(err, ErrDecodeFailure) {
		t.Fatalf("Expected ErrDecodeFailure, got %v", err)
	}
}
