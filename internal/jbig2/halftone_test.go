package jbig2

import (
	"testing"
)

func TestHTRDProcClampsGrayValue(t *testing.T) {
	p := &HTRDProc{
		Width:      2,
		Height:     1,
		GridWidth:  2,
		GridHeight: 1,
		VectorX:    1 << 8,
		PatternW:   1,
		PatternH:   1,
		CombOp:     ComposeOR,
		Patterns: []*Bitmap{
			bitmapFromRows("."),
			bitmapFromRows("."),
			bitmapFromRows("#"),
		},
	}
	// Gray values 1 and 3; 3 is past the last pattern and uses pattern 2.
	planes := []*Bitmap{bitmapFromRows(".#"), bitmapFromRows("#.")}
	i := 0
	region, err := p.decodePlanes(func() (*Bitmap, error) {
		bm := planes[i]
		i++
		return bm, nil
	})
	if err != nil {
		t.Fatalf("decodePlanes failed: %v", err)
	}
	checkBitmap(t, region, bitmapFromRows(".#"))
}

func TestHTRDProcGridPosition(t *testing.T) {
	p := &HTRDProc{GridX: 3 << 8, GridY: 1 << 8, VectorX: 4 << 8, VectorY: 1 << 8}
	tests := []struct {
		mg, ng int
		x, y   int
	}{
		{0, 0, 3, 1},
		{0, 1, 7, 0},
		{1, 0, 4, 5},
		{2, 3, 17, 6},
	}
	for _, tt := range tests {
		x, y := p.gridPosition(tt.mg, tt.ng)
		if x != tt.x || y != tt.y {
			t.Errorf("cell (%d,%d): Expected (%d,%d), got (%d,%d)", tt.mg, tt.ng, tt.x, tt.y, x, y)
		}
	}
}

func TestHTRDProcSkipMask(t *testing.T) {
	p := &HTRDProc{
		Width:      4,
		Height:     4,
		GridWidth:  3,
		GridHeight: 1,
		VectorX:    3 << 8,
		PatternW:   2,
		PatternH:   2,
	}
	skip, err := p.skipMask()
	if err != nil {
		t.Fatal(err)
	}
	checkBitmap(t, skip, bitmapFromRows("..#"))
}

func TestHTRDProcBitsPerValue(t *testing.T) {
	tests := []struct {
		patterns int
		want     int
	}{
		{1, 1}, {2, 1}, {3, 2}, {4, 2}, {5, 3}, {256, 8}, {257, 9},
	}
	for _, tt := range tests {
		p := &HTRDProc{Patterns: make([]*Bitmap, tt.patterns)}
		if got := p.bitsPerValue(); got != tt.want {
			t.Errorf("%d patterns: Expected %d planes, got %d", tt.patterns, tt.want, got)
		}
	}
}

// halftoneData builds an arithmetic template 0 halftone region over a grid
// of gray values with cells laid out pattern by pattern.
func halftoneData(width, height uint32, gray [][]int, bpp int, pw int) []byte {
	var b streamBuilder
	b.buf = regionInfoData(width, height, 0, 0, 0)
	b.buf = append(b.buf, 0x00)
	gh, gw := len(gray), len(gray[0])
	b.u32(uint32(gw))
	b.u32(uint32(gh))
	b.u32(0)
	b.u32(0)
	b.u16(uint16(pw << 8))
	b.u16(0)

	e := newMQEncoder()
	stats := make([]uint8, GenericContextSize(0))
	at := DefaultGenericAT(0)
	for j := bpp - 1; j >= 0; j-- {
		plane, err := NewBitmap(gw, gh)
		if err != nil {
			panic(err)
		}
		for mg := range gray {
			for ng, v := range gray[mg] {
				bit := v >> j & 1
				if j < bpp-1 {
					bit ^= v >> (j + 1) & 1
				}
				plane.Set(ng, mg, bit)
			}
		}
		e.encodeGeneric(stats, plane, 0, at, false)
	}
	return append(b.buf, e.flush()...)
}

func TestDecodeHalftoneRegion(t *testing.T) {
	var b streamBuilder
	b.segment(0, SegmentPageInformation, nil, 1, pageInfoData(4, 4, 0))
	b.segment(1, SegmentPatternDictionary, nil, 1, patternDictData(patterns))
	b.segment(2, SegmentImmediateHalftoneRegion, []uint32{1}, 1,
		halftoneData(4, 4, [][]int{{0, 1}, {2, 3}}, 2, 2))

	c := decodeStream(t, b.buf, nil)
	want := bitmapFromRows(
		"..#.",
		"....",
		"####",
		"..##",
	)
	checkBitmap(t, pageBitmap(t, c, 1), want)
}
