package jbig2

import (
	"github.com/rasterpdf/jbig2/internal/mmr"
)

// HTRDProc holds the parameters of the halftone region decoding procedure
// (T.88 6.6).
type HTRDProc struct {
	Width        int
	Height       int
	MMR          bool
	Template     int
	Patterns     []*Bitmap
	DefaultPixel int
	CombOp       ComposeOp
	EnableSkip   bool
	GridWidth    int
	GridHeight   int
	GridX        int32
	GridY        int32
	VectorX      uint16
	VectorY      uint16
	PatternW     int
	PatternH     int
}

// bitsPerValue is the number of gray-scale planes, at least one.
func (p *HTRDProc) bitsPerValue() int {
	n := 1
	for 1<<n < len(p.Patterns) {
		n++
	}
	return n
}

// gridPosition returns the top-left pixel of grid cell (mg, ng).
func (p *HTRDProc) gridPosition(mg, ng int) (int, int) {
	x := (int64(p.GridX) + int64(mg)*int64(p.VectorY) + int64(ng)*int64(p.VectorX)) >> 8
	y := (int64(p.GridY) + int64(mg)*int64(p.VectorX) - int64(ng)*int64(p.VectorY)) >> 8
	return int(x), int(y)
}

func (p *HTRDProc) validate() error {
	if len(p.Patterns) == 0 {
		return decodeFailure("halftone region without patterns")
	}
	if p.GridWidth < 0 || p.GridHeight < 0 || p.GridWidth > MaxImageSize || p.GridHeight > MaxImageSize {
		return decodeFailure("halftone grid %dx%d", p.GridWidth, p.GridHeight)
	}
	return nil
}

// skipMask marks the grid cells whose pattern falls entirely outside the
// region.
func (p *HTRDProc) skipMask() (*Bitmap, error) {
	skip, err := NewBitmap(p.GridWidth, p.GridHeight)
	if err != nil {
		return nil, err
	}
	for mg := 0; mg < p.GridHeight; mg++ {
		for ng := 0; ng < p.GridWidth; ng++ {
			x, y := p.gridPosition(mg, ng)
			if x+p.PatternW <= 0 || x >= p.Width || y+p.PatternH <= 0 || y >= p.Height {
				skip.Set(ng, mg, 1)
			}
		}
	}
	return skip, nil
}

// DecodeArith decodes the gray-scale planes with the decoder's generic
// table and renders the region.
func (p *HTRDProc) DecodeArith(a *ArithDecoder) (*Bitmap, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	g := &GRDProc{Template: p.Template, Width: p.GridWidth, Height: p.GridHeight}
	if p.Template <= 1 {
		g.AT = []ATPixel{{3, -1}}
	} else {
		g.AT = []ATPixel{{2, -1}}
	}
	if p.Template == 0 {
		g.AT = append(g.AT, DefaultGenericAT(0)[1:]...)
	}
	if p.EnableSkip {
		skip, err := p.skipMask()
		if err != nil {
			return nil, err
		}
		g.Skip = skip
	}
	return p.decodePlanes(func() (*Bitmap, error) { return g.DecodeArith(a) })
}

// DecodeMMR decodes MMR coded gray-scale planes, each ending with an
// end-of-facsimile-block, and renders the region.
func (p *HTRDProc) DecodeMMR(d *mmr.Decoder) (*Bitmap, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	g := &GRDProc{MMR: true, Width: p.GridWidth, Height: p.GridHeight}
	return p.decodePlanes(func() (*Bitmap, error) {
		bm, _, err := g.DecodeMMR(d)
		if err != nil {
			return nil, err
		}
		d.Reset(d.ByteOffset())
		return bm, nil
	})
}

// decodePlanes reads the Gray-coded bit planes most significant first,
// converts them to binary and renders the grid.
func (p *HTRDProc) decodePlanes(next func() (*Bitmap, error)) (*Bitmap, error) {
	bpp := p.bitsPerValue()
	planes := make([]*Bitmap, bpp)
	for j := bpp - 1; j >= 0; j-- {
		plane, err := next()
		if err != nil {
			return nil, err
		}
		if j < bpp-1 {
			plane.Combine(planes[j+1], 0, 0, ComposeXOR)
		}
		planes[j] = plane
	}

	region, err := NewBitmap(p.Width, p.Height)
	if err != nil {
		return nil, err
	}
	region.Clear(p.DefaultPixel)
	for mg := 0; mg < p.GridHeight; mg++ {
		for ng := 0; ng < p.GridWidth; ng++ {
			gray := 0
			for j := range planes {
				gray |= planes[j].Get(ng, mg) << j
			}
			gray = min(gray, len(p.Patterns)-1)
			x, y := p.gridPosition(mg, ng)
			region.Combine(p.Patterns[gray], x, y, p.CombOp)
		}
	}
	return region, nil
}
