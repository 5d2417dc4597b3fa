package jbig2

import (
	"github.com/rasterpdf/jbig2/internal/mmr"
)

// ATPixel is an adaptive template pixel offset relative to the pixel being
// decoded.
type ATPixel struct {
	X, Y int
}

// DefaultGenericAT returns the nominal adaptive pixel positions of a generic
// region template.
func DefaultGenericAT(template int) []ATPixel {
	switch template {
	case 0:
		return []ATPixel{{3, -1}, {-3, -1}, {2, -2}, {-2, -2}}
	case 1:
		return []ATPixel{{3, -1}}
	default:
		return []ATPixel{{2, -1}}
	}
}

// genericTemplate describes how the context of one template is assembled:
// a window over row y-2, a window over row y-1 and the pixels already
// decoded on row y, each at a fixed bit offset in the context word.
type genericTemplate struct {
	row2Right, row2Mask, row2Shift int
	row1Right, row1Mask, row1Shift int
	curMask                        int
	at1Shift                       int
	sltp                           int
}

var genericTemplates = [4]genericTemplate{
	{row2Right: 1, row2Mask: 0x07, row2Shift: 12, row1Right: 2, row1Mask: 0x1f, row1Shift: 5, curMask: 0x0f, at1Shift: 4, sltp: 0x9b25},
	{row2Right: 2, row2Mask: 0x0f, row2Shift: 9, row1Right: 2, row1Mask: 0x1f, row1Shift: 4, curMask: 0x07, at1Shift: 3, sltp: 0x0795},
	{row2Right: 1, row2Mask: 0x07, row2Shift: 7, row1Right: 1, row1Mask: 0x0f, row1Shift: 3, curMask: 0x03, at1Shift: 2, sltp: 0x00e5},
	{row2Right: -1, row1Right: 1, row1Mask: 0x1f, row1Shift: 5, curMask: 0x0f, at1Shift: 4, sltp: 0x0195},
}

// GRDProc holds the parameters of the generic region decoding procedure
// (T.88 6.2).
type GRDProc struct {
	MMR      bool
	Template int
	TPGDON   bool
	Width    int
	Height   int
	AT       []ATPixel
	// Skip, when set, marks pixels that are forced to 0 without decoding.
	Skip *Bitmap
}

// rowWindow returns pixels 0..right of row y as a right-aligned bit string,
// the starting window for x = 0. Pixels left of column 0 read as 0.
func rowWindow(bm *Bitmap, y, right int) int {
	v := 0
	for x := 0; x <= right; x++ {
		v = v<<1 | bm.Get(x, y)
	}
	return v
}

// DecodeArith runs the arithmetic path using the decoder's current generic
// context table.
func (p *GRDProc) DecodeArith(a *ArithDecoder) (*Bitmap, error) {
	if p.Template < 0 || p.Template > 3 {
		return nil, decodeFailure("generic region template %d", p.Template)
	}
	stats := a.GenericStats()
	if stats.Size() != GenericContextSize(p.Template) {
		return nil, decodeFailure("generic context table has %d entries, template %d needs %d",
			stats.Size(), p.Template, GenericContextSize(p.Template))
	}
	bm, err := NewBitmap(p.Width, p.Height)
	if err != nil {
		return nil, err
	}
	at := p.AT
	if len(at) == 0 {
		at = DefaultGenericAT(p.Template)
	}
	if (p.Template == 0 && len(at) < 4) || len(at) < 1 {
		return nil, decodeFailure("generic template %d needs more adaptive pixels than %d", p.Template, len(at))
	}
	t := genericTemplates[p.Template]

	ltp := 0
	for y := 0; y < p.Height; y++ {
		if p.TPGDON {
			ltp ^= a.DecodeBit(t.sltp, stats)
			if ltp == 1 {
				bm.CopyRow(y, y-1)
				continue
			}
		}

		var w2 int
		if t.row2Right >= 0 {
			w2 = rowWindow(bm, y-2, t.row2Right)
		}
		w1 := rowWindow(bm, y-1, t.row1Right)
		cur := 0
		for x := 0; x < p.Width; x++ {
			bit := 0
			if p.Skip == nil || p.Skip.Get(x, y) == 0 {
				cx := cur | w1<<t.row1Shift | bm.Get(x+at[0].X, y+at[0].Y)<<t.at1Shift
				if t.row2Right >= 0 {
					cx |= w2 << t.row2Shift
				}
				if p.Template == 0 {
					cx |= bm.Get(x+at[1].X, y+at[1].Y) << 10
					cx |= bm.Get(x+at[2].X, y+at[2].Y) << 11
					cx |= bm.Get(x+at[3].X, y+at[3].Y) << 15
				}
				if bit = a.DecodeBit(cx, stats); bit != 0 {
					bm.Set(x, y, 1)
				}
			}
			if t.row2Right >= 0 {
				w2 = (w2<<1 | bm.Get(x+t.row2Right+1, y-2)) & t.row2Mask
			}
			w1 = (w1<<1 | bm.Get(x+t.row1Right+1, y-1)) & t.row1Mask
			cur = (cur<<1 | bit) & t.curMask
		}
	}
	return bm, nil
}

// DecodeMMR runs the MMR path. It reports whether the data ended with an
// end-of-facsimile-block.
func (p *GRDProc) DecodeMMR(d *mmr.Decoder) (*Bitmap, bool, error) {
	bm, err := NewBitmap(p.Width, p.Height)
	if err != nil {
		return nil, false, err
	}
	eofb, err := d.DecodeRows(p.Width, p.Height, bm)
	if err != nil {
		return nil, false, decodeFailure("MMR generic region: %v", err)
	}
	return bm, eofb, nil
}
