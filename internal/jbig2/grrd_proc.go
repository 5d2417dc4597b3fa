package jbig2

// GRRDProc holds the parameters of the generic refinement region decoding
// procedure (T.88 6.3).
type GRRDProc struct {
	Template    int
	TPGRON      bool
	Width       int
	Height      int
	ReferenceDX int
	ReferenceDY int
	Reference   *Bitmap
	// AT holds the current-image adaptive pixel followed by the reference
	// one. Only template 0 uses them.
	AT [2]ATPixel
}

// DefaultRefinementAT is the nominal adaptive pixel pair of template 0.
var DefaultRefinementAT = [2]ATPixel{{-1, -1}, {-1, -1}}

// Decode runs the procedure using the decoder's current refinement context
// table.
func (p *GRRDProc) Decode(a *ArithDecoder) (*Bitmap, error) {
	if p.Reference == nil {
		return nil, decodeFailure("refinement region has no reference bitmap")
	}
	if p.Template != 0 && p.Template != 1 {
		return nil, decodeFailure("refinement template %d", p.Template)
	}
	stats := a.RefinementStats()
	if stats.Size() != RefinementContextSize(p.Template) {
		return nil, decodeFailure("refinement context table has %d entries, template %d needs %d",
			stats.Size(), p.Template, RefinementContextSize(p.Template))
	}
	bm, err := NewBitmap(p.Width, p.Height)
	if err != nil {
		return nil, err
	}

	context := p.context0
	sltp := 0x0010
	if p.Template == 1 {
		context = p.context1
		sltp = 0x0008
	}

	ltp := 0
	for y := 0; y < p.Height; y++ {
		if p.TPGRON {
			ltp ^= a.DecodeBit(sltp, stats)
		}
		for x := 0; x < p.Width; x++ {
			if ltp == 1 {
				if v, ok := p.predict(x, y); ok {
					if v != 0 {
						bm.Set(x, y, 1)
					}
					continue
				}
			}
			if a.DecodeBit(context(bm, x, y), stats) != 0 {
				bm.Set(x, y, 1)
			}
		}
	}
	return bm, nil
}

// predict reports the value of the 3x3 reference neighbourhood around the
// pixel when all nine pixels agree.
func (p *GRRDProc) predict(x, y int) (int, bool) {
	rx, ry := x-p.ReferenceDX, y-p.ReferenceDY
	v := p.Reference.Get(rx, ry)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if p.Reference.Get(rx+dx, ry+dy) != v {
				return 0, false
			}
		}
	}
	return v, true
}

func (p *GRRDProc) context0(bm *Bitmap, x, y int) int {
	ref := p.Reference
	rx, ry := x-p.ReferenceDX, y-p.ReferenceDY

	cx := ref.Get(rx-1, ry+1)<<2 | ref.Get(rx, ry+1)<<1 | ref.Get(rx+1, ry+1)
	cx |= (ref.Get(rx-1, ry)<<2 | ref.Get(rx, ry)<<1 | ref.Get(rx+1, ry)) << 3
	cx |= (ref.Get(rx, ry-1)<<1 | ref.Get(rx+1, ry-1)) << 6
	cx |= ref.Get(rx+p.AT[1].X, ry+p.AT[1].Y) << 8
	cx |= bm.Get(x-1, y) << 9
	cx |= (bm.Get(x, y-1)<<1 | bm.Get(x+1, y-1)) << 10
	cx |= bm.Get(x+p.AT[0].X, y+p.AT[0].Y) << 12
	return cx
}

func (p *GRRDProc) context1(bm *Bitmap, x, y int) int {
	ref := p.Reference
	rx, ry := x-p.ReferenceDX, y-p.ReferenceDY

	cx := ref.Get(rx, ry+1)<<1 | ref.Get(rx+1, ry+1)
	cx |= (ref.Get(rx-1, ry)<<2 | ref.Get(rx, ry)<<1 | ref.Get(rx+1, ry)) << 2
	cx |= ref.Get(rx, ry-1) << 5
	cx |= bm.Get(x-1, y) << 6
	cx |= (bm.Get(x-1, y-1)<<2 | bm.Get(x, y-1)<<1 | bm.Get(x+1, y-1)) << 7
	return cx
}
