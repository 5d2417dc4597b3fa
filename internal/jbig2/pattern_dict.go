package jbig2

import (
	"github.com/rasterpdf/jbig2/internal/mmr"
)

// PatternDict stores the fixed-size patterns of a pattern dictionary
// segment, indexed by gray-scale value.
type PatternDict struct {
	Width    int
	Height   int
	Patterns []*Bitmap
}

// Pattern returns the pattern for gray value i, or nil when out of range.
func (pd *PatternDict) Pattern(i int) *Bitmap {
	if pd == nil || i < 0 || i >= len(pd.Patterns) {
		return nil
	}
	return pd.Patterns[i]
}

// PDDProc holds the parameters of the pattern dictionary decoding
// procedure (T.88 6.7).
type PDDProc struct {
	MMR      bool
	Width    int
	Height   int
	GrayMax  uint32
	Template int
}

func (p *PDDProc) collective() (*GRDProc, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return nil, decodeFailure("pattern size %dx%d", p.Width, p.Height)
	}
	if p.GrayMax >= MaxPatterns {
		return nil, decodeFailure("pattern dictionary with %d patterns", uint64(p.GrayMax)+1)
	}
	w := (int(p.GrayMax) + 1) * p.Width
	if w > MaxImageSize {
		return nil, decodeFailure("collective pattern bitmap width %d", w)
	}
	g := &GRDProc{MMR: p.MMR, Template: p.Template, Width: w, Height: p.Height}
	if !p.MMR {
		g.AT = append([]ATPixel{{-p.Width, 0}}, DefaultGenericAT(0)[1:]...)
	}
	return g, nil
}

// DecodeArith decodes the collective bitmap with the decoder's generic
// table and splits it into patterns.
func (p *PDDProc) DecodeArith(a *ArithDecoder) (*PatternDict, error) {
	g, err := p.collective()
	if err != nil {
		return nil, err
	}
	bm, err := g.DecodeArith(a)
	if err != nil {
		return nil, err
	}
	return p.split(bm)
}

// DecodeMMR decodes an MMR coded collective bitmap.
func (p *PDDProc) DecodeMMR(d *mmr.Decoder) (*PatternDict, error) {
	g, err := p.collective()
	if err != nil {
		return nil, err
	}
	bm, _, err := g.DecodeMMR(d)
	if err != nil {
		return nil, err
	}
	return p.split(bm)
}

func (p *PDDProc) split(bm *Bitmap) (*PatternDict, error) {
	pd := &PatternDict{Width: p.Width, Height: p.Height, Patterns: make([]*Bitmap, p.GrayMax+1)}
	for i := range pd.Patterns {
		pat, err := bm.Slice(i*p.Width, 0, p.Width, p.Height)
		if err != nil {
			return nil, err
		}
		pd.Patterns[i] = pat
	}
	return pd, nil
}
