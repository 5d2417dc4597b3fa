package jbig2

const unknownPageHeight = ^uint32(0)

// PageInfo is the payload of a page information segment (T.88 7.4.8).
type PageInfo struct {
	Width         uint32
	Height        uint32
	ResolutionX   uint32
	ResolutionY   uint32
	Flags         uint8
	Striped       bool
	MaxStripeSize uint16
}

// DefaultPixel is the initial value of every page pixel.
func (p PageInfo) DefaultPixel() int { return int(p.Flags>>2) & 1 }

// DefaultOp is the page default combination operator.
func (p PageInfo) DefaultOp() ComposeOp { return ComposeOp(p.Flags >> 3 & 0x03) }

// OpOverridden reports whether regions may use their own operator.
func (p PageInfo) OpOverridden() bool { return p.Flags&0x40 != 0 }

// HeightUnknown reports a page whose height is fixed by end-of-stripe
// segments and region placement.
func (p PageInfo) HeightUnknown() bool { return p.Height == unknownPageHeight }

func parsePageInfo(r *BitReader) (*PageInfo, error) {
	var p PageInfo
	var err error
	for _, f := range []*uint32{&p.Width, &p.Height, &p.ResolutionX, &p.ResolutionY} {
		if *f, err = r.ReadUint32(); err != nil {
			return nil, err
		}
	}
	if p.Flags, err = r.ReadByte(); err != nil {
		return nil, err
	}
	striping, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	p.Striped = striping&0x8000 != 0
	p.MaxStripeSize = striping & 0x7fff
	if p.Width > MaxImageSize || (!p.HeightUnknown() && p.Height > MaxImageSize) {
		return nil, decodeFailure("page %dx%d too large", p.Width, p.Height)
	}
	return &p, nil
}

// Page is a page under construction.
type Page struct {
	Number uint32
	Info   PageInfo
	Bitmap *Bitmap
}

func newPage(number uint32, info *PageInfo, maxPixels int) (*Page, error) {
	height := int(info.Height)
	if info.HeightUnknown() {
		height = 0
		if info.Striped {
			height = int(info.MaxStripeSize)
		}
	}
	if err := checkBitmapSize(int(info.Width), height, maxPixels); err != nil {
		return nil, err
	}
	bm, err := NewBitmap(int(info.Width), height)
	if err != nil {
		return nil, err
	}
	bm.Clear(info.DefaultPixel())
	return &Page{Number: number, Info: *info, Bitmap: bm}, nil
}

// ensureHeight grows a page of unknown height so that rows [0, h) exist.
func (p *Page) ensureHeight(h int) error {
	if !p.Info.HeightUnknown() || h <= p.Bitmap.Height() {
		return nil
	}
	return p.Bitmap.Expand(h, p.Info.DefaultPixel())
}

// compose places a region bitmap into the page. The region's operator is
// honoured only when the page allows overriding its default.
func (p *Page) compose(ri RegionInfo, bm *Bitmap) error {
	if err := p.ensureHeight(int(ri.Y) + bm.Height()); err != nil {
		return err
	}
	op := p.Info.DefaultOp()
	if p.Info.OpOverridden() {
		op = ri.ComposeOp()
	}
	p.Bitmap.Combine(bm, int(ri.X), int(ri.Y), op)
	return nil
}
