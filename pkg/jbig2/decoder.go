package jbig2

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rasterpdf/jbig2/internal/jbig2"
)

// Errors surfaced by decoding. A failed decode matches ErrDecodeFailed and,
// when known, one of the causes below.
var (
	ErrDecodeFailed           = jbig2.ErrDecodeFailed
	ErrStreamExhausted        = jbig2.ErrStreamExhausted
	ErrMalformedSegmentHeader = jbig2.ErrMalformedSegmentHeader
	ErrUnsupportedSegmentType = jbig2.ErrUnsupportedSegmentType
	ErrDecodeFailure          = jbig2.ErrDecodeFailure
	errEmptySource            = errors.New("jbig2: empty source data")
)

// GlobalsCache shares decoded JBIG2Globals streams between decoders.
type GlobalsCache = jbig2.GlobalsCache

// NewGlobalsCache returns a cache holding up to size globals streams.
func NewGlobalsCache(size int) *GlobalsCache { return jbig2.NewGlobalsCache(size) }

// Options configures JBIG2 decoding behavior.
type Options struct {
	// Logger receives decode diagnostics. Nil discards them.
	Logger *slog.Logger
	// Cache, when set together with GlobalsKey, reuses decoded globals.
	Cache *GlobalsCache
	// GlobalsKey identifies the globals stream, e.g. by PDF object number.
	GlobalsKey string
	// MaxPixels bounds page allocations. Zero selects the default.
	MaxPixels int
}

// Decoder decodes a single JBIG2 image.
type Decoder struct {
	ctx *jbig2.Context
}

// New creates a decoder with the provided options.
func New(opts Options) *Decoder {
	return &Decoder{ctx: jbig2.NewContext(jbig2.Config{
		Logger:     opts.Logger,
		Cache:      opts.Cache,
		GlobalsKey: opts.GlobalsKey,
		MaxPixels:  opts.MaxPixels,
	})}
}

// Decode decodes data, an embedded or standalone JBIG2 stream, against
// the optional globals stream. A decoder accepts one call.
func (d *Decoder) Decode(ctx context.Context, data, globals []byte) error {
	if len(data) == 0 {
		return errEmptySource
	}
	return d.ctx.Decode(ctx, data, globals)
}

// State reports where the decoder is in its lifecycle.
func (d *Decoder) State() State { return State(d.ctx.State()) }

// PageBitmap returns page n, counted from 1. Embedded streams have one page.
func (d *Decoder) PageBitmap(n int) (*Bitmap, error) {
	bm, err := d.ctx.PageBitmap(n)
	if err != nil {
		return nil, err
	}
	return &Bitmap{bm: bm}, nil
}

// Pages returns the number of pages decoded.
func (d *Decoder) Pages() int { return len(d.ctx.Pages()) }

// FindSegment returns the first segment with the given number, looking in
// the globals first.
func (d *Decoder) FindSegment(number uint32) *Segment {
	seg := d.ctx.FindSegment(number)
	if seg == nil {
		return nil
	}
	return &Segment{seg: seg}
}

// FindBitmap returns the stored bitmap of an intermediate region.
func (d *Decoder) FindBitmap(number uint32) *Bitmap {
	bm := d.ctx.FindBitmap(number)
	if bm == nil {
		return nil
	}
	return &Bitmap{bm: bm}
}

// Segments returns the image's own segments in decode order.
func (d *Decoder) Segments() []*Segment {
	internal := d.ctx.Segments()
	segments := make([]*Segment, len(internal))
	for i, seg := range internal {
		segments[i] = &Segment{seg: seg}
	}
	return segments
}

// Decode is a convenience that decodes the first page of data.
func Decode(ctx context.Context, data, globals []byte, opts Options) (*Bitmap, error) {
	d := New(opts)
	if err := d.Decode(ctx, data, globals); err != nil {
		return nil, err
	}
	return d.PageBitmap(1)
}

// State is the lifecycle position of a Decoder.
type State int

const (
	// StateNotStarted indicates Decode has not been called.
	StateNotStarted State = iota
	// StateReadingHeader indicates the file header or globals are being read.
	StateReadingHeader
	// StateDecodingSegments indicates segments are being decoded.
	StateDecodingSegments
	// StateComplete indicates decoding finished successfully.
	StateComplete
	// StateFailed indicates decoding stopped on an error.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NotStarted"
	case StateReadingHeader:
		return "ReadingHeader"
	case StateDecodingSegments:
		return "DecodingSegments"
	case StateComplete:
		return "Complete"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Bitmap is a decoded 1-bpp image.
type Bitmap struct {
	bm *jbig2.Bitmap
}

// Width returns the bitmap width in pixels.
func (b *Bitmap) Width() int {
	if b == nil || b.bm == nil {
		return 0
	}
	return b.bm.Width()
}

// Height returns the bitmap height in pixels.
func (b *Bitmap) Height() int {
	if b == nil || b.bm == nil {
		return 0
	}
	return b.bm.Height()
}

// Stride returns the number of bytes per row returned by Data.
func (b *Bitmap) Stride() int { return (b.Width() + 7) / 8 }

// Data returns the rows packed MSB first, each padded to a byte boundary
// with zero bits. With switchPixelColor set every pixel is inverted, which
// gives the PDF convention of 0 for black.
func (b *Bitmap) Data(switchPixelColor bool) []byte {
	if b == nil || b.bm == nil {
		return nil
	}
	return b.bm.Data(switchPixelColor)
}

// At reports pixel (x, y), 1 for black. Pixels outside read as 0.
func (b *Bitmap) At(x, y int) int {
	if b == nil || b.bm == nil {
		return 0
	}
	return b.bm.Get(x, y)
}

// Segment represents a decoded JBIG2 segment.
type Segment struct {
	seg *jbig2.Segment
}

// Number returns the segment number.
func (seg *Segment) Number() uint32 {
	if seg == nil || seg.seg == nil {
		return 0
	}
	return seg.seg.Number
}

// Type returns the segment type code.
func (seg *Segment) Type() uint8 {
	if seg == nil || seg.seg == nil {
		return 0
	}
	return uint8(seg.seg.Type())
}

// TypeName returns a readable name for the segment type.
func (seg *Segment) TypeName() string {
	if seg == nil || seg.seg == nil {
		return ""
	}
	return seg.seg.Type().String()
}

// PageAssociation returns the page the segment belongs to, 0 for globals.
func (seg *Segment) PageAssociation() uint32 {
	if seg == nil || seg.seg == nil {
		return 0
	}
	return seg.seg.PageAssociation
}

// DataLength returns the length of the segment data.
func (seg *Segment) DataLength() uint32 {
	if seg == nil || seg.seg == nil {
		return 0
	}
	return seg.seg.DataLength
}

// Bitmap returns the stored bitmap of an intermediate region segment.
func (seg *Segment) Bitmap() *Bitmap {
	if seg == nil || seg.seg == nil || seg.seg.Bitmap == nil {
		return nil
	}
	return &Bitmap{bm: seg.seg.Bitmap}
}

// NumSymbols returns the number of symbols a symbol dictionary exports.
func (seg *Segment) NumSymbols() int {
	if seg == nil || seg.seg == nil {
		return 0
	}
	return seg.seg.SymbolDict.NumSymbols()
}

// Symbol returns exported symbol i of a symbol dictionary segment.
func (seg *Segment) Symbol(i int) *Bitmap {
	if seg == nil || seg.seg == nil {
		return nil
	}
	bm := seg.seg.SymbolDict.Symbol(i)
	if bm == nil {
		return nil
	}
	return &Bitmap{bm: bm}
}
