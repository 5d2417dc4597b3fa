package jbig2

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// minSegmentSize is the smallest segment header that carries a data
// length. Fewer trailing bytes than this end a stream.
const minSegmentSize = 11

// State is the position of a Context in its decode lifecycle.
type State int

const (
	StateNotStarted State = iota
	StateReadingHeader
	StateDecodingSegments
	StateComplete
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

// Config configures a Context.
type Config struct {
	// Logger receives diagnostics. Nil discards them.
	Logger *slog.Logger
	// Cache, with a non-empty GlobalsKey, shares decoded globals between
	// contexts.
	Cache      *GlobalsCache
	GlobalsKey string
	// MaxPixels bounds the size of a page bitmap. Zero selects
	// MaxImagePixels.
	MaxPixels int
}

// Context decodes one JBIG2 image: an optional globals stream followed by
// the image's own stream. It owns the segment registries, the shared bit
// reader and the decoders' context tables, and must not be used by more
// than one goroutine.
type Context struct {
	cfg   Config
	log   *slog.Logger
	state State

	r      *BitReader
	arith  *ArithDecoder
	header *FileHeader

	globals  *Globals
	segments map[uint32]*Segment
	order    []*Segment

	pages   map[uint32]*Page
	current *Page
}

// NewContext returns a context ready for one call to Decode.
func NewContext(cfg Config) *Context {
	if cfg.MaxPixels <= 0 {
		cfg.MaxPixels = MaxImagePixels
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Context{
		cfg:      cfg,
		log:      log,
		segments: make(map[uint32]*Segment),
		pages:    make(map[uint32]*Page),
	}
}

// State reports where the context is in its lifecycle.
func (c *Context) State() State { return c.state }

// Header returns the standalone file header, or nil for an embedded stream.
func (c *Context) Header() *FileHeader { return c.header }

// Decode decodes globals, when non-empty, and then data. Cancellation of
// ctx is observed between segments. Any fatal error leaves the context in
// StateFailed.
func (c *Context) Decode(ctx context.Context, data, globals []byte) error {
	if c.state != StateNotStarted {
		return fmt.Errorf("jbig2: context already used (state %s)", c.state)
	}
	c.state = StateReadingHeader
	if err := c.decode(ctx, data, globals); err != nil {
		c.state = StateFailed
		return err
	}
	c.state = StateComplete
	return nil
}

func (c *Context) decode(ctx context.Context, data, globals []byte) error {
	if err := checkStreamSize("stream", data); err != nil {
		return fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	if err := checkStreamSize("globals", globals); err != nil {
		return fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	if len(globals) > 0 {
		g, err := c.loadGlobals(ctx, globals)
		if err != nil {
			return err
		}
		c.globals = g
	}

	c.r = NewBitReader(data)
	c.arith = NewArithDecoder(c.r)
	if hasFileSignature(data) {
		h, err := parseFileHeader(c.r)
		if err != nil {
			return fmt.Errorf("%w: file header: %w", ErrDecodeFailed, err)
		}
		c.header = h
	}
	c.state = StateDecodingSegments
	if c.header != nil && !c.header.Sequential() {
		return c.decodeRandomAccess(ctx)
	}
	return c.decodeSequential(ctx)
}

// loadGlobals returns the globals from the cache or decodes them with a
// separate context and freezes the result.
func (c *Context) loadGlobals(ctx context.Context, data []byte) (*Globals, error) {
	cacheable := c.cfg.Cache != nil && c.cfg.GlobalsKey != ""
	if cacheable {
		if g, ok := c.cfg.Cache.Get(c.cfg.GlobalsKey); ok {
			c.log.Debug("jbig2 globals cache hit", "key", c.cfg.GlobalsKey)
			return g, nil
		}
	}
	gc := NewContext(Config{Logger: c.log, MaxPixels: c.cfg.MaxPixels})
	if err := gc.Decode(ctx, data, nil); err != nil {
		return nil, err
	}
	g := &Globals{segments: gc.segments, order: gc.order}
	if cacheable {
		c.cfg.Cache.Put(c.cfg.GlobalsKey, g)
	}
	return g, nil
}

func (c *Context) remaining() int { return c.r.Len() - c.r.Offset() }

func (c *Context) decodeSequential(ctx context.Context) error {
	for c.remaining() >= minSegmentSize || c.eofHeaderFits() {
		if err := ctx.Err(); err != nil {
			return err
		}
		seg, err := parseSegmentHeader(c.r)
		if err != nil {
			return fmt.Errorf("%w: segment header at offset %d: %w", ErrDecodeFailed, c.r.Offset(), err)
		}
		if err := c.decodeSegment(seg); err != nil {
			return err
		}
		if seg.Type() == SegmentEndOfFile {
			break
		}
		if err := c.r.SetOffset(seg.DataOffset + int(seg.DataLength)); err != nil {
			return &SegmentError{Number: seg.Number, Type: seg.Type(), Err: err}
		}
	}
	return nil
}

// eofHeaderFits reports whether the remaining bytes could hold an
// end-of-file segment header without its data length.
func (c *Context) eofHeaderFits() bool {
	n := c.remaining()
	if n < 7 {
		return false
	}
	t, _ := c.r.PeekByte(4)
	return SegmentFlags(t).Type() == SegmentEndOfFile
}

// decodeRandomAccess reads every header up to the end-of-file segment,
// then decodes the payloads, which follow the headers in the same order.
func (c *Context) decodeRandomAccess(ctx context.Context) error {
	var segs []*Segment
	for c.remaining() >= minSegmentSize || c.eofHeaderFits() {
		seg, err := parseSegmentHeader(c.r)
		if err != nil {
			return fmt.Errorf("%w: segment header at offset %d: %w", ErrDecodeFailed, c.r.Offset(), err)
		}
		if seg.DataLength == unknownDataLength {
			return &SegmentError{Number: seg.Number, Type: seg.Type(),
				Err: malformedHeader("unknown data length in random-access organization")}
		}
		segs = append(segs, seg)
		if seg.Type() == SegmentEndOfFile {
			break
		}
	}
	offset := c.r.Offset()
	for _, seg := range segs {
		seg.DataOffset = offset
		offset += int(seg.DataLength)
	}
	for _, seg := range segs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.decodeSegment(seg); err != nil {
			return err
		}
	}
	return nil
}

// decodeSegment positions the reader on the payload, dispatches it and
// registers the segment.
func (c *Context) decodeSegment(seg *Segment) error {
	c.log.Debug("jbig2 segment", "number", seg.Number, "type", seg.Type().String(),
		"page", seg.PageAssociation, "length", int64(seg.DataLength))

	fail := func(err error) error {
		return &SegmentError{Number: seg.Number, Type: seg.Type(), Err: err}
	}
	if seg.DataLength == unknownDataLength && seg.Type() != SegmentImmediateGenericRegion {
		return fail(malformedHeader("unknown data length on %s", seg.Type()))
	}
	if seg.DataLength != unknownDataLength && seg.DataOffset+int(seg.DataLength) > c.r.Len() {
		return fail(fmt.Errorf("%w: segment data needs %d bytes, %d left",
			ErrStreamExhausted, seg.DataLength, c.r.Len()-seg.DataOffset))
	}
	if err := c.r.SetOffset(seg.DataOffset); err != nil {
		return fail(err)
	}

	h, ok := segmentHandlers[seg.Type()]
	if !ok {
		c.log.Warn("jbig2 segment skipped", "number", seg.Number, "type", seg.Type().String(),
			"err", ErrUnsupportedSegmentType)
	} else if err := h.decode(c, seg); err != nil {
		return fail(err)
	}
	c.register(seg)
	return nil
}

// register adds seg to the registry. A reused number keeps the first
// segment so that lookups are first-match.
func (c *Context) register(seg *Segment) {
	c.order = append(c.order, seg)
	if _, dup := c.segments[seg.Number]; dup || c.globals.Segment(seg.Number) != nil {
		c.log.Warn("jbig2 duplicate segment number", "number", seg.Number)
		return
	}
	c.segments[seg.Number] = seg
}

// FindSegment returns the first segment registered under number, looking
// at the globals before the image's own segments.
func (c *Context) FindSegment(number uint32) *Segment {
	if seg := c.globals.Segment(number); seg != nil {
		return seg
	}
	return c.segments[number]
}

// FindBitmap returns the stored bitmap of an intermediate region segment.
func (c *Context) FindBitmap(number uint32) *Bitmap {
	if seg := c.FindSegment(number); seg != nil {
		return seg.Bitmap
	}
	return nil
}

// Segments returns the image's own segments in decode order.
func (c *Context) Segments() []*Segment { return c.order }

// Globals returns the globals the image was decoded against.
func (c *Context) Globals() *Globals { return c.globals }

// Pages returns the page numbers seen, in ascending order.
func (c *Context) Pages() []uint32 {
	out := make([]uint32, 0, len(c.pages))
	for n := range c.pages {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PageBitmap returns the bitmap of page n, counted from 1 in page order.
// An embedded stream has exactly one page.
func (c *Context) PageBitmap(n int) (*Bitmap, error) {
	pages := c.Pages()
	if n < 1 || n > len(pages) {
		return nil, fmt.Errorf("jbig2: page %d not decoded (%d pages)", n, len(pages))
	}
	return c.pages[pages[n-1]].Bitmap, nil
}

// referred returns the segments seg refers to, in header order.
func (c *Context) referred(seg *Segment) ([]*Segment, error) {
	out := make([]*Segment, 0, len(seg.ReferredTo))
	for _, n := range seg.ReferredTo {
		ref := c.FindSegment(n)
		if ref == nil {
			return nil, fmt.Errorf("%w: segment %d", errMissingReferredSegment, n)
		}
		out = append(out, ref)
	}
	return out, nil
}

// pageFor returns the page a region segment is associated with.
func (c *Context) pageFor(seg *Segment) (*Page, error) {
	if p, ok := c.pages[seg.PageAssociation]; ok {
		return p, nil
	}
	if c.current != nil {
		return c.current, nil
	}
	return nil, decodeFailure("%s has no page", seg.Type())
}

// storeRegion keeps an intermediate region's bitmap for later refinement
// or composes an immediate one into its page.
func (c *Context) storeRegion(seg *Segment, ri *RegionInfo, bm *Bitmap) error {
	seg.Region = ri
	if seg.Type().IsIntermediate() {
		seg.Bitmap = bm
		return nil
	}
	p, err := c.pageFor(seg)
	if err != nil {
		return err
	}
	return p.compose(*ri, bm)
}
