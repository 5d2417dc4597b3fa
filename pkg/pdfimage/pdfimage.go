// Package pdfimage decodes the image XObject filter chains a PDF renderer
// meets around JBIG2 data: outer FlateDecode and LZWDecode stages feeding a
// JBIG2Decode or CCITTFaxDecode image stage.
package pdfimage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/hhrutter/lzw"
	"github.com/klauspost/compress/zlib"
	"golang.org/x/image/ccitt"

	"github.com/rasterpdf/jbig2/pkg/jbig2"
)

// Filter is a PDF stream filter name.
type Filter string

const (
	FlateDecode    Filter = "FlateDecode"
	LZWDecode      Filter = "LZWDecode"
	JBIG2Decode    Filter = "JBIG2Decode"
	CCITTFaxDecode Filter = "CCITTFaxDecode"
)

var (
	errNoImageFilter  = errors.New("pdfimage: filter chain does not end in an image filter")
	errUnknownFilter  = errors.New("pdfimage: unsupported filter")
	errMisplacedImage = errors.New("pdfimage: image filter before the end of the chain")
)

// Params are the decode parameters of one filter stage. Fields not used by
// a filter are ignored.
type Params struct {
	// Columns and Rows give the image size. JBIG2Decode uses them only to
	// size the blank substitute of a failed decode; CCITTFaxDecode detects
	// the height when Rows is 0.
	Columns int
	Rows    int
	// K selects Group 4 when negative and one-dimensional Group 3 when 0.
	// Mixed Group 3 (K > 0) is not supported.
	K                int
	BlackIs1         bool
	EncodedByteAlign bool
	// EarlyChange is the LZWDecode parameter; PDF's default is 1.
	EarlyChange int
	// Globals is the decoded JBIG2Globals stream, GlobalsKey identifies it
	// for the shared cache.
	Globals    []byte
	GlobalsKey string
}

// DefaultParams returns the parameter defaults PDF assigns to absent keys.
func DefaultParams() Params {
	return Params{EarlyChange: 1}
}

// Stage is one entry of a stream's /Filter array with its /DecodeParms.
type Stage struct {
	Filter Filter
	Params Params
}

// Image is a decoded 1-bpc image in PDF sample order: rows MSB first,
// padded to a byte boundary, 0 for black unless a CCITTFaxDecode stage set
// BlackIs1.
type Image struct {
	Width  int
	Height int
	Stride int
	Data   []byte
	// Blank is set when a JBIG2 decode failed and a white image was
	// substituted.
	Blank bool
}

// Options configures a Pipeline.
type Options struct {
	Logger *slog.Logger
	// CacheSize is the number of JBIG2Globals streams kept decoded. Zero
	// selects 2.
	CacheSize int
	// MaxPixels bounds JBIG2 page allocations.
	MaxPixels int
}

// Pipeline decodes image streams. It is safe for concurrent use; the JBIG2
// globals cache is shared by all calls.
type Pipeline struct {
	log       *slog.Logger
	cache     *jbig2.GlobalsCache
	maxPixels int
}

// NewPipeline returns a pipeline configured by opts.
func NewPipeline(opts Options) *Pipeline {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	size := opts.CacheSize
	if size <= 0 {
		size = 2
	}
	return &Pipeline{log: log, cache: jbig2.NewGlobalsCache(size), maxPixels: opts.MaxPixels}
}

// Decode runs data through stages in order. The last stage must be an
// image filter.
func (p *Pipeline) Decode(ctx context.Context, data []byte, stages ...Stage) (*Image, error) {
	if len(stages) == 0 {
		return nil, errNoImageFilter
	}
	for i, st := range stages {
		last := i == len(stages)-1
		switch st.Filter {
		case FlateDecode, LZWDecode:
			if last {
				return nil, errNoImageFilter
			}
			var err error
			if data, err = decodeStream(st, data); err != nil {
				return nil, fmt.Errorf("pdfimage: %s: %w", st.Filter, err)
			}
		case JBIG2Decode, CCITTFaxDecode:
			if !last {
				return nil, errMisplacedImage
			}
			if st.Filter == CCITTFaxDecode {
				return decodeCCITT(data, st.Params)
			}
			return p.decodeJBIG2(ctx, data, st.Params)
		default:
			return nil, fmt.Errorf("%w: %s", errUnknownFilter, st.Filter)
		}
	}
	return nil, errNoImageFilter
}

func decodeStream(st Stage, data []byte) ([]byte, error) {
	var rc io.ReadCloser
	switch st.Filter {
	case FlateDecode:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		rc = zr
	case LZWDecode:
		rc = lzw.NewReader(bytes.NewReader(data), st.Params.EarlyChange == 1)
	}
	defer rc.Close()

	var b bytes.Buffer
	if _, err := io.Copy(&b, rc); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func decodeCCITT(data []byte, params Params) (*Image, error) {
	if params.Columns <= 0 {
		return nil, errors.New("pdfimage: CCITTFaxDecode: missing Columns")
	}
	if params.K > 0 {
		return nil, fmt.Errorf("%w: CCITTFaxDecode with K=%d (mixed 1-D/2-D Group 3)", errUnknownFilter, params.K)
	}
	mode := ccitt.Group3
	if params.K < 0 {
		mode = ccitt.Group4
	}
	rows := params.Rows
	if rows <= 0 {
		rows = ccitt.AutoDetectHeight
	}
	opts := &ccitt.Options{Invert: params.BlackIs1, Align: params.EncodedByteAlign}
	rd := ccitt.NewReader(bytes.NewReader(data), ccitt.MSB, mode, params.Columns, rows, opts)

	var b bytes.Buffer
	if _, err := io.Copy(&b, rd); err != nil {
		return nil, fmt.Errorf("pdfimage: CCITTFaxDecode: %w", err)
	}
	stride := (params.Columns + 7) / 8
	return &Image{
		Width:  params.Columns,
		Height: b.Len() / stride,
		Stride: stride,
		Data:   b.Bytes(),
	}, nil
}

// decodeJBIG2 decodes the first page of an embedded JBIG2 stream. A decode
// failure is logged and replaced by a white image of the declared size, so
// one bad image does not fail the page it sits on.
func (p *Pipeline) decodeJBIG2(ctx context.Context, data []byte, params Params) (*Image, error) {
	bm, err := jbig2.Decode(ctx, data, params.Globals, jbig2.Options{
		Logger:     p.log,
		Cache:      p.cache,
		GlobalsKey: params.GlobalsKey,
		MaxPixels:  p.maxPixels,
	})
	if err == nil {
		return &Image{
			Width:  bm.Width(),
			Height: bm.Height(),
			Stride: bm.Stride(),
			Data:   bm.Data(true),
		}, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	if params.Columns <= 0 || params.Rows <= 0 {
		return nil, fmt.Errorf("pdfimage: JBIG2Decode: %w", err)
	}
	p.log.Warn("jbig2 image replaced by blank", "err", err, "width", params.Columns, "height", params.Rows)
	return blankImage(params.Columns, params.Rows), nil
}

// blankImage returns a white image with zero padding bits.
func blankImage(width, height int) *Image {
	stride := (width + 7) / 8
	row := bytes.Repeat([]byte{0xFF}, stride)
	if r := width % 8; r != 0 {
		row[stride-1] = byte(0xFF << (8 - r))
	}
	return &Image{
		Width:  width,
		Height: height,
		Stride: stride,
		Data:   bytes.Repeat(row, height),
		Blank:  true,
	}
}
