package jbig2

// RegionInfo is the 17-byte region segment information field shared by
// generic, refinement, text and halftone region segments.
type RegionInfo struct {
	Width  int32
	Height int32
	X      int32
	Y      int32
	Flags  uint8
}

// ComposeOp returns the external combination operator carried in the low
// three bits of the region flags.
func (ri RegionInfo) ComposeOp() ComposeOp {
	return ComposeOp(ri.Flags & 0x07)
}

const (
	// MaxReferredSegmentCount bounds the referred-to list of a single segment.
	MaxReferredSegmentCount = 1 << 16
	// MaxExportSymbols is the maximum number of symbols exported from a dictionary.
	MaxExportSymbols = 65535
	// MaxNewSymbols is the maximum number of symbols decoded by one dictionary.
	MaxNewSymbols = 65535
	// MaxPatterns is the upper bound for pattern dictionary sizes.
	MaxPatterns = 65535
	// MaxImageSize is an upper limit on either bitmap dimension.
	MaxImageSize = 65535
	// MaxImagePixels is the default allocation guard for a single bitmap.
	MaxImagePixels = 1 << 30
)

// Reference corners of a text region.
const (
	CornerBottomLeft  = 0
	CornerTopLeft     = 1
	CornerBottomRight = 2
	CornerTopRight    = 3
)
