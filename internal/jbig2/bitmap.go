package jbig2

import (
	"fmt"
)

// ComposeOp is a combination operator used when compositing bitmaps.
type ComposeOp int

const (
	ComposeOR ComposeOp = iota
	ComposeAND
	ComposeXOR
	ComposeXNOR
	ComposeReplace
)

func (op ComposeOp) String() string {
	switch op {
	case ComposeOR:
		return "OR"
	case ComposeAND:
		return "AND"
	case ComposeXOR:
		return "XOR"
	case ComposeXNOR:
		return "XNOR"
	case ComposeReplace:
		return "REPLACE"
	default:
		return fmt.Sprintf("ComposeOp(%d)", int(op))
	}
}

// Bitmap is a packed 1-bpp image. Pixel (x, y) is bit y*width+x of a word
// array, most significant bit first; rows are not padded. A set bit is
// black.
type Bitmap struct {
	width  int
	height int
	words  []uint64
}

// NewBitmap allocates a white bitmap. Dimensions are validated here once so
// that pixel access does not need to guard against arena overflow.
func NewBitmap(width, height int) (*Bitmap, error) {
	if err := checkBitmapSize(width, height, MaxImagePixels); err != nil {
		return nil, err
	}
	return &Bitmap{
		width:  width,
		height: height,
		words:  make([]uint64, wordsFor(width, height)),
	}, nil
}

func checkBitmapSize(width, height, limit int) error {
	if width < 0 || height < 0 {
		return fmt.Errorf("%w: bitmap %dx%d", errInvalidRegionDimensions, width, height)
	}
	if width > limit || (width != 0 && height > limit/width) {
		return fmt.Errorf("%w: bitmap %dx%d exceeds %d pixels", errInvalidRegionDimensions, width, height, limit)
	}
	return nil
}

func wordsFor(width, height int) int {
	return (width*height + 63) / 64
}

// BitmapFromPacked builds a bitmap from MSB-first rows padded to a byte
// boundary, the layout Data produces.
func BitmapFromPacked(width, height int, data []byte) (*Bitmap, error) {
	b, err := NewBitmap(width, height)
	if err != nil {
		return nil, err
	}
	stride := (width + 7) / 8
	if len(data) < stride*height {
		return nil, fmt.Errorf("%w: packed data has %d bytes, need %d", ErrStreamExhausted, len(data), stride*height)
	}
	for y := 0; y < height; y++ {
		row := data[y*stride:]
		for k := 0; k*8 < width; k++ {
			n := min(8, width-k*8)
			b.writeBits(y*width+k*8, n, uint64(row[k]>>(8-n)))
		}
	}
	return b, nil
}

// Width returns the width in pixels.
func (b *Bitmap) Width() int { return b.width }

// Height returns the height in pixels.
func (b *Bitmap) Height() int { return b.height }

// Clear sets every pixel to defaultPixel.
func (b *Bitmap) Clear(defaultPixel int) {
	fill := uint64(0)
	if defaultPixel != 0 {
		fill = ^uint64(0)
	}
	for i := range b.words {
		b.words[i] = fill
	}
}

// Get returns the pixel at (x, y); pixels outside the bitmap read as 0.
func (b *Bitmap) Get(x, y int) int {
	if x < 0 || y < 0 || x >= b.width || y >= b.height {
		return 0
	}
	i := y*b.width + x
	return int(b.words[i>>6]>>(63-uint(i&63))) & 1
}

// Set writes the pixel at (x, y); writes outside the bitmap are dropped.
func (b *Bitmap) Set(x, y, v int) {
	if x < 0 || y < 0 || x >= b.width || y >= b.height {
		return
	}
	i := y*b.width + x
	mask := uint64(1) << (63 - uint(i&63))
	if v != 0 {
		b.words[i>>6] |= mask
	} else {
		b.words[i>>6] &^= mask
	}
}

// readBits returns n (1..64) bits starting at bit index i, right-aligned.
func (b *Bitmap) readBits(i, n int) uint64 {
	w, off := i>>6, uint(i&63)
	v := b.words[w] << off
	if int(off)+n > 64 {
		v |= b.words[w+1] >> (64 - off)
	}
	return v >> (64 - uint(n))
}

// writeBits stores the low n (1..64) bits of v at bit index i.
func (b *Bitmap) writeBits(i, n int, v uint64) {
	w, off := i>>6, uint(i&63)
	if int(off)+n <= 64 {
		shift := 64 - off - uint(n)
		mask := ^uint64(0) >> (64 - uint(n)) << shift
		b.words[w] = b.words[w]&^mask | v<<shift&mask
		return
	}
	rest := uint(n) - (64 - off)
	mask := ^uint64(0) >> off
	b.words[w] = b.words[w]&^mask | v>>rest&mask
	mask = ^uint64(0) << (64 - rest)
	b.words[w+1] = b.words[w+1]&^mask | v<<(64-rest)
}

func (b *Bitmap) fillBits(i, n int, v uint64) {
	for n > 0 {
		k := min(n, 64)
		b.writeBits(i, k, v)
		i += k
		n -= k
	}
}

// SetRun sets pixels [x0, x1) of row y to 1.
func (b *Bitmap) SetRun(y, x0, x1 int) {
	x0, x1 = max(x0, 0), min(x1, b.width)
	if y < 0 || y >= b.height || x0 >= x1 {
		return
	}
	b.fillBits(y*b.width+x0, x1-x0, ^uint64(0))
}

// CopyRow duplicates row src into row dst.
func (b *Bitmap) CopyRow(dst, src int) {
	if dst == src || dst < 0 || src < 0 || dst >= b.height || src >= b.height {
		return
	}
	for x := 0; x < b.width; x += 64 {
		n := min(64, b.width-x)
		b.writeBits(dst*b.width+x, n, b.readBits(src*b.width+x, n))
	}
}

// Expand grows the bitmap to newHeight rows filled with defaultPixel. The
// width and the existing rows are preserved.
func (b *Bitmap) Expand(newHeight, defaultPixel int) error {
	if newHeight <= b.height {
		return nil
	}
	if err := checkBitmapSize(b.width, newHeight, MaxImagePixels); err != nil {
		return err
	}
	words := make([]uint64, wordsFor(b.width, newHeight))
	copy(words, b.words)
	old := b.width * b.height
	b.words = words
	b.height = newHeight
	fill := uint64(0)
	if defaultPixel != 0 {
		fill = ^uint64(0)
	}
	b.fillBits(old, b.width*newHeight-old, fill)
	return nil
}

// Slice returns a copy of the w x h rectangle at (x, y). The rectangle must
// lie within the bitmap.
func (b *Bitmap) Slice(x, y, w, h int) (*Bitmap, error) {
	if x < 0 || y < 0 || w < 0 || h < 0 || x+w > b.width || y+h > b.height {
		return nil, decodeFailure("slice %dx%d at (%d,%d) outside %dx%d bitmap", w, h, x, y, b.width, b.height)
	}
	out, err := NewBitmap(w, h)
	if err != nil {
		return nil, err
	}
	for r := 0; r < h; r++ {
		for c := 0; c < w; c += 64 {
			n := min(64, w-c)
			out.writeBits(r*w+c, n, b.readBits((y+r)*b.width+x+c, n))
		}
	}
	return out, nil
}

// Combine composites src into b with its top-left corner at (x, y). Rows
// and columns falling outside b are clipped silently.
func (b *Bitmap) Combine(src *Bitmap, x, y int, op ComposeOp) {
	if src == nil {
		return
	}
	sx, sy := max(0, -x), max(0, -y)
	dx, dy := max(0, x), max(0, y)
	cols := min(src.width-sx, b.width-dx)
	rows := min(src.height-sy, b.height-dy)
	if cols <= 0 || rows <= 0 {
		return
	}
	for r := 0; r < rows; r++ {
		si := (sy+r)*src.width + sx
		di := (dy+r)*b.width + dx
		for c := 0; c < cols; c += 64 {
			n := min(64, cols-c)
			s := src.readBits(si+c, n)
			if op != ComposeReplace {
				s = applyCompose(op, b.readBits(di+c, n), s)
			}
			b.writeBits(di+c, n, s)
		}
	}
}

func applyCompose(op ComposeOp, dst, src uint64) uint64 {
	switch op {
	case ComposeAND:
		return dst & src
	case ComposeXOR:
		return dst ^ src
	case ComposeXNOR:
		return ^(dst ^ src)
	case ComposeReplace:
		return src
	default:
		return dst | src
	}
}

// Data serializes the bitmap as MSB-first rows padded to a byte boundary.
// With switchPixelColor every pixel bit is inverted; padding bits are
// always zero.
func (b *Bitmap) Data(switchPixelColor bool) []byte {
	stride := (b.width + 7) / 8
	out := make([]byte, stride*b.height)
	for y := 0; y < b.height; y++ {
		row := out[y*stride : (y+1)*stride]
		for k := range row {
			n := min(8, b.width-k*8)
			v := byte(b.readBits(y*b.width+k*8, n) << (8 - n))
			if switchPixelColor {
				v = ^v & byte(0xFF<<(8-n))
			}
			row[k] = v
		}
	}
	return out
}

// Copy returns a deep copy.
func (b *Bitmap) Copy() *Bitmap {
	return &Bitmap{width: b.width, height: b.height, words: append([]uint64(nil), b.words...)}
}

// Equal reports whether o has the same size and pixels.
func (b *Bitmap) Equal(o *Bitmap) bool {
	if b == nil || o == nil {
		return b == o
	}
	if b.width != o.width || b.height != o.height {
		return false
	}
	total := b.width * b.height
	for i := 0; i < total; i += 64 {
		n := min(64, total-i)
		if b.readBits(i, n) != o.readBits(i, n) {
			return false
		}
	}
	return true
}

func (b *Bitmap) String() string {
	return fmt.Sprintf("Bitmap(%dx%d)", b.width, b.height)
}
