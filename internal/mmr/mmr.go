// Package mmr decodes the Modified Modified READ (ITU-T T.6 Group 4)
// coding used by MMR-flagged JBIG2 regions.
package mmr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCode is returned when the input holds no valid code.
	ErrInvalidCode = errors.New("mmr: invalid code")
	// ErrUnexpectedEOF is returned when a code runs past the data.
	ErrUnexpectedEOF = errors.New("mmr: unexpected end of data")
)

// Mode is a two-dimensional coding mode.
type Mode int

const (
	ModePass Mode = iota
	ModeHorizontal
	ModeV0
	ModeVR1
	ModeVR2
	ModeVR3
	ModeVL1
	ModeVL2
	ModeVL3
	ModeExtension
	ModeEOL
)

// offset returns the a1-b1 displacement of a vertical mode.
func (m Mode) offset() int {
	switch m {
	case ModeVR1:
		return 1
	case ModeVR2:
		return 2
	case ModeVR3:
		return 3
	case ModeVL1:
		return -1
	case ModeVL2:
		return -2
	case ModeVL3:
		return -3
	}
	return 0
}

// eofb is the end-of-facsimile-block pattern: two EOL codes.
const eofb = 0x001001

// Decoder reads codes from a byte slice at an exact bit position so that the
// caller can resume byte-aligned parsing right after the coded data.
type Decoder struct {
	data  []byte
	start int
	pos   int
}

// NewDecoder returns a decoder positioned at byte offset of data.
func NewDecoder(data []byte, offset int) *Decoder {
	d := &Decoder{data: data}
	d.Reset(offset)
	return d
}

// Reset restarts decoding at byte offset.
func (d *Decoder) Reset(offset int) {
	d.start = offset
	d.pos = offset * 8
}

// ByteOffset returns the absolute offset of the first byte not fully
// consumed.
func (d *Decoder) ByteOffset() int {
	return (d.pos + 7) / 8
}

// SkipTo moves to length bytes after the start position.
func (d *Decoder) SkipTo(length int) {
	d.pos = (d.start + length) * 8
}

func (d *Decoder) bit(pos int) uint32 {
	i := pos >> 3
	if i < 0 || i >= len(d.data) {
		return 0
	}
	return uint32(d.data[i]>>(7-uint(pos&7))) & 1
}

// peek returns the next n bits without consuming them. Bits past the end
// read as zero.
func (d *Decoder) peek(n int) uint32 {
	var v uint32
	for i := 0; i < n; i++ {
		v = v<<1 | d.bit(d.pos+i)
	}
	return v
}

// Get24Bits returns the next 24 bits without consuming them.
func (d *Decoder) Get24Bits() uint32 {
	return d.peek(24)
}

func (d *Decoder) exhausted() bool {
	return d.pos >= len(d.data)*8
}

// Get2DCode reads one mode code.
func (d *Decoder) Get2DCode() (Mode, error) {
	if d.exhausted() {
		return 0, ErrUnexpectedEOF
	}
	type modeCode struct {
		length int
		code   uint32
		mode   Mode
	}
	codes := [...]modeCode{
		{1, 0x1, ModeV0},
		{3, 0x3, ModeVR1},
		{3, 0x2, ModeVL1},
		{3, 0x1, ModeHorizontal},
		{4, 0x1, ModePass},
		{6, 0x3, ModeVR2},
		{6, 0x2, ModeVL2},
		{7, 0x3, ModeVR3},
		{7, 0x2, ModeVL3},
		{7, 0x1, ModeExtension},
		{12, 0x1, ModeEOL},
	}
	for _, c := range codes {
		if d.peek(c.length) == c.code {
			d.pos += c.length
			return c.mode, nil
		}
	}
	return 0, fmt.Errorf("%w: 2D code %012b at bit %d", ErrInvalidCode, d.peek(12), d.pos)
}

func (d *Decoder) runCode(t runTable) (int, error) {
	var code uint32
	for length := 1; length <= 13; length++ {
		if d.exhausted() {
			return 0, ErrUnexpectedEOF
		}
		code = code<<1 | d.bit(d.pos)
		d.pos++
		if run, ok := t[codeKey(length, code)]; ok {
			return run, nil
		}
	}
	return 0, fmt.Errorf("%w: run code %013b", ErrInvalidCode, code)
}

// GetWhiteCode reads one white run code, make-up or terminating.
func (d *Decoder) GetWhiteCode() (int, error) { return d.runCode(whiteTable) }

// GetBlackCode reads one black run code, make-up or terminating.
func (d *Decoder) GetBlackCode() (int, error) { return d.runCode(blackTable) }

// run reads make-up codes followed by a terminating code.
func (d *Decoder) run(black bool) (int, error) {
	total := 0
	for {
		var r int
		var err error
		if black {
			r, err = d.GetBlackCode()
		} else {
			r, err = d.GetWhiteCode()
		}
		if err != nil {
			return 0, err
		}
		total += r
		if r < 64 {
			return total, nil
		}
	}
}

// Sink receives the black runs of decoded rows.
type Sink interface {
	SetRun(y, x0, x1 int)
}

// DecodeRows decodes height rows of width pixels into dst. The reference
// line of the first row is white. It reports whether an EOFB followed the
// last row; a found EOFB is consumed.
func (d *Decoder) DecodeRows(width, height int, dst Sink) (bool, error) {
	ref := make([]int, 0, 64)
	cur := make([]int, 0, 64)
	for y := 0; y < height; y++ {
		cur = cur[:0]
		a0, black := -1, false
		ri := 0
		for a0 < width {
			mode, err := d.Get2DCode()
			if err != nil {
				return false, fmt.Errorf("row %d: %w", y, err)
			}

			for ri < len(ref) && ref[ri] <= a0 {
				ri++
			}
			bi := ri
			if bi < len(ref) && (bi&1 == 1) != black {
				bi++
			}
			b1, b2 := width, width
			if bi < len(ref) {
				b1 = ref[bi]
			}
			if bi+1 < len(ref) {
				b2 = ref[bi+1]
			}
			start := max(a0, 0)

			switch mode {
			case ModePass:
				if black {
					dst.SetRun(y, start, b2)
				}
				a0 = b2
			case ModeHorizontal:
				r1, err := d.run(black)
				if err != nil {
					return false, fmt.Errorf("row %d: %w", y, err)
				}
				r2, err := d.run(!black)
				if err != nil {
					return false, fmt.Errorf("row %d: %w", y, err)
				}
				a1 := min(start+r1, width)
				a2 := min(a1+r2, width)
				if black {
					dst.SetRun(y, start, a1)
				} else {
					dst.SetRun(y, a1, a2)
				}
				cur = addChange(cur, a1, width)
				cur = addChange(cur, a2, width)
				a0 = a2
			case ModeV0, ModeVR1, ModeVR2, ModeVR3, ModeVL1, ModeVL2, ModeVL3:
				a1 := b1 + mode.offset()
				if a1 < start || a1 > width {
					return false, fmt.Errorf("%w: row %d: vertical code to %d from %d", ErrInvalidCode, y, a1, a0)
				}
				if black {
					dst.SetRun(y, start, a1)
				}
				cur = addChange(cur, a1, width)
				a0 = a1
				black = !black
			default:
				return false, fmt.Errorf("%w: row %d: unsupported mode %d", ErrInvalidCode, y, mode)
			}
		}
		ref, cur = cur, ref
	}

	if d.Get24Bits() == eofb {
		d.pos += 24
		return true, nil
	}
	return false, nil
}

// addChange records a colour change at pos. Two changes at the same
// position cancel out.
func addChange(changes []int, pos, width int) []int {
	if pos >= width {
		return changes
	}
	if n := len(changes); n > 0 && changes[n-1] == pos {
		return changes[:n-1]
	}
	return append(changes, pos)
}
