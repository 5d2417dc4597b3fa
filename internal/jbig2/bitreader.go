package jbig2

import "fmt"

// maxStreamSize bounds each buffer a Context accepts.
var maxStreamSize = 256 * 1024 * 1024

func checkStreamSize(what string, data []byte) error {
	if len(data) > maxStreamSize {
		return decodeFailure("%s of %d bytes exceeds the %d byte limit", what, len(data), maxStreamSize)
	}
	return nil
}

// BitReader is an MSB-first bit and byte cursor over an in-memory buffer.
// It is owned by one decode invocation and shared by all entropy decoders
// of that invocation.
type BitReader struct {
	buf    []byte
	byteIx int
	bitIx  uint
}

// NewBitReader returns a reader positioned at the start of data.
func NewBitReader(data []byte) *BitReader {
	r := &BitReader{}
	r.Reset(data)
	return r
}

// Reset repositions the reader at the start of a new buffer.
func (r *BitReader) Reset(data []byte) {
	r.buf = data
	r.byteIx = 0
	r.bitIx = 0
}

func (r *BitReader) exhausted(what string) error {
	return fmt.Errorf("%w: %s at byte %d of %d", ErrStreamExhausted, what, r.byteIx, len(r.buf))
}

// ReadBit returns the next bit.
func (r *BitReader) ReadBit() (uint32, error) {
	if r.byteIx >= len(r.buf) {
		return 0, r.exhausted("read bit")
	}
	bit := uint32(r.buf[r.byteIx]>>(7-r.bitIx)) & 1
	r.bitIx++
	if r.bitIx == 8 {
		r.bitIx = 0
		r.byteIx++
	}
	return bit, nil
}

// ReadBits reads n bits (n <= 32) as an unsigned big-endian value. It fails
// without consuming anything if fewer than n bits remain.
func (r *BitReader) ReadBits(n uint) (uint32, error) {
	if n > 32 {
		return 0, fmt.Errorf("jbig2: cannot read %d bits at once", n)
	}
	if r.bitsLeft() < int(n) {
		return 0, r.exhausted(fmt.Sprintf("read %d bits", n))
	}
	var v uint32
	for n > 0 {
		avail := 8 - r.bitIx
		take := avail
		if n < take {
			take = n
		}
		cur := uint32(r.buf[r.byteIx]>>(avail-take)) & (1<<take - 1)
		v = v<<take | cur
		n -= take
		r.bitIx += take
		if r.bitIx == 8 {
			r.bitIx = 0
			r.byteIx++
		}
	}
	return v, nil
}

// ReadByte returns the next whole byte. Partially consumed bits of the
// current byte are discarded first.
func (r *BitReader) ReadByte() (byte, error) {
	r.ConsumeRemainingBits()
	if r.byteIx >= len(r.buf) {
		return 0, r.exhausted("read byte")
	}
	b := r.buf[r.byteIx]
	r.byteIx++
	return b, nil
}

// ReadUint16 reads a big-endian 16-bit value.
func (r *BitReader) ReadUint16() (uint16, error) {
	r.ConsumeRemainingBits()
	if r.byteIx+2 > len(r.buf) {
		return 0, r.exhausted("read uint16")
	}
	v := uint16(r.buf[r.byteIx])<<8 | uint16(r.buf[r.byteIx+1])
	r.byteIx += 2
	return v, nil
}

// ReadUint32 reads a big-endian 32-bit value.
func (r *BitReader) ReadUint32() (uint32, error) {
	r.ConsumeRemainingBits()
	if r.byteIx+4 > len(r.buf) {
		return 0, r.exhausted("read uint32")
	}
	b := r.buf[r.byteIx : r.byteIx+4]
	r.byteIx += 4
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// ReadInt8 reads a signed byte, as used by adaptive template offsets.
func (r *BitReader) ReadInt8() (int8, error) {
	b, err := r.ReadByte()
	return int8(b), err
}

// ReadBytes returns the next n bytes without copying.
func (r *BitReader) ReadBytes(n int) ([]byte, error) {
	r.ConsumeRemainingBits()
	if n < 0 || r.byteIx+n > len(r.buf) {
		return nil, r.exhausted(fmt.Sprintf("read %d bytes", n))
	}
	b := r.buf[r.byteIx : r.byteIx+n]
	r.byteIx += n
	return b, nil
}

// PeekByte returns the byte at the given distance from the byte cursor.
func (r *BitReader) PeekByte(ahead int) (byte, bool) {
	ix := r.byteIx + ahead
	if ix < 0 || ix >= len(r.buf) {
		return 0, false
	}
	return r.buf[ix], true
}

// MovePointer seeks delta bytes forward or backward and drops the bit offset.
func (r *BitReader) MovePointer(delta int) error {
	return r.SetOffset(r.byteIx + delta)
}

// SetOffset positions the reader at an absolute byte offset.
func (r *BitReader) SetOffset(off int) error {
	if off < 0 || off > len(r.buf) {
		return fmt.Errorf("%w: seek to %d outside [0,%d]", ErrStreamExhausted, off, len(r.buf))
	}
	r.byteIx = off
	r.bitIx = 0
	return nil
}

// ConsumeRemainingBits advances to the next byte boundary.
func (r *BitReader) ConsumeRemainingBits() {
	if r.bitIx != 0 {
		r.bitIx = 0
		r.byteIx++
	}
}

// IsFinished reports whether every byte has been consumed.
func (r *BitReader) IsFinished() bool {
	return r.byteIx >= len(r.buf)
}

// Offset returns the byte cursor.
func (r *BitReader) Offset() int { return r.byteIx }

// BitOffset returns the absolute bit position.
func (r *BitReader) BitOffset() int { return r.byteIx*8 + int(r.bitIx) }

// Len returns the buffer length in bytes.
func (r *BitReader) Len() int { return len(r.buf) }

// Bytes returns the whole underlying buffer.
func (r *BitReader) Bytes() []byte { return r.buf }

func (r *BitReader) bitsLeft() int {
	if r.byteIx >= len(r.buf) {
		return 0
	}
	return (len(r.buf)-r.byteIx)*8 - int(r.bitIx)
}
