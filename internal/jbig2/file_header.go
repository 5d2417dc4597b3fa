package jbig2

import "bytes"

var fileSignature = []byte{0x97, 0x4a, 0x42, 0x32, 0x0d, 0x0a, 0x1a, 0x0a}

// FileHeader is the header of a standalone JBIG2 file (T.88 D.4).
type FileHeader struct {
	Flags         uint8
	NumPages      uint32
	NumPagesKnown bool
}

// Sequential reports sequential organization; otherwise all segment headers
// precede the segment data (random-access organization).
func (h *FileHeader) Sequential() bool { return h.Flags&0x01 != 0 }

// hasFileSignature reports whether data starts with the standalone magic.
func hasFileSignature(data []byte) bool {
	return bytes.HasPrefix(data, fileSignature)
}

// parseFileHeader consumes the signature, flags and optional page count.
func parseFileHeader(r *BitReader) (*FileHeader, error) {
	if _, err := r.ReadBytes(len(fileSignature)); err != nil {
		return nil, err
	}
	flags, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	h := &FileHeader{Flags: flags}
	if flags&0x02 == 0 {
		if h.NumPages, err = r.ReadUint32(); err != nil {
			return nil, err
		}
		h.NumPagesKnown = true
	}
	return h, nil
}
