package jbig2

import (
	"fmt"
	"math"
)

type lineKind uint8

const (
	lineNormal lineKind = iota
	lineLower
	lineUpper
	lineOOB
)

// huffLine is one table line: a prefix length, the number of extra raw bits
// and the low end of the value range.
type huffLine struct {
	prefLen  uint8
	rangeLen uint8
	low      int64
	kind     lineKind
	code     uint32
}

// HuffmanTable is a canonical prefix code table as defined in T.88 Annex B.
// Tables are immutable once built and may be shared between decodes.
type HuffmanTable struct {
	lines  []huffLine
	oob    bool
	maxLen uint8
	lookup map[uint64]int
}

// HasOOB reports whether the table has an out-of-band line.
func (t *HuffmanTable) HasOOB() bool { return t.oob }

// Len returns the number of lines.
func (t *HuffmanTable) Len() int { return len(t.lines) }

func lookupKey(length uint8, code uint32) uint64 {
	return uint64(length)<<32 | uint64(code)
}

// build assigns canonical codes (T.88 B.3) and indexes them.
func (t *HuffmanTable) build() error {
	var counts [33]int
	for _, l := range t.lines {
		if l.prefLen > 32 {
			return decodeFailure("Huffman prefix length %d", l.prefLen)
		}
		counts[l.prefLen]++
		t.maxLen = max(t.maxLen, l.prefLen)
	}
	counts[0] = 0

	t.lookup = make(map[uint64]int, len(t.lines))
	first := uint64(0)
	for length := uint8(1); length <= t.maxLen; length++ {
		first = (first + uint64(counts[length-1])) << 1
		cur := first
		for i := range t.lines {
			if t.lines[i].prefLen != length {
				continue
			}
			if cur >= 1<<length {
				return decodeFailure("Huffman code space overflow at length %d", length)
			}
			t.lines[i].code = uint32(cur)
			t.lookup[lookupKey(length, uint32(cur))] = i
			cur++
		}
	}
	return nil
}

type stdLine struct {
	prefLen  uint8
	rangeLen uint8
	low      int64
}

// standardTable lays out a table whose final lines are, in order, the lower
// range line, the upper range line and, when oob is set, the OOB line. A
// zero prefix length marks a line the table does not use.
func standardTable(oob bool, lines ...stdLine) *HuffmanTable {
	t := &HuffmanTable{oob: oob}
	tail := 2
	if oob {
		tail = 3
	}
	for i, l := range lines {
		kind := lineNormal
		switch len(lines) - i {
		case tail:
			kind = lineLower
		case tail - 1:
			kind = lineUpper
		}
		if oob && i == len(lines)-1 {
			kind = lineOOB
		}
		t.lines = append(t.lines, huffLine{prefLen: l.prefLen, rangeLen: l.rangeLen, low: l.low, kind: kind})
	}
	if err := t.build(); err != nil {
		panic(err)
	}
	return t
}

var standardTables = [16]*HuffmanTable{
	1: standardTable(false,
		stdLine{1, 4, 0}, stdLine{2, 8, 16}, stdLine{3, 16, 272}, stdLine{0, 32, -1}, stdLine{3, 32, 65808}),
	2: standardTable(true,
		stdLine{1, 0, 0}, stdLine{2, 0, 1}, stdLine{3, 0, 2}, stdLine{4, 3, 3}, stdLine{5, 6, 11},
		stdLine{0, 32, -1}, stdLine{6, 32, 75}, stdLine{6, 0, 0}),
	3: standardTable(true,
		stdLine{8, 8, -256}, stdLine{1, 0, 0}, stdLine{2, 0, 1}, stdLine{3, 0, 2}, stdLine{4, 3, 3},
		stdLine{5, 6, 11}, stdLine{8, 32, -257}, stdLine{7, 32, 75}, stdLine{6, 0, 0}),
	4: standardTable(false,
		stdLine{1, 0, 1}, stdLine{2, 0, 2}, stdLine{3, 0, 3}, stdLine{4, 3, 4}, stdLine{5, 6, 12},
		stdLine{0, 32, -1}, stdLine{5, 32, 76}),
	5: standardTable(false,
		stdLine{7, 8, -255}, stdLine{1, 0, 1}, stdLine{2, 0, 2}, stdLine{3, 0, 3}, stdLine{4, 3, 4},
		stdLine{5, 6, 12}, stdLine{7, 32, -256}, stdLine{6, 32, 76}),
	6: standardTable(false,
		stdLine{5, 10, -2048}, stdLine{4, 9, -1024}, stdLine{4, 8, -512}, stdLine{4, 7, -256},
		stdLine{5, 6, -128}, stdLine{5, 5, -64}, stdLine{4, 5, -32}, stdLine{2, 7, 0}, stdLine{3, 7, 128},
		stdLine{3, 8, 256}, stdLine{4, 9, 512}, stdLine{4, 10, 1024}, stdLine{6, 32, -2049}, stdLine{6, 32, 2048}),
	7: standardTable(false,
		stdLine{4, 9, -1024}, stdLine{3, 8, -512}, stdLine{4, 7, -256}, stdLine{5, 6, -128},
		stdLine{5, 5, -64}, stdLine{4, 5, -32}, stdLine{4, 5, 0}, stdLine{5, 5, 32}, stdLine{5, 6, 64},
		stdLine{4, 7, 128}, stdLine{3, 8, 256}, stdLine{3, 9, 512}, stdLine{3, 10, 1024},
		stdLine{5, 32, -1025}, stdLine{5, 32, 2048}),
	8: standardTable(true,
		stdLine{8, 3, -15}, stdLine{9, 1, -7}, stdLine{8, 1, -5}, stdLine{9, 0, -3}, stdLine{7, 0, -2},
		stdLine{4, 0, -1}, stdLine{2, 1, 0}, stdLine{5, 0, 2}, stdLine{6, 0, 3}, stdLine{3, 4, 4},
		stdLine{6, 1, 20}, stdLine{4, 4, 22}, stdLine{4, 5, 38}, stdLine{5, 6, 70}, stdLine{5, 7, 134},
		stdLine{6, 7, 262}, stdLine{7, 8, 390}, stdLine{6, 10, 646}, stdLine{9, 32, -16},
		stdLine{9, 32, 1670}, stdLine{2, 0, 0}),
	9: standardTable(true,
		stdLine{8, 4, -31}, stdLine{9, 2, -15}, stdLine{8, 2, -11}, stdLine{9, 1, -7}, stdLine{7, 1, -5},
		stdLine{4, 1, -3}, stdLine{3, 1, -1}, stdLine{3, 1, 1}, stdLine{5, 1, 3}, stdLine{6, 1, 5},
		stdLine{3, 5, 7}, stdLine{6, 2, 39}, stdLine{4, 5, 43}, stdLine{4, 6, 75}, stdLine{5, 7, 139},
		stdLine{5, 8, 267}, stdLine{6, 8, 523}, stdLine{7, 9, 779}, stdLine{6, 11, 1291},
		stdLine{9, 32, -32}, stdLine{9, 32, 3339}, stdLine{2, 0, 0}),
	10: standardTable(true,
		stdLine{7, 4, -21}, stdLine{8, 0, -5}, stdLine{7, 0, -4}, stdLine{5, 0, -3}, stdLine{2, 2, -2},
		stdLine{5, 0, 2}, stdLine{6, 0, 3}, stdLine{7, 0, 4}, stdLine{8, 0, 5}, stdLine{2, 6, 6},
		stdLine{5, 5, 70}, stdLine{6, 5, 102}, stdLine{6, 6, 134}, stdLine{6, 7, 198}, stdLine{6, 8, 326},
		stdLine{6, 9, 582}, stdLine{6, 10, 1094}, stdLine{7, 11, 2118}, stdLine{8, 32, -22},
		stdLine{8, 32, 4166}, stdLine{2, 0, 0}),
	11: standardTable(false,
		stdLine{1, 0, 1}, stdLine{2, 1, 2}, stdLine{4, 0, 4}, stdLine{4, 1, 5}, stdLine{5, 1, 7},
		stdLine{5, 2, 9}, stdLine{6, 2, 13}, stdLine{7, 2, 17}, stdLine{7, 3, 21}, stdLine{7, 4, 29},
		stdLine{7, 5, 45}, stdLine{7, 6, 77}, stdLine{0, 32, 0}, stdLine{7, 32, 141}),
	12: standardTable(false,
		stdLine{1, 0, 1}, stdLine{2, 0, 2}, stdLine{3, 1, 3}, stdLine{5, 0, 5}, stdLine{5, 1, 6},
		stdLine{6, 1, 8}, stdLine{7, 0, 10}, stdLine{7, 1, 11}, stdLine{7, 2, 13}, stdLine{7, 3, 17},
		stdLine{7, 4, 25}, stdLine{8, 5, 41}, stdLine{0, 32, 0}, stdLine{8, 32, 73}),
	13: standardTable(false,
		stdLine{1, 0, 1}, stdLine{3, 0, 2}, stdLine{4, 0, 3}, stdLine{5, 0, 4}, stdLine{4, 1, 5},
		stdLine{3, 3, 7}, stdLine{6, 1, 15}, stdLine{6, 2, 17}, stdLine{6, 3, 21}, stdLine{6, 4, 29},
		stdLine{6, 5, 45}, stdLine{7, 6, 77}, stdLine{0, 32, 0}, stdLine{7, 32, 141}),
	14: standardTable(false,
		stdLine{3, 0, -2}, stdLine{3, 0, -1}, stdLine{1, 0, 0}, stdLine{3, 0, 1}, stdLine{3, 0, 2},
		stdLine{0, 32, -3}, stdLine{0, 32, 3}),
	15: standardTable(false,
		stdLine{7, 4, -24}, stdLine{6, 2, -8}, stdLine{5, 1, -4}, stdLine{4, 0, -2}, stdLine{3, 0, -1},
		stdLine{1, 0, 0}, stdLine{3, 0, 1}, stdLine{4, 0, 2}, stdLine{5, 1, 3}, stdLine{6, 2, 5},
		stdLine{7, 4, 9}, stdLine{7, 32, -25}, stdLine{7, 32, 25}),
}

// StandardTable returns table B.n for n in 1..15.
func StandardTable(n int) (*HuffmanTable, error) {
	if n < 1 || n >= len(standardTables) {
		return nil, fmt.Errorf("jbig2: no standard Huffman table B.%d", n)
	}
	return standardTables[n], nil
}

// ParseHuffmanTable reads a custom table from a tables segment (T.88 B.2).
func ParseHuffmanTable(r *BitReader) (*HuffmanTable, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	htps := uint(flags>>1&0x07) + 1
	htrs := uint(flags>>4&0x07) + 1
	lowRaw, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	highRaw, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	low, high := int64(int32(lowRaw)), int64(int32(highRaw))
	if low > high {
		return nil, decodeFailure("Huffman table range [%d,%d] is empty", low, high)
	}

	t := &HuffmanTable{oob: flags&0x01 != 0}
	for cur := low; ; {
		prefLen, err := r.ReadBits(htps)
		if err != nil {
			return nil, err
		}
		rangeLen, err := r.ReadBits(htrs)
		if err != nil {
			return nil, err
		}
		if rangeLen >= 32 {
			return nil, decodeFailure("Huffman range length %d", rangeLen)
		}
		t.lines = append(t.lines, huffLine{prefLen: uint8(prefLen), rangeLen: uint8(rangeLen), low: cur})
		cur += 1 << rangeLen
		if cur > math.MaxInt32 {
			return nil, decodeFailure("Huffman table range overflows int32")
		}
		if cur >= high {
			break
		}
	}

	prefLen, err := r.ReadBits(htps)
	if err != nil {
		return nil, err
	}
	t.lines = append(t.lines, huffLine{prefLen: uint8(prefLen), rangeLen: 32, low: low - 1, kind: lineLower})
	if prefLen, err = r.ReadBits(htps); err != nil {
		return nil, err
	}
	t.lines = append(t.lines, huffLine{prefLen: uint8(prefLen), rangeLen: 32, low: high, kind: lineUpper})
	if t.oob {
		if prefLen, err = r.ReadBits(htps); err != nil {
			return nil, err
		}
		t.lines = append(t.lines, huffLine{prefLen: uint8(prefLen), kind: lineOOB})
	}
	r.ConsumeRemainingBits()

	if err := t.build(); err != nil {
		return nil, err
	}
	return t, nil
}

// NewCodeLengthTable builds a table whose line i decodes to the value i,
// with no extra bits. Text regions use it for symbol identifiers.
func NewCodeLengthTable(lengths []uint8) (*HuffmanTable, error) {
	t := &HuffmanTable{lines: make([]huffLine, len(lengths))}
	for i, l := range lengths {
		t.lines[i] = huffLine{prefLen: l, low: int64(i)}
	}
	if err := t.build(); err != nil {
		return nil, err
	}
	return t, nil
}

// HuffmanDecoder reads Huffman coded integers from the shared reader.
type HuffmanDecoder struct {
	r *BitReader
}

// NewHuffmanDecoder binds a decoder to r.
func NewHuffmanDecoder(r *BitReader) *HuffmanDecoder {
	return &HuffmanDecoder{r: r}
}

// DecodeInt reads one value coded with t. The second result is false when
// the OOB line was decoded.
func (h *HuffmanDecoder) DecodeInt(t *HuffmanTable) (int64, bool, error) {
	if t == nil {
		return 0, false, decodeFailure("missing Huffman table")
	}
	var code uint32
	for length := uint8(1); length <= t.maxLen; length++ {
		bit, err := h.r.ReadBit()
		if err != nil {
			return 0, false, err
		}
		code = code<<1 | bit
		i, ok := t.lookup[lookupKey(length, code)]
		if !ok {
			continue
		}
		l := t.lines[i]
		if l.kind == lineOOB {
			return 0, false, nil
		}
		var extra uint32
		if l.rangeLen > 0 {
			if extra, err = h.r.ReadBits(uint(l.rangeLen)); err != nil {
				return 0, false, err
			}
		}
		if l.kind == lineLower {
			return l.low - int64(extra), true, nil
		}
		return l.low + int64(extra), true, nil
	}
	return 0, false, decodeFailure("invalid Huffman code %b", code)
}
