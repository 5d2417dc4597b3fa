package jbig2

import "fmt"

// SegmentType is the 6-bit segment type code.
type SegmentType uint8

const (
	SegmentSymbolDictionary            SegmentType = 0
	SegmentIntermediateTextRegion      SegmentType = 4
	SegmentImmediateTextRegion         SegmentType = 6
	SegmentImmediateLosslessTextRegion SegmentType = 7
	SegmentPatternDictionary           SegmentType = 16
	SegmentIntermediateHalftoneRegion  SegmentType = 20
	SegmentImmediateHalftoneRegion     SegmentType = 22
	SegmentImmediateLosslessHalftone   SegmentType = 23
	SegmentIntermediateGenericRegion   SegmentType = 36
	SegmentImmediateGenericRegion      SegmentType = 38
	SegmentImmediateLosslessGeneric    SegmentType = 39
	SegmentIntermediateRefinement      SegmentType = 40
	SegmentImmediateRefinement         SegmentType = 42
	SegmentImmediateLosslessRefinement SegmentType = 43
	SegmentPageInformation             SegmentType = 48
	SegmentEndOfPage                   SegmentType = 49
	SegmentEndOfStripe                 SegmentType = 50
	SegmentEndOfFile                   SegmentType = 51
	SegmentProfiles                    SegmentType = 52
	SegmentTables                      SegmentType = 53
	SegmentExtension                   SegmentType = 62
)

var segmentTypeNames = map[SegmentType]string{
	SegmentSymbolDictionary:            "symbol dictionary",
	SegmentIntermediateTextRegion:      "intermediate text region",
	SegmentImmediateTextRegion:         "immediate text region",
	SegmentImmediateLosslessTextRegion: "immediate lossless text region",
	SegmentPatternDictionary:           "pattern dictionary",
	SegmentIntermediateHalftoneRegion:  "intermediate halftone region",
	SegmentImmediateHalftoneRegion:     "immediate halftone region",
	SegmentImmediateLosslessHalftone:   "immediate lossless halftone region",
	SegmentIntermediateGenericRegion:   "intermediate generic region",
	SegmentImmediateGenericRegion:      "immediate generic region",
	SegmentImmediateLosslessGeneric:    "immediate lossless generic region",
	SegmentIntermediateRefinement:      "intermediate refinement region",
	SegmentImmediateRefinement:         "immediate refinement region",
	SegmentImmediateLosslessRefinement: "immediate lossless refinement region",
	SegmentPageInformation:             "page information",
	SegmentEndOfPage:                   "end of page",
	SegmentEndOfStripe:                 "end of stripe",
	SegmentEndOfFile:                   "end of file",
	SegmentProfiles:                    "profiles",
	SegmentTables:                      "tables",
	SegmentExtension:                   "extension",
}

func (t SegmentType) String() string {
	if name, ok := segmentTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("SegmentType(%d)", uint8(t))
}

// IsRegion reports whether segments of this type carry a region info field.
func (t SegmentType) IsRegion() bool {
	switch t {
	case SegmentIntermediateTextRegion, SegmentImmediateTextRegion, SegmentImmediateLosslessTextRegion,
		SegmentIntermediateHalftoneRegion, SegmentImmediateHalftoneRegion, SegmentImmediateLosslessHalftone,
		SegmentIntermediateGenericRegion, SegmentImmediateGenericRegion, SegmentImmediateLosslessGeneric,
		SegmentIntermediateRefinement, SegmentImmediateRefinement, SegmentImmediateLosslessRefinement:
		return true
	}
	return false
}

// IsIntermediate reports whether a region result is stored for a later
// refinement instead of being composited into the page.
func (t SegmentType) IsIntermediate() bool {
	switch t {
	case SegmentIntermediateTextRegion, SegmentIntermediateHalftoneRegion,
		SegmentIntermediateGenericRegion, SegmentIntermediateRefinement:
		return true
	}
	return false
}

// SegmentFlags is the segment header flag byte.
type SegmentFlags uint8

const (
	segmentFlagTypeMask          = 0x3f
	segmentFlagLongPage          = 0x40
	segmentFlagDeferredNonRetain = 0x80
)

// Type returns the 6-bit segment type.
func (f SegmentFlags) Type() SegmentType { return SegmentType(f & segmentFlagTypeMask) }

// HasLongPageAssociation reports a 4-byte page association field.
func (f SegmentFlags) HasLongPageAssociation() bool { return f&segmentFlagLongPage != 0 }

// DeferredNonRetain reports the deferred non-retain bit.
func (f SegmentFlags) DeferredNonRetain() bool { return f&segmentFlagDeferredNonRetain != 0 }

// unknownDataLength marks an immediate generic region whose length is only
// known after scanning for its end marker.
const unknownDataLength = 0xFFFFFFFF

// Segment is a parsed segment header plus the payload its decoding produced.
type Segment struct {
	Number          uint32
	Flags           SegmentFlags
	ReferredTo      []uint32
	RetentionFlags  []byte
	PageAssociation uint32
	DataLength      uint32
	HeaderOffset    int
	HeaderLength    int
	DataOffset      int

	Region      *RegionInfo
	SymbolDict  *SymbolDict
	PatternDict *PatternDict
	Table       *HuffmanTable
	Page        *PageInfo
	Bitmap      *Bitmap
}

// Type returns the segment type.
func (s *Segment) Type() SegmentType { return s.Flags.Type() }

func (s *Segment) String() string {
	return fmt.Sprintf("segment %d (%s, page %d, %d bytes)", s.Number, s.Type(), s.PageAssociation, s.DataLength)
}

func referredNumberSize(number uint32) int {
	switch {
	case number <= 256:
		return 1
	case number <= 65536:
		return 2
	default:
		return 4
	}
}

// parseSegmentHeader reads one segment header (T.88 7.2) at the reader's
// position.
func parseSegmentHeader(r *BitReader) (*Segment, error) {
	seg := &Segment{HeaderOffset: r.Offset()}
	var err error
	if seg.Number, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	flags, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	seg.Flags = SegmentFlags(flags)

	count, retention, err := readReferredCount(r)
	if err != nil {
		return nil, err
	}
	seg.RetentionFlags = retention

	size := referredNumberSize(seg.Number)
	seg.ReferredTo = make([]uint32, count)
	for i := range seg.ReferredTo {
		var ref uint32
		switch size {
		case 1:
			b, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			ref = uint32(b)
		case 2:
			v, err := r.ReadUint16()
			if err != nil {
				return nil, err
			}
			ref = uint32(v)
		default:
			if ref, err = r.ReadUint32(); err != nil {
				return nil, err
			}
		}
		if ref >= seg.Number {
			return nil, malformedHeader("segment %d refers forward to segment %d", seg.Number, ref)
		}
		seg.ReferredTo[i] = ref
	}

	if seg.Flags.HasLongPageAssociation() {
		if seg.PageAssociation, err = r.ReadUint32(); err != nil {
			return nil, err
		}
	} else {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		seg.PageAssociation = uint32(b)
	}

	if seg.Type() == SegmentEndOfFile && r.Len()-r.Offset() < 4 {
		seg.DataLength = 0
	} else if seg.DataLength, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	seg.HeaderLength = r.Offset() - seg.HeaderOffset
	seg.DataOffset = r.Offset()
	return seg, nil
}

// readReferredCount decodes the referred-to segment count and retention
// flags. Counts up to 4 use the one-byte short form and 7 escapes to the
// long form; 5 and 6 are reserved.
func readReferredCount(r *BitReader) (int, []byte, error) {
	first, ok := r.PeekByte(0)
	if !ok {
		return 0, nil, fmt.Errorf("%w: referred-to segment count", ErrStreamExhausted)
	}
	switch short := int(first >> 5); short {
	case 7:
		v, err := r.ReadUint32()
		if err != nil {
			return 0, nil, err
		}
		count := int(v & 0x1fffffff)
		if count > MaxReferredSegmentCount {
			return 0, nil, malformedHeader("referred-to segment count %d", count)
		}
		retention, err := r.ReadBytes((count + 8) / 8)
		if err != nil {
			return 0, nil, err
		}
		return count, retention, nil
	case 5, 6:
		return 0, nil, malformedHeader("reserved referred-to segment count %d", short)
	default:
		if _, err := r.ReadByte(); err != nil {
			return 0, nil, err
		}
		return short, []byte{first & 0x1f}, nil
	}
}
