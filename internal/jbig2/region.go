package jbig2

// unknownRegionHeight is the height field of a generic region whose row
// count follows its coded data.
const unknownRegionHeight = 0xFFFFFFFF

// parseRegionInfo reads the region segment information field (T.88 7.4.1).
func parseRegionInfo(r *BitReader) (*RegionInfo, error) {
	var v [4]uint32
	for i := range v {
		x, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		v[i] = x
	}
	flags, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	ri := &RegionInfo{Width: int32(v[0]), Height: int32(v[1]), X: int32(v[2]), Y: int32(v[3]), Flags: flags}
	if v[1] == unknownRegionHeight {
		ri.Height = -1
	} else if v[1] > MaxImageSize {
		return nil, decodeFailure("region height %d exceeds %d", v[1], MaxImageSize)
	}
	if v[0] > MaxImageSize {
		return nil, decodeFailure("region width %d exceeds %d", v[0], MaxImageSize)
	}
	return ri, nil
}

// readAT reads n adaptive template pixels as signed byte pairs.
func readAT(r *BitReader, n int) ([]ATPixel, error) {
	at := make([]ATPixel, n)
	for i := range at {
		x, err := r.ReadInt8()
		if err != nil {
			return nil, err
		}
		y, err := r.ReadInt8()
		if err != nil {
			return nil, err
		}
		at[i] = ATPixel{int(x), int(y)}
	}
	return at, nil
}
