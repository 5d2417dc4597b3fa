package jbig2

// SymbolDict is the result of a symbol dictionary segment: the exported
// symbols and, when the segment asked for it, the context tables left
// behind for a later dictionary to inherit.
type SymbolDict struct {
	Symbols []*Bitmap

	GenericStats    *ContextStats
	RefinementStats *ContextStats
}

// NumSymbols returns the number of exported symbols.
func (sd *SymbolDict) NumSymbols() int {
	if sd == nil {
		return 0
	}
	return len(sd.Symbols)
}

// Symbol returns exported symbol i, or nil when i is out of range.
func (sd *SymbolDict) Symbol(i int) *Bitmap {
	if sd == nil || i < 0 || i >= len(sd.Symbols) {
		return nil
	}
	return sd.Symbols[i]
}

// retain snapshots the decoder's tables into the dictionary.
func (sd *SymbolDict) retain(a *ArithDecoder, refAgg bool) {
	sd.GenericStats = a.GenericStats().Copy()
	if refAgg {
		sd.RefinementStats = a.RefinementStats().Copy()
	}
}

// symbolCodeLen returns ceil(log2(n)), the width of a symbol identifier
// among n symbols.
func symbolCodeLen(n int) uint {
	l := uint(0)
	for 1<<l < n {
		l++
	}
	return l
}
