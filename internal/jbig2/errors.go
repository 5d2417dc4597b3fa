package jbig2

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every fatal error returned from a decode wraps
// ErrDecodeFailed together with one of the more specific causes.
var (
	ErrStreamExhausted         = errors.New("jbig2: stream exhausted")
	ErrMalformedSegmentHeader  = errors.New("jbig2: malformed segment header")
	ErrUnsupportedSegmentType  = errors.New("jbig2: unsupported segment type")
	ErrDecodeFailure           = errors.New("jbig2: decode failure")
	ErrDecodeFailed            = errors.New("jbig2: decode failed")
	errMissingReferredSegment  = fmt.Errorf("%w: missing referred-to segment", ErrDecodeFailure)
	errInvalidRegionDimensions = fmt.Errorf("%w: invalid region dimensions", ErrDecodeFailure)
)

// SegmentError reports the segment that aborted a decode.
type SegmentError struct {
	Number uint32
	Type   SegmentType
	Err    error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("jbig2: decode failed at segment %d (%s): %v", e.Number, e.Type, e.Err)
}

// Unwrap exposes both the umbrella error and the underlying cause.
func (e *SegmentError) Unwrap() []error {
	return []error{ErrDecodeFailed, e.Err}
}

func decodeFailure(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrDecodeFailure}, args...)...)
}

func malformedHeader(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrMalformedSegmentHeader}, args...)...)
}
