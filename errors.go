package apng

import (
	"github.com/pkg/errors"
)

// Error kinds. Every error returned by this package matches exactly one of
// these under errors.Is.
var (
	// ErrInvalidFormat reports a malformed or unsupported structure: an empty
	// frame list, a frame outside the canvas, a bad chunk order, and so on.
	ErrInvalidFormat = errors.New("apng: invalid format")
	// ErrStructureAllocation reports that header or encoder state could not
	// be constructed.
	ErrStructureAllocation = errors.New("apng: structure allocation failure")
	// ErrInternalCodec reports an unexpected failure of the compressor.
	ErrInternalCodec = errors.New("apng: internal codec error")
	// ErrFileSizeExceeded reports pixel dimensions beyond MaxPixelDimension.
	ErrFileSizeExceeded = errors.New("apng: file size exceeded")
	// ErrIOFailure reports that the sink or source rejected an operation.
	ErrIOFailure = errors.New("apng: i/o failure")
	// ErrChecksumMismatch reports a chunk whose CRC does not match its contents.
	ErrChecksumMismatch = errors.New("apng: checksum mismatch")
	// ErrTruncatedStream reports a stream that ended inside a chunk.
	ErrTruncatedStream = errors.New("apng: truncated stream")
	// ErrChunkTooLarge reports a chunk payload longer than MaxChunkLength.
	ErrChunkTooLarge = errors.New("apng: chunk too large")
)

// kindError ties an underlying cause to one of the error kinds above, so
// that errors.Is matches both.
type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string { return e.kind.Error() + ": " + e.cause.Error() }

func (e *kindError) Is(target error) bool { return target == e.kind }

func (e *kindError) Unwrap() error { return e.cause }

// failure classifies cause as kind. Errors that already carry a kind are
// returned untouched.
func failure(kind, cause error) error {
	if cause == nil {
		return nil
	}
	if isKind(cause) {
		return cause
	}
	return errors.WithStack(&kindError{kind: kind, cause: cause})
}

func isKind(err error) bool {
	for _, k := range []error{
		ErrInvalidFormat,
		ErrStructureAllocation,
		ErrInternalCodec,
		ErrFileSizeExceeded,
		ErrIOFailure,
		ErrChecksumMismatch,
		ErrTruncatedStream,
		ErrChunkTooLarge,
	} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// invalidf wraps ErrInvalidFormat with a formatted detail message.
func invalidf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidFormat, format, args...)
}
