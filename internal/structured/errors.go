package structured

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidOptions is returned before any call when Options are out of range.
	ErrInvalidOptions = errors.New("invalid completion options")

	// ErrRefused means the model declined to answer in the requested shape.
	ErrRefused = errors.New("model refused structured output")

	// ErrTruncated means the reply hit the output token cap before the JSON
	// document was complete.
	ErrTruncated = errors.New("completion truncated at max output tokens")

	// ErrEmpty means the reply carried no usable document.
	ErrEmpty = errors.New("empty structured output")
)

// DecodeError reports a reply that could not be turned into the target
// shape. Raw holds the text the model returned.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	const maxRaw = 200
	raw := e.Raw
	if len(raw) > maxRaw {
		raw = raw[:maxRaw] + "..."
	}
	if raw == "" {
		return fmt.Sprintf("decode structured output: %v", e.Err)
	}
	return fmt.Sprintf("decode structured output: %v (raw: %q)", e.Err, raw)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError unwraps err to a DecodeError.
func IsDecodeError(err error) (*DecodeError, bool) {
	var de *DecodeError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
