package codec

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrBoundExceeded      = errors.New("count exceeds configured bound")
	ErrTruncated          = errors.New("buffer truncated")
	ErrLengthOverflow     = errors.New("length does not fit wire integer width")
	ErrMalformedVarint    = errors.New("malformed varint")
	ErrInvalidTag         = errors.New("invalid tag")
	ErrDuplicateEntry     = errors.New("duplicate entry")
	ErrMissingContext     = errors.New("serialization context not established")
	ErrNilObject          = errors.New("nil object")
)

// FieldError reports which field of an object failed to encode or decode.
// Nested objects wrap each other, so Error() reads as a path like
// "block.header.endorsements: buffer truncated".
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	if inner, ok := e.Err.(*FieldError); ok {
		return e.Field + "." + inner.Error()
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Field wraps err with the name of the field being processed. A nil err
// stays nil.
func Field(name string, err error) error {
	if err == nil {
		return nil
	}
	return &FieldError{Field: name, Err: err}
}
