package response

import (
	"errors"
	"fmt"
)

// ErrNilPage is returned when Parse is called without a page.
var ErrNilPage = errors.New("page is nil")

// StatusError reports a page whose status is outside the 2xx range.
type StatusError struct {
	StatusCode int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("Unexpected status code %d", e.StatusCode)
}

// ParseError reports a structurally invalid page body.
type ParseError struct {
	// Offset is the byte offset into the body where decoding stopped.
	Offset int64
	Err    error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse page at offset %d: %v", e.Offset, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// handlerError carries an error returned by a Handler through the decoder
// walk so it is not reported as a parse failure.
type handlerError struct {
	err error
}

func (e *handlerError) Error() string { return e.err.Error() }
