package scroll

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/es-scroll-stream/pkg/queue"
	"github.com/Sternrassler/es-scroll-stream/pkg/response"
)

var (
	// ErrMissingToken is raised in strict mode for a page that returned hits
	// without a continuation token.
	ErrMissingToken = errors.New("page has hits but no continuation token")

	// ErrNilFactory is raised when a driver is started without a factory.
	ErrNilFactory = errors.New("producer factory is nil")
)

// TransportError reports a page that could not be fetched at all.
type TransportError struct {
	// Page is the 1-based number of the page within the run.
	Page int
	Err  error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch page %d: %v", e.Page, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// errorKind classifies err for metrics and logs.
func errorKind(err error) string {
	var (
		transportErr *TransportError
		statusErr    *response.StatusError
		parseErr     *response.ParseError
	)

	switch {
	case errors.Is(err, queue.ErrClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.As(err, &transportErr):
		return "transport"
	case errors.As(err, &statusErr):
		return "status"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.Is(err, ErrMissingToken):
		return "protocol"
	default:
		return "other"
	}
}
