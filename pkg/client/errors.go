package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when every attempt of a request failed
	// without a response.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrInvalidBaseURL is returned by New for a base URL it cannot scroll.
	ErrInvalidBaseURL = errors.New("invalid base url")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// ESError represents a failed Elasticsearch request attempt.
type ESError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *ESError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("elasticsearch %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("elasticsearch %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ESError) Unwrap() error {
	return e.Err
}

// classifyStatus returns the error class of a status code, or "" for
// statuses that are not errors.
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case statusCode >= 400 && statusCode < 500:
		return ErrorClassClient
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		// A 4xx such as an unknown scroll id fails the same way on every attempt.
		return false
	}
}
