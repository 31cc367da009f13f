package tap

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyResponse is returned when the token endpoint answers with an empty or non-JSON body.
	// It is the only condition the refresh retry policy retries on.
	ErrEmptyResponse = errors.New("empty response from token endpoint")

	// ErrInvalidTimestamp is returned when a bookmark value is neither a unix timestamp
	// nor an ISO 8601 date time.
	ErrInvalidTimestamp = errors.New("the starting value is not valid ISO 8601 or Unix timestamp")

	// ErrMissingContextKey is returned when a path template refers to a key the context does not bind.
	ErrMissingContextKey = errors.New("missing context key")

	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrOutput wraps failures to write Singer messages. Nothing can be synced once output is lost.
	ErrOutput = errors.New("failed to write output")
)

// AuthError is a fatal token refresh failure. Body holds the raw error payload from Clover.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("clover token refresh failed with status %d: %s", e.StatusCode, e.Body)
}

// RetriableAPIError is returned by the validate step for status codes worth retrying (429 and 5xx).
type RetriableAPIError struct {
	StatusCode int
	URL        string
}

func (e *RetriableAPIError) Error() string {
	return fmt.Sprintf("retriable status %d from %s", e.StatusCode, e.URL)
}

// StreamError records a failed (stream, context) sync.
type StreamError struct {
	Stream  string
	Context Context
	Err     error
}

func (e *StreamError) Error() string {
	if len(e.Context) == 0 {
		return fmt.Sprintf("stream %s: %v", e.Stream, e.Err)
	}
	return fmt.Sprintf("stream %s (%s): %v", e.Stream, e.Context, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err must abort the whole run rather than just the current stream.
func IsFatal(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) || errors.Is(err, ErrOutput)
}
