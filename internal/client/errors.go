package client

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrNotFound is returned when the upstream answers 404.
var ErrNotFound = errors.New("catalog: not found")

// ErrInvalidID is returned for non-positive category or product ids.
var ErrInvalidID = errors.New("catalog: id must be a positive integer")

const excerptLimit = 400

// TransportError reports an unreachable upstream, a non-2xx answer other than
// 404, or a payload that is not the JSON we expect.
type TransportError struct {
	StatusCode int
	URL        string
	Excerpt    string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("catalog: upstream %d from %s: %v: %s", e.StatusCode, e.URL, e.Err, e.Excerpt)
	case e.StatusCode != 0:
		return fmt.Sprintf("catalog: upstream %d from %s: %s", e.StatusCode, e.URL, e.Excerpt)
	default:
		return fmt.Sprintf("catalog: request to %s failed: %v", e.URL, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsNotFound checks if the error indicates the upstream has no such resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTransport checks if the error is a *TransportError.
func IsTransport(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}

func excerpt(body string) string {
	if len(body) <= excerptLimit {
		return body
	}
	cut := excerptLimit
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut]
}
