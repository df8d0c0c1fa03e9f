package scanning

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrEmptyImage is returned when an image has no bytes
	ErrEmptyImage = errors.New("image is empty")
	// ErrUnsupportedEncoding is returned for image formats the scanners cannot read
	ErrUnsupportedEncoding = errors.New("unsupported image encoding")

	// ErrMissingPayload means the service replied successfully but without any content
	ErrMissingPayload = errors.New("missing payload")
	// ErrUnparsablePayload means the content could not be read as receipt JSON
	ErrUnparsablePayload = errors.New("unparsable payload")
)

// TransportError is a failure to reach the extraction service
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline or network timeout
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// ServiceError is a non-success status returned by the extraction service
type ServiceError struct {
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("service error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("service error (status %d): %s", e.StatusCode, e.Body)
}

// MalformedResponseError is a successful response whose payload is missing or unreadable
type MalformedResponseError struct {
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

func missingPayload(msg string) error {
	return &MalformedResponseError{Err: fmt.Errorf("%s: %w", msg, ErrMissingPayload)}
}

func unparsablePayload(err error) error {
	return &MalformedResponseError{Err: fmt.Errorf("%w: %w", ErrUnparsablePayload, err)}
}

// ErrorKind names the failure class of a scan error for logs and metrics.
// Transport timeouts are reported as "timeout".
func ErrorKind(err error) string {
	var (
		transportErr *TransportError
		serviceErr   *ServiceError
		malformedErr *MalformedResponseError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &transportErr):
		if transportErr.Timeout() {
			return "timeout"
		}
		return "transport"
	case errors.As(err, &serviceErr):
		return "service"
	case errors.As(err, &malformedErr):
		return "malformed"
	case errors.Is(err, ErrEmptyImage), errors.Is(err, ErrUnsupportedEncoding):
		return "invalid_image"
	default:
		return "unknown"
	}
}
