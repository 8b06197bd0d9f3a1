package sambungo

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Error type discriminators.
const (
	ErrorTypeValidation     = "Validation"
	ErrorTypeTransport      = "Transport"
	ErrorTypeTimeout        = "Timeout"
	ErrorTypeTokenFetch     = "TokenFetch"
	ErrorTypeAuthentication = "Authentication"
	ErrorTypeRetryExhausted = "RetryExhausted"
)

// Sentinel errors for common failure scenarios
var (
	// ErrAuthenticationFailed is returned after two consecutive 401 responses.
	ErrAuthenticationFailed = errors.New("sambungo: authentication failed")

	// ErrRetryExhausted is returned when all attempts ended retry-eligible.
	ErrRetryExhausted = errors.New("sambungo: retry attempts exhausted")
)

// Response header carrying the server-side correlation id, when present.
const correlationIDHeader = "x-correlation-id"

// Truncation limits for diagnostic body snippets.
const (
	authSnippetLimit    = 200
	requestSnippetLimit = 500
)

// Error is the failure value surfaced to callers. Type discriminates the
// failure class; the remaining fields carry enough context to diagnose
// without re-running the request.
type Error struct {
	Type          string
	Message       string
	StatusCode    int
	Body          string
	CorrelationID string
	RequestID     string
	Attempt       int
	MaxAttempts   int
	Cause         error
}

// Error implements error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Attempt > 0 && e.MaxAttempts > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxAttempts)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches sentinel errors and Errors of the same Type.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrAuthenticationFailed:
		return e.Type == ErrorTypeAuthentication
	case ErrRetryExhausted:
		return e.Type == ErrorTypeRetryExhausted
	}
	if targetErr, ok := target.(*Error); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// IsTransient reports whether an error represents a failure that might
// succeed on a later call. Authentication, token and validation failures are
// terminal; transport-level and exhausted-retry failures are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		switch e.Type {
		case ErrorTypeTransport, ErrorTypeTimeout, ErrorTypeRetryExhausted:
			return true
		}
		return false
	}
	return false
}

// truncate cuts s to at most limit bytes.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

// readSnippet reads at most limit bytes from r for diagnostics. Read errors
// are swallowed; a snippet is best-effort by nature.
func readSnippet(r io.Reader, limit int) string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	_, _ = io.Copy(&b, io.LimitReader(r, int64(limit)))
	return b.String()
}

// drainAndClose releases a discarded response body so the underlying
// connection can be reused before the next attempt.
func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
