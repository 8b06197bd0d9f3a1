package sambungo

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	internalbackoff "github.com/ambiyansyah-risyal/sambungo/internal/backoff"
)

// RetryPolicy re-sends the downstream chain for retry-eligible outcomes:
// status 408 or 5xx, transient transport errors, and timeouts when
// configured. The request body is buffered once up front so every attempt
// sends identical bytes; unbounded streaming bodies are therefore not
// supported by this policy.
type RetryPolicy struct {
	options    RetryOptions
	calculator *internalbackoff.Calculator
	metrics    *MetricsCollector
}

// NewRetryPolicy builds a retry policy. Zero-valued options fall back to
// DefaultRetryOptions values.
func NewRetryPolicy(options RetryOptions) *RetryPolicy {
	return &RetryPolicy{
		options:    options.withDefaults(),
		calculator: internalbackoff.GetExponentialJitterCalculator(),
	}
}

// Do implements the Policy interface.
func (p *RetryPolicy) Do(pc *PipelineContext, req *http.Request, next Transporter) (*http.Response, error) {
	body, err := bufferRequestBody(req)
	if err != nil {
		return nil, &Error{
			Type:      ErrorTypeTransport,
			Message:   "failed to buffer request body",
			RequestID: pc.RequestID,
			Cause:     err,
		}
	}

	ctx := req.Context()

	for attempt := 1; attempt <= p.options.MaxAttempts; attempt++ {
		pc.Attempt = attempt
		if attempt > 1 {
			p.metrics.RecordRetry(req.Method, endpointForRequest(req), attempt)
		}

		// A fresh request per attempt avoids resending a possibly-consumed
		// request object.
		resp, err := next.Send(cloneRequest(req, body))

		if !p.retryEligible(resp, err) {
			if err != nil {
				return nil, p.terminalError(pc, err, attempt)
			}
			return resp, nil
		}

		if attempt == p.options.MaxAttempts {
			if err != nil {
				return nil, p.terminalError(pc, err, attempt)
			}
			return nil, p.exhaustedError(pc, resp, attempt)
		}

		if resp != nil {
			drainAndClose(resp.Body)
		}

		if err := p.wait(ctx, attempt); err != nil {
			return nil, err
		}
	}

	// Unreachable: the loop always returns on its final attempt.
	return nil, &Error{Type: ErrorTypeRetryExhausted, Message: "retry loop exited unexpectedly", RequestID: pc.RequestID}
}

// retryEligible classifies the outcome of one attempt.
func (p *RetryPolicy) retryEligible(resp *http.Response, err error) bool {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return false
		}
		if isTimeout(err) {
			return p.options.RetryOnTimeouts
		}
		return true
	}
	return resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500
}

// wait sleeps for the computed backoff, honoring cancellation.
func (p *RetryPolicy) wait(ctx context.Context, attempt int) error {
	delay := p.calculator.Calculate(attempt, p.options.BaseDelay, p.options.MaxDelay)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// terminalError wraps a thrown failure that will not be retried further.
// Cancellation is propagated bare so callers can match it directly.
func (p *RetryPolicy) terminalError(pc *PipelineContext, err error, attempt int) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	errType := ErrorTypeTransport
	if isTimeout(err) {
		errType = ErrorTypeTimeout
	}
	return &Error{
		Type:        errType,
		Message:     "request failed",
		RequestID:   pc.RequestID,
		Attempt:     attempt,
		MaxAttempts: p.options.MaxAttempts,
		Cause:       err,
	}
}

// exhaustedError synthesizes the terminal failure when the last attempt
// ended in a retry-eligible status rather than a thrown error.
func (p *RetryPolicy) exhaustedError(pc *PipelineContext, resp *http.Response, attempt int) error {
	snippet := readSnippet(resp.Body, requestSnippetLimit)
	correlationID := resp.Header.Get(correlationIDHeader)
	drainAndClose(resp.Body)
	return &Error{
		Type:          ErrorTypeRetryExhausted,
		Message:       "retry attempts exhausted",
		StatusCode:    resp.StatusCode,
		Body:          snippet,
		CorrelationID: correlationID,
		RequestID:     pc.RequestID,
		Attempt:       attempt,
		MaxAttempts:   p.options.MaxAttempts,
	}
}

// isTimeout reports whether err is a deadline or network timeout failure.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// bufferRequestBody materializes the request body so each attempt can resend
// identical bytes. The request's Body and GetBody are restored afterwards,
// keeping the request replayable for outer policies as well.
func bufferRequestBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}

	src := req.Body
	if req.GetBody != nil {
		fresh, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		src = fresh
	}

	data, err := io.ReadAll(src)
	_ = src.Close()
	if err != nil {
		return nil, err
	}

	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.ContentLength = int64(len(data))
	return data, nil
}

// cloneRequest builds a per-attempt request preserving method, target and
// headers, with the buffered body reattached.
func cloneRequest(req *http.Request, body []byte) *http.Request {
	fresh := req.Clone(req.Context())
	if body != nil {
		fresh.Body = io.NopCloser(bytes.NewReader(body))
		fresh.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		fresh.ContentLength = int64(len(body))
	}
	return fresh
}
