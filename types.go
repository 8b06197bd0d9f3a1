package sambungo

import (
	"encoding/hex"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Transporter is the continuation contract: each policy receives the rest of
// the chain as a Transporter and decides when (and how often) to invoke it.
// The pipeline terminal wraps the underlying *http.Client.
type Transporter interface {
	Send(req *http.Request) (*http.Response, error)
}

// TransporterFunc adapts a plain function to the Transporter interface.
type TransporterFunc func(*http.Request) (*http.Response, error)

func (f TransporterFunc) Send(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Policy is a pipeline stage. It may inspect or modify the request, delegate
// to next zero or more times, and inspect or modify the resulting response.
type Policy interface {
	Do(pc *PipelineContext, req *http.Request, next Transporter) (*http.Response, error)
}

// PolicyFunc adapts a plain function to the Policy interface.
type PolicyFunc func(*PipelineContext, *http.Request, Transporter) (*http.Response, error)

func (f PolicyFunc) Do(pc *PipelineContext, req *http.Request, next Transporter) (*http.Response, error) {
	return f(pc, req, next)
}

// PipelineContext carries per-call state through the policy chain. A fresh
// instance is created for every Send and lives across all retry attempts of
// that call. Execution through the chain is strictly sequential, so no
// locking is needed; the context must not be shared across concurrent Sends.
type PipelineContext struct {
	// RequestID identifies the logical call, 32 lowercase hex characters.
	RequestID string

	// Attempt is the current delivery attempt, starting at 0 and bumped by
	// the retry policy before each downstream invocation.
	Attempt int

	items map[string]any
}

// NewPipelineContext creates a context with a generated request id.
func NewPipelineContext() *PipelineContext {
	return &PipelineContext{RequestID: newRequestID()}
}

// SetValue stores an annotation for later policies in the same call.
func (pc *PipelineContext) SetValue(key string, value any) {
	if pc.items == nil {
		pc.items = make(map[string]any)
	}
	pc.items[key] = value
}

// Value returns an annotation stored by an earlier policy.
func (pc *PipelineContext) Value(key string) (any, bool) {
	v, ok := pc.items[key]
	return v, ok
}

func newRequestID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// Default retry configuration values.
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 200 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
)

// RetryOptions configures the retry policy. Supplied once at construction
// and never mutated afterwards.
type RetryOptions struct {
	// MaxAttempts is the total number of delivery attempts, including the
	// first one. Must be at least 1.
	MaxAttempts int

	// BaseDelay is the backoff unit for the first attempt; subsequent
	// attempts double it before jitter is added.
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff, jitter included.
	MaxDelay time.Duration

	// RetryOnTimeouts controls whether timeout failures are retry-eligible.
	RetryOnTimeouts bool
}

// DefaultRetryOptions returns the retry configuration used when none is
// supplied: 5 attempts, 200ms base, 5s cap, timeouts retried.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts:     DefaultMaxAttempts,
		BaseDelay:       DefaultBaseDelay,
		MaxDelay:        DefaultMaxDelay,
		RetryOnTimeouts: true,
	}
}

// withDefaults fills zero-valued fields. RetryOnTimeouts is left as given
// since false is a meaningful setting.
func (o RetryOptions) withDefaults() RetryOptions {
	if o.MaxAttempts == 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BaseDelay == 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.MaxDelay == 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	return o
}

// Option represents a configuration option for Client.
type Option func(*Client)
