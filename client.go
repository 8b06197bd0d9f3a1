package sambungo

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
)

// defaultProduct is the product name stamped into User-Agent when the caller
// supplies none.
const defaultProduct = "sambungo"

// Client is the public façade: it assembles the built-in policy pipeline
// (telemetry, logging, auth, retry) around an *http.Client and executes
// requests through it. Safe for concurrent use.
type Client struct {
	httpClient     *http.Client
	ownsHTTPClient bool

	product        string
	productVersion string

	logger        Logger
	tracing       bool
	tokenProvider TokenProvider
	scopes        []string
	retryOptions  RetryOptions
	extraPolicies []Policy
	metrics       *MetricsCollector

	pipeline        *Pipeline
	validationError error
}

// New constructs a Client using the provided functional options. A best
// effort validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		ownsHTTPClient: true,
		product:        defaultProduct,
		productVersion: Version,
		retryOptions:   DefaultRetryOptions(),
	}

	for _, option := range options {
		option(client)
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	client.pipeline = client.buildPipeline()
	return client
}

// buildPipeline assembles the built-in policies outer-to-inner: telemetry,
// logging, tracing, auth, retry, then any user-supplied policies.
func (c *Client) buildPipeline() *Pipeline {
	policies := []Policy{NewTelemetryPolicy(c.product, c.productVersion)}

	if c.logger != nil {
		policies = append(policies, NewLoggingPolicy(c.logger))
	}
	if c.tracing {
		policies = append(policies, NewTracingPolicy())
	}
	if c.tokenProvider != nil {
		auth := NewAuthPolicy(c.tokenProvider, c.scopes...)
		auth.metrics = c.metrics
		policies = append(policies, auth)

		if btp, ok := c.tokenProvider.(*BearerTokenProvider); ok && btp.metrics == nil {
			btp.metrics = c.metrics
		}
	}

	retry := NewRetryPolicy(c.retryOptions)
	retry.metrics = c.metrics
	policies = append(policies, retry)

	policies = append(policies, c.extraPolicies...)

	return NewPipeline(TransporterFunc(c.httpClient.Do), policies...)
}

// Get performs an HTTP GET with context.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Post performs an HTTP POST with the given content type.
func (c *Client) Post(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(req)
}

// Do executes a prepared *http.Request through the policy pipeline.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.validationError != nil {
		return nil, c.validationError
	}

	start := time.Now()
	endpoint := endpointForRequest(req)
	c.metrics.RecordRequestStart(req.Method, endpoint)

	resp, err := c.pipeline.Send(req)

	c.metrics.RecordRequestEnd(req.Method, endpoint)

	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}
	c.metrics.RecordRequest(req.Method, endpoint, statusCode, time.Since(start))

	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			c.metrics.RecordError(e.Type, req.Method, endpoint)
		} else {
			c.metrics.RecordError(ErrorTypeTransport, req.Method, endpoint)
		}
	}

	return resp, err
}

// Close releases the underlying HTTP client when the Client created it
// internally. A caller-supplied client is never touched; its lifecycle
// belongs to the caller.
func (c *Client) Close() {
	if c.ownsHTTPClient && c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// endpointForRequest extracts a host+path endpoint label for metrics.
func endpointForRequest(req *http.Request) string {
	if req.URL == nil {
		return "unknown"
	}

	var builder strings.Builder
	builder.WriteString(req.URL.Host)

	if path := req.URL.Path; path != "" && path != "/" {
		builder.WriteString(path)
	} else {
		builder.WriteByte('/')
	}

	return builder.String()
}
