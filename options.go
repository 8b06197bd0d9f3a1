package sambungo

import (
	"fmt"
	"net/http"
	"time"
)

// WithHTTPClient sets a caller-owned HTTP client. The Client will not close
// it on shutdown.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
		c.ownsHTTPClient = false
	}
}

// WithTimeout sets the per-attempt timeout on the internally owned HTTP
// client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if c.httpClient != nil {
			c.httpClient.Timeout = d
		}
	}
}

// WithProductInfo sets the product name and version stamped into the
// User-Agent header.
func WithProductInfo(name, version string) Option {
	return func(c *Client) {
		c.product = name
		c.productVersion = version
	}
}

// WithRetryOptions replaces the retry configuration wholesale. Note that
// RetryOptions zero values fall back to defaults except RetryOnTimeouts,
// which is taken as given.
func WithRetryOptions(options RetryOptions) Option {
	return func(c *Client) {
		c.retryOptions = options
	}
}

// WithMaxAttempts sets the total number of delivery attempts.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		c.retryOptions.MaxAttempts = n
	}
}

// WithBaseDelay sets the backoff unit for the first retry.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryOptions.BaseDelay = d
	}
}

// WithMaxDelay caps the computed backoff.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryOptions.MaxDelay = d
	}
}

// WithRetryOnTimeouts controls whether timeout failures are retried.
func WithRetryOnTimeouts(enabled bool) Option {
	return func(c *Client) {
		c.retryOptions.RetryOnTimeouts = enabled
	}
}

// WithPolicies appends user policies after the built-in ones; they run
// inside the retry loop, once per attempt.
func WithPolicies(policies ...Policy) Option {
	return func(c *Client) {
		c.extraPolicies = append(c.extraPolicies, policies...)
	}
}

// WithLogger sets the logging sink and enables the logging policy.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables the logging policy with a console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		c.logger = NewSimpleLogger()
	}
}

// WithTokenProvider enables the auth policy with a caller-supplied provider.
// Omitting a provider disables bearer authentication entirely.
func WithTokenProvider(provider TokenProvider, scopes ...string) Option {
	return func(c *Client) {
		c.tokenProvider = provider
		c.scopes = scopes
	}
}

// WithClientCredentials enables the auth policy backed by an OAuth2
// client-credentials BearerTokenProvider against the given token endpoint.
func WithClientCredentials(tokenURL, clientID, clientSecret string, scopes ...string) Option {
	return func(c *Client) {
		c.tokenProvider = NewBearerTokenProvider(tokenURL, clientID, clientSecret)
		c.scopes = scopes
	}
}

// WithMetrics enables Prometheus metrics collection on the default
// registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithTracing enables the OpenTelemetry tracing policy on the global tracer
// provider.
func WithTracing() Option {
	return func(c *Client) {
		c.tracing = true
	}
}

// ValidateConfiguration validates the client configuration and returns an
// error if invalid.
func (c *Client) ValidateConfiguration() error {
	var errs []string

	errs = append(errs, c.validateRetryConfig()...)
	errs = append(errs, c.validatePolicyConfig()...)
	errs = append(errs, c.validateHTTPClientConfig()...)

	if len(errs) > 0 {
		return &Error{
			Type:    ErrorTypeValidation,
			Message: fmt.Sprintf("configuration validation failed: %v", errs),
		}
	}

	return nil
}

func (c *Client) validateRetryConfig() []string {
	var errs []string

	if c.retryOptions.MaxAttempts < 0 {
		errs = append(errs, "maxAttempts must not be negative")
	}
	if c.retryOptions.BaseDelay < 0 {
		errs = append(errs, "baseDelay must be non-negative")
	}
	if c.retryOptions.MaxDelay < 0 {
		errs = append(errs, "maxDelay must be non-negative")
	}

	normalized := c.retryOptions.withDefaults()
	if normalized.MaxDelay < normalized.BaseDelay {
		errs = append(errs, "maxDelay must be greater than or equal to baseDelay")
	}
	if normalized.MaxAttempts > 100 {
		errs = append(errs, "maxAttempts > 100 may cause excessive resource usage")
	}

	return errs
}

func (c *Client) validatePolicyConfig() []string {
	var errs []string

	for i, policy := range c.extraPolicies {
		if policy == nil {
			errs = append(errs, fmt.Sprintf("policy[%d] cannot be nil", i))
		}
	}

	return errs
}

func (c *Client) validateHTTPClientConfig() []string {
	var errs []string

	if c.httpClient == nil {
		errs = append(errs, "HTTP client cannot be nil")
	}

	return errs
}
