// Package sambungo provides an authenticated HTTP client built around an
// extensible request/response pipeline:
//
//   - Chain-of-responsibility policies with a first-class continuation
//   - Telemetry tagging (User-Agent, correlation request id)
//   - Structured logging with credential redaction
//   - OAuth2 client-credentials bearer auth with bounded 401 refresh
//   - Retries with exponential backoff + additive jitter
//   - Single-flight token caching with an early-refresh window
//   - Optional Prometheus metrics and OpenTelemetry tracing
//
// Design goals:
//   - Small surface area – functional options configure everything
//   - Safe concurrent use of a single *Client instance
//   - Extensibility via user supplied policies & pluggable logger / metrics
//
// Typical usage:
//
//	client := sambungo.New(
//	    sambungo.WithClientCredentials(tokenURL, clientID, clientSecret, "api.read"),
//	    sambungo.WithMaxAttempts(5),
//	    sambungo.WithSimpleLogger(),
//	)
//	defer client.Close()
//	resp, err := client.Get(ctx, "https://api.example.com/data")
//
// Policies run outer-to-inner in the order telemetry, logging, tracing,
// auth, retry, then user policies; responses flow back through the same
// stages in reverse. The retry policy only governs what sits below it, so a
// forced token refresh never multiplies attempts.
package sambungo
