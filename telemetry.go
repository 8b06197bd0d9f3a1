package sambungo

import (
	"fmt"
	"net/http"
	"runtime"
)

// Header carrying the client-generated request id for correlation.
const requestIDHeader = "x-sdk-request-id"

// TelemetryPolicy stamps outgoing requests with a User-Agent derived from
// the product name/version and the pipeline request id. Stateless: it never
// inspects the response and never retries.
type TelemetryPolicy struct {
	userAgent string
}

// NewTelemetryPolicy builds a telemetry policy for the given product.
func NewTelemetryPolicy(product, version string) *TelemetryPolicy {
	return &TelemetryPolicy{
		userAgent: fmt.Sprintf("%s/%s (%s; %s)", product, version, runtime.Version(), runtime.GOOS),
	}
}

// Do implements the Policy interface.
func (p *TelemetryPolicy) Do(pc *PipelineContext, req *http.Request, next Transporter) (*http.Response, error) {
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set(requestIDHeader, pc.RequestID)
	return next.Send(req)
}
