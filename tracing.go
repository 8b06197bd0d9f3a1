package sambungo

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ambiyansyah-risyal/sambungo"

// TracingPolicy opens an OpenTelemetry client span around the downstream
// call. The span covers all retry attempts of the call; with no tracer
// provider installed it degrades to a no-op.
type TracingPolicy struct {
	tracer trace.Tracer
}

// NewTracingPolicy builds a tracing policy on the global tracer provider.
func NewTracingPolicy() *TracingPolicy {
	return &TracingPolicy{tracer: otel.Tracer(tracerName)}
}

// Do implements the Policy interface.
func (p *TracingPolicy) Do(pc *PipelineContext, req *http.Request, next Transporter) (*http.Response, error) {
	ctx, span := p.tracer.Start(req.Context(), req.Method+" "+req.URL.Host,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", req.URL.String()),
			attribute.String("sambungo.request_id", pc.RequestID),
		),
	)
	defer span.End()

	resp, err := next.Send(req.WithContext(ctx))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resp, err
	}

	span.SetAttributes(
		attribute.Int("http.response.status_code", resp.StatusCode),
		attribute.Int("sambungo.attempts", pc.Attempt),
	)
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	return resp, nil
}
