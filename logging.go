package sambungo

import (
	"net/http"
	"time"
)

// Placeholder written in place of credential header values in log output.
const redactedPlaceholder = "REDACTED"

// LoggingPolicy logs the request on the way in and the response status plus
// elapsed wall-clock time on the way out. Authorization values are redacted
// before they reach the sink. Logging is best-effort: a failing or panicking
// sink never aborts the downstream call.
type LoggingPolicy struct {
	logger Logger
}

// NewLoggingPolicy builds a logging policy over the given sink.
func NewLoggingPolicy(logger Logger) *LoggingPolicy {
	return &LoggingPolicy{logger: logger}
}

// Do implements the Policy interface.
func (p *LoggingPolicy) Do(pc *PipelineContext, req *http.Request, next Transporter) (*http.Response, error) {
	start := time.Now()

	p.safeLog(func() {
		p.logger.Info("request",
			"requestID", pc.RequestID,
			"method", req.Method,
			"url", req.URL.String(),
			"authorization", redactAuthorization(req),
		)
	})

	resp, err := next.Send(req)
	elapsed := time.Since(start)

	if err != nil {
		p.safeLog(func() {
			p.logger.Error("request failed",
				"requestID", pc.RequestID,
				"elapsed", elapsed,
				"error", err.Error(),
			)
		})
		return resp, err
	}

	p.safeLog(func() {
		p.logger.Info("response",
			"requestID", pc.RequestID,
			"status", resp.StatusCode,
			"elapsed", elapsed,
		)
	})
	return resp, err
}

// safeLog invokes fn swallowing panics so the request proceeds regardless of
// sink behavior.
func (p *LoggingPolicy) safeLog(fn func()) {
	if p.logger == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	fn()
}

func redactAuthorization(req *http.Request) string {
	if req.Header.Get("Authorization") == "" {
		return ""
	}
	return redactedPlaceholder
}
