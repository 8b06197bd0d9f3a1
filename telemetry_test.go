package sambungo

import (
	"net/http"
	"strings"
	"testing"
)

func TestTelemetryPolicySetsUserAgent(t *testing.T) {
	var userAgent string
	transport := TransporterFunc(func(req *http.Request) (*http.Response, error) {
		userAgent = req.Header.Get("User-Agent")
		return newTestResponse(200, "ok"), nil
	})

	pipeline := NewPipeline(transport, NewTelemetryPolicy("myproduct", "1.2.3"))
	resp, err := pipeline.Send(newTestRequest(t, "GET", "http://example.com/", nil))
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	resp.Body.Close()

	if !strings.HasPrefix(userAgent, "myproduct/1.2.3 (") {
		t.Errorf("Expected User-Agent to start with product/version, got %q", userAgent)
	}
}

func TestTelemetryPolicySetsRequestIDHeader(t *testing.T) {
	var headerID string
	transport := TransporterFunc(func(req *http.Request) (*http.Response, error) {
		headerID = req.Header.Get(requestIDHeader)
		return newTestResponse(200, "ok"), nil
	})

	var contextID string
	capture := PolicyFunc(func(pc *PipelineContext, req *http.Request, next Transporter) (*http.Response, error) {
		contextID = pc.RequestID
		return next.Send(req)
	})

	pipeline := NewPipeline(transport, NewTelemetryPolicy("p", "v"), capture)
	resp, err := pipeline.Send(newTestRequest(t, "GET", "http://example.com/", nil))
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	resp.Body.Close()

	if headerID == "" {
		t.Fatal("Expected request id header to be set")
	}
	if headerID != contextID {
		t.Errorf("Expected header id %q to match context id %q", headerID, contextID)
	}
}

func TestTelemetryPolicySingleInvocation(t *testing.T) {
	calls := 0
	pipeline := NewPipeline(countingTransport(&calls, 500), NewTelemetryPolicy("p", "v"))

	resp, err := pipeline.Send(newTestRequest(t, "GET", "http://example.com/", nil))
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	resp.Body.Close()

	// Telemetry never inspects the response and never retries.
	if calls != 1 {
		t.Errorf("Expected 1 transport call, got %d", calls)
	}
	if resp.StatusCode != 500 {
		t.Errorf("Expected 500 passed through, got %d", resp.StatusCode)
	}
}
