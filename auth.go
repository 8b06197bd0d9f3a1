package sambungo

import "net/http"

// AuthPolicy attaches a bearer credential to each request and performs at
// most one forced token refresh when the server answers 401. Regardless of
// scopes or retry configuration elsewhere in the chain, the policy makes at
// most two downstream invocations per call.
type AuthPolicy struct {
	provider TokenProvider
	scopes   []string
	metrics  *MetricsCollector
}

// NewAuthPolicy builds an auth policy fetching tokens for the given scopes.
func NewAuthPolicy(provider TokenProvider, scopes ...string) *AuthPolicy {
	return &AuthPolicy{provider: provider, scopes: scopes}
}

// Do implements the Policy interface.
func (p *AuthPolicy) Do(pc *PipelineContext, req *http.Request, next Transporter) (*http.Response, error) {
	trc := TokenRequestContext{Scopes: p.scopes}

	token, err := p.provider.GetToken(req.Context(), trc)
	if err != nil {
		return nil, p.tokenFetchError(pc, err)
	}
	req.Header.Set("Authorization", "Bearer "+token.Token)

	resp, err := next.Send(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	// The token was rejected. Discard the response, force a refresh that
	// bypasses the cache freshness check, and try exactly once more.
	drainAndClose(resp.Body)
	p.metrics.RecordAuthRetry()

	token, err = p.provider.ForceRefresh(req.Context(), trc)
	if err != nil {
		return nil, p.tokenFetchError(pc, err)
	}
	req.Header.Set("Authorization", "Bearer "+token.Token)

	resp, err = next.Send(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	snippet := readSnippet(resp.Body, authSnippetLimit)
	correlationID := resp.Header.Get(correlationIDHeader)
	drainAndClose(resp.Body)

	return nil, &Error{
		Type:          ErrorTypeAuthentication,
		Message:       "authentication failed after token refresh",
		StatusCode:    http.StatusUnauthorized,
		Body:          snippet,
		CorrelationID: correlationID,
		RequestID:     pc.RequestID,
	}
}

func (p *AuthPolicy) tokenFetchError(pc *PipelineContext, cause error) error {
	if e, ok := cause.(*Error); ok && e.Type == ErrorTypeTokenFetch {
		if e.RequestID == "" {
			e.RequestID = pc.RequestID
		}
		return e
	}
	return &Error{
		Type:      ErrorTypeTokenFetch,
		Message:   "failed to acquire token",
		RequestID: pc.RequestID,
		Cause:     cause,
	}
}
