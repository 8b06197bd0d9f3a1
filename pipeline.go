package sambungo

import "net/http"

// Pipeline composes an ordered list of policies with a terminal transport
// call. The first policy in the list is the outermost stage; responses flow
// back through the policies in reverse order. A single Pipeline is safe for
// concurrent use since all per-call state lives in the PipelineContext.
type Pipeline struct {
	policies  []Policy
	transport Transporter
}

// NewPipeline builds a pipeline over the given transport. The pipeline never
// takes ownership of the transport; releasing it is the caller's concern.
func NewPipeline(transport Transporter, policies ...Policy) *Pipeline {
	return &Pipeline{
		policies:  policies,
		transport: transport,
	}
}

// Send executes the request through the policy chain with a fresh
// PipelineContext. The continuation handed to each policy always leads to
// the transport and may be invoked more than once (retries, auth re-sends).
func (p *Pipeline) Send(req *http.Request) (*http.Response, error) {
	return p.send(NewPipelineContext(), req)
}

func (p *Pipeline) send(pc *PipelineContext, req *http.Request) (*http.Response, error) {
	current := p.transport

	// Fold back-to-front so the last policy wraps the transport and the
	// first policy ends up outermost.
	for i := len(p.policies) - 1; i >= 0; i-- {
		policy := p.policies[i]
		next := current
		current = TransporterFunc(func(r *http.Request) (*http.Response, error) {
			return policy.Do(pc, r, next)
		})
	}

	return current.Send(req)
}
