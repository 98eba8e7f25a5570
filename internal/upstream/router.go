package upstream

import (
	"context"
	"fmt"

	"github.com/sells-group/lifeline/internal/prompt"
)

// Router dispatches each attempt to the Attempter for the candidate's
// protocol. An empty protocol is treated as ProtocolOpenAI.
type Router struct {
	routes map[Protocol]Attempter
}

// NewRouter creates a Router with openai serving ProtocolOpenAI.
func NewRouter(openai Attempter) *Router {
	return &Router{routes: map[Protocol]Attempter{ProtocolOpenAI: openai}}
}

// Handle registers a for p and returns the router.
func (r *Router) Handle(p Protocol, a Attempter) *Router {
	r.routes[p] = a
	return r
}

// Attempt forwards to the protocol's Attempter. An unregistered protocol
// is reported as a retryable failure so the scheduler moves on.
func (r *Router) Attempt(ctx context.Context, c Candidate, inst prompt.Instruction) Outcome {
	p := c.Protocol
	if p == "" {
		p = ProtocolOpenAI
	}
	a, ok := r.routes[p]
	if !ok {
		return Outcome{Kind: Retryable, Reason: fmt.Sprintf("no client for protocol %q", p)}
	}
	return a.Attempt(ctx, c, inst)
}
