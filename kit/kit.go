// Package kit provides the endpoint plumbing shared by every transport:
// a uniform Endpoint signature, middleware chaining, typed context keys,
// and MCP tool registration.
//
// Handlers in agent and bus are written once as Endpoints and exposed over
// HTTP, MCP, and the in-process bus without transport-specific variants.
package kit

import "context"

// Endpoint is the uniform handler signature. Request and response are
// transport-decoded/encoded at the edges.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behaviour.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares left to right: the first argument becomes the
// outermost wrapper.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
