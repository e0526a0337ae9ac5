// Package kit holds the transport-neutral endpoint shape shared by the HTTP
// handlers and the MCP tools, plus the request-scoped context values.
package kit

import "context"

// Endpoint is a transport-neutral handler: decoded request in, response out.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so that the first one is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
