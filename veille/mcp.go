package veille

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pdfveille/idgen"
	"github.com/hazyhaar/pdfveille/kit"
)

// RegisterMCP registers all veille tools on an MCP server.
func (svc *Service) RegisterMCP(srv *mcp.Server) {
	svc.registerSearch(srv)
	svc.registerPublications(srv)
	svc.registerIngest(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// wrap is the middleware stack of every tool endpoint.
func (svc *Service) wrap(tool string) kit.Middleware {
	return kit.Chain(withRequestID, svc.logged(tool))
}

// withRequestID gives calls that arrive without a request ID a fresh one.
func withRequestID(next kit.Endpoint) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		if kit.GetRequestID(ctx) == "" {
			ctx = kit.WithRequestID(ctx, idgen.New())
		}
		return next(ctx, req)
	}
}

// logged wraps a tool endpoint with one log line per call.
func (svc *Service) logged(tool string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			log := svc.logger.With("tool", tool, "transport", kit.GetTransport(ctx), "duration", time.Since(start))
			if id := kit.GetRequestID(ctx); id != "" {
				log = log.With("request_id", id)
			}
			if err != nil {
				log.WarnContext(ctx, "veille: tool failed", "error", err)
			} else {
				log.DebugContext(ctx, "veille: tool called")
			}
			return resp, err
		}
	}
}

// SearchResponse is the payload of a search over HTTP JSON and MCP.
type SearchResponse struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
}

func (svc *Service) registerSearch(srv *mcp.Server) {
	type req struct {
		Query string `json:"query"`
	}

	tool := &mcp.Tool{
		Name:        "veille_search",
		Description: "Find every occurrence of each query word in the feed's PDF publications, with surrounding context",
		InputSchema: inputSchema(map[string]any{
			"query": map[string]any{"type": "string", "description": "Whitespace-separated words, matched case-insensitively as substrings"},
		}, []string{"query"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		results, err := svc.Search(ctx, p.Query)
		if err != nil {
			return nil, err
		}
		if results == nil {
			results = []Result{}
		}
		return &SearchResponse{Query: p.Query, Results: results}, nil
	}

	kit.RegisterMCPTool(srv, tool, svc.wrap(tool.Name)(endpoint), kit.JSONArgs[req]())
}

func (svc *Service) registerPublications(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "veille_publications",
		Description: "List the feed's publications with their extraction state and failed documents",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return svc.Publications(ctx)
	}

	kit.RegisterMCPTool(srv, tool, svc.wrap(tool.Name)(endpoint), kit.NoArgs)
}

func (svc *Service) registerIngest(srv *mcp.Server) {
	type req struct {
		FeedURL string `json:"feed_url"`
	}

	tool := &mcp.Tool{
		Name:        "veille_ingest",
		Description: "Re-read the feed and replace the corpus. Uses the configured feed when feed_url is empty",
		InputSchema: inputSchema(map[string]any{
			"feed_url": map[string]any{"type": "string", "description": "Feed URL (optional)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		n, err := svc.IngestURL(ctx, p.FeedURL)
		if err != nil {
			return nil, err
		}
		return map[string]any{"publications": n}, nil
	}

	kit.RegisterMCPTool(srv, tool, svc.wrap(tool.Name)(endpoint), kit.JSONArgs[req]())
}
