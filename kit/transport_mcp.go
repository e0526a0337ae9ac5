package kit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolDecoder turns the raw arguments of a tool call into the request passed
// to the Endpoint.
type ToolDecoder func(args json.RawMessage) (any, error)

// JSONArgs decodes arguments into a fresh *T. Missing or null arguments give
// a zero *T, so tools with only optional fields accept an empty call.
func JSONArgs[T any]() ToolDecoder {
	return func(args json.RawMessage) (any, error) {
		p := new(T)
		if len(args) == 0 || string(args) == "null" {
			return p, nil
		}
		if err := json.Unmarshal(args, p); err != nil {
			return nil, err
		}
		return p, nil
	}
}

// NoArgs ignores the arguments of a tool call.
func NoArgs(json.RawMessage) (any, error) { return nil, nil }

// RegisterMCPTool exposes endpoint as an MCP tool. Responses are sent as one
// JSON text content. Decode and endpoint errors become tool errors
// (IsError), never protocol errors.
func RegisterMCPTool(srv *mcp.Server, tool *mcp.Tool, endpoint Endpoint, decode ToolDecoder) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		in, err := decode(req.Params.Arguments)
		if err != nil {
			return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
		}

		resp, err := endpoint(WithTransport(ctx, TransportMCP), in)
		if err != nil {
			return toolError(err), nil
		}

		data, err := json.Marshal(resp)
		if err != nil {
			return toolError(fmt.Errorf("marshal: %w", err)), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func toolError(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}
