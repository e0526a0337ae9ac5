package kit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name+"_before")
				resp, err := next(ctx, req)
				order = append(order, name+"_after")
				return resp, err
			}
		}
	}
	base := func(_ context.Context, _ any) (any, error) {
		order = append(order, "endpoint")
		return "ok", nil
	}

	chained := Chain(mw("a"), mw("b"), mw("c"))(base)
	resp, err := chained(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "ok" {
		t.Fatalf("response: got %v", resp)
	}
	expected := []string{"a_before", "b_before", "c_before", "endpoint", "c_after", "b_after", "a_after"}
	if len(order) != len(expected) {
		t.Fatalf("order length: got %d, want %d", len(order), len(expected))
	}
	for i, v := range expected {
		if order[i] != v {
			t.Fatalf("order[%d]: got %q, want %q", i, order[i], v)
		}
	}
}

func TestChain_ErrorPropagation(t *testing.T) {
	errFail := errors.New("fail")
	base := func(_ context.Context, _ any) (any, error) {
		return nil, errFail
	}
	noop := func(next Endpoint) Endpoint { return next }
	_, err := Chain(noop)(base)(context.Background(), nil)
	if !errors.Is(err, errFail) {
		t.Fatalf("error: got %v, want %v", err, errFail)
	}
}

func TestContext_Transport_Default(t *testing.T) {
	if v := GetTransport(context.Background()); v != "http" {
		t.Fatalf("default transport: got %q, want 'http'", v)
	}
}

func TestContext_Transport_Set(t *testing.T) {
	ctx := WithTransport(context.Background(), "cli")
	if v := GetTransport(ctx); v != "cli" {
		t.Fatalf("transport: got %q", v)
	}
}

func TestContext_RequestID(t *testing.T) {
	ctx := context.Background()
	if v := GetRequestID(ctx); v != "" {
		t.Fatalf("empty context: got %q", v)
	}
	ctx = WithRequestID(ctx, "req_42")
	if v := GetRequestID(ctx); v != "req_42" {
		t.Fatalf("after set: got %q", v)
	}
}

func TestJSONArgs(t *testing.T) {
	type args struct {
		Query string `json:"query"`
	}
	decode := JSONArgs[args]()

	v, err := decode(json.RawMessage(`{"query":"budget"}`))
	if err != nil {
		t.Fatal(err)
	}
	if got := v.(*args).Query; got != "budget" {
		t.Errorf("query: got %q", got)
	}

	// WHAT: missing arguments decode to a zero value, not an error.
	for _, raw := range []json.RawMessage{nil, json.RawMessage("null")} {
		v, err := decode(raw)
		if err != nil || v.(*args).Query != "" {
			t.Errorf("decode(%q): got %+v, %v", raw, v, err)
		}
	}

	if _, err := decode(json.RawMessage(`{"query":42}`)); err == nil {
		t.Error("type mismatch should fail")
	}
}

func TestRegisterMCPTool(t *testing.T) {
	// WHAT: endpoint responses come back as JSON text, errors as tool errors.
	// WHY: MCP clients must see failures without the session breaking.
	type args struct {
		Word string `json:"word"`
	}
	impl := &mcp.Implementation{Name: "kit-test", Version: "0.1.0"}
	srv := mcp.NewServer(impl, nil)
	var transport string
	RegisterMCPTool(srv, &mcp.Tool{
		Name:        "echo",
		InputSchema: map[string]any{"type": "object"},
	}, func(ctx context.Context, req any) (any, error) {
		transport = GetTransport(ctx)
		w := req.(*args).Word
		if w == "" {
			return nil, errors.New("empty word")
		}
		return map[string]string{"word": w}, nil
	}, JSONArgs[args]())

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()
	session, err := mcp.NewClient(impl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "echo", Arguments: map[string]any{"word": "budget"}})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatal("unexpected tool error")
	}
	if text := res.Content[0].(*mcp.TextContent).Text; text != `{"word":"budget"}` {
		t.Errorf("content: got %s", text)
	}
	if transport != "mcp" {
		t.Errorf("transport: got %q", transport)
	}

	res, err = session.CallTool(ctx, &mcp.CallToolParams{Name: "echo", Arguments: map[string]any{}})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("empty word should be a tool error")
	}
}
