package veille

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pdfveille/docpipe/pdftest"
	"github.com/hazyhaar/pdfveille/veille/internal/corpus"
)

var testMCPImpl = &mcp.Implementation{Name: "pdfveille-test", Version: "0.1.0"}

func mcpSession(t *testing.T, svc *Service) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCallTool(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text, result.IsError
}

func TestMCP_Search(t *testing.T) {
	// WHAT: veille_search returns grouped occurrences as JSON.
	// WHY: MCP clients use the same query surface as the web form.
	pub := newPublisher(t, func(base string) string {
		return rss(`<item><title>Budget</title><link>` + base + `/doc.pdf</link></item>`)
	}, map[string][]byte{"/doc.pdf": pdftest.TextPDF("Le budget 2024 est approuvé.")})
	svc, _ := setupTestService(t, nil)
	if _, err := svc.IngestURL(context.Background(), pub.URL+"/feed.xml"); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	session := mcpSession(t, svc)

	text, isErr := mcpCallTool(t, session, "veille_search", map[string]any{"query": "BUDGET"})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var resp SearchResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Query != "BUDGET" || len(resp.Results) != 1 {
		t.Fatalf("response: got %+v", resp)
	}
	occ := resp.Results[0].Occurrences
	if len(occ) != 1 || occ[0].Word != "BUDGET" || occ[0].Context != "Le budget 2024 est approuvé." {
		t.Errorf("occurrences: got %+v", occ)
	}
}

func TestMCP_SearchEmptyQuery(t *testing.T) {
	svc, _ := setupTestService(t, nil)
	session := mcpSession(t, svc)
	text, isErr := mcpCallTool(t, session, "veille_search", map[string]any{"query": "  "})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var resp SearchResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Errorf("results should be an empty list, got %s", text)
	}
}

func TestMCP_Publications(t *testing.T) {
	svc, _ := setupTestService(t, nil)
	if _, err := svc.IngestFeed(context.Background(), []byte(rss(
		`<item><title>Un</title><link>https://x/1.pdf</link></item>`,
		`<item><title>Deux</title></item>`,
	))); err != nil {
		t.Fatal(err)
	}
	session := mcpSession(t, svc)

	text, isErr := mcpCallTool(t, session, "veille_publications", map[string]any{})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var pubs []PublicationStatus
	if err := json.Unmarshal([]byte(text), &pubs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(pubs) != 2 || pubs[0].Title != "Un" || pubs[0].State != corpus.NotStarted {
		t.Errorf("publications: got %s", text)
	}
	if pubs[1].Title != "Deux" || len(pubs[1].DocumentURLs) != 0 {
		t.Errorf("second publication: got %+v", pubs[1])
	}
}

func TestMCP_IngestError(t *testing.T) {
	// WHAT: Ingest failures come back as tool errors, not protocol errors.
	// WHY: MCP clients must be able to read the message.
	svc, _ := setupTestService(t, nil)
	session := mcpSession(t, svc)
	text, isErr := mcpCallTool(t, session, "veille_ingest", map[string]any{})
	if !isErr {
		t.Fatalf("expected tool error, got %s", text)
	}
}
