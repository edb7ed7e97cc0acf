package agent_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vixlabs/vix/agent"
	"github.com/vixlabs/vix/dom/memdom"
)

var testImpl = &mcp.Implementation{Name: "vix-test", Version: "0.1.0"}

// mcpSession registers the agent's tools and returns a connected client
// session that can call them end-to-end over in-memory transports.
func mcpSession(t *testing.T, a *agent.Agent) *mcp.ClientSession {
	t.Helper()

	srv := mcp.NewServer(testImpl, nil)
	a.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()

	go func() {
		_ = srv.Run(ctx, serverT)
	}()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

// callTool invokes a tool and returns the JSON text from the first TextContent.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s) tool error: %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text
}

func TestMCP_AnalyzePage(t *testing.T) {
	f := newFakeBackend(t)
	doc := memdom.MustParse(pageHTML, "https://shop.example/")
	a := newAgent(t, doc, f)
	session := mcpSession(t, a)

	text := callTool(t, session, "vix_analyze_page", map[string]any{})

	var page struct {
		URL     string `json:"url"`
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(text), &page); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if page.Summary != "An outdoor equipment shop." || page.URL != "https://shop.example/" {
		t.Errorf("analyzed page = %+v", page)
	}
}

func TestMCP_DescribeImages(t *testing.T) {
	f := newFakeBackend(t)
	doc := memdom.MustParse(pageHTML, "https://shop.example/")
	a := newAgent(t, doc, f)
	session := mcpSession(t, a)

	text := callTool(t, session, "vix_describe_images", map[string]any{})

	var out struct {
		Progress struct {
			Completed int `json:"completed"`
		} `json:"progress"`
		Applied int `json:"applied"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if out.Progress.Completed != 1 || out.Applied != 1 {
		t.Errorf("describe result = %+v", out)
	}
}

func TestMCP_RunAudit(t *testing.T) {
	f := newFakeBackend(t)
	doc := memdom.MustParse(auditHTML, "https://shop.example/")
	a := newAgent(t, doc, f)
	session := mcpSession(t, a)

	text := callTool(t, session, "vix_run_audit", map[string]any{})

	var out struct {
		Violations []struct {
			RuleID string `json:"rule_id"`
		} `json:"violations"`
		Applied int `json:"applied"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(out.Violations) != 1 || out.Applied != 1 {
		t.Errorf("audit result = %+v", out)
	}
}

func TestMCP_PageTask(t *testing.T) {
	f := newFakeBackend(t)
	doc := memdom.MustParse(pageHTML, "https://shop.example/")
	a := newAgent(t, doc, f)
	session := mcpSession(t, a)

	text := callTool(t, session, "vix_page_task", map[string]any{"prompt": "search for tents"})

	var out struct {
		Explanation string `json:"explanation"`
		Failed      int    `json:"failed"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if out.Explanation != "Search for tents." || out.Failed != 0 {
		t.Errorf("task result = %+v", out)
	}
}

func TestMCP_PageTask_MissingPrompt(t *testing.T) {
	f := newFakeBackend(t)
	doc := memdom.MustParse(pageHTML, "https://shop.example/")
	a := newAgent(t, doc, f)
	session := mcpSession(t, a)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "vix_page_task",
		Arguments: map[string]any{},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected a tool error for the missing prompt")
	}
}
