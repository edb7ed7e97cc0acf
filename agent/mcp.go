package agent

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vixlabs/vix/cache"
	"github.com/vixlabs/vix/kit"
)

// RegisterMCP registers the agent's tools on an MCP server.
func (a *Agent) RegisterMCP(srv *mcp.Server) {
	a.registerAnalyzeTool(srv)
	a.registerDescribeTool(srv)
	a.registerAuditTool(srv)
	a.registerTaskTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
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

// --- analyze_page ---

type analyzeRequest struct {
	Force bool `json:"force,omitempty"`
}

func (a *Agent) registerAnalyzeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "vix_analyze_page",
		Description: "Analyze the current page: tag elements, compute tree statistics, and return a summary of the content.",
		InputSchema: inputSchema(map[string]any{
			"force": map[string]any{"type": "boolean", "description": "Bypass the cached summary and ask the backend again"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*analyzeRequest)
		if r.Force {
			a.cache.Delete(cache.Key(cache.NSSummary, a.doc.URL()))
		}
		return a.AnalyzePage(ctx)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		r := &analyzeRequest{}
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, r); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- describe_images ---

type describeRequest struct {
	Retry bool `json:"retry,omitempty"`
}

func (a *Agent) registerDescribeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "vix_describe_images",
		Description: "Generate alt text for the page's relevant images and write it into the document. Blocks until the batch settles.",
		InputSchema: inputSchema(map[string]any{
			"retry": map[string]any{"type": "boolean", "description": "Re-run only the failed jobs of the last batch"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*describeRequest)
		run := a.DescribeImages
		if r.Retry {
			run = a.RetryDescriptions
		}
		prog, applied, err := run(ctx)
		if err != nil {
			return nil, err
		}
		return describeResponse{Progress: prog, Applied: applied}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		r := &describeRequest{}
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, r); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- run_audit ---

func (a *Agent) registerAuditTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "vix_run_audit",
		Description: "Audit the page against accessibility rules, request fixes from the backend, and apply the safe ones.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return a.RunAudit(ctx)
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- page_task ---

type taskRequest struct {
	Prompt string `json:"prompt"`
}

func (a *Agent) registerTaskTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "vix_page_task",
		Description: "Execute a user-phrased task on the page, e.g. 'fill the search box with privacy and submit'. Returns per-command results.",
		InputSchema: inputSchema(map[string]any{
			"prompt": map[string]any{"type": "string", "description": "What to do on the page, in plain language"},
		}, []string{"prompt"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*taskRequest)
		return a.RunPageTask(ctx, r.Prompt)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r taskRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
