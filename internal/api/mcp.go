package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/triage/internal/engine"
	"github.com/kalambet/triage/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Engine *engine.Engine
	Store  *storage.Store
}

// NewMCPServer creates an MCP server with all triage tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"triage",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("triage — local categorization engine that files free-text captures into a pillar/area/project taxonomy and learns from corrections."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("categorize_capture",
			mcp.WithDescription("Categorize a free-text capture into the taxonomy. Returns the primary category with confidence, alternatives, reasoning, and extracted metadata."),
			mcp.WithString("text", mcp.Required(), mcp.Description("The capture text to categorize")),
			mcp.WithString("content_type", mcp.Description("Kind of capture: task, note, idea, or goal (default note)")),
		),
		mcpCategorizeCapture(deps),
	)

	s.AddTool(
		mcp.NewTool("record_feedback",
			mcp.WithDescription("Record user feedback on a categorization so future suggestions improve. Pass the category the user accepted and whether the original suggestion was correct."),
			mcp.WithString("text", mcp.Required(), mcp.Description("The original capture text")),
			mcp.WithString("pillar", mcp.Required(), mcp.Description("Pillar of the category the user accepted")),
			mcp.WithString("area", mcp.Description("Area of the accepted category")),
			mcp.WithString("project", mcp.Description("Project of the accepted category")),
			mcp.WithBoolean("was_correct", mcp.Description("Whether the engine's original suggestion was correct (default false)")),
			mcp.WithString("suggested_pillar", mcp.Description("Pillar the engine originally suggested, when different")),
			mcp.WithString("suggested_area", mcp.Description("Area the engine originally suggested")),
			mcp.WithString("suggested_project", mcp.Description("Project the engine originally suggested")),
		),
		mcpRecordFeedback(deps),
	)

	s.AddTool(
		mcp.NewTool("learning_stats",
			mcp.WithDescription("Report how many feedback events the engine has learned from and its running accuracy."),
		),
		mcpLearningStats(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"triage://taxonomy",
			"Taxonomy",
			mcp.WithResourceDescription("Current pillar/area/project taxonomy as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceTaxonomy(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"triage://recent",
			"Recent Captures",
			mcp.WithResourceDescription("Last 10 categorized captures"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpCategorizeCapture(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		kind := req.GetString("content_type", string(engine.ContentNote))
		if !engine.ValidContentType(kind) {
			return mcpError(fmt.Sprintf("unknown content_type %q", kind)), nil
		}

		result := deps.Engine.Categorize(ctx, text, engine.ContentType(kind))

		saved, err := deps.Store.SaveCapture(storage.CaptureRecord{
			Text:        text,
			ContentType: kind,
			Pillar:      result.Pillar,
			Area:        result.Area,
			Project:     result.Project,
			Confidence:  result.Confidence,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to save capture: %v", err)), nil
		}

		b, err := json.Marshal(CategorizeResponse{ID: saved.ID, Result: result})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to encode result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRecordFeedback(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		pillar, err := req.RequireString("pillar")
		if err != nil {
			return mcpError("pillar is required"), nil
		}

		accepted := engine.Category{
			Pillar:  pillar,
			Area:    req.GetString("area", ""),
			Project: req.GetString("project", ""),
		}

		var suggested *engine.Category
		if sp := req.GetString("suggested_pillar", ""); sp != "" {
			suggested = &engine.Category{
				Pillar:  sp,
				Area:    req.GetString("suggested_area", ""),
				Project: req.GetString("suggested_project", ""),
			}
		}

		wasCorrect := req.GetBool("was_correct", false)

		if err := deps.Engine.LearnFromFeedback(text, accepted, suggested, wasCorrect); err != nil {
			return mcpError(fmt.Sprintf("failed to record feedback: %v", err)), nil
		}
		return mcpText("Feedback recorded."), nil
	}
}

func mcpLearningStats(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats := deps.Engine.LearningStats()
		b, err := json.Marshal(stats)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to encode stats: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceTaxonomy(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		tax, err := deps.Store.Taxonomy(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load taxonomy: %w", err)
		}

		b, err := json.Marshal(taxonomyToWire(tax))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal taxonomy: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		captures, err := deps.Store.ListCaptures(10)
		if err != nil {
			return nil, fmt.Errorf("failed to list captures: %w", err)
		}

		type item struct {
			Text       string  `json:"text"`
			Pillar     string  `json:"pillar"`
			Area       string  `json:"area,omitempty"`
			Project    string  `json:"project,omitempty"`
			Confidence float64 `json:"confidence"`
		}
		items := make([]item, 0, len(captures))
		for _, c := range captures {
			items = append(items, item{
				Text:       c.Text,
				Pillar:     c.Pillar,
				Area:       c.Area,
				Project:    c.Project,
				Confidence: c.Confidence,
			})
		}

		b, err := json.Marshal(items)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal captures: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
