package api

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/triage/internal/engine"
	"github.com/kalambet/triage/internal/learning"
	"github.com/kalambet/triage/internal/storage"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.ReplaceTaxonomy(testTaxonomy()); err != nil {
		t.Fatalf("seeding taxonomy: %v", err)
	}

	eng := engine.New(store, store, learning.Open(store), engine.Options{})

	return MCPDeps{Engine: eng, Store: store}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPTool_CategorizeCapture(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpCategorizeCapture(deps)

	req := makeCallToolRequest("categorize_capture", map[string]interface{}{
		"text":         "Schedule a workout tomorrow morning",
		"content_type": "task",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var resp CategorizeResponse
	if err := json.Unmarshal([]byte(toolText(t, result)), &resp); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if resp.Pillar != "Health & Fitness" {
		t.Errorf("pillar = %q, want %q", resp.Pillar, "Health & Fitness")
	}
	if resp.ID == "" {
		t.Fatal("result missing capture id")
	}

	captures, err := store.ListCaptures(10)
	if err != nil {
		t.Fatalf("listing captures: %v", err)
	}
	if len(captures) != 1 {
		t.Fatalf("expected 1 capture, got %d", len(captures))
	}
	if captures[0].ContentType != "task" {
		t.Errorf("content type = %q, want task", captures[0].ContentType)
	}
}

func TestMCPTool_CategorizeCapture_MissingText(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpCategorizeCapture(deps)

	result, err := handler(context.Background(), makeCallToolRequest("categorize_capture", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing text")
	}
}

func TestMCPTool_CategorizeCapture_BadContentType(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpCategorizeCapture(deps)

	result, err := handler(context.Background(), makeCallToolRequest("categorize_capture", map[string]interface{}{
		"text":         "review budget",
		"content_type": "memo",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for unknown content type")
	}
}

func TestMCPTool_RecordFeedback(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpRecordFeedback(deps)

	req := makeCallToolRequest("record_feedback", map[string]interface{}{
		"text":             "Review quarterly budget spreadsheet",
		"pillar":           "Career",
		"area":             "Job Search",
		"was_correct":      false,
		"suggested_pillar": "Personal Growth",
		"suggested_area":   "General",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	stats := deps.Engine.LearningStats()
	if stats.TotalItems != 1 {
		t.Errorf("total items = %d, want 1", stats.TotalItems)
	}
}

func TestMCPTool_RecordFeedback_MissingPillar(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpRecordFeedback(deps)

	result, err := handler(context.Background(), makeCallToolRequest("record_feedback", map[string]interface{}{
		"text": "review budget",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing pillar")
	}
}

func TestMCPTool_LearningStats(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	if err := deps.Engine.LearnFromFeedback("morning run done", engine.Category{Pillar: "Health & Fitness"}, nil, true); err != nil {
		t.Fatalf("seeding feedback: %v", err)
	}

	handler := mcpLearningStats(deps)
	result, err := handler(context.Background(), makeCallToolRequest("learning_stats", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var stats learning.Stats
	if err := json.Unmarshal([]byte(toolText(t, result)), &stats); err != nil {
		t.Fatalf("decoding stats: %v", err)
	}
	if stats.TotalItems != 1 || stats.Accuracy != 1 {
		t.Errorf("stats = %+v, want 1 item at accuracy 1", stats)
	}
}

func TestMCPResource_Taxonomy(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpResourceTaxonomy(deps)

	contents, err := handler(context.Background(), makeReadResourceRequest("triage://taxonomy"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var wire TaxonomyWire
	if err := json.Unmarshal([]byte(text.Text), &wire); err != nil {
		t.Fatalf("decoding taxonomy: %v", err)
	}
	if len(wire.Pillars) != 3 {
		t.Errorf("len(pillars) = %d, want 3", len(wire.Pillars))
	}
}

func TestMCPResource_Recent(t *testing.T) {
	deps, store := newTestMCPDeps(t)

	if _, err := store.SaveCapture(storage.CaptureRecord{Text: "run 5k", ContentType: "task", Pillar: "Health & Fitness"}); err != nil {
		t.Fatalf("seeding capture: %v", err)
	}

	handler := mcpResourceRecent(deps)
	contents, err := handler(context.Background(), makeReadResourceRequest("triage://recent"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := contents[0].(mcp.TextResourceContents)

	var items []map[string]any
	if err := json.Unmarshal([]byte(text.Text), &items); err != nil {
		t.Fatalf("decoding captures: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 capture, got %d", len(items))
	}
	if items[0]["pillar"] != "Health & Fitness" {
		t.Errorf("pillar = %v, want Health & Fitness", items[0]["pillar"])
	}
}
