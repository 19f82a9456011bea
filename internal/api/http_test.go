package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/triage/internal/engine"
	"github.com/kalambet/triage/internal/ingest"
	"github.com/kalambet/triage/internal/learning"
	"github.com/kalambet/triage/internal/storage"
	"github.com/kalambet/triage/internal/taxonomy"
)

const testToken = "test-token-12345"

func testTaxonomy() taxonomy.Snapshot {
	return taxonomy.Snapshot{Pillars: []taxonomy.Pillar{
		{Name: "Health & Fitness", Areas: []taxonomy.Area{
			{Name: "Fitness", Projects: []taxonomy.Project{{Name: "Marathon Training", Active: true}}},
			{Name: "Nutrition"},
		}},
		{Name: "Career", Areas: []taxonomy.Area{{Name: "Job Search"}}},
		{Name: "Personal Growth", Areas: []taxonomy.Area{{Name: "General"}}},
	}}
}

func setupAppHandler(t *testing.T, token string) (http.Handler, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.ReplaceTaxonomy(testTaxonomy()); err != nil {
		t.Fatalf("ReplaceTaxonomy failed: %v", err)
	}

	eng := engine.New(store, store, learning.Open(store), engine.Options{})

	handler := NewAppHandler(AppDeps{
		Engine: eng,
		Store:  store,
		Token:  token,
	})
	return handler, store
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestCategorize(t *testing.T) {
	h, store := setupAppHandler(t, testToken)

	body := `{"text":"Schedule a workout tomorrow morning","content_type":"task"}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/categorize", body, testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp CategorizeResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID == "" {
		t.Fatal("response missing id")
	}
	if resp.Pillar != "Health & Fitness" {
		t.Errorf("pillar = %q, want %q", resp.Pillar, "Health & Fitness")
	}
	if resp.Confidence <= 0 || resp.Confidence > 1 {
		t.Errorf("confidence = %v, want in (0, 1]", resp.Confidence)
	}

	captures, err := store.ListCaptures(10)
	if err != nil {
		t.Fatalf("ListCaptures failed: %v", err)
	}
	if len(captures) != 1 {
		t.Fatalf("len(captures) = %d, want 1", len(captures))
	}
	if captures[0].ID != resp.ID {
		t.Errorf("stored id = %q, want %q", captures[0].ID, resp.ID)
	}
}

func TestCategorize_Validation(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	tests := []struct {
		name string
		body string
	}{
		{"missing text", `{"content_type":"task"}`},
		{"unknown content type", `{"text":"review budget","content_type":"memo"}`},
		{"malformed json", `{"text":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, authReq(http.MethodPost, "/categorize", tt.body, testToken))
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestCategorize_DefaultContentType(t *testing.T) {
	h, store := setupAppHandler(t, testToken)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/categorize", `{"text":"random thought about dinner"}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	captures, _ := store.ListCaptures(1)
	if len(captures) != 1 || captures[0].ContentType != "note" {
		t.Fatalf("content type = %v, want note", captures)
	}
}

func TestFeedbackAndStats(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	body := `{
		"text": "Review quarterly budget spreadsheet",
		"accepted": {"pillar": "Career", "area": "Job Search"},
		"suggested": {"pillar": "Personal Growth", "area": "General"},
		"was_correct": false
	}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/feedback", body, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("feedback status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/stats", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("stats status = %d, want %d", rr.Code, http.StatusOK)
	}

	var stats learning.Stats
	if err := json.NewDecoder(rr.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalItems != 1 {
		t.Errorf("total items = %d, want 1", stats.TotalItems)
	}
	if stats.Accuracy != 0 {
		t.Errorf("accuracy = %v, want 0", stats.Accuracy)
	}
}

func TestFeedback_Validation(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	tests := []struct {
		name string
		body string
	}{
		{"missing text", `{"accepted":{"pillar":"Career"}}`},
		{"missing pillar", `{"text":"review budget","accepted":{"area":"Finance"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, authReq(http.MethodPost, "/feedback", tt.body, testToken))
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestListCaptures(t *testing.T) {
	h, store := setupAppHandler(t, testToken)

	for _, text := range []string{"first capture", "second capture", "third capture"} {
		if _, err := store.SaveCapture(storage.CaptureRecord{Text: text, ContentType: "note", Pillar: "Career"}); err != nil {
			t.Fatalf("SaveCapture failed: %v", err)
		}
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/captures?limit=2", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var resp struct {
		Captures []captureDTO `json:"captures"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Captures) != 2 {
		t.Fatalf("len(captures) = %d, want 2", len(resp.Captures))
	}
}

func TestTaxonomyRoundTrip(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	body := `{"pillars":[
		{"name":"Work","areas":[{"name":"Clients","projects":[{"name":"Acme Redesign","active":true}]}]},
		{"name":"Home"}
	]}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPut, "/taxonomy", body, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("put status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/taxonomy", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d, want %d", rr.Code, http.StatusOK)
	}

	var wire TaxonomyWire
	if err := json.NewDecoder(rr.Body).Decode(&wire); err != nil {
		t.Fatalf("decode taxonomy: %v", err)
	}
	if len(wire.Pillars) != 2 {
		t.Fatalf("len(pillars) = %d, want 2", len(wire.Pillars))
	}
	if wire.Pillars[0].Name != "Work" || wire.Pillars[1].Name != "Home" {
		t.Errorf("pillar order = %q, %q", wire.Pillars[0].Name, wire.Pillars[1].Name)
	}
	if len(wire.Pillars[0].Areas) != 1 || len(wire.Pillars[0].Areas[0].Projects) != 1 {
		t.Fatalf("nested structure not preserved: %+v", wire.Pillars[0])
	}
	if !wire.Pillars[0].Areas[0].Projects[0].Active {
		t.Error("project active flag lost")
	}
}

func TestPutTaxonomy_Validation(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	tests := []struct {
		name string
		body string
	}{
		{"no pillars", `{"pillars":[]}`},
		{"unnamed pillar", `{"pillars":[{"name":""}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, authReq(http.MethodPut, "/taxonomy", tt.body, testToken))
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestImport_EnqueuesJob(t *testing.T) {
	h, store := setupAppHandler(t, testToken)

	body := `{"path":"/tmp/notes.txt","content_type":"note"}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/import", body, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp map[string]string
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["status"] != "queued" || resp["id"] == "" {
		t.Fatalf("response = %v, want queued with id", resp)
	}

	job, err := store.ClaimNextJob([]string{ingest.JobType})
	if err != nil {
		t.Fatalf("ClaimNextJob failed: %v", err)
	}
	if job == nil {
		t.Fatal("no job enqueued")
	}
	var payload ingest.Payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Path != "/tmp/notes.txt" {
		t.Errorf("payload path = %q, want %q", payload.Path, "/tmp/notes.txt")
	}
}

func TestBearerAuth(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/stats", "", "wrong-token"))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/stats", "", ""))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("missing token: status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestHealth_NoAuthRequired(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/health", "", ""))
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestBearerAuth_DisabledWhenTokenEmpty(t *testing.T) {
	h, _ := setupAppHandler(t, "")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/stats", "", ""))
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}
