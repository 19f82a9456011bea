package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/triage/internal/engine"
	"github.com/kalambet/triage/internal/ingest"
	"github.com/kalambet/triage/internal/storage"
	"github.com/kalambet/triage/internal/taxonomy"
)

const maxRequestBodySize = 1 << 20 // 1MB

type CategorizeRequest struct {
	Text        string `json:"text"`
	ContentType string `json:"content_type"`
}

type CategorizeResponse struct {
	ID string `json:"id"`
	engine.Result
}

type FeedbackRequest struct {
	Text       string           `json:"text"`
	Accepted   engine.Category  `json:"accepted"`
	Suggested  *engine.Category `json:"suggested,omitempty"`
	WasCorrect bool             `json:"was_correct"`
}

type ImportRequest struct {
	Path        string `json:"path"`
	ContentType string `json:"content_type"`
}

type AppDeps struct {
	Engine *engine.Engine
	Store  *storage.Store
	Token  string
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/categorize", handleCategorize(deps))
		r.Post("/feedback", handleFeedback(deps))
		r.Get("/stats", handleStats(deps))
		r.Get("/captures", handleListCaptures(deps))
		r.Get("/taxonomy", handleGetTaxonomy(deps))
		r.Put("/taxonomy", handlePutTaxonomy(deps))
		r.Post("/import", handleImport(deps))
	})

	return r
}

func handleCategorize(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req CategorizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Text == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
			return
		}
		if req.ContentType == "" {
			req.ContentType = string(engine.ContentNote)
		}
		if !engine.ValidContentType(req.ContentType) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown content_type %q", req.ContentType)
			return
		}

		result := deps.Engine.Categorize(r.Context(), req.Text, engine.ContentType(req.ContentType))

		saved, err := deps.Store.SaveCapture(storage.CaptureRecord{
			Text:        req.Text,
			ContentType: req.ContentType,
			Pillar:      result.Pillar,
			Area:        result.Area,
			Project:     result.Project,
			Confidence:  result.Confidence,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save capture: %v", err)
			return
		}

		respondJSON(w, CategorizeResponse{ID: saved.ID, Result: result})
	}
}

func handleFeedback(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req FeedbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Text == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
			return
		}
		if req.Accepted.Pillar == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "accepted.pillar is required")
			return
		}

		if err := deps.Engine.LearnFromFeedback(req.Text, req.Accepted, req.Suggested, req.WasCorrect); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to record feedback: %v", err)
			return
		}

		respondJSON(w, map[string]string{"status": "recorded"})
	}
}

func handleStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, deps.Engine.LearningStats())
	}
}

func handleListCaptures(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		captures, err := deps.Store.ListCaptures(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list captures: %v", err)
			return
		}

		out := make([]captureDTO, 0, len(captures))
		for _, c := range captures {
			out = append(out, captureDTO{
				ID:          c.ID,
				Text:        c.Text,
				ContentType: c.ContentType,
				Pillar:      c.Pillar,
				Area:        c.Area,
				Project:     c.Project,
				Confidence:  c.Confidence,
				CreatedAt:   c.CreatedAt.Format(time.RFC3339),
			})
		}
		respondJSON(w, map[string]any{"captures": out})
	}
}

func handleGetTaxonomy(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		tax, err := deps.Store.Taxonomy(ctx)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load taxonomy: %v", err)
			return
		}
		respondJSON(w, taxonomyToWire(tax))
	}
}

func handlePutTaxonomy(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req TaxonomyWire
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(req.Pillars) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one pillar is required")
			return
		}
		for _, p := range req.Pillars {
			if p.Name == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "pillar name is required")
				return
			}
		}

		if err := deps.Store.ReplaceTaxonomy(taxonomyFromWire(req)); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to store taxonomy: %v", err)
			return
		}

		respondJSON(w, map[string]string{"status": "updated"})
	}
}

func handleImport(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ImportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Path == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "path is required")
			return
		}
		if req.ContentType == "" {
			req.ContentType = string(engine.ContentNote)
		}

		payload, err := json.Marshal(ingest.Payload{Path: req.Path, ContentType: req.ContentType})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to encode job payload: %v", err)
			return
		}

		jobID := uuid.NewString()
		if err := deps.Store.EnqueueJob(storage.Job{
			ID:          jobID,
			Type:        ingest.JobType,
			PayloadJSON: string(payload),
			MaxAttempts: 3,
		}); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue import: %v", err)
			return
		}

		respondJSON(w, map[string]string{"id": jobID, "status": "queued"})
	}
}

type captureDTO struct {
	ID          string  `json:"id"`
	Text        string  `json:"text"`
	ContentType string  `json:"content_type"`
	Pillar      string  `json:"pillar"`
	Area        string  `json:"area,omitempty"`
	Project     string  `json:"project,omitempty"`
	Confidence  float64 `json:"confidence"`
	CreatedAt   string  `json:"created_at"`
}

// TaxonomyWire is the JSON shape of the taxonomy endpoints. IDs are
// optional on input; the store assigns them when missing.
type TaxonomyWire struct {
	Pillars []PillarWire `json:"pillars"`
}

type PillarWire struct {
	ID    string     `json:"id,omitempty"`
	Name  string     `json:"name"`
	Areas []AreaWire `json:"areas,omitempty"`
}

type AreaWire struct {
	ID       string        `json:"id,omitempty"`
	Name     string        `json:"name"`
	Projects []ProjectWire `json:"projects,omitempty"`
}

type ProjectWire struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

func taxonomyToWire(tax taxonomy.Snapshot) TaxonomyWire {
	out := TaxonomyWire{Pillars: make([]PillarWire, 0, len(tax.Pillars))}
	for _, p := range tax.Pillars {
		pw := PillarWire{ID: p.ID, Name: p.Name}
		for _, a := range p.Areas {
			aw := AreaWire{ID: a.ID, Name: a.Name}
			for _, pr := range a.Projects {
				aw.Projects = append(aw.Projects, ProjectWire{ID: pr.ID, Name: pr.Name, Active: pr.Active})
			}
			pw.Areas = append(pw.Areas, aw)
		}
		out.Pillars = append(out.Pillars, pw)
	}
	return out
}

func taxonomyFromWire(req TaxonomyWire) taxonomy.Snapshot {
	var tax taxonomy.Snapshot
	for _, pw := range req.Pillars {
		p := taxonomy.Pillar{ID: pw.ID, Name: pw.Name}
		for _, aw := range pw.Areas {
			a := taxonomy.Area{ID: aw.ID, Name: aw.Name}
			for _, prw := range aw.Projects {
				a.Projects = append(a.Projects, taxonomy.Project{ID: prw.ID, Name: prw.Name, Active: prw.Active})
			}
			p.Areas = append(p.Areas, a)
		}
		tax.Pillars = append(tax.Pillars, p)
	}
	return tax
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
