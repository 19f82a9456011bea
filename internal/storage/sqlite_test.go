package storage

import (
	"context"
	"testing"
	"time"

	"github.com/kalambet/triage/internal/taxonomy"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndListCaptures(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := s.SaveCapture(CaptureRecord{
			Text:        "capture",
			ContentType: "note",
			Pillar:      "Career",
			Confidence:  0.7,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListCaptures(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if !got[0].CreatedAt.After(got[1].CreatedAt) {
		t.Errorf("captures not newest-first: %v then %v", got[0].CreatedAt, got[1].CreatedAt)
	}
	if got[0].ID == "" {
		t.Error("SaveCapture should assign an ID")
	}
}

func TestRecentCapturesShape(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.SaveCapture(CaptureRecord{Text: "gym session", Pillar: "Health", Area: "Fitness"}); err != nil {
		t.Fatal(err)
	}

	captures, err := s.RecentCaptures(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(captures) != 1 {
		t.Fatalf("len = %d, want 1", len(captures))
	}
	if captures[0].Text != "gym session" || captures[0].Pillar != "Health" || captures[0].Area != "Fitness" {
		t.Errorf("capture = %+v", captures[0])
	}
}

func TestReplaceAndLoadTaxonomy(t *testing.T) {
	s := openTestStore(t)

	tax := taxonomy.Snapshot{Pillars: []taxonomy.Pillar{
		{Name: "Health & Fitness", Areas: []taxonomy.Area{
			{Name: "Fitness", Projects: []taxonomy.Project{{Name: "5k Plan", Active: true}}},
			{Name: "Nutrition"},
		}},
		{Name: "Career"},
	}}
	if err := s.ReplaceTaxonomy(tax); err != nil {
		t.Fatal(err)
	}

	got, err := s.Taxonomy(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Pillars) != 2 || got.Pillars[0].Name != "Health & Fitness" || got.Pillars[1].Name != "Career" {
		t.Fatalf("pillars = %+v", got.Pillars)
	}
	areas := got.Pillars[0].Areas
	if len(areas) != 2 || areas[0].Name != "Fitness" || areas[1].Name != "Nutrition" {
		t.Fatalf("areas = %+v", areas)
	}
	if len(areas[0].Projects) != 1 || !areas[0].Projects[0].Active {
		t.Fatalf("projects = %+v", areas[0].Projects)
	}

	// Replacing again must not accumulate rows.
	if err := s.ReplaceTaxonomy(taxonomy.Snapshot{Pillars: []taxonomy.Pillar{{Name: "Solo"}}}); err != nil {
		t.Fatal(err)
	}
	got, err = s.Taxonomy(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Pillars) != 1 || got.Pillars[0].Name != "Solo" {
		t.Errorf("pillars after replace = %+v", got.Pillars)
	}
}

func TestLearnedWeightsRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertLearnedWeight("sig|one", "health//", 0.16); err != nil {
		t.Fatal(err)
	}
	// Upsert overwrites.
	if err := s.UpsertLearnedWeight("sig|one", "health//", 0.24); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertLearnedWeight("sig|two", "career//", -0.08); err != nil {
		t.Fatal(err)
	}

	weights, err := s.LoadLearnedWeights()
	if err != nil {
		t.Fatal(err)
	}
	if got := weights["sig|one"]["health//"]; got != 0.24 {
		t.Errorf("weight = %v, want 0.24", got)
	}
	if got := weights["sig|two"]["career//"]; got != -0.08 {
		t.Errorf("weight = %v, want -0.08", got)
	}
}

func TestFeedbackCounts(t *testing.T) {
	s := openTestStore(t)

	total, correct, err := s.FeedbackCounts()
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 || correct != 0 {
		t.Fatalf("fresh store counts = %d/%d", correct, total)
	}

	now := time.Now()
	s.SaveFeedbackEvent("text a", "sig", "Career", "", "", true, now)
	s.SaveFeedbackEvent("text b", "sig", "Career", "", "", false, now)
	s.SaveFeedbackEvent("text c", "sig", "Health", "", "", true, now)

	total, correct, err = s.FeedbackCounts()
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || correct != 2 {
		t.Errorf("counts = %d/%d, want 2/3", correct, total)
	}
}

func TestJobQueue(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "job-1", Type: "capture_import", PayloadJSON: `{"path":"notes.txt"}`}); err != nil {
		t.Fatal(err)
	}

	j, err := s.ClaimNextJob([]string{"capture_import"})
	if err != nil {
		t.Fatal(err)
	}
	if j == nil || j.ID != "job-1" || j.Status != "running" {
		t.Fatalf("claimed job = %+v", j)
	}

	// Queue is now empty for this type.
	j2, err := s.ClaimNextJob([]string{"capture_import"})
	if err != nil {
		t.Fatal(err)
	}
	if j2 != nil {
		t.Errorf("expected empty queue, got %+v", j2)
	}

	if err := s.CompleteJob("job-1"); err != nil {
		t.Fatal(err)
	}
	if err := s.CompleteJob("missing"); err != ErrNotFound {
		t.Errorf("CompleteJob(missing) = %v, want ErrNotFound", err)
	}
}

func TestFailJobBacksOffThenFails(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "job-2", Type: "capture_import", PayloadJSON: `{}`, MaxAttempts: 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ClaimNextJob([]string{"capture_import"}); err != nil {
		t.Fatal(err)
	}

	// First failure reschedules with backoff; the job is not yet claimable.
	if err := s.FailJob("job-2", "boom"); err != nil {
		t.Fatal(err)
	}
	j, err := s.ClaimNextJob([]string{"capture_import"})
	if err != nil {
		t.Fatal(err)
	}
	if j != nil {
		t.Fatalf("backed-off job should not be claimable yet, got %+v", j)
	}

	// Second failure exhausts the attempt budget.
	if err := s.FailJob("job-2", "boom again"); err != nil {
		t.Fatal(err)
	}
	j, err = s.ClaimNextJob([]string{"capture_import"})
	if err != nil {
		t.Fatal(err)
	}
	if j != nil {
		t.Errorf("failed job must not be claimable, got %+v", j)
	}
}
