package storage

import (
	"errors"
	"testing"
	"time"
)

func TestEnqueueAndClaimJob(t *testing.T) {
	s := openTestStore(t)

	id, err := s.EnqueueJob(Job{Type: "catalog_upsert", PayloadJSON: `{"item_id":"i1"}`})
	if err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if id == "" {
		t.Fatal("EnqueueJob returned empty id")
	}

	got, err := s.ClaimNextJob([]string{"catalog_upsert"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got == nil {
		t.Fatal("ClaimNextJob returned nil")
	}
	if got.ID != id {
		t.Errorf("ID = %q, want %q", got.ID, id)
	}
	if got.PayloadJSON != `{"item_id":"i1"}` {
		t.Errorf("PayloadJSON = %q", got.PayloadJSON)
	}
	if got.Status != "running" {
		t.Errorf("Status = %q, want running", got.Status)
	}
	if got.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", got.MaxAttempts)
	}
}

func TestClaimNextJob_Empty(t *testing.T) {
	s := openTestStore(t)

	got, err := s.ClaimNextJob([]string{"catalog_upsert"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
	if got, _ := s.ClaimNextJob(nil); got != nil {
		t.Errorf("expected nil for no types, got %+v", got)
	}
}

func TestClaimNextJob_RespectsRunAfterAndType(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.EnqueueJob(Job{ID: "future", Type: "x", PayloadJSON: `{}`, RunAfter: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.EnqueueJob(Job{ID: "other", Type: "y", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	got, err := s.ClaimNextJob([]string{"x"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestClaimNextJob_SkipsRunning(t *testing.T) {
	s := openTestStore(t)

	s.EnqueueJob(Job{ID: "first", Type: "x", PayloadJSON: `{}`})
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob first: %v", err)
	}
	s.EnqueueJob(Job{ID: "second", Type: "x", PayloadJSON: `{}`})

	got, err := s.ClaimNextJob([]string{"x"})
	if err != nil {
		t.Fatalf("ClaimNextJob second: %v", err)
	}
	if got == nil || got.ID != "second" {
		t.Errorf("got %+v, want job second", got)
	}
}

func TestCompleteJob(t *testing.T) {
	s := openTestStore(t)

	s.EnqueueJob(Job{ID: "done", Type: "x", PayloadJSON: `{}`})
	s.ClaimNextJob([]string{"x"})
	if err := s.CompleteJob("done"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}

	j, err := s.GetJob("done")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Status != "completed" {
		t.Errorf("status = %q, want completed", j.Status)
	}
	if err := s.CompleteJob("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteJob(missing) = %v, want ErrNotFound", err)
	}
}

func TestFailJob_RetriesThenFails(t *testing.T) {
	s := openTestStore(t)

	s.EnqueueJob(Job{ID: "flaky", Type: "x", PayloadJSON: `{}`, MaxAttempts: 2})
	s.ClaimNextJob([]string{"x"})

	before := time.Now().UTC().Truncate(time.Second)
	if err := s.FailJob("flaky", "db busy"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	j, _ := s.GetJob("flaky")
	if j.Status != "pending" || j.Attempts != 1 || j.LastError != "db busy" {
		t.Errorf("after first failure: %+v", j)
	}
	if !j.RunAfter.After(before) {
		t.Errorf("run_after %v should be after %v", j.RunAfter, before)
	}

	if err := s.FailJob("flaky", "still busy"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	j, _ = s.GetJob("flaky")
	if j.Status != "failed" {
		t.Errorf("status = %q, want failed", j.Status)
	}

	counts, err := s.JobCounts()
	if err != nil {
		t.Fatalf("JobCounts: %v", err)
	}
	if counts["failed"] != 1 {
		t.Errorf("JobCounts = %v", counts)
	}

	if err := s.FailJob("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FailJob(missing) = %v, want ErrNotFound", err)
	}
}
