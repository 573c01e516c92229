package store

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := testStore(t)

	run := &PipelineRun{ID: "run-1", Query: "minimize cost", Status: "running"}
	if err := s.SaveRun(run); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetRun("run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Status != "running" || got.Query != "minimize cost" {
		t.Fatalf("unexpected run: %+v", got)
	}
	if got.CompletedAt != nil {
		t.Error("running run must not have completed_at")
	}

	// Upsert with the final trace
	trace := json.RawMessage(`{"overall_success": true}`)
	run.Status = "completed"
	run.Trace = trace
	if err := s.SaveRun(run); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err = s.GetRun("run-1")
	if err != nil {
		t.Fatalf("get after upsert: %v", err)
	}
	if got.Status != "completed" {
		t.Errorf("unexpected status %s", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("completed run must have completed_at")
	}
	if string(got.Trace) != string(trace) {
		t.Errorf("unexpected trace %s", got.Trace)
	}
}

func TestGetRunMissing(t *testing.T) {
	s := testStore(t)
	got, err := s.GetRun("nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing run, got %+v", got)
	}
}

func TestRunFailedStage(t *testing.T) {
	s := testStore(t)

	run := &PipelineRun{ID: "run-2", Query: "q", Status: "failed", FirstFailedStage: "data"}
	if err := s.SaveRun(run); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetRun("run-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.FirstFailedStage != "data" {
		t.Errorf("unexpected first failed stage %q", got.FirstFailedStage)
	}
}

func TestListRuns(t *testing.T) {
	s := testStore(t)

	for _, id := range []string{"a", "b", "c"} {
		if err := s.SaveRun(&PipelineRun{ID: id, Query: "q-" + id, Status: "completed"}); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	runs, err := s.ListRuns(2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}

	if err := s.DeleteRun("a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	runs, err = s.ListRuns(10)
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs after delete, got %d", len(runs))
	}
}

func TestScheduledQueryDue(t *testing.T) {
	s := testStore(t)

	past := time.Now().Add(-time.Minute).UTC()
	future := time.Now().Add(time.Hour).UTC()

	queries := []*ScheduledQuery{
		{ID: "due", Name: "nightly", Query: "q1", Schedule: `{"kind":"cron","cron_expr":"0 2 * * *"}`, Status: "active", NextRunAt: &past},
		{ID: "later", Name: "hourly", Query: "q2", Schedule: `{"kind":"interval","interval_ms":3600000}`, Status: "active", NextRunAt: &future},
		{ID: "paused", Name: "paused", Query: "q3", Schedule: `{"kind":"once","at_ms":0}`, Status: "paused", NextRunAt: &past},
	}
	for _, q := range queries {
		if err := s.SaveScheduledQuery(q); err != nil {
			t.Fatalf("save %s: %v", q.ID, err)
		}
	}

	due, err := s.DueScheduledQueries(time.Now().UTC())
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 1 || due[0].ID != "due" {
		t.Fatalf("expected only 'due', got %+v", due)
	}
}

func TestMarkScheduledQueryRun(t *testing.T) {
	s := testStore(t)

	past := time.Now().Add(-time.Minute).UTC()
	q := &ScheduledQuery{ID: "sq-1", Name: "n", Query: "q", Schedule: `{"kind":"interval","interval_ms":60000}`, Status: "active", NextRunAt: &past}
	if err := s.SaveScheduledQuery(q); err != nil {
		t.Fatalf("save: %v", err)
	}

	next := time.Now().Add(time.Minute).UTC()
	if err := s.MarkScheduledQueryRun("sq-1", "success", "", &next); err != nil {
		t.Fatalf("mark: %v", err)
	}

	got, err := s.GetScheduledQuery("sq-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != "active" || got.LastStatus != "success" || got.LastRunAt == nil {
		t.Errorf("unexpected state: %+v", got)
	}
	if got.NextRunAt == nil {
		t.Fatal("missing next run time")
	}

	// One-shot completion: nil nextRun deactivates the query.
	if err := s.MarkScheduledQueryRun("sq-1", "failed", "quorum not met", nil); err != nil {
		t.Fatalf("mark one-shot: %v", err)
	}
	got, err = s.GetScheduledQuery("sq-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != "completed" || got.LastError != "quorum not met" {
		t.Errorf("unexpected state after one-shot: %+v", got)
	}

	due, err := s.DueScheduledQueries(time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("completed query must not come due: %+v", due)
	}
}

func TestSecretRoundTrip(t *testing.T) {
	s := testStore(t)

	sec := &Secret{Name: "us-east-key", Description: "inference key", Value: []byte{1, 2, 3}, Nonce: []byte{9, 8}}
	if err := s.SaveSecret(sec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetSecret("us-east-key")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || string(got.Value) != string(sec.Value) || string(got.Nonce) != string(sec.Nonce) {
		t.Fatalf("unexpected secret: %+v", got)
	}

	// Upsert replaces the ciphertext
	sec.Value = []byte{4, 5}
	if err := s.SaveSecret(sec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, _ = s.GetSecret("us-east-key")
	if string(got.Value) != string([]byte{4, 5}) {
		t.Errorf("upsert did not replace value: %v", got.Value)
	}

	list, err := s.ListSecrets()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Name != "us-east-key" {
		t.Fatalf("unexpected list: %+v", list)
	}
	if len(list[0].Value) != 0 {
		t.Error("list must not expose encrypted values")
	}

	if err := s.DeleteSecret("us-east-key"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err = s.GetSecret("us-east-key")
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if got != nil {
		t.Error("secret should be gone")
	}
}
