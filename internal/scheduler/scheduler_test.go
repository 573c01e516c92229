package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/swarmopt/swarmopt/internal/config"
	"github.com/swarmopt/swarmopt/internal/store"
)

type fakeRunner struct {
	mu      sync.Mutex
	queries []string
	success bool
}

func (f *fakeRunner) RunQuery(ctx context.Context, query string) (bool, string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.success {
		return true, "run-1", ""
	}
	return false, "run-1", "quorum not met"
}

func (f *fakeRunner) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestSchedulerFiresDueQuery(t *testing.T) {
	db := testStore(t)
	runner := &fakeRunner{success: true}

	past := time.Now().Add(-time.Minute).UTC()
	q := &store.ScheduledQuery{
		ID:        "sq-1",
		Name:      "nightly",
		Query:     "minimize cost",
		Schedule:  `{"kind":"interval","interval_ms":3600000}`,
		Status:    "active",
		NextRunAt: &past,
	}
	if err := db.SaveScheduledQuery(q); err != nil {
		t.Fatalf("save: %v", err)
	}

	sched := New(db, runner, config.SchedulerConfig{PollInterval: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Start(ctx)

	waitFor(t, 2*time.Second, func() bool { return len(runner.calls()) >= 1 })

	if calls := runner.calls(); calls[0] != "minimize cost" {
		t.Errorf("unexpected query %q", calls[0])
	}

	// The interval schedule must be pushed forward, not fire repeatedly.
	waitFor(t, 2*time.Second, func() bool {
		got, err := db.GetScheduledQuery("sq-1")
		if err != nil || got == nil {
			return false
		}
		return got.LastStatus == "completed" && got.NextRunAt != nil && got.NextRunAt.After(time.Now())
	})
}

func TestSchedulerDeactivatesOneShot(t *testing.T) {
	db := testStore(t)
	runner := &fakeRunner{success: false}

	past := time.Now().Add(-time.Minute).UTC()
	q := &store.ScheduledQuery{
		ID:        "sq-once",
		Name:      "one-shot",
		Query:     "q",
		Schedule:  `{"kind":"once","at_ms":1}`,
		Status:    "active",
		NextRunAt: &past,
	}
	if err := db.SaveScheduledQuery(q); err != nil {
		t.Fatalf("save: %v", err)
	}

	sched := New(db, runner, config.SchedulerConfig{PollInterval: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Start(ctx)

	waitFor(t, 2*time.Second, func() bool {
		got, err := db.GetScheduledQuery("sq-once")
		if err != nil || got == nil {
			return false
		}
		return got.Status == "completed"
	})

	got, _ := db.GetScheduledQuery("sq-once")
	if got.LastStatus != "failed" || got.LastError != "quorum not met" {
		t.Errorf("unexpected state: %+v", got)
	}
}
