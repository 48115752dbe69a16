package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)

	rec, err := s.Create("Add login page", "feat-login")
	if err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("record should have an id")
	}
	if rec.Status != StatusCreated {
		t.Errorf("expected status created, got %q", rec.Status)
	}

	got, err := s.Get(rec.ID)
	if err != nil {
		t.Fatalf("failed to get task: %v", err)
	}
	if got == nil {
		t.Fatal("expected record, got nil")
	}
	if got.Status != StatusCreated {
		t.Errorf("expected status created, got %q", got.Status)
	}
	if len(got.FeedbackHistory) != 0 {
		t.Errorf("expected empty feedback history, got %d entries", len(got.FeedbackHistory))
	}
	if got.BranchName != "feat-login" {
		t.Errorf("expected branch feat-login, got %q", got.BranchName)
	}

	// Description is also written as the initial feedback artifact.
	initial := filepath.Join(s.Dir(), rec.ID, "feedback", "001_initial.md")
	data, err := os.ReadFile(initial)
	if err != nil {
		t.Fatalf("failed to read initial feedback: %v", err)
	}
	if string(data) != "Add login page" {
		t.Errorf("unexpected initial feedback content: %q", string(data))
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	s := newTestStore(t)

	rec, err := s.Get("no-such-id")
	if err != nil {
		t.Fatalf("get should not error on missing id: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil record, got %+v", rec)
	}
}

func TestUpdate(t *testing.T) {
	s := newTestStore(t)

	rec, err := s.Create("task", "branch")
	if err != nil {
		t.Fatalf("failed to create task: %v", err)
	}

	updated, err := s.Update(rec.ID, func(r *TaskRecord) {
		r.PRURL = "https://github.com/acme/repo/pull/7"
		r.ContainerID = "abc123"
	})
	if err != nil {
		t.Fatalf("failed to update task: %v", err)
	}
	if updated.PRURL != "https://github.com/acme/repo/pull/7" {
		t.Errorf("pr_url not updated: %q", updated.PRURL)
	}

	// pr_url is mirrored into the index.
	index, err := s.List()
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if index[rec.ID].PRURL != "https://github.com/acme/repo/pull/7" {
		t.Errorf("index pr_url not mirrored: %q", index[rec.ID].PRURL)
	}
}

func TestUpdateUnknownID(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Update("missing", func(r *TaskRecord) {}); err == nil {
		t.Error("expected error for unknown id")
	}
}

func TestAddFeedbackCounts(t *testing.T) {
	s := newTestStore(t)

	rec, err := s.Create("task", "branch")
	if err != nil {
		t.Fatalf("failed to create task: %v", err)
	}

	for i := 1; i <= 3; i++ {
		updated, err := s.AddFeedback(rec.ID, "more work", FeedbackText)
		if err != nil {
			t.Fatalf("failed to add feedback %d: %v", i, err)
		}
		if updated.ContinuationCount != i {
			t.Errorf("expected continuation_count %d, got %d", i, updated.ContinuationCount)
		}
		if len(updated.FeedbackHistory) != i {
			t.Errorf("expected %d feedback entries, got %d", i, len(updated.FeedbackHistory))
		}
		if updated.Status != StatusContinued {
			t.Errorf("expected status continued, got %q", updated.Status)
		}
		if updated.LastContinuedAt == nil {
			t.Error("last_continued_at should be set")
		}
	}
}

func TestAddFeedbackSnapshots(t *testing.T) {
	s := newTestStore(t)

	rec, err := s.Create("task", "branch")
	if err != nil {
		t.Fatalf("failed to create task: %v", err)
	}

	if _, err := s.AddFeedback(rec.ID, "first round", FeedbackText); err != nil {
		t.Fatalf("failed to add feedback: %v", err)
	}
	if _, err := s.AddFeedback(rec.ID, "second round", FeedbackFile); err != nil {
		t.Fatalf("failed to add feedback: %v", err)
	}

	feedbackDir := filepath.Join(s.Dir(), rec.ID, "feedback")
	for _, name := range []string{"002_continue.md", "003_continue.md"} {
		if _, err := os.Stat(filepath.Join(feedbackDir, name)); err != nil {
			t.Errorf("expected snapshot %s: %v", name, err)
		}
	}

	data, _ := os.ReadFile(filepath.Join(feedbackDir, "003_continue.md"))
	if string(data) != "second round" {
		t.Errorf("unexpected snapshot content: %q", string(data))
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)

	rec, err := s.Create("task", "branch")
	if err != nil {
		t.Fatalf("failed to create task: %v", err)
	}

	if err := s.Delete(rec.ID); err != nil {
		t.Fatalf("failed to delete task: %v", err)
	}

	if _, err := os.Stat(filepath.Join(s.Dir(), rec.ID)); !os.IsNotExist(err) {
		t.Error("task directory should be removed")
	}

	got, err := s.Get(rec.ID)
	if err != nil {
		t.Fatalf("get after delete errored: %v", err)
	}
	if got != nil {
		t.Error("expected nil after delete")
	}

	index, _ := s.List()
	if _, ok := index[rec.ID]; ok {
		t.Error("index entry should be removed")
	}
}

func TestSearchCaseInsensitive(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Create("Implement Authentication flow", "auth"); err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	if _, err := s.Create("Fix pagination", "pages"); err != nil {
		t.Fatalf("failed to create task: %v", err)
	}

	matches, err := s.Search("AUTH")
	if err != nil {
		t.Fatalf("failed to search: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].BranchName != "auth" {
		t.Errorf("wrong match: %+v", matches[0])
	}
}

func TestLookupByPR(t *testing.T) {
	s := newTestStore(t)

	rec, err := s.Create("task", "branch")
	if err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	url := "https://github.com/acme/repo/pull/42"
	if _, err := s.Update(rec.ID, func(r *TaskRecord) { r.PRURL = url }); err != nil {
		t.Fatalf("failed to update: %v", err)
	}

	found, err := s.LookupByPR(url)
	if err != nil {
		t.Fatalf("failed to lookup: %v", err)
	}
	if found == nil || found.ID != rec.ID {
		t.Errorf("expected record %s, got %+v", rec.ID, found)
	}

	none, err := s.LookupByPR("https://github.com/acme/repo/pull/999")
	if err != nil {
		t.Fatalf("lookup errored: %v", err)
	}
	if none != nil {
		t.Error("expected nil for unknown pr url")
	}
}

func TestResolvePrefix(t *testing.T) {
	s := newTestStore(t)

	rec, err := s.Create("task", "branch")
	if err != nil {
		t.Fatalf("failed to create task: %v", err)
	}

	found, err := s.ResolvePrefix(rec.ID[:8])
	if err != nil {
		t.Fatalf("failed to resolve prefix: %v", err)
	}
	if found.ID != rec.ID {
		t.Errorf("expected %s, got %s", rec.ID, found.ID)
	}

	if _, err := s.ResolvePrefix("zzzzzzzz"); err == nil {
		t.Error("expected error for unmatched prefix")
	}

	// Empty prefix matches everything; with two records that is ambiguous.
	if _, err := s.Create("another", "b2"); err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	if _, err := s.ResolvePrefix(""); err == nil {
		t.Error("expected ambiguity error")
	}
}

func TestSaveAndGetLog(t *testing.T) {
	s := newTestStore(t)

	rec, err := s.Create("task", "branch")
	if err != nil {
		t.Fatalf("failed to create task: %v", err)
	}

	if err := s.SaveLog(rec.ID, "output", "hello"); err != nil {
		t.Fatalf("failed to save log: %v", err)
	}
	got, err := s.GetLog(rec.ID, "output")
	if err != nil {
		t.Fatalf("failed to get log: %v", err)
	}
	if got != "hello" {
		t.Errorf("expected %q, got %q", "hello", got)
	}

	// Whole-file overwrite, not append.
	if err := s.SaveLog(rec.ID, "output", "replaced"); err != nil {
		t.Fatalf("failed to save log: %v", err)
	}
	got, _ = s.GetLog(rec.ID, "output")
	if got != "replaced" {
		t.Errorf("expected %q, got %q", "replaced", got)
	}

	missing, err := s.GetLog(rec.ID, "nope")
	if err != nil {
		t.Fatalf("missing log should not error: %v", err)
	}
	if missing != "" {
		t.Errorf("expected empty log, got %q", missing)
	}
}

func TestLogsListing(t *testing.T) {
	s := newTestStore(t)

	rec, err := s.Create("task", "branch")
	if err != nil {
		t.Fatalf("failed to create task: %v", err)
	}

	types, err := s.Logs(rec.ID)
	if err != nil {
		t.Fatalf("failed to list logs: %v", err)
	}
	if len(types) != 0 {
		t.Errorf("expected no logs yet, got %v", types)
	}

	s.SaveLog(rec.ID, "assistant_output", "a")
	s.SaveLog(rec.ID, "assistant_commit", "b")
	s.SaveLog(rec.ID, "assistant_output_cont_1", "c")

	types, err = s.Logs(rec.ID)
	if err != nil {
		t.Fatalf("failed to list logs: %v", err)
	}
	want := []string{"assistant_commit", "assistant_output", "assistant_output_cont_1"}
	if len(types) != len(want) {
		t.Fatalf("expected %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("log %d: expected %q, got %q", i, want[i], types[i])
		}
	}
}

func TestHistoryOrderAndFilter(t *testing.T) {
	s := newTestStore(t)

	first, err := s.Create("first", "b1")
	if err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	// Force distinct created_at ordering.
	if _, err := s.Update(first.ID, func(r *TaskRecord) {
		r.CreatedAt = r.CreatedAt.Add(-time.Hour)
	}); err != nil {
		t.Fatalf("failed to backdate: %v", err)
	}
	second, err := s.Create("second", "b2")
	if err != nil {
		t.Fatalf("failed to create task: %v", err)
	}

	records, err := s.History(10, "")
	if err != nil {
		t.Fatalf("failed to get history: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != second.ID {
		t.Error("history should be newest first")
	}

	filtered, err := s.History(10, "b1")
	if err != nil {
		t.Fatalf("failed to get filtered history: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != first.ID {
		t.Errorf("expected only b1 record, got %d", len(filtered))
	}

	limited, err := s.History(1, "")
	if err != nil {
		t.Fatalf("failed to get limited history: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected 1 record with limit, got %d", len(limited))
	}
}

func TestLookupByBranch(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Create("task one", "shared"); err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	rec, err := s.Create("task two", "shared")
	if err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	if _, err := s.Update(rec.ID, func(r *TaskRecord) {
		r.CreatedAt = r.CreatedAt.Add(time.Hour)
	}); err != nil {
		t.Fatalf("failed to update: %v", err)
	}

	found, err := s.LookupByBranch("shared")
	if err != nil {
		t.Fatalf("failed to lookup by branch: %v", err)
	}
	if found == nil || found.ID != rec.ID {
		t.Error("expected the most recent record on the branch")
	}
}
