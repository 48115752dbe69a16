package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DataDirName is the per-project data directory.
	DataDirName = ".taskcell"

	registryFile = "task_registry.json"
	recordFile   = "task.json"
)

// Store manages task records for one project. Writes are atomic
// (temp file + rename) and serialized in-process; concurrent writers in
// other processes remain last-write-wins.
type Store struct {
	mu       sync.Mutex
	tasksDir string
}

// Open opens (creating if needed) the task store for a project root.
func Open(projectRoot string) (*Store, error) {
	tasksDir := filepath.Join(projectRoot, DataDirName, "tasks")
	if err := os.MkdirAll(tasksDir, 0o755); err != nil {
		return nil, fmt.Errorf("create tasks dir: %w", err)
	}
	return &Store{tasksDir: tasksDir}, nil
}

// Dir returns the store's tasks directory.
func (s *Store) Dir() string {
	return s.tasksDir
}

// Create makes a new record with a fresh id and status created, writes
// the description as the first feedback artifact, and registers the
// record in the index.
func (s *Store) Create(description, branch string) (*TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &TaskRecord{
		ID:              uuid.New().String(),
		Description:     description,
		Status:          StatusCreated,
		BranchName:      branch,
		CreatedAt:       time.Now(),
		FeedbackHistory: []FeedbackEntry{},
	}

	taskDir := filepath.Join(s.tasksDir, rec.ID)
	for _, dir := range []string{taskDir, filepath.Join(taskDir, "feedback"), filepath.Join(taskDir, "logs")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create task dir: %w", err)
		}
	}

	initial := filepath.Join(taskDir, "feedback", "001_initial.md")
	if err := os.WriteFile(initial, []byte(description), 0o644); err != nil {
		return nil, fmt.Errorf("write initial feedback: %w", err)
	}

	if err := s.writeRecord(rec); err != nil {
		return nil, err
	}
	if err := s.updateIndex(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Get returns the record for an exact id, or nil if absent. Short-id
// resolution is the caller's job; see ResolvePrefix.
func (s *Store) Get(id string) (*TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readRecord(id)
}

// Update loads a record, applies mutate, persists it, and mirrors
// status and pr_url into the index. Unknown ids are an error.
func (s *Store) Update(id string, mutate func(*TaskRecord)) (*TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.readRecord(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("task %s not found", id)
	}

	mutate(rec)
	rec.ID = id

	if err := s.writeRecord(rec); err != nil {
		return nil, err
	}
	if err := s.updateIndex(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// AddFeedback appends a feedback entry, bumps the continuation count,
// marks the record continued, and writes a numbered snapshot file
// alongside the structured history.
func (s *Store) AddFeedback(id, feedback string, ftype FeedbackType) (*TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.readRecord(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("task %s not found", id)
	}

	now := time.Now()
	rec.FeedbackHistory = append(rec.FeedbackHistory, FeedbackEntry{
		Timestamp:    now,
		Feedback:     feedback,
		FeedbackType: ftype,
	})
	rec.ContinuationCount++
	rec.LastContinuedAt = &now
	rec.Status = StatusContinued

	// 001_initial is the creation artifact, so the first continuation
	// snapshot is 002.
	snapshot := filepath.Join(s.tasksDir, id, "feedback",
		fmt.Sprintf("%03d_continue.md", rec.ContinuationCount+1))
	if err := os.WriteFile(snapshot, []byte(feedback), 0o644); err != nil {
		return nil, fmt.Errorf("write feedback snapshot: %w", err)
	}

	if err := s.writeRecord(rec); err != nil {
		return nil, err
	}
	if err := s.updateIndex(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes the index entry and the task directory. Irreversible.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.readIndex()
	if err != nil {
		return err
	}
	if _, ok := index[id]; !ok {
		return fmt.Errorf("task %s not found", id)
	}
	delete(index, id)
	if err := s.writeIndex(index); err != nil {
		return err
	}

	if err := os.RemoveAll(filepath.Join(s.tasksDir, id)); err != nil {
		return fmt.Errorf("remove task dir: %w", err)
	}
	return nil
}

// Search returns records whose description contains the query,
// case-insensitively.
func (s *Store) Search(query string) ([]*TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.readIndex()
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	var matches []*TaskRecord
	for id := range index {
		rec, err := s.readRecord(id)
		if err != nil || rec == nil {
			continue
		}
		if strings.Contains(strings.ToLower(rec.Description), needle) {
			matches = append(matches, rec)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return matches, nil
}

// LookupByPR returns the record whose index entry carries exactly this
// PR URL, or nil if none does.
func (s *Store) LookupByPR(prURL string) (*TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	for id, entry := range index {
		if entry.PRURL == prURL {
			return s.readRecord(id)
		}
	}
	return nil, nil
}

// LookupByBranch returns the most recent record on a branch, or nil.
func (s *Store) LookupByBranch(branch string) (*TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	var bestID string
	var bestAt time.Time
	for id, entry := range index {
		if entry.Branch == branch && (bestID == "" || entry.CreatedAt.After(bestAt)) {
			bestID, bestAt = id, entry.CreatedAt
		}
	}
	if bestID == "" {
		return nil, nil
	}
	return s.readRecord(bestID)
}

// ResolvePrefix resolves a short id prefix against the index. Zero or
// multiple matches are errors.
func (s *Store) ResolvePrefix(prefix string) (*TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.readIndex()
	if err != nil {
		return nil, err
	}

	var matches []string
	for id := range index {
		if strings.HasPrefix(id, prefix) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no task found with id prefix %q", prefix)
	case 1:
		return s.readRecord(matches[0])
	default:
		sort.Strings(matches)
		short := make([]string, len(matches))
		for i, id := range matches {
			short[i] = id[:8]
		}
		return nil, fmt.Errorf("multiple tasks match prefix %q: %s", prefix, strings.Join(short, ", "))
	}
}

// List returns a snapshot of the registry index.
func (s *Store) List() (map[string]IndexEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readIndex()
}

// History returns up to limit records, newest first, optionally
// filtered by branch. limit <= 0 means no limit.
func (s *Store) History(limit int, branch string) ([]*TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.readIndex()
	if err != nil {
		return nil, err
	}

	type candidate struct {
		id string
		at time.Time
	}
	var ids []candidate
	for id, entry := range index {
		if branch != "" && entry.Branch != branch {
			continue
		}
		ids = append(ids, candidate{id, entry.CreatedAt})
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].at.After(ids[j].at) })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	records := make([]*TaskRecord, 0, len(ids))
	for _, c := range ids {
		rec, err := s.readRecord(c.id)
		if err != nil || rec == nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// SaveLog writes content to logs/<logType>.log, replacing any previous
// content. Concurrent continuations must use distinct log types.
func (s *Store) SaveLog(id, logType, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logsDir := filepath.Join(s.tasksDir, id, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(logsDir, logType+".log"), []byte(content), 0o644); err != nil {
		return fmt.Errorf("write log %s: %w", logType, err)
	}
	return nil
}

// GetLog reads a saved log. Returns empty string if the log does not
// exist.
func (s *Store) GetLog(id, logType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.tasksDir, id, "logs", logType+".log"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read log %s: %w", logType, err)
	}
	return string(data), nil
}

// Logs lists the saved log types for a task, sorted.
func (s *Store) Logs(id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.tasksDir, id, "logs"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read logs dir: %w", err)
	}

	var types []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".log") {
			continue
		}
		types = append(types, strings.TrimSuffix(name, ".log"))
	}
	sort.Strings(types)
	return types, nil
}

func (s *Store) recordPath(id string) string {
	return filepath.Join(s.tasksDir, id, recordFile)
}

func (s *Store) readRecord(id string) (*TaskRecord, error) {
	data, err := os.ReadFile(s.recordPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read task record: %w", err)
	}
	var rec TaskRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse task record: %w", err)
	}
	return &rec, nil
}

func (s *Store) writeRecord(rec *TaskRecord) error {
	if err := writeJSONAtomic(s.recordPath(rec.ID), rec); err != nil {
		return fmt.Errorf("write task record: %w", err)
	}
	return nil
}

func (s *Store) readIndex() (map[string]IndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(s.tasksDir, registryFile))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]IndexEntry{}, nil
		}
		return nil, fmt.Errorf("read task registry: %w", err)
	}
	index := map[string]IndexEntry{}
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parse task registry: %w", err)
	}
	return index, nil
}

func (s *Store) writeIndex(index map[string]IndexEntry) error {
	if err := writeJSONAtomic(filepath.Join(s.tasksDir, registryFile), index); err != nil {
		return fmt.Errorf("write task registry: %w", err)
	}
	return nil
}

func (s *Store) updateIndex(rec *TaskRecord) error {
	index, err := s.readIndex()
	if err != nil {
		return err
	}
	index[rec.ID] = IndexEntry{
		Branch:    rec.BranchName,
		CreatedAt: rec.CreatedAt,
		Status:    rec.Status,
		PRURL:     rec.PRURL,
	}
	return s.writeIndex(index)
}

func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
