package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/catface996/aiops-executor/internal/domain"
	"github.com/catface996/aiops-executor/internal/id"
	"github.com/catface996/aiops-executor/internal/logging"
	"github.com/catface996/aiops-executor/internal/server/ports"
)

const (
	defaultRunRetention    = 24 * time.Hour
	defaultMaxRuns         = 10000
	defaultRunEvictInterval = 5 * time.Minute
)

// InMemoryRunStore implements ports.RunRepository with in-memory storage and
// TTL-based eviction of terminal runs, plus optional snapshot-to-file
// persistence. Grounded directly on the teacher's InMemoryTaskStore
// (internal/delivery/server/app/task_store.go): same retention/cap/eviction
// shape, same optional on-disk snapshot.
type InMemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]*domain.Run

	retention time.Duration
	maxSize   int
	logger    logging.Logger

	persistencePath string

	stopOnce sync.Once
	stopCh   chan struct{}
}

// RunStoreOption configures an InMemoryRunStore.
type RunStoreOption func(*InMemoryRunStore)

// WithRunRetention sets how long terminal runs are retained before eviction.
func WithRunRetention(d time.Duration) RunStoreOption {
	return func(s *InMemoryRunStore) { s.retention = d }
}

// WithMaxRuns sets the hard cap on total stored runs.
func WithMaxRuns(n int) RunStoreOption {
	return func(s *InMemoryRunStore) { s.maxSize = n }
}

// WithRunPersistenceFile enables snapshot persistence to the given path.
func WithRunPersistenceFile(path string) RunStoreOption {
	return func(s *InMemoryRunStore) { s.persistencePath = strings.TrimSpace(path) }
}

// NewInMemoryRunStore creates a run store with TTL eviction of terminal runs.
func NewInMemoryRunStore(opts ...RunStoreOption) *InMemoryRunStore {
	s := &InMemoryRunStore{
		runs:      make(map[string]*domain.Run),
		retention: defaultRunRetention,
		maxSize:   defaultMaxRuns,
		logger:    logging.NewComponentLogger("RunStore"),
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.loadFromDisk()
	go s.evictLoop()
	return s
}

// Close stops the background eviction loop.
func (s *InMemoryRunStore) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *InMemoryRunStore) evictLoop() {
	ticker := time.NewTicker(defaultRunEvictInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.evictExpired()
		}
	}
}

func (s *InMemoryRunStore) evictExpired() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for runID, run := range s.runs {
		if run.CompletedAt != nil && now.Sub(*run.CompletedAt) > s.retention {
			delete(s.runs, runID)
		}
	}
	s.persistLocked()
}

func (s *InMemoryRunStore) evictOldestTerminalLocked() {
	var oldestID string
	var oldestAt time.Time
	for runID, run := range s.runs {
		if run.CompletedAt == nil {
			continue
		}
		if oldestID == "" || run.CompletedAt.Before(oldestAt) {
			oldestID = runID
			oldestAt = *run.CompletedAt
		}
	}
	if oldestID != "" {
		delete(s.runs, oldestID)
	}
}

// Create implements ports.RunRepository.
func (s *InMemoryRunStore) Create(ctx context.Context, hierarchyID, task string) (*domain.Run, error) {
	run := &domain.Run{
		ID:          id.NewRunID(),
		HierarchyID: hierarchyID,
		Task:        task,
		Status:      domain.StatusPending,
		CreatedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.runs) >= s.maxSize {
		s.evictOldestTerminalLocked()
	}
	s.runs[run.ID] = run
	s.persistLocked()
	return run.Clone(), nil
}

// Get implements ports.RunRepository.
func (s *InMemoryRunStore) Get(ctx context.Context, runID string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, domain.NotFoundError("run %s not found", runID)
	}
	return run.Clone(), nil
}

// List implements ports.RunRepository.
func (s *InMemoryRunStore) List(ctx context.Context, page, size int, filters ports.RunFilters) ([]*domain.Run, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*domain.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if filters.HierarchyID != "" && run.HierarchyID != filters.HierarchyID {
			continue
		}
		if filters.Status != "" && run.Status != filters.Status {
			continue
		}
		matched = append(matched, run)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	start := (page - 1) * size
	if start >= total {
		return []*domain.Run{}, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	out := make([]*domain.Run, 0, end-start)
	for _, run := range matched[start:end] {
		out = append(out, run.Clone())
	}
	return out, total, nil
}

// UpdateStatus implements ports.RunRepository.
func (s *InMemoryRunStore) UpdateStatus(ctx context.Context, runID string, status domain.Status, update domain.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return domain.NotFoundError("run %s not found", runID)
	}

	now := time.Now().UTC()
	if run.Status == domain.StatusPending && status != domain.StatusPending {
		run.StartedAt = &now
	}
	run.Status = status
	if update.Result != nil {
		run.Result = *update.Result
	}
	if update.Error != nil {
		run.Error = *update.Error
	}
	if update.Statistics != nil {
		run.Statistics = update.Statistics
	}
	if status.IsTerminal() {
		if update.CompletedAt != nil {
			run.CompletedAt = update.CompletedAt
		} else {
			run.CompletedAt = &now
		}
	}
	s.persistLocked()
	return nil
}

// SetTopology implements ports.RunRepository.
func (s *InMemoryRunStore) SetTopology(ctx context.Context, runID string, topology domain.Hierarchy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return domain.NotFoundError("run %s not found", runID)
	}
	clone := topology.Clone()
	run.Topology = &clone
	s.persistLocked()
	return nil
}

type runSnapshot struct {
	Runs map[string]*domain.Run `json:"runs"`
}

func (s *InMemoryRunStore) loadFromDisk() {
	if s.persistencePath == "" {
		return
	}
	data, err := os.ReadFile(s.persistencePath)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read run store snapshot: %v", err)
		}
		return
	}
	var snap runSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("failed to decode run store snapshot: %v", err)
		return
	}
	if snap.Runs != nil {
		s.runs = snap.Runs
	}
}

// persistLocked writes the current state to disk; caller must hold s.mu.
func (s *InMemoryRunStore) persistLocked() {
	if s.persistencePath == "" {
		return
	}
	data, err := json.Marshal(runSnapshot{Runs: s.runs})
	if err != nil {
		s.logger.Warn("failed to encode run store snapshot: %v", err)
		return
	}
	if dir := filepath.Dir(s.persistencePath); dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}
	if err := os.WriteFile(s.persistencePath, data, 0o644); err != nil {
		s.logger.Warn("failed to write run store snapshot: %v", err)
	}
}

var _ ports.RunRepository = (*InMemoryRunStore)(nil)
