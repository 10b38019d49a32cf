package workflow

import (
	"context"
	"sync"
	"time"
)

// ExecutionRecord is the persisted summary of one finished execution.
// Records are diagnostic: the engine never replays them.
type ExecutionRecord struct {
	ExecutionID string         `json:"execution_id"`
	Workflow    string         `json:"workflow"`
	State       ExecutionState `json:"state"`
	StartTime   time.Time      `json:"start_time"`
	EndTime     time.Time      `json:"end_time"`
	Duration    time.Duration  `json:"duration"`
	Steps       []StepResult   `json:"steps"`
	Outputs     map[string]any `json:"outputs,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// HistoryStore stores and queries execution records.
type HistoryStore interface {
	// Save stores one execution record.
	Save(ctx context.Context, rec *ExecutionRecord) error
	// Get retrieves a record by execution ID.
	Get(ctx context.Context, executionID string) (*ExecutionRecord, bool, error)
	// ListByWorkflow returns the records for a workflow, most recent first.
	ListByWorkflow(ctx context.Context, workflow string) ([]*ExecutionRecord, error)
}

// MemoryHistoryStore is the default in-process HistoryStore.
type MemoryHistoryStore struct {
	mu         sync.RWMutex
	records    map[string]*ExecutionRecord
	byWorkflow map[string][]string // workflow -> execution IDs, oldest first
}

// NewMemoryHistoryStore creates an empty in-memory history store.
func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{
		records:    make(map[string]*ExecutionRecord),
		byWorkflow: make(map[string][]string),
	}
}

// Save implements HistoryStore.
func (s *MemoryHistoryStore) Save(ctx context.Context, rec *ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ExecutionID]; !exists {
		s.byWorkflow[rec.Workflow] = append(s.byWorkflow[rec.Workflow], rec.ExecutionID)
	}
	s.records[rec.ExecutionID] = rec
	return nil
}

// Get implements HistoryStore.
func (s *MemoryHistoryStore) Get(ctx context.Context, executionID string) (*ExecutionRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[executionID]
	return rec, ok, nil
}

// ListByWorkflow implements HistoryStore.
func (s *MemoryHistoryStore) ListByWorkflow(ctx context.Context, workflow string) ([]*ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byWorkflow[workflow]
	out := make([]*ExecutionRecord, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, s.records[ids[i]])
	}
	return out, nil
}
