// Package memory provides in-process implementations of the storage
// contracts for development and tests.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/chunkgen/internal/store"
)

// RunStore keeps run history in a map guarded by a mutex.
type RunStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]store.RunRecord
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStore constructs an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[uuid.UUID]store.RunRecord)}
}

// StartRun inserts a running record unless one already exists.
func (s *RunStore) StartRun(_ context.Context, id uuid.UUID, region string, total int64, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; ok {
		return nil
	}
	s.runs[id] = store.RunRecord{
		ID:        id,
		Region:    region,
		Status:    store.RunRunning,
		Total:     total,
		Pass:      1,
		StartedAt: startedAt,
		UpdatedAt: startedAt,
	}
	return nil
}

// UpdateProgress overwrites the counters of a running record.
func (s *RunStore) UpdateProgress(_ context.Context, id uuid.UUID, p store.RunProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	if rec.Status != store.RunRunning {
		return nil
	}
	s.runs[id] = applyProgress(rec, p)
	return nil
}

// FinishRun records the terminal status and final counters.
func (s *RunStore) FinishRun(
	_ context.Context,
	id uuid.UUID,
	status store.RunStatus,
	p store.RunProgress,
	errMsg *string,
) error {
	if !status.Valid() || status == store.RunRunning {
		return fmt.Errorf("finish run: invalid terminal status %q", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	rec = applyProgress(rec, p)
	rec.Status = status
	rec.FinishedAt = pointerTime(p.At)
	rec.ErrorMessage = nil
	if errMsg != nil {
		msg := *errMsg
		rec.ErrorMessage = &msg
	}
	s.runs[id] = rec
	return nil
}

// GetRun returns a copy of the stored record.
func (s *RunStore) GetRun(_ context.Context, id uuid.UUID) (store.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[id]
	if !ok {
		return store.RunRecord{}, store.ErrNotFound
	}
	return rec, nil
}

// ListRuns returns records ordered by StartedAt, newest first.
func (s *RunStore) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.RunRecord, error) {
	s.mu.RLock()
	out := make([]store.RunRecord, 0, len(s.runs))
	for _, rec := range s.runs {
		if status != nil && rec.Status != *status {
			continue
		}
		out = append(out, rec)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b store.RunRecord) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	if offset < 0 {
		offset = 0
	}
	if offset >= len(out) {
		return []store.RunRecord{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func applyProgress(rec store.RunRecord, p store.RunProgress) store.RunRecord {
	rec.Completed = p.Completed
	rec.Failed = p.Failed
	if p.Pass > 0 {
		rec.Pass = p.Pass
	}
	if !p.At.IsZero() {
		rec.UpdatedAt = p.At
	}
	return rec
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
