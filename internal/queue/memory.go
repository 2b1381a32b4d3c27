package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

const failedHistory = 100

// MemoryBackend keeps jobs in process memory. Queued jobs are lost on restart.
type MemoryBackend struct {
	mu     sync.Mutex
	jobs   map[string]Job
	failed []Job
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{jobs: make(map[string]Job)}
}

func (m *MemoryBackend) Push(_ context.Context, job Job) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[job.ID]; exists {
		return false, nil
	}
	m.jobs[job.ID] = job
	return true, nil
}

func (m *MemoryBackend) PopDue(_ context.Context, now time.Time, limit int) ([]Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var due []Job
	for _, j := range m.jobs {
		if !j.RunAt.After(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(a, b int) bool {
		if due[a].RunAt.Equal(due[b].RunAt) {
			return due[a].ID < due[b].ID
		}
		return due[a].RunAt.Before(due[b].RunAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	for _, j := range due {
		delete(m.jobs, j.ID)
	}
	return due, nil
}

func (m *MemoryBackend) Fail(_ context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failed = append([]Job{job}, m.failed...)
	if len(m.failed) > failedHistory {
		m.failed = m.failed[:failedHistory]
	}
	return nil
}

func (m *MemoryBackend) Failed(_ context.Context, limit int) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 || limit > len(m.failed) {
		limit = len(m.failed)
	}
	out := make([]Job, limit)
	copy(out, m.failed[:limit])
	return out, nil
}

func (m *MemoryBackend) Pending(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.jobs)), nil
}

func (m *MemoryBackend) Close() error { return nil }
