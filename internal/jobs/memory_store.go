package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/example/fleet-rides/internal/models"
)

type memoryEntry struct {
	job     models.Job
	expires time.Time
}

// MemoryStore is the in-process Store used when no Redis is configured and in tests.
// Expired entries are dropped lazily on read.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]memoryEntry
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{jobs: make(map[string]memoryEntry), ttl: ttl, now: time.Now}
}

// WithClock replaces the time source; used by tests to step past the TTL.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) Insert(_ context.Context, job models.Job) error {
	if err := validate(job); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = memoryEntry{job: job, expires: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(id)
	if !ok {
		return models.Job{}, ErrNotFound
	}
	return e.job, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

func (m *MemoryStore) SetState(_ context.Context, id string, state models.JobState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(id)
	if !ok {
		return ErrNotFound
	}
	e.job.State = state
	m.jobs[id] = e
	return nil
}

// lookup must be called with mu held.
func (m *MemoryStore) lookup(id string) (memoryEntry, bool) {
	e, ok := m.jobs[id]
	if !ok {
		return memoryEntry{}, false
	}
	if !m.now().Before(e.expires) {
		delete(m.jobs, id)
		return memoryEntry{}, false
	}
	return e, true
}
