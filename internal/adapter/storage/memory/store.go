// Package memory is the process-local job store.
package memory

import (
	"sort"
	"sync"

	"github.com/bnema/reelsub/internal/domain"
	"github.com/bnema/reelsub/internal/port"
)

// entry serializes writers for one job. Readers take the read lock and get a clone.
type entry struct {
	mu  sync.RWMutex
	job *domain.Job
}

type Store struct {
	mu   sync.RWMutex
	jobs map[string]*entry
}

func NewStore() *Store {
	return &Store{jobs: make(map[string]*entry)}
}

func (s *Store) lookup(id string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return e, nil
}

func (s *Store) Create(job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return domain.ErrJobExists
	}
	s.jobs[job.ID] = &entry{job: job.Clone()}
	return nil
}

func (s *Store) Get(id string) (*domain.Job, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.job.Clone(), nil
}

// Update applies fn to a copy of the job under the job's write lock. The copy
// replaces the stored job only when fn succeeds.
func (s *Store) Update(id string, fn func(*domain.Job) error) (*domain.Job, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.job.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	e.job = next
	return next.Clone(), nil
}

// List returns snapshots ordered by creation time.
func (s *Store) List() ([]*domain.Job, error) {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	jobs := make([]*domain.Job, 0, len(entries))
	for _, e := range entries {
		e.mu.RLock()
		jobs = append(jobs, e.job.Clone())
		e.mu.RUnlock()
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return domain.ErrJobNotFound
	}
	delete(s.jobs, id)
	return nil
}

var _ port.JobStore = (*Store)(nil)
