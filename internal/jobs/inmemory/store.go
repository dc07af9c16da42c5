package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/finance-capture/internal/jobs"
)

// DefaultHistory is how many jobs a Store keeps when no limit is given.
const DefaultHistory = 1000

// Store keeps recent message jobs in memory for inspection. It is safe for
// concurrent use and loses everything on restart. Once more than limit jobs
// are held, the oldest finished ones are evicted.
type Store struct {
	mu    sync.RWMutex
	jobs  map[string]*jobs.MessageJob
	limit int
}

// NewStore creates a new in-memory job store. limit <= 0 selects DefaultHistory.
func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = DefaultHistory
	}
	return &Store{
		jobs:  make(map[string]*jobs.MessageJob),
		limit: limit,
	}
}

// SaveJob implements the JobStore interface.
func (s *Store) SaveJob(ctx context.Context, job *jobs.MessageJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	jobCopy := *job
	s.jobs[job.JobID] = &jobCopy
	s.evictLocked()

	return nil
}

func (s *Store) evictLocked() {
	excess := len(s.jobs) - s.limit
	if excess <= 0 {
		return
	}

	finished := make([]*jobs.MessageJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if job.Status == jobs.JobStatusCompleted || job.Status == jobs.JobStatusFailed {
			finished = append(finished, job)
		}
	}
	sortOldestFirst(finished)

	for i := 0; i < excess && i < len(finished); i++ {
		delete(s.jobs, finished[i].JobID)
	}
}

// GetJob implements the JobStore interface.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.MessageJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}

	jobCopy := *job
	return &jobCopy, nil
}

// ListJobs implements the JobStore interface. Results are ordered oldest first.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.MessageJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*jobs.MessageJob
	for _, job := range s.jobs {
		if filter.TelegramUserID != 0 && job.TelegramUserID != filter.TelegramUserID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}

		jobCopy := *job
		result = append(result, &jobCopy)
	}
	sortOldestFirst(result)

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.MessageJob{}, nil
		}
		result = result[filter.Offset:]
	}

	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

func sortOldestFirst(js []*jobs.MessageJob) {
	sort.Slice(js, func(i, j int) bool {
		if js[i].CreatedAt.Equal(js[j].CreatedAt) {
			return js[i].JobID < js[j].JobID
		}
		return js[i].CreatedAt.Before(js[j].CreatedAt)
	})
}

var _ jobs.JobStore = (*Store)(nil)
