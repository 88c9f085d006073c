package handler

import (
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/use-agent/pagewalk/models"
)

// JobTTL is how long finished and running jobs stay queryable.
const JobTTL = time.Hour

// JobStore holds async batch and pagination jobs. Readers get copies, so a
// job can be updated while it is being served.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
	ttl  time.Duration
	now  func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewJobStore starts a store whose entries expire after ttl. A sweeper runs
// every five minutes until Close.
func NewJobStore(ttl time.Duration) *JobStore {
	if ttl <= 0 {
		ttl = JobTTL
	}
	s := &JobStore{
		jobs: make(map[string]*models.Job),
		ttl:  ttl,
		now:  time.Now,
		stop: make(chan struct{}),
	}
	go s.sweepLoop(5 * time.Minute)
	return s
}

// Create registers a processing job and returns its snapshot.
func (s *JobStore) Create(kind string, total int) models.Job {
	job := &models.Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    models.StatusProcessing,
		Total:     total,
		CreatedAt: s.now(),
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return *job
}

// Update applies fn to the stored job under the store lock.
func (s *JobStore) Update(id string, fn func(*models.Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		fn(job)
	}
}

// Get returns a snapshot of job id when it exists and has the given kind.
func (s *JobStore) Get(id, kind string) (models.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Kind != kind {
		return models.Job{}, false
	}
	snap := *job
	snap.Results = slices.Clone(job.Results)
	snap.Pages = slices.Clone(job.Pages)
	return snap, true
}

// Close stops the sweeper.
func (s *JobStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *JobStore) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *JobStore) sweep() {
	cutoff := s.now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, job := range s.jobs {
		if job.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
}

// GetJob returns a handler for GET /api/v1/{kind}/:id.
func GetJob(jobs *JobStore, kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := jobs.Get(c.Param("id"), kind)
		if !ok {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeNotFound,
					Message: kind + " job not found",
				},
			})
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

// finalStatus derives a job status from its failure count.
func finalStatus(failed, total int) string {
	switch {
	case total > 0 && failed == total:
		return models.StatusFailed
	case failed > 0:
		return models.StatusPartial
	}
	return models.StatusCompleted
}
