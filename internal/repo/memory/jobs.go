package memory

import (
	"context"
	"sync"

	"github.com/geocoder89/ninjafinder/internal/domain/job"
)

// JobsRepo records enqueued jobs; nothing consumes them in-process.
type JobsRepo struct {
	mu   sync.Mutex
	jobs []job.Job
}

func NewJobsRepo() *JobsRepo {
	return &JobsRepo{}
}

func (r *JobsRepo) Create(ctx context.Context, req job.CreateRequest) (job.Job, error) {
	j := job.New(req)

	r.mu.Lock()
	r.jobs = append(r.jobs, j)
	r.mu.Unlock()

	return j, nil
}

func (r *JobsRepo) Jobs() []job.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]job.Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}
