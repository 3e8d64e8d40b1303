package job

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/legalsift/legalsift/constants"
)

// Registry is the in-process job store. Each job record is replaced as a
// whole on every update, so a concurrent reader never observes a
// half-written record, and progress can only move forward.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Create registers a new pending job and returns its snapshot.
func (r *Registry) Create(ownerID, fileName string) *Job {
	j := &Job{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		FileName:  fileName,
		CreatedAt: time.Now().UTC(),
		Status:    constants.JobStatusPending,
		Progress:  0,
		Stage:     constants.StageQueued,
	}
	r.mu.Lock()
	r.jobs[j.ID] = j
	r.mu.Unlock()
	return j.clone()
}

// Get returns a snapshot of the job, or nil if unknown.
func (r *Registry) Get(id string) *Job {
	r.mu.RLock()
	j, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return j.clone()
}

// Update applies fn to a copy of the job and swaps the record in. Terminal
// jobs are never mutated again, and progress never moves backwards.
func (r *Registry) Update(id string, fn func(*Job)) *Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.jobs[id]
	if !ok || cur.IsDone() {
		return nil
	}
	next := cur.clone()
	fn(next)
	if next.Progress < cur.Progress {
		next.Progress = cur.Progress
	}
	r.jobs[id] = next
	return next.clone()
}

// Delete removes one job record outright. Unknown IDs are a no-op. Used to
// back out a registration when the upload never made it onto the queue.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.jobs, id)
	r.mu.Unlock()
}

// PurgeOwner removes every job owned by ownerID and returns how many were
// removed. In-flight pipelines for purged jobs keep running; their final
// write lands on an unreachable record.
func (r *Registry) PurgeOwner(ownerID string) int {
	if ownerID == "" {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, j := range r.jobs {
		if j.OwnerID == ownerID {
			delete(r.jobs, id)
			n++
		}
	}
	return n
}

// Len reports the number of resident jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
