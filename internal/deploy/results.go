package deploy

import (
	"cmp"
	"slices"
	"sync"
)

// Results holds the deployment results of every job that still has tasks in
// flight. Only the Processor goroutine writes; everyone else reads.
type Results struct {
	mu      sync.RWMutex
	buckets map[string]map[string]Result
}

func newResults() *Results {
	return &Results{buckets: make(map[string]map[string]Result)}
}

// Get returns a job's results ordered by service key, then cluster.
func (r *Results) Get(jobID string) []Result {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket := r.buckets[jobID]
	out := make([]Result, 0, len(bucket))
	for _, res := range bucket {
		out = append(out, res)
	}
	slices.SortFunc(out, func(a, b Result) int {
		return cmp.Or(cmp.Compare(a.Service, b.Service), cmp.Compare(a.Cluster, b.Cluster))
	})
	return out
}

// Count returns how many results a job received.
func (r *Results) Count(jobID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buckets[jobID])
}

func (r *Results) add(jobID string, res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, ok := r.buckets[jobID]
	if !ok {
		bucket = make(map[string]Result)
		r.buckets[jobID] = bucket
	}
	bucket[res.target()] = res
}

func (r *Results) release(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.buckets, jobID)
}
