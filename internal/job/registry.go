package job

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
	log "github.com/sirupsen/logrus"
)

// ErrNotFound is returned for unknown job ids.
var ErrNotFound = errors.New("job not found")

const (
	jobsTable = "jobs"
	indexID   = "id"
	indexName = "name"

	defaultTailInterval = 250 * time.Millisecond
)

// jobEntry is the memdb row of one job.
type jobEntry struct {
	ID   string
	Name string
	Job  *Job
}

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		jobsTable: {
			Name: jobsTable,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: {
					Name:    indexID,
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				indexName: {
					Name:         indexName,
					AllowMissing: true,
					Indexer:      &memdb.StringFieldIndex{Field: "Name"},
				},
			},
		},
	},
}

// Registry creates, stores and tracks jobs for the lifetime of the process.
type Registry struct {
	db           *memdb.MemDB
	logDir       string
	tailInterval time.Duration
	log          *log.Entry

	ctx    context.Context
	cancel context.CancelFunc

	seq atomic.Uint64

	mu      sync.Mutex
	closed  bool
	running sync.WaitGroup
}

// NewRegistry creates a registry writing job logs below logDir.
func NewRegistry(logDir string, tailInterval time.Duration) (*Registry, error) {
	if err := os.MkdirAll(logDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create job log directory: %w", err)
	}
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to create job table: %w", err)
	}
	if tailInterval <= 0 {
		tailInterval = defaultTailInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		db:           db,
		logDir:       logDir,
		tailInterval: tailInterval,
		log:          log.WithField("component", "jobs"),
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Create registers a new job in the Created state and opens its log.
func (r *Registry) Create(name string, executor Executor, payload any) (*Job, error) {
	if executor == nil {
		return nil, fmt.Errorf("job %s: executor is required", name)
	}

	id := uuid.NewString()
	logPath := filepath.Join(r.logDir, id+".log")
	f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o640)
	if err != nil {
		return nil, fmt.Errorf("failed to create job log: %w", err)
	}

	j := &Job{
		id:       id,
		name:     name,
		payload:  payload,
		executor: executor,
		logPath:  logPath,
		seq:      r.seq.Add(1),
		registry: r,
		log:      r.log.WithFields(log.Fields{"job_id": id, "job": name}),
		state:    Created,
		file:     f,
		notify:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	txn := r.db.Txn(true)
	if err := txn.Insert(jobsTable, &jobEntry{ID: id, Name: name, Job: j}); err != nil {
		txn.Abort()
		_ = f.Close()
		return nil, fmt.Errorf("failed to register job: %w", err)
	}
	txn.Commit()

	return j, nil
}

// Submit creates a job and starts it.
func (r *Registry) Submit(name string, executor Executor, payload any) (*Job, error) {
	j, err := r.Create(name, executor, payload)
	if err != nil {
		return nil, err
	}
	if err := j.Start(); err != nil {
		return j, err
	}
	return j, nil
}

func (r *Registry) Get(id string) (*Job, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(jobsTable, indexID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up job: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return raw.(*jobEntry).Job, nil
}

func (r *Registry) Status(id string) (Status, error) {
	j, err := r.Get(id)
	if err != nil {
		return Status{}, err
	}
	return j.Status(), nil
}

// List returns jobs in creation order, all of them or only those named name.
func (r *Registry) List(name string) ([]*Job, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()

	var (
		it  memdb.ResultIterator
		err error
	)
	if name == "" {
		it, err = txn.Get(jobsTable, indexID)
	} else {
		it, err = txn.Get(jobsTable, indexName, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	var jobs []*Job
	for raw := it.Next(); raw != nil; raw = it.Next() {
		jobs = append(jobs, raw.(*jobEntry).Job)
	}
	slices.SortFunc(jobs, func(a, b *Job) int {
		return cmp.Compare(a.seq, b.seq)
	})
	return jobs, nil
}

// Follow returns a reader over the job's log from the first record.
func (r *Registry) Follow(id string) (*LogReader, error) {
	j, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return newLogReader(j, r.tailInterval)
}

// Shutdown cancels running jobs, refuses new starts and waits for execution
// units to return or ctx to end.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	jobs, err := r.List("")
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if j.Cancel() {
			r.log.WithField("job_id", j.ID()).Warn("Cancelled job on shutdown")
		}
	}
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("jobs did not stop before shutdown deadline: %w", ctx.Err())
	}
}

// track registers a starting execution unit and returns its parent context.
func (r *Registry) track() (context.Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false
	}
	r.running.Add(1)
	return r.ctx, true
}

func (r *Registry) untrack() {
	r.running.Done()
}
