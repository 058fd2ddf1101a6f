package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/imamik/spinless/internal/metrics"
)

var (
	// ErrNotCreated is returned when starting a job that already left Created.
	ErrNotCreated = errors.New("job already started")
	// ErrShutdown is returned when starting a job after the registry shut down.
	ErrShutdown = errors.New("job registry is shut down")
)

// Executor is the body of a job. A returned error fails the job; returning
// nil without calling a Complete method succeeds it.
type Executor func(ctx context.Context, j *Job) error

// Emitter receives progress messages for a job log.
type Emitter interface {
	Emit(status, message string)
}

// Job is one asynchronous unit of work with its log.
type Job struct {
	id       string
	name     string
	payload  any
	executor Executor
	logPath  string
	seq      uint64
	registry *Registry
	log      *log.Entry

	mu     sync.Mutex
	state  State
	start  time.Time
	end    time.Time
	file   *os.File
	notify chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

func (j *Job) ID() string {
	return j.id
}

func (j *Job) Name() string {
	return j.name
}

// Payload returns the request the job was created for.
func (j *Job) Payload() any {
	return j.payload
}

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return newStatus(j.id, j.name, j.state, j.start, j.end, time.Now())
}

// Done is closed when the execution unit has returned.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Start moves the job to Running and launches its executor.
func (j *Job) Start() error {
	j.mu.Lock()
	if j.state != Created {
		j.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrNotCreated, j.id, j.state)
	}
	j.mu.Unlock()

	ctx, ok := j.registry.track()
	if !ok {
		j.finish(Failed, RecordError, ErrShutdown.Error())
		close(j.done)
		return ErrShutdown
	}

	ctx, cancel := context.WithCancel(ctx)

	j.mu.Lock()
	if j.state != Created {
		j.mu.Unlock()
		cancel()
		j.registry.untrack()
		return fmt.Errorf("%w: %s is %s", ErrNotCreated, j.id, j.state)
	}
	j.state = Running
	j.start = time.Now()
	j.cancel = cancel
	j.mu.Unlock()

	metrics.JobStarted()
	j.log.Info("Job started")

	go j.run(ctx, cancel)
	return nil
}

func (j *Job) run(ctx context.Context, cancel context.CancelFunc) {
	defer j.registry.untrack()
	defer close(j.done)
	defer cancel()

	if err := j.execute(ctx); err != nil {
		j.CompleteErr(err.Error())
		return
	}
	j.CompleteSucc("completed")
}

func (j *Job) execute(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			j.log.WithField("stack", string(debug.Stack())).Errorf("Job panicked: %v", r)
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return j.executor(ctx, j)
}

// Cancel stops a running job. It reports whether the job was terminated by this call.
func (j *Job) Cancel() bool {
	j.mu.Lock()
	if j.state != Running {
		j.mu.Unlock()
		return false
	}
	cancel := j.cancel
	j.mu.Unlock()

	cancel()
	return j.finish(Cancelled, RecordCancelled, "job cancelled")
}

// Emit appends a progress record. Records emitted after the job ended are dropped.
func (j *Job) Emit(status, message string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state.IsTerminal() {
		return
	}
	j.append(status, message)
}

// Emitf appends a formatted RUNNING record.
func (j *Job) Emitf(format string, args ...any) {
	j.Emit(RecordRunning, fmt.Sprintf(format, args...))
}

// CompleteSucc ends the job successfully. It returns false if the job had already ended.
func (j *Job) CompleteSucc(message string) bool {
	return j.finish(Success, RecordSuccess, message)
}

// CompleteErr fails the job. It returns false if the job had already ended.
func (j *Job) CompleteErr(message string) bool {
	return j.finish(Failed, RecordError, message)
}

func (j *Job) finish(state State, status, message string) bool {
	j.mu.Lock()
	if j.state.IsTerminal() {
		j.mu.Unlock()
		return false
	}

	wasRunning := j.state == Running
	j.append(status, message)
	j.append(RecordEOF, "")
	j.state = state
	j.end = time.Now()
	if j.file != nil {
		_ = j.file.Close()
		j.file = nil
	}
	elapsed := j.end.Sub(j.start)
	j.mu.Unlock()

	if wasRunning {
		metrics.JobFinished(j.name, state.String(), elapsed)
	}
	j.log.WithFields(log.Fields{"state": state.String(), "elapsed": elapsed.Round(time.Millisecond)}).
		Infof("Job finished: %s", message)
	return true
}

// append writes one record. Callers hold j.mu.
func (j *Job) append(status, message string) {
	if j.file == nil {
		f, err := os.OpenFile(j.logPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o640)
		if err != nil {
			j.log.WithError(err).Error("Failed to reopen job log")
			return
		}
		j.file = f
	}

	line, err := json.Marshal(Record{
		ID:          j.id,
		Status:      status,
		TimestampMS: time.Now().UnixMilli(),
		Message:     Redact(message),
	})
	if err != nil {
		j.log.WithError(err).Error("Failed to encode job record")
		return
	}

	if _, err := j.file.Write(append(line, '\n')); err != nil {
		j.log.WithError(err).Error("Failed to write job log")
		_ = j.file.Close()
		j.file = nil
		return
	}

	close(j.notify)
	j.notify = make(chan struct{})
}

// changed returns a channel closed on the next append.
func (j *Job) changed() <-chan struct{} {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.notify
}
