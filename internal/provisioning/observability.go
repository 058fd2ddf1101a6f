package provisioning

import (
	"fmt"
	"slices"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/imamik/spinless/internal/job"
)

// Observer receives the progress of a provisioning run.
type Observer interface {
	Printf(format string, v ...any)
	Event(event Event)
}

// Event represents a structured provisioning event.
type Event struct {
	Type     EventType
	Phase    string
	Message  string
	Resource string
	Fields   map[string]string
}

// EventType represents the type of provisioning event.
type EventType string

const (
	EventPhaseStarted   EventType = "phase.started"
	EventPhaseCompleted EventType = "phase.completed"
	EventPhaseFailed    EventType = "phase.failed"

	EventResourceCreated EventType = "resource.created"
	EventResourceDeleted EventType = "resource.deleted"

	// EventStepFailed marks a best-effort step that failed without stopping the run.
	EventStepFailed EventType = "step.failed"
)

// JobObserver writes progress into a job log and mirrors it to the process log.
type JobObserver struct {
	emitter job.Emitter
	log     *log.Entry
}

// NewJobObserver creates an observer for one job.
func NewJobObserver(emitter job.Emitter, entry *log.Entry) *JobObserver {
	return &JobObserver{emitter: emitter, log: entry}
}

func (o *JobObserver) Printf(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	o.emitter.Emit(job.RecordRunning, msg)
	o.log.Debug(msg)
}

// Event implements Observer. Failures are written as warnings.
func (o *JobObserver) Event(event Event) {
	msg := formatEvent(event)
	status := job.RecordRunning
	entry := o.log.WithField("event", string(event.Type))
	if event.Resource != "" {
		entry = entry.WithField("resource", event.Resource)
	}

	switch event.Type {
	case EventPhaseFailed, EventStepFailed:
		status = job.RecordWarning
		entry.Warn(msg)
	default:
		entry.Info(msg)
	}
	o.emitter.Emit(status, msg)
}

func formatEvent(event Event) string {
	var parts []string
	if event.Phase != "" {
		parts = append(parts, fmt.Sprintf("[%s]", event.Phase))
	}
	parts = append(parts, event.Message)

	if len(event.Fields) > 0 {
		keys := make([]string, 0, len(event.Fields))
		for k := range event.Fields {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		fieldParts := make([]string, 0, len(keys))
		for _, k := range keys {
			fieldParts = append(fieldParts, fmt.Sprintf("%s=%s", k, event.Fields[k]))
		}
		parts = append(parts, fmt.Sprintf("(%s)", strings.Join(fieldParts, ", ")))
	}
	return strings.Join(parts, " ")
}

// LogPhaseStart logs a phase start event.
func LogPhaseStart(observer Observer, phase string) {
	observer.Event(Event{Type: EventPhaseStarted, Phase: phase, Message: "starting"})
}

// LogPhaseComplete logs a phase completion event.
func LogPhaseComplete(observer Observer, phase string, duration time.Duration) {
	observer.Event(Event{
		Type:    EventPhaseCompleted,
		Phase:   phase,
		Message: fmt.Sprintf("completed in %v", duration.Round(time.Millisecond)),
	})
}

// LogPhaseFailed logs a phase failure event.
func LogPhaseFailed(observer Observer, phase string, err error) {
	observer.Event(Event{Type: EventPhaseFailed, Phase: phase, Message: fmt.Sprintf("failed: %v", err)})
}
