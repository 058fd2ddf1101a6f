package job

import (
	"encoding/json"
	"fmt"
	"time"
)

// State is the lifecycle state of a job.
type State int

const (
	Created State = iota + 1
	Running
	Success
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Created:
		return "CREATED"
	case Running:
		return "RUNNING"
	case Success:
		return "SUCCESS"
	case Failed:
		return "FAILED"
	case Cancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == Success || s == Failed || s == Cancelled
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for st := Created; st <= Cancelled; st++ {
		if st.String() == name {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown job state %q", name)
}

// Record statuses written to the job log.
const (
	RecordRunning   = "RUNNING"
	RecordWarning   = "WARNING"
	RecordSuccess   = "SUCCESS"
	RecordError     = "ERROR"
	RecordCancelled = "CANCELLED"
	RecordEOF       = "EOF"
)

// Record is one line of a job log.
type Record struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	TimestampMS int64  `json:"timestamp_ms"`
	Message     string `json:"message"`
}

// IsEOF reports whether r is the final record of a log.
func (r Record) IsEOF() bool {
	return r.Status == RecordEOF
}

// Status is the externally visible summary of a job. Times are Unix seconds.
type Status struct {
	JobID   string `json:"job_id"`
	Name    string `json:"name"`
	State   State  `json:"state"`
	Start   int64  `json:"start"`
	End     int64  `json:"end"`
	Elapsed int64  `json:"elapsed"`
}

func newStatus(id, name string, state State, start, end, now time.Time) Status {
	st := Status{JobID: id, Name: name, State: state}
	if start.IsZero() {
		return st
	}
	st.Start = start.Unix()
	switch {
	case !end.IsZero():
		st.End = end.Unix()
		st.Elapsed = int64(end.Sub(start).Seconds())
	default:
		st.Elapsed = int64(now.Sub(start).Seconds())
	}
	return st
}
