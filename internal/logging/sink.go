package logging

import (
	"fmt"

	"github.com/go-logr/logr"
	log "github.com/sirupsen/logrus"
)

// Sink is a logr.LogSink writing to logrus. logr verbosity 0 maps to info,
// everything above it to debug.
type Sink struct {
	entry *log.Entry
	name  string
}

// NewSink creates a sink on top of entry.
func NewSink(entry *log.Entry) *Sink {
	return &Sink{entry: entry}
}

var _ logr.LogSink = (*Sink)(nil)

func (s *Sink) Init(logr.RuntimeInfo) {}

func (s *Sink) Enabled(level int) bool {
	if level > 0 {
		return s.entry.Logger.IsLevelEnabled(log.DebugLevel)
	}
	return s.entry.Logger.IsLevelEnabled(log.InfoLevel)
}

func (s *Sink) Info(level int, msg string, keysAndValues ...any) {
	e := s.entry.WithFields(fields(keysAndValues))
	if level > 0 {
		e.Debug(s.prefix(msg))
		return
	}
	e.Info(s.prefix(msg))
}

func (s *Sink) Error(err error, msg string, keysAndValues ...any) {
	s.entry.WithFields(fields(keysAndValues)).WithError(err).Error(s.prefix(msg))
}

func (s *Sink) WithValues(keysAndValues ...any) logr.LogSink {
	return &Sink{entry: s.entry.WithFields(fields(keysAndValues)), name: s.name}
}

func (s *Sink) WithName(name string) logr.LogSink {
	if s.name != "" {
		name = s.name + "/" + name
	}
	return &Sink{entry: s.entry, name: name}
}

func (s *Sink) prefix(msg string) string {
	if s.name == "" {
		return msg
	}
	return s.name + ": " + msg
}

func fields(keysAndValues []any) log.Fields {
	f := make(log.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	if len(keysAndValues)%2 == 1 {
		f["!BADKEY"] = keysAndValues[len(keysAndValues)-1]
	}
	return f
}
