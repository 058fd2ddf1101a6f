// Package logging configures the process-wide logrus logger and routes the
// log output of client-go and helm into it.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/mattn/go-isatty"
	log "github.com/sirupsen/logrus"
	"k8s.io/klog/v2"
)

// Configure sets the level and formatter of the standard logrus logger.
// format is "json", "text" or "auto"; auto selects text on a terminal and
// JSON otherwise.
func Configure(level, format string) error {
	return configure(log.StandardLogger(), os.Stdout, level, format, isatty.IsTerminal(os.Stdout.Fd()))
}

func configure(logger *log.Logger, out io.Writer, level, format string, tty bool) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	switch strings.ToLower(format) {
	case "json":
		logger.SetFormatter(&log.JSONFormatter{})
	case "text":
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "auto", "":
		if tty {
			logger.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true})
		} else {
			logger.SetFormatter(&log.JSONFormatter{})
		}
	default:
		return fmt.Errorf("invalid log format %q", format)
	}

	logger.SetLevel(lvl)
	logger.SetOutput(out)
	klog.SetLogger(logr.New(NewSink(logger.WithField("component", "client-go"))))
	return nil
}

// For returns an entry tagged with the given component name.
func For(component string) *log.Entry {
	return log.WithField("component", component)
}

// Debugf adapts a logrus entry to the printf-style logger helm expects.
func Debugf(entry *log.Entry) func(format string, v ...any) {
	return func(format string, v ...any) {
		entry.Debugf(format, v...)
	}
}
