package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-logr/logr"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure_Formats(t *testing.T) {
	tests := []struct {
		name   string
		format string
		tty    bool
		json   bool
	}{
		{"json", "json", true, true},
		{"text", "text", false, false},
		{"auto on terminal", "auto", true, false},
		{"auto piped", "auto", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := log.New()
			var buf bytes.Buffer
			require.NoError(t, configure(logger, &buf, "info", tt.format, tt.tty))

			_, isJSON := logger.Formatter.(*log.JSONFormatter)
			assert.Equal(t, tt.json, isJSON)
		})
	}
}

func TestConfigure_Invalid(t *testing.T) {
	logger := log.New()
	assert.Error(t, configure(logger, &bytes.Buffer{}, "loud", "json", false))
	assert.Error(t, configure(logger, &bytes.Buffer{}, "info", "xml", false))
}

func TestSink(t *testing.T) {
	logger := log.New()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.SetFormatter(&log.JSONFormatter{})
	logger.SetLevel(log.InfoLevel)

	l := logr.New(NewSink(log.NewEntry(logger))).WithName("helm").WithValues("release", "acme-svc")
	l.Info("installed", "revision", 2)
	l.V(1).Info("debug line hidden")
	l.Error(errors.New("boom"), "failed")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &first))
	assert.Equal(t, "helm: installed", first["msg"])
	assert.Equal(t, "acme-svc", first["release"])
	assert.EqualValues(t, 2, first["revision"])

	var second map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &second))
	assert.Equal(t, "boom", second["error"])
	assert.Equal(t, "error", second["level"])
}
