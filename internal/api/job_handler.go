package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/imamik/spinless/internal/job"
)

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobs.List(r.URL.Query().Get("name"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	statuses := make([]job.Status, 0, len(jobs))
	for _, j := range jobs {
		statuses = append(statuses, j.Status())
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) jobStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.jobs.Status(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// jobLog streams the job's records as newline-delimited JSON until the EOF
// record, replaying what was already written first.
func (s *Server) jobLog(w http.ResponseWriter, r *http.Request) {
	reader, err := s.jobs.Follow(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	for {
		rec, err := reader.Next(r.Context())
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			if r.Context().Err() == nil {
				s.log.WithError(err).Warn("Log stream aborted")
			}
			return
		}
		if err := enc.Encode(rec); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
