package api

import (
	"net/http"

	"github.com/imamik/spinless/internal/job"
	"github.com/imamik/spinless/internal/provisioning"
)

func (s *Server) createResource(w http.ResponseWriter, r *http.Request) {
	s.submitResource(w, r, provisioning.CreateJob, s.resources.CreateJob)
}

func (s *Server) destroyResource(w http.ResponseWriter, r *http.Request) {
	s.submitResource(w, r, provisioning.DestroyJob, s.resources.DestroyJob)
}

func (s *Server) submitResource(w http.ResponseWriter, r *http.Request, name string, executor func(provisioning.ResourceSpec) job.Executor) {
	var spec provisioning.ResourceSpec
	if err := decodeJSON(r, &spec); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.resources.Validate(spec); err != nil {
		writeError(w, r, err)
		return
	}

	j, err := s.jobs.Submit(name, executor(spec), spec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{ID: j.ID()})
}
