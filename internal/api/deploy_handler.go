package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/imamik/spinless/internal/deploy"
)

func (s *Server) deploy(w http.ResponseWriter, r *http.Request) {
	var req deploy.DeployRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	j, err := s.deployer.Deploy(req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{ID: j.ID()})
}

func (s *Server) destroy(w http.ResponseWriter, r *http.Request) {
	var req deploy.DestroyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	j, err := s.deployer.Destroy(req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{ID: j.ID()})
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	cancelled, err := s.deployer.Cancel(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{Cancelled: cancelled})
}
