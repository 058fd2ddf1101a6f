package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/imamik/spinless/internal/apperr"
	"github.com/imamik/spinless/internal/deploy"
	"github.com/imamik/spinless/internal/job"
)

type errorResponse struct {
	Error string `json:"error"`
}

type idResponse struct {
	ID string `json:"id"`
}

type cancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps err to a status code. Unclassified errors are logged and
// reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal server error"

	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, job.ErrNotFound):
		status = http.StatusNotFound
		msg = err.Error()
	case errors.As(err, &tooLarge):
		status = http.StatusRequestEntityTooLarge
		msg = fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)
	case apperr.IsValidation(err):
		status = http.StatusBadRequest
		msg = err.Error()
	case errors.Is(err, job.ErrShutdown), errors.Is(err, deploy.ErrProcessorStopped):
		status = http.StatusServiceUnavailable
		msg = err.Error()
	default:
		log.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
	}

	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeJSON reads the request body into v. Malformed bodies are validation
// errors; an oversized body keeps its own error.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return apperr.E(apperr.KindValidation, "decode request body", err)
	}
	return nil
}
