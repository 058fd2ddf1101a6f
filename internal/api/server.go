package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/imamik/spinless/internal/config"
	"github.com/imamik/spinless/internal/deploy"
	"github.com/imamik/spinless/internal/job"
	"github.com/imamik/spinless/internal/logging"
	"github.com/imamik/spinless/internal/provisioning"
)

// Jobs is the job registry as seen by the API.
type Jobs interface {
	Submit(name string, executor job.Executor, payload any) (*job.Job, error)
	Get(id string) (*job.Job, error)
	Status(id string) (job.Status, error)
	List(name string) ([]*job.Job, error)
	Follow(id string) (*job.LogReader, error)
}

// Deployer starts deployment and teardown jobs. Implemented by deploy.Coordinator.
type Deployer interface {
	Deploy(req deploy.DeployRequest) (*job.Job, error)
	Destroy(req deploy.DestroyRequest) (*job.Job, error)
	Cancel(id string) (bool, error)
}

// Provisioner builds resource jobs. Implemented by provisioning.Engine.
type Provisioner interface {
	Validate(spec provisioning.ResourceSpec) error
	CreateJob(spec provisioning.ResourceSpec) job.Executor
	DestroyJob(spec provisioning.ResourceSpec) job.Executor
}

// Server holds the HTTP handlers.
type Server struct {
	jobs      Jobs
	deployer  Deployer
	resources Provisioner
	log       *log.Entry
}

// NewServer creates the handlers.
func NewServer(jobs Jobs, deployer Deployer, resources Provisioner) *Server {
	return &Server{
		jobs:      jobs,
		deployer:  deployer,
		resources: resources,
		log:       logging.For("api"),
	}
}

// Router returns the routes. Health and metrics stay open; everything else
// requires the API key when one is configured.
func (s *Server) Router(cfg config.HTTPConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(s.log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(cfg.APIKey))
		r.Use(bodyLimitMiddleware(cfg.MaxBodyBytes))

		r.Route("/helm", func(r chi.Router) {
			r.Post("/deploy", s.deploy)
			r.Get("/deploy/status/{id}", s.jobStatus)
			r.Get("/deploy/{id}", s.jobLog)
			r.Delete("/deploy/{id}", s.cancelJob)
			r.Post("/destroy", s.destroy)
		})

		r.Route("/resources", func(r chi.Router) {
			r.Post("/", s.createResource)
			r.Delete("/", s.destroyResource)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.listJobs)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.jobStatus)
				r.Delete("/", s.cancelJob)
				r.Get("/log", s.jobLog)
			})
		})
	})

	return r
}
