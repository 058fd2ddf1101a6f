package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/imamik/spinless/internal/apperr"
	"github.com/imamik/spinless/internal/config"
	"github.com/imamik/spinless/internal/deploy"
	"github.com/imamik/spinless/internal/job"
	"github.com/imamik/spinless/internal/provisioning"
)

const testKey = "test-key"

type stubDeployer struct {
	jobs *job.Registry
}

func (d *stubDeployer) Deploy(req deploy.DeployRequest) (*job.Job, error) {
	return d.jobs.Submit(deploy.DeployJob, func(ctx context.Context, j *job.Job) error {
		j.Emitf("Deploying %d services to %s", len(req.Services), req.Namespace)
		if req.SHA == "block" {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}, req)
}

func (d *stubDeployer) Destroy(req deploy.DestroyRequest) (*job.Job, error) {
	if req.Namespace == "" {
		return nil, apperr.Validation("namespace is required")
	}
	return d.jobs.Submit(deploy.DestroyJob, func(_ context.Context, j *job.Job) error {
		j.Emitf("Destroying %s", req.Namespace)
		return nil
	}, req)
}

func (d *stubDeployer) Cancel(id string) (bool, error) {
	j, err := d.jobs.Get(id)
	if err != nil {
		return false, err
	}
	return j.Cancel(), nil
}

type stubProvisioner struct{}

func (stubProvisioner) Validate(spec provisioning.ResourceSpec) error {
	return spec.Validate()
}

func (stubProvisioner) CreateJob(spec provisioning.ResourceSpec) job.Executor {
	return func(_ context.Context, j *job.Job) error {
		j.CompleteSucc("Created " + spec.Type + "/" + spec.Name)
		return nil
	}
}

func (stubProvisioner) DestroyJob(spec provisioning.ResourceSpec) job.Executor {
	return func(_ context.Context, j *job.Job) error {
		j.CompleteSucc("Destroyed " + spec.Type + "/" + spec.Name)
		return nil
	}
}

var _ = Describe("HTTP API", func() {
	var (
		registry *job.Registry
		server   *httptest.Server
	)

	do := func(method, path, body string, authed bool) *http.Response {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req, err := http.NewRequest(method, server.URL+path, reader)
		Expect(err).NotTo(HaveOccurred())
		if authed {
			req.Header.Set("X-API-Key", testKey)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	decode := func(resp *http.Response, v any) {
		Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
	}

	submit := func(method, path, body string) string {
		resp := do(method, path, body, true)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var out idResponse
		decode(resp, &out)
		Expect(out.ID).NotTo(BeEmpty())
		return out.ID
	}

	stateOf := func(id string) func() string {
		return func() string {
			var st job.Status
			decode(do(http.MethodGet, "/jobs/"+id, "", true), &st)
			return st.State.String()
		}
	}

	BeforeEach(func() {
		dir, err := os.MkdirTemp("", "spinless-api-")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)

		registry, err = job.NewRegistry(dir, 5*time.Millisecond)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			Expect(registry.Shutdown(ctx)).To(Succeed())
		})

		s := NewServer(registry, &stubDeployer{jobs: registry}, stubProvisioner{})
		server = httptest.NewServer(s.Router(config.HTTPConfig{APIKey: testKey, MaxBodyBytes: 1 << 16}))
		DeferCleanup(server.Close)
	})

	Context("without credentials", func() {
		It("serves health and metrics", func() {
			Expect(do(http.MethodGet, "/healthz", "", false).StatusCode).To(Equal(http.StatusOK))
			Expect(do(http.MethodGet, "/metrics", "", false).StatusCode).To(Equal(http.StatusOK))
		})

		It("rejects job endpoints", func() {
			Expect(do(http.MethodGet, "/jobs", "", false).StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(do(http.MethodPost, "/helm/deploy", `{}`, false).StatusCode).To(Equal(http.StatusUnauthorized))
		})
	})

	Context("deployments", func() {
		It("streams the job log until the end of the job", func() {
			id := submit(http.MethodPost, "/helm/deploy", `{"namespace":"dev","sha":"abc","services":[]}`)

			resp := do(http.MethodGet, "/helm/deploy/"+id, "", true)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/x-ndjson"))

			var records []job.Record
			scanner := bufio.NewScanner(resp.Body)
			for scanner.Scan() {
				var rec job.Record
				Expect(json.Unmarshal(scanner.Bytes(), &rec)).To(Succeed())
				records = append(records, rec)
			}
			Expect(scanner.Err()).NotTo(HaveOccurred())

			Expect(records).NotTo(BeEmpty())
			Expect(records[0].Message).To(Equal("Deploying 0 services to dev"))
			Expect(records[len(records)-1].IsEOF()).To(BeTrue())
			for _, rec := range records {
				Expect(rec.ID).To(Equal(id))
			}

			Eventually(stateOf(id)).Should(Equal("SUCCESS"))
		})

		It("reports status on the deploy status route", func() {
			id := submit(http.MethodPost, "/helm/deploy", `{"namespace":"dev","sha":"abc"}`)
			Eventually(stateOf(id)).Should(Equal("SUCCESS"))

			var st job.Status
			resp := do(http.MethodGet, "/helm/deploy/status/"+id, "", true)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			decode(resp, &st)
			Expect(st.JobID).To(Equal(id))
			Expect(st.Name).To(Equal(deploy.DeployJob))
		})

		It("cancels a running job", func() {
			id := submit(http.MethodPost, "/helm/deploy", `{"namespace":"dev","sha":"block"}`)
			Eventually(stateOf(id)).Should(Equal("RUNNING"))

			var out cancelResponse
			decode(do(http.MethodDelete, "/helm/deploy/"+id, "", true), &out)
			Expect(out.Cancelled).To(BeTrue())
			Eventually(stateOf(id)).Should(Equal("CANCELLED"))

			decode(do(http.MethodDelete, "/helm/deploy/"+id, "", true), &out)
			Expect(out.Cancelled).To(BeFalse())
		})

		It("rejects malformed bodies and invalid teardown requests", func() {
			Expect(do(http.MethodPost, "/helm/deploy", `{"namespace":`, true).StatusCode).To(Equal(http.StatusBadRequest))

			resp := do(http.MethodPost, "/helm/destroy", `{"clusters":["prod"]}`, true)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			var out errorResponse
			decode(resp, &out)
			Expect(out.Error).To(ContainSubstring("namespace is required"))
		})

		It("answers 404 for unknown jobs", func() {
			Expect(do(http.MethodGet, "/jobs/missing", "", true).StatusCode).To(Equal(http.StatusNotFound))
			Expect(do(http.MethodGet, "/helm/deploy/missing", "", true).StatusCode).To(Equal(http.StatusNotFound))
			Expect(do(http.MethodDelete, "/helm/deploy/missing", "", true).StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Context("resources", func() {
		It("submits create and destroy jobs", func() {
			body := `{"type":"cluster","name":"prod-eu","account":"acme"}`
			created := submit(http.MethodPost, "/resources", body)
			destroyed := submit(http.MethodDelete, "/resources", body)

			Eventually(stateOf(created)).Should(Equal("SUCCESS"))
			Eventually(stateOf(destroyed)).Should(Equal("SUCCESS"))

			var statuses []job.Status
			decode(do(http.MethodGet, "/jobs?name="+provisioning.CreateJob, "", true), &statuses)
			Expect(statuses).To(HaveLen(1))
			Expect(statuses[0].JobID).To(Equal(created))

			decode(do(http.MethodGet, "/jobs", "", true), &statuses)
			Expect(statuses).To(HaveLen(2))
		})

		It("validates before creating a job", func() {
			resp := do(http.MethodPost, "/resources", `{"type":"cluster","name":"Prod EU","account":"acme"}`, true)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			var statuses []job.Status
			decode(do(http.MethodGet, "/jobs", "", true), &statuses)
			Expect(statuses).To(BeEmpty())
		})
	})
})
