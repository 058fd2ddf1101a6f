package deploy

import (
	"context"

	"github.com/imamik/spinless/internal/clusterctx"
	"github.com/imamik/spinless/internal/job"
	"github.com/imamik/spinless/internal/util/naming"
)

// Registry types as stored below {root}/registries.
const (
	RegistryDocker = "docker"
	RegistryHelm   = "helm"
)

// RegistryRef names the docker and helm registries a service is pulled from.
type RegistryRef struct {
	Docker string `json:"docker"`
	Helm   string `json:"helm"`
}

// ServiceSpec is one service of a deploy request.
type ServiceSpec struct {
	Owner        string            `json:"owner"`
	Repo         string            `json:"repo"`
	Registry     RegistryRef       `json:"registry"`
	Cluster      string            `json:"cluster"`
	Namespace    string            `json:"namespace"`
	ImageTag     string            `json:"image_tag"`
	ChartVersion string            `json:"chart_version,omitempty"`
	Env          map[string]string `json:"env,omitempty"`
}

// Key names the service as reported in results, e.g. ns1/acme-svc1.
func (s ServiceSpec) Key() string {
	return naming.ServiceKey(s.Namespace, s.Owner, s.Repo)
}

// Target identifies one install of the service: the same service may be
// deployed to several clusters by a single request.
func (s ServiceSpec) Target() string {
	return s.Cluster + "/" + s.Key()
}

// DeployRequest installs or upgrades a set of services.
type DeployRequest struct {
	Services      []ServiceSpec     `json:"services"`
	Namespace     string            `json:"namespace"`
	SHA           string            `json:"sha"`
	BaseNamespace string            `json:"base_namespace,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
}

// ServiceRef names a tenant without deployment details.
type ServiceRef struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

// DestroyRequest removes a namespace from clusters together with the
// services' secrets for that namespace.
type DestroyRequest struct {
	Clusters  []string     `json:"clusters"`
	Namespace string       `json:"namespace"`
	Services  []ServiceRef `json:"services"`
}

// RegistryCredentials is a resolved registry secret.
type RegistryCredentials struct {
	Type     string
	Name     string
	Username string
	Password string
	// URL is the registry's repo_path, e.g. charts.example.com/.
	URL             string
	DockerJSONToken string
}

// Task carries everything the processor needs to install one service.
type Task struct {
	JobID         string
	Service       ServiceSpec
	Namespace     string
	SHA           string
	BaseNamespace string
	Env           map[string]string

	Helm    *RegistryCredentials
	Docker  *RegistryCredentials
	Cluster *clusterctx.Context

	// Emitter receives progress lines for the owning job's log. May be nil.
	Emitter job.Emitter

	// ctx is the owning job's context; a cancelled job skips its queued tasks.
	ctx context.Context
}

func (t *Task) context(fallback context.Context) context.Context {
	if t.ctx != nil {
		return t.ctx
	}
	return fallback
}

// Result is the outcome of one task.
type Result struct {
	Service   string   `json:"service"`
	Cluster   string   `json:"cluster"`
	ErrorCode int      `json:"error_code"`
	Log       []string `json:"log"`
}

func (r Result) target() string {
	return r.Cluster + "/" + r.Service
}

// Failed reports whether the install failed.
func (r Result) Failed() bool {
	return r.ErrorCode != 0
}
