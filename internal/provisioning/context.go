package provisioning

import (
	"context"
	"time"

	"github.com/imamik/spinless/internal/config"
	"github.com/imamik/spinless/internal/k8s"
	"github.com/imamik/spinless/internal/util/naming"
)

// ObjectKeys are the object storage keys of one resource.
type ObjectKeys struct {
	Vars  string
	Info  string
	State string
}

func newObjectKeys(spec ResourceSpec) ObjectKeys {
	return ObjectKeys{
		Vars:  naming.ResourceVars(spec.Account, spec.Type, spec.Name),
		Info:  naming.ResourceInfo(spec.Account, spec.Type, spec.Name),
		State: naming.ResourceState(spec.Account, spec.Type, spec.Name),
	}
}

// Context carries one provisioning run. It is created per request and
// discarded afterwards; durable state lives in object storage.
type Context struct {
	context.Context

	Action   string
	Spec     ResourceSpec
	Kind     config.Kind
	Account  Account
	Keys     ObjectKeys
	Timeouts config.Timeouts
	Observer Observer

	Objects   ObjectStore
	Terraform Terraform

	// WorkDir holds the rendered configuration while the run lasts.
	WorkDir string
	// Properties are the resource variables the run applies.
	Properties map[string]any
	Mode       Mode
	// VarFiles are passed to apply and destroy.
	VarFiles []string

	// Set by the cluster post-setup.
	Kubeconfig []byte
	Kube       k8s.Client

	cloud   Cloud
	output  *lineWriter
	varsTF  []byte
	started time.Time
}

// Resource returns type/name for messages.
func (c *Context) Resource() string {
	return c.Spec.Type + "/" + c.Spec.Name
}
