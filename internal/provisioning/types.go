package provisioning

import (
	"regexp"

	"github.com/imamik/spinless/internal/apperr"
	"github.com/imamik/spinless/internal/util/naming"
)

// Job names.
const (
	CreateJob  = "resource-create"
	DestroyJob = "resource-destroy"
)

// Mode tells whether a create request provisions a new resource or updates one.
type Mode string

const (
	ModeNew    Mode = "NEW"
	ModeUpdate Mode = "UPDATE"
)

// ResourceSpec is a create or destroy request.
type ResourceSpec struct {
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	Account    string         `json:"account"`
	Region     string         `json:"region,omitempty"`
	DNSSuffix  string         `json:"dns_suffix,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

var (
	namePattern     = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
	variablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)
)

// Validate checks the identity of the resource and the property names.
func (s *ResourceSpec) Validate() error {
	if s.Type == "" || s.Name == "" || s.Account == "" {
		return apperr.Validation("type, name and account are required")
	}
	if !namePattern.MatchString(s.Name) {
		return apperr.Validation("resource name %q must be a lowercase DNS label", s.Name)
	}
	// Type and account become secret store and object key segments.
	for _, err := range []error{naming.ValidateLabel("type", s.Type), naming.ValidateLabel("account", s.Account)} {
		if err != nil {
			return apperr.Validation("%v", err)
		}
	}
	for k := range s.Properties {
		if !variablePattern.MatchString(k) {
			return apperr.Validation("property %q is not a valid variable name", k)
		}
	}
	return nil
}

// Account holds the cloud credentials a resource is provisioned with.
type Account struct {
	Name      string
	AccessKey string
	SecretKey string
	Region    string
}
