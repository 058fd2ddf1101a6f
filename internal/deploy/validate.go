package deploy

import (
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/imamik/spinless/internal/apperr"
	"github.com/imamik/spinless/internal/util/naming"
)

// Validate checks the mandatory fields of a deploy request and of every service.
// A service may appear once per cluster.
func (r *DeployRequest) Validate() error {
	var result *multierror.Error

	if len(r.Services) == 0 {
		result = multierror.Append(result, apperr.Validation("services must not be empty"))
	}
	if err := naming.ValidateLabel("namespace", r.Namespace); err != nil {
		result = multierror.Append(result, apperr.Validation("%v", err))
	}
	if r.SHA == "" {
		result = multierror.Append(result, apperr.Validation("sha is required"))
	}
	if r.BaseNamespace != "" {
		if err := naming.ValidateLabel("base_namespace", r.BaseNamespace); err != nil {
			result = multierror.Append(result, apperr.Validation("%v", err))
		}
	}

	seen := make(map[string]int, len(r.Services))
	for i, s := range r.Services {
		if err := s.Validate(); err != nil {
			result = multierror.Append(result, apperr.Validation("services[%d]: %v", i, err))
			continue
		}
		target := s.Target()
		if j, dup := seen[target]; dup {
			result = multierror.Append(result, apperr.Validation("services[%d]: duplicates services[%d] (%s)", i, j, target))
			continue
		}
		seen[target] = i
	}

	if result == nil {
		return nil
	}
	result.ErrorFormat = apperr.JoinMessages
	return apperr.E(apperr.KindValidation, "validate deploy request", result)
}

// Validate reports the missing or malformed fields of a service. The helm
// registry is required; the docker registry is optional.
func (s ServiceSpec) Validate() error {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"owner", s.Owner},
		{"repo", s.Repo},
		{"cluster", s.Cluster},
		{"namespace", s.Namespace},
		{"image_tag", s.ImageTag},
		{"registry.helm", s.Registry.Helm},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return apperr.Validation("missing %s", strings.Join(missing, ", "))
	}

	checks := []error{
		naming.ValidateTenant(s.Owner, s.Repo),
		naming.ValidateLabel("cluster", s.Cluster),
		naming.ValidateLabel("namespace", s.Namespace),
		naming.ValidateSubdomain("registry.helm", s.Registry.Helm),
	}
	if s.Registry.Docker != "" {
		checks = append(checks, naming.ValidateSubdomain("registry.docker", s.Registry.Docker))
	}
	for _, err := range checks {
		if err != nil {
			return apperr.Validation("%v", err)
		}
	}
	return nil
}

// Validate checks a destroy request. Protected namespaces are checked by the coordinator.
func (r *DestroyRequest) Validate() error {
	if err := naming.ValidateLabel("namespace", r.Namespace); err != nil {
		return apperr.Validation("%v", err)
	}
	if len(r.Clusters) == 0 && len(r.Services) == 0 {
		return apperr.Validation("clusters or services are required")
	}
	for i, cluster := range r.Clusters {
		if err := naming.ValidateLabel("cluster", cluster); err != nil {
			return apperr.Validation("clusters[%d]: %v", i, err)
		}
	}
	for i, s := range r.Services {
		if err := naming.ValidateTenant(s.Owner, s.Repo); err != nil {
			return apperr.Validation("services[%d]: %v", i, err)
		}
	}
	return nil
}
