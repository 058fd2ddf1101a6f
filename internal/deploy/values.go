package deploy

import (
	"github.com/imamik/spinless/internal/addons/helm"
	"github.com/imamik/spinless/internal/util/naming"
)

// platformValues are computed by the control plane for every release.
func platformValues(vaultAddr, role string, t *Task, chartDefaults map[string]any) (helm.Values, []string) {
	owner, repo := t.Service.Owner, t.Service.Repo
	mount := naming.AuthMount(t.Cluster.Name)

	v := helm.Values{
		"service_account": naming.ServiceAccount(owner, repo),
		"vault": map[string]any{
			"addr":        vaultAddr,
			"role":        role,
			"jwtprovider": mount,
		},
		"env": map[string]any{
			"VAULT_MOUNT_POINT": mount,
		},
		"images": map[string]any{
			"service": map[string]any{"tag": t.Service.ImageTag},
		},
	}

	if t.Docker != nil && t.Docker.DockerJSONToken != "" {
		v["dockerjsontoken"] = t.Docker.DockerJSONToken
	}

	var warnings []string
	if _, ok := chartDefaults["traefik"]; ok {
		if t.Cluster.DNSSuffix != "" {
			v["traefik"] = map[string]any{"dns_suffix": t.Cluster.DNSSuffix}
		} else {
			warnings = append(warnings, "chart uses traefik but cluster "+t.Cluster.Name+" has no dns suffix")
		}
	}
	return v, warnings
}

// overrideValues are the request parameters passed through to the chart.
// Service env wins over request env.
func overrideValues(t *Task) helm.Values {
	v := helm.Values{
		"namespace": t.Namespace,
		"sha":       t.SHA,
		"owner":     t.Service.Owner,
		"repo":      t.Service.Repo,
		"image_tag": t.Service.ImageTag,
	}

	env := make(map[string]any, len(t.Env)+len(t.Service.Env))
	for k, val := range t.Env {
		env[k] = val
	}
	for k, val := range t.Service.Env {
		env[k] = val
	}
	if len(env) > 0 {
		v["env"] = env
	}
	return v
}

// RenderValues merges chart defaults < platform values < request overrides.
func RenderValues(chartDefaults, platform, overrides helm.Values) helm.Values {
	return helm.DeepMerge(chartDefaults, platform, overrides)
}
