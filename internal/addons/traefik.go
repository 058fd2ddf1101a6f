package addons

import (
	"context"

	"github.com/imamik/spinless/internal/addons/helm"
)

const (
	traefikNamespace = "traefik"
	// traefikWebNodePort is where the external load balancer sends HTTP traffic.
	traefikWebNodePort = 30003
)

// applyTraefik installs the Traefik ingress controller behind a node port.
func applyTraefik(ctx context.Context, charts ChartInstaller, cluster Cluster) error {
	spec, err := chartSpec(StepTraefik)
	if err != nil {
		return err
	}
	return charts.InstallChart(ctx, cluster.Kubeconfig, traefikNamespace, StepTraefik, spec, buildTraefikValues())
}

func buildTraefikValues() helm.Values {
	return helm.Values{
		"service": helm.Values{
			"type": "NodePort",
		},
		"ports": helm.Values{
			"web": helm.Values{
				"nodePort": traefikWebNodePort,
			},
		},
		"tolerations": SystemTolerations(),
	}
}
