package addons

import (
	"context"

	"github.com/imamik/spinless/internal/addons/helm"
)

// applyMetricsServer installs the Kubernetes Metrics Server.
func applyMetricsServer(ctx context.Context, charts ChartInstaller, cluster Cluster) error {
	spec, err := chartSpec(StepMetricsServer)
	if err != nil {
		return err
	}
	return charts.InstallChart(ctx, cluster.Kubeconfig, "kube-system", StepMetricsServer, spec, buildMetricsServerValues())
}

func buildMetricsServerValues() helm.Values {
	return helm.Values{
		"podDisruptionBudget": helm.Values{
			"enabled":        true,
			"maxUnavailable": 1,
		},
		"tolerations": SystemTolerations(),
	}
}
