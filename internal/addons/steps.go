package addons

import (
	"context"
	"fmt"

	"github.com/imamik/spinless/internal/k8s"
)

// Step names, in install order.
const (
	StepClusterAutoscaler = "cluster-autoscaler"
	StepTraefik           = "traefik"
	StepMetricsServer     = "metrics-server"
)

// Steps returns the addon steps in install order.
func Steps() []string {
	return []string{StepClusterAutoscaler, StepTraefik, StepMetricsServer}
}

// InstallStep installs a single addon by name. Prerequisites such as
// credential secrets are created within the step.
func InstallStep(ctx context.Context, step string, kube k8s.Client, charts ChartInstaller, cluster Cluster) error {
	if len(cluster.Kubeconfig) == 0 || kube == nil {
		return fmt.Errorf("no cluster access for addon %s", step)
	}

	switch step {
	case StepClusterAutoscaler:
		return applyClusterAutoscaler(ctx, kube, charts, cluster)
	case StepTraefik:
		return applyTraefik(ctx, charts, cluster)
	case StepMetricsServer:
		return applyMetricsServer(ctx, charts, cluster)
	default:
		return fmt.Errorf("unknown addon step: %s", step)
	}
}
