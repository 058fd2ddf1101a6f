package addons

import (
	"context"
	"fmt"
	"time"

	"github.com/imamik/spinless/internal/addons/helm"
	"github.com/imamik/spinless/internal/logging"
)

// Cluster describes the cluster addons are installed into.
type Cluster struct {
	Name       string
	Region     string
	AccessKey  string
	SecretKey  string
	Kubeconfig []byte
}

// ChartInstaller installs a public chart as a release.
type ChartInstaller interface {
	InstallChart(ctx context.Context, kubeconfig []byte, namespace, release string, spec helm.ChartSpec, values helm.Values) error
}

var _ ChartInstaller = HelmInstaller{}

// HelmInstaller installs charts with the Helm SDK.
type HelmInstaller struct {
	Timeout time.Duration
}

// InstallChart resolves spec through its repository and installs or upgrades release.
func (h HelmInstaller) InstallChart(ctx context.Context, kubeconfig []byte, namespace, release string, spec helm.ChartSpec, values helm.Values) error {
	ch, err := helm.LoadChart(spec)
	if err != nil {
		return err
	}

	client, err := helm.NewClient(kubeconfig, namespace)
	if err != nil {
		return fmt.Errorf("failed to create helm client: %w", err)
	}

	rel, err := client.InstallOrUpgrade(ctx, release, ch, values, h.Timeout)
	if err != nil {
		return fmt.Errorf("failed to install %s: %w", release, err)
	}

	logging.For("addons").WithField("release", release).
		Infof("Installed %s %s into %s (revision %d)", spec.Name, spec.Version, namespace, rel.Version)
	return nil
}

// SystemTolerations lets addon pods run on the tainted system node group.
func SystemTolerations() []helm.Values {
	return []helm.Values{
		{
			"key":      "type",
			"value":    "kubsystem",
			"operator": "Equal",
			"effect":   "NoSchedule",
		},
	}
}

func chartSpec(name string) (helm.ChartSpec, error) {
	spec, ok := helm.DefaultChartSpecs[name]
	if !ok {
		return helm.ChartSpec{}, fmt.Errorf("no chart configured for %s", name)
	}
	return spec, nil
}
