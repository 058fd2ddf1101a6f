package deploy

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"helm.sh/helm/v3/pkg/chart"

	"github.com/imamik/spinless/internal/addons/helm"
)

// ChartRef locates a packaged chart in a registry.
type ChartRef struct {
	URL      string
	Username string
	Password string
}

// InstallRequest is one release install or upgrade.
type InstallRequest struct {
	Kubeconfig []byte
	Namespace  string
	Release    string
	Chart      *chart.Chart
	Values     helm.Values
	Timeout    time.Duration
}

// UninstallRequest removes one release.
type UninstallRequest struct {
	Kubeconfig []byte
	Namespace  string
	Release    string
	Timeout    time.Duration
}

// Installer fetches charts, installs releases and removes them.
type Installer interface {
	LoadChart(ctx context.Context, ref ChartRef) (*chart.Chart, error)
	Install(ctx context.Context, req InstallRequest) error
	Uninstall(ctx context.Context, req UninstallRequest) error
}

// HelmInstaller installs through the helm SDK.
type HelmInstaller struct{}

func (HelmInstaller) LoadChart(_ context.Context, ref ChartRef) (*chart.Chart, error) {
	return helm.LoadChartFromURL(ref.URL, ref.Username, ref.Password)
}

func (HelmInstaller) Install(ctx context.Context, req InstallRequest) error {
	client, err := helm.NewClient(req.Kubeconfig, req.Namespace)
	if err != nil {
		return err
	}
	rel, err := client.InstallOrUpgrade(ctx, req.Release, req.Chart, req.Values, req.Timeout)
	if err != nil {
		return fmt.Errorf("failed to install release %s: %w", req.Release, err)
	}
	if rel != nil && rel.Info != nil && rel.Info.Status.IsPending() {
		return fmt.Errorf("release %s is still %s", req.Release, rel.Info.Status)
	}
	return nil
}

// Uninstall removes the release; a missing release is not an error.
func (HelmInstaller) Uninstall(ctx context.Context, req UninstallRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client, err := helm.NewClient(req.Kubeconfig, req.Namespace)
	if err != nil {
		return err
	}
	return client.Uninstall(req.Release, req.Timeout)
}

// ChartURL builds the archive URL of a tenant chart:
// {registry}/{owner}/{repo}/{repo}-{version}.tgz. Registries stored without a
// scheme are served over https.
func ChartURL(registry, owner, repo, version string) string {
	base := registry
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	return strings.TrimSuffix(base, "/") + "/" + path.Join(owner, repo, fmt.Sprintf("%s-%s.tgz", repo, version))
}
