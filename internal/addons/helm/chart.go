package helm

import (
	"fmt"
	"net/url"
	"time"

	"helm.sh/helm/v3/pkg/chart"
	"helm.sh/helm/v3/pkg/chart/loader"
	"helm.sh/helm/v3/pkg/cli"
	"helm.sh/helm/v3/pkg/getter"
	"helm.sh/helm/v3/pkg/repo"
)

const fetchTimeout = 2 * time.Minute

// ChartSpec locates a chart in a public repository.
type ChartSpec struct {
	Repository string
	Name       string
	Version    string
}

// DefaultChartSpecs are the cluster addons installed after cluster creation.
var DefaultChartSpecs = map[string]ChartSpec{
	"cluster-autoscaler": {
		Repository: "https://kubernetes.github.io/autoscaler",
		Name:       "cluster-autoscaler",
		Version:    "9.50.1",
	},
	"traefik": {
		Repository: "https://traefik.github.io/charts",
		Name:       "traefik",
		Version:    "39.0.0",
	},
	"metrics-server": {
		Repository: "https://kubernetes-sigs.github.io/metrics-server",
		Name:       "metrics-server",
		Version:    "3.12.2",
	},
}

// LoadChartFromURL downloads a packaged chart. Credentials are only sent to
// the chart's own host.
func LoadChartFromURL(chartURL, username, password string) (*chart.Chart, error) {
	u, err := url.Parse(chartURL)
	if err != nil {
		return nil, fmt.Errorf("invalid chart URL %q: %w", chartURL, err)
	}

	g, err := getter.All(cli.New()).ByScheme(u.Scheme)
	if err != nil {
		return nil, fmt.Errorf("unsupported chart URL scheme %q: %w", u.Scheme, err)
	}

	opts := []getter.Option{getter.WithURL(chartURL), getter.WithTimeout(fetchTimeout)}
	if username != "" || password != "" {
		opts = append(opts, getter.WithBasicAuth(username, password))
	}

	buf, err := g.Get(chartURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to download chart %s: %w", chartURL, err)
	}

	ch, err := loader.LoadArchive(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to load chart %s: %w", chartURL, err)
	}
	return ch, nil
}

// LoadChart resolves spec through its repository index and downloads it.
func LoadChart(spec ChartSpec) (*chart.Chart, error) {
	chartURL, err := repo.FindChartInRepoURL(spec.Repository, spec.Name, spec.Version, "", "", "", getter.All(cli.New()))
	if err != nil {
		return nil, fmt.Errorf("failed to find chart %s in repo %s: %w", spec.Name, spec.Repository, err)
	}
	return LoadChartFromURL(chartURL, "", "")
}
