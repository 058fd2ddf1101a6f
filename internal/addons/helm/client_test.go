package helm

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"helm.sh/helm/v3/pkg/action"
	"helm.sh/helm/v3/pkg/chart"
	"helm.sh/helm/v3/pkg/chartutil"
	kubefake "helm.sh/helm/v3/pkg/kube/fake"
	"helm.sh/helm/v3/pkg/release"
	"helm.sh/helm/v3/pkg/storage"
	"helm.sh/helm/v3/pkg/storage/driver"

	"github.com/imamik/spinless/internal/logging"
)

const testKubeconfig = `apiVersion: v1
kind: Config
clusters:
- cluster:
    server: https://127.0.0.1:6443
    insecure-skip-tls-verify: true
  name: test-cluster
contexts:
- context:
    cluster: test-cluster
    user: test-user
  name: test-context
current-context: test-context
users:
- name: test-user
  user:
    token: test-token
`

func TestInMemoryRESTClientGetter_ToRESTConfig(t *testing.T) {
	t.Parallel()
	getter := NewInMemoryRESTClientGetter([]byte(testKubeconfig), "default")

	restConfig, err := getter.ToRESTConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://127.0.0.1:6443", restConfig.Host)
	assert.Equal(t, "test-token", restConfig.BearerToken)

	again, err := getter.ToRESTConfig()
	require.NoError(t, err)
	assert.Same(t, restConfig, again)
}

func TestInMemoryRESTClientGetter_Namespace(t *testing.T) {
	t.Parallel()
	getter := NewInMemoryRESTClientGetter([]byte(testKubeconfig), "feature-1")

	namespace, overridden, err := getter.ToRawKubeConfigLoader().Namespace()
	require.NoError(t, err)
	assert.Equal(t, "feature-1", namespace)
	assert.True(t, overridden)
}

func TestInMemoryRESTClientGetter_InvalidKubeconfig(t *testing.T) {
	t.Parallel()
	getter := NewInMemoryRESTClientGetter([]byte(`not valid yaml: {{{{`), "default")

	_, err := getter.ToRESTConfig()
	require.Error(t, err)

	_, err = getter.ToRESTConfig()
	require.Error(t, err)
}

func TestNewClient(t *testing.T) {
	t.Parallel()
	c, err := NewClient([]byte(testKubeconfig), "feature-1")
	require.NoError(t, err)
	assert.Equal(t, "feature-1", c.namespace)
}

func TestDefaultChartSpecs(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"cluster-autoscaler", "traefik", "metrics-server"} {
		spec, ok := DefaultChartSpecs[name]
		require.True(t, ok, name)
		assert.NotEmpty(t, spec.Repository)
		assert.NotEmpty(t, spec.Version)
	}
}

func newMemoryClient(t *testing.T, namespace string) *Client {
	t.Helper()
	cfg := &action.Configuration{
		Releases:     storage.Init(driver.NewMemory()),
		KubeClient:   &kubefake.PrintingKubeClient{Out: io.Discard},
		Capabilities: chartutil.DefaultCapabilities,
		Log:          func(string, ...any) {},
	}
	return &Client{namespace: namespace, actionConfig: cfg, log: logging.For("helm")}
}

func TestClient_Uninstall(t *testing.T) {
	t.Parallel()
	c := newMemoryClient(t, "feature-1")
	require.NoError(t, c.actionConfig.Releases.Create(&release.Release{
		Name:      "acme-svc1",
		Namespace: "feature-1",
		Version:   1,
		Info:      &release.Info{Status: release.StatusDeployed},
		Chart:     &chart.Chart{Metadata: &chart.Metadata{Name: "svc1", Version: "0.0.1"}},
	}))

	exists, err := c.ReleaseExists("acme-svc1")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, c.Uninstall("acme-svc1", time.Second))

	exists, err = c.ReleaseExists("acme-svc1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestClient_UninstallMissingRelease(t *testing.T) {
	t.Parallel()
	c := newMemoryClient(t, "feature-1")

	assert.NoError(t, c.Uninstall("acme-gone", time.Second))
}
