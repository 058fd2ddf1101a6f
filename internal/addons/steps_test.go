package addons

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/rest"

	"github.com/imamik/spinless/internal/addons/helm"
	"github.com/imamik/spinless/internal/k8s"
	"github.com/imamik/spinless/internal/util/labels"
)

type installedChart struct {
	namespace string
	release   string
	spec      helm.ChartSpec
	values    helm.Values
}

type recordingCharts struct {
	installed []installedChart
	err       error
}

func (r *recordingCharts) InstallChart(_ context.Context, _ []byte, namespace, release string, spec helm.ChartSpec, values helm.Values) error {
	if r.err != nil {
		return r.err
	}
	r.installed = append(r.installed, installedChart{namespace, release, spec, values})
	return nil
}

func testCluster() Cluster {
	return Cluster{
		Name:       "c1",
		Region:     "eu-west-1",
		AccessKey:  "AKIA",
		SecretKey:  "secret",
		Kubeconfig: []byte("kubeconfig"),
	}
}

func TestSteps_Order(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{StepClusterAutoscaler, StepTraefik, StepMetricsServer}, Steps())
}

func TestInstallStep_AllSteps(t *testing.T) {
	t.Parallel()

	clientset := fake.NewSimpleClientset()
	kube := k8s.NewFromClientset(clientset, &rest.Config{Host: "https://c1.example"})
	charts := &recordingCharts{}

	for _, step := range Steps() {
		require.NoError(t, InstallStep(context.Background(), step, kube, charts, testCluster()), step)
	}

	require.Len(t, charts.installed, 3)

	autoscaler := charts.installed[0]
	assert.Equal(t, "kube-system", autoscaler.namespace)
	assert.Equal(t, "cluster-autoscaler", autoscaler.release)
	assert.Equal(t, helm.DefaultChartSpecs["cluster-autoscaler"], autoscaler.spec)
	assert.Equal(t, "eu-west-1", autoscaler.values["awsRegion"])
	assert.Equal(t, helm.Values{"clusterName": "c1"}, autoscaler.values["autoDiscovery"])
	assert.Equal(t, "cluster-autoscaler-aws", autoscaler.values["secretKeyRefNameOverride"])

	secret, err := clientset.CoreV1().Secrets("kube-system").Get(context.Background(), "cluster-autoscaler-aws", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "AKIA", secret.StringData["AwsAccessKeyId"])
	assert.Equal(t, "secret", secret.StringData["AwsSecretAccessKey"])
	assert.Equal(t, "c1", secret.Labels[labels.KeyCluster])
	assert.Equal(t, labels.ManagedBySpinless, secret.Labels[labels.KeyManagedBy])

	traefik := charts.installed[1]
	assert.Equal(t, "traefik", traefik.namespace)
	assert.Equal(t, helm.Values{"type": "NodePort"}, traefik.values["service"])
	assert.Equal(t, 30003, traefik.values["ports"].(helm.Values)["web"].(helm.Values)["nodePort"])

	metrics := charts.installed[2]
	assert.Equal(t, "kube-system", metrics.namespace)
	assert.Equal(t, "metrics-server", metrics.release)

	for _, c := range charts.installed {
		assert.Equal(t, SystemTolerations(), c.values["tolerations"], c.release)
	}
}

func TestInstallStep_Errors(t *testing.T) {
	t.Parallel()

	kube := k8s.NewFromClientset(fake.NewSimpleClientset(), &rest.Config{Host: "https://c1.example"})

	t.Run("unknown step", func(t *testing.T) {
		t.Parallel()
		err := InstallStep(context.Background(), "argocd", kube, &recordingCharts{}, testCluster())
		assert.ErrorContains(t, err, "unknown addon step")
	})

	t.Run("no kubeconfig", func(t *testing.T) {
		t.Parallel()
		cluster := testCluster()
		cluster.Kubeconfig = nil
		err := InstallStep(context.Background(), StepTraefik, kube, &recordingCharts{}, cluster)
		assert.ErrorContains(t, err, "no cluster access")
	})

	t.Run("install failure", func(t *testing.T) {
		t.Parallel()
		charts := &recordingCharts{err: errors.New("chart not found")}
		err := InstallStep(context.Background(), StepMetricsServer, kube, charts, testCluster())
		assert.ErrorContains(t, err, "chart not found")
	})
}

func TestSystemTolerations(t *testing.T) {
	t.Parallel()

	tolerations := SystemTolerations()
	require.Len(t, tolerations, 1)
	assert.Equal(t, "type", tolerations[0]["key"])
	assert.Equal(t, "kubsystem", tolerations[0]["value"])
	assert.Equal(t, "Equal", tolerations[0]["operator"])
	assert.Equal(t, "NoSchedule", tolerations[0]["effect"])
}
