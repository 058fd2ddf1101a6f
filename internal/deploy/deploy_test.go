package deploy

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"helm.sh/helm/v3/pkg/chart"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/imamik/spinless/internal/apperr"
	"github.com/imamik/spinless/internal/credentials"
	"github.com/imamik/spinless/internal/job"
	"github.com/imamik/spinless/internal/k8s"
	secretfake "github.com/imamik/spinless/internal/secretstore/fake"
)

const root = "secretv2"

type fakeInstaller struct {
	mu         sync.Mutex
	refs       []ChartRef
	installs   []InstallRequest
	uninstalls []UninstallRequest
	defaults   map[string]any
	fail       map[string]error
	panicOn    string
	block      bool
}

func (f *fakeInstaller) LoadChart(_ context.Context, ref ChartRef) (*chart.Chart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs = append(f.refs, ref)
	return &chart.Chart{Metadata: &chart.Metadata{Name: "svc"}, Values: f.defaults}, nil
}

func (f *fakeInstaller) Install(ctx context.Context, req InstallRequest) error {
	f.mu.Lock()
	f.installs = append(f.installs, req)
	block, panicOn, err := f.block, f.panicOn, f.fail[req.Release]
	f.mu.Unlock()

	if req.Release == panicOn {
		panic("chart exploded")
	}
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (f *fakeInstaller) Uninstall(_ context.Context, req UninstallRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uninstalls = append(f.uninstalls, req)
	return f.fail["uninstall "+req.Release]
}

func (f *fakeInstaller) Uninstalls() []UninstallRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]UninstallRequest(nil), f.uninstalls...)
}

func (f *fakeInstaller) Installs() []InstallRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]InstallRequest(nil), f.installs...)
}

type harness struct {
	store     *secretfake.Store
	installer *fakeInstaller
	jobs      *job.Registry
	processor *Processor
	coord     *Coordinator
	clientset *fake.Clientset
}

func newHarness(t *testing.T, budget time.Duration) *harness {
	t.Helper()

	store := secretfake.New()
	store.Seed(root+"/registries/helm/default", map[string]any{
		"username":  "bot",
		"password":  "s3cret",
		"repo_path": "charts.example.com/",
	})
	store.Seed(root+"/registries/docker/default", map[string]any{
		"username":        "bot",
		"password":        "s3cret",
		"repo_path":       "registry.example.com",
		"dockerjsontoken": "eyJhdXRocyI6e319",
	})
	for _, cluster := range []string{"c1", "c2"} {
		store.Seed(root+"/kctx/"+cluster, map[string]any{
			"name":        cluster,
			"aws_region":  "eu-west-1",
			"kube_config": base64.StdEncoding.EncodeToString([]byte("apiVersion: v1\nkind: Config\n")),
			"dns_suffix":  cluster + ".example.com",
		})
	}

	jobs, err := job.NewRegistry(t.TempDir(), 5*time.Millisecond)
	require.NoError(t, err)

	installer := &fakeInstaller{
		defaults: map[string]any{"replicas": 1, "traefik": map[string]any{"enabled": true}},
		fail:     map[string]error{},
	}
	creds := credentials.New(store, root)
	processor := NewProcessor(ProcessorConfig{
		QueueSize:      8,
		VaultAddr:      "https://vault.example.com",
		InstallTimeout: time.Minute,
	}, creds, installer)

	clientset := fake.NewSimpleClientset(&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "feature-1"}})
	coord := NewCoordinator(CoordinatorConfig{
		Root:                root,
		ProtectedNamespaces: []string{"develop", "master"},
		PollInterval:        5 * time.Millisecond,
		WaitBudget:          func(int) time.Duration { return budget },
	}, jobs, processor, store, creds, func([]byte) (k8s.Client, error) {
		return k8s.NewFromClientset(clientset, nil), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go processor.Run(ctx)
	t.Cleanup(func() {
		cancel()
		_ = jobs.Shutdown(context.Background())
	})

	return &harness{
		store:     store,
		installer: installer,
		jobs:      jobs,
		processor: processor,
		coord:     coord,
		clientset: clientset,
	}
}

func finish(t *testing.T, h *harness, j *job.Job) []job.Record {
	t.Helper()
	select {
	case <-j.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("job %s did not finish", j.ID())
	}

	reader, err := h.jobs.Follow(j.ID())
	require.NoError(t, err)
	defer func() { _ = reader.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var records []job.Record
	for {
		rec, err := reader.Next(ctx)
		if errors.Is(err, io.EOF) {
			return records
		}
		require.NoError(t, err)
		records = append(records, rec)
		if rec.IsEOF() {
			return records
		}
	}
}

// summary returns the terminal record before EOF.
func summary(t *testing.T, records []job.Record) job.Record {
	t.Helper()
	require.GreaterOrEqual(t, len(records), 2)
	require.True(t, records[len(records)-1].IsEOF())
	return records[len(records)-2]
}

func service(repo string) ServiceSpec {
	return ServiceSpec{
		Owner:     "acme",
		Repo:      repo,
		Registry:  RegistryRef{Docker: "default", Helm: "default"},
		Cluster:   "c1",
		Namespace: "ns1",
		ImageTag:  "v1",
	}
}

func TestDeploy_SingleService(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 5*time.Second)

	j, err := h.coord.Deploy(DeployRequest{
		Services:  []ServiceSpec{service("svc1")},
		Namespace: "ns1",
		SHA:       "abc123",
	})
	require.NoError(t, err)

	records := finish(t, h, j)
	last := summary(t, records)
	assert.Equal(t, job.Success, j.State())
	assert.Equal(t, job.RecordSuccess, last.Status)
	assert.Equal(t, "Installed 1/1 services", last.Message)

	installs := h.installer.Installs()
	require.Len(t, installs, 1)
	in := installs[0]
	assert.Equal(t, "acme-svc1", in.Release)
	assert.Equal(t, "ns1", in.Namespace)
	assert.Equal(t, time.Minute, in.Timeout)

	assert.Equal(t, "https://vault.example.com", in.Values["vault"].(map[string]any)["addr"])
	assert.Equal(t, "acme-svc1-role", in.Values["vault"].(map[string]any)["role"])
	assert.Equal(t, "kubernetes-c1", in.Values["vault"].(map[string]any)["jwtprovider"])
	assert.Equal(t, "kubernetes-c1", in.Values["env"].(map[string]any)["VAULT_MOUNT_POINT"])
	assert.Equal(t, "v1", in.Values["images"].(map[string]any)["service"].(map[string]any)["tag"])
	assert.Equal(t, "acme-svc1", in.Values["service_account"])
	assert.Equal(t, "abc123", in.Values["sha"])
	assert.Equal(t, "eyJhdXRocyI6e319", in.Values["dockerjsontoken"])
	assert.Equal(t, 1, in.Values["replicas"])
	assert.Equal(t, map[string]any{"enabled": true, "dns_suffix": "c1.example.com"}, in.Values["traefik"])

	require.Len(t, h.installer.refs, 1)
	assert.Equal(t, ChartRef{
		URL:      "https://charts.example.com/acme/svc1/svc1-0.0.1.tgz",
		Username: "bot",
		Password: "s3cret",
	}, h.installer.refs[0])

	_, ok := h.store.Role("kubernetes-c1", "acme-svc1-role")
	assert.True(t, ok)
	assert.Zero(t, h.processor.Results().Count(j.ID()), "results are released once the job is done")

	var progress []string
	for _, r := range records {
		progress = append(progress, r.Message)
	}
	assert.Contains(t, progress, "[ns1/acme-svc1] installed acme-svc1 with image v1 on c1")
	for _, m := range progress {
		assert.NotContains(t, m, "eyJhdXRocyI6e319")
	}
}

func TestDeploy_PartialFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 5*time.Second)
	h.installer.fail["acme-svc2"] = errors.New("image pull backoff")

	j, err := h.coord.Deploy(DeployRequest{
		Services:  []ServiceSpec{service("svc1"), service("svc2")},
		Namespace: "ns1",
		SHA:       "abc123",
	})
	require.NoError(t, err)

	records := finish(t, h, j)
	assert.Equal(t, job.Failed, j.State())
	assert.Equal(t, "Installed 1/2 services, 1 failed", summary(t, records).Message)

	var warned bool
	for _, r := range records {
		if r.Status == job.RecordWarning {
			warned = true
			assert.Contains(t, r.Message, "ns1/acme-svc2 on c1 failed")
			assert.Contains(t, r.Message, "image pull backoff")
		}
	}
	assert.True(t, warned)
}

func TestDeploy_ValidationFailsJob(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 5*time.Second)

	bad := service("svc1")
	bad.ImageTag = ""
	j, err := h.coord.Deploy(DeployRequest{Services: []ServiceSpec{bad}, Namespace: "ns1", SHA: "abc123"})
	require.NoError(t, err)

	records := finish(t, h, j)
	assert.Equal(t, job.Failed, j.State())
	assert.Contains(t, summary(t, records).Message, "image_tag")
	assert.Empty(t, h.installer.Installs())
}

func TestDeploy_RejectsPathTraversal(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 5*time.Second)

	bad := service("../beta")
	j, err := h.coord.Deploy(DeployRequest{Services: []ServiceSpec{bad}, Namespace: "ns1", SHA: "abc123"})
	require.NoError(t, err)

	records := finish(t, h, j)
	assert.Equal(t, job.Failed, j.State())
	msg := summary(t, records).Message
	assert.Contains(t, msg, `repo "../beta" is invalid`)
	assert.NotContains(t, msg, "\n")
	assert.NotContains(t, msg, "error occurred")
	assert.Empty(t, h.installer.Installs())
	_, ok := h.store.Policy("acme-../beta-policy")
	assert.False(t, ok)
}

func TestDeploy_SameServiceOnTwoClusters(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 5*time.Second)

	other := service("svc1")
	other.Cluster = "c2"
	j, err := h.coord.Deploy(DeployRequest{
		Services:  []ServiceSpec{service("svc1"), other},
		Namespace: "ns1",
		SHA:       "abc123",
	})
	require.NoError(t, err)

	records := finish(t, h, j)
	assert.Equal(t, job.Success, j.State())
	assert.Equal(t, "Installed 2/2 services", summary(t, records).Message)

	installs := h.installer.Installs()
	require.Len(t, installs, 2)
	for _, in := range installs {
		assert.Equal(t, "acme-svc1", in.Release)
	}
	_, ok := h.store.Role("kubernetes-c1", "acme-svc1-role")
	assert.True(t, ok)
	_, ok = h.store.Role("kubernetes-c2", "acme-svc1-role")
	assert.True(t, ok)
}

func TestDeploy_DeduplicatesLookups(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 5*time.Second)

	j, err := h.coord.Deploy(DeployRequest{
		Services:  []ServiceSpec{service("svc1"), service("svc2"), service("svc3")},
		Namespace: "ns1",
		SHA:       "abc123",
	})
	require.NoError(t, err)

	records := finish(t, h, j)
	assert.Equal(t, "Installed 3/3 services", summary(t, records).Message)
	assert.Equal(t, 1, h.store.Reads(root+"/registries/helm/default"))
	assert.Equal(t, 1, h.store.Reads(root+"/registries/docker/default"))
	assert.Equal(t, 1, h.store.Reads(root+"/kctx/c1"))

	var releases []string
	for _, in := range h.installer.Installs() {
		releases = append(releases, in.Release)
	}
	assert.Equal(t, []string{"acme-svc1", "acme-svc2", "acme-svc3"}, releases)
}

func TestDeploy_UnknownCluster(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 5*time.Second)

	s := service("svc1")
	s.Cluster = "nowhere"
	j, err := h.coord.Deploy(DeployRequest{Services: []ServiceSpec{s}, Namespace: "ns1", SHA: "abc123"})
	require.NoError(t, err)

	records := finish(t, h, j)
	assert.Equal(t, job.Failed, j.State())
	assert.Contains(t, summary(t, records).Message, "nowhere")
	assert.Empty(t, h.installer.Installs())
}

func TestDeploy_TimesOutWithPartialResults(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 100*time.Millisecond)
	h.installer.block = true

	j, err := h.coord.Deploy(DeployRequest{Services: []ServiceSpec{service("svc1")}, Namespace: "ns1", SHA: "abc123"})
	require.NoError(t, err)

	records := finish(t, h, j)
	assert.Equal(t, job.Failed, j.State())
	assert.Equal(t, "Timed out waiting for deployments: installed 0/1 services, 0 failed, 1 pending", summary(t, records).Message)

	// The blocked install is cancelled with the job; its late result is dropped.
	assert.Never(t, func() bool { return h.processor.Results().Count(j.ID()) > 0 },
		200*time.Millisecond, 10*time.Millisecond)
}

func TestDeploy_Cancel(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 5*time.Second)
	h.installer.block = true

	j, err := h.coord.Deploy(DeployRequest{Services: []ServiceSpec{service("svc1")}, Namespace: "ns1", SHA: "abc123"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(h.installer.Installs()) == 1 }, 5*time.Second, 5*time.Millisecond)
	cancelled, err := h.coord.Cancel(j.ID())
	require.NoError(t, err)
	assert.True(t, cancelled)

	records := finish(t, h, j)
	assert.Equal(t, job.Cancelled, j.State())
	assert.Equal(t, job.RecordCancelled, summary(t, records).Status)

	_, err = h.coord.Cancel("missing")
	assert.ErrorIs(t, err, job.ErrNotFound)
}

func TestDestroy_ProtectedNamespace(t *testing.T) {
	t.Parallel()
	h := newHarness(t, time.Second)

	j, err := h.coord.Destroy(DestroyRequest{Clusters: []string{"c1"}, Namespace: "master"})
	require.Error(t, err)
	assert.Nil(t, j)
	assert.Contains(t, err.Error(), "protected")

	all, err := h.jobs.List("")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestDestroy(t *testing.T) {
	t.Parallel()
	h := newHarness(t, time.Second)
	h.store.Seed(root+"/acme/svc1/feature-1", map[string]any{"db": "x"})
	h.store.Seed(root+"/acme/svc1/develop", map[string]any{"db": "y"})

	j, err := h.coord.Destroy(DestroyRequest{
		Clusters:  []string{"c1", "c1"},
		Namespace: "feature-1",
		Services:  []ServiceRef{{Owner: "acme", Repo: "svc1"}},
	})
	require.NoError(t, err)

	records := finish(t, h, j)
	assert.Equal(t, job.Success, j.State())
	assert.Equal(t, "Destroyed namespace feature-1", summary(t, records).Message)

	_, err = h.clientset.CoreV1().Namespaces().Get(context.Background(), "feature-1", metav1.GetOptions{})
	assert.Error(t, err)
	assert.False(t, h.store.Has(root+"/acme/svc1/feature-1"))
	assert.True(t, h.store.Has(root+"/acme/svc1/develop"))

	uninstalls := h.installer.Uninstalls()
	require.Len(t, uninstalls, 1)
	assert.Equal(t, "acme-svc1", uninstalls[0].Release)
	assert.Equal(t, "feature-1", uninstalls[0].Namespace)
	assert.Equal(t, time.Minute, uninstalls[0].Timeout)
	assert.NotEmpty(t, uninstalls[0].Kubeconfig)
}

func TestDestroy_UninstallFailureStillDeletesNamespace(t *testing.T) {
	t.Parallel()
	h := newHarness(t, time.Second)
	h.installer.fail["uninstall acme-svc1"] = errors.New("hook failed")

	j, err := h.coord.Destroy(DestroyRequest{
		Clusters:  []string{"c1"},
		Namespace: "feature-1",
		Services:  []ServiceRef{{Owner: "acme", Repo: "svc1"}},
	})
	require.NoError(t, err)

	records := finish(t, h, j)
	assert.Equal(t, job.Failed, j.State())
	assert.Equal(t, "Destroyed namespace feature-1 with 1 errors", summary(t, records).Message)
	_, err = h.clientset.CoreV1().Namespaces().Get(context.Background(), "feature-1", metav1.GetOptions{})
	assert.Error(t, err)
}

func TestDestroy_RejectsPathTraversal(t *testing.T) {
	t.Parallel()
	h := newHarness(t, time.Second)
	h.store.Seed(root+"/beta/api/prod", map[string]any{"db": "beta-secret"})

	for _, req := range []DestroyRequest{
		{Clusters: []string{"c1"}, Namespace: "../beta/api/prod"},
		{Namespace: "prod", Services: []ServiceRef{{Owner: "acme", Repo: "../beta/api"}}},
		{Clusters: []string{"../c1"}, Namespace: "feature-1"},
	} {
		j, err := h.coord.Destroy(req)
		require.Error(t, err)
		assert.True(t, apperr.IsValidation(err))
		assert.Nil(t, j)
	}
	assert.True(t, h.store.Has(root+"/beta/api/prod"))
}

func TestDestroy_ContinuesAfterFailures(t *testing.T) {
	t.Parallel()
	h := newHarness(t, time.Second)
	h.store.Seed(root+"/acme/svc1/feature-1", map[string]any{"db": "x"})

	j, err := h.coord.Destroy(DestroyRequest{
		Clusters:  []string{"gone", "c1"},
		Namespace: "feature-1",
		Services:  []ServiceRef{{Owner: "acme", Repo: "svc1"}},
	})
	require.NoError(t, err)

	records := finish(t, h, j)
	assert.Equal(t, job.Failed, j.State())
	assert.Equal(t, "Destroyed namespace feature-1 with 1 errors", summary(t, records).Message)
	assert.False(t, h.store.Has(root+"/acme/svc1/feature-1"))
}
