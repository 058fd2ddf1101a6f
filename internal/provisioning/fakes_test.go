package provisioning

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/imamik/spinless/internal/addons/helm"
)

type recordingEmitter struct {
	mu      sync.Mutex
	records []string
}

func (e *recordingEmitter) Emit(status, message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append(e.records, status+" "+message)
}

func (e *recordingEmitter) Emitf(format string, args ...any) {
	e.Emit("RUNNING", fmt.Sprintf(format, args...))
}

func (e *recordingEmitter) contains(substr string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range e.records {
		if strings.Contains(r, substr) {
			return true
		}
	}
	return false
}

var errObjectNotFound = errors.New("object not found")

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}}
}

func (m *memObjects) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memObjects) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errObjectNotFound, key)
	}
	return data, nil
}

func (m *memObjects) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memObjects) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.objects))
}

// fakeTerraform records invocations and snapshots the working directory
// whenever apply or destroy runs.
type fakeTerraform struct {
	mu      sync.Mutex
	calls   []string
	backend map[string]string
	files   map[string]map[string]string

	initErr    error
	applyErr   error
	destroyErr error
	// varsUploaded is set when the variables object existed at apply time.
	objects      *memObjects
	varsKey      string
	varsUploaded bool
}

func newFakeTerraform(objects *memObjects) *fakeTerraform {
	return &fakeTerraform{objects: objects, files: map[string]map[string]string{}}
}

func (f *fakeTerraform) factory() TerraformFactory {
	return func(workDir string, out io.Writer) (Terraform, error) {
		return &fakeRunner{fake: f, dir: workDir, out: out}, nil
	}
}

func (f *fakeTerraform) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTerraform) file(op, name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[op][name]
}

type fakeRunner struct {
	fake *fakeTerraform
	dir  string
	out  io.Writer
}

func (r *fakeRunner) record(op string) {
	r.fake.mu.Lock()
	defer r.fake.mu.Unlock()
	r.fake.calls = append(r.fake.calls, op)

	entries, _ := os.ReadDir(r.dir)
	snapshot := map[string]string{}
	for _, e := range entries {
		data, _ := os.ReadFile(filepath.Join(r.dir, e.Name()))
		snapshot[e.Name()] = string(data)
	}
	r.fake.files[op] = snapshot
}

func (r *fakeRunner) Init(_ context.Context, backendConfig map[string]string) error {
	r.record("init")
	r.fake.mu.Lock()
	r.fake.backend = backendConfig
	r.fake.mu.Unlock()
	_, _ = io.WriteString(r.out, "Initializing the backend...\n\nTerraform has been successfully initialized!\n")
	return r.fake.initErr
}

func (r *fakeRunner) Apply(ctx context.Context, _ []string) error {
	r.record("apply")
	if r.fake.varsKey != "" {
		ok, _ := r.fake.objects.Exists(ctx, r.fake.varsKey)
		r.fake.mu.Lock()
		r.fake.varsUploaded = ok
		r.fake.mu.Unlock()
	}
	if r.fake.applyErr != nil {
		_, _ = io.WriteString(r.out, "Error: creating EKS Cluster")
		return r.fake.applyErr
	}
	_, _ = io.WriteString(r.out, "Apply complete! Resources: 12 added, 0 changed, 0 destroyed.\n")
	return nil
}

func (r *fakeRunner) Destroy(_ context.Context, _ []string) error {
	r.record("destroy")
	_, _ = io.WriteString(r.out, "Destroy complete!\n")
	return r.fake.destroyErr
}

type fakeCloud struct {
	mu            sync.Mutex
	kubeconfigErr error
	roles         []string
}

func (c *fakeCloud) RoleARN(_ context.Context, roleName string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roles = append(c.roles, roleName)
	return "arn:aws:iam::123456789012:role/" + roleName, nil
}

func (c *fakeCloud) Kubeconfig(_ context.Context, clusterName string) ([]byte, error) {
	if c.kubeconfigErr != nil {
		return nil, c.kubeconfigErr
	}
	return []byte("kubeconfig-" + clusterName), nil
}

type recordingCharts struct {
	mu       sync.Mutex
	releases []string
}

func (r *recordingCharts) InstallChart(_ context.Context, kubeconfig []byte, namespace, release string, _ helm.ChartSpec, _ helm.Values) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releases = append(r.releases, namespace+"/"+release)
	return nil
}

func (r *recordingCharts) installed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.releases...)
}
