// Package fake provides an in-memory secretstore.Store for tests. Logins
// through a kubernetes role return views restricted by the role's policies.
package fake

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/imamik/spinless/internal/secretstore"
)

type entry struct {
	data    map[string]any
	version int
}

// Store is the shared backing state. Its own methods run with root access.
type Store struct {
	mu       sync.Mutex
	secrets  map[string]*entry
	policies map[string]secretstore.Policy
	roles    map[string]map[string]secretstore.KubernetesRole
	auth     map[string]secretstore.KubernetesAuthConfig
	reads    map[string]int
	failures map[string]error
}

var _ secretstore.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		secrets:  map[string]*entry{},
		policies: map[string]secretstore.Policy{},
		roles:    map[string]map[string]secretstore.KubernetesRole{},
		auth:     map[string]secretstore.KubernetesAuthConfig{},
		reads:    map[string]int{},
		failures: map[string]error{},
	}
}

// Seed writes data at path without going through failure injection.
func (s *Store) Seed(path string, data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(path, data)
}

// FailOn makes op ("read", "write", "delete", "list", "policy", "role",
// "enable", "disable") on target return err.
func (s *Store) FailOn(op, target string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op+" "+target] = err
}

// Reads returns how often path was read.
func (s *Store) Reads(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads[path]
}

// Has reports whether path holds a secret.
func (s *Store) Has(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.secrets[path]
	return ok
}

// Policy returns a stored policy.
func (s *Store) Policy(name string) (secretstore.Policy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[name]
	return p, ok
}

// Role returns a stored kubernetes role.
func (s *Store) Role(mount, name string) (secretstore.KubernetesRole, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[mount][name]
	return r, ok
}

// AuthConfig returns the configuration of an enabled kubernetes auth mount.
func (s *Store) AuthConfig(mount string) (secretstore.KubernetesAuthConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.auth[mount]
	return c, ok
}

// Login authenticates as role on mount and returns a store view limited to
// the role's policies.
func (s *Store) Login(mount, role string) (secretstore.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.auth[mount]; !ok {
		return nil, fmt.Errorf("auth mount %s is not enabled", mount)
	}
	r, ok := s.roles[mount][role]
	if !ok {
		return nil, fmt.Errorf("role %s not found on %s", role, mount)
	}

	var policies []secretstore.Policy
	for _, name := range r.Policies {
		if p, ok := s.policies[name]; ok {
			policies = append(policies, p)
		}
	}
	return &scoped{root: s, policies: policies}, nil
}

func (s *Store) fail(op, target string) error {
	return s.failures[op+" "+target]
}

func (s *Store) put(path string, data map[string]any) {
	e, ok := s.secrets[path]
	if !ok {
		e = &entry{}
		s.secrets[path] = e
	}
	e.data = maps.Clone(data)
	e.version++
}

func (s *Store) Read(_ context.Context, path string) (*secretstore.Secret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reads[path]++
	if err := s.fail("read", path); err != nil {
		return nil, err
	}
	e, ok := s.secrets[path]
	if !ok {
		return nil, secretstore.ErrNotFound
	}
	return &secretstore.Secret{Data: maps.Clone(e.data), Version: e.version}, nil
}

func (s *Store) Write(_ context.Context, path string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("write", path); err != nil {
		return err
	}
	s.put(path, data)
	return nil
}

func (s *Store) WriteCAS(_ context.Context, path string, data map[string]any, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("write", path); err != nil {
		return err
	}
	current := 0
	if e, ok := s.secrets[path]; ok {
		current = e.version
	}
	if current != version {
		return fmt.Errorf("%w: %s is at version %d, not %d", secretstore.ErrVersionConflict, path, current, version)
	}
	s.put(path, data)
	return nil
}

func (s *Store) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("delete", path); err != nil {
		return err
	}
	delete(s.secrets, path)
	return nil
}

func (s *Store) List(_ context.Context, path string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("list", path); err != nil {
		return nil, err
	}

	prefix := strings.TrimSuffix(path, "/") + "/"
	seen := map[string]bool{}
	for p := range s.secrets {
		rest, ok := strings.CutPrefix(p, prefix)
		if !ok {
			continue
		}
		if head, _, nested := strings.Cut(rest, "/"); nested {
			seen[head+"/"] = true
		} else {
			seen[rest] = true
		}
	}
	return slices.Sorted(maps.Keys(seen)), nil
}

func (s *Store) PutPolicy(_ context.Context, policy secretstore.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("policy", policy.Name); err != nil {
		return err
	}
	s.policies[policy.Name] = policy
	return nil
}

func (s *Store) PutKubernetesRole(_ context.Context, mount string, role secretstore.KubernetesRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("role", mount); err != nil {
		return err
	}
	if s.roles[mount] == nil {
		s.roles[mount] = map[string]secretstore.KubernetesRole{}
	}
	s.roles[mount][role.Name] = role
	return nil
}

func (s *Store) EnableKubernetesAuth(_ context.Context, mount string, cfg secretstore.KubernetesAuthConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("enable", mount); err != nil {
		return err
	}
	s.auth[mount] = cfg
	return nil
}

func (s *Store) DisableAuth(_ context.Context, mount string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("disable", mount); err != nil {
		return err
	}
	delete(s.auth, mount)
	delete(s.roles, mount)
	return nil
}

// scoped is a logged-in view; every KV operation is checked against its policies.
type scoped struct {
	root     *Store
	policies []secretstore.Policy
}

func (v *scoped) check(path string, capabilities ...secretstore.Capability) error {
	for _, p := range v.policies {
		for _, c := range capabilities {
			if p.Allows(path, c) {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %s", secretstore.ErrPermissionDenied, path)
}

func (v *scoped) Read(ctx context.Context, path string) (*secretstore.Secret, error) {
	if err := v.check(path, secretstore.CapRead); err != nil {
		return nil, err
	}
	return v.root.Read(ctx, path)
}

func (v *scoped) Write(ctx context.Context, path string, data map[string]any) error {
	if err := v.check(path, secretstore.CapCreate, secretstore.CapUpdate); err != nil {
		return err
	}
	return v.root.Write(ctx, path, data)
}

func (v *scoped) WriteCAS(ctx context.Context, path string, data map[string]any, version int) error {
	if err := v.check(path, secretstore.CapCreate, secretstore.CapUpdate); err != nil {
		return err
	}
	return v.root.WriteCAS(ctx, path, data, version)
}

func (v *scoped) Delete(ctx context.Context, path string) error {
	if err := v.check(path, secretstore.CapDelete); err != nil {
		return err
	}
	return v.root.Delete(ctx, path)
}

func (v *scoped) List(ctx context.Context, path string) ([]string, error) {
	if err := v.check(strings.TrimSuffix(path, "/")+"/", secretstore.CapList); err != nil {
		return nil, err
	}
	return v.root.List(ctx, path)
}

var errNotRoot = errors.New("operation requires root access")

func (v *scoped) PutPolicy(context.Context, secretstore.Policy) error {
	return fmt.Errorf("%w: %w", secretstore.ErrPermissionDenied, errNotRoot)
}

func (v *scoped) PutKubernetesRole(context.Context, string, secretstore.KubernetesRole) error {
	return fmt.Errorf("%w: %w", secretstore.ErrPermissionDenied, errNotRoot)
}

func (v *scoped) EnableKubernetesAuth(context.Context, string, secretstore.KubernetesAuthConfig) error {
	return fmt.Errorf("%w: %w", secretstore.ErrPermissionDenied, errNotRoot)
}

func (v *scoped) DisableAuth(context.Context, string) error {
	return fmt.Errorf("%w: %w", secretstore.ErrPermissionDenied, errNotRoot)
}
