package deploy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/imamik/spinless/internal/apperr"
	"github.com/imamik/spinless/internal/clusterctx"
	"github.com/imamik/spinless/internal/secretstore"
	"github.com/imamik/spinless/internal/util/async"
	"github.com/imamik/spinless/internal/util/naming"
	"github.com/imamik/spinless/internal/util/retry"
)

type registryKey struct {
	typ  string
	name string
}

// resolved holds one lookup per distinct registry and cluster of a request.
type resolved struct {
	mu         sync.Mutex
	registries map[registryKey]*RegistryCredentials
	clusters   map[string]*clusterctx.Context
}

func (r *resolved) registry(typ, name string) *RegistryCredentials {
	if name == "" {
		return nil
	}
	return r.registries[registryKey{typ, name}]
}

// resolve looks up every distinct registry and cluster context referenced by
// services, concurrently. All lookup failures are reported together.
func (c *Coordinator) resolve(ctx context.Context, services []ServiceSpec) (*resolved, error) {
	r := &resolved{
		registries: make(map[registryKey]*RegistryCredentials),
		clusters:   make(map[string]*clusterctx.Context),
	}

	var tasks []async.Task
	seenRegistry := make(map[registryKey]bool)
	seenCluster := make(map[string]bool)

	addRegistry := func(typ, name string) {
		key := registryKey{typ, name}
		if name == "" || seenRegistry[key] {
			return
		}
		seenRegistry[key] = true
		tasks = append(tasks, async.Task{
			Name: fmt.Sprintf("registry %s/%s", typ, name),
			Func: func(ctx context.Context) error {
				creds, err := c.readRegistry(ctx, typ, name)
				if err != nil {
					return err
				}
				r.mu.Lock()
				r.registries[key] = creds
				r.mu.Unlock()
				return nil
			},
		})
	}

	for _, s := range services {
		addRegistry(RegistryHelm, s.Registry.Helm)
		addRegistry(RegistryDocker, s.Registry.Docker)

		if seenCluster[s.Cluster] {
			continue
		}
		seenCluster[s.Cluster] = true
		cluster := s.Cluster
		tasks = append(tasks, async.Task{
			Name: "cluster " + cluster,
			Func: func(ctx context.Context) error {
				var kctx *clusterctx.Context
				err := c.withRetry(ctx, func() error {
					var err error
					kctx, err = c.contexts.Get(ctx, cluster)
					if errors.Is(err, clusterctx.ErrNotFound) || apperr.IsValidation(err) {
						return retry.Fatal(apperr.E(apperr.KindValidation, "resolve cluster", err))
					}
					return err
				})
				if err != nil {
					return err
				}
				r.mu.Lock()
				r.clusters[cluster] = kctx
				r.mu.Unlock()
				return nil
			},
		})
	}

	if err := async.RunParallel(ctx, tasks); err != nil {
		return nil, err
	}
	return r, nil
}

func (c *Coordinator) readRegistry(ctx context.Context, typ, name string) (*RegistryCredentials, error) {
	path := naming.RegistrySecret(c.cfg.Root, typ, name)

	var secret *secretstore.Secret
	err := c.withRetry(ctx, func() error {
		var err error
		secret, err = c.secrets.Read(ctx, path)
		if errors.Is(err, secretstore.ErrNotFound) {
			return retry.Fatal(apperr.Validation("%s registry %q not found", typ, name))
		}
		if errors.Is(err, secretstore.ErrPermissionDenied) {
			return retry.Fatal(apperr.SecretStore("read "+path, err))
		}
		if err != nil {
			return apperr.SecretStore("read "+path, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	url := secret.String("repo_path")
	if url == "" {
		url = secret.String("path")
	}
	return &RegistryCredentials{
		Type:            typ,
		Name:            name,
		Username:        secret.String("username"),
		Password:        secret.String("password"),
		URL:             url,
		DockerJSONToken: secret.String("dockerjsontoken"),
	}, nil
}

func (c *Coordinator) withRetry(ctx context.Context, op func() error) error {
	err := retry.WithExponentialBackoff(ctx, op,
		retry.WithMaxRetries(c.cfg.RetryMax),
		retry.WithInitialDelay(c.cfg.RetryDelay),
		retry.WithMaxDelay(5*time.Second),
		retry.WithOnRetry(func(attempt int, err error) {
			c.log.WithError(err).WithField("attempt", attempt).Warn("Secret store lookup failed, retrying")
		}),
	)
	var fatal *retry.FatalError
	if errors.As(err, &fatal) {
		return fatal.Err
	}
	return err
}
