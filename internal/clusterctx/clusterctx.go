// Package clusterctx persists what the control plane needs to reach a
// provisioned cluster: cloud credentials, region, kubeconfig and DNS suffix.
package clusterctx

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/imamik/spinless/internal/apperr"
	"github.com/imamik/spinless/internal/secretstore"
	"github.com/imamik/spinless/internal/util/naming"
)

// ErrNotFound is returned when no context is stored for a cluster.
var ErrNotFound = errors.New("cluster context not found")

// Context describes one cluster.
type Context struct {
	Name       string
	Region     string
	AccessKey  string
	SecretKey  string
	Kubeconfig []byte
	DNSSuffix  string
}

// Store reads and writes contexts at {root}/kctx/{cluster}.
type Store struct {
	secrets secretstore.Store
	root    string
}

func NewStore(secrets secretstore.Store, root string) *Store {
	return &Store{secrets: secrets, root: root}
}

func (s *Store) Get(ctx context.Context, cluster string) (*Context, error) {
	if cluster == "" {
		return nil, apperr.Validation("cluster name is required")
	}

	path := naming.ClusterContext(s.root, cluster)
	secret, err := s.secrets.Read(ctx, path)
	if errors.Is(err, secretstore.ErrNotFound) || (err == nil && len(secret.Data) == 0) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, cluster)
	}
	if err != nil {
		return nil, apperr.SecretStore("read "+path, err)
	}

	kubeconfig, err := base64.StdEncoding.DecodeString(secret.String("kube_config"))
	if err != nil {
		return nil, fmt.Errorf("cluster %s: invalid kube_config encoding: %w", cluster, err)
	}

	name := secret.String("name")
	if name == "" {
		name = cluster
	}
	return &Context{
		Name:       name,
		Region:     secret.String("aws_region"),
		AccessKey:  secret.String("aws_access_key"),
		SecretKey:  secret.String("aws_secret_key"),
		Kubeconfig: kubeconfig,
		DNSSuffix:  secret.String("dns_suffix"),
	}, nil
}

func (s *Store) Save(ctx context.Context, c *Context) error {
	if c == nil || c.Name == "" {
		return apperr.Validation("cluster context requires a name")
	}

	path := naming.ClusterContext(s.root, c.Name)
	err := s.secrets.Write(ctx, path, map[string]any{
		"name":           c.Name,
		"aws_region":     c.Region,
		"aws_access_key": c.AccessKey,
		"aws_secret_key": c.SecretKey,
		"kube_config":    base64.StdEncoding.EncodeToString(c.Kubeconfig),
		"dns_suffix":     c.DNSSuffix,
	})
	if err != nil {
		return apperr.SecretStore("write "+path, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, cluster string) error {
	path := naming.ClusterContext(s.root, cluster)
	if err := s.secrets.Delete(ctx, path); err != nil {
		return apperr.SecretStore("delete "+path, err)
	}
	return nil
}

// List returns the names of all stored clusters.
func (s *Store) List(ctx context.Context) ([]string, error) {
	path := naming.ClusterContext(s.root, "")
	keys, err := s.secrets.List(ctx, path)
	if err != nil {
		return nil, apperr.SecretStore("list "+path, err)
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		if !strings.HasSuffix(k, "/") {
			names = append(names, k)
		}
	}
	return names, nil
}
