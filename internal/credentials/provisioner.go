// Package credentials provisions per-tenant secret store identities: the
// policy scoping a tenant to its own subtree, the role binding the tenant's
// service account to that policy, per-namespace secret paths, and the
// per-cluster kubernetes auth backends the roles live on.
package credentials

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/imamik/spinless/internal/apperr"
	"github.com/imamik/spinless/internal/secretstore"
	"github.com/imamik/spinless/internal/util/naming"
)

const roleTTL = "1h"

// Provisioner manages tenant identities in the secret store.
type Provisioner struct {
	store secretstore.Store
	root  string
	log   *log.Entry
}

// New creates a provisioner for tenant paths below root.
func New(store secretstore.Store, root string) *Provisioner {
	return &Provisioner{
		store: store,
		root:  root,
		log:   log.WithField("component", "credentials"),
	}
}

// TenantPolicy returns the policy granting a tenant full access to its own subtree only.
func (p *Provisioner) TenantPolicy(owner, repo string) secretstore.Policy {
	return secretstore.Policy{
		Name: naming.Policy(owner, repo),
		Rules: []secretstore.PolicyRule{{
			Path:         naming.TenantSecrets(p.root, owner, repo) + "/*",
			Capabilities: secretstore.CRUDList,
		}},
	}
}

// CreateRole creates or updates the tenant policy and the role binding the
// tenant's service account to it on the cluster's auth mount. It returns the role name.
func (p *Provisioner) CreateRole(ctx context.Context, owner, repo, cluster string) (string, error) {
	if err := validateTenant(owner, repo, "cluster", cluster); err != nil {
		return "", err
	}

	policy := p.TenantPolicy(owner, repo)
	if err := p.store.PutPolicy(ctx, policy); err != nil {
		return "", apperr.SecretStore("put policy "+policy.Name, err)
	}

	role := secretstore.KubernetesRole{
		Name:                          naming.Role(owner, repo),
		BoundServiceAccountNames:      []string{naming.ServiceAccount(owner, repo)},
		BoundServiceAccountNamespaces: []string{"*"},
		Policies:                      []string{policy.Name},
		TTL:                           roleTTL,
	}
	if err := p.store.PutKubernetesRole(ctx, naming.AuthMount(cluster), role); err != nil {
		return "", apperr.SecretStore("put role "+role.Name, err)
	}

	p.log.WithFields(log.Fields{"role": role.Name, "cluster": cluster}).Debug("Role ready")
	return role.Name, nil
}

// PrepareServicePath seeds the target namespace's secrets from the base
// namespace when the target holds nothing yet. It returns the target path.
// Existing target data is never touched.
func (p *Provisioner) PrepareServicePath(ctx context.Context, owner, repo, baseNamespace, targetNamespace string) (string, error) {
	if err := validateTenant(owner, repo, "namespace", targetNamespace); err != nil {
		return "", err
	}
	if baseNamespace != "" {
		if err := naming.ValidateLabel("base namespace", baseNamespace); err != nil {
			return "", apperr.Validation("%v", err)
		}
	}

	target := naming.ServiceSecrets(p.root, owner, repo, targetNamespace)
	if baseNamespace == "" || baseNamespace == targetNamespace {
		return target, nil
	}

	existing, err := p.store.Read(ctx, target)
	switch {
	case err == nil && len(existing.Data) > 0:
		return target, nil
	case err != nil && !errors.Is(err, secretstore.ErrNotFound):
		return "", apperr.SecretStore("read "+target, err)
	}

	base := naming.ServiceSecrets(p.root, owner, repo, baseNamespace)
	defaults, err := p.store.Read(ctx, base)
	if errors.Is(err, secretstore.ErrNotFound) {
		p.log.WithField("path", base).Debug("No base secrets to clone")
		return target, nil
	}
	if err != nil {
		return "", apperr.SecretStore("read "+base, err)
	}
	if len(defaults.Data) == 0 {
		return target, nil
	}

	if err := p.store.Write(ctx, target, defaults.Data); err != nil {
		return "", apperr.SecretStore("write "+target, err)
	}
	p.log.WithFields(log.Fields{"from": base, "to": target}).Info("Cloned service secrets")
	return target, nil
}

// DeleteServicePath removes one namespace's secrets of a tenant.
func (p *Provisioner) DeleteServicePath(ctx context.Context, owner, repo, namespace string) error {
	if err := validateTenant(owner, repo, "namespace", namespace); err != nil {
		return err
	}
	path := naming.ServiceSecrets(p.root, owner, repo, namespace)
	if err := p.store.Delete(ctx, path); err != nil {
		return apperr.SecretStore("delete "+path, err)
	}
	return nil
}

// validateTenant rejects identifiers that could leave the tenant's subtree
// once joined into a secret store path.
func validateTenant(owner, repo, field, value string) error {
	if err := naming.ValidateTenant(owner, repo); err != nil {
		return apperr.Validation("%v", err)
	}
	if err := naming.ValidateLabel(field, value); err != nil {
		return apperr.Validation("%v", err)
	}
	return nil
}

// EnableKubernetesAuth registers, or reconfigures, the cluster's auth backend.
func (p *Provisioner) EnableKubernetesAuth(ctx context.Context, cluster, reviewerJWT, caCert, server string) error {
	if reviewerJWT == "" || server == "" {
		return apperr.Validation("reviewer token and API server are required to enable auth for %s", cluster)
	}

	mount := naming.AuthMount(cluster)
	err := p.store.EnableKubernetesAuth(ctx, mount, secretstore.KubernetesAuthConfig{
		Host:             server,
		CACert:           caCert,
		TokenReviewerJWT: reviewerJWT,
	})
	if err != nil {
		return apperr.SecretStore(fmt.Sprintf("enable auth %s", mount), err)
	}
	p.log.WithField("mount", mount).Info("Kubernetes auth enabled")
	return nil
}

// DisableKubernetesAuth removes the cluster's auth backend and its roles.
func (p *Provisioner) DisableKubernetesAuth(ctx context.Context, cluster string) error {
	mount := naming.AuthMount(cluster)
	if err := p.store.DisableAuth(ctx, mount); err != nil {
		return apperr.SecretStore(fmt.Sprintf("disable auth %s", mount), err)
	}
	p.log.WithField("mount", mount).Info("Kubernetes auth disabled")
	return nil
}
