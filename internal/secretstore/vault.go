package secretstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
	"github.com/sirupsen/logrus"
)

// tokenRefreshSkew renews a kubernetes login token this long before its lease ends.
const tokenRefreshSkew = 30 * time.Second

// VaultConfig configures the Vault adapter.
type VaultConfig struct {
	Address string
	Token   string
	// Mount is the KV v2 mount that prefixes every logical path.
	Mount string

	// When KubernetesRole is set the adapter logs in with the pod's service
	// account token instead of using Token.
	KubernetesRole string
	KubernetesPath string
	JWTPath        string
}

// Vault implements Store on the Vault HTTP API.
type Vault struct {
	client *vault.Client
	mount  string
	cfg    VaultConfig
	log    *logrus.Entry

	mu          sync.Mutex
	tokenExpiry time.Time
}

var _ Store = (*Vault)(nil)

// NewVault creates a Vault-backed store.
func NewVault(cfg VaultConfig, log *logrus.Entry) (*Vault, error) {
	if cfg.Mount == "" {
		return nil, fmt.Errorf("vault: mount is required")
	}

	vcfg := vault.DefaultConfig()
	if cfg.Address != "" {
		vcfg.Address = cfg.Address
	}
	if vcfg.Error != nil {
		return nil, fmt.Errorf("vault: invalid configuration: %w", vcfg.Error)
	}

	client, err := vault.NewClient(vcfg)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to create client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	if cfg.KubernetesPath == "" {
		cfg.KubernetesPath = "kubernetes"
	}
	if cfg.JWTPath == "" {
		cfg.JWTPath = "/var/run/secrets/kubernetes.io/serviceaccount/token"
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Vault{client: client, mount: cfg.Mount, cfg: cfg, log: log}, nil
}

// ensureToken logs in through kubernetes auth when configured and the
// current token is missing or about to expire.
func (v *Vault) ensureToken(ctx context.Context) error {
	if v.cfg.KubernetesRole == "" {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.client.Token() != "" && time.Now().Add(tokenRefreshSkew).Before(v.tokenExpiry) {
		return nil
	}

	jwt, err := os.ReadFile(v.cfg.JWTPath)
	if err != nil {
		return fmt.Errorf("vault: failed to read service account token: %w", err)
	}

	secret, err := v.client.Logical().WriteWithContext(ctx, "auth/"+v.cfg.KubernetesPath+"/login", map[string]any{
		"role": v.cfg.KubernetesRole,
		"jwt":  strings.TrimSpace(string(jwt)),
	})
	if err != nil {
		return fmt.Errorf("vault: kubernetes login failed: %w", err)
	}
	if secret == nil || secret.Auth == nil {
		return fmt.Errorf("vault: kubernetes login returned no auth data")
	}

	v.client.SetToken(secret.Auth.ClientToken)
	v.tokenExpiry = time.Now().Add(time.Duration(secret.Auth.LeaseDuration) * time.Second)
	v.log.WithField("role", v.cfg.KubernetesRole).Debug("Logged in to vault")
	return nil
}

// relative strips the mount prefix from a logical path.
func (v *Vault) relative(path string) (string, error) {
	rest, ok := strings.CutPrefix(path, v.mount+"/")
	if !ok || rest == "" {
		return "", fmt.Errorf("vault: path %q is outside mount %q", path, v.mount)
	}
	return rest, nil
}

func (v *Vault) Read(ctx context.Context, path string) (*Secret, error) {
	rest, err := v.relative(path)
	if err != nil {
		return nil, err
	}
	if err := v.ensureToken(ctx); err != nil {
		return nil, err
	}

	kv, err := v.client.KVv2(v.mount).Get(ctx, rest)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return nil, ErrNotFound
		}
		return nil, mapError(fmt.Errorf("vault: read %s: %w", path, err))
	}

	secret := &Secret{Data: kv.Data}
	if kv.VersionMetadata != nil {
		secret.Version = kv.VersionMetadata.Version
	}
	if secret.Data == nil {
		secret.Data = map[string]any{}
	}
	return secret, nil
}

func (v *Vault) Write(ctx context.Context, path string, data map[string]any) error {
	rest, err := v.relative(path)
	if err != nil {
		return err
	}
	if err := v.ensureToken(ctx); err != nil {
		return err
	}

	if _, err := v.client.KVv2(v.mount).Put(ctx, rest, data); err != nil {
		return mapError(fmt.Errorf("vault: write %s: %w", path, err))
	}
	return nil
}

func (v *Vault) WriteCAS(ctx context.Context, path string, data map[string]any, version int) error {
	rest, err := v.relative(path)
	if err != nil {
		return err
	}
	if err := v.ensureToken(ctx); err != nil {
		return err
	}

	if _, err := v.client.KVv2(v.mount).Put(ctx, rest, data, vault.WithCheckAndSet(version)); err != nil {
		return mapError(fmt.Errorf("vault: write %s: %w", path, err))
	}
	return nil
}

func (v *Vault) Delete(ctx context.Context, path string) error {
	rest, err := v.relative(path)
	if err != nil {
		return err
	}
	if err := v.ensureToken(ctx); err != nil {
		return err
	}

	if err := v.client.KVv2(v.mount).DeleteMetadata(ctx, rest); err != nil {
		return mapError(fmt.Errorf("vault: delete %s: %w", path, err))
	}
	return nil
}

func (v *Vault) List(ctx context.Context, path string) ([]string, error) {
	rest, err := v.relative(path)
	if err != nil {
		return nil, err
	}
	if err := v.ensureToken(ctx); err != nil {
		return nil, err
	}

	secret, err := v.client.Logical().ListWithContext(ctx, v.mount+"/metadata/"+rest)
	if err != nil {
		return nil, mapError(fmt.Errorf("vault: list %s: %w", path, err))
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}

	raw, _ := secret.Data["keys"].([]any)
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		if s, ok := k.(string); ok {
			keys = append(keys, s)
		}
	}
	return keys, nil
}

func (v *Vault) PutPolicy(ctx context.Context, policy Policy) error {
	if err := v.ensureToken(ctx); err != nil {
		return err
	}
	if err := v.client.Sys().PutPolicyWithContext(ctx, policy.Name, policy.HCL(v.mount)); err != nil {
		return mapError(fmt.Errorf("vault: put policy %s: %w", policy.Name, err))
	}
	return nil
}

func (v *Vault) PutKubernetesRole(ctx context.Context, mount string, role KubernetesRole) error {
	if err := v.ensureToken(ctx); err != nil {
		return err
	}

	_, err := v.client.Logical().WriteWithContext(ctx, "auth/"+mount+"/role/"+role.Name, map[string]any{
		"bound_service_account_names":      role.BoundServiceAccountNames,
		"bound_service_account_namespaces": role.BoundServiceAccountNamespaces,
		"policies":                         role.Policies,
		"ttl":                              role.TTL,
	})
	if err != nil {
		return mapError(fmt.Errorf("vault: put role %s on %s: %w", role.Name, mount, err))
	}
	return nil
}

func (v *Vault) EnableKubernetesAuth(ctx context.Context, mount string, cfg KubernetesAuthConfig) error {
	if err := v.ensureToken(ctx); err != nil {
		return err
	}

	auths, err := v.client.Sys().ListAuthWithContext(ctx)
	if err != nil {
		return mapError(fmt.Errorf("vault: list auth mounts: %w", err))
	}
	if _, exists := auths[mount+"/"]; !exists {
		opts := &vault.EnableAuthOptions{Type: "kubernetes"}
		if err := v.client.Sys().EnableAuthWithOptionsWithContext(ctx, mount, opts); err != nil {
			return mapError(fmt.Errorf("vault: enable auth %s: %w", mount, err))
		}
		v.log.WithField("mount", mount).Info("Enabled kubernetes auth backend")
	}

	_, err = v.client.Logical().WriteWithContext(ctx, "auth/"+mount+"/config", map[string]any{
		"kubernetes_host":    cfg.Host,
		"kubernetes_ca_cert": cfg.CACert,
		"token_reviewer_jwt": cfg.TokenReviewerJWT,
	})
	if err != nil {
		return mapError(fmt.Errorf("vault: configure auth %s: %w", mount, err))
	}
	return nil
}

func (v *Vault) DisableAuth(ctx context.Context, mount string) error {
	if err := v.ensureToken(ctx); err != nil {
		return err
	}
	if err := v.client.Sys().DisableAuthWithContext(ctx, mount); err != nil {
		return mapError(fmt.Errorf("vault: disable auth %s: %w", mount, err))
	}
	return nil
}

// mapError translates Vault response errors to the package sentinels.
func mapError(err error) error {
	var respErr *vault.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == 403 {
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	if strings.Contains(err.Error(), "check-and-set") {
		return fmt.Errorf("%w: %w", ErrVersionConflict, err)
	}
	return err
}
