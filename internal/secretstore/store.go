package secretstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a path holds no secret.
	ErrNotFound = errors.New("secret not found")
	// ErrVersionConflict is returned by WriteCAS when the stored version moved on.
	ErrVersionConflict = errors.New("secret version conflict")
	// ErrPermissionDenied is returned when the caller's policies do not allow an operation.
	ErrPermissionDenied = errors.New("permission denied")
)

// Secret is one versioned KV entry. Version is 0 for a path that was never written.
type Secret struct {
	Data    map[string]any
	Version int
}

// Store is the secret store port.
type Store interface {
	Read(ctx context.Context, path string) (*Secret, error)
	Write(ctx context.Context, path string, data map[string]any) error
	// WriteCAS writes only if the current version equals version; 0 means "must not exist".
	WriteCAS(ctx context.Context, path string, data map[string]any, version int) error
	// Delete removes the path and all of its versions. Missing paths are not an error.
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, path string) ([]string, error)

	PutPolicy(ctx context.Context, policy Policy) error
	PutKubernetesRole(ctx context.Context, mount string, role KubernetesRole) error
	EnableKubernetesAuth(ctx context.Context, mount string, cfg KubernetesAuthConfig) error
	DisableAuth(ctx context.Context, mount string) error
}

// KubernetesRole binds service accounts to policies on a kubernetes auth mount.
type KubernetesRole struct {
	Name                          string
	BoundServiceAccountNames      []string
	BoundServiceAccountNamespaces []string
	Policies                      []string
	TTL                           string
}

// KubernetesAuthConfig is what a kubernetes auth backend needs to review tokens.
type KubernetesAuthConfig struct {
	Host             string
	CACert           string
	TokenReviewerJWT string
}

// ReadOrEmpty reads path and returns an empty secret instead of ErrNotFound.
func ReadOrEmpty(ctx context.Context, s Store, path string) (*Secret, error) {
	secret, err := s.Read(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return &Secret{Data: map[string]any{}}, nil
	}
	if err != nil {
		return nil, err
	}
	if secret.Data == nil {
		secret.Data = map[string]any{}
	}
	return secret, nil
}

// String returns the string value of key, or "" when missing or not a string.
func (s *Secret) String(key string) string {
	if s == nil {
		return ""
	}
	v, _ := s.Data[key].(string)
	return v
}
