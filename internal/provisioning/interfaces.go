package provisioning

import (
	"context"
	"io"

	"github.com/imamik/spinless/internal/k8s"
)

// ObjectStore is the bucket holding Terraform state and variable snapshots.
// Implemented by internal/platform/s3.Client.
type ObjectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// ObjectStoreFactory opens the state bucket with an account's credentials.
type ObjectStoreFactory func(ctx context.Context, account Account) (ObjectStore, error)

// Cloud is the part of the cloud API the cluster post-setup needs.
// Implemented by internal/platform/aws.Client.
type Cloud interface {
	RoleARN(ctx context.Context, roleName string) (string, error)
	Kubeconfig(ctx context.Context, clusterName string) ([]byte, error)
}

// CloudFactory opens the cloud API with an account's credentials.
type CloudFactory func(ctx context.Context, account Account) (Cloud, error)

// KubeFactory builds a cluster client from kubeconfig bytes.
type KubeFactory func(kubeconfig []byte) (k8s.Client, error)

// AuthBackends registers and removes per-cluster secret store auth backends.
// Implemented by internal/credentials.Provisioner.
type AuthBackends interface {
	EnableKubernetesAuth(ctx context.Context, cluster, reviewerJWT, caCert, server string) error
	DisableKubernetesAuth(ctx context.Context, cluster string) error
}

// Terraform runs the infra-as-code tool in one working directory.
type Terraform interface {
	Init(ctx context.Context, backendConfig map[string]string) error
	Apply(ctx context.Context, varFiles []string) error
	Destroy(ctx context.Context, varFiles []string) error
}

// TerraformFactory creates a runner for workDir that streams the tool's output to out.
type TerraformFactory func(workDir string, out io.Writer) (Terraform, error)
