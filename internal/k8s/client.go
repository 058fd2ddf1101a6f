package k8s

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Client provides the cluster operations used by deployments and provisioning.
type Client interface {
	// DeleteNamespace deletes a namespace, returning nil if it does not exist.
	DeleteNamespace(ctx context.Context, name string) error

	// ApplyConfigMap creates the config map or replaces its data.
	ApplyConfigMap(ctx context.Context, cm *corev1.ConfigMap) error

	// CreateSecret creates or replaces a secret.
	CreateSecret(ctx context.Context, secret *corev1.Secret) error

	// DeleteSecret deletes a secret, returning nil if not found.
	DeleteSecret(ctx context.Context, namespace, name string) error

	// EnsureServiceAccountToken makes sure a token-reviewer service account
	// exists and returns its long-lived token and the cluster CA.
	EnsureServiceAccountToken(ctx context.Context, namespace, name string, wait time.Duration) (*ServiceAccountToken, error)

	// APIServer returns the API server URL the client talks to.
	APIServer() string
}

// ServiceAccountToken is a service account's long-lived token together with
// what a remote party needs to verify the API server.
type ServiceAccountToken struct {
	Token  string
	CACert string
}

type client struct {
	clientset kubernetes.Interface
	restCfg   *rest.Config
}

// NewFromKubeconfig creates a Client from kubeconfig bytes.
func NewFromKubeconfig(kubeconfig []byte) (Client, error) {
	restConfig, err := clientcmd.RESTConfigFromKubeConfig(kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create REST config from kubeconfig: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes clientset: %w", err)
	}

	return &client{clientset: clientset, restCfg: restConfig}, nil
}

// NewFromClientset creates a Client from a pre-configured clientset.
// This is useful for testing with fake clients.
func NewFromClientset(clientset kubernetes.Interface, restConfig *rest.Config) Client {
	if restConfig == nil {
		restConfig = &rest.Config{}
	}
	return &client{clientset: clientset, restCfg: restConfig}
}

func (c *client) APIServer() string {
	return c.restCfg.Host
}
