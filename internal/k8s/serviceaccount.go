package k8s

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
)

const (
	tokenPollInterval = time.Second
	authDelegatorRole = "system:auth-delegator"
)

func (c *client) EnsureServiceAccountToken(ctx context.Context, namespace, name string, timeout time.Duration) (*ServiceAccountToken, error) {
	core := c.clientset.CoreV1()

	sa := &corev1.ServiceAccount{ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace}}
	if _, err := core.ServiceAccounts(namespace).Create(ctx, sa, metav1.CreateOptions{}); err != nil && !errors.IsAlreadyExists(err) {
		return nil, fmt.Errorf("failed to create service account %s/%s: %w", namespace, name, err)
	}

	binding := &rbacv1.ClusterRoleBinding{
		ObjectMeta: metav1.ObjectMeta{Name: name + "-token-review"},
		RoleRef: rbacv1.RoleRef{
			APIGroup: rbacv1.GroupName,
			Kind:     "ClusterRole",
			Name:     authDelegatorRole,
		},
		Subjects: []rbacv1.Subject{{Kind: rbacv1.ServiceAccountKind, Name: name, Namespace: namespace}},
	}
	if _, err := c.clientset.RbacV1().ClusterRoleBindings().Create(ctx, binding, metav1.CreateOptions{}); err != nil && !errors.IsAlreadyExists(err) {
		return nil, fmt.Errorf("failed to bind %s to %s: %w", name, authDelegatorRole, err)
	}

	secretName := name + "-token"
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:        secretName,
			Namespace:   namespace,
			Annotations: map[string]string{corev1.ServiceAccountNameKey: name},
		},
		Type: corev1.SecretTypeServiceAccountToken,
	}
	if _, err := core.Secrets(namespace).Create(ctx, secret, metav1.CreateOptions{}); err != nil && !errors.IsAlreadyExists(err) {
		return nil, fmt.Errorf("failed to create token secret %s/%s: %w", namespace, secretName, err)
	}

	// The token controller fills the secret asynchronously.
	var token *ServiceAccountToken
	err := wait.PollUntilContextTimeout(ctx, tokenPollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		s, err := core.Secrets(namespace).Get(ctx, secretName, metav1.GetOptions{})
		if err != nil {
			return false, nil
		}
		if len(s.Data[corev1.ServiceAccountTokenKey]) == 0 {
			return false, nil
		}
		token = &ServiceAccountToken{
			Token:  string(s.Data[corev1.ServiceAccountTokenKey]),
			CACert: string(s.Data[corev1.ServiceAccountRootCAKey]),
		}
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("token for service account %s/%s was not issued: %w", namespace, name, err)
	}

	if token.CACert == "" {
		token.CACert = string(c.restCfg.CAData)
	}
	return token, nil
}
