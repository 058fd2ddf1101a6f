package k8s

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func (c *client) ApplyConfigMap(ctx context.Context, cm *corev1.ConfigMap) error {
	if cm.Namespace == "" || cm.Name == "" {
		return fmt.Errorf("config map namespace and name are required")
	}

	configMaps := c.clientset.CoreV1().ConfigMaps(cm.Namespace)
	existing, err := configMaps.Get(ctx, cm.Name, metav1.GetOptions{})
	if errors.IsNotFound(err) {
		if _, err := configMaps.Create(ctx, cm, metav1.CreateOptions{}); err != nil {
			return fmt.Errorf("failed to create config map %s/%s: %w", cm.Namespace, cm.Name, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get config map %s/%s: %w", cm.Namespace, cm.Name, err)
	}

	updated := existing.DeepCopy()
	updated.Data = cm.Data
	updated.BinaryData = cm.BinaryData
	if _, err := configMaps.Update(ctx, updated, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to update config map %s/%s: %w", cm.Namespace, cm.Name, err)
	}
	return nil
}
