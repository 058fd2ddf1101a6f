package addons

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/imamik/spinless/internal/addons/helm"
	"github.com/imamik/spinless/internal/k8s"
	"github.com/imamik/spinless/internal/util/labels"
)

const (
	autoscalerNamespace  = "kube-system"
	autoscalerSecretName = "cluster-autoscaler-aws"
	autoscalerSA         = "cluster-autoscaler"
)

// applyClusterAutoscaler stores the account keys in a secret and installs the
// autoscaler with auto-discovery of the cluster's node groups.
func applyClusterAutoscaler(ctx context.Context, kube k8s.Client, charts ChartInstaller, cluster Cluster) error {
	if err := kube.CreateSecret(ctx, buildAutoscalerSecret(cluster)); err != nil {
		return fmt.Errorf("failed to create autoscaler secret: %w", err)
	}

	spec, err := chartSpec(StepClusterAutoscaler)
	if err != nil {
		return err
	}
	return charts.InstallChart(ctx, cluster.Kubeconfig, autoscalerNamespace, StepClusterAutoscaler, spec,
		buildClusterAutoscalerValues(cluster))
}

// buildAutoscalerSecret uses the key names the chart reads from an existing secret.
func buildAutoscalerSecret(cluster Cluster) *corev1.Secret {
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      autoscalerSecretName,
			Namespace: autoscalerNamespace,
			Labels:    labels.NewLabelBuilder(cluster.Name).WithComponent(StepClusterAutoscaler).Build(),
		},
		Type: corev1.SecretTypeOpaque,
		StringData: map[string]string{
			"AwsAccessKeyId":     cluster.AccessKey,
			"AwsSecretAccessKey": cluster.SecretKey,
		},
	}
}

func buildClusterAutoscalerValues(cluster Cluster) helm.Values {
	return helm.Values{
		"cloudProvider": "aws",
		"awsRegion":     cluster.Region,
		"autoDiscovery": helm.Values{
			"clusterName": cluster.Name,
		},
		"secretKeyRefNameOverride": autoscalerSecretName,
		"rbac": helm.Values{
			"create": true,
			"serviceAccount": helm.Values{
				"name": autoscalerSA,
			},
		},
		"tolerations": SystemTolerations(),
	}
}
