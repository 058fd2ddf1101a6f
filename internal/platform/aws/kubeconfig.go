package aws

import (
	"encoding/base64"
	"fmt"

	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

const execAPIVersion = "client.authentication.k8s.io/v1beta1"

// KubeconfigParams describes one EKS cluster.
type KubeconfigParams struct {
	ClusterName string
	Endpoint    string
	// CAData is the base64 certificate authority as returned by EKS.
	CAData      string
	Credentials Credentials
}

// BuildKubeconfig renders a kubeconfig that authenticates through
// `aws eks get-token` with the account's keys.
func BuildKubeconfig(p KubeconfigParams) ([]byte, error) {
	ca, err := base64.StdEncoding.DecodeString(p.CAData)
	if err != nil {
		return nil, fmt.Errorf("invalid certificate authority data for %s: %w", p.ClusterName, err)
	}

	cfg := clientcmdapi.NewConfig()
	cfg.Clusters[p.ClusterName] = &clientcmdapi.Cluster{
		Server:                   p.Endpoint,
		CertificateAuthorityData: ca,
	}
	cfg.AuthInfos[p.ClusterName] = &clientcmdapi.AuthInfo{
		Exec: &clientcmdapi.ExecConfig{
			APIVersion: execAPIVersion,
			Command:    "aws",
			Args:       []string{"eks", "get-token", "--cluster-name", p.ClusterName, "--region", p.Credentials.Region},
			Env: []clientcmdapi.ExecEnvVar{
				{Name: "AWS_ACCESS_KEY_ID", Value: p.Credentials.AccessKey},
				{Name: "AWS_SECRET_ACCESS_KEY", Value: p.Credentials.SecretKey},
				{Name: "AWS_REGION", Value: p.Credentials.Region},
			},
			InteractiveMode: clientcmdapi.NeverExecInteractiveMode,
		},
	}
	cfg.Contexts[p.ClusterName] = &clientcmdapi.Context{
		Cluster:  p.ClusterName,
		AuthInfo: p.ClusterName,
	}
	cfg.CurrentContext = p.ClusterName

	data, err := clientcmd.Write(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode kubeconfig for %s: %w", p.ClusterName, err)
	}
	return data, nil
}
