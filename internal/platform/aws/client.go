package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/iam"
)

// Credentials are the static keys of one cloud account.
type Credentials struct {
	AccessKey string
	SecretKey string
	Region    string
}

// Client wraps the IAM and EKS APIs of one account.
type Client struct {
	iam   *iam.Client
	eks   *eks.Client
	creds Credentials
}

// Option customizes the underlying SDK clients.
type Option func(*options)

type options struct {
	iamEndpoint string
	eksEndpoint string
}

// WithEndpoints overrides the IAM and EKS endpoints.
func WithEndpoints(iamEndpoint, eksEndpoint string) Option {
	return func(o *options) {
		o.iamEndpoint = iamEndpoint
		o.eksEndpoint = eksEndpoint
	}
}

// NewClient creates a client for the account.
func NewClient(ctx context.Context, creds Credentials, opts ...Option) (*Client, error) {
	if creds.Region == "" {
		return nil, fmt.Errorf("region is required")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(creds.AccessKey, creds.SecretKey, "")),
		config.WithRegion(creds.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Client{
		iam: iam.NewFromConfig(cfg, func(io *iam.Options) {
			if o.iamEndpoint != "" {
				io.BaseEndpoint = awssdk.String(o.iamEndpoint)
			}
		}),
		eks: eks.NewFromConfig(cfg, func(eo *eks.Options) {
			if o.eksEndpoint != "" {
				eo.BaseEndpoint = awssdk.String(o.eksEndpoint)
			}
		}),
		creds: creds,
	}, nil
}

// RoleARN returns the ARN of an IAM role.
func (c *Client) RoleARN(ctx context.Context, roleName string) (string, error) {
	out, err := c.iam.GetRole(ctx, &iam.GetRoleInput{RoleName: awssdk.String(roleName)})
	if err != nil {
		return "", fmt.Errorf("failed to get IAM role %s: %w", roleName, err)
	}
	if out.Role == nil || out.Role.Arn == nil {
		return "", fmt.Errorf("IAM role %s has no ARN", roleName)
	}
	return *out.Role.Arn, nil
}

// Kubeconfig describes the EKS cluster and builds a kubeconfig for it.
func (c *Client) Kubeconfig(ctx context.Context, clusterName string) ([]byte, error) {
	out, err := c.eks.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: awssdk.String(clusterName)})
	if err != nil {
		return nil, fmt.Errorf("failed to describe cluster %s: %w", clusterName, err)
	}

	cluster := out.Cluster
	if cluster == nil || cluster.Endpoint == nil || cluster.CertificateAuthority == nil || cluster.CertificateAuthority.Data == nil {
		return nil, fmt.Errorf("cluster %s is missing its endpoint or certificate authority", clusterName)
	}

	return BuildKubeconfig(KubeconfigParams{
		ClusterName: clusterName,
		Endpoint:    *cluster.Endpoint,
		CAData:      *cluster.CertificateAuthority.Data,
		Credentials: c.creds,
	})
}
