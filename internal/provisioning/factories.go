package provisioning

import (
	"context"
	"errors"

	awsplatform "github.com/imamik/spinless/internal/platform/aws"
	s3platform "github.com/imamik/spinless/internal/platform/s3"
)

var errNoClusterAccess = errors.New("cluster is not reachable, kubeconfig step failed")

// S3Objects opens the state bucket with the account's keys.
func S3Objects(bucket, endpoint string) ObjectStoreFactory {
	return func(ctx context.Context, account Account) (ObjectStore, error) {
		return s3platform.NewClient(ctx, s3platform.Options{
			Bucket:    bucket,
			Region:    account.Region,
			AccessKey: account.AccessKey,
			SecretKey: account.SecretKey,
			Endpoint:  endpoint,
		})
	}
}

// AWSCloud opens the IAM and EKS APIs with the account's keys.
func AWSCloud(opts ...awsplatform.Option) CloudFactory {
	return func(ctx context.Context, account Account) (Cloud, error) {
		return awsplatform.NewClient(ctx, awsplatform.Credentials{
			AccessKey: account.AccessKey,
			SecretKey: account.SecretKey,
			Region:    account.Region,
		}, opts...)
	}
}
