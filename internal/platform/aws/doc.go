// Package aws resolves live facts about a provisioned cluster from its cloud
// account: IAM role ARNs and the EKS endpoint, from which it builds kubeconfigs.
package aws
