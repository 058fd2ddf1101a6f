package provisioning

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	"github.com/imamik/spinless/internal/addons"
	"github.com/imamik/spinless/internal/clusterctx"
	"github.com/imamik/spinless/internal/util/labels"
	"github.com/imamik/spinless/internal/util/naming"
)

// Token reviewer the secret store uses to verify service account tokens.
const (
	reviewerNamespace = "default"
	reviewerName      = "vault-auth"
)

type nodeRoleMapping struct {
	RoleARN  string   `json:"rolearn"`
	Username string   `json:"username"`
	Groups   []string `json:"groups"`
}

// postSetupSteps returns the cluster setup in order. Every step runs even if
// an earlier one failed; steps needing cluster access fail fast without it.
func (e *Engine) postSetupSteps() []Phase {
	steps := []Phase{
		NewPhase("kubeconfig", e.connectCluster),
		NewPhase("node-auth", e.mapNodeRole),
		NewPhase("secret-store-auth", e.enableSecretStoreAuth),
	}
	for _, name := range addons.Steps() {
		steps = append(steps, NewPhase(name, func(ctx *Context) error {
			installCtx, cancel := context.WithTimeout(ctx, ctx.Timeouts.Install)
			defer cancel()
			if e.deps.Charts == nil {
				return fmt.Errorf("no chart installer configured")
			}
			return addons.InstallStep(installCtx, name, ctx.Kube, e.deps.Charts, addons.Cluster{
				Name:       ctx.Spec.Name,
				Region:     ctx.Account.Region,
				AccessKey:  ctx.Account.AccessKey,
				SecretKey:  ctx.Account.SecretKey,
				Kubeconfig: ctx.Kubeconfig,
			})
		}))
	}
	return append(steps, NewPhase("cluster-context", e.saveClusterContext))
}

func (e *Engine) connectCluster(ctx *Context) error {
	if e.deps.Cloud == nil || e.deps.Kube == nil {
		return fmt.Errorf("no cloud or cluster client configured")
	}

	cloud, err := e.deps.Cloud(ctx, ctx.Account)
	if err != nil {
		return fmt.Errorf("failed to open cloud API: %w", err)
	}
	ctx.cloud = cloud

	kubeconfig, err := cloud.Kubeconfig(ctx, ctx.Spec.Name)
	if err != nil {
		return err
	}
	kube, err := e.deps.Kube(kubeconfig)
	if err != nil {
		return fmt.Errorf("failed to create cluster client: %w", err)
	}

	ctx.Kubeconfig = kubeconfig
	ctx.Kube = kube
	return nil
}

// mapNodeRole lets nodes running with the cluster's node role join it.
func (e *Engine) mapNodeRole(ctx *Context) error {
	if ctx.cloud == nil || ctx.Kube == nil {
		return errNoClusterAccess
	}

	arn, err := ctx.cloud.RoleARN(ctx, naming.NodeRole(ctx.Spec.Name))
	if err != nil {
		return err
	}

	mapRoles, err := yaml.Marshal([]nodeRoleMapping{{
		RoleARN:  arn,
		Username: "system:node:{{EC2PrivateDNSName}}",
		Groups:   []string{"system:bootstrappers", "system:nodes"},
	}})
	if err != nil {
		return fmt.Errorf("failed to encode role mapping: %w", err)
	}

	return ctx.Kube.ApplyConfigMap(ctx, &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "aws-auth",
			Namespace: "kube-system",
			Labels:    labels.NewLabelBuilder(ctx.Spec.Name).WithComponent("node-auth").Build(),
		},
		Data: map[string]string{"mapRoles": string(mapRoles)},
	})
}

func (e *Engine) enableSecretStoreAuth(ctx *Context) error {
	if ctx.Kube == nil {
		return errNoClusterAccess
	}
	if e.deps.Auth == nil {
		return fmt.Errorf("no secret store auth configured")
	}

	token, err := ctx.Kube.EnsureServiceAccountToken(ctx, reviewerNamespace, reviewerName, ctx.Timeouts.TokenWait)
	if err != nil {
		return err
	}
	return e.deps.Auth.EnableKubernetesAuth(ctx, ctx.Spec.Name, token.Token, token.CACert, ctx.Kube.APIServer())
}

func (e *Engine) saveClusterContext(ctx *Context) error {
	if len(ctx.Kubeconfig) == 0 {
		return errNoClusterAccess
	}
	return e.contexts.Save(ctx, &clusterctx.Context{
		Name:       ctx.Spec.Name,
		Region:     ctx.Account.Region,
		AccessKey:  ctx.Account.AccessKey,
		SecretKey:  ctx.Account.SecretKey,
		Kubeconfig: ctx.Kubeconfig,
		DNSSuffix:  ctx.Spec.DNSSuffix,
	})
}
