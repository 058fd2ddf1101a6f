package naming

import (
	"fmt"
	"path"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation"
)

// Tenant returns the {owner}-{repo} identity used for releases and service accounts.
func Tenant(owner, repo string) string {
	return fmt.Sprintf("%s-%s", owner, repo)
}

func Policy(owner, repo string) string {
	return fmt.Sprintf("%s-%s-policy", owner, repo)
}

func Role(owner, repo string) string {
	return fmt.Sprintf("%s-%s-role", owner, repo)
}

func ServiceAccount(owner, repo string) string {
	return Tenant(owner, repo)
}

func Release(owner, repo string) string {
	return Tenant(owner, repo)
}

// AuthMount is the secret store mount point of a cluster's kubernetes auth backend.
func AuthMount(cluster string) string {
	return fmt.Sprintf("kubernetes-%s", cluster)
}

// ServiceKey identifies one deployed service within a job's results.
func ServiceKey(namespace, owner, repo string) string {
	return fmt.Sprintf("%s/%s", namespace, Tenant(owner, repo))
}

// NodeRole is the IAM role attached to a cluster's worker nodes.
func NodeRole(cluster string) string {
	return fmt.Sprintf("eks-node-role-%s", cluster)
}

// Secret store paths below the configured root.

func ServiceSecrets(root, owner, repo, namespace string) string {
	return path.Join(root, owner, repo, namespace)
}

func TenantSecrets(root, owner, repo string) string {
	return path.Join(root, owner, repo)
}

func RegistrySecret(root, registryType, name string) string {
	return path.Join(root, "registries", registryType, name)
}

func ClusterContext(root, cluster string) string {
	return path.Join(root, "kctx", cluster)
}

func Account(root, account string) string {
	return path.Join(root, "accounts", account)
}

func CommonProperties(root, resourceType string) string {
	return path.Join(root, "common", resourceType)
}

func Allocations(root string) string {
	return path.Join(root, "common", "allocations")
}

// Object storage keys of one resource.

func ResourcePrefix(account, resourceType, name string) string {
	return path.Join(account, resourceType, name)
}

func ResourceVars(account, resourceType, name string) string {
	return path.Join(ResourcePrefix(account, resourceType, name), "resource.tfvars")
}

func ResourceInfo(account, resourceType, name string) string {
	return path.Join(ResourcePrefix(account, resourceType, name), "resource_info.yaml")
}

func ResourceState(account, resourceType, name string) string {
	return path.Join(ResourcePrefix(account, resourceType, name), "terraform.tfstate")
}

// ValidateLabel checks that value is a DNS-1123 label. Tenant identifiers
// become release names, service accounts and secret store path segments.
func ValidateLabel(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if errs := validation.IsDNS1123Label(value); len(errs) > 0 {
		return fmt.Errorf("%s %q is invalid: %s", field, value, strings.Join(errs, "; "))
	}
	return nil
}

// ValidateSubdomain checks that value is a DNS-1123 subdomain, such as a registry name.
func ValidateSubdomain(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if errs := validation.IsDNS1123Subdomain(value); len(errs) > 0 {
		return fmt.Errorf("%s %q is invalid: %s", field, value, strings.Join(errs, "; "))
	}
	return nil
}

// ValidateTenant checks owner and repo. Owners must not contain '-' so that
// every {owner}-{repo} name maps back to exactly one tenant.
func ValidateTenant(owner, repo string) error {
	if err := ValidateLabel("owner", owner); err != nil {
		return err
	}
	if strings.Contains(owner, "-") {
		return fmt.Errorf("owner %q must not contain '-'", owner)
	}
	return ValidateLabel("repo", repo)
}
