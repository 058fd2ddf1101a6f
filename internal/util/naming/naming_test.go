package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNamingFunctions(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"Tenant", Tenant("acme", "svc"), "acme-svc"},
		{"Policy", Policy("acme", "svc"), "acme-svc-policy"},
		{"Role", Role("acme", "svc"), "acme-svc-role"},
		{"ServiceAccount", ServiceAccount("acme", "svc"), "acme-svc"},
		{"Release", Release("acme", "svc"), "acme-svc"},
		{"AuthMount", AuthMount("c1"), "kubernetes-c1"},
		{"ServiceKey", ServiceKey("ns1", "acme", "svc1"), "ns1/acme-svc1"},
		{"NodeRole", NodeRole("x"), "eks-node-role-x"},
		{"ServiceSecrets", ServiceSecrets("secretv2", "acme", "svc", "ns1"), "secretv2/acme/svc/ns1"},
		{"TenantSecrets", TenantSecrets("secretv2", "acme", "svc"), "secretv2/acme/svc"},
		{"RegistrySecret", RegistrySecret("secretv2", "helm", "default"), "secretv2/registries/helm/default"},
		{"ClusterContext", ClusterContext("secretv2", "c1"), "secretv2/kctx/c1"},
		{"Account", Account("secretv2", "acme"), "secretv2/accounts/acme"},
		{"CommonProperties", CommonProperties("secretv2", "cluster"), "secretv2/common/cluster"},
		{"Allocations", Allocations("secretv2"), "secretv2/common/allocations"},
		{"ResourceVars", ResourceVars("acme", "cluster", "x"), "acme/cluster/x/resource.tfvars"},
		{"ResourceInfo", ResourceInfo("acme", "cluster", "x"), "acme/cluster/x/resource_info.yaml"},
		{"ResourceState", ResourceState("acme", "cluster", "x"), "acme/cluster/x/terraform.tfstate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s: expected %q, got %q", tt.name, tt.expected, tt.got)
			}
		})
	}
}

func TestValidateTenant(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		owner   string
		repo    string
		wantErr string
	}{
		{"valid", "acme", "svc-api", ""},
		{"missing owner", "", "svc", "owner is required"},
		{"missing repo", "acme", "", "repo is required"},
		{"parent segment", "acme", "../beta", `repo "../beta" is invalid`},
		{"slash", "acme/beta", "svc", `owner "acme/beta" is invalid`},
		{"dot", "acme", "..", `repo ".." is invalid`},
		{"uppercase", "Acme", "svc", `owner "Acme" is invalid`},
		{"hyphenated owner", "a-b", "c", `owner "a-b" must not contain '-'`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateTenant(tt.owner, tt.repo)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidateLabel(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateLabel("namespace", "feature-1"))
	assert.ErrorContains(t, ValidateLabel("namespace", "a/../b"), `namespace "a/../b" is invalid`)
	assert.ErrorContains(t, ValidateLabel("cluster", ""), "cluster is required")

	assert.NoError(t, ValidateSubdomain("registry.helm", "charts.example.com"))
	assert.ErrorContains(t, ValidateSubdomain("registry.helm", "../kctx/c1"), `registry.helm "../kctx/c1" is invalid`)
}
