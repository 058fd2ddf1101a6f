package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	HTTP         HTTPConfig         `mapstructure:"http"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Jobs         JobsConfig         `mapstructure:"jobs"`
	SecretStore  SecretStoreConfig  `mapstructure:"secret_store"`
	Deploy       DeployConfig       `mapstructure:"deploy"`
	Provisioning ProvisioningConfig `mapstructure:"provisioning"`
	Timeouts     Timeouts           `mapstructure:"timeouts"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	APIKey       string        `mapstructure:"api_key"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is zero by default so log streams are not cut off.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text, json or auto
}

// JobsConfig configures the job registry and its log files.
type JobsConfig struct {
	LogDir       string        `mapstructure:"log_dir"`
	TailInterval time.Duration `mapstructure:"tail_interval"`
}

// SecretStoreConfig configures the Vault client.
type SecretStoreConfig struct {
	Address string `mapstructure:"address"`
	// Root is the KV v2 mount and path prefix every tenant path lives under.
	Root string `mapstructure:"root"`
	// AuthMethod is "token" or "kubernetes".
	AuthMethod     string `mapstructure:"auth_method"`
	Token          string `mapstructure:"token"`
	KubernetesRole string `mapstructure:"kubernetes_role"`
	KubernetesPath string `mapstructure:"kubernetes_path"`
	JWTPath        string `mapstructure:"jwt_path"`
}

// Mount returns the KV mount, the first segment of Root.
func (s SecretStoreConfig) Mount() string {
	mount, _, _ := strings.Cut(strings.Trim(s.Root, "/"), "/")
	return mount
}

// DeployConfig configures the deployment processor and coordinator.
type DeployConfig struct {
	QueueSize           int      `mapstructure:"queue_size"`
	ProtectedNamespaces []string `mapstructure:"protected_namespaces"`
	DefaultChartVersion string   `mapstructure:"default_chart_version"`
}

// ProvisioningConfig configures the infra-as-code engine.
type ProvisioningConfig struct {
	StateBucket string `mapstructure:"state_bucket"`
	// StateEndpoint overrides the object storage endpoint, e.g. for MinIO.
	StateEndpoint string          `mapstructure:"state_endpoint"`
	LockTable     string          `mapstructure:"lock_table"`
	WorkRoot      string          `mapstructure:"work_root"`
	TerraformPath string          `mapstructure:"terraform_path"`
	NetworkCIDR   string          `mapstructure:"network_cidr"`
	Kinds         map[string]Kind `mapstructure:"kinds"`
}

// Kind describes one provisionable resource type.
type Kind struct {
	Module ModuleSource `mapstructure:"module"`
	// NameVariable is the module variable receiving the resource name.
	NameVariable string         `mapstructure:"name_variable"`
	Defaults     map[string]any `mapstructure:"defaults"`
	// AllocateNetwork assigns a unique network id and CIDR block to new resources.
	AllocateNetwork bool `mapstructure:"allocate_network"`
	// Cluster enables the Kubernetes post-setup and post-destroy sequences.
	Cluster bool `mapstructure:"cluster"`
}

// ModuleSource pins the root module to one source and version.
type ModuleSource struct {
	Source  string `mapstructure:"source"`
	Version string `mapstructure:"version"`
}

// Ref returns the module source with the version pinned as a ref query.
func (m ModuleSource) Ref() string {
	if m.Version == "" {
		return m.Source
	}
	sep := "?"
	if strings.Contains(m.Source, "?") {
		sep = "&"
	}
	return m.Source + sep + "ref=" + m.Version
}

// Validate checks the configuration for values the server cannot start without.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.Jobs.LogDir == "" {
		return fmt.Errorf("jobs.log_dir is required")
	}
	if c.SecretStore.Root == "" {
		return fmt.Errorf("secret_store.root is required")
	}
	switch c.SecretStore.AuthMethod {
	case "token", "":
	case "kubernetes":
		if c.SecretStore.KubernetesRole == "" {
			return fmt.Errorf("secret_store.kubernetes_role is required for kubernetes auth")
		}
	default:
		return fmt.Errorf("unsupported secret_store.auth_method %q", c.SecretStore.AuthMethod)
	}
	if c.Deploy.QueueSize <= 0 {
		return fmt.Errorf("deploy.queue_size must be positive, got %d", c.Deploy.QueueSize)
	}
	for name, kind := range c.Provisioning.Kinds {
		if kind.Module.Source == "" {
			return fmt.Errorf("provisioning.kinds.%s.module.source is required", name)
		}
	}
	return c.Timeouts.Validate()
}

// IsProtectedNamespace reports whether ns may not be destroyed.
func (d DeployConfig) IsProtectedNamespace(ns string) bool {
	for _, p := range d.ProtectedNamespaces {
		if p == ns {
			return true
		}
	}
	return false
}
