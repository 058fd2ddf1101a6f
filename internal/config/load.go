package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SPINLESS_HTTP_ADDR.
const EnvPrefix = "SPINLESS"

// Load builds the configuration from defaults, the optional YAML file at path
// and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("secret_store.address", EnvPrefix+"_SECRET_STORE_ADDRESS", "VAULT_ADDR")
	_ = v.BindEnv("secret_store.token", EnvPrefix+"_SECRET_STORE_TOKEN", "VAULT_TOKEN")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		}
	}

	var cfg Config
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hooks); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if len(cfg.Provisioning.Kinds) == 0 {
		cfg.Provisioning.Kinds = DefaultKinds()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	t := DefaultTimeouts()

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.api_key", "")
	v.SetDefault("http.max_body_bytes", int64(1<<20))
	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.write_timeout", "0s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "auto")

	v.SetDefault("jobs.log_dir", "state/logs")
	v.SetDefault("jobs.tail_interval", "500ms")

	v.SetDefault("secret_store.address", "http://127.0.0.1:8200")
	v.SetDefault("secret_store.root", "secretv2")
	v.SetDefault("secret_store.auth_method", "token")
	v.SetDefault("secret_store.token", "")
	v.SetDefault("secret_store.kubernetes_role", "")
	v.SetDefault("secret_store.kubernetes_path", "kubernetes")
	v.SetDefault("secret_store.jwt_path", "/var/run/secrets/kubernetes.io/serviceaccount/token")

	v.SetDefault("deploy.queue_size", 64)
	v.SetDefault("deploy.protected_namespaces", []string{"develop", "develop-2", "master", "master-2"})
	v.SetDefault("deploy.default_chart_version", "0.0.1")

	v.SetDefault("provisioning.state_bucket", "spinless-terraform-states")
	v.SetDefault("provisioning.state_endpoint", "")
	v.SetDefault("provisioning.lock_table", "terraform-lock")
	v.SetDefault("provisioning.work_root", "state/resources")
	v.SetDefault("provisioning.terraform_path", "terraform")
	v.SetDefault("provisioning.network_cidr", "10.0.0.0/8")

	v.SetDefault("timeouts.command", t.Command.String())
	v.SetDefault("timeouts.apply", t.Apply.String())
	v.SetDefault("timeouts.install", t.Install.String())
	v.SetDefault("timeouts.deploy_wait", t.DeployWait.String())
	v.SetDefault("timeouts.deploy_poll", t.DeployPoll.String())
	v.SetDefault("timeouts.token_wait", t.TokenWait.String())
	v.SetDefault("timeouts.retry_delay", t.RetryDelay.String())
	v.SetDefault("timeouts.retry_max", t.RetryMax)
}
