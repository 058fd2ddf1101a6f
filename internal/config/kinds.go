package config

// DefaultKinds returns the resource kinds available when none are configured.
func DefaultKinds() map[string]Kind {
	return map[string]Kind{
		"cluster": {
			Module: ModuleSource{
				Source:  "git::https://github.com/imamik/terraform-aws-eks-tenant.git",
				Version: "v0.2.0",
			},
			NameVariable: "cluster_name",
			Defaults: map[string]any{
				"kubernetes_version": "1.30",
				"node_instance_type": "m5.large",
				"node_min_size":      1,
				"node_max_size":      5,
			},
			AllocateNetwork: true,
			Cluster:         true,
		},
	}
}
