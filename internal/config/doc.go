// Package config defines the runtime configuration of the spinless control plane.
//
// Configuration is assembled by [Load] from built-in defaults, an optional
// YAML file and SPINLESS_* environment variables, in increasing precedence.
// Resource kinds for the provisioning engine (module source, default
// properties, post-setup behaviour) are part of the same document under
// provisioning.kinds.
package config
