package provisioning

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// ResourceInfo is the metadata object stored next to a resource's variables.
type ResourceInfo struct {
	Name      string    `yaml:"name"`
	Type      string    `yaml:"type"`
	Account   string    `yaml:"account"`
	Region    string    `yaml:"region"`
	Module    string    `yaml:"module"`
	Version   string    `yaml:"version,omitempty"`
	Mode      Mode      `yaml:"mode"`
	DNSSuffix string    `yaml:"dns_suffix,omitempty"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

func newResourceInfo(ctx *Context, now time.Time) ResourceInfo {
	return ResourceInfo{
		Name:      ctx.Spec.Name,
		Type:      ctx.Spec.Type,
		Account:   ctx.Spec.Account,
		Region:    ctx.Account.Region,
		Module:    ctx.Kind.Module.Source,
		Version:   ctx.Kind.Module.Version,
		Mode:      ctx.Mode,
		DNSSuffix: ctx.Spec.DNSSuffix,
		UpdatedAt: now.UTC(),
	}
}

// Marshal encodes the info as YAML.
func (i ResourceInfo) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(i)
	if err != nil {
		return nil, fmt.Errorf("failed to encode resource info: %w", err)
	}
	return out, nil
}

// ParseResourceInfo decodes a stored info object.
func ParseResourceInfo(data []byte) (ResourceInfo, error) {
	var info ResourceInfo
	if err := yaml.Unmarshal(data, &info); err != nil {
		return ResourceInfo{}, fmt.Errorf("failed to parse resource info: %w", err)
	}
	return info, nil
}
