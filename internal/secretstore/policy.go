package secretstore

import (
	"slices"
	"strings"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// Capability is one ACL capability.
type Capability string

const (
	CapCreate Capability = "create"
	CapRead   Capability = "read"
	CapUpdate Capability = "update"
	CapDelete Capability = "delete"
	CapList   Capability = "list"
)

// CRUDList is the full tenant capability set.
var CRUDList = []Capability{CapCreate, CapRead, CapUpdate, CapDelete, CapList}

// PolicyRule grants capabilities on a path glob. A trailing * matches any
// suffix and + matches exactly one path segment.
type PolicyRule struct {
	Path         string
	Capabilities []Capability
}

// Policy is a named set of rules.
type Policy struct {
	Name  string
	Rules []PolicyRule
}

// Allows reports whether any rule grants capability on path.
func (p Policy) Allows(path string, capability Capability) bool {
	for _, rule := range p.Rules {
		if slices.Contains(rule.Capabilities, capability) && MatchPath(rule.Path, path) {
			return true
		}
	}
	return false
}

// MatchPath matches path against a glob pattern.
func MatchPath(pattern, path string) bool {
	prefix, wildcard := strings.CutSuffix(pattern, "*")
	patternParts := strings.Split(prefix, "/")
	pathParts := strings.Split(path, "/")

	if !wildcard && len(patternParts) != len(pathParts) {
		return false
	}
	if len(pathParts) < len(patternParts) {
		return false
	}

	last := len(patternParts) - 1
	for i, part := range patternParts {
		if part == "+" {
			continue
		}
		if i == last && wildcard {
			return strings.HasPrefix(pathParts[i], part)
		}
		if part != pathParts[i] {
			return false
		}
	}
	return true
}

// HCL renders the policy document. Rules under the KV v2 mount kvMount are
// expanded to the data/ and metadata/ API paths.
func (p Policy) HCL(kvMount string) string {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	for _, rule := range p.Rules {
		rest, underMount := strings.CutPrefix(rule.Path, kvMount+"/")
		if !underMount {
			appendPathBlock(body, rule.Path, rule.Capabilities)
			continue
		}

		var data, meta []Capability
		for _, c := range rule.Capabilities {
			switch c {
			case CapList:
				meta = append(meta, c)
			case CapRead, CapDelete:
				data = append(data, c)
				meta = append(meta, c)
			default:
				data = append(data, c)
			}
		}
		if len(data) > 0 {
			appendPathBlock(body, kvMount+"/data/"+rest, data)
		}
		if len(meta) > 0 {
			appendPathBlock(body, kvMount+"/metadata/"+rest, meta)
		}
	}

	return string(f.Bytes())
}

func appendPathBlock(body *hclwrite.Body, path string, capabilities []Capability) {
	values := make([]cty.Value, 0, len(capabilities))
	for _, c := range capabilities {
		values = append(values, cty.StringVal(string(c)))
	}
	block := body.AppendNewBlock("path", []string{path})
	block.Body().SetAttributeValue("capabilities", cty.ListVal(values))
	body.AppendNewline()
}
