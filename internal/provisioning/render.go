package provisioning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// Files rendered into the working directory.
const (
	backendFile  = "backend.tf"
	mainFile     = "main.tf"
	accountFile  = "account.tfvars"
	resourceFile = "resource.tfvars"
	infoFile     = "resource_info.yaml"

	moduleName = "resource"
)

// BackendSettings locate the remote state of one resource.
type BackendSettings struct {
	Bucket    string
	Key       string
	Region    string
	LockTable string
}

// RenderBackend renders backend.tf. Credentials are passed at init time and
// never written here.
func RenderBackend(s BackendSettings) []byte {
	f := hclwrite.NewEmptyFile()
	tf := f.Body().AppendNewBlock("terraform", nil).Body()
	backend := tf.AppendNewBlock("backend", []string{"s3"}).Body()
	backend.SetAttributeValue("bucket", cty.StringVal(s.Bucket))
	backend.SetAttributeValue("key", cty.StringVal(s.Key))
	backend.SetAttributeValue("region", cty.StringVal(s.Region))
	if s.LockTable != "" {
		backend.SetAttributeValue("dynamodb_table", cty.StringVal(s.LockTable))
	}
	backend.SetAttributeValue("encrypt", cty.True)
	return f.Bytes()
}

// RenderMain renders main.tf: a declaration for every variable and one module
// block pinned to source, receiving all of them.
func RenderMain(source string, variables []string) []byte {
	names := slices.Clone(variables)
	slices.Sort(names)
	names = slices.Compact(names)

	f := hclwrite.NewEmptyFile()
	body := f.Body()
	for _, name := range names {
		body.AppendNewBlock("variable", []string{name})
	}
	if len(names) > 0 {
		body.AppendNewline()
	}

	mod := body.AppendNewBlock("module", []string{moduleName}).Body()
	mod.SetAttributeValue("source", cty.StringVal(source))
	for _, name := range names {
		mod.SetAttributeTraversal(name, hcl.Traversal{
			hcl.TraverseRoot{Name: "var"},
			hcl.TraverseAttr{Name: name},
		})
	}
	return f.Bytes()
}

// RenderVars renders a tfvars file with keys in sorted order.
func RenderVars(vars map[string]any) ([]byte, error) {
	f := hclwrite.NewEmptyFile()
	body := f.Body()
	for _, k := range slices.Sorted(maps.Keys(vars)) {
		v, err := toCty(vars[k])
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", k, err)
		}
		body.SetAttributeValue(k, v)
	}
	return f.Bytes(), nil
}

// ParseVars reads a tfvars file back into plain Go values: strings, bools,
// float64 numbers, []any and map[string]any.
func ParseVars(data []byte, filename string) (map[string]any, error) {
	file, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, diags)
	}

	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to read %s: %w", filename, diags)
	}

	vars := make(map[string]any, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to evaluate %s in %s: %w", name, filename, diags)
		}
		v, err := fromCty(val)
		if err != nil {
			return nil, fmt.Errorf("variable %s in %s: %w", name, filename, err)
		}
		vars[name] = v
	}
	return vars, nil
}

// toCty converts decoded JSON-like values. Anything else goes through a
// JSON round trip first.
func toCty(v any) (cty.Value, error) {
	switch x := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case string:
		return cty.StringVal(x), nil
	case bool:
		return cty.BoolVal(x), nil
	case int:
		return cty.NumberIntVal(int64(x)), nil
	case int64:
		return cty.NumberIntVal(x), nil
	case float64:
		return cty.NumberFloatVal(x), nil
	case json.Number:
		return cty.ParseNumberVal(x.String())
	case []any:
		if len(x) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, 0, len(x))
		for i, e := range x {
			ev, err := toCty(e)
			if err != nil {
				return cty.NilVal, fmt.Errorf("[%d]: %w", i, err)
			}
			elems = append(elems, ev)
		}
		return cty.TupleVal(elems), nil
	case map[string]any:
		if len(x) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(x))
		for k, e := range x {
			ev, err := toCty(e)
			if err != nil {
				return cty.NilVal, fmt.Errorf("%s: %w", k, err)
			}
			attrs[k] = ev
		}
		return cty.ObjectVal(attrs), nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return cty.NilVal, err
	}
	var decoded any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return cty.NilVal, err
	}
	return toCty(decoded)
}

func fromCty(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsWhollyKnown() {
		return nil, fmt.Errorf("value is not known")
	}

	t := v.Type()
	switch {
	case t == cty.String:
		return v.AsString(), nil
	case t == cty.Bool:
		return v.True(), nil
	case t == cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return f, nil
	case t.IsListType() || t.IsTupleType() || t.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			e, err := fromCty(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, nil
	case t.IsMapType() || t.IsObjectType():
		out := make(map[string]any, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			e, err := fromCty(ev)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = e
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value type %s", t.FriendlyName())
}
