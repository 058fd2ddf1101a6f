package provisioning

import (
	"errors"
	"fmt"
	"maps"

	"github.com/imamik/spinless/internal/apperr"
	"github.com/imamik/spinless/internal/secretstore"
	"github.com/imamik/spinless/internal/util/naming"
)

// Variables rendered into account.tfvars. Properties may not set them.
const (
	regionVar    = "region"
	accessKeyVar = "access_key"
	secretKeyVar = "secret_key"
)

var accountVars = []string{regionVar, accessKeyVar, secretKeyVar}

// MergeProperties merges property layers; later layers win key by key.
func MergeProperties(layers ...map[string]any) map[string]any {
	out := map[string]any{}
	for _, layer := range layers {
		maps.Copy(out, layer)
	}
	return out
}

// resolveProperties decides the mode of a create and the variables it applies.
// A resource with state is updated from its stored variables; a new one is
// built from the common properties of its type, the kind defaults and the
// request.
func (e *Engine) resolveProperties(ctx *Context) error {
	exists, err := ctx.Objects.Exists(ctx, ctx.Keys.State)
	if err != nil {
		return fmt.Errorf("failed to check state of %s: %w", ctx.Resource(), err)
	}

	if exists {
		stored, err := loadStoredVars(ctx)
		if err != nil {
			return err
		}
		ctx.Mode = ModeUpdate
		ctx.Properties = MergeProperties(stored, ctx.Spec.Properties)
	} else {
		props, err := e.newProperties(ctx)
		if err != nil {
			return err
		}
		ctx.Mode = ModeNew
		ctx.Properties = props
	}

	ctx.Properties[nameVariable(ctx)] = ctx.Spec.Name
	ctx.Observer.Printf("Mode %s with %d variables", ctx.Mode, len(ctx.Properties))
	return nil
}

func (e *Engine) newProperties(ctx *Context) (map[string]any, error) {
	path := naming.CommonProperties(e.root, ctx.Spec.Type)
	common, err := secretstore.ReadOrEmpty(ctx, e.deps.Secrets, path)
	if err != nil {
		return nil, apperr.SecretStore("read "+path, err)
	}

	shared := maps.Clone(common.Data)
	for _, k := range accountVars {
		delete(shared, k)
	}

	props := MergeProperties(shared, ctx.Kind.Defaults, ctx.Spec.Properties)
	if !ctx.Kind.AllocateNetwork {
		return props, nil
	}
	if _, ok := props[networkIDKey]; ok {
		ctx.Observer.Printf("Using requested network id %v", props[networkIDKey])
		return props, nil
	}

	alloc, err := e.networks.Next(ctx)
	if err != nil {
		return nil, err
	}
	props[networkIDKey] = alloc.ID
	props["cidr_block"] = alloc.CIDRBlock
	ctx.Observer.Printf("Allocated network %d (%s)", alloc.ID, alloc.CIDRBlock)
	return props, nil
}

// loadStoredVars reads the variables of the last successful render.
func loadStoredVars(ctx *Context) (map[string]any, error) {
	data, err := ctx.Objects.Get(ctx, ctx.Keys.Vars)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", ctx.Keys.Vars, err)
	}
	vars, err := ParseVars(data, ctx.Keys.Vars)
	if err != nil {
		return nil, err
	}
	for _, k := range accountVars {
		delete(vars, k)
	}
	return vars, nil
}

func nameVariable(ctx *Context) string {
	if ctx.Kind.NameVariable != "" {
		return ctx.Kind.NameVariable
	}
	return "name"
}

// checkVariables rejects names that cannot be declared as variables and
// properties that would shadow the account variables.
func checkVariables(props map[string]any) error {
	var errs []error
	for k := range props {
		if !variablePattern.MatchString(k) {
			errs = append(errs, fmt.Errorf("%q is not a valid variable name", k))
		}
	}
	for _, k := range accountVars {
		if _, ok := props[k]; ok {
			errs = append(errs, fmt.Errorf("%q is reserved for account credentials", k))
		}
	}
	if len(errs) > 0 {
		return apperr.E(apperr.KindValidation, "check variables", errors.Join(errs...))
	}
	return nil
}
