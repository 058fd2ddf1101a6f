package provisioning

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/imamik/spinless/internal/addons"
	"github.com/imamik/spinless/internal/apperr"
	"github.com/imamik/spinless/internal/clusterctx"
	"github.com/imamik/spinless/internal/config"
	"github.com/imamik/spinless/internal/job"
	"github.com/imamik/spinless/internal/logging"
	"github.com/imamik/spinless/internal/metrics"
	"github.com/imamik/spinless/internal/secretstore"
	"github.com/imamik/spinless/internal/util/naming"
)

// Dependencies are the collaborators of an Engine. Objects, Terraform and
// Secrets are required; the rest are only used by cluster kinds.
type Dependencies struct {
	Secrets   secretstore.Store
	Auth      AuthBackends
	Objects   ObjectStoreFactory
	Terraform TerraformFactory
	Cloud     CloudFactory
	Kube      KubeFactory
	Charts    addons.ChartInstaller
}

// Engine creates, updates and destroys resources with Terraform. Runs share
// nothing but the network counter; durable state lives in object storage.
type Engine struct {
	cfg      config.ProvisioningConfig
	root     string
	timeouts config.Timeouts
	deps     Dependencies

	networks *NetworkAllocator
	contexts *clusterctx.Store
	now      func() time.Time
	log      *log.Entry
}

// NewEngine creates an engine. root is the secret store root holding the
// account, common and allocation secrets.
func NewEngine(cfg config.ProvisioningConfig, root string, timeouts config.Timeouts, deps Dependencies) (*Engine, error) {
	if deps.Secrets == nil || deps.Objects == nil || deps.Terraform == nil {
		return nil, fmt.Errorf("secret store, object storage and terraform are required")
	}
	if cfg.WorkRoot == "" {
		return nil, fmt.Errorf("work root is required")
	}
	if cfg.StateBucket == "" {
		return nil, fmt.Errorf("state bucket is required")
	}

	return &Engine{
		cfg:      cfg,
		root:     root,
		timeouts: timeouts,
		deps:     deps,
		networks: NewNetworkAllocator(deps.Secrets, root, cfg.NetworkCIDR),
		contexts: clusterctx.NewStore(deps.Secrets, root),
		now:      time.Now,
		log:      logging.For("provisioning"),
	}, nil
}

// Validate checks a request before a job is created for it.
func (e *Engine) Validate(spec ResourceSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if _, ok := e.cfg.Kinds[spec.Type]; !ok {
		return apperr.Validation("unknown resource type %q, known types: %v", spec.Type, slices.Sorted(maps.Keys(e.cfg.Kinds)))
	}
	return nil
}

// CreateJob returns an executor creating or updating spec.
func (e *Engine) CreateJob(spec ResourceSpec) job.Executor {
	return func(ctx context.Context, j *job.Job) error {
		if err := e.Create(ctx, j, spec); err != nil {
			return err
		}
		j.CompleteSucc(fmt.Sprintf("Created %s/%s", spec.Type, spec.Name))
		return nil
	}
}

// DestroyJob returns an executor destroying spec.
func (e *Engine) DestroyJob(spec ResourceSpec) job.Executor {
	return func(ctx context.Context, j *job.Job) error {
		if err := e.Destroy(ctx, j, spec); err != nil {
			return err
		}
		j.CompleteSucc(fmt.Sprintf("Destroyed %s/%s", spec.Type, spec.Name))
		return nil
	}
}

// Create provisions a new resource, or updates it when state already exists.
// A failed apply is rolled back with destroy. For cluster kinds the
// post-setup steps run afterwards; their failures are reported together.
func (e *Engine) Create(ctx context.Context, emitter job.Emitter, spec ResourceSpec) (err error) {
	defer func() { metrics.ProvisioningRun(spec.Type, "create", err) }()

	pctx, err := e.newContext(ctx, "create", emitter, spec)
	if err != nil {
		return err
	}
	defer e.cleanup(pctx)

	phases := []Phase{
		NewPhase("workspace", e.prepareWorkspace),
		NewPhase("properties", e.resolveProperties),
		NewPhase("render", e.render),
		NewPhase("init", e.init),
		NewPhase("snapshot", e.snapshot),
		NewPhase("apply", e.apply),
	}
	if err := RunPhases(pctx, phases); err != nil {
		return err
	}

	pctx.Observer.Event(Event{
		Type:     EventResourceCreated,
		Resource: spec.Name,
		Message:  fmt.Sprintf("%s applied in %s mode", pctx.Resource(), pctx.Mode),
	})

	if pctx.Kind.Cluster {
		if err := RunSteps(pctx, e.postSetupSteps()); err != nil {
			return fmt.Errorf("cluster %s was created but its setup is incomplete: %w", spec.Name, err)
		}
	}
	return nil
}

// Destroy removes a resource that has state. Without state nothing is run.
func (e *Engine) Destroy(ctx context.Context, emitter job.Emitter, spec ResourceSpec) (err error) {
	defer func() { metrics.ProvisioningRun(spec.Type, "destroy", err) }()

	pctx, err := e.newContext(ctx, "destroy", emitter, spec)
	if err != nil {
		return err
	}
	defer e.cleanup(pctx)

	phases := []Phase{
		NewPhase("state", e.requireState),
		NewPhase("workspace", e.prepareWorkspace),
		NewPhase("render", e.render),
		NewPhase("init", e.init),
		NewPhase("destroy", e.destroy),
	}
	if err := RunPhases(pctx, phases); err != nil {
		return err
	}

	if err := RunSteps(pctx, e.postDestroySteps(pctx)); err != nil {
		return fmt.Errorf("%s was destroyed but cleanup is incomplete: %w", pctx.Resource(), err)
	}

	pctx.Observer.Event(Event{
		Type:     EventResourceDeleted,
		Resource: spec.Name,
		Message:  pctx.Resource() + " destroyed",
	})
	return nil
}

func (e *Engine) newContext(ctx context.Context, action string, emitter job.Emitter, spec ResourceSpec) (*Context, error) {
	if err := e.Validate(spec); err != nil {
		return nil, err
	}

	account, err := e.account(ctx, spec)
	if err != nil {
		return nil, err
	}

	objects, err := e.deps.Objects(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to open state bucket: %w", err)
	}

	entry := e.log.WithFields(log.Fields{
		"action":   action,
		"resource": spec.Type + "/" + spec.Name,
		"account":  spec.Account,
	})
	return &Context{
		Context:  ctx,
		Action:   action,
		Spec:     spec,
		Kind:     e.cfg.Kinds[spec.Type],
		Account:  account,
		Keys:     newObjectKeys(spec),
		Timeouts: e.timeouts,
		Observer: NewJobObserver(emitter, entry),
		Objects:  objects,
		started:  e.now(),
	}, nil
}

// account reads the credentials of spec's account. The request region wins
// over the account's default region.
func (e *Engine) account(ctx context.Context, spec ResourceSpec) (Account, error) {
	path := naming.Account(e.root, spec.Account)
	secret, err := e.deps.Secrets.Read(ctx, path)
	if errors.Is(err, secretstore.ErrNotFound) {
		return Account{}, apperr.Validation("unknown account %q", spec.Account)
	}
	if err != nil {
		return Account{}, apperr.SecretStore("read "+path, err)
	}

	account := Account{
		Name:      spec.Account,
		AccessKey: secret.String("aws_access_key"),
		SecretKey: secret.String("aws_secret_key"),
		Region:    secret.String("aws_region"),
	}
	if spec.Region != "" {
		account.Region = spec.Region
	}
	if account.AccessKey == "" || account.SecretKey == "" {
		return Account{}, apperr.Validation("account %q has no credentials", spec.Account)
	}
	if account.Region == "" {
		return Account{}, apperr.Validation("no region given and account %q has no default region", spec.Account)
	}
	return account, nil
}

func (e *Engine) prepareWorkspace(ctx *Context) error {
	dir := filepath.Join(e.cfg.WorkRoot,
		fmt.Sprintf("%s-%s-%s-%d", ctx.Action, ctx.Spec.Type, ctx.Spec.Name, ctx.started.UnixNano()))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}
	ctx.WorkDir = dir

	backend := RenderBackend(BackendSettings{
		Bucket:    e.cfg.StateBucket,
		Key:       ctx.Keys.State,
		Region:    ctx.Account.Region,
		LockTable: e.cfg.LockTable,
	})
	if err := writeFile(dir, backendFile, backend); err != nil {
		return err
	}

	ctx.output = newLineWriter(func(line string) { ctx.Observer.Printf("%s", line) })
	tf, err := e.deps.Terraform(dir, ctx.output)
	if err != nil {
		return apperr.ExternalTool("terraform", err)
	}
	ctx.Terraform = tf
	return nil
}

func (e *Engine) requireState(ctx *Context) error {
	exists, err := ctx.Objects.Exists(ctx, ctx.Keys.State)
	if err != nil {
		return fmt.Errorf("failed to check state of %s: %w", ctx.Resource(), err)
	}
	if !exists {
		return apperr.Validation("%s has no state in account %s", ctx.Resource(), ctx.Spec.Account)
	}

	stored, err := loadStoredVars(ctx)
	if err != nil {
		return err
	}
	ctx.Mode = ModeUpdate
	ctx.Properties = MergeProperties(stored, ctx.Spec.Properties)
	ctx.Properties[nameVariable(ctx)] = ctx.Spec.Name
	return nil
}

func (e *Engine) render(ctx *Context) error {
	if err := checkVariables(ctx.Properties); err != nil {
		return err
	}

	accountTF, err := RenderVars(map[string]any{
		regionVar:    ctx.Account.Region,
		accessKeyVar: ctx.Account.AccessKey,
		secretKeyVar: ctx.Account.SecretKey,
	})
	if err != nil {
		return err
	}
	varsTF, err := RenderVars(ctx.Properties)
	if err != nil {
		return apperr.E(apperr.KindValidation, "render variables", err)
	}

	variables := append(slices.Collect(maps.Keys(ctx.Properties)), accountVars...)
	mainTF := RenderMain(ctx.Kind.Module.Ref(), variables)

	for name, data := range map[string][]byte{
		accountFile:  accountTF,
		resourceFile: varsTF,
		mainFile:     mainTF,
	} {
		if err := writeFile(ctx.WorkDir, name, data); err != nil {
			return err
		}
	}

	ctx.varsTF = varsTF
	ctx.VarFiles = []string{
		filepath.Join(ctx.WorkDir, accountFile),
		filepath.Join(ctx.WorkDir, resourceFile),
	}
	return nil
}

func (e *Engine) init(ctx *Context) error {
	initCtx, cancel := context.WithTimeout(ctx, ctx.Timeouts.Command)
	defer cancel()

	err := ctx.Terraform.Init(initCtx, map[string]string{
		"access_key": ctx.Account.AccessKey,
		"secret_key": ctx.Account.SecretKey,
	})
	if err != nil {
		return apperr.ExternalTool("terraform init", err)
	}
	return nil
}

// snapshot uploads the variables before apply so a partially applied
// resource can still be destroyed.
func (e *Engine) snapshot(ctx *Context) error {
	if err := ctx.Objects.Put(ctx, ctx.Keys.Vars, ctx.varsTF); err != nil {
		return fmt.Errorf("failed to upload %s: %w", ctx.Keys.Vars, err)
	}

	info, err := newResourceInfo(ctx, e.now()).Marshal()
	if err != nil {
		return err
	}
	if err := writeFile(ctx.WorkDir, infoFile, info); err != nil {
		return err
	}
	if err := ctx.Objects.Put(ctx, ctx.Keys.Info, info); err != nil {
		return fmt.Errorf("failed to upload %s: %w", ctx.Keys.Info, err)
	}
	return nil
}

func (e *Engine) apply(ctx *Context) error {
	applyCtx, cancel := context.WithTimeout(ctx, ctx.Timeouts.Apply)
	defer cancel()

	applyErr := ctx.Terraform.Apply(applyCtx, ctx.VarFiles)
	if applyErr == nil {
		return nil
	}
	applyErr = apperr.ExternalTool("terraform apply", applyErr)

	if ctx.Err() != nil {
		ctx.Observer.Printf("Apply interrupted, not rolling back")
		return applyErr
	}

	ctx.Observer.Event(Event{
		Type:     EventStepFailed,
		Phase:    "apply",
		Resource: ctx.Spec.Name,
		Message:  fmt.Sprintf("apply failed, rolling back: %v", applyErr),
	})
	if err := e.destroy(ctx); err != nil {
		return fmt.Errorf("%w; rollback failed: %w", applyErr, err)
	}
	ctx.Observer.Printf("Rollback completed")
	return applyErr
}

func (e *Engine) destroy(ctx *Context) error {
	destroyCtx, cancel := context.WithTimeout(ctx, ctx.Timeouts.Apply)
	defer cancel()

	if err := ctx.Terraform.Destroy(destroyCtx, ctx.VarFiles); err != nil {
		return apperr.ExternalTool("terraform destroy", err)
	}
	return nil
}

func (e *Engine) postDestroySteps(ctx *Context) []Phase {
	var steps []Phase
	if ctx.Kind.Cluster {
		steps = append(steps,
			NewPhase("secret-store-auth", func(ctx *Context) error {
				if e.deps.Auth == nil {
					return fmt.Errorf("no secret store auth configured")
				}
				return e.deps.Auth.DisableKubernetesAuth(ctx, ctx.Spec.Name)
			}),
			NewPhase("cluster-context", func(ctx *Context) error {
				return e.contexts.Delete(ctx, ctx.Spec.Name)
			}),
		)
	}
	return append(steps, NewPhase("objects", func(ctx *Context) error {
		var result *multierror.Error
		for _, key := range []string{ctx.Keys.Vars, ctx.Keys.Info, ctx.Keys.State} {
			if err := ctx.Objects.Delete(ctx, key); err != nil {
				result = multierror.Append(result, err)
			}
		}
		if result != nil {
			result.ErrorFormat = apperr.JoinMessages
		}
		return result.ErrorOrNil()
	}))
}

// cleanup flushes pending tool output and removes the working directory.
func (e *Engine) cleanup(ctx *Context) {
	if ctx.output != nil {
		ctx.output.Flush()
	}
	if ctx.WorkDir == "" {
		return
	}
	if err := os.RemoveAll(ctx.WorkDir); err != nil {
		e.log.WithError(err).WithField("dir", ctx.WorkDir).Warn("Failed to remove working directory")
	}
}

func writeFile(dir, name string, data []byte) error {
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
