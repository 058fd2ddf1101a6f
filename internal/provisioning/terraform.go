package provisioning

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os/exec"
	"slices"

	"github.com/hashicorp/terraform-exec/tfexec"
)

type tfexecRunner struct {
	tf *tfexec.Terraform
}

// NewTerraformFactory returns a factory running the terraform binary at
// execPath, resolved through PATH when it is not a path.
func NewTerraformFactory(execPath string) TerraformFactory {
	return func(workDir string, out io.Writer) (Terraform, error) {
		path, err := exec.LookPath(execPath)
		if err != nil {
			return nil, fmt.Errorf("terraform binary %q not found: %w", execPath, err)
		}

		tf, err := tfexec.NewTerraform(workDir, path)
		if err != nil {
			return nil, fmt.Errorf("failed to create terraform runner in %s: %w", workDir, err)
		}
		tf.SetStdout(out)
		tf.SetStderr(out)
		return &tfexecRunner{tf: tf}, nil
	}
}

func (r *tfexecRunner) Init(ctx context.Context, backendConfig map[string]string) error {
	opts := []tfexec.InitOption{tfexec.Reconfigure(true), tfexec.Upgrade(false)}
	for _, k := range slices.Sorted(maps.Keys(backendConfig)) {
		opts = append(opts, tfexec.BackendConfig(k+"="+backendConfig[k]))
	}
	return r.tf.Init(ctx, opts...)
}

func (r *tfexecRunner) Apply(ctx context.Context, varFiles []string) error {
	opts := make([]tfexec.ApplyOption, 0, len(varFiles))
	for _, f := range varFiles {
		opts = append(opts, tfexec.VarFile(f))
	}
	return r.tf.Apply(ctx, opts...)
}

func (r *tfexecRunner) Destroy(ctx context.Context, varFiles []string) error {
	opts := make([]tfexec.DestroyOption, 0, len(varFiles))
	for _, f := range varFiles {
		opts = append(opts, tfexec.VarFile(f))
	}
	return r.tf.Destroy(ctx, opts...)
}
