package deploy

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/imamik/spinless/internal/apperr"
	"github.com/imamik/spinless/internal/clusterctx"
	"github.com/imamik/spinless/internal/job"
	"github.com/imamik/spinless/internal/k8s"
	"github.com/imamik/spinless/internal/logging"
	"github.com/imamik/spinless/internal/secretstore"
	"github.com/imamik/spinless/internal/util/naming"
)

// Job names.
const (
	DeployJob  = "helm-deploy"
	DestroyJob = "helm-destroy"
)

// ServicePathDeleter removes a tenant's secrets for one namespace.
type ServicePathDeleter interface {
	DeleteServicePath(ctx context.Context, owner, repo, namespace string) error
}

// KubeFactory builds a cluster client from kubeconfig bytes.
type KubeFactory func(kubeconfig []byte) (k8s.Client, error)

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	Root                string
	ProtectedNamespaces []string
	PollInterval        time.Duration
	// WaitBudget returns how long to wait for the results of n services.
	WaitBudget func(n int) time.Duration
	RetryMax   int
	RetryDelay time.Duration
}

// Coordinator runs deploy and destroy requests as jobs.
type Coordinator struct {
	cfg       CoordinatorConfig
	jobs      *job.Registry
	processor *Processor
	secrets   secretstore.Store
	contexts  *clusterctx.Store
	paths     ServicePathDeleter
	kube      KubeFactory
	log       *log.Entry
}

// NewCoordinator wires a coordinator. A nil kube factory uses k8s.NewFromKubeconfig.
func NewCoordinator(
	cfg CoordinatorConfig,
	jobs *job.Registry,
	processor *Processor,
	secrets secretstore.Store,
	paths ServicePathDeleter,
	kube KubeFactory,
) *Coordinator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.WaitBudget == nil {
		cfg.WaitBudget = func(int) time.Duration { return 20 * time.Minute }
	}
	if kube == nil {
		kube = k8s.NewFromKubeconfig
	}
	return &Coordinator{
		cfg:       cfg,
		jobs:      jobs,
		processor: processor,
		secrets:   secrets,
		contexts:  clusterctx.NewStore(secrets, cfg.Root),
		paths:     paths,
		kube:      kube,
		log:       logging.For("deploy"),
	}
}

// Deploy starts a job installing every service of req.
func (c *Coordinator) Deploy(req DeployRequest) (*job.Job, error) {
	return c.jobs.Submit(DeployJob, c.deploy(req), req)
}

// Destroy starts a job removing req's namespace: the services' releases are
// uninstalled, then the namespace and the services' secrets are deleted.
// Protected namespaces are rejected without creating a job.
func (c *Coordinator) Destroy(req DestroyRequest) (*job.Job, error) {
	if slices.Contains(c.cfg.ProtectedNamespaces, req.Namespace) {
		return nil, apperr.Validation("namespace %s is protected and cannot be destroyed", req.Namespace)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return c.jobs.Submit(DestroyJob, c.destroy(req), req)
}

// Cancel stops a running job. It reports whether the job was terminated.
func (c *Coordinator) Cancel(id string) (bool, error) {
	j, err := c.jobs.Get(id)
	if err != nil {
		return false, err
	}
	return j.Cancel(), nil
}

func (c *Coordinator) deploy(req DeployRequest) job.Executor {
	return func(ctx context.Context, j *job.Job) error {
		if err := req.Validate(); err != nil {
			return err
		}

		total := len(req.Services)
		j.Emitf("Deploying %d services at %s into namespace %s", total, req.SHA, req.Namespace)

		res, err := c.resolve(ctx, req.Services)
		if err != nil {
			return fmt.Errorf("failed to resolve deployment targets: %w", err)
		}

		for _, s := range req.Services {
			task := &Task{
				JobID:         j.ID(),
				Service:       s,
				Namespace:     req.Namespace,
				SHA:           req.SHA,
				BaseNamespace: req.BaseNamespace,
				Env:           req.Env,
				Helm:          res.registry(RegistryHelm, s.Registry.Helm),
				Docker:        res.registry(RegistryDocker, s.Registry.Docker),
				Cluster:       res.clusters[s.Cluster],
				Emitter:       j,
				ctx:           ctx,
			}
			if err := c.processor.Submit(ctx, task); err != nil {
				c.processor.Release(j.ID())
				return fmt.Errorf("failed to queue %s: %w", s.Target(), err)
			}
			j.Emitf("Queued %s", s.Target())
		}

		timedOut, err := c.wait(ctx, j.ID(), total)
		results := c.processor.Results().Get(j.ID())
		c.processor.Release(j.ID())
		if err != nil {
			return err
		}

		failed := 0
		for _, r := range results {
			if !r.Failed() {
				continue
			}
			failed++
			reason := "unknown error"
			if len(r.Log) > 0 {
				reason = r.Log[len(r.Log)-1]
			}
			j.Emit(job.RecordWarning, fmt.Sprintf("%s on %s failed: %s", r.Service, r.Cluster, reason))
		}
		installed := len(results) - failed

		c.log.WithFields(log.Fields{
			"job":       j.ID(),
			"installed": installed,
			"failed":    failed,
			"total":     total,
		}).Info("Deployment finished")

		switch {
		case timedOut:
			j.CompleteErr(fmt.Sprintf("Timed out waiting for deployments: installed %d/%d services, %d failed, %d pending",
				installed, total, failed, total-len(results)))
		case failed > 0:
			j.CompleteErr(fmt.Sprintf("Installed %d/%d services, %d failed", installed, total, failed))
		default:
			j.CompleteSucc(fmt.Sprintf("Installed %d/%d services", installed, total))
		}
		return nil
	}
}

// wait polls the results until n arrived or the wait budget elapsed.
func (c *Coordinator) wait(ctx context.Context, jobID string, n int) (timedOut bool, err error) {
	results := c.processor.Results()
	if results.Count(jobID) >= n {
		return false, nil
	}

	deadline := time.NewTimer(c.cfg.WaitBudget(n))
	defer deadline.Stop()
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			return results.Count(jobID) < n, nil
		case <-ticker.C:
			if results.Count(jobID) >= n {
				return false, nil
			}
		}
	}
}

func (c *Coordinator) destroy(req DestroyRequest) job.Executor {
	return func(ctx context.Context, j *job.Job) error {
		var result *multierror.Error
		step := func(what string, err error) {
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("%s: %w", what, err))
				j.Emit(job.RecordWarning, fmt.Sprintf("Failed to %s: %v", what, err))
				c.log.WithError(err).WithField("job", j.ID()).Warnf("Failed to %s", what)
				return
			}
			j.Emitf("Done: %s", what)
		}

		seen := make(map[string]bool, len(req.Clusters))
		for _, cluster := range req.Clusters {
			if seen[cluster] {
				continue
			}
			seen[cluster] = true

			kubeconfig, err := c.kubeconfig(ctx, cluster)
			if err != nil {
				step(fmt.Sprintf("load context of %s", cluster), err)
				continue
			}
			for _, s := range req.Services {
				release := naming.Release(s.Owner, s.Repo)
				step(fmt.Sprintf("uninstall %s from %s on %s", release, req.Namespace, cluster),
					c.processor.installer.Uninstall(ctx, UninstallRequest{
						Kubeconfig: kubeconfig,
						Namespace:  req.Namespace,
						Release:    release,
						Timeout:    c.processor.cfg.InstallTimeout,
					}))
			}
			step(fmt.Sprintf("delete namespace %s on %s", req.Namespace, cluster),
				c.deleteNamespace(ctx, kubeconfig, req.Namespace))
		}

		for _, s := range req.Services {
			step(fmt.Sprintf("delete secrets of %s/%s in %s", s.Owner, s.Repo, req.Namespace),
				c.paths.DeleteServicePath(ctx, s.Owner, s.Repo, req.Namespace))
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		if result != nil {
			j.CompleteErr(fmt.Sprintf("Destroyed namespace %s with %d errors", req.Namespace, len(result.Errors)))
			return nil
		}
		j.CompleteSucc(fmt.Sprintf("Destroyed namespace %s", req.Namespace))
		return nil
	}
}

func (c *Coordinator) kubeconfig(ctx context.Context, cluster string) ([]byte, error) {
	kctx, err := c.contexts.Get(ctx, cluster)
	if err != nil {
		return nil, err
	}
	return kctx.Kubeconfig, nil
}

func (c *Coordinator) deleteNamespace(ctx context.Context, kubeconfig []byte, namespace string) error {
	client, err := c.kube(kubeconfig)
	if err != nil {
		return err
	}
	return client.DeleteNamespace(ctx, namespace)
}
