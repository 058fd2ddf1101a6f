package deploy

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/imamik/spinless/internal/addons/helm"
	"github.com/imamik/spinless/internal/apperr"
	"github.com/imamik/spinless/internal/job"
	"github.com/imamik/spinless/internal/logging"
	"github.com/imamik/spinless/internal/metrics"
	"github.com/imamik/spinless/internal/util/naming"
)

// ErrProcessorStopped is returned when submitting to a processor that is not running.
var ErrProcessorStopped = errors.New("deployment processor stopped")

// RoleProvisioner creates tenant identities before an install.
type RoleProvisioner interface {
	CreateRole(ctx context.Context, owner, repo, cluster string) (string, error)
	PrepareServicePath(ctx context.Context, owner, repo, baseNamespace, targetNamespace string) (string, error)
}

// ProcessorConfig configures a Processor.
type ProcessorConfig struct {
	QueueSize           int
	VaultAddr           string
	DefaultChartVersion string
	InstallTimeout      time.Duration
}

// Processor installs deployment tasks strictly in submission order on one goroutine.
type Processor struct {
	cfg       ProcessorConfig
	roles     RoleProvisioner
	installer Installer
	results   *Results
	log       *log.Entry

	tasks    chan *Task
	releases chan string
	stopped  chan struct{}

	// released and its entries are owned by the Run goroutine.
	released map[string]struct{}
}

// NewProcessor creates a processor. Call Run to start consuming tasks.
func NewProcessor(cfg ProcessorConfig, roles RoleProvisioner, installer Installer) *Processor {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.DefaultChartVersion == "" {
		cfg.DefaultChartVersion = "0.0.1"
	}
	if cfg.InstallTimeout <= 0 {
		cfg.InstallTimeout = 900 * time.Second
	}
	return &Processor{
		cfg:       cfg,
		roles:     roles,
		installer: installer,
		results:   newResults(),
		log:       logging.For("deploy-processor"),
		tasks:     make(chan *Task, cfg.QueueSize),
		releases:  make(chan string, cfg.QueueSize),
		stopped:   make(chan struct{}),
		released:  make(map[string]struct{}),
	}
}

// Results returns the read side of the processor's results.
func (p *Processor) Results() *Results {
	return p.results
}

// Submit enqueues a task. It blocks while the queue is full.
func (p *Processor) Submit(ctx context.Context, t *Task) error {
	select {
	case <-p.stopped:
		return ErrProcessorStopped
	default:
	}

	select {
	case p.tasks <- t:
		metrics.SetDeployQueueDepth(len(p.tasks))
		return nil
	case <-p.stopped:
		return ErrProcessorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release drops the results of a job once its coordinator stopped waiting.
// Results of the job's tasks that finish later are discarded.
func (p *Processor) Release(jobID string) {
	select {
	case p.releases <- jobID:
	case <-p.stopped:
	}
}

// Run consumes tasks until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) {
	defer close(p.stopped)
	p.log.WithField("queue_size", p.cfg.QueueSize).Info("Deployment processor started")

	for {
		select {
		case <-ctx.Done():
			p.log.WithField("pending", len(p.tasks)).Info("Deployment processor stopped")
			return
		case id := <-p.releases:
			p.release(id)
		case t := <-p.tasks:
			metrics.SetDeployQueueDepth(len(p.tasks))
			p.process(ctx, t)
		}

		// Tasks are always enqueued before their job is released, so once the
		// queue is empty no released job can produce results any more.
		if len(p.tasks) == 0 && len(p.released) > 0 {
			clear(p.released)
		}
	}
}

func (p *Processor) process(ctx context.Context, t *Task) {
	start := time.Now()
	res := p.execute(t.context(ctx), t)
	elapsed := time.Since(start)

	metrics.DeployTask(!res.Failed(), elapsed)
	p.log.WithFields(log.Fields{
		"job":        t.JobID,
		"service":    res.Service,
		"cluster":    res.Cluster,
		"error_code": res.ErrorCode,
		"elapsed":    elapsed.Round(time.Millisecond),
	}).Info("Deployment task finished")

	// A coordinator may have given up while this task ran.
	p.drainReleases()
	if _, gone := p.released[t.JobID]; gone {
		return
	}
	p.results.add(t.JobID, res)
}

func (p *Processor) release(jobID string) {
	p.results.release(jobID)
	p.released[jobID] = struct{}{}
}

func (p *Processor) drainReleases() {
	for {
		select {
		case id := <-p.releases:
			p.release(id)
		default:
			return
		}
	}
}

// execute never panics; failures become error code 1 with the failure text in the log.
func (p *Processor) execute(ctx context.Context, t *Task) (res Result) {
	res.Service = t.Service.Key()
	res.Cluster = t.Service.Cluster
	logf := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		res.Log = append(res.Log, msg)
		if t.Emitter != nil {
			t.Emitter.Emit(job.RecordRunning, fmt.Sprintf("[%s] %s", res.Service, msg))
		}
	}
	fail := func(err error) Result {
		logf("failed: %v", err)
		res.ErrorCode = apperr.Code(err)
		return res
	}

	defer func() {
		if r := recover(); r != nil {
			p.log.WithField("stack", string(debug.Stack())).Errorf("Deployment task panicked: %v", r)
			res.Log = append(res.Log, fmt.Sprintf("panic: %v", r))
			res.ErrorCode = 1
		}
	}()

	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("skipped: %w", err))
	}
	if t.Cluster == nil || t.Helm == nil {
		return fail(apperr.Validation("task is missing its cluster context or helm registry"))
	}

	owner, repo := t.Service.Owner, t.Service.Repo

	role, err := p.roles.CreateRole(ctx, owner, repo, t.Cluster.Name)
	if err != nil {
		return fail(err)
	}
	logf("role %s ready", role)

	if _, err := p.roles.PrepareServicePath(ctx, owner, repo, t.BaseNamespace, t.Service.Namespace); err != nil {
		return fail(err)
	}

	version := t.Service.ChartVersion
	if version == "" {
		version = p.cfg.DefaultChartVersion
	}
	ref := ChartRef{
		URL:      ChartURL(t.Helm.URL, owner, repo, version),
		Username: t.Helm.Username,
		Password: t.Helm.Password,
	}
	ch, err := p.installer.LoadChart(ctx, ref)
	if err != nil {
		return fail(apperr.ExternalTool("load chart", err))
	}
	logf("loaded chart %s", ref.URL)

	defaults := helm.Values(ch.Values)
	platform, warnings := platformValues(p.cfg.VaultAddr, role, t, defaults)
	for _, w := range warnings {
		logf("warning: %s", w)
	}
	values := RenderValues(defaults, platform, overrideValues(t))

	installCtx, cancel := context.WithTimeout(ctx, p.cfg.InstallTimeout)
	defer cancel()

	release := naming.Release(owner, repo)
	err = p.installer.Install(installCtx, InstallRequest{
		Kubeconfig: t.Cluster.Kubeconfig,
		Namespace:  t.Service.Namespace,
		Release:    release,
		Chart:      ch,
		Values:     values,
		Timeout:    p.cfg.InstallTimeout,
	})
	if err != nil {
		return fail(apperr.ExternalTool("install "+release, err))
	}

	logf("installed %s with image %s on %s", release, t.Service.ImageTag, t.Cluster.Name)
	return res
}
