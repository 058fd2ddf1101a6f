// Package handlers implements the CLI commands.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/imamik/spinless/internal/addons"
	"github.com/imamik/spinless/internal/api"
	"github.com/imamik/spinless/internal/config"
	"github.com/imamik/spinless/internal/credentials"
	"github.com/imamik/spinless/internal/deploy"
	"github.com/imamik/spinless/internal/job"
	"github.com/imamik/spinless/internal/k8s"
	"github.com/imamik/spinless/internal/logging"
	"github.com/imamik/spinless/internal/provisioning"
	"github.com/imamik/spinless/internal/secretstore"
)

const shutdownTimeout = 30 * time.Second

// app is the wired control plane.
type app struct {
	cfg       *config.Config
	jobs      *job.Registry
	processor *deploy.Processor
	server    *http.Server
	log       *log.Entry
}

// Serve loads the configuration and runs the API until SIGINT or SIGTERM.
func Serve(ctx context.Context, configPath, envFile string) error {
	if err := loadEnv(envFile); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logging.Configure(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.run(ctx)
}

// loadEnv loads envFile into the environment. A missing file is not an error;
// variables already set are not overridden.
func loadEnv(envFile string) error {
	if envFile == "" {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	return nil
}

func newApp(cfg *config.Config) (*app, error) {
	vault, err := secretstore.NewVault(secretstore.VaultConfig{
		Address:        cfg.SecretStore.Address,
		Token:          cfg.SecretStore.Token,
		Mount:          cfg.SecretStore.Mount(),
		KubernetesRole: cfg.SecretStore.KubernetesRole,
		KubernetesPath: cfg.SecretStore.KubernetesPath,
		JWTPath:        cfg.SecretStore.JWTPath,
	}, logging.For("vault"))
	if err != nil {
		return nil, err
	}

	jobs, err := job.NewRegistry(cfg.Jobs.LogDir, cfg.Jobs.TailInterval)
	if err != nil {
		return nil, err
	}

	creds := credentials.New(vault, cfg.SecretStore.Root)
	processor := deploy.NewProcessor(deploy.ProcessorConfig{
		QueueSize:           cfg.Deploy.QueueSize,
		VaultAddr:           cfg.SecretStore.Address,
		DefaultChartVersion: cfg.Deploy.DefaultChartVersion,
		InstallTimeout:      cfg.Timeouts.Install,
	}, creds, deploy.HelmInstaller{})

	coordinator := deploy.NewCoordinator(deploy.CoordinatorConfig{
		Root:                cfg.SecretStore.Root,
		ProtectedNamespaces: cfg.Deploy.ProtectedNamespaces,
		PollInterval:        cfg.Timeouts.DeployPoll,
		WaitBudget:          cfg.Timeouts.DeployBudget,
		RetryMax:            cfg.Timeouts.RetryMax,
		RetryDelay:          cfg.Timeouts.RetryDelay,
	}, jobs, processor, vault, creds, k8s.NewFromKubeconfig)

	engine, err := provisioning.NewEngine(cfg.Provisioning, cfg.SecretStore.Root, cfg.Timeouts, provisioning.Dependencies{
		Secrets:   vault,
		Auth:      creds,
		Objects:   provisioning.S3Objects(cfg.Provisioning.StateBucket, cfg.Provisioning.StateEndpoint),
		Terraform: provisioning.NewTerraformFactory(cfg.Provisioning.TerraformPath),
		Cloud:     provisioning.AWSCloud(),
		Kube:      k8s.NewFromKubeconfig,
		Charts:    addons.HelmInstaller{Timeout: cfg.Timeouts.Install},
	})
	if err != nil {
		return nil, err
	}

	handler := api.NewServer(jobs, coordinator, engine).Router(cfg.HTTP)
	return &app{
		cfg:       cfg,
		jobs:      jobs,
		processor: processor,
		server: &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.HTTP.ReadTimeout,
			WriteTimeout:      cfg.HTTP.WriteTimeout,
		},
		log: logging.For("server"),
	}, nil
}

// run serves until ctx ends or the listener fails. On shutdown running jobs
// are cancelled first so open log streams reach their end record.
func (a *app) run(ctx context.Context) error {
	procCtx, stopProcessor := context.WithCancel(context.Background())
	procDone := make(chan struct{})
	go func() {
		defer close(procDone)
		a.processor.Run(procCtx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		a.log.WithField("addr", a.server.Addr).Info("Listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("Shutting down")
	case err := <-serveErr:
		runErr = fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.jobs.Shutdown(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("Jobs did not stop cleanly")
	}
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("HTTP server did not stop cleanly")
	}
	stopProcessor()
	<-procDone

	return runErr
}
