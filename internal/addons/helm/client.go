package helm

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"helm.sh/helm/v3/pkg/action"
	"helm.sh/helm/v3/pkg/chart"
	"helm.sh/helm/v3/pkg/release"
	"helm.sh/helm/v3/pkg/storage/driver"

	"github.com/imamik/spinless/internal/logging"
)

// Client provides Helm operations using in-memory kubeconfig.
type Client struct {
	namespace    string
	actionConfig *action.Configuration
	log          *log.Entry
}

// NewClient creates a Helm client from kubeconfig bytes, scoped to namespace.
func NewClient(kubeconfig []byte, namespace string) (*Client, error) {
	entry := logging.For("helm").WithField("namespace", namespace)

	actionConfig := new(action.Configuration)
	restGetter := NewInMemoryRESTClientGetter(kubeconfig, namespace)
	if err := actionConfig.Init(restGetter, namespace, "secret", logging.Debugf(entry)); err != nil {
		return nil, fmt.Errorf("failed to initialize helm action config: %w", err)
	}

	return &Client{namespace: namespace, actionConfig: actionConfig, log: entry}, nil
}

// InstallOrUpgrade installs ch as releaseName, or upgrades the release if it
// already exists, and waits up to timeout for its resources to become ready.
func (c *Client) InstallOrUpgrade(ctx context.Context, releaseName string, ch *chart.Chart, values Values, timeout time.Duration) (*release.Release, error) {
	exists, err := c.ReleaseExists(releaseName)
	if err != nil {
		return nil, err
	}

	if !exists {
		c.log.WithField("release", releaseName).Debug("Installing release")
		install := action.NewInstall(c.actionConfig)
		install.ReleaseName = releaseName
		install.Namespace = c.namespace
		install.CreateNamespace = true
		install.Wait = true
		install.Timeout = timeout
		return install.RunWithContext(ctx, ch, values)
	}

	c.log.WithField("release", releaseName).Debug("Upgrading release")
	upgrade := action.NewUpgrade(c.actionConfig)
	upgrade.Namespace = c.namespace
	upgrade.Wait = true
	upgrade.Timeout = timeout
	upgrade.ReuseValues = false
	return upgrade.RunWithContext(ctx, releaseName, ch, values)
}

// Uninstall removes a Helm release and waits up to timeout for its
// resources to go away. A release that does not exist is not an error.
func (c *Client) Uninstall(releaseName string, timeout time.Duration) error {
	exists, err := c.ReleaseExists(releaseName)
	if err != nil || !exists {
		return err
	}

	c.log.WithField("release", releaseName).Debug("Uninstalling release")
	uninstall := action.NewUninstall(c.actionConfig)
	uninstall.Wait = true
	uninstall.Timeout = timeout

	if _, err := uninstall.Run(releaseName); err != nil {
		return fmt.Errorf("failed to uninstall %s: %w", releaseName, err)
	}
	return nil
}

// ReleaseExists checks if a release exists.
func (c *Client) ReleaseExists(releaseName string) (bool, error) {
	history := action.NewHistory(c.actionConfig)
	history.Max = 1
	_, err := history.Run(releaseName)
	if errors.Is(err, driver.ErrReleaseNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read history of %s: %w", releaseName, err)
	}
	return true, nil
}
