package config

import (
	"fmt"
	"time"
)

// Timeouts holds all configurable timeout values.
type Timeouts struct {
	Command    time.Duration `mapstructure:"command"`     // short external commands such as terraform init
	Apply      time.Duration `mapstructure:"apply"`       // terraform apply and destroy
	Install    time.Duration `mapstructure:"install"`     // one helm install or upgrade
	DeployWait time.Duration `mapstructure:"deploy_wait"` // coordinator wait for all results
	DeployPoll time.Duration `mapstructure:"deploy_poll"` // coordinator poll interval
	TokenWait  time.Duration `mapstructure:"token_wait"`  // service account token population
	RetryDelay time.Duration `mapstructure:"retry_delay"` // initial backoff for secret store retries
	RetryMax   int           `mapstructure:"retry_max"`   // maximum secret store retries
}

// DefaultTimeouts returns the timeouts used when nothing is configured.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Command:    300 * time.Second,
		Apply:      900 * time.Second,
		Install:    900 * time.Second,
		DeployWait: 20 * time.Minute,
		DeployPoll: time.Second,
		TokenWait:  time.Minute,
		RetryDelay: 100 * time.Millisecond,
		RetryMax:   5,
	}
}

// Validate rejects non-positive durations.
func (t Timeouts) Validate() error {
	for name, d := range map[string]time.Duration{
		"command":     t.Command,
		"apply":       t.Apply,
		"install":     t.Install,
		"deploy_wait": t.DeployWait,
		"deploy_poll": t.DeployPoll,
	} {
		if d <= 0 {
			return fmt.Errorf("timeouts.%s must be positive, got %v", name, d)
		}
	}
	if t.RetryMax < 0 {
		return fmt.Errorf("timeouts.retry_max must not be negative, got %d", t.RetryMax)
	}
	return nil
}

// DeployBudget returns how long the coordinator waits for n deployment results.
// Installs run one at a time, so the budget grows with the number of charts.
func (t Timeouts) DeployBudget(n int) time.Duration {
	budget := time.Duration(n) * t.Install
	if budget < t.DeployWait {
		return t.DeployWait
	}
	return budget
}
