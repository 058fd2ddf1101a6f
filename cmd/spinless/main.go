// Package main is the entry point for the spinless control plane.
//
// spinless runs an HTTP API that deploys tenant services to Kubernetes
// clusters with helm and provisions cloud resources with Terraform, keeping
// tenant credentials in Vault.
//
// For detailed usage information, run:
//
//	spinless --help
package main

import (
	"fmt"
	"os"

	"github.com/imamik/spinless/cmd/spinless/commands"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
