package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/spinless/cmd/spinless/handlers"
)

// Serve returns the serve command.
//
// Configuration is read from the optional file, a local .env file and
// SPINLESS_* environment variables, in increasing precedence.
func Serve() *cobra.Command {
	var (
		configPath string
		envFile    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control plane API",
		Long: `Serve starts the HTTP API together with the deployment processor.

Endpoints:
  POST   /helm/deploy              deploy services, returns a job id
  GET    /helm/deploy/{id}         stream the job log as NDJSON
  GET    /helm/deploy/status/{id}  job status
  DELETE /helm/deploy/{id}         cancel a job
  POST   /helm/destroy             remove a namespace from clusters
  POST   /resources                create or update a resource
  DELETE /resources                destroy a resource
  GET    /jobs                     list jobs

Example:
  spinless serve -c spinless.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Serve(cmd.Context(), configPath, envFile)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Environment file loaded when present")

	return cmd
}
