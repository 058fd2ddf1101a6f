// Package api exposes the control plane over HTTP: helm deployments and
// namespace teardown, resource provisioning, and generic job status and log
// streaming. Every mutating call starts a job and returns its id; progress is
// read back as a newline-delimited JSON stream of log records.
package api
