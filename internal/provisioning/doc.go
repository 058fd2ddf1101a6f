// Package provisioning creates and destroys infrastructure resources with
// Terraform.
//
// Every resource is identified by (account, type, name). Its Terraform state
// and a snapshot of the variables it was applied with live in object storage
// under {account}/{type}/{name}/. When the state exists a create request is
// an update of the stored variables; otherwise the variables are computed
// from the common properties of the type, the kind defaults and the request.
//
// # Phases
//
// Create runs workspace, properties, render, init, snapshot and apply in
// order and stops at the first failure. A failed apply is rolled back with
// destroy. Cluster kinds then run a fixed best-effort post-setup sequence:
// kubeconfig, node auth, secret store auth, cluster-autoscaler, traefik,
// metrics-server and the stored cluster context.
package provisioning
