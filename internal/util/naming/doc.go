// Package naming derives the deterministic names shared by the secret store,
// the clusters and the object storage layout.
//
// Tenant identities follow {owner}-{repo}[-suffix]; per-cluster auth
// backends are mounted at kubernetes-{cluster}; resource state lives under
// {account}/{type}/{name}/.
package naming
