// Package secretstore defines the operations the control plane needs from its
// secret store and implements them on HashiCorp Vault.
//
// Paths are logical KV paths whose first segment is the KV v2 mount, e.g.
// secretv2/acme/svc/ns1. Policies are expressed on the same logical paths and
// expanded to the data/ and metadata/ API paths when written to Vault.
package secretstore
