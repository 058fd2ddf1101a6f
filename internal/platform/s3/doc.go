// Package s3 stores provisioning artifacts (variable snapshots, resource
// metadata and terraform state) in an S3 bucket.
//
// A Client is bound to one bucket and one set of account credentials; keys
// follow {account}/{type}/{name}/<file>.
package s3
