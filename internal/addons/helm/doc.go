// Package helm fetches charts and installs them as releases using the Helm
// SDK, talking to clusters through in-memory kubeconfig bytes.
//
// Service charts are fetched by URL from the tenant chart registry with basic
// auth. Cluster addons are resolved through their public repository index.
package helm
