// Package k8s provides the cluster administration operations the control
// plane performs directly, wrapping k8s.io/client-go and building clients
// straight from kubeconfig bytes.
package k8s
