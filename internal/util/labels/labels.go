// Package labels provides the labels spinless puts on the Kubernetes objects
// it creates in tenant clusters.
//
// Label keys follow the app.kubernetes.io recommendations plus a
// spinless.io/cluster key naming the provisioned cluster.
package labels

// Label keys.
const (
	// KeyCluster names the provisioned cluster an object belongs to.
	KeyCluster = "spinless.io/cluster"

	// KeyComponent names the setup step that created an object.
	KeyComponent = "app.kubernetes.io/component"

	// KeyManagedBy identifies the management system.
	KeyManagedBy = "app.kubernetes.io/managed-by"
)

// ManagedBySpinless is the value of KeyManagedBy on every object spinless writes.
const ManagedBySpinless = "spinless"

// LabelBuilder provides a fluent interface for building object labels.
type LabelBuilder struct {
	labels map[string]string
}

// NewLabelBuilder creates a builder with the cluster and manager labels set.
func NewLabelBuilder(clusterName string) *LabelBuilder {
	return &LabelBuilder{
		labels: map[string]string{
			KeyCluster:   clusterName,
			KeyManagedBy: ManagedBySpinless,
		},
	}
}

// WithComponent sets the component label.
func (lb *LabelBuilder) WithComponent(component string) *LabelBuilder {
	lb.labels[KeyComponent] = component
	return lb
}

// Merge adds all labels from the provided map.
func (lb *LabelBuilder) Merge(extra map[string]string) *LabelBuilder {
	for k, v := range extra {
		lb.labels[k] = v
	}
	return lb
}

// Build returns a copy of the labels map.
func (lb *LabelBuilder) Build() map[string]string {
	result := make(map[string]string, len(lb.labels))
	for k, v := range lb.labels {
		result[k] = v
	}
	return result
}

// SelectorForCluster returns a label selector for every object spinless
// created for a cluster.
func SelectorForCluster(clusterName string) string {
	return KeyCluster + "=" + clusterName + "," + KeyManagedBy + "=" + ManagedBySpinless
}
