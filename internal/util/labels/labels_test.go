package labels

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLabelBuilder(t *testing.T) {
	t.Parallel()

	got := NewLabelBuilder("prod-eu").Build()
	assert.Equal(t, map[string]string{
		KeyCluster:   "prod-eu",
		KeyManagedBy: ManagedBySpinless,
	}, got)
}

func TestLabelBuilder_Chain(t *testing.T) {
	t.Parallel()

	got := NewLabelBuilder("prod-eu").
		WithComponent("cluster-autoscaler").
		Merge(map[string]string{"team": "platform", KeyManagedBy: "someone-else"}).
		Build()

	assert.Equal(t, "cluster-autoscaler", got[KeyComponent])
	assert.Equal(t, "platform", got["team"])
	assert.Equal(t, "someone-else", got[KeyManagedBy])
}

func TestLabelBuilder_BuildReturnsCopy(t *testing.T) {
	t.Parallel()

	lb := NewLabelBuilder("prod-eu")
	first := lb.Build()
	first[KeyCluster] = "changed"

	assert.Equal(t, "prod-eu", lb.Build()[KeyCluster])
}

func TestSelectorForCluster(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "spinless.io/cluster=prod-eu,app.kubernetes.io/managed-by=spinless", SelectorForCluster("prod-eu"))
}
