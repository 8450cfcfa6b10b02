package ethercat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshTopologyWiresRedundancyAndPolicy(t *testing.T) {
	cfg, mock := scenarioConfig()
	mock.SetRedundancyHealthy(false)
	master := New(mock, Options{
		Topology: TopologyPolicyOptions{
			Enable:            true,
			MaxPositions:      8,
			ExpectedPositions: []uint16{1, 2, 3},
			MissingSlave:      TopologyConditionOptions{GraceCycles: 1},
		},
	})
	require.NoError(t, master.Configure(cfg))
	require.NoError(t, master.Start())
	defer master.Stop()

	snap, changes, err := master.RefreshTopology()
	require.NoError(t, err)
	assert.Len(t, snap.Slaves, 2)
	assert.ElementsMatch(t, []uint16{1, 2}, changes.Added)

	mock.SetRedundancyHealthy(true)
	_, _, err = master.RefreshTopology()
	require.NoError(t, err)
}

func TestRefreshTopologyBeforeConfigureFails(t *testing.T) {
	_, mock := scenarioConfig()
	master := New(mock, Options{})
	_, _, err := master.RefreshTopology()
	assert.ErrorIs(t, err, ErrNotConfigured)
}
