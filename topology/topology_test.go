package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsamfire/ethercat-master/transport"
)

func TestRefreshDetectsAddedAndRemoved(t *testing.T) {
	m := transport.NewMock()
	m.AddSlave(0, 1, 1)
	m.AddSlave(1, 2, 2)
	r := New(m, 4)

	snap, changes, err := r.Refresh()
	require.NoError(t, err)
	assert.Len(t, snap.Slaves, 2)
	assert.ElementsMatch(t, []uint16{0, 1}, changes.Added)
	assert.Empty(t, changes.Removed)

	m.SetSlaveOnline(1, false)
	_, changes, err = r.Refresh()
	require.NoError(t, err)
	assert.Equal(t, []uint16{1}, changes.Removed)
	assert.Empty(t, changes.Added)
}

func TestRefreshGenerationOnlyBumpsOnChange(t *testing.T) {
	m := transport.NewMock()
	m.AddSlave(0, 1, 1)
	r := New(m, 4)

	snap, _, err := r.Refresh()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Generation)

	snap, changes, err := r.Refresh()
	require.NoError(t, err)
	assert.False(t, changes.Changed())
	assert.Equal(t, uint64(1), snap.Generation)

	m.AddSlave(1, 2, 2)
	snap, changes, err = r.Refresh()
	require.NoError(t, err)
	assert.True(t, changes.Changed())
	assert.Equal(t, uint64(2), snap.Generation)
}

func TestMissingAndHotConnectedSlaves(t *testing.T) {
	snap := Snapshot{Slaves: map[uint16]SlaveInfo{0: {Position: 0}, 2: {Position: 2}}}
	expected := []uint16{0, 1}

	assert.Equal(t, []uint16{1}, MissingSlaves(snap, expected))
	assert.Equal(t, []uint16{2}, HotConnectedSlaves(snap, expected))
}

func TestRedundancyMachineTransitions(t *testing.T) {
	rm := NewRedundancyMachine(8)
	assert.Equal(t, PrimaryOnly, rm.State())

	assert.Equal(t, RedundantHealthy, rm.Observe(true, 1))
	assert.Equal(t, RedundancyDegraded, rm.Observe(false, 2))
	assert.Equal(t, Recovering, rm.Observe(true, 3))
	assert.Equal(t, RedundantHealthy, rm.Observe(true, 4))

	history := rm.History()
	require.Len(t, history, 4)
	assert.Equal(t, PrimaryOnly, history[0].From)
	assert.Equal(t, RedundantHealthy, history[0].To)
}

func TestPolicyEscalatesMissingSlave(t *testing.T) {
	p := NewPolicy(PolicyOptions{MissingGraceCycles: 1, MissingRetryCycles: 1, MissingDegradeCycles: 1})

	actions := p.Evaluate([]uint16{5}, nil)
	assert.Equal(t, ActionMonitor, actions[5])

	actions = p.Evaluate([]uint16{5}, nil)
	assert.Equal(t, ActionRetry, actions[5])

	actions = p.Evaluate([]uint16{5}, nil)
	assert.Equal(t, ActionDegrade, actions[5])

	actions = p.Evaluate([]uint16{5}, nil)
	assert.Equal(t, ActionFailStop, actions[5])
	assert.Equal(t, 1, p.DegradeCount())
	assert.Equal(t, 1, p.FailStopCount())
}

func TestPolicyResetsWhenSlaveReturns(t *testing.T) {
	p := NewPolicy(PolicyOptions{MissingGraceCycles: 1})
	p.Evaluate([]uint16{5}, nil)
	p.Evaluate(nil, nil)
	actions := p.Evaluate([]uint16{5}, nil)
	assert.Equal(t, ActionMonitor, actions[5])
}

func TestPolicyHotConnectEscalatesToReconfigure(t *testing.T) {
	p := NewPolicy(PolicyOptions{HotConnectGraceCycles: 1})
	actions := p.Evaluate(nil, []uint16{9})
	assert.Equal(t, ActionMonitor, actions[9])
	actions = p.Evaluate(nil, []uint16{9})
	assert.Equal(t, ActionReconfigure, actions[9])
}
