package alstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsamfire/ethercat-master/status"
	"github.com/samsamfire/ethercat-master/transport"
)

func newTestLadder() (*Ladder, *transport.Mock) {
	m := transport.NewMock()
	l := New(m, Options{TransitionTimeout: 50 * time.Millisecond, PollInterval: time.Millisecond})
	return l, m
}

func TestTransitionNetworkTo(t *testing.T) {
	l, m := newTestLadder()
	require.NoError(t, l.TransitionNetworkTo(status.PreOp))
	got, err := m.ReadNetworkState()
	require.NoError(t, err)
	assert.Equal(t, status.PreOp, got)
}

func TestTransitionSlaveTo(t *testing.T) {
	l, m := newTestLadder()
	m.AddSlave(0, 1, 1)
	require.NoError(t, l.TransitionSlaveTo(0, status.SafeOp))
	got, err := m.ReadSlaveState(0)
	require.NoError(t, err)
	assert.Equal(t, status.SafeOp, got)
}

func TestTransitionSlaveToUnknownPosition(t *testing.T) {
	l, _ := newTestLadder()
	err := l.TransitionSlaveTo(9, status.SafeOp)
	assert.Error(t, err)
}

func TestStartupReachesOp(t *testing.T) {
	l, m := newTestLadder()
	m.AddSlave(0, 1, 1)
	require.NoError(t, l.Startup(nil))
	got, err := m.ReadNetworkState()
	require.NoError(t, err)
	assert.Equal(t, status.Op, got)
}
