package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsamfire/ethercat-master/alstate"
	"github.com/samsamfire/ethercat-master/status"
	"github.com/samsamfire/ethercat-master/transport"
)

func newTestEngine(opts Options) (*Engine, *transport.Mock) {
	m := transport.NewMock()
	l := alstate.New(m, alstate.Options{})
	return New(m, l, opts), m
}

func TestRecoverNetworkNoopWhenAtTarget(t *testing.T) {
	e, m := newTestEngine(Options{})
	m.AddSlave(0, 1, 1)
	m.SetSlaveState(0, status.Op)
	events := e.RecoverNetwork([]uint16{0}, status.Op)
	require.Len(t, events, 1)
	assert.Equal(t, status.ActionNone, events[0].Action)
}

func TestRecoverNetworkRetriesThenReconfigures(t *testing.T) {
	e, m := newTestEngine(Options{MaxRetryAttempts: 1, MaxReconfigureAttempts: 1})
	m.AddSlave(0, 1, 1)
	m.SetSlaveState(0, status.Init)
	m.SetAlStatusCode(0, 0x0011) // recoverable

	first := e.RecoverNetwork([]uint16{0}, status.Op)
	assert.Equal(t, status.ActionRetryTransition, first[0].Action)

	m.SetSlaveState(0, status.Init)
	second := e.RecoverNetwork([]uint16{0}, status.Op)
	assert.Equal(t, status.ActionReconfigure, second[0].Action)
}

func TestRecoverNetworkNonRecoverableFailsOverImmediately(t *testing.T) {
	e, m := newTestEngine(Options{})
	m.AddSlave(0, 1, 1)
	m.SetSlaveState(0, status.Init)
	m.SetAlStatusCode(0, 0x0014) // NoValidFirmware, non-recoverable

	events := e.RecoverNetwork([]uint16{0}, status.Op)
	assert.Equal(t, status.ActionFailover, events[0].Action)
}

func TestRecoverNetworkOverrideWins(t *testing.T) {
	e, m := newTestEngine(Options{Overrides: map[uint16]status.RecoveryAction{0x0011: status.ActionFailover}})
	m.AddSlave(0, 1, 1)
	m.SetSlaveState(0, status.Init)
	m.SetAlStatusCode(0, 0x0011)

	events := e.RecoverNetwork([]uint16{0}, status.Op)
	assert.Equal(t, status.ActionFailover, events[0].Action)
}

func TestRecoverNetworkVisitsEverySlaveWithoutShortCircuit(t *testing.T) {
	e, m := newTestEngine(Options{})
	m.AddSlave(0, 1, 1)
	// Position 1 is never added: ReadSlaveState errors, but position 2 must
	// still be processed.
	m.AddSlave(2, 2, 2)
	m.SetSlaveState(0, status.Op)
	m.SetSlaveState(2, status.Init)

	events := e.RecoverNetwork([]uint16{0, 1, 2}, status.Op)
	require.Len(t, events, 3)
	assert.NoError(t, events[0].Err)
	assert.Error(t, events[1].Err)
	assert.Equal(t, status.ActionFailover, events[1].Action)
	assert.Equal(t, uint16(2), events[2].Position)
}

func TestRecoverNetworkAtTargetWithNonzeroAlCodeEscalates(t *testing.T) {
	e, m := newTestEngine(Options{MaxRetryAttempts: 1})
	m.AddSlave(0, 1, 1)
	m.SetSlaveState(0, status.Op)
	m.SetAlStatusCode(0, 0x0011) // recoverable, already at target

	events := e.RecoverNetwork([]uint16{0}, status.Op)
	assert.Equal(t, status.ActionRetryTransition, events[0].Action)
}

func TestEventHistoryBounded(t *testing.T) {
	e, m := newTestEngine(Options{MaxEventHistory: 2})
	m.AddSlave(0, 1, 1)
	m.SetSlaveState(0, status.Op)
	for i := 0; i < 5; i++ {
		e.RecoverNetwork([]uint16{0}, status.Op)
	}
	assert.Len(t, e.EventHistory(), 2)
}
