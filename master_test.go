package ethercat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsamfire/ethercat-master/status"
	"github.com/samsamfire/ethercat-master/transport"
)

func scenarioConfig() (NetworkConfiguration, *transport.Mock) {
	mock := transport.NewMock()
	mock.AddSlave(1, 0x2, 0x1)
	mock.AddSlave(2, 0x2, 0x2)
	cfg := NetworkConfiguration{
		Slaves: []SlaveConfig{
			{Name: "EL1008", Position: 1},
			{Name: "EL2008", Position: 2},
		},
		Signals: []SignalBinding{
			{Name: "InputA", Direction: SignalInput, SlaveName: "EL1008", ByteOffset: 0, BitOffset: 0},
			{Name: "OutputA", Direction: SignalOutput, SlaveName: "EL2008", ByteOffset: 0, BitOffset: 0},
		},
		ProcessImageInputBytes:  1,
		ProcessImageOutputBytes: 1,
	}
	return cfg, mock
}

// TestMockOpCycle is spec.md scenario S1.
func TestMockOpCycle(t *testing.T) {
	cfg, mock := scenarioConfig()
	master := New(mock, Options{})
	require.NoError(t, master.Configure(cfg))

	var gotValue bool
	var callbackCount int
	require.NoError(t, master.OnInputChange("InputA", func(v bool) {
		callbackCount++
		gotValue = v
	}))
	require.NoError(t, master.Start())
	defer master.Stop()

	mock.SetInputImage([]byte{0x01})
	_, err := master.RunCycle()
	require.NoError(t, err)
	assert.Equal(t, 1, callbackCount)
	assert.True(t, gotValue)

	require.NoError(t, master.SetOutputByName("OutputA", true))
	_, err = master.RunCycle()
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), mock.LastOutputs()[0]&0x01)
}

// TestRecoveryRetryScenario is spec.md scenario S2.
func TestRecoveryRetryScenario(t *testing.T) {
	cfg, mock := scenarioConfig()
	master := New(mock, Options{
		Recovery: RecoveryOptions{Enable: true, MaxRetriesPerSlave: 3, MaxReconfigurePerSlave: 2, MaxEventHistory: 16},
	})
	require.NoError(t, master.Configure(cfg))
	require.NoError(t, master.Start())
	defer master.Stop()

	mock.SetAlStatusCode(2, 0x0017)
	mock.SetSlaveState(2, status.SafeOp)
	mock.InjectExchangeFailures(1)

	_, err := master.RunCycle()
	require.Error(t, err)
	assert.NotNil(t, master.Stats().LastError)

	_, err = master.RunCycle()
	require.NoError(t, err)

	events := master.RecoveryEvents()
	require.NotEmpty(t, events)
	var sawSlave2 bool
	for _, ev := range events {
		if ev.Position == 2 {
			sawSlave2 = true
			assert.Contains(t, []status.RecoveryAction{status.ActionRetryTransition, status.ActionReconfigure}, ev.Action)
		}
	}
	assert.True(t, sawSlave2)
}

func TestSetOutputByNameRejectsInputSignal(t *testing.T) {
	cfg, mock := scenarioConfig()
	master := New(mock, Options{})
	require.NoError(t, master.Configure(cfg))
	err := master.SetOutputByName("InputA", true)
	assert.ErrorIs(t, err, ErrWrongDirection)
}

func TestReadInputByNameRejectsOutputSignal(t *testing.T) {
	cfg, mock := scenarioConfig()
	master := New(mock, Options{})
	require.NoError(t, master.Configure(cfg))
	_, err := master.ReadInputByName("OutputA")
	assert.ErrorIs(t, err, ErrWrongDirection)
}

func TestRunCycleBeforeStartFails(t *testing.T) {
	cfg, mock := scenarioConfig()
	master := New(mock, Options{})
	require.NoError(t, master.Configure(cfg))
	_, err := master.RunCycle()
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestCyclesTotalAccounting(t *testing.T) {
	cfg, mock := scenarioConfig()
	master := New(mock, Options{})
	require.NoError(t, master.Configure(cfg))
	require.NoError(t, master.Start())
	defer master.Stop()

	mock.InjectExchangeFailures(1)
	_, _ = master.RunCycle()
	_, _ = master.RunCycle()
	_, _ = master.RunCycle()

	stats := master.Stats()
	assert.Equal(t, uint64(3), stats.CyclesTotal)
	assert.Equal(t, uint64(1), stats.CyclesFailed)
}
