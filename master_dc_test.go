package ethercat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCycleDcDegradeLatchesMasterDegraded(t *testing.T) {
	cfg, mock := scenarioConfig()
	mock.WriteDcSystemTimeOffset(2, 2000)

	master := New(mock, Options{
		DcClosedLoop: DcClosedLoopOptions{
			Enabled:                true,
			ReferenceSlavePosition: 0,
			Alpha:                  1,
			Kp:                     0.1,
			Ki:                     0,
		},
		DcSyncQuality: DcSyncQualityOptions{
			Enabled:                         true,
			MaxPhaseErrorNs:                 50,
			LockAcquireInWindowCycles:       1,
			MaxConsecutiveOutOfWindowCycles: 1,
		},
		DcJitterWindowLen: 4,
	})
	require.NoError(t, master.Configure(cfg))
	require.NoError(t, master.Start())
	defer master.Stop()

	_, err := master.RunCycle()
	require.NoError(t, err)

	assert.True(t, master.Stats().Degraded)
}

func TestRunCycleDcDisabledSkipsStep(t *testing.T) {
	cfg, mock := scenarioConfig()
	master := New(mock, Options{})
	require.NoError(t, master.Configure(cfg))
	require.NoError(t, master.Start())
	defer master.Stop()

	_, err := master.RunCycle()
	require.NoError(t, err)
	assert.False(t, master.Stats().Degraded)
}
