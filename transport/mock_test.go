package transport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsamfire/ethercat-master/coe"
	"github.com/samsamfire/ethercat-master/status"
)

func TestMockExchangeCopiesInputImage(t *testing.T) {
	m := NewMock()
	require.NoError(t, m.Open())
	m.SetInputImage([]byte{0xAA, 0xBB})
	inputs := make([]byte, 2)
	res, err := m.Exchange([]byte{0x01, 0x02}, inputs)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), res.WorkingCounter)
	assert.Equal(t, []byte{0xAA, 0xBB}, inputs)
	assert.Equal(t, []byte{0x01, 0x02}, m.LastOutputs())
}

func TestMockExchangeInjectedFailure(t *testing.T) {
	m := NewMock()
	require.NoError(t, m.Open())
	m.InjectExchangeFailures(2)
	_, err := m.Exchange(nil, nil)
	assert.Error(t, err)
	_, err = m.Exchange(nil, nil)
	assert.Error(t, err)
	_, err = m.Exchange(nil, nil)
	assert.NoError(t, err)
}

func TestMockSlaveStateLifecycle(t *testing.T) {
	m := NewMock()
	m.AddSlave(0, 0x1234, 0x5678)
	require.NoError(t, m.RequestSlaveState(0, status.PreOp))
	got, err := m.ReadSlaveState(0)
	require.NoError(t, err)
	assert.Equal(t, status.PreOp, got)
}

func TestMockSdoUploadMissingObjectAborts(t *testing.T) {
	m := NewMock()
	m.AddSlave(0, 0x1234, 0x5678)
	_, err := m.SdoUpload(0, 0x2000, 0x01)
	require.Error(t, err)
	var abortErr *coe.AbortError
	require.True(t, errors.As(err, &abortErr))
	assert.EqualValues(t, 0x06020000, abortErr.Code)
}

func TestMockSdoUploadDownloadRoundTrip(t *testing.T) {
	m := NewMock()
	m.AddSlave(0, 0x1234, 0x5678)
	require.NoError(t, m.SdoDownload(0, 0x2000, 0x01, []byte{0x11, 0x22, 0x33}))
	data, err := m.SdoUpload(0, 0x2000, 0x01)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x11, 0x22, 0x33}, data)
}

func TestMockSdoTimeoutClassification(t *testing.T) {
	m := NewMock()
	m.AddSlave(0, 0x1234, 0x5678)
	m.ForceSdoTimeout(true)
	_, err := m.SdoUpload(0, 0x2000, 0x01)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, MailboxErrTimeout, m.LastMailboxErrorClass())
}

func TestMockDiscoverTopologyRespectsMaxPositions(t *testing.T) {
	m := NewMock()
	m.AddSlave(0, 1, 1)
	m.AddSlave(1, 2, 2)
	m.AddSlave(2, 3, 3)
	probes, err := m.DiscoverTopology(2)
	require.NoError(t, err)
	assert.Len(t, probes, 2)
	assert.Equal(t, uint16(0), probes[0].Position)
	assert.Equal(t, uint16(1), probes[1].Position)
}

func TestMockEmergencyQueueDrainsOnce(t *testing.T) {
	m := NewMock()
	m.AddSlave(0, 1, 1)
	m.QueueEmergency(0, coe.Emergency{ErrorCode: 0x1000})
	ev := m.PollEmergency(0)
	require.Len(t, ev, 1)
	assert.Empty(t, m.PollEmergency(0))
}

var _ Transport = (*Mock)(nil)
