package coe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailboxRoundTrip(t *testing.T) {
	f := MailboxFrame{Channel: 0, Prio: 0, Type: ServiceType, Counter: 3, Payload: []byte{0x01, 0x02, 0x03}}
	raw, err := EncodeMailbox(f)
	require.NoError(t, err)

	got, err := DecodeMailbox(raw)
	require.NoError(t, err)
	assert.Equal(t, f.Type, got.Type)
	assert.Equal(t, f.Counter, got.Counter)
	assert.Equal(t, f.Payload, got.Payload)
}

func TestMailboxCounterSkipsZero(t *testing.T) {
	_, err := EncodeMailbox(MailboxFrame{Counter: 0})
	assert.ErrorIs(t, err, ErrCounterZero)
}

func TestCounterRollsOverSkippingZero(t *testing.T) {
	c := NewCounter()
	seen := make([]uint8, 0, 14)
	for i := 0; i < 14; i++ {
		seen = append(seen, c.Next())
	}
	for _, v := range seen {
		assert.NotZero(t, v)
		assert.LessOrEqual(t, v, uint8(7))
	}
	assert.Equal(t, seen[0:7], seen[7:14])
}

func TestEmergencyRoundTrip(t *testing.T) {
	e := Emergency{ErrorCode: 0x1234, ErrorRegister: 0x05, ManufacturerData: [5]byte{1, 2, 3, 4, 5}}
	raw := BuildEmergency(e)
	got, err := ParseEmergency(raw)
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestPdoMappingWrites(t *testing.T) {
	entries := []PdoEntry{
		{Index: 0x6000, SubIndex: 0x01, BitLen: 8},
		{Index: 0x6000, SubIndex: 0x02, BitLen: 16},
	}
	writes := BuildPdoMappingWrites(RxPdoBase, RxSmAssignIdx, entries)
	require.Len(t, writes, 5)
	assert.Equal(t, SdoWrite{Index: RxPdoBase, SubIndex: 0, Data: []byte{0}}, writes[0])
	assert.Equal(t, SdoWrite{Index: RxPdoBase, SubIndex: 0, Data: []byte{2}}, writes[3])
	assert.Equal(t, RxSmAssignIdx, writes[4].Index)
}

func TestEoEPassthroughRoundTrip(t *testing.T) {
	ethernetFrame := make([]byte, 200)
	for i := range ethernetFrame {
		ethernetFrame[i] = byte(i)
	}
	raw, err := EncodeMailbox(MailboxFrame{Type: MailboxTypeEoe, Counter: 1, Payload: ethernetFrame})
	require.NoError(t, err)

	got, err := DecodeMailbox(raw)
	require.NoError(t, err)
	assert.Equal(t, MailboxTypeEoe, got.Type)
	assert.Equal(t, ethernetFrame, got.Payload)
}

func TestFoEReadWriteRoundTrip(t *testing.T) {
	req := BuildFoEReadRequest("firmware.bin", 0)
	seg, err := ParseFoE(req)
	require.NoError(t, err)
	assert.Equal(t, foeOpReadRequest, seg.Op)

	data := BuildFoEData(1, []byte{0xDE, 0xAD})
	seg, err = ParseFoE(data)
	require.NoError(t, err)
	assert.EqualValues(t, 1, seg.PacketNumber)
	assert.Equal(t, []byte{0xDE, 0xAD}, seg.Data)
}

func TestFoEBusyAndErrorParse(t *testing.T) {
	busy, err := ParseFoE(BuildFoEBusy())
	require.NoError(t, err)
	assert.True(t, busy.Busy)

	errSeg, err := ParseFoE(BuildFoEError(0x8001))
	require.NoError(t, err)
	require.NotNil(t, errSeg.Err)
	assert.EqualValues(t, 0x8001, errSeg.Err.Code)
}
