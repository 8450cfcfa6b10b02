package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMAC = [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}

func TestBuildParseRoundTrip(t *testing.T) {
	req := Request{
		Command: CmdLWR,
		Index:   7,
		Adp:     0,
		Ado:     0x1000,
		Payload: []byte{0x01, 0x02, 0x03, 0x04},
	}
	raw, err := Build(testMAC, req)
	require.NoError(t, err)

	got, err := Parse(raw, CmdLWR, 7, len(req.Payload))
	require.NoError(t, err)
	assert.Equal(t, req.Command, got.Command)
	assert.Equal(t, req.Index, got.Index)
	assert.Equal(t, req.Adp, got.Adp)
	assert.Equal(t, req.Ado, got.Ado)
	assert.Equal(t, req.Payload, got.Payload)
	assert.EqualValues(t, 0, got.WorkingCounter)
}

func TestParseRejectsMismatch(t *testing.T) {
	raw, err := Build(testMAC, Request{Command: CmdLRD, Index: 3, Payload: []byte{0xAA}})
	require.NoError(t, err)

	_, err = Parse(raw, CmdLWR, 3, 1)
	assert.ErrorIs(t, err, ErrNoMatch)

	_, err = Parse(raw, CmdLRD, 4, 1)
	assert.ErrorIs(t, err, ErrNoMatch)

	_, err = Parse(raw, CmdLRD, 3, 2)
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestAutoIncrementAddress(t *testing.T) {
	assert.EqualValues(t, 0, AutoIncrementAddress(0))
	assert.EqualValues(t, 0xFFFF, AutoIncrementAddress(1))
	assert.EqualValues(t, 0xFFFE, AutoIncrementAddress(2))
}

func TestEtherTypeAndCommands(t *testing.T) {
	raw, err := Build(testMAC, Request{Command: CmdBRD, Index: 1, Ado: 0x0130})
	require.NoError(t, err)
	assert.EqualValues(t, EtherType, uint16(raw[12])<<8|uint16(raw[13]))
	assert.Equal(t, BroadcastMAC[:], raw[0:6])
	assert.EqualValues(t, CmdBRD, raw[16])
}
