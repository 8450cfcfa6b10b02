package coe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpeditedUploadRoundTrip(t *testing.T) {
	req := BuildUploadRequest(0x2000, 0x01)
	assert.Len(t, req, 10)

	// Response literal from spec.md S5.
	resp := []byte{0x03, 0x00, 0x47, 0x00, 0x20, 0x01, 0x11, 0x22, 0x33, 0x00}
	got, err := ParseUploadResponse(resp)
	require.NoError(t, err)
	assert.True(t, got.Expedited)
	assert.EqualValues(t, 0x2000, got.Index)
	assert.EqualValues(t, 0x01, got.SubIndex)
	assert.Equal(t, []byte{0x11, 0x22, 0x33}, got.Data)
}

func TestExpeditedUploadAllSizes(t *testing.T) {
	for n := 1; n <= 4; n++ {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(0x10 + i)
		}
		unused := 4 - n
		resp := make([]byte, 10)
		resp[0] = 0x03
		resp[2] = 0x40 | 0x02 | byte(unused<<2) | 0x01
		resp[3] = 0x00
		resp[4] = 0x20
		resp[5] = 0x01
		copy(resp[6:6+n], data)
		got, err := ParseUploadResponse(resp)
		require.NoError(t, err)
		assert.True(t, got.Expedited)
		assert.Equal(t, data, got.Data)
	}
}

func TestSegmentedUploadReassembly(t *testing.T) {
	payload := []byte("this payload is long enough to require several 7-byte segments of an SDO segmented upload")
	var toggle bool
	var reassembled []byte
	for i := 0; i < len(payload); i += 7 {
		end := i + 7
		last := false
		if end >= len(payload) {
			end = len(payload)
			last = true
		}
		chunk := payload[i:end]
		unused := 7 - len(chunk)
		cmd := byte(0)
		if toggle {
			cmd |= 0x10
		}
		cmd |= byte(unused) << 1
		if last {
			cmd |= 0x01
		}
		resp := make([]byte, 10)
		resp[0] = 0x03
		resp[2] = cmd
		copy(resp[3:3+len(chunk)], chunk)

		seg, err := ParseUploadSegment(resp)
		require.NoError(t, err)
		assert.Equal(t, toggle, seg.Toggle)
		reassembled = append(reassembled, seg.Data...)
		toggle = !toggle
		if last {
			assert.True(t, seg.Last)
			break
		}
	}
	assert.Equal(t, payload, reassembled)
}

func TestDownloadInitiateExpedited(t *testing.T) {
	data := []byte{0xAA, 0xBB}
	buf := BuildDownloadInitiate(0x6000, 0x01, data)
	assert.EqualValues(t, 0x21|0x02|(2<<2), buf[2])
	assert.Equal(t, data, buf[6:8])
}

func TestDownloadSegmentTooBig(t *testing.T) {
	_, err := BuildDownloadSegment(make([]byte, 8), false, true)
	assert.ErrorIs(t, err, ErrSdoSegmentTooBig)
}

func TestAbortNeverMatchesUpload(t *testing.T) {
	abort := BuildAbort(0x2000, 0x01, 0x06020000)
	// The request is an SDO-request service, so parsing it as a response is
	// a protocol mismatch on service id but this exercises the abort
	// decode path directly via a constructed response-typed frame.
	resp := append([]byte(nil), abort...)
	binaryLEPutUint16(resp[0:2], ServiceSdoResponse)
	_, err := ParseUploadResponse(resp)
	var abortErr *AbortError
	require.ErrorAs(t, err, &abortErr)
	assert.EqualValues(t, 0x06020000, abortErr.Code)
}

func binaryLEPutUint16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}
