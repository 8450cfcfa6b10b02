package coe

import "encoding/binary"

// Emergency is a decoded CoE emergency message.
type Emergency struct {
	ErrorCode     uint16
	ErrorRegister uint8
	ManufacturerData [5]byte
}

// ParseEmergency decodes a CoE emergency mailbox payload.
func ParseEmergency(payload []byte) (Emergency, error) {
	if len(payload) < 10 {
		return Emergency{}, ErrSdoPayloadShort
	}
	svc, err := ServiceID(payload)
	if err != nil {
		return Emergency{}, err
	}
	if svc != ServiceEmergency {
		return Emergency{}, ErrSdoUnexpected
	}
	var e Emergency
	e.ErrorCode = binary.LittleEndian.Uint16(payload[2:4])
	e.ErrorRegister = payload[4]
	copy(e.ManufacturerData[:], payload[5:10])
	return e, nil
}

// BuildEmergency encodes a CoE emergency payload (used by the mock
// transport to inject emergencies in tests).
func BuildEmergency(e Emergency) []byte {
	buf := make([]byte, 10)
	binary.LittleEndian.PutUint16(buf[0:2], ServiceEmergency)
	binary.LittleEndian.PutUint16(buf[2:4], e.ErrorCode)
	buf[4] = e.ErrorRegister
	copy(buf[5:10], e.ManufacturerData[:])
	return buf
}
