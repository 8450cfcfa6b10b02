package coe

import (
	"encoding/binary"
	"errors"
)

// MailboxTypeEoe and MailboxTypeFoe are the mailbox header's Type nibble
// values for EoE and FoE traffic, the counterparts of ServiceType (0x03)
// for CoE (mailbox.go), grounded on
// original_source/src/transport/linux_raw_socket_transport_foe_eoe.cpp:20-21
// (kMailboxTypeEoe=0x02, kMailboxTypeFoe=0x04).
const (
	MailboxTypeEoe uint8 = 0x02
	MailboxTypeFoe uint8 = 0x04
)

// FoE opcodes, carried as a little-endian 16-bit value at payload offset 0,
// grounded on linux_raw_socket_transport_foe_eoe.cpp:22-27.
const (
	foeOpReadRequest  uint16 = 0x0001
	foeOpWriteRequest uint16 = 0x0002
	foeOpData         uint16 = 0x0003
	foeOpAck          uint16 = 0x0004
	foeOpError        uint16 = 0x0005
	foeOpBusy         uint16 = 0x0006
)

var ErrFoEPayloadShort = errors.New("coe: foe payload too short")

// FoEError carries a FoE ERROR frame's 32-bit error code.
type FoEError struct {
	Code uint32
}

func (e *FoEError) Error() string {
	return "coe: foe error 0x" + itoa32hex(e.Code)
}

func itoa32hex(v uint32) string {
	const hex = "0123456789abcdef"
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = hex[v&0xF]
		v >>= 4
	}
	return string(b)
}

// Wire layout for every FoE frame, mailbox Type = MailboxTypeFoe:
//
//	READ_REQUEST / WRITE_REQUEST: op(2) | password(4) | fileName | 0x00
//	DATA:                         op(2) | packetNumber(4) | data
//	ACK:                          op(2) | packetNumber(4)
//	ERROR:                        op(2) | errorCode(4)
//	BUSY:                         op(2)
//
// (linux_raw_socket_transport_foe_eoe.cpp:78-247).

// BuildFoEReadRequest encodes a FoE READ_REQUEST for fileName.
func BuildFoEReadRequest(fileName string, password uint32) []byte {
	buf := make([]byte, 6+len(fileName)+1)
	binary.LittleEndian.PutUint16(buf[0:2], foeOpReadRequest)
	binary.LittleEndian.PutUint32(buf[2:6], password)
	copy(buf[6:], fileName)
	return buf
}

// BuildFoEWriteRequest encodes a FoE WRITE_REQUEST for fileName.
func BuildFoEWriteRequest(fileName string, password uint32) []byte {
	buf := make([]byte, 6+len(fileName)+1)
	binary.LittleEndian.PutUint16(buf[0:2], foeOpWriteRequest)
	binary.LittleEndian.PutUint32(buf[2:6], password)
	copy(buf[6:], fileName)
	return buf
}

// BuildFoEData encodes one FoE DATA segment carrying packetNumber and data.
func BuildFoEData(packetNumber uint32, data []byte) []byte {
	buf := make([]byte, 6+len(data))
	binary.LittleEndian.PutUint16(buf[0:2], foeOpData)
	binary.LittleEndian.PutUint32(buf[2:6], packetNumber)
	copy(buf[6:], data)
	return buf
}

// BuildFoEAck encodes a FoE ACK echoing packetNumber.
func BuildFoEAck(packetNumber uint32) []byte {
	buf := make([]byte, 6)
	binary.LittleEndian.PutUint16(buf[0:2], foeOpAck)
	binary.LittleEndian.PutUint32(buf[2:6], packetNumber)
	return buf
}

// BuildFoEError encodes a FoE ERROR frame.
func BuildFoEError(code uint32) []byte {
	buf := make([]byte, 6)
	binary.LittleEndian.PutUint16(buf[0:2], foeOpError)
	binary.LittleEndian.PutUint32(buf[2:6], code)
	return buf
}

// BuildFoEBusy encodes a FoE BUSY frame, sent by a slave asking the master
// to retry its read without treating it as a failure.
func BuildFoEBusy() []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf[0:2], foeOpBusy)
	return buf
}

// FoESegment is a decoded FoE frame, discriminated by Op.
type FoESegment struct {
	Op           uint16
	PacketNumber uint32
	Data         []byte
	Busy         bool
	Err          *FoEError
}

// ParseFoE decodes any FoE mailbox frame.
func ParseFoE(payload []byte) (FoESegment, error) {
	if len(payload) < 2 {
		return FoESegment{}, ErrFoEPayloadShort
	}
	op := binary.LittleEndian.Uint16(payload[0:2])
	seg := FoESegment{Op: op}
	switch op {
	case foeOpData:
		if len(payload) < 6 {
			return FoESegment{}, ErrFoEPayloadShort
		}
		seg.PacketNumber = binary.LittleEndian.Uint32(payload[2:6])
		seg.Data = append([]byte(nil), payload[6:]...)
	case foeOpAck:
		if len(payload) < 6 {
			return FoESegment{}, ErrFoEPayloadShort
		}
		seg.PacketNumber = binary.LittleEndian.Uint32(payload[2:6])
	case foeOpError:
		if len(payload) < 6 {
			return FoESegment{}, ErrFoEPayloadShort
		}
		seg.Err = &FoEError{Code: binary.LittleEndian.Uint32(payload[2:6])}
	case foeOpBusy:
		seg.Busy = true
	case foeOpReadRequest, foeOpWriteRequest:
		// password at payload[2:6], null-terminated file name from payload[6:].
	}
	return seg, nil
}

// EoE (Ethernet-over-EtherCAT) is pure raw-Ethernet-frame passthrough
// inside the mailbox payload: the payload of a MailboxTypeEoe frame IS the
// Ethernet frame, byte for byte, with no embedded fragment header
// (linux_raw_socket_transport_foe_eoe.cpp:249-308, eoeSend/eoeReceive pass
// the caller's frame straight to mailboxWriteFrame/out of
// mailboxReadFrameExpected). A frame that does not fit the mailbox write
// window is rejected by the mailbox layer rather than being split here.
