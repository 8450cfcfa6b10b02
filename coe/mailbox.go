// Package coe implements the ESC mailbox wire frame and the CoE
// (CANopen-over-EtherCAT) SDO, PDO-configuration and emergency encodings
// carried inside it. The package is a pure codec: it never touches a
// socket, mirroring the way the teacher's sdo_common.go / sdo_client.go
// separate wire encoding from the transaction loop that drives it.
package coe

import (
	"encoding/binary"
	"errors"
)

// ServiceType is the mailbox service-type nibble; CoE uses 0x03.
const ServiceType uint8 = 0x03

// CoE service identifiers, carried as the first 16 bits of the mailbox
// payload.
const (
	ServiceEmergency  uint16 = 0x0001
	ServiceSdoRequest uint16 = 0x0002
	ServiceSdoResponse uint16 = 0x0003
)

const mailboxHeaderLen = 6

var (
	ErrMailboxTooShort = errors.New("coe: mailbox frame shorter than header")
	ErrNotCoE          = errors.New("coe: mailbox frame is not a CoE service")
	ErrCounterZero     = errors.New("coe: rolling counter 0 is reserved")
)

// MailboxFrame is one ESC mailbox frame: len(2) | address(2) | chan/prio(1)
// | type/counter(1) | payload.
type MailboxFrame struct {
	Channel uint8 // low 6 bits of byte 4
	Prio    uint8 // high 2 bits of byte 4
	Type    uint8 // low 4 bits of byte 5 (service nibble)
	Counter uint8 // bits 4..6 of byte 5, 1..7 rolling, 0 reserved
	Payload []byte
}

// EncodeMailbox builds the 6-byte ESC mailbox header followed by payload.
// Address is always written as zero per spec.md §4.2.
func EncodeMailbox(f MailboxFrame) ([]byte, error) {
	if f.Counter == 0 {
		return nil, ErrCounterZero
	}
	out := make([]byte, mailboxHeaderLen+len(f.Payload))
	binary.LittleEndian.PutUint16(out[0:2], uint16(len(f.Payload)))
	binary.LittleEndian.PutUint16(out[2:4], 0)
	out[4] = f.Channel&0x3F | (f.Prio&0x03)<<6
	out[5] = f.Type&0x0F | (f.Counter&0x07)<<4
	copy(out[mailboxHeaderLen:], f.Payload)
	return out, nil
}

// DecodeMailbox parses an ESC mailbox frame. It does not reject non-CoE
// frames by itself; callers use Type to discard what they are not
// interested in, per the mailbox transaction loop's discard contract.
func DecodeMailbox(raw []byte) (MailboxFrame, error) {
	if len(raw) < mailboxHeaderLen {
		return MailboxFrame{}, ErrMailboxTooShort
	}
	length := int(binary.LittleEndian.Uint16(raw[0:2]))
	if len(raw) < mailboxHeaderLen+length {
		return MailboxFrame{}, ErrMailboxTooShort
	}
	f := MailboxFrame{
		Channel: raw[4] & 0x3F,
		Prio:    (raw[4] >> 6) & 0x03,
		Type:    raw[5] & 0x0F,
		Counter: (raw[5] >> 4) & 0x07,
	}
	f.Payload = append([]byte(nil), raw[mailboxHeaderLen:mailboxHeaderLen+length]...)
	return f, nil
}

// Counter is a 1..7 rolling mailbox counter, skipping the reserved value 0.
type Counter struct {
	value uint8
}

// NewCounter returns a counter that starts at 1 on the first Next call.
func NewCounter() *Counter {
	return &Counter{value: 0}
}

// Next advances and returns the next non-zero counter value.
func (c *Counter) Next() uint8 {
	c.value++
	if c.value == 0 || c.value > 7 {
		c.value = 1
	}
	return c.value
}

// ServiceID reads the 16-bit CoE service identifier that heads the mailbox
// payload for a CoE-typed mailbox frame.
func ServiceID(payload []byte) (uint16, error) {
	if len(payload) < 2 {
		return 0, ErrMailboxTooShort
	}
	return binary.LittleEndian.Uint16(payload[0:2]), nil
}
