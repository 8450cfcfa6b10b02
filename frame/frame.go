// Package frame implements the EtherCAT datagram wire codec: building and
// parsing EtherCAT datagrams carried inside raw Ethernet frames.
package frame

import (
	"encoding/binary"
	"errors"
)

// EtherType is the fixed EtherCAT EtherType, big-endian on the wire.
const EtherType uint16 = 0x88A4

// Datagram commands used by the core.
type Command uint8

const (
	CmdAPRD Command = 0x01
	CmdAPWR Command = 0x02
	CmdBRD  Command = 0x07
	CmdBWR  Command = 0x08
	CmdLRD  Command = 0x0A
	CmdLWR  Command = 0x0B
	CmdLRW  Command = 0x0C
)

// BroadcastMAC is the destination address used for every EtherCAT frame.
var BroadcastMAC = [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

const (
	ethHeaderLen   = 14 // dst(6) + src(6) + ethertype(2)
	ecatHeaderLen  = 2
	datagramHdrLen = 10 // cmd(1) idx(1) adp(2) ado(2) len_irq(2) irq(2)
	wkcLen         = 2
)

var (
	ErrNoMatch    = errors.New("frame: no matching datagram in frame")
	ErrShortFrame = errors.New("frame: frame shorter than minimum EtherCAT frame")
	ErrPayloadLen = errors.New("frame: payload too long for an 11-bit length field")
)

// Request describes one EtherCAT datagram to build.
type Request struct {
	Command Command
	Index   uint8
	Adp     uint16
	Ado     uint16
	Payload []byte
}

// Datagram is a parsed EtherCAT datagram, including the working counter
// returned by the slaves that processed it.
type Datagram struct {
	Command         Command
	Index           uint8
	Adp             uint16
	Ado             uint16
	Payload         []byte
	WorkingCounter  uint16
}

// AutoIncrementAddress returns the two's-complement auto-increment address
// for slave position p: (0 - p) mod 2^16.
func AutoIncrementAddress(position uint16) uint16 {
	return uint16(-int32(position))
}

// Build encodes srcMAC/dstMAC, the EtherCAT header and one datagram into a
// complete Ethernet frame ready for transmission. The working counter field
// is emitted as zero; it is filled in by the responding slaves.
func Build(srcMAC [6]byte, req Request) ([]byte, error) {
	if len(req.Payload) > 0x7FF {
		return nil, ErrPayloadLen
	}
	datagramLen := datagramHdrLen + len(req.Payload) + wkcLen
	total := ethHeaderLen + ecatHeaderLen + datagramLen

	buf := make([]byte, total)
	copy(buf[0:6], BroadcastMAC[:])
	copy(buf[6:12], srcMAC[:])
	binary.BigEndian.PutUint16(buf[12:14], EtherType)

	// EtherCAT header: low 11 bits = datagram length (including WKC),
	// upper nibble marks type 0x1.
	ecatHdr := uint16(datagramLen&0x07FF) | 0x1000
	binary.LittleEndian.PutUint16(buf[14:16], ecatHdr)

	d := buf[16:]
	d[0] = byte(req.Command)
	d[1] = req.Index
	binary.LittleEndian.PutUint16(d[2:4], req.Adp)
	binary.LittleEndian.PutUint16(d[4:6], req.Ado)
	binary.LittleEndian.PutUint16(d[6:8], uint16(len(req.Payload)&0x07FF))
	binary.LittleEndian.PutUint16(d[8:10], 0) // irq
	copy(d[10:10+len(req.Payload)], req.Payload)
	// wkc left at zero

	return buf, nil
}

// Parse attempts to find, inside frm, a single EtherCAT datagram matching
// wantCmd/wantIndex/wantPayloadLen. It returns ErrShortFrame for a frame too
// short to hold a datagram and ErrNoMatch for any other frame that does not
// match; neither is a hard error, so callers can keep draining the receive
// queue for the response they are actually waiting for.
func Parse(frm []byte, wantCmd Command, wantIndex uint8, wantPayloadLen int) (Datagram, error) {
	if len(frm) < ethHeaderLen+ecatHeaderLen+datagramHdrLen+wkcLen {
		return Datagram{}, ErrShortFrame
	}
	if binary.BigEndian.Uint16(frm[12:14]) != EtherType {
		return Datagram{}, ErrNoMatch
	}
	d := frm[16:]
	if len(d) < datagramHdrLen+wkcLen {
		return Datagram{}, ErrNoMatch
	}
	cmd := Command(d[0])
	idx := d[1]
	payloadLen := int(binary.LittleEndian.Uint16(d[6:8]) & 0x07FF)
	if cmd != wantCmd || idx != wantIndex || payloadLen != wantPayloadLen {
		return Datagram{}, ErrNoMatch
	}
	if len(d) < datagramHdrLen+payloadLen+wkcLen {
		return Datagram{}, ErrNoMatch
	}
	out := Datagram{
		Command: cmd,
		Index:   idx,
		Adp:     binary.LittleEndian.Uint16(d[2:4]),
		Ado:     binary.LittleEndian.Uint16(d[4:6]),
	}
	out.Payload = append([]byte(nil), d[10:10+payloadLen]...)
	out.WorkingCounter = binary.LittleEndian.Uint16(d[10+payloadLen : 10+payloadLen+2])
	return out, nil
}
