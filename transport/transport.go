// Package transport defines the polymorphic capability set an EtherCAT
// master drives the wire through, and two concrete implementations: a
// mock used in tests (mirroring the teacher's virtual.go VirtualBus) and a
// raw AF_PACKET implementation for Linux link-layer sockets
// (transport/rawsocket).
package transport

import (
	"errors"
	"time"

	"github.com/samsamfire/ethercat-master/coe"
	"github.com/samsamfire/ethercat-master/status"
)

// MailboxMode selects how the mailbox transaction loop gates reads on the
// SM1 status register (spec.md §4.3).
type MailboxMode uint8

const (
	// ModeStrict requires the SM-status gate before every read.
	ModeStrict MailboxMode = iota
	// ModePoll ignores the status bit and reads every cycle.
	ModePoll
	// ModeHybrid reads every few cycles even without the status bit, to
	// tolerate slaves that do not update it reliably.
	ModeHybrid
)

// RetryConfig governs datagram-level retry, applied only to socket errors
// and timeouts — never to an accepted-but-abort CoE response (spec.md §4.3,
// §7).
type RetryConfig struct {
	Retries       int
	BackoffBaseMs int
	BackoffMaxMs  int
}

// Options configures a Transport.
type Options struct {
	CycleTimeout           time.Duration
	LogicalAddress         uint32
	ExpectedWorkingCounter uint16
	MaxFramesPerCycle      int
	EnableRedundancy       bool
	MailboxWriteWindow     MailboxWindow
	MailboxReadWindow      MailboxWindow
	MailboxMode            MailboxMode
	HybridPollEveryNCycles int
	EmergencyQueueLimit    int
	Retry                  RetryConfig
}

// MailboxWindow is a configured mailbox SM window. The rawsocket transport
// always uses the configured windows; it does not read SM0/SM1 from the
// slave.
type MailboxWindow struct {
	Start  uint16
	Length uint16
}

// ExchangeResult reports the outcome of one cyclic exchange.
type ExchangeResult struct {
	WorkingCounter uint16
	UsedRedundant  bool
}

// SlaveProbe is one position's raw discovery reading, produced by
// DiscoverTopology; the topology package turns a slice of these into a
// topology.Snapshot and diffs it against the previous one.
type SlaveProbe struct {
	Position       uint16
	Online         bool
	EscType        uint8
	EscRevision    uint8
	VendorId       uint32
	ProductCode    uint32
	IdentityFromCoE bool
	IdentityFromSii bool
}

// MailboxErrorClass classifies a mailbox-transaction failure (spec.md §7).
type MailboxErrorClass uint8

const (
	MailboxErrNone MailboxErrorClass = iota
	MailboxErrTimeout
	MailboxErrBusy
	MailboxErrStaleCounter
	MailboxErrParseReject
	MailboxErrAbort
	MailboxErrTransportIo
)

var (
	ErrTimeout        = errors.New("transport: timed out waiting for a matching datagram")
	ErrFrameBudget    = errors.New("transport: exhausted max frames per cycle without a match")
	ErrWorkingCounter = errors.New("transport: working counter below expected")
	ErrNotSupported   = errors.New("transport: capability not supported by this transport")
	ErrNotOpen        = errors.New("transport: not open")
)

// ProcessImageMapping describes, per slave, the logical/physical window the
// SAFE-OP bootstrap must program into an FMMU entry (spec.md §4.3).
type ProcessImageMapping struct {
	Position       uint16
	OutputLogical  uint32
	OutputBytes    int
	InputLogical   uint32
	InputBytes     int
}

// Transport is the capability set an EtherCAT master drives the wire
// through. Optional capabilities (FoE/EoE, redundancy) return
// ErrNotSupported from implementations that do not back them; this mirrors
// the teacher's Bus interface, generalized from "send one CAN frame" to the
// larger set of cyclic/mailbox/topology/DC operations an EtherCAT master
// needs (spec.md §9 Design notes).
type Transport interface {
	Open() error
	Close() error

	// Exchange performs one cyclic LWR(outputs)+LRD(inputs) pair (or an
	// equivalent single LRW) at the configured logical address, retrying
	// once on the redundant link if configured.
	Exchange(outputs []byte, inputs []byte) (ExchangeResult, error)

	RequestNetworkState(target status.SlaveState) error
	ReadNetworkState() (status.SlaveState, error)
	RequestSlaveState(position uint16, target status.SlaveState) error
	ReadSlaveState(position uint16) (status.SlaveState, error)
	ReadAlStatusCode(position uint16) (uint16, error)

	ReconfigureSlave(position uint16) error
	FailoverSlave(position uint16) error

	SdoUpload(position uint16, index uint16, subIndex uint8) ([]byte, error)
	SdoDownload(position uint16, index uint16, subIndex uint8, data []byte) error
	ConfigurePdo(position uint16, writes []coe.SdoWrite) error
	PollEmergency(position uint16) []coe.Emergency

	DiscoverTopology(maxPositions int) ([]SlaveProbe, error)
	IsRedundancyLinkHealthy() bool

	ConfigureProcessImage(mapping []ProcessImageMapping) error

	ReadSii(position uint16, wordAddress uint16) (uint32, error)
	ReadDcSystemTime(position uint16) (int64, error)
	WriteDcSystemTimeOffset(position uint16, offsetNs int64) error

	FoeRead(position uint16, fileName string) ([]byte, error)
	FoeWrite(position uint16, fileName string, data []byte) error
	EoeSend(position uint16, frame []byte) error
	EoeReceive(position uint16) ([]byte, error)

	// LastMailboxErrorClass reports the class of the most recent mailbox
	// failure, for diagnostics (spec.md S6).
	LastMailboxErrorClass() MailboxErrorClass
}
