// Package status holds the small set of types and register constants
// shared by every core component: the AL-state ladder, the recovery
// engine, the transport and the topology reconciler. Keeping them in one
// leaf package (the way the teacher keeps its wire constants in
// od_constants.go) avoids an import cycle between those packages and the
// root orchestrator that wires them together.
package status

// SlaveState is the EtherCAT AL (application layer) state. The wire
// encoding uses the low nibble of the AL Status register.
type SlaveState uint8

const (
	Init      SlaveState = 0x01
	PreOp     SlaveState = 0x02
	Bootstrap SlaveState = 0x03
	SafeOp    SlaveState = 0x04
	Op        SlaveState = 0x08
)

func (s SlaveState) String() string {
	switch s {
	case Init:
		return "Init"
	case PreOp:
		return "PreOp"
	case Bootstrap:
		return "Bootstrap"
	case SafeOp:
		return "SafeOp"
	case Op:
		return "Op"
	default:
		return "Unknown"
	}
}

// Register addresses used by the AL ladder, recovery engine, transport and
// topology reconciler (spec.md §4.1–§4.7).
const (
	RegAlControl    uint16 = 0x0120
	RegAlStatus     uint16 = 0x0130
	RegEscType      uint16 = 0x0008
	RegEscRevision  uint16 = 0x000A
	RegSiiAddress   uint16 = 0x0504
	RegSiiControl   uint16 = 0x0502
	RegSiiData      uint16 = 0x0508
	RegSmStatus     uint16 = 0x0805
	RegDcSystemTime uint16 = 0x0910
	RegDcSysTimeOff uint16 = 0x0920
)

const (
	siiReadCommand uint16 = 0x0100
)

// SiiReadCommand is the EEPROM read opcode written to RegSiiControl.
func SiiReadCommand() uint16 { return siiReadCommand }

// RecoveryAction is the action chosen by the recovery engine for one
// slave's diagnostic pass (spec.md §3, §4.5).
type RecoveryAction uint8

const (
	ActionNone RecoveryAction = iota
	ActionRetryTransition
	ActionReconfigure
	ActionFailover
)

func (a RecoveryAction) String() string {
	switch a {
	case ActionNone:
		return "None"
	case ActionRetryTransition:
		return "RetryTransition"
	case ActionReconfigure:
		return "Reconfigure"
	case ActionFailover:
		return "Failover"
	default:
		return "Unknown"
	}
}

// AlStatusInterpretation is the decoded meaning of an AL status code.
type AlStatusInterpretation struct {
	Code        uint16
	Name        string
	Description string
	Recoverable bool
}

// alStatusTable is the fixed decode table for AL status codes (spec.md
// §4.5). Entries not listed decode to an "unknown" interpretation that is
// conservatively treated as non-recoverable.
var alStatusTable = map[uint16]AlStatusInterpretation{
	0x0000: {0x0000, "NoError", "No error", true},
	0x0011: {0x0011, "InvalidRequestedStateChange", "Invalid requested state change", true},
	0x0012: {0x0012, "UnknownRequestedState", "Unknown requested state", true},
	0x0013: {0x0013, "BootstrapNotSupported", "Bootstrap not supported", false},
	0x0014: {0x0014, "NoValidFirmware", "No valid firmware", false},
	0x0016: {0x0016, "InvalidMailboxConfiguration", "Invalid mailbox configuration", true},
	0x0017: {0x0017, "InvalidSyncManagerConfiguration", "Invalid sync manager configuration", true},
	0x0018: {0x0018, "NoValidInputs", "No valid inputs available", true},
	0x0019: {0x0019, "NoValidOutputs", "No valid outputs available", true},
	0x001B: {0x001B, "SyncError", "Synchronization error", true},
	0x001E: {0x001E, "InvalidOutputConfiguration", "Invalid output configuration", true},
	0x001F: {0x001F, "InvalidInputConfiguration", "Invalid input configuration", true},
	0x0020: {0x0020, "InvalidWatchdogConfiguration", "Invalid watchdog configuration", true},
	0x0030: {0x0030, "InvalidDcSyncConfiguration", "Invalid distributed clocks sync configuration", true},
	0x0035: {0x0035, "NoAccessAllowed", "No access allowed to slave", false},
}

// DecodeAlStatus decodes a raw AL status code into its fixed interpretation.
// Unknown codes are reported as non-recoverable so the recovery policy does
// not loop forever retrying an unmodeled condition.
func DecodeAlStatus(code uint16) AlStatusInterpretation {
	if v, ok := alStatusTable[code]; ok {
		return v
	}
	return AlStatusInterpretation{Code: code, Name: "Unknown", Description: "Unrecognized AL status code", Recoverable: false}
}
