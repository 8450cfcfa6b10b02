package ethercat

import "fmt"

// SignalDirection is the flow direction of a process-image signal relative
// to the master: Input signals are produced by a slave and read by the
// application; Output signals are produced by the application and written
// to a slave (spec.md §3).
type SignalDirection uint8

const (
	SignalInput SignalDirection = iota
	SignalOutput
)

func (d SignalDirection) String() string {
	if d == SignalOutput {
		return "Output"
	}
	return "Input"
}

// SlaveConfig is one ordered entry of the declared network's slave chain.
type SlaveConfig struct {
	Name        string
	Alias       uint16
	Position    uint16
	VendorId    uint32
	ProductCode uint32
}

// SignalBinding maps a logical application signal onto a bit inside one
// slave's process-image window.
type SignalBinding struct {
	Name       string
	Direction  SignalDirection
	SlaveName  string
	ByteOffset int
	BitOffset  uint8
}

// NetworkConfiguration is the input-only description of a declared
// EtherCAT network: its slave chain, signal bindings and process-image
// sizes (spec.md §3). It is supplied by an external loader (ENI/ESI
// parsing and signal-mapping loaders are explicit non-goals of this
// module, spec.md §1) and accepted here as a plain Go value.
type NetworkConfiguration struct {
	Slaves                  []SlaveConfig
	Signals                 []SignalBinding
	ProcessImageInputBytes  int
	ProcessImageOutputBytes int
}

// validate enforces spec.md §3's invariants: logical names unique, each
// signal's byte offset inside the image of its direction, bit offset < 8,
// at least one signal, image sizes not both zero.
func (cfg NetworkConfiguration) validate() error {
	if len(cfg.Signals) == 0 {
		return ErrNoSignals
	}
	if cfg.ProcessImageInputBytes == 0 && cfg.ProcessImageOutputBytes == 0 {
		return ErrEmptyProcessImage
	}

	slaveNames := make(map[string]bool, len(cfg.Slaves))
	for _, s := range cfg.Slaves {
		slaveNames[s.Name] = true
	}

	seen := make(map[string]bool, len(cfg.Signals))
	for _, sig := range cfg.Signals {
		if seen[sig.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateSignalName, sig.Name)
		}
		seen[sig.Name] = true

		if !slaveNames[sig.SlaveName] {
			return fmt.Errorf("%w: signal %q references slave %q", ErrUnknownSlave, sig.Name, sig.SlaveName)
		}
		if sig.BitOffset >= 8 {
			return fmt.Errorf("%w: signal %q has bit offset %d", ErrInvalidBitOffset, sig.Name, sig.BitOffset)
		}

		imageSize := cfg.ProcessImageOutputBytes
		if sig.Direction == SignalInput {
			imageSize = cfg.ProcessImageInputBytes
		}
		if sig.ByteOffset < 0 || sig.ByteOffset >= imageSize {
			return fmt.Errorf("%w: signal %q byte offset %d, image size %d", ErrSignalOffsetOutOfRange, sig.Name, sig.ByteOffset, imageSize)
		}
	}
	return nil
}

// slavePositions returns the auto-increment positions of every configured
// slave, in declaration order.
func (cfg NetworkConfiguration) slavePositions() []uint16 {
	positions := make([]uint16, len(cfg.Slaves))
	for i, s := range cfg.Slaves {
		positions[i] = s.Position
	}
	return positions
}

func (cfg NetworkConfiguration) slaveByName(name string) (SlaveConfig, bool) {
	for _, s := range cfg.Slaves {
		if s.Name == name {
			return s, true
		}
	}
	return SlaveConfig{}, false
}
