package ethercat

import "errors"

// Configuration errors (spec.md §7): fatal at configure time, no partial
// state is retained.
var (
	ErrNoSignals              = errors.New("ethercat: network configuration declares no signals")
	ErrEmptyProcessImage      = errors.New("ethercat: process image input and output sizes are both zero")
	ErrDuplicateSignalName    = errors.New("ethercat: duplicate signal name")
	ErrUnknownSlave           = errors.New("ethercat: signal references an unknown slave name")
	ErrInvalidBitOffset       = errors.New("ethercat: bit offset must be less than 8")
	ErrSignalOffsetOutOfRange = errors.New("ethercat: signal byte offset lies outside its process image")
)

// Runtime errors.
var (
	ErrNotConfigured = errors.New("ethercat: master is not configured")
	ErrNotStarted    = errors.New("ethercat: master is not started")
	ErrUnknownSignal = errors.New("ethercat: unknown signal name")
	ErrWrongDirection = errors.New("ethercat: signal direction does not allow this access")
)
