package alstate

import "errors"

var (
	ErrTransitionTimeout = errors.New("alstate: state transition did not complete before the deadline")
	ErrUnexpectedState   = errors.New("alstate: slave reported a state outside the requested ladder step")
)
