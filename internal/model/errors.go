package model

import "errors"

// Error taxonomy for the flow-control engine. None of these are fatal to the
// process; a session-level failure only tears down that session's state.
var (
	// ErrSessionNotReady is returned for events addressed to a switch that is
	// not in the Active state. The event is dropped and logged.
	ErrSessionNotReady = errors.New("session not ready")

	// ErrClassifierUnavailable indicates the model-based classifier has no
	// loaded model. The caller degrades to flood-only forwarding.
	ErrClassifierUnavailable = errors.New("classifier unavailable")

	// ErrMalformedPacket indicates an unparseable frame. The packet is
	// dropped without flooding since no valid destination exists.
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrUnknownDestination is not a failure: the destination MAC has not
	// been learned yet and the packet must be flooded.
	ErrUnknownDestination = errors.New("unknown destination")
)
