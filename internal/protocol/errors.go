package protocol

import "errors"

var (
	// errIntervals is returned by Validate when a protocol declares a
	// non-positive send interval for any peer.
	errIntervals = errors.New("protocol: all send intervals must be positive")

	// errSockets is returned by Validate when a protocol is missing one of
	// its four required sockets. Per the spec this is a programmer-contract
	// violation, not a transient runtime error.
	errSockets = errors.New("protocol: all four sockets (fms, radio, robot, netconsole) are required")
)
