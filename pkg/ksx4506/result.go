package ksx4506

// ParseResult is returned by every codec step. It is both a status and a
// control-flow signal: callers stop as soon as Failed reports true.
type ParseResult int

const (
	ErrorMalformedPacket ParseResult = -2
	ErrorUnknown         ParseResult = -1
	OKNone               ParseResult = 0
	OKPeerDetected       ParseResult = 1
	OKStateUpdated       ParseResult = 2
	OKErrorReceived      ParseResult = 3
)

// Failed reports whether r is a failure.
func (r ParseResult) Failed() bool { return r <= ErrorUnknown }

func (r ParseResult) String() string {
	switch r {
	case ErrorMalformedPacket:
		return "malformed_packet"
	case ErrorUnknown:
		return "unknown"
	case OKNone:
		return "none"
	case OKPeerDetected:
		return "peer_detected"
	case OKStateUpdated:
		return "state_updated"
	case OKErrorReceived:
		return "error_received"
	default:
		return "invalid"
	}
}

// Max returns the greater of two results.
func Max(a, b ParseResult) ParseResult {
	if a > b {
		return a
	}
	return b
}
