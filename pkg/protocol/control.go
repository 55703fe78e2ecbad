package protocol

// DenyReason explains why the host refused a connection attempt.
type DenyReason uint8

const (
	DenyUnknown                DenyReason = 0x00
	DenyInvalidChallengeAnswer DenyReason = 0x01 // Answer did not verify
	DenyNoSpace                DenyReason = 0x02 // Host at capacity
	DenyTimeout                DenyReason = 0x03 // No answer in time
)

// String returns the string representation of the deny reason.
func (r DenyReason) String() string {
	switch r {
	case DenyInvalidChallengeAnswer:
		return "InvalidChallengeAnswer"
	case DenyNoSpace:
		return "NoSpace"
	case DenyTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// DisconnectReason indicates why an authenticated connection ended.
type DisconnectReason uint8

const (
	DisconnectUnknown      DisconnectReason = 0x00
	DisconnectRequested    DisconnectReason = 0x01 // Closed by the remote or local application
	DisconnectFailedAck    DisconnectReason = 0x02 // Reliable resend limit exceeded
	DisconnectTimeout      DisconnectReason = 0x03 // Handshake or transport timeout
	DisconnectHostShutdown DisconnectReason = 0x04 // Host stopped
	DisconnectKicked       DisconnectReason = 0x05 // Removed by the host
	DisconnectTransport    DisconnectReason = 0x06 // Transport reported the connection lost
)

// String returns the string representation of the disconnect reason.
func (r DisconnectReason) String() string {
	switch r {
	case DisconnectRequested:
		return "Requested"
	case DisconnectFailedAck:
		return "FailedAck"
	case DisconnectTimeout:
		return "Timeout"
	case DisconnectHostShutdown:
		return "HostShutdown"
	case DisconnectKicked:
		return "Kicked"
	case DisconnectTransport:
		return "Transport"
	default:
		return "Unknown"
	}
}
