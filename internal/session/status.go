package session

// Status is the Device Session's connection lifecycle state (§3, §4.5).
type Status uint8

const (
	// StatusDisconnected is the initial state and the terminal state of
	// every Disconnect call.
	StatusDisconnected Status = iota
	// StatusScanning is entered on Connect while resolving which device
	// to use (previous-device watch or interactive request).
	StatusScanning
	// StatusConnecting is entered once a device has been chosen, while
	// the GATT server/service/characteristic are being fetched.
	StatusConnecting
	// StatusConnected is entered once notifications are subscribed,
	// just before the bootstrap commands are sent.
	StatusConnected
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusScanning:
		return "scanning"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// DisconnectReason names why a session left StatusConnected (or aborted
// before reaching it).
type DisconnectReason uint8

const (
	// ReasonUser is a caller-initiated disconnect.
	ReasonUser DisconnectReason = iota
	// ReasonExternal is an unsolicited transport-level disconnect event.
	ReasonExternal
	// ReasonInactivity is the watchdog firing with no command sent and
	// no notification received within the protocol's inactivity timeout.
	ReasonInactivity
	// ReasonError is any failure during connect (GATT connect,
	// service/characteristic fetch, or notification subscription). A
	// failed bootstrap command is reported through Observer.OnError and
	// does not disconnect.
	ReasonError
)

// String implements fmt.Stringer.
func (r DisconnectReason) String() string {
	switch r {
	case ReasonUser:
		return "user"
	case ReasonExternal:
		return "external"
	case ReasonInactivity:
		return "inactivity"
	case ReasonError:
		return "error"
	default:
		return "unknown"
	}
}

// DeviceIdentity names the BMS the session is (or was) connected to.
type DeviceIdentity struct {
	ID   string
	Name string
}
