package session

// Observer is the consumer callback set a Device Session is constructed
// with (§6). The source's "device callbacks" record is naturally
// modeled as a single interface with default no-op methods (design
// note §9) — embed NoopObserver and override only the callbacks a
// consumer cares about, the same shape the teacher's single-field
// StateCallback generalizes to when a protocol needs more than one hook.
type Observer interface {
	// OnStatusChange fires on every status transition (§4.5).
	OnStatusChange(status Status)
	// OnConnected fires once a connection reaches StatusConnected.
	OnConnected(identity DeviceIdentity)
	// OnDisconnected fires exactly once per non-no-op Disconnect call.
	OnDisconnected(reason DisconnectReason)
	// OnRequestDeviceError fires when an interactive device request, or
	// any step of the connect sequence, fails.
	OnRequestDeviceError(err error)
	// OnPreviousUnavailable fires when a previous identity was supplied
	// but did not advertise within ConnectPreviousTimeout.
	OnPreviousUnavailable(device *DeviceIdentity)
	// OnDataReceived fires once per decoded record, after cache update.
	OnDataReceived(kind string, record Record)
	// OnError fires for recoverable errors worth surfacing to a log
	// sink beyond the Session's own logger (decode failures, etc).
	OnError(err error)
	// OnFatal fires when Disconnect itself fails — the Go-idiomatic
	// replacement for the source's "request host reload" escalation
	// (design note §9). The daemon's default Observer logs at Error
	// level; a host embedding the Session may trigger a restart.
	OnFatal(err error)
}

// NoopObserver implements Observer with no-op methods. Embed it in a
// consumer's own observer type to override only the callbacks needed.
type NoopObserver struct{}

var _ Observer = NoopObserver{}

func (NoopObserver) OnStatusChange(Status)                {}
func (NoopObserver) OnConnected(DeviceIdentity)            {}
func (NoopObserver) OnDisconnected(DisconnectReason)       {}
func (NoopObserver) OnRequestDeviceError(error)            {}
func (NoopObserver) OnPreviousUnavailable(*DeviceIdentity) {}
func (NoopObserver) OnDataReceived(string, Record)         {}
func (NoopObserver) OnError(error)                         {}
func (NoopObserver) OnFatal(error)                         {}
