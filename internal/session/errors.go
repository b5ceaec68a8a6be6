package session

import "errors"

// Sentinel errors for the session package (§7 of the design document).
var (
	// ErrSessionBusy indicates Connect was called while the session is
	// already scanning, connecting, or connected.
	ErrSessionBusy = errors.New("session: connect already in progress or connected")

	// ErrNotConnected indicates SendCommand was called with no live
	// characteristic handle.
	ErrNotConnected = errors.New("session: not connected")

	// ErrCommandTimeout indicates a command's per-command timer expired
	// before the transport write completed.
	ErrCommandTimeout = errors.New("session: command timed out")

	// ErrTransportFailure wraps any failure surfaced by the Transport
	// during connect, service/characteristic fetch, or write.
	ErrTransportFailure = errors.New("session: transport failure")

	// ErrDisconnectFailed indicates Disconnect's own cleanup panicked.
	// Errors returned by StopNotifications or Device.Disconnect are only
	// logged and do not produce it. The session escalates this to
	// Observer.OnFatal rather than reproducing the source's dead
	// error-accumulation catch clause (design note §9).
	ErrDisconnectFailed = errors.New("session: disconnect failed")
)
