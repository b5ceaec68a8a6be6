package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lowvolt/jkble/internal/framer"
	"github.com/lowvolt/jkble/internal/jkbinary"
	"github.com/lowvolt/jkble/internal/protocol"
	"github.com/lowvolt/jkble/internal/transport"
)

// Record is the decoded field set delivered to an Observer, keyed by
// item name. It is a plain alias over the protocol package's decode
// output so callers never need to import internal/protocol themselves.
type Record = protocol.Record

// internalKeys names the fixed set of item keys that are stripped from
// a Record before it reaches the cache and Observer.OnDataReceived
// (§4.5: "partition fields into a public record and an internal record
// by a fixed set of internal key names"). The frame checksum is wire
// plumbing, not a BMS reading, so it never leaves the Session.
var internalKeys = map[string]bool{
	"checksum":    true,
	"frameHeader": true,
}

// disconnectTimeout bounds the transport calls Disconnect itself makes
// (StopNotifications, Device.Disconnect) so a wedged adapter can't hang
// disconnect forever.
const disconnectTimeout = 5 * time.Second

type cacheEntry struct {
	record    Record
	timestamp time.Time
}

// MetricsSink receives session lifecycle and traffic counters. A host
// wires in *internal/metrics.Collector (or any type structurally
// satisfying this interface) via WithMetrics; a Session with no sink
// configured simply skips every call.
type MetricsSink interface {
	SessionConnected()
	SessionDisconnected(deviceID, reason string)
	FrameDecoded(deviceID, kind string)
	FrameDropped(deviceID, reason string)
	CommandSent(deviceID, command string)
	CommandTimedOut(deviceID, command string)
	CommandOverflowed(deviceID, command string)
}

// Option configures optional Session behavior at construction time.
type Option func(*Session)

// WithMetrics attaches a MetricsSink that the Session reports to.
func WithMetrics(m MetricsSink) Option {
	return func(s *Session) { s.metrics = m }
}

// Session is a Device Session: the single point of contact between a
// consumer and one BMS, owning the connect/disconnect lifecycle, the
// command transmitter, and notification-to-record dispatch (§4.5).
//
// Every exported method takes the session's own mutex for its full
// duration, including any transport round-trip or post-send sleep.
// That serializes connect, disconnect, and command sends against each
// other and against notification handling, which is the Go rendering
// of the source's single-threaded cooperative model (§5): rather than
// confining all work to one goroutine via channels, mutual exclusion
// gives the same "nothing touches session state concurrently"
// guarantee with a much smaller surface.
type Session struct {
	spec      *protocol.Specification
	transport transport.Transport
	decoder   *protocol.Decoder
	assembler *framer.Assembler
	logger    *slog.Logger
	observer  Observer
	metrics   MetricsSink

	mu                sync.Mutex
	status            Status
	previousIdentity  *DeviceIdentity
	identity          *DeviceIdentity
	device            transport.Device
	characteristic    transport.Characteristic
	cache             map[string]cacheEntry
	watchdog          watchdog
	notifCancel       context.CancelFunc
	externalWatchStop context.CancelFunc
}

// New constructs a disconnected Session for spec. observer may be nil,
// in which case a NoopObserver is used.
func New(spec *protocol.Specification, t transport.Transport, logger *slog.Logger, observer Observer, opts ...Option) (*Session, error) {
	dec, err := protocol.NewDecoder(spec)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if observer == nil {
		observer = NoopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		spec:      spec,
		transport: t,
		decoder:   dec,
		assembler: framer.New(spec, dec),
		logger:    logger.With("component", "session"),
		observer:  observer,
		cache:     make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// deviceIDLocked returns the connected (or most recently connected)
// device ID for metrics labeling, or "unknown" before any identity has
// been resolved.
func (s *Session) deviceIDLocked() string {
	if s.identity != nil {
		return s.identity.ID
	}
	return "unknown"
}

// Status returns the session's current connection state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Identity returns the device the session is (or was most recently)
// connected to, or nil if it has never connected.
func (s *Session) Identity() *DeviceIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// PreviousIdentity returns the identity a caller supplied to the most
// recent Connect call, so a host can persist it across restarts and
// hand it back in on the next Connect to attempt a previous-device
// reconnect.
func (s *Session) PreviousIdentity() *DeviceIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previousIdentity
}

func (s *Session) setStatusLocked(status Status) {
	s.status = status
	s.observer.OnStatusChange(status)
}

// Connect resolves a device (reconnecting to previous if supplied and
// supported, otherwise prompting an interactive request), establishes
// the GATT connection, subscribes to notifications, and sends the
// bootstrap commands (§4.5). Returns ErrSessionBusy if the session is
// already scanning, connecting, or connected.
func (s *Session) Connect(ctx context.Context, previous *DeviceIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusDisconnected {
		return ErrSessionBusy
	}

	s.previousIdentity = previous
	s.setStatusLocked(StatusScanning)

	device, err := s.resolveDeviceLocked(ctx, previous)
	if err != nil {
		s.observer.OnRequestDeviceError(err)
		s.setStatusLocked(StatusDisconnected)
		return err
	}
	if device == nil {
		// previous device did not come back within its window; already
		// reported via OnPreviousUnavailable inside resolveDeviceLocked.
		s.setStatusLocked(StatusDisconnected)
		return nil
	}

	s.setStatusLocked(StatusConnecting)

	server, err := device.ConnectGATT(ctx)
	if err != nil {
		return s.connectFailedLocked(fmt.Errorf("connect gatt: %w", errors.Join(ErrTransportFailure, err)))
	}
	svc, err := server.PrimaryService(ctx, s.spec.ServiceUUID)
	if err != nil {
		return s.connectFailedLocked(fmt.Errorf("primary service: %w", errors.Join(ErrTransportFailure, err)))
	}
	char, err := svc.Characteristic(ctx, s.spec.CharacteristicUUID)
	if err != nil {
		return s.connectFailedLocked(fmt.Errorf("characteristic: %w", errors.Join(ErrTransportFailure, err)))
	}
	if err := char.StartNotifications(ctx); err != nil {
		return s.connectFailedLocked(fmt.Errorf("start notifications: %w", errors.Join(ErrTransportFailure, err)))
	}

	s.device = device
	s.characteristic = char
	s.identity = &DeviceIdentity{ID: device.ID(), Name: device.Name()}
	s.assembler.Reset()

	notifCtx, notifCancel := context.WithCancel(context.Background())
	s.notifCancel = notifCancel
	go s.pumpNotifications(notifCtx, char)

	watchCtx, watchCancel := context.WithCancel(context.Background())
	s.externalWatchStop = watchCancel
	go s.watchExternalDisconnect(watchCtx, device)

	s.setStatusLocked(StatusConnected)
	s.observer.OnConnected(*s.identity)
	if s.metrics != nil {
		s.metrics.SessionConnected()
	}
	s.registerActivityLocked()

	if err := s.sendCommandLocked(ctx, "GET_SETTINGS", nil); err != nil {
		s.observer.OnError(fmt.Errorf("bootstrap GET_SETTINGS: %w", err))
	}
	if err := s.sendCommandLocked(ctx, "GET_DEVICE_INFO", nil); err != nil {
		s.observer.OnError(fmt.Errorf("bootstrap GET_DEVICE_INFO: %w", err))
	}

	return nil
}

func (s *Session) connectFailedLocked(err error) error {
	s.observer.OnRequestDeviceError(err)
	s.disconnectLocked(ReasonError)
	return err
}

// resolveDeviceLocked picks the device to connect to. A nil, nil return
// means the previous device never reappeared and the caller should
// leave the session disconnected without treating it as an error.
func (s *Session) resolveDeviceLocked(ctx context.Context, previous *DeviceIdentity) (transport.Device, error) {
	if previous == nil || !s.transport.SupportsAdvertisementWatch() {
		device, err := s.transport.RequestDevice(ctx, transport.DeviceFilter{ServiceUUID: s.spec.ServiceUUID})
		if err != nil {
			return nil, fmt.Errorf("request device: %w", errors.Join(ErrTransportFailure, err))
		}
		return device, nil
	}

	devices, err := s.transport.ListKnownDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list known devices: %w", errors.Join(ErrTransportFailure, err))
	}
	var match transport.Device
	for _, d := range devices {
		if d.ID() == previous.ID {
			match = d
			break
		}
	}
	if match == nil {
		s.observer.OnPreviousUnavailable(previous)
		return nil, nil
	}

	watchCtx, cancel := context.WithTimeout(ctx, s.spec.ConnectPreviousTimeout)
	defer cancel()
	adverts, err := match.WatchAdvertisements(watchCtx)
	if err != nil {
		return nil, fmt.Errorf("watch advertisements: %w", errors.Join(ErrTransportFailure, err))
	}
	select {
	case _, ok := <-adverts:
		if !ok {
			s.observer.OnPreviousUnavailable(previous)
			return nil, nil
		}
		return match, nil
	case <-watchCtx.Done():
		s.observer.OnPreviousUnavailable(previous)
		return nil, nil
	}
}

// Disconnect tears down the session's connection, if any, for reason.
// Calling Disconnect on an already-disconnected session is a no-op
// (invariant: idempotent disconnect).
func (s *Session) Disconnect(reason DisconnectReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnectLocked(reason)
}

func (s *Session) disconnectLocked(reason DisconnectReason) (err error) {
	if s.status == StatusDisconnected {
		return nil
	}
	wasConnected := s.status == StatusConnected

	defer func() {
		if r := recover(); r != nil {
			fatalErr := fmt.Errorf("%w: panic during cleanup: %v", ErrDisconnectFailed, r)
			s.observer.OnFatal(fatalErr)
			err = fatalErr
		}
	}()

	if reason != ReasonExternal && s.characteristic != nil {
		ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		if stopErr := s.characteristic.StopNotifications(ctx); stopErr != nil {
			s.logger.Warn("stop notifications failed", "err", stopErr)
		}
		time.Sleep(100 * time.Millisecond)
		if s.device != nil {
			if devErr := s.device.Disconnect(ctx); devErr != nil {
				s.logger.Warn("transport disconnect failed", "err", devErr)
			}
		}
		cancel()
		time.Sleep(100 * time.Millisecond)
	}

	if s.notifCancel != nil {
		s.notifCancel()
		s.notifCancel = nil
	}
	if s.externalWatchStop != nil {
		s.externalWatchStop()
		s.externalWatchStop = nil
	}
	s.watchdog.Stop()
	s.assembler.Reset()
	s.cache = make(map[string]cacheEntry)
	s.device = nil
	s.characteristic = nil

	if wasConnected && s.metrics != nil {
		s.metrics.SessionDisconnected(s.deviceIDLocked(), reason.String())
	}
	s.setStatusLocked(StatusDisconnected)
	s.observer.OnDisconnected(reason)
	return nil
}

// registerActivityLocked (re)arms the inactivity watchdog. Called before
// every command write and at the start of every handled notification (§5).
func (s *Session) registerActivityLocked() {
	if s.spec.InactivityTimeout <= 0 {
		return
	}
	s.watchdog.Arm(s.spec.InactivityTimeout, s.onWatchdogFire)
}

func (s *Session) onWatchdogFire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusConnected {
		return
	}
	s.disconnectLocked(ReasonInactivity)
}

// watchExternalDisconnect waits for the transport to report an
// unsolicited link drop and folds it into the normal disconnect path.
func (s *Session) watchExternalDisconnect(ctx context.Context, device transport.Device) {
	select {
	case <-ctx.Done():
		return
	case <-device.Disconnected():
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.status == StatusDisconnected {
			return
		}
		s.disconnectLocked(ReasonExternal)
	}
}

// pumpNotifications drains the characteristic's notification stream
// into the frame assembler until ctx is cancelled (on disconnect) or
// the channel closes.
func (s *Session) pumpNotifications(ctx context.Context, char transport.Characteristic) {
	for {
		select {
		case <-ctx.Done():
			return
		case fragment, ok := <-char.Notifications():
			if !ok {
				return
			}
			s.handleNotification(fragment)
		}
	}
}

func (s *Session) handleNotification(fragment []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusConnected {
		return
	}

	s.registerActivityLocked()
	result := s.assembler.Feed(fragment)
	for _, action := range result.Actions {
		s.logAction(action)
	}
	if result.Emitted {
		s.dispatchLocked(*result.Response, result.Record)
	}
}

func (s *Session) logAction(a framer.Action) {
	switch a.Kind {
	case framer.ActionWarnOrphanFragment:
		s.logger.Warn("dropped orphan fragment")
		s.recordFrameDropLocked("orphan_fragment")
	case framer.ActionWarnOverLength:
		s.logger.Warn("frame exceeded declared length")
	case framer.ActionChecksumFailed:
		s.logger.Warn("checksum failed, buffer discarded")
		s.recordFrameDropLocked("checksum_failed")
	case framer.ActionDecodeFailed:
		s.logger.Warn("decode failed", "err", a.Err)
		s.observer.OnError(a.Err)
		s.recordFrameDropLocked("decode_failed")
	}
}

func (s *Session) recordFrameDropLocked(reason string) {
	if s.metrics != nil {
		s.metrics.FrameDropped(s.deviceIDLocked(), reason)
	}
}

// dispatchLocked partitions a freshly decoded record into public and
// internal fields, stamps it with the time since the previous record of
// the same kind, updates the cache, and notifies the Observer (§4.5).
func (s *Session) dispatchLocked(resp protocol.Response, record Record) {
	now := time.Now()
	prev, hadPrev := s.cache[resp.Kind]

	public := make(Record, len(record)+2)
	for k, v := range record {
		if internalKeys[k] {
			continue
		}
		public[k] = v
	}
	public["timestamp"] = now
	if hadPrev {
		public["timeSinceLastOne"] = now.Sub(prev.timestamp)
	} else {
		public["timeSinceLastOne"] = nil
	}

	s.cache[resp.Kind] = cacheEntry{record: public, timestamp: now}
	if s.metrics != nil {
		s.metrics.FrameDecoded(s.deviceIDLocked(), resp.Kind)
	}
	s.observer.OnDataReceived(resp.Kind, public)
}

// LastRecord returns the most recently cached record of the given
// response kind, and whether one has been received yet.
func (s *Session) LastRecord(kind string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[kind]
	return entry.record, ok
}

// SendCommand writes the named command, with payload appended after the
// protocol's command header and code, per §4.4.
func (s *Session) SendCommand(ctx context.Context, name string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendCommandLocked(ctx, name, payload)
}

func (s *Session) sendCommandLocked(ctx context.Context, name string, payload []byte) error {
	cmd, ok := s.spec.CommandByName(name)
	if !ok {
		return fmt.Errorf("%s: %w", name, protocol.ErrUnknownCommand)
	}
	if s.characteristic == nil {
		return fmt.Errorf("send %s: %w", name, ErrNotConnected)
	}

	frame, err := buildCommandFrame(s.spec, cmd, payload)
	if err != nil {
		if s.metrics != nil {
			s.metrics.CommandOverflowed(s.deviceIDLocked(), name)
		}
		return err
	}

	// §5: "registerActivity() is invoked ... before writing in
	// sendCommand, making the watchdog conservative" — rearmed before
	// the write goroutine is even started, so a slow-but-legitimate
	// in-flight write can never race the previous deadline.
	s.registerActivityLocked()

	done := make(chan error, 1)
	go func() {
		if len(payload) > 0 {
			done <- s.characteristic.WriteWithResponse(ctx, frame)
			return
		}
		done <- s.characteristic.WriteWithoutResponse(ctx, frame)
	}()

	timer := time.NewTimer(cmd.Timeout)
	defer timer.Stop()

	select {
	case writeErr := <-done:
		if writeErr != nil {
			return fmt.Errorf("write %s: %w", name, errors.Join(ErrTransportFailure, writeErr))
		}
	case <-timer.C:
		if s.metrics != nil {
			s.metrics.CommandTimedOut(s.deviceIDLocked(), name)
		}
		return fmt.Errorf("%s: %w", name, ErrCommandTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	if s.metrics != nil {
		s.metrics.CommandSent(s.deviceIDLocked(), name)
	}
	if cmd.PostSendWait > 0 {
		time.Sleep(cmd.PostSendWait)
	}
	return nil
}

// buildCommandFrame assembles [CommandHeader, code, payload, zero
// padding] truncated to CommandLength, with the last byte overwritten
// by the 8-bit additive checksum of everything before it. Overflow
// (header+code+payload exceeding CommandLength) is a fatal error, never
// silently truncated (§4.4, testable scenario E).
func buildCommandFrame(spec *protocol.Specification, cmd protocol.Command, payload []byte) ([]byte, error) {
	total := len(spec.CommandHeader) + len(cmd.Code) + len(payload)
	if total > spec.CommandLength {
		return nil, fmt.Errorf("%s: %d bytes exceeds command length %d: %w", cmd.Name, total, spec.CommandLength, protocol.ErrCommandOverflow)
	}

	frame := make([]byte, spec.CommandLength)
	n := copy(frame, spec.CommandHeader)
	n += copy(frame[n:], cmd.Code)
	copy(frame[n:], payload)
	frame[len(frame)-1] = jkbinary.Checksum8(frame[:len(frame)-1])
	return frame, nil
}

// ToggleCharging writes the charging-enable command. The settings
// re-request always runs, even when the toggle write itself fails, so
// the cached settings record never silently drifts from the device's
// actual state (§4.5 guaranteed-execution clause).
func (s *Session) ToggleCharging(ctx context.Context, on bool) error {
	return s.toggleLocked(ctx, "TOGGLE_CHARGING", on)
}

// ToggleDischarging writes the discharging-enable command, with the
// same guaranteed GET_SETTINGS re-request as ToggleCharging.
func (s *Session) ToggleDischarging(ctx context.Context, on bool) error {
	return s.toggleLocked(ctx, "TOGGLE_DISCHARGING", on)
}

func (s *Session) toggleLocked(ctx context.Context, command string, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload := []byte{0x00}
	if on {
		payload[0] = 0x01
	}
	toggleErr := s.sendCommandLocked(ctx, command, payload)
	settingsErr := s.sendCommandLocked(ctx, "GET_SETTINGS", nil)
	if toggleErr != nil {
		return toggleErr
	}
	return settingsErr
}
