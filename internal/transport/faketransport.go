package transport

import (
	"context"
	"errors"
	"sync"
)

// ErrNotSupported is returned by Fake methods that a test has not
// configured, mirroring a real adapter's behavior on an unimplemented
// capability.
var ErrNotSupported = errors.New("transport: operation not configured on fake")

// Fake is an in-memory Transport implementation for tests, grounded in
// the teacher's mockSender pattern (internal/bfd/session_test.go): a
// hand-rolled test double with channels the test can push into and
// assertions the test can read back, rather than a mocking framework.
type Fake struct {
	mu sync.Mutex

	KnownDevices    []Device
	RequestedDevice Device
	RequestErr      error
	WatchSupported  bool

	WriteLog [][]byte
}

var _ Transport = (*Fake)(nil)

// ListKnownDevices returns the configured KnownDevices slice.
func (f *Fake) ListKnownDevices(_ context.Context) ([]Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.KnownDevices, nil
}

// RequestDevice returns the configured RequestedDevice or RequestErr.
func (f *Fake) RequestDevice(_ context.Context, _ DeviceFilter) (Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RequestErr != nil {
		return nil, f.RequestErr
	}
	if f.RequestedDevice == nil {
		return nil, ErrNotSupported
	}
	return f.RequestedDevice, nil
}

// SupportsAdvertisementWatch returns the configured WatchSupported flag.
func (f *Fake) SupportsAdvertisementWatch() bool {
	return f.WatchSupported
}

// FakeDevice is an in-memory Device for tests.
type FakeDevice struct {
	DeviceID   string
	DeviceName string

	mu            sync.Mutex
	server        *FakeServer
	disconnected  chan struct{}
	advertisement chan Advertisement

	DisconnectCalled bool
	DisconnectErr    error
}

var _ Device = (*FakeDevice)(nil)

// NewFakeDevice creates a FakeDevice bound to server, ready to connect.
func NewFakeDevice(id, name string, server *FakeServer) *FakeDevice {
	return &FakeDevice{
		DeviceID:      id,
		DeviceName:    name,
		server:        server,
		disconnected:  make(chan struct{}),
		advertisement: make(chan Advertisement, 4),
	}
}

func (d *FakeDevice) ID() string   { return d.DeviceID }
func (d *FakeDevice) Name() string { return d.DeviceName }

// ConnectGATT returns the device's bound FakeServer.
func (d *FakeDevice) ConnectGATT(_ context.Context) (Server, error) {
	return d.server, nil
}

// Disconnect records the call and returns the configured DisconnectErr.
func (d *FakeDevice) Disconnect(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DisconnectCalled = true
	return d.DisconnectErr
}

// Disconnected returns the channel the test closes to simulate an
// external (unsolicited) GATT disconnect.
func (d *FakeDevice) Disconnected() <-chan struct{} {
	return d.disconnected
}

// SimulateExternalDisconnect closes the Disconnected channel once.
func (d *FakeDevice) SimulateExternalDisconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-d.disconnected:
		return // already closed
	default:
		close(d.disconnected)
	}
}

// WatchAdvertisements returns a channel the test can push Advertisement
// values into via PushAdvertisement.
func (d *FakeDevice) WatchAdvertisements(ctx context.Context) (<-chan Advertisement, error) {
	out := make(chan Advertisement)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case adv, ok := <-d.advertisement:
				if !ok {
					return
				}
				select {
				case out <- adv:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// PushAdvertisement delivers one advertisement event to any active
// WatchAdvertisements call.
func (d *FakeDevice) PushAdvertisement(adv Advertisement) {
	select {
	case d.advertisement <- adv:
	default:
	}
}

// FakeServer is an in-memory Server for tests.
type FakeServer struct {
	Services map[string]*FakeService
}

var _ Server = (*FakeServer)(nil)

func (s *FakeServer) PrimaryService(_ context.Context, uuid string) (Service, error) {
	svc, ok := s.Services[uuid]
	if !ok {
		return nil, ErrNotSupported
	}
	return svc, nil
}

// FakeService is an in-memory Service for tests.
type FakeService struct {
	Characteristics map[string]*FakeCharacteristic
}

var _ Service = (*FakeService)(nil)

func (s *FakeService) Characteristic(_ context.Context, uuid string) (Characteristic, error) {
	ch, ok := s.Characteristics[uuid]
	if !ok {
		return nil, ErrNotSupported
	}
	return ch, nil
}

// FakeCharacteristic is an in-memory Characteristic for tests. Writes
// are recorded in WriteLog; WriteErr, when set, is returned by every
// write call instead of succeeding.
type FakeCharacteristic struct {
	mu            sync.Mutex
	notifications chan []byte
	started       bool

	WriteLog [][]byte
	WriteErr error
}

var _ Characteristic = (*FakeCharacteristic)(nil)

// NewFakeCharacteristic creates a FakeCharacteristic with a buffered
// notification channel.
func NewFakeCharacteristic() *FakeCharacteristic {
	return &FakeCharacteristic{notifications: make(chan []byte, 32)}
}

func (c *FakeCharacteristic) StartNotifications(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	return nil
}

func (c *FakeCharacteristic) StopNotifications(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
	return nil
}

func (c *FakeCharacteristic) WriteWithResponse(_ context.Context, payload []byte) error {
	return c.write(payload)
}

func (c *FakeCharacteristic) WriteWithoutResponse(_ context.Context, payload []byte) error {
	return c.write(payload)
}

func (c *FakeCharacteristic) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.WriteErr != nil {
		return c.WriteErr
	}
	cp := append([]byte(nil), payload...)
	c.WriteLog = append(c.WriteLog, cp)
	return nil
}

func (c *FakeCharacteristic) Notifications() <-chan []byte {
	return c.notifications
}

// PushNotification delivers one fragment to the characteristic's
// notification stream, as a real device would via GATT indications.
func (c *FakeCharacteristic) PushNotification(fragment []byte) {
	c.notifications <- fragment
}

// Writes returns a copy of the recorded write log.
func (c *FakeCharacteristic) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.WriteLog))
	copy(out, c.WriteLog)
	return out
}
