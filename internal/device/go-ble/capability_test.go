package goble

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/srg/pulsezone/internal/device"
	"github.com/srg/pulsezone/internal/testutils"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const peripheralID = "aa:bb:cc:dd:ee:01"

// fakeDevice stubs the parts of ble.Device the capability uses.
type fakeDevice struct {
	ble.Device
	mock.Mock
	adverts []ble.Advertisement
}

func (d *fakeDevice) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	if err := d.Called(allowDup).Error(0); err != nil {
		return err
	}
	for _, a := range d.adverts {
		h(a)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (d *fakeDevice) Dial(ctx context.Context, a ble.Addr) (ble.Client, error) {
	args := d.Called(a.String())
	if block, _ := args.Get(0).(chan struct{}); block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return nil, ctx.Err()
	}
	if c, ok := args.Get(0).(ble.Client); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

func (d *fakeDevice) Stop() error {
	return d.Called().Error(0)
}

type fakeAdvertisement struct {
	ble.Advertisement
	addr     string
	name     string
	rssi     int
	services []ble.UUID
}

func (a *fakeAdvertisement) LocalName() string    { return a.name }
func (a *fakeAdvertisement) RSSI() int            { return a.rssi }
func (a *fakeAdvertisement) Addr() ble.Addr       { return ble.NewAddr(a.addr) }
func (a *fakeAdvertisement) Services() []ble.UUID { return a.services }

// fakeClient stubs a connected ble.Client.
type fakeClient struct {
	ble.Client
	mock.Mock
	disconnected chan struct{}
	cancelled    chan struct{}

	mu      sync.Mutex
	handler ble.NotificationHandler
}

func newFakeClient() *fakeClient {
	return &fakeClient{disconnected: make(chan struct{}), cancelled: make(chan struct{}, 1)}
}

func (c *fakeClient) DiscoverServices(filter []ble.UUID) ([]*ble.Service, error) {
	args := c.Called(filter)
	svcs, _ := args.Get(0).([]*ble.Service)
	return svcs, args.Error(1)
}

func (c *fakeClient) DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error) {
	args := c.Called(filter, s)
	chars, _ := args.Get(0).([]*ble.Characteristic)
	return chars, args.Error(1)
}

func (c *fakeClient) DiscoverDescriptors(filter []ble.UUID, ch *ble.Characteristic) ([]*ble.Descriptor, error) {
	return nil, c.Called(filter, ch).Error(0)
}

func (c *fakeClient) Subscribe(ch *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
	return c.Called(ch, ind).Error(0)
}

func (c *fakeClient) ClearSubscriptions() error     { return c.Called().Error(0) }
func (c *fakeClient) Disconnected() <-chan struct{} { return c.disconnected }

func (c *fakeClient) CancelConnection() error {
	select {
	case c.cancelled <- struct{}{}:
	default:
	}
	return c.Called().Error(0)
}

func (c *fakeClient) notify(data []byte) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	h(data)
}

type recorder struct {
	events chan device.Event
}

func (r *recorder) HandleEvent(e device.Event) { r.events <- e }

type CapabilityTestSuite struct {
	suite.Suite
	dev      *fakeDevice
	client   *fakeClient
	rec      *recorder
	cap      *Capability
	original func() (ble.Device, error)
}

func TestCapabilityTestSuite(t *testing.T) {
	suite.Run(t, new(CapabilityTestSuite))
}

func (s *CapabilityTestSuite) SetupTest() {
	s.dev = &fakeDevice{}
	s.dev.On("Stop").Return(nil).Maybe()
	s.client = newFakeClient()
	s.client.On("ClearSubscriptions").Return(nil).Maybe()
	s.client.On("CancelConnection").Return(nil).Maybe()
	s.client.On("DiscoverDescriptors", mock.Anything, mock.Anything).Return(nil).Maybe()
	s.rec = &recorder{events: make(chan device.Event, 64)}

	s.original = DeviceFactory
	DeviceFactory = func() (ble.Device, error) { return s.dev, nil }

	s.cap = New(Options{ConnectTimeout: time.Second, Logger: testutils.NewTestLogger(s.T())})
}

func (s *CapabilityTestSuite) TearDownTest() {
	s.NoError(s.cap.Close())
	DeviceFactory = s.original
}

func (s *CapabilityTestSuite) next() device.Event {
	select {
	case e := <-s.rec.events:
		return e
	case <-time.After(time.Second):
		s.FailNow("timed out waiting for capability event")
		return nil
	}
}

func (s *CapabilityTestSuite) noEvent(wait time.Duration) {
	select {
	case e := <-s.rec.events:
		s.Failf("unexpected event", "%#v", e)
	case <-time.After(wait):
	}
}

func (s *CapabilityTestSuite) start() {
	s.Require().NoError(s.cap.Start(s.rec))
	s.Require().Equal(device.PowerStateChanged{On: true}, s.next())
}

func (s *CapabilityTestSuite) connect() {
	s.dev.On("Dial", peripheralID).Return(s.client, nil).Once()
	s.Require().NoError(s.cap.Connect(peripheralID))
	s.Require().Equal(device.Connected{DeviceID: peripheralID}, s.next())
}

func (s *CapabilityTestSuite) TestStartFailureReportsPowerOff() {
	DeviceFactory = func() (ble.Device, error) {
		return nil, errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?")
	}

	err := s.cap.Start(s.rec)

	s.ErrorIs(err, device.ErrBluetoothOff)
	ev, ok := s.next().(device.PowerStateChanged)
	s.Require().True(ok)
	s.False(ev.On)
	s.ErrorIs(ev.Err, device.ErrBluetoothOff)
}

func (s *CapabilityTestSuite) TestOperationsBeforeStart() {
	s.ErrorIs(s.cap.Scan([]string{"180d"}), device.ErrNotInitialized)
	s.ErrorIs(s.cap.Connect(peripheralID), device.ErrNotInitialized)
	s.NoError(s.cap.StopScan())
}

// GOAL: Verify scanning reports only advertisements matching the service filter
//
// TEST SCENARIO: Two advertisements → filter 180D → one DeviceDiscovered event
func (s *CapabilityTestSuite) TestScanFiltersAdvertisements() {
	s.dev.adverts = []ble.Advertisement{
		&fakeAdvertisement{addr: "11:22:33:44:55:66", name: "Thermo", rssi: -70, services: []ble.UUID{ble.UUID16(0x1809)}},
		&fakeAdvertisement{addr: peripheralID, name: "Polar H10", rssi: -55, services: []ble.UUID{ble.UUID16(0x180d)}},
	}
	s.dev.On("Scan", false).Return(nil)
	s.start()

	s.Require().NoError(s.cap.Scan([]string{"0x180D"}))

	s.Equal(device.DeviceDiscovered{
		ID:       peripheralID,
		Name:     "Polar H10",
		RSSI:     -55,
		Services: []string{"180d"},
	}, s.next())
	s.noEvent(20 * time.Millisecond)
	s.NoError(s.cap.StopScan())
}

func (s *CapabilityTestSuite) TestScanRejectsInvalidFilter() {
	s.start()

	s.Error(s.cap.Scan([]string{"not-a-uuid"}))
}

// GOAL: Verify the connect, discover, subscribe sequence is reported as events
//
// TEST SCENARIO: Dial → services → characteristics → subscribe → notification delivered
func (s *CapabilityTestSuite) TestConnectDiscoverSubscribe() {
	s.start()
	s.connect()
	s.True(s.cap.IsConnected(peripheralID))

	svc := &ble.Service{UUID: ble.UUID16(0x180d)}
	char := &ble.Characteristic{UUID: ble.UUID16(0x2a37), Property: ble.CharNotify}
	s.client.On("DiscoverServices", mock.Anything).Return([]*ble.Service{svc}, nil)
	s.client.On("DiscoverCharacteristics", mock.Anything, svc).Return([]*ble.Characteristic{char}, nil)
	s.client.On("Subscribe", char, false).Return(nil)

	s.Require().NoError(s.cap.DiscoverServices(peripheralID, []string{"180d"}))
	s.Equal(device.ServicesDiscovered{DeviceID: peripheralID, Services: []string{"180d"}}, s.next())

	s.Require().NoError(s.cap.DiscoverCharacteristics(peripheralID, "180D", []string{"2a37"}))
	s.Equal(device.CharacteristicsDiscovered{
		DeviceID:        peripheralID,
		ServiceUUID:     "180d",
		Characteristics: []string{"2a37"},
	}, s.next())
	s.client.AssertCalled(s.T(), "DiscoverDescriptors", mock.Anything, char)

	hr := device.Characteristic{DeviceID: peripheralID, ServiceUUID: "180d", UUID: "2a37"}
	s.Require().NoError(s.cap.Subscribe(hr))
	s.Equal(device.NotificationStateChanged{Characteristic: hr, Enabled: true}, s.next())

	s.client.notify([]byte{0x00, 0x48})
	s.Equal(device.ValueUpdated{Characteristic: hr, Value: []byte{0x00, 0x48}}, s.next())
}

func (s *CapabilityTestSuite) TestDiscoveryErrorIsReported() {
	s.start()
	s.connect()
	s.client.On("DiscoverServices", mock.Anything).Return(nil, errors.New("att: timeout"))

	s.Require().NoError(s.cap.DiscoverServices(peripheralID, []string{"180d"}))

	ev, ok := s.next().(device.ServicesDiscovered)
	s.Require().True(ok)
	s.Error(ev.Err)
	s.Empty(ev.Services)
}

func (s *CapabilityTestSuite) TestSubscribeRequiresNotifyProperty() {
	s.start()
	s.connect()
	svc := &ble.Service{UUID: ble.UUID16(0x180d)}
	char := &ble.Characteristic{UUID: ble.UUID16(0x2a37), Property: ble.CharRead}
	s.client.On("DiscoverServices", mock.Anything).Return([]*ble.Service{svc}, nil)
	s.client.On("DiscoverCharacteristics", mock.Anything, svc).Return([]*ble.Characteristic{char}, nil)
	s.Require().NoError(s.cap.DiscoverServices(peripheralID, nil))
	s.next()
	s.Require().NoError(s.cap.DiscoverCharacteristics(peripheralID, "180d", nil))
	s.next()

	err := s.cap.Subscribe(device.Characteristic{DeviceID: peripheralID, ServiceUUID: "180d", UUID: "2a37"})

	s.Error(err)
}

func (s *CapabilityTestSuite) TestGattOperationsRequireLink() {
	s.start()

	s.ErrorIs(s.cap.DiscoverServices(peripheralID, nil), device.ErrNotConnected)
	s.ErrorIs(s.cap.DiscoverCharacteristics(peripheralID, "180d", nil), device.ErrNotConnected)
	s.ErrorIs(s.cap.Subscribe(device.Characteristic{DeviceID: peripheralID}), device.ErrNotConnected)
}

func (s *CapabilityTestSuite) TestUndiscoveredServiceIsNotFound() {
	s.start()
	s.connect()

	var notFound *device.NotFoundError
	s.ErrorAs(s.cap.DiscoverCharacteristics(peripheralID, "180d", nil), &notFound)
}

func (s *CapabilityTestSuite) TestDialFailureReportsConnectFailed() {
	s.start()
	s.dev.On("Dial", peripheralID).Return(nil, context.DeadlineExceeded).Once()

	s.Require().NoError(s.cap.Connect(peripheralID))

	ev, ok := s.next().(device.ConnectFailed)
	s.Require().True(ok)
	s.Equal(peripheralID, ev.DeviceID)
	s.ErrorIs(ev.Err, device.ErrTimeout)
	s.False(s.cap.IsConnected(peripheralID))
}

func (s *CapabilityTestSuite) TestConnectTwiceIsRejected() {
	s.start()
	s.connect()

	s.ErrorIs(s.cap.Connect(peripheralID), device.ErrAlreadyConnected)
}

func (s *CapabilityTestSuite) TestCancelPendingDialIsSilent() {
	s.start()
	block := make(chan struct{})
	s.dev.On("Dial", peripheralID).Return(block, nil).Once()

	s.Require().NoError(s.cap.Connect(peripheralID))
	s.Require().NoError(s.cap.CancelConnection(peripheralID))

	s.noEvent(50 * time.Millisecond)
	close(block)
}

func (s *CapabilityTestSuite) TestPeerDisconnectIsReported() {
	s.start()
	s.connect()

	close(s.client.disconnected)

	s.Equal(device.Disconnected{DeviceID: peripheralID, Err: device.ErrNotConnected}, s.next())
	s.False(s.cap.IsConnected(peripheralID))
}

func (s *CapabilityTestSuite) TestCancelConnectionIsSilent() {
	s.start()
	s.connect()

	s.Require().NoError(s.cap.CancelConnection(peripheralID))
	close(s.client.disconnected)

	s.noEvent(50 * time.Millisecond)
	select {
	case <-s.client.cancelled:
	case <-time.After(time.Second):
		s.Fail("client connection MUST be cancelled")
	}
	s.NoError(s.cap.CancelConnection(peripheralID), "second cancel MUST be a no-op")
}
