package testutils

import (
	"sync"

	"github.com/srg/pulsezone/internal/device"
	"github.com/stretchr/testify/mock"
)

// FakeCapability is a device.Capability backed by testify's mock.Mock.
//
// Every method succeeds by default. Use Fail to make a method return an error,
// then drive the state machine by emitting events with Emit.
//
//	fake := testutils.NewFakeCapability()
//	fake.Fail("Connect", errors.New("radio busy"))
//	fake.Emit(device.Connected{DeviceID: "AA:BB"})
type FakeCapability struct {
	mock.Mock

	mu       sync.Mutex
	sink     device.EventSink
	defaults map[string]*mock.Call
}

var fakeMethods = map[string]int{
	"Start":                   1,
	"Scan":                    1,
	"StopScan":                0,
	"Connect":                 1,
	"CancelConnection":        1,
	"DiscoverServices":        2,
	"DiscoverCharacteristics": 3,
	"Subscribe":               1,
	"Close":                   0,
}

// NewFakeCapability creates a fake whose methods all return nil.
func NewFakeCapability() *FakeCapability {
	f := &FakeCapability{defaults: make(map[string]*mock.Call)}
	for method, argc := range fakeMethods {
		f.defaults[method] = f.On(method, anyArgs(argc)...).Return(nil).Maybe()
	}
	return f
}

func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = mock.Anything
	}
	return args
}

// Fail makes every later call of method return err.
func (f *FakeCapability) Fail(method string, err error) {
	argc, ok := fakeMethods[method]
	if !ok {
		panic("testutils: unknown capability method " + method)
	}
	if call := f.defaults[method]; call != nil {
		call.Unset()
	}
	f.defaults[method] = f.On(method, anyArgs(argc)...).Return(err).Maybe()
}

// Respond runs fn on every later call of method, which then succeeds.
// fn may call Emit; events are queued behind the call in progress.
func (f *FakeCapability) Respond(method string, fn func(args mock.Arguments)) {
	argc, ok := fakeMethods[method]
	if !ok {
		panic("testutils: unknown capability method " + method)
	}
	if call := f.defaults[method]; call != nil {
		call.Unset()
	}
	f.defaults[method] = f.On(method, anyArgs(argc)...).Run(fn).Return(nil).Maybe()
}

// Emit delivers e to the sink registered by Start.
func (f *FakeCapability) Emit(events ...device.Event) {
	f.mu.Lock()
	sink := f.sink
	f.mu.Unlock()
	if sink == nil {
		panic("testutils: Emit before Start")
	}
	for _, e := range events {
		sink.HandleEvent(e)
	}
}

func (f *FakeCapability) Start(sink device.EventSink) error {
	f.mu.Lock()
	f.sink = sink
	f.mu.Unlock()
	return f.Called(sink).Error(0)
}

func (f *FakeCapability) Scan(serviceFilter []string) error {
	return f.Called(serviceFilter).Error(0)
}

func (f *FakeCapability) StopScan() error {
	return f.Called().Error(0)
}

func (f *FakeCapability) Connect(deviceID string) error {
	return f.Called(deviceID).Error(0)
}

func (f *FakeCapability) CancelConnection(deviceID string) error {
	return f.Called(deviceID).Error(0)
}

func (f *FakeCapability) DiscoverServices(deviceID string, serviceIDs []string) error {
	return f.Called(deviceID, serviceIDs).Error(0)
}

func (f *FakeCapability) DiscoverCharacteristics(deviceID, serviceID string, charIDs []string) error {
	return f.Called(deviceID, serviceID, charIDs).Error(0)
}

func (f *FakeCapability) Subscribe(char device.Characteristic) error {
	return f.Called(char).Error(0)
}

func (f *FakeCapability) Close() error {
	return f.Called().Error(0)
}

var _ device.Capability = (*FakeCapability)(nil)
