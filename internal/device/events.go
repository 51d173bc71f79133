package device

// Event is a notification delivered by the Capability.
type Event interface {
	event()
}

// PowerStateChanged reports the adapter becoming available (On) or unavailable.
type PowerStateChanged struct {
	On  bool
	Err error
}

// DeviceDiscovered reports one advertisement seen during a scan.
type DeviceDiscovered struct {
	ID       string
	Name     string
	RSSI     int
	Services []string
}

// Connected reports that the link to DeviceID is up.
type Connected struct {
	DeviceID string
}

// ConnectFailed reports that a connect request did not produce a link.
type ConnectFailed struct {
	DeviceID string
	Err      error
}

// Disconnected reports that the link to DeviceID went away, for any reason.
type Disconnected struct {
	DeviceID string
	Err      error
}

// ServicesDiscovered carries the result of DiscoverServices.
type ServicesDiscovered struct {
	DeviceID string
	Services []string
	Err      error
}

// CharacteristicsDiscovered carries the result of DiscoverCharacteristics.
type CharacteristicsDiscovered struct {
	DeviceID        string
	ServiceUUID     string
	Characteristics []string
	Err             error
}

// ValueUpdated carries one notification payload.
type ValueUpdated struct {
	Characteristic Characteristic
	Value          []byte
}

// NotificationStateChanged reports notifications being enabled or stopped on a characteristic.
type NotificationStateChanged struct {
	Characteristic Characteristic
	Enabled        bool
	Err            error
}

func (PowerStateChanged) event()         {}
func (DeviceDiscovered) event()          {}
func (Connected) event()                 {}
func (ConnectFailed) event()             {}
func (Disconnected) event()              {}
func (ServicesDiscovered) event()        {}
func (CharacteristicsDiscovered) event() {}
func (ValueUpdated) event()              {}
func (NotificationStateChanged) event()  {}
