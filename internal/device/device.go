package device

import (
	"errors"
	"fmt"
	"strings"
)

// ConnectionState is the lifecycle state of the single managed peripheral.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateScanning     ConnectionState = "scanning"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateFailed       ConnectionState = "failed"
)

func (s ConnectionState) String() string {
	return string(s)
}

// ErrorKind represents the specific kind of connection-related failure
type ErrorKind string

const (
	NotConnected     ErrorKind = "not_connected"
	AlreadyConnected ErrorKind = "already_connected"
	NotInitialized   ErrorKind = "not_initialized"
	BluetoothOff     ErrorKind = "bluetooth_off"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	Kind ErrorKind
	Msg  string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by Kind
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{Kind: NotConnected}
	ErrAlreadyConnected = &ConnectionError{Kind: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{Kind: NotInitialized}
	ErrBluetoothOff     = &ConnectionError{Kind: BluetoothOff}
)

// Failure kinds reported by the capability or detected while bringing a link up.
var (
	ErrConnectFailure   = errors.New("connect failure")
	ErrDiscoveryFailure = errors.New("discovery failure")
	ErrTimeout          = errors.New("timeout")
)

// NotFoundError represents an error when a GATT resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // [serviceUUID] or [serviceUUID, charUUID]
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// NormalizeError maps known BLE stack error strings to structured ConnectionError types.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "is Bluetooth turned on"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "device not connected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	case containsIgnoreCase(msg, "connection is not initialized"):
		return fmt.Errorf("%w: %v", ErrNotInitialized, err)
	default:
		return err
	}
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// IsErrorKind reports whether err is a ConnectionError with the given kind
func IsErrorKind(err error, kind ErrorKind) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.Kind == kind
	}
	return false
}

// DiscoveredDevice is a peripheral surfaced by a scan session.
type DiscoveredDevice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	RSSI int    `json:"rssi"`
}

// Characteristic addresses one GATT characteristic of a connected peripheral.
type Characteristic struct {
	DeviceID    string
	ServiceUUID string
	UUID        string
}

func (c Characteristic) String() string {
	return fmt.Sprintf("%s/%s/%s", c.DeviceID, c.ServiceUUID, c.UUID)
}

// Capability is the BLE stack as seen by the core.
//
// Every method only issues a request; results arrive later as events on the
// sink passed to Start. A non-nil return means the request could not be issued.
type Capability interface {
	Start(sink EventSink) error
	Scan(serviceFilter []string) error
	StopScan() error
	Connect(deviceID string) error
	CancelConnection(deviceID string) error
	DiscoverServices(deviceID string, serviceIDs []string) error
	DiscoverCharacteristics(deviceID, serviceID string, charIDs []string) error
	Subscribe(char Characteristic) error
	Close() error
}

// EventSink receives capability events. Implementations must not block.
type EventSink interface {
	HandleEvent(Event)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(Event)

func (f EventSinkFunc) HandleEvent(e Event) { f(e) }
