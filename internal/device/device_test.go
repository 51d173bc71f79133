package device

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionError(t *testing.T) {
	t.Run("matches by kind", func(t *testing.T) {
		err := &ConnectionError{Kind: AlreadyConnected, Msg: "connecting to AA:BB"}

		assert.ErrorIs(t, err, ErrAlreadyConnected)
		assert.NotErrorIs(t, err, ErrNotConnected)
		assert.Equal(t, "already_connected: connecting to AA:BB", err.Error())
	})

	t.Run("nil receiver", func(t *testing.T) {
		var err *ConnectionError
		assert.Equal(t, "<nil>", err.Error())
		assert.False(t, err.Is(ErrNotConnected))
	})

	t.Run("kind lookup through wrapping", func(t *testing.T) {
		err := fmt.Errorf("connect: %w", ErrBluetoothOff)
		assert.True(t, IsErrorKind(err, BluetoothOff))
		assert.False(t, IsErrorKind(errors.New("plain"), BluetoothOff))
	})
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name   string
		input  error
		target error
	}{
		{
			name:   "darwin powered off",
			input:  errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"),
			target: ErrBluetoothOff,
		},
		{
			name:   "not connected",
			input:  errors.New("Device not connected"),
			target: ErrNotConnected,
		},
		{
			name:   "already connected",
			input:  errors.New("device already connected"),
			target: ErrAlreadyConnected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NormalizeError(tt.input)
			assert.ErrorIs(t, err, tt.target)
			assert.Contains(t, err.Error(), tt.input.Error(), "original message MUST be preserved")
		})
	}

	t.Run("passes unknown errors through", func(t *testing.T) {
		orig := errors.New("something else")
		assert.Same(t, orig, NormalizeError(orig))
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, NormalizeError(nil))
	})
}

func TestNotFoundError(t *testing.T) {
	assert.Equal(t, `service "180d" not found`,
		(&NotFoundError{Resource: "service", UUIDs: []string{"180d"}}).Error())
	assert.Equal(t, `characteristic "2a37" not found in service "180d"`,
		(&NotFoundError{Resource: "characteristic", UUIDs: []string{"180d", "2a37"}}).Error())
	assert.Equal(t, "service not found", (&NotFoundError{Resource: "service"}).Error())
}
