package heartrate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode8BitFormat(t *testing.T) {
	// every flags byte with the format bit clear must read the single byte at index 1
	for f := 0; f < 256; f += 2 {
		for _, b0 := range []byte{0, 1, 59, 60, 127, 200, 255} {
			bpm, err := Decode([]byte{byte(f), b0})
			require.NoError(t, err)
			assert.Equal(t, int(b0), bpm, "flags=%#x", f)
		}
	}
}

func TestDecode16BitFormat(t *testing.T) {
	for f := 1; f < 256; f += 2 {
		for _, pair := range [][2]byte{{0, 0}, {72, 0}, {0x2c, 0x01}, {255, 255}} {
			bpm, err := Decode([]byte{byte(f), pair[0], pair[1]})
			require.NoError(t, err)
			assert.Equal(t, int(pair[0])+256*int(pair[1]), bpm, "flags=%#x", f)
		}
	}
}

func TestDecodeIgnoresTrailingBytes(t *testing.T) {
	bpm, err := Decode([]byte{0x10, 80, 0x00, 0x04})
	require.NoError(t, err)
	assert.Equal(t, 80, bpm)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "nil payload", payload: nil},
		{name: "zero length", payload: []byte{}},
		{name: "flags only, 8-bit", payload: []byte{0x00}},
		{name: "flags only, 16-bit", payload: []byte{0x01}},
		{name: "16-bit missing high byte", payload: []byte{0x01, 72}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.payload)
			assert.ErrorIs(t, err, ErrMalformedPayload)
		})
	}
}

func TestMeasurementUnmarshalBinary(t *testing.T) {
	t.Run("contact, energy and RR intervals", func(t *testing.T) {
		// flags: rr | energy | contact supported | contact detected, 8-bit value
		data := []byte{0x1e, 75, 0x10, 0x00, 0x00, 0x04, 0x00, 0x02}

		var m Measurement
		require.NoError(t, m.UnmarshalBinary(data))

		assert.Equal(t, 75, m.BPM)
		assert.True(t, m.ContactSupported)
		assert.True(t, m.Contact)
		assert.Equal(t, 16, m.Energy)
		assert.Equal(t, []time.Duration{time.Second, 500 * time.Millisecond}, m.RR)
	})

	t.Run("contact supported but not detected", func(t *testing.T) {
		var m Measurement
		require.NoError(t, m.UnmarshalBinary([]byte{0x04, 0}))

		assert.True(t, m.ContactSupported)
		assert.False(t, m.Contact)
		assert.Equal(t, -1, m.Energy)
		assert.Nil(t, m.RR)
	})

	t.Run("16-bit value with truncated energy field", func(t *testing.T) {
		var m Measurement
		require.NoError(t, m.UnmarshalBinary([]byte{0x09, 0x2c, 0x01, 0x05}))

		assert.Equal(t, 300, m.BPM)
		assert.Equal(t, -1, m.Energy, "truncated optional field MUST be left unset")
	})

	t.Run("truncated energy field stops RR parsing", func(t *testing.T) {
		// flags: rr | energy, 8-bit value, one energy byte only
		var m Measurement
		require.NoError(t, m.UnmarshalBinary([]byte{0x18, 80, 0x10}))

		assert.Equal(t, 80, m.BPM)
		assert.Equal(t, -1, m.Energy)
		assert.Nil(t, m.RR, "RR intervals MUST NOT be read from energy bytes")
	})

	t.Run("malformed", func(t *testing.T) {
		var m Measurement
		assert.ErrorIs(t, m.UnmarshalBinary([]byte{0x01, 1}), ErrMalformedPayload)
	})
}
