// Package heartrate decodes notifications of the standard Bluetooth heart rate
// measurement characteristic (service 180d, characteristic 2a37).
package heartrate

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	ServiceUUID     = "180d"
	MeasurementUUID = "2a37"
)

// ErrMalformedPayload is returned when a payload is too short for its declared format.
var ErrMalformedPayload = errors.New("malformed heart rate payload")

// Flags field bits
// | 0x10 | 0x8 | 0x4  0x2 | 0x1 |
// |  rr  | nrg | scs  cnt | fmt |
const (
	flagUint16          = 0x01
	flagContactDetected = 0x02
	flagContactSupport  = 0x04
	flagEnergyExpended  = 0x08
	flagRRIntervals     = 0x10
)

// Decode returns the BPM value carried by a heart rate measurement payload.
func Decode(payload []byte) (int, error) {
	if len(payload) < 2 {
		return 0, fmt.Errorf("%w: %d bytes, need at least 2", ErrMalformedPayload, len(payload))
	}
	if payload[0]&flagUint16 == 0 {
		return int(payload[1]), nil
	}
	if len(payload) < 3 {
		return 0, fmt.Errorf("%w: %d bytes, 16-bit format needs 3", ErrMalformedPayload, len(payload))
	}
	return int(binary.LittleEndian.Uint16(payload[1:3])), nil
}

// Measurement is a fully decoded heart rate measurement.
type Measurement struct {
	BPM              int
	ContactSupported bool
	Contact          bool
	Energy           int // kJ, -1 when absent
	RR               []time.Duration
}

// UnmarshalBinary decodes the whole measurement. Only the BPM bytes are mandatory;
// a truncated optional field and everything after it are left unset.
func (m *Measurement) UnmarshalBinary(data []byte) error {
	bpm, err := Decode(data)
	if err != nil {
		return err
	}

	flags := data[0]
	offset := 2
	if flags&flagUint16 != 0 {
		offset = 3
	}

	*m = Measurement{
		BPM:              bpm,
		ContactSupported: flags&flagContactSupport != 0,
		Contact:          flags&(flagContactSupport|flagContactDetected) == flagContactSupport|flagContactDetected,
		Energy:           -1,
	}

	if flags&flagEnergyExpended != 0 {
		if len(data) < offset+2 {
			return nil
		}
		m.Energy = int(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2
	}

	if flags&flagRRIntervals != 0 && len(data) > offset {
		rrData := data[offset:]
		m.RR = make([]time.Duration, 0, len(rrData)/2)
		for i := 0; i+1 < len(rrData); i += 2 {
			// RR resolution is 1/1024 s
			m.RR = append(m.RR, time.Duration(binary.LittleEndian.Uint16(rrData[i:]))*time.Second/1024)
		}
	}
	return nil
}
