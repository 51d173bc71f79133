// Package zone classifies heart rates into ordered training zones.
package zone

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrEmptyZoneSet        = errors.New("zone set is empty")
	ErrDuplicateStartRate  = errors.New("duplicate zone start rate")
	ErrInvalidZoneStartBPM = errors.New("zone start rate must be positive")
)

// Zone is a named heart-rate band starting at StartRate BPM (inclusive).
type Zone struct {
	ID        string `yaml:"id" json:"id"`
	Name      string `yaml:"name" json:"name"`
	StartRate int    `yaml:"start_rate" json:"start_rate"`
	Color     string `yaml:"color,omitempty" json:"color,omitempty"`
}

func (z Zone) String() string {
	return fmt.Sprintf("%s (%d+ bpm)", z.Name, z.StartRate)
}

// Set is an ordered collection of zones, ascending by StartRate.
type Set []Zone

// Defaults returns the zone set used on first run.
func Defaults() Set {
	return Set{
		{ID: "zone-1", Name: "Warm Up", StartRate: 60, Color: "blue"},
		{ID: "zone-2", Name: "Fat Burn", StartRate: 100, Color: "green"},
		{ID: "zone-3", Name: "Aerobic", StartRate: 120, Color: "yellow"},
		{ID: "zone-4", Name: "Anaerobic", StartRate: 140, Color: "magenta"},
		{ID: "zone-5", Name: "Maximum", StartRate: 160, Color: "red"},
	}
}

// Normalize returns a sorted copy of set and validates it.
func Normalize(set Set) (Set, error) {
	if len(set) == 0 {
		return nil, ErrEmptyZoneSet
	}

	sorted := slices.Clone(set)
	slices.SortStableFunc(sorted, func(a, b Zone) int {
		return a.StartRate - b.StartRate
	})

	for i, z := range sorted {
		if z.StartRate <= 0 {
			return nil, fmt.Errorf("%w: zone %q starts at %d", ErrInvalidZoneStartBPM, z.Name, z.StartRate)
		}
		if i > 0 && sorted[i-1].StartRate == z.StartRate {
			return nil, fmt.Errorf("%w: %q and %q both start at %d",
				ErrDuplicateStartRate, sorted[i-1].Name, z.Name, z.StartRate)
		}
	}
	return sorted, nil
}

// Classify returns the zone with the greatest StartRate not above rate.
// A rate below every zone falls into the lowest zone.
// set must be non-empty and sorted ascending.
func Classify(rate int, set Set) Zone {
	i, found := slices.BinarySearchFunc(set, rate, func(z Zone, r int) int {
		return z.StartRate - r
	})
	switch {
	case found:
		return set[i]
	case i == 0:
		return set[0]
	default:
		return set[i-1]
	}
}

// Lookup finds a zone by id or case-insensitive name.
func (s Set) Lookup(key string) (Zone, bool) {
	for _, z := range s {
		if z.ID == key || strings.EqualFold(z.Name, key) {
			return z, true
		}
	}
	return Zone{}, false
}
