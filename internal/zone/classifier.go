package zone

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"
	"github.com/srg/pulsezone/internal/store"
	"gopkg.in/yaml.v3"
)

// Persister queues a value for storage without blocking.
type Persister interface {
	Put(key string, value []byte) bool
}

// Classifier owns the active zone set and the zone of the current rate.
// It is not safe for concurrent use; the monitor loop is its only caller.
type Classifier struct {
	zones   Set
	rate    int
	active  Zone
	persist Persister
	logger  *logrus.Logger
}

// NewClassifier creates a classifier over zones. zones must already be normalized.
func NewClassifier(zones Set, persist Persister, logger *logrus.Logger) *Classifier {
	if logger == nil {
		logger = logrus.New()
	}
	if len(zones) == 0 {
		zones = Defaults()
	}
	return &Classifier{
		zones:   zones,
		active:  Classify(0, zones),
		persist: persist,
		logger:  logger,
	}
}

// Zones returns a copy of the active zone set.
func (c *Classifier) Zones() Set {
	return slices.Clone(c.zones)
}

// Active returns the last-computed zone.
func (c *Classifier) Active() Zone {
	return c.active
}

// Update recomputes the active zone for rate and reports whether it changed.
func (c *Classifier) Update(rate int) (Zone, bool) {
	c.rate = rate
	return c.reclassify()
}

// ReplaceZones swaps in a new zone set, persists it, and re-derives the active zone.
// On error the previous set stays active.
func (c *Classifier) ReplaceZones(set Set) (Zone, error) {
	normalized, err := Normalize(set)
	if err != nil {
		return c.active, err
	}
	c.zones = normalized

	if c.persist != nil {
		data, err := Encode(normalized)
		if err != nil {
			c.logger.WithError(err).Error("Failed to encode zone set")
		} else if !c.persist.Put(store.KeyZones, data) {
			c.logger.Warn("Zone set not persisted: writer closed")
		}
	}

	c.logger.WithField("zones", len(normalized)).Info("Zone set replaced")
	zone, _ := c.reclassify()
	return zone, nil
}

func (c *Classifier) reclassify() (Zone, bool) {
	next := Classify(c.rate, c.zones)
	changed := next != c.active
	c.active = next
	return next, changed
}

// Encode serializes a zone set for storage.
func Encode(set Set) ([]byte, error) {
	return yaml.Marshal(set)
}

// Decode parses a stored zone set and normalizes it.
func Decode(data []byte) (Set, error) {
	var set Set
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("decode zone set: %w", err)
	}
	return Normalize(set)
}

// Load restores the persisted zone set. Absent, unreadable or invalid data yields Defaults.
func Load(ctx context.Context, st store.Store, logger *logrus.Logger) Set {
	if logger == nil {
		logger = logrus.New()
	}

	data, err := st.Get(ctx, store.KeyZones)
	switch {
	case errors.Is(err, store.ErrNotFound):
		logger.Debug("No saved zone set, using defaults")
		return Defaults()
	case err != nil:
		logger.WithError(err).Warn("Failed to read zone set, using defaults")
		return Defaults()
	}

	set, err := Decode(data)
	if err != nil {
		logger.WithError(err).Warn("Saved zone set is invalid, using defaults")
		return Defaults()
	}
	return set
}
