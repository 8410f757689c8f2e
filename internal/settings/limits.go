// Package settings holds the immutable limits passed to every engine
// constructor.
package settings

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
)

// Limits bounds field sizes, message sizes, and key retention.
// A Limits value is copied into each engine at construction and never
// mutated afterwards.
type Limits struct {
	// MaxNameLength bounds display names and nicknames, in bytes after NFC.
	MaxNameLength int `toml:"max_name_length"`

	// MaxCommunityURLLength bounds a full community URL including the pubkey.
	MaxCommunityURLLength int `toml:"max_community_url_length"`

	// MaxProfileURLLength bounds profile picture URLs.
	MaxProfileURLLength int `toml:"max_profile_url_length"`

	// MaxDescriptionLength bounds group descriptions.
	MaxDescriptionLength int `toml:"max_description_length"`

	// MaxMessageSize bounds one sealed config payload.
	MaxMessageSize int `toml:"max_message_size"`

	// RetainedGenerations is how many generations behind the newest a
	// key ring keeps.
	RetainedGenerations int `toml:"retained_generations"`

	// KeyExpiryDays drops a superseded key this long after its successor
	// was created.
	KeyExpiryDays int `toml:"key_expiry_days"`

	// SupplementBatchSize caps recipients per supplement key message.
	SupplementBatchSize int `toml:"supplement_batch_size"`

	// RegistrySize caps live instances held by a worker registry.
	RegistrySize int `toml:"registry_size"`
}

// Default returns the production limits.
func Default() Limits {
	return Limits{
		MaxNameLength:         100,
		MaxCommunityURLLength: 411,
		MaxProfileURLLength:   223,
		MaxDescriptionLength:  2000,
		MaxMessageSize:        76800,
		RetainedGenerations:   16,
		KeyExpiryDays:         30,
		SupplementBatchSize:   50,
		RegistrySize:          64,
	}
}

// KeyExpiry returns KeyExpiryDays as a duration.
func (l Limits) KeyExpiry() time.Duration {
	return time.Duration(l.KeyExpiryDays) * 24 * time.Hour
}

// Validate checks that every limit is usable.
func (l Limits) Validate() error {
	checks := []struct {
		name  string
		value int
	}{
		{"max_name_length", l.MaxNameLength},
		{"max_community_url_length", l.MaxCommunityURLLength},
		{"max_profile_url_length", l.MaxProfileURLLength},
		{"max_description_length", l.MaxDescriptionLength},
		{"max_message_size", l.MaxMessageSize},
		{"retained_generations", l.RetainedGenerations},
		{"key_expiry_days", l.KeyExpiryDays},
		{"supplement_batch_size", l.SupplementBatchSize},
		{"registry_size", l.RegistrySize},
	}
	for _, c := range checks {
		if c.value <= 0 {
			return errors.Newf("%s must be positive, got %d", c.name, c.value)
		}
	}
	return nil
}

// Load reads a TOML file and overlays it onto Default.
// Unknown keys are an error so typos do not silently keep defaults.
func Load(path string) (Limits, error) {
	l := Default()
	md, err := toml.DecodeFile(path, &l)
	if err != nil {
		return Limits{}, errors.Wrapf(err, "decode %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Limits{}, errors.Newf("unknown keys in %s: %v", path, undecoded)
	}
	if err := l.Validate(); err != nil {
		return Limits{}, errors.Wrapf(err, "invalid limits in %s", path)
	}
	return l, nil
}
