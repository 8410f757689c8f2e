// Package profilepic stores a profile picture reference (download URL plus
// decryption key) inside a config.
package profilepic

import (
	"github.com/roach88/swarmsync/internal/engine"
	"github.com/roach88/swarmsync/internal/ir"
)

// KeySize is the length of a picture decryption key.
const KeySize = 32

// Pic is a picture reference. A Pic with an empty URL or key is "no picture".
type Pic struct {
	URL string
	Key []byte
}

// IsSet reports whether both halves are present.
func (p *Pic) IsSet() bool {
	return p != nil && p.URL != "" && len(p.Key) > 0
}

// Fields returns the schema fields for a picture stored under prefix
// ("pic" or "c/*/pic").
func Fields(prefix string, maxURL int) []engine.Field {
	return []engine.Field{
		{Path: prefix + "/url", Kind: engine.KindString, MaxLen: maxURL},
		{Path: prefix + "/key", Kind: engine.KindBytes, Len: KeySize},
	}
}

// Load reads the picture stored under prefix, or nil when none is set.
func Load(cfg *engine.Config, prefix string) *Pic {
	uv, ok := cfg.Get(prefix + "/url")
	if !ok {
		return nil
	}
	kv, ok := cfg.Get(prefix + "/key")
	if !ok {
		return nil
	}
	url, _ := ir.AsString(uv)
	key, _ := ir.AsBytes(kv)
	p := &Pic{URL: url, Key: key}
	if !p.IsSet() {
		return nil
	}
	return p
}

// Store writes p under prefix. A nil or half-empty picture clears it.
func Store(cfg *engine.Config, prefix string, p *Pic) error {
	if !p.IsSet() {
		if err := cfg.Delete(prefix + "/url"); err != nil {
			return err
		}
		return cfg.Delete(prefix + "/key")
	}
	if err := Check(p, cfg.Limits().MaxProfileURLLength); err != nil {
		return err
	}
	if err := cfg.Set(prefix+"/url", ir.IRString(p.URL)); err != nil {
		return err
	}
	return cfg.Set(prefix+"/key", ir.Bytes(p.Key))
}

// Check validates a set picture without writing it.
func Check(p *Pic, maxURL int) error {
	if !p.IsSet() {
		return nil
	}
	if len(p.URL) > maxURL {
		return engine.NewInvalidInputError("profile picture", "URL is %d bytes, limit is %d", len(p.URL), maxURL)
	}
	if len(p.Key) != KeySize {
		return engine.NewInvalidInputError("profile picture", "key must be %d bytes, got %d", KeySize, len(p.Key))
	}
	return nil
}
