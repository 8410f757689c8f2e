// Package profile is the user's own profile config: display name, pin
// priority, profile picture, and message-request preferences.
package profile

import (
	"crypto/ed25519"

	"github.com/roach88/swarmsync/internal/engine"
	"github.com/roach88/swarmsync/internal/ir"
	"github.com/roach88/swarmsync/internal/profilepic"
	"github.com/roach88/swarmsync/internal/settings"
)

const (
	keyName     = "name"
	keyPriority = "priority"
	keyBlinded  = "blinded_msgreqs"
	picPrefix   = "pic"
)

// Info is the profile as read back.
type Info struct {
	Name     string
	Priority int64
	Pic      *profilepic.Pic
}

// Profile is the UserProfile config.
type Profile struct {
	engine.Base
	cfg *engine.Config
}

func schema(l settings.Limits) engine.Schema {
	fields := []engine.Field{
		{Path: keyName, Kind: engine.KindString, MaxLen: l.MaxNameLength},
		{Path: keyPriority, Kind: engine.KindInt},
		{Path: keyBlinded, Kind: engine.KindBool},
	}
	fields = append(fields, profilepic.Fields(picPrefix, l.MaxProfileURLLength)...)
	return engine.NewSchema(engine.NamespaceUserProfile, fields...)
}

// New opens the profile owned by secret, restoring dump if non-empty.
func New(secret ed25519.PrivateKey, dump []byte, limits settings.Limits, opts ...engine.Option) (*Profile, error) {
	sealer, err := engine.NewSecretboxSealer(secret, engine.NamespaceUserProfile)
	if err != nil {
		return nil, err
	}
	opts = append(opts, engine.WithLimits(limits))
	cfg, err := engine.New(schema(limits), sealer, dump, opts...)
	if err != nil {
		return nil, err
	}
	return &Profile{Base: engine.NewBase(cfg), cfg: cfg}, nil
}

// GetUserInfo returns the stored profile. Unset fields are zero.
func (p *Profile) GetUserInfo() Info {
	var info Info
	if v, ok := p.cfg.Get(keyName); ok {
		info.Name, _ = ir.AsString(v)
	}
	if v, ok := p.cfg.Get(keyPriority); ok {
		info.Priority, _ = ir.AsInt(v)
	}
	info.Pic = profilepic.Load(p.cfg, picPrefix)
	return info
}

// SetUserInfo replaces name, priority, and picture. A nil pic clears the
// picture. Nothing is written if any field is invalid.
func (p *Profile) SetUserInfo(name string, priority int64, pic *profilepic.Pic) error {
	name, err := engine.NormalizeText("set user info", "name", name, p.cfg.Limits().MaxNameLength)
	if err != nil {
		return err
	}
	if err := profilepic.Check(pic, p.cfg.Limits().MaxProfileURLLength); err != nil {
		return err
	}
	if name == "" {
		err = p.cfg.Delete(keyName)
	} else {
		err = p.cfg.Set(keyName, ir.IRString(name))
	}
	if err != nil {
		return err
	}
	if err := p.cfg.Set(keyPriority, ir.IRInt(priority)); err != nil {
		return err
	}
	return profilepic.Store(p.cfg, picPrefix, pic)
}

// SetEnableBlindedMsgRequest records whether message requests from blinded
// ids are accepted.
func (p *Profile) SetEnableBlindedMsgRequest(enabled bool) error {
	return p.cfg.Set(keyBlinded, ir.IRBool(enabled))
}

// GetEnableBlindedMsgRequest returns the preference and whether it was ever
// set.
func (p *Profile) GetEnableBlindedMsgRequest() (enabled, ok bool) {
	v, ok := p.cfg.Get(keyBlinded)
	if !ok {
		return false, false
	}
	enabled, _ = ir.AsBool(v)
	return enabled, true
}

// StateDigest fingerprints the profile values.
func (p *Profile) StateDigest() (string, error) {
	return p.cfg.StateDigest()
}
