// Package groupinfo is the shared metadata config of an encrypted group.
// Only admins write it; every member reads it.
package groupinfo

import (
	"github.com/roach88/swarmsync/internal/engine"
	"github.com/roach88/swarmsync/internal/ir"
	"github.com/roach88/swarmsync/internal/profilepic"
	"github.com/roach88/swarmsync/internal/settings"
)

const (
	keyName         = "name"
	keyDescription  = "desc"
	keyCreated      = "created"
	keyDeleteBefore = "delete_before"
	keyAttachBefore = "delete_attach_before"
	keyExpiry       = "expiry"
	keyDestroyed    = "destroyed"
	picPrefix       = "pic"
)

// Info is the group metadata as read back.
type Info struct {
	Name                      string
	Description               string
	CreatedAtSeconds          int64
	DeleteBeforeSeconds       int64
	DeleteAttachBeforeSeconds int64
	ExpirySeconds             int64
	Pic                       *profilepic.Pic
	Destroyed                 bool
}

// Update changes the fields that are non-nil. An empty Name or
// Description clears it; a Pic that is not set clears the picture.
// CreatedAtSeconds is kept from the first write. The two delete-before
// cutoffs only move forward.
type Update struct {
	Name                      *string
	Description               *string
	CreatedAtSeconds          *int64
	DeleteBeforeSeconds       *int64
	DeleteAttachBeforeSeconds *int64
	ExpirySeconds             *int64
	Pic                       *profilepic.Pic
	ClearPic                  bool
}

func schema(l settings.Limits) engine.Schema {
	fields := []engine.Field{
		{Path: keyName, Kind: engine.KindString, MaxLen: l.MaxNameLength},
		{Path: keyDescription, Kind: engine.KindString, MaxLen: l.MaxDescriptionLength},
		{Path: keyCreated, Policy: engine.FirstWriter, Kind: engine.KindInt},
		{Path: keyDeleteBefore, Policy: engine.MaxValue, Kind: engine.KindInt},
		{Path: keyAttachBefore, Policy: engine.MaxValue, Kind: engine.KindInt},
		{Path: keyExpiry, Kind: engine.KindInt},
		{Path: keyDestroyed, Policy: engine.MaxValue, Kind: engine.KindInt, Min: 0, Max: 1},
	}
	fields = append(fields, profilepic.Fields(picPrefix, l.MaxProfileURLLength)...)
	return engine.NewSchema(engine.NamespaceGroupInfo, fields...)
}

// GroupInfo is the GroupInfo config.
type GroupInfo struct {
	engine.Base
	cfg *engine.Config
}

// New opens group info sealed by sealer, normally a keys.Sealer.
func New(sealer engine.Sealer, dump []byte, limits settings.Limits, opts ...engine.Option) (*GroupInfo, error) {
	opts = append(opts, engine.WithLimits(limits))
	cfg, err := engine.New(schema(limits), sealer, dump, opts...)
	if err != nil {
		return nil, err
	}
	return &GroupInfo{Base: engine.NewBase(cfg), cfg: cfg}, nil
}

// Get returns the current metadata.
func (g *GroupInfo) Get() Info {
	return Info{
		Name:                      g.cfg.GetString(keyName),
		Description:               g.cfg.GetString(keyDescription),
		CreatedAtSeconds:          g.cfg.GetInt(keyCreated),
		DeleteBeforeSeconds:       g.cfg.GetInt(keyDeleteBefore),
		DeleteAttachBeforeSeconds: g.cfg.GetInt(keyAttachBefore),
		ExpirySeconds:             g.cfg.GetInt(keyExpiry),
		Pic:                       profilepic.Load(g.cfg, picPrefix),
		Destroyed:                 g.cfg.GetInt(keyDestroyed) == 1,
	}
}

// Set applies u. Nothing is written when any field is invalid.
func (g *GroupInfo) Set(u Update) error {
	const op = "set group info"
	limits := g.cfg.Limits()
	var name, desc string
	var err error
	if u.Name != nil {
		if name, err = engine.NormalizeText(op, "name", *u.Name, limits.MaxNameLength); err != nil {
			return err
		}
	}
	if u.Description != nil {
		if desc, err = engine.NormalizeText(op, "description", *u.Description, limits.MaxDescriptionLength); err != nil {
			return err
		}
	}
	for field, v := range map[string]*int64{
		"created":              u.CreatedAtSeconds,
		"delete before":        u.DeleteBeforeSeconds,
		"delete attach before": u.DeleteAttachBeforeSeconds,
		"expiry":               u.ExpirySeconds,
	} {
		if v != nil && *v < 0 {
			return engine.NewInvalidInputError(op, "%s must not be negative", field)
		}
	}
	if err := profilepic.Check(u.Pic, limits.MaxProfileURLLength); err != nil {
		return err
	}

	if u.Name != nil {
		if err := g.cfg.SetOrDelete(keyName, name); err != nil {
			return err
		}
	}
	if u.Description != nil {
		if err := g.cfg.SetOrDelete(keyDescription, desc); err != nil {
			return err
		}
	}
	ints := []struct {
		key string
		v   *int64
	}{
		{keyCreated, u.CreatedAtSeconds},
		{keyDeleteBefore, u.DeleteBeforeSeconds},
		{keyAttachBefore, u.DeleteAttachBeforeSeconds},
		{keyExpiry, u.ExpirySeconds},
	}
	for _, f := range ints {
		if f.v == nil {
			continue
		}
		if err := g.cfg.Set(f.key, ir.IRInt(*f.v)); err != nil {
			return err
		}
	}
	if u.Pic != nil || u.ClearPic {
		return profilepic.Store(g.cfg, picPrefix, u.Pic)
	}
	return nil
}

// Destroy marks the group destroyed for every member. It cannot be undone.
func (g *GroupInfo) Destroy() error {
	return g.cfg.Set(keyDestroyed, ir.IRInt(1))
}

// IsDestroyed reports whether any admin destroyed the group.
func (g *GroupInfo) IsDestroyed() bool {
	return g.cfg.GetInt(keyDestroyed) == 1
}

// StateDigest fingerprints the metadata values.
func (g *GroupInfo) StateDigest() (string, error) {
	return g.cfg.StateDigest()
}
