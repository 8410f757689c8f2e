// Package contacts is the user's contact list config.
package contacts

import (
	"crypto/ed25519"
	"time"

	"github.com/roach88/swarmsync/internal/engine"
	"github.com/roach88/swarmsync/internal/identity"
	"github.com/roach88/swarmsync/internal/ir"
	"github.com/roach88/swarmsync/internal/profilepic"
	"github.com/roach88/swarmsync/internal/settings"
)

// ExpirationMode is a contact's disappearing-message setting.
type ExpirationMode string

const (
	ExpirationOff             ExpirationMode = "off"
	ExpirationDeleteAfterRead ExpirationMode = "deleteAfterRead"
	ExpirationDeleteAfterSend ExpirationMode = "deleteAfterSend"
)

var modeCodes = map[ExpirationMode]int64{
	ExpirationOff:             0,
	ExpirationDeleteAfterRead: 1,
	ExpirationDeleteAfterSend: 2,
}

func modeFromCode(n int64) ExpirationMode {
	for m, c := range modeCodes {
		if c == n {
			return m
		}
	}
	return ExpirationOff
}

// ContactInfo is one contact.
type ContactInfo struct {
	ID               string
	Name             string
	Nickname         string
	Approved         bool
	ApprovedMe       bool
	Blocked          bool
	Priority         int64
	CreatedAtSeconds int64
	Pic              *profilepic.Pic
	ExpirationMode   ExpirationMode
	ExpirationTimer  time.Duration
}

const (
	fExists     = "exists"
	fName       = "name"
	fNickname   = "nickname"
	fApproved   = "approved"
	fApprovedMe = "approved_me"
	fBlocked    = "blocked"
	fPriority   = "priority"
	fCreated    = "created"
	fPic        = "pic"
	fExpMode    = "exp_mode"
	fExpTimer   = "exp_timer"
)

// erasable is every last-writer-wins field removed by Erase. The
// first-writer creation time survives so a re-added contact keeps it.
var erasable = []string{
	fExists, fName, fNickname, fApproved, fApprovedMe, fBlocked, fPriority,
	fPic + "/url", fPic + "/key", fExpMode, fExpTimer,
}

func key(id, field string) string {
	return "c/" + id + "/" + field
}

func schema(l settings.Limits) engine.Schema {
	fields := []engine.Field{
		{Path: "c/*/" + fExists, Kind: engine.KindBool},
		{Path: "c/*/" + fName, Kind: engine.KindString, MaxLen: l.MaxNameLength},
		{Path: "c/*/" + fNickname, Kind: engine.KindString, MaxLen: l.MaxNameLength},
		{Path: "c/*/" + fApproved, Kind: engine.KindBool},
		{Path: "c/*/" + fApprovedMe, Kind: engine.KindBool},
		{Path: "c/*/" + fBlocked, Kind: engine.KindBool},
		{Path: "c/*/" + fPriority, Kind: engine.KindInt},
		{Path: "c/*/" + fCreated, Policy: engine.FirstWriter, Kind: engine.KindInt},
		{Path: "c/*/" + fExpMode, Kind: engine.KindInt, Min: 0, Max: 2},
		{Path: "c/*/" + fExpTimer, Kind: engine.KindInt},
	}
	fields = append(fields, profilepic.Fields("c/*/"+fPic, l.MaxProfileURLLength)...)
	return engine.NewSchema(engine.NamespaceContacts, fields...)
}

// Contacts is the Contacts config.
type Contacts struct {
	engine.Base
	cfg *engine.Config
}

// New opens the contact list owned by secret.
func New(secret ed25519.PrivateKey, dump []byte, limits settings.Limits, opts ...engine.Option) (*Contacts, error) {
	sealer, err := engine.NewSecretboxSealer(secret, engine.NamespaceContacts)
	if err != nil {
		return nil, err
	}
	opts = append(opts, engine.WithLimits(limits))
	cfg, err := engine.New(schema(limits), sealer, dump, opts...)
	if err != nil {
		return nil, err
	}
	return &Contacts{Base: engine.NewBase(cfg), cfg: cfg}, nil
}

func checkID(op, id string) error {
	if _, err := identity.ParseSessionID(id); err != nil {
		return engine.NewInvalidInputError(op, "%v", err)
	}
	return nil
}

// Get returns the contact, or nil when it is not in the list.
func (c *Contacts) Get(id string) (*ContactInfo, error) {
	if err := checkID("get contact", id); err != nil {
		return nil, err
	}
	if !c.cfg.GetBool(key(id, fExists)) {
		return nil, nil
	}
	info := c.read(id)
	return &info, nil
}

// GetOrConstruct returns the stored contact or a default one. The default
// is not stored until passed to Set.
func (c *Contacts) GetOrConstruct(id string) (ContactInfo, error) {
	if err := checkID("get contact", id); err != nil {
		return ContactInfo{}, err
	}
	if c.cfg.GetBool(key(id, fExists)) {
		return c.read(id), nil
	}
	return ContactInfo{ID: id, ExpirationMode: ExpirationOff}, nil
}

func (c *Contacts) read(id string) ContactInfo {
	return ContactInfo{
		ID:               id,
		Name:             c.cfg.GetString(key(id, fName)),
		Nickname:         c.cfg.GetString(key(id, fNickname)),
		Approved:         c.cfg.GetBool(key(id, fApproved)),
		ApprovedMe:       c.cfg.GetBool(key(id, fApprovedMe)),
		Blocked:          c.cfg.GetBool(key(id, fBlocked)),
		Priority:         c.cfg.GetInt(key(id, fPriority)),
		CreatedAtSeconds: c.cfg.GetInt(key(id, fCreated)),
		Pic:              profilepic.Load(c.cfg, key(id, fPic)),
		ExpirationMode:   modeFromCode(c.cfg.GetInt(key(id, fExpMode))),
		ExpirationTimer:  time.Duration(c.cfg.GetInt(key(id, fExpTimer))) * time.Second,
	}
}

// Set stores info, creating the contact if needed. A zero CreatedAtSeconds
// is replaced by the current time; once set, the creation time never
// changes. An empty nickname or nil picture clears the stored one.
func (c *Contacts) Set(info ContactInfo) error {
	const op = "set contact"
	if err := checkID(op, info.ID); err != nil {
		return err
	}
	limits := c.cfg.Limits()
	name, err := engine.NormalizeText(op, "name", info.Name, limits.MaxNameLength)
	if err != nil {
		return err
	}
	nickname, err := engine.NormalizeText(op, "nickname", info.Nickname, limits.MaxNameLength)
	if err != nil {
		return err
	}
	if err := profilepic.Check(info.Pic, limits.MaxProfileURLLength); err != nil {
		return err
	}
	mode := info.ExpirationMode
	if mode == "" {
		mode = ExpirationOff
	}
	code, ok := modeCodes[mode]
	if !ok {
		return engine.NewInvalidInputError(op, "unknown expiration mode %q", info.ExpirationMode)
	}
	created := info.CreatedAtSeconds
	if created == 0 {
		created = c.cfg.Now().Unix()
	}

	id := info.ID
	writes := []func() error{
		func() error { return c.cfg.Set(key(id, fExists), ir.IRBool(true)) },
		func() error { return c.cfg.SetOrDelete(key(id, fName), name) },
		func() error { return c.cfg.SetOrDelete(key(id, fNickname), nickname) },
		func() error { return c.cfg.Set(key(id, fApproved), ir.IRBool(info.Approved)) },
		func() error { return c.cfg.Set(key(id, fApprovedMe), ir.IRBool(info.ApprovedMe)) },
		func() error { return c.cfg.Set(key(id, fBlocked), ir.IRBool(info.Blocked)) },
		func() error { return c.cfg.Set(key(id, fPriority), ir.IRInt(info.Priority)) },
		func() error { return c.cfg.Set(key(id, fCreated), ir.IRInt(created)) },
		func() error { return c.cfg.Set(key(id, fExpMode), ir.IRInt(code)) },
		func() error { return c.cfg.Set(key(id, fExpTimer), ir.IRInt(int64(info.ExpirationTimer/time.Second))) },
		func() error { return profilepic.Store(c.cfg, key(id, fPic), info.Pic) },
	}
	for _, w := range writes {
		if err := w(); err != nil {
			return err
		}
	}
	return nil
}

// GetAll returns every contact ordered by id.
func (c *Contacts) GetAll() []ContactInfo {
	ids := c.cfg.Members("c/", fExists)
	out := make([]ContactInfo, 0, len(ids))
	for _, id := range ids {
		if c.cfg.GetBool(key(id, fExists)) {
			out = append(out, c.read(id))
		}
	}
	return out
}

// Erase removes a contact. It reports whether the contact existed.
func (c *Contacts) Erase(id string) (bool, error) {
	if err := checkID("erase contact", id); err != nil {
		return false, err
	}
	if !c.cfg.GetBool(key(id, fExists)) {
		return false, nil
	}
	for _, f := range erasable {
		if err := c.cfg.Delete(key(id, f)); err != nil {
			return false, err
		}
	}
	return true, nil
}

// StateDigest fingerprints the contact list values.
func (c *Contacts) StateDigest() (string, error) {
	return c.cfg.StateDigest()
}
