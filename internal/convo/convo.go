// Package convo is the per-conversation volatile state config: last read
// timestamp and the manual unread flag for every conversation kind.
package convo

import (
	"crypto/ed25519"
	"encoding/hex"
	"strings"

	"github.com/roach88/swarmsync/internal/community"
	"github.com/roach88/swarmsync/internal/engine"
	"github.com/roach88/swarmsync/internal/identity"
	"github.com/roach88/swarmsync/internal/ir"
	"github.com/roach88/swarmsync/internal/settings"
)

// Kind is a conversation type.
type Kind string

const (
	KindOneToOne    Kind = "1o1"
	KindLegacyGroup Kind = "legacy"
	KindGroup       Kind = "group"
	KindCommunity   Kind = "community"
)

var prefixes = map[Kind]string{
	KindOneToOne:    "1/",
	KindLegacyGroup: "l/",
	KindGroup:       "g/",
}

// Info is the volatile state of one conversation. For communities ID is
// the full URL.
type Info struct {
	Kind     Kind
	ID       string
	LastRead int64
	Unread   bool
}

// CommunityInfo adds room details to a community conversation.
type CommunityInfo struct {
	Info
	community.Details
}

// Convo is the ConvoInfoVolatile config.
type Convo struct {
	engine.Base
	cfg *engine.Config
}

func schema() engine.Schema {
	var fields []engine.Field
	for _, p := range []string{"1/*/", "l/*/", "g/*/", "o/*/r/*/"} {
		fields = append(fields,
			engine.Field{Path: p + "exists", Kind: engine.KindBool},
			engine.Field{Path: p + "read", Policy: engine.MaxValue, Kind: engine.KindInt},
			engine.Field{Path: p + "unread", Kind: engine.KindBool},
		)
	}
	fields = append(fields,
		engine.Field{Path: "o/*/r/*/room", Kind: engine.KindString, MaxLen: 64},
		engine.Field{Path: "o/*/pubkey", Kind: engine.KindBytes, Len: community.PubkeySize},
	)
	return engine.NewSchema(engine.NamespaceConvoInfoVolatile, fields...)
}

// New opens the conversation state owned by secret.
func New(secret ed25519.PrivateKey, dump []byte, limits settings.Limits, opts ...engine.Option) (*Convo, error) {
	sealer, err := engine.NewSecretboxSealer(secret, engine.NamespaceConvoInfoVolatile)
	if err != nil {
		return nil, err
	}
	opts = append(opts, engine.WithLimits(limits))
	cfg, err := engine.New(schema(), sealer, dump, opts...)
	if err != nil {
		return nil, err
	}
	return &Convo{Base: engine.NewBase(cfg), cfg: cfg}, nil
}

func checkID(kind Kind, id string) error {
	var err error
	switch kind {
	case KindOneToOne, KindLegacyGroup:
		_, err = identity.ParseSessionID(id)
	case KindGroup:
		_, err = identity.ParseGroupID(id)
	default:
		return engine.NewMisuseError("convo", "kind %q is not keyed by id", kind)
	}
	if err != nil {
		return engine.NewInvalidInputError("convo", "%v", err)
	}
	return nil
}

// Get returns the state of a 1o1, legacy group, or group conversation, or
// nil when none is stored.
func (c *Convo) Get(kind Kind, id string) (*Info, error) {
	if err := checkID(kind, id); err != nil {
		return nil, err
	}
	p := prefixes[kind] + id + "/"
	if !c.cfg.GetBool(p + "exists") {
		return nil, nil
	}
	info := c.read(kind, id, p)
	return &info, nil
}

func (c *Convo) read(kind Kind, id, p string) Info {
	return Info{
		Kind:     kind,
		ID:       id,
		LastRead: c.cfg.GetInt(p + "read"),
		Unread:   c.cfg.GetBool(p + "unread"),
	}
}

// GetAll lists conversations of one id-keyed kind ordered by id.
func (c *Convo) GetAll(kind Kind) ([]Info, error) {
	prefix, ok := prefixes[kind]
	if !ok {
		return nil, engine.NewMisuseError("convo", "kind %q is not keyed by id", kind)
	}
	var out []Info
	for _, id := range c.cfg.Members(prefix, "exists") {
		out = append(out, c.read(kind, id, prefix+id+"/"))
	}
	return out, nil
}

// Set records state for a conversation. LastRead never moves backwards.
func (c *Convo) Set(kind Kind, id string, lastRead int64, unread bool) error {
	if err := checkID(kind, id); err != nil {
		return err
	}
	return c.write(prefixes[kind]+id+"/", lastRead, unread)
}

func (c *Convo) write(p string, lastRead int64, unread bool) error {
	if err := c.cfg.Set(p+"exists", ir.IRBool(true)); err != nil {
		return err
	}
	if err := c.cfg.Set(p+"read", ir.IRInt(lastRead)); err != nil {
		return err
	}
	return c.cfg.Set(p+"unread", ir.IRBool(unread))
}

// Erase forgets a conversation. It reports whether one was stored. The
// last read timestamp is kept so a re-created conversation does not
// resurface old messages as unread.
func (c *Convo) Erase(kind Kind, id string) (bool, error) {
	if err := checkID(kind, id); err != nil {
		return false, err
	}
	return c.erase(prefixes[kind] + id + "/")
}

func (c *Convo) erase(p string) (bool, error) {
	if !c.cfg.GetBool(p + "exists") {
		return false, nil
	}
	if err := c.cfg.Delete(p + "exists"); err != nil {
		return false, err
	}
	return true, c.cfg.Delete(p + "unread")
}

func communityPrefix(d community.Details) string {
	return "o/" + hex.EncodeToString([]byte(d.BaseURL)) + "/r/" + community.RoomKey(d.Room) + "/"
}

func parseURL(full string) (community.Details, error) {
	d, err := community.ParseFullURL(full)
	if err != nil {
		return d, engine.NewInvalidInputError("convo community", "%v", err)
	}
	return d, nil
}

// SetCommunityByFullURL records state for a community room. The URL must
// carry the server pubkey.
func (c *Convo) SetCommunityByFullURL(full string, lastRead int64, unread bool) error {
	d, err := parseURL(full)
	if err != nil {
		return err
	}
	if d.Pubkey == nil {
		return engine.NewInvalidInputError("convo community", "%q has no public_key", full)
	}
	p := communityPrefix(d)
	base := "o/" + hex.EncodeToString([]byte(d.BaseURL)) + "/"
	if err := c.cfg.Set(base+"pubkey", ir.Bytes(d.Pubkey)); err != nil {
		return err
	}
	if _, ok := c.cfg.Get(p + "room"); !ok {
		if err := c.cfg.Set(p+"room", ir.IRString(d.Room)); err != nil {
			return err
		}
	}
	return c.write(p, lastRead, unread)
}

// GetCommunity looks a room up by URL, with or without pubkey.
func (c *Convo) GetCommunity(full string) (*CommunityInfo, error) {
	d, err := parseURL(full)
	if err != nil {
		return nil, err
	}
	info, ok := c.readCommunity(d.BaseURL, community.RoomKey(d.Room))
	if !ok {
		return nil, nil
	}
	return &info, nil
}

func (c *Convo) readCommunity(base, roomKey string) (CommunityInfo, bool) {
	bp := "o/" + hex.EncodeToString([]byte(base)) + "/"
	p := bp + "r/" + roomKey + "/"
	if !c.cfg.GetBool(p + "exists") {
		return CommunityInfo{}, false
	}
	pk, _ := c.cfg.Get(bp + "pubkey")
	pubkey, _ := ir.AsBytes(pk)
	d := community.Details{BaseURL: base, Room: c.cfg.GetString(p + "room"), Pubkey: pubkey}
	return CommunityInfo{
		Info:    c.read(KindCommunity, d.FullURL(), p),
		Details: d,
	}, true
}

// GetAllCommunities lists community conversations ordered by base URL and
// room.
func (c *Convo) GetAllCommunities() []CommunityInfo {
	var out []CommunityInfo
	for _, k := range c.cfg.Keys("o/") {
		parts := strings.Split(k, "/")
		if len(parts) != 5 || parts[4] != "exists" {
			continue
		}
		base, err := hex.DecodeString(parts[1])
		if err != nil {
			continue
		}
		if info, ok := c.readCommunity(string(base), parts[3]); ok {
			out = append(out, info)
		}
	}
	return out
}

// EraseCommunityByFullURL forgets a community conversation.
func (c *Convo) EraseCommunityByFullURL(full string) (bool, error) {
	d, err := parseURL(full)
	if err != nil {
		return false, err
	}
	return c.erase(communityPrefix(d))
}

// StateDigest fingerprints the conversation state values.
func (c *Convo) StateDigest() (string, error) {
	return c.cfg.StateDigest()
}
