package usergroups

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"

	"github.com/cockroachdb/errors"

	"github.com/roach88/swarmsync/internal/engine"
	"github.com/roach88/swarmsync/internal/identity"
	"github.com/roach88/swarmsync/internal/ir"
)

// GroupInfo is a group the user belongs to.
type GroupInfo struct {
	PubkeyHex       string
	SecretKey       ed25519.PrivateKey
	AuthData        []byte
	Name            string
	Priority        int64
	JoinedAtSeconds int64
	Invited         bool
	Kicked          bool
}

// GroupUpdate changes selected fields of a group. Nil fields are left
// untouched.
type GroupUpdate struct {
	PubkeyHex       string
	SecretKey       ed25519.PrivateKey
	AuthData        []byte
	Name            *string
	Priority        *int64
	JoinedAtSeconds *int64
	Invited         *bool
	Kicked          *bool
}

func groupKey(id, field string) string {
	return "g/" + id + "/" + field
}

func checkGroupID(op, id string) (ed25519.PublicKey, error) {
	pub, err := identity.ParseGroupID(id)
	if err != nil {
		return nil, engine.NewInvalidInputError(op, "%v", err)
	}
	return pub, nil
}

// CreateGroup generates a new group key pair and stores the group with
// its secret key.
func (u *UserGroups) CreateGroup() (GroupInfo, error) {
	pub, sk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return GroupInfo{}, errors.Wrap(err, "generate group key")
	}
	id := identity.GroupID(pub)
	joined := u.cfg.Now().Unix()
	if _, err := u.SetGroup(GroupUpdate{PubkeyHex: id, SecretKey: sk, JoinedAtSeconds: &joined}); err != nil {
		return GroupInfo{}, err
	}
	return u.readGroup(id), nil
}

// GetGroup returns the group, or nil if it is not stored.
func (u *UserGroups) GetGroup(id string) (*GroupInfo, error) {
	if _, err := checkGroupID("get group", id); err != nil {
		return nil, err
	}
	if !u.cfg.GetBool(groupKey(id, "exists")) {
		return nil, nil
	}
	info := u.readGroup(id)
	return &info, nil
}

func (u *UserGroups) readGroup(id string) GroupInfo {
	info := GroupInfo{
		PubkeyHex:       id,
		Name:            u.cfg.GetString(groupKey(id, "name")),
		Priority:        u.cfg.GetInt(groupKey(id, "priority")),
		JoinedAtSeconds: u.cfg.GetInt(groupKey(id, "joined")),
		Invited:         u.cfg.GetBool(groupKey(id, "invited")),
		Kicked:          u.cfg.GetBool(groupKey(id, "kicked")),
	}
	if v, ok := u.cfg.Get(groupKey(id, "secret")); ok {
		if b, _ := ir.AsBytes(v); len(b) == ed25519.PrivateKeySize {
			info.SecretKey = ed25519.PrivateKey(b)
		}
	}
	if v, ok := u.cfg.Get(groupKey(id, "auth")); ok {
		if b, _ := ir.AsBytes(v); len(b) > 0 {
			info.AuthData = b
		}
	}
	return info
}

// GetAllGroups lists groups ordered by id.
func (u *UserGroups) GetAllGroups() []GroupInfo {
	var out []GroupInfo
	for _, id := range u.cfg.Members("g/", "exists") {
		if u.cfg.GetBool(groupKey(id, "exists")) {
			out = append(out, u.readGroup(id))
		}
	}
	return out
}

// SetGroup creates or updates a group and returns the stored result. A
// secret key must belong to the group id. Setting Kicked drops the stored
// keys.
func (u *UserGroups) SetGroup(up GroupUpdate) (GroupInfo, error) {
	const op = "set group"
	pub, err := checkGroupID(op, up.PubkeyHex)
	if err != nil {
		return GroupInfo{}, err
	}
	if up.SecretKey != nil {
		if len(up.SecretKey) != ed25519.PrivateKeySize ||
			!bytes.Equal(up.SecretKey.Public().(ed25519.PublicKey), pub) {
			return GroupInfo{}, engine.NewInvalidInputError(op, "secret key does not match %s", up.PubkeyHex)
		}
	}
	if up.AuthData != nil && len(up.AuthData) != 100 {
		return GroupInfo{}, engine.NewInvalidInputError(op, "auth data must be 100 bytes, got %d", len(up.AuthData))
	}
	var name string
	if up.Name != nil {
		if name, err = engine.NormalizeText(op, "name", *up.Name, u.cfg.Limits().MaxNameLength); err != nil {
			return GroupInfo{}, err
		}
	}

	id := up.PubkeyHex
	cfg := u.cfg
	writes := []func() error{
		func() error { return cfg.Set(groupKey(id, "exists"), ir.IRBool(true)) },
	}
	if up.SecretKey != nil {
		writes = append(writes, func() error { return cfg.Set(groupKey(id, "secret"), ir.Bytes(up.SecretKey)) })
	}
	if up.AuthData != nil {
		writes = append(writes, func() error { return cfg.Set(groupKey(id, "auth"), ir.Bytes(up.AuthData)) })
	}
	if up.Name != nil {
		writes = append(writes, func() error { return cfg.SetOrDelete(groupKey(id, "name"), name) })
	}
	if up.Priority != nil {
		writes = append(writes, func() error { return cfg.Set(groupKey(id, "priority"), ir.IRInt(*up.Priority)) })
	}
	if up.JoinedAtSeconds != nil {
		writes = append(writes, func() error { return cfg.Set(groupKey(id, "joined"), ir.IRInt(*up.JoinedAtSeconds)) })
	}
	if up.Invited != nil {
		writes = append(writes, func() error { return cfg.Set(groupKey(id, "invited"), ir.IRBool(*up.Invited)) })
	}
	if up.Kicked != nil {
		writes = append(writes, func() error { return cfg.Set(groupKey(id, "kicked"), ir.IRBool(*up.Kicked)) })
		if *up.Kicked {
			writes = append(writes, func() error {
				return deleteAll(cfg, []string{groupKey(id, "secret"), groupKey(id, "auth")})
			})
		}
	}
	for _, w := range writes {
		if err := w(); err != nil {
			return GroupInfo{}, err
		}
	}
	return u.readGroup(id), nil
}

// EraseGroup removes a group. It reports whether it existed.
func (u *UserGroups) EraseGroup(id string) (bool, error) {
	if _, err := checkGroupID("erase group", id); err != nil {
		return false, err
	}
	if !u.cfg.GetBool(groupKey(id, "exists")) {
		return false, nil
	}
	var keys []string
	for _, f := range []string{"exists", "secret", "auth", "name", "priority", "joined", "invited", "kicked"} {
		keys = append(keys, groupKey(id, f))
	}
	return true, deleteAll(u.cfg, keys)
}
