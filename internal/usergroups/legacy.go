package usergroups

import (
	"time"

	"github.com/roach88/swarmsync/internal/engine"
	"github.com/roach88/swarmsync/internal/identity"
	"github.com/roach88/swarmsync/internal/ir"
)

// LegacyGroupMember is one member of a legacy group.
type LegacyGroupMember struct {
	PubkeyHex string
	IsAdmin   bool
}

// LegacyGroupInfo is a legacy closed group.
type LegacyGroupInfo struct {
	PubkeyHex         string
	Name              string
	EncPubkey         []byte
	EncSeckey         []byte
	Priority          int64
	JoinedAtSeconds   int64
	DisappearingTimer time.Duration
	Members           []LegacyGroupMember
}

func legacyKey(id, field string) string {
	return "l/" + id + "/" + field
}

func checkLegacyID(op, id string) error {
	if _, err := identity.ParseSessionID(id); err != nil {
		return engine.NewInvalidInputError(op, "%v", err)
	}
	return nil
}

// GetLegacyGroup returns the group, or nil if it is not stored.
func (u *UserGroups) GetLegacyGroup(id string) (*LegacyGroupInfo, error) {
	if err := checkLegacyID("get legacy group", id); err != nil {
		return nil, err
	}
	if !u.cfg.GetBool(legacyKey(id, "exists")) {
		return nil, nil
	}
	info := u.readLegacy(id)
	return &info, nil
}

func (u *UserGroups) readLegacy(id string) LegacyGroupInfo {
	info := LegacyGroupInfo{
		PubkeyHex:         id,
		Name:              u.cfg.GetString(legacyKey(id, "name")),
		Priority:          u.cfg.GetInt(legacyKey(id, "priority")),
		JoinedAtSeconds:   u.cfg.GetInt(legacyKey(id, "joined")),
		DisappearingTimer: time.Duration(u.cfg.GetInt(legacyKey(id, "disappear"))) * time.Second,
	}
	if v, ok := u.cfg.Get(legacyKey(id, "enc_pub")); ok {
		info.EncPubkey, _ = ir.AsBytes(v)
	}
	if v, ok := u.cfg.Get(legacyKey(id, "enc_sec")); ok {
		info.EncSeckey, _ = ir.AsBytes(v)
	}
	prefix := legacyKey(id, "m/")
	for _, k := range u.cfg.Keys(prefix) {
		info.Members = append(info.Members, LegacyGroupMember{
			PubkeyHex: k[len(prefix):],
			IsAdmin:   u.cfg.GetBool(k),
		})
	}
	return info
}

// GetAllLegacyGroups lists legacy groups ordered by id.
func (u *UserGroups) GetAllLegacyGroups() []LegacyGroupInfo {
	var out []LegacyGroupInfo
	for _, id := range u.cfg.Members("l/", "exists") {
		if u.cfg.GetBool(legacyKey(id, "exists")) {
			out = append(out, u.readLegacy(id))
		}
	}
	return out
}

// SetLegacyGroup stores info. The member list replaces the stored one;
// empty name or keys leave the stored values untouched, and the join time
// only moves forward.
func (u *UserGroups) SetLegacyGroup(info LegacyGroupInfo) error {
	const op = "set legacy group"
	id := info.PubkeyHex
	if err := checkLegacyID(op, id); err != nil {
		return err
	}
	name, err := engine.NormalizeText(op, "name", info.Name, u.cfg.Limits().MaxNameLength)
	if err != nil {
		return err
	}
	for _, k := range [][]byte{info.EncPubkey, info.EncSeckey} {
		if len(k) != 0 && len(k) != 32 {
			return engine.NewInvalidInputError(op, "encryption keys must be 32 bytes")
		}
	}
	want := make(map[string]bool, len(info.Members))
	for _, m := range info.Members {
		if err := checkLegacyID(op, m.PubkeyHex); err != nil {
			return err
		}
		want[m.PubkeyHex] = m.IsAdmin
	}

	if err := u.cfg.Set(legacyKey(id, "exists"), ir.IRBool(true)); err != nil {
		return err
	}
	if name != "" {
		if err := u.cfg.Set(legacyKey(id, "name"), ir.IRString(name)); err != nil {
			return err
		}
	}
	if len(info.EncPubkey) > 0 {
		if err := u.cfg.Set(legacyKey(id, "enc_pub"), ir.Bytes(info.EncPubkey)); err != nil {
			return err
		}
	}
	if len(info.EncSeckey) > 0 {
		if err := u.cfg.Set(legacyKey(id, "enc_sec"), ir.Bytes(info.EncSeckey)); err != nil {
			return err
		}
	}
	if err := u.cfg.Set(legacyKey(id, "priority"), ir.IRInt(info.Priority)); err != nil {
		return err
	}
	if err := u.cfg.Set(legacyKey(id, "joined"), ir.IRInt(info.JoinedAtSeconds)); err != nil {
		return err
	}
	if err := u.cfg.Set(legacyKey(id, "disappear"), ir.IRInt(int64(info.DisappearingTimer/time.Second))); err != nil {
		return err
	}

	prefix := legacyKey(id, "m/")
	for _, k := range u.cfg.Keys(prefix) {
		if _, keep := want[k[len(prefix):]]; !keep {
			if err := u.cfg.Delete(k); err != nil {
				return err
			}
		}
	}
	for mid, admin := range want {
		if err := u.cfg.Set(prefix+mid, ir.IRBool(admin)); err != nil {
			return err
		}
	}
	return nil
}

// EraseLegacyGroup removes a legacy group. It reports whether it existed.
func (u *UserGroups) EraseLegacyGroup(id string) (bool, error) {
	if err := checkLegacyID("erase legacy group", id); err != nil {
		return false, err
	}
	if !u.cfg.GetBool(legacyKey(id, "exists")) {
		return false, nil
	}
	keys := []string{
		legacyKey(id, "exists"), legacyKey(id, "name"), legacyKey(id, "enc_pub"),
		legacyKey(id, "enc_sec"), legacyKey(id, "priority"), legacyKey(id, "disappear"),
	}
	keys = append(keys, u.cfg.Keys(legacyKey(id, "m/"))...)
	return true, deleteAll(u.cfg, keys)
}
