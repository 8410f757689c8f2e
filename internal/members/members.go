// Package members is the roster config of an encrypted group.
//
// Each member moves through invite, acceptance, promotion and removal:
//
//	Invited(pending) -> Invited(failed) | Accepted
//	Accepted -> PromotionPending(pending|failed) -> Admin
//	any -> PendingRemoval(withMessages) -> Erased
//
// Setters on an unknown member create it in the Invited(pending) state.
package members

import (
	"slices"

	"github.com/roach88/swarmsync/internal/engine"
	"github.com/roach88/swarmsync/internal/identity"
	"github.com/roach88/swarmsync/internal/ir"
	"github.com/roach88/swarmsync/internal/profilepic"
	"github.com/roach88/swarmsync/internal/settings"
)

// RemovedStatus says whether a member is on its way out.
type RemovedStatus int64

const (
	Active RemovedStatus = iota
	Removed
	RemovedWithMessages
)

const (
	inviteAccepted int64 = iota
	invitePending
	inviteFailed
)

const (
	promoNone int64 = iota
	promoPending
	promoFailed
	promoAccepted
)

const (
	fExists  = "exists"
	fName    = "name"
	fPic     = "pic"
	fInvite  = "invite"
	fPromo   = "promo"
	fAdmin   = "admin"
	fRemoved = "removed"
)

var erasable = []string{fExists, fName, fPic + "/url", fPic + "/key", fInvite, fPromo, fAdmin, fRemoved}

// Member is one roster entry.
type Member struct {
	PubkeyHex        string
	Name             string
	ProfilePicture   *profilepic.Pic
	InvitePending    bool
	InviteFailed     bool
	PromotionPending bool
	PromotionFailed  bool
	Promoted         bool
	Admin            bool
	RemovedStatus    RemovedStatus
}

func key(id, field string) string {
	return "m/" + id + "/" + field
}

func schema(l settings.Limits) engine.Schema {
	fields := []engine.Field{
		{Path: "m/*/" + fExists, Kind: engine.KindBool},
		{Path: "m/*/" + fName, Kind: engine.KindString, MaxLen: l.MaxNameLength},
		{Path: "m/*/" + fInvite, Kind: engine.KindInt, Min: inviteAccepted, Max: inviteFailed},
		{Path: "m/*/" + fPromo, Kind: engine.KindInt, Min: promoNone, Max: promoAccepted},
		{Path: "m/*/" + fAdmin, Kind: engine.KindBool},
		{Path: "m/*/" + fRemoved, Kind: engine.KindInt, Min: int64(Active), Max: int64(RemovedWithMessages)},
	}
	fields = append(fields, profilepic.Fields("m/*/"+fPic, l.MaxProfileURLLength)...)
	return engine.NewSchema(engine.NamespaceGroupMembers, fields...)
}

// Members is the GroupMembers config.
type Members struct {
	engine.Base
	cfg *engine.Config
}

// New opens a roster sealed by sealer, normally a keys.Sealer.
func New(sealer engine.Sealer, dump []byte, limits settings.Limits, opts ...engine.Option) (*Members, error) {
	opts = append(opts, engine.WithLimits(limits))
	cfg, err := engine.New(schema(limits), sealer, dump, opts...)
	if err != nil {
		return nil, err
	}
	return &Members{Base: engine.NewBase(cfg), cfg: cfg}, nil
}

func checkID(op, id string) error {
	if _, err := identity.ParseSessionID(id); err != nil {
		return engine.NewInvalidInputError(op, "%v", err)
	}
	return nil
}

func (m *Members) exists(id string) bool {
	return m.cfg.GetBool(key(id, fExists))
}

func (m *Members) read(id string) Member {
	invite := m.cfg.GetInt(key(id, fInvite))
	promo := m.cfg.GetInt(key(id, fPromo))
	return Member{
		PubkeyHex:        id,
		Name:             m.cfg.GetString(key(id, fName)),
		ProfilePicture:   profilepic.Load(m.cfg, key(id, fPic)),
		InvitePending:    invite == invitePending,
		InviteFailed:     invite == inviteFailed,
		PromotionPending: promo == promoPending,
		PromotionFailed:  promo == promoFailed,
		Promoted:         promo == promoAccepted,
		Admin:            m.cfg.GetBool(key(id, fAdmin)),
		RemovedStatus:    RemovedStatus(m.cfg.GetInt(key(id, fRemoved))),
	}
}

func defaultMember(id string) Member {
	return Member{PubkeyHex: id, InvitePending: true}
}

// Get returns a member, or nil when id is not on the roster.
func (m *Members) Get(id string) (*Member, error) {
	if err := checkID("get member", id); err != nil {
		return nil, err
	}
	if !m.exists(id) {
		return nil, nil
	}
	mem := m.read(id)
	return &mem, nil
}

// GetOrConstruct returns the stored member or a default Invited(pending)
// one. The default is not stored.
func (m *Members) GetOrConstruct(id string) (Member, error) {
	if err := checkID("get member", id); err != nil {
		return Member{}, err
	}
	if m.exists(id) {
		return m.read(id), nil
	}
	return defaultMember(id), nil
}

// GetAll returns every member ordered by id.
func (m *Members) GetAll() []Member {
	ids := m.cfg.Members("m/", fExists)
	out := make([]Member, 0, len(ids))
	for _, id := range ids {
		if m.exists(id) {
			out = append(out, m.read(id))
		}
	}
	return out
}

// ActiveMemberIDs lists members that are not being removed. These are the
// recipients of the next key.
func (m *Members) ActiveMemberIDs() []string {
	var out []string
	for _, mem := range m.GetAll() {
		if mem.RemovedStatus == Active {
			out = append(out, mem.PubkeyHex)
		}
	}
	return out
}

// GetAllPendingRemovals lists members marked for removal.
func (m *Members) GetAllPendingRemovals() []Member {
	var out []Member
	for _, mem := range m.GetAll() {
		if mem.RemovedStatus != Active {
			out = append(out, mem)
		}
	}
	return out
}

// Set stores mem as given, creating the member if needed.
func (m *Members) Set(mem Member) error {
	const op = "set member"
	if err := checkID(op, mem.PubkeyHex); err != nil {
		return err
	}
	limits := m.cfg.Limits()
	name, err := engine.NormalizeText(op, "name", mem.Name, limits.MaxNameLength)
	if err != nil {
		return err
	}
	if err := profilepic.Check(mem.ProfilePicture, limits.MaxProfileURLLength); err != nil {
		return err
	}
	if mem.RemovedStatus < Active || mem.RemovedStatus > RemovedWithMessages {
		return engine.NewInvalidInputError(op, "unknown removed status %d", mem.RemovedStatus)
	}

	invite := inviteAccepted
	switch {
	case mem.InviteFailed:
		invite = inviteFailed
	case mem.InvitePending:
		invite = invitePending
	}
	promo := promoNone
	switch {
	case mem.Promoted:
		promo = promoAccepted
	case mem.PromotionFailed:
		promo = promoFailed
	case mem.PromotionPending:
		promo = promoPending
	}

	id := mem.PubkeyHex
	writes := []func() error{
		func() error { return m.cfg.Set(key(id, fExists), ir.IRBool(true)) },
		func() error { return m.cfg.SetOrDelete(key(id, fName), name) },
		func() error { return profilepic.Store(m.cfg, key(id, fPic), mem.ProfilePicture) },
		func() error { return m.cfg.Set(key(id, fInvite), ir.IRInt(invite)) },
		func() error { return m.cfg.Set(key(id, fPromo), ir.IRInt(promo)) },
		func() error { return m.cfg.Set(key(id, fAdmin), ir.IRBool(mem.Admin)) },
		func() error { return m.cfg.Set(key(id, fRemoved), ir.IRInt(int64(mem.RemovedStatus))) },
	}
	for _, w := range writes {
		if err := w(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Members) update(id string, change func(*Member)) error {
	mem, err := m.GetOrConstruct(id)
	if err != nil {
		return err
	}
	change(&mem)
	return m.Set(mem)
}

// SetName sets a member's display name.
func (m *Members) SetName(id, name string) error {
	return m.update(id, func(mem *Member) { mem.Name = name })
}

// SetProfilePicture sets or, with nil, clears a member's picture.
func (m *Members) SetProfilePicture(id string, pic *profilepic.Pic) error {
	return m.update(id, func(mem *Member) { mem.ProfilePicture = pic })
}

// SetInvited records that an invite was sent, or that sending it failed.
func (m *Members) SetInvited(id string, failed bool) error {
	return m.update(id, func(mem *Member) {
		mem.InvitePending = !failed
		mem.InviteFailed = failed
	})
}

// SetAccepted records that the member joined.
func (m *Members) SetAccepted(id string) error {
	return m.update(id, func(mem *Member) {
		mem.InvitePending = false
		mem.InviteFailed = false
	})
}

// SetPromoted records that a promotion to admin was sent, or failed.
func (m *Members) SetPromoted(id string, failed bool) error {
	return m.update(id, func(mem *Member) {
		mem.PromotionPending = !failed
		mem.PromotionFailed = failed
		mem.Promoted = false
	})
}

// SetAdmin makes the member an admin, which also completes any invite and
// promotion, or demotes them.
func (m *Members) SetAdmin(id string, admin bool) error {
	return m.update(id, func(mem *Member) {
		mem.Admin = admin
		mem.PromotionPending = false
		mem.PromotionFailed = false
		mem.Promoted = admin
		if admin {
			mem.InvitePending = false
			mem.InviteFailed = false
		}
	})
}

// MarkPendingRemoval flags members for removal at the next rekey. With
// withMessages their earlier messages should be purged too.
func (m *Members) MarkPendingRemoval(ids []string, withMessages bool) error {
	for _, id := range ids {
		if err := checkID("mark pending removal", id); err != nil {
			return err
		}
	}
	status := Removed
	if withMessages {
		status = RemovedWithMessages
	}
	for _, id := range ids {
		if err := m.update(id, func(mem *Member) { mem.RemovedStatus = status }); err != nil {
			return err
		}
	}
	return nil
}

// Erase removes members from the roster and returns how many were on it.
func (m *Members) Erase(ids []string) (int, error) {
	for _, id := range ids {
		if err := checkID("erase member", id); err != nil {
			return 0, err
		}
	}
	ids = slices.Compact(slices.Sorted(slices.Values(ids)))
	erased := 0
	for _, id := range ids {
		if !m.exists(id) {
			continue
		}
		for _, f := range erasable {
			if err := m.cfg.Delete(key(id, f)); err != nil {
				return erased, err
			}
		}
		erased++
	}
	return erased, nil
}

// StateDigest fingerprints the roster values.
func (m *Members) StateDigest() (string, error) {
	return m.cfg.StateDigest()
}
