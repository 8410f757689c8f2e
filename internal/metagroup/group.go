// Package metagroup bundles the info, members and key ring of one
// encrypted group behind a single push/merge/dump surface.
package metagroup

import (
	"bytes"
	"cmp"
	"crypto/ed25519"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	xdr "github.com/davecgh/go-xdr/xdr2"
	"go.uber.org/zap"

	"github.com/roach88/swarmsync/internal/engine"
	"github.com/roach88/swarmsync/internal/groupinfo"
	"github.com/roach88/swarmsync/internal/identity"
	"github.com/roach88/swarmsync/internal/keys"
	"github.com/roach88/swarmsync/internal/members"
	"github.com/roach88/swarmsync/internal/multiencrypt"
	"github.com/roach88/swarmsync/internal/settings"
	"github.com/roach88/swarmsync/internal/subaccount"
)

// Ownership says whether this device is a group admin.
type (
	Ownership = identity.Ownership
	Owned     = identity.Owned
	NotOwned  = identity.NotOwned
)

type options struct {
	logger *zap.Logger
	now    func() time.Time
	node   string
}

// Option configures a Group.
type Option func(*options)

// WithLogger sets the logger shared by the sub-engines.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithNow sets the wall clock.
func WithNow(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithNodeID fixes the device id used by the info and members engines.
func WithNodeID(id string) Option {
	return func(o *options) { o.node = id }
}

// Group is one encrypted group as seen by one device.
// Not safe for concurrent use; see the worker package.
type Group struct {
	id      string
	logger  *zap.Logger
	ring    *keys.Ring
	info    *groupinfo.GroupInfo
	members *members.Members
	auth    *subaccount.Authority
}

// KeysPush is a key message awaiting upload. It has no seqno: key
// messages come from Rekey, not from the config push cycle.
type KeysPush struct {
	Data      []byte
	Namespace engine.Namespace
}

// Push holds what each sub-domain needs uploaded; nil means nothing.
type Push struct {
	GroupInfo   *engine.PushResult
	GroupMember *engine.PushResult
	GroupKeys   *KeysPush
}

// Confirmation acknowledges one uploaded config push.
type Confirmation struct {
	Seqno int64
	Hash  string
}

// KeyRecord is a key message fetched from the relay.
type KeyRecord struct {
	Hash        string
	Data        []byte
	TimestampMs int64
}

// MergeInput is one batch fetched from the group's namespaces.
type MergeInput struct {
	Keys    []KeyRecord
	Info    []engine.MergeRecord
	Members []engine.MergeRecord
}

// MergeCounts is how many records each domain accepted.
type MergeCounts struct {
	Keys    int
	Info    int
	Members int
}

const dumpVersion = 1

type metaDump struct {
	Version uint32
	Keys    []byte
	Info    []byte
	Members []byte
}

// New opens the group groupID for self. A fresh admin instance issues
// the first key immediately.
func New(groupID string, own Ownership, self identity.Identity, dump []byte, limits settings.Limits, opts ...Option) (*Group, error) {
	pub, err := identity.ParseGroupID(groupID)
	if err != nil {
		return nil, engine.NewInvalidInputError("open group", "%v", err)
	}
	o := options{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	var d metaDump
	if len(dump) > 0 {
		if _, err := xdr.Unmarshal(bytes.NewReader(dump), &d); err != nil {
			return nil, engine.NewInvalidInputError("open group", "corrupt dump: %v", err)
		}
		if d.Version != dumpVersion {
			return nil, engine.NewInvalidInputError("open group", "unsupported dump version %d", d.Version)
		}
	}

	logger := o.logger.With(zap.String("group", groupID))
	ring, err := keys.New(pub, own, self, d.Keys, limits, keys.WithLogger(logger), keys.WithNow(o.now))
	if err != nil {
		return nil, err
	}
	engineOpts := []engine.Option{engine.WithLogger(logger), engine.WithNow(o.now)}
	if o.node != "" {
		engineOpts = append(engineOpts, engine.WithNodeID(o.node))
	}
	info, err := groupinfo.New(keys.NewSealer(ring, engine.NamespaceGroupInfo), d.Info, limits, engineOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "open group info")
	}
	mem, err := members.New(keys.NewSealer(ring, engine.NamespaceGroupMembers), d.Members, limits, engineOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "open group members")
	}

	g := &Group{
		id:      groupID,
		logger:  logger,
		ring:    ring,
		info:    info,
		members: mem,
		auth:    subaccount.New(ring),
	}
	if _, ok := ring.CurrentGeneration(); !ok && ring.IsAdmin() {
		if _, err := g.Rekey(); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// ID returns the "03" group id.
func (g *Group) ID() string { return g.id }

// Info returns the group info config.
func (g *Group) Info() *groupinfo.GroupInfo { return g.info }

// Members returns the roster config.
func (g *Group) Members() *members.Members { return g.members }

// Keys returns the key ring.
func (g *Group) Keys() *keys.Ring { return g.ring }

// Subaccounts returns the delegated signing authority.
func (g *Group) Subaccounts() *subaccount.Authority { return g.auth }

// IsAdmin reports whether this device holds the group secret key.
func (g *Group) IsAdmin() bool { return g.ring.IsAdmin() }

// LoadAdminKeys promotes this device to admin.
func (g *Group) LoadAdminKeys(secret ed25519.PrivateKey) error {
	return g.ring.LoadAdminKeys(secret)
}

// NeedsPush reports whether any sub-domain has something to upload.
func (g *Group) NeedsPush() bool {
	_, pendingKeys := g.ring.PendingConfig()
	return pendingKeys || g.info.NeedsPush() || g.members.NeedsPush()
}

// NeedsDump reports whether any sub-domain changed since MetaDump.
func (g *Group) NeedsDump() bool {
	return g.ring.NeedsDump() || g.info.NeedsDump() || g.members.NeedsDump()
}

// NeedsRekey reports whether an admin should rotate the key now.
func (g *Group) NeedsRekey() bool {
	return g.ring.NeedsRekey(g.members.ActiveMemberIDs())
}

// Push collects pending uploads from every sub-domain.
func (g *Group) Push() (Push, error) {
	var p Push
	if data, ok := g.ring.PendingConfig(); ok {
		p.GroupKeys = &KeysPush{Data: data, Namespace: engine.NamespaceGroupKeys}
	}
	if g.info.NeedsPush() {
		r, err := g.info.Push()
		if err != nil {
			return Push{}, errors.Wrap(err, "push group info")
		}
		p.GroupInfo = &r
	}
	if g.members.NeedsPush() {
		r, err := g.members.Push()
		if err != nil {
			return Push{}, errors.Wrap(err, "push group members")
		}
		p.GroupMember = &r
	}
	return p, nil
}

// MetaConfirmPushed acknowledges uploaded info and member pushes. Either
// may be nil.
func (g *Group) MetaConfirmPushed(info, member *Confirmation) {
	if info != nil {
		g.info.ConfirmPushed(info.Seqno, info.Hash)
	}
	if member != nil {
		g.members.ConfirmPushed(member.Seqno, member.Hash)
	}
}

// KeysConfirmPushed acknowledges the uploaded key message.
func (g *Group) KeysConfirmPushed(hash string) {
	g.ring.ConfirmPushed(hash)
}

// MetaMerge applies a fetched batch: keys first in timestamp order so the
// configs can open, then info, then members. A domain whose records fail
// does not stop the others. An admin rekeys afterwards if the roster or
// competing keys call for it.
func (g *Group) MetaMerge(in MergeInput) (MergeCounts, error) {
	var counts MergeCounts
	ks := append([]KeyRecord(nil), in.Keys...)
	sortKeyRecords(ks)
	for _, k := range ks {
		if g.ring.LoadKeyMessage(k.Hash, k.Data, k.TimestampMs) {
			counts.Keys++
		}
	}
	if len(in.Info) > 0 {
		counts.Info = len(g.info.Merge(in.Info))
	}
	if len(in.Members) > 0 {
		counts.Members = len(g.members.Merge(in.Members))
	}
	g.logger.Debug("merged",
		zap.Int("keys", counts.Keys),
		zap.Int("info", counts.Info),
		zap.Int("members", counts.Members))

	if g.NeedsRekey() {
		if _, err := g.Rekey(); err != nil {
			return counts, errors.Wrap(err, "rekey after merge")
		}
	}
	return counts, nil
}

// Rekey rotates the key to the active roster and re-encrypts both
// configs under it. It returns the key message to upload.
func (g *Group) Rekey() ([]byte, error) {
	msg, err := g.ring.Rekey(g.members.ActiveMemberIDs())
	if err != nil {
		return nil, err
	}
	g.info.Reseal()
	g.members.Reseal()
	return msg, nil
}

// MemberEraseAndRekey removes ids from the roster and, if any were on it,
// rotates the key so they cannot read new content.
func (g *Group) MemberEraseAndRekey(ids []string) (int, error) {
	n, err := g.members.Erase(ids)
	if err != nil {
		return n, err
	}
	if n > 0 {
		if _, err := g.Rekey(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// GenerateSupplementKeys gives newly invited members the current key.
func (g *Group) GenerateSupplementKeys(ids []string) ([][]byte, error) {
	return g.ring.GenerateSupplementKeys(ids)
}

// EncryptMessages seals group messages under the current key.
func (g *Group) EncryptMessages(plaintexts [][]byte) ([][]byte, error) {
	return g.ring.EncryptMessages(plaintexts)
}

// DecryptMessage opens a group message with any retained key.
func (g *Group) DecryptMessage(ciphertext []byte) (keys.Decrypted, bool) {
	return g.ring.DecryptMessage(ciphertext)
}

// Broadcast seals message from the group key to every active member,
// independent of the key ring. Only admins can send one.
func (g *Group) Broadcast(domain string, message []byte) ([]byte, error) {
	const op = "broadcast"
	secret, ok := g.ring.AdminSecret()
	if !ok {
		return nil, engine.NewMisuseError(op, "group %s: admin keys required", g.id)
	}
	ids := g.members.ActiveMemberIDs()
	if len(ids) == 0 {
		return nil, engine.NewInvalidInputError(op, "group %s has no active members", g.id)
	}
	recipients := make([][32]byte, len(ids))
	for i, id := range ids {
		x, err := identity.ParseSessionID(id)
		if err != nil {
			return nil, engine.NewInvalidInputError(op, "member %s: %v", id, err)
		}
		recipients[i] = x
	}
	return multiencrypt.Encrypt(secret, domain, [][]byte{message}, recipients)
}

// OpenBroadcast opens a Broadcast addressed to this device's account.
func (g *Group) OpenBroadcast(encoded []byte, domain string) ([]byte, bool) {
	return multiencrypt.DecryptEd25519(encoded, g.ring.Self().Ed25519, g.ring.Group(), domain)
}

// CurrentHashes lists live hashes: keys, then info, then members.
func (g *Group) CurrentHashes() []string {
	var out []string
	out = append(out, g.ring.CurrentHashes()...)
	out = append(out, g.info.CurrentHashes()...)
	return append(out, g.members.CurrentHashes()...)
}

// MetaDump serializes all three sub-domains and clears their NeedsDump.
func (g *Group) MetaDump() ([]byte, error) {
	return g.dump(g.ring.Dump, g.info.Dump, g.members.Dump)
}

// MetaMakeDump is MetaDump without clearing NeedsDump.
func (g *Group) MetaMakeDump() ([]byte, error) {
	return g.dump(g.ring.MakeDump, g.info.MakeDump, g.members.MakeDump)
}

func (g *Group) dump(keysDump, infoDump, membersDump func() ([]byte, error)) ([]byte, error) {
	d := metaDump{Version: dumpVersion}
	var err error
	if d.Keys, err = keysDump(); err != nil {
		return nil, err
	}
	if d.Info, err = infoDump(); err != nil {
		return nil, err
	}
	if d.Members, err = membersDump(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, d); err != nil {
		return nil, errors.Wrap(err, "marshal group dump")
	}
	return buf.Bytes(), nil
}

func sortKeyRecords(ks []KeyRecord) {
	slices.SortStableFunc(ks, func(a, b KeyRecord) int {
		return cmp.Compare(a.TimestampMs, b.TimestampMs)
	})
}
