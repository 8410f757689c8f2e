// Package keys holds a group's symmetric key ring: the epoch keys used to
// encrypt group messages and group configs, their rotation by an admin, and
// the signed messages that distribute new keys to members.
package keys

import (
	"bytes"
	"crypto/ed25519"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	xdr "github.com/davecgh/go-xdr/xdr2"
	"go.uber.org/zap"

	"github.com/roach88/swarmsync/internal/engine"
	"github.com/roach88/swarmsync/internal/identity"
	"github.com/roach88/swarmsync/internal/settings"
)

// Entry is one key epoch.
type Entry struct {
	Generation  uint64
	Key         [32]byte
	CreatedAtMs int64
}

// Ring is the key ring of one group as seen by one device.
// Not safe for concurrent use.
type Ring struct {
	group  ed25519.PublicKey
	admin  ed25519.PrivateKey
	self   identity.Identity
	limits settings.Limits
	logger *zap.Logger
	now    func() time.Time

	// entries is ordered newest first: generation, then creation time,
	// then key bytes, all descending.
	entries []Entry

	// recipients of the newest generation. Only admins learn them.
	recipients []string

	seen map[string]uint64
	live map[string]uint64

	// pending is this device's last rekey message until it is confirmed
	// or superseded by a newer generation.
	pending    []byte
	pendingGen uint64
	needsDump  bool
}

// Option configures a Ring.
type Option func(*Ring)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(r *Ring) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithNow sets the clock used for key creation times and expiry.
func WithNow(now func() time.Time) Option {
	return func(r *Ring) {
		r.now = now
	}
}

// New opens the ring of group for the member self. own carries the group
// secret key on admin devices. A non-empty dump restores earlier state.
func New(group ed25519.PublicKey, own identity.Ownership, self identity.Identity, dump []byte, limits settings.Limits, opts ...Option) (*Ring, error) {
	if len(group) != ed25519.PublicKeySize {
		return nil, engine.NewInvalidInputError("new key ring", "group key must be %d bytes", ed25519.PublicKeySize)
	}
	if len(self.Ed25519) != ed25519.PrivateKeySize {
		return nil, engine.NewInvalidInputError("new key ring", "member identity is missing")
	}
	r := &Ring{
		group:  slices.Clone(group),
		self:   self,
		limits: limits,
		logger: zap.NewNop(),
		now:    time.Now,
		seen:   make(map[string]uint64),
		live:   make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(r)
	}
	if secret, ok := identity.AdminSecret(own); ok {
		if err := r.setAdmin(secret); err != nil {
			return nil, err
		}
	}
	if len(dump) > 0 {
		if err := r.load(dump); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With(zap.String("group", identity.GroupID(r.group)))
	return r, nil
}

func (r *Ring) setAdmin(secret ed25519.PrivateKey) error {
	if len(secret) != ed25519.PrivateKeySize {
		return engine.NewInvalidInputError("admin keys", "secret key must be %d bytes", ed25519.PrivateKeySize)
	}
	if !bytes.Equal(secret.Public().(ed25519.PublicKey), r.group) {
		return engine.NewInvalidInputError("admin keys", "secret key does not belong to %s", identity.GroupID(r.group))
	}
	r.admin = slices.Clone(secret)
	return nil
}

// LoadAdminKeys promotes this device to admin. Recipients of the current
// key stay unknown until the next rekey.
func (r *Ring) LoadAdminKeys(secret ed25519.PrivateKey) error {
	return r.setAdmin(secret)
}

// IsAdmin reports whether this device holds the group secret key.
func (r *Ring) IsAdmin() bool {
	return r.admin != nil
}

// Group returns the group public key.
func (r *Ring) Group() ed25519.PublicKey {
	return r.group
}

// Self returns the local member identity.
func (r *Ring) Self() identity.Identity {
	return r.self
}

// AdminSecret returns the group secret key on admin devices.
func (r *Ring) AdminSecret() (ed25519.PrivateKey, bool) {
	return r.admin, r.admin != nil
}

// GetAll returns every retained key, newest first.
func (r *Ring) GetAll() [][32]byte {
	out := make([][32]byte, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Key
	}
	return out
}

// Entries returns a copy of the retained entries, newest first.
func (r *Ring) Entries() []Entry {
	return slices.Clone(r.entries)
}

// CurrentGeneration returns the newest generation, if any key is held.
func (r *Ring) CurrentGeneration() (uint64, bool) {
	if len(r.entries) == 0 {
		return 0, false
	}
	return r.entries[0].Generation, true
}

func (r *Ring) current() (Entry, bool) {
	if len(r.entries) == 0 {
		return Entry{}, false
	}
	return r.entries[0], true
}

// Recipients returns the members the newest key was issued to, as known
// to this admin device.
func (r *Ring) Recipients() []string {
	return slices.Clone(r.recipients)
}

// CurrentHashes returns the relay hashes of key messages for retained
// generations, sorted.
func (r *Ring) CurrentHashes() []string {
	out := make([]string, 0, len(r.live))
	for h := range r.live {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

// PendingConfig returns the last rekey message until its upload is
// confirmed.
func (r *Ring) PendingConfig() ([]byte, bool) {
	return r.pending, r.pending != nil
}

// ConfirmPushed records the relay hash of the pending rekey message.
func (r *Ring) ConfirmPushed(hash string) {
	if r.pending == nil || hash == "" {
		return
	}
	r.seen[hash] = r.pendingGen
	r.live[hash] = r.pendingGen
	r.dropPending()
}

func (r *Ring) dropPending() {
	r.pending = nil
	r.pendingGen = 0
	r.needsDump = true
}

// NeedsDump reports whether the ring changed since the last Dump.
func (r *Ring) NeedsDump() bool {
	return r.needsDump
}

func compareEntries(a, b Entry) int {
	switch {
	case a.Generation != b.Generation:
		if a.Generation > b.Generation {
			return -1
		}
		return 1
	case a.CreatedAtMs != b.CreatedAtMs:
		if a.CreatedAtMs > b.CreatedAtMs {
			return -1
		}
		return 1
	default:
		return -bytes.Compare(a.Key[:], b.Key[:])
	}
}

func (r *Ring) holds(gen uint64, key [32]byte) bool {
	for _, e := range r.entries {
		if e.Generation == gen && e.Key == key {
			return true
		}
	}
	return false
}

func (r *Ring) insert(e Entry) {
	r.entries = append(r.entries, e)
	slices.SortFunc(r.entries, compareEntries)
	r.needsDump = true
}

// prune drops generations more than RetainedGenerations behind the newest
// and keys whose earliest successor is older than the key expiry.
func (r *Ring) prune() {
	if len(r.entries) == 0 {
		return
	}
	newest := r.entries[0].Generation
	now := r.now().UnixMilli()
	expiry := r.limits.KeyExpiry().Milliseconds()
	window := uint64(r.limits.RetainedGenerations)

	var (
		kept      []Entry
		gen       = newest
		oldestCur = int64(-1)
		successor = int64(-1)
	)
	for _, e := range r.entries {
		if e.Generation != gen {
			if successor < 0 || oldestCur < successor {
				successor = oldestCur
			}
			gen, oldestCur = e.Generation, -1
		}
		if oldestCur < 0 || e.CreatedAtMs < oldestCur {
			oldestCur = e.CreatedAtMs
		}
		if newest-e.Generation > window {
			continue
		}
		if successor >= 0 && now-successor > expiry {
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) == len(r.entries) {
		return
	}
	r.logger.Debug("pruned keys", zap.Int("dropped", len(r.entries)-len(kept)))
	r.entries = kept
	oldest := kept[len(kept)-1].Generation
	if r.pending != nil && r.pendingGen < oldest {
		r.dropPending()
	}
	for _, m := range []map[string]uint64{r.seen, r.live} {
		for h, g := range m {
			if g < oldest {
				delete(m, h)
			}
		}
	}
	r.needsDump = true
}

const dumpVersion = 1

type ringDump struct {
	Version    uint32
	Group      []byte
	Entries    []dumpEntry
	Recipients []string
	Seen       []hashGeneration
	Live       []hashGeneration
	HasPending bool
	Pending    []byte
	PendingGen uint64
}

type dumpEntry struct {
	Generation  uint64
	Key         [32]byte
	CreatedAtMs int64
}

type hashGeneration struct {
	Hash       string
	Generation uint64
}

func sortedHashes(m map[string]uint64) []hashGeneration {
	out := make([]hashGeneration, 0, len(m))
	for h, g := range m {
		out = append(out, hashGeneration{Hash: h, Generation: g})
	}
	slices.SortFunc(out, func(a, b hashGeneration) int { return strings.Compare(a.Hash, b.Hash) })
	return out
}

// Dump serializes the ring and clears NeedsDump. The admin secret is never
// included.
func (r *Ring) Dump() ([]byte, error) {
	data, err := r.MakeDump()
	if err != nil {
		return nil, err
	}
	r.needsDump = false
	return data, nil
}

// MakeDump is Dump without clearing NeedsDump.
func (r *Ring) MakeDump() ([]byte, error) {
	d := ringDump{
		Version:    dumpVersion,
		Group:      r.group,
		Recipients: r.recipients,
		Seen:       sortedHashes(r.seen),
		Live:       sortedHashes(r.live),
		HasPending: r.pending != nil,
		Pending:    r.pending,
		PendingGen: r.pendingGen,
	}
	for _, e := range r.entries {
		d.Entries = append(d.Entries, dumpEntry(e))
	}
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, d); err != nil {
		return nil, errors.Wrap(err, "marshal key ring")
	}
	return buf.Bytes(), nil
}

func (r *Ring) load(dump []byte) error {
	var d ringDump
	if _, err := xdr.Unmarshal(bytes.NewReader(dump), &d); err != nil {
		return engine.NewInvalidInputError("load key ring", "corrupt dump: %v", err)
	}
	if d.Version != dumpVersion {
		return engine.NewInvalidInputError("load key ring", "unsupported dump version %d", d.Version)
	}
	if !bytes.Equal(d.Group, r.group) {
		return engine.NewInvalidInputError("load key ring", "dump belongs to another group")
	}
	r.entries = r.entries[:0]
	for _, e := range d.Entries {
		r.entries = append(r.entries, Entry(e))
	}
	slices.SortFunc(r.entries, compareEntries)
	r.recipients = d.Recipients
	for _, hg := range d.Seen {
		r.seen[hg.Hash] = hg.Generation
	}
	for _, hg := range d.Live {
		r.live[hg.Hash] = hg.Generation
	}
	if d.HasPending {
		r.pending = d.Pending
		r.pendingGen = d.PendingGen
	}
	return nil
}
