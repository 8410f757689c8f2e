package engine

import (
	"encoding/hex"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/swarmsync/internal/hashlog"
	"github.com/roach88/swarmsync/internal/ir"
	"github.com/roach88/swarmsync/internal/settings"
)

// PushResult is a sealed payload ready for upload.
type PushResult struct {
	Data      []byte
	Seqno     int64
	Hashes    []string
	Namespace Namespace
}

// MergeRecord is one blob fetched from the relay.
type MergeRecord struct {
	Hash string
	Data []byte
}

type pendingPush struct {
	seqno  int64
	data   []byte
	hashes []string
	state  Snapshot

	// resealed marks a push of unchanged state under a new sealing key.
	resealed bool
}

// Config is one mergeable configuration instance.
type Config struct {
	schema Schema
	sealer Sealer
	logger *zap.Logger
	limits settings.Limits
	now    func() time.Time

	node    string
	nodeSet bool
	clock   *Clock

	state     Snapshot
	seqno     int64
	log       *hashlog.Log[Snapshot]
	pending   *pendingPush
	needsDump bool
	reseal    bool
}

// Option configures a Config.
type Option func(*Config)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithLimits overrides settings.Default().
func WithLimits(l settings.Limits) Option {
	return func(c *Config) {
		c.limits = l
	}
}

// WithNodeID fixes the device id used in stamps. Without it a new instance
// takes a fresh UUIDv7 and a loaded instance keeps the id from its dump.
func WithNodeID(id string) Option {
	return func(c *Config) {
		c.node = id
		c.nodeSet = true
	}
}

// WithNow sets the wall clock used by domain wrappers for timestamps.
func WithNow(now func() time.Time) Option {
	return func(c *Config) {
		c.now = now
	}
}

// New creates a Config, restoring dump when it is non-empty.
func New(schema Schema, sealer Sealer, dump []byte, opts ...Option) (*Config, error) {
	if schema == nil || sealer == nil {
		return nil, NewMisuseError("new", "schema and sealer are required")
	}
	c := &Config{
		schema: schema,
		sealer: sealer,
		logger: zap.NewNop(),
		limits: settings.Default(),
		now:    time.Now,
		clock:  NewClock(),
		state:  make(Snapshot),
	}
	c.log = hashlog.New[Snapshot](c.covers)
	for _, opt := range opts {
		opt(c)
	}
	if c.nodeSet && c.node == "" {
		return nil, NewInvalidInputError("new", "node id must not be empty")
	}
	override := c.node

	if len(dump) > 0 {
		if err := c.load(dump); err != nil {
			return nil, err
		}
		if c.nodeSet {
			c.node = override
		}
	}
	if c.node == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, errors.Wrap(err, "generate node id")
		}
		c.node = id.String()
	}
	c.logger = c.logger.With(zap.Stringer("namespace", schema.Namespace()))
	return c, nil
}

// covers reports whether outer is at least inner on every key of inner.
func (c *Config) covers(outer, inner Snapshot) bool {
	for k, ie := range inner {
		oe, ok := outer[k]
		if !ok {
			return false
		}
		if c.policyOf(k).Compare(oe, ie) < 0 {
			return false
		}
	}
	return true
}

func (c *Config) equal(a, b Snapshot) bool {
	return len(a) == len(b) && c.covers(a, b) && c.covers(b, a)
}

func (c *Config) policyOf(key string) Policy {
	base, _ := splitKey(key)
	return c.schema.Policy(base)
}

// StorageNamespace returns the schema namespace.
func (c *Config) StorageNamespace() Namespace {
	return c.schema.Namespace()
}

// NodeID returns the device id stamped on local writes.
func (c *Config) NodeID() string {
	return c.node
}

// Limits returns the limits this instance enforces.
func (c *Config) Limits() settings.Limits {
	return c.limits
}

// Now returns the wall clock time.
func (c *Config) Now() time.Time {
	return c.now()
}

// Logger returns the instance logger.
func (c *Config) Logger() *zap.Logger {
	return c.logger
}

// NeedsPush reports whether local state differs from every live record.
// Read-only instances never need to push.
func (c *Config) NeedsPush() bool {
	if !c.sealer.CanSeal() {
		return false
	}
	if c.reseal {
		return true
	}
	if c.log.Len() == 0 {
		return len(c.state) > 0
	}
	return !c.log.Matches(c.state)
}

// NeedsDump reports whether state changed since the last Dump.
func (c *Config) NeedsDump() bool {
	return c.needsDump
}

// CurrentHashes returns the live record hashes, sorted.
func (c *Config) CurrentHashes() []string {
	return c.log.Hashes()
}

// Push seals the current state.
//
// While nothing changed since the previous push, the same data and seqno
// come back. When no push is needed the current state is returned under
// the current seqno and nothing becomes pending.
func (c *Config) Push() (PushResult, error) {
	if !c.sealer.CanSeal() {
		return PushResult{}, NewMisuseError("push", "config is read-only")
	}
	ns := c.schema.Namespace()
	if c.pending != nil && c.equal(c.pending.state, c.state) && (!c.reseal || c.pending.resealed) {
		return PushResult{
			Data:      c.pending.data,
			Seqno:     c.pending.seqno,
			Hashes:    slices.Clone(c.pending.hashes),
			Namespace: ns,
		}, nil
	}

	needed := c.NeedsPush()
	seqno := c.seqno
	if needed {
		seqno++
	}
	data, err := c.seal(seqno)
	if err != nil {
		return PushResult{}, err
	}
	if !needed {
		return PushResult{Data: data, Seqno: seqno, Namespace: ns}, nil
	}

	c.seqno = seqno
	c.pending = &pendingPush{
		seqno:    seqno,
		data:     data,
		hashes:   c.log.Hashes(),
		state:    c.state.Clone(),
		resealed: c.reseal,
	}
	c.needsDump = true
	c.logger.Debug("push prepared",
		zap.Int64("seqno", seqno),
		zap.Int("bytes", len(data)),
		zap.Int("superseded", len(c.pending.hashes)))
	return PushResult{
		Data:      data,
		Seqno:     seqno,
		Hashes:    slices.Clone(c.pending.hashes),
		Namespace: ns,
	}, nil
}

// Reseal makes the next push re-encrypt the current state even when it
// is unchanged. Group configs call it after the key ring rotates.
func (c *Config) Reseal() {
	if !c.sealer.CanSeal() || len(c.state) == 0 {
		return
	}
	c.reseal = true
	c.needsDump = true
}

func (c *Config) seal(seqno int64) ([]byte, error) {
	plain, err := encodePayload(payload{ns: c.schema.Namespace(), seqno: seqno, state: c.state})
	if err != nil {
		return nil, errors.Wrap(err, "encode payload")
	}
	data, err := c.sealer.Seal(plain)
	if err != nil {
		return nil, errors.Wrap(err, "seal payload")
	}
	if len(data) > c.limits.MaxMessageSize {
		return nil, NewInvalidInputError("push", "payload of %d bytes exceeds limit of %d",
			len(data), c.limits.MaxMessageSize)
	}
	return data, nil
}

// ConfirmPushed records hash as the relay id of the push with seqno.
// Anything but the outstanding seqno is ignored.
func (c *Config) ConfirmPushed(seqno int64, hash string) {
	if c.pending == nil || c.pending.seqno != seqno {
		c.logger.Debug("ignoring stale confirmation", zap.Int64("seqno", seqno), zap.String("hash", hash))
		return
	}
	pushed := c.pending.state
	c.log.Add(hashlog.Record[Snapshot]{Hash: hash, Seqno: seqno, State: pushed})
	if c.pending.resealed {
		// Records of the same state sealed under the old key are retired.
		c.log.Retain(func(r hashlog.Record[Snapshot]) bool {
			return r.Hash == hash || !c.equal(r.State, pushed)
		})
		c.reseal = false
	}
	c.pending = nil
	c.needsDump = true
}

// Merge applies remote records and returns the hashes it accepted, in input
// order. Records that fail to open, decode, or validate are dropped.
// Records already covered by local state still count as accepted.
func (c *Config) Merge(records []MergeRecord) []string {
	var applied []string
	for _, r := range records {
		if err := c.mergeOne(r); err != nil {
			c.logger.Debug("dropping record", zap.String("hash", r.Hash), zap.Error(err))
			continue
		}
		applied = append(applied, r.Hash)
	}
	if c.pending != nil && !c.reseal && c.log.Matches(c.state) {
		c.pending = nil
		c.needsDump = true
	}
	return applied
}

func (c *Config) mergeOne(r MergeRecord) error {
	if r.Hash == "" {
		return errors.New("empty hash")
	}
	if c.log.Has(r.Hash) {
		return nil
	}
	plain, err := c.sealer.Open(r.Data)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	p, err := decodePayload(plain)
	if err != nil {
		return errors.Wrap(err, "decode")
	}
	if p.ns != c.schema.Namespace() {
		return errors.Newf("namespace %s, want %s", p.ns, c.schema.Namespace())
	}
	for k, e := range p.state {
		if err := c.validateEntry(k, e); err != nil {
			return err
		}
	}

	changed := false
	for k, e := range p.state {
		c.clock.Observe(e.Stamp.Seq)
		cur, ok := c.state[k]
		if !ok || c.policyOf(k).Compare(cur, e) < 0 {
			c.state[k] = e
			changed = true
		}
	}
	if p.seqno > c.seqno {
		c.seqno = p.seqno
	}
	if c.log.Add(hashlog.Record[Snapshot]{Hash: r.Hash, Seqno: p.seqno, State: p.state}) || changed {
		c.needsDump = true
	}
	return nil
}

func (c *Config) validateEntry(key string, e Entry) error {
	base, sub := splitKey(key)
	policy := c.schema.Policy(base)
	switch policy {
	case Counter, SetUnion:
		if sub == "" {
			return errors.Newf("%s: %s key needs a sub-entry", key, policy)
		}
	default:
		if sub != "" {
			return errors.Newf("%s: %s key has a sub-entry", key, policy)
		}
	}
	if e.Deleted {
		if policy != LastWriterWins {
			return errors.Newf("%s: deletion of %s key", key, policy)
		}
		return nil
	}
	return c.schema.Validate(base, e.Value)
}

func (c *Config) write(key string, e Entry) {
	e.Stamp = Stamp{Seq: c.clock.Next(), Node: c.node}
	c.state[key] = e
	c.needsDump = true
}

func (c *Config) writable(op string) error {
	if !c.sealer.CanSeal() {
		return NewMisuseError(op, "config is read-only")
	}
	return nil
}

func (c *Config) checkScalar(op, key string, v ir.IRValue) (Policy, error) {
	if err := c.writable(op); err != nil {
		return 0, err
	}
	if strings.Contains(key, subKeySep) {
		return 0, NewInvalidInputError(op, "key %q contains %q", key, subKeySep)
	}
	if err := c.schema.Validate(key, v); err != nil {
		return 0, NewInvalidInputError(op, "%v", err)
	}
	return c.schema.Policy(key), nil
}

// Set writes a scalar field according to its policy. Writes that cannot
// change the merged value are no-ops. Read-only instances reject every
// write.
func (c *Config) Set(key string, v ir.IRValue) error {
	policy, err := c.checkScalar("set", key, v)
	if err != nil {
		return err
	}
	cur, ok := c.state[key]
	live := ok && !cur.Deleted
	switch policy {
	case LastWriterWins:
		if live && ir.Equal(cur.Value, v) {
			return nil
		}
	case MaxValue:
		n, _ := ir.AsInt(v)
		if live && intOf(cur) >= n {
			return nil
		}
	case FirstWriter:
		if live {
			return nil
		}
	default:
		return NewMisuseError("set", "%s is a %s field", key, policy)
	}
	c.write(key, Entry{Value: v})
	return nil
}

// Delete tombstones a last-writer-wins field.
func (c *Config) Delete(key string) error {
	if err := c.writable("delete"); err != nil {
		return err
	}
	if strings.Contains(key, subKeySep) {
		return NewInvalidInputError("delete", "key %q contains %q", key, subKeySep)
	}
	if p := c.schema.Policy(key); p != LastWriterWins {
		return NewMisuseError("delete", "%s is a %s field", key, p)
	}
	cur, ok := c.state[key]
	if !ok || cur.Deleted {
		return nil
	}
	c.write(key, Entry{Deleted: true})
	return nil
}

// Get returns the live value of a scalar field.
func (c *Config) Get(key string) (ir.IRValue, bool) {
	e, ok := c.state[key]
	if !ok || e.Deleted {
		return nil, false
	}
	return e.Value, true
}

// Keys returns the sorted live scalar keys starting with prefix.
func (c *Config) Keys(prefix string) []string {
	var keys []string
	for k, e := range c.state {
		if e.Deleted || strings.Contains(k, subKeySep) || !strings.HasPrefix(k, prefix) {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Add increments this device's share of a counter field.
func (c *Config) Add(key string, delta int64) error {
	if err := c.writable("add"); err != nil {
		return err
	}
	if p := c.schema.Policy(key); p != Counter {
		return NewMisuseError("add", "%s is a %s field", key, p)
	}
	sub := key + subKeySep + c.node
	var total int64
	if cur, ok := c.state[sub]; ok {
		total = intOf(cur)
	}
	total += delta
	if err := c.schema.Validate(key, ir.IRInt(total)); err != nil {
		return NewInvalidInputError("add", "%v", err)
	}
	if delta == 0 {
		return nil
	}
	c.write(sub, Entry{Value: ir.IRInt(total)})
	return nil
}

// Sum reads a counter field across all devices.
func (c *Config) Sum(key string) int64 {
	var sum int64
	for _, e := range c.subEntries(key) {
		n, _ := ir.AsInt(e.Value)
		sum += n
	}
	return sum
}

// Insert adds an element to a set field.
func (c *Config) Insert(key string, elem ir.IRValue) error {
	if err := c.writable("insert"); err != nil {
		return err
	}
	if p := c.schema.Policy(key); p != SetUnion {
		return NewMisuseError("insert", "%s is a %s field", key, p)
	}
	if err := c.schema.Validate(key, elem); err != nil {
		return NewInvalidInputError("insert", "%v", err)
	}
	b, err := ir.MarshalCanonical(elem)
	if err != nil {
		return NewInvalidInputError("insert", "%v", err)
	}
	sub := key + subKeySep + hex.EncodeToString(b)
	if _, ok := c.state[sub]; ok {
		return nil
	}
	c.write(sub, Entry{Value: elem})
	return nil
}

// Elements lists a set field in canonical order.
func (c *Config) Elements(key string) []ir.IRValue {
	entries := c.subEntries(key)
	subs := make([]string, 0, len(entries))
	for k := range entries {
		subs = append(subs, k)
	}
	slices.Sort(subs)
	out := make([]ir.IRValue, 0, len(subs))
	for _, k := range subs {
		out = append(out, entries[k].Value)
	}
	return out
}

func (c *Config) subEntries(key string) map[string]Entry {
	prefix := key + subKeySep
	out := make(map[string]Entry)
	for k, e := range c.state {
		if !e.Deleted && strings.HasPrefix(k, prefix) {
			out[k] = e
		}
	}
	return out
}

// StateDigest fingerprints the live values, ignoring stamps. Two instances
// that converged report the same digest.
func (c *Config) StateDigest() (string, error) {
	obj := make(ir.IRObject, len(c.state))
	for k, e := range c.state {
		if !e.Deleted {
			obj[k] = e.Value
		}
	}
	return ir.StateDigest(obj)
}

// GetString returns a string field or "".
func (c *Config) GetString(key string) string {
	v, _ := c.Get(key)
	s, _ := ir.AsString(v)
	return s
}

// GetInt returns an int field or 0.
func (c *Config) GetInt(key string) int64 {
	v, _ := c.Get(key)
	n, _ := ir.AsInt(v)
	return n
}

// GetBool returns a bool field or false.
func (c *Config) GetBool(key string) bool {
	v, _ := c.Get(key)
	b, _ := ir.AsBool(v)
	return b
}

// SetOrDelete writes a string field, deleting it when s is empty.
func (c *Config) SetOrDelete(key, s string) error {
	if s == "" {
		return c.Delete(key)
	}
	return c.Set(key, ir.IRString(s))
}

// Members lists, sorted, every id for which the key prefix+id+"/"+marker is
// live. Members("c/", "exists") on "c/a/exists", "c/a/name", "c/b/exists"
// returns ["a", "b"].
func (c *Config) Members(prefix, marker string) []string {
	var out []string
	for _, k := range c.Keys(prefix) {
		rest := strings.TrimPrefix(k, prefix)
		id, field, ok := strings.Cut(rest, "/")
		if !ok || field != marker {
			continue
		}
		out = append(out, id)
	}
	return out
}
