package harness

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/roach88/swarmsync/internal/command"
	"github.com/roach88/swarmsync/internal/engine"
	"github.com/roach88/swarmsync/internal/identity"
	"github.com/roach88/swarmsync/internal/metagroup"
	"github.com/roach88/swarmsync/internal/settings"
	"github.com/roach88/swarmsync/internal/store"
	"github.com/roach88/swarmsync/internal/testutil"
	"github.com/roach88/swarmsync/internal/worker"
)

type options struct {
	logger *zap.Logger
	store  *store.Store
	limits settings.Limits
}

// Option configures Run.
type Option func(*options)

// WithLogger sets the logger handed to the registry and every instance.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStore keeps instance dumps in st instead of a throwaway in-memory
// database. Ids are namespaced by scenario name.
func WithStore(st *store.Store) Option {
	return func(o *options) { o.store = st }
}

// WithLimits sets the base limits; scenario overrides apply on top.
func WithLimits(l settings.Limits) Option {
	return func(o *options) { o.limits = l }
}

type groupState struct {
	id      string
	secret  ed25519.PrivateKey
	admins  map[string]bool
	holders []string
}

// Harness executes one scenario. Devices run their instances in a worker
// registry; the relay is the only channel between devices.
type Harness struct {
	sc      *Scenario
	limits  settings.Limits
	clock   *testutil.WallClock
	relay   *relay
	reg     *worker.Registry
	logger  *zap.Logger
	devices map[string]Device
	users   map[string]identity.Identity
	groups  map[string]*groupState
	result  *Result
}

// Run executes sc and returns its result. Step expectations and assertion
// failures are reported in the result; a returned error means the scenario
// itself could not run.
func Run(ctx context.Context, sc *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: zap.NewNop(), limits: settings.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	limits, err := applyLimits(o.limits, sc.Limits)
	if err != nil {
		return nil, err
	}

	st := o.store
	if st == nil {
		st, err = store.Open(":memory:")
		if err != nil {
			return nil, errors.Wrap(err, "open in-memory store")
		}
		defer st.Close()
	}

	h := &Harness{
		sc:      sc,
		limits:  limits,
		clock:   testutil.NewWallClock(time.Second),
		relay:   newRelay(),
		logger:  o.logger.With(zap.String("scenario", sc.Name)),
		devices: map[string]Device{},
		users:   map[string]identity.Identity{},
		groups:  map[string]*groupState{},
		result:  NewResult(),
	}
	if err := h.setup(); err != nil {
		return nil, err
	}

	h.reg, err = worker.NewRegistry(ctx, st, h.open, limits.RegistrySize,
		worker.WithLogger(h.logger), worker.WithNow(h.clock.Now))
	if err != nil {
		return nil, err
	}

	runErr := h.run(ctx)
	if closeErr := h.reg.Close(); runErr == nil {
		runErr = closeErr
	}
	if runErr != nil {
		return nil, runErr
	}
	return h.result, nil
}

func applyLimits(base settings.Limits, o *Limits) (settings.Limits, error) {
	l := base
	if o != nil {
		set := func(dst *int, v *int) {
			if v != nil {
				*dst = *v
			}
		}
		set(&l.RegistrySize, o.RegistrySize)
		set(&l.RetainedGenerations, o.RetainedGenerations)
		set(&l.SupplementBatchSize, o.SupplementBatchSize)
		set(&l.KeyExpiryDays, o.KeyExpiryDays)
	}
	if err := l.Validate(); err != nil {
		return l, errors.Wrap(err, "scenario limits")
	}
	return l, nil
}

func (h *Harness) setup() error {
	for _, d := range h.sc.Devices {
		id, err := identity.FromSeed(testutil.Seed(byte(d.User)))
		if err != nil {
			return errors.Wrapf(err, "device %s", d.Name)
		}
		h.devices[d.Name] = d
		h.users[d.Name] = id
	}
	for _, g := range h.sc.Groups {
		secret := testutil.GroupKey(byte(g.Key))
		gs := &groupState{
			id:     identity.GroupID(secret.Public().(ed25519.PublicKey)),
			secret: secret,
			admins: map[string]bool{},
		}
		for _, a := range g.Admins {
			gs.admins[a] = true
		}
		gs.holders = append(append(gs.holders, g.Admins...), g.Members...)
		h.groups[g.Name] = gs
	}
	return nil
}

func (h *Harness) instanceID(device, target string) string {
	return h.sc.Name + "/" + device + "/" + target
}

// open builds the instance behind an id produced by instanceID.
func (h *Harness) open(id string, dump []byte) (worker.Instance, error) {
	parts := strings.SplitN(id, "/", 3)
	if len(parts) != 3 {
		return worker.Instance{}, errors.Newf("malformed instance id %q", id)
	}
	device, target := parts[1], parts[2]
	self, ok := h.users[device]
	if !ok {
		return worker.Instance{}, errors.Newf("unknown device %q", device)
	}
	logger := h.logger.With(zap.String("device", device))
	opts := []engine.Option{engine.WithNodeID(device), engine.WithNow(h.clock.Now), engine.WithLogger(logger)}

	name, isGroup := strings.CutPrefix(target, groupPrefix)
	if !isGroup {
		cfg, err := command.OpenConfig(target, self.Ed25519, dump, h.limits, opts...)
		if err != nil {
			return worker.Instance{}, err
		}
		return worker.Instance{Kind: target, Target: cfg}, nil
	}
	g := h.groups[name]
	if g == nil {
		return worker.Instance{}, errors.Newf("unknown target %q", target)
	}
	var own metagroup.Ownership = metagroup.NotOwned{}
	if g.admins[device] {
		own = metagroup.Owned{Secret: g.secret}
	}
	inst, err := metagroup.New(g.id, own, self, dump, h.limits,
		metagroup.WithNodeID(device), metagroup.WithNow(h.clock.Now), metagroup.WithLogger(logger))
	if err != nil {
		return worker.Instance{}, err
	}
	return worker.Instance{Kind: "group", Target: inst}, nil
}

func (h *Harness) do(ctx context.Context, device, target string, cmd command.Command) (any, error) {
	return h.reg.Do(ctx, h.instanceID(device, target), cmd)
}

func (h *Harness) run(ctx context.Context) error {
	for i, st := range h.sc.Steps {
		var err error
		switch {
		case st.Do != "":
			err = h.runDo(ctx, i, st)
		case st.Sync != "":
			err = h.runSync(ctx, st)
		default:
			err = h.runSend(ctx, i, st)
		}
		if err != nil {
			return errors.Wrapf(err, "steps[%d]", i)
		}
	}
	for _, msg := range h.evaluate(ctx) {
		h.result.AddError(msg)
	}
	return nil
}

func classify(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case engine.IsInvalidInput(err):
		return OutcomeInvalidInput
	case engine.IsMisuse(err):
		return OutcomeMisuse
	}
	return OutcomeError
}

// parse builds a command from scenario args, replacing "$device" strings
// with that device's session id.
func (h *Harness) parse(kind string, args map[string]any) (command.Command, error) {
	payload, err := json.Marshal(h.substitute(args))
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s args", kind)
	}
	return command.Parse(kind, payload)
}

func (h *Harness) substitute(v any) any {
	switch t := v.(type) {
	case string:
		if name, ok := strings.CutPrefix(t, "$"); ok {
			if id, found := h.users[name]; found {
				return id.SessionID()
			}
		}
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = h.substitute(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = h.substitute(e)
		}
		return out
	}
	return v
}

func (h *Harness) runDo(ctx context.Context, i int, st Step) error {
	cmd, err := h.parse(st.Do, st.Args)
	if err != nil {
		return err
	}
	res, err := h.do(ctx, st.Device, st.Target, cmd)
	outcome := classify(err)
	if outcome == OutcomeError {
		return err
	}
	h.result.record(TraceEvent{
		Step:    StepDo,
		Device:  st.Device,
		Target:  st.Target,
		Command: st.Do,
		Outcome: outcome,
	})

	want := st.Expect
	if want == "" {
		want = OutcomeOK
	}
	if outcome != want {
		h.result.AddError(fmt.Sprintf("steps[%d] %s on %s/%s: expected %s, got %s: %v",
			i, st.Do, st.Device, st.Target, want, outcome, err))
	}

	// Supplement keys go straight to the relay; they never sit in a push.
	if msgs, ok := res.([][]byte); ok && err == nil {
		if _, sup := cmd.(command.SupplementKeys); sup {
			name := strings.TrimPrefix(st.Target, groupPrefix)
			for _, m := range msgs {
				h.relay.store(groupSwarm(name, "keys"), st.Device, m, h.clock.Now().UnixMilli())
			}
		}
	}
	return nil
}

func (h *Harness) userSwarm(device, target string) string {
	return fmt.Sprintf("user-%d/%s", h.devices[device].User, target)
}

func groupSwarm(name, ns string) string {
	return groupPrefix + name + "/" + ns
}

// holders lists the devices that have target, in declaration order.
func (h *Harness) holders(target string) []string {
	if name, ok := strings.CutPrefix(target, groupPrefix); ok {
		return h.groups[name].holders
	}
	out := make([]string, 0, len(h.sc.Devices))
	for _, d := range h.sc.Devices {
		out = append(out, d.Name)
	}
	return out
}

// runSync is one relay round: every device uploads what it needs to, then
// every device fetches and merges what the others uploaded.
func (h *Harness) runSync(ctx context.Context, st Step) error {
	devices := st.Devices
	if len(devices) == 0 {
		devices = h.holders(st.Sync)
	}
	for _, d := range devices {
		if err := h.push(ctx, d, st.Sync); err != nil {
			return errors.Wrapf(err, "push %s/%s", d, st.Sync)
		}
	}
	for _, d := range devices {
		if err := h.merge(ctx, d, st.Sync); err != nil {
			return errors.Wrapf(err, "merge %s/%s", d, st.Sync)
		}
	}
	return nil
}

func (h *Harness) push(ctx context.Context, device, target string) error {
	needs, err := h.do(ctx, device, target, command.NeedsPush{})
	if err != nil {
		return err
	}
	if !needs.(bool) {
		return nil
	}
	now := h.clock.Now().UnixMilli()

	name, isGroup := strings.CutPrefix(target, groupPrefix)
	if !isGroup {
		res, err := h.do(ctx, device, target, command.Push{})
		if err != nil {
			return err
		}
		p := res.(engine.PushResult)
		hash := h.relay.store(h.userSwarm(device, target), device, p.Data, now)
		if _, err := h.do(ctx, device, target, command.Confirm{Seqno: p.Seqno, Hash: hash}); err != nil {
			return err
		}
		h.result.record(TraceEvent{Step: StepPush, Device: device, Target: target, Seqno: p.Seqno})
		return nil
	}

	res, err := h.do(ctx, device, target, command.GroupPush{})
	if err != nil {
		return err
	}
	p := res.(metagroup.Push)
	var (
		confirm command.GroupConfirm
		parts   []string
	)
	if p.GroupKeys != nil {
		confirm.KeysHash = h.relay.store(groupSwarm(name, "keys"), device, p.GroupKeys.Data, now)
		parts = append(parts, "keys")
	}
	if p.GroupInfo != nil {
		hash := h.relay.store(groupSwarm(name, "info"), device, p.GroupInfo.Data, now)
		confirm.Info = &command.ConfirmRef{Seqno: p.GroupInfo.Seqno, Hash: hash}
		parts = append(parts, "info")
	}
	if p.GroupMember != nil {
		hash := h.relay.store(groupSwarm(name, "members"), device, p.GroupMember.Data, now)
		confirm.Members = &command.ConfirmRef{Seqno: p.GroupMember.Seqno, Hash: hash}
		parts = append(parts, "members")
	}
	if _, err := h.do(ctx, device, target, confirm); err != nil {
		return err
	}
	h.result.record(TraceEvent{Step: StepPush, Device: device, Target: target, Command: "group.push", Parts: parts})
	return nil
}

func (h *Harness) merge(ctx context.Context, device, target string) error {
	name, isGroup := strings.CutPrefix(target, groupPrefix)
	if !isGroup {
		msgs := h.relay.fetch(h.userSwarm(device, target), device)
		if len(msgs) == 0 {
			return nil
		}
		records := make([]command.Record, len(msgs))
		for i, m := range msgs {
			records[i] = command.Record{Hash: m.Hash, Data: m.Data}
		}
		res, err := h.do(ctx, device, target, command.Merge{Records: records})
		if err != nil {
			return err
		}
		h.result.record(TraceEvent{Step: StepMerge, Device: device, Target: target, Merged: len(res.([]string))})
		return nil
	}

	var in command.GroupMerge
	for _, m := range h.relay.fetch(groupSwarm(name, "keys"), device) {
		in.Keys = append(in.Keys, command.KeyRecord{Hash: m.Hash, Data: m.Data, TimestampMs: m.TimestampMs})
	}
	for _, m := range h.relay.fetch(groupSwarm(name, "info"), device) {
		in.Info = append(in.Info, command.Record{Hash: m.Hash, Data: m.Data})
	}
	for _, m := range h.relay.fetch(groupSwarm(name, "members"), device) {
		in.Members = append(in.Members, command.Record{Hash: m.Hash, Data: m.Data})
	}
	if len(in.Keys)+len(in.Info)+len(in.Members) == 0 {
		return nil
	}
	res, err := h.do(ctx, device, target, in)
	if err != nil {
		return err
	}
	c := res.(metagroup.MergeCounts)
	h.result.record(TraceEvent{
		Step:    StepMerge,
		Device:  device,
		Target:  target,
		Command: "group.merge",
		Merged:  c.Keys + c.Info + c.Members,
	})
	return nil
}

func (h *Harness) runSend(ctx context.Context, i int, st Step) error {
	name := strings.TrimPrefix(st.Send, groupPrefix)
	res, err := h.do(ctx, st.Device, st.Send, command.Encrypt{Messages: []string{st.Text}})
	if err != nil {
		if classify(err) == OutcomeError {
			return err
		}
		h.result.AddError(fmt.Sprintf("steps[%d] send on %s/%s: %v", i, st.Device, st.Send, err))
		return nil
	}
	ct := res.([][]byte)[0]
	h.relay.store(groupSwarm(name, "messages"), st.Device, ct, h.clock.Now().UnixMilli())

	var readers []string
	check := func(d string, want bool) error {
		out, err := h.do(ctx, d, st.Send, command.Decrypt{Ciphertext: ct})
		if err != nil {
			return err
		}
		dec := out.(command.Decrypted)
		got := dec.OK && dec.Plaintext == st.Text && dec.SenderID == h.users[st.Device].SessionID()
		if got {
			readers = append(readers, d)
		}
		if got != want {
			verb := "read"
			if !want {
				verb = "not read"
			}
			h.result.AddError(fmt.Sprintf("steps[%d] send from %s: %s should %s the message", i, st.Device, d, verb))
		}
		return nil
	}
	for _, d := range st.Readable {
		if err := check(d, true); err != nil {
			return err
		}
	}
	for _, d := range st.Unreadable {
		if err := check(d, false); err != nil {
			return err
		}
	}
	h.result.record(TraceEvent{Step: StepSend, Device: st.Device, Target: st.Send, Readers: readers})
	return nil
}
