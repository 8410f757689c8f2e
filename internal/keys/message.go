package keys

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"slices"

	"github.com/cockroachdb/errors"
	xdr "github.com/davecgh/go-xdr/xdr2"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/roach88/swarmsync/internal/engine"
	"github.com/roach88/swarmsync/internal/identity"
)

const messageVersion = 1

// keyMessage distributes one key. The key is boxed once per recipient
// under an ephemeral x25519 key and once under a key only admins can
// derive, alongside the recipient list.
type keyMessage struct {
	Version     uint32
	Group       [32]byte
	Generation  uint64
	CreatedAtMs int64
	Supplement  bool
	Nonce       [24]byte
	Ephemeral   [32]byte
	Admin       []byte
	Members     []memberBox
}

type memberBox struct {
	Box []byte
}

type adminPayload struct {
	Key        [32]byte
	Recipients []string
}

type signedMessage struct {
	Body      []byte
	Signature []byte
}

func adminBoxKey(secret ed25519.PrivateKey) (*[32]byte, error) {
	h, err := blake2b.New256(secret.Seed())
	if err != nil {
		return nil, errors.Wrap(err, "init admin key derivation")
	}
	h.Write([]byte("swarmsync/keys/admin"))
	var k [32]byte
	copy(k[:], h.Sum(nil))
	return &k, nil
}

// buildMessage wraps e.Key for every recipient and signs the result with
// the group secret.
func (r *Ring) buildMessage(e Entry, recipients []string, supplement bool) ([]byte, error) {
	m := keyMessage{
		Version:     messageVersion,
		Generation:  e.Generation,
		CreatedAtMs: e.CreatedAtMs,
		Supplement:  supplement,
	}
	copy(m.Group[:], r.group)
	if _, err := io.ReadFull(rand.Reader, m.Nonce[:]); err != nil {
		return nil, errors.Wrap(err, "generate nonce")
	}
	ephPub, ephPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generate ephemeral key")
	}
	m.Ephemeral = *ephPub

	for _, id := range recipients {
		pub, err := identity.ParseSessionID(id)
		if err != nil {
			return nil, engine.NewInvalidInputError("wrap key", "%v", err)
		}
		m.Members = append(m.Members, memberBox{Box: box.Seal(nil, e.Key[:], &m.Nonce, &pub, ephPriv)})
	}

	var ap bytes.Buffer
	if _, err := xdr.Marshal(&ap, adminPayload{Key: e.Key, Recipients: recipients}); err != nil {
		return nil, errors.Wrap(err, "marshal admin payload")
	}
	ak, err := adminBoxKey(r.admin)
	if err != nil {
		return nil, err
	}
	m.Admin = secretbox.Seal(nil, ap.Bytes(), &m.Nonce, ak)

	var body bytes.Buffer
	if _, err := xdr.Marshal(&body, m); err != nil {
		return nil, errors.Wrap(err, "marshal key message")
	}
	var out bytes.Buffer
	signed := signedMessage{Body: body.Bytes(), Signature: ed25519.Sign(r.admin, body.Bytes())}
	if _, err := xdr.Marshal(&out, signed); err != nil {
		return nil, errors.Wrap(err, "marshal signed key message")
	}
	return out.Bytes(), nil
}

// parseMessage verifies the group signature and decodes the body.
func (r *Ring) parseMessage(data []byte) (keyMessage, error) {
	var signed signedMessage
	if _, err := xdr.Unmarshal(bytes.NewReader(data), &signed); err != nil {
		return keyMessage{}, errors.Wrap(err, "decode envelope")
	}
	if !ed25519.Verify(r.group, signed.Body, signed.Signature) {
		return keyMessage{}, errors.New("bad group signature")
	}
	var m keyMessage
	if _, err := xdr.Unmarshal(bytes.NewReader(signed.Body), &m); err != nil {
		return keyMessage{}, errors.Wrap(err, "decode key message")
	}
	if m.Version != messageVersion {
		return keyMessage{}, errors.Newf("unsupported key message version %d", m.Version)
	}
	if !bytes.Equal(m.Group[:], r.group) {
		return keyMessage{}, errors.New("key message for another group")
	}
	return m, nil
}

// unwrap recovers the key from m, preferring the admin copy. Recipients
// are only known when the admin copy opens.
func (r *Ring) unwrap(m keyMessage) ([32]byte, []string, bool) {
	var key [32]byte
	if r.admin != nil {
		if ak, err := adminBoxKey(r.admin); err == nil {
			if plain, ok := secretbox.Open(nil, m.Admin, &m.Nonce, ak); ok {
				var ap adminPayload
				if _, err := xdr.Unmarshal(bytes.NewReader(plain), &ap); err == nil {
					return ap.Key, ap.Recipients, true
				}
			}
		}
	}
	for _, mb := range m.Members {
		plain, ok := box.Open(nil, mb.Box, &m.Nonce, &m.Ephemeral, &r.self.X25519Private)
		if ok && len(plain) == len(key) {
			copy(key[:], plain)
			return key, nil, true
		}
	}
	return key, nil, false
}

func newKey() ([32]byte, error) {
	var k [32]byte
	if _, err := io.ReadFull(rand.Reader, k[:]); err != nil {
		return k, errors.Wrap(err, "generate key")
	}
	return k, nil
}

// NeedsRekey reports whether this admin device should issue a new key:
// no key exists yet, two keys compete for the newest generation, or a
// recipient of the newest key is no longer in active.
func (r *Ring) NeedsRekey(active []string) bool {
	if r.admin == nil {
		return false
	}
	cur, ok := r.current()
	if !ok {
		return true
	}
	if len(r.entries) > 1 && r.entries[1].Generation == cur.Generation {
		return true
	}
	for _, id := range r.recipients {
		if !slices.Contains(active, id) {
			return true
		}
	}
	return false
}

// Rekey creates the next generation, wraps it for every id in active and
// returns the signed message. The new key is used immediately and the
// message stays pending until ConfirmPushed.
func (r *Ring) Rekey(active []string) ([]byte, error) {
	if r.admin == nil {
		return nil, engine.NewMisuseError("rekey", "admin keys are not loaded")
	}
	gen := uint64(0)
	if cur, ok := r.current(); ok {
		gen = cur.Generation + 1
	}
	key, err := newKey()
	if err != nil {
		return nil, err
	}
	recipients := slices.Clone(active)
	slices.Sort(recipients)
	recipients = slices.Compact(recipients)

	e := Entry{Generation: gen, Key: key, CreatedAtMs: r.now().UnixMilli()}
	data, err := r.buildMessage(e, recipients, false)
	if err != nil {
		return nil, err
	}
	r.insert(e)
	r.recipients = recipients
	r.pending = data
	r.pendingGen = gen
	r.prune()
	r.logger.Info("rekeyed",
		zap.Uint64("generation", gen),
		zap.Int("recipients", len(recipients)))
	return data, nil
}

// GenerateSupplementKeys wraps the current key for new members without
// advancing the generation, SupplementBatchSize members per message.
func (r *Ring) GenerateSupplementKeys(members []string) ([][]byte, error) {
	if r.admin == nil {
		return nil, engine.NewMisuseError("supplement keys", "admin keys are not loaded")
	}
	cur, ok := r.current()
	if !ok {
		return nil, engine.NewMisuseError("supplement keys", "no key to supplement")
	}
	if len(members) == 0 {
		return nil, engine.NewInvalidInputError("supplement keys", "no members given")
	}
	ids := slices.Clone(members)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	var out [][]byte
	for batch := range slices.Chunk(ids, max(1, r.limits.SupplementBatchSize)) {
		data, err := r.buildMessage(cur, batch, true)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	for _, id := range ids {
		if !slices.Contains(r.recipients, id) {
			r.recipients = append(r.recipients, id)
		}
	}
	slices.Sort(r.recipients)
	r.needsDump = true
	return out, nil
}

// LoadKeyMessage ingests a key message fetched from the relay and reports
// whether it added a key. Messages already seen, with a bad signature, for
// an older generation, or carrying a key already held are rejected. The
// relay timestamp orders competing keys of the same generation.
func (r *Ring) LoadKeyMessage(hash string, data []byte, timestampMs int64) bool {
	log := r.logger.With(zap.String("hash", hash))
	if hash == "" {
		return false
	}
	if _, ok := r.seen[hash]; ok {
		return false
	}
	m, err := r.parseMessage(data)
	if err != nil {
		log.Debug("rejecting key message", zap.Error(err))
		return false
	}
	cur, has := r.current()
	if has && m.Generation < cur.Generation {
		log.Debug("rejecting stale generation",
			zap.Uint64("generation", m.Generation),
			zap.Uint64("current", cur.Generation))
		r.seen[hash] = m.Generation
		return false
	}
	key, recipients, ok := r.unwrap(m)
	if !ok {
		log.Debug("key message not addressed to this member", zap.Uint64("generation", m.Generation))
		return false
	}
	r.seen[hash] = m.Generation
	r.needsDump = true
	if r.holds(m.Generation, key) {
		r.live[hash] = m.Generation
		if r.pending != nil && bytes.Equal(r.pending, data) {
			r.dropPending()
		}
		r.mergeRecipients(m.Generation, recipients)
		return false
	}

	if !has || m.Generation > cur.Generation {
		r.recipients = nil
		if r.pending != nil && r.pendingGen < m.Generation {
			log.Debug("dropping superseded rekey", zap.Uint64("generation", r.pendingGen))
			r.dropPending()
		}
	}
	created := timestampMs
	if created <= 0 {
		created = m.CreatedAtMs
	}
	r.insert(Entry{Generation: m.Generation, Key: key, CreatedAtMs: created})
	r.live[hash] = m.Generation
	r.mergeRecipients(m.Generation, recipients)
	r.prune()
	log.Info("loaded key", zap.Uint64("generation", m.Generation), zap.Bool("supplement", m.Supplement))
	return true
}

func (r *Ring) mergeRecipients(gen uint64, recipients []string) {
	cur, ok := r.current()
	if !ok || cur.Generation != gen || recipients == nil {
		return
	}
	for _, id := range recipients {
		if !slices.Contains(r.recipients, id) {
			r.recipients = append(r.recipients, id)
		}
	}
	slices.Sort(r.recipients)
}
