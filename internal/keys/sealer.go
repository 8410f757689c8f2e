package keys

import (
	"crypto/ed25519"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/roach88/swarmsync/internal/engine"
)

// Sealer seals group configs under the ring's current key and signs them
// with the group secret. Members without the secret can open but not seal.
type Sealer struct {
	ring *Ring
	ns   engine.Namespace
}

var _ engine.Sealer = (*Sealer)(nil)

// NewSealer returns a sealer for the group config in namespace ns.
func NewSealer(r *Ring, ns engine.Namespace) *Sealer {
	return &Sealer{ring: r, ns: ns}
}

func (s *Sealer) subkey(key [32]byte) (*[32]byte, error) {
	h, err := blake2b.New256(key[:])
	if err != nil {
		return nil, errors.Wrap(err, "init config key derivation")
	}
	h.Write([]byte("swarmsync/group-config/v1"))
	var nsb [4]byte
	binary.BigEndian.PutUint32(nsb[:], uint32(s.ns))
	h.Write(nsb[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return &out, nil
}

// CanSeal implements engine.Sealer.
func (s *Sealer) CanSeal() bool {
	_, ok := s.ring.current()
	return ok && s.ring.admin != nil
}

// Seal implements engine.Sealer. The output is signature || nonce || box.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	cur, ok := s.ring.current()
	if !ok || s.ring.admin == nil {
		return nil, engine.NewMisuseError("seal group config", "admin key and group key are required")
	}
	key, err := s.subkey(cur.Key)
	if err != nil {
		return nil, err
	}
	nonce, err := engine.DeterministicNonce(key[:], plaintext)
	if err != nil {
		return nil, err
	}
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, key)
	sig := ed25519.Sign(s.ring.admin, sealed)
	return append(sig, sealed...), nil
}

// Open implements engine.Sealer.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < ed25519.SignatureSize {
		return nil, errors.Newf("sealed group config too short: %d bytes", len(sealed))
	}
	sig, body := sealed[:ed25519.SignatureSize], sealed[ed25519.SignatureSize:]
	if !ed25519.Verify(s.ring.group, body, sig) {
		return nil, errors.New("bad group signature")
	}
	for _, e := range s.ring.entries {
		key, err := s.subkey(e.Key)
		if err != nil {
			return nil, err
		}
		if plain, err := engine.OpenSecretbox(key, body); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("no retained key opens the group config")
}
