// Package multiencrypt seals messages for many recipients at once, as used
// for group invitations and supplemental key drops. One random nonce is
// shared; each box uses a key derived from the sender/recipient x25519
// shared secret and a caller-chosen domain string.
package multiencrypt

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"io"
	mrand "math/rand/v2"

	"github.com/cockroachdb/errors"
	xdr "github.com/davecgh/go-xdr/xdr2"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"

	"github.com/roach88/swarmsync/internal/engine"
	"github.com/roach88/swarmsync/internal/identity"
)

// MaxDomainLength bounds the domain string, which keys a BLAKE2b hash.
const MaxDomainLength = blake2b.Size

type envelope struct {
	Nonce [chacha20poly1305.NonceSizeX]byte
	Boxes [][]byte
}

func boxKey(domain string, shared []byte, sender, recipient [32]byte) ([]byte, error) {
	h, err := blake2b.New256([]byte(domain))
	if err != nil {
		return nil, errors.Wrap(err, "init box key hash")
	}
	h.Write(shared)
	h.Write(sender[:])
	h.Write(recipient[:])
	return h.Sum(nil), nil
}

func checkDomain(op, domain string) error {
	if domain == "" || len(domain) > MaxDomainLength {
		return engine.NewInvalidInputError(op, "domain must be 1 to %d bytes", MaxDomainLength)
	}
	return nil
}

// Encrypt seals messages for recipients (x25519 public keys). Either one
// message goes to every recipient, or messages[i] goes to recipients[i].
// Boxes are shuffled so their order does not reveal recipients.
func Encrypt(senderSecret ed25519.PrivateKey, domain string, messages [][]byte, recipients [][32]byte) ([]byte, error) {
	const op = "multi encrypt"
	if err := checkDomain(op, domain); err != nil {
		return nil, err
	}
	if len(messages) != 1 && len(messages) != len(recipients) {
		return nil, engine.NewInvalidInputError(op, "%d messages for %d recipients", len(messages), len(recipients))
	}
	sender, err := identity.FromPrivateKey(senderSecret)
	if err != nil {
		return nil, engine.NewInvalidInputError(op, "%v", err)
	}

	var env envelope
	if _, err := io.ReadFull(rand.Reader, env.Nonce[:]); err != nil {
		return nil, errors.Wrap(err, "generate nonce")
	}
	for i, r := range recipients {
		shared, err := curve25519.X25519(sender.X25519Private[:], r[:])
		if err != nil {
			return nil, engine.NewInvalidInputError(op, "recipient %d: %v", i, err)
		}
		key, err := boxKey(domain, shared, sender.X25519Public, r)
		if err != nil {
			return nil, err
		}
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, errors.Wrap(err, "init cipher")
		}
		msg := messages[0]
		if len(messages) > 1 {
			msg = messages[i]
		}
		env.Boxes = append(env.Boxes, aead.Seal(nil, env.Nonce[:], msg, nil))
	}
	mrand.Shuffle(len(env.Boxes), func(i, j int) {
		env.Boxes[i], env.Boxes[j] = env.Boxes[j], env.Boxes[i]
	})

	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, env); err != nil {
		return nil, errors.Wrap(err, "marshal envelope")
	}
	return buf.Bytes(), nil
}

// DecryptEd25519 opens the box addressed to secret from the sender whose
// ed25519 key is senderPub. ok is false when no box opens.
func DecryptEd25519(encoded []byte, secret ed25519.PrivateKey, senderPub ed25519.PublicKey, domain string) ([]byte, bool) {
	if checkDomain("multi decrypt", domain) != nil {
		return nil, false
	}
	me, err := identity.FromPrivateKey(secret)
	if err != nil {
		return nil, false
	}
	senderX, err := identity.X25519FromEd25519(senderPub)
	if err != nil {
		return nil, false
	}
	var env envelope
	if _, err := xdr.Unmarshal(bytes.NewReader(encoded), &env); err != nil {
		return nil, false
	}
	shared, err := curve25519.X25519(me.X25519Private[:], senderX[:])
	if err != nil {
		return nil, false
	}
	key, err := boxKey(domain, shared, senderX, me.X25519Public)
	if err != nil {
		return nil, false
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, false
	}
	for _, b := range env.Boxes {
		if plain, err := aead.Open(nil, env.Nonce[:], b, nil); err == nil {
			return plain, true
		}
	}
	return nil, false
}
