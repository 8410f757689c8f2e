package keys

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"io"

	"github.com/cockroachdb/errors"
	xdr "github.com/davecgh/go-xdr/xdr2"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/roach88/swarmsync/internal/engine"
	"github.com/roach88/swarmsync/internal/identity"
)

// Decrypted is an opened group message.
type Decrypted struct {
	SenderID  string
	Plaintext []byte
}

// groupMessage is the plaintext inside a group message box. The sender
// signs the group key followed by the body.
type groupMessage struct {
	Sender    []byte
	Body      []byte
	Signature []byte
}

func (r *Ring) signedBytes(body []byte) []byte {
	return append(append([]byte{}, r.group...), body...)
}

// EncryptMessages seals each plaintext under the current key with a fresh
// nonce, signed by the local member.
func (r *Ring) EncryptMessages(plaintexts [][]byte) ([][]byte, error) {
	cur, ok := r.current()
	if !ok {
		return nil, engine.NewMisuseError("encrypt", "no group key loaded")
	}
	out := make([][]byte, 0, len(plaintexts))
	for _, p := range plaintexts {
		gm := groupMessage{
			Sender:    r.self.Public(),
			Body:      p,
			Signature: ed25519.Sign(r.self.Ed25519, r.signedBytes(p)),
		}
		var inner bytes.Buffer
		if _, err := xdr.Marshal(&inner, gm); err != nil {
			return nil, errors.Wrap(err, "marshal group message")
		}
		var nonce [24]byte
		if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
			return nil, errors.Wrap(err, "generate nonce")
		}
		out = append(out, secretbox.Seal(nonce[:], inner.Bytes(), &nonce, &cur.Key))
	}
	return out, nil
}

// DecryptMessage tries every retained key, newest first. ok is false when
// no key opens the message or the sender signature does not verify.
func (r *Ring) DecryptMessage(ciphertext []byte) (Decrypted, bool) {
	for _, e := range r.entries {
		plain, err := engine.OpenSecretbox(&e.Key, ciphertext)
		if err != nil {
			continue
		}
		var gm groupMessage
		if _, err := xdr.Unmarshal(bytes.NewReader(plain), &gm); err != nil {
			return Decrypted{}, false
		}
		if len(gm.Sender) != ed25519.PublicKeySize ||
			!ed25519.Verify(gm.Sender, r.signedBytes(gm.Body), gm.Signature) {
			return Decrypted{}, false
		}
		sender, err := identity.SessionIDFromEd25519(gm.Sender)
		if err != nil {
			return Decrypted{}, false
		}
		return Decrypted{SenderID: sender, Plaintext: gm.Body}, true
	}
	return Decrypted{}, false
}
