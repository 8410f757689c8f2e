// Package subaccount issues and uses delegated signing keys.
//
// An admin grants member M a subaccount key S = k·M where M is the
// member's ed25519 point and k = H(group ‖ M). The member can sign with
// k·m without the admin key, and the relay checks the signature with
// plain ed25519 against S plus the admin signature over the token.
package subaccount

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/hex"

	"filippo.io/edwards25519"
	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/roach88/swarmsync/internal/engine"
	"github.com/roach88/swarmsync/internal/identity"
)

// Flags scope what a subaccount may do on the relay.
type Flags byte

const (
	FlagRead Flags = 1 << iota
	FlagWrite
	FlagDelete
	FlagAnyPrefix

	DefaultFlags = FlagRead | FlagWrite
)

const (
	tokenPrefix = 0x03

	// PrefixSize is the tag and flags header of a subaccount.
	PrefixSize = 4
	// SubaccountSize is prefix plus the subaccount public key.
	SubaccountSize = PrefixSize + 32
	// TokenSize is a subaccount plus the admin signature over it.
	TokenSize = SubaccountSize + ed25519.SignatureSize
)

// Signed is a request signature made with a subaccount.
type Signed struct {
	Subaccount    []byte
	SubaccountSig []byte
	Signature     []byte
}

// KeySource supplies the group key and local identities. *keys.Ring
// satisfies it.
type KeySource interface {
	Group() ed25519.PublicKey
	Self() identity.Identity
	AdminSecret() (ed25519.PrivateKey, bool)
}

// Authority issues and uses subaccounts for one group.
type Authority struct {
	keys KeySource
}

// New returns an Authority over src.
func New(src KeySource) *Authority {
	return &Authority{keys: src}
}

// blind returns k = H(group ‖ member) as a scalar.
func (a *Authority) blind(member *edwards25519.Point) (*edwards25519.Scalar, error) {
	h, err := blake2b.New512(nil)
	if err != nil {
		return nil, errors.Wrap(err, "init subaccount hash")
	}
	h.Write(a.keys.Group())
	h.Write(member.Bytes())
	k, err := new(edwards25519.Scalar).SetUniformBytes(h.Sum(nil))
	if err != nil {
		return nil, errors.Wrap(err, "reduce subaccount scalar")
	}
	return k, nil
}

func (a *Authority) subaccount(memberHex string, flags Flags) ([]byte, error) {
	x, err := identity.ParseSessionID(memberHex)
	if err != nil {
		return nil, engine.NewInvalidInputError("subaccount", "%v", err)
	}
	point, err := identity.EdwardsFromX25519(x)
	if err != nil {
		return nil, engine.NewInvalidInputError("subaccount", "%v", err)
	}
	k, err := a.blind(point)
	if err != nil {
		return nil, err
	}
	s := new(edwards25519.Point).ScalarMult(k, point)
	out := make([]byte, 0, SubaccountSize)
	out = append(out, tokenPrefix, byte(flags), 0, 0)
	return append(out, s.Bytes()...), nil
}

// MakeSwarmSubAccount issues a token for memberHex with flags, signed by
// the group admin key.
func (a *Authority) MakeSwarmSubAccount(memberHex string, flags Flags) ([]byte, error) {
	secret, ok := a.keys.AdminSecret()
	if !ok {
		return nil, engine.NewMisuseError("make subaccount", "admin keys are not loaded")
	}
	sub, err := a.subaccount(memberHex, flags)
	if err != nil {
		return nil, err
	}
	return append(sub, ed25519.Sign(secret, sub)...), nil
}

// SwarmSubAccountToken returns the hex subaccount of memberHex with the
// default flags, as the relay indexes it.
func (a *Authority) SwarmSubAccountToken(memberHex string) (string, error) {
	sub, err := a.subaccount(memberHex, DefaultFlags)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sub), nil
}

// localScalar returns m such that m·B is the local member's point with a
// clear sign bit, the point EdwardsFromX25519 recovers from the session id.
func localScalar(self identity.Identity) (*edwards25519.Scalar, *edwards25519.Point, error) {
	h := sha512.Sum512(self.Ed25519.Seed())
	m, err := new(edwards25519.Scalar).SetBytesWithClamping(h[:32])
	if err != nil {
		return nil, nil, errors.Wrap(err, "clamp member scalar")
	}
	p := new(edwards25519.Point).ScalarBaseMult(m)
	if p.Bytes()[31]&0x80 != 0 {
		m.Negate(m)
		p.Negate(p)
	}
	return m, p, nil
}

func (a *Authority) checkToken(authData []byte) error {
	if len(authData) != TokenSize {
		return errors.Newf("token must be %d bytes, got %d", TokenSize, len(authData))
	}
	sub, sig := authData[:SubaccountSize], authData[SubaccountSize:]
	if sub[0] != tokenPrefix {
		return errors.Newf("unknown token prefix %#x", sub[0])
	}
	if !ed25519.Verify(a.keys.Group(), sub, sig) {
		return errors.New("admin signature does not verify")
	}
	return nil
}

// SwarmSubaccountSign signs message with the subaccount key granted by
// authData. The signature verifies with plain ed25519 against the
// subaccount public key.
func (a *Authority) SwarmSubaccountSign(message, authData []byte) (Signed, error) {
	const op = "subaccount sign"
	if err := a.checkToken(authData); err != nil {
		return Signed{}, engine.NewInvalidInputError(op, "%v", err)
	}
	m, point, err := localScalar(a.keys.Self())
	if err != nil {
		return Signed{}, err
	}
	k, err := a.blind(point)
	if err != nil {
		return Signed{}, err
	}
	s := new(edwards25519.Scalar).Multiply(k, m)
	pub := new(edwards25519.Point).ScalarBaseMult(s).Bytes()
	if !bytes.Equal(pub, authData[PrefixSize:SubaccountSize]) {
		return Signed{}, engine.NewInvalidInputError(op, "token was issued to another member")
	}

	// Deterministic nonce from the derived key and the message.
	nh := sha512.New()
	nh.Write(s.Bytes())
	nh.Write(message)
	r, err := new(edwards25519.Scalar).SetUniformBytes(nh.Sum(nil))
	if err != nil {
		return Signed{}, errors.Wrap(err, "derive nonce")
	}
	R := new(edwards25519.Point).ScalarBaseMult(r).Bytes()

	ch := sha512.New()
	ch.Write(R)
	ch.Write(pub)
	ch.Write(message)
	c, err := new(edwards25519.Scalar).SetUniformBytes(ch.Sum(nil))
	if err != nil {
		return Signed{}, errors.Wrap(err, "derive challenge")
	}
	sig := append(R, new(edwards25519.Scalar).MultiplyAdd(c, s, r).Bytes()...)

	return Signed{
		Subaccount:    bytes.Clone(authData[:SubaccountSize]),
		SubaccountSig: bytes.Clone(authData[SubaccountSize:]),
		Signature:     sig,
	}, nil
}

// SwarmVerifySubAccount reports whether authData is an admin-signed token
// for the local member.
func (a *Authority) SwarmVerifySubAccount(authData []byte) bool {
	if a.checkToken(authData) != nil {
		return false
	}
	want, err := a.subaccount(a.keys.Self().SessionID(), Flags(authData[1]))
	if err != nil {
		return false
	}
	return bytes.Equal(want, authData[:SubaccountSize])
}

// VerifySigned checks a subaccount signature the way the relay does.
func VerifySigned(group ed25519.PublicKey, message []byte, s Signed) bool {
	if len(s.Subaccount) != SubaccountSize {
		return false
	}
	if !ed25519.Verify(group, s.Subaccount, s.SubaccountSig) {
		return false
	}
	return ed25519.Verify(s.Subaccount[PrefixSize:], message, s.Signature)
}
